package services

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"talk-lab/directory"
	"talk-lab/domain"
	"talk-lab/errors"
)

type managerEnv struct {
	*testEnv
	directory *directory.StaticDirectory
	manager   *RoomManager
}

func newManagerEnv(t *testing.T, users map[string]string) *managerEnv {
	t.Helper()
	env := newTestEnv(t)
	log := slog.Default()

	dir := directory.NewStaticDirectory(users)
	tokens := NewTokenService(env.rooms, env.config, env.bus, log)
	manager := NewRoomManager(env.rooms, env.attendees, env.service, tokens, dir, env.bus, log)

	return &managerEnv{testEnv: env, directory: dir, manager: manager}
}

func TestRoomManager_CreateRoom(t *testing.T) {
	req := require.New(t)
	env := newManagerEnv(t, nil)

	room, err := env.manager.CreateRoom(domain.RoomTypeGroup, "platform team")
	req.NoError(err)
	req.Len(room.Token, 8)
	req.Equal(domain.RoomTypeGroup, room.Type)
	req.Equal("platform team", room.Name)

	loaded, err := env.manager.RoomByToken(room.Token)
	req.NoError(err)
	req.Equal(room.ID, loaded.ID)
}

func TestRoomManager_CreateOneToOneRoom(t *testing.T) {
	t.Run("should refuse a conversation with yourself", func(t *testing.T) {
		req := require.New(t)
		env := newManagerEnv(t, map[string]string{"alice": "Alice"})

		_, err := env.manager.CreateOneToOneRoom("alice", "alice")
		req.ErrorIs(err, errors.ErrUnauthorized)
	})

	t.Run("should fill both sides when the invitee is a known user", func(t *testing.T) {
		req := require.New(t)
		env := newManagerEnv(t, map[string]string{"alice": "Alice", "bob": "Bob"})

		room, err := env.manager.CreateOneToOneRoom("alice", "bob")
		req.NoError(err)
		req.False(room.InviteState().Pending)

		for _, id := range []string{"alice", "bob"} {
			attendee, err := env.attendees.Find(room.ID, domain.ActorUsers, id)
			req.NoError(err)
			req.Equal(domain.ParticipantOwner, attendee.Type)
		}
	})

	t.Run("should keep an unknown invitee pending", func(t *testing.T) {
		req := require.New(t)
		env := newManagerEnv(t, map[string]string{"alice": "Alice"})

		room, err := env.manager.CreateOneToOneRoom("alice", "ghost")
		req.NoError(err)
		req.True(room.InviteState().Pending)
		req.Equal("ghost", room.InviteState().InviteeID)

		_, err = env.attendees.Find(room.ID, domain.ActorUsers, "ghost")
		req.ErrorIs(err, errors.ErrParticipantNotFound)
	})

	t.Run("should return the existing room for either order", func(t *testing.T) {
		req := require.New(t)
		env := newManagerEnv(t, map[string]string{"alice": "Alice", "bob": "Bob"})

		first, err := env.manager.CreateOneToOneRoom("alice", "bob")
		req.NoError(err)

		second, err := env.manager.CreateOneToOneRoom("bob", "alice")
		req.NoError(err)
		req.Equal(first.ID, second.ID)

		found, err := env.manager.OneToOneRoom("bob", "alice")
		req.NoError(err)
		req.Equal(first.ID, found.ID)
	})

	t.Run("should complete a pending pair once the invitee appears", func(t *testing.T) {
		req := require.New(t)
		env := newManagerEnv(t, map[string]string{"alice": "Alice"})

		room, err := env.manager.CreateOneToOneRoom("alice", "carol")
		req.NoError(err)
		req.True(room.InviteState().Pending)

		env.directory.AddUser("carol", "Carol")

		room, err = env.manager.CreateOneToOneRoom("alice", "carol")
		req.NoError(err)
		req.False(room.InviteState().Pending)

		attendee, err := env.attendees.Find(room.ID, domain.ActorUsers, "carol")
		req.NoError(err)
		req.Equal(domain.ParticipantOwner, attendee.Type)
	})
}

func TestRoomManager_RoomForParticipantByToken(t *testing.T) {
	env := newManagerEnv(t, map[string]string{"alice": "Alice", "bob": "Bob"})

	t.Run("should expose a public room to anyone", func(t *testing.T) {
		req := require.New(t)
		public, err := env.manager.CreateRoom(domain.RoomTypePublic, "town hall")
		req.NoError(err)

		room, err := env.manager.RoomForParticipantByToken(public.Token, "stranger")
		req.NoError(err)
		req.Equal(public.ID, room.ID)
	})

	t.Run("should hide a group room from non-members as not found", func(t *testing.T) {
		req := require.New(t)
		group, err := env.manager.CreateRoom(domain.RoomTypeGroup, "staff")
		req.NoError(err)
		req.NoError(env.service.AddAttendees(group, []domain.AttendeeEntry{{ActorID: "alice"}}))

		room, err := env.manager.RoomForParticipantByToken(group.Token, "alice")
		req.NoError(err)
		req.Equal(group.ID, room.ID)

		_, err = env.manager.RoomForParticipantByToken(group.Token, "stranger")
		req.ErrorIs(err, errors.ErrRoomNotFound)
	})

	t.Run("should admit and fill the pending invitee of a pair", func(t *testing.T) {
		req := require.New(t)
		pair, err := env.manager.CreateOneToOneRoom("alice", "dave")
		req.NoError(err)
		req.True(pair.InviteState().Pending)

		env.directory.AddUser("dave", "Dave")

		room, err := env.manager.RoomForParticipantByToken(pair.Token, "dave")
		req.NoError(err)
		req.False(room.InviteState().Pending)

		_, err = env.attendees.Find(room.ID, domain.ActorUsers, "dave")
		req.NoError(err)
	})
}

func TestRoomManager_RoomForSession(t *testing.T) {
	req := require.New(t)
	env := newManagerEnv(t, map[string]string{"alice": "Alice"})

	public, err := env.manager.CreateRoom(domain.RoomTypePublic, "lobby")
	req.NoError(err)
	sessionID, err := env.service.JoinAsUser(public, "alice", "", false)
	req.NoError(err)

	room, attendee, err := env.manager.RoomForSession(sessionID)
	req.NoError(err)
	req.Equal(public.ID, room.ID)
	req.Equal("alice", attendee.ActorID)

	_, _, err = env.manager.RoomForSession("")
	req.ErrorIs(err, errors.ErrParticipantNotFound)

	_, _, err = env.manager.RoomForSession("never-issued")
	req.ErrorIs(err, errors.ErrParticipantNotFound)
}

func TestRoomManager_ChangelogRoom(t *testing.T) {
	req := require.New(t)
	env := newManagerEnv(t, map[string]string{"alice": "Alice"})

	room, err := env.manager.ChangelogRoom("alice")
	req.NoError(err)
	req.Equal(domain.RoomTypeChangelog, room.Type)
	req.Equal(domain.ReadOnly, room.ReadOnly)

	attendee, err := env.attendees.Find(room.ID, domain.ActorUsers, "alice")
	req.NoError(err)
	req.Equal(domain.ParticipantUser, attendee.Type)

	// A second request returns the same room instead of creating another.
	again, err := env.manager.ChangelogRoom("alice")
	req.NoError(err)
	req.Equal(room.ID, again.ID)

	// A user who fell out of their feed is joined again on access.
	req.NoError(env.attendees.Delete(room.ID, domain.ActorUsers, "alice"))
	_, err = env.manager.ChangelogRoom("alice")
	req.NoError(err)
	_, err = env.attendees.Find(room.ID, domain.ActorUsers, "alice")
	req.NoError(err)
}

func TestRoomManager_DisplayName(t *testing.T) {
	env := newManagerEnv(t, map[string]string{
		"alice": "Alice Adams", "bob": "Bob Barker", "carol": "Carol Chen",
	})

	t.Run("should prefix password request rooms", func(t *testing.T) {
		req := require.New(t)
		room, err := env.manager.CreateRoomForObject(
			domain.RoomTypePublic, "quarterly.pdf", "share:password", "share-9")
		req.NoError(err)

		name, err := env.manager.DisplayName(room, "anyone")
		req.NoError(err)
		req.Equal("Password request: quarterly.pdf", name)
	})

	t.Run("should name a one-to-one room after the other side", func(t *testing.T) {
		req := require.New(t)
		room, err := env.manager.CreateOneToOneRoom("alice", "bob")
		req.NoError(err)

		name, err := env.manager.DisplayName(room, "alice")
		req.NoError(err)
		req.Equal("Bob Barker", name)

		name, err = env.manager.DisplayName(room, "bob")
		req.NoError(err)
		req.Equal("Alice Adams", name)
	})

	t.Run("should not leak the counterpart to outsiders", func(t *testing.T) {
		req := require.New(t)
		room, err := env.manager.OneToOneRoom("alice", "bob")
		req.NoError(err)

		name, err := env.manager.DisplayName(room, "mallory")
		req.NoError(err)
		req.Equal("Private conversation", name)
	})

	t.Run("should keep an explicit group name", func(t *testing.T) {
		req := require.New(t)
		room, err := env.manager.CreateRoom(domain.RoomTypeGroup, "incident bridge")
		req.NoError(err)
		req.NoError(env.service.AddAttendees(room, []domain.AttendeeEntry{{ActorID: "alice"}}))

		name, err := env.manager.DisplayName(room, "alice")
		req.NoError(err)
		req.Equal("incident bridge", name)
	})

	t.Run("should synthesize a name from the other members", func(t *testing.T) {
		req := require.New(t)
		room, err := env.manager.CreateRoom(domain.RoomTypeGroup, "")
		req.NoError(err)
		req.NoError(env.service.AddAttendees(room, []domain.AttendeeEntry{
			{ActorID: "alice"}, {ActorID: "bob"}, {ActorID: "carol"},
		}))

		name, err := env.manager.DisplayName(room, "alice")
		req.NoError(err)
		req.Equal("Bob Barker, Carol Chen", name)

		// Outsiders get no membership information at all.
		name, err = env.manager.DisplayName(room, "mallory")
		req.NoError(err)
		req.Equal("Private conversation", name)
	})

	t.Run("should truncate a synthesized name at 128 runes", func(t *testing.T) {
		req := require.New(t)
		env := newManagerEnv(t, map[string]string{"viewer": "Viewer"})

		room, err := env.manager.CreateRoom(domain.RoomTypePublic, "")
		req.NoError(err)

		entries := []domain.AttendeeEntry{{ActorID: "viewer"}}
		for i := 0; i < 10; i++ {
			id := strings.Repeat(string(rune('a'+i)), 20)
			env.directory.AddUser(id, id)
			entries = append(entries, domain.AttendeeEntry{ActorID: id})
		}
		req.NoError(env.service.AddAttendees(room, entries))

		name, err := env.manager.DisplayName(room, "viewer")
		req.NoError(err)
		runes := []rune(name)
		req.Len(runes, 129)
		req.Equal('…', runes[128])
	})
}
