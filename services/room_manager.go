//go:generate go run go.uber.org/mock/mockgen -source=room_manager.go -destination=../mocks/mock_room_manager.go -package=mocks
package services

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"talk-lab/contract"
	"talk-lab/domain"
	"talk-lab/domain/event"
	"talk-lab/errors"
	"talk-lab/repositories"
)

const (
	// objectTypePassword marks rooms spawned for password-protected share
	// requests; objectTypeChangelog marks the per-user update feed.
	objectTypePassword  = "share:password"
	objectTypeChangelog = "changelog"

	changelogRoomName = "Updates"

	// privateLabel is shown whenever revealing anything about the room
	// would leak information to a non-member.
	privateLabel = "Private conversation"

	// displayNameLimit bounds synthesized names in runes.
	displayNameLimit = 128
)

type IRoomManager interface {
	CreateRoom(roomType domain.RoomType, name string) (domain.Room, error)
	CreateRoomForObject(roomType domain.RoomType, name, objectType, objectID string) (domain.Room, error)
	CreateOneToOneRoom(actorID, inviteeID string) (domain.Room, error)
	RoomByID(id int64) (domain.Room, error)
	RoomByToken(token string) (domain.Room, error)
	RoomByObject(objectType, objectID string) (domain.Room, error)
	RoomForParticipantByToken(token, userID string) (domain.Room, error)
	RoomForSession(sessionID string) (domain.Room, domain.Attendee, error)
	OneToOneRoom(a, b string) (domain.Room, error)
	EnsureOneToOneRoomIsFilled(room domain.Room) (domain.Room, error)
	ChangelogRoom(userID string) (domain.Room, error)
	DisplayName(room domain.Room, viewerID string) (string, error)
}

// RoomManager owns room creation, lookup and naming. Mutations on an
// existing room belong to RoomService; the manager only decides which room
// a caller gets to see.
type RoomManager struct {
	rooms     repositories.IRoomRepository
	attendees repositories.IAttendeeRepository
	service   IRoomService
	tokens    ITokenService
	directory contract.IUserDirectory
	bus       *event.Bus
	log       *slog.Logger
}

func NewRoomManager(
	rooms repositories.IRoomRepository,
	attendees repositories.IAttendeeRepository,
	service IRoomService,
	tokens ITokenService,
	directory contract.IUserDirectory,
	bus *event.Bus,
	log *slog.Logger,
) *RoomManager {
	return &RoomManager{
		rooms:     rooms,
		attendees: attendees,
		service:   service,
		tokens:    tokens,
		directory: directory,
		bus:       bus,
		log:       log,
	}
}

func (m *RoomManager) CreateRoom(roomType domain.RoomType, name string) (domain.Room, error) {
	return m.CreateRoomForObject(roomType, name, "", "")
}

// CreateRoomForObject creates a room bound to an external object, e.g. a
// password-protected share. The token is always freshly generated.
func (m *RoomManager) CreateRoomForObject(roomType domain.RoomType, name, objectType, objectID string) (domain.Room, error) {
	token, err := m.tokens.NewToken()
	if err != nil {
		return domain.Room{}, err
	}

	room := domain.Room{
		Token:      token,
		Type:       roomType,
		Name:       name,
		ObjectType: objectType,
		ObjectID:   objectID,
	}

	if out := m.bus.DispatchPre(event.RoomCreated{Room: room}); out.Canceled() {
		return domain.Room{}, fmt.Errorf("%w: %s", errors.ErrUnauthorized, out.Reason())
	}

	created, err := m.rooms.Create(room)
	if err != nil {
		return domain.Room{}, err
	}

	m.log.Info("room created", "token", created.Token, "type", int(created.Type))
	m.bus.Dispatch(event.RoomCreated{Room: created})
	return created, nil
}

// CreateOneToOneRoom returns the conversation between two users, creating it
// when it does not exist yet. The invitee stays pending until they are seen
// by the directory; a later lookup completes the pair.
func (m *RoomManager) CreateOneToOneRoom(actorID, inviteeID string) (domain.Room, error) {
	if actorID == inviteeID {
		return domain.Room{}, fmt.Errorf("%w: cannot invite yourself", errors.ErrUnauthorized)
	}

	existing, err := m.rooms.FindOneToOne(actorID, inviteeID)
	if err == nil {
		return m.EnsureOneToOneRoomIsFilled(existing)
	}
	if !stderrors.Is(err, errors.ErrRoomNotFound) {
		return domain.Room{}, err
	}

	token, err := m.tokens.NewToken()
	if err != nil {
		return domain.Room{}, err
	}

	room := domain.Room{
		Token:          token,
		Type:           domain.RoomTypeOneToOne,
		PendingInvitee: inviteeID,
	}

	if out := m.bus.DispatchPre(event.RoomCreated{Room: room}); out.Canceled() {
		return domain.Room{}, fmt.Errorf("%w: %s", errors.ErrUnauthorized, out.Reason())
	}

	created, err := m.rooms.Create(room)
	if err != nil {
		return domain.Room{}, err
	}

	err = m.service.AddAttendees(created, []domain.AttendeeEntry{{
		ActorType: domain.ActorUsers,
		ActorID:   actorID,
		Type:      domain.ParticipantOwner,
	}})
	if err != nil {
		return domain.Room{}, err
	}

	m.bus.Dispatch(event.RoomCreated{Room: created})
	return m.EnsureOneToOneRoomIsFilled(created)
}

func (m *RoomManager) RoomByID(id int64) (domain.Room, error) {
	return m.rooms.GetByID(id)
}

func (m *RoomManager) RoomByToken(token string) (domain.Room, error) {
	return m.rooms.GetByToken(token)
}

func (m *RoomManager) RoomByObject(objectType, objectID string) (domain.Room, error) {
	return m.rooms.GetByObject(objectType, objectID)
}

// RoomForParticipantByToken resolves a token on behalf of a user. Public
// rooms resolve for anyone; other rooms only resolve for members or the
// pending invitee, and a denied lookup is indistinguishable from a missing
// room.
func (m *RoomManager) RoomForParticipantByToken(token, userID string) (domain.Room, error) {
	room, err := m.rooms.GetByToken(token)
	if err != nil {
		return domain.Room{}, err
	}

	if room.Type == domain.RoomTypePublic {
		return room, nil
	}

	if room.PendingInvitee != "" && room.PendingInvitee == userID {
		return m.EnsureOneToOneRoomIsFilled(room)
	}

	if _, err := m.attendees.Find(room.ID, domain.ActorUsers, userID); err != nil {
		if stderrors.Is(err, errors.ErrParticipantNotFound) {
			return domain.Room{}, errors.ErrRoomNotFound
		}
		return domain.Room{}, err
	}
	return room, nil
}

// RoomForSession resolves an active session to its room and membership.
func (m *RoomManager) RoomForSession(sessionID string) (domain.Room, domain.Attendee, error) {
	if sessionID == "" {
		return domain.Room{}, domain.Attendee{}, errors.ErrParticipantNotFound
	}
	attendee, err := m.attendees.FindBySessionAny(sessionID)
	if err != nil {
		return domain.Room{}, domain.Attendee{}, err
	}
	room, err := m.rooms.GetByID(attendee.RoomID)
	if err != nil {
		return domain.Room{}, domain.Attendee{}, err
	}
	return room, attendee, nil
}

// OneToOneRoom finds the existing conversation between two users in either
// order, including half-filled ones where one side is still pending.
func (m *RoomManager) OneToOneRoom(a, b string) (domain.Room, error) {
	return m.rooms.FindOneToOne(a, b)
}

// EnsureOneToOneRoomIsFilled completes a half-open one-to-one room: once the
// pending invitee is known to the directory they become a full owner and
// the pending marker is cleared.
func (m *RoomManager) EnsureOneToOneRoomIsFilled(room domain.Room) (domain.Room, error) {
	if room.Type != domain.RoomTypeOneToOne || room.PendingInvitee == "" {
		return room, nil
	}
	if !m.directory.IsValidUser(room.PendingInvitee) {
		return room, nil
	}

	err := m.service.AddAttendees(room, []domain.AttendeeEntry{{
		ActorType: domain.ActorUsers,
		ActorID:   room.PendingInvitee,
		Type:      domain.ParticipantOwner,
	}})
	if err != nil {
		return domain.Room{}, err
	}
	if err := m.rooms.UpdatePendingInvitee(room.ID, ""); err != nil {
		return domain.Room{}, err
	}

	room.PendingInvitee = ""
	return room, nil
}

// ChangelogRoom returns the per-user update feed, creating it read-only with
// the user already joined on first access.
func (m *RoomManager) ChangelogRoom(userID string) (domain.Room, error) {
	room, err := m.rooms.FindChangelog(userID)
	if err == nil {
		// Re-join the user if they dropped out of their own feed.
		if _, err := m.attendees.Find(room.ID, domain.ActorUsers, userID); err == nil {
			return room, nil
		} else if !stderrors.Is(err, errors.ErrParticipantNotFound) {
			return domain.Room{}, err
		}
		err = m.service.AddAttendees(room, []domain.AttendeeEntry{{
			ActorType: domain.ActorUsers,
			ActorID:   userID,
			Type:      domain.ParticipantUser,
		}})
		if err != nil {
			return domain.Room{}, err
		}
		return room, nil
	}
	if !stderrors.Is(err, errors.ErrRoomNotFound) {
		return domain.Room{}, err
	}

	room, err = m.CreateRoomForObject(domain.RoomTypeChangelog, changelogRoomName, objectTypeChangelog, userID)
	if err != nil {
		return domain.Room{}, err
	}

	err = m.service.AddAttendees(room, []domain.AttendeeEntry{{
		ActorType: domain.ActorUsers,
		ActorID:   userID,
		Type:      domain.ParticipantUser,
	}})
	if err != nil {
		return domain.Room{}, err
	}

	if _, err := m.service.SetReadOnly(room, domain.ReadOnly); err != nil {
		return domain.Room{}, err
	}
	room.ReadOnly = domain.ReadOnly
	return room, nil
}

// DisplayName renders a room name for one viewer. Names never leak who is
// inside a room the viewer does not belong to.
func (m *RoomManager) DisplayName(room domain.Room, viewerID string) (string, error) {
	if room.ObjectType == objectTypePassword {
		return fmt.Sprintf("Password request: %s", room.Name), nil
	}
	if room.Type == domain.RoomTypeChangelog {
		return room.Name, nil
	}
	if room.Type == domain.RoomTypeOneToOne {
		return m.oneToOneDisplayName(room, viewerID)
	}

	if room.Name != "" {
		return room.Name, nil
	}

	userIDs, err := m.attendees.ListUserIDs(room.ID)
	if err != nil {
		return "", err
	}

	if room.Type != domain.RoomTypePublic && !lo.Contains(userIDs, viewerID) {
		return privateLabel, nil
	}

	names := lo.FilterMap(userIDs, func(id string, _ int) (string, bool) {
		if id == viewerID {
			return "", false
		}
		name, ok := m.directory.DisplayName(id)
		if !ok {
			name = id
		}
		return name, true
	})
	if len(names) == 0 {
		return privateLabel, nil
	}

	return truncateName(names), nil
}

func (m *RoomManager) oneToOneDisplayName(room domain.Room, viewerID string) (string, error) {
	userIDs, err := m.attendees.ListUserIDs(room.ID)
	if err != nil {
		return "", err
	}

	member := lo.Contains(userIDs, viewerID) || room.PendingInvitee == viewerID
	if !member {
		return privateLabel, nil
	}

	otherID := room.PendingInvitee
	if otherID == "" || otherID == viewerID {
		for _, id := range userIDs {
			if id != viewerID {
				otherID = id
				break
			}
		}
	}
	if otherID == "" {
		// Counterpart already gone for good.
		if room.Name != "" {
			return room.Name, nil
		}
		return privateLabel, nil
	}

	if name, ok := m.directory.DisplayName(otherID); ok {
		return name, nil
	}
	return otherID, nil
}

func truncateName(names []string) string {
	joined := strings.Join(names, ", ")
	if len([]rune(joined)) <= displayNameLimit {
		return joined
	}
	return lo.Substring(joined, 0, displayNameLimit) + "…"
}
