package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoom_InviteState(t *testing.T) {
	t.Run("should be pending while the invitee is unresolved", func(t *testing.T) {
		req := require.New(t)

		room := Room{Type: RoomTypeOneToOne, PendingInvitee: "bob"}
		state := room.InviteState()
		req.True(state.Pending)
		req.Equal("bob", state.InviteeID)
	})

	t.Run("should not be pending once filled or for other types", func(t *testing.T) {
		req := require.New(t)

		req.False(Room{Type: RoomTypeOneToOne}.InviteState().Pending)
		req.False(Room{Type: RoomTypeGroup, PendingInvitee: "bob"}.InviteState().Pending)
	})
}

func TestAttendee_HasSession(t *testing.T) {
	req := require.New(t)
	session := "abc"
	empty := ""

	req.True(Attendee{Session: &session}.HasSession())
	req.False(Attendee{Session: &empty}.HasSession())
	req.False(Attendee{}.HasSession())
}

func TestParticipantType_IsModerator(t *testing.T) {
	req := require.New(t)

	req.True(ParticipantOwner.IsModerator())
	req.True(ParticipantModerator.IsModerator())
	req.True(ParticipantGuestModerator.IsModerator())
	req.False(ParticipantUser.IsModerator())
	req.False(ParticipantGuest.IsModerator())
	req.False(ParticipantUserSelfJoined.IsModerator())
}
