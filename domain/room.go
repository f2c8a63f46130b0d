// Package domain contains the core concepts of the conversation system.
// Value types only: no storage, network, or scheduling logic lives here.
package domain

import "time"

type RoomType int

const (
	RoomTypeOneToOne  RoomType = 1
	RoomTypeGroup     RoomType = 2
	RoomTypePublic    RoomType = 3
	RoomTypeChangelog RoomType = 4
)

type ReadOnlyState int

const (
	ReadWrite ReadOnlyState = 0
	ReadOnly  ReadOnlyState = 1
)

// LobbyState gates a room for non-moderators before a webinar starts.
type LobbyState int

const (
	LobbyNone          LobbyState = 0
	LobbyNonModerators LobbyState = 1
)

// Room is a single conversation. The token is the public identifier used in
// URLs, distinct from the internal numeric id, and never changes once set.
type Room struct {
	ID       int64
	Token    string
	Type     RoomType
	ReadOnly ReadOnlyState
	Name     string

	// PasswordHash is only meaningful for public rooms; empty means open.
	PasswordHash string

	// PendingInvitee carries the second half of a one-to-one room that was
	// created before the invitee could be resolved to a real account.
	PendingInvitee string

	// LobbyTimer is the planned start; informational only, enforcement is
	// the caller's scheduler.
	LobbyState LobbyState
	LobbyTimer *time.Time

	ActiveGuests  int
	ActiveSince   *time.Time
	LastActivity  *time.Time
	LastMessageID int64

	// ObjectType/ObjectID link the room to an owning entity,
	// e.g. "share:password".
	ObjectType string
	ObjectID   string
}

func (r Room) HasPassword() bool {
	return r.PasswordHash != ""
}

// InviteState is the tagged view of the two-phase one-to-one invite: a room
// is Pending while its invitee has not been resolved into an attendee row.
type InviteState struct {
	Pending   bool
	InviteeID string
}

func (r Room) InviteState() InviteState {
	if r.Type == RoomTypeOneToOne && r.PendingInvitee != "" {
		return InviteState{Pending: true, InviteeID: r.PendingInvitee}
	}
	return InviteState{}
}
