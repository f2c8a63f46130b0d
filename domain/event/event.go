// Package event is the typed mutation bus of the conversation core.
// Every mutation dispatches a pre event (which listeners may cancel) and a
// post event. Listeners are registered explicitly at construction time by
// the owning process; there is no global registry.
package event

import (
	"time"

	"talk-lab/domain"
)

type Kind string

const (
	KindRoomCreate     Kind = "ROOM_CREATE"
	KindRoomDelete     Kind = "ROOM_DELETE"
	KindNameSet        Kind = "NAME_SET"
	KindPasswordSet    Kind = "PASSWORD_SET"
	KindTypeSet        Kind = "TYPE_SET"
	KindReadOnlySet    Kind = "READ_ONLY_SET"
	KindLobbySet       Kind = "LOBBY_SET"
	KindAttendeesAdd   Kind = "ATTENDEES_ADD"
	KindAttendeeRemove Kind = "ATTENDEE_REMOVE"
	KindRoomJoin       Kind = "ROOM_JOIN"
	KindRoomLeave      Kind = "ROOM_LEAVE"
	KindTokenGenerate  Kind = "TOKEN_GENERATE"
	KindCallJoin       Kind = "CALL_JOIN"
	KindCallLeave      Kind = "CALL_LEAVE"
	KindGuestsClean    Kind = "GUESTS_CLEAN"
	KindPasswordVerify Kind = "PASSWORD_VERIFY"
)

// Payload is implemented by exactly one struct per mutation kind.
type Payload interface {
	EventKind() Kind
}

type RoomCreated struct {
	Room domain.Room
}

type RoomDeleted struct {
	Room domain.Room
}

type NameChanged struct {
	Room    domain.Room
	OldName string
	NewName string
}

type PasswordChanged struct {
	Room domain.Room
}

type TypeChanged struct {
	Room    domain.Room
	OldType domain.RoomType
	NewType domain.RoomType
}

type ReadOnlyChanged struct {
	Room     domain.Room
	OldState domain.ReadOnlyState
	NewState domain.ReadOnlyState
}

// LobbyChanged carries the planned start time and whether the change was
// triggered by that timer firing rather than a moderator.
type LobbyChanged struct {
	Room         domain.Room
	OldState     domain.LobbyState
	NewState     domain.LobbyState
	Timer        *time.Time
	TimerReached bool
}

type AttendeesAdded struct {
	Room    domain.Room
	Entries []domain.AttendeeEntry
}

type AttendeeRemoved struct {
	Room     domain.Room
	Attendee domain.Attendee
	Reason   string
}

// RoomJoined fires for user and guest joins alike; Guest tells them apart.
type RoomJoined struct {
	Room    domain.Room
	ActorID string
	Guest   bool
}

type RoomLeft struct {
	Room     domain.Room
	Attendee domain.Attendee
}

// TokenGenerate is dispatched before each token draw. A pre-handler may
// answer with SuggestToken to supply a vanity token instead of a random one.
type TokenGenerate struct {
	Entropy int
}

type CallJoined struct {
	Room     domain.Room
	Attendee domain.Attendee
	Flags    domain.InCallFlag
}

type CallLeft struct {
	Room     domain.Room
	Attendee domain.Attendee
}

type GuestsCleaned struct {
	Room domain.Room
}

// PasswordVerify lets a listener take over the password decision entirely,
// e.g. to accept an out-of-band authorization.
type PasswordVerify struct {
	Room     domain.Room
	Password string
}

func (RoomCreated) EventKind() Kind     { return KindRoomCreate }
func (RoomDeleted) EventKind() Kind     { return KindRoomDelete }
func (NameChanged) EventKind() Kind     { return KindNameSet }
func (PasswordChanged) EventKind() Kind { return KindPasswordSet }
func (TypeChanged) EventKind() Kind     { return KindTypeSet }
func (ReadOnlyChanged) EventKind() Kind { return KindReadOnlySet }
func (LobbyChanged) EventKind() Kind    { return KindLobbySet }
func (AttendeesAdded) EventKind() Kind  { return KindAttendeesAdd }
func (AttendeeRemoved) EventKind() Kind { return KindAttendeeRemove }
func (RoomJoined) EventKind() Kind      { return KindRoomJoin }
func (RoomLeft) EventKind() Kind        { return KindRoomLeave }
func (TokenGenerate) EventKind() Kind   { return KindTokenGenerate }
func (CallJoined) EventKind() Kind      { return KindCallJoin }
func (CallLeft) EventKind() Kind        { return KindCallLeave }
func (GuestsCleaned) EventKind() Kind   { return KindGuestsClean }
func (PasswordVerify) EventKind() Kind  { return KindPasswordVerify }
