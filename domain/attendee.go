package domain

type ActorType string

const (
	ActorUsers  ActorType = "users"
	ActorGuests ActorType = "guests"
)

type ParticipantType int

const (
	ParticipantOwner          ParticipantType = 1
	ParticipantModerator      ParticipantType = 2
	ParticipantUser           ParticipantType = 3
	ParticipantGuest          ParticipantType = 4
	ParticipantUserSelfJoined ParticipantType = 5
	ParticipantGuestModerator ParticipantType = 6
)

func (t ParticipantType) IsModerator() bool {
	return t == ParticipantOwner || t == ParticipantModerator || t == ParticipantGuestModerator
}

type NotificationLevel int

const (
	NotifyDefault NotificationLevel = 0
	NotifyAlways  NotificationLevel = 1
	NotifyMention NotificationLevel = 2
	NotifyNever   NotificationLevel = 3
)

// InCallFlag is a bitmask describing how a session takes part in a call.
type InCallFlag int

const (
	FlagDisconnected InCallFlag = 0
	FlagInCall       InCallFlag = 1
	FlagWithAudio    InCallFlag = 2
	FlagWithVideo    InCallFlag = 4
)

// Permission is a bitmask of abilities granted to an attendee.
type Permission int

const (
	PermissionDefault      Permission = 0
	PermissionCustom       Permission = 1
	PermissionCallStart    Permission = 2
	PermissionCallJoin     Permission = 4
	PermissionLobbyIgnore  Permission = 8
	PermissionPublishAudio Permission = 16
	PermissionPublishVideo Permission = 32
)

// Attendee is one (room, actor) membership record. Session is the ephemeral
// presence handle: nil means the attendee is not currently connected; there
// is no sentinel value.
type Attendee struct {
	ID                 int64
	RoomID             int64
	ActorType          ActorType
	ActorID            string
	Type               ParticipantType
	Favorite           bool
	NotificationLevel  NotificationLevel
	LastReadMessage    int64
	LastMentionMessage int64
	Permissions        Permission

	Session  *string
	InCall   InCallFlag
	LastPing int64
}

func (a Attendee) HasSession() bool {
	return a.Session != nil && *a.Session != ""
}

// AttendeeEntry is one row of a batch invite.
type AttendeeEntry struct {
	ActorType ActorType `validate:"omitempty,oneof=users guests"`
	ActorID   string    `validate:"required"`
	Type      ParticipantType
	Session   *string
}
