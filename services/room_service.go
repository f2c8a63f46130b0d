//go:generate go run go.uber.org/mock/mockgen -source=room_service.go -destination=../mocks/mock_room_service.go -package=mocks
package services

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"talk-lab/auth"
	"talk-lab/domain"
	"talk-lab/domain/event"
	"talk-lab/errors"
	"talk-lab/repositories"
)

const (
	// sessionIDLength keeps session ids high-entropy enough that the
	// re-draw-on-collision loops terminate immediately in practice.
	sessionIDLength = 64

	// GuestStalenessWindow is how long a disconnected guest row survives
	// before ExpireStaleGuests removes it.
	GuestStalenessWindow = 100 * time.Second
)

var validate = validator.New()

type IRoomService interface {
	Rename(room domain.Room, newName string) (bool, error)
	SetPassword(room domain.Room, password string) (bool, error)
	ChangeType(room domain.Room, newType domain.RoomType) (bool, error)
	SetReadOnly(room domain.Room, newState domain.ReadOnlyState) (bool, error)
	SetLobby(room domain.Room, newState domain.LobbyState, timer *time.Time, timerReached bool) (bool, error)
	AddAttendees(room domain.Room, entries []domain.AttendeeEntry) error
	JoinAsUser(room domain.Room, userID, password string, passwordVerified bool) (string, error)
	JoinAsGuest(room domain.Room, password string, passwordVerified bool) (string, error)
	Leave(room domain.Room, userID string, sessionID *string) error
	RemoveAttendee(room domain.Room, actorType domain.ActorType, actorID, reason string) error
	SetInCallFlags(room domain.Room, sessionID string, flags domain.InCallFlag) error
	ExpireStaleGuests(room domain.Room) error
	Heartbeat(room domain.Room, userID, sessionID string, timestamp int64) error
	VerifyPassword(room domain.Room, password string) (bool, error)
	SetParticipantType(room domain.Room, actorType domain.ActorType, actorID string, participantType domain.ParticipantType) error
	MarkUsersAsMentioned(room domain.Room, userIDs []string, messageID int64) error
	SetLastMessage(room domain.Room, messageID int64) error
	SetLastActivity(room domain.Room, at time.Time) error
	SetActiveSince(room domain.Room, since time.Time, isGuest bool) error
	ResetActiveSince(room domain.Room) error
	Delete(room domain.Room) error
}

// RoomService enforces the mutation rules of a single conversation. Every
// operation is one synchronous sequence of store round-trips; invariants are
// held by check-then-act with bounded retry, never by locks.
type RoomService struct {
	rooms     repositories.IRoomRepository
	attendees repositories.IAttendeeRepository
	bus       *event.Bus
	log       *slog.Logger
	now       func() time.Time
}

func NewRoomService(
	rooms repositories.IRoomRepository,
	attendees repositories.IAttendeeRepository,
	bus *event.Bus,
	log *slog.Logger,
) *RoomService {
	return &RoomService{
		rooms:     rooms,
		attendees: attendees,
		bus:       bus,
		log:       log,
		now:       time.Now,
	}
}

// Rename reports whether the room actually changed.
func (s *RoomService) Rename(room domain.Room, newName string) (bool, error) {
	if newName == room.Name {
		return false, nil
	}

	payload := event.NameChanged{Room: room, OldName: room.Name, NewName: newName}
	if out := s.bus.DispatchPre(payload); out.Canceled() {
		return false, nil
	}

	if err := s.rooms.UpdateName(room.ID, newName); err != nil {
		return false, err
	}

	s.bus.Dispatch(payload)
	return true, nil
}

// SetPassword only applies to public rooms; the cleartext is hashed before
// it ever reaches the store. An empty password removes the protection.
func (s *RoomService) SetPassword(room domain.Room, password string) (bool, error) {
	if room.Type != domain.RoomTypePublic {
		return false, nil
	}

	hash := ""
	if password != "" {
		var err error
		if hash, err = auth.HashPassword(password); err != nil {
			return false, fmt.Errorf("hashing failed: %w", err)
		}
	}

	payload := event.PasswordChanged{Room: room}
	if out := s.bus.DispatchPre(payload); out.Canceled() {
		return false, nil
	}

	if err := s.rooms.UpdatePasswordHash(room.ID, hash); err != nil {
		return false, err
	}

	s.bus.Dispatch(payload)
	return true, nil
}

// ChangeType moves a room between GROUP and PUBLIC. One-to-one rooms never
// change type. Leaving PUBLIC kicks everyone who was only there because the
// room was public.
func (s *RoomService) ChangeType(room domain.Room, newType domain.RoomType) (bool, error) {
	if newType == room.Type {
		return true, nil
	}
	if room.Type == domain.RoomTypeOneToOne {
		return false, nil
	}
	if newType != domain.RoomTypeGroup && newType != domain.RoomTypePublic {
		return false, nil
	}

	payload := event.TypeChanged{Room: room, OldType: room.Type, NewType: newType}
	if out := s.bus.DispatchPre(payload); out.Canceled() {
		return false, nil
	}

	if err := s.rooms.UpdateType(room.ID, newType); err != nil {
		return false, err
	}

	if room.Type == domain.RoomTypePublic {
		if err := s.attendees.DeleteUninvited(room.ID); err != nil {
			return false, err
		}
	}

	s.bus.Dispatch(payload)
	return true, nil
}

func (s *RoomService) SetReadOnly(room domain.Room, newState domain.ReadOnlyState) (bool, error) {
	if newState == room.ReadOnly {
		return true, nil
	}
	switch room.Type {
	case domain.RoomTypeGroup, domain.RoomTypePublic, domain.RoomTypeChangelog:
	default:
		return false, nil
	}
	if newState != domain.ReadOnly && newState != domain.ReadWrite {
		return false, nil
	}

	payload := event.ReadOnlyChanged{Room: room, OldState: room.ReadOnly, NewState: newState}
	if out := s.bus.DispatchPre(payload); out.Canceled() {
		return false, nil
	}

	if err := s.rooms.UpdateReadOnly(room.ID, newState); err != nil {
		return false, err
	}

	s.bus.Dispatch(payload)
	return true, nil
}

// SetLobby gates the room for non-moderators, e.g. before a webinar starts.
// Only group and public rooms without an owning object can hold a lobby.
// Raising it disconnects every non-moderator currently in the call.
func (s *RoomService) SetLobby(room domain.Room, newState domain.LobbyState, timer *time.Time, timerReached bool) (bool, error) {
	if room.Type != domain.RoomTypeGroup && room.Type != domain.RoomTypePublic {
		return false, nil
	}
	if room.ObjectType != "" {
		return false, nil
	}
	if newState != domain.LobbyNone && newState != domain.LobbyNonModerators {
		return false, nil
	}

	payload := event.LobbyChanged{
		Room:         room,
		OldState:     room.LobbyState,
		NewState:     newState,
		Timer:        timer,
		TimerReached: timerReached,
	}
	if out := s.bus.DispatchPre(payload); out.Canceled() {
		return false, nil
	}

	if err := s.rooms.UpdateLobby(room.ID, newState, timer); err != nil {
		return false, err
	}

	s.bus.Dispatch(payload)

	if newState == domain.LobbyNonModerators {
		inCall, err := s.attendees.ListInCall(room.ID)
		if err != nil {
			return false, err
		}
		for _, attendee := range inCall {
			if attendee.Type.IsModerator() || !attendee.HasSession() {
				continue
			}
			if err := s.SetInCallFlags(room, *attendee.Session, domain.FlagDisconnected); err != nil {
				return false, err
			}
		}
	}

	return true, nil
}

// AddAttendees batch-inserts invitations. Each insert is independent; a
// failure mid-batch leaves the earlier rows in place. This mirrors the
// behavior collaborators rely on and is an accepted consistency gap.
func (s *RoomService) AddAttendees(room domain.Room, entries []domain.AttendeeEntry) error {
	for _, entry := range entries {
		if err := validate.Struct(entry); err != nil {
			return fmt.Errorf("invalid attendee entry: %w", err)
		}
	}

	payload := event.AttendeesAdded{Room: room, Entries: entries}
	if out := s.bus.DispatchPre(payload); out.Canceled() {
		return fmt.Errorf("%w: %s", errors.ErrUnauthorized, out.Reason())
	}

	for _, entry := range entries {
		actorType := entry.ActorType
		if actorType == "" {
			actorType = domain.ActorUsers
		}
		participantType := entry.Type
		if participantType == 0 {
			participantType = domain.ParticipantUser
		}

		_, err := s.attendees.Insert(domain.Attendee{
			RoomID:          room.ID,
			ActorType:       actorType,
			ActorID:         entry.ActorID,
			Type:            participantType,
			Session:         entry.Session,
			LastReadMessage: room.LastMessageID,
		})
		if err != nil {
			return err
		}
	}

	s.bus.Dispatch(payload)
	return nil
}

// JoinAsUser connects a user and returns their new session id. Invited users
// get their existing attendee row updated; anyone else passes the password
// check and is inserted as self-joined. The session id is re-drawn until it
// is unique across the whole table.
func (s *RoomService) JoinAsUser(room domain.Room, userID, password string, passwordVerified bool) (string, error) {
	payload := event.RoomJoined{Room: room, ActorID: userID}
	if out := s.bus.DispatchPre(payload); out.Canceled() {
		// A veto forces an implicit leave before rejecting the join.
		if err := s.Leave(room, userID, nil); err != nil {
			s.log.Error("implicit leave after vetoed join failed", "error", err)
		}
		return "", fmt.Errorf("%w: %s", errors.ErrUnauthorized, out.Reason())
	}

	sessionID, err := auth.RandomString(auth.AlphaNumeric, sessionIDLength)
	if err != nil {
		return "", err
	}

	affected, err := s.attendees.UpdateSession(room.ID, userID, sessionID)
	if err != nil {
		return "", err
	}

	if affected == 0 {
		// Never invited: joining a public room on their own.
		if !passwordVerified {
			ok, err := s.VerifyPassword(room, password)
			if err != nil {
				return "", err
			}
			if !ok {
				return "", errors.ErrInvalidPassword
			}
		}

		_, err := s.attendees.Insert(domain.Attendee{
			RoomID:          room.ID,
			ActorType:       domain.ActorUsers,
			ActorID:         userID,
			Type:            domain.ParticipantUserSelfJoined,
			Session:         &sessionID,
			LastReadMessage: room.LastMessageID,
		})
		if err != nil {
			return "", err
		}
	}

	for {
		count, err := s.attendees.CountSessions(sessionID)
		if err != nil {
			return "", err
		}
		// Zero means the row vanished under us (concurrent leave); there
		// is nothing left to deduplicate, so do not spin on it.
		if count <= 1 {
			break
		}
		if sessionID, err = auth.RandomString(auth.AlphaNumeric, sessionIDLength); err != nil {
			return "", err
		}
		if _, err = s.attendees.UpdateSession(room.ID, userID, sessionID); err != nil {
			return "", err
		}
	}

	s.bus.Dispatch(payload)
	return sessionID, nil
}

// JoinAsGuest verifies the password and inserts a guest row, optimistically
// retrying with a fresh session id until the insert wins the uniqueness
// race.
func (s *RoomService) JoinAsGuest(room domain.Room, password string, passwordVerified bool) (string, error) {
	payload := event.RoomJoined{Room: room, Guest: true}
	if out := s.bus.DispatchPre(payload); out.Canceled() {
		return "", fmt.Errorf("%w: %s", errors.ErrUnauthorized, out.Reason())
	}

	if !passwordVerified {
		ok, err := s.VerifyPassword(room, password)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errors.ErrInvalidPassword
		}
	}

	for {
		sessionID, err := auth.RandomString(auth.AlphaNumeric, sessionIDLength)
		if err != nil {
			return "", err
		}

		inserted, err := s.attendees.InsertIfSessionFree(domain.Attendee{
			RoomID:          room.ID,
			ActorType:       domain.ActorGuests,
			ActorID:         uuid.NewString(),
			Type:            domain.ParticipantGuest,
			Session:         &sessionID,
			LastReadMessage: room.LastMessageID,
		})
		if err != nil {
			return "", err
		}
		if inserted {
			s.bus.Dispatch(payload)
			return sessionID, nil
		}
	}
}

// Leave disconnects a user. Normal participants keep their membership with
// the session cleared; self-joined rows are deleted outright because their
// membership was never persistent. Unknown participants are a no-op.
func (s *RoomService) Leave(room domain.Room, userID string, sessionID *string) error {
	attendee, err := s.attendees.Find(room.ID, domain.ActorUsers, userID)
	if err != nil {
		if stderrors.Is(err, errors.ErrParticipantNotFound) {
			return nil
		}
		return err
	}

	payload := event.RoomLeft{Room: room, Attendee: attendee}
	if out := s.bus.DispatchPre(payload); out.Canceled() {
		return fmt.Errorf("%w: %s", errors.ErrUnauthorized, out.Reason())
	}

	if sessionID == nil {
		sessionID = attendee.Session
	}

	if attendee.Type == domain.ParticipantUserSelfJoined {
		err = s.attendees.DeleteSelfJoined(room.ID, userID, sessionID)
	} else {
		err = s.attendees.ResetSession(room.ID, userID, sessionID)
	}
	if err != nil {
		return err
	}

	s.bus.Dispatch(payload)
	return nil
}

// RemoveAttendee removes a membership entirely. Removing one side of a
// one-to-one room re-arms the pending invite with the departing user, so the
// counterpart keeps the conversation; a room of any other type is deleted
// once its last attendee is gone.
func (s *RoomService) RemoveAttendee(room domain.Room, actorType domain.ActorType, actorID, reason string) error {
	attendee, err := s.attendees.Find(room.ID, actorType, actorID)
	if err != nil {
		if stderrors.Is(err, errors.ErrParticipantNotFound) {
			return nil
		}
		return err
	}

	payload := event.AttendeeRemoved{Room: room, Attendee: attendee, Reason: reason}
	if out := s.bus.DispatchPre(payload); out.Canceled() {
		return fmt.Errorf("%w: %s", errors.ErrUnauthorized, out.Reason())
	}

	if room.Type == domain.RoomTypeOneToOne && actorType == domain.ActorUsers {
		if err := s.rooms.UpdatePendingInvitee(room.ID, actorID); err != nil {
			return err
		}
	}

	if err := s.attendees.Delete(room.ID, actorType, actorID); err != nil {
		return err
	}

	s.bus.Dispatch(payload)

	if room.Type == domain.RoomTypeOneToOne {
		return nil
	}
	remaining, err := s.attendees.CountByRoom(room.ID)
	if err != nil {
		return err
	}
	if remaining == 0 {
		return s.Delete(room)
	}
	return nil
}

// SetInCallFlags updates one session's call participation. Joining and
// leaving a call dispatch distinct notifications.
func (s *RoomService) SetInCallFlags(room domain.Room, sessionID string, flags domain.InCallFlag) error {
	attendee, err := s.attendees.FindBySession(room.ID, sessionID)
	if err != nil {
		return err
	}

	var payload event.Payload
	if flags == domain.FlagDisconnected {
		payload = event.CallLeft{Room: room, Attendee: attendee}
	} else {
		payload = event.CallJoined{Room: room, Attendee: attendee, Flags: flags}
	}
	if out := s.bus.DispatchPre(payload); out.Canceled() {
		return fmt.Errorf("%w: %s", errors.ErrUnauthorized, out.Reason())
	}

	if err := s.attendees.UpdateInCall(room.ID, sessionID, flags); err != nil {
		return err
	}

	s.bus.Dispatch(payload)
	return nil
}

// ExpireStaleGuests drops guest rows with no session whose last ping is
// older than GuestStalenessWindow. Nothing else evicts sessions on timeout.
func (s *RoomService) ExpireStaleGuests(room domain.Room) error {
	payload := event.GuestsCleaned{Room: room}
	if out := s.bus.DispatchPre(payload); out.Canceled() {
		return nil
	}

	before := s.now().Add(-GuestStalenessWindow).Unix()
	removed, err := s.attendees.DeleteStaleGuests(room.ID, before)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.log.Debug("expired stale guests", "room", room.Token, "count", removed)
	}

	s.bus.Dispatch(payload)
	return nil
}

// Heartbeat refreshes the liveness of one session; a no-op when the row
// does not exist.
func (s *RoomService) Heartbeat(room domain.Room, userID, sessionID string, timestamp int64) error {
	return s.attendees.UpdatePing(room.ID, userID, sessionID, timestamp)
}

// VerifyPassword checks a cleartext against the stored hash. A listener may
// take over the decision entirely, e.g. for out-of-band authorization.
func (s *RoomService) VerifyPassword(room domain.Room, password string) (bool, error) {
	out := s.bus.DispatchPre(event.PasswordVerify{Room: room, Password: password})
	if valid, ok := out.PasswordOverride(); ok {
		return valid, nil
	}

	if !room.HasPassword() {
		return true, nil
	}
	return auth.ComparePassword(password, room.PasswordHash)
}

func (s *RoomService) SetParticipantType(room domain.Room, actorType domain.ActorType, actorID string, participantType domain.ParticipantType) error {
	return s.attendees.UpdateParticipantType(room.ID, actorType, actorID, participantType)
}

func (s *RoomService) MarkUsersAsMentioned(room domain.Room, userIDs []string, messageID int64) error {
	return s.attendees.UpdateLastMention(room.ID, userIDs, messageID)
}

func (s *RoomService) SetLastMessage(room domain.Room, messageID int64) error {
	return s.rooms.UpdateLastMessage(room.ID, messageID)
}

func (s *RoomService) SetLastActivity(room domain.Room, at time.Time) error {
	return s.rooms.UpdateLastActivity(room.ID, at)
}

// SetActiveSince marks the room active; guests joining a public room also
// bump the active guest counter.
func (s *RoomService) SetActiveSince(room domain.Room, since time.Time, isGuest bool) error {
	countGuest := isGuest && room.Type == domain.RoomTypePublic
	return s.rooms.SetActiveSince(room.ID, since, countGuest)
}

func (s *RoomService) ResetActiveSince(room domain.Room) error {
	return s.rooms.ResetActiveSince(room.ID)
}

// Delete removes the room; attendee and session state go with it.
func (s *RoomService) Delete(room domain.Room) error {
	payload := event.RoomDeleted{Room: room}
	if out := s.bus.DispatchPre(payload); out.Canceled() {
		return fmt.Errorf("%w: %s", errors.ErrUnauthorized, out.Reason())
	}

	if err := s.rooms.Delete(room.ID); err != nil {
		return err
	}

	s.bus.Dispatch(payload)
	return nil
}
