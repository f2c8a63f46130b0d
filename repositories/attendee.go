//go:generate go run go.uber.org/mock/mockgen -source=attendee.go -destination=../mocks/mock_attendee_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"talk-lab/domain"
	"talk-lab/errors"
)

type IAttendeeRepository interface {
	Insert(attendee domain.Attendee) (domain.Attendee, error)
	// InsertIfSessionFree inserts the row only when no row anywhere in the
	// table already holds its session id. This is check-then-act, not a
	// lock: callers retry with a fresh session id on false.
	InsertIfSessionFree(attendee domain.Attendee) (bool, error)
	Find(roomID int64, actorType domain.ActorType, actorID string) (domain.Attendee, error)
	FindBySession(roomID int64, sessionID string) (domain.Attendee, error)
	// FindBySessionAny looks the session up across all rooms.
	FindBySessionAny(sessionID string) (domain.Attendee, error)
	ListByRoom(roomID int64) ([]domain.Attendee, error)
	// ListInCall returns the attendees whose session currently takes part
	// in the room's call.
	ListInCall(roomID int64) ([]domain.Attendee, error)
	ListUserIDs(roomID int64) ([]string, error)
	CountByRoom(roomID int64) (int64, error)
	// CountSessions is the global uniqueness scan: how many rows in the
	// whole table currently hold this session id.
	CountSessions(sessionID string) (int64, error)
	// UpdateSession sets the session of the user's attendee row and returns
	// the number of rows affected; zero means the user was never invited.
	UpdateSession(roomID int64, userID, sessionID string) (int64, error)
	// ResetSession clears session and in-call flags for the user's row,
	// skipping self-joined rows (those are deleted on leave instead). When
	// sessionID is non-nil only a row holding that session is touched.
	ResetSession(roomID int64, userID string, sessionID *string) error
	UpdateInCall(roomID int64, sessionID string, flags domain.InCallFlag) error
	// UpdatePing is a no-op when no row matches.
	UpdatePing(roomID int64, userID, sessionID string, timestamp int64) error
	UpdateParticipantType(roomID int64, actorType domain.ActorType, actorID string, participantType domain.ParticipantType) error
	// UpdateLastMention stamps the mention marker of the given users.
	UpdateLastMention(roomID int64, userIDs []string, messageID int64) error
	Delete(roomID int64, actorType domain.ActorType, actorID string) error
	DeleteSelfJoined(roomID int64, userID string, sessionID *string) error
	// DeleteUninvited removes guests and self-joined users, the rows that
	// only existed because the room was public.
	DeleteUninvited(roomID int64) error
	DeleteStaleGuests(roomID int64, before int64) (int64, error)
}

type attendeeRecord struct {
	ID                 int64   `gorm:"primaryKey;autoIncrement"`
	RoomID             int64   `gorm:"column:room_id;not null;uniqueIndex:uniq_room_actor,priority:1"`
	ActorType          string  `gorm:"column:actor_type;size:16;not null;uniqueIndex:uniq_room_actor,priority:2"`
	ActorID            string  `gorm:"column:actor_id;size:64;not null;uniqueIndex:uniq_room_actor,priority:3"`
	ParticipantType    int     `gorm:"column:participant_type;not null"`
	Favorite           bool    `gorm:"not null;default:false"`
	NotificationLevel  int     `gorm:"column:notification_level;not null;default:0"`
	LastReadMessage    int64   `gorm:"column:last_read_message;not null;default:0"`
	LastMentionMessage int64   `gorm:"column:last_mention_message;not null;default:0"`
	Permissions        int     `gorm:"not null;default:0"`
	SessionID          *string `gorm:"column:session_id;index"`
	InCall             int     `gorm:"column:in_call;not null;default:0"`
	LastPing           int64   `gorm:"column:last_ping;not null;default:0"`
}

func (attendeeRecord) TableName() string { return "talk_attendees" }

type AttendeeRepository struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewAttendeeRepository(db *gorm.DB, log *slog.Logger) IAttendeeRepository {
	return &AttendeeRepository{db: db, log: log}
}

func (r *AttendeeRepository) Insert(attendee domain.Attendee) (domain.Attendee, error) {
	record := fromAttendee(attendee)
	if err := r.db.Create(&record).Error; err != nil {
		return domain.Attendee{}, fmt.Errorf("insert attendee: %w", err)
	}
	return toAttendee(record), nil
}

func (r *AttendeeRepository) InsertIfSessionFree(attendee domain.Attendee) (bool, error) {
	if attendee.Session == nil {
		return false, fmt.Errorf("insert attendee: session required")
	}
	taken, err := r.CountSessions(*attendee.Session)
	if err != nil {
		return false, err
	}
	if taken > 0 {
		return false, nil
	}
	if _, err := r.Insert(attendee); err != nil {
		return false, err
	}
	return true, nil
}

func (r *AttendeeRepository) Find(roomID int64, actorType domain.ActorType, actorID string) (domain.Attendee, error) {
	var record attendeeRecord
	err := r.db.First(&record,
		"room_id = ? AND actor_type = ? AND actor_id = ?", roomID, string(actorType), actorID).Error
	return r.oneAttendee(record, err)
}

func (r *AttendeeRepository) FindBySession(roomID int64, sessionID string) (domain.Attendee, error) {
	var record attendeeRecord
	err := r.db.First(&record, "room_id = ? AND session_id = ?", roomID, sessionID).Error
	return r.oneAttendee(record, err)
}

func (r *AttendeeRepository) FindBySessionAny(sessionID string) (domain.Attendee, error) {
	var record attendeeRecord
	err := r.db.First(&record, "session_id = ?", sessionID).Error
	return r.oneAttendee(record, err)
}

func (r *AttendeeRepository) ListByRoom(roomID int64) ([]domain.Attendee, error) {
	var records []attendeeRecord
	if err := r.db.Find(&records, "room_id = ?", roomID).Error; err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	attendees := make([]domain.Attendee, 0, len(records))
	for _, record := range records {
		attendees = append(attendees, toAttendee(record))
	}
	return attendees, nil
}

func (r *AttendeeRepository) ListInCall(roomID int64) ([]domain.Attendee, error) {
	var records []attendeeRecord
	if err := r.db.Find(&records, "room_id = ? AND in_call <> 0", roomID).Error; err != nil {
		return nil, fmt.Errorf("list in-call attendees: %w", err)
	}
	attendees := make([]domain.Attendee, 0, len(records))
	for _, record := range records {
		attendees = append(attendees, toAttendee(record))
	}
	return attendees, nil
}

func (r *AttendeeRepository) ListUserIDs(roomID int64) ([]string, error) {
	var ids []string
	err := r.db.Model(&attendeeRecord{}).
		Where("room_id = ? AND actor_type = ?", roomID, string(domain.ActorUsers)).
		Order("id").
		Pluck("actor_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	return ids, nil
}

func (r *AttendeeRepository) CountByRoom(roomID int64) (int64, error) {
	var count int64
	if err := r.db.Model(&attendeeRecord{}).Where("room_id = ?", roomID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count attendees: %w", err)
	}
	return count, nil
}

func (r *AttendeeRepository) CountSessions(sessionID string) (int64, error) {
	var count int64
	if err := r.db.Model(&attendeeRecord{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

func (r *AttendeeRepository) UpdateSession(roomID int64, userID, sessionID string) (int64, error) {
	result := r.db.Model(&attendeeRecord{}).
		Where("room_id = ? AND actor_type = ? AND actor_id = ?", roomID, string(domain.ActorUsers), userID).
		Update("session_id", sessionID)
	if result.Error != nil {
		return 0, fmt.Errorf("update session: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *AttendeeRepository) ResetSession(roomID int64, userID string, sessionID *string) error {
	query := r.db.Model(&attendeeRecord{}).
		Where("room_id = ? AND actor_type = ? AND actor_id = ?", roomID, string(domain.ActorUsers), userID).
		Where("participant_type <> ?", int(domain.ParticipantUserSelfJoined))
	if sessionID != nil {
		query = query.Where("session_id = ?", *sessionID)
	}
	err := query.Updates(map[string]interface{}{"session_id": nil, "in_call": 0}).Error
	if err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	return nil
}

func (r *AttendeeRepository) UpdateInCall(roomID int64, sessionID string, flags domain.InCallFlag) error {
	err := r.db.Model(&attendeeRecord{}).
		Where("room_id = ? AND session_id = ?", roomID, sessionID).
		Update("in_call", int(flags)).Error
	if err != nil {
		return fmt.Errorf("update in-call: %w", err)
	}
	return nil
}

func (r *AttendeeRepository) UpdatePing(roomID int64, userID, sessionID string, timestamp int64) error {
	query := r.db.Model(&attendeeRecord{}).
		Where("room_id = ? AND session_id = ?", roomID, sessionID)
	if userID != "" {
		query = query.Where("actor_type = ? AND actor_id = ?", string(domain.ActorUsers), userID)
	}
	if err := query.Update("last_ping", timestamp).Error; err != nil {
		return fmt.Errorf("update ping: %w", err)
	}
	return nil
}

func (r *AttendeeRepository) UpdateParticipantType(roomID int64, actorType domain.ActorType, actorID string, participantType domain.ParticipantType) error {
	err := r.db.Model(&attendeeRecord{}).
		Where("room_id = ? AND actor_type = ? AND actor_id = ?", roomID, string(actorType), actorID).
		Update("participant_type", int(participantType)).Error
	if err != nil {
		return fmt.Errorf("update participant type: %w", err)
	}
	return nil
}

func (r *AttendeeRepository) UpdateLastMention(roomID int64, userIDs []string, messageID int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	err := r.db.Model(&attendeeRecord{}).
		Where("room_id = ? AND actor_type = ? AND actor_id IN ?", roomID, string(domain.ActorUsers), userIDs).
		Update("last_mention_message", messageID).Error
	if err != nil {
		return fmt.Errorf("update last mention: %w", err)
	}
	return nil
}

func (r *AttendeeRepository) Delete(roomID int64, actorType domain.ActorType, actorID string) error {
	err := r.db.Where("room_id = ? AND actor_type = ? AND actor_id = ?",
		roomID, string(actorType), actorID).Delete(&attendeeRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete attendee: %w", err)
	}
	return nil
}

func (r *AttendeeRepository) DeleteSelfJoined(roomID int64, userID string, sessionID *string) error {
	query := r.db.Where("room_id = ? AND actor_type = ? AND actor_id = ?",
		roomID, string(domain.ActorUsers), userID).
		Where("participant_type = ?", int(domain.ParticipantUserSelfJoined))
	if sessionID != nil {
		query = query.Where("session_id = ?", *sessionID)
	}
	if err := query.Delete(&attendeeRecord{}).Error; err != nil {
		return fmt.Errorf("delete self-joined: %w", err)
	}
	return nil
}

func (r *AttendeeRepository) DeleteUninvited(roomID int64) error {
	err := r.db.Where("room_id = ? AND participant_type IN ?",
		roomID, []int{int(domain.ParticipantGuest), int(domain.ParticipantUserSelfJoined)}).
		Delete(&attendeeRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete uninvited: %w", err)
	}
	return nil
}

func (r *AttendeeRepository) DeleteStaleGuests(roomID int64, before int64) (int64, error) {
	result := r.db.Where("room_id = ? AND actor_type = ?", roomID, string(domain.ActorGuests)).
		Where("(session_id IS NULL OR session_id = '')").
		Where("last_ping <= ?", before).
		Delete(&attendeeRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete stale guests: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *AttendeeRepository) oneAttendee(record attendeeRecord, err error) (domain.Attendee, error) {
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Attendee{}, errors.ErrParticipantNotFound
		}
		return domain.Attendee{}, fmt.Errorf("attendee lookup: %w", err)
	}
	return toAttendee(record), nil
}

func fromAttendee(attendee domain.Attendee) attendeeRecord {
	return attendeeRecord{
		ID:                 attendee.ID,
		RoomID:             attendee.RoomID,
		ActorType:          string(attendee.ActorType),
		ActorID:            attendee.ActorID,
		ParticipantType:    int(attendee.Type),
		Favorite:           attendee.Favorite,
		NotificationLevel:  int(attendee.NotificationLevel),
		LastReadMessage:    attendee.LastReadMessage,
		LastMentionMessage: attendee.LastMentionMessage,
		Permissions:        int(attendee.Permissions),
		SessionID:          attendee.Session,
		InCall:             int(attendee.InCall),
		LastPing:           attendee.LastPing,
	}
}

func toAttendee(record attendeeRecord) domain.Attendee {
	return domain.Attendee{
		ID:                 record.ID,
		RoomID:             record.RoomID,
		ActorType:          domain.ActorType(record.ActorType),
		ActorID:            record.ActorID,
		Type:               domain.ParticipantType(record.ParticipantType),
		Favorite:           record.Favorite,
		NotificationLevel:  domain.NotificationLevel(record.NotificationLevel),
		LastReadMessage:    record.LastReadMessage,
		LastMentionMessage: record.LastMentionMessage,
		Permissions:        domain.Permission(record.Permissions),
		Session:            record.SessionID,
		InCall:             domain.InCallFlag(record.InCall),
		LastPing:           record.LastPing,
	}
}
