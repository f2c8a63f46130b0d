//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"talk-lab/domain"
	"talk-lab/errors"
)

type IRoomRepository interface {
	Create(room domain.Room) (domain.Room, error)
	GetByID(id int64) (domain.Room, error)
	GetByToken(token string) (domain.Room, error)
	GetByObject(objectType, objectID string) (domain.Room, error)
	// FindOneToOne matches a one-to-one room for the pair (a, b) in either
	// order: both sides hold attendee rows, or one side has joined and the
	// other is still the pending invitee.
	FindOneToOne(a, b string) (domain.Room, error)
	FindChangelog(userID string) (domain.Room, error)
	TokenExists(token string) (bool, error)
	ListIDsWithGuests() ([]int64, error)
	UpdateName(id int64, name string) error
	UpdatePasswordHash(id int64, hash string) error
	UpdateType(id int64, roomType domain.RoomType) error
	UpdateReadOnly(id int64, state domain.ReadOnlyState) error
	UpdatePendingInvitee(id int64, inviteeID string) error
	// UpdateLobby writes state and timer together; a nil timer clears it.
	UpdateLobby(id int64, state domain.LobbyState, timer *time.Time) error
	UpdateLastActivity(id int64, at time.Time) error
	UpdateLastMessage(id int64, messageID int64) error
	// SetActiveSince only writes active_since when it is still unset; the
	// guest counter is bumped unconditionally when countGuest is true.
	SetActiveSince(id int64, since time.Time, countGuest bool) error
	ResetActiveSince(id int64) error
	// Delete removes the room and cascades over its attendee rows.
	Delete(id int64) error
}

// roomRecord is the storage shape of a room; domain.Room stays free of
// persistence concerns.
type roomRecord struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	Token          string `gorm:"uniqueIndex;size:64;not null"`
	Type           int    `gorm:"not null"`
	ReadOnly       int    `gorm:"column:read_only;not null;default:0"`
	Name           string `gorm:"size:255"`
	PasswordHash   string `gorm:"column:password_hash;size:255"`
	PendingInvitee string `gorm:"column:pending_invitee;size:64"`
	LobbyState     int    `gorm:"column:lobby_state;not null;default:0"`
	LobbyTimer     *time.Time
	ActiveGuests   int    `gorm:"column:active_guests;not null;default:0"`
	ActiveSince    *time.Time
	LastActivity   *time.Time
	LastMessageID  int64  `gorm:"column:last_message_id;not null;default:0"`
	ObjectType     string `gorm:"column:object_type;size:64;index:idx_rooms_object,priority:1"`
	ObjectID       string `gorm:"column:object_id;size:64;index:idx_rooms_object,priority:2"`
}

func (roomRecord) TableName() string { return "talk_rooms" }

type RoomRepository struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewRoomRepository(db *gorm.DB, log *slog.Logger) IRoomRepository {
	return &RoomRepository{db: db, log: log}
}

func (r *RoomRepository) Create(room domain.Room) (domain.Room, error) {
	record := fromRoom(room)
	if err := r.db.Create(&record).Error; err != nil {
		return domain.Room{}, fmt.Errorf("create room: %w", err)
	}
	return toRoom(record), nil
}

func (r *RoomRepository) GetByID(id int64) (domain.Room, error) {
	var record roomRecord
	err := r.db.First(&record, "id = ?", id).Error
	return r.oneRoom(record, err)
}

func (r *RoomRepository) GetByToken(token string) (domain.Room, error) {
	var record roomRecord
	err := r.db.First(&record, "token = ?", token).Error
	return r.oneRoom(record, err)
}

func (r *RoomRepository) GetByObject(objectType, objectID string) (domain.Room, error) {
	var record roomRecord
	err := r.db.First(&record, "object_type = ? AND object_id = ?", objectType, objectID).Error
	return r.oneRoom(record, err)
}

func (r *RoomRepository) FindOneToOne(a, b string) (domain.Room, error) {
	bothJoined := "(SELECT COUNT(*) FROM talk_attendees x WHERE x.room_id = talk_rooms.id" +
		" AND x.actor_type = ? AND x.actor_id IN (?, ?)) = 2"
	onePending := "pending_invitee = ? AND EXISTS (SELECT 1 FROM talk_attendees x" +
		" WHERE x.room_id = talk_rooms.id AND x.actor_type = ? AND x.actor_id = ?)"

	var record roomRecord
	err := r.db.
		Where("type = ?", int(domain.RoomTypeOneToOne)).
		Where(r.db.
			Where(bothJoined, string(domain.ActorUsers), a, b).
			Or(onePending, a, string(domain.ActorUsers), b).
			Or(onePending, b, string(domain.ActorUsers), a)).
		First(&record).Error
	return r.oneRoom(record, err)
}

func (r *RoomRepository) FindChangelog(userID string) (domain.Room, error) {
	var record roomRecord
	err := r.db.First(&record,
		"type = ? AND object_type = 'changelog' AND object_id = ?",
		int(domain.RoomTypeChangelog), userID).Error
	return r.oneRoom(record, err)
}

func (r *RoomRepository) TokenExists(token string) (bool, error) {
	var count int64
	if err := r.db.Model(&roomRecord{}).Where("token = ?", token).Count(&count).Error; err != nil {
		return false, fmt.Errorf("token lookup: %w", err)
	}
	return count > 0, nil
}

func (r *RoomRepository) ListIDsWithGuests() ([]int64, error) {
	var ids []int64
	err := r.db.Model(&attendeeRecord{}).
		Distinct("room_id").
		Where("actor_type = ?", string(domain.ActorGuests)).
		Pluck("room_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("rooms with guests: %w", err)
	}
	return ids, nil
}

func (r *RoomRepository) UpdateName(id int64, name string) error {
	return r.updateColumn(id, "name", name)
}

func (r *RoomRepository) UpdatePasswordHash(id int64, hash string) error {
	return r.updateColumn(id, "password_hash", hash)
}

func (r *RoomRepository) UpdateType(id int64, roomType domain.RoomType) error {
	return r.updateColumn(id, "type", int(roomType))
}

func (r *RoomRepository) UpdateReadOnly(id int64, state domain.ReadOnlyState) error {
	return r.updateColumn(id, "read_only", int(state))
}

func (r *RoomRepository) UpdatePendingInvitee(id int64, inviteeID string) error {
	return r.updateColumn(id, "pending_invitee", inviteeID)
}

func (r *RoomRepository) UpdateLobby(id int64, state domain.LobbyState, timer *time.Time) error {
	err := r.db.Model(&roomRecord{}).Where("id = ?", id).
		Updates(map[string]interface{}{"lobby_state": int(state), "lobby_timer": timer}).Error
	if err != nil {
		return fmt.Errorf("update lobby: %w", err)
	}
	return nil
}

func (r *RoomRepository) UpdateLastActivity(id int64, at time.Time) error {
	return r.updateColumn(id, "last_activity", at)
}

func (r *RoomRepository) UpdateLastMessage(id int64, messageID int64) error {
	return r.updateColumn(id, "last_message_id", messageID)
}

func (r *RoomRepository) SetActiveSince(id int64, since time.Time, countGuest bool) error {
	if countGuest {
		err := r.db.Model(&roomRecord{}).Where("id = ?", id).
			UpdateColumn("active_guests", gorm.Expr("active_guests + 1")).Error
		if err != nil {
			return fmt.Errorf("bump active guests: %w", err)
		}
	}
	err := r.db.Model(&roomRecord{}).
		Where("id = ? AND active_since IS NULL", id).
		Update("active_since", since).Error
	if err != nil {
		return fmt.Errorf("set active since: %w", err)
	}
	return nil
}

func (r *RoomRepository) ResetActiveSince(id int64) error {
	err := r.db.Model(&roomRecord{}).Where("id = ?", id).
		Updates(map[string]interface{}{"active_guests": 0, "active_since": nil}).Error
	if err != nil {
		return fmt.Errorf("reset active since: %w", err)
	}
	return nil
}

func (r *RoomRepository) Delete(id int64) error {
	if err := r.db.Where("room_id = ?", id).Delete(&attendeeRecord{}).Error; err != nil {
		return fmt.Errorf("delete attendees: %w", err)
	}
	if err := r.db.Delete(&roomRecord{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

func (r *RoomRepository) oneRoom(record roomRecord, err error) (domain.Room, error) {
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Room{}, errors.ErrRoomNotFound
		}
		return domain.Room{}, fmt.Errorf("room lookup: %w", err)
	}
	return toRoom(record), nil
}

func (r *RoomRepository) updateColumn(id int64, column string, value interface{}) error {
	if err := r.db.Model(&roomRecord{}).Where("id = ?", id).Update(column, value).Error; err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	return nil
}

func fromRoom(room domain.Room) roomRecord {
	return roomRecord{
		ID:             room.ID,
		Token:          room.Token,
		Type:           int(room.Type),
		ReadOnly:       int(room.ReadOnly),
		Name:           room.Name,
		PasswordHash:   room.PasswordHash,
		PendingInvitee: room.PendingInvitee,
		LobbyState:     int(room.LobbyState),
		LobbyTimer:     room.LobbyTimer,
		ActiveGuests:   room.ActiveGuests,
		ActiveSince:    room.ActiveSince,
		LastActivity:   room.LastActivity,
		LastMessageID:  room.LastMessageID,
		ObjectType:     room.ObjectType,
		ObjectID:       room.ObjectID,
	}
}

func toRoom(record roomRecord) domain.Room {
	return domain.Room{
		ID:             record.ID,
		Token:          record.Token,
		Type:           domain.RoomType(record.Type),
		ReadOnly:       domain.ReadOnlyState(record.ReadOnly),
		Name:           record.Name,
		PasswordHash:   record.PasswordHash,
		PendingInvitee: record.PendingInvitee,
		LobbyState:     domain.LobbyState(record.LobbyState),
		LobbyTimer:     record.LobbyTimer,
		ActiveGuests:   record.ActiveGuests,
		ActiveSince:    record.ActiveSince,
		LastActivity:   record.LastActivity,
		LastMessageID:  record.LastMessageID,
		ObjectType:     record.ObjectType,
		ObjectID:       record.ObjectID,
	}
}
