package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"talk-lab/domain"
	"talk-lab/domain/event"
	"talk-lab/errors"
	"talk-lab/repositories"
	"talk-lab/services"
)

func TestGuestSweeper_RemovesStaleGuests(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	req.NoError(err)
	req.NoError(repositories.AutoMigrate(db))

	rooms := repositories.NewRoomRepository(db, log)
	attendees := repositories.NewAttendeeRepository(db, log)
	service := services.NewRoomService(rooms, attendees, event.NewBus(log), log)

	room, err := rooms.Create(domain.Room{Token: "sweep222", Type: domain.RoomTypePublic})
	req.NoError(err)

	_, err = attendees.Insert(domain.Attendee{
		RoomID: room.ID, ActorType: domain.ActorGuests, ActorID: "stale",
		Type:     domain.ParticipantGuest,
		LastPing: time.Now().Add(-2 * services.GuestStalenessWindow).Unix(),
	})
	req.NoError(err)

	sweeper := NewGuestSweeper(log, rooms, service, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = sweeper.Run(ctx)

	_, err = attendees.Find(room.ID, domain.ActorGuests, "stale")
	req.ErrorIs(err, errors.ErrParticipantNotFound)
}
