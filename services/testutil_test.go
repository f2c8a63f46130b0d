package services

import (
	"log/slog"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"talk-lab/domain/event"
	"talk-lab/repositories"
)

// testEnv wires real repositories on an in-memory database so service tests
// exercise the same SQL paths as production.
type testEnv struct {
	rooms     repositories.IRoomRepository
	attendees repositories.IAttendeeRepository
	config    repositories.IAppConfigRepository
	bus       *event.Bus
	service   *RoomService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := repositories.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	log := slog.Default()
	bus := event.NewBus(log)
	rooms := repositories.NewRoomRepository(db, log)
	attendees := repositories.NewAttendeeRepository(db, log)

	return &testEnv{
		rooms:     rooms,
		attendees: attendees,
		config:    repositories.NewAppConfigRepository(db),
		bus:       bus,
		service:   NewRoomService(rooms, attendees, bus, log),
	}
}

func strPtr(s string) *string { return &s }
