package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"talk-lab/directory"
	"talk-lab/domain/event"
	"talk-lab/repositories"
	"talk-lab/runtime/workers"
	"talk-lab/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component explicitly: repositories on top of the
// database, services on top of repositories, then listeners and workers.
// Returning the error to main keeps all defers running on shutdown.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (SQLite)
	db, err := gorm.Open(sqlite.Open(config.DatabaseFilepath), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	if err := repositories.AutoMigrate(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// 3. Repositories & Services
	roomRepository := repositories.NewRoomRepository(db, log)
	attendeeRepository := repositories.NewAttendeeRepository(db, log)
	appConfigRepository := repositories.NewAppConfigRepository(db)

	bus := event.NewBus(log)
	userDirectory := directory.NewStaticDirectory(nil)

	roomService := services.NewRoomService(roomRepository, attendeeRepository, bus, log)
	ticketService := services.NewSignalingTicketService(
		appConfigRepository, userDirectory, config.SignalingIssuer, log,
	)

	// Issuing one guest ticket eagerly creates the shared secret and
	// proves the config store is writable before workers start.
	if _, err := ticketService.IssueTicket(""); err != nil {
		return fmt.Errorf("signaling self-check failed: %w", err)
	}

	// 4. Listeners: joins bump the room's last activity
	bus.Subscribe(event.KindRoomJoin, func(payload event.Payload) {
		joined, ok := payload.(event.RoomJoined)
		if !ok {
			return
		}
		if err := roomService.SetLastActivity(joined.Room, time.Now()); err != nil {
			log.Error("Failed to bump last activity", "room", joined.Room.Token, "err", err)
		}
	})

	// 5. Background workers under supervision
	sup := workers.NewSupervisor(log)
	sup.Add(workers.NewGuestSweeper(log, roomRepository, roomService, config.SweepInterval))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting supervisor and all workers")
	sup.Run(ctx)

	log.Info("Program stopped cleanly")
	return nil
}
