package workers

import (
	"context"
	"log/slog"
	"time"

	"talk-lab/repositories"
	"talk-lab/services"
)

// GuestSweeper periodically removes disconnected guests whose last ping is
// older than the staleness window. Only rooms that currently hold guest
// rows are visited.
type GuestSweeper struct {
	log      *slog.Logger
	rooms    repositories.IRoomRepository
	service  services.IRoomService
	interval time.Duration
}

func NewGuestSweeper(
	log *slog.Logger,
	rooms repositories.IRoomRepository,
	service services.IRoomService,
	interval time.Duration,
) *GuestSweeper {
	return &GuestSweeper{log: log, rooms: rooms, service: service, interval: interval}
}

func (w *GuestSweeper) Run(ctx context.Context) error {
	w.log.Info("Starting guest sweeper worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.sweep(); err != nil {
				w.log.Error("Guest sweep failed", "err", err)
			}
		}
	}
}

func (w *GuestSweeper) sweep() error {
	ids, err := w.rooms.ListIDsWithGuests()
	if err != nil {
		return err
	}

	for _, id := range ids {
		room, err := w.rooms.GetByID(id)
		if err != nil {
			// Room may have been deleted between listing and loading.
			w.log.Debug("Skipping room during sweep", "id", id, "err", err)
			continue
		}
		if err := w.service.ExpireStaleGuests(room); err != nil {
			return err
		}
	}
	return nil
}
