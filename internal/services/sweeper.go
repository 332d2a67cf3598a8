package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/mindpath-backend/internal/logger"
)

// Sweeper periodically re-runs time-based detectors for every room with at
// least one tracked connection on this instance. Duplicate sweeps across
// instances are harmless: the trigger-level cooldown dedupes the outcome.
type Sweeper struct {
	log          *logger.Logger
	interval     time.Duration
	presence     Presence
	intervention InterventionService
	notifier     Notifier

	mu       sync.Mutex
	inFlight map[uuid.UUID]bool
	stop     chan struct{}
	stopOnce sync.Once
}

func NewSweeper(log *logger.Logger, interval time.Duration, presence Presence, intervention InterventionService, notifier Notifier) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if notifier == nil {
		notifier = NoopNotifier()
	}
	return &Sweeper{
		log:          log.With("service", "Sweeper"),
		interval:     interval,
		presence:     presence,
		intervention: intervention,
		notifier:     notifier,
		inFlight:     make(map[uuid.UUID]bool),
		stop:         make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	for _, roomID := range s.presence.TrackedRooms() {
		if !s.begin(roomID) {
			continue
		}
		go func(roomID uuid.UUID) {
			defer s.end(roomID)
			created, err := s.intervention.EvaluateTemporal(ctx, roomID)
			if err != nil {
				s.log.Error("Temporal sweep failed", "room_id", roomID, "error", err)
				return
			}
			if len(created) > 0 {
				s.notifier.RoomStateChanged(roomID)
			}
		}(roomID)
	}
}

// begin marks the room sweep in flight; a false return means a sweep for the
// room is still running.
func (s *Sweeper) begin(roomID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[roomID] {
		return false
	}
	s.inFlight[roomID] = true
	return true
}

func (s *Sweeper) end(roomID uuid.UUID) {
	s.mu.Lock()
	delete(s.inFlight, roomID)
	s.mu.Unlock()
}
