/*
scheduler.go - Background maintenance sweeper

PURPOSE:
  Periodically retires expired blood bags and pulls maintenance-due
  ambulances out of service, so stale inventory never wins an
  allocation even if nobody calls the sweep endpoints.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick runs both sweeps with independent error handling
  - Safe to Start/Stop repeatedly; Stop waits for the goroutine

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 15 minutes)
  - Enabled: Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewSweeper(handler, logger)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - handlers.go: SweepExpiredBags / SweepMaintenance endpoints (manual)
  - bloodbank/bloodbank.go: SweepExpired
  - dispatch/dispatch.go: SweepMaintenance
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper retires expired bags and maintenance-due vehicles on a timer.
type Sweeper struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweeper creates a sweeper with the default interval.
func NewSweeper(handler *Handler, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		Handler:       handler,
		CheckInterval: 15 * time.Minute,
		Enabled:       true,
		log:           log.With().Str("component", "sweeper").Logger(),
	}
}

// Start launches the background goroutine. No-op when disabled or
// already running.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled || s.stop != nil {
		return
	}

	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	s.log.Info().Dur("interval", s.CheckInterval).Msg("sweeper started")
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	// Sweep once at startup so a restart catches anything that went
	// stale while the server was down.
	s.sweep()

	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	now := time.Now()

	retired, err := s.Handler.Blood.SweepExpired(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("blood expiry sweep failed")
	} else if len(retired) > 0 {
		s.log.Info().Int("count", len(retired)).Msg("retired expired blood bags")
	}

	pulled, err := s.Handler.Dispatch.SweepMaintenance(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("maintenance sweep failed")
	} else if len(pulled) > 0 {
		s.log.Info().Int("count", len(pulled)).Msg("pulled ambulances for maintenance")
	}
}

// Stop halts the sweeper and waits for the goroutine to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop == nil {
		return
	}

	close(s.stop)
	s.ticker.Stop()
	s.wg.Wait()

	s.stop = nil
	s.ticker = nil

	s.log.Info().Msg("sweeper stopped")
}
