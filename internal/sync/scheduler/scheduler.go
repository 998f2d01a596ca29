// Package scheduler decides when the sync engine drains: on connectivity
// regained, on a periodic tick, or on an explicit request. It also keeps
// the pending-count broadcast fresh.
package scheduler

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/keepsakehq/keepsake-client/internal/errors"
	"github.com/keepsakehq/keepsake-client/internal/logging"
	syncpkg "github.com/keepsakehq/keepsake-client/internal/sync"
	"github.com/keepsakehq/keepsake-client/internal/sync/netmon"
)

// Engine is the slice of the sync engine the scheduler drives.
type Engine interface {
	Drain(ctx context.Context) (*syncpkg.DrainResult, error)
	RefreshPendingCount() (int, error)
}

// Config holds scheduler configuration.
type Config struct {
	DrainInterval time.Duration // periodic drain when online (default: 1 minute)
	CountInterval time.Duration // pending-count refresh (default: 5 seconds)
	DrainTimeout  time.Duration // bound on one drain pass (default: 5 minutes)
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		DrainInterval: time.Minute,
		CountInterval: 5 * time.Second,
		DrainTimeout:  5 * time.Minute,
	}
}

// Scheduler runs the drain and count loops.
type Scheduler struct {
	engine  Engine
	monitor *netmon.Monitor
	cfg     *Config

	trigger chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu          sync.Mutex
	running     bool
	unsubscribe func()
}

// New creates a scheduler. A nil config means defaults.
func New(engine Engine, monitor *netmon.Monitor, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		engine:  engine,
		monitor: monitor,
		cfg:     config,
		trigger: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the background loops and hooks connectivity transitions.
// Going online triggers exactly one drain per transition.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.unsubscribe = s.monitor.Subscribe(func(online bool) {
		if online {
			s.TriggerSync()
		}
	})
	s.mu.Unlock()

	s.wg.Add(2)
	go s.drainLoop(ctx)
	go s.countLoop(ctx)

	logging.Info("sync scheduler started")
}

// Stop halts the loops gracefully and detaches from the monitor.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	unsubscribe := s.unsubscribe
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	close(s.stopCh)
	s.wg.Wait()

	logging.Info("sync scheduler stopped")
}

// TriggerSync requests a drain as soon as the drain loop is free. Safe to
// call from any goroutine; coalesces with an already-pending request.
func (s *Scheduler) TriggerSync() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) drainLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runDrain(ctx)
		case <-s.trigger:
			s.runDrain(ctx)
		}
	}
}

func (s *Scheduler) countLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CountInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.engine.RefreshPendingCount(); err != nil {
				logging.Error("pending count refresh failed", err)
			}
		}
	}
}

func (s *Scheduler) runDrain(ctx context.Context) {
	if !s.monitor.Online() {
		logging.Debug("skipping drain while offline")
		return
	}

	drainCtx, cancel := context.WithTimeout(ctx, s.cfg.DrainTimeout)
	defer cancel()

	result, err := s.engine.Drain(drainCtx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSyncInProgress) {
			logging.Debug("drain already in progress, skipping")
			return
		}
		logging.ErrorWithCode("scheduled drain failed", string(apperrors.ErrSyncFailed), err)
		return
	}
	if result.Sent > 0 || result.Coalesced > 0 {
		logging.Info("scheduled drain finished", map[string]interface{}{
			"sent":      result.Sent,
			"coalesced": result.Coalesced,
			"requeued":  result.Requeued,
			"abandoned": result.Abandoned,
		})
	}
}
