// Package netmon maintains the process-wide online signal and notifies
// subscribers on transitions. The platform shell feeds it network-state
// changes; an optional probe loop checks a health endpoint.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/keepsakehq/keepsake-client/internal/logging"
)

// Config holds monitor configuration.
type Config struct {
	ProbeURL      string        // health endpoint for the probe loop
	ProbeInterval time.Duration // default 30s
	ProbeTimeout  time.Duration // default 5s
}

// DefaultConfig returns default monitor configuration.
func DefaultConfig() *Config {
	return &Config{
		ProbeInterval: 30 * time.Second,
		ProbeTimeout:  5 * time.Second,
	}
}

// Monitor tracks a single boolean online state. Callbacks fire once per
// transition, regardless of subscriber count or how many times the same
// state is reported.
type Monitor struct {
	cfg *Config

	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(bool)

	stopCh  chan struct{}
	wg      sync.WaitGroup
	probing bool
}

// New creates a monitor. It starts online; the shell or the probe loop
// corrects that on first evidence. A nil config means defaults.
func New(config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Monitor{
		cfg:    config,
		online: true,
		subs:   make(map[int]func(bool)),
	}
}

// Online returns the current point-in-time state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a transition callback and returns its unsubscribe
// function. The callback runs on whichever goroutine reports the change.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// SetOnline reports the platform's network state. Repeated reports of the
// same state are absorbed; subscribers hear about transitions only.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	logging.Info("connectivity changed", map[string]interface{}{"online": online})
	for _, fn := range fns {
		fn(online)
	}
}

// StartProbe begins periodic health checks against the configured URL.
// No-op when no probe URL is set or the probe is already running. The
// probe may be started again after Stop.
func (m *Monitor) StartProbe(ctx context.Context) {
	if m.cfg.ProbeURL == "" {
		return
	}
	m.mu.Lock()
	if m.probing {
		m.mu.Unlock()
		return
	}
	m.probing = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.wg.Add(1)
	go m.probeLoop(ctx, stopCh)
}

// Stop halts the probe loop and waits for it.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.probing {
		m.mu.Unlock()
		return
	}
	m.probing = false
	stopCh := m.stopCh
	m.mu.Unlock()

	close(stopCh)
	m.wg.Wait()
}

func (m *Monitor) probeLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer m.wg.Done()

	client := &http.Client{Timeout: m.cfg.ProbeTimeout}
	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.SetOnline(m.probe(ctx, client))
		}
	}
}

func (m *Monitor) probe(ctx context.Context, client *http.Client) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.cfg.ProbeURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}
