package poller

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Vinayak0723/cryptoexchange/internal/connection"
)

// StatusChecker reports whether a key's connection is open.
type StatusChecker interface {
	IsConnected(channel string, params connection.Params) bool
}

// StatusHandler receives status transitions.
type StatusHandler interface {
	HandleStatus(s Status)
}

// StatusHandlerFunc is a function adapter for StatusHandler.
type StatusHandlerFunc func(Status)

func (f StatusHandlerFunc) HandleStatus(s Status) {
	f(s)
}

// Target is one watched connection.
type Target struct {
	Channel string
	Params  connection.Params
}

// Status is the last observed state of a watched connection.
type Status struct {
	Key       string    `json:"key"`
	Live      bool      `json:"live"`
	Since     time.Time `json:"since"`
	CheckedAt time.Time `json:"checked_at"`
}

// Label is the text shown next to a connection indicator.
func (s Status) Label() string {
	if s.Live {
		return "Live"
	}
	return "Connecting"
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 1s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Interval: time.Second}
}

// Poller periodically checks connection status.
type Poller struct {
	cfg     Config
	checker StatusChecker
	targets []Target
	handler StatusHandler
	logger  *slog.Logger

	mu       sync.RWMutex
	statuses map[string]Status

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller. handler may be nil.
func New(cfg Config, checker StatusChecker, targets []Target, handler StatusHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Poller{
		cfg:      cfg,
		checker:  checker,
		targets:  targets,
		handler:  handler,
		logger:   logger,
		statuses: make(map[string]Status, len(targets)),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("status poller started",
		"interval", p.cfg.Interval,
		"targets", len(p.targets),
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("status poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the latest status of every target, sorted by key.
func (p *Poller) Snapshot() []Status {
	p.mu.RLock()
	out := make([]Status, 0, len(p.statuses))
	for _, s := range p.statuses {
		out = append(out, s)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// AllLive reports whether every target is connected.
func (p *Poller) AllLive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.statuses) < len(p.targets) {
		return false
	}
	for _, s := range p.statuses {
		if !s.Live {
			return false
		}
	}
	return true
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll checks every target and reports the ones that changed.
func (p *Poller) pollAll() {
	now := time.Now().UTC()

	var changed []Status
	p.mu.Lock()
	for _, t := range p.targets {
		key := connection.Key(t.Channel, t.Params)
		live := p.checker.IsConnected(t.Channel, t.Params)

		prev, seen := p.statuses[key]
		if seen && prev.Live == live {
			prev.CheckedAt = now
			p.statuses[key] = prev
			continue
		}

		s := Status{Key: key, Live: live, Since: now, CheckedAt: now}
		p.statuses[key] = s
		changed = append(changed, s)
	}
	p.mu.Unlock()

	for _, s := range changed {
		p.logger.Info("connection status changed",
			"key", s.Key,
			"status", s.Label(),
		)
		if p.handler != nil {
			p.handler.HandleStatus(s)
		}
	}
}
