package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Vinayak0723/cryptoexchange/internal/connection"
	"github.com/Vinayak0723/cryptoexchange/internal/feed"
)

// Relay batches manager events and publishes them.
type Relay struct {
	cfg        Config
	sub        feed.Subscriber
	subs       []Subscription
	publishers []Publisher
	logger     *slog.Logger

	// Input from manager callbacks
	queue *feed.Queue[Envelope]

	// Batching
	batch   []Envelope
	batchMu sync.Mutex
	flushMu sync.Mutex // Serializes publishing so batches stay ordered

	unsubs []func()

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	statsMu sync.Mutex
	stats   Stats
}

// New creates a Relay.
func New(cfg Config, sub feed.Subscriber, subs []Subscription, publishers []Publisher, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	return &Relay{
		cfg:        cfg,
		sub:        sub,
		subs:       subs,
		publishers: publishers,
		logger:     logger,
		queue:      feed.NewQueue[Envelope](cfg.BufferSize, cfg.BufferMax),
		batch:      make([]Envelope, 0, cfg.BatchSize),
		stats:      Stats{PublishErrors: make(map[string]int64)},
	}
}

// Start registers subscriptions and begins publishing.
func (r *Relay) Start(ctx context.Context) error {
	if len(r.publishers) == 0 {
		return ErrNoPublishers
	}

	for _, s := range r.subs {
		for _, event := range s.Events {
			unsub, err := r.sub.Subscribe(s.Channel, s.Params, event, r.onEvent)
			if err != nil {
				r.unsubscribe()
				return fmt.Errorf("subscribe %s %s: %w", connection.Key(s.Channel, s.Params), event, err)
			}
			r.unsubs = append(r.unsubs, unsub)
		}
	}

	r.ctx, r.cancel = context.WithCancel(ctx)

	// Consumer goroutine
	r.wg.Add(1)
	go r.consumeLoop()

	// Flush ticker goroutine
	r.wg.Add(1)
	go r.flushLoop()

	names := make([]string, len(r.publishers))
	for i, p := range r.publishers {
		names[i] = p.Name()
	}
	r.logger.Info("event relay started",
		"subscriptions", len(r.unsubs),
		"publishers", names,
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Run starts the relay unless Start was already called, then stops it when
// ctx is done. Call Start first when subscriptions must be in place before
// connections open.
func (r *Relay) Run(ctx context.Context) error {
	if r.cancel == nil {
		if err := r.Start(ctx); err != nil {
			return err
		}
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.Stop(stopCtx)
}

// Stop unsubscribes, flushes what is pending, and closes the publishers.
func (r *Relay) Stop(ctx context.Context) error {
	if r.cancel == nil {
		return ErrNotStarted
	}

	r.logger.Info("stopping event relay")

	r.unsubscribe()
	r.queue.Close()
	r.cancel()

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("event relay stopped")
	case <-ctx.Done():
		r.logger.Warn("event relay stop timed out")
	}

	// Final flush
	r.collect(0)
	r.flush(ctx)

	for _, p := range r.publishers {
		if err := p.Close(); err != nil {
			r.logger.Warn("failed to close publisher", "publisher", p.Name(), "error", err)
		}
	}
	return nil
}

// Stats returns current metrics.
func (r *Relay) Stats() Stats {
	r.statsMu.Lock()
	out := r.stats
	out.PublishErrors = make(map[string]int64, len(r.stats.PublishErrors))
	for k, v := range r.stats.PublishErrors {
		out.PublishErrors[k] = v
	}
	r.statsMu.Unlock()

	r.batchMu.Lock()
	out.Pending = len(r.batch) + r.queue.Len()
	r.batchMu.Unlock()

	return out
}

func (r *Relay) onEvent(ev connection.Event) {
	if r.queue.Push(NewEnvelope(r.cfg.Instance, ev)) {
		r.statsMu.Lock()
		r.stats.Received++
		r.statsMu.Unlock()
	}
}

func (r *Relay) unsubscribe() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

// consumeLoop moves envelopes from the queue into the batch.
func (r *Relay) consumeLoop() {
	defer r.wg.Done()

	for {
		if err := r.queue.Wait(r.ctx); err != nil {
			return
		}
		if r.collect(r.cfg.BatchSize) {
			r.flush(r.ctx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (r *Relay) flushLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.flush(r.ctx)
		}
	}
}

// collect drains up to the batch's free room (everything if max <= 0) and
// reports whether the batch is full.
func (r *Relay) collect(max int) bool {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()

	room := 0
	if max > 0 {
		room = max - len(r.batch)
		if room <= 0 {
			return true
		}
	}
	r.batch = append(r.batch, r.queue.Drain(room)...)
	return max > 0 && len(r.batch) >= max
}

// flush publishes the current batch to every publisher.
func (r *Relay) flush(ctx context.Context) {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := r.batch
	r.batch = make([]Envelope, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	// Publishing still runs during shutdown
	if ctx.Err() != nil {
		ctx = context.Background()
	}

	start := time.Now()
	failed := 0
	for _, p := range r.publishers {
		if err := r.publish(ctx, p, batch); err != nil {
			failed++
			r.logger.Warn("publish failed",
				"publisher", p.Name(),
				"batch_size", len(batch),
				"error", err,
			)
			r.statsMu.Lock()
			r.stats.PublishErrors[p.Name()]++
			r.stats.LastError = err.Error()
			r.statsMu.Unlock()
		}
	}

	r.statsMu.Lock()
	r.stats.Batches++
	if failed == 0 {
		r.stats.Published += int64(len(batch))
	}
	r.stats.LastFlush = time.Now()
	r.statsMu.Unlock()

	r.logger.Debug("flushed batch",
		"count", len(batch),
		"failed_publishers", failed,
		"duration", time.Since(start),
	)
}

func (r *Relay) publish(ctx context.Context, p Publisher, batch []Envelope) error {
	if r.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.PublishTimeout)
		defer cancel()
	}
	return p.Publish(ctx, batch)
}
