package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Vinayak0723/cryptoexchange/internal/connection"
)

// Subscriber registers event callbacks. connection.Manager satisfies it.
type Subscriber interface {
	Subscribe(channel string, params connection.Params, event string, h connection.Handler) (func(), error)
}

// Feed decodes stream events into typed queues.
type Feed interface {
	// Start registers the subscriptions. It does not open connections.
	Start() error

	// Stop removes the subscriptions and closes the queues.
	Stop()

	// Queues returns the output queues.
	Queues() Queues

	// Stats returns current statistics.
	Stats() Stats
}

// Queues provides access to decoded messages.
type Queues struct {
	OrderBook *Queue[OrderBookMsg]
	Trade     *Queue[TradeMsg]
	User      *Queue[UserMsg]
}

// feed is the internal implementation.
type feed struct {
	cfg    Config
	sub    Subscriber
	logger *slog.Logger

	orderBookQ *Queue[OrderBookMsg]
	tradeQ     *Queue[TradeMsg]
	userQ      *Queue[UserMsg]

	mu     sync.Mutex
	unsubs []func()

	// Stats
	received     atomic.Int64
	routed       atomic.Int64
	decodeErrors atomic.Int64
	dropped      atomic.Int64
}

// New creates a Feed.
func New(cfg Config, sub Subscriber, logger *slog.Logger) Feed {
	if logger == nil {
		logger = slog.Default()
	}

	return &feed{
		cfg:        cfg,
		sub:        sub,
		logger:     logger,
		orderBookQ: NewQueue[OrderBookMsg](cfg.BufferSize, cfg.BufferMax),
		tradeQ:     NewQueue[TradeMsg](cfg.BufferSize, cfg.BufferMax),
		userQ:      NewQueue[UserMsg](cfg.BufferSize, cfg.BufferMax),
	}
}

// Start implements Feed.
func (f *feed) Start() error {
	for _, symbol := range f.cfg.Symbols {
		params := connection.Params{"symbol": symbol}

		for _, typ := range []string{TypeSnapshot, TypeOrderBookUpdate} {
			if err := f.subscribe(ChannelOrderBook, params, typ, f.onOrderBook); err != nil {
				return err
			}
		}
		for _, typ := range []string{TypeNewTrade, TypeRecentTrades} {
			if err := f.subscribe(ChannelTrades, params, typ, f.onTrades); err != nil {
				return err
			}
		}
	}

	if f.cfg.User {
		for _, typ := range []string{TypeBalanceUpdate, TypeOrderUpdate, TypeTradeNotification} {
			if err := f.subscribe(ChannelUser, nil, typ, f.onUser); err != nil {
				return err
			}
		}
	}

	f.logger.Info("feed started",
		"symbols", f.cfg.Symbols,
		"user", f.cfg.User,
		"buffer_size", f.cfg.BufferSize,
	)
	return nil
}

func (f *feed) subscribe(channel string, params connection.Params, event string, h connection.Handler) error {
	unsub, err := f.sub.Subscribe(channel, params, event, h)
	if err != nil {
		f.Stop()
		return fmt.Errorf("subscribe %s %s: %w", connection.Key(channel, params), event, err)
	}

	f.mu.Lock()
	f.unsubs = append(f.unsubs, unsub)
	f.mu.Unlock()
	return nil
}

// Stop implements Feed.
func (f *feed) Stop() {
	f.mu.Lock()
	unsubs := f.unsubs
	f.unsubs = nil
	f.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}

	f.orderBookQ.Close()
	f.tradeQ.Close()
	f.userQ.Close()
}

// Queues implements Feed.
func (f *feed) Queues() Queues {
	return Queues{
		OrderBook: f.orderBookQ,
		Trade:     f.tradeQ,
		User:      f.userQ,
	}
}

// Stats implements Feed.
func (f *feed) Stats() Stats {
	return Stats{
		Received:     f.received.Load(),
		Routed:       f.routed.Load(),
		DecodeErrors: f.decodeErrors.Load(),
		Dropped:      f.dropped.Load(),
		OrderBook:    f.orderBookQ.Stats(),
		Trade:        f.tradeQ.Stats(),
		User:         f.userQ.Stats(),
	}
}

func (f *feed) onOrderBook(ev connection.Event) {
	f.received.Add(1)

	msg, err := DecodeOrderBook(ev)
	if err != nil {
		f.decodeFailed(ev, err)
		return
	}
	f.record(f.orderBookQ.Push(msg))
}

func (f *feed) onTrades(ev connection.Event) {
	f.received.Add(1)

	trades, err := DecodeTrades(ev)
	if err != nil {
		f.decodeFailed(ev, err)
		return
	}
	for _, t := range trades {
		f.record(f.tradeQ.Push(t))
	}
}

func (f *feed) onUser(ev connection.Event) {
	f.received.Add(1)

	msg, err := DecodeUser(ev)
	if err != nil {
		f.decodeFailed(ev, err)
		return
	}
	f.record(f.userQ.Push(msg))
}

func (f *feed) record(pushed bool) {
	if pushed {
		f.routed.Add(1)
	} else {
		f.dropped.Add(1)
	}
}

func (f *feed) decodeFailed(ev connection.Event, err error) {
	f.decodeErrors.Add(1)

	level := slog.LevelWarn
	if errors.Is(err, ErrUnknownEvent) {
		level = slog.LevelDebug
	}
	f.logger.Log(context.Background(), level, "failed to decode event",
		"key", ev.Key,
		"event", ev.Name,
		"error", err,
	)
}
