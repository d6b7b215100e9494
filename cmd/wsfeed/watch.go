package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/Vinayak0723/cryptoexchange/internal/connection"
	"github.com/Vinayak0723/cryptoexchange/internal/feed"
)

var watchCommand = &cli.Command{
	Action: watch,
	Name:   "watch",
	Usage:  "Stream one connection to stdout",
	Flags: []cli.Flag{
		ChannelFlag,
		SymbolFlag,
		VerboseFlag,
	},
}

func watch(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	channel := c.String(ChannelFlag.Name)
	symbol := c.String(SymbolFlag.Name)
	params := symbolParams(symbol)
	verbose := c.Bool(VerboseFlag.Name)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr, err := newManager(cfg, logger)
	if err != nil {
		return err
	}
	defer mgr.DisconnectAll()

	for _, name := range []string{connection.EventConnected, connection.EventDisconnected, connection.EventError} {
		if _, err := mgr.Subscribe(channel, params, name, printLifecycle); err != nil {
			return err
		}
	}

	// Channels the feed cannot decode are always shown raw.
	fcfg := feed.DefaultConfig()
	switch channel {
	case feed.ChannelOrderBook, feed.ChannelTrades:
		if symbol == "" {
			return fmt.Errorf("--symbol is required for %s", channel)
		}
		fcfg.Symbols = []string{symbol}
	case feed.ChannelUser:
		fcfg.User = true
	default:
		verbose = true
	}

	if verbose {
		_, err := mgr.Subscribe(channel, params, connection.EventMessage, func(ev connection.Event) {
			fmt.Printf("[%s] %s\n", ev.Key, ev.Raw)
		})
		if err != nil {
			return err
		}
	}

	f := feed.New(fcfg, mgr, logger)
	if err := f.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	q := f.Queues()
	wg.Add(3)
	go drain(ctx, &wg, q.OrderBook, printOrderBook)
	go drain(ctx, &wg, q.Trade, printTrade)
	go drain(ctx, &wg, q.User, printUser)

	if err := mgr.Connect(channel, params); err != nil {
		f.Stop()
		wg.Wait()
		return err
	}

	<-ctx.Done()
	f.Stop()
	wg.Wait()

	stats := f.Stats()
	logger.Info("watch stopped",
		"received", stats.Received,
		"routed", stats.Routed,
		"decode_errors", stats.DecodeErrors,
	)
	return nil
}

func drain[T any](ctx context.Context, wg *sync.WaitGroup, q *feed.Queue[T], print func(T)) {
	defer wg.Done()
	for {
		item, err := q.Pop(ctx)
		if err != nil {
			if !errors.Is(err, feed.ErrQueueClosed) && !errors.Is(err, context.Canceled) {
				fmt.Printf("queue error: %v\n", err)
			}
			return
		}
		print(item)
	}
}

func printLifecycle(ev connection.Event) {
	switch ev.Name {
	case connection.EventConnected:
		fmt.Printf("[%s] connected conn=%s\n", ev.Key, ev.ConnID)
	case connection.EventDisconnected:
		fmt.Printf("[%s] disconnected code=%d reason=%q\n", ev.Key, ev.Code, ev.Reason)
	case connection.EventError:
		fmt.Printf("[%s] error: %v\n", ev.Key, ev.Err)
	}
}

func printOrderBook(m feed.OrderBookMsg) {
	bid, _ := m.BestBid()
	ask, _ := m.BestAsk()
	spread, ok := m.Spread()
	spreadText := "-"
	if ok {
		spreadText = spread.String()
	}
	fmt.Printf("%-16s %s bids=%d asks=%d best_bid=%s best_ask=%s spread=%s\n",
		m.Type, m.Symbol, len(m.Bids), len(m.Asks),
		bid.Price.String(), ask.Price.String(), spreadText)
}

func printTrade(t feed.TradeMsg) {
	kind := "trade"
	if t.Initial {
		kind = "recent"
	}
	fmt.Printf("%-16s %s %s %s @ %s notional=%s\n",
		kind, t.Symbol, t.Side, t.Quantity.String(), t.Price.String(), t.Notional().String())
}

func printUser(m feed.UserMsg) {
	switch {
	case m.Order != nil:
		fmt.Printf("%-16s %s %s %s filled=%s/%s\n",
			m.Type, m.Order.ID, m.Order.Symbol, m.Order.Status,
			m.Order.FilledQuantity.String(), m.Order.Quantity.String())
	case m.Trade != nil:
		fmt.Printf("%-16s %s %s %s @ %s\n",
			m.Type, m.Trade.Symbol, m.Trade.Side, m.Trade.Quantity.String(), m.Trade.Price.String())
	default:
		fmt.Printf("%-16s %s\n", m.Type, m.Balance)
	}
}
