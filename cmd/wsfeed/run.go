package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Vinayak0723/cryptoexchange/internal/config"
	"github.com/Vinayak0723/cryptoexchange/internal/connection"
	"github.com/Vinayak0723/cryptoexchange/internal/poller"
	"github.com/Vinayak0723/cryptoexchange/internal/relay"
	"github.com/Vinayak0723/cryptoexchange/internal/version"
)

var runCommand = &cli.Command{
	Action: run,
	Name:   "run",
	Usage:  "Connect the configured subscriptions and relay their events",
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	logger.Info("starting wsfeed",
		"version", version.Version,
		"commit", version.Commit,
		"config", c.String(ConfigFlag.Name),
	)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr, err := newManager(cfg, logger)
	if err != nil {
		return err
	}
	defer mgr.DisconnectAll()

	publishers, err := newPublishers(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var rel *relay.Relay
	if len(publishers) > 0 {
		rel = relay.New(relayConfig(cfg), mgr, relaySubscriptions(cfg), publishers, logger)
	} else {
		logger.Warn("no publishers enabled, events are not relayed")
	}

	targets := make([]poller.Target, len(cfg.Subscriptions))
	for i, s := range cfg.Subscriptions {
		targets[i] = poller.Target{Channel: s.Channel, Params: s.Params}
	}
	status := poller.New(poller.Config{Interval: cfg.Status.Interval}, mgr, targets, nil, logger)

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(mgr, status, rel),
	}

	g, gctx := errgroup.WithContext(ctx)

	if rel != nil {
		// Subscribe before connecting so no frame is missed.
		if err := rel.Start(gctx); err != nil {
			return fmt.Errorf("start relay: %w", err)
		}
		g.Go(func() error { return rel.Run(gctx) })
	}

	for _, s := range cfg.Subscriptions {
		if err := mgr.Connect(s.Channel, s.Params); err != nil {
			logger.Error("failed to connect",
				"key", connection.Key(s.Channel, s.Params),
				"error", err,
			)
		}
	}

	if err := status.Start(gctx); err != nil {
		return fmt.Errorf("start status poller: %w", err)
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return status.Stop(stopCtx)
	})

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	logger.Info("wsfeed running",
		"subscriptions", len(cfg.Subscriptions),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	err = g.Wait()
	logger.Info("shutting down...")
	mgr.DisconnectAll()
	logger.Info("wsfeed stopped", "stats", mgr.Stats())
	return err
}

// newPublishers connects every enabled backend.
func newPublishers(ctx context.Context, cfg *config.WSFeedConfig, logger *slog.Logger) ([]relay.Publisher, error) {
	var publishers []relay.Publisher

	if cfg.Relay.Redis.Enabled {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		p, err := relay.NewRedisPublisher(connectCtx, cfg.Relay.Redis)
		cancel()
		if err != nil {
			return nil, err
		}
		logger.Info("redis publisher connected",
			"addr", cfg.Relay.Redis.Addr,
			"prefix", cfg.Relay.Redis.ChannelPrefix,
		)
		publishers = append(publishers, p)
	}

	if cfg.Relay.AMQP.Enabled {
		p, err := relay.NewAMQPPublisher(cfg.Relay.AMQP)
		if err != nil {
			for _, prev := range publishers {
				prev.Close()
			}
			return nil, err
		}
		logger.Info("amqp publisher connected", "exchange", cfg.Relay.AMQP.Exchange)
		publishers = append(publishers, p)
	}

	return publishers, nil
}

func relayConfig(cfg *config.WSFeedConfig) relay.Config {
	rc := relay.DefaultConfig()
	rc.Instance = cfg.Instance.ID
	rc.BatchSize = cfg.Relay.BatchSize
	rc.FlushInterval = cfg.Relay.FlushInterval
	rc.BufferSize = cfg.Relay.BufferSize
	return rc
}

func relaySubscriptions(cfg *config.WSFeedConfig) []relay.Subscription {
	subs := make([]relay.Subscription, len(cfg.Subscriptions))
	for i, s := range cfg.Subscriptions {
		subs[i] = relay.Subscription{
			Channel: s.Channel,
			Params:  s.Params,
			Events:  s.Events,
		}
	}
	return subs
}
