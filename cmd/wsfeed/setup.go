package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Vinayak0723/cryptoexchange/internal/auth"
	"github.com/Vinayak0723/cryptoexchange/internal/config"
	"github.com/Vinayak0723/cryptoexchange/internal/connection"
)

// loadConfig reads the env file and the config named by the global flags.
func loadConfig(c *cli.Context) (*config.WSFeedConfig, error) {
	envFile := c.String(EnvFileFlag.Name)
	if err := config.LoadEnvFile(envFile, !c.IsSet(EnvFileFlag.Name)); err != nil {
		return nil, err
	}

	path := c.String(ConfigFlag.Name)
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadAndValidate(path)
}

func newLogger(cfg *config.WSFeedConfig) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	return logger.With("instance", cfg.Instance.ID)
}

// newManager wires the endpoint, token source and transport for cfg.
func newManager(cfg *config.WSFeedConfig, logger *slog.Logger) (connection.Manager, error) {
	endpoint, err := connection.NewEndpoint(cfg.Stream.BaseURL, auth.FromConfig(cfg.Auth))
	if err != nil {
		return nil, fmt.Errorf("endpoint: %w", err)
	}

	factory := connection.NewWebsocketFactory(connection.SocketConfig{
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
		WriteTimeout:     cfg.Stream.WriteTimeout,
		PingInterval:     cfg.Stream.PingInterval,
		ReadLimit:        cfg.Stream.ReadLimit,
	}, logger)

	mgrCfg := connection.ManagerConfig{
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
		ReconnectDelay:       cfg.Stream.ReconnectDelay,
	}

	return connection.NewManager(mgrCfg, factory, connection.NewScheduler(), endpoint, logger), nil
}

// symbolParams returns the params for an optional symbol.
func symbolParams(symbol string) connection.Params {
	if symbol == "" {
		return nil
	}
	return connection.Params{"symbol": symbol}
}
