package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Vinayak0723/cryptoexchange/internal/connection"
	"github.com/Vinayak0723/cryptoexchange/internal/version"
)

var (
	sendCommand = &cli.Command{
		Action: send,
		Name:   "send",
		Usage:  "Connect, send one JSON frame, and disconnect",
		Flags: []cli.Flag{
			ChannelFlag,
			SymbolFlag,
			PayloadFlag,
			TimeoutFlag,
		},
	}
	versionCommand = &cli.Command{
		Action: func(c *cli.Context) error {
			fmt.Println(version.String())
			return nil
		},
		Name:  "version",
		Usage: "Print build information",
	}
)

func send(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	var payload map[string]any
	if err := json.Unmarshal([]byte(c.String(PayloadFlag.Name)), &payload); err != nil {
		return fmt.Errorf("payload: %w", err)
	}

	channel := c.String(ChannelFlag.Name)
	params := symbolParams(c.String(SymbolFlag.Name))

	mgr, err := newManager(cfg, logger)
	if err != nil {
		return err
	}
	defer mgr.DisconnectAll()

	opened := make(chan struct{}, 1)
	unsub, err := mgr.Subscribe(channel, params, connection.EventConnected, func(connection.Event) {
		select {
		case opened <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer unsub()

	if err := mgr.Connect(channel, params); err != nil {
		return err
	}

	timeout := c.Duration(TimeoutFlag.Name)
	select {
	case <-opened:
	case <-c.Context.Done():
		return c.Context.Err()
	case <-time.After(timeout):
		return fmt.Errorf("%s not open after %s", connection.Key(channel, params), timeout)
	}

	if err := mgr.Send(channel, params, payload); err != nil {
		return err
	}
	logger.Info("frame sent", "key", connection.Key(channel, params))
	return nil
}
