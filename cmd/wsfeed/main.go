// wsfeed keeps multiplexed WebSocket streams to the exchange open and relays
// their events to Redis and RabbitMQ.
//
// Usage:
//
//	wsfeed --config configs/wsfeed.yaml run
//	wsfeed watch --channel orderbook --symbol BTC_USDT
//	wsfeed send --channel orderbook --symbol BTC_USDT --payload '{"type":"ping"}'
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/Vinayak0723/cryptoexchange/internal/version"
)

var app *cli.App

func init() {
	app = &cli.App{
		Name:    filepath.Base(os.Args[0]),
		Usage:   "multiplexed WebSocket feed for the exchange",
		Version: version.String(),
	}

	app.Commands = []*cli.Command{
		runCommand,
		watchCommand,
		sendCommand,
		versionCommand,
	}
	app.Flags = []cli.Flag{
		ConfigFlag,
		EnvFileFlag,
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
