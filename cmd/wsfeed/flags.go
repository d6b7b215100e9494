package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		EnvVars: []string{"WSFEED_CONFIG"},
		Usage:   "load configuration from `file` (defaults apply when empty)",
	}
	EnvFileFlag = &cli.StringFlag{
		Name:  "env-file",
		Value: ".env",
		Usage: "load environment variables from `file` if it exists",
	}

	ChannelFlag = &cli.StringFlag{
		Name:     "channel",
		Required: true,
		Usage:    "stream `name` (orderbook, trades, user)",
	}
	SymbolFlag = &cli.StringFlag{
		Name:  "symbol",
		Usage: "trading pair, e.g. `BTC_USDT`",
	}
	VerboseFlag = &cli.BoolFlag{
		Name:  "verbose",
		Usage: "print every raw frame",
	}
	PayloadFlag = &cli.StringFlag{
		Name:     "payload",
		Required: true,
		Usage:    "JSON `object` to send",
	}
	TimeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Value: 10 * time.Second,
		Usage: "how long to wait for the connection to open",
	}
)
