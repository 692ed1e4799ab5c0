// Command tallierd runs the stat-aggregation daemon: it listens for
// statsd-style UDP datagrams, aggregates them across a worker pool, and
// periodically flushes a merged report to a downstream graphite-protocol
// sink. Entry point style follows the urfave/cli/v2 + logrus combination
// used across the example pack.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/logan/monitors/internal/config"
	"github.com/logan/monitors/internal/master"
)

func main() {
	app := &cli.App{
		Name:  "tallierd",
		Usage: "aggregate statsd-style metrics and flush them to a graphite sink",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the TOML configuration file",
				Value:   "/etc/tallierd/tallierd.toml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "logrus level: trace, debug, info, warn, error",
				Value: "info",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	log.SetLevel(level)
	entry := logrus.NewEntry(log)

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := master.New(cfg, entry)
	return m.Run(ctx)
}
