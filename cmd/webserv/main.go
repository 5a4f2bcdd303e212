package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Maruffly/webserv-sub000/pkg/config"
	"github.com/Maruffly/webserv-sub000/pkg/eventloop"
	"github.com/Maruffly/webserv-sub000/pkg/logging"
	"github.com/Maruffly/webserv-sub000/pkg/metrics"
)

const defaultConfigPath = "/etc/webserv/webserv.conf"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		debug         bool
		metricsPeriod time.Duration
	)

	cmd := &cobra.Command{
		Use:   "webserv [config-file]",
		Short: "Single-process HTTP/1.1 origin server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			log := logging.New()
			if debug {
				log.SetLevel(logrus.DebugLevel)
			}
			return run(log, path, metricsPeriod)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug-level logging")
	cmd.Flags().DurationVar(&metricsPeriod, "metrics-interval", 30*time.Second, "interval between metrics log lines")

	return cmd
}

func run(log logging.Logger, path string, metricsPeriod time.Duration) error {
	loader := config.NewDirectiveLoader()
	endpoints, err := loader.Load(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("no listen directives found in %s", path)
	}

	engine := eventloop.New(log, eventloop.DefaultConfig())
	if err := engine.Listen(endpoints); err != nil {
		return fmt.Errorf("bind listeners: %w", err)
	}
	engine.WatchSignals()

	stop := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		metrics.LogPeriodically(log, engine.Metrics(), metricsPeriod, stop)
		return nil
	})

	log.WithField("endpoints", len(endpoints)).Info("webserv starting")
	runErr := engine.Run()
	close(stop)
	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("background task exited with error")
	}
	return runErr
}
