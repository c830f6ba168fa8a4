// Package workercmder provides the embedding worker pool command.
package workercmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperlane/vectorize/cmd/vectorize/vconn"
	"github.com/paperlane/vectorize/pkg/config"
	"github.com/paperlane/vectorize/pkg/logger"
	"github.com/paperlane/vectorize/pkg/worker"
)

type workerCommander struct {
	numWorkers   uint
	pollInterval uint
	debug        bool
	configDir    string
	logger       *zap.Logger
}

var workerFlags = config.FlagSet{
	config.FlagWorkerNumWorkers: {
		Name:        "num-workers",
		ViperKey:    "worker.num_workers",
		Description: "Number of concurrent embedding workers",
	},
	config.FlagWorkerPollInterval: {
		Name:        "poll-interval",
		ViperKey:    "worker.poll_interval_seconds",
		Description: "Seconds between queue polls when idle",
	},
}

const workerLongDesc string = `Run the embedding worker pool.

Drains every job's work queue, embeds the rows it names using the
job's configured transformer, and writes the resulting vectors back to
generated storage. Runs until interrupted.`

const workerShortDesc string = "Run the embedding worker pool"

func NewWorkerCmd() *cobra.Command {
	cmder := &workerCommander{}

	cmd := &cobra.Command{
		Use:   "worker",
		Short: workerShortDesc,
		Long:  workerLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, workerFlags, []string{
				config.FlagWorkerNumWorkers,
				config.FlagWorkerPollInterval,
			})
			cmder.numWorkers = v.GetUint("worker.num_workers")
			cmder.pollInterval = v.GetUint("worker.poll_interval_seconds")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run()
		},
	}

	config.AddUintFlag(cmd, workerFlags, config.FlagWorkerNumWorkers, &cmder.numWorkers)
	config.AddUintFlag(cmd, workerFlags, config.FlagWorkerPollInterval, &cmder.pollInterval)

	return cmd
}

func (c *workerCommander) run() error {
	c.logger = logger.New(logger.WithDebug(c.debug))
	defer func() { _ = c.logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := vconn.Open(ctx, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	pool := worker.NewPool(conn.Store, conn.Queue, conn.Providers, c.logger, worker.Config{
		NumWorkers:   int(c.numWorkers),
		PollInterval: secondsToDuration(c.pollInterval),
	}, conn.Events)

	c.logger.Info("starting embedding worker pool", zap.Uint("num_workers", c.numWorkers))
	pool.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	pool.Stop()
	return nil
}

func secondsToDuration(s uint) time.Duration {
	return time.Duration(s) * time.Second
}
