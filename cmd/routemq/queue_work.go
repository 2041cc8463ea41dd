package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/routemq/routemq/config"
	"github.com/routemq/routemq/logging"
	"github.com/routemq/routemq/queue"
	"github.com/routemq/routemq/queue/memory"
	"github.com/routemq/routemq/queue/relational"
)

// queueWorkCmd runs a single Queue Worker Loop against the configured
// driver (spec §6 "--queue-work [--queue][--connection][--max-jobs]
// [--max-time][--sleep][--timeout]").
func queueWorkCmd() *cobra.Command {
	var (
		queueName  string
		connection string
		maxJobs    int
		maxTime    int
		sleep      int
		timeout    int
	)

	cmd := &cobra.Command{
		Use:   "queue-work",
		Short: "Run a single queue worker loop against the configured driver",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logging.New(cfg.Logging.Level, cfg.Logging.Format)

			if connection != "" {
				cfg.Queue.Connection = connection
			}
			if queueName != "" {
				cfg.Queue.Queue = queueName
			}
			if maxJobs > 0 {
				cfg.Queue.MaxJobs = maxJobs
			}
			if maxTime > 0 {
				cfg.Queue.MaxTime = time.Duration(maxTime) * time.Second
			}
			if sleep > 0 {
				cfg.Queue.Sleep = time.Duration(sleep) * time.Second
			}
			if timeout > 0 {
				cfg.Queue.Timeout = time.Duration(timeout) * time.Second
			}

			driver, err := buildDriver(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}

			loop := queue.NewLoop(driver, queue.Default, queue.LoopOptions{
				Queue:   cfg.Queue.Queue,
				Sleep:   cfg.Queue.Sleep,
				Timeout: cfg.Queue.Timeout,
				MaxJobs: cfg.Queue.MaxJobs,
				MaxTime: cfg.Queue.MaxTime,
			}, log)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			loopCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			go func() {
				<-sigCh
				cancel()
			}()

			return loop.Run(loopCtx)
		},
	}

	cmd.Flags().StringVar(&queueName, "queue", "", "queue name to claim from (default: ROUTEMQ_QUEUE_DEFAULT)")
	cmd.Flags().StringVar(&connection, "connection", "", "queue connection: memory or relational (default: ROUTEMQ_QUEUE_CONNECTION)")
	cmd.Flags().IntVar(&maxJobs, "max-jobs", 0, "stop after this many jobs have been processed (0 = unlimited)")
	cmd.Flags().IntVar(&maxTime, "max-time", 0, "stop after this many seconds have elapsed (0 = unlimited)")
	cmd.Flags().IntVar(&sleep, "sleep", 0, "seconds to wait before retrying an empty queue")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "seconds to allow each job to run, overriding its own timeout")

	return cmd
}

// buildDriver constructs the queue.Driver selected by cfg.Queue.Connection
// (spec §6: connection selection happens once, at the CLI layer).
func buildDriver(ctx context.Context, cfg *config.Config, log *logging.Logger) (queue.Driver, error) {
	switch cfg.Queue.Connection {
	case "relational":
		driver, err := relational.New(ctx, relational.Config{
			Host:     cfg.Relational.Host,
			Port:     cfg.Relational.Port,
			Database: cfg.Relational.Database,
			User:     cfg.Relational.User,
			Password: cfg.Relational.Password,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("routemq: connect relational queue driver: %w", err)
		}
		sweeper := relational.NewStaleSweeper(driver, cfg.MemoryStore.StaleCheckInterval, cfg.MemoryStore.MinStaleThreshold)
		sweeper.Start()
		return driver, nil
	case "memory":
		driver, err := memory.New(memory.Config{
			Host:               cfg.MemoryStore.Host,
			Port:               cfg.MemoryStore.Port,
			DB:                 cfg.MemoryStore.DB,
			Password:           cfg.MemoryStore.Password,
			StaleCheckInterval: cfg.MemoryStore.StaleCheckInterval,
			MinStaleThreshold:  cfg.MemoryStore.MinStaleThreshold,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("routemq: connect memory queue driver: %w", err)
		}
		return driver, nil
	default:
		return nil, fmt.Errorf("%w: %q", queue.ErrUnknownConnection, cfg.Queue.Connection)
	}
}
