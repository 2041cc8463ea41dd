package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/routemq/routemq/broker"
	_ "github.com/routemq/routemq/broker/paho"
	"github.com/routemq/routemq/config"
	"github.com/routemq/routemq/loader"
	"github.com/routemq/routemq/logging"
	"github.com/routemq/routemq/session"
	"github.com/routemq/routemq/supervisor"
	"github.com/routemq/routemq/worker"
)

// workerIndexFlag is the re-exec marker the supervisor passes back to
// this same binary (spec §4.6: "launched with ... the loader's directory
// identifier ..."). Its presence routes run into worker mode instead of
// starting the root session.
const workerIndexFlag = "worker-index"

func runCmd() *cobra.Command {
	var restartWorkers bool
	var workerIndex int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the main MQTT session and its worker supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed(workerIndexFlag) {
				return runWorker(cmd.Context(), workerIndex)
			}
			return runMain(cmd.Context(), restartWorkers)
		},
	}

	cmd.Flags().BoolVar(&restartWorkers, "restart-workers", true, "respawn a worker process if it exits unexpectedly")
	cmd.Flags().IntVar(&workerIndex, workerIndexFlag, 0, "internal: re-exec this binary as worker process N")
	cmd.Flags().MarkHidden(workerIndexFlag)
	return cmd
}

func runMain(ctx context.Context, restartWorkers bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	table, results := loader.Load()
	for _, r := range results {
		if r.Err != nil {
			log.Warn("route registration failed", "name", r.Name, "err", r.Err)
		}
	}

	brokerCfg := brokerConfig(cfg)
	br, err := broker.Create(cfg.Broker.Driver, brokerCfg)
	if err != nil {
		return fmt.Errorf("routemq: create broker: %w", err)
	}

	sess := session.New(br, table, log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sup := supervisor.New(os.Args[0], func(index int) []string {
		return []string{"run", "--" + workerIndexFlag, strconv.Itoa(index)}
	}, log, supervisor.WithRestart(restartWorkers))

	workerCount := table.TotalWorkerCount()
	if workerCount > 0 {
		if err := sup.Start(workerCount); err != nil {
			return fmt.Errorf("routemq: start workers: %w", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- sess.Start(runCtx) }()

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
	case err := <-done:
		if err != nil {
			log.Error("main session exited", "err", err)
		}
	}

	cancel()
	<-done

	stopCtx, stopCancel := context.WithTimeout(context.Background(), supervisor.DefaultGraceWindow+5*time.Second)
	defer stopCancel()
	return sup.Stop(stopCtx)
}

func runWorker(ctx context.Context, index int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	p := worker.New(index, cfg.Broker.Driver, brokerConfig(cfg), loader.Load, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-sigCh
		cancel()
	}()

	return p.Run(workerCtx)
}

func brokerConfig(cfg *config.Config) broker.Config {
	return broker.Config{
		Host:           cfg.Broker.Host,
		Port:           cfg.Broker.Port,
		ClientIDPrefix: cfg.Broker.ClientIDPrefix,
		Username:       cfg.Broker.Username,
		Password:       cfg.Broker.Password,
		ShareGroup:     cfg.Broker.ShareGroup,
	}
}
