package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/restkit/internal/config"
	"github.com/iliyamo/restkit/internal/logger"
	"github.com/iliyamo/restkit/internal/mail"
	"github.com/iliyamo/restkit/internal/queue"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "production"
	}
	zl, err := logger.New(env, os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	return zl
}

func newRootCommand() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker [queue]",
		Short: "Process background jobs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			zl := newLogger()
			defer func() { _ = zl.Sync() }()

			qcfg := config.LoadQueueConfig()
			if concurrency > 0 {
				qcfg.Concurrency = concurrency
			}
			rdb := config.NewRedisClient(zl)
			if rdb != nil {
				defer rdb.Close()
			}
			driver, err := queue.NewDriver(qcfg, rdb, zl)
			if err != nil {
				return err
			}
			defer driver.Close()

			w := queue.NewWorker(driver, qcfg, zl)
			w.Handle(mail.JobName, mail.Handler(mail.NewLogSender(zl)))

			name := queue.DefaultQueue
			if len(args) == 1 {
				name = args[0]
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := w.Work(ctx, name); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "consumers to run (overrides QUEUE_CONCURRENCY)")
	cmd.AddCommand(newFailedCommand())
	return cmd
}

func newFailedCommand() *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "failed [queue]",
		Short: "List dead-lettered jobs (redis driver)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			zl := newLogger()
			qcfg := config.LoadQueueConfig()
			rdb := config.NewRedisClient(zl)
			if rdb == nil {
				return fmt.Errorf("redis is unavailable")
			}
			defer rdb.Close()

			name := queue.DefaultQueue
			if len(args) == 1 {
				name = args[0]
			}
			jobs, err := queue.NewRedisDriver(rdb, qcfg.Prefix, zl).Failed(cmd.Context(), name, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, j := range jobs {
				fmt.Fprintf(out, "%s\t%s\tattempts=%d\t%s\n", j.ID, j.Handler, j.Attempts, j.LastError)
			}
			fmt.Fprintf(out, "%d failed job(s) on %q\n", len(jobs), name)
			return nil
		},
	}

	cmd.Flags().Int64VarP(&limit, "limit", "n", 20, "maximum jobs to show")
	return cmd
}
