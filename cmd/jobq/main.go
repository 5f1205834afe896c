package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/jobq"
	"github.com/loykin/jobq/internal/config"
	"github.com/loykin/jobq/internal/logger"
)

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func main() {
	var (
		configPath string
		dsn        string
		schema     string
	)

	root := &cobra.Command{Use: "jobq"}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (toml/yaml/json)")
	root.PersistentFlags().StringVar(&dsn, "dsn", ":memory:", "store DSN, used when --config is not set")
	root.PersistentFlags().StringVar(&schema, "schema", "jobq", "store schema/table prefix, used when --config is not set")

	open := func(ctx context.Context) (*jobq.Queue, error) {
		if configPath != "" {
			q, _, err := jobq.FromAppConfig(ctx, configPath)
			return q, err
		}
		return jobq.Open(ctx, dsn, jobq.Config{Schema: schema})
	}

	var (
		name       string
		payload    string
		retryLimit int
		startIn    time.Duration
		expireIn   time.Duration
	)

	cmdPublish := &cobra.Command{
		Use:   "publish",
		Short: "Publish one job",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := open(ctx)
			if err != nil {
				return err
			}
			defer q.Stop()

			var data any
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &data); err != nil {
					return fmt.Errorf("invalid --data JSON: %w", err)
				}
			}
			id, err := q.Publish(ctx, name, data, jobq.PublishOptions{
				RetryLimit: retryLimit,
				StartIn:    startIn,
				ExpireIn:   expireIn,
			})
			if err != nil {
				return err
			}
			printJSON(map[string]string{"id": id})
			return nil
		},
	}
	cmdPublish.Flags().StringVar(&name, "name", "", "job name (required)")
	cmdPublish.Flags().StringVar(&payload, "data", "{}", "job payload as JSON")
	cmdPublish.Flags().IntVar(&retryLimit, "retry-limit", 0, "retry limit stored on the job (expired jobs are refetchable regardless)")
	cmdPublish.Flags().DurationVar(&startIn, "start-in", 0, "delay before the job becomes eligible")
	cmdPublish.Flags().DurationVar(&expireIn, "expire-in", 0, "time an active job may run before expiring")
	_ = cmdPublish.MarkFlagRequired("name")

	cmdFetch := &cobra.Command{
		Use:   "fetch",
		Short: "Claim one eligible job and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := open(ctx)
			if err != nil {
				return err
			}
			defer q.Stop()

			job, err := q.Fetch(ctx, name)
			if err != nil {
				return err
			}
			if job == nil {
				fmt.Println("null")
				return nil
			}
			printJSON(job)
			return nil
		},
	}
	cmdFetch.Flags().StringVar(&name, "name", "", "job name (required)")
	_ = cmdFetch.MarkFlagRequired("name")

	var metricsListen string
	cmdServe := &cobra.Command{
		Use:   "serve",
		Short: "Run the expiration monitor (and optionally serve /metrics) until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var (
				q      *jobq.Queue
				appCfg *config.Config
				err    error
			)
			if configPath != "" {
				q, appCfg, err = jobq.FromAppConfig(ctx, configPath)
			} else {
				q, err = jobq.Open(ctx, dsn, jobq.Config{Schema: schema})
			}
			if err != nil {
				return err
			}
			defer q.Stop()

			logCfg := logger.Config{}
			metricsEnabled := metricsListen != ""
			metricsAddr := metricsListen
			if appCfg != nil {
				logCfg = logger.Config{
					Path:       appCfg.Log.Path,
					Level:      appCfg.Log.Level,
					MaxSizeMB:  appCfg.Log.MaxSizeMB,
					MaxBackups: appCfg.Log.MaxBackups,
					MaxAgeDays: appCfg.Log.MaxAgeDays,
					Compress:   appCfg.Log.Compress,
					Color:      appCfg.Log.Color,
				}
				// --metrics-listen overrides [metrics] from the config file.
				if !cmd.Flags().Changed("metrics-listen") {
					metricsEnabled = appCfg.Metrics.Enabled
					metricsAddr = appCfg.Metrics.Listen
				}
			}

			log, closer, err := logger.New(logCfg)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			if err := q.Monitor(ctx); err != nil {
				log.Error("monitor failed to start", "error", err)
				return err
			}
			log.Info("monitor started")

			if metricsEnabled {
				if err := jobq.RegisterMetricsDefault(); err != nil {
					log.Error("metrics registration failed", "error", err)
					return err
				}
				go func() {
					log.Info("serving metrics", "addr", metricsAddr)
					if err := jobq.ServeMetrics(metricsAddr); err != nil {
						log.Error("metrics server stopped", "error", err)
					}
				}()
			}

			<-ctx.Done()
			log.Info("shutting down")
			return nil
		},
	}
	cmdServe.Flags().StringVar(&metricsListen, "metrics-listen", "", "address to serve Prometheus /metrics, overriding [metrics] in --config (e.g., :9090)")

	root.AddCommand(cmdPublish, cmdFetch, cmdServe)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
