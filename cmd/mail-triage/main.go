package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/adapters/cache"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/di"
	"github.com/mikey/llm-mail-triage/internal/factory"
	"github.com/mikey/llm-mail-triage/internal/metrics"
	"github.com/mikey/llm-mail-triage/internal/scheduler"
)

var (
	flagConfigPath  string
	flagDryRun      bool
	flagMetricsAddr string
)

func main() {
	root := newRootCmd()
	root.SilenceUsage = true
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mail-triage",
		Short: "Nightly LLM-assisted inbox triage",
		Long:  "mail-triage keeps, labels, archives or quarantines new mail using deterministic rules first and an LLM classifier second.",
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to config.yaml (defaults to the standard search path)")
	cmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "decide and report without changing the mailbox")

	cmd.AddCommand(runCmd())
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(healthcheckCmd())
	cmd.AddCommand(historyCmd())
	cmd.AddCommand(secretCmd())

	return cmd
}

// app is everything a triage run needs
type app struct {
	dig.In

	Config   *config.Config
	Logger   *zap.Logger
	Service  *core.TriageService
	Observer *metrics.Observer
	Store    factory.AuditStore
	Cache    *cache.MemoryCache
	LLM      core.LLMClient
}

// runOnce performs one triage pass and pushes metrics when configured
func (a app) runOnce(ctx context.Context) error {
	report, err := a.Service.Run(ctx)

	mc := a.Config.GetMetrics()
	if pushErr := a.Observer.Push(ctx, mc.PushgatewayURL, mc.Job); pushErr != nil {
		a.Logger.Error("Failed to push metrics", zap.Error(pushErr))
	}
	if err != nil {
		return err
	}

	a.Logger.Info("Run complete",
		zap.String("run_id", report.RunID),
		zap.Int("processed", report.Total()),
		zap.Int("errors", len(report.Errors)))
	return nil
}

// close releases the resources held by the container
func (a app) close() {
	if closer, ok := a.LLM.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Logger.Error("Failed to close LLM client", zap.Error(err))
		}
	}
	a.Cache.Stop()
	if err := a.Store.Close(); err != nil {
		a.Logger.Error("Failed to close audit store", zap.Error(err))
	}
	_ = a.Logger.Sync()
}

func buildContainer() (*dig.Container, error) {
	overrides := di.Overrides{}
	if flagDryRun {
		overrides["mode.dry_run"] = true
	}
	container, err := di.BuildContainer(flagConfigPath, overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency container: %w", err)
	}
	return container, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one triage pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			return container.Invoke(func(a app) error {
				defer a.close()
				return a.runOnce(ctx)
			})
		},
	}
}

func serveCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run triage every day at schedule.time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			return container.Invoke(func(a app) error {
				defer a.close()

				sc := a.Config.GetSchedule()
				daily, err := scheduler.NewDaily(sc.Time, sc.Timezone, a.runOnce, a.Logger)
				if err != nil {
					return err
				}

				if flagMetricsAddr != "" {
					srv := metricsServer(flagMetricsAddr, a.Observer)
					go func() {
						if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
							a.Logger.Error("Metrics server failed", zap.Error(err))
						}
					}()
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						_ = srv.Shutdown(shutdownCtx)
					}()
					a.Logger.Info("Serving metrics", zap.String("addr", flagMetricsAddr))
				}

				a.Logger.Info("Scheduler started",
					zap.String("time", sc.Time),
					zap.String("timezone", sc.Timezone))

				if err := daily.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				a.Logger.Info("Shutdown complete")
				return nil
			})
		},
	}
	c.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9109")
	return c
}

func metricsServer(addr string, observer *metrics.Observer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observer.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
