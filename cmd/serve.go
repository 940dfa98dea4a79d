package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/juliomeza/memory-card/internal/bot"
	"github.com/juliomeza/memory-card/internal/excel"
	"github.com/juliomeza/memory-card/internal/metrics"
	"github.com/juliomeza/memory-card/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot, the reminder scheduler and the metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		collector := metrics.NewCollector("memory_card")
		svc, err := a.reviewService("", collector)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := svc.Close(closeCtx); err != nil {
				a.logger.Warn("pending progress writes not flushed", zap.Error(err))
			}
		}()

		importer := excel.NewImporter(a.concepts, a.logger)
		b, err := bot.New(a.cfg.TelegramToken, svc, a.users, importer, a.cfg.AdminUserIDs, a.logger)
		if err != nil {
			return err
		}

		reminders := scheduler.New(a.users, svc, b, scheduler.Options{
			StartHour: a.cfg.NotificationStartHour,
			EndHour:   a.cfg.NotificationEndHour,
			Logger:    a.logger,
			Metrics:   collector,
		})
		b.SetReminderChecker(reminders)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return b.Run(ctx)
		})
		g.Go(func() error {
			return reminders.Run(ctx)
		})
		if a.cfg.MetricsAddr != "" {
			g.Go(func() error {
				return serveMetrics(ctx, a.cfg.MetricsAddr, collector, a.logger)
			})
		}

		a.logger.Info("memory-card started",
			zap.String("environment", a.cfg.Environment),
			zap.String("db_type", a.cfg.DBType),
		)
		err = g.Wait()
		a.logger.Info("memory-card stopped")
		return err
	},
}

func serveMetrics(ctx context.Context, addr string, collector *metrics.Collector, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "metrics server failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Wrap(srv.Shutdown(shutdownCtx), "failed to stop metrics server")
	}
}
