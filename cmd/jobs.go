package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-gym-payments/app/events"
	"github.com/vibast-solutions/ms-go-gym-payments/app/factory"
	"github.com/vibast-solutions/ms-go-gym-payments/app/service"
	"github.com/vibast-solutions/ms-go-gym-payments/config"
)

var (
	workerMode bool
)

type jobFunc func(ctx context.Context) error

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Ask the gateway about stale unverified live orders",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"reconcile",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ReconcileInterval },
			func(app *application) (jobFunc, func()) {
				return app.paymentService.RunReconcileBatch, nil
			},
		)
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Run expiration-related commands",
}

var expirePendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Cancel orders that stayed unpaid past the pending timeout",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"expire_pending",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ExpirePendingInterval },
			func(app *application) (jobFunc, func()) {
				return app.paymentService.RunExpirePendingBatch, nil
			},
		)
	},
}

var expireMembershipsCmd = &cobra.Command{
	Use:   "memberships",
	Short: "Deactivate members whose membership has ended",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"expire_memberships",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ExpireMembershipsInterval },
			func(app *application) (jobFunc, func()) {
				return app.paymentService.RunExpireMembershipsBatch, nil
			},
		)
	},
}

var refundsCmd = &cobra.Command{
	Use:   "refunds",
	Short: "Run refund related commands",
}

var refundsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Record how pending gateway refunds settled",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"refunds_sync",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.RefundSyncInterval },
			func(app *application) (jobFunc, func()) {
				return app.paymentService.RunRefundSyncBatch, nil
			},
		)
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Run payment event related commands",
}

var eventsDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Publish pending payment events to the message broker",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"events_dispatch",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.EventsDispatchInterval },
			newEventsDispatchJob,
		)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(expireCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(refundsCmd)
	expireCmd.AddCommand(expirePendingCmd)
	expireCmd.AddCommand(expireMembershipsCmd)
	eventsCmd.AddCommand(eventsDispatchCmd)
	refundsCmd.AddCommand(refundsSyncCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

type eventPublisher interface {
	service.EventPublisher
	Close() error
}

func newEventsDispatchJob(app *application) (jobFunc, func()) {
	var publisher eventPublisher
	if app.cfg.RabbitMQ.URL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(app.cfg.RabbitMQ.URL, app.cfg.RabbitMQ.Exchange)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to RabbitMQ")
		}
		publisher = amqpPublisher
	} else {
		logrus.Warn("RABBITMQ_URL not set, payment events are only logged")
		publisher = events.NewLogPublisher(factory.NewModuleLogger("payments-events-log"))
	}

	dispatcher := service.NewEventDispatcher(app.eventRepo, publisher, app.cfg.Payments)
	closer := func() {
		if err := publisher.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close event publisher")
		}
	}
	return dispatcher.RunDispatchBatch, closer
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	build func(app *application) (jobFunc, func()),
) {
	app := mustCreateApplication()
	defer app.close()

	fn, closer := build(app)
	if closer != nil {
		defer closer()
	}

	if workerMode {
		runWorker(name, intervalResolver(app.cfg), fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(ctx) })
}

func runWorker(name string, interval time.Duration, fn jobFunc) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
