package cmd

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-gym-payments/app/locker"
	"github.com/vibast-solutions/ms-go-gym-payments/app/pricing"
	"github.com/vibast-solutions/ms-go-gym-payments/app/provider"
	"github.com/vibast-solutions/ms-go-gym-payments/app/repository"
	"github.com/vibast-solutions/ms-go-gym-payments/app/service"
	"github.com/vibast-solutions/ms-go-gym-payments/config"
)

type application struct {
	cfg            *config.Config
	db             *sql.DB
	paymentService *service.PaymentService
	eventRepo      *repository.PaymentEventRepository
	closers        []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func mustCreateApplication() *application {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	app := &application{cfg: cfg}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}
	app.db = db
	app.closers = append(app.closers, func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	})

	calculator, err := newCalculator(cfg.Payments)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to parse discount codes")
	}

	app.eventRepo = repository.NewPaymentEventRepository(db)
	app.paymentService = service.NewPaymentService(
		service.Repositories{
			Payments: repository.NewPaymentRepository(db),
			Plans:    repository.NewPlanRepository(db),
			Members:  repository.NewMemberRepository(db),
			Refunds:  repository.NewRefundRepository(db),
		},
		service.NewSQLUnitOfWork(db),
		calculator,
		newGatewayRegistry(cfg),
		app.mustCreateLocker(),
		cfg.Payments,
	)

	return app
}

func newCalculator(cfg config.PaymentsConfig) (*pricing.Calculator, error) {
	if cfg.DiscountCodes == "" {
		return pricing.NewCalculator(pricing.DefaultDiscountTable()), nil
	}
	table, err := pricing.ParseDiscountTable(cfg.DiscountCodes)
	if err != nil {
		return nil, err
	}
	return pricing.NewCalculator(table), nil
}

func newGatewayRegistry(cfg *config.Config) *provider.Registry {
	if cfg.Razorpay.Configured() {
		logrus.WithField("key_id", cfg.Razorpay.KeyID).Info("Using Razorpay gateway")
		return provider.NewRegistry(provider.NewRazorpayGateway(provider.RazorpayConfig{
			KeyID:     cfg.Razorpay.KeyID,
			KeySecret: cfg.Razorpay.KeySecret,
		}))
	}

	logrus.Warn("Razorpay credentials missing, running in mock payment mode")
	return provider.NewRegistry(provider.NewMockGateway())
}

func (a *application) mustCreateLocker() service.Locker {
	if a.cfg.Redis.Addr == "" {
		logrus.Warn("REDIS_ADDR not set, payment locks are process-local")
		return service.NewMemoryLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		logrus.WithError(err).Fatal("Failed to ping redis")
	}

	a.closers = append(a.closers, func() {
		if err := client.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close redis client")
		}
	})
	return locker.NewRedisLocker(client, a.cfg.App.ServiceName+":")
}
