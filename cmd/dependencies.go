package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/payment-reconciler/internal"
	"github.com/frahmantamala/payment-reconciler/internal/auth"
	authpostgres "github.com/frahmantamala/payment-reconciler/internal/auth/postgres"
	"github.com/frahmantamala/payment-reconciler/internal/core/events"
	"github.com/frahmantamala/payment-reconciler/internal/lock"
	"github.com/frahmantamala/payment-reconciler/internal/payment"
	paymentpostgres "github.com/frahmantamala/payment-reconciler/internal/payment/postgres"
	"github.com/frahmantamala/payment-reconciler/internal/paymentgateway"
	"github.com/frahmantamala/payment-reconciler/internal/paymentmethod"
	"github.com/frahmantamala/payment-reconciler/internal/publisher"
	"github.com/frahmantamala/payment-reconciler/pkg/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Dependencies is everything the server and the worker share.
type Dependencies struct {
	Config *internal.Config
	Logger *slog.Logger

	DB        *gorm.DB
	Merchants *sqlx.DB
	Redis     *redis.Client

	Bus     *events.EventBus
	Sink    publisher.Sink
	Gateway *paymentgateway.Paystack

	PaymentService       *payment.Service
	PaymentMethodService *paymentmethod.Service
	AuthService          *auth.Service
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.Configure(config.Observability.Logging.Level, config.Observability.Logging.Format)
	deps := &Dependencies{Config: config, Logger: log}

	if deps.DB, err = initDB(config.Database); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	sqlDB, err := deps.DB.DB()
	if err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	deps.Merchants = sqlx.NewDb(sqlDB, "pgx")

	locker, err := deps.initLocker(ctx)
	if err != nil {
		deps.Close(ctx)
		return nil, err
	}

	if deps.Sink, err = publisher.New(ctx, config.Events, log); err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize event sink: %w", err)
	}
	deps.Bus = events.NewEventBus(log)
	publisher.NewForwarder(deps.Sink, log).Register(deps.Bus)

	deps.Gateway = paymentgateway.NewPaystack(paymentgateway.PaystackConfig{
		Client: paymentgateway.Config{
			BaseURL:   config.Gateway.BaseURL,
			SecretKey: config.Gateway.SecretKey,
			Timeout:   config.Gateway.Timeout,
		},
		WebhookSecret:  config.Webhook.ResolveSecret(config.Gateway),
		WebhookSources: config.Webhook.SourceAllowList(),
	}, log)

	methods := paymentpostgres.NewPaymentMethodRepository(deps.DB)
	deps.PaymentMethodService = paymentmethod.NewService(methods, log)

	deps.PaymentService = payment.NewService(payment.Deps{
		Payments:       paymentpostgres.NewPaymentRepository(deps.DB),
		PaymentMethods: methods,
		WebhookEvents:  paymentpostgres.NewWebhookEventRepository(deps.DB),
		Gateway:        deps.Gateway,
		Publisher:      deps.Bus,
		Locker:         locker,
		Logger:         log,
	}, payment.Config{
		CallbackURL: config.Gateway.CallbackURL,
		Channels:    config.Gateway.Channels(),
		LockTimeout: config.Lock.WaitTimeout,
	})

	tokenGen, err := newTokenGenerator(config.Security)
	if err != nil {
		deps.Close(ctx)
		return nil, err
	}
	deps.AuthService = auth.NewService(authpostgres.NewMerchantRepository(deps.Merchants), tokenGen, config.Security.BCryptCost)

	return deps, nil
}

func (d *Dependencies) initLocker(ctx context.Context) (lock.Locker, error) {
	if d.Config.Lock.Driver != internal.LockDriverRedis {
		return lock.NewMemoryLocker(), nil
	}

	redisCfg := d.Config.Lock.Redis
	client, err := lock.NewRedisClient(ctx, redisCfg.Addr, redisCfg.Password, redisCfg.DB)
	if err != nil {
		return nil, err
	}
	d.Redis = client
	return lock.NewRedisLocker(client, d.Config.Lock.TTL, d.Logger), nil
}

func newTokenGenerator(cfg internal.SecurityConfig) (*auth.JWTTokenGenerator, error) {
	privateKey, err := cfg.GetPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load jwt private key: %w", err)
	}
	publicKey, err := cfg.GetPublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load jwt public key: %w", err)
	}
	return auth.NewJWTTokenGenerator(privateKey, publicKey, cfg.AccessTokenDuration), nil
}

// Close drains the event bus before closing the sink so queued events are
// not lost, then releases connections.
func (d *Dependencies) Close(ctx context.Context) {
	if d.Bus != nil {
		if err := d.Bus.Close(ctx); err != nil {
			d.Logger.Error("event bus close error", "error", err)
		}
	}
	if d.Sink != nil {
		if err := d.Sink.Close(); err != nil {
			d.Logger.Error("event sink close error", "error", err)
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if d.DB != nil {
		if sqlDB, err := d.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				d.Logger.Error("database close error", "error", err)
			}
		}
	}
}

// initDB opens the gorm connection used by the payment repositories.
// TranslateError maps unique violations to gorm.ErrDuplicatedKey.
func initDB(cfg internal.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Source), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
