package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/boazomare1/school-managementKE-sub001/internals/configs"
	database "github.com/boazomare1/school-managementKE-sub001/internals/databases"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways/manual"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways/midtrans"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways/mpesa"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways/stripe"
	invservice "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/service"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/ledger"
	paymodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
	payservice "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/service"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/reconciliation"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/sweeper"
	whservice "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/webhooks/service"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/idgen"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/logger"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/metrics"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/queue"
)

const retryQueueKey = "fees:webhook:retry"

// application holds every wired component; commands take what they need.
type application struct {
	cfg *configs.Config
	log zerolog.Logger

	db       *gorm.DB
	rdb      *redis.Client
	store    *ledger.Store
	invoices *invservice.Manager
	engine   *reconciliation.Engine
	registry *gateways.Registry
	payments *payservice.PaymentService
	retry    *whservice.RetryWorker
	ingress  *whservice.Ingress
	sweeper  *sweeper.Sweeper
	prom     *prometheus.Registry
}

func newApplication(ctx context.Context, cfg *configs.Config) (*application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &application{cfg: cfg, log: logger.WithComponent("app")}

	db, err := database.ConnectDB(cfg.DB)
	if err != nil {
		return nil, err
	}
	a.db = db

	a.prom = prometheus.NewRegistry()
	a.prom.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewRecorder(a.prom)

	a.store = ledger.NewStore(db, ledger.WithLockTimeout(cfg.LockTimeout))
	a.invoices = invservice.NewManager(a.store, invservice.NewSequenceGenerator(a.store),
		logger.WithComponent("invoices"), invservice.WithDefaultCurrency(cfg.Currency))
	a.engine = reconciliation.New(a.store, a.invoices, logger.WithComponent("reconciliation"),
		reconciliation.WithMetrics(rec))

	if a.registry, err = buildRegistry(cfg, a.log); err != nil {
		a.Close()
		return nil, err
	}

	node := int64(cfg.NodeID)
	if node < 0 {
		node = idgen.NodeFromHostname()
	}
	ids, err := idgen.New(node)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.payments = payservice.NewPaymentService(a.registry, a.engine, a.invoices, a.store, ids, logger.WithComponent("payments"))

	var q queue.Queue
	if cfg.RedisURL != "" {
		if a.rdb, err = queue.Connect(ctx, cfg.RedisURL); err != nil {
			a.Close()
			return nil, err
		}
		q = queue.NewRedis(a.rdb, retryQueueKey)
		a.log.Info().Msg("webhook retry queue: redis")
	} else {
		q = queue.NewMemory(10_000)
		a.log.Warn().Msg("REDIS_URL not set, webhook retries are kept in memory")
	}
	a.retry = whservice.NewRetryWorker(q, a.engine, a.store, whservice.RetryConfig{
		MaxAttempts: cfg.WebhookMaxAttempts,
		Backoff:     cfg.WebhookRetryBackoff,
	}, rec, logger.WithComponent("webhook-retry"))
	a.ingress = whservice.NewIngress(a.registry, a.store, a.engine, a.retry, rec, logger.WithComponent("webhooks"))

	a.sweeper = sweeper.New(a.engine, a.invoices, a.registry, sweeper.Config{
		PaymentTimeout:  cfg.PaymentTimeout,
		TimeoutSchedule: cfg.SweepTimeoutSchedule,
		OverdueSchedule: cfg.SweepOverdueSchedule,
	}, logger.WithComponent("sweeper"))

	return a, nil
}

// buildRegistry registers manual plus every enabled provider, then applies
// the configured default per method.
func buildRegistry(cfg *configs.Config, log zerolog.Logger) (*gateways.Registry, error) {
	reg := gateways.NewRegistry()
	reg.Register(manual.New())

	if cfg.Mpesa.Enabled {
		a, err := mpesa.New(mpesa.Config{
			BaseURL:        cfg.Mpesa.BaseURL,
			ConsumerKey:    cfg.Mpesa.ConsumerKey,
			ConsumerSecret: cfg.Mpesa.ConsumerSecret,
			ShortCode:      cfg.Mpesa.ShortCode,
			Passkey:        cfg.Mpesa.Passkey,
			CallbackURL:    cfg.Mpesa.CallbackURL,
			CallbackToken:  cfg.Mpesa.CallbackToken,
		})
		if err != nil {
			return nil, err
		}
		reg.Register(a)
	}
	if cfg.Stripe.Enabled {
		a, err := stripe.New(stripe.Config{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Currency:      cfg.Stripe.Currency,
		})
		if err != nil {
			return nil, err
		}
		reg.Register(a)
	}
	if cfg.Midtrans.Enabled {
		a, err := midtrans.New(midtrans.Config{
			ServerKey:     cfg.Midtrans.ServerKey,
			UseProduction: cfg.Midtrans.UseProduction,
			Expiry:        cfg.PaymentTimeout,
		})
		if err != nil {
			return nil, err
		}
		reg.Register(a)
	}

	defaults := map[paymodel.PaymentMethod]string{
		paymodel.PaymentMethodMobileMoney: cfg.MobileMoneyProvider,
		paymodel.PaymentMethodCard:        cfg.CardProvider,
	}
	for method, provider := range defaults {
		if provider == "" {
			continue
		}
		if _, ok := reg.Lookup(provider); !ok {
			log.Warn().Str("method", string(method)).Str("provider", provider).Msg("default provider not enabled")
			continue
		}
		if err := reg.SetDefault(method, provider); err != nil {
			return nil, fmt.Errorf("default provider for %s: %w", method, err)
		}
	}
	log.Info().Strs("providers", reg.Names()).Msg("payment providers registered")
	return reg, nil
}

func (a *application) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
