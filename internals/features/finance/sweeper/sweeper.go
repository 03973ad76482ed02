package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways"
	paymodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/reconciliation"
)

// PaymentReconciler is the part of the reconciliation engine the timeout
// sweep drives.
type PaymentReconciler interface {
	StalePayments(ctx context.Context, cutoff time.Time, limit int) ([]paymodel.Payment, error)
	PollPayment(ctx context.Context, paymentRef string, q gateways.StatusQuerier) (reconciliation.ApplyResult, error)
	TimeoutPayment(ctx context.Context, paymentRef string) (*paymodel.Payment, bool, error)
}

type OverdueMarker interface {
	SweepOverdue(ctx context.Context, limit int) (int, error)
}

type Config struct {
	// PaymentTimeout is how long a payment may stay open before it fails.
	PaymentTimeout time.Duration
	// PollAfter is the age at which the provider is asked for a status.
	PollAfter       time.Duration
	TimeoutSchedule string
	OverdueSchedule string
	Batch           int
	// JobTimeout bounds a single run of either job.
	JobTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PaymentTimeout <= 0 {
		c.PaymentTimeout = 10 * time.Minute
	}
	if c.PollAfter <= 0 {
		c.PollAfter = time.Minute
	}
	if c.PollAfter > c.PaymentTimeout {
		c.PollAfter = c.PaymentTimeout
	}
	if c.TimeoutSchedule == "" {
		c.TimeoutSchedule = "@every 1m"
	}
	if c.OverdueSchedule == "" {
		c.OverdueSchedule = "@hourly"
	}
	if c.Batch <= 0 {
		c.Batch = 100
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 4 * time.Minute
	}
	return c
}

type Sweeper struct {
	payments PaymentReconciler
	invoices OverdueMarker
	registry *gateways.Registry
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
}

func New(payments PaymentReconciler, invoices OverdueMarker, registry *gateways.Registry, cfg Config, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		payments: payments,
		invoices: invoices,
		registry: registry,
		cfg:      cfg.withDefaults(),
		log:      log.With().Str("component", "sweeper").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TimeoutReport summarises one pass of the timeout sweep.
type TimeoutReport struct {
	Scanned  int
	Resolved int
	TimedOut int
	Errors   int
}

// SweepTimeouts asks providers about open payments and fails the ones that
// stayed open past the configured timeout. One bad payment never stops the
// pass.
func (s *Sweeper) SweepTimeouts(ctx context.Context) (TimeoutReport, error) {
	var rep TimeoutReport
	now := s.now()

	rows, err := s.payments.StalePayments(ctx, now.Add(-s.cfg.PollAfter), s.cfg.Batch)
	if err != nil {
		return rep, err
	}
	deadline := now.Add(-s.cfg.PaymentTimeout)

	for i := range rows {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		p := &rows[i]
		rep.Scanned++

		if s.poll(ctx, p) {
			rep.Resolved++
			continue
		}
		if !p.PaymentRequestedAt.Before(deadline) {
			continue
		}
		timedOut, changed, err := s.payments.TimeoutPayment(ctx, p.PaymentReference)
		if err != nil {
			rep.Errors++
			s.log.Error().Err(err).Str("payment", p.PaymentReference).Msg("timeout failed")
			continue
		}
		if changed {
			rep.TimedOut++
			s.cancelCheckout(ctx, timedOut)
		}
	}

	if rep.Scanned > 0 {
		s.log.Info().
			Int("scanned", rep.Scanned).
			Int("resolved", rep.Resolved).
			Int("timed_out", rep.TimedOut).
			Int("errors", rep.Errors).
			Msg("timeout sweep done")
	}
	return rep, nil
}

// poll reports whether the provider gave a final answer that was applied.
func (s *Sweeper) poll(ctx context.Context, p *paymodel.Payment) bool {
	if p.PaymentStatus != paymodel.PaymentStatusPendingConfirmation || s.registry == nil {
		return false
	}
	adapter, ok := s.registry.Lookup(p.PaymentProvider)
	if !ok {
		return false
	}
	res, err := s.payments.PollPayment(ctx, p.PaymentReference, adapter)
	switch {
	case err == nil:
		return !res.Pending
	case errors.Is(err, finerr.ErrUnsupported):
		return false
	default:
		s.log.Warn().Err(err).Str("payment", p.PaymentReference).Str("provider", p.PaymentProvider).Msg("status query failed")
		return false
	}
}

// cancelCheckout closes the provider side of a timed-out payment so the payer
// cannot complete it later. Failures only cost a late confirmation.
func (s *Sweeper) cancelCheckout(ctx context.Context, p *paymodel.Payment) {
	if err := s.registry.CancelCheckout(ctx, p); err != nil {
		s.log.Warn().Err(err).Str("payment", p.PaymentReference).Str("provider", p.PaymentProvider).Msg("checkout cancel failed")
	}
}

// SweepOverdue flips unpaid invoices past their due date to overdue.
func (s *Sweeper) SweepOverdue(ctx context.Context) (int, error) {
	n, err := s.invoices.SweepOverdue(ctx, s.cfg.Batch*5)
	if err != nil {
		return n, err
	}
	if n > 0 {
		s.log.Info().Int("count", n).Msg("invoices marked overdue")
	}
	return n, nil
}

// Start schedules both sweeps. Runs of the same job never overlap. Stop the
// returned cron to end them.
func (s *Sweeper) Start(ctx context.Context) (*cron.Cron, error) {
	cl := cronLogger{log: s.log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	if _, err := c.AddFunc(s.cfg.TimeoutSchedule, func() {
		jctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
		if _, err := s.SweepTimeouts(jctx); err != nil {
			s.log.Error().Err(err).Msg("timeout sweep failed")
		}
	}); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(s.cfg.OverdueSchedule, func() {
		jctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
		if _, err := s.SweepOverdue(jctx); err != nil {
			s.log.Error().Err(err).Msg("overdue sweep failed")
		}
	}); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("timeouts", s.cfg.TimeoutSchedule).
		Str("overdue", s.cfg.OverdueSchedule).
		Dur("payment_timeout", s.cfg.PaymentTimeout).
		Msg("sweeper started")
	c.Start()
	return c, nil
}

// cronLogger routes robfig/cron's logging into zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
