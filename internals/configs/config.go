package configs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/logger"
)

// =======================
// ENV LOADER
// =======================

// LoadEnv loads .env when running outside a managed environment.
func LoadEnv() {
	log := logger.WithComponent("configs")
	if os.Getenv("RAILWAY_ENVIRONMENT") != "" {
		log.Info().Msg("running in Railway, using system environment")
		return
	}
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, using system environment")
		return
	}
	log.Info().Msg(".env file loaded")
}

func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if (!exists || value == "") && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

func getEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// =======================
// CONFIG
// =======================

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	// StatementTimeout is passed to Postgres as statement_timeout.
	StatementTimeout time.Duration
	MaxOpenConns     int
	MaxIdleConns     int
}

type MpesaConfig struct {
	Enabled        bool
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	CallbackToken  string
}

type StripeConfig struct {
	Enabled       bool
	SecretKey     string
	WebhookSecret string
	Currency      string
}

type MidtransConfig struct {
	Enabled       bool
	ServerKey     string
	UseProduction bool
}

type Config struct {
	Port      string
	JWTSecret string
	Currency  string
	RedisURL  string

	CorsOrigins    []string
	RequestTimeout time.Duration
	// NodeID for snowflake; -1 derives it from the hostname
	NodeID int

	DB  DBConfig
	Log logger.LogConfig

	Mpesa    MpesaConfig
	Stripe   StripeConfig
	Midtrans MidtransConfig

	// default provider per method (mobile_money → mpesa, card → stripe)
	MobileMoneyProvider string
	CardProvider        string

	LockTimeout          time.Duration
	PaymentTimeout       time.Duration
	SweepTimeoutSchedule string
	SweepOverdueSchedule string
	WebhookMaxAttempts   int
	WebhookRetryBackoff  time.Duration
}

// Load reads the configuration from the environment. Call LoadEnv first.
func Load() *Config {
	return &Config{
		Port:      GetEnv("PORT", "3000"),
		JWTSecret: GetEnv("JWT_SECRET"),
		Currency:  strings.ToUpper(GetEnv("CURRENCY", "KES")),
		RedisURL:  GetEnv("REDIS_URL"),

		CorsOrigins:    splitList(GetEnv("CORS_ORIGINS")),
		RequestTimeout: getEnvDuration("HTTP_REQUEST_TIMEOUT", 5*time.Second),
		NodeID:         getEnvInt("NODE_ID", -1),

		DB: DBConfig{
			Host:             GetEnv("DB_HOST"),
			Port:             GetEnv("DB_PORT", "5432"),
			User:             GetEnv("DB_USER"),
			Password:         GetEnv("DB_PASSWORD"),
			Name:             GetEnv("DB_NAME"),
			SSLMode:          GetEnv("DB_SSLMODE", "require"),
			StatementTimeout: getEnvDuration("DB_STATEMENT_TIMEOUT", 3*time.Second),
			MaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 10),
		},
		Log: logger.LogConfig{
			Level:      GetEnv("LOG_LEVEL", "info"),
			Format:     GetEnv("LOG_FORMAT", "console"),
			TimeFormat: GetEnv("LOG_TIME_FORMAT", time.RFC3339),
			Output:     GetEnv("LOG_OUTPUT", "stdout"),
		},

		Mpesa: MpesaConfig{
			Enabled:        getEnvBool("MPESA_ENABLED", false),
			BaseURL:        GetEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:    GetEnv("MPESA_CONSUMER_KEY"),
			ConsumerSecret: GetEnv("MPESA_CONSUMER_SECRET"),
			ShortCode:      GetEnv("MPESA_SHORTCODE"),
			Passkey:        GetEnv("MPESA_PASSKEY"),
			CallbackURL:    GetEnv("MPESA_CALLBACK_URL"),
			CallbackToken:  GetEnv("MPESA_CALLBACK_TOKEN"),
		},
		Stripe: StripeConfig{
			Enabled:       getEnvBool("STRIPE_ENABLED", false),
			SecretKey:     GetEnv("STRIPE_SECRET_KEY"),
			WebhookSecret: GetEnv("STRIPE_WEBHOOK_SECRET"),
			Currency:      strings.ToLower(GetEnv("STRIPE_CURRENCY", "kes")),
		},
		Midtrans: MidtransConfig{
			Enabled:       getEnvBool("MIDTRANS_ENABLED", false),
			ServerKey:     GetEnv("MIDTRANS_SERVER_KEY"),
			UseProduction: getEnvBool("MIDTRANS_USE_PROD", false),
		},

		MobileMoneyProvider: GetEnv("MOBILE_MONEY_PROVIDER", "mpesa"),
		CardProvider:        GetEnv("CARD_PROVIDER", "stripe"),

		LockTimeout:          getEnvDuration("LEDGER_LOCK_TIMEOUT", 5*time.Second),
		PaymentTimeout:       getEnvDuration("PAYMENT_PENDING_TIMEOUT", 10*time.Minute),
		SweepTimeoutSchedule: GetEnv("SWEEP_TIMEOUT_SCHEDULE", "@every 1m"),
		SweepOverdueSchedule: GetEnv("SWEEP_OVERDUE_SCHEDULE", "@hourly"),
		WebhookMaxAttempts:   getEnvInt("WEBHOOK_MAX_ATTEMPTS", 5),
		WebhookRetryBackoff:  getEnvDuration("WEBHOOK_RETRY_BACKOFF", 2*time.Second),
	}
}

// Validate fails fast on settings the server cannot run without. Provider
// credentials are only required for enabled providers.
func (c *Config) Validate() error {
	var errs []error
	need := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	need("DB_HOST", c.DB.Host)
	need("DB_USER", c.DB.User)
	need("DB_NAME", c.DB.Name)
	need("JWT_SECRET", c.JWTSecret)

	if c.Mpesa.Enabled {
		need("MPESA_CONSUMER_KEY", c.Mpesa.ConsumerKey)
		need("MPESA_CONSUMER_SECRET", c.Mpesa.ConsumerSecret)
		need("MPESA_SHORTCODE", c.Mpesa.ShortCode)
		need("MPESA_PASSKEY", c.Mpesa.Passkey)
		need("MPESA_CALLBACK_URL", c.Mpesa.CallbackURL)
		need("MPESA_CALLBACK_TOKEN", c.Mpesa.CallbackToken)
	}
	if c.Stripe.Enabled {
		need("STRIPE_SECRET_KEY", c.Stripe.SecretKey)
		need("STRIPE_WEBHOOK_SECRET", c.Stripe.WebhookSecret)
	}
	if c.Midtrans.Enabled {
		need("MIDTRANS_SERVER_KEY", c.Midtrans.ServerKey)
	}
	if c.NodeID > 1023 {
		errs = append(errs, errors.New("NODE_ID must be between 0 and 1023"))
	}
	if c.WebhookMaxAttempts < 1 {
		errs = append(errs, errors.New("WEBHOOK_MAX_ATTEMPTS must be >= 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", finerr.ErrConfig, errors.Join(errs...))
	}
	return nil
}

// =======================
// GORM LOGGER CUSTOM
// =======================

type GormLogger struct {
	SlowThreshold time.Duration
	LogLevel      gormLogger.LogLevel
	log           zerolog.Logger
}

func NewGormLogger() gormLogger.Interface {
	return &GormLogger{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      gormLogger.Warn,
		log:           logger.WithComponent("gorm"),
	}
}

func (l *GormLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	nl := *l
	nl.LogLevel = level
	return &nl
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Info {
		l.log.Info().Msgf(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Warn {
		l.log.Warn().Msgf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Error {
		l.log.Error().Msgf(msg, data...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormLogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	file := utils.FileWithLineNum()

	switch {
	case err != nil && l.LogLevel >= gormLogger.Error && !errors.Is(err, gormLogger.ErrRecordNotFound):
		l.log.Error().Err(err).Str("file", file).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query failed")
	case elapsed > l.SlowThreshold && l.LogLevel >= gormLogger.Warn:
		l.log.Warn().Str("file", file).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("slow query")
	case l.LogLevel >= gormLogger.Info:
		l.log.Debug().Str("file", file).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query")
	}
}
