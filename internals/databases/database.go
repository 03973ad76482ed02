package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/boazomare1/school-managementKE-sub001/internals/configs"
	invmodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/model"
	paymodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/logger"
)

// ConnectDB opens the Postgres pool. statement_timeout rides on the DSN so
// every session (including PgBouncer transaction pooling) gets it.
func ConnectDB(cfg configs.DBConfig) (*gorm.DB, error) {
	log := logger.WithComponent("database")
	log.Info().Str("host", cfg.Host).Str("db", cfg.Name).Msg("connecting to PostgreSQL")

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  buildDSN(cfg),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:  configs.NewGormLogger(),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := TunePool(db, cfg); err != nil {
		return nil, err
	}
	log.Info().Msg("DB connected")
	return db, nil
}

func buildDSN(cfg configs.DBConfig) string {
	q := url.Values{}
	q.Set("sslmode", cfg.SSLMode)
	q.Set("application_name", "school-finance")
	if cfg.StatementTimeout > 0 {
		q.Set("options", fmt.Sprintf("-c statement_timeout=%d", cfg.StatementTimeout.Milliseconds()))
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + cfg.Port,
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func TunePool(db *gorm.DB, cfg configs.DBConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("pool tune: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxIdleTime(60 * time.Second)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
	return nil
}

// WarmUp fills the pool in the background so the first requests do not pay
// for new connections.
func WarmUp(ctx context.Context, db *gorm.DB) {
	go func() {
		log := logger.WithComponent("database")
		if err := Ping(ctx, db); err != nil {
			log.Warn().Err(err).Msg("warm-up ping failed")
			return
		}
		// cheap query on the hottest path (payment lookup by reference)
		var n int64
		if err := db.WithContext(ctx).Table("payments").Limit(1).Count(&n).Error; err != nil {
			log.Warn().Err(err).Msg("warm-up query failed")
		}
	}()
}

// Ping is used by the health endpoint.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// Models lists every table owned by the finance core, in dependency order.
func Models() []any {
	return []any{
		&invmodel.InvoiceSequence{},
		&invmodel.Invoice{},
		&paymodel.Payment{},
		&paymodel.PaymentGatewayEventModel{},
		&paymodel.PaymentAudit{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
