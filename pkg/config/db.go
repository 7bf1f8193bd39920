package config

import (
	"fmt"
	"time"

	"provider-messaging/backend/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func dialector(cfg *Config) (gorm.Dialector, error) {
	switch cfg.Database.Driver {
	case "postgres", "":
		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.Name,
			cfg.Database.SSLMode,
		)
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(cfg.Database.SQLitePath), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// NewDB opens the configured database, retrying while it comes up, and
// applies pool settings. Duplicate-key errors are translated to
// gorm.ErrDuplicatedKey.
func NewDB(cfg *Config, log *logger.Logger) (*gorm.DB, error) {
	dial, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{TranslateError: true}
	if cfg.IsDevelopment() {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	} else {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Error)
	}

	retries := max(cfg.Database.Retries, 1)
	var db *gorm.DB
	for i := 0; i < retries; i++ {
		db, err = gorm.Open(dial, gormConfig)
		if err == nil {
			break
		}
		log.Warn("database not reachable, retrying",
			"driver", cfg.Database.Driver,
			"attempt", i+1,
			"delay", cfg.Database.RetryDelay.String(),
			"error", err.Error(),
		)
		time.Sleep(cfg.Database.RetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d retries: %w", retries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	if cfg.Database.Driver == "sqlite" {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(cfg.Database.MaxConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	return db, nil
}

// TestConnection checks if the database connection is working
func TestConnection(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
