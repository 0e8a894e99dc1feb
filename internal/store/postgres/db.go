// Package postgres implements the bookmarks table on PostgreSQL through gorm.
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/MrSnakeDoc/smartmark/internal/connect"
	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
)

// PoolOptions sizes the database/sql pool behind gorm.
type PoolOptions struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPool matches a small single-instance deployment.
var DefaultPool = PoolOptions{
	MaxIdleConns:    10,
	MaxOpenConns:    50,
	ConnMaxLifetime: time.Hour,
}

// printfWriter routes gorm's own log lines through our logger.
type printfWriter struct {
	log logger.Logger
}

func (w printfWriter) Printf(format string, args ...interface{}) {
	w.log.Infof(format, args...)
}

func newGormLogger(log logger.Logger, level string) gormlogger.Interface {
	lvl := gormlogger.Warn
	if level == "debug" {
		lvl = gormlogger.Info
	}
	return gormlogger.New(printfWriter{log: log}, gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
		Colorful:                  false,
	})
}

// Open connects to dsn, waits for the database to answer and migrates the
// bookmarks table.
func Open(ctx context.Context, dsn string, pool PoolOptions, policy connect.Policy, logLevel string, log logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(log, logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if err := connect.Retry(ctx, "postgres", redactDSN(dsn), policy, sqlDB.PingContext, log); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if err := db.WithContext(ctx).AutoMigrate(&domain.Bookmark{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate bookmarks table: %w", err)
	}

	return db, nil
}

// Close releases the underlying pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
