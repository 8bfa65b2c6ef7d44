// Package store reads source datasets from and writes processed datasets to
// a SQL database through gorm. SQLite and PostgreSQL are supported.
package store

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ErrInvalidData reports loaded rows that cannot serve the requested model
// kind, such as a binary target with a single class.
var ErrInvalidData = errors.New("store: invalid data")

// DefaultBatchSize is the number of rows written per INSERT.
const DefaultBatchSize = 1000

// Open connects to the database. driver is "sqlite" or "postgres".
func Open(driver, dsn string, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger(logger.Named("sql"))})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	return db, nil
}
