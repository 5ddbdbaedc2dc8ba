// Package database opens the postgres handles used by the repositories.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Handles bundles the two views over the same database: gorm for the
// membership history it migrates itself, and a lib/pq pool for the
// repositories that speak plain SQL.
type Handles struct {
	Gorm *gorm.DB
	SQL  *sql.DB
}

func (h *Handles) Close() error {
	var first error
	if h.SQL != nil {
		first = h.SQL.Close()
	}
	if h.Gorm != nil {
		if sqlDB, err := h.Gorm.DB(); err == nil {
			if err := sqlDB.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func Open(dsn string) (*Handles, error) {
	g, err := OpenGorm(dsn)
	if err != nil {
		return nil, err
	}
	s, err := OpenSQL(dsn)
	if err != nil {
		if gdb, derr := g.DB(); derr == nil {
			_ = gdb.Close()
		}
		return nil, err
	}
	return &Handles{Gorm: g, SQL: s}, nil
}

func OpenGorm(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB from gorm.DB: %w", err)
	}
	if err := configure(sqlDB); err != nil {
		return nil, err
	}
	return db, nil
}

func OpenSQL(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := configure(db); err != nil {
		return nil, err
	}
	return db, nil
}

func configure(db *sql.DB) error {
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("ping postgres connection: %w", err)
	}
	return nil
}
