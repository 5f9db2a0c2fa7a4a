package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"

	"github.com/Abhinavsb985/Smart-Traffic-Control/config"
)

const (
	pingTimeout     = 3 * time.Second
	maxPingInterval = 30 * time.Second
)

// Database owns the MySQL connection pool shared by the table store, the
// object store and the auth provider.
type Database struct {
	db *sql.DB
}

// NewDatabase opens the pool and waits up to cfg.DBPingMaxWait for MySQL to
// answer, which covers a database container that is still starting.
func NewDatabase(cfg *config.Config) (*Database, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
	if cfg.DBConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DBPingMaxWait)
	defer cancel()
	if err := waitForPing(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"host":          cfg.DBHost,
		"db":            cfg.DBName,
		"max_open":      cfg.DBMaxOpenConns,
		"max_idle":      cfg.DBMaxIdleConns,
		"conn_lifetime": cfg.DBConnMaxLifetime.String(),
	}).Info("Database connected")

	return &Database{db: db}, nil
}

// waitForPing pings db with exponential backoff until it answers or ctx ends.
func waitForPing(ctx context.Context, db *sql.DB) error {
	interval := time.Second
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}

		log.WithError(err).WithField("attempt", attempt).Warnf("Database not ready, retrying in %v", interval)
		select {
		case <-ctx.Done():
			return fmt.Errorf("database not reachable after %d attempts: %w", attempt, err)
		case <-time.After(interval):
		}
		interval = min(interval*2, maxPingInterval)
	}
}

// DB returns the underlying pool.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// logResult logs the outcome of a write, warning when expectOne is set and
// the write did not touch exactly one row.
func logResult(op string, r sql.Result, e error, expectOne bool) {
	if e != nil {
		log.WithError(e).Errorf("%s: query failed", op)
		return
	}
	rows, err := r.RowsAffected()
	if err != nil {
		log.WithError(err).Errorf("%s: rows affected unavailable", op)
		return
	}
	if expectOne && rows != 1 {
		log.Warnf("%s: expected to affect 1 row, affected %d", op, rows)
	}
}
