// Package history provides the database connection and job recording for the
// web service. It handles the connection to a PostgreSQL database and stores a
// row per processing job.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds the configuration for connecting to the PostgreSQL database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Job is one processing job outcome.
type Job struct {
	ID             string
	DocType        string
	Filename       string
	Status         string
	Pages          int
	MeanConfidence float64
	Duration       time.Duration
	Detail         string
}

// Job statuses.
const (
	StatusDone   = "done"
	StatusFailed = "failed"
)

type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Close()
}

// Manager manages the PostgreSQL database connection pool.
type Manager struct {
	dbpool dbPool
}

type options struct {
	newPool func(ctx context.Context, dsn string) (dbPool, error)
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// Connect establishes a connection to the PostgreSQL database using the provided configuration.
func Connect(ctx context.Context, cfg Config, args ...Options) (*Manager, error) {
	opts := options{
		newPool: func(ctx context.Context, dsn string) (dbPool, error) {
			return pgxpool.New(ctx, dsn)
		},
	}

	for _, opt := range args {
		opt(&opts)
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	dbpool, err := opts.newPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	slog.Info("Connected to PostgreSQL database", "host", cfg.Host, "port", cfg.Port)
	return &Manager{dbpool: dbpool}, nil
}

// Record inserts the job outcome into the jobs table.
func (db Manager) Record(ctx context.Context, job Job) error {
	_, err := db.dbpool.Exec(
		ctx,
		`INSERT INTO jobs (
			id,
			entry_time,
			doctype,
			filename,
			status,
			pages,
			mean_confidence,
			duration_ms,
			detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID,
		time.Now(),
		job.DocType,
		job.Filename,
		job.Status,
		job.Pages,
		job.MeanConfidence,
		job.Duration.Milliseconds(),
		job.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record job %s: %w", job.ID, err)
	}
	return nil
}

// Close closes the database connection pool.
func (db *Manager) Close() error {
	if db.dbpool == nil {
		return errors.New("database connection pool is already closed")
	}

	db.dbpool.Close()
	db.dbpool = nil
	return nil
}
