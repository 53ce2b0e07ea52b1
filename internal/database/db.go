package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
)

// IsBusy reports whether err is SQLite lock contention worth retrying
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// FileName is the SQLite file created inside the data directory
const FileName = "teamsignal.db"

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool applies pool limits to db
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// NewDB opens (creating if needed) the snapshot database under dataDir
func NewDB(ctx context.Context, dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, FileName)
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pool := NewConnectionPool(db, 8, 4, 5*time.Minute)

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := database.initPreparedStatements(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Snapshot database initialized",
		"path", dbPath,
		"max_open_conns", pool.maxOpenConns)

	return database, nil
}

// migrate creates the snapshot tables
func (db *DB) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS skill_scores (
			id TEXT PRIMARY KEY,
			person_id TEXT NOT NULL,
			skill_key TEXT NOT NULL, -- lowercase skill name
			skill_name TEXT NOT NULL,
			level REAL NOT NULL,
			trend TEXT NOT NULL,
			trend_magnitude REAL NOT NULL,
			confidence REAL NOT NULL,
			evidence_count INTEGER NOT NULL,
			signals TEXT NOT NULL, -- JSON
			computed_at INTEGER NOT NULL -- unix nanoseconds
		)`,

		`CREATE TABLE IF NOT EXISTS risk_profiles (
			id TEXT PRIMARY KEY,
			team_id TEXT NOT NULL,
			person_id TEXT NOT NULL,
			average_sentiment REAL NOT NULL,
			sentiment_trend TEXT NOT NULL,
			trend_magnitude REAL NOT NULL,
			blocker_rate REAL NOT NULL,
			blocker_count INTEGER NOT NULL,
			risk_level TEXT NOT NULL,
			risk_score REAL NOT NULL,
			sample_count INTEGER NOT NULL,
			window_days INTEGER NOT NULL,
			confidence REAL NOT NULL,
			heuristic_count INTEGER NOT NULL,
			computed_at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_skill_scores_person ON skill_scores(person_id, skill_key, computed_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_profiles_person ON risk_profiles(person_id, computed_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

const (
	stmtInsertSkillScore  = "insert_skill_score"
	stmtInsertRiskProfile = "insert_risk_profile"
	stmtRiskHistory       = "risk_history"
)

// initPreparedStatements initializes frequently used prepared statements
func (db *DB) initPreparedStatements(ctx context.Context) error {
	statements := map[string]string{
		stmtInsertSkillScore: `INSERT INTO skill_scores (
			id, person_id, skill_key, skill_name, level, trend, trend_magnitude,
			confidence, evidence_count, signals, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		stmtInsertRiskProfile: `INSERT INTO risk_profiles (
			id, team_id, person_id, average_sentiment, sentiment_trend, trend_magnitude,
			blocker_rate, blocker_count, risk_level, risk_score, sample_count,
			window_days, confidence, heuristic_count, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		stmtRiskHistory: `SELECT id, team_id, person_id, average_sentiment, sentiment_trend, trend_magnitude,
			blocker_rate, blocker_count, risk_level, risk_score, sample_count,
			window_days, confidence, heuristic_count, computed_at
			FROM risk_profiles WHERE person_id = ?
			ORDER BY computed_at DESC, rowid DESC LIMIT ?`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes the prepared statements and the connection
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}
	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
