// Package sqlite provides a SQLite-backed audit store for conflict
// resolution records.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"
	"sync"
	"time"

	mergeErrors "github.com/Havanyani/go-merge-kit/errors"
	"github.com/Havanyani/go-merge-kit/logging"
	"github.com/Havanyani/go-merge-kit/mergekit"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// ErrStoreClosed is returned when an operation is attempted on a closed store.
var ErrStoreClosed = errors.New("store is closed")

// Config holds configuration options for the AuditStore.
//
// Production-ready defaults are applied by DefaultConfig() including:
//   - WAL mode enabled for better concurrency
//   - A 5 second busy timeout and NORMAL synchronous mode
//   - Connection pool with 25 max open, 5 max idle connections
//   - Connection lifetimes of 1 hour max, 5 minutes max idle
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	// Example: "file:audit.db?_journal_mode=WAL"
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging mode for better concurrency.
	// This is recommended for production use and is enabled by default.
	// When true, "_journal_mode=WAL" is appended to DataSourceName unless
	// the DSN already pins a journal mode.
	EnableWAL bool

	// BusyTimeout is how long a connection waits on a locked database
	// before giving up. Applied per connection through the DSN so every
	// pooled connection inherits it. Defaults to 5 seconds.
	BusyTimeout time.Duration

	// Synchronous sets the SQLite synchronous mode for every connection.
	// Defaults to "NORMAL", which pairs well with WAL.
	Synchronous string

	// Logger is an optional logger for logging internal operations and errors.
	// If nil, logging is disabled by default (logs to io.Discard).
	Logger *log.Logger

	// TableName is the name of the table holding resolution records.
	// Must be a plain identifier. Defaults to "resolutions" if empty.
	TableName string

	// Connection pool settings for production workloads.
	// Defaults: MaxOpen=25, MaxIdle=5, Lifetime=1h, IdleTime=5m
	MaxOpenConns    int           // Default: 25 - Maximum number of open connections
	MaxIdleConns    int           // Default: 5  - Maximum number of idle connections
	ConnMaxLifetime time.Duration // Default: 1h - Maximum lifetime of connections
	ConnMaxIdleTime time.Duration // Default: 5m - Maximum idle time before closing
}

// setDefaults applies default values to the config
func (c *Config) setDefaults() {
	if c.TableName == "" {
		c.TableName = "resolutions"
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard, "", 0) // Disable logging by default
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.Synchronous == "" {
		c.Synchronous = "NORMAL"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.DataSourceName != "" {
		if c.EnableWAL && !strings.Contains(c.DataSourceName, "_journal_mode=") {
			c.DataSourceName = appendDSNParam(c.DataSourceName, "_journal_mode=WAL")
		}
		if !strings.Contains(c.DataSourceName, "_busy_timeout=") {
			c.DataSourceName = appendDSNParam(c.DataSourceName, fmt.Sprintf("_busy_timeout=%d", c.BusyTimeout.Milliseconds()))
		}
		if !strings.Contains(c.DataSourceName, "_synchronous=") {
			c.DataSourceName = appendDSNParam(c.DataSourceName, "_synchronous="+c.Synchronous)
		}
	}
}

func appendDSNParam(dsn, param string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}

// NewWithDataSource is a convenience constructor
func NewWithDataSource(dataSourceName string) (*AuditStore, error) {
	config := DefaultConfig(dataSourceName)
	return New(config)
}

// DefaultConfig returns a Config with production-ready defaults for SQLite.
//
// Default settings include:
//   - WAL mode enabled for better concurrency
//   - Busy timeout of 5 seconds, synchronous mode NORMAL
//   - Connection pool: 25 max open, 5 max idle connections
//   - Connection lifetime: 1 hour max, 5 minutes max idle
//   - Table name: "resolutions"
//   - Logging disabled (to io.Discard)
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		// Enable WAL mode by default for production readiness
		EnableWAL: true,
	}
	config.setDefaults()
	return config
}

// AuditStore implements the mergekit.Caretaker interface on SQLite. Each
// resolution record occupies one row: the filterable columns are split
// out, the full record rides along as JSON.
type AuditStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	closed    bool
	logger    *log.Logger
	tableName string
}

// Compile-time check to ensure AuditStore satisfies the Caretaker interface
var _ mergekit.Caretaker = (*AuditStore)(nil)

// New creates a new AuditStore from a Config.
// If config is nil, an error is returned.
func New(config *Config) (*AuditStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	// Apply defaults
	config.setDefaults()

	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}

	logger := logging.WithComponent(logging.Component("sqlite-audit"))
	logger.InfoContext(context.Background(), "Opening SQLite audit store",
		slog.String("data_source", config.DataSourceName),
		slog.Bool("wal_enabled", config.EnableWAL),
	)

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	logger.InfoContext(context.Background(), "Connection pool configured",
		slog.Int("max_open_conns", config.MaxOpenConns),
		slog.Int("max_idle_conns", config.MaxIdleConns),
		slog.Duration("conn_max_lifetime", config.ConnMaxLifetime),
		slog.Duration("conn_max_idle_time", config.ConnMaxIdleTime),
	)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	store := &AuditStore{
		db:        db,
		logger:    config.Logger,
		tableName: config.TableName,
	}

	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}

	logger.InfoContext(context.Background(), "SQLite audit store initialized",
		slog.String("table_name", config.TableName),
	)
	return store, nil
}

// setupSchema creates the resolutions table if it doesn't exist.
func (s *AuditStore) setupSchema() error {
	query := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %[1]s (
        seq          INTEGER PRIMARY KEY AUTOINCREMENT,
        id           TEXT NOT NULL UNIQUE,
        case_id      TEXT NOT NULL,
        entity_type  TEXT NOT NULL,
        decision     TEXT NOT NULL,
        user_id      TEXT,
        recorded_at  INTEGER NOT NULL,
        record       TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_%[1]s_case_id ON %[1]s (case_id);
    CREATE INDEX IF NOT EXISTS idx_%[1]s_entity_type ON %[1]s (entity_type);
    CREATE INDEX IF NOT EXISTS idx_%[1]s_recorded_at ON %[1]s (recorded_at);
    `, s.tableName)
	_, err := s.db.Exec(query)
	return err
}

// upsertQuery is shared by Save and SaveBatch. Saving an ID that already
// exists replaces the stored record, matching the in-memory caretaker.
func (s *AuditStore) upsertQuery() string {
	return fmt.Sprintf(`INSERT INTO %s (id, case_id, entity_type, decision, user_id, recorded_at, record)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            case_id = excluded.case_id,
            entity_type = excluded.entity_type,
            decision = excluded.decision,
            user_id = excluded.user_id,
            recorded_at = excluded.recorded_at,
            record = excluded.record`, s.tableName)
}

// Save stores a resolution record.
func (s *AuditStore) Save(ctx context.Context, rec *mergekit.ResolutionRecord) error {
	// Check for context cancellation at start
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	if rec == nil {
		return fmt.Errorf("resolution record cannot be nil")
	}
	if rec.ID == "" {
		return fmt.Errorf("resolution record ID cannot be empty")
	}

	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return mergeErrors.NewStorageError(mergeErrors.OpAuditSave, err)
	}

	// Begin transaction for atomicity
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mergeErrors.NewStorageError(mergeErrors.OpAuditSave, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, s.upsertQuery(),
		rec.ID, rec.CaseID, rec.EntityType, rec.Decision, rec.UserID,
		rec.Timestamp.UnixNano(), string(recordJSON))
	if err != nil {
		return mergeErrors.NewStorageError(mergeErrors.OpAuditSave, err)
	}

	if err = tx.Commit(); err != nil {
		return mergeErrors.NewStorageError(mergeErrors.OpAuditSave, err)
	}

	return nil
}

// Get retrieves a specific record by ID.
func (s *AuditStore) Get(ctx context.Context, id string) (*mergekit.ResolutionRecord, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	s.mu.RUnlock()

	query := fmt.Sprintf(`SELECT record FROM %s WHERE id = ?`, s.tableName)

	var recordJSON string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&recordJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, mergekit.ErrRecordNotFound)
	}
	if err != nil {
		return nil, mergeErrors.NewStorageError(mergeErrors.OpAuditLoad, err)
	}

	var rec mergekit.ResolutionRecord
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, mergeErrors.NewStorageError(mergeErrors.OpAuditLoad, err)
	}
	return &rec, nil
}

// List retrieves records matching the criteria, newest last. Limit and
// offset paginate over the (recorded_at, id) ordering, which matches the
// in-memory caretaker.
func (s *AuditStore) List(ctx context.Context, criteria *mergekit.Criteria) ([]*mergekit.ResolutionRecord, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	s.mu.RUnlock()

	where, args := criteriaWhere(criteria)
	query := fmt.Sprintf(`SELECT record FROM %s%s ORDER BY recorded_at ASC, id ASC LIMIT ? OFFSET ?`, s.tableName, where)

	// SQLite requires a LIMIT clause to accept OFFSET; -1 means unlimited.
	limit, offset := -1, 0
	if criteria != nil {
		if criteria.Limit > 0 {
			limit = criteria.Limit
		}
		if criteria.Offset > 0 {
			offset = criteria.Offset
		}
	}
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mergeErrors.NewStorageError(mergeErrors.OpAuditLoad, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Delete removes a record by ID.
func (s *AuditStore) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.tableName)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return mergeErrors.NewStorageError(mergeErrors.OpAuditSave, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return mergeErrors.NewStorageError(mergeErrors.OpAuditSave, err)
	}
	if affected == 0 {
		return fmt.Errorf("record %s: %w", id, mergekit.ErrRecordNotFound)
	}
	return nil
}

// AuditTrail returns the complete audit trail for one conflict case in
// chronological order.
func (s *AuditStore) AuditTrail(ctx context.Context, caseID string) ([]*mergekit.ResolutionRecord, error) {
	return s.List(ctx, &mergekit.Criteria{CaseID: caseID})
}

// Close closes the database connection.
func (s *AuditStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// SaveBatch stores multiple resolution records in a single transaction,
// e.g. when importing an audit trail from another node. The batch is
// atomic: one bad record rolls back the whole import.
func (s *AuditStore) SaveBatch(ctx context.Context, recs []*mergekit.ResolutionRecord) error {
	// Check context deadline
	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) < time.Second {
			return fmt.Errorf("context deadline too close: %v remaining", time.Until(deadline))
		}
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	if len(recs) == 0 {
		return nil // Nothing to store
	}

	// Begin transaction for atomicity
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mergeErrors.NewStorageError(mergeErrors.OpAuditSave, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// Prepare statement for batch inserts
	stmt, err := tx.PrepareContext(ctx, s.upsertQuery())
	if err != nil {
		return mergeErrors.NewStorageError(mergeErrors.OpAuditSave, err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if rec == nil || rec.ID == "" {
			err = fmt.Errorf("resolution record ID cannot be empty")
			return err
		}

		var recordJSON []byte
		recordJSON, err = json.Marshal(rec)
		if err != nil {
			err = mergeErrors.NewStorageError(mergeErrors.OpAuditSave, err)
			return err
		}

		_, err = stmt.ExecContext(ctx,
			rec.ID, rec.CaseID, rec.EntityType, rec.Decision, rec.UserID,
			rec.Timestamp.UnixNano(), string(recordJSON))
		if err != nil {
			err = mergeErrors.NewStorageError(mergeErrors.OpAuditSave, err)
			return err
		}
	}

	// Commit the transaction
	if err = tx.Commit(); err != nil {
		return mergeErrors.NewStorageError(mergeErrors.OpAuditSave, err)
	}

	return nil
}

// Stats returns database statistics for monitoring
func (s *AuditStore) Stats() sql.DBStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return sql.DBStats{}
	}

	return s.db.Stats()
}
