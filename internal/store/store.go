// Package store provides the single-writer SQLite state database for
// mailtriage: accounts, messages, threads, triage state, and run logs.
package store

import (
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaFS embed.FS

// TimeLayout is the canonical UTC timestamp format for all stored
// timestamps. Lexical order equals temporal order, so string comparison
// in SQL is safe.
const TimeLayout = "2006-01-02T15:04:05Z"

// ErrSchemaMismatch means the database was created by a build with a
// different frozen schema. It is fatal: the caller must not proceed.
var ErrSchemaMismatch = errors.New("database schema hash mismatch")

const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=1"

// Store wraps the SQLite connection.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates the database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+defaultSQLiteParams)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection for advanced queries (tests).
func (s *Store) DB() *sql.DB {
	return s.db
}

// SchemaHash returns the hex SHA-256 of the canonical schema text.
func SchemaHash() string {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		// The schema is embedded at build time; missing it is a build defect.
		panic(fmt.Sprintf("read embedded schema: %v", err))
	}
	sum := sha256.Sum256(schema)
	return hex.EncodeToString(sum[:])
}

// Init creates the schema if absent and records the schema version, schema
// hash, timezone, and workday start in the meta table. Meta keys are
// first-writer-wins: an existing value is never overwritten, so a later
// build cannot silently rebrand an incompatible database. If the database
// was created by a build with a different schema hash, Init fails before
// performing any write.
func (s *Store) Init(timezone, workdayStart string) error {
	stored, ok, err := s.storedSchemaHash()
	if err != nil {
		return err
	}
	if ok && stored != SchemaHash() {
		return fmt.Errorf("%w: refusing to modify a database created by an "+
			"incompatible build", ErrSchemaMismatch)
	}

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("execute schema.sql: %w", err)
	}

	metaDefaults := [][2]string{
		{"schema_version", "1"},
		{"schema_hash", SchemaHash()},
		{"timezone", timezone},
		{"workday_start", workdayStart},
	}
	for _, kv := range metaDefaults {
		if _, err := s.db.Exec(
			`INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)`, kv[0], kv[1],
		); err != nil {
			return fmt.Errorf("set meta %s: %w", kv[0], err)
		}
	}
	return nil
}

// VerifySchema compares the stored schema hash against this build's schema.
// A mismatch is fatal and non-recoverable; the database must not be touched.
func (s *Store) VerifySchema() error {
	stored, ok, err := s.storedSchemaHash()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: database missing schema_hash meta key", ErrSchemaMismatch)
	}
	if stored != SchemaHash() {
		return fmt.Errorf("%w: database was created by an incompatible build; "+
			"create a new database or use a matching build", ErrSchemaMismatch)
	}
	return nil
}

// storedSchemaHash reads the schema hash recorded in meta. ok is false when
// the database has never been initialized.
func (s *Store) storedSchemaHash() (stored string, ok bool, err error) {
	var n int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'meta'`,
	).Scan(&n); err != nil {
		return "", false, fmt.Errorf("inspect meta table: %w", err)
	}
	if n == 0 {
		return "", false, nil
	}
	err = s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_hash'`).Scan(&stored)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read schema_hash: %w", err)
	}
	return stored, true, nil
}

// Tx exposes the write operations that must share one transaction.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a transaction. If fn returns an error the whole
// transaction rolls back, leaving previously committed runs untouched.
func (s *Store) WithTx(fn func(*Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// AppendRunLog records that a window was processed. Append-only bookkeeping.
func (t *Tx) AppendRunLog(startUTC, endUTC time.Time) error {
	_, err := t.tx.Exec(
		`INSERT INTO run_log (start_utc, end_utc, recorded_at_utc) VALUES (?, ?, ?)`,
		startUTC.UTC().Format(TimeLayout),
		endUTC.UTC().Format(TimeLayout),
		time.Now().UTC().Format(TimeLayout),
	)
	if err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}

// FormatTime renders t in the canonical stored layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a stored timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}
