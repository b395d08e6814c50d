package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("not found")

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	// Immediate transactions take the write lock at BEGIN, so concurrent
	// duplicate deliveries queue on busy_timeout instead of failing with a
	// stale-snapshot error on upgrade.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			amount NUMERIC,
			currency TEXT,
			provider_status TEXT,
			event_type TEXT,
			raw TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_created_at ON payments(created_at)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// SavePayment inserts a record unless a row with the same id already exists.
// Returns true when a row was inserted. A record without an id cannot be
// deduplicated and is skipped without error. Concurrent duplicate deliveries
// are resolved by the primary key: a constraint violation on insert means
// another delivery won the race and is reported as "already exists".
func (s *Storage) SavePayment(ctx context.Context, rec *Record) (bool, error) {
	if rec.ID == "" {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM payments WHERE id = ?)",
		rec.ID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments (id, amount, currency, provider_status, event_type, raw, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, decimalString(rec.Amount), nullString(rec.Currency),
		nullString(rec.ProviderStatus), nullString(rec.EventType),
		string(rec.Raw), now,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return false, nil
		}
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	rec.CreatedAt = time.Unix(now, 0)
	return true, nil
}

// GetPayment returns a record by id
func (s *Storage) GetPayment(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, amount, currency, provider_status, event_type, raw, created_at
		 FROM payments WHERE id = ?`,
		id,
	)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListPayments returns up to limit records, newest first
func (s *Storage) ListPayments(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, amount, currency, provider_status, event_type, raw, created_at
		 FROM payments ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec       Record
		amount    sql.NullString
		currency  sql.NullString
		status    sql.NullString
		eventType sql.NullString
		raw       sql.NullString
		createdAt int64
	)

	err := row.Scan(&rec.ID, &amount, &currency, &status, &eventType, &raw, &createdAt)
	if err != nil {
		return nil, err
	}

	if amount.Valid {
		if d, err := decimal.NewFromString(amount.String); err == nil {
			rec.Amount = &d
		}
	}
	rec.Currency = currency.String
	rec.ProviderStatus = status.String
	rec.EventType = eventType.String
	if raw.Valid {
		rec.Raw = []byte(raw.String)
	}
	rec.CreatedAt = time.Unix(createdAt, 0)

	return &rec, nil
}

func decimalString(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
