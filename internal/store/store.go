// Package store reads businesses, issuers and receipts from the SQLite
// database (WAL mode) for printing.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/Tabonx/papyrus/internal/receipt"
)

// DB wraps *sql.DB with domain helpers.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the SQLite file at path with WAL journal mode.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000", path)
	raw, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := raw.Ping(); err != nil {
		raw.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	raw.SetMaxOpenConns(1)
	return &DB{raw}, nil
}

// Migrate applies the DDL schema to the database.
// It is idempotent (IF NOT EXISTS everywhere).
func Migrate(db *DB) error {
	ddl := []string{
		ddlBusinesses,
		ddlIssuers,
		ddlReceipts,
		ddlReceiptItems,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// Compile-time check that DB serves the formatter's lookups.
var _ receipt.Lookup = (*DB)(nil)

// Business returns the business with id, or an error wrapping
// receipt.ErrNotFound.
func (db *DB) Business(ctx context.Context, id uuid.UUID) (*receipt.BusinessInfo, error) {
	var (
		b                       receipt.BusinessInfo
		address, email, website sql.NullString
	)
	err := db.QueryRowContext(ctx,
		`SELECT id, name, address, email, website FROM businesses WHERE id = ?`, id.String(),
	).Scan(&b.ID, &b.Name, &address, &email, &website)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: business %s: %w", id, receipt.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: business %s: %w", id, err)
	}
	b.Address, b.Email, b.Website = address.String, email.String, website.String
	return &b, nil
}

// Issuer returns the issuer with id, or an error wrapping
// receipt.ErrNotFound.
func (db *DB) Issuer(ctx context.Context, id uuid.UUID) (*receipt.IssuerInfo, error) {
	var iss receipt.IssuerInfo
	err := db.QueryRowContext(ctx,
		`SELECT id, name FROM issuers WHERE id = ?`, id.String(),
	).Scan(&iss.ID, &iss.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: issuer %s: %w", id, receipt.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: issuer %s: %w", id, err)
	}
	return &iss, nil
}

const receiptColumns = `id, number, issued_at, legal_performance_at, payment_method,
       footer_text, issued_by, business_id, issuer_id`

// Receipt returns the receipt with id and its items.
func (db *DB) Receipt(ctx context.Context, id uuid.UUID) (*receipt.Record, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+receiptColumns+` FROM receipts WHERE id = ?`, id.String())
	r, err := db.scanReceipt(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("store: receipt %s: %w", id, err)
	}
	return r, nil
}

// ReceiptByNumber returns the receipt with the given receipt number.
func (db *DB) ReceiptByNumber(ctx context.Context, number string) (*receipt.Record, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+receiptColumns+` FROM receipts WHERE number = ?`, number)
	r, err := db.scanReceipt(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("store: receipt %q: %w", number, err)
	}
	return r, nil
}

func (db *DB) scanReceipt(ctx context.Context, row *sql.Row) (*receipt.Record, error) {
	var (
		r                receipt.Record
		issuedAt         int64
		performedAt      sql.NullInt64
		footer, issuedBy sql.NullString
	)
	err := row.Scan(&r.ID, &r.Number, &issuedAt, &performedAt, &r.PaymentMethod,
		&footer, &issuedBy, &r.BusinessID, &r.IssuerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, receipt.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.IssuedDate = time.Unix(issuedAt, 0)
	if performedAt.Valid {
		t := time.Unix(performedAt.Int64, 0)
		r.LegalPerformanceDate = &t
	}
	r.FooterText, r.IssuedBy = footer.String, issuedBy.String

	items, err := db.receiptItems(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.Items = items
	return &r, nil
}

func (db *DB) receiptItems(ctx context.Context, receiptID uuid.UUID) ([]receipt.Item, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name, unit_price, quantity, tax_rate, sort_order
		   FROM receipt_items WHERE receipt_id = ? ORDER BY sort_order`, receiptID.String())
	if err != nil {
		return nil, fmt.Errorf("items: %w", err)
	}
	defer rows.Close()

	var items []receipt.Item
	for rows.Next() {
		var it receipt.Item
		if err := rows.Scan(&it.Name, &it.UnitPrice, &it.Quantity, &it.TaxRate, &it.Order); err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("items: %w", err)
	}
	return items, nil
}

// ── DDL statements ────────────────────────────────────────────────────────

const ddlBusinesses = `
CREATE TABLE IF NOT EXISTS businesses (
    id      TEXT PRIMARY KEY,              -- UUID
    name    TEXT NOT NULL,
    address TEXT,
    email   TEXT,
    website TEXT
);
`

const ddlIssuers = `
CREATE TABLE IF NOT EXISTS issuers (
    id   TEXT PRIMARY KEY,                 -- UUID
    name TEXT NOT NULL
);
`

const ddlReceipts = `
CREATE TABLE IF NOT EXISTS receipts (
    id                   TEXT    PRIMARY KEY,   -- UUID
    number               TEXT    NOT NULL UNIQUE,
    issued_at            INTEGER NOT NULL,      -- Unix seconds
    legal_performance_at INTEGER,               -- Unix seconds
    payment_method       TEXT    NOT NULL DEFAULT 'cash',
    footer_text          TEXT,
    issued_by            TEXT,
    business_id          TEXT    NOT NULL REFERENCES businesses (id),
    issuer_id            TEXT    REFERENCES issuers (id)
);
CREATE INDEX IF NOT EXISTS idx_receipts_issued_at ON receipts (issued_at DESC);
`

const ddlReceiptItems = `
CREATE TABLE IF NOT EXISTS receipt_items (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    receipt_id TEXT    NOT NULL REFERENCES receipts (id) ON DELETE CASCADE,
    name       TEXT    NOT NULL,
    unit_price TEXT    NOT NULL,            -- decimal string
    quantity   INTEGER NOT NULL DEFAULT 1,
    tax_rate   REAL    NOT NULL DEFAULT 0,  -- fraction: 0.21 = 21%
    sort_order INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_receipt_items_receipt ON receipt_items (receipt_id, sort_order);
`
