package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Tabonx/papyrus/internal/receipt"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "receipts.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func mustExec(t *testing.T, db *DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

type fixture struct {
	business, issuer, receipt uuid.UUID
	issued, performed         time.Time
}

func seed(t *testing.T, db *DB) fixture {
	t.Helper()
	f := fixture{
		business:  uuid.New(),
		issuer:    uuid.New(),
		receipt:   uuid.New(),
		issued:    time.Date(2025, 7, 29, 14, 30, 0, 0, time.UTC),
		performed: time.Date(2025, 7, 28, 0, 0, 0, 0, time.UTC),
	}
	mustExec(t, db, `INSERT INTO businesses (id, name, address, website) VALUES (?, ?, ?, ?)`,
		f.business.String(), "Kavarna Praha", "Vodickova 1, Praha", "kavarna.example")
	mustExec(t, db, `INSERT INTO issuers (id, name) VALUES (?, ?)`, f.issuer.String(), "Jana")
	mustExec(t, db, `INSERT INTO receipts
		(id, number, issued_at, legal_performance_at, payment_method, footer_text, issued_by, business_id, issuer_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.receipt.String(), "2025-0042", f.issued.Unix(), f.performed.Unix(), "both",
		"Dekujeme!", nil, f.business.String(), f.issuer.String())
	mustExec(t, db, `INSERT INTO receipt_items (receipt_id, name, unit_price, quantity, tax_rate, sort_order)
		VALUES (?, 'Croissant', '45.50', 2, 0.12, 1), (?, 'Espresso', '59', 1, 0.21, 0)`,
		f.receipt.String(), f.receipt.String())
	return f
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestBusiness(t *testing.T) {
	db := openTestDB(t)
	f := seed(t, db)

	b, err := db.Business(context.Background(), f.business)
	if err != nil {
		t.Fatalf("Business() error = %v", err)
	}
	if b.ID != f.business || b.Name != "Kavarna Praha" {
		t.Errorf("Business() = %+v", b)
	}
	if b.Address != "Vodickova 1, Praha" || b.Website != "kavarna.example" {
		t.Errorf("Business() contact = %q %q", b.Address, b.Website)
	}
	if b.Email != "" {
		t.Errorf("Business().Email = %q, want empty for NULL", b.Email)
	}
}

func TestIssuer(t *testing.T) {
	db := openTestDB(t)
	f := seed(t, db)

	iss, err := db.Issuer(context.Background(), f.issuer)
	if err != nil {
		t.Fatalf("Issuer() error = %v", err)
	}
	if iss.Name != "Jana" {
		t.Errorf("Issuer().Name = %q, want Jana", iss.Name)
	}
}

func TestNotFound(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	missing := uuid.New()

	if _, err := db.Business(ctx, missing); !errors.Is(err, receipt.ErrNotFound) {
		t.Errorf("Business() error = %v, want ErrNotFound", err)
	}
	if _, err := db.Issuer(ctx, missing); !errors.Is(err, receipt.ErrNotFound) {
		t.Errorf("Issuer() error = %v, want ErrNotFound", err)
	}
	if _, err := db.Receipt(ctx, missing); !errors.Is(err, receipt.ErrNotFound) {
		t.Errorf("Receipt() error = %v, want ErrNotFound", err)
	}
	if _, err := db.ReceiptByNumber(ctx, "nope"); !errors.Is(err, receipt.ErrNotFound) {
		t.Errorf("ReceiptByNumber() error = %v, want ErrNotFound", err)
	}
}

func TestReceipt(t *testing.T) {
	db := openTestDB(t)
	f := seed(t, db)

	r, err := db.Receipt(context.Background(), f.receipt)
	if err != nil {
		t.Fatalf("Receipt() error = %v", err)
	}
	if r.Number != "2025-0042" || r.PaymentMethod != "both" || r.FooterText != "Dekujeme!" {
		t.Errorf("Receipt() = %+v", r)
	}
	if r.IssuedBy != "" {
		t.Errorf("IssuedBy = %q, want empty for NULL", r.IssuedBy)
	}
	if !r.IssuedDate.Equal(f.issued) {
		t.Errorf("IssuedDate = %v, want %v", r.IssuedDate, f.issued)
	}
	if r.LegalPerformanceDate == nil || !r.LegalPerformanceDate.Equal(f.performed) {
		t.Errorf("LegalPerformanceDate = %v, want %v", r.LegalPerformanceDate, f.performed)
	}
	if r.BusinessID != f.business {
		t.Errorf("BusinessID = %v, want %v", r.BusinessID, f.business)
	}
	if !r.IssuerID.Valid || r.IssuerID.UUID != f.issuer {
		t.Errorf("IssuerID = %+v, want %v", r.IssuerID, f.issuer)
	}

	if len(r.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(r.Items))
	}
	if r.Items[0].Name != "Espresso" || r.Items[1].Name != "Croissant" {
		t.Errorf("items not ordered by sort_order: %q, %q", r.Items[0].Name, r.Items[1].Name)
	}
	if got := r.Items[1].UnitPrice.String(); got != "45.5" {
		t.Errorf("Croissant unit price = %s, want 45.5", got)
	}
	if got := r.Total().StringFixed(2); got != "173.31" {
		t.Errorf("Total() = %s, want 173.31", got)
	}
}

func TestReceiptWithoutIssuer(t *testing.T) {
	db := openTestDB(t)
	f := seed(t, db)
	id := uuid.New()
	mustExec(t, db, `INSERT INTO receipts (id, number, issued_at, business_id, issued_by) VALUES (?, ?, ?, ?, ?)`,
		id.String(), "2025-0043", f.issued.Unix(), f.business.String(), "Petr")

	r, err := db.ReceiptByNumber(context.Background(), "2025-0043")
	if err != nil {
		t.Fatalf("ReceiptByNumber() error = %v", err)
	}
	if r.ID != id {
		t.Errorf("ID = %v, want %v", r.ID, id)
	}
	if r.IssuerID.Valid {
		t.Error("IssuerID should be invalid for NULL issuer_id")
	}
	if r.LegalPerformanceDate != nil {
		t.Error("LegalPerformanceDate should be nil")
	}
	if r.PaymentMethod != "cash" || r.IssuedBy != "Petr" {
		t.Errorf("PaymentMethod = %q IssuedBy = %q", r.PaymentMethod, r.IssuedBy)
	}
	if len(r.Items) != 0 {
		t.Errorf("got %d items, want 0", len(r.Items))
	}
}
