package receipt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

// recordingLookup serves fixed answers and counts calls.
type recordingLookup struct {
	business    *BusinessInfo
	businessErr error
	issuer      *IssuerInfo
	issuerErr   error

	issuerCalls int
}

func (l *recordingLookup) Business(_ context.Context, _ uuid.UUID) (*BusinessInfo, error) {
	return l.business, l.businessErr
}

func (l *recordingLookup) Issuer(_ context.Context, _ uuid.UUID) (*IssuerInfo, error) {
	l.issuerCalls++
	return l.issuer, l.issuerErr
}

func TestResolvePartiesNilLookup(t *testing.T) {
	b, i := ResolveParties(context.Background(), nil, TestRecord(time.Now()))
	if b != nil || i != nil {
		t.Errorf("ResolveParties(nil) = %v, %v, want nil, nil", b, i)
	}
}

func TestResolvePartiesSkipsIssuerWithoutID(t *testing.T) {
	l := &recordingLookup{business: &BusinessInfo{Name: "Kavarna"}}
	b, i := ResolveParties(context.Background(), l, TestRecord(time.Now()))
	if b == nil || b.Name != "Kavarna" {
		t.Errorf("business = %+v, want Kavarna", b)
	}
	if i != nil {
		t.Errorf("issuer = %+v, want nil", i)
	}
	if l.issuerCalls != 0 {
		t.Errorf("Issuer called %d times for a record without issuer_id", l.issuerCalls)
	}
}

func TestResolvePartiesIsBestEffort(t *testing.T) {
	l := &recordingLookup{
		businessErr: errors.New("db locked"),
		issuer:      &IssuerInfo{Name: "Jana"},
	}
	r := TestRecord(time.Now())
	r.IssuerID = uuid.NullUUID{UUID: uuid.New(), Valid: true}

	b, i := ResolveParties(context.Background(), l, r)
	if b != nil {
		t.Errorf("business = %+v, want nil after lookup failure", b)
	}
	if i == nil || i.Name != "Jana" {
		t.Errorf("issuer = %+v, want Jana", i)
	}
}

func TestLoadRecord(t *testing.T) {
	content := `{
  "number": "2025-0042",
  "issued_date": "2025-07-29T09:30:00Z",
  "payment_method": "both",
  "business_id": "6f1c1c52-2f0d-4d5e-9a43-0d7f3c1f9e10",
  "issuer_id": null,
  "items": [
    {"name": "Espresso", "unit_price": "59.00", "quantity": 2, "tax_rate": 0.12, "order": 0}
  ]
}`
	path := filepath.Join(t.TempDir(), "receipt.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write receipt: %v", err)
	}

	r, err := LoadRecord(path)
	if err != nil {
		t.Fatalf("LoadRecord() error = %v", err)
	}
	if r.Number != "2025-0042" {
		t.Errorf("Number = %q", r.Number)
	}
	if r.IssuerID.Valid {
		t.Error("IssuerID should be null")
	}
	if r.PaymentLabel() != "Cash + Card" {
		t.Errorf("PaymentLabel() = %q", r.PaymentLabel())
	}
	if got := r.Subtotal().StringFixed(2); got != "118.00" {
		t.Errorf("Subtotal() = %s, want 118.00", got)
	}
	if got := r.Total().StringFixed(2); got != "132.16" {
		t.Errorf("Total() = %s, want 132.16", got)
	}
}

func TestLoadRecordInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write receipt: %v", err)
	}
	if _, err := LoadRecord(path); err == nil {
		t.Error("LoadRecord() should fail on invalid JSON")
	}
}
