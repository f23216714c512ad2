package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrNotFound is wrapped by Lookup implementations for unknown ids.
var ErrNotFound = errors.New("receipt: not found")

// BusinessInfo is the header block printed at the top of a receipt.
type BusinessInfo struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Address string    `json:"address,omitempty"`
	Email   string    `json:"email,omitempty"`
	Website string    `json:"website,omitempty"`
}

// IssuerInfo names the person who issued a receipt.
type IssuerInfo struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Lookup resolves the business and issuer a record refers to. It is
// read-only; implementations return an error wrapping ErrNotFound when the
// id is unknown.
type Lookup interface {
	Business(ctx context.Context, id uuid.UUID) (*BusinessInfo, error)
	Issuer(ctx context.Context, id uuid.UUID) (*IssuerInfo, error)
}

// ResolveParties fetches the business and issuer r refers to. Lookups are
// best effort: failures are logged and the corresponding result is nil so
// the receipt still prints. A nil lookup resolves nothing.
func ResolveParties(ctx context.Context, lookup Lookup, r *Record) (*BusinessInfo, *IssuerInfo) {
	if lookup == nil {
		return nil, nil
	}
	business, err := lookup.Business(ctx, r.BusinessID)
	if err != nil {
		slog.Warn("[PRINT] business lookup failed", "id", r.BusinessID, "error", err)
		business = nil
	}
	var issuer *IssuerInfo
	if r.IssuerID.Valid {
		issuer, err = lookup.Issuer(ctx, r.IssuerID.UUID)
		if err != nil {
			slog.Warn("[PRINT] issuer lookup failed", "id", r.IssuerID.UUID, "error", err)
			issuer = nil
		}
	}
	return business, issuer
}

// Item is one receipt line.
type Item struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	// TaxRate is a fraction: 0.21 means 21%.
	TaxRate float64 `json:"tax_rate"`
	Order   int     `json:"order"`
}

// Subtotal is unit price times quantity.
func (it Item) Subtotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// TaxAmount is the subtotal times the tax rate.
func (it Item) TaxAmount() decimal.Decimal {
	return it.Subtotal().Mul(decimal.NewFromFloat(it.TaxRate))
}

// Total is subtotal plus tax.
func (it Item) Total() decimal.Decimal {
	return it.Subtotal().Add(it.TaxAmount())
}

// TaxRateLabel renders the rate as a percentage with one decimal, e.g. "21.0%".
func (it Item) TaxRateLabel() string {
	return fmt.Sprintf("%.1f%%", it.TaxRate*100)
}

// Payment methods recorded by the point of sale.
const (
	PaymentCash = "cash"
	PaymentCard = "card"
	PaymentBoth = "both"
)

// Record is a fully assembled receipt ready for printing.
type Record struct {
	ID                   uuid.UUID     `json:"id"`
	Number               string        `json:"number"`
	IssuedDate           time.Time     `json:"issued_date"`
	LegalPerformanceDate *time.Time    `json:"legal_performance_date,omitempty"`
	PaymentMethod        string        `json:"payment_method"`
	FooterText           string        `json:"footer_text,omitempty"`
	IssuedBy             string        `json:"issued_by,omitempty"`
	BusinessID           uuid.UUID     `json:"business_id"`
	IssuerID             uuid.NullUUID `json:"issuer_id"`
	Items                []Item        `json:"items"`
}

// SortedItems returns the items ordered by their Order field. Items with
// equal order keep their relative position.
func (r *Record) SortedItems() []Item {
	items := make([]Item, len(r.Items))
	copy(items, r.Items)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })
	return items
}

func (r *Record) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range r.Items {
		sum = sum.Add(it.Subtotal())
	}
	return sum
}

func (r *Record) TotalTax() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range r.Items {
		sum = sum.Add(it.TaxAmount())
	}
	return sum
}

func (r *Record) Total() decimal.Decimal {
	return r.Subtotal().Add(r.TotalTax())
}

// PaymentLabel returns the printed name of the payment method.
func (r *Record) PaymentLabel() string {
	switch r.PaymentMethod {
	case PaymentCash:
		return "Cash"
	case PaymentCard:
		return "Card"
	case PaymentBoth:
		return "Cash + Card"
	default:
		return cases.Title(language.Und).String(r.PaymentMethod)
	}
}
