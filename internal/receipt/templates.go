package receipt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Built-in quick template names.
const (
	TemplateSimpleReceipt = "Simple Receipt"
	TemplateStoreHeader   = "Store Header"
	TemplateMenuItem      = "Menu Item"
	TemplateThankYou      = "Thank You"
)

var builtins = map[string]func() *Template{
	TemplateSimpleReceipt: func() *Template {
		return NewTemplate(TemplateSimpleReceipt,
			Text("RECEIPT").Emphasized().Centered().Sized(SizeDoubleWidth),
			Spacer(1),
			Text("My Store").Centered(),
			Text("123 Main St").Centered(),
			Spacer(1),
			Separator(),
			Text("Item A               $5.00"),
			Text("Item B               $3.50"),
			Separator(),
			Text("TOTAL:              $8.50").Emphasized(),
			Spacer(2),
			Text("Thank you!").Centered(),
		)
	},
	TemplateStoreHeader: func() *Template {
		return NewTemplate(TemplateStoreHeader,
			Text("MY AWESOME STORE").Emphasized().Centered().Sized(SizeBoth),
			Spacer(1),
			Text("123 Business Street").Centered(),
			Text("City, State 12345").Centered(),
			Text("Phone: (555) 123-4567").Centered(),
			Text("www.mystore.com").Centered(),
			Spacer(2),
		)
	},
	TemplateMenuItem: func() *Template {
		return NewTemplate(TemplateMenuItem,
			Text("TODAY'S SPECIAL").Emphasized().Centered().Sized(SizeDoubleWidth),
			Spacer(1),
			Text("Deluxe Burger").Emphasized().Centered(),
			Text("with fries & drink").Centered(),
			Spacer(1),
			Text("$12.99").Emphasized().Centered().Sized(SizeDoubleHeight),
			Spacer(2),
		)
	},
	TemplateThankYou: func() *Template {
		return NewTemplate(TemplateThankYou,
			Spacer(2),
			Text("Thank You!").Emphasized().Centered().Sized(SizeBoth),
			Spacer(1),
			Text("for your business").Centered(),
			Spacer(1),
			Text("Please come again!").Centered(),
			Spacer(3),
		)
	},
}

// Builtin returns a fresh copy of the named quick template.
func Builtin(name string) (*Template, bool) {
	mk, ok := builtins[name]
	if !ok {
		return nil, false
	}
	return mk(), true
}

// BuiltinNames lists the quick templates in alphabetical order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TestRecord returns the two-item receipt printed to verify a printer.
func TestRecord(now time.Time) *Record {
	return &Record{
		ID:                   uuid.New(),
		Number:               "TEST-001",
		IssuedDate:           now,
		LegalPerformanceDate: &now,
		PaymentMethod:        PaymentCash,
		FooterText:           "Test Receipt - Thank you!",
		IssuedBy:             "Test User",
		BusinessID:           uuid.New(),
		Items: []Item{
			{Name: "Test Item 1", UnitPrice: decimal.NewFromInt(100), Quantity: 1, TaxRate: 0.21, Order: 0},
			{Name: "Test Item 2", UnitPrice: decimal.NewFromInt(50), Quantity: 2, TaxRate: 0.21, Order: 1},
		},
	}
}

// LoadTemplate reads a template from a .yaml, .yml or .json file.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template file: %w", err)
	}

	var t Template
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &t)
	default:
		err = yaml.Unmarshal(data, &t)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing template file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &t, nil
}

// LoadRecord reads a receipt record from a JSON file.
func LoadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading receipt file: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing receipt file: %w", err)
	}
	return &r, nil
}
