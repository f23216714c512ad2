package receipt

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money renders decimal amounts with a currency's narrow symbol.
type Money struct {
	unit   currency.Unit
	symbol string
	suffix bool
}

// NewMoney returns a Money for the ISO 4217 code. When suffix is set the
// symbol follows the amount ("100.00 Kč"), otherwise it precedes it
// ("$8.50").
func NewMoney(code string, suffix bool) (Money, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Money{}, fmt.Errorf("receipt: currency %q: %w", code, err)
	}
	return Money{
		unit:   unit,
		symbol: fmt.Sprint(currency.NarrowSymbol(unit)),
		suffix: suffix,
	}, nil
}

// Code returns the ISO 4217 code.
func (m Money) Code() string { return m.unit.String() }

// Format renders d rounded to two decimal places.
func (m Money) Format(d decimal.Decimal) string {
	amount := d.StringFixed(2)
	if m.suffix {
		return amount + " " + m.symbol
	}
	return m.symbol + amount
}
