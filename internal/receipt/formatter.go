package receipt

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Tabonx/papyrus/internal/escpos"
)

// FormatterOptions configures receipt rendering.
type FormatterOptions struct {
	CharsPerLine   int    // printable columns at normal size (default 32, 58mm paper)
	Currency       string // ISO 4217 code (default CZK)
	CurrencySuffix bool   // print the symbol after the amount
	DateLayout     string // Go time layout (default 02.01.2006)
}

// DefaultFormatterOptions returns the settings for 58mm paper and Czech
// crowns.
func DefaultFormatterOptions() FormatterOptions {
	return FormatterOptions{
		CharsPerLine:   32,
		Currency:       "CZK",
		CurrencySuffix: true,
		DateLayout:     "02.01.2006",
	}
}

// Formatter renders templates and records into printer command streams.
// Formatting never fails: every input reduces to some byte sequence.
type Formatter struct {
	width      int
	money      Money
	dateLayout string
}

// NewFormatter creates a Formatter. Zero-valued options fall back to
// defaults; an unknown currency code is an error.
func NewFormatter(opts FormatterOptions) (*Formatter, error) {
	def := DefaultFormatterOptions()
	if opts.CharsPerLine <= 0 {
		opts.CharsPerLine = def.CharsPerLine
	}
	if opts.Currency == "" {
		opts.Currency = def.Currency
		opts.CurrencySuffix = def.CurrencySuffix
	}
	if opts.DateLayout == "" {
		opts.DateLayout = def.DateLayout
	}
	money, err := NewMoney(opts.Currency, opts.CurrencySuffix)
	if err != nil {
		return nil, err
	}
	return &Formatter{
		width:      opts.CharsPerLine,
		money:      money,
		dateLayout: opts.DateLayout,
	}, nil
}

// Money returns the formatter's currency renderer.
func (f *Formatter) Money() Money { return f.money }

// FormatTemplate renders t. The stream always starts with initialize and
// UTF-8 select and always ends with a three line feed and a cut.
func (f *Formatter) FormatTemplate(t *Template) []byte {
	var buf bytes.Buffer
	writeHeader(&buf)
	if t != nil {
		for _, e := range t.Elements {
			f.writeElement(&buf, e)
		}
	}
	writeTrailer(&buf)
	return buf.Bytes()
}

func (f *Formatter) writeElement(buf *bytes.Buffer, e Element) {
	switch e.Kind {
	case KindSeparator:
		f.writeSeparator(buf)
	case KindSpacer:
		buf.Write(escpos.FeedLines(lineCount(e.LineCount)))
	default:
		writeStyled(buf, e.Text, e.Alignment, e.Size, e.Bold, e.Underline)
	}
}

// lineCount maps a spacer's line count onto the ESC d argument.
func lineCount(n int) byte {
	switch {
	case n <= 0:
		return 1
	case n > 255:
		return 255
	default:
		return byte(n)
	}
}

// FormatReceipt renders a record in the fixed commercial layout. business
// and issuer are optional; their blocks are omitted when nil.
func (f *Formatter) FormatReceipt(r *Record, business *BusinessInfo, issuer *IssuerInfo) []byte {
	var buf bytes.Buffer
	writeHeader(&buf)

	if business != nil {
		writeStyled(&buf, business.Name, AlignCenter, SizeDoubleWidth, true, false)
		for _, line := range []string{business.Address, business.Email, business.Website} {
			if line != "" {
				writeStyled(&buf, line, AlignCenter, SizeNormal, false, false)
			}
		}
		f.writeSeparator(&buf)
	}

	f.writeLeftRight(&buf, "Receipt #:", r.Number, SizeNormal, true)
	f.writeLeftRight(&buf, "Date:", r.IssuedDate.Format(f.dateLayout), SizeNormal, false)
	switch {
	case issuer != nil:
		f.writeLeftRight(&buf, "Issued by:", issuer.Name, SizeNormal, false)
	case r.IssuedBy != "":
		f.writeLeftRight(&buf, "Issued by:", r.IssuedBy, SizeNormal, false)
	}
	f.writeLeftRight(&buf, "Payment:", r.PaymentLabel(), SizeNormal, false)
	f.writeSeparator(&buf)

	for _, it := range r.SortedItems() {
		buf.Write(escpos.Align(escpos.AlignLeft))
		writeLine(&buf, it.Name)
		qty := strconv.Itoa(it.Quantity) + " x " + f.money.Format(it.UnitPrice)
		f.writeLeftRight(&buf, qty, f.money.Format(it.Subtotal()), SizeNormal, false)
		if it.TaxRate != 0 {
			f.writeLeftRight(&buf, "  Tax ("+it.TaxRateLabel()+")", f.money.Format(it.TaxAmount()), SizeNormal, false)
		}
	}
	f.writeSeparator(&buf)

	f.writeLeftRight(&buf, "Subtotal:", f.money.Format(r.Subtotal()), SizeNormal, false)
	if tax := r.TotalTax(); tax.IsPositive() {
		f.writeLeftRight(&buf, "Total Tax:", f.money.Format(tax), SizeNormal, false)
	}
	f.writeLeftRight(&buf, "TOTAL:", f.money.Format(r.Total()), SizeDoubleWidth, true)

	if r.FooterText != "" {
		f.writeSeparator(&buf)
		writeStyled(&buf, r.FooterText, AlignCenter, SizeNormal, false, false)
	}

	if r.LegalPerformanceDate != nil {
		buf.Write(escpos.FeedLines(1))
		writeStyled(&buf, "Performance Date: "+r.LegalPerformanceDate.Format(f.dateLayout), AlignCenter, SizeNormal, false, false)
	}

	writeTrailer(&buf)
	return buf.Bytes()
}

// LeftRight joins left and right with enough spaces to fill a line printed
// at size s. Any size other than normal uses half the line width. At least one space is always inserted; overlong text is not
// truncated.
func (f *Formatter) LeftRight(left, right string, s Size) string {
	width := f.width
	if s.enlarged() {
		width /= 2
	}
	spacing := width - utf8.RuneCountInString(left) - utf8.RuneCountInString(right)
	if spacing < 1 {
		spacing = 1
	}
	return left + strings.Repeat(" ", spacing) + right
}

func (f *Formatter) writeLeftRight(buf *bytes.Buffer, left, right string, s Size, bold bool) {
	buf.Write(escpos.Align(escpos.AlignLeft))
	buf.Write(s.command())
	if bold {
		buf.Write(escpos.BoldOn())
	}
	writeLine(buf, f.LeftRight(left, right, s))
	if bold {
		buf.Write(escpos.BoldOff())
	}
	buf.Write(escpos.SetSize(escpos.SizeNormal))
}

func (f *Formatter) writeSeparator(buf *bytes.Buffer) {
	buf.Write(escpos.Align(escpos.AlignLeft))
	writeLine(buf, strings.Repeat("-", f.width))
}

func writeStyled(buf *bytes.Buffer, text string, a Alignment, s Size, bold, underline bool) {
	buf.Write(a.command())
	buf.Write(s.command())
	if bold {
		buf.Write(escpos.BoldOn())
	}
	if underline {
		buf.Write(escpos.UnderlineOn())
	}
	if text == "" {
		text = " "
	}
	writeLine(buf, text)
	if underline {
		buf.Write(escpos.UnderlineOff())
	}
	if bold {
		buf.Write(escpos.BoldOff())
	}
	buf.Write(escpos.SetSize(escpos.SizeNormal))
}

func writeLine(buf *bytes.Buffer, text string) {
	buf.WriteString(text)
	buf.Write(escpos.LineFeed())
}

func writeHeader(buf *bytes.Buffer) {
	buf.Write(escpos.Initialize())
	buf.Write(escpos.SelectUTF8())
}

func writeTrailer(buf *bytes.Buffer) {
	buf.Write(escpos.FeedLines(3))
	buf.Write(escpos.CutPaper())
}
