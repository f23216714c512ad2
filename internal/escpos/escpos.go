// Package escpos encodes line-printer directives into the ESC/POS byte
// sequences understood by Rongta-style thermal receipt printers.
//
// Every function returns a freshly allocated slice so callers may append to
// or modify the result without affecting later calls.
package escpos

const (
	esc = 0x1B
	gs  = 0x1D
	lf  = 0x0A
	cr  = 0x0D
)

// Alignment selects the horizontal justification of subsequent lines.
type Alignment byte

const (
	AlignLeft   Alignment = 0x00
	AlignCenter Alignment = 0x01
	AlignRight  Alignment = 0x02
)

// Size selects the character magnification of subsequent text via ESC !.
type Size byte

const (
	SizeNormal       Size = 0x00
	SizeDoubleHeight Size = 0x10
	SizeDoubleWidth  Size = 0x20
	SizeBoth         Size = 0x30
)

// Initialize resets the printer to its power-on defaults (ESC @).
func Initialize() []byte { return []byte{esc, 0x40} }

// CutPaper feeds to the cutter and performs a partial cut (GS V B 0).
func CutPaper() []byte { return []byte{gs, 0x56, 0x42, 0x00} }

// LineFeed prints the buffer and advances one line.
func LineFeed() []byte { return []byte{lf} }

// CarriageReturn returns the print position to the line start.
func CarriageReturn() []byte { return []byte{cr} }

func BoldOn() []byte  { return []byte{esc, 0x45, 0x01} }
func BoldOff() []byte { return []byte{esc, 0x45, 0x00} }

func UnderlineOn() []byte  { return []byte{esc, 0x2D, 0x01} }
func UnderlineOff() []byte { return []byte{esc, 0x2D, 0x00} }

// FontA selects the 12x24 font, FontB the condensed 9x17 font.
func FontA() []byte { return []byte{esc, 0x4D, 0x00} }
func FontB() []byte { return []byte{esc, 0x4D, 0x01} }

// Align returns ESC a n for the given alignment. Unknown values fall back
// to left alignment.
func Align(a Alignment) []byte {
	switch a {
	case AlignCenter, AlignRight:
		return []byte{esc, 0x61, byte(a)}
	default:
		return []byte{esc, 0x61, byte(AlignLeft)}
	}
}

// SetSize returns ESC ! n for the given size. Unknown values fall back to
// normal size.
func SetSize(s Size) []byte {
	switch s {
	case SizeDoubleHeight, SizeDoubleWidth, SizeBoth:
		return []byte{esc, 0x21, byte(s)}
	default:
		return []byte{esc, 0x21, byte(SizeNormal)}
	}
}

// SetLineSpacing sets the line spacing to n motion units (ESC 3 n).
func SetLineSpacing(n byte) []byte { return []byte{esc, 0x33, n} }

// FeedLines prints the buffer and feeds n lines (ESC d n).
func FeedLines(n byte) []byte { return []byte{esc, 0x64, n} }

// SelectUTF8 switches the character code table to UTF-8 (ESC t 0x10).
func SelectUTF8() []byte { return []byte{esc, 0x74, 0x10} }
