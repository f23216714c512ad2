// Package receipt models printable receipt layouts and renders them into
// ESC/POS byte streams.
//
// Two inputs are supported: free-form templates built from ordered
// elements, and structured receipt records (business header, issuer, line
// items, totals) printed in a fixed commercial layout.
package receipt

import (
	"errors"
	"fmt"

	"github.com/Tabonx/papyrus/internal/escpos"
)

// Kind identifies what an Element prints.
type Kind string

const (
	KindText      Kind = "text"
	KindSeparator Kind = "separator"
	KindSpacer    Kind = "spacer"
)

// Alignment is the horizontal justification of a text element.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

func (a Alignment) command() []byte {
	switch a {
	case AlignCenter:
		return escpos.Align(escpos.AlignCenter)
	case AlignRight:
		return escpos.Align(escpos.AlignRight)
	default:
		return escpos.Align(escpos.AlignLeft)
	}
}

// Size is the character magnification of a text element.
type Size string

const (
	SizeNormal       Size = "normal"
	SizeDoubleWidth  Size = "double_width"
	SizeDoubleHeight Size = "double_height"
	SizeBoth         Size = "both"
)

func (s Size) command() []byte {
	switch s {
	case SizeDoubleWidth:
		return escpos.SetSize(escpos.SizeDoubleWidth)
	case SizeDoubleHeight:
		return escpos.SetSize(escpos.SizeDoubleHeight)
	case SizeBoth:
		return escpos.SetSize(escpos.SizeBoth)
	default:
		return escpos.SetSize(escpos.SizeNormal)
	}
}

// enlarged reports whether s is anything other than normal size. Left/right
// lines printed enlarged get half the columns.
func (s Size) enlarged() bool {
	return s != "" && s != SizeNormal
}

// Element is one printable unit of a template.
type Element struct {
	Kind      Kind      `json:"kind" yaml:"kind"`
	Text      string    `json:"text,omitempty" yaml:"text,omitempty"`
	Bold      bool      `json:"bold,omitempty" yaml:"bold,omitempty"`
	Underline bool      `json:"underline,omitempty" yaml:"underline,omitempty"`
	Alignment Alignment `json:"alignment,omitempty" yaml:"alignment,omitempty"`
	Size      Size      `json:"size,omitempty" yaml:"size,omitempty"`
	// LineCount is the number of blank lines a spacer feeds. Zero means 1.
	LineCount int `json:"line_count,omitempty" yaml:"line_count,omitempty"`
}

// Text returns a left-aligned, normal-size text element.
func Text(s string) Element {
	return Element{Kind: KindText, Text: s, Alignment: AlignLeft, Size: SizeNormal}
}

// Separator returns a dashed rule element.
func Separator() Element {
	return Element{Kind: KindSeparator}
}

// Spacer returns an element that feeds n blank lines.
func Spacer(n int) Element {
	return Element{Kind: KindSpacer, LineCount: n}
}

// Centered returns a copy of e with center alignment.
func (e Element) Centered() Element {
	e.Alignment = AlignCenter
	return e
}

// Emphasized returns a copy of e printed in bold.
func (e Element) Emphasized() Element {
	e.Bold = true
	return e
}

// Sized returns a copy of e printed at size s.
func (e Element) Sized(s Size) Element {
	e.Size = s
	return e
}

// Validate reports enum values the formatter would silently replace.
func (e Element) Validate() error {
	switch e.Kind {
	case KindText, KindSeparator, KindSpacer:
	default:
		return fmt.Errorf("receipt: unknown element kind %q", e.Kind)
	}
	switch e.Alignment {
	case "", AlignLeft, AlignCenter, AlignRight:
	default:
		return fmt.Errorf("receipt: unknown alignment %q", e.Alignment)
	}
	switch e.Size {
	case "", SizeNormal, SizeDoubleWidth, SizeDoubleHeight, SizeBoth:
	default:
		return fmt.Errorf("receipt: unknown size %q", e.Size)
	}
	if e.LineCount < 0 {
		return fmt.Errorf("receipt: line_count must be >= 0, got %d", e.LineCount)
	}
	return nil
}

// ErrIndexOutOfRange is returned by Template edits given a bad position.
var ErrIndexOutOfRange = errors.New("receipt: element index out of range")

// Template is a named, ordered list of elements.
type Template struct {
	Name     string    `json:"name" yaml:"name"`
	Elements []Element `json:"elements" yaml:"elements"`
}

// NewTemplate returns a template holding copies of elems.
func NewTemplate(name string, elems ...Element) *Template {
	t := &Template{Name: name}
	for _, e := range elems {
		t.Append(e)
	}
	return t
}

// Append adds e to the end of the template.
func (t *Template) Append(e Element) {
	t.Elements = append(t.Elements, e)
}

// Remove deletes the element at index i.
func (t *Template) Remove(i int) error {
	if i < 0 || i >= len(t.Elements) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	t.Elements = append(t.Elements[:i], t.Elements[i+1:]...)
	return nil
}

// Move relocates the element at index from so that it ends up at index to.
func (t *Template) Move(from, to int) error {
	n := len(t.Elements)
	if from < 0 || from >= n {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, from)
	}
	if to < 0 || to >= n {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, to)
	}
	if from == to {
		return nil
	}
	e := t.Elements[from]
	if from < to {
		copy(t.Elements[from:to], t.Elements[from+1:to+1])
	} else {
		copy(t.Elements[to+1:from+1], t.Elements[to:from])
	}
	t.Elements[to] = e
	return nil
}

// Clone returns a deep copy of the template.
func (t *Template) Clone() *Template {
	c := &Template{Name: t.Name, Elements: make([]Element, len(t.Elements))}
	copy(c.Elements, t.Elements)
	return c
}

// Validate checks every element.
func (t *Template) Validate() error {
	for i, e := range t.Elements {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}
