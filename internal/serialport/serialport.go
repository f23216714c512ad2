// Package serialport prints to a receipt printer over a serial line, such
// as a USB cable or a Bluetooth classic RFCOMM device node.
package serialport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/Tabonx/papyrus/internal/ble"
	"github.com/Tabonx/papyrus/internal/receipt"
)

// Serial lines accept far larger writes than a BLE characteristic.
const (
	DefaultChunkSize  = 256
	DefaultChunkDelay = 10 * time.Millisecond
)

// Options configures a Printer. Zero values select the defaults.
type Options struct {
	ChunkSize  int
	ChunkDelay time.Duration
	Formatter  *receipt.Formatter
	Lookup     receipt.Lookup
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: list ports: %w", err)
	}
	return ports, nil
}

// Open opens name at baud (8N1) and returns a Printer writing to it.
func Open(name string, baud int, opts Options) (*Printer, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", name, classify(err))
	}
	slog.Info("[PRINT] serial port open", "port", name, "baud", baud)
	return New(port, opts), nil
}

// Printer sends formatted jobs over a serial line. Jobs are serialized;
// an overlapping call returns ble.ErrBusy.
type Printer struct {
	w         io.WriteCloser
	transport *ble.Transport
	formatter *receipt.Formatter
	lookup    receipt.Lookup

	mu   sync.Mutex
	busy bool
}

// New wraps an already open line.
func New(w io.WriteCloser, opts Options) *Printer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkDelay <= 0 {
		opts.ChunkDelay = DefaultChunkDelay
	}
	if opts.Formatter == nil {
		opts.Formatter, _ = receipt.NewFormatter(receipt.DefaultFormatterOptions())
	}
	return &Printer{
		w:         w,
		transport: ble.NewTransport(opts.ChunkSize, opts.ChunkDelay),
		formatter: opts.Formatter,
		lookup:    opts.Lookup,
	}
}

// PrintTemplate formats t and writes it.
func (p *Printer) PrintTemplate(t *receipt.Template) error {
	return p.print(func(context.Context) []byte {
		return p.formatter.FormatTemplate(t)
	})
}

// PrintReceipt formats r in the commercial layout and writes it.
func (p *Printer) PrintReceipt(r *receipt.Record) error {
	if r == nil {
		return ble.ErrNoReceipt
	}
	return p.print(func(ctx context.Context) []byte {
		business, issuer := receipt.ResolveParties(ctx, p.lookup, r)
		return p.formatter.FormatReceipt(r, business, issuer)
	})
}

// PrintTestReceipt prints the built-in two-item test receipt.
func (p *Printer) PrintTestReceipt() error {
	return p.PrintReceipt(receipt.TestRecord(time.Now()))
}

func (p *Printer) print(render func(context.Context) []byte) error {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return ble.ErrBusy
	}
	p.busy = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.busy = false
		p.mu.Unlock()
	}()

	ctx := context.Background()
	data := render(ctx)
	slog.Info("[PRINT] sending serial job", "bytes", len(data))
	if err := p.transport.Send(ctx, data, p, nil); err != nil {
		slog.Error("[PRINT] serial job failed", "error", err)
		return err
	}
	return nil
}

// WriteChunk writes chunk in full and waits for the line to drain when the
// underlying port supports it.
func (p *Printer) WriteChunk(chunk []byte) error {
	for len(chunk) > 0 {
		n, err := p.w.Write(chunk)
		if err != nil {
			return classify(err)
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		chunk = chunk[n:]
	}
	if d, ok := p.w.(interface{ Drain() error }); ok {
		if err := d.Drain(); err != nil {
			return classify(err)
		}
	}
	return nil
}

// Close closes the line.
func (p *Printer) Close() error {
	return p.w.Close()
}

// classify maps port errors that mean the device went away onto
// ble.ErrDisconnected.
func classify(err error) error {
	code, ok := portErrorCode(err)
	if !ok {
		return err
	}
	switch code {
	case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
		return fmt.Errorf("%w: %w", ble.ErrDisconnected, err)
	}
	return err
}

// portErrorCode extracts the library error code. Open returns *PortError
// while some platform paths return the value type.
func portErrorCode(err error) (serial.PortErrorCode, bool) {
	var ptr *serial.PortError
	if errors.As(err, &ptr) {
		return ptr.Code(), true
	}
	var val serial.PortError
	if errors.As(err, &val) {
		return val.Code(), true
	}
	return 0, false
}
