package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Tabonx/papyrus/internal/receipt"
)

// Options configures a Session. Zero values select the defaults.
type Options struct {
	NameMarkers    []string      // advertised-name filter (default RPP, RONGTA, PRINTER)
	ScanTimeout    time.Duration // scan window when Scan is given no timeout (default 10s)
	ConnectTimeout time.Duration // default 15s
	PrintTimeout   time.Duration // default 30s
	ChunkSize      int           // bytes per BLE write (default 20)
	ChunkDelay     time.Duration // pause between writes (default 50ms)

	Formatter *receipt.Formatter // default: 32 columns, CZK
	Lookup    receipt.Lookup     // optional business/issuer source for PrintReceipt
}

// DefaultOptions returns the production timing.
func DefaultOptions() Options {
	return Options{
		NameMarkers:    DefaultNameMarkers,
		ScanTimeout:    10 * time.Second,
		ConnectTimeout: 15 * time.Second,
		PrintTimeout:   30 * time.Second,
		ChunkSize:      20,
		ChunkDelay:     50 * time.Millisecond,
	}
}

// pendingOp is a single-shot waiter. It is resolved at most once, by
// whichever of the completion path, the failure path or the timer gets to
// it first while holding Session.mu.
type pendingOp struct {
	done   chan error
	timer  *time.Timer
	cancel context.CancelFunc
}

func newPendingOp(cancel context.CancelFunc) *pendingOp {
	return &pendingOp{done: make(chan error, 1), cancel: cancel}
}

func (op *pendingOp) resolve(err error) {
	if op.timer != nil {
		op.timer.Stop()
	}
	op.cancel()
	op.done <- err
}

// Session owns the connection to one receipt printer. All state lives
// behind mu; adapter callbacks, timers and public operations mutate it only
// while holding the lock.
type Session struct {
	adapter   Adapter
	opts      Options
	transport *Transport
	formatter *receipt.Formatter

	enableMu sync.Mutex
	enabled  bool

	mu             sync.Mutex
	state          ConnectionState
	message        string
	scanning       bool
	devices        []DiscoveredDevice
	seen           map[uuid.UUID]struct{}
	conn           Connection
	printer        *DiscoveredDevice
	writeChar      Characteristic
	notifyChar     Characteristic
	pendingConnect *pendingOp
	pendingPrint   *pendingOp

	bus broadcaster
}

// NewSession creates a Session driving adapter. The adapter is enabled
// lazily on the first scan or connect.
func NewSession(adapter Adapter, opts Options) *Session {
	def := DefaultOptions()
	if len(opts.NameMarkers) == 0 {
		opts.NameMarkers = def.NameMarkers
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = def.ScanTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.PrintTimeout <= 0 {
		opts.PrintTimeout = def.PrintTimeout
	}
	if opts.Formatter == nil {
		// Defaults always yield a valid currency.
		opts.Formatter, _ = receipt.NewFormatter(receipt.DefaultFormatterOptions())
	}

	s := &Session{
		adapter:   adapter,
		opts:      opts,
		transport: NewTransport(opts.ChunkSize, opts.ChunkDelay),
		formatter: opts.Formatter,
		state:     Disconnected,
		message:   "Ready to scan",
	}
	adapter.OnStateChange(s.handleAdapterState)
	return s
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel of status snapshots, one per state change,
// and a function that stops delivery and closes the channel.
func (s *Session) Subscribe() (<-chan Status, func()) {
	return s.bus.subscribe()
}

// Device looks up a printer from the most recent scan.
func (s *Session) Device(id uuid.UUID) (DiscoveredDevice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.ID == id {
			return d, true
		}
	}
	return DiscoveredDevice{}, false
}

// adapterReady enables the adapter on first use and reports whether the
// radio is powered on.
func (s *Session) adapterReady() bool {
	s.enableMu.Lock()
	if !s.enabled {
		if err := s.adapter.Enable(); err != nil {
			slog.Warn("[BLE] enable adapter failed", "error", err)
		} else {
			s.enabled = true
		}
	}
	s.enableMu.Unlock()
	return s.adapter.State() == AdapterPoweredOn
}

// Scan discovers printers for timeout (the configured scan window when
// timeout <= 0) and returns them. The call always lasts the full window. If
// the radio is not powered on the session enters the error state and an
// empty result is returned without error.
func (s *Session) Scan(timeout time.Duration) ([]DiscoveredDevice, error) {
	if timeout <= 0 {
		timeout = s.opts.ScanTimeout
	}

	if !s.adapterReady() {
		s.mu.Lock()
		if s.state.Kind == StateDisconnected || s.state.Kind == StateError {
			s.setLocked(Failed("Bluetooth not available"), "Bluetooth not powered on")
		}
		s.mu.Unlock()
		return nil, nil
	}

	s.mu.Lock()
	if s.scanning || (s.state.Kind != StateDisconnected && s.state.Kind != StateError) {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.scanning = true
	s.devices = nil
	s.seen = make(map[uuid.UUID]struct{})
	s.setLocked(Scanning, "Scanning for Rongta printers...")
	s.mu.Unlock()

	slog.Info("[BLE] scanning", "timeout", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.adapter.Scan(ctx, s.handleAdvertisement)
	}()

	var scanErr error
	select {
	case scanErr = <-errCh:
		if scanErr == nil {
			<-ctx.Done()
		}
	case <-ctx.Done():
		scanErr = <-errCh
	}
	if errors.Is(scanErr, context.DeadlineExceeded) || errors.Is(scanErr, context.Canceled) {
		scanErr = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanning = false
	found := slices.Clone(s.devices)

	next, msg := s.state, ""
	if next.Kind == StateScanning {
		next = Disconnected
	}
	switch {
	case next.Kind == StateError:
		msg = s.message
	case scanErr != nil:
		msg = "Scan failed: " + scanErr.Error()
	case len(found) == 0:
		msg = "No Rongta printers found"
	default:
		msg = fmt.Sprintf("Found %d printer(s)", len(found))
	}
	s.setLocked(next, msg)

	if scanErr != nil {
		slog.Warn("[BLE] scan failed", "error", scanErr)
		return found, fmt.Errorf("ble: scan: %w", scanErr)
	}
	slog.Info("[BLE] scan finished", "found", len(found))
	return found, nil
}

// handleAdvertisement records a matching printer once per scan.
func (s *Session) handleAdvertisement(d Device) {
	if !matchesMarker(d.Name, s.opts.NameMarkers) {
		return
	}
	id := DeviceID(d.Address)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.scanning {
		return
	}
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.devices = append(s.devices, DiscoveredDevice{
		ID:           id,
		Address:      d.Address,
		Name:         d.Name,
		RSSI:         d.RSSI,
		DiscoveredAt: time.Now(),
	})
	slog.Debug("[BLE] discovered printer", "name", d.Name, "address", d.Address, "rssi", d.RSSI)
	s.publishLocked()
}

// Connect connects to dev and resolves its write characteristic. It blocks
// until the printer is ready, the attempt fails, or the connect timeout
// elapses.
func (s *Session) Connect(dev DiscoveredDevice) error {
	if !s.adapterReady() {
		return ErrBluetoothNotAvailable
	}

	s.mu.Lock()
	if s.pendingConnect != nil || (s.state.Kind != StateDisconnected && s.state.Kind != StateError) {
		s.mu.Unlock()
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	op := newPendingOp(cancel)
	s.pendingConnect = op
	s.setLocked(Connecting, fmt.Sprintf("Connecting to %s...", displayName(dev)))
	op.timer = time.AfterFunc(s.opts.ConnectTimeout, func() {
		s.failConnect(op, ErrConnectionTimeout)
	})
	s.mu.Unlock()

	go s.runConnect(ctx, op, dev)
	return <-op.done
}

func displayName(dev DiscoveredDevice) string {
	if dev.Name == "" {
		return "Unknown Printer"
	}
	return dev.Name
}

func (s *Session) runConnect(ctx context.Context, op *pendingOp, dev DiscoveredDevice) {
	conn, err := s.adapter.Connect(ctx, dev.Address)
	if err != nil {
		s.failConnect(op, fmt.Errorf("%w: %w", ErrConnectionFailed, err))
		return
	}

	s.mu.Lock()
	live := s.pendingConnect == op
	if live {
		s.setLocked(s.state, "Connected! Discovering services...")
	}
	s.mu.Unlock()
	if !live {
		s.dropStray(conn)
		return
	}

	write, notify, err := resolveCharacteristics(conn)
	if err != nil {
		s.dropStray(conn)
		s.failConnect(op, err)
		return
	}
	if notify != nil {
		if err := notify.Subscribe(s.handleNotification); err != nil {
			slog.Debug("[BLE] subscribe to notifications failed", "uuid", notify.UUID(), "error", err)
			notify = nil
		}
	}
	// A drop before completeConnect stores conn is ignored by
	// handleDisconnect, so it is recorded and replayed afterwards.
	var lost atomic.Bool
	conn.OnDisconnect(func() {
		lost.Store(true)
		s.handleDisconnect(conn)
	})

	if !s.completeConnect(op, conn, dev, write, notify) {
		s.dropStray(conn)
		return
	}
	if lost.Load() {
		s.handleDisconnect(conn)
	}
}

// Characteristics used by common thermal printer modules (ISSC/Microchip
// transparent UART and Nordic UART).
var (
	knownWriteCharacteristics = []string{
		"49535343-8841-43f4-a8d4-ecbe34729bb3",
		"6e400002-b5a3-f393-e0a9-e50e24dcca9e",
	}
	knownNotifyCharacteristics = []string{
		"49535343-1e4d-4bd9-ba61-23c647249616",
		"6e400003-b5a3-f393-e0a9-e50e24dcca9e",
	}
)

func matchesUUID(id string, known []string) bool {
	for _, k := range known {
		if strings.EqualFold(id, k) {
			return true
		}
	}
	return false
}

// resolveCharacteristics returns the write and notify characteristics
// across all services. A writable characteristic with a known printer
// UUID wins; otherwise the first writable one is used. Notify
// characteristics are chosen the same way.
func resolveCharacteristics(conn Connection) (write, notify Characteristic, err error) {
	services, err := conn.DiscoverServices()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: discover services: %w", ErrConnectionFailed, err)
	}
	if len(services) == 0 {
		return nil, nil, ErrNoServicesFound
	}
	var knownWrite, knownNotify Characteristic
	for _, svc := range services {
		chars, err := svc.DiscoverCharacteristics()
		if err != nil {
			slog.Warn("[BLE] discover characteristics failed", "service", svc.UUID(), "error", err)
			continue
		}
		for _, c := range chars {
			p := c.Properties()
			if p.Writable() {
				if write == nil {
					write = c
				}
				if knownWrite == nil && matchesUUID(c.UUID(), knownWriteCharacteristics) {
					knownWrite = c
				}
			}
			if p.Has(PropertyNotify) {
				if notify == nil {
					notify = c
				}
				if knownNotify == nil && matchesUUID(c.UUID(), knownNotifyCharacteristics) {
					knownNotify = c
				}
			}
		}
	}
	if knownWrite != nil {
		write = knownWrite
	}
	if knownNotify != nil {
		notify = knownNotify
	}
	if write == nil {
		return nil, nil, fmt.Errorf("%w: no writable characteristic", ErrNoServicesFound)
	}
	return write, notify, nil
}

func (s *Session) completeConnect(op *pendingOp, conn Connection, dev DiscoveredDevice, write, notify Characteristic) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingConnect != op {
		return false
	}
	s.pendingConnect = nil
	s.conn = conn
	s.writeChar = write
	s.notifyChar = notify
	s.printer = &dev
	s.setLocked(Connected, "Ready to print!")
	slog.Info("[BLE] connected", "name", dev.Name, "address", dev.Address, "write", write.UUID())
	op.resolve(nil)
	return true
}

func (s *Session) failConnect(op *pendingOp, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingConnect != op {
		return
	}
	s.pendingConnect = nil
	next := s.state
	if next.Kind == StateConnecting {
		next = Disconnected
	}
	msg := "Failed to connect: " + err.Error()
	if errors.Is(err, ErrConnectionTimeout) {
		msg = "Connection timed out"
	}
	s.setLocked(next, msg)
	slog.Warn("[BLE] connect failed", "error", err)
	op.resolve(err)
}

// dropStray disconnects a connection the session no longer wants.
func (s *Session) dropStray(conn Connection) {
	if err := conn.Disconnect(); err != nil {
		slog.Debug("[BLE] disconnect stray connection", "error", err)
	}
}

func (s *Session) handleNotification(data []byte) {
	slog.Debug("[BLE] notification", "data", fmt.Sprintf("% X", data))
}

// PrintTemplate formats t and sends it to the connected printer.
func (s *Session) PrintTemplate(t *receipt.Template) error {
	return s.print(func(context.Context) []byte {
		return s.formatter.FormatTemplate(t)
	})
}

// PrintReceipt formats r in the commercial layout and sends it. Business
// and issuer details come from the configured Lookup; if a lookup fails
// the receipt prints without that block.
func (s *Session) PrintReceipt(r *receipt.Record) error {
	if r == nil {
		return ErrNoReceipt
	}
	return s.print(func(ctx context.Context) []byte {
		business, issuer := receipt.ResolveParties(ctx, s.opts.Lookup, r)
		return s.formatter.FormatReceipt(r, business, issuer)
	})
}

// PrintTestReceipt prints the built-in two-item test receipt.
func (s *Session) PrintTestReceipt() error {
	return s.PrintReceipt(receipt.TestRecord(time.Now()))
}

// print runs one job. render is called off the lock with a context that is
// cancelled when the job is resolved.
func (s *Session) print(render func(context.Context) []byte) error {
	s.mu.Lock()
	if s.pendingPrint != nil {
		s.mu.Unlock()
		return ErrBusy
	}
	if !s.state.IsOperational() || s.writeChar == nil {
		s.mu.Unlock()
		return ErrPrinterNotReady
	}
	ctx, cancel := context.WithCancel(context.Background())
	op := newPendingOp(cancel)
	s.pendingPrint = op
	w := characteristicWriter{char: s.writeChar}
	s.setLocked(Printing, "Preparing print job...")
	op.timer = time.AfterFunc(s.opts.PrintTimeout, func() {
		s.resolvePrint(op, ErrPrintTimeout)
	})
	s.mu.Unlock()

	go func() {
		data := render(ctx)
		slog.Info("[BLE] sending print job", "bytes", len(data))
		err := s.transport.Send(ctx, data, w, func(sent, total int) {
			s.printProgress(op, sent, total)
		})
		s.resolvePrint(op, err)
	}()
	return <-op.done
}

func (s *Session) printProgress(op *pendingOp, sent, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingPrint != op {
		return
	}
	s.setLocked(s.state, fmt.Sprintf("Sending print job... (%d/%d)", sent, total))
}

func (s *Session) resolvePrint(op *pendingOp, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingPrint != op {
		return
	}
	s.pendingPrint = nil
	next := s.state
	if next.Kind == StatePrinting {
		next = Connected
	}
	var msg string
	switch {
	case err == nil:
		msg = "Print job completed!"
		slog.Info("[BLE] print job completed")
	case errors.Is(err, ErrPrintTimeout):
		msg = "Print job timed out"
		slog.Warn("[BLE] print job timed out")
	default:
		msg = "Write error: " + err.Error()
		slog.Error("[BLE] print job failed", "error", err)
	}
	s.setLocked(next, msg)
	op.resolve(err)
}

// Disconnect drops the printer connection. Local state is reset at once
// without waiting for the adapter to confirm; outstanding connect and
// print calls return ErrDisconnected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.resetLocked(ErrDisconnected)
	next := s.state
	if next.Kind != StateScanning {
		next = Disconnected
	}
	s.setLocked(next, "Disconnected")
	s.mu.Unlock()

	if conn != nil {
		slog.Info("[BLE] disconnecting")
		if err := conn.Disconnect(); err != nil {
			slog.Warn("[BLE] disconnect failed", "error", err)
		}
	}
}

// Close disconnects and closes all status subscriptions.
func (s *Session) Close() error {
	s.Disconnect()
	s.bus.closeAll()
	return nil
}

// handleDisconnect processes an adapter-reported link loss. It is a no-op
// unless conn is still the session's connection.
func (s *Session) handleDisconnect(conn Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return
	}
	slog.Warn("[BLE] printer disconnected")
	s.resetLocked(ErrDisconnected)
	next := s.state
	if next.Kind != StateScanning {
		next = Disconnected
	}
	s.setLocked(next, "Disconnected")
}

// handleAdapterState reacts to radio power changes. Power loss drops the
// connection and fails outstanding operations; power restore clears the
// error state.
func (s *Session) handleAdapterState(st AdapterState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slog.Info("[BLE] adapter state changed", "state", st.Message())
	if st == AdapterPoweredOn {
		next := s.state
		if next.Kind == StateError {
			next = Disconnected
		}
		s.setLocked(next, st.Message())
		return
	}
	s.resetLocked(ErrBluetoothNotAvailable)
	s.setLocked(Failed(st.Message()), st.Message())
}

// resetLocked clears the connection fields and fails pending operations
// with cause. The caller sets the resulting state.
func (s *Session) resetLocked(cause error) {
	s.conn = nil
	s.printer = nil
	s.writeChar = nil
	s.notifyChar = nil
	if op := s.pendingConnect; op != nil {
		s.pendingConnect = nil
		op.resolve(cause)
	}
	if op := s.pendingPrint; op != nil {
		s.pendingPrint = nil
		op.resolve(cause)
	}
}

func (s *Session) setLocked(st ConnectionState, msg string) {
	s.state = st
	s.message = msg
	s.publishLocked()
}

func (s *Session) publishLocked() {
	s.bus.publish(s.snapshotLocked())
}

func (s *Session) snapshotLocked() Status {
	st := Status{
		State:     s.state,
		Message:   s.message,
		Connected: s.state.Kind == StateConnected || s.state.Kind == StatePrinting,
		Scanning:  s.state.Kind == StateScanning,
		Printing:  s.state.Kind == StatePrinting,
		Devices:   slices.Clone(s.devices),
	}
	if s.printer != nil {
		p := *s.printer
		st.Printer = &p
	}
	return st
}
