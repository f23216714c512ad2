// Package server exposes the printer session over HTTP.
//
// Routes:
//
//	GET  /api/v1/status               session status
//	GET  /api/v1/events               WebSocket stream of status snapshots
//	POST /api/v1/scan?timeout=5s      scan and return discovered printers
//	POST /api/v1/connect              {"id": "<device uuid>"}
//	POST /api/v1/disconnect
//	GET  /api/v1/templates            built-in template names
//	POST /api/v1/templates/{name}/print
//	POST /api/v1/print/template       template JSON body
//	POST /api/v1/print/receipt        receipt JSON body
//	POST /api/v1/print/test
//	POST /api/v1/receipts/{id}/print  print a stored receipt
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tabonx/papyrus/internal/ble"
	"github.com/Tabonx/papyrus/internal/receipt"
)

// Printer is the session surface the API drives.
type Printer interface {
	Status() ble.Status
	Subscribe() (<-chan ble.Status, func())
	Scan(timeout time.Duration) ([]ble.DiscoveredDevice, error)
	Device(id uuid.UUID) (ble.DiscoveredDevice, bool)
	Connect(dev ble.DiscoveredDevice) error
	Disconnect()
	PrintTemplate(t *receipt.Template) error
	PrintReceipt(r *receipt.Record) error
	PrintTestReceipt() error
}

// Receipts loads stored receipts by id.
type Receipts interface {
	Receipt(ctx context.Context, id uuid.UUID) (*receipt.Record, error)
}

const maxScanTimeout = time.Minute

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Server holds handler dependencies.
type Server struct {
	printer  Printer
	receipts Receipts
}

// NewRouter wires all /api/v1/* routes and returns a http.Handler.
// receipts may be nil, in which case stored receipts cannot be printed.
func NewRouter(printer Printer, receipts Receipts) http.Handler {
	s := &Server{printer: printer, receipts: receipts}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.status)
	mux.HandleFunc("GET /api/v1/events", s.eventStream)

	// Device lifecycle
	mux.HandleFunc("POST /api/v1/scan", s.scan)
	mux.HandleFunc("POST /api/v1/connect", s.connect)
	mux.HandleFunc("POST /api/v1/disconnect", s.disconnect)

	// Printing
	mux.HandleFunc("GET /api/v1/templates", s.listTemplates)
	mux.HandleFunc("POST /api/v1/templates/{name}/print", s.printBuiltin)
	mux.HandleFunc("POST /api/v1/print/template", s.printTemplate)
	mux.HandleFunc("POST /api/v1/print/receipt", s.printReceipt)
	mux.HandleFunc("POST /api/v1/print/test", s.printTest)
	mux.HandleFunc("POST /api/v1/receipts/{id}/print", s.printStored)

	return withLogging(mux)
}

// ── Status ────────────────────────────────────────────────────────────────

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.printer.Status())
}

// ── Device lifecycle ──────────────────────────────────────────────────────

func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	var timeout time.Duration
	if v := r.URL.Query().Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 || d > maxScanTimeout {
			http.Error(w, "timeout must be a duration between 0s and 1m", http.StatusBadRequest)
			return
		}
		timeout = d
	}

	devices, err := s.printer.Scan(timeout)
	if err != nil {
		writeError(w, err)
		return
	}
	if devices == nil {
		devices = []ble.DiscoveredDevice{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"count":   len(devices),
		"status":  s.printer.Status(),
	})
}

type connectRequest struct {
	ID uuid.UUID `json:"id"`
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.ID == uuid.Nil {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	dev, ok := s.printer.Device(req.ID)
	if !ok {
		writeError(w, ble.ErrUnknownDevice)
		return
	}
	if err := s.printer.Connect(dev); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.printer.Status())
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	s.printer.Disconnect()
	writeJSON(w, http.StatusOK, s.printer.Status())
}

// ── Printing ──────────────────────────────────────────────────────────────

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": receipt.BuiltinNames()})
}

func (s *Server) printBuiltin(w http.ResponseWriter, r *http.Request) {
	t, ok := receipt.Builtin(r.PathValue("name"))
	if !ok {
		http.Error(w, "template not found", http.StatusNotFound)
		return
	}
	s.finishPrint(w, s.printer.PrintTemplate(t))
}

func (s *Server) printTemplate(w http.ResponseWriter, r *http.Request) {
	var t receipt.Template
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := t.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.finishPrint(w, s.printer.PrintTemplate(&t))
}

func (s *Server) printReceipt(w http.ResponseWriter, r *http.Request) {
	var rec receipt.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if rec.Number == "" {
		http.Error(w, "number required", http.StatusBadRequest)
		return
	}
	s.finishPrint(w, s.printer.PrintReceipt(&rec))
}

func (s *Server) printTest(w http.ResponseWriter, r *http.Request) {
	s.finishPrint(w, s.printer.PrintTestReceipt())
}

func (s *Server) printStored(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid receipt id", http.StatusBadRequest)
		return
	}
	if s.receipts == nil {
		http.Error(w, "no receipt store configured", http.StatusServiceUnavailable)
		return
	}
	rec, err := s.receipts.Receipt(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	s.finishPrint(w, s.printer.PrintReceipt(rec))
}

func (s *Server) finishPrint(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"printed": true,
		"status":  s.printer.Status(),
	})
}

// ── WebSocket event stream ────────────────────────────────────────────────

func (s *Server) eventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[HTTP] ws upgrade", "error", err)
		return
	}
	defer conn.Close()

	ch, unsub := s.printer.Subscribe()
	defer unsub()

	// Clients start from the current snapshot.
	if err := conn.WriteJSON(s.printer.Status()); err != nil {
		return
	}

	// Drain client frames so close and pong control messages are handled.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	for {
		select {
		case st, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(st); err != nil {
				slog.Debug("[HTTP] ws write", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// ── Middleware ────────────────────────────────────────────────────────────

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rw, r)
		slog.Debug("[HTTP] request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.code,
			"duration", time.Since(start),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	code int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.code = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer for WebSocket upgrades.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("server: response writer does not support hijacking")
	}
	return h.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// ── helpers ───────────────────────────────────────────────────────────────

// statusCode maps session errors onto HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, ble.ErrNoReceipt):
		return http.StatusBadRequest
	case errors.Is(err, ble.ErrBusy), errors.Is(err, ble.ErrPrinterNotReady):
		return http.StatusConflict
	case errors.Is(err, ble.ErrBluetoothNotAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ble.ErrConnectionTimeout), errors.Is(err, ble.ErrPrintTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ble.ErrUnknownDevice), errors.Is(err, receipt.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		slog.Warn("[HTTP] operation failed", "status", code, "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
