// Command papyrus-printer drives a Rongta-compatible receipt printer over
// BLE (or a serial line) from the command line or an HTTP API.
//
// Usage:
//
//	papyrus-printer [flags] scan
//	papyrus-printer [flags] print-template <builtin name | file.yaml | file.json>
//	papyrus-printer [flags] print-receipt <file.json | receipt uuid>
//	papyrus-printer [flags] test
//	papyrus-printer [flags] serve
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Tabonx/papyrus/internal/ble"
	"github.com/Tabonx/papyrus/internal/config"
	"github.com/Tabonx/papyrus/internal/receipt"
	"github.com/Tabonx/papyrus/internal/serialport"
	"github.com/Tabonx/papyrus/internal/server"
	"github.com/Tabonx/papyrus/internal/store"
)

// jobPrinter is implemented by both the BLE session and the serial printer.
type jobPrinter interface {
	PrintTemplate(t *receipt.Template) error
	PrintReceipt(r *receipt.Record) error
	PrintTestReceipt() error
	Close() error
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/papyrus/config.yaml)")
	device := flag.String("device", "", "printer address; skips scanning (overrides printer.device)")
	scanTimeout := flag.Duration("timeout", 0, "scan window (default from config)")
	writeConfig := flag.Bool("init", false, "write a default config file and exit")
	flag.Usage = usage
	flag.Parse()

	if *writeConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			log.Printf("Config already exists at %s", config.DefaultConfigPath())
			return
		}
		log.Printf("Wrote default config to %s", path)
		return
	}

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *device != "" {
		cfg.Printer.Device = *device
	}
	if *scanTimeout > 0 {
		cfg.Printer.ScanTimeout = *scanTimeout
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	formatter, err := receipt.NewFormatter(receipt.FormatterOptions{
		CharsPerLine:   cfg.Receipt.CharactersPerLine,
		Currency:       cfg.Receipt.Currency,
		CurrencySuffix: cfg.Receipt.CurrencySuffix,
		DateLayout:     cfg.Receipt.DateLayout,
	})
	if err != nil {
		log.Fatalf("receipt formatter: %v", err)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd != "scan" {
		printBanner(cfg)
	}

	switch cmd {
	case "scan":
		err = runScan(cfg)
	case "print-template":
		err = runPrintTemplate(cfg, formatter, args)
	case "print-receipt":
		err = runPrintReceipt(cfg, formatter, args)
	case "test":
		err = withPrinter(cfg, formatter, nil, func(p jobPrinter) error {
			return p.PrintTestReceipt()
		})
	case "serve":
		err = runServe(cfg, formatter)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] scan|print-template|print-receipt|test|serve [args]\n\n", filepath.Base(os.Args[0]))
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nBuilt-in templates: %s\n", strings.Join(receipt.BuiltinNames(), ", "))
}

func newSession(cfg *config.Config, formatter *receipt.Formatter, lookup receipt.Lookup) *ble.Session {
	opts := ble.DefaultOptions()
	opts.NameMarkers = cfg.Printer.NameMarkers
	opts.ScanTimeout = cfg.Printer.ScanTimeout
	opts.ChunkSize = cfg.Printer.ChunkSize
	opts.ChunkDelay = cfg.Printer.ChunkDelay
	opts.Formatter = formatter
	opts.Lookup = lookup
	return ble.NewSession(ble.NewSystemAdapter(), opts)
}

func runScan(cfg *config.Config) error {
	session := newSession(cfg, nil, nil)
	defer session.Close()

	log.Printf("Scanning for %s...", cfg.Printer.ScanTimeout)
	devices, err := session.Scan(cfg.Printer.ScanTimeout)
	if err != nil {
		return err
	}
	st := session.Status()
	if st.State.Kind == ble.StateError {
		return fmt.Errorf("%s", st.Message)
	}
	if len(devices) == 0 {
		log.Println(st.Message)
		return nil
	}
	fmt.Printf("%-36s  %-17s  %5s  %s\n", "ID", "ADDRESS", "RSSI", "NAME")
	for _, d := range devices {
		fmt.Printf("%-36s  %-17s  %5d  %s\n", d.ID, d.Address, d.RSSI, d.Name)
	}
	return nil
}

func runPrintTemplate(cfg *config.Config, formatter *receipt.Formatter, args []string) error {
	if len(args) != 1 {
		return errors.New("expected a built-in template name or a template file")
	}
	t, ok := receipt.Builtin(args[0])
	if !ok {
		var err error
		if t, err = receipt.LoadTemplate(args[0]); err != nil {
			return err
		}
	}
	log.Printf("Printing template %q (%d elements)", t.Name, len(t.Elements))
	return withPrinter(cfg, formatter, nil, func(p jobPrinter) error {
		return p.PrintTemplate(t)
	})
}

func runPrintReceipt(cfg *config.Config, formatter *receipt.Formatter, args []string) error {
	if len(args) != 1 {
		return errors.New("expected a receipt file or a stored receipt id")
	}

	db := openStore(cfg)
	if db != nil {
		defer db.Close()
	}

	var rec *receipt.Record
	if id, err := uuid.Parse(args[0]); err == nil {
		if db == nil {
			return errors.New("receipt store unavailable")
		}
		if rec, err = db.Receipt(context.Background(), id); err != nil {
			return err
		}
	} else {
		if rec, err = receipt.LoadRecord(args[0]); err != nil {
			return err
		}
	}

	var lookup receipt.Lookup
	if db != nil {
		lookup = db
	}
	log.Printf("Printing receipt %s (%d items)", rec.Number, len(rec.Items))
	return withPrinter(cfg, formatter, lookup, func(p jobPrinter) error {
		return p.PrintReceipt(rec)
	})
}

// withPrinter opens the configured printer, runs job and closes it.
func withPrinter(cfg *config.Config, formatter *receipt.Formatter, lookup receipt.Lookup, job func(jobPrinter) error) error {
	p, err := openPrinter(cfg, formatter, lookup)
	if err != nil {
		return err
	}
	defer p.Close()

	start := time.Now()
	if err := job(p); err != nil {
		return err
	}
	log.Printf("Printed in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

func openPrinter(cfg *config.Config, formatter *receipt.Formatter, lookup receipt.Lookup) (jobPrinter, error) {
	if cfg.Serial.Port != "" {
		return serialport.Open(cfg.Serial.Port, cfg.Serial.BaudRate, serialport.Options{
			Formatter: formatter,
			Lookup:    lookup,
		})
	}

	session := newSession(cfg, formatter, lookup)
	dev, err := choosePrinter(session, cfg)
	if err != nil {
		session.Close()
		return nil, err
	}
	log.Printf("Connecting to %s (%s)...", dev.Name, dev.Address)
	if err := session.Connect(dev); err != nil {
		session.Close()
		return nil, err
	}
	log.Println(session.Status().Message)
	return session, nil
}

// choosePrinter returns the configured device, or the strongest printer
// found by a scan.
func choosePrinter(session *ble.Session, cfg *config.Config) (ble.DiscoveredDevice, error) {
	if addr := cfg.Printer.Device; addr != "" {
		return ble.DiscoveredDevice{ID: ble.DeviceID(addr), Address: addr, Name: addr}, nil
	}

	log.Printf("No printer.device configured, scanning for %s...", cfg.Printer.ScanTimeout)
	devices, err := session.Scan(cfg.Printer.ScanTimeout)
	if err != nil {
		return ble.DiscoveredDevice{}, err
	}
	if len(devices) == 0 {
		return ble.DiscoveredDevice{}, fmt.Errorf("%s", session.Status().Message)
	}
	best := slices.MaxFunc(devices, func(a, b ble.DiscoveredDevice) int { return a.RSSI - b.RSSI })
	return best, nil
}

func runServe(cfg *config.Config, formatter *receipt.Formatter) error {
	db := openStore(cfg)
	var (
		lookup   receipt.Lookup
		receipts server.Receipts
	)
	if db != nil {
		defer db.Close()
		lookup, receipts = db, db
	}

	session := newSession(cfg, formatter, lookup)
	defer session.Close()

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.NewRouter(session, receipts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Printf("Listening on http://%s. Ctrl+C to quit.", cfg.Server.ListenAddr)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down...", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	log.Println("Goodbye!")
	return nil
}

// openStore opens the receipt database, or returns nil if it cannot.
func openStore(cfg *config.Config) *store.DB {
	path := cfg.Store.DBPath
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		slog.Warn("[PRINT] receipt store unavailable", "path", path, "error", err)
		return nil
	}
	db, err := store.Open(path)
	if err != nil {
		slog.Warn("[PRINT] receipt store unavailable", "path", path, "error", err)
		return nil
	}
	if err := store.Migrate(db); err != nil {
		slog.Warn("[PRINT] receipt store unavailable", "path", path, "error", err)
		db.Close()
		return nil
	}
	return db
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== papyrus-printer ===")
	if cfg.Serial.Port != "" {
		fmt.Printf("  Serial:  %s @ %d baud\n", cfg.Serial.Port, cfg.Serial.BaudRate)
	} else {
		device := cfg.Printer.Device
		if device == "" {
			device = "scan (" + strings.Join(cfg.Printer.NameMarkers, ", ") + ")"
		}
		fmt.Printf("  Printer: %s\n", device)
		fmt.Printf("  Chunks:  %d bytes every %s\n", cfg.Printer.ChunkSize, cfg.Printer.ChunkDelay)
	}
	fmt.Printf("  Paper:   %d columns, %s\n", cfg.Receipt.CharactersPerLine, cfg.Receipt.Currency)
	fmt.Printf("  Store:   %s\n", cfg.Store.DBPath)
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("=======================")
}
