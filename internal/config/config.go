package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Printer  PrinterConfig `yaml:"printer"`
	Receipt  ReceiptConfig `yaml:"receipt"`
	Serial   SerialConfig  `yaml:"serial"`
	Store    StoreConfig   `yaml:"store"`
	Server   ServerConfig  `yaml:"server"`
	LogLevel string        `yaml:"log_level"`
}

// PrinterConfig holds BLE discovery and transfer settings.
type PrinterConfig struct {
	Device      string        `yaml:"device"` // address to connect to without choosing from a scan
	NameMarkers []string      `yaml:"name_markers"`
	ScanTimeout time.Duration `yaml:"scan_timeout"`
	ChunkSize   int           `yaml:"chunk_size"`
	ChunkDelay  time.Duration `yaml:"chunk_delay"`
}

// ReceiptConfig holds layout settings for the formatter.
type ReceiptConfig struct {
	CharactersPerLine int    `yaml:"characters_per_line"`
	Currency          string `yaml:"currency"`
	CurrencySuffix    bool   `yaml:"currency_suffix"`
	DateLayout        string `yaml:"date_layout"`
}

// SerialConfig selects a wired or RFCOMM serial printer instead of BLE.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// StoreConfig locates the receipt database.
type StoreConfig struct {
	DBPath string `yaml:"db_path"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "papyrus")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dbPath := filepath.Join(home, ".local", "share", "papyrus", "receipts.db")

	return &Config{
		Printer: PrinterConfig{
			NameMarkers: []string{"RPP", "RONGTA", "PRINTER"},
			ScanTimeout: 10 * time.Second,
			ChunkSize:   20,
			ChunkDelay:  50 * time.Millisecond,
		},
		Receipt: ReceiptConfig{
			CharactersPerLine: 32,
			Currency:          "CZK",
			CurrencySuffix:    true,
			DateLayout:        "02.01.2006",
		},
		Serial: SerialConfig{
			BaudRate: 9600,
		},
		Store: StoreConfig{
			DBPath: dbPath,
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8620",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in db_path and serial.port is expanded to the
// user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Store.DBPath = expandTilde(cfg.Store.DBPath)
	cfg.Serial.Port = expandTilde(cfg.Serial.Port)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if len(c.Printer.NameMarkers) == 0 {
		return fmt.Errorf("printer.name_markers must not be empty")
	}
	if c.Printer.ScanTimeout <= 0 {
		return fmt.Errorf("printer.scan_timeout must be > 0")
	}
	if c.Printer.ChunkSize <= 0 || c.Printer.ChunkSize > 512 {
		return fmt.Errorf("printer.chunk_size must be between 1 and 512, got %d", c.Printer.ChunkSize)
	}
	if c.Printer.ChunkDelay < 0 {
		return fmt.Errorf("printer.chunk_delay must not be negative")
	}

	if c.Receipt.CharactersPerLine < 16 {
		return fmt.Errorf("receipt.characters_per_line must be >= 16, got %d", c.Receipt.CharactersPerLine)
	}
	if _, err := currency.ParseISO(c.Receipt.Currency); err != nil {
		return fmt.Errorf("receipt.currency must be an ISO 4217 code, got %q", c.Receipt.Currency)
	}
	if c.Receipt.DateLayout == "" {
		return fmt.Errorf("receipt.date_layout must not be empty")
	}

	if c.Serial.Port != "" && c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be > 0 when serial.port is set")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a log_level value to a slog level. Unknown values
// map to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const header = `# papyrus configuration
# Generated with defaults; edit as needed.
# printer.device may be set to a printer address to skip scanning.

`

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there. It returns the path written, or "" if a config was already
// present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
