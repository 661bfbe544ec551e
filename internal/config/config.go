package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// Version is the current version of Selenified
	Version = "1"
	// AppName is the application name
	AppName = "Selenified"
	// DefaultPropertiesFile is read when no --config flag is given
	DefaultPropertiesFile = "selenified.toml"
)

// Config holds all configuration options for test runs and the report server
type Config struct {
	// Test run
	Browser        string
	Hub            string // Remote grid; empty runs the browser locally
	AppURL         string
	Headless       bool
	Proxy          string
	OutputDir      string
	DefaultWait    time.Duration
	PollInterval   time.Duration
	PackageResults bool
	GeneratePDF    bool
	ChromeBin      string
	ChromeRevision int

	// Server
	Host    string
	Port    int
	BaseURL string // Full base URL for API responses (e.g., http://localhost:8000)

	// Queue (NATS JetStream)
	WithNats   bool
	NatsURL    string
	NatsStore  string
	NatsAutoDL bool
	NatsBin    string

	// Security
	RateLimitRequests int           // requests per window
	RateLimitWindow   time.Duration // time window for rate limiting
	IdempotencyTTL    time.Duration // TTL for idempotency keys
	RunTTL            time.Duration // TTL for finished runs
	MaxRunTimeout     time.Duration // Maximum allowed run timeout
	MaxRetries        int           // Maximum retries per run

	// Flags
	ConfigFile  string
	ShowVersion bool
	ShowHelp    bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Browser:           "CHROME",
		Hub:               "",
		Headless:          true,
		OutputDir:         "./target/selenified",
		DefaultWait:       5 * time.Second,
		PollInterval:      50 * time.Millisecond,
		Host:              "0.0.0.0",
		Port:              8000,
		BaseURL:           "", // Will be auto-generated if empty
		WithNats:          true,
		NatsURL:           "nats://127.0.0.1:4222",
		NatsStore:         "./data/nats",
		NatsAutoDL:        true,
		NatsBin:           "./bin/nats-server",
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		IdempotencyTTL:    24 * time.Hour,
		RunTTL:            7 * 24 * time.Hour,
		MaxRunTimeout:     30 * time.Minute,
		MaxRetries:        3,
		ConfigFile:        DefaultPropertiesFile,
	}
}

// IsHubSet reports whether tests should run on a remote grid
func (c *Config) IsHubSet() bool {
	return strings.TrimSpace(c.Hub) != ""
}

// LoadFile overlays a TOML properties file onto the config. A missing file is not an error.
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read properties file %s: %w", path, err)
	}

	var props properties
	if err := toml.Unmarshal(data, &props); err != nil {
		return fmt.Errorf("failed to parse properties file %s: %w", path, err)
	}
	return props.apply(c)
}

// properties mirrors the keys accepted in selenified.toml. Unset keys keep their current value.
type properties struct {
	Browser        *string `toml:"browser"`
	Hub            *string `toml:"hub"`
	AppURL         *string `toml:"app_url"`
	Headless       *bool   `toml:"headless"`
	Proxy          *string `toml:"proxy"`
	OutputDir      *string `toml:"output_dir"`
	DefaultWait    *string `toml:"default_wait"`
	PollInterval   *string `toml:"poll_interval"`
	PackageResults *bool   `toml:"package_results"`
	GeneratePDF    *bool   `toml:"generate_pdf"`
	ChromeBin      *string `toml:"chrome_bin"`
	ChromeRevision *int    `toml:"chrome_revision"`

	Host    *string `toml:"host"`
	Port    *int    `toml:"port"`
	BaseURL *string `toml:"base_url"`

	WithNats   *bool   `toml:"with_nats"`
	NatsURL    *string `toml:"nats_url"`
	NatsStore  *string `toml:"nats_store"`
	NatsAutoDL *bool   `toml:"nats_autodl"`
	NatsBin    *string `toml:"nats_bin"`

	RateLimitRequests *int    `toml:"rate_limit"`
	RateLimitWindow   *string `toml:"rate_window"`
	IdempotencyTTL    *string `toml:"idempotency_ttl"`
	RunTTL            *string `toml:"run_ttl"`
	MaxRunTimeout     *string `toml:"max_run_timeout"`
	MaxRetries        *int    `toml:"max_retries"`
}

func (p properties) apply(c *Config) error {
	str := func(src *string, dst *string) {
		if src != nil {
			*dst = *src
		}
	}
	boolean := func(src *bool, dst *bool) {
		if src != nil {
			*dst = *src
		}
	}
	integer := func(src *int, dst *int) {
		if src != nil {
			*dst = *src
		}
	}
	duration := func(key string, src *string, dst *time.Duration) error {
		if src == nil {
			return nil
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, *src, err)
		}
		*dst = d
		return nil
	}

	str(p.Browser, &c.Browser)
	str(p.Hub, &c.Hub)
	str(p.AppURL, &c.AppURL)
	boolean(p.Headless, &c.Headless)
	str(p.Proxy, &c.Proxy)
	str(p.OutputDir, &c.OutputDir)
	boolean(p.PackageResults, &c.PackageResults)
	boolean(p.GeneratePDF, &c.GeneratePDF)
	str(p.ChromeBin, &c.ChromeBin)
	integer(p.ChromeRevision, &c.ChromeRevision)
	str(p.Host, &c.Host)
	integer(p.Port, &c.Port)
	str(p.BaseURL, &c.BaseURL)
	boolean(p.WithNats, &c.WithNats)
	str(p.NatsURL, &c.NatsURL)
	str(p.NatsStore, &c.NatsStore)
	boolean(p.NatsAutoDL, &c.NatsAutoDL)
	str(p.NatsBin, &c.NatsBin)
	integer(p.RateLimitRequests, &c.RateLimitRequests)
	integer(p.MaxRetries, &c.MaxRetries)

	return errors.Join(
		duration("default_wait", p.DefaultWait, &c.DefaultWait),
		duration("poll_interval", p.PollInterval, &c.PollInterval),
		duration("rate_window", p.RateLimitWindow, &c.RateLimitWindow),
		duration("idempotency_ttl", p.IdempotencyTTL, &c.IdempotencyTTL),
		duration("run_ttl", p.RunTTL, &c.RunTTL),
		duration("max_run_timeout", p.MaxRunTimeout, &c.MaxRunTimeout),
	)
}

// ApplyEnv overlays SELENIFIED_* environment variables onto the config
func (c *Config) ApplyEnv() {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString("SELENIFIED_BROWSER", &c.Browser)
	setString("SELENIFIED_HUB", &c.Hub)
	setString("SELENIFIED_APP_URL", &c.AppURL)
	setBool("SELENIFIED_HEADLESS", &c.Headless)
	setString("SELENIFIED_PROXY", &c.Proxy)
	setString("SELENIFIED_OUTPUT_DIR", &c.OutputDir)
	setBool("SELENIFIED_PACKAGE_RESULTS", &c.PackageResults)
	setBool("SELENIFIED_GENERATE_PDF", &c.GeneratePDF)
}

// Normalize clamps out-of-range values and derives BaseURL
func (c *Config) Normalize() {
	if c.BaseURL == "" {
		host := c.Host
		if host == "0.0.0.0" || host == "" {
			host = "localhost"
		}
		c.BaseURL = fmt.Sprintf("http://%s:%d", host, c.Port)
	}

	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRetries > 10 {
		c.MaxRetries = 10
	}
	if c.RateLimitRequests < 1 {
		c.RateLimitRequests = 100
	}
	if c.DefaultWait < 0 {
		c.DefaultWait = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Millisecond
	}
	if c.OutputDir == "" {
		c.OutputDir = "./target/selenified"
	}
}

// ParseFlags parses command line flags and returns the config.
// Precedence: defaults, properties file, environment, flags.
func ParseFlags() *Config {
	return parse(flag.CommandLine, os.Args[1:])
}

func parse(fset *flag.FlagSet, args []string) *Config {
	cfg := DefaultConfig()

	// The properties file has to be known before the other flags are applied
	configFile := DefaultPropertiesFile
	for i, arg := range args {
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			configFile = v
		} else if (arg == "--config" || arg == "-config") && i+1 < len(args) {
			configFile = args[i+1]
		}
	}
	if err := cfg.LoadFile(configFile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	cfg.ApplyEnv()
	cfg.ConfigFile = configFile

	// Test run flags
	fset.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "Properties file (TOML)")
	fset.StringVar(&cfg.Browser, "browser", cfg.Browser, "Browser to run scenarios in")
	fset.StringVar(&cfg.Hub, "hub", cfg.Hub, "Remote grid address (empty runs locally)")
	fset.StringVar(&cfg.AppURL, "app-url", cfg.AppURL, "Default application URL under test")
	fset.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run local browsers headless")
	fset.StringVar(&cfg.Proxy, "proxy", cfg.Proxy, "Proxy for local browsers")
	fset.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for HTML reports")
	fset.DurationVar(&cfg.DefaultWait, "default-wait", cfg.DefaultWait, "Default bounded wait for elements")
	fset.BoolVar(&cfg.PackageResults, "package-results", cfg.PackageResults, "Zip each report with its screenshots")
	fset.BoolVar(&cfg.GeneratePDF, "generate-pdf", cfg.GeneratePDF, "Render a PDF next to each report")
	fset.StringVar(&cfg.ChromeBin, "chrome-bin", cfg.ChromeBin, "Chromium binary (empty lets rod resolve one)")
	fset.IntVar(&cfg.ChromeRevision, "chrome-revision", cfg.ChromeRevision, "Chromium revision to download (0 uses default)")

	// Server flags
	fset.StringVar(&cfg.Host, "host", cfg.Host, "Host address to bind the server")
	fset.IntVar(&cfg.Port, "port", cfg.Port, "Port number for the server")
	fset.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Base URL for API responses (e.g., http://localhost:8000)")

	// NATS flags
	fset.BoolVar(&cfg.WithNats, "with-nats", cfg.WithNats, "Enable NATS JetStream for the run queue")
	fset.StringVar(&cfg.NatsURL, "nats-url", cfg.NatsURL, "NATS server URL")
	fset.StringVar(&cfg.NatsStore, "nats-store", cfg.NatsStore, "NATS JetStream storage directory")
	fset.BoolVar(&cfg.NatsAutoDL, "nats-autodl", cfg.NatsAutoDL, "Auto-download NATS server binary")
	fset.StringVar(&cfg.NatsBin, "nats-bin", cfg.NatsBin, "Path to NATS server binary")

	// Security flags
	fset.IntVar(&cfg.RateLimitRequests, "rate-limit", cfg.RateLimitRequests, "Rate limit requests per minute")
	fset.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Maximum retries per run (0-10)")

	// Other flags
	fset.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Show version information")
	fset.BoolVar(&cfg.ShowHelp, "help", cfg.ShowHelp, "Show help message")

	fset.Usage = func() {
		PrintHelp()
	}

	_ = fset.Parse(args)

	cfg.Normalize()
	return cfg
}

// PrintVersion prints version information
func PrintVersion() {
	fmt.Printf("%s v%s\n", AppName, Version)
}

// PrintHelp prints help information
func PrintHelp() {
	d := DefaultConfig()
	fmt.Printf(`%s v%s (Browser Tests + Reports)

Usage:
  ./server [flags]

Properties:
  --config           %s (TOML, optional; SELENIFIED_* env vars override it)

Test run:
  --browser          %s
  --hub              (empty runs locally)
  --app-url          (default application URL)
  --headless         %v
  --proxy            (local browsers only)
  --output-dir       %s
  --default-wait     %s
  --package-results  %v
  --generate-pdf     %v
  --chrome-bin       (resolved by rod if empty)
  --chrome-revision  %d

Server:
  --host             %s
  --port             %d
  --base-url         (auto-generated if empty)

Queue (NATS JetStream):
  --with-nats        %v
  --nats-url         %s
  --nats-store       %s
  --nats-autodl      %v
  --nats-bin         %s

Security:
  --rate-limit       %d (requests per minute)
  --max-retries      %d (max retries per run)

Other:
  --version          show version
  --help             show this help

`, AppName, Version,
		d.ConfigFile,
		d.Browser, d.Headless, d.OutputDir, d.DefaultWait, d.PackageResults, d.GeneratePDF, d.ChromeRevision,
		d.Host, d.Port,
		d.WithNats, d.NatsURL, d.NatsStore, d.NatsAutoDL, d.NatsBin,
		d.RateLimitRequests, d.MaxRetries)
}

// HandleFlags handles version and help flags, exits if needed
func HandleFlags(cfg *Config) {
	if cfg.ShowVersion {
		PrintVersion()
		os.Exit(0)
	}

	if cfg.ShowHelp {
		PrintHelp()
		os.Exit(0)
	}
}
