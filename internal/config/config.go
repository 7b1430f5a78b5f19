package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/imrishuroy/shopify-download-relay/internal/vendor"
)

const (
	DefaultVendorBaseURL = "http://downloads.murphysmagic.com/api"
	DefaultPort          = "8080"
	DefaultTTLWindow     = 48 * time.Hour
	DefaultVendorTimeout = 30 * time.Second

	// leaseMargin is added to the vendor timeout to form the default claim
	// lease of the redelivery guard.
	leaseMargin = 30 * time.Second

	DefaultEnvFile = ".env"
)

// Config is the process-wide configuration, read once at start.
type Config struct {
	// VendorAPIKey may be empty; the relay reports that per request.
	VendorAPIKey       string
	VendorBaseURL      string
	VendorFormEncoding string
	VendorTimeout      time.Duration

	WebhookSecret string
	PortalToken   string

	IdempotencyTable string
	TTLWindow        time.Duration
	LeaseWindow      time.Duration
	EventsQueueURL   string
	FulfillmentTable string
	MetricsNamespace string

	LogLevel string
	RunLocal bool
	Port     string
}

// Load reads the configuration from the process environment, after filling
// unset variables from the file named by ENV_FILE (default .env) when it
// exists.
func Load() (Config, error) {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = DefaultEnvFile
	}
	if err := LoadEnvFile(path); err != nil {
		return Config{}, err
	}
	return FromLookup(os.Getenv)
}

// LoadEnvFile sets the variables listed in path that the environment does
// not already define. A missing file is not an error.
func LoadEnvFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	vars, err := ParseEnv(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for key, value := range vars {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// ParseEnv reads KEY=value lines. Blank lines, # comments and lines without
// "=" are skipped; an "export " prefix and matching quotes are stripped.
func ParseEnv(r io.Reader) (map[string]string, error) {
	vars := map[string]string{}
	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		vars[key] = trimQuotes(strings.TrimSpace(value))
	}
	return vars, scanner.Err()
}

func trimQuotes(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// FromLookup builds a Config from an arbitrary variable lookup.
func FromLookup(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		VendorAPIKey:       get("MURPHYS_DOWNLOAD_API_KEY", get("API_KEY", "")),
		VendorBaseURL:      strings.TrimRight(get("VENDOR_BASE_URL", DefaultVendorBaseURL), "/"),
		VendorFormEncoding: strings.ToLower(get("VENDOR_FORM_ENCODING", vendor.EncodingURLEncoded)),
		WebhookSecret:      get("SHOPIFY_WEBHOOK_SECRET", ""),
		PortalToken:        get("PORTAL_TOKEN", ""),
		IdempotencyTable:   get("IDEMPOTENCY_TABLE", ""),
		EventsQueueURL:     get("FULFILLMENT_EVENTS_QUEUE_URL", ""),
		FulfillmentTable:   get("FULFILLMENTS_TABLE", "fulfillments"),
		MetricsNamespace:   get("CLOUDWATCH_NAMESPACE", ""),
		LogLevel:           get("LOG_LEVEL", "info"),
		RunLocal:           get("RUN_LOCAL", "") == "true",
		Port:               get("PORT", DefaultPort),
	}

	switch cfg.VendorFormEncoding {
	case vendor.EncodingURLEncoded, vendor.EncodingMultipart:
	default:
		return Config{}, fmt.Errorf("VENDOR_FORM_ENCODING: unsupported value %q", cfg.VendorFormEncoding)
	}

	var err error
	if cfg.VendorTimeout, err = parseDuration(get("VENDOR_TIMEOUT", ""), DefaultVendorTimeout); err != nil {
		return Config{}, fmt.Errorf("VENDOR_TIMEOUT: %w", err)
	}
	if cfg.TTLWindow, err = parseDuration(get("IDEMPOTENCY_TTL", ""), DefaultTTLWindow); err != nil {
		return Config{}, fmt.Errorf("IDEMPOTENCY_TTL: %w", err)
	}
	if cfg.LeaseWindow, err = parseDuration(get("IDEMPOTENCY_LEASE", ""), cfg.VendorTimeout+leaseMargin); err != nil {
		return Config{}, fmt.Errorf("IDEMPOTENCY_LEASE: %w", err)
	}
	return cfg, nil
}

func parseDuration(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}
