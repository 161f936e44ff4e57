package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"gemini-proxy/internal/integrations/gemini"
	"gemini-proxy/internal/integrations/paramstore"
)

const (
	envAPIKey             = "GEMINI_API_KEY"
	envAPIKeyParam        = "GEMINI_API_KEY_PARAM"
	envPort               = "PORT"
	envStaticDir          = "STATIC_DIR"
	envBaseURL            = "GEMINI_BASE_URL"
	envAPIVersion         = "GEMINI_API_VERSION"
	envModel              = "GEMINI_MODEL"
	envUpstreamTimeout    = "GEMINI_TIMEOUT"
	envMaxBodyBytes       = "MAX_BODY_BYTES"
	envLogLevel           = "LOG_LEVEL"
	envLogFormat          = "LOG_FORMAT"
	envServerReadTimeout  = "SERVER_READ_TIMEOUT"
	envServerWriteTimeout = "SERVER_WRITE_TIMEOUT"
	envServerIdleTimeout  = "SERVER_IDLE_TIMEOUT"
	envGracefulShutdown   = "GRACEFUL_SHUTDOWN"

	defaultPort              = "3000"
	defaultStaticDir         = "public"
	defaultMaxBodyBytes      = 1 << 20
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultServerReadTimeout = 30 * time.Second
	defaultServerIdleTimeout = 120 * time.Second
	defaultGracefulShutdown  = 10 * time.Second
)

// Config is built once at startup and only read afterwards.
type Config struct {
	// APIKey is the upstream credential. It may be empty; requests then fail
	// with a configuration error instead of the process refusing to start.
	APIKey      string
	APIKeyParam string

	Port      string
	StaticDir string

	BaseURL         string
	APIVersion      string
	Model           string
	UpstreamTimeout time.Duration
	MaxBodyBytes    int64

	LogLevel  string
	LogFormat string

	ServerReadTimeout       time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	GracefulShutdownTimeout time.Duration
}

// LoadDotEnv loads .env files into the process environment. Variables that are
// already set win. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("config: load env file: %w", err)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	port := getString(envPort, defaultPort)
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return Config{}, fmt.Errorf("config: invalid %s %q", envPort, port)
	}

	baseURL := getString(envBaseURL, gemini.DefaultBaseURL)
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid %s: %w", envBaseURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return Config{}, fmt.Errorf("config: %s must be absolute (scheme://host)", envBaseURL)
	}

	cfg := Config{
		APIKey:                  strings.TrimSpace(os.Getenv(envAPIKey)),
		APIKeyParam:             strings.TrimSpace(os.Getenv(envAPIKeyParam)),
		Port:                    port,
		StaticDir:               getString(envStaticDir, defaultStaticDir),
		BaseURL:                 baseURL,
		APIVersion:              getString(envAPIVersion, gemini.DefaultAPIVersion),
		Model:                   getString(envModel, gemini.DefaultModel),
		UpstreamTimeout:         getDuration(envUpstreamTimeout, 0),
		MaxBodyBytes:            getInt64(envMaxBodyBytes, defaultMaxBodyBytes),
		LogLevel:                strings.ToLower(getString(envLogLevel, defaultLogLevel)),
		LogFormat:               strings.ToLower(getString(envLogFormat, defaultLogFormat)),
		ServerReadTimeout:       getDuration(envServerReadTimeout, defaultServerReadTimeout),
		ServerWriteTimeout:      getDuration(envServerWriteTimeout, 0),
		ServerIdleTimeout:       getDuration(envServerIdleTimeout, defaultServerIdleTimeout),
		GracefulShutdownTimeout: getDuration(envGracefulShutdown, defaultGracefulShutdown),
	}
	return cfg, nil
}

// NeedsSecretLookup reports whether the key must be fetched from Parameter Store.
func (c Config) NeedsSecretLookup() bool {
	return c.APIKey == "" && c.APIKeyParam != ""
}

// WithSecret returns a copy of c whose APIKey is read from the parameter named
// by APIKeyParam. It is a no-op when no lookup is needed.
func (c Config) WithSecret(ctx context.Context, g paramstore.Getter) (Config, error) {
	if !c.NeedsSecretLookup() {
		return c, nil
	}
	if g == nil {
		return c, errors.New("config: parameter getter must not be nil")
	}
	key, err := paramstore.GetSecret(ctx, g, c.APIKeyParam)
	if err != nil {
		return c, fmt.Errorf("config: resolve %s: %w", envAPIKeyParam, err)
	}
	c.APIKey = key
	return c, nil
}

// ListenAddr is the address the HTTP server binds to.
func (c Config) ListenAddr() string {
	return ":" + c.Port
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
