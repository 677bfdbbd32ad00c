// Package config implements the peakwatch tracker config.
//
// Values come from, in order of precedence:
//  1. Command-line flags
//  2. Environment variables
//  3. An optional YAML file named by CONFIG_FILE (keys are the lower-cased
//     environment variable names, e.g. "interval: 30s")
//  4. Default values
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all tracker configuration.
type Config struct {
	Listen     string
	GRPCListen string
	StaticDir  string

	// Polling
	Interval        time.Duration
	FetchTimeout    time.Duration
	PersistTimeout  time.Duration
	HistoryCapacity int

	// Upstream source
	Source      string
	Metric      string
	SteamAPIURL string
	SteamAppID  string
	SteamAPIKey string
	PromURL     string
	PromQuery   string

	// Storage
	Storage       string
	StateFile     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
	SQLitePath    string

	// Notifications
	Notifiers             []string
	NotificationThreshold int64
	NotifyTimeout         time.Duration
	WebhookURL            string
	NostrSecretKey        string
	NostrRelays           []string
	EmailTo               []string
	SMTPHost              string
	SMTPPort              int
	SMTPUsername          string
	SMTPPassword          string
	SMTPFrom              string
	SMTPTLS               string

	// Logging
	LogFormat string
	LogLevel  string
	Tracing   bool
}

// ParseFlags parses command-line flags, environment variables and the
// optional config file into a Config. Exits with status 1 if the config file
// cannot be read or the result fails validation.
func ParseFlags() *Config {
	src, err := newSources(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	cfg := &Config{}
	var notifiers, relays, emailTo string

	// Server
	flag.StringVar(&cfg.Listen, "listen", src.getEnv("LISTEN", defaultListen(src)), "HTTP listen address (defaults to :$PORT, then :3000)")
	flag.StringVar(&cfg.GRPCListen, "grpc-listen", src.getEnv("GRPC_LISTEN", ""), "gRPC health listen address (empty disables)")
	flag.StringVar(&cfg.StaticDir, "static-dir", src.getEnv("STATIC_DIR", ""), "Directory served under /static/")

	// Polling
	flag.DurationVar(&cfg.Interval, "interval", src.getEnvDuration("INTERVAL", 60*time.Second), "Poll interval")
	flag.DurationVar(&cfg.FetchTimeout, "fetch-timeout", src.getEnvDuration("FETCH_TIMEOUT", 10*time.Second), "Upstream fetch timeout")
	flag.DurationVar(&cfg.PersistTimeout, "persist-timeout", src.getEnvDuration("PERSIST_TIMEOUT", 5*time.Second), "State persist timeout")
	flag.IntVar(&cfg.HistoryCapacity, "history", src.getEnvInt("HISTORY_CAPACITY", 5), "Number of records kept in history")

	// Upstream
	flag.StringVar(&cfg.Source, "source", src.getEnv("SOURCE", "steam"), "Upstream source: steam or prometheus")
	flag.StringVar(&cfg.Metric, "metric", src.getEnv("METRIC", "player count"), "Display name of the tracked metric")
	flag.StringVar(&cfg.SteamAPIURL, "steam-url", src.getEnv("STEAM_API_URL", "https://api.steampowered.com"), "Steam Web API base URL")
	flag.StringVar(&cfg.SteamAppID, "steam-app-id", src.getEnv("STEAM_APP_ID", "1973530"), "Steam app id")
	flag.StringVar(&cfg.SteamAPIKey, "steam-api-key", src.getEnv("STEAM_API_KEY", ""), "Steam Web API key (optional)")
	flag.StringVar(&cfg.PromURL, "prom-url", src.getEnv("PROM_URL", "http://localhost:9090"), "Prometheus URL")
	flag.StringVar(&cfg.PromQuery, "prom-query", src.getEnv("PROM_QUERY", ""), "Prometheus instant query")

	// Storage
	flag.StringVar(&cfg.Storage, "storage", src.getEnv("STORAGE", "file"), "Storage backend: file, memory, redis or sqlite")
	flag.StringVar(&cfg.StateFile, "state-file", src.getEnv("STATE_FILE", "./allTimeHigh.json"), "State file for the file backend")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", src.getEnv("REDIS_ADDR", "localhost:6379"), "Redis address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", src.getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", src.getEnvInt("REDIS_DB", 0), "Redis database")
	flag.StringVar(&cfg.RedisKey, "redis-key", src.getEnv("REDIS_KEY", "peakwatch:state"), "Redis key holding the state")
	flag.StringVar(&cfg.SQLitePath, "sqlite-path", src.getEnv("SQLITE_PATH", "./peakwatch.db"), "SQLite database path")

	// Notifications
	flag.StringVar(&notifiers, "notifiers", src.getEnv("NOTIFIERS", src.getEnv("NOTIFIER_SERVICE", "log")), "Comma-separated notifiers: log, webhook, nostr, email")
	flag.Int64Var(&cfg.NotificationThreshold, "notification-threshold", int64(src.getEnvInt("NOTIFICATION_THRESHOLD", 0)), "Only announce records at or above this value")
	flag.DurationVar(&cfg.NotifyTimeout, "notify-timeout", src.getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second), "Notification delivery timeout")
	flag.StringVar(&cfg.WebhookURL, "webhook-url", src.getEnv("WEBHOOK_URL", ""), "Chat webhook URL")
	flag.StringVar(&cfg.NostrSecretKey, "nostr-secret-key", src.getEnv("NOSTR_SECRET_KEY", ""), "Nostr secret key (hex or nsec)")
	flag.StringVar(&relays, "nostr-relays", src.getEnv("NOSTR_RELAYS", ""), "Comma-separated nostr relay URLs")
	flag.StringVar(&emailTo, "notifier-email", src.getEnv("NOTIFIER_EMAIL", ""), "Comma-separated email recipients")
	flag.StringVar(&cfg.SMTPHost, "smtp-host", src.getEnv("SMTP_HOST", ""), "SMTP server host")
	flag.IntVar(&cfg.SMTPPort, "smtp-port", src.getEnvInt("SMTP_PORT", 587), "SMTP server port")
	flag.StringVar(&cfg.SMTPUsername, "smtp-username", src.getEnv("SMTP_USERNAME", ""), "SMTP username (empty disables auth)")
	flag.StringVar(&cfg.SMTPPassword, "smtp-password", src.getEnv("SMTP_PASSWORD", ""), "SMTP password")
	flag.StringVar(&cfg.SMTPFrom, "smtp-from", src.getEnv("SMTP_FROM", ""), "Sender address for email notifications")
	flag.StringVar(&cfg.SMTPTLS, "smtp-tls", src.getEnv("SMTP_TLS", "opportunistic"), "SMTP TLS policy: opportunistic, mandatory or none")

	// Logging
	flag.StringVar(&cfg.LogFormat, "log-format", src.getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", src.getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.BoolVar(&cfg.Tracing, "tracing", src.getEnvBool("TRACING", false), "Trace every tick (forces debug logging)")

	flag.Parse()

	cfg.Notifiers = splitList(notifiers)
	cfg.NostrRelays = splitList(relays)
	cfg.EmailTo = splitList(emailTo)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		flag.Usage()
		os.Exit(1)
	}

	return cfg
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Interval <= 0 {
		errs = append(errs, errors.New("--interval must be positive"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("--fetch-timeout must be positive"))
	}
	if c.PersistTimeout <= 0 {
		errs = append(errs, errors.New("--persist-timeout must be positive"))
	}
	if c.NotifyTimeout <= 0 {
		errs = append(errs, errors.New("--notify-timeout must be positive"))
	}
	if c.HistoryCapacity < 1 {
		errs = append(errs, errors.New("--history must be at least 1"))
	}

	switch c.Source {
	case "steam":
	case "prometheus":
		if c.PromQuery == "" {
			errs = append(errs, errors.New("--prom-query is required for the prometheus source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown --source %q", c.Source))
	}

	switch c.Storage {
	case "file":
		if c.StateFile == "" {
			errs = append(errs, errors.New("--state-file is required for file storage"))
		}
	case "memory", "redis", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown --storage %q", c.Storage))
	}

	for _, n := range c.Notifiers {
		switch n {
		case "log":
		case "webhook":
			if c.WebhookURL == "" {
				errs = append(errs, errors.New("--webhook-url is required for the webhook notifier"))
			}
		case "nostr":
			if c.NostrSecretKey == "" || len(c.NostrRelays) == 0 {
				errs = append(errs, errors.New("--nostr-secret-key and --nostr-relays are required for the nostr notifier"))
			}
		case "email":
			if c.SMTPHost == "" || c.SMTPFrom == "" || len(c.EmailTo) == 0 {
				errs = append(errs, errors.New("--smtp-host, --smtp-from and --notifier-email are required for the email notifier"))
			}
			switch c.SMTPTLS {
			case "opportunistic", "mandatory", "none":
			default:
				errs = append(errs, fmt.Errorf("unknown --smtp-tls %q", c.SMTPTLS))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown notifier %q", n))
		}
	}

	return errors.Join(errs...)
}

// EffectiveLogLevel returns the log level, raised to debug when tracing.
func (c *Config) EffectiveLogLevel() string {
	if c.Tracing {
		return "debug"
	}
	return c.LogLevel
}

// LogValue renders the config for startup logging with secrets masked.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("listen", c.Listen),
		slog.String("grpc_listen", c.GRPCListen),
		slog.Duration("interval", c.Interval),
		slog.Duration("fetch_timeout", c.FetchTimeout),
		slog.Int("history_capacity", c.HistoryCapacity),
		slog.String("source", c.Source),
		slog.String("metric", c.Metric),
		slog.String("steam_app_id", c.SteamAppID),
		slog.String("steam_api_key", mask(c.SteamAPIKey)),
		slog.String("storage", c.Storage),
		slog.String("redis_password", mask(c.RedisPassword)),
		slog.Any("notifiers", c.Notifiers),
		slog.Int64("notification_threshold", c.NotificationThreshold),
		slog.String("webhook_url", mask(c.WebhookURL)),
		slog.String("nostr_secret_key", mask(c.NostrSecretKey)),
		slog.Any("notifier_email", c.EmailTo),
		slog.String("smtp_host", c.SMTPHost),
		slog.String("smtp_password", mask(c.SMTPPassword)),
	)
}

// mask keeps the first three characters of a secret.
func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 3 {
		return "***"
	}
	return secret[:3] + "***"
}

// defaultListen binds every interface on $PORT when the platform sets one.
func defaultListen(src *sources) string {
	if port := src.getEnv("PORT", ""); port != "" {
		return ":" + port
	}
	return ":3000"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sources resolves a key from the environment, then the config file.
type sources struct {
	file *viper.Viper
}

func newSources(path string) (*sources, error) {
	if path == "" {
		return &sources{}, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return &sources{file: v}, nil
}

func (s *sources) lookup(key string) (string, bool) {
	if value := os.Getenv(key); value != "" {
		return value, true
	}
	if s.file != nil {
		if k := strings.ToLower(key); s.file.IsSet(k) {
			return s.file.GetString(k), true
		}
	}
	return "", false
}

func (s *sources) getEnv(key, defaultValue string) string {
	if value, ok := s.lookup(key); ok {
		return value
	}
	return defaultValue
}

func (s *sources) getEnvInt(key string, defaultValue int) int {
	if value, ok := s.lookup(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func (s *sources) getEnvBool(key string, defaultValue bool) bool {
	if value, ok := s.lookup(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func (s *sources) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := s.lookup(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
