// Package config reads boardd settings from the environment.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds boardd settings.
type Config struct {
	TicketAPIURL string
	PageSize     int
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	RedisConnection string
	EventsChannel   string
	EventsSSEURL    string
	EventsToken     string
	CacheTTL        time.Duration
	RefreshSettle   time.Duration

	StorageConnection string
	LayoutTable       string

	Auth0Domain   string
	Auth0Audience string
	TestMode      bool
	TestSecret    string

	Port  string
	Debug bool
}

// Load reads the environment. Malformed numbers and durations are errors
// rather than silent defaults.
func Load() (Config, error) {
	var errs []error
	c := Config{
		TicketAPIURL:      os.Getenv("TICKET_API_URL"),
		RedisConnection:   os.Getenv("REDIS_CONNECTION_STRING"),
		EventsChannel:     envString("EVENTS_CHANNEL", "nexflow:events"),
		EventsSSEURL:      os.Getenv("EVENTS_SSE_URL"),
		EventsToken:       os.Getenv("EVENTS_TOKEN"),
		StorageConnection: os.Getenv("STORAGE_CONNECTION_STRING"),
		LayoutTable:       os.Getenv("LAYOUT_TABLE"),
		Auth0Domain:       os.Getenv("AUTH0_DOMAIN"),
		Auth0Audience:     os.Getenv("AUTH0_AUDIENCE"),
		TestMode:          os.Getenv("AUTH0_TEST_MODE") == "1",
		TestSecret:        os.Getenv("TEST_JWT_SECRET"),
		Port:              envString("BOARDD_PORT", "8080"),
	}
	c.PageSize = envInt("BOARD_PAGE_SIZE", 200, &errs)
	c.WriteTimeout = envDur("BOARD_WRITE_TIMEOUT", 15*time.Second, &errs)
	c.IdleTimeout = envDur("BOARD_IDLE_TIMEOUT", 30*time.Minute, &errs)
	c.CacheTTL = envDur("CACHE_TTL", 24*time.Hour, &errs)
	c.RefreshSettle = envDur("REFRESH_SETTLE", 250*time.Millisecond, &errs)
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil {
		c.Debug = dbg
	}

	if c.IdleTimeout > 0 && c.IdleTimeout < time.Minute {
		errs = append(errs, errors.New("invalid BOARD_IDLE_TIMEOUT: must be at least 1m"))
	}
	if c.TicketAPIURL == "" {
		errs = append(errs, errors.New("missing TICKET_API_URL"))
	}
	if c.PageSize <= 0 {
		errs = append(errs, errors.New("invalid BOARD_PAGE_SIZE: must be greater than zero"))
	}
	if c.TestMode {
		if c.TestSecret == "" {
			errs = append(errs, errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1"))
		}
	} else if c.Auth0Domain == "" || c.Auth0Audience == "" {
		errs = append(errs, errors.New("missing Auth0 config"))
	}
	if c.LayoutTable != "" && c.StorageConnection == "" {
		errs = append(errs, errors.New("LAYOUT_TABLE requires STORAGE_CONNECTION_STRING"))
	}
	return c, errors.Join(errs...)
}

// JWKSURL is the Auth0 key set location.
func (c Config) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", c.Auth0Domain)
}

// Issuer is the expected token issuer.
func (c Config) Issuer() string {
	return "https://" + c.Auth0Domain + "/"
}

// RedisOptions parses a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func RedisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func envDur(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	if d <= 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s: must be positive", key))
		return def
	}
	return d
}
