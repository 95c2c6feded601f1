package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TICKET_API_URL", "https://tickets.example")
	t.Setenv("AUTH0_TEST_MODE", "1")
	t.Setenv("TEST_JWT_SECRET", "secret")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.PageSize != 200 || c.WriteTimeout != 15*time.Second || c.CacheTTL != 24*time.Hour {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.IdleTimeout != 30*time.Minute || c.RefreshSettle != 250*time.Millisecond {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.EventsChannel != "nexflow:events" || c.Port != "8080" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if !c.TestMode || c.TestSecret != "secret" {
		t.Fatalf("expected test mode: %+v", c)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TICKET_API_URL", "https://tickets.example")
	t.Setenv("AUTH0_DOMAIN", "tenant.auth0.com")
	t.Setenv("AUTH0_AUDIENCE", "nexflow")
	t.Setenv("BOARD_PAGE_SIZE", "50")
	t.Setenv("BOARD_WRITE_TIMEOUT", "2s")
	t.Setenv("DEBUG", "true")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.PageSize != 50 || c.WriteTimeout != 2*time.Second || !c.Debug {
		t.Fatalf("overrides not applied: %+v", c)
	}
	if c.JWKSURL() != "https://tenant.auth0.com/.well-known/jwks.json" || c.Issuer() != "https://tenant.auth0.com/" {
		t.Fatalf("unexpected auth urls %s %s", c.JWKSURL(), c.Issuer())
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("BOARD_PAGE_SIZE", "lots")
	t.Setenv("BOARD_WRITE_TIMEOUT", "-1s")
	t.Setenv("LAYOUT_TABLE", "layouts")
	t.Setenv("BOARD_IDLE_TIMEOUT", "10s")

	_, err := Load()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"TICKET_API_URL", "BOARD_PAGE_SIZE", "BOARD_WRITE_TIMEOUT", "Auth0", "STORAGE_CONNECTION_STRING", "BOARD_IDLE_TIMEOUT"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got %v", want, err)
		}
	}
}

func TestRedisOptions(t *testing.T) {
	tests := []struct {
		name     string
		conn     string
		addr     string
		password string
		tls      bool
	}{
		{name: "url", conn: "redis://:pw@localhost:6380/0", addr: "localhost:6380", password: "pw"},
		{name: "azure", conn: "cache.redis.net:6380,password=abc=,ssl=True,abortConnect=False", addr: "cache.redis.net:6380", password: "abc=", tls: true},
		{name: "plain", conn: "localhost:6379", addr: "localhost:6379"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := RedisOptions(tt.conn)
			if opts.Addr != tt.addr || opts.Password != tt.password || (opts.TLSConfig != nil) != tt.tls {
				t.Fatalf("unexpected options: addr=%s password=%s tls=%v", opts.Addr, opts.Password, opts.TLSConfig != nil)
			}
		})
	}
}
