package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"nexflow/domain"
)

func TestReadEvents(t *testing.T) {
	body := strings.Join([]string{
		": keep-alive",
		"event: bugUpdated",
		`data: {"_id":"t1","project":"p1"}`,
		"",
		"event: commentAdded",
		"data: not-json",
		"",
		`data: {"type":"bugDeleted","project":"p2"}`,
		"",
		"data: {}",
		"",
	}, "\n")

	var got []domain.TicketEvent
	err := readEvents(strings.NewReader(body), func(ev domain.TicketEvent) { got = append(got, ev) })
	if err == nil {
		t.Fatal("expected end of stream to be reported")
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %#v", got)
	}
	if got[0].Type != domain.TicketUpdated || !got[0].Concerns("p1") || got[0].Concerns("p2") {
		t.Fatalf("unexpected first event %#v", got[0])
	}
	if got[1].Type != domain.CommentAdded || got[1].Data != nil {
		t.Fatalf("unexpected second event %#v", got[1])
	}
	if got[2].Type != domain.TicketDeleted || got[2].Project != "p2" {
		t.Fatalf("unexpected third event %#v", got[2])
	}
}

func TestSSEClientReceivesEventsWithToken(t *testing.T) {
	var mu sync.Mutex
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: bugCreated\ndata: {\"project\":\"p1\"}\n\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	c := &SSEClient{URL: srv.URL, Token: func() string { return "tok" }, RetryDelay: 10 * time.Millisecond, Logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan domain.TicketEvent, 1)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, func(ev domain.TicketEvent) { events <- ev }) }()

	select {
	case ev := <-events:
		if ev.Type != domain.TicketCreated {
			t.Fatalf("unexpected event %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	mu.Lock()
	if auth != "Bearer tok" {
		t.Fatalf("unexpected authorization header %q", auth)
	}
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean exit, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit")
	}
}

func TestSSEClientStopsWhenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	c := &SSEClient{URL: srv.URL, RetryDelay: 10 * time.Millisecond, Logger: logger}
	err := c.Run(context.Background(), func(domain.TicketEvent) {})
	if !errors.Is(err, ErrStreamRejected) {
		t.Fatalf("expected ErrStreamRejected, got %v", err)
	}
}

func TestSSEClientReconnects(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: bugDeleted\ndata: {}\n\n"))
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	c := &SSEClient{URL: srv.URL, RetryDelay: 10 * time.Millisecond, Logger: logger}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got := make(chan struct{}, 8)
	go func() {
		_ = c.Run(ctx, func(domain.TicketEvent) {
			select {
			case got <- struct{}{}:
			default:
			}
		})
	}()

	select {
	case <-got:
	case <-ctx.Done():
		t.Fatal("no event after reconnect")
	}
}
