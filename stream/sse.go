package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"nexflow/domain"
)

// SSEClient consumes a text/event-stream of ticket events. The event name
// becomes the event type and the data lines its payload.
type SSEClient struct {
	URL string
	// Token returns the bearer token sent with each connection attempt.
	Token      func() string
	HTTP       *http.Client
	RetryDelay time.Duration
	Logger     *log.Logger
}

// ErrStreamRejected is returned when the server refuses the stream with 401 or 403.
var ErrStreamRejected = errors.New("event stream rejected")

// Run connects and delivers events to handle until ctx is done, reconnecting
// after RetryDelay whenever the stream ends. It only returns early if the
// server rejects the credentials.
func (c *SSEClient) Run(ctx context.Context, handle func(domain.TicketEvent)) error {
	delay := c.RetryDelay
	if delay <= 0 {
		delay = 3 * time.Second
	}
	logger := c.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	for {
		err := c.stream(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrStreamRejected) {
			return err
		}
		logger.WithError(err).WithField("url", c.URL).Warn("event stream dropped, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (c *SSEClient) stream(ctx context.Context, handle func(domain.TicketEvent)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.Token != nil {
		if tok := c.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrStreamRejected, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("event stream: unexpected status %s", resp.Status)
	}
	return readEvents(resp.Body, handle)
}

type sseFrame struct {
	event string
	data  []string
}

func readEvents(r io.Reader, handle func(domain.TicketEvent)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var f sseFrame
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if ev, ok := f.decode(); ok {
				handle(ev)
			}
			f = sseFrame{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.event = value
		case "data":
			f.data = append(f.data, value)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return errors.New("event stream closed")
}

// decode builds an event from a frame. A frame without an event name may
// carry a full JSON TicketEvent as its data.
func (f sseFrame) decode() (domain.TicketEvent, bool) {
	if f.event == "" && len(f.data) == 0 {
		return domain.TicketEvent{}, false
	}
	data := strings.Join(f.data, "\n")
	if f.event == "" || f.event == "message" {
		var ev domain.TicketEvent
		if err := sonic.UnmarshalString(data, &ev); err == nil && ev.Type != "" {
			return ev, true
		}
		return domain.TicketEvent{}, false
	}
	ev := domain.TicketEvent{Type: f.event}
	if data != "" && sonic.Valid([]byte(data)) {
		ev.Data = json.RawMessage(data)
	}
	return ev, true
}
