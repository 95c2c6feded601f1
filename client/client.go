package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"nexflow/domain"
)

const (
	// DefaultPageSize bounds a board fetch.
	DefaultPageSize = 200

	maxErrorBody = 4 << 10

	HeaderRequestID      = "X-Request-ID"
	HeaderClientRevision = "X-Client-Revision"
)

var (
	// ErrNoSession is returned before any request is made when no token is present.
	ErrNoSession = errors.New("no session token")
	// ErrUnauthorized is returned for 401 responses; the session is cleared.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict is returned when the API rejects a write as stale.
	ErrConflict = errors.New("conflicting ticket revision")
)

// StatusError is returned for any other non-success response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Client talks to the ticket REST API on behalf of one session.
type Client struct {
	BaseURL string
	Session *Session
	HTTP    *http.Client
}

// New creates a client for baseURL. A nil session behaves as logged out.
func New(baseURL string, session *Session) *Client {
	return &Client{BaseURL: baseURL, Session: session, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

type ticketsResponse struct {
	Bugs []domain.Ticket `json:"bugs"`
}

type statusUpdate struct {
	Status domain.Status `json:"status"`
}

// ListTickets fetches up to limit tickets of a project.
func (c *Client) ListTickets(ctx context.Context, project string, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	q := url.Values{}
	q.Set("project", project)
	q.Set("limit", strconv.Itoa(limit))

	var resp ticketsResponse
	if err := c.do(ctx, http.MethodGet, "/api/bugs?"+q.Encode(), nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Bugs == nil {
		return []domain.Ticket{}, nil
	}
	return resp.Bugs, nil
}

// UpdateStatus writes a single-field status change. revision is the client's
// move counter for the ticket; zero omits the header.
func (c *Client) UpdateStatus(ctx context.Context, ticketID string, status domain.Status, revision uint64) error {
	hdr := http.Header{}
	hdr.Set(HeaderRequestID, uuid.NewString())
	if revision > 0 {
		hdr.Set(HeaderClientRevision, strconv.FormatUint(revision, 10))
	}
	return c.do(ctx, http.MethodPut, "/api/bugs/"+url.PathEscape(ticketID), statusUpdate{Status: status}, hdr, nil)
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base := strings.TrimRight(c.BaseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func (c *Client) do(ctx context.Context, method, path string, body any, hdr http.Header, out any) error {
	token := c.Session.Token()
	if token == "" {
		return ErrNoSession
	}

	var rdr io.Reader
	if body != nil {
		payload, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(payload)
	}
	target := c.resolve(path)
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.Session.Clear()
		if msg := errorMessage(resp.Body); msg != "" {
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		}
		return ErrUnauthorized
	case resp.StatusCode == http.StatusConflict:
		if msg := errorMessage(resp.Body); msg != "" {
			return fmt.Errorf("%w: %s", ErrConflict, msg)
		}
		return ErrConflict
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, URL: target, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	dec := sonic.ConfigStd.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, target, err)
	}
	return nil
}

// errorMessage extracts {"message": "..."} from an error body, if present.
func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := sonic.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(raw))
}
