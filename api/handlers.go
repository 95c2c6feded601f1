package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"nexflow/board"
)

const (
	dropMaxSize       = 4 << 10
	heartbeatInterval = 20 * time.Second
)

// Register wires up the board routes on the provided Echo instance.
func Register(e *echo.Echo, reg *Registry, auth Authenticator, logger *log.Logger) {
	e.JSONSerializer = sonicSerializer{}
	e.GET("/healthz", healthz)

	g := e.Group("/api/projects/:project/board")
	g.GET("", getBoard(reg, auth))
	g.POST("/refresh", refreshBoard(reg, auth))
	g.POST("/drop", dropTicket(reg, auth))
	g.GET("/stream", streamBoard(reg, auth, logger))
}

type dropResponse struct {
	Board     board.Snapshot `json:"board"`
	Applied   bool           `json:"applied"`
	Duplicate bool           `json:"duplicate,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// openBoard authenticates the request and returns its loaded board.
func openBoard(c echo.Context, reg *Registry, auth Authenticator) (*boardEntry, error) {
	p, err := auth.Authenticate(authHeader(c))
	if err != nil {
		return nil, c.String(http.StatusUnauthorized, err.Error())
	}
	project := c.Param("project")
	if project == "" {
		return nil, c.String(http.StatusBadRequest, "missing project")
	}
	ent, err := reg.acquire(p, project)
	if err != nil {
		return nil, c.String(http.StatusServiceUnavailable, err.Error())
	}
	ent.ensureLoaded(c.Request().Context())
	return ent, nil
}

func getBoard(reg *Registry, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ent, err := openBoard(c, reg, auth)
		if ent == nil {
			return err
		}
		return c.JSON(http.StatusOK, ent.engine.Snapshot())
	}
}

func refreshBoard(reg *Registry, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ent, err := openBoard(c, reg, auth)
		if ent == nil {
			return err
		}
		if err := ent.engine.Load(c.Request().Context()); err != nil {
			var ferr *board.FetchError
			if errors.As(err, &ferr) {
				return c.String(http.StatusBadGateway, ferr.Error())
			}
			return c.String(http.StatusServiceUnavailable, err.Error())
		}
		return c.JSON(http.StatusOK, ent.engine.Snapshot())
	}
}

// dropTicket applies a drag gesture. With ?wait=true the response is held
// until the status write finishes and reports a rejection with 409. A repeated
// Idempotency-Key returns the current board without applying the drop again.
func dropTicket(reg *Registry, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ent, err := openBoard(c, reg, auth)
		if ent == nil {
			return err
		}

		var g board.Gesture
		dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, dropMaxSize))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&g); err != nil || g.TicketID == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		ctx := c.Request().Context()
		dedupe := reg.opts.Deduper
		idemKey := c.Request().Header.Get(HeaderIdempotencyKey)
		forget := func() {
			if idemKey != "" {
				_ = dedupe.Remove(context.WithoutCancel(ctx), ent.key.user, idemKey)
			}
		}
		if idemKey != "" {
			fresh, err := dedupe.Add(ctx, ent.key.user, idemKey)
			if err != nil {
				reg.logger.WithError(err).Warn("idempotency check failed")
				idemKey = ""
			} else if !fresh {
				return c.JSON(http.StatusOK, dropResponse{Board: ent.engine.Snapshot(), Duplicate: true})
			}
		}

		pending, err := ent.engine.Drop(ctx, g)
		switch {
		case errors.Is(err, board.ErrInvalidMove):
			forget()
			return c.JSON(http.StatusOK, dropResponse{Board: ent.engine.Snapshot()})
		case err != nil:
			forget()
			return c.String(http.StatusServiceUnavailable, err.Error())
		}
		var onReject func()
		if idemKey != "" {
			onReject = forget
		}
		reg.track(ent.key.project, pending, onReject)

		if c.QueryParam("wait") == "true" {
			if werr := pending.Wait(ctx); werr != nil {
				var rej *board.MoveRejectedError
				if errors.As(werr, &rej) {
					forget()
					return c.JSON(http.StatusConflict, dropResponse{Board: ent.engine.Snapshot(), Error: rej.Error()})
				}
				if ctx.Err() != nil {
					// The client went away; the write carries on detached.
					return nil
				}
				return werr
			}
		}
		return c.JSON(http.StatusOK, dropResponse{Board: ent.engine.Snapshot(), Applied: true})
	}
}

// streamBoard sends the board as server-sent events: a "board" event with the
// full snapshot after every change and a "toast" event per notification.
func streamBoard(reg *Registry, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ent, err := openBoard(c, reg, auth)
		if ent == nil {
			return err
		}
		sub := ent.hub.subscribe()
		defer ent.hub.unsubscribe(sub)

		w := c.Response()
		w.Header().Set(echo.HeaderContentType, "text/event-stream")
		w.Header().Set(echo.HeaderCacheControl, "no-cache")
		w.Header().Set(echo.HeaderConnection, "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		ctx := c.Request().Context()
		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		lastVersion := uint64(0)
		sendBoard := func() error {
			snap := ent.engine.Snapshot()
			if snap.Version != 0 && snap.Version == lastVersion {
				return nil
			}
			lastVersion = snap.Version
			return writeEvent(w, "board", snap)
		}
		if err := sendBoard(); err != nil {
			return nil
		}
		for {
			var err error
			select {
			case <-ctx.Done():
				return nil
			case <-sub.board:
				err = sendBoard()
			case n := <-sub.toasts:
				err = writeEvent(w, "toast", n)
			case <-heartbeat.C:
				_, err = w.Write([]byte(": ping\n\n"))
				w.Flush()
			}
			if err != nil {
				logger.WithError(err).WithField("project", ent.key.project).Debug("board stream closed")
				return nil
			}
			ent.touch(time.Now())
		}
	}
}

func writeEvent(w *echo.Response, event string, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(data)+len(event)+16)
	buf = append(buf, "event: "...)
	buf = append(buf, event...)
	buf = append(buf, "\ndata: "...)
	buf = append(buf, data...)
	buf = append(buf, "\n\n"...)
	if _, err := w.Write(buf); err != nil {
		return err
	}
	w.Flush()
	return nil
}
