package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nexflow/board"
	"nexflow/client"
	"nexflow/domain"
	"nexflow/stream"
)

const watchSettle = 250 * time.Millisecond

func newBoardCmd(flags *globalFlags) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show and edit a project's board",
	}
	cmd.PersistentFlags().StringVarP(&project, "project", "p", "", "Project id (required)")
	_ = cmd.MarkPersistentFlagRequired("project")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, flags, project)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "move TICKET COLUMN",
		Short: "Move a ticket to another column",
		Long: `Move a ticket to another column and write its new status to the ticket API.

Columns: Backlog, "In Progress", "In Review", Done (case-insensitive).

Examples:
  nexflow board move -p web 64f1c2 done
  nexflow board move -p web 64f1c2 "in review"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMove(cmd, flags, project, args[0], args[1])
		},
	})

	var eventsURL string
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Print the board again whenever its tickets change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, flags, project, eventsURL)
		},
	}
	watch.Flags().StringVar(&eventsURL, "events-url", "", "Server-sent events URL for ticket changes")
	cmd.AddCommand(watch)

	return cmd
}

// session is an engine bound to one project and the CLI's output.
type session struct {
	profile Profile
	tokens  *client.Session
	engine  *board.Engine
	printer *printer
	logger  *log.Logger
}

func (s *session) close() {
	s.engine.Close()
	s.engine.Wait()
}

// openSession resolves settings and performs the first load. onChange, when
// set, receives every snapshot including the first.
func openSession(cmd *cobra.Command, flags *globalFlags, project string, onChange func(*printer, board.Snapshot)) (*session, error) {
	p := newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
	prof, err := flags.resolve()
	if err != nil {
		return nil, p.Error("invalid settings", err.Error())
	}

	logger := log.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(log.ErrorLevel)

	tokens := client.NewSession(prof.Token)
	api := client.New(prof.APIURL, tokens)
	opts := board.Options{
		PageSize: prof.PageSize,
		Notifier: p,
		Logger:   logger,
	}
	if onChange != nil {
		opts.OnChange = func(s board.Snapshot) { onChange(p, s) }
	}
	s := &session{
		profile: prof,
		tokens:  tokens,
		engine:  board.New(project, api, api, opts),
		printer: p,
		logger:  logger,
	}
	_ = s.engine.Load(cmd.Context())
	if snap := s.engine.Snapshot(); !snap.Loaded {
		s.close()
		return nil, p.Error(fmt.Sprintf("could not load board %q", project), snap.Error)
	}
	return s, nil
}

func runShow(cmd *cobra.Command, flags *globalFlags, project string) error {
	s, err := openSession(cmd, flags, project, nil)
	if err != nil {
		return err
	}
	defer s.close()
	s.printer.Board(s.engine.Snapshot())
	return nil
}

// parseColumnArg matches a column name ignoring case.
func parseColumnArg(arg string) (domain.Column, bool) {
	arg = strings.TrimSpace(arg)
	for _, c := range domain.Columns {
		if strings.EqualFold(string(c), arg) {
			return c, true
		}
	}
	return "", false
}

func runMove(cmd *cobra.Command, flags *globalFlags, project, ticketID, columnArg string) error {
	dest, ok := parseColumnArg(columnArg)
	if !ok {
		p := newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
		return p.Error(fmt.Sprintf("unknown column %q", columnArg), "Valid columns: Backlog, In Progress, In Review, Done")
	}
	s, err := openSession(cmd, flags, project, nil)
	if err != nil {
		return err
	}
	defer s.close()

	if src, _, found := s.engine.State().Locate(ticketID); found && src == dest {
		s.printer.Success("%s is already in %s", ticketID, dest)
		return nil
	}

	ctx := cmd.Context()
	pending, err := s.engine.Drop(ctx, board.Gesture{TicketID: ticketID, Over: string(dest)})
	if errors.Is(err, board.ErrInvalidMove) {
		return s.printer.Error(fmt.Sprintf("cannot move %s", ticketID), "The ticket is not on this board.")
	}
	if err != nil {
		return err
	}
	if err := pending.Wait(ctx); err != nil {
		s.engine.Wait()
		s.printer.Board(s.engine.Snapshot())
		return s.printer.Error("move rejected", err.Error())
	}
	s.printer.Success("moved %s to %s", ticketID, dest)
	s.printer.Board(s.engine.Snapshot())
	return nil
}

// versionGate passes only versions newer than the last one it let through.
// Snapshots can arrive from several goroutines out of order.
type versionGate struct {
	mu   sync.Mutex
	last uint64
}

func (g *versionGate) advance(v uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v <= g.last {
		return false
	}
	g.last = v
	return true
}

func runWatch(cmd *cobra.Command, flags *globalFlags, project, eventsURL string) error {
	var gate versionGate
	s, err := openSession(cmd, flags, project, func(p *printer, snap board.Snapshot) {
		if !gate.advance(snap.Version) {
			return
		}
		p.Board(snap)
	})
	if err != nil {
		return err
	}
	defer s.close()

	if eventsURL == "" {
		eventsURL = s.profile.EventsURL
	}
	if eventsURL == "" {
		return s.printer.Error("no events URL", "Set events_url in the profile or pass --events-url.")
	}

	refresher := stream.NewRefresher(watchSettle)
	events := &stream.SSEClient{URL: eventsURL, Token: s.tokens.Token, Logger: s.logger}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		refresher.Run(ctx, func(ctx context.Context) { _ = s.engine.Load(ctx) })
		return nil
	})
	g.Go(func() error {
		return events.Run(ctx, func(ev domain.TicketEvent) {
			if ev.ChangesBoard() && ev.Concerns(project) {
				refresher.Notify()
			}
		})
	})
	if err := g.Wait(); err != nil {
		return s.printer.Error("event stream closed", err.Error())
	}
	return nil
}
