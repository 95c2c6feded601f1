package commands

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"nexflow/board"
	"nexflow/domain"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan, color.Bold)
)

// printer writes boards and notifications. It is shared by the engine's
// callbacks, so writes are serialized.
type printer struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
}

func newPrinter(out, errOut io.Writer) *printer {
	return &printer{out: out, err: errOut}
}

func (p *printer) Board(s board.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.Error != "" {
		yellow.Fprintf(p.out, "! board may be out of date: %s\n", s.Error)
	}
	for _, col := range s.Columns {
		cyan.Fprintf(p.out, "%s (%d)\n", col.Name, len(col.Tickets))
		if len(col.Tickets) == 0 {
			fmt.Fprintln(p.out, "  -")
		}
		for _, t := range col.Tickets {
			fmt.Fprintf(p.out, "  %-10s %s%s\n", t.ID, t.Title, ticketDetails(t))
		}
	}
}

func ticketDetails(t domain.Ticket) string {
	var parts []string
	if t.Priority != "" {
		parts = append(parts, "["+string(t.Priority)+"]")
	}
	if name := t.AssignedTo.DisplayName(); name != "" {
		parts = append(parts, "@"+name)
	}
	if len(parts) == 0 {
		return ""
	}
	return "  " + strings.Join(parts, " ")
}

func (p *printer) Success(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	green.Fprintf(p.out, "✓ "+format+"\n", a...)
}

// Notify prints engine notifications to stderr.
func (p *printer) Notify(n board.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	yellow.Fprintf(p.err, "⚠️  %s\n", n.Message)
}

// Error prints a title and explanation to stderr and returns an error for cobra.
func (p *printer) Error(title, explanation string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	red.Fprintf(p.err, "%s\n", title)
	if explanation != "" {
		fmt.Fprintf(p.err, "%s\n", explanation)
	}
	return fmt.Errorf("%s", title)
}
