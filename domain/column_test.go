package domain

import (
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func TestStatusColumnRoundTrip(t *testing.T) {
	for _, s := range []Status{StatusOpen, StatusInProgress, StatusInReview, StatusClosed} {
		got, ok := StatusFor(ColumnFor(s))
		if !ok {
			t.Fatalf("column for %q has no status", s)
		}
		if got != s {
			t.Fatalf("round trip of %q returned %q", s, got)
		}
	}
}

func TestEveryColumnHasStatus(t *testing.T) {
	seen := map[Status]bool{}
	for _, c := range Columns {
		s, ok := StatusFor(c)
		if !ok {
			t.Fatalf("column %q has no status", c)
		}
		if seen[s] {
			t.Fatalf("status %q mapped from two columns", s)
		}
		seen[s] = true
		if ColumnFor(s) != c {
			t.Fatalf("status %q maps to %q, want %q", s, ColumnFor(s), c)
		}
	}
}

func TestUnknownStatusFallsBackToBacklog(t *testing.T) {
	if got := ColumnFor("Blocked"); got != ColumnBacklog {
		t.Fatalf("expected Backlog, got %q", got)
	}
	if _, ok := LookupColumn("Blocked"); ok {
		t.Fatal("strict lookup accepted unknown status")
	}
	if Status("Blocked").Valid() {
		t.Fatal("unknown status reported valid")
	}
}

func TestParseColumn(t *testing.T) {
	if c, ok := ParseColumn("In Review"); !ok || c != ColumnInReview {
		t.Fatalf("unexpected parse result %q %v", c, ok)
	}
	if _, ok := ParseColumn("Archive"); ok {
		t.Fatal("expected unknown column to be rejected")
	}
	if _, ok := StatusFor("Archive"); ok {
		t.Fatal("expected unknown column to have no status")
	}
}

func TestTicketMarshalUsesAPIFieldNames(t *testing.T) {
	ticket := Ticket{ID: "t1", Title: "Crash", Status: StatusOpen, AssignedTo: &Assignee{ID: "u1", Email: "a@b.c"}}

	payload, err := sonic.Marshal(ticket)
	if err != nil {
		t.Fatalf("marshal ticket: %v", err)
	}
	for _, want := range []string{`"_id":"t1"`, `"status":"Open"`, `"assignedTo":{"_id":"u1"`} {
		if !strings.Contains(string(payload), want) {
			t.Fatalf("expected %s in %s", want, payload)
		}
	}
	if ticket.AssignedTo.DisplayName() != "a@b.c" {
		t.Fatalf("expected email fallback, got %q", ticket.AssignedTo.DisplayName())
	}
}

func TestTicketDecodesPopulatedReferences(t *testing.T) {
	raw := `[
		{"_id":"1","title":"Crash","status":"Open","project":{"_id":"p1","name":"Web","description":"Storefront"},
		 "assignedTo":{"_id":"u1","name":"Ada","email":"ada@example.com"},"createdAt":"2024-03-01T10:00:00Z"},
		{"_id":"2","title":"Typo","status":"Closed","project":"p2","assignedTo":"u2"},
		{"_id":"3","title":"Orphan","status":"Open","project":null,"assignedTo":null}
	]`
	var tickets []Ticket
	if err := sonic.Unmarshal([]byte(raw), &tickets); err != nil {
		t.Fatalf("decode tickets: %v", err)
	}
	if len(tickets) != 3 {
		t.Fatalf("expected 3 tickets, got %d", len(tickets))
	}
	if p := tickets[0].Project; p == nil || p.ID != "p1" || p.Name != "Web" {
		t.Fatalf("unexpected populated project %+v", p)
	}
	if tickets[0].AssignedTo.DisplayName() != "Ada" {
		t.Fatalf("unexpected assignee %+v", tickets[0].AssignedTo)
	}
	if tickets[1].ProjectID() != "p2" || tickets[1].AssignedTo == nil || tickets[1].AssignedTo.ID != "u2" {
		t.Fatalf("bare ids not kept: %+v", tickets[1])
	}
	if tickets[2].ProjectID() != "" || tickets[2].AssignedTo != nil {
		t.Fatalf("null references should stay empty: %+v", tickets[2])
	}

	// The cached form must decode back to the same references.
	again, err := sonic.Marshal(tickets[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Ticket
	if err := sonic.Unmarshal(again, &back); err != nil || back.ProjectID() != "p1" || back.Project.Name != "Web" {
		t.Fatalf("round trip lost the project: %+v %v", back.Project, err)
	}
}
