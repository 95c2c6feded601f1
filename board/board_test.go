package board

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"nexflow/domain"
)

func TestNewBoardHasEveryColumn(t *testing.T) {
	b := NewBoard()
	for _, c := range domain.Columns {
		ids, ok := b[c]
		if !ok || ids == nil || len(ids) != 0 {
			t.Fatalf("column %q: expected present and empty, got %#v", c, ids)
		}
	}
}

func TestBucketScenarioA(t *testing.T) {
	got := Bucket(scenarioTickets())
	want := wantBoard([]string{"1"}, []string{}, []string{}, []string{"2"})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bucketed board (-want +got):\n%s", diff)
	}
}

func TestInsertClampsIndex(t *testing.T) {
	b := NewBoard()
	b.Insert(domain.ColumnDone, 5, "a")
	b.Insert(domain.ColumnDone, -1, "b")
	b.Insert(domain.ColumnDone, 1, "c")
	if diff := cmp.Diff([]string{"b", "c", "a"}, b[domain.ColumnDone]); diff != "" {
		t.Fatalf("done (-want +got):\n%s", diff)
	}
}

func TestMoveWithinBounds(t *testing.T) {
	b := NewBoard()
	b[domain.ColumnBacklog] = []string{"a", "b", "c", "d"}

	cases := []struct {
		name     string
		from, to int
		ok       bool
		want     []string
	}{
		{"forward", 0, 2, true, []string{"b", "c", "a", "d"}},
		{"backward", 3, 0, true, []string{"d", "a", "b", "c"}},
		{"same", 1, 1, true, []string{"a", "b", "c", "d"}},
		{"from out of range", 4, 0, false, []string{"a", "b", "c", "d"}},
		{"to out of range", 0, -1, false, []string{"a", "b", "c", "d"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := b.Clone()
			if ok := c.MoveWithin(domain.ColumnBacklog, tc.from, tc.to); ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if diff := cmp.Diff(tc.want, c[domain.ColumnBacklog]); diff != "" {
				t.Fatalf("backlog (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	b := NewBoard()
	b[domain.ColumnBacklog] = []string{"a"}
	c := b.Clone()
	c[domain.ColumnBacklog][0] = "z"
	if b[domain.ColumnBacklog][0] != "a" {
		t.Fatal("clone shares backing arrays")
	}
}

func TestLocate(t *testing.T) {
	b := Bucket([]domain.Ticket{
		{ID: "a", Status: domain.StatusOpen},
		{ID: "b", Status: domain.StatusInReview},
		{ID: "c", Status: domain.StatusInReview},
	})
	col, idx, ok := b.Locate("c")
	if !ok || col != domain.ColumnInReview || idx != 1 {
		t.Fatalf("unexpected location %q %d %v", col, idx, ok)
	}
	if _, _, ok := b.Locate("missing"); ok {
		t.Fatal("expected missing ticket not to be found")
	}
}

func TestApplyLayout(t *testing.T) {
	b := NewBoard()
	b[domain.ColumnInProgress] = []string{"a", "b", "c", "new"}
	b.ApplyLayout(map[domain.Column][]string{
		domain.ColumnInProgress: {"c", "deleted", "a", "c"},
		"Archive":               {"x"},
	})
	if diff := cmp.Diff([]string{"c", "a", "b", "new"}, b[domain.ColumnInProgress]); diff != "" {
		t.Fatalf("in progress (-want +got):\n%s", diff)
	}
	if _, ok := b["Archive"]; ok {
		t.Fatal("layout must not add columns")
	}
}
