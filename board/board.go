package board

import "nexflow/domain"

// Board maps every column to its ordered ticket ids. The zero value is not
// usable; construct with NewBoard.
type Board map[domain.Column][]string

// NewBoard returns a board with all columns present and empty.
func NewBoard() Board {
	b := make(Board, len(domain.Columns))
	for _, c := range domain.Columns {
		b[c] = []string{}
	}
	return b
}

// Bucket groups tickets by the column their status maps to, keeping response
// order and dropping repeated ids.
func Bucket(tickets []domain.Ticket) Board {
	b := NewBoard()
	seen := make(map[string]struct{}, len(tickets))
	for _, t := range tickets {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		col := domain.ColumnFor(t.Status)
		b[col] = append(b[col], t.ID)
	}
	return b
}

// Clone returns a deep copy.
func (b Board) Clone() Board {
	out := make(Board, len(b))
	for c, ids := range b {
		cp := make([]string, len(ids))
		copy(cp, ids)
		out[c] = cp
	}
	return out
}

// IndexOf returns the position of id within column c, or -1.
func (b Board) IndexOf(c domain.Column, id string) int {
	for i, v := range b[c] {
		if v == id {
			return i
		}
	}
	return -1
}

// Locate finds the column and index holding id.
func (b Board) Locate(id string) (domain.Column, int, bool) {
	for _, c := range domain.Columns {
		if i := b.IndexOf(c, id); i >= 0 {
			return c, i, true
		}
	}
	return "", -1, false
}

// Remove deletes the element at index i of column c.
func (b Board) Remove(c domain.Column, i int) {
	ids := b[c]
	out := make([]string, 0, len(ids)-1)
	out = append(out, ids[:i]...)
	b[c] = append(out, ids[i+1:]...)
}

// Insert places id at index i of column c, clamping i to the column bounds.
func (b Board) Insert(c domain.Column, i int, id string) {
	ids := b[c]
	if i < 0 {
		i = 0
	}
	if i > len(ids) {
		i = len(ids)
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:i]...)
	out = append(out, id)
	b[c] = append(out, ids[i:]...)
}

// MoveWithin moves the element at from to position to inside column c.
// It reports false, leaving the board untouched, when either index is out of
// range.
func (b Board) MoveWithin(c domain.Column, from, to int) bool {
	ids := b[c]
	if from < 0 || from >= len(ids) || to < 0 || to >= len(ids) {
		return false
	}
	if from == to {
		return true
	}
	id := ids[from]
	b.Remove(c, from)
	b.Insert(c, to, id)
	return true
}

// IDs returns every id on the board in display order.
func (b Board) IDs() []string {
	var out []string
	for _, c := range domain.Columns {
		out = append(out, b[c]...)
	}
	return out
}

// ApplyLayout reorders each column so ids in the saved order come first, in
// that order, followed by the rest in their current order. Saved ids that are
// no longer in the column are ignored.
func (b Board) ApplyLayout(layout map[domain.Column][]string) {
	for c, saved := range layout {
		current, ok := b[c]
		if !ok || len(saved) == 0 {
			continue
		}
		present := make(map[string]bool, len(current))
		for _, id := range current {
			present[id] = true
		}
		out := make([]string, 0, len(current))
		for _, id := range saved {
			if present[id] {
				out = append(out, id)
				present[id] = false
			}
		}
		for _, id := range current {
			if present[id] {
				out = append(out, id)
			}
		}
		b[c] = out
	}
}
