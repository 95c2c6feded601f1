package domain

// Column is a display bucket on the board. Columns are derived from ticket
// status and never stored.
type Column string

const (
	ColumnBacklog    Column = "Backlog"
	ColumnInProgress Column = "In Progress"
	ColumnInReview   Column = "In Review"
	ColumnDone       Column = "Done"
)

// Columns lists every column in display order.
var Columns = [...]Column{ColumnBacklog, ColumnInProgress, ColumnInReview, ColumnDone}

var (
	statusToColumn = map[Status]Column{
		StatusOpen:       ColumnBacklog,
		StatusInProgress: ColumnInProgress,
		StatusInReview:   ColumnInReview,
		StatusClosed:     ColumnDone,
	}
	columnToStatus = map[Column]Status{
		ColumnBacklog:    StatusOpen,
		ColumnInProgress: StatusInProgress,
		ColumnInReview:   StatusInReview,
		ColumnDone:       StatusClosed,
	}
)

// Valid reports whether c is one of the four board columns.
func (c Column) Valid() bool {
	_, ok := columnToStatus[c]
	return ok
}

// ParseColumn converts a container id from a drag gesture into a Column.
func ParseColumn(s string) (Column, bool) {
	c := Column(s)
	return c, c.Valid()
}

// LookupColumn maps a status to its column and reports whether the status was known.
func LookupColumn(s Status) (Column, bool) {
	c, ok := statusToColumn[s]
	return c, ok
}

// ColumnFor maps a status to its column. Unknown statuses land in Backlog so
// tickets with statuses added later on the server still render.
func ColumnFor(s Status) Column {
	if c, ok := statusToColumn[s]; ok {
		return c
	}
	return ColumnBacklog
}

// StatusFor maps a column back to the status written to the ticket API.
func StatusFor(c Column) (Status, bool) {
	s, ok := columnToStatus[c]
	return s, ok
}
