package store

import (
	"fmt"
	"strings"
)

// EventQuery selects events. Zero-valued fields do not constrain the
// result.
type EventQuery struct {
	// Since and Until bound ts inclusively; zero means unbounded.
	Since int64
	Until int64

	Command  string
	Identity string
	ChunkID  int64

	// Filter is an optional CEL expression evaluated per event. See
	// NewFilter for the available variables.
	Filter string

	// Limit caps the number of events returned; zero means no limit.
	Limit int
}

// compile turns q into parameterized SQL.
//
// Every query ends in ORDER BY ts, id so results follow log order, and
// every value is a bound parameter. When a filter is present the limit is
// applied after filtering, so it is left out of the SQL.
func (q EventQuery) compile() (string, []any) {
	var (
		where  []string
		params []any
	)
	if q.Since != 0 {
		where = append(where, "ts >= ?")
		params = append(params, q.Since)
	}
	if q.Until != 0 {
		where = append(where, "ts <= ?")
		params = append(params, q.Until)
	}
	if q.Command != "" {
		where = append(where, "command = ?")
		params = append(params, q.Command)
	}
	if q.Identity != "" {
		where = append(where, "identity = ?")
		params = append(params, q.Identity)
	}
	if q.ChunkID != 0 {
		where = append(where, "chunk_id = ?")
		params = append(params, q.ChunkID)
	}

	var sb strings.Builder
	sb.WriteString("SELECT id, ts, command, identity, payload, chunk_id FROM event")
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY ts ASC, id ASC")
	if q.Limit > 0 && strings.TrimSpace(q.Filter) == "" {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", q.Limit))
	}
	return sb.String(), params
}
