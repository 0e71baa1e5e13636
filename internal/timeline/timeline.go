// Package timeline reports recent database activity for the timeline view.
package timeline

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tordrt/schemadiag/internal/db"
)

// EventType classifies a timeline event
type EventType string

const (
	Query        EventType = "QUERY"
	Insert       EventType = "INSERT"
	Update       EventType = "UPDATE"
	Delete       EventType = "DELETE"
	SchemaChange EventType = "DDL"
	Vacuum       EventType = "VACUUM"
	Checkpoint   EventType = "CHECKPOINT"
)

// maxDescription is the longest query text shown before truncation
const maxDescription = 60

// Event is one entry of the activity timeline
type Event struct {
	Timestamp    string    `json:"timestamp"`
	Type         EventType `json:"event_type"`
	Description  string    `json:"description"`
	TableName    string    `json:"table_name,omitempty"`
	Details      string    `json:"details,omitempty"`
	HasViolation bool      `json:"has_violation"`
}

const activityQuery = `
	SELECT
		pid,
		COALESCE(usename, 'unknown') AS username,
		query,
		query_start::text
	FROM pg_stat_activity
	WHERE pid != pg_backend_pid()
	  AND datname IS NOT NULL
	ORDER BY query_start DESC NULLS LAST
	LIMIT 50`

const tableStatsQuery = `
	SELECT
		schemaname,
		relname,
		n_tup_ins,
		n_tup_upd,
		n_tup_del,
		n_live_tup,
		n_dead_tup,
		last_autovacuum::text
	FROM pg_stat_user_tables
	ORDER BY n_tup_ins + n_tup_upd + n_tup_del DESC
	LIMIT 50`

// Recent builds the timeline from server activity and table statistics,
// most recent first. Only PostgreSQL exposes these views; other dialects
// report an empty timeline.
func Recent(ctx context.Context, exec db.Executor) ([]Event, error) {
	events := []Event{}
	if exec.Dialect() != db.Postgres {
		return events, nil
	}

	activity, err := exec.Query(ctx, activityQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	for i := 0; i < activity.Len(); i++ {
		query := activity.NullableString(i, 2)
		if query == nil {
			continue
		}
		ts := "now"
		if s := activity.NullableString(i, 3); s != nil {
			ts = *s
		}
		events = append(events, newEvent(ts, ClassifyQuery(*query), truncate(*query), ExtractTableName(*query),
			fmt.Sprintf("pid=%s user=%s", activity.String(i, 0), activity.String(i, 1))))
	}

	stats, err := exec.Query(ctx, tableStatsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query table statistics: %w", err)
	}
	for i := 0; i < stats.Len(); i++ {
		schemaName, table := stats.String(i, 0), stats.String(i, 1)
		ins, _ := stats.Int64(i, 2)
		upd, _ := stats.Int64(i, 3)
		del, _ := stats.Int64(i, 4)
		live, _ := stats.Int64(i, 5)
		dead, _ := stats.Int64(i, 6)

		if ts := stats.NullableString(i, 7); ts != nil {
			events = append(events, newEvent(*ts, Vacuum,
				fmt.Sprintf("Autovacuum on %s.%s", schemaName, table), table,
				fmt.Sprintf("dead_tuples=%d", dead)))
		}
		if ins+upd+del > 0 {
			events = append(events, newEvent("cumulative", Query,
				fmt.Sprintf("%s.%s: %d ins, %d upd, %d del", schemaName, table, ins, upd, del), table,
				fmt.Sprintf("live=%d dead=%d", live, dead)))
		}
	}

	slices.SortStableFunc(events, func(a, b Event) int {
		return strings.Compare(b.Timestamp, a.Timestamp)
	})
	return events, nil
}

func newEvent(ts string, typ EventType, description, table, details string) Event {
	return Event{
		Timestamp:    ts,
		Type:         typ,
		Description:  description,
		TableName:    table,
		Details:      details,
		HasViolation: typ == Delete || typ == SchemaChange,
	}
}

// ClassifyQuery maps a statement to an event type by its leading keyword
func ClassifyQuery(query string) EventType {
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "INSERT"):
		return Insert
	case strings.HasPrefix(upper, "UPDATE"):
		return Update
	case strings.HasPrefix(upper, "DELETE"):
		return Delete
	case strings.HasPrefix(upper, "CREATE"), strings.HasPrefix(upper, "ALTER"), strings.HasPrefix(upper, "DROP"):
		return SchemaChange
	case strings.HasPrefix(upper, "VACUUM"):
		return Vacuum
	case strings.HasPrefix(upper, "CHECKPOINT"):
		return Checkpoint
	default:
		return Query
	}
}

// ExtractTableName returns the word following FROM, INTO, UPDATE or TABLE, or "".
// It is a heuristic and does not parse SQL.
func ExtractTableName(query string) string {
	words := strings.Fields(query)
	for i, word := range words {
		switch strings.ToUpper(word) {
		case "FROM", "INTO", "UPDATE", "TABLE":
			if i+1 >= len(words) {
				continue
			}
			table := strings.Trim(words[i+1], "();,")
			if table != "" && !strings.HasPrefix(strings.ToUpper(table), "SELECT") {
				return table
			}
		}
	}
	return ""
}

func truncate(query string) string {
	runes := []rune(query)
	if len(runes) <= maxDescription {
		return query
	}
	return string(runes[:maxDescription]) + "..."
}
