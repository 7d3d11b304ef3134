package store

import (
	"context"
	"fmt"
	"time"
)

// Event types recorded in the relation event log.
const (
	EventRelationAdded      = "relation_added"
	EventRelationMarkedPast = "relation_marked_past"
	EventRelationRejected   = "relation_rejected"
)

// LogEvent appends a relation lifecycle event to the event log.
func (s *SQLiteStore) LogEvent(ctx context.Context, e *Event) error {
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO relation_events (event_type, relation_id, detail, created_at)
		 VALUES (?, ?, ?, ?)`,
		e.EventType, e.RelationID, e.Detail, now,
	)
	if err != nil {
		return fmt.Errorf("logging event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting event id: %w", err)
	}
	e.ID = id
	e.CreatedAt = now
	return nil
}

// Stats returns current database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM people", &stats.PeopleCount},
		{"SELECT COUNT(*) FROM relations WHERE status != 'past'", &stats.RelationCount},
		{"SELECT COUNT(*) FROM relations WHERE status = 'past'", &stats.PastCount},
		{"SELECT COUNT(*) FROM relation_events", &stats.EventCount},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("querying stats (%s): %w", q.query, err)
		}
	}

	if s.dbPath != ":memory:" {
		var pageCount, pageSize int64
		s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
		s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.DBSizeBytes = pageCount * pageSize
	}
	return stats, nil
}
