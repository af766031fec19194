package sqlite

import (
	"context"
	"strings"
	"time"

	relay "github.com/eugener/boatload/internal"
)

// timeLayout is fixed-width so TEXT comparison matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// insertChunk caps rows per INSERT to stay under SQLite's bound-variable limit.
const insertChunk = 500

// InsertEvents batch-inserts events. Rows whose ID already exists are
// skipped, so a batch retried after a downstream failure does not conflict.
func (s *Store) InsertEvents(ctx context.Context, batchID string, events []relay.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for start := 0; start < len(events); start += insertChunk {
		chunk := events[start:min(start+insertChunk, len(events))]

		// cols must match the number of columns in the INSERT below.
		const cols = 7
		placeholders := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*cols)
		for i, e := range chunk {
			placeholders[i] = "(?, ?, ?, ?, ?, ?, ?)"
			args = append(args,
				e.ID, e.Type, e.Source, e.Client, string(e.Payload),
				batchID, e.ReceivedAt.UTC().Format(timeLayout),
			)
		}

		query := `INSERT OR IGNORE INTO events
			(id, type, source, client, payload, batch_id, received_at)
			VALUES ` + strings.Join(placeholders, ", ")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListEvents returns events matching the filter, newest first.
func (s *Store) ListEvents(ctx context.Context, f relay.EventFilter) ([]relay.Event, error) {
	where, args := eventWhere(f)
	query := `SELECT id, type, source, client, payload, received_at
		FROM events` + where + ` ORDER BY received_at DESC, id DESC LIMIT ? OFFSET ?`
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []relay.Event
	for rows.Next() {
		var e relay.Event
		var payload, receivedAt string
		if err := rows.Scan(&e.ID, &e.Type, &e.Source, &e.Client, &payload, &receivedAt); err != nil {
			return nil, err
		}
		e.Payload = []byte(payload)
		if t, err := time.Parse(timeLayout, receivedAt); err == nil {
			e.ReceivedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountEvents returns the number of events matching the filter.
func (s *Store) CountEvents(ctx context.Context, f relay.EventFilter) (int, error) {
	where, args := eventWhere(f)
	var n int
	err := s.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&n)
	return n, err
}

// DeleteEventsBefore removes events received before cutoff and returns the
// number of rows deleted.
func (s *Store) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.write.ExecContext(ctx,
		`DELETE FROM events WHERE received_at < ?`, cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func eventWhere(f relay.EventFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, f.Type)
	}
	if f.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, f.Source)
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "received_at >= ?")
		args = append(args, f.Since.UTC().Format(timeLayout))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
