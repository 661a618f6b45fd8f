package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storyflow/internal/engine"
)

// ErrEmptyStory is returned when an event is appended without a story id.
var ErrEmptyStory = errors.New("story id is required")

// EventRepo persists stage events per story. Events are never updated or
// deleted.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo creates an [EventRepo] on an open database from [NewDB].
func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

// Append stores an event for a story and returns it as stored. A missing
// ID is filled with a random UUID. Stage ids are stored as given; alias
// resolution happens on replay.
func (r *EventRepo) Append(ctx context.Context, storyID string, ev engine.Event) (engine.Event, error) {
	if storyID == "" {
		return engine.Event{}, ErrEmptyStory
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	const q = `INSERT INTO stage_events (event_id, story_id, stage_id, kind, detail, actor, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		ev.ID,
		storyID,
		ev.StageID,
		string(ev.Kind),
		ev.Detail,
		ev.Actor,
		ev.CreatedAt.UnixNano(),
	)
	if err != nil {
		return engine.Event{}, fmt.Errorf("failed to append event: %w", err)
	}
	return ev, nil
}

// AppendBatch stores several events for one story in a single transaction.
// Events whose id already exists are skipped, so re-importing a log is safe.
// It returns the number of events inserted.
func (r *EventRepo) AppendBatch(ctx context.Context, storyID string, events []engine.Event) (int, error) {
	if storyID == "" {
		return 0, ErrEmptyStory
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const q = `INSERT OR IGNORE INTO stage_events (event_id, story_id, stage_id, kind, detail, actor, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	inserted := 0
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		res, err := tx.ExecContext(ctx, q,
			ev.ID, storyID, ev.StageID, string(ev.Kind), ev.Detail, ev.Actor, ev.CreatedAt.UnixNano())
		if err != nil {
			return 0, fmt.Errorf("failed to append event %s: %w", ev.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit events: %w", err)
	}
	return inserted, nil
}

// ListByStory returns the most recent events for a story in chronological
// order. A non-positive limit returns every event.
func (r *EventRepo) ListByStory(ctx context.Context, storyID string, limit int) ([]engine.Event, error) {
	if limit <= 0 {
		limit = -1
	}

	// Newest first so LIMIT keeps the tail of the log, then flipped below.
	const q = `SELECT event_id, stage_id, kind, detail, actor, created_at
FROM stage_events
WHERE story_id = ?
ORDER BY created_at DESC, seq DESC
LIMIT ?`

	rows, err := r.db.QueryContext(ctx, q, storyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []engine.Event
	for rows.Next() {
		var (
			ev      engine.Event
			kind    string
			created int64
		)
		if err := rows.Scan(&ev.ID, &ev.StageID, &kind, &ev.Detail, &ev.Actor, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Kind = engine.EventKind(kind)
		ev.CreatedAt = time.Unix(0, created).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// Stories returns every story id that has at least one event, sorted.
func (r *EventRepo) Stories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT story_id FROM stage_events ORDER BY story_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan story id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
