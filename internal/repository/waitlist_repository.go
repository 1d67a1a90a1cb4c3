package repository

import (
	"context"
	"fmt"

	"admission-scheduler/internal/model"
)

type WaitlistRepository struct {
	db DB
}

func NewWaitlistRepository(db DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

// Create persists one waitlist entry at its stored position.
func (r *WaitlistRepository) Create(ctx context.Context, entry *model.WaitlistEntry) error {
	query := `
		INSERT INTO waitlist_entries (request_id, slot_id, reason, promotable, position, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(
		ctx, query,
		entry.RequestID,
		entry.SlotID,
		entry.Reason,
		entry.Promotable,
		entry.Position,
		entry.EnqueuedAt,
	)

	if err != nil {
		return fmt.Errorf("create waitlist entry: %w", err)
	}

	return nil
}

// GetWaiting returns all live entries in promotion order per slot.
func (r *WaitlistRepository) GetWaiting(ctx context.Context) ([]model.WaitlistEntry, error) {
	query := `
		SELECT request_id, slot_id, reason, promotable, position, enqueued_at
		FROM waitlist_entries
		WHERE status = 'waiting'
		ORDER BY slot_id ASC, position ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get waitlist entries: %w", err)
	}
	defer rows.Close()

	var entries []model.WaitlistEntry
	for rows.Next() {
		var entry model.WaitlistEntry
		err := rows.Scan(
			&entry.RequestID,
			&entry.SlotID,
			&entry.Reason,
			&entry.Promotable,
			&entry.Position,
			&entry.EnqueuedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan waitlist entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// UpdatePosition moves a live entry to a new promotion position.
func (r *WaitlistRepository) UpdatePosition(ctx context.Context, requestID, slotID string, position int) error {
	query := `
		UPDATE waitlist_entries
		SET position = $1
		WHERE request_id = $2 AND slot_id = $3 AND status = 'waiting'
	`

	result, err := r.db.Exec(ctx, query, position, requestID, slotID)
	if err != nil {
		return fmt.Errorf("update waitlist position: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("waitlist entry not found")
	}

	return nil
}

// MarkPromoted retires an entry whose request took a freed seat.
func (r *WaitlistRepository) MarkPromoted(ctx context.Context, requestID string) error {
	return r.setStatus(ctx, requestID, "promoted")
}

// MarkExpired retires an entry at cycle close.
func (r *WaitlistRepository) MarkExpired(ctx context.Context, requestID string) error {
	return r.setStatus(ctx, requestID, "expired")
}

func (r *WaitlistRepository) setStatus(ctx context.Context, requestID, status string) error {
	query := `
		UPDATE waitlist_entries
		SET status = $1
		WHERE request_id = $2 AND status = 'waiting'
	`

	result, err := r.db.Exec(ctx, query, status, requestID)
	if err != nil {
		return fmt.Errorf("update waitlist entry: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("waitlist entry not found")
	}

	return nil
}
