package repository

import (
	"context"
	"fmt"

	"admission-scheduler/internal/model"
)

type SlotRepository struct {
	db DB
}

func NewSlotRepository(db DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// Create registers a slot definition for the cycle. Capacity and window are
// configuration and never change afterwards.
func (r *SlotRepository) Create(ctx context.Context, slot *model.TimeSlot) error {
	query := `
		INSERT INTO time_slots (id, start_time, end_time, capacity, occupancy, blackout)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		slot.ID,
		slot.StartTime,
		slot.EndTime,
		slot.Capacity,
		slot.Occupancy,
		slot.Blackout,
	).Scan(&slot.CreatedAt)

	if err != nil {
		return fmt.Errorf("create time slot: %w", err)
	}

	return nil
}

// GetAll returns every slot of the cycle in start-time order.
func (r *SlotRepository) GetAll(ctx context.Context) ([]model.TimeSlot, error) {
	query := `
		SELECT id, start_time, end_time, capacity, occupancy, blackout, created_at
		FROM time_slots
		ORDER BY start_time ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get time slots: %w", err)
	}
	defer rows.Close()

	var slots []model.TimeSlot
	for rows.Next() {
		var slot model.TimeSlot
		err := rows.Scan(
			&slot.ID,
			&slot.StartTime,
			&slot.EndTime,
			&slot.Capacity,
			&slot.Occupancy,
			&slot.Blackout,
			&slot.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan time slot: %w", err)
		}
		slots = append(slots, slot)
	}

	return slots, nil
}

// UpdateOccupancy syncs the durable occupancy counter with the calendar.
func (r *SlotRepository) UpdateOccupancy(ctx context.Context, id string, occupancy int) error {
	query := `
		UPDATE time_slots
		SET occupancy = $1
		WHERE id = $2 AND $1 BETWEEN 0 AND capacity
	`

	result, err := r.db.Exec(ctx, query, occupancy, id)
	if err != nil {
		return fmt.Errorf("update slot occupancy: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("slot not found or occupancy out of range")
	}

	return nil
}

// SetBlackout administratively closes or reopens a slot for new assignments.
func (r *SlotRepository) SetBlackout(ctx context.Context, id string, blackout bool) error {
	query := `
		UPDATE time_slots
		SET blackout = $1
		WHERE id = $2
	`

	result, err := r.db.Exec(ctx, query, blackout, id)
	if err != nil {
		return fmt.Errorf("set slot blackout: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("slot not found")
	}

	return nil
}
