package repository

import (
	"context"
	"fmt"

	"admission-scheduler/internal/model"

	"github.com/jackc/pgx/v5"
)

type AssignmentRepository struct {
	db DB
}

func NewAssignmentRepository(db DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create persists a committed assignment.
func (r *AssignmentRepository) Create(ctx context.Context, asg *model.Assignment) error {
	query := `
		INSERT INTO assignments (id, request_id, slot_id, guardian_id, reason, decided_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		asg.ID,
		asg.RequestID,
		asg.SlotID,
		asg.GuardianID,
		asg.Reason,
		asg.DecidedAt,
		asg.Status,
	).Scan(&asg.CreatedAt)

	if err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}

	return nil
}

// GetByID returns the assignment or nil when it does not exist.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*model.Assignment, error) {
	query := `
		SELECT id, request_id, slot_id, guardian_id, reason, decided_at, status, created_at
		FROM assignments
		WHERE id = $1
	`

	var asg model.Assignment
	err := r.db.QueryRow(ctx, query, id).Scan(
		&asg.ID,
		&asg.RequestID,
		&asg.SlotID,
		&asg.GuardianID,
		&asg.Reason,
		&asg.DecidedAt,
		&asg.Status,
		&asg.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get assignment by id: %w", err)
	}

	return &asg, nil
}

// GetActive returns every committed assignment still holding a seat.
func (r *AssignmentRepository) GetActive(ctx context.Context) ([]model.Assignment, error) {
	query := `
		SELECT id, request_id, slot_id, guardian_id, reason, decided_at, status, created_at
		FROM assignments
		WHERE status = 'active'
		ORDER BY decided_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get active assignments: %w", err)
	}
	defer rows.Close()

	var assignments []model.Assignment
	for rows.Next() {
		var asg model.Assignment
		err := rows.Scan(
			&asg.ID,
			&asg.RequestID,
			&asg.SlotID,
			&asg.GuardianID,
			&asg.Reason,
			&asg.DecidedAt,
			&asg.Status,
			&asg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, asg)
	}

	return assignments, nil
}

// UpdateStatus marks an assignment active or cancelled.
func (r *AssignmentRepository) UpdateStatus(ctx context.Context, id string, status model.AssignmentStatus) error {
	query := `
		UPDATE assignments
		SET status = $1
		WHERE id = $2
	`

	result, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("assignment not found")
	}

	return nil
}
