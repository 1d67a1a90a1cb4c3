package repository

import (
	"context"
	"fmt"

	"admission-scheduler/internal/model"

	"github.com/jackc/pgx/v5"
)

type RequestRepository struct {
	db DB
}

func NewRequestRepository(db DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a fully populated request coming off the CRM/OCR pipeline.
func (r *RequestRepository) Create(ctx context.Context, req *model.ConsultationRequest) error {
	query := `
		INSERT INTO consultation_requests
			(id, guardian_id, student_id, preferred_slots, submitted_at,
			 grade_level, sibling_enrolled, distance_tier, complete, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		req.ID,
		req.GuardianID,
		req.StudentID,
		req.PreferredSlots,
		req.SubmittedAt,
		req.GradeLevel,
		req.SiblingEnrolled,
		req.DistanceTier,
		req.Complete,
		req.Status,
	).Scan(&req.CreatedAt)

	if err != nil {
		return fmt.Errorf("create consultation request: %w", err)
	}

	return nil
}

// GetByID returns the request or nil when it does not exist.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*model.ConsultationRequest, error) {
	query := `
		SELECT id, guardian_id, student_id, preferred_slots, submitted_at,
		       grade_level, sibling_enrolled, distance_tier, complete, status, created_at
		FROM consultation_requests
		WHERE id = $1
	`

	var req model.ConsultationRequest
	err := r.db.QueryRow(ctx, query, id).Scan(
		&req.ID,
		&req.GuardianID,
		&req.StudentID,
		&req.PreferredSlots,
		&req.SubmittedAt,
		&req.GradeLevel,
		&req.SiblingEnrolled,
		&req.DistanceTier,
		&req.Complete,
		&req.Status,
		&req.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get request by id: %w", err)
	}

	return &req, nil
}

// GetByStatus returns all requests in any of the given statuses, oldest
// submissions first.
func (r *RequestRepository) GetByStatus(ctx context.Context, statuses ...model.RequestStatus) ([]*model.ConsultationRequest, error) {
	query := `
		SELECT id, guardian_id, student_id, preferred_slots, submitted_at,
		       grade_level, sibling_enrolled, distance_tier, complete, status, created_at
		FROM consultation_requests
		WHERE status = ANY($1)
		ORDER BY submitted_at ASC, id ASC
	`

	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}

	rows, err := r.db.Query(ctx, query, values)
	if err != nil {
		return nil, fmt.Errorf("get requests by status: %w", err)
	}
	defer rows.Close()

	var requests []*model.ConsultationRequest
	for rows.Next() {
		var req model.ConsultationRequest
		err := rows.Scan(
			&req.ID,
			&req.GuardianID,
			&req.StudentID,
			&req.PreferredSlots,
			&req.SubmittedAt,
			&req.GradeLevel,
			&req.SiblingEnrolled,
			&req.DistanceTier,
			&req.Complete,
			&req.Status,
			&req.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, &req)
	}

	return requests, nil
}

// UpdateStatus moves a request to a new lifecycle status.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id string, status model.RequestStatus) error {
	query := `
		UPDATE consultation_requests
		SET status = $1
		WHERE id = $2
	`

	result, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("request not found")
	}

	return nil
}
