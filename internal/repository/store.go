package repository

import (
	"context"
	"fmt"

	"admission-scheduler/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the durable side of the scheduling engine. Reads go straight to
// the pool; each commit runs as a single transaction so a failure leaves the
// database at the pre-commit state and the caller can roll back in memory.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) LoadSlots(ctx context.Context) ([]model.TimeSlot, error) {
	return NewSlotRepository(s.pool).GetAll(ctx)
}

func (s *Store) LoadRequestsByStatus(ctx context.Context, statuses ...model.RequestStatus) ([]*model.ConsultationRequest, error) {
	return NewRequestRepository(s.pool).GetByStatus(ctx, statuses...)
}

func (s *Store) LoadActiveAssignments(ctx context.Context) ([]model.Assignment, error) {
	return NewAssignmentRepository(s.pool).GetActive(ctx)
}

func (s *Store) LoadWaitlist(ctx context.Context) ([]model.WaitlistEntry, error) {
	return NewWaitlistRepository(s.pool).GetWaiting(ctx)
}

func (s *Store) CreateRequest(ctx context.Context, req *model.ConsultationRequest) error {
	return NewRequestRepository(s.pool).Create(ctx, req)
}

// CommitAllocation writes one allocation pass: new assignments, new waitlist
// entries, position shifts for entries the pass reordered, per-request status
// updates, and the slot occupancy snapshot.
func (s *Store) CommitAllocation(ctx context.Context, assignments []model.Assignment, waitlist, repositioned []model.WaitlistEntry, decisions []model.Decision, slots []model.TimeSlot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	asgRepo := NewAssignmentRepository(tx)
	wlRepo := NewWaitlistRepository(tx)
	reqRepo := NewRequestRepository(tx)
	slotRepo := NewSlotRepository(tx)

	for i := range assignments {
		if err := asgRepo.Create(ctx, &assignments[i]); err != nil {
			return err
		}
	}
	for i := range waitlist {
		if err := wlRepo.Create(ctx, &waitlist[i]); err != nil {
			return err
		}
	}
	for _, entry := range repositioned {
		if err := wlRepo.UpdatePosition(ctx, entry.RequestID, entry.SlotID, entry.Position); err != nil {
			return err
		}
	}
	for _, dec := range decisions {
		if err := reqRepo.UpdateStatus(ctx, dec.RequestID, dec.Status); err != nil {
			return err
		}
	}
	for _, slot := range slots {
		if err := slotRepo.UpdateOccupancy(ctx, slot.ID, slot.Occupancy); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// CommitCancellation writes a cancellation and its promotion, if any, plus
// the position shifts the promotion caused, as one transaction.
func (s *Store) CommitCancellation(ctx context.Context, cancelled model.Assignment, promoted *model.Assignment, repositioned []model.WaitlistEntry, decisions []model.Decision, slots []model.TimeSlot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	asgRepo := NewAssignmentRepository(tx)
	wlRepo := NewWaitlistRepository(tx)
	reqRepo := NewRequestRepository(tx)
	slotRepo := NewSlotRepository(tx)

	if err := asgRepo.UpdateStatus(ctx, cancelled.ID, model.AssignmentStatusCancelled); err != nil {
		return err
	}
	if promoted != nil {
		if err := asgRepo.Create(ctx, promoted); err != nil {
			return err
		}
		if err := wlRepo.MarkPromoted(ctx, promoted.RequestID); err != nil {
			return err
		}
	}
	for _, entry := range repositioned {
		if err := wlRepo.UpdatePosition(ctx, entry.RequestID, entry.SlotID, entry.Position); err != nil {
			return err
		}
	}
	for _, dec := range decisions {
		if err := reqRepo.UpdateStatus(ctx, dec.RequestID, dec.Status); err != nil {
			return err
		}
	}
	for _, slot := range slots {
		if err := slotRepo.UpdateOccupancy(ctx, slot.ID, slot.Occupancy); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// CommitExpiry retires the remaining waitlist at cycle close.
func (s *Store) CommitExpiry(ctx context.Context, decisions []model.Decision) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	wlRepo := NewWaitlistRepository(tx)
	reqRepo := NewRequestRepository(tx)

	for _, dec := range decisions {
		if err := wlRepo.MarkExpired(ctx, dec.RequestID); err != nil {
			return err
		}
		if err := reqRepo.UpdateStatus(ctx, dec.RequestID, dec.Status); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
