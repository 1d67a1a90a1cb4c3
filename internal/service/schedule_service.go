package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"admission-scheduler/internal/allocator"
	"admission-scheduler/internal/calendar"
	"admission-scheduler/internal/conflict"
	"admission-scheduler/internal/model"
	"admission-scheduler/internal/scoring"

	"go.uber.org/zap"
)

var (
	ErrCommitFailed   = errors.New("commit failed")
	ErrInvalidRequest = errors.New("invalid consultation request")
)

// ScheduleStore is the persistence boundary the engine commits through.
// Each commit method is atomic-or-rolled-back on the store side; a returned
// error means nothing durable changed.
type ScheduleStore interface {
	LoadSlots(ctx context.Context) ([]model.TimeSlot, error)
	LoadRequestsByStatus(ctx context.Context, statuses ...model.RequestStatus) ([]*model.ConsultationRequest, error)
	LoadActiveAssignments(ctx context.Context) ([]model.Assignment, error)
	LoadWaitlist(ctx context.Context) ([]model.WaitlistEntry, error)
	CreateRequest(ctx context.Context, req *model.ConsultationRequest) error
	CommitAllocation(ctx context.Context, assignments []model.Assignment, waitlist, repositioned []model.WaitlistEntry, decisions []model.Decision, slots []model.TimeSlot) error
	CommitCancellation(ctx context.Context, cancelled model.Assignment, promoted *model.Assignment, repositioned []model.WaitlistEntry, decisions []model.Decision, slots []model.TimeSlot) error
	CommitExpiry(ctx context.Context, decisions []model.Decision) error
}

// CycleReport is the outbound summary handed to the staff UI after a cycle:
// one decision row per request plus the per-slot demand overview.
type CycleReport struct {
	Decisions   []model.Decision
	Assignments []model.Assignment
	Waitlist    []model.WaitlistEntry
	Demand      []model.SlotDemand
}

// ScheduleService runs allocation cycles over the durable request pool. It
// reserves in memory first and commits after; a failed commit rolls the
// in-memory state back so calendar occupancy and the store never diverge.
type ScheduleService struct {
	store           ScheduleStore
	weights         scoring.Weights
	demandThreshold int
	logger          *zap.Logger

	mu    sync.Mutex
	alloc *allocator.Allocator
	cal   *calendar.SlotCalendar
}

func NewScheduleService(store ScheduleStore, weights scoring.Weights, demandThreshold int, logger *zap.Logger) *ScheduleService {
	return &ScheduleService{
		store:           store,
		weights:         weights,
		demandThreshold: demandThreshold,
		logger:          logger,
	}
}

// bootstrap builds the in-memory engine from durable state: slot config into
// the calendar, active assignments into the conflict sets, stored waitlists
// into their promotion queues. Called lazily under the service mutex.
func (s *ScheduleService) bootstrap(ctx context.Context) error {
	if s.alloc != nil {
		return nil
	}

	slots, err := s.store.LoadSlots(ctx)
	if err != nil {
		return fmt.Errorf("load slots: %w", err)
	}
	cal, err := calendar.New(slots)
	if err != nil {
		return fmt.Errorf("build calendar: %w", err)
	}

	checker := conflict.NewChecker()
	alloc := allocator.New(scoring.NewScorer(s.weights), cal, checker, s.logger)

	requests, err := s.store.LoadRequestsByStatus(ctx,
		model.RequestStatusAssigned, model.RequestStatusWaitlisted)
	if err != nil {
		return fmt.Errorf("load committed requests: %w", err)
	}
	assignments, err := s.store.LoadActiveAssignments(ctx)
	if err != nil {
		return fmt.Errorf("load assignments: %w", err)
	}
	waitlist, err := s.store.LoadWaitlist(ctx)
	if err != nil {
		return fmt.Errorf("load waitlist: %w", err)
	}
	if err := alloc.Restore(requests, assignments, waitlist); err != nil {
		return fmt.Errorf("restore allocator state: %w", err)
	}

	s.alloc = alloc
	s.cal = cal
	return nil
}

// IntakeRequest validates and stores a request arriving from the CRM/OCR
// pipeline. The engine never accepts partially populated records; anything
// malformed is rejected here, before scoring ever sees it.
func (s *ScheduleService) IntakeRequest(ctx context.Context, req *model.ConsultationRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	req.Status = model.RequestStatusPending
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return fmt.Errorf("store request: %w", err)
	}
	s.logger.Info("Consultation request received",
		zap.String("request_id", req.ID),
		zap.String("guardian_id", req.GuardianID),
		zap.Int("preferences", len(req.PreferredSlots)),
	)
	return nil
}

func validateRequest(req *model.ConsultationRequest) error {
	switch {
	case req == nil:
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	case req.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidRequest)
	case req.GuardianID == "":
		return fmt.Errorf("%w: missing guardian id", ErrInvalidRequest)
	case req.StudentID == "":
		return fmt.Errorf("%w: missing student id", ErrInvalidRequest)
	case req.SubmittedAt.IsZero():
		return fmt.Errorf("%w: missing submission time", ErrInvalidRequest)
	case req.GradeLevel < 1 || req.GradeLevel > 6:
		return fmt.Errorf("%w: grade level %d out of range", ErrInvalidRequest, req.GradeLevel)
	case req.DistanceTier < 1:
		return fmt.Errorf("%w: distance tier %d out of range", ErrInvalidRequest, req.DistanceTier)
	}
	return nil
}

// RunCycle allocates the pending pool and commits the outcome. On commit
// failure the in-memory reservations are released and ErrCommitFailed is
// returned with the provisional decisions discarded.
func (s *ScheduleService) RunCycle(ctx context.Context) (*CycleReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bootstrap(ctx); err != nil {
		return nil, err
	}

	pending, err := s.store.LoadRequestsByStatus(ctx, model.RequestStatusPending)
	if err != nil {
		return nil, fmt.Errorf("load pending requests: %w", err)
	}

	result, err := s.alloc.Allocate(ctx, pending)
	if err != nil {
		return nil, err
	}

	if err := s.store.CommitAllocation(ctx, result.Assignments, result.Waitlist, result.Repositioned, result.Decisions, s.cal.Snapshot()); err != nil {
		s.alloc.Rollback(result)
		s.logger.Error("Allocation commit failed, in-memory state rolled back", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	report := &CycleReport{
		Decisions:   result.Decisions,
		Assignments: result.Assignments,
		Waitlist:    result.Waitlist,
		Demand:      allocator.DemandReport(pending, s.demandThreshold),
	}
	s.logger.Info("Allocation cycle committed",
		zap.Int("assigned", len(report.Assignments)),
		zap.Int("waitlisted", len(report.Waitlist)),
	)
	return report, nil
}

// CancelAssignment revokes an assignment and promotes from the freed slot's
// waitlist, committing both as one transaction. Release and promotion never
// apply partially: a failed commit restores the previous in-memory state.
func (s *ScheduleService) CancelAssignment(ctx context.Context, assignmentID string) (*allocator.Cancellation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bootstrap(ctx); err != nil {
		return nil, err
	}

	cancellation, err := s.alloc.Cancel(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	if err := s.store.CommitCancellation(ctx, cancellation.Cancelled, cancellation.Promoted, cancellation.Repositioned, cancellation.Decisions, s.cal.Snapshot()); err != nil {
		if rbErr := s.alloc.RollbackCancellation(cancellation); rbErr != nil {
			s.logger.Error("Cancellation rollback failed", zap.Error(rbErr))
		}
		return nil, fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	return cancellation, nil
}

// CloseCycle expires every remaining waitlist entry when the admission cycle
// ends and commits the expirations.
func (s *ScheduleService) CloseCycle(ctx context.Context) ([]model.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bootstrap(ctx); err != nil {
		return nil, err
	}

	expired, decisions := s.alloc.CloseCycle()
	if len(expired) == 0 {
		return decisions, nil
	}

	if err := s.store.CommitExpiry(ctx, decisions); err != nil {
		s.alloc.ReopenWaitlist(expired)
		return nil, fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	return decisions, nil
}

// DemandReport summarizes current per-slot demand across the open pool,
// without mutating anything.
func (s *ScheduleService) DemandReport(ctx context.Context) ([]model.SlotDemand, error) {
	requests, err := s.store.LoadRequestsByStatus(ctx,
		model.RequestStatusPending, model.RequestStatusWaitlisted)
	if err != nil {
		return nil, fmt.Errorf("load open requests: %w", err)
	}
	return allocator.DemandReport(requests, s.demandThreshold), nil
}
