package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"admission-scheduler/internal/allocator"
	"admission-scheduler/internal/model"
	"admission-scheduler/internal/scoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testWeights = scoring.Weights{
	SiblingBonus:      3000,
	CompletenessBonus: 5000,
	DistanceWeight:    100,
	UrgencyWeight:     10,
}

// mockStore keeps everything in memory and can be told to fail commits, so
// the rollback paths are testable without a database.
type mockStore struct {
	slots    []model.TimeSlot
	requests []*model.ConsultationRequest

	failCommits bool

	committedAssignments []model.Assignment
	committedWaitlist    []model.WaitlistEntry
	committedDecisions   []model.Decision
	cancellations        int
	expiries             int
}

func (m *mockStore) LoadSlots(ctx context.Context) ([]model.TimeSlot, error) {
	return m.slots, nil
}

func (m *mockStore) LoadRequestsByStatus(ctx context.Context, statuses ...model.RequestStatus) ([]*model.ConsultationRequest, error) {
	var out []*model.ConsultationRequest
	for _, req := range m.requests {
		for _, status := range statuses {
			if req.Status == status {
				out = append(out, req)
				break
			}
		}
	}
	return out, nil
}

func (m *mockStore) LoadActiveAssignments(ctx context.Context) ([]model.Assignment, error) {
	return nil, nil
}

func (m *mockStore) LoadWaitlist(ctx context.Context) ([]model.WaitlistEntry, error) {
	return nil, nil
}

func (m *mockStore) CreateRequest(ctx context.Context, req *model.ConsultationRequest) error {
	m.requests = append(m.requests, req)
	return nil
}

func (m *mockStore) CommitAllocation(ctx context.Context, assignments []model.Assignment, waitlist, repositioned []model.WaitlistEntry, decisions []model.Decision, slots []model.TimeSlot) error {
	if m.failCommits {
		return errors.New("database unavailable")
	}
	m.committedAssignments = append(m.committedAssignments, assignments...)
	m.committedWaitlist = append(m.committedWaitlist, waitlist...)
	m.committedDecisions = append(m.committedDecisions, decisions...)
	return nil
}

func (m *mockStore) CommitCancellation(ctx context.Context, cancelled model.Assignment, promoted *model.Assignment, repositioned []model.WaitlistEntry, decisions []model.Decision, slots []model.TimeSlot) error {
	if m.failCommits {
		return errors.New("database unavailable")
	}
	m.cancellations++
	m.committedDecisions = append(m.committedDecisions, decisions...)
	return nil
}

func (m *mockStore) CommitExpiry(ctx context.Context, decisions []model.Decision) error {
	if m.failCommits {
		return errors.New("database unavailable")
	}
	m.expiries++
	m.committedDecisions = append(m.committedDecisions, decisions...)
	return nil
}

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
}

func pendingRequest(id, guardian string, submitted time.Time, prefs ...string) *model.ConsultationRequest {
	return &model.ConsultationRequest{
		ID:             id,
		GuardianID:     guardian,
		StudentID:      "student-" + id,
		PreferredSlots: prefs,
		SubmittedAt:    submitted,
		GradeLevel:     2,
		DistanceTier:   1,
		Status:         model.RequestStatusPending,
	}
}

func newMockStore() *mockStore {
	return &mockStore{
		slots: []model.TimeSlot{
			{ID: "S1", StartTime: at(10, 0), EndTime: at(10, 30), Capacity: 2},
			{ID: "S2", StartTime: at(11, 0), EndTime: at(11, 30), Capacity: 1},
		},
	}
}

func TestRunCycleCommitsOutcome(t *testing.T) {
	store := newMockStore()
	store.requests = []*model.ConsultationRequest{
		pendingRequest("R1", "G1", at(9, 0), "S1"),
		pendingRequest("R2", "G2", at(9, 1), "S1"),
		pendingRequest("R3", "G3", at(9, 2), "S1"),
	}

	svc := NewScheduleService(store, testWeights, 3, zap.NewNop())
	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Len(t, report.Assignments, 2)
	assert.Len(t, report.Waitlist, 1)
	assert.Len(t, report.Decisions, 3)
	assert.Len(t, store.committedAssignments, 2)
	assert.Len(t, store.committedWaitlist, 1)

	require.Len(t, report.Demand, 1)
	assert.Equal(t, "S1", report.Demand[0].SlotID)
	assert.Equal(t, 3, report.Demand[0].Demand)
	assert.True(t, report.Demand[0].Highlight)
}

func TestRunCycleEmptyPool(t *testing.T) {
	store := newMockStore()
	svc := NewScheduleService(store, testWeights, 3, zap.NewNop())

	_, err := svc.RunCycle(context.Background())
	assert.ErrorIs(t, err, allocator.ErrEmptyRequestPool)
}

func TestRunCycleCommitFailureRollsBack(t *testing.T) {
	store := newMockStore()
	store.requests = []*model.ConsultationRequest{
		pendingRequest("R1", "G1", at(9, 0), "S1"),
		pendingRequest("R2", "G2", at(9, 1), "S1"),
	}
	store.failCommits = true

	svc := NewScheduleService(store, testWeights, 3, zap.NewNop())
	_, err := svc.RunCycle(context.Background())
	require.ErrorIs(t, err, ErrCommitFailed)

	// The rollback returned every request to pending; once the store
	// recovers the same pool allocates cleanly into the untouched capacity.
	for _, req := range store.requests {
		assert.Equal(t, model.RequestStatusPending, req.Status)
	}

	store.failCommits = false
	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Assignments, 2)
	assert.Empty(t, report.Waitlist)
}

func TestCancelAssignmentCommitsPromotion(t *testing.T) {
	store := newMockStore()
	store.requests = []*model.ConsultationRequest{
		pendingRequest("R1", "G1", at(9, 0), "S2"),
		pendingRequest("R2", "G2", at(9, 1), "S2"),
	}

	svc := NewScheduleService(store, testWeights, 3, zap.NewNop())
	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Assignments, 1)

	cancellation, err := svc.CancelAssignment(context.Background(), report.Assignments[0].ID)
	require.NoError(t, err)
	require.NotNil(t, cancellation.Promoted)
	assert.Equal(t, "R2", cancellation.Promoted.RequestID)
	assert.Equal(t, 1, store.cancellations)
}

func TestCancelAssignmentCommitFailureRollsBack(t *testing.T) {
	store := newMockStore()
	store.requests = []*model.ConsultationRequest{
		pendingRequest("R1", "G1", at(9, 0), "S2"),
		pendingRequest("R2", "G2", at(9, 1), "S2"),
	}

	svc := NewScheduleService(store, testWeights, 3, zap.NewNop())
	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	store.failCommits = true
	_, err = svc.CancelAssignment(context.Background(), report.Assignments[0].ID)
	require.ErrorIs(t, err, ErrCommitFailed)

	// Neither the release nor the promotion survived the failed commit.
	assert.Equal(t, model.RequestStatusAssigned, store.requests[0].Status)
	assert.Equal(t, model.RequestStatusWaitlisted, store.requests[1].Status)

	store.failCommits = false
	cancellation, err := svc.CancelAssignment(context.Background(), report.Assignments[0].ID)
	require.NoError(t, err)
	require.NotNil(t, cancellation.Promoted)
}

func TestCloseCycleExpiresAndCommits(t *testing.T) {
	store := newMockStore()
	store.requests = []*model.ConsultationRequest{
		pendingRequest("R1", "G1", at(9, 0), "S2"),
		pendingRequest("R2", "G2", at(9, 1), "S2"),
	}

	svc := NewScheduleService(store, testWeights, 3, zap.NewNop())
	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	decisions, err := svc.CloseCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, model.RequestStatusExpired, decisions[0].Status)
	assert.Equal(t, 1, store.expiries)
	assert.Equal(t, model.RequestStatusExpired, store.requests[1].Status)
}

func TestIntakeRequestValidation(t *testing.T) {
	store := newMockStore()
	svc := NewScheduleService(store, testWeights, 3, zap.NewNop())
	ctx := context.Background()

	valid := pendingRequest("R1", "G1", at(9, 0), "S1")
	require.NoError(t, svc.IntakeRequest(ctx, valid))
	assert.Len(t, store.requests, 1)

	tests := []struct {
		name   string
		mutate func(*model.ConsultationRequest)
	}{
		{"missing id", func(r *model.ConsultationRequest) { r.ID = "" }},
		{"missing guardian", func(r *model.ConsultationRequest) { r.GuardianID = "" }},
		{"missing student", func(r *model.ConsultationRequest) { r.StudentID = "" }},
		{"zero submission time", func(r *model.ConsultationRequest) { r.SubmittedAt = time.Time{} }},
		{"grade too low", func(r *model.ConsultationRequest) { r.GradeLevel = 0 }},
		{"grade too high", func(r *model.ConsultationRequest) { r.GradeLevel = 7 }},
		{"bad distance tier", func(r *model.ConsultationRequest) { r.DistanceTier = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := pendingRequest("RX", "GX", at(9, 0), "S1")
			tt.mutate(req)
			assert.ErrorIs(t, svc.IntakeRequest(ctx, req), ErrInvalidRequest)
		})
	}
}

func TestDemandReportAcrossOpenPool(t *testing.T) {
	store := newMockStore()
	store.requests = []*model.ConsultationRequest{
		pendingRequest("R1", "G1", at(9, 0), "S1"),
		pendingRequest("R2", "G2", at(9, 1), "S1", "S2"),
		pendingRequest("R3", "G3", at(9, 2), "S1"),
	}

	svc := NewScheduleService(store, testWeights, 3, zap.NewNop())
	demand, err := svc.DemandReport(context.Background())
	require.NoError(t, err)

	require.Len(t, demand, 2)
	assert.Equal(t, 3, demand[0].Demand)
	assert.True(t, demand[0].Highlight)
	assert.False(t, demand[1].Highlight)
}
