package allocator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"admission-scheduler/internal/calendar"
	"admission-scheduler/internal/conflict"
	"admission-scheduler/internal/model"
	"admission-scheduler/internal/scoring"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmptyRequestPool    = errors.New("empty request pool")
	ErrAssignmentNotFound  = errors.New("assignment not found")
	ErrAssignmentNotActive = errors.New("assignment is not active")
)

// Result is the outcome set of one allocation pass. Repositioned holds
// pre-existing waitlist entries whose stored position shifted because a new
// entry ranked ahead of them; the store persists those moves in the same
// commit as the new entries.
type Result struct {
	Assignments  []model.Assignment
	Waitlist     []model.WaitlistEntry
	Repositioned []model.WaitlistEntry
	Decisions    []model.Decision
}

// Cancellation is the atomic outcome of revoking one assignment: the freed
// assignment, the promoted waitlist entry if the slot's waitlist had one, and
// the decision rows for both requests.
type Cancellation struct {
	Cancelled    model.Assignment
	Promoted     *model.Assignment
	Entry        *model.WaitlistEntry
	Repositioned []model.WaitlistEntry
	Decisions    []model.Decision

	entryIndex int // position the promoted entry held, for rollback
}

// Allocator ranks the request pool and walks it greedily: every request gets
// its first viable preference or a waitlist entry, never silence. Committed
// assignments are stable; a cancellation repairs only the freed slot's
// waitlist instead of re-running the pool.
type Allocator struct {
	mu        sync.Mutex
	scorer    *scoring.Scorer
	calendar  *calendar.SlotCalendar
	conflicts *conflict.Checker
	logger    *zap.Logger

	requests    map[string]*model.ConsultationRequest
	assignments map[string]*model.Assignment
	waitlists   map[string][]*model.WaitlistEntry
	untargeted  []*model.WaitlistEntry

	now   func() time.Time
	newID func() string
}

func New(scorer *scoring.Scorer, cal *calendar.SlotCalendar, conflicts *conflict.Checker, logger *zap.Logger) *Allocator {
	return &Allocator{
		scorer:      scorer,
		calendar:    cal,
		conflicts:   conflicts,
		logger:      logger,
		requests:    make(map[string]*model.ConsultationRequest),
		assignments: make(map[string]*model.Assignment),
		waitlists:   make(map[string][]*model.WaitlistEntry),
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
	}
}

// Restore seeds the allocator with state committed in earlier cycles: the
// request pool, active assignments (their guardian windows are re-committed
// to the conflict sets; occupancy is expected to be preloaded in the
// calendar), and stored waitlists in their persisted order.
func (a *Allocator) Restore(requests []*model.ConsultationRequest, assignments []model.Assignment, waitlist []model.WaitlistEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, req := range requests {
		a.requests[req.ID] = req
	}
	for i := range assignments {
		asg := assignments[i]
		a.assignments[asg.ID] = &asg
		if asg.Status != model.AssignmentStatusActive {
			continue
		}
		start, end, err := a.calendar.Window(asg.SlotID)
		if err != nil {
			return fmt.Errorf("restore assignment %s: %w", asg.ID, err)
		}
		a.conflicts.Commit(asg.GuardianID, start, end)
	}
	for i := range waitlist {
		entry := waitlist[i]
		if entry.SlotID == "" {
			a.untargeted = append(a.untargeted, &entry)
			continue
		}
		a.waitlists[entry.SlotID] = append(a.waitlists[entry.SlotID], &entry)
	}
	for slotID := range a.waitlists {
		entries := a.waitlists[slotID]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	}
	return nil
}

// Allocate runs one full pass over the pending pool. Requests are scored,
// ranked, and placed in order; the returned result holds every new
// assignment, waitlist entry, and per-request decision. Identical inputs
// always produce an identical result.
func (a *Allocator) Allocate(ctx context.Context, requests []*model.ConsultationRequest) (*Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(requests) == 0 {
		return nil, ErrEmptyRequestPool
	}

	ranked := make([]*model.ConsultationRequest, len(requests))
	copy(ranked, requests)
	scores := make(map[string]scoring.Score, len(ranked))
	for _, req := range ranked {
		scores[req.ID] = a.scorer.Score(req)
	}
	sort.Slice(ranked, func(i, j int) bool {
		return scores[ranked[i].ID].Compare(scores[ranked[j].ID]) < 0
	})

	prior := make(map[string]map[string]int, len(a.waitlists))
	for slotID, entries := range a.waitlists {
		positions := make(map[string]int, len(entries))
		for _, entry := range entries {
			positions[entry.RequestID] = entry.Position
		}
		prior[slotID] = positions
	}

	result := &Result{}
	for _, req := range ranked {
		a.requests[req.ID] = req
		a.place(req, result)
	}
	result.Repositioned = a.shiftedSince(prior)

	a.logger.Info("Allocation pass completed",
		zap.Int("pool_size", len(ranked)),
		zap.Int("assigned", len(result.Assignments)),
		zap.Int("waitlisted", len(result.Waitlist)),
	)
	return result, nil
}

// place decides one request against the calendar and conflict sets, appending
// its outcome to the result.
func (a *Allocator) place(req *model.ConsultationRequest, result *Result) {
	if len(req.PreferredSlots) == 0 {
		a.waitlistRequest(req, "", model.ReasonNoPreferences, false, result)
		return
	}

	// A preference naming a slot the calendar never registered is a
	// caller/config error: fatal to this request, never to the batch.
	for _, slotID := range req.PreferredSlots {
		if !a.calendar.Contains(slotID) {
			req.Status = model.RequestStatusCancelled
			result.Decisions = append(result.Decisions, model.Decision{
				RequestID: req.ID,
				Status:    model.RequestStatusCancelled,
				Reason:    model.ReasonUnknownSlot,
			})
			a.logger.Warn("Request references unknown slot",
				zap.String("request_id", req.ID),
				zap.String("slot_id", slotID),
			)
			return
		}
	}

	var blackoutSkips, conflictSkips, capacitySkips int
	firstOpen := ""
	for rank, slotID := range req.PreferredSlots {
		blackout, err := a.calendar.IsBlackout(slotID)
		if err != nil || blackout {
			blackoutSkips++
			continue
		}
		if firstOpen == "" {
			firstOpen = slotID
		}
		if remaining, err := a.calendar.RemainingCapacity(slotID); err != nil || remaining == 0 {
			capacitySkips++
			continue
		}
		start, end, err := a.calendar.Window(slotID)
		if err != nil {
			capacitySkips++
			continue
		}
		if a.conflicts.Conflicts(req.GuardianID, start, end) {
			conflictSkips++
			continue
		}
		if err := a.calendar.Reserve(slotID); err != nil {
			// CapacityExceeded mid-scan means skip this slot, not fail.
			capacitySkips++
			continue
		}
		a.conflicts.Commit(req.GuardianID, start, end)
		a.assignRequest(req, slotID, model.MatchedPreference(rank+1), result)
		return
	}

	switch {
	case blackoutSkips == len(req.PreferredSlots):
		a.waitlistRequest(req, req.PreferredSlots[0], model.ReasonAllBlackout, false, result)
	case capacitySkips == 0:
		a.waitlistRequest(req, firstOpen, model.ReasonAllConflicts, true, result)
	default:
		a.waitlistRequest(req, firstOpen, model.ReasonNoCapacity, true, result)
	}
}

func (a *Allocator) assignRequest(req *model.ConsultationRequest, slotID, reason string, result *Result) {
	asg := &model.Assignment{
		ID:         a.newID(),
		RequestID:  req.ID,
		SlotID:     slotID,
		GuardianID: req.GuardianID,
		Reason:     reason,
		DecidedAt:  a.now(),
		Status:     model.AssignmentStatusActive,
	}
	a.assignments[asg.ID] = asg
	req.Status = model.RequestStatusAssigned

	result.Assignments = append(result.Assignments, *asg)
	result.Decisions = append(result.Decisions, model.Decision{
		RequestID: req.ID,
		Status:    model.RequestStatusAssigned,
		Reason:    reason,
		SlotID:    slotID,
	})
	a.logger.Info("Request assigned",
		zap.String("request_id", req.ID),
		zap.String("slot_id", slotID),
		zap.String("reason", reason),
	)
}

func (a *Allocator) waitlistRequest(req *model.ConsultationRequest, slotID, reason string, promotable bool, result *Result) {
	entry := &model.WaitlistEntry{
		RequestID:  req.ID,
		SlotID:     slotID,
		Reason:     reason,
		Promotable: promotable,
		EnqueuedAt: a.now(),
	}
	if slotID == "" {
		entry.Position = len(a.untargeted)
		a.untargeted = append(a.untargeted, entry)
	} else {
		a.insertByScore(slotID, entry, req)
	}
	req.Status = model.RequestStatusWaitlisted

	result.Waitlist = append(result.Waitlist, *entry)
	result.Decisions = append(result.Decisions, model.Decision{
		RequestID: req.ID,
		Status:    model.RequestStatusWaitlisted,
		Reason:    reason,
	})
	a.logger.Info("Request waitlisted",
		zap.String("request_id", req.ID),
		zap.String("slot_id", slotID),
		zap.String("reason", reason),
	)
}

// insertByScore places a new entry at its priority-ordered position in the
// slot's waitlist, so promotion order stays (score, then submission, then id)
// across cycles rather than per-pass arrival order. Entries whose request is
// no longer in the pool keep their place.
func (a *Allocator) insertByScore(slotID string, entry *model.WaitlistEntry, req *model.ConsultationRequest) {
	entries := a.waitlists[slotID]
	score := a.scorer.Score(req)
	idx := len(entries)
	for i, existing := range entries {
		other, ok := a.requests[existing.RequestID]
		if !ok {
			continue
		}
		if score.Compare(a.scorer.Score(other)) < 0 {
			idx = i
			break
		}
	}
	a.waitlists[slotID] = append(entries[:idx:idx], append([]*model.WaitlistEntry{entry}, entries[idx:]...)...)
	a.renumber(slotID)
}

// renumber keeps Position equal to list index after any insert or removal.
func (a *Allocator) renumber(slotID string) {
	for i, entry := range a.waitlists[slotID] {
		entry.Position = i
	}
}

// shiftedSince returns copies of the entries whose stored position differs
// from the prior snapshot, sorted for reproducible commits. Entries created
// after the snapshot are not reported; they are persisted as new rows.
func (a *Allocator) shiftedSince(prior map[string]map[string]int) []model.WaitlistEntry {
	var shifted []model.WaitlistEntry
	slotIDs := make([]string, 0, len(a.waitlists))
	for slotID := range a.waitlists {
		slotIDs = append(slotIDs, slotID)
	}
	sort.Strings(slotIDs)
	for _, slotID := range slotIDs {
		for _, entry := range a.waitlists[slotID] {
			prev, existed := prior[slotID][entry.RequestID]
			if existed && prev != entry.Position {
				shifted = append(shifted, *entry)
			}
		}
	}
	return shifted
}

// Rollback undoes an allocation pass whose commit failed, returning the
// calendar, conflict sets, and request pool to their pre-pass state.
func (a *Allocator) Rollback(result *Result) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, asg := range result.Assignments {
		if start, end, err := a.calendar.Window(asg.SlotID); err == nil {
			a.conflicts.Release(asg.GuardianID, start, end)
		}
		_ = a.calendar.Release(asg.SlotID)
		delete(a.assignments, asg.ID)
		if req, ok := a.requests[asg.RequestID]; ok {
			req.Status = model.RequestStatusPending
		}
	}
	touched := make(map[string]bool)
	for _, entry := range result.Waitlist {
		a.removeEntry(entry.SlotID, entry.RequestID)
		if entry.SlotID != "" {
			touched[entry.SlotID] = true
		}
		if req, ok := a.requests[entry.RequestID]; ok {
			req.Status = model.RequestStatusPending
		}
	}
	for _, entry := range result.Repositioned {
		touched[entry.SlotID] = true
	}
	for slotID := range touched {
		a.renumber(slotID)
	}
	for _, dec := range result.Decisions {
		if dec.Reason != model.ReasonUnknownSlot {
			continue
		}
		if req, ok := a.requests[dec.RequestID]; ok {
			req.Status = model.RequestStatusPending
		}
	}
}

// Cancel revokes an active assignment and promotes within the freed slot's
// waitlist, in stored order, as one atomic unit. Entries whose guardian now
// conflicts with the slot are passed over and keep waiting; no re-scoring or
// re-ranking of the rest of the pool happens.
func (a *Allocator) Cancel(ctx context.Context, assignmentID string) (*Cancellation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	asg, ok := a.assignments[assignmentID]
	if !ok {
		return nil, fmt.Errorf("assignment %s: %w", assignmentID, ErrAssignmentNotFound)
	}
	if asg.Status != model.AssignmentStatusActive {
		return nil, fmt.Errorf("assignment %s: %w", assignmentID, ErrAssignmentNotActive)
	}

	start, end, err := a.calendar.Window(asg.SlotID)
	if err != nil {
		return nil, fmt.Errorf("cancel assignment %s: %w", assignmentID, err)
	}

	asg.Status = model.AssignmentStatusCancelled
	a.conflicts.Release(asg.GuardianID, start, end)
	if err := a.calendar.Release(asg.SlotID); err != nil {
		return nil, fmt.Errorf("cancel assignment %s: %w", assignmentID, err)
	}
	if req, ok := a.requests[asg.RequestID]; ok {
		req.Status = model.RequestStatusCancelled
	}

	cancellation := &Cancellation{
		Cancelled: *asg,
		Decisions: []model.Decision{{
			RequestID: asg.RequestID,
			Status:    model.RequestStatusCancelled,
			Reason:    model.ReasonCancelled,
			SlotID:    asg.SlotID,
		}},
	}
	a.logger.Info("Assignment cancelled",
		zap.String("assignment_id", asg.ID),
		zap.String("request_id", asg.RequestID),
		zap.String("slot_id", asg.SlotID),
	)

	a.promote(asg.SlotID, start, end, cancellation)
	return cancellation, nil
}

func (a *Allocator) promote(slotID string, start, end time.Time, cancellation *Cancellation) {
	entries := a.waitlists[slotID]
	for i, entry := range entries {
		if !entry.Promotable {
			continue
		}
		req, ok := a.requests[entry.RequestID]
		if !ok {
			continue
		}
		if a.conflicts.Conflicts(req.GuardianID, start, end) {
			continue
		}
		if err := a.calendar.Reserve(slotID); err != nil {
			return
		}
		a.conflicts.Commit(req.GuardianID, start, end)

		promoted := &model.Assignment{
			ID:         a.newID(),
			RequestID:  req.ID,
			SlotID:     slotID,
			GuardianID: req.GuardianID,
			Reason:     model.ReasonPromoted,
			DecidedAt:  a.now(),
			Status:     model.AssignmentStatusActive,
		}
		a.assignments[promoted.ID] = promoted
		req.Status = model.RequestStatusAssigned

		a.waitlists[slotID] = append(entries[:i:i], entries[i+1:]...)
		a.renumber(slotID)
		for _, rest := range a.waitlists[slotID][i:] {
			cancellation.Repositioned = append(cancellation.Repositioned, *rest)
		}

		entryCopy := *entry
		cancellation.Promoted = promoted
		cancellation.Entry = &entryCopy
		cancellation.entryIndex = i
		cancellation.Decisions = append(cancellation.Decisions, model.Decision{
			RequestID: req.ID,
			Status:    model.RequestStatusAssigned,
			Reason:    model.ReasonPromoted,
			SlotID:    slotID,
		})
		a.logger.Info("Waitlist entry promoted",
			zap.String("request_id", req.ID),
			zap.String("slot_id", slotID),
		)
		return
	}
}

// RollbackCancellation restores the state a Cancel call changed when its
// store commit failed: the promoted entry goes back to its waitlist position
// and the cancelled assignment becomes active again.
func (a *Allocator) RollbackCancellation(c *Cancellation) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	slotID := c.Cancelled.SlotID
	start, end, err := a.calendar.Window(slotID)
	if err != nil {
		return fmt.Errorf("rollback cancellation: %w", err)
	}

	if c.Promoted != nil {
		a.conflicts.Release(c.Promoted.GuardianID, start, end)
		if err := a.calendar.Release(slotID); err != nil {
			return fmt.Errorf("rollback cancellation: %w", err)
		}
		delete(a.assignments, c.Promoted.ID)
		if req, ok := a.requests[c.Promoted.RequestID]; ok {
			req.Status = model.RequestStatusWaitlisted
		}
		entry := *c.Entry
		entries := a.waitlists[slotID]
		idx := c.entryIndex
		if idx > len(entries) {
			idx = len(entries)
		}
		entries = append(entries[:idx:idx], append([]*model.WaitlistEntry{&entry}, entries[idx:]...)...)
		a.waitlists[slotID] = entries
		a.renumber(slotID)
	}

	if err := a.calendar.Reserve(slotID); err != nil {
		return fmt.Errorf("rollback cancellation: %w", err)
	}
	a.conflicts.Commit(c.Cancelled.GuardianID, start, end)
	if asg, ok := a.assignments[c.Cancelled.ID]; ok {
		asg.Status = model.AssignmentStatusActive
	}
	if req, ok := a.requests[c.Cancelled.RequestID]; ok {
		req.Status = model.RequestStatusAssigned
	}
	return nil
}

// CloseCycle expires every remaining waitlist entry when the admission cycle
// ends. Returns the expired entries and the decision rows for commit.
func (a *Allocator) CloseCycle() ([]model.WaitlistEntry, []model.Decision) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var expired []model.WaitlistEntry
	var decisions []model.Decision

	expire := func(entry *model.WaitlistEntry) {
		expired = append(expired, *entry)
		if req, ok := a.requests[entry.RequestID]; ok {
			req.Status = model.RequestStatusExpired
		}
		decisions = append(decisions, model.Decision{
			RequestID: entry.RequestID,
			Status:    model.RequestStatusExpired,
			Reason:    entry.Reason,
		})
	}

	slotIDs := make([]string, 0, len(a.waitlists))
	for slotID := range a.waitlists {
		slotIDs = append(slotIDs, slotID)
	}
	sort.Strings(slotIDs)
	for _, slotID := range slotIDs {
		for _, entry := range a.waitlists[slotID] {
			expire(entry)
		}
	}
	for _, entry := range a.untargeted {
		expire(entry)
	}

	a.waitlists = make(map[string][]*model.WaitlistEntry)
	a.untargeted = nil

	a.logger.Info("Admission cycle closed", zap.Int("expired", len(expired)))
	return expired, decisions
}

// ReopenWaitlist restores expired entries after a failed cycle-close commit.
func (a *Allocator) ReopenWaitlist(entries []model.WaitlistEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range entries {
		entry := entries[i]
		if req, ok := a.requests[entry.RequestID]; ok {
			req.Status = model.RequestStatusWaitlisted
		}
		if entry.SlotID == "" {
			a.untargeted = append(a.untargeted, &entry)
			continue
		}
		a.waitlists[entry.SlotID] = append(a.waitlists[entry.SlotID], &entry)
	}
	for slotID := range a.waitlists {
		list := a.waitlists[slotID]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Position < list[j].Position })
	}
}

// Waitlist returns the stored entries for a slot, in promotion order.
func (a *Allocator) Waitlist(slotID string) []model.WaitlistEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	var entries []*model.WaitlistEntry
	if slotID == "" {
		entries = a.untargeted
	} else {
		entries = a.waitlists[slotID]
	}
	out := make([]model.WaitlistEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, *entry)
	}
	return out
}

func (a *Allocator) removeEntry(slotID, requestID string) {
	if slotID == "" {
		for i, entry := range a.untargeted {
			if entry.RequestID == requestID {
				a.untargeted = append(a.untargeted[:i:i], a.untargeted[i+1:]...)
				return
			}
		}
		return
	}
	entries := a.waitlists[slotID]
	for i, entry := range entries {
		if entry.RequestID == requestID {
			a.waitlists[slotID] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// DemandReport counts how many requests list each slot among their
// preferences, flagging slots whose demand reached the open-recommendation
// threshold. Output is sorted by slot id for reproducible reports.
func DemandReport(requests []*model.ConsultationRequest, threshold int) []model.SlotDemand {
	counts := make(map[string]int)
	for _, req := range requests {
		if req.Status == model.RequestStatusCancelled {
			continue
		}
		for _, slotID := range req.PreferredSlots {
			counts[slotID]++
		}
	}
	slotIDs := make([]string, 0, len(counts))
	for slotID := range counts {
		slotIDs = append(slotIDs, slotID)
	}
	sort.Strings(slotIDs)

	report := make([]model.SlotDemand, 0, len(slotIDs))
	for _, slotID := range slotIDs {
		report = append(report, model.SlotDemand{
			SlotID:    slotID,
			Demand:    counts[slotID],
			Highlight: threshold > 0 && counts[slotID] >= threshold,
		})
	}
	return report
}
