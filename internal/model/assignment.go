package model

import (
	"fmt"
	"time"
)

type AssignmentStatus string

const (
	AssignmentStatusActive    AssignmentStatus = "active"
	AssignmentStatusCancelled AssignmentStatus = "cancelled"
)

// Decision reason codes. Assignments carry either a matched-preference code
// or ReasonPromoted; waitlist entries carry one of the remaining codes.
const (
	ReasonNoCapacity    = "no-capacity"
	ReasonAllConflicts  = "all-conflicts"
	ReasonAllBlackout   = "all-blackout"
	ReasonNoPreferences = "no-preferences"
	ReasonUnknownSlot   = "unknown-slot"
	ReasonPromoted      = "promoted"
	ReasonCancelled     = "cancelled"
)

// MatchedPreference returns the reason code for an assignment that consumed
// the request's Nth preference (1-based).
func MatchedPreference(rank int) string {
	return fmt.Sprintf("matched-preference-%d", rank)
}

// Assignment binds one request to one slot. Once committed it never moves;
// it is only superseded by an explicit cancellation.
type Assignment struct {
	ID         string           `json:"id"`
	RequestID  string           `json:"request_id"`
	SlotID     string           `json:"slot_id"`
	GuardianID string           `json:"guardian_id"`
	Reason     string           `json:"reason"`
	DecidedAt  time.Time        `json:"decided_at"`
	Status     AssignmentStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
}
