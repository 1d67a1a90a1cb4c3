package model

import "time"

type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusAssigned   RequestStatus = "assigned"
	RequestStatusWaitlisted RequestStatus = "waitlisted"
	RequestStatusExpired    RequestStatus = "expired"
	RequestStatusCancelled  RequestStatus = "cancelled"
)

// ConsultationRequest is a digitized admission application waiting for a
// consultation slot. Records arrive fully populated from the CRM/OCR boundary;
// only Status changes after creation.
type ConsultationRequest struct {
	ID              string        `json:"id"`
	GuardianID      string        `json:"guardian_id"`
	StudentID       string        `json:"student_id"`
	PreferredSlots  []string      `json:"preferred_slots"` // most-preferred first
	SubmittedAt     time.Time     `json:"submitted_at"`
	GradeLevel      int           `json:"grade_level"` // 1..6
	SiblingEnrolled bool          `json:"sibling_enrolled"`
	DistanceTier    int           `json:"distance_tier"` // 1 = nearest
	Complete        bool          `json:"complete"`
	Status          RequestStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
}
