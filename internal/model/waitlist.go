package model

import "time"

// WaitlistEntry is a request that could not secure a slot, tagged with the
// slot it should promote into when capacity frees. SlotID is empty for
// requests that arrived with no preferences; those and all-blackout entries
// are not promotable and wait for manual assignment.
type WaitlistEntry struct {
	RequestID  string    `json:"request_id"`
	SlotID     string    `json:"slot_id"`
	Reason     string    `json:"reason"`
	Promotable bool      `json:"promotable"`
	Position   int       `json:"position"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Decision is the per-request outcome row reported to the staff UI after a
// cycle: final status, the reason code behind it, and the slot if assigned.
type Decision struct {
	RequestID string        `json:"request_id"`
	Status    RequestStatus `json:"status"`
	Reason    string        `json:"reason"`
	SlotID    string        `json:"slot_id,omitempty"`
}

// SlotDemand summarizes how many pending requests list a slot among their
// preferences. Highlight marks slots whose demand reached the
// open-recommendation threshold.
type SlotDemand struct {
	SlotID    string `json:"slot_id"`
	Demand    int    `json:"demand"`
	Highlight bool   `json:"highlight"`
}
