package model

import "time"

// TimeSlot is a bounded-capacity consultation window. Capacity is fixed for
// the admission cycle; occupancy moves only through the calendar's reserve
// and release path.
type TimeSlot struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Capacity  int       `json:"capacity"`
	Occupancy int       `json:"occupancy"`
	Blackout  bool      `json:"blackout"`
	CreatedAt time.Time `json:"created_at"`
}
