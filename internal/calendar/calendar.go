package calendar

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"admission-scheduler/internal/model"
)

var (
	ErrUnknownSlot      = errors.New("unknown slot")
	ErrCapacityExceeded = errors.New("slot capacity exceeded")
)

type slotState struct {
	startTime time.Time
	endTime   time.Time
	capacity  int
	occupancy int
	blackout  bool
	createdAt time.Time
}

// SlotCalendar owns slot capacity and occupancy for one admission cycle.
// Occupancy moves only through Reserve and Release, which are atomic with
// respect to concurrent callers; capacity and blackout flags are fixed at
// construction.
type SlotCalendar struct {
	mu    sync.Mutex
	slots map[string]*slotState
	order []string // registration order, keeps snapshots deterministic
}

func New(slots []model.TimeSlot) (*SlotCalendar, error) {
	cal := &SlotCalendar{slots: make(map[string]*slotState, len(slots))}
	for _, slot := range slots {
		if slot.ID == "" {
			return nil, fmt.Errorf("slot with empty id")
		}
		if _, exists := cal.slots[slot.ID]; exists {
			return nil, fmt.Errorf("duplicate slot %s", slot.ID)
		}
		if slot.Capacity < 1 {
			return nil, fmt.Errorf("slot %s: capacity must be positive, got %d", slot.ID, slot.Capacity)
		}
		if !slot.EndTime.After(slot.StartTime) {
			return nil, fmt.Errorf("slot %s: end time must be after start time", slot.ID)
		}
		if slot.Occupancy < 0 || slot.Occupancy > slot.Capacity {
			return nil, fmt.Errorf("slot %s: occupancy %d out of range for capacity %d", slot.ID, slot.Occupancy, slot.Capacity)
		}
		cal.slots[slot.ID] = &slotState{
			startTime: slot.StartTime,
			endTime:   slot.EndTime,
			capacity:  slot.Capacity,
			occupancy: slot.Occupancy,
			blackout:  slot.Blackout,
			createdAt: slot.CreatedAt,
		}
		cal.order = append(cal.order, slot.ID)
	}
	return cal, nil
}

// Contains reports whether the slot is registered in this cycle's calendar.
func (c *SlotCalendar) Contains(slotID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.slots[slotID]
	return ok
}

// RemainingCapacity returns how many reservations the slot can still take.
// Blackout slots always report zero regardless of configured capacity.
func (c *SlotCalendar) RemainingCapacity(slotID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.slots[slotID]
	if !ok {
		return 0, fmt.Errorf("slot %s: %w", slotID, ErrUnknownSlot)
	}
	if slot.blackout {
		return 0, nil
	}
	return slot.capacity - slot.occupancy, nil
}

func (c *SlotCalendar) IsBlackout(slotID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.slots[slotID]
	if !ok {
		return false, fmt.Errorf("slot %s: %w", slotID, ErrUnknownSlot)
	}
	return slot.blackout, nil
}

// Reserve takes one seat in the slot, compare-and-increment against capacity.
// It either succeeds or fails fast; occupancy never exceeds capacity.
func (c *SlotCalendar) Reserve(slotID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.slots[slotID]
	if !ok {
		return fmt.Errorf("slot %s: %w", slotID, ErrUnknownSlot)
	}
	if slot.blackout || slot.occupancy >= slot.capacity {
		return fmt.Errorf("slot %s: %w", slotID, ErrCapacityExceeded)
	}
	slot.occupancy++
	return nil
}

// Release frees one previously reserved seat. Releasing an empty slot is a
// caller bug and is ignored rather than driven negative.
func (c *SlotCalendar) Release(slotID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.slots[slotID]
	if !ok {
		return fmt.Errorf("slot %s: %w", slotID, ErrUnknownSlot)
	}
	if slot.occupancy > 0 {
		slot.occupancy--
	}
	return nil
}

// Window returns the slot's half-open time interval for conflict checks.
func (c *SlotCalendar) Window(slotID string) (time.Time, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.slots[slotID]
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("slot %s: %w", slotID, ErrUnknownSlot)
	}
	return slot.startTime, slot.endTime, nil
}

// Snapshot returns all slots with current occupancy, in registration order.
func (c *SlotCalendar) Snapshot() []model.TimeSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	slots := make([]model.TimeSlot, 0, len(c.order))
	for _, id := range c.order {
		slot := c.slots[id]
		slots = append(slots, model.TimeSlot{
			ID:        id,
			StartTime: slot.startTime,
			EndTime:   slot.endTime,
			Capacity:  slot.capacity,
			Occupancy: slot.occupancy,
			Blackout:  slot.blackout,
			CreatedAt: slot.createdAt,
		})
	}
	return slots
}
