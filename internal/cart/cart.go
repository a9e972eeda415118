// Package cart tracks the seats a user means to buy in the current session.
// Selection is independent of holds: a seat can be selected whatever its
// store state, and is only checked against that state at checkout.
package cart

import (
	"sort"
	"strconv"
	"sync"
)

// Cart is the selection of one user on one trip.  It is safe for
// concurrent use.
type Cart struct {
	tripID string

	mu    sync.Mutex
	seats map[string]struct{}
}

// New returns an empty cart for tripID.
func New(tripID string, seatIDs ...string) *Cart {
	c := &Cart{tripID: tripID, seats: make(map[string]struct{}, len(seatIDs))}
	for _, id := range seatIDs {
		if id != "" {
			c.seats[id] = struct{}{}
		}
	}
	return c
}

// TripID returns the trip the cart belongs to.
func (c *Cart) TripID() string { return c.tripID }

// Toggle adds seatID if absent and removes it otherwise.  It reports
// whether the seat is selected afterwards.
func (c *Cart) Toggle(seatID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seats[seatID]; ok {
		delete(c.seats, seatID)
		return false
	}
	c.seats[seatID] = struct{}{}
	return true
}

// Contains reports whether seatID is selected.
func (c *Cart) Contains(seatID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seats[seatID]
	return ok
}

// Seats returns the selection in seat-number order.
func (c *Cart) Seats() []string {
	c.mu.Lock()
	out := make([]string, 0, len(c.seats))
	for id := range c.seats {
		out = append(out, id)
	}
	c.mu.Unlock()
	SortSeatIDs(out)
	return out
}

// Len returns the number of selected seats.
func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seats)
}

// Clear empties the selection.
func (c *Cart) Clear() {
	c.mu.Lock()
	c.seats = make(map[string]struct{})
	c.mu.Unlock()
}

// Total is the price of the current selection.
func (c *Cart) Total(farePerSeat int64) int64 { return ComputeTotal(c.Len(), farePerSeat) }

// ComputeTotal returns count × farePerSeat.
func ComputeTotal(count int, farePerSeat int64) int64 {
	return int64(count) * farePerSeat
}

// SortSeatIDs orders numeric ids by value and puts them before any
// non-numeric ids, which sort lexically.
func SortSeatIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return ids[i] < ids[j]
	})
}
