package model

import (
	"sort"
	"strconv"
)

// Bus seating: two seats either side of the aisle, with a bench of five
// across the back row.
const (
	seatsPerRow  = 4
	backRowSeats = 5
	aisleCol     = 2
)

// SeatRow is one row of the rendered seat map.  Regular rows fill Left and
// Right with up to two seats each; the back row fills Back instead.
type SeatRow struct {
	Row   int    `json:"row"`
	Left  []Seat `json:"left,omitempty"`
	Right []Seat `json:"right,omitempty"`
	Back  []Seat `json:"back,omitempty"`
}

// ArrangeRows groups seats into rows ordered by row index.  Within a row
// seats are ordered by column.  The highest row is treated as the back
// bench when it holds five seats.
func ArrangeRows(seats []Seat) []SeatRow {
	byRow := make(map[int][]Seat)
	maxRow := -1
	for _, s := range seats {
		byRow[s.Row] = append(byRow[s.Row], s)
		if s.Row > maxRow {
			maxRow = s.Row
		}
	}
	idx := make([]int, 0, len(byRow))
	for r := range byRow {
		idx = append(idx, r)
	}
	sort.Ints(idx)

	rows := make([]SeatRow, 0, len(idx))
	for _, r := range idx {
		rs := byRow[r]
		sort.Slice(rs, func(i, j int) bool { return rs[i].Col < rs[j].Col })
		row := SeatRow{Row: r}
		if r == maxRow && len(rs) == backRowSeats {
			row.Back = rs
		} else {
			for _, s := range rs {
				if s.Col < aisleCol {
					row.Left = append(row.Left, s)
				} else {
					row.Right = append(row.Right, s)
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// LayoutSeats produces the seat positions for a newly provisioned trip with
// total seats.  Seat ids are "1".."total" in row-major order.  Rows hold four
// seats; when exactly five remain they form the back bench.  New seats
// start at version 1 so that a zero version never names a stored row.
func LayoutSeats(tripID string, total int) []Seat {
	seats := make([]Seat, 0, total)
	n := 0
	for row := 0; n < total; row++ {
		width := seatsPerRow
		if total-n == backRowSeats {
			width = backRowSeats
		}
		for col := 0; col < width && n < total; col++ {
			n++
			seats = append(seats, Seat{
				ID:      strconv.Itoa(n),
				TripID:  tripID,
				Row:     row,
				Col:     col,
				Status:  StatusAvailable,
				Version: 1,
			})
		}
	}
	return seats
}
