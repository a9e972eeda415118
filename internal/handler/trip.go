package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/college-bus-booking/internal/model"
	"github.com/iliyamo/college-bus-booking/internal/store"
)

// maxSeatsPerTrip bounds provisioning requests; the largest coach in the
// fleet is a double decker.
const maxSeatsPerTrip = 90

// TripStore is what TripHandler reads from and provisions into.
type TripStore interface {
	store.TripStore
	store.TripWriter
	ReadSeats(ctx context.Context, tripID string) ([]model.Seat, error)
}

// TripHandler serves trip details and the seat map.
type TripHandler struct {
	Store TripStore
	Now   func() time.Time
}

func NewTripHandler(st TripStore) *TripHandler {
	if st == nil {
		panic("nil store passed to NewTripHandler")
	}
	return &TripHandler{Store: st, Now: time.Now}
}

// GetTrip handles GET /v1/trips/:id.
func (h *TripHandler) GetTrip(c echo.Context) error {
	trip, err := h.Store.GetTrip(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, trip)
}

// SeatMap is the rendered seat map of a trip.  Seats are normalised: a
// lapsed hold is shown as available even before the sweeper clears it.
type SeatMap struct {
	TripID    string          `json:"trip_id"`
	Seats     []model.Seat    `json:"seats"`
	Rows      []model.SeatRow `json:"rows"`
	Available int             `json:"available"`
	AsOf      time.Time       `json:"as_of"`
}

func newSeatMap(tripID string, seats []model.Seat, now time.Time) SeatMap {
	m := SeatMap{TripID: tripID, Seats: make([]model.Seat, 0, len(seats)), AsOf: now.UTC()}
	for _, s := range seats {
		s = s.Effective(now)
		if s.Status == model.StatusAvailable {
			m.Available++
		}
		m.Seats = append(m.Seats, s)
	}
	m.Rows = model.ArrangeRows(m.Seats)
	return m
}

// Seats handles GET /v1/trips/:id/seats.
func (h *TripHandler) Seats(c echo.Context) error {
	tripID := c.Param("id")
	seats, err := h.Store.ReadSeats(c.Request().Context(), tripID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, newSeatMap(tripID, seats, h.Now()))
}

type createTripRequest struct {
	ID            string    `json:"id"`
	Route         string    `json:"route"`
	FarePerSeat   int64     `json:"fare_per_seat"`
	TotalSeats    int       `json:"total_seats"`
	DepartsAt     time.Time `json:"departs_at"`
	ArrivesAt     time.Time `json:"arrives_at"`
	CapacityClass string    `json:"capacity_class"`
}

func (r createTripRequest) validate() string {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return "id is required"
	case strings.TrimSpace(r.Route) == "":
		return "route is required"
	case r.FarePerSeat < 0:
		return "fare_per_seat must not be negative"
	case r.TotalSeats < 1 || r.TotalSeats > maxSeatsPerTrip:
		return "total_seats out of range"
	case r.DepartsAt.IsZero() || !r.ArrivesAt.After(r.DepartsAt):
		return "arrives_at must be after departs_at"
	}
	return ""
}

// CreateTrip handles POST /v1/admin/trips.  The seats are laid out once here and
// their count never changes.
func (h *TripHandler) CreateTrip(c echo.Context) error {
	var body createTripRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if msg := body.validate(); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	if body.CapacityClass == "" {
		body.CapacityClass = "STANDARD"
	}
	trip := model.Trip{
		ID:            body.ID,
		Route:         body.Route,
		FarePerSeat:   body.FarePerSeat,
		TotalSeats:    body.TotalSeats,
		DepartsAt:     body.DepartsAt.UTC(),
		ArrivesAt:     body.ArrivesAt.UTC(),
		CapacityClass: strings.ToUpper(body.CapacityClass),
	}
	if err := h.Store.CreateTrip(c.Request().Context(), trip, model.LayoutSeats(trip.ID, trip.TotalSeats)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, trip)
}
