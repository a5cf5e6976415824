package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/appointment_service/internal/apperr"
)

// Response is the wire shape every endpoint shares; result payloads embed it.
type Response struct {
	Success bool   `json:"success"`
	Err     string `json:"err"`
}

func ok() Response { return Response{Success: true} }

// timeLayout is the naive timestamp format crossing the boundary; values are
// deemed UTC.
const timeLayout = "2006-01-02 15:04"

var (
	rangeFloor   = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeCeiling = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
)

func parseTime(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(timeLayout, s, time.UTC); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
}

// parseRange turns optional boundary strings into a concrete [from, to]
// window, defaulting to all of time.
func parseRange(start, end string) (time.Time, time.Time, error) {
	from, to := rangeFloor, rangeCeiling
	var err error
	if start != "" {
		if from, err = parseTime(start); err != nil {
			return from, to, err
		}
	}
	if end != "" {
		if to, err = parseTime(end); err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}

// fail maps a core error kind onto an HTTP status, keeping the original
// error text as the failure reason.
func fail(c echo.Context, err error) error {
	return c.JSON(statusOf(err), Response{Success: false, Err: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrUnauthenticated),
		errors.Is(err, apperr.ErrSessionExpired),
		errors.Is(err, apperr.ErrWrongPassword):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidInterval):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperr.ErrDuplicate),
		errors.Is(err, apperr.ErrSlotConflict),
		errors.Is(err, apperr.ErrSlotFull),
		errors.Is(err, apperr.ErrSlotHasBookings),
		errors.Is(err, apperr.ErrCapacityBelowBooked),
		errors.Is(err, apperr.ErrAlreadyBooked),
		errors.Is(err, apperr.ErrAlreadyFinished),
		errors.Is(err, apperr.ErrAlreadyCanceled),
		errors.Is(err, apperr.ErrNotBooked),
		errors.Is(err, apperr.ErrNotUnfinished):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
