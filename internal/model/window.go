package model

import (
	"fmt"
	"time"
)

// RetentionDays is how far back the B3 API retains movement data. Requests
// for older dates are clamped to this edge.
const RetentionDays = 558

// RetentionEdge returns the oldest reference date B3 still serves,
// relative to now.
func RetentionEdge(now time.Time) time.Time {
	return DateOnly(now).AddDate(0, 0, -RetentionDays)
}

// DateOnly truncates t to day granularity in UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ValidationError reports a user-correctable problem with a sync request.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// SyncWindow is an inclusive date range for a movements sync, already
// clamped to [retention edge, today].
type SyncWindow struct {
	Start time.Time
	End   time.Time
}

// NewSyncWindow clamps [start, end] against the retention edge and today,
// rejecting windows that remain inverted after clamping. A start below the
// edge is raised silently; an end beyond today is lowered silently.
func NewSyncWindow(start, end, now time.Time) (SyncWindow, error) {
	today := DateOnly(now)
	edge := RetentionEdge(now)
	start = DateOnly(start)
	end = DateOnly(end)

	if start.Before(edge) {
		start = edge
	}
	if start.After(today) {
		return SyncWindow{}, &ValidationError{
			Reason: fmt.Sprintf("start_date %s is after today", start.Format(DateFormat)),
		}
	}
	if end.After(today) {
		end = today
	}
	if end.Before(start) {
		return SyncWindow{}, &ValidationError{
			Reason: fmt.Sprintf("end_date %s is before start_date %s",
				end.Format(DateFormat), start.Format(DateFormat)),
		}
	}
	return SyncWindow{Start: start, End: end}, nil
}
