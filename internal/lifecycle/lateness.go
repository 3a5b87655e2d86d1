package lifecycle

import (
	"math"
	"time"
)

// Timeliness classifies a moment relative to a due date.
type Timeliness string

const (
	// OnTime means the moment is at or before the due date.
	OnTime Timeliness = "ON_TIME"
	// Overdue means the moment is strictly after the due date.
	Overdue Timeliness = "OVERDUE"
)

const day = 24 * time.Hour

// Classify reports whether now is on time for dueDate. The boundary is inclusive.
func Classify(now, dueDate time.Time) Timeliness {
	if IsLate(now, dueDate) {
		return Overdue
	}
	return OnTime
}

// IsLate reports whether now is strictly after dueDate.
func IsLate(now, dueDate time.Time) bool {
	return now.After(dueDate)
}

// DaysLate returns the number of started days elapsed since dueDate, or zero
// when now is on time.
func DaysLate(now, dueDate time.Time) int {
	if !IsLate(now, dueDate) {
		return 0
	}
	return int(math.Ceil(float64(now.Sub(dueDate)) / float64(day)))
}

// PenaltyFactor returns the multiplier applied to a raw grade for work that is
// daysLate days late under a percent-per-day penalty. The result is within [0, 1].
func PenaltyFactor(daysLate int, percentPerDay float64) float64 {
	if daysLate <= 0 || percentPerDay <= 0 {
		return 1
	}
	factor := 1 - float64(daysLate)*percentPerDay/100
	if factor < 0 {
		return 0
	}
	return factor
}
