package models

import "time"

// DefaultMaxPoints is applied when an assignment has no positive point value.
const DefaultMaxPoints = 100

// Assignment is the instructor-defined task a submission answers. The
// coursework API only reads assignments; they are owned by course management.
type Assignment struct {
	ID                       uint      `gorm:"primaryKey" json:"id"`
	Title                    string    `gorm:"size:255;not null" json:"title"`
	Description              string    `gorm:"type:text" json:"description"`
	DueDate                  time.Time `gorm:"not null" json:"due_date"`
	MaxPoints                float64   `gorm:"not null;default:100" json:"max_points"`
	AllowLateSubmissions     bool      `gorm:"not null;default:false" json:"allow_late_submissions"`
	LatePenaltyPercentPerDay float64   `gorm:"not null;default:0" json:"late_penalty_percent_per_day"`
	InstructorID             *uint     `json:"instructor_id"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return reference.After(a.DueDate)
}

// PointsCap returns the maximum grade accepted for the assignment.
func (a Assignment) PointsCap() float64 {
	if a.MaxPoints <= 0 {
		return DefaultMaxPoints
	}
	return a.MaxPoints
}

// AcceptsWork reports whether a student may still change their submission at the given time.
func (a Assignment) AcceptsWork(reference time.Time) bool {
	return !a.IsPastDue(reference) || a.AllowLateSubmissions
}
