package models

import "time"

// DefaultInterval is the interval in days given to a concept on its first attempt
const DefaultInterval = 1

// ConceptProgress tracks a user's attempts on a single concept
type ConceptProgress struct {
	ConceptID       string     `json:"concept_id" db:"concept_id"`
	TotalAttempts   int        `json:"total_attempts" db:"total_attempts"`
	CorrectAttempts int        `json:"correct_attempts" db:"correct_attempts"`
	LastAttempt     *time.Time `json:"last_attempt" db:"last_attempt"`
	NextReview      *time.Time `json:"next_review" db:"next_review"`
	Interval        int        `json:"interval" db:"interval_days"` // Current interval in days
}

// Valid reports whether the record satisfies the counter and interval invariants
func (p ConceptProgress) Valid() bool {
	if p.TotalAttempts < 0 || p.CorrectAttempts < 0 {
		return false
	}
	if p.CorrectAttempts > p.TotalAttempts {
		return false
	}
	return p.Interval >= 1
}

// Accuracy returns the percentage of correct attempts, 0 when never attempted
func (p ConceptProgress) Accuracy() float64 {
	if p.TotalAttempts == 0 {
		return 0
	}
	return float64(p.CorrectAttempts) / float64(p.TotalAttempts) * 100
}
