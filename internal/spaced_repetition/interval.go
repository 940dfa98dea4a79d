package spaced_repetition

import (
	"math"
	"time"

	"github.com/juliomeza/memory-card/pkg/models"
)

const day = 24 * time.Hour

// maxDurationDays is the largest day count that still fits in a time.Duration
const maxDurationDays = int(math.MaxInt64 / int64(day))

// maxInterval keeps repeated doubling from overflowing int
const maxInterval = math.MaxInt32

// NextInterval returns the interval in days that follows an attempt.
// A correct answer doubles the interval, a miss resets it to one day.
func NextInterval(current int, correct bool) int {
	if !correct {
		return 1
	}
	if current < 1 {
		current = 1
	}
	if current > maxInterval/2 {
		return maxInterval
	}
	return current * 2
}

// NextReviewDate returns the instant a concept becomes due again
func NextReviewDate(now time.Time, interval int) time.Time {
	if interval > maxDurationDays {
		return now.AddDate(0, 0, interval)
	}
	return now.Add(time.Duration(interval) * day)
}

// Apply records one attempt on the progress of a concept
func Apply(p models.ConceptProgress, correct bool, now time.Time) models.ConceptProgress {
	if p.Interval < 1 {
		p.Interval = models.DefaultInterval
	}

	p.TotalAttempts++
	if correct {
		p.CorrectAttempts++
	}
	p.Interval = NextInterval(p.Interval, correct)

	last := now
	next := NextReviewDate(now, p.Interval)
	p.LastAttempt = &last
	p.NextReview = &next
	return p
}
