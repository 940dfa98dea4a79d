package spaced_repetition

import (
	"math"
	"time"

	"github.com/juliomeza/memory-card/pkg/models"
)

// Priority scores how urgently a concept needs review. Concepts that were
// never scheduled get +Inf, the rest get the number of days they are overdue.
func Priority(lastAttempt, nextReview *time.Time, now time.Time) float64 {
	if nextReview == nil {
		return math.Inf(1)
	}
	overdue := now.Sub(*nextReview).Hours() / 24.0
	return math.Max(0, overdue)
}

// ProgressPriority is Priority applied to an optional progress record
func ProgressPriority(p *models.ConceptProgress, now time.Time) float64 {
	if p == nil {
		return math.Inf(1)
	}
	return Priority(p.LastAttempt, p.NextReview, now)
}

// IsDue reports whether a concept should be reviewed at now
func IsDue(p *models.ConceptProgress, now time.Time) bool {
	if p == nil || p.NextReview == nil {
		return true
	}
	return !p.NextReview.After(now)
}
