package spaced_repetition

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/juliomeza/memory-card/pkg/models"
)

// LevelSpan is the width of the level range that makes up one level group
const LevelSpan = 1000

// Grouping decides how concepts are gathered into a review group
type Grouping string

const (
	ByCategory Grouping = "category"
	ByLevel    Grouping = "level"
)

// Order decides how a due set is arranged
type Order string

const (
	PrioritySort Order = "priority"
	Shuffle      Order = "shuffle"
)

// Filter narrows a due set down to a subset of concepts
type Filter string

const (
	FilterAll       Filter = "all"
	FilterNew       Filter = "new"
	FilterIncorrect Filter = "incorrect"
)

// ParseGrouping validates a grouping name
func ParseGrouping(s string) (Grouping, error) {
	switch g := Grouping(s); g {
	case ByCategory, ByLevel:
		return g, nil
	}
	return "", fmt.Errorf("unknown grouping %q", s)
}

// ParseOrder validates an order name
func ParseOrder(s string) (Order, error) {
	switch o := Order(s); o {
	case PrioritySort, Shuffle:
		return o, nil
	}
	return "", fmt.Errorf("unknown order %q", s)
}

// ParseFilter validates a filter name
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case FilterAll, FilterNew, FilterIncorrect:
		return f, nil
	case "":
		return FilterAll, nil
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

// LevelRange returns the half-open range [lo, hi) of levels in a level group
func LevelRange(level int) (int, int) {
	return level, level + LevelSpan
}

// Selector picks the concepts that are due and orders them for review
type Selector struct {
	Grouping Grouping
	Order    Order
	rnd      *rand.Rand
}

// NewSelector creates a selector with the given configuration
func NewSelector(grouping Grouping, order Order) *Selector {
	return &Selector{
		Grouping: grouping,
		Order:    order,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand replaces the random source used for shuffling
func (s *Selector) WithRand(rnd *rand.Rand) *Selector {
	s.rnd = rnd
	return s
}

// SelectDue returns the concepts due at now, most urgent first. A nil
// progress record means the caller has no history, so every concept is due.
func (s *Selector) SelectDue(all []models.Concept, progress *models.ProgressRecord, now time.Time) []models.Concept {
	due := make([]models.Concept, 0, len(all))

	if progress == nil {
		due = append(due, all...)
		if s.Order == Shuffle {
			s.shuffle(due)
		}
		return due
	}

	for _, c := range all {
		if IsDue(progress.Concept(c.ID), now) {
			due = append(due, c)
		}
	}

	if s.Order == Shuffle {
		s.shuffle(due)
		return due
	}

	priorities := make(map[string]float64, len(due))
	for _, c := range due {
		priorities[c.ID] = ProgressPriority(progress.Concept(c.ID), now)
	}
	sort.SliceStable(due, func(i, j int) bool {
		return priorities[due[i].ID] > priorities[due[j].ID]
	})
	return due
}

// CountDue returns how many concepts are due at now
func (s *Selector) CountDue(all []models.Concept, progress *models.ProgressRecord, now time.Time) int {
	count := 0
	for _, c := range all {
		if IsDue(progress.Concept(c.ID), now) {
			count++
		}
	}
	return count
}

// Narrow keeps the concepts matching the filter, preserving order.
// New concepts have no progress; incorrect ones were missed on their last
// attempt, which leaves their interval reset to one day.
func Narrow(concepts []models.Concept, progress *models.ProgressRecord, filter Filter) []models.Concept {
	if filter == FilterAll || filter == "" {
		return concepts
	}

	out := make([]models.Concept, 0, len(concepts))
	for _, c := range concepts {
		p := progress.Concept(c.ID)
		switch filter {
		case FilterNew:
			if p == nil {
				out = append(out, c)
			}
		case FilterIncorrect:
			if p != nil && p.Interval == 1 && p.CorrectAttempts < p.TotalAttempts {
				out = append(out, c)
			}
		}
	}
	return out
}

func (s *Selector) shuffle(concepts []models.Concept) {
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s.rnd.Shuffle(len(concepts), func(i, j int) {
		concepts[i], concepts[j] = concepts[j], concepts[i]
	})
}
