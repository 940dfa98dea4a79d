package review

import (
	"github.com/juliomeza/memory-card/pkg/models"
)

// View is what a front-end needs to render the state of a user's session
type View struct {
	SessionID string
	GroupKey  string

	// Concept is the card being presented; HasConcept is false once the
	// batch is complete.
	Concept    models.Concept
	HasConcept bool

	BatchIndex   int
	BatchCount   int
	BatchSize    int
	CorrectCount int
	Remaining    int
	Answered     int // answers given in this batch, repeats included
	DueCount     int
	Tier         string

	BatchComplete bool
	HasNextBatch  bool

	Group models.GroupProgress

	// Empty means nothing in the group is due; LevelComplete means every
	// batch of the due set was finished.
	Empty         bool
	LevelComplete bool
}
