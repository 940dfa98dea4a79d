package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/juliomeza/memory-card/pkg/models"
)

// DefaultBatchSize is the number of concepts reviewed together in one batch
const DefaultBatchSize = 5

// Tiers are the star colours awarded for consecutive batches
var Tiers = []string{"bronze", "silver", "gold", "sapphire", "titanium"}

// State describes where a session is in its lifecycle
type State string

const (
	StatePresenting State = "presenting"
	StateComplete   State = "complete"
)

// Session is one batch of concepts being reviewed. Concepts answered
// correctly leave the queue; missed concepts go to its back until they
// are answered correctly.
type Session struct {
	ID           string
	BatchIndex   int
	BatchSize    int
	Batch        []models.Concept
	Queue        []models.Concept
	CorrectCount int
	Complete     bool

	presented []string
}

// Attempt is the persistence command produced by an answer. The session
// has already moved on when it is returned; storing it is up to the caller.
type Attempt struct {
	SessionID     string
	ConceptID     string
	Correct       bool
	At            time.Time
	BatchComplete bool
}

// BatchCount returns the number of batches a due set of n concepts makes
func BatchCount(n, size int) int {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Batches splits a due set into consecutive batches
func Batches(dueSet []models.Concept, size int) [][]models.Concept {
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := make([][]models.Concept, 0, BatchCount(len(dueSet), size))
	for start := 0; start < len(dueSet); start += size {
		end := min(start+size, len(dueSet))
		batches = append(batches, dueSet[start:end])
	}
	return batches
}

// StartBatch draws batch number batchIndex from the due set. It returns
// false when the slice is empty, meaning there is nothing to review.
func StartBatch(dueSet []models.Concept, batchIndex, batchSize int) (*Session, bool) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchIndex < 0 {
		return nil, false
	}

	start := batchIndex * batchSize
	if start >= len(dueSet) {
		return nil, false
	}
	end := min(start+batchSize, len(dueSet))

	batch := make([]models.Concept, end-start)
	copy(batch, dueSet[start:end])
	queue := make([]models.Concept, len(batch))
	copy(queue, batch)

	return &Session{
		ID:         uuid.NewString(),
		BatchIndex: batchIndex,
		BatchSize:  batchSize,
		Batch:      batch,
		Queue:      queue,
	}, true
}

// State returns the lifecycle state of the session
func (s *Session) State() State {
	if s.Complete {
		return StateComplete
	}
	return StatePresenting
}

// Current returns the concept being presented
func (s *Session) Current() (models.Concept, bool) {
	if len(s.Queue) == 0 {
		return models.Concept{}, false
	}
	return s.Queue[0], true
}

// Answer applies the user's verdict on the current concept and returns the
// attempt to persist.
func (s *Session) Answer(correct bool, now time.Time) (Attempt, error) {
	current, ok := s.Current()
	if !ok {
		return Attempt{}, errors.Wrap(ErrInvalidState, "answer on an empty queue")
	}
	s.presented = append(s.presented, current.ID)

	if correct {
		s.Queue = s.Queue[1:]
		s.CorrectCount++
	} else {
		s.Queue = append(s.Queue[1:], current)
	}

	if len(s.Queue) == 0 {
		s.Complete = true
	}

	return Attempt{
		SessionID:     s.ID,
		ConceptID:     current.ID,
		Correct:       correct,
		At:            now,
		BatchComplete: s.Complete,
	}, nil
}

// HasNextBatch reports whether the due set holds a batch after this one
func (s *Session) HasNextBatch(dueLen int) bool {
	return (s.BatchIndex+1)*s.BatchSize < dueLen
}

// Presented returns the IDs of the concepts shown so far, in order
func (s *Session) Presented() []string {
	out := make([]string, len(s.presented))
	copy(out, s.presented)
	return out
}

// Remaining returns how many concepts still wait for a correct answer
func (s *Session) Remaining() int {
	return len(s.Queue)
}

// Tier returns the star colour for this batch
func (s *Session) Tier() string {
	return Tiers[s.BatchIndex%len(Tiers)]
}

// AdvanceBatch counts a finished batch towards the group's progress
func AdvanceBatch(gp models.GroupProgress) models.GroupProgress {
	gp.Completed++
	return gp
}

// Progress returns how many concepts of the batch were answered correctly
// and the batch size, for display
func (s *Session) Progress() (int, int) {
	return s.CorrectCount, len(s.Batch)
}
