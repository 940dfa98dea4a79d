package review

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/juliomeza/memory-card/internal/logging"
	"github.com/juliomeza/memory-card/internal/metrics"
	"github.com/juliomeza/memory-card/internal/session"
	"github.com/juliomeza/memory-card/internal/spaced_repetition"
	"github.com/juliomeza/memory-card/pkg/models"
)

// AnonymousUser is the user ID of a reviewer without stored progress
const AnonymousUser int64 = 0

// DefaultIntervalWarnDays is the interval above which a write is logged as an anomaly
const DefaultIntervalWarnDays = 3650

// ConceptRepository provides the concepts available for review
type ConceptRepository interface {
	ListByGroup(ctx context.Context, group string) ([]models.Concept, error)
	ListByLevel(ctx context.Context, level int) ([]models.Concept, error)
	ListAll(ctx context.Context) ([]models.Concept, error)
	Categories(ctx context.Context) ([]string, error)
}

// ProgressStore reads and writes user progress
type ProgressStore interface {
	// Get returns nil, nil when the user has no stored progress
	Get(ctx context.Context, userID int64) (*models.ProgressRecord, error)
	RecordAttempt(ctx context.Context, userID int64, conceptID string, correct bool, now time.Time) (*models.ConceptProgress, error)
	SetGroupProgress(ctx context.Context, userID int64, groupKey string, completed, total int) (*models.GroupProgress, error)
}

// Options configures a Service
type Options struct {
	BatchSize        int
	Grouping         spaced_repetition.Grouping
	Order            spaced_repetition.Order
	Filter           spaced_repetition.Filter
	AsyncPersistence bool
	QueueSize        int
	IntervalWarnDays int

	Logger  *zap.Logger
	Metrics *metrics.Collector
	Clock   func() time.Time
	Rand    *rand.Rand
}

// Stats summarises a user's progress
type Stats struct {
	TotalConcepts   int
	Attempted       int
	Due             int
	TotalAttempts   int
	CorrectAttempts int
	Accuracy        float64
	Groups          []models.GroupProgress
}

// Service runs review sessions, one per user, and persists their outcome
type Service struct {
	repo       ConceptRepository
	store      ProgressStore
	selector   *spaced_repetition.Selector
	dispatcher *Dispatcher
	batchSize  int
	filter     spaced_repetition.Filter
	warnDays   int
	logger     *zap.Logger
	metrics    *metrics.Collector
	now        func() time.Time

	mu    sync.Mutex
	users map[int64]*userState
}

type userState struct {
	mu     sync.Mutex
	active *activeSession
}

type activeSession struct {
	groupKey string
	due      []models.Concept
	session  *session.Session
	group    models.GroupProgress
}

// New creates a review service
func New(repo ConceptRepository, store ProgressStore, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = session.DefaultBatchSize
	}
	if opts.Grouping == "" {
		opts.Grouping = spaced_repetition.ByCategory
	}
	if opts.Order == "" {
		opts.Order = spaced_repetition.PrioritySort
	}
	if opts.Filter == "" {
		opts.Filter = spaced_repetition.FilterAll
	}
	if opts.IntervalWarnDays <= 0 {
		opts.IntervalWarnDays = DefaultIntervalWarnDays
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Service{
		repo:      repo,
		store:     store,
		selector:  spaced_repetition.NewSelector(opts.Grouping, opts.Order),
		batchSize: opts.BatchSize,
		filter:    opts.Filter,
		warnDays:  opts.IntervalWarnDays,
		logger:    logging.OrNop(opts.Logger).Named("review"),
		metrics:   opts.Metrics,
		now:       opts.Clock,
		users:     make(map[int64]*userState),
	}
	if opts.Rand != nil {
		s.selector.WithRand(opts.Rand)
	}

	if opts.AsyncPersistence {
		s.dispatcher = NewAsyncDispatcher(opts.QueueSize, s.reportError)
	} else {
		s.dispatcher = NewSyncDispatcher()
	}
	s.logger.Debug("review service ready",
		zap.Int("batch_size", s.batchSize),
		zap.String("grouping", string(opts.Grouping)),
		zap.Bool("async_persistence", s.dispatcher.Async()),
	)
	return s
}

// Close drains pending progress writes
func (s *Service) Close(ctx context.Context) error {
	return s.dispatcher.Close(ctx)
}

func (s *Service) reportError(job Job, err error) {
	s.metrics.ObservePersistenceError(job.Op)
	s.logger.Error("progress write failed",
		zap.String("operation", job.Op),
		zap.Int64("user_id", job.UserID),
		zap.Error(err),
	)
}

func (s *Service) state(userID int64) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.users[userID]
	if !ok {
		st = &userState{}
		s.users[userID] = st
	}
	return st
}

// Begin starts a session over the due concepts of a group. A group with
// nothing due yields a View with Empty set, not an error.
func (s *Service) Begin(ctx context.Context, userID int64, groupKey string) (*View, error) {
	st := s.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.active = nil

	concepts, err := s.listGroup(ctx, groupKey)
	if err != nil {
		return nil, err
	}

	progress, err := s.loadProgress(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	due := s.selector.SelectDue(concepts, progress, now)
	due = spaced_repetition.Narrow(due, progress, s.filter)

	batch, ok := session.StartBatch(due, 0, s.batchSize)
	if !ok {
		s.metrics.ObserveSessionStarted(true)
		s.logger.Debug("nothing due", zap.Int64("user_id", userID), zap.String("group", groupKey))
		return &View{GroupKey: groupKey, Empty: true}, nil
	}
	s.metrics.ObserveSessionStarted(false)

	active := &activeSession{
		groupKey: groupKey,
		due:      due,
		session:  batch,
	}
	st.active = active

	total := session.BatchCount(len(due), s.batchSize)
	stored, known := models.GroupProgress{}, false
	if progress != nil {
		stored, known = progress.Groups[groupKey]
	}
	active.group = stored
	active.group.GroupKey = groupKey

	// The total follows the freshly selected due set but never shrinks.
	active.group.Total = max(stored.Total, total)

	var perr error
	if !known || active.group.Total > stored.Total {
		perr = s.persistGroup(ctx, userID, active.group)
		if perr != nil {
			s.metrics.ObservePersistenceError(OpSetGroupProgress)
			s.logger.Warn("group progress not saved", zap.Int64("user_id", userID), zap.Error(perr))
		}
	}

	s.logger.Info("session started",
		zap.Int64("user_id", userID),
		zap.String("group", groupKey),
		zap.String("session_id", batch.ID),
		zap.Int("due", len(due)),
	)
	return active.view(), perr
}

// Answer records the user's verdict on the current concept. When the write
// fails the returned view still reflects the new session state and the
// error is a *PersistenceError.
func (s *Service) Answer(ctx context.Context, userID int64, correct bool) (*View, error) {
	st := s.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	active := st.active
	if active == nil {
		return nil, ErrNoSession
	}

	now := s.now()
	attempt, err := active.session.Answer(correct, now)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveAnswer(correct)

	var perr error
	if userID != AnonymousUser {
		perr = s.dispatcher.Dispatch(ctx, Job{
			Op:     OpRecordAttempt,
			UserID: userID,
			Run: func(ctx context.Context) error {
				return s.recordAttempt(ctx, userID, attempt)
			},
		})
	}

	if attempt.BatchComplete {
		s.metrics.ObserveBatchCompleted()
		active.group = session.AdvanceBatch(active.group)
		// Completed batches carry over from earlier sessions, so a revisit
		// can finish more batches than the group was last counted for.
		active.group.Total = max(active.group.Total, active.group.Completed)
		if err := s.persistGroup(ctx, userID, active.group); err != nil && perr == nil {
			perr = err
		}
		s.logger.Info("batch complete",
			zap.Int64("user_id", userID),
			zap.String("group", active.groupKey),
			zap.String("session_id", active.session.ID),
			zap.Int("completed", active.group.Completed),
			zap.Int("total", active.group.Total),
		)
	}

	if perr != nil {
		s.metrics.ObservePersistenceError(operation(perr))
		s.logger.Warn("progress not saved", zap.Int64("user_id", userID), zap.Error(perr))
	}
	return active.view(), perr
}

// Next starts the batch after a completed one, or reports LevelComplete
// when the due set is exhausted.
func (s *Service) Next(ctx context.Context, userID int64) (*View, error) {
	st := s.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	active := st.active
	if active == nil {
		return nil, ErrNoSession
	}
	if !active.session.Complete {
		return nil, errors.Wrap(session.ErrInvalidState, "batch not finished")
	}

	if !active.session.HasNextBatch(len(active.due)) {
		st.active = nil
		return &View{GroupKey: active.groupKey, Group: active.group, LevelComplete: true}, nil
	}

	next, ok := session.StartBatch(active.due, active.session.BatchIndex+1, s.batchSize)
	if !ok {
		st.active = nil
		return &View{GroupKey: active.groupKey, Group: active.group, LevelComplete: true}, nil
	}
	active.session = next
	return active.view(), nil
}

// Current returns the view of the user's active session
func (s *Service) Current(userID int64) (*View, error) {
	st := s.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.active == nil {
		return nil, ErrNoSession
	}
	return st.active.view(), nil
}

// End discards the user's active session
func (s *Service) End(userID int64) {
	st := s.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.active = nil
}

// DueCount returns how many concepts across all groups are due for the user
func (s *Service) DueCount(ctx context.Context, userID int64) (int, error) {
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list concepts")
	}
	progress, err := s.loadProgress(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.selector.CountDue(all, progress, s.now()), nil
}

// Categories lists the category keys in display order
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list categories")
	}
	return categories, nil
}

// Stats summarises the stored progress of a user
func (s *Service) Stats(ctx context.Context, userID int64) (*Stats, error) {
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list concepts")
	}
	progress, err := s.loadProgress(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalConcepts: len(all),
		Due:           s.selector.CountDue(all, progress, s.now()),
	}
	if progress == nil {
		return stats, nil
	}

	for _, c := range all {
		p := progress.Concept(c.ID)
		if p == nil {
			continue
		}
		stats.Attempted++
		stats.TotalAttempts += p.TotalAttempts
		stats.CorrectAttempts += p.CorrectAttempts
	}
	if stats.TotalAttempts > 0 {
		stats.Accuracy = float64(stats.CorrectAttempts) / float64(stats.TotalAttempts) * 100
	}

	for key, g := range progress.Groups {
		g.GroupKey = key
		stats.Groups = append(stats.Groups, g)
	}
	sort.Slice(stats.Groups, func(i, j int) bool {
		return stats.Groups[i].GroupKey < stats.Groups[j].GroupKey
	})
	return stats, nil
}

func (s *Service) listGroup(ctx context.Context, groupKey string) ([]models.Concept, error) {
	if s.selector.Grouping == spaced_repetition.ByLevel {
		level, err := strconv.Atoi(groupKey)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid level %q", groupKey)
		}
		concepts, err := s.repo.ListByLevel(ctx, level)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list level %d", level)
		}
		return concepts, nil
	}

	concepts, err := s.repo.ListByGroup(ctx, groupKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list group %q", groupKey)
	}
	return concepts, nil
}

// loadProgress returns nil for anonymous users and users without history
func (s *Service) loadProgress(ctx context.Context, userID int64) (*models.ProgressRecord, error) {
	if userID == AnonymousUser {
		return nil, nil
	}

	start := time.Now()
	progress, err := s.store.Get(ctx, userID)
	s.metrics.ObserveStoreDuration("get", time.Since(start))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load progress for user %d", userID)
	}

	if dropped := progress.Normalize(); len(dropped) > 0 {
		s.logger.Warn("dropped malformed progress entries",
			zap.Int64("user_id", userID),
			zap.Strings("concept_ids", dropped),
		)
	}
	return progress, nil
}

func (s *Service) recordAttempt(ctx context.Context, userID int64, attempt session.Attempt) error {
	start := time.Now()
	p, err := s.store.RecordAttempt(ctx, userID, attempt.ConceptID, attempt.Correct, attempt.At)
	s.metrics.ObserveStoreDuration("record_attempt", time.Since(start))
	if err != nil {
		return err
	}

	if p != nil && p.Interval > s.warnDays {
		s.logger.Warn("review interval exceeds anomaly threshold",
			zap.Int64("user_id", userID),
			zap.String("concept_id", p.ConceptID),
			zap.Int("interval_days", p.Interval),
		)
	}
	return nil
}

func (s *Service) persistGroup(ctx context.Context, userID int64, gp models.GroupProgress) error {
	if userID == AnonymousUser {
		return nil
	}
	return s.dispatcher.Dispatch(ctx, Job{
		Op:     OpSetGroupProgress,
		UserID: userID,
		Run: func(ctx context.Context) error {
			start := time.Now()
			_, err := s.store.SetGroupProgress(ctx, userID, gp.GroupKey, gp.Completed, gp.Total)
			s.metrics.ObserveStoreDuration("set_group_progress", time.Since(start))
			return err
		},
	})
}

func operation(err error) string {
	var perr *PersistenceError
	if errors.As(err, &perr) {
		return perr.Op
	}
	return "unknown"
}

func (a *activeSession) view() *View {
	sess := a.session
	correct, size := sess.Progress()
	v := &View{
		SessionID:     sess.ID,
		GroupKey:      a.groupKey,
		BatchIndex:    sess.BatchIndex,
		BatchCount:    session.BatchCount(len(a.due), sess.BatchSize),
		BatchSize:     size,
		CorrectCount:  correct,
		Remaining:     sess.Remaining(),
		DueCount:      len(a.due),
		Tier:          sess.Tier(),
		Answered:      len(sess.Presented()),
		BatchComplete: sess.State() == session.StateComplete,
		HasNextBatch:  sess.HasNextBatch(len(a.due)),
		Group:         a.group,
	}
	if c, ok := sess.Current(); ok {
		v.Concept = c
		v.HasConcept = true
	}
	return v
}
