package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"quizdeck/internal/domain"
	"quizdeck/internal/selector"
)

// DefaultAdvanceDelay is how long after a committed answer the advance
// callback fires. The delay exists for presentation; the ordering guarantee
// (commit strictly before the callback) is part of the engine contract.
const DefaultAdvanceDelay = 800 * time.Millisecond

// ProgressStore persists which original indices a user has answered for a
// quiz. It survives session boundaries and feeds practice mode.
type ProgressStore interface {
	Answered(ctx context.Context, quizID, userID string) (map[int]struct{}, error)
	MarkAnswered(ctx context.Context, quizID, userID string, originalIndex int) error
}

// FlagService is the slice of the flag registry a session needs.
type FlagService interface {
	Report(ctx context.Context, quizID, questionText, reason, creatorID string) (domain.Flag, error)
	Upvote(ctx context.Context, flagID string) (int, error)
}

// Config wires a session's collaborators. Progress, Flags, and OnAdvance are
// optional; Now defaults to time.Now and AdvanceDelay to DefaultAdvanceDelay.
type Config struct {
	ID           string
	QuizID       string
	UserID       string
	Mode         selector.Mode
	Questions    []domain.Question
	Progress     ProgressStore
	Flags        FlagService
	AdvanceDelay time.Duration
	OnAdvance    func(next int)
	Now          func() time.Time
}

// Session is the per-attempt answer state machine. All state transitions are
// serialized by the mutex; the only suspension points are the flag-service
// and progress-store calls, which run outside the lock and never mutate
// state retroactively on failure.
type Session struct {
	id     string
	quizID string
	userID string
	mode   selector.Mode

	questions []domain.Question

	mu        sync.Mutex
	states    []domain.QuestionState
	submitted bool

	startedAt    time.Time
	now          func() time.Time
	progress     ProgressStore
	flags        FlagService
	advanceDelay time.Duration
	onAdvance    func(next int)
}

// AnswerResult reports the outcome of a single committed answer.
type AnswerResult struct {
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correctAnswer"`
}

// Mistake is one incorrectly answered, unflagged question.
type Mistake struct {
	Position int             `json:"position"`
	Question domain.Question `json:"question"`
	Selected string          `json:"selected"`
}

// Result is the output of Finish.
type Result struct {
	Score     int       `json:"score"`
	Total     int       `json:"total"`
	Incorrect []Mistake `json:"incorrect"`
}

// New builds a session over an already-selected question list. Study mode is
// review-only and must not construct a session; callers enforce that.
func New(cfg Config) *Session {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	delay := cfg.AdvanceDelay
	if delay == 0 {
		delay = DefaultAdvanceDelay
	}
	return &Session{
		id:           cfg.ID,
		quizID:       cfg.QuizID,
		userID:       cfg.UserID,
		mode:         cfg.Mode,
		questions:    cfg.Questions,
		states:       make([]domain.QuestionState, len(cfg.Questions)),
		startedAt:    now(),
		now:          now,
		progress:     cfg.Progress,
		flags:        cfg.Flags,
		advanceDelay: delay,
		onAdvance:    cfg.OnAdvance,
	}
}

func (s *Session) ID() string          { return s.id }
func (s *Session) QuizID() string      { return s.quizID }
func (s *Session) UserID() string      { return s.userID }
func (s *Session) Mode() selector.Mode { return s.mode }
func (s *Session) Len() int            { return len(s.questions) }

// Question returns the question at a session position.
func (s *Session) Question(i int) (domain.Question, error) {
	if i < 0 || i >= len(s.questions) {
		return domain.Question{}, &domain.ValidationError{Field: "questionIndex", Index: i, Reason: "out of range"}
	}
	return s.questions[i], nil
}

// States returns a snapshot of the per-question states.
func (s *Session) States() []domain.QuestionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.QuestionState, len(s.states))
	copy(out, s.states)
	return out
}

// Elapsed is the wall time since the session started.
func (s *Session) Elapsed() time.Duration {
	return s.now().Sub(s.startedAt)
}

// Answer commits the caller's choice for the question at session position i.
// A second answer against the same question is rejected with
// ErrAlreadyAnswered and leaves the first answer untouched. The state commit
// happens synchronously; the progress write and the delayed advance callback
// are strictly after it.
func (s *Session) Answer(ctx context.Context, i int, chosen string) (AnswerResult, error) {
	q, err := s.Question(i)
	if err != nil {
		return AnswerResult{}, err
	}
	if !answerOf(q, chosen) {
		return AnswerResult{}, &domain.ValidationError{Field: "answer", Index: i, Reason: "not one of the question's answers"}
	}

	s.mu.Lock()
	if s.states[i].SelectedAnswer != nil {
		s.mu.Unlock()
		return AnswerResult{}, domain.ErrAlreadyAnswered
	}
	correct := chosen == q.CorrectAnswer
	s.states[i].SelectedAnswer = &chosen
	s.states[i].IsCorrect = &correct
	s.mu.Unlock()

	if s.progress != nil && q.OriginalIndex != nil {
		if err := s.progress.MarkAnswered(ctx, s.quizID, s.userID, *q.OriginalIndex); err != nil {
			// Progress is a convenience; a failed write must not undo the answer.
			log.Printf("mark answered quiz=%s idx=%d: %v", s.quizID, *q.OriginalIndex, err)
		}
	}

	if s.onAdvance != nil {
		next := i + 1
		time.AfterFunc(s.advanceDelay, func() { s.onAdvance(next) })
	}

	return AnswerResult{Correct: correct, CorrectAnswer: q.CorrectAnswer}, nil
}

// Flag reports the question at position i as defective. The registry call is
// the suspension point; session state is only touched once it succeeds.
func (s *Session) Flag(ctx context.Context, i int, reason string) (domain.Flag, error) {
	q, err := s.Question(i)
	if err != nil {
		return domain.Flag{}, err
	}
	if reason == "" {
		return domain.Flag{}, &domain.ValidationError{Field: "reason", Index: i, Reason: "flag reason must not be empty"}
	}
	if s.flags == nil {
		return domain.Flag{}, domain.ErrFlagNotFound
	}

	flag, err := s.flags.Report(ctx, s.quizID, q.Text, reason, s.userID)
	if err != nil {
		return domain.Flag{}, fmt.Errorf("report flag: %w", err)
	}

	s.mu.Lock()
	s.states[i].Flagged = true
	s.states[i].FlagReason = flag.Reason
	s.states[i].FlagID = flag.ID
	s.states[i].Upvotes = flag.Upvotes
	s.mu.Unlock()
	return flag, nil
}

// Upvote increments the flag attached to position i and mirrors the new
// count into local state. The increment itself is atomic in the store.
func (s *Session) Upvote(ctx context.Context, i int) (int, error) {
	if i < 0 || i >= len(s.questions) {
		return 0, &domain.ValidationError{Field: "questionIndex", Index: i, Reason: "out of range"}
	}
	s.mu.Lock()
	flagID := s.states[i].FlagID
	s.mu.Unlock()
	if flagID == "" || s.flags == nil {
		return 0, domain.ErrFlagNotFound
	}

	count, err := s.flags.Upvote(ctx, flagID)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.states[i].Upvotes = count
	s.mu.Unlock()
	return count, nil
}

// ApplyFlags reconciles session flag state against the registry's current
// view for this quiz. Deleted flags lose their scoring override here;
// answers are never touched.
func (s *Session) ApplyFlags(flags []domain.Flag) {
	byText := make(map[string]domain.Flag, len(flags))
	for _, f := range flags {
		byText[f.QuestionText] = f
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, q := range s.questions {
		if f, ok := byText[q.Text]; ok {
			s.states[i].Flagged = true
			s.states[i].FlagReason = f.Reason
			s.states[i].FlagID = f.ID
			s.states[i].Upvotes = f.Upvotes
		} else {
			s.states[i].Flagged = false
			s.states[i].FlagReason = ""
			s.states[i].FlagID = ""
			s.states[i].Upvotes = 0
		}
	}
}

// IsComplete is true once every question is answered or flagged.
func (s *Session) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		if !st.Answered() {
			return false
		}
	}
	return true
}

// Score counts correct answers plus flagged questions. A learner who rejects
// a broken question still passes it.
func (s *Session) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoreLocked()
}

func (s *Session) scoreLocked() int {
	score := 0
	for _, st := range s.states {
		if st.Counted() {
			score++
		}
	}
	return score
}

// Finish is valid only once the session is complete. Flagged misses are not
// reported as mistakes.
func (s *Session) Finish() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.states {
		if !st.Answered() {
			return Result{}, domain.ErrSessionIncomplete
		}
	}

	res := Result{Score: s.scoreLocked(), Total: len(s.states)}
	for i, st := range s.states {
		if st.Flagged || st.IsCorrect == nil || *st.IsCorrect {
			continue
		}
		res.Incorrect = append(res.Incorrect, Mistake{
			Position: i,
			Question: s.questions[i],
			Selected: *st.SelectedAnswer,
		})
	}
	return res, nil
}

// TryMarkSubmitted atomically flips the per-session submission guard. Both
// the auto-submit and manual paths go through it, so exactly one wins.
func (s *Session) TryMarkSubmitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted {
		return false
	}
	s.submitted = true
	return true
}

// ClearSubmitted re-arms the guard after a failed upstream write so the
// session stays retryable.
func (s *Session) ClearSubmitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = false
}

// Submitted reports whether a leaderboard write has succeeded.
func (s *Session) Submitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

func answerOf(q domain.Question, chosen string) bool {
	for _, a := range q.Answers {
		if a == chosen {
			return true
		}
	}
	return false
}
