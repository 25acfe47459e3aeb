package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"quizdeck/internal/domain"
	"quizdeck/internal/flags"
	"quizdeck/internal/leaderboard"
	"quizdeck/internal/selector"
	"quizdeck/internal/session"
)

// SessionRepository abstracts how live sessions are stored.
type SessionRepository interface {
	Put(sess *session.Session)
	Get(id string) (*session.Session, bool)
	Delete(id string)
}

// QuizRepository loads quiz pools (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizService ties the selection, session, flag, and leaderboard engines
// into the use cases the transports call.
type QuizService struct {
	sessions      SessionRepository
	quizzes       QuizRepository
	selector      *selector.Selector
	registry      *flags.Registry
	scores        *leaderboard.Service
	progress      session.ProgressStore
	advanceDelay  time.Duration
	minAutoSubmit time.Duration
}

// Options collects the optional knobs for NewQuizService.
type Options struct {
	Selector      *selector.Selector
	Progress      session.ProgressStore
	AdvanceDelay  time.Duration
	MinAutoSubmit time.Duration
}

func NewQuizService(sessions SessionRepository, quizzes QuizRepository, registry *flags.Registry, scores *leaderboard.Service, opts Options) *QuizService {
	sel := opts.Selector
	if sel == nil {
		sel = selector.New()
	}
	delay := opts.AdvanceDelay
	if delay == 0 {
		delay = session.DefaultAdvanceDelay
	}
	minAuto := opts.MinAutoSubmit
	if minAuto == 0 {
		minAuto = leaderboard.MinAutoSubmitDuration
	}
	return &QuizService{
		sessions:      sessions,
		quizzes:       quizzes,
		selector:      sel,
		registry:      registry,
		scores:        scores,
		progress:      opts.Progress,
		advanceDelay:  delay,
		minAutoSubmit: minAuto,
	}
}

// StartResult describes a started attempt. Study mode returns questions only:
// review never enters the scoring state machine.
type StartResult struct {
	SessionID string            `json:"sessionId,omitempty"`
	Mode      selector.Mode     `json:"mode"`
	Questions []domain.Question `json:"questions"`
	Study     bool              `json:"study,omitempty"`
}

// Start selects questions for a quiz and, for scored modes, creates a
// session preloaded with the quiz's current flag state.
func (s *QuizService) Start(ctx context.Context, quizID, userID string, mode selector.Mode, params selector.Params, onAdvance func(next int)) (StartResult, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return StartResult{}, err
	}

	var answered map[int]struct{}
	if mode == selector.ModePractice && s.progress != nil {
		answered, err = s.progress.Answered(ctx, quizID, userID)
		if err != nil {
			return StartResult{}, fmt.Errorf("load progress: %w", err)
		}
	}

	questions, err := s.selector.Select(quiz.Questions, mode, params, answered)
	if err != nil {
		return StartResult{}, err
	}

	if mode == selector.ModeStudy {
		return StartResult{Mode: mode, Questions: questions, Study: true}, nil
	}

	sess := session.New(session.Config{
		ID:           newSessionID(),
		QuizID:       quizID,
		UserID:       userID,
		Mode:         mode,
		Questions:    questions,
		Progress:     s.progress,
		Flags:        s.registry,
		AdvanceDelay: s.advanceDelay,
		OnAdvance:    onAdvance,
	})

	if existing, err := s.registry.ListByQuiz(ctx, quizID); err != nil {
		log.Printf("load flags for quiz %s: %v", quizID, err)
	} else if len(existing) > 0 {
		sess.ApplyFlags(existing)
	}

	s.sessions.Put(sess)
	return StartResult{SessionID: sess.ID(), Mode: mode, Questions: questions}, nil
}

// Answer records one answer in a session.
func (s *QuizService) Answer(ctx context.Context, sessionID string, questionIndex int, chosen string) (session.AnswerResult, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return session.AnswerResult{}, domain.ErrSessionNotFound
	}
	return sess.Answer(ctx, questionIndex, chosen)
}

// FlagQuestion self-reports a question as defective.
func (s *QuizService) FlagQuestion(ctx context.Context, sessionID string, questionIndex int, reason string) (domain.Flag, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Flag{}, domain.ErrSessionNotFound
	}
	return sess.Flag(ctx, questionIndex, reason)
}

// UpvoteFlag endorses the flag on a session question.
func (s *QuizService) UpvoteFlag(ctx context.Context, sessionID string, questionIndex int) (int, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return 0, domain.ErrSessionNotFound
	}
	return sess.Upvote(ctx, questionIndex)
}

// FinishResult carries the computed outcome plus whether an auto-submission
// made it onto the leaderboard.
type FinishResult struct {
	session.Result
	DurationMS int64                    `json:"duration"`
	Submitted  bool                     `json:"submitted"`
	Entry      *domain.LeaderboardEntry `json:"entry,omitempty"`
}

// Finish completes a session and auto-submits when the minimum-duration gate
// allows. The score is always reported, even when the flag refresh or the
// leaderboard write fails; a failed write leaves the session retryable.
func (s *QuizService) Finish(ctx context.Context, sessionID, name string) (FinishResult, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return FinishResult{}, domain.ErrSessionNotFound
	}

	// Re-read flag state so moderation since the session started is
	// reflected in scoring. Best effort: a registry outage must not cost
	// the learner their result.
	if current, err := s.registry.ListByQuiz(ctx, sess.QuizID()); err != nil {
		log.Printf("refresh flags for quiz %s: %v", sess.QuizID(), err)
	} else {
		sess.ApplyFlags(current)
	}

	res, err := sess.Finish()
	if err != nil {
		return FinishResult{}, err
	}

	elapsed := sess.Elapsed()
	out := FinishResult{Result: res, DurationMS: elapsed.Milliseconds()}

	if name == "" || elapsed < s.minAutoSubmit {
		return out, nil
	}
	entry, err := s.submitGuarded(ctx, sess, name, res.Score, elapsed)
	if err != nil {
		log.Printf("auto-submit session %s: %v", sessionID, err)
		return out, nil
	}
	out.Submitted = true
	out.Entry = &entry
	return out, nil
}

// SubmitScore is the manual submission path. It shares the session's
// hasSubmitted guard with auto-submission, so exactly one write wins.
func (s *QuizService) SubmitScore(ctx context.Context, sessionID, name string) (domain.LeaderboardEntry, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.LeaderboardEntry{}, domain.ErrSessionNotFound
	}
	res, err := sess.Finish()
	if err != nil {
		return domain.LeaderboardEntry{}, err
	}
	return s.submitGuarded(ctx, sess, name, res.Score, sess.Elapsed())
}

func (s *QuizService) submitGuarded(ctx context.Context, sess *session.Session, name string, score int, elapsed time.Duration) (domain.LeaderboardEntry, error) {
	if !sess.TryMarkSubmitted() {
		return domain.LeaderboardEntry{}, domain.ErrAlreadySubmitted
	}
	entry, err := s.scores.Submit(ctx, sess.QuizID(), name, score, elapsed.Milliseconds())
	if err != nil {
		// The write never happened; re-arm the guard so a retry can win.
		sess.ClearSubmitted()
		return domain.LeaderboardEntry{}, err
	}
	return entry, nil
}

// End discards a session. A pending network call whose session is gone has
// its result dropped; nothing is rolled back.
func (s *QuizService) End(sessionID string) {
	s.sessions.Delete(sessionID)
}

// Session exposes a live session for transports that stream its state.
func (s *QuizService) Session(sessionID string) (*session.Session, bool) {
	return s.sessions.Get(sessionID)
}

func newSessionID() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
