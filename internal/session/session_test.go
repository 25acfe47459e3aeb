package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quizdeck/internal/domain"
	"quizdeck/internal/selector"
)

func TestAnswerRejectsSecondAttempt(t *testing.T) {
	s := newTestSession(t, nil, nil)

	res, err := s.Answer(context.Background(), 0, "A")
	if err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if !res.Correct {
		t.Fatalf("expected A to be correct")
	}

	_, err = s.Answer(context.Background(), 0, "B")
	if !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}

	st := s.States()[0]
	if st.SelectedAnswer == nil || *st.SelectedAnswer != "A" {
		t.Fatalf("first answer overwritten: %+v", st)
	}
	if st.IsCorrect == nil || !*st.IsCorrect {
		t.Fatalf("isCorrect corrupted: %+v", st)
	}
}

func TestAnswerRejectsUnknownOption(t *testing.T) {
	s := newTestSession(t, nil, nil)
	_, err := s.Answer(context.Background(), 0, "Z")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if s.States()[0].SelectedAnswer != nil {
		t.Fatalf("rejected answer must not commit state")
	}
}

func TestFlagOverridesScoring(t *testing.T) {
	flags := &fakeFlags{}
	s := newTestSession(t, nil, flags)

	if _, err := s.Answer(context.Background(), 0, "B"); err != nil { // wrong
		t.Fatalf("answer: %v", err)
	}
	if _, err := s.Flag(context.Background(), 0, "answer key is wrong"); err != nil {
		t.Fatalf("flag: %v", err)
	}
	if _, err := s.Answer(context.Background(), 1, "A"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	if got := s.Score(); got != 2 {
		t.Fatalf("expected flagged miss to count, score=%d", got)
	}

	res, err := s.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if res.Score != 2 {
		t.Fatalf("finish score=%d, want 2", res.Score)
	}
	if len(res.Incorrect) != 0 {
		t.Fatalf("flagged miss reported as mistake: %+v", res.Incorrect)
	}
}

func TestFlaggedCountsAsAnswered(t *testing.T) {
	flags := &fakeFlags{}
	s := newTestSession(t, nil, flags)

	if _, err := s.Flag(context.Background(), 0, "ambiguous wording"); err != nil {
		t.Fatalf("flag: %v", err)
	}
	if s.IsComplete() {
		t.Fatalf("session complete with question 1 untouched")
	}
	if _, err := s.Answer(context.Background(), 1, "B"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !s.IsComplete() {
		t.Fatalf("flagged question must count as answered")
	}

	res, err := s.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if res.Score != 1 {
		t.Fatalf("score=%d, want 1 (flag only)", res.Score)
	}
	if len(res.Incorrect) != 1 || res.Incorrect[0].Position != 1 {
		t.Fatalf("expected question 1 as the only mistake, got %+v", res.Incorrect)
	}
}

func TestFlagRequiresReason(t *testing.T) {
	s := newTestSession(t, nil, &fakeFlags{})
	_, err := s.Flag(context.Background(), 0, "")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFlagFailureLeavesStateUntouched(t *testing.T) {
	flags := &fakeFlags{err: errors.New("registry down")}
	s := newTestSession(t, nil, flags)

	if _, err := s.Flag(context.Background(), 0, "broken"); err == nil {
		t.Fatalf("expected error from registry")
	}
	if s.States()[0].Flagged {
		t.Fatalf("failed report must not mark the question flagged")
	}
}

func TestFinishRequiresCompletion(t *testing.T) {
	s := newTestSession(t, nil, nil)
	if _, err := s.Finish(); !errors.Is(err, domain.ErrSessionIncomplete) {
		t.Fatalf("expected ErrSessionIncomplete, got %v", err)
	}
}

func TestAnswerMarksProgress(t *testing.T) {
	progress := newFakeProgress()
	s := newTestSession(t, progress, nil)

	if _, err := s.Answer(context.Background(), 1, "A"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	got := progress.answered["quiz-1/u1"]
	if _, ok := got[11]; !ok {
		t.Fatalf("expected original index 11 marked, got %v", got)
	}
}

func TestProgressFailureDoesNotUndoAnswer(t *testing.T) {
	progress := newFakeProgress()
	progress.err = errors.New("store down")
	s := newTestSession(t, progress, nil)

	res, err := s.Answer(context.Background(), 0, "A")
	if err != nil || !res.Correct {
		t.Fatalf("answer should succeed despite progress failure: %v", err)
	}
	if s.States()[0].SelectedAnswer == nil {
		t.Fatalf("answer lost after progress failure")
	}
}

func TestAdvanceFiresAfterCommit(t *testing.T) {
	advanced := make(chan int, 1)
	var s *Session
	s = New(Config{
		ID:           "s1",
		QuizID:       "quiz-1",
		UserID:       "u1",
		Mode:         selector.ModeSequential,
		Questions:    twoQuestions(),
		AdvanceDelay: 5 * time.Millisecond,
		OnAdvance: func(next int) {
			// By the time the delayed advance fires, the answer is committed.
			if s.States()[0].SelectedAnswer == nil {
				advanced <- -1
				return
			}
			advanced <- next
		},
	})

	if _, err := s.Answer(context.Background(), 0, "A"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	select {
	case next := <-advanced:
		if next != 1 {
			t.Fatalf("advance saw uncommitted state or wrong position: %d", next)
		}
	case <-time.After(time.Second):
		t.Fatalf("advance callback never fired")
	}
}

func TestApplyFlagsClearsDeletedFlag(t *testing.T) {
	flags := &fakeFlags{}
	s := newTestSession(t, nil, flags)

	if _, err := s.Flag(context.Background(), 0, "dup"); err != nil {
		t.Fatalf("flag: %v", err)
	}
	if _, err := s.Answer(context.Background(), 1, "A"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if got := s.Score(); got != 2 {
		t.Fatalf("score=%d, want 2", got)
	}

	// Moderator deleted the flag; a re-read drops the override.
	s.ApplyFlags(nil)
	if got := s.Score(); got != 1 {
		t.Fatalf("score=%d after flag removal, want 1", got)
	}
	if s.IsComplete() {
		t.Fatalf("question 0 no longer answered once its flag is gone")
	}
}

func TestSubmissionGuardIsAtomic(t *testing.T) {
	s := newTestSession(t, nil, nil)

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryMarkSubmitted() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}

	s.ClearSubmitted()
	if !s.TryMarkSubmitted() {
		t.Fatalf("guard must re-arm after a failed write")
	}
}

type fakeFlags struct {
	mu      sync.Mutex
	err     error
	byID    map[string]*domain.Flag
	reports int
}

func (f *fakeFlags) Report(_ context.Context, quizID, text, reason, creator string) (domain.Flag, error) {
	if f.err != nil {
		return domain.Flag{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byID == nil {
		f.byID = make(map[string]*domain.Flag)
	}
	f.reports++
	id := quizID + "|" + text
	if existing, ok := f.byID[id]; ok {
		existing.Upvotes++
		return *existing, nil
	}
	flag := &domain.Flag{ID: id, QuizID: quizID, QuestionText: text, Reason: reason, CreatorID: creator}
	f.byID[id] = flag
	return *flag, nil
}

func (f *fakeFlags) Upvote(_ context.Context, flagID string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	flag, ok := f.byID[flagID]
	if !ok {
		return 0, domain.ErrFlagNotFound
	}
	flag.Upvotes++
	return flag.Upvotes, nil
}

type fakeProgress struct {
	mu       sync.Mutex
	err      error
	answered map[string]map[int]struct{}
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{answered: make(map[string]map[int]struct{})}
}

func (p *fakeProgress) Answered(_ context.Context, quizID, userID string) (map[int]struct{}, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[int]struct{})
	for k := range p.answered[quizID+"/"+userID] {
		out[k] = struct{}{}
	}
	return out, nil
}

func (p *fakeProgress) MarkAnswered(_ context.Context, quizID, userID string, idx int) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := quizID + "/" + userID
	if p.answered[key] == nil {
		p.answered[key] = make(map[int]struct{})
	}
	p.answered[key][idx] = struct{}{}
	return nil
}

func newTestSession(t *testing.T, progress ProgressStore, flags FlagService) *Session {
	t.Helper()
	return New(Config{
		ID:        "s1",
		QuizID:    "quiz-1",
		UserID:    "u1",
		Mode:      selector.ModeSequential,
		Questions: twoQuestions(),
		Progress:  progress,
		Flags:     flags,
	})
}

func twoQuestions() []domain.Question {
	ten, eleven := 10, 11
	return []domain.Question{
		{Text: "first", Answers: []string{"A", "B"}, CorrectAnswer: "A", OriginalIndex: &ten},
		{Text: "second", Answers: []string{"A", "B"}, CorrectAnswer: "A", OriginalIndex: &eleven},
	}
}
