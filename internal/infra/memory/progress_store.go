package memory

import (
	"context"
	"sync"
)

// ProgressStore keeps answered original-index sets per (quiz, user).
type ProgressStore struct {
	mu       sync.Mutex
	answered map[string]map[int]struct{}
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{answered: make(map[string]map[int]struct{})}
}

func (s *ProgressStore) Answered(_ context.Context, quizID, userID string) (map[int]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]struct{})
	for idx := range s.answered[progressKey(quizID, userID)] {
		out[idx] = struct{}{}
	}
	return out, nil
}

func (s *ProgressStore) MarkAnswered(_ context.Context, quizID, userID string, originalIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progressKey(quizID, userID)
	if s.answered[key] == nil {
		s.answered[key] = make(map[int]struct{})
	}
	s.answered[key][originalIndex] = struct{}{}
	return nil
}

func progressKey(quizID, userID string) string {
	return quizID + "\x00" + userID
}
