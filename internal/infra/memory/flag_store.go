package memory

import (
	"context"
	"sort"
	"sync"

	"quizdeck/internal/domain"
)

// FlagStore is an in-process flags.Store. The mutex makes Upvote a real
// atomic increment; callers never see a torn count.
type FlagStore struct {
	mu    sync.Mutex
	flags map[string]*domain.Flag
}

func NewFlagStore() *FlagStore {
	return &FlagStore{flags: make(map[string]*domain.Flag)}
}

func (s *FlagStore) Create(_ context.Context, flag domain.Flag) (domain.Flag, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.flags[flag.ID]; ok {
		return *existing, false, nil
	}
	stored := flag
	s.flags[flag.ID] = &stored
	return stored, true, nil
}

func (s *FlagStore) Get(_ context.Context, id string) (domain.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flag, ok := s.flags[id]
	if !ok {
		return domain.Flag{}, domain.ErrFlagNotFound
	}
	return *flag, nil
}

func (s *FlagStore) Upvote(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flag, ok := s.flags[id]
	if !ok {
		return 0, domain.ErrFlagNotFound
	}
	flag.Upvotes++
	return flag.Upvotes, nil
}

func (s *FlagStore) UpdateReason(_ context.Context, id, reason string) (domain.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flag, ok := s.flags[id]
	if !ok {
		return domain.Flag{}, domain.ErrFlagNotFound
	}
	flag.Reason = reason
	return *flag, nil
}

func (s *FlagStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flags[id]; !ok {
		return domain.ErrFlagNotFound
	}
	delete(s.flags, id)
	return nil
}

func (s *FlagStore) ListByQuiz(_ context.Context, quizID string) ([]domain.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Flag
	for _, flag := range s.flags {
		if flag.QuizID == quizID {
			out = append(out, *flag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
