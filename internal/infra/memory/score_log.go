package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"

	"quizdeck/internal/domain"
)

// ScoreLog is the in-process append-only leaderboard log. Entries get an id
// on append and are never mutated afterward.
type ScoreLog struct {
	mu      sync.Mutex
	entries []domain.LeaderboardEntry
}

func NewScoreLog() *ScoreLog {
	return &ScoreLog{}
}

func (l *ScoreLog) Append(_ context.Context, entry domain.LeaderboardEntry) (domain.LeaderboardEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.ID == "" {
		entry.ID = newEntryID()
	}
	l.entries = append(l.entries, entry)
	return entry, nil
}

// List returns entries for one quiz, or every entry for the global sentinel.
func (l *ScoreLog) List(_ context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.LeaderboardEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if quizID == domain.GlobalQuizID || e.QuizID == quizID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Clear drops a quiz's entries (or everything for the global sentinel).
// This is the single administrative delete path.
func (l *ScoreLog) Clear(_ context.Context, quizID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if quizID == domain.GlobalQuizID {
		l.entries = nil
		return nil
	}
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.QuizID != quizID {
			kept = append(kept, e)
		}
	}
	l.entries = kept
	return nil
}

func newEntryID() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
