package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"quizdeck/internal/domain"
)

const (
	// MaxPageSize caps a single leaderboard page.
	MaxPageSize = 50
	// DefaultPageSize applies when the caller passes no limit.
	DefaultPageSize = 10
	// MinAutoSubmitDuration gates automatic submission: sessions finishing
	// faster are assumed farmed and are left to manual submission.
	MinAutoSubmitDuration = 5 * time.Minute
)

// ScoreLog is the append-only store behind the leaderboard. Entries are
// written once; Clear is the sole administrative delete.
type ScoreLog interface {
	Append(ctx context.Context, entry domain.LeaderboardEntry) (domain.LeaderboardEntry, error)
	List(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error)
	Clear(ctx context.Context, quizID string) error
}

// Page is one leaderboard page; Total is the pre-pagination entry count.
type Page struct {
	Total int                       `json:"total"`
	Items []domain.LeaderboardEntry `json:"items"`
}

// Service validates submissions and ranks the log. The ordering policy is
// applied here, in code, so every storage backend yields the same contract:
// score descending, then duration ascending, then submission time ascending.
type Service struct {
	log ScoreLog
	now func() time.Time
}

func NewService(log ScoreLog) *Service {
	return &Service{log: log, now: time.Now}
}

// NewServiceWithClock is test-only for deterministic timestamps.
func NewServiceWithClock(log ScoreLog, now func() time.Time) *Service {
	return &Service{log: log, now: now}
}

// Submit appends one entry to the score log.
func (s *Service) Submit(ctx context.Context, quizID, name string, score int, durationMS int64) (domain.LeaderboardEntry, error) {
	if strings.TrimSpace(quizID) == "" {
		return domain.LeaderboardEntry{}, domain.Validationf("quizId", "quiz id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.LeaderboardEntry{}, domain.Validationf("name", "name must not be empty")
	}
	if len(name) > domain.MaxNameLength {
		return domain.LeaderboardEntry{}, domain.Validationf("name", "name exceeds %d characters", domain.MaxNameLength)
	}
	if score < 0 {
		return domain.LeaderboardEntry{}, domain.Validationf("score", "score must not be negative")
	}
	if durationMS < 0 {
		return domain.LeaderboardEntry{}, domain.Validationf("duration", "duration must not be negative")
	}

	entry, err := s.log.Append(ctx, domain.LeaderboardEntry{
		QuizID:     quizID,
		Name:       name,
		Score:      score,
		DurationMS: durationMS,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("append score: %w", err)
	}
	return entry, nil
}

// Rank returns one page of the ordered leaderboard. quizID "global" ranks
// across all quizzes. Pagination is 1-indexed; limit clamps to [1, 50].
func (s *Service) Rank(ctx context.Context, quizID string, limit, page int) (Page, error) {
	if quizID == "" {
		quizID = domain.GlobalQuizID
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if page < 1 {
		page = 1
	}

	entries, err := s.log.List(ctx, quizID)
	if err != nil {
		return Page{}, fmt.Errorf("list scores: %w", err)
	}
	sortEntries(entries)

	total := len(entries)
	start := (page - 1) * limit
	if start >= total {
		return Page{Total: total, Items: []domain.LeaderboardEntry{}}, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return Page{Total: total, Items: entries[start:end]}, nil
}

// PersonalBest returns the single best entry for a name, case-insensitively,
// or nil when the name has no entries.
func (s *Service) PersonalBest(ctx context.Context, quizID, name string) (*domain.LeaderboardEntry, error) {
	if quizID == "" {
		quizID = domain.GlobalQuizID
	}
	entries, err := s.log.List(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}

	var best *domain.LeaderboardEntry
	for i := range entries {
		if !strings.EqualFold(entries[i].Name, name) {
			continue
		}
		if best == nil || ranksBefore(entries[i], *best) {
			e := entries[i]
			best = &e
		}
	}
	return best, nil
}

// Clear is the administrative bulk delete for a quiz's entries.
func (s *Service) Clear(ctx context.Context, quizID string) error {
	if quizID == "" {
		quizID = domain.GlobalQuizID
	}
	return s.log.Clear(ctx, quizID)
}

func sortEntries(entries []domain.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return ranksBefore(entries[i], entries[j])
	})
}

// ranksBefore implements the canonical ordering: higher score first, faster
// duration breaks ties, earlier submission breaks what remains.
func ranksBefore(a, b domain.LeaderboardEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.DurationMS != b.DurationMS {
		return a.DurationMS < b.DurationMS
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
