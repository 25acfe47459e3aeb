package selector

import (
	"math/rand"
	"time"

	"quizdeck/internal/domain"
)

// Mode picks the question-selection strategy for a session.
type Mode string

const (
	// ModeQuick shuffles the pool and takes the first Count questions.
	ModeQuick Mode = "quick"
	// ModeSequential walks the pool in order from a 1-based start index.
	ModeSequential Mode = "sequential"
	// ModePractice shuffles only questions not in the answered set.
	ModePractice Mode = "practice"
	// ModeStudy returns the full pool for review; it never enters scoring.
	ModeStudy Mode = "study"
)

// Params carries mode-specific inputs. Count is used by quick, StartIndex
// (1-based) by sequential.
type Params struct {
	Count      int
	StartIndex int
}

// Selector produces the ordered question list for a session. It is
// deterministic given a fixed seed.
type Selector struct {
	rnd *rand.Rand
}

// New returns a Selector seeded from the clock.
func New() *Selector {
	return NewWithSeed(time.Now().UnixNano())
}

// NewWithSeed is test-friendly: a fixed seed gives a fixed ordering.
func NewWithSeed(seed int64) *Selector {
	return &Selector{rnd: rand.New(rand.NewSource(seed))}
}

// Select returns the session's question list. answered holds original indices
// of previously answered questions and is consulted only by practice mode.
func (s *Selector) Select(pool []domain.Question, mode Mode, params Params, answered map[int]struct{}) ([]domain.Question, error) {
	if len(pool) == 0 {
		return nil, domain.ErrQuizNotFound
	}

	switch mode {
	case ModeQuick:
		return s.quick(pool, params.Count), nil
	case ModeSequential:
		return sequential(pool, params.StartIndex), nil
	case ModePractice:
		return s.practice(pool, answered)
	case ModeStudy:
		return tagged(pool, 0), nil
	default:
		return nil, domain.Validationf("mode", "unknown selection mode %q", mode)
	}
}

func (s *Selector) quick(pool []domain.Question, count int) []domain.Question {
	if count < 1 {
		count = 1
	}
	if count > len(pool) {
		count = len(pool)
	}
	shuffled := make([]domain.Question, len(pool))
	copy(shuffled, pool)
	s.shuffle(shuffled)
	// Quick mode numbers questions by session position, so no index tag.
	out := shuffled[:count]
	for i := range out {
		out[i].OriginalIndex = nil
	}
	return out
}

func sequential(pool []domain.Question, startIndex int) []domain.Question {
	if startIndex < 1 {
		startIndex = 1
	}
	if startIndex > len(pool) {
		startIndex = len(pool)
	}
	return tagged(pool[startIndex-1:], startIndex-1)
}

func (s *Selector) practice(pool []domain.Question, answered map[int]struct{}) ([]domain.Question, error) {
	unanswered := make([]domain.Question, 0, len(pool))
	for i, q := range pool {
		idx := i
		if q.OriginalIndex != nil {
			idx = *q.OriginalIndex
		}
		if _, done := answered[idx]; done {
			continue
		}
		q.OriginalIndex = intPtr(idx)
		unanswered = append(unanswered, q)
	}
	if len(unanswered) == 0 {
		return nil, domain.ErrPracticeExhausted
	}
	s.shuffle(unanswered)
	return unanswered, nil
}

func tagged(pool []domain.Question, offset int) []domain.Question {
	out := make([]domain.Question, len(pool))
	copy(out, pool)
	for i := range out {
		out[i].OriginalIndex = intPtr(offset + i)
	}
	return out
}

// shuffle is the canonical Fisher–Yates walk: last index down to the first,
// swapping with a uniformly chosen earlier-or-equal index. Comparator-based
// "random sorts" are biased and must not be reintroduced here.
func (s *Selector) shuffle(qs []domain.Question) {
	for i := len(qs) - 1; i > 0; i-- {
		j := s.rnd.Intn(i + 1)
		qs[i], qs[j] = qs[j], qs[i]
	}
}

func intPtr(v int) *int { return &v }
