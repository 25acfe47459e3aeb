package flags

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"

	"quizdeck/internal/auth"
	"quizdeck/internal/domain"
)

// Store persists flags. Upvote must be a true atomic increment in every
// implementation; a read-then-write loses updates under concurrent callers.
type Store interface {
	// Create inserts the flag unless one with the same id exists; the bool
	// reports whether an insert happened.
	Create(ctx context.Context, flag domain.Flag) (domain.Flag, bool, error)
	Get(ctx context.Context, id string) (domain.Flag, error)
	Upvote(ctx context.Context, id string) (int, error)
	UpdateReason(ctx context.Context, id, reason string) (domain.Flag, error)
	Delete(ctx context.Context, id string) error
	ListByQuiz(ctx context.Context, quizID string) ([]domain.Flag, error)
}

// Moderator is the admin-only capability over flags. Anyone may report and
// upvote; only a Moderator may curate.
type Moderator interface {
	UpdateReason(ctx context.Context, id, reason string) (domain.Flag, error)
	Delete(ctx context.Context, id string) error
}

// Registry is the open (self-report) tier of the flag subsystem. Flags are
// keyed by a stable hash of (quiz id, question text): two distinct questions
// with identical wording share one flag. That keying is kept for
// compatibility with the data this service inherited; see DESIGN.md.
type Registry struct {
	store   Store
	checker auth.Checker
}

func NewRegistry(store Store, checker auth.Checker) *Registry {
	return &Registry{store: store, checker: checker}
}

// Key derives the stable flag id for a quiz id and question text.
func Key(quizID, questionText string) string {
	sum := sha1.Sum([]byte(quizID + "\x00" + questionText))
	return hex.EncodeToString(sum[:])[:16]
}

// Report creates a flag, or upvotes the existing one when the same question
// text was already reported for this quiz. De-duplication is an invariant,
// not an optimization: one text, one flag.
func (r *Registry) Report(ctx context.Context, quizID, questionText, reason, creatorID string) (domain.Flag, error) {
	if strings.TrimSpace(quizID) == "" {
		return domain.Flag{}, domain.Validationf("quizId", "quiz id is required")
	}
	if strings.TrimSpace(reason) == "" {
		return domain.Flag{}, domain.Validationf("reason", "flag reason must not be empty")
	}

	id := Key(quizID, questionText)
	flag := domain.Flag{
		ID:           id,
		QuizID:       quizID,
		QuestionText: questionText,
		Reason:       reason,
		CreatorID:    creatorID,
	}
	created, wasNew, err := r.store.Create(ctx, flag)
	if err != nil {
		return domain.Flag{}, err
	}
	if wasNew {
		return created, nil
	}
	// A second report against the same text endorses the first.
	if _, err := r.store.Upvote(ctx, id); err != nil && !errors.Is(err, domain.ErrFlagNotFound) {
		return domain.Flag{}, err
	}
	return r.store.Get(ctx, id)
}

// Upvote atomically increments a flag's counter and returns the new count.
// No privilege required.
func (r *Registry) Upvote(ctx context.Context, flagID string) (int, error) {
	return r.store.Upvote(ctx, flagID)
}

// Get fetches a single flag.
func (r *Registry) Get(ctx context.Context, flagID string) (domain.Flag, error) {
	return r.store.Get(ctx, flagID)
}

// ListByQuiz returns every flag for a quiz; sessions use this to refresh
// their scoring overrides.
func (r *Registry) ListByQuiz(ctx context.Context, quizID string) ([]domain.Flag, error) {
	return r.store.ListByQuiz(ctx, quizID)
}

// Moderator hands out the curation capability, or ErrForbidden when the
// caller is not an admin per the configured oracle.
func (r *Registry) Moderator(userID string) (Moderator, error) {
	if r.checker == nil || !r.checker.IsAdmin(userID) {
		return nil, domain.ErrForbidden
	}
	return &moderator{store: r.store}, nil
}

type moderator struct {
	store Store
}

func (m *moderator) UpdateReason(ctx context.Context, id, reason string) (domain.Flag, error) {
	if strings.TrimSpace(reason) == "" {
		return domain.Flag{}, domain.Validationf("reason", "flag reason must not be empty")
	}
	return m.store.UpdateReason(ctx, id, reason)
}

func (m *moderator) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}
