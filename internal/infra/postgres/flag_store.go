package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizdeck/internal/domain"
)

// FlagStore persists flags in Postgres. The upvote counter is incremented
// inside the UPDATE statement, never read-modify-written from the client, so
// concurrent upvotes cannot lose updates.
type FlagStore struct {
	pool *pgxpool.Pool
}

func NewFlagStore(pool *pgxpool.Pool) *FlagStore {
	return &FlagStore{pool: pool}
}

func (s *FlagStore) Create(ctx context.Context, flag domain.Flag) (domain.Flag, bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO flags (id, quiz_id, question, reason, creator_id, upvotes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		flag.ID, flag.QuizID, flag.QuestionText, flag.Reason, flag.CreatorID, flag.Upvotes,
	)
	if err != nil {
		return domain.Flag{}, false, fmt.Errorf("create flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := s.Get(ctx, flag.ID)
		return existing, false, err
	}
	return flag, true, nil
}

func (s *FlagStore) Get(ctx context.Context, id string) (domain.Flag, error) {
	var flag domain.Flag
	err := s.pool.QueryRow(ctx,
		`SELECT id, quiz_id, question, reason, creator_id, upvotes FROM flags WHERE id = $1`, id,
	).Scan(&flag.ID, &flag.QuizID, &flag.QuestionText, &flag.Reason, &flag.CreatorID, &flag.Upvotes)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Flag{}, domain.ErrFlagNotFound
	}
	if err != nil {
		return domain.Flag{}, fmt.Errorf("get flag: %w", err)
	}
	return flag, nil
}

func (s *FlagStore) Upvote(ctx context.Context, id string) (int, error) {
	var upvotes int
	err := s.pool.QueryRow(ctx,
		`UPDATE flags SET upvotes = upvotes + 1 WHERE id = $1 RETURNING upvotes`, id,
	).Scan(&upvotes)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrFlagNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("upvote flag: %w", err)
	}
	return upvotes, nil
}

func (s *FlagStore) UpdateReason(ctx context.Context, id, reason string) (domain.Flag, error) {
	var flag domain.Flag
	err := s.pool.QueryRow(ctx,
		`UPDATE flags SET reason = $2 WHERE id = $1
		 RETURNING id, quiz_id, question, reason, creator_id, upvotes`,
		id, reason,
	).Scan(&flag.ID, &flag.QuizID, &flag.QuestionText, &flag.Reason, &flag.CreatorID, &flag.Upvotes)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Flag{}, domain.ErrFlagNotFound
	}
	if err != nil {
		return domain.Flag{}, fmt.Errorf("update flag: %w", err)
	}
	return flag, nil
}

func (s *FlagStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM flags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFlagNotFound
	}
	return nil
}

func (s *FlagStore) ListByQuiz(ctx context.Context, quizID string) ([]domain.Flag, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quiz_id, question, reason, creator_id, upvotes FROM flags WHERE quiz_id = $1 ORDER BY id`,
		quizID,
	)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	defer rows.Close()

	var out []domain.Flag
	for rows.Next() {
		var flag domain.Flag
		if err := rows.Scan(&flag.ID, &flag.QuizID, &flag.QuestionText, &flag.Reason, &flag.CreatorID, &flag.Upvotes); err != nil {
			return nil, fmt.Errorf("scan flag: %w", err)
		}
		out = append(out, flag)
	}
	return out, rows.Err()
}
