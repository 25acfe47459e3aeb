package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quizdeck/internal/domain"
)

// ScoreLog is the durable append-only leaderboard log. Rows are inserted
// once and only ever removed by the administrative Clear.
type ScoreLog struct {
	pool *pgxpool.Pool
}

func NewScoreLog(pool *pgxpool.Pool) *ScoreLog {
	return &ScoreLog{pool: pool}
}

func (l *ScoreLog) Append(ctx context.Context, entry domain.LeaderboardEntry) (domain.LeaderboardEntry, error) {
	if entry.ID == "" {
		entry.ID = newEntryID()
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO leaderboard_entries (id, quiz_id, name, score, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.QuizID, entry.Name, entry.Score, entry.DurationMS, entry.CreatedAt,
	)
	if err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("append score: %w", err)
	}
	return entry, nil
}

// List returns a quiz's entries (or all of them for the global sentinel),
// already in the canonical order. The ranking service re-applies the same
// policy, so storage and contract cannot drift apart.
func (l *ScoreLog) List(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, quiz_id, name, score, duration_ms, created_at
		 FROM leaderboard_entries
		 WHERE $1 = 'global' OR quiz_id = $1
		 ORDER BY score DESC, duration_ms ASC, created_at ASC`,
		quizID,
	)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.ID, &e.QuizID, &e.Name, &e.Score, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *ScoreLog) Clear(ctx context.Context, quizID string) error {
	var err error
	if quizID == domain.GlobalQuizID {
		_, err = l.pool.Exec(ctx, `DELETE FROM leaderboard_entries`)
	} else {
		_, err = l.pool.Exec(ctx, `DELETE FROM leaderboard_entries WHERE quiz_id = $1`, quizID)
	}
	if err != nil {
		return fmt.Errorf("clear scores: %w", err)
	}
	return nil
}

func newEntryID() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
