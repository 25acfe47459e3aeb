package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// ProgressStore records answered original indices as Redis sets, one per
// (quiz, user). Sets carry no TTL: progress is exactly the state that must
// outlive sessions.
type ProgressStore struct {
	client *redis.Client
}

func NewProgressStore(client *redis.Client) *ProgressStore {
	return &ProgressStore{client: client}
}

func (s *ProgressStore) Answered(ctx context.Context, quizID, userID string) (map[int]struct{}, error) {
	members, err := s.client.SMembers(ctx, s.key(quizID, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	out := make(map[int]struct{}, len(members))
	for _, m := range members {
		idx, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		out[idx] = struct{}{}
	}
	return out, nil
}

func (s *ProgressStore) MarkAnswered(ctx context.Context, quizID, userID string, originalIndex int) error {
	if err := s.client.SAdd(ctx, s.key(quizID, userID), originalIndex).Err(); err != nil {
		return fmt.Errorf("mark answered: %w", err)
	}
	return nil
}

func (s *ProgressStore) key(quizID, userID string) string {
	return "quiz:" + quizID + ":answered:" + userID
}
