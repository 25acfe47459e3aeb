package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"quizdeck/internal/domain"
)

// FlagStore keeps each flag as a hash under flag:{id} with a per-quiz index
// set. Upvotes go through HIncrBy, which is the atomic increment the
// registry's contract demands; no client ever does read-then-write on the
// counter.
type FlagStore struct {
	client *redis.Client
}

func NewFlagStore(client *redis.Client) *FlagStore {
	return &FlagStore{client: client}
}

func (s *FlagStore) Create(ctx context.Context, flag domain.Flag) (domain.Flag, bool, error) {
	key := s.flagKey(flag.ID)

	// HSetNX on the question field decides who creates; the loser reads the
	// winner's record.
	created, err := s.client.HSetNX(ctx, key, "question", flag.QuestionText).Result()
	if err != nil {
		return domain.Flag{}, false, fmt.Errorf("create flag: %w", err)
	}
	if !created {
		existing, err := s.Get(ctx, flag.ID)
		return existing, false, err
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key,
		"quizId", flag.QuizID,
		"reason", flag.Reason,
		"creatorId", flag.CreatorID,
		"upvotes", flag.Upvotes,
	)
	pipe.SAdd(ctx, s.quizKey(flag.QuizID), flag.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Flag{}, false, fmt.Errorf("create flag: %w", err)
	}
	return flag, true, nil
}

func (s *FlagStore) Get(ctx context.Context, id string) (domain.Flag, error) {
	fields, err := s.client.HGetAll(ctx, s.flagKey(id)).Result()
	if err != nil {
		return domain.Flag{}, fmt.Errorf("get flag: %w", err)
	}
	if len(fields) == 0 {
		return domain.Flag{}, domain.ErrFlagNotFound
	}
	return flagFromFields(id, fields), nil
}

func (s *FlagStore) Upvote(ctx context.Context, id string) (int, error) {
	key := s.flagKey(id)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("upvote flag: %w", err)
	}
	if exists == 0 {
		return 0, domain.ErrFlagNotFound
	}
	count, err := s.client.HIncrBy(ctx, key, "upvotes", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("upvote flag: %w", err)
	}
	return int(count), nil
}

func (s *FlagStore) UpdateReason(ctx context.Context, id, reason string) (domain.Flag, error) {
	key := s.flagKey(id)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return domain.Flag{}, fmt.Errorf("update flag: %w", err)
	}
	if exists == 0 {
		return domain.Flag{}, domain.ErrFlagNotFound
	}
	if err := s.client.HSet(ctx, key, "reason", reason).Err(); err != nil {
		return domain.Flag{}, fmt.Errorf("update flag: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *FlagStore) Delete(ctx context.Context, id string) error {
	flag, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.flagKey(id))
	pipe.SRem(ctx, s.quizKey(flag.QuizID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete flag: %w", err)
	}
	return nil
}

func (s *FlagStore) ListByQuiz(ctx context.Context, quizID string) ([]domain.Flag, error) {
	ids, err := s.client.SMembers(ctx, s.quizKey(quizID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	out := make([]domain.Flag, 0, len(ids))
	for _, id := range ids {
		flag, err := s.Get(ctx, id)
		if err != nil {
			// Index entry may outlive a concurrently deleted flag.
			continue
		}
		out = append(out, flag)
	}
	return out, nil
}

func (s *FlagStore) flagKey(id string) string {
	return "flag:" + id
}

func (s *FlagStore) quizKey(quizID string) string {
	return "quiz:" + quizID + ":flags"
}

func flagFromFields(id string, fields map[string]string) domain.Flag {
	upvotes, _ := strconv.Atoi(fields["upvotes"])
	return domain.Flag{
		ID:           id,
		QuizID:       fields["quizId"],
		QuestionText: fields["question"],
		Reason:       fields["reason"],
		CreatorID:    fields["creatorId"],
		Upvotes:      upvotes,
	}
}
