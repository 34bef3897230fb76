package state

import (
	"context"
	"fmt"
	"time"

	"aliexpress/scraper/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RunStatus values published to the registry over a run's lifetime.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunRegistry records per-query run status so the dashboard collaborator can
// poll progress without touching the engine.
type RunRegistry interface {
	SetRunStatus(ctx context.Context, query, status string) error
	GetRunStatus(ctx context.Context, query string) (string, error)
}

type redisRunRegistry struct {
	redisClient *redis.Client
	keyPrefix   string
}

func NewRedisRunRegistry(redisClient *redis.Client) RunRegistry {
	return &redisRunRegistry{
		redisClient: redisClient,
		keyPrefix:   "aliexpress:run:status:",
	}
}

func (s *redisRunRegistry) SetRunStatus(ctx context.Context, query, status string) error {
	key := s.keyPrefix + domain.Slugify(query)
	value := fmt.Sprintf("%s@%s", status, time.Now().Format(time.RFC3339))
	err := s.redisClient.Set(ctx, key, value, 0).Err() // No expiration
	if err != nil {
		return fmt.Errorf("failed to set run status for query %q: %w", query, err)
	}
	return nil
}

func (s *redisRunRegistry) GetRunStatus(ctx context.Context, query string) (string, error) {
	key := s.keyPrefix + domain.Slugify(query)
	val, err := s.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil // No run recorded yet
		}
		return "", fmt.Errorf("failed to get run status for query %q: %w", query, err)
	}

	return val, nil
}
