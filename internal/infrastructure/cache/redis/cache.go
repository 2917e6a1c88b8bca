package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulmonics/lung-sound-api/internal/core/domain"
)

// RecordCache keeps settled prediction records in Redis so pollers that keep
// re-reading a finished verdict stop hitting Postgres. In-flight records are
// never stored: their status still changes.
type RecordCache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(url string, ttl time.Duration) (*RecordCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RecordCache{client: client, ttl: ttl}, nil
}

func (c *RecordCache) Close() error {
	return c.client.Close()
}

// Get returns (nil, nil) on a cache miss.
func (c *RecordCache) Get(ctx context.Context, id string) (*domain.Prediction, error) {
	raw, err := c.client.Get(ctx, recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec domain.Prediction
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal cached prediction: %w", err)
	}
	return &rec, nil
}

func (c *RecordCache) Set(ctx context.Context, rec *domain.Prediction) error {
	if rec == nil || !rec.Terminal() {
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}
	if err := c.client.Set(ctx, recordKey(rec.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func recordKey(id string) string {
	return "prediction:" + id
}
