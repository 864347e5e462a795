package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/redis/go-redis/v9"
)

const suggestionKeyPrefix = "redactor:suggestions:" // redactor:suggestions:{content_hash}:{ocr}

// SuggestionCache keeps unfiltered suggestion lists per document content in Redis.
type SuggestionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSuggestionCache(client *redis.Client, ttl time.Duration) *SuggestionCache {
	return &SuggestionCache{client: client, ttl: ttl}
}

// Get returns the cached list and whether it was present.
func (c *SuggestionCache) Get(ctx context.Context, contentHash string, ocr bool) ([]domain.Suggestion, bool, error) {
	data, err := c.client.Get(ctx, c.key(contentHash, ocr)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached suggestions: %w", err)
	}

	var out []domain.Suggestion
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached suggestions: %w", err)
	}
	return out, true, nil
}

func (c *SuggestionCache) Set(ctx context.Context, contentHash string, ocr bool, suggestions []domain.Suggestion) error {
	data, err := json.Marshal(suggestions)
	if err != nil {
		return fmt.Errorf("failed to marshal suggestions: %w", err)
	}
	if err := c.client.Set(ctx, c.key(contentHash, ocr), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache suggestions: %w", err)
	}
	return nil
}

func (c *SuggestionCache) key(contentHash string, ocr bool) string {
	return fmt.Sprintf("%s%s:%t", suggestionKeyPrefix, contentHash, ocr)
}
