package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sbilibin2017/chime-auth/internal/logger"
	"github.com/sbilibin2017/chime-auth/internal/models"
)

// ProfileCacheRepository caches profiles in Redis. Profiles never change after
// registration, so entries only expire.
type ProfileCacheRepository struct {
	client *redis.Client
	exp    time.Duration // expiration duration for cached profiles
}

// NewProfileCacheRepository creates a new repository instance with the given TTL
func NewProfileCacheRepository(client *redis.Client, expiration time.Duration) *ProfileCacheRepository {
	return &ProfileCacheRepository{
		client: client,
		exp:    expiration,
	}
}

func profileKey(id int64) string {
	return fmt.Sprintf("profile:%d", id)
}

// Get returns the cached profile, or nil on a cache miss.
func (r *ProfileCacheRepository) Get(ctx context.Context, id int64) (*models.Profile, error) {
	key := profileKey(id)

	val, err := r.client.Get(ctx, key).Bytes()
	logger.Log.Infow(
		"key", key,
		"hit", err == nil,
		"error", err,
	)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var profile models.Profile
	if err := json.Unmarshal(val, &profile); err != nil {
		return nil, fmt.Errorf("decode cached profile %s: %w", key, err)
	}
	return &profile, nil
}

// Set caches profile with expiration
func (r *ProfileCacheRepository) Set(ctx context.Context, profile models.Profile) error {
	key := profileKey(profile.ID)

	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	err = r.client.Set(ctx, key, data, r.exp).Err()

	logger.Log.Infow(
		"key", key,
		"result", "set",
		"error", err,
	)

	return err
}
