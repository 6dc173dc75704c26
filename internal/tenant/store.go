package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrVersionConflict is returned when a save carries a stale version.
var ErrVersionConflict = errors.New("tenant: config version conflict")

// ConfigStore persists tenant policy in Redis.
type ConfigStore struct {
	redis *redis.Client
}

func NewConfigStore(client *redis.Client) *ConfigStore {
	if client == nil {
		panic("tenant: redis client required")
	}
	return &ConfigStore{redis: client}
}

func (s *ConfigStore) key(tenantID string) string {
	return fmt.Sprintf("tenant:config:%s", tenantID)
}

// Get returns the saved policy, or the defaults when none exists.
func (s *ConfigStore) Get(ctx context.Context, tenantID string) (*Config, error) {
	data, err := s.redis.Get(ctx, s.key(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DefaultConfig(tenantID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("tenant: get config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("tenant: unmarshal config: %w", err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Set validates and stores cfg. When cfg.Version is non-zero it must match the
// stored version. The stored version is bumped on success.
func (s *ConfigStore) Set(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		return errors.New("tenant: config required")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	key := s.key(cfg.TenantID)
	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		current := 0
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("tenant: read config: %w", err)
		default:
			var existing Config
			if err := json.Unmarshal(data, &existing); err == nil {
				current = existing.Version
			}
		}
		if cfg.Version != 0 && cfg.Version != current {
			return ErrVersionConflict
		}
		next := *cfg
		next.Version = current + 1
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("tenant: marshal config: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		cfg.Version = next.Version
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	if err != nil && !errors.Is(err, ErrVersionConflict) {
		return fmt.Errorf("tenant: set config: %w", err)
	}
	return err
}
