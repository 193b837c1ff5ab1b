// Package settings serves runtime-tunable values: key/value rows from
// app_config and the active late-fee policy. Reads go through a Cache so
// operators can change a value in the database and have it picked up within
// one TTL, without a redeploy.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/repository"
)

const (
	feeConfigKey = "fee_config:active"
	noFeeConfig  = "none"
)

type Store struct {
	fees  repository.FeeConfigRepository
	app   repository.AppConfigRepository
	cache Cache
	ttl   time.Duration
}

func NewStore(fees repository.FeeConfigRepository, app repository.AppConfigRepository, cache Cache, ttl time.Duration) *Store {
	return &Store{fees: fees, app: app, cache: cache, ttl: ttl}
}

// GetActiveFeeConfig returns the active fee policy, or nil when none is
// active. A nil result with a nil error is the degraded-mode signal.
func (s *Store) GetActiveFeeConfig(ctx context.Context) (*domain.FeeConfiguration, error) {
	if raw, ok := s.cached(ctx, feeConfigKey); ok {
		if raw == noFeeConfig {
			return nil, nil
		}
		var cfg domain.FeeConfiguration
		if err := json.Unmarshal([]byte(raw), &cfg); err == nil {
			return &cfg, nil
		}
		logger.Warn("Discarding undecodable cached fee configuration")
	}

	cfg, err := s.fees.GetActive(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		s.store(ctx, feeConfigKey, noFeeConfig)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(cfg); err == nil {
		s.store(ctx, feeConfigKey, string(raw))
	}
	return cfg, nil
}

// GetInt returns the integer stored under key, or def when the key is
// missing, unparsable or the store is unreachable.
func (s *Store) GetInt(ctx context.Context, key string, def int) int {
	raw, ok := s.cached(ctx, key)
	if !ok {
		v, err := s.app.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				logger.Warn("Config lookup failed, using default", "key", key, "default", def, "error", err)
			}
			return def
		}
		raw = v
		s.store(ctx, key, raw)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("Config value is not an integer, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return n
}

func (s *Store) cached(ctx context.Context, key string) (string, bool) {
	if s.cache == nil || s.ttl <= 0 {
		return "", false
	}
	v, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("Settings cache read failed", "key", key, "error", err)
		return "", false
	}
	return v, ok
}

func (s *Store) store(ctx context.Context, key, value string) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		logger.Warn("Settings cache write failed", "key", key, "error", err)
	}
}
