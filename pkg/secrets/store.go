// Package secrets keeps the device bearer token outside the relational store.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/redis"
)

// TokenKey names the device bearer token.
const TokenKey = "device_token"

// ErrNotFound is returned when the requested secret is absent.
var ErrNotFound = errors.New("secret not found")

// Store is an opaque secret map.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Open builds the configured backend wrapped in a same-process fallback.
// A redis backend reuses kv when non-nil.
func Open(ctx context.Context, cfg config.SecretsConfig, kv redis.KV, logg *logger.Logger) (Store, error) {
	var primary Store
	switch strings.ToLower(cfg.Backend) {
	case config.SecretsBackendMemory:
		return NewMemory(), nil
	case config.SecretsBackendRedis:
		if kv == nil {
			return nil, fmt.Errorf("redis secrets backend requires a redis client")
		}
		primary = NewRedis(kv, cfg.MachineID)
	case config.SecretsBackendFile, "":
		file, err := NewFile(cfg.FilePath, cfg.Passphrase, cfg.MachineID)
		if err != nil {
			return nil, err
		}
		primary = file
	default:
		return nil, fmt.Errorf("unknown secrets backend %q", cfg.Backend)
	}
	logg.Debug(logg.WithField(ctx, "backend", cfg.Backend), "secret store opened")
	return WithFallback(primary, logg), nil
}
