package secrets

import (
	"context"
	"errors"

	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

// fallback keeps a process-local copy of every secret so a failing primary
// backend never loses a token the device was just issued.
type fallback struct {
	primary Store
	local   *Memory
	logg    *logger.Logger
}

func WithFallback(primary Store, logg *logger.Logger) Store {
	return &fallback{primary: primary, local: NewMemory(), logg: logg}
}

func (f *fallback) Get(ctx context.Context, key string) (string, error) {
	v, err := f.primary.Get(ctx, key)
	if err == nil {
		return v, nil
	}
	if local, lerr := f.local.Get(ctx, key); lerr == nil {
		if !errors.Is(err, ErrNotFound) {
			f.logg.Warn(f.logg.WithField(ctx, "error", err.Error()), "secret store unavailable, using in-process copy")
		}
		return local, nil
	}
	return "", err
}

func (f *fallback) Set(ctx context.Context, key, value string) error {
	_ = f.local.Set(ctx, key, value)
	if err := f.primary.Set(ctx, key, value); err != nil {
		f.logg.Warn(f.logg.WithField(ctx, "error", err.Error()), "secret persisted in-process only")
	}
	return nil
}

func (f *fallback) Delete(ctx context.Context, key string) error {
	_ = f.local.Delete(ctx, key)
	return f.primary.Delete(ctx, key)
}
