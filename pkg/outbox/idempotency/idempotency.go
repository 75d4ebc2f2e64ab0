// Package idempotency remembers which push batches a device already delivered
// so a resent batch is acknowledged without being applied twice.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-pos/pkg/redis"
)

// pendingMarker holds a claimed batch until its result is stored.
const pendingMarker = "pending"

// Manager claims batch ids per device using SETNX with a TTL.
// Keys follow the `pos:idempotency:batch:<device_id>:<client_msg_id>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// Claim is the outcome of Begin.
type Claim struct {
	// Seen is true when an earlier delivery already claimed the batch.
	Seen bool
	// Result is the stored acknowledgement of that delivery. It is empty
	// while the earlier delivery is still being applied.
	Result string
}

// NewManager builds a guard that keeps batch claims for the given TTL.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{
		store: store,
		ttl:   ttl,
	}, nil
}

// Begin claims the batch for this delivery, or reports the earlier claim.
func (m *Manager) Begin(ctx context.Context, deviceID string, batchID uuid.UUID) (Claim, error) {
	key, err := m.batchKey(deviceID, batchID)
	if err != nil {
		return Claim{}, err
	}
	set, err := m.store.SetNX(ctx, key, pendingMarker, m.ttl)
	if err != nil {
		return Claim{}, err
	}
	if set {
		return Claim{}, nil
	}
	stored, err := m.store.Get(ctx, key)
	if err != nil && !errors.Is(err, redis.Nil) {
		return Claim{}, err
	}
	claim := Claim{Seen: true}
	if stored != pendingMarker {
		claim.Result = stored
	}
	return claim, nil
}

// Complete stores the acknowledgement returned for a claimed batch.
func (m *Manager) Complete(ctx context.Context, deviceID string, batchID uuid.UUID, result string) error {
	key, err := m.batchKey(deviceID, batchID)
	if err != nil {
		return err
	}
	if result == "" || result == pendingMarker {
		return fmt.Errorf("invalid batch result %q", result)
	}
	return m.store.Set(ctx, key, result, m.ttl)
}

// Release drops a claim so a batch that failed to apply can be sent again.
func (m *Manager) Release(ctx context.Context, deviceID string, batchID uuid.UUID) error {
	key, err := m.batchKey(deviceID, batchID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) batchKey(deviceID string, batchID uuid.UUID) (string, error) {
	if deviceID == "" {
		return "", errors.New("device id is required")
	}
	if batchID == uuid.Nil {
		return "", errors.New("batch id is required")
	}
	scope := fmt.Sprintf("batch:%s", deviceID)
	return m.store.IdempotencyKey(scope, batchID.String()), nil
}
