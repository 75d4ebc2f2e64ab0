package meta

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
)

// Identity is the paired device as recorded in the meta table. The bearer token
// is kept in the secret store, never here.
type Identity struct {
	DeviceID   string
	BranchID   string
	BaseURL    string
	DeviceName string
	State      enums.PairingState
}

// IdentityKeys lists every key written by pairing; unpair clears all of them.
var IdentityKeys = []string{
	KeyDeviceID,
	KeyBranchID,
	KeyBranchName,
	KeyBaseURL,
	KeyDeviceName,
	KeyPairingState,
	KeySessionUserID,
}

// PairingSyncKeys are the sync_state keys that place the device in one
// branch's change stream. They are dropped with the identity so the next
// pairing starts from a fresh bootstrap. last_push_at stays: it orders
// synced_at stamps across pairings.
var PairingSyncKeys = []string{
	KeyCatalogCursor,
	KeyLastBootstrapAt,
	KeyLastPullAt,
}

// NeedsBootstrap reports whether no snapshot was applied since the last pairing.
func NeedsBootstrap(ctx context.Context, syncState Store) (bool, error) {
	_, ok, err := syncState.Get(ctx, KeyLastBootstrapAt)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", KeyLastBootstrapAt, err)
	}
	return !ok, nil
}

// Complete reports whether the identity carries everything an authenticated call needs.
func (i Identity) Complete() bool {
	return i.DeviceID != "" && i.BaseURL != "" && i.State == enums.PairingStatePaired
}

// LoadIdentity reads the device identity; missing keys come back empty.
func LoadIdentity(ctx context.Context, store Store) (Identity, error) {
	var id Identity
	fields := []struct {
		key string
		dst *string
	}{
		{KeyDeviceID, &id.DeviceID},
		{KeyBranchID, &id.BranchID},
		{KeyBaseURL, &id.BaseURL},
		{KeyDeviceName, &id.DeviceName},
	}
	for _, f := range fields {
		v, _, err := store.Get(ctx, f.key)
		if err != nil {
			return Identity{}, fmt.Errorf("read %s: %w", f.key, err)
		}
		*f.dst = v
	}

	state, ok, err := store.Get(ctx, KeyPairingState)
	if err != nil {
		return Identity{}, fmt.Errorf("read %s: %w", KeyPairingState, err)
	}
	id.State = enums.PairingStateUnpaired
	if ok {
		if parsed, perr := enums.ParsePairingState(state); perr == nil {
			id.State = parsed
		}
	}
	return id, nil
}

// SaveIdentity writes every identity field.
func SaveIdentity(ctx context.Context, store Store, id Identity) error {
	values := map[string]string{
		KeyDeviceID:     id.DeviceID,
		KeyBranchID:     id.BranchID,
		KeyBaseURL:      strings.TrimRight(id.BaseURL, "/"),
		KeyDeviceName:   id.DeviceName,
		KeyPairingState: string(id.State),
	}
	for _, key := range []string{KeyDeviceID, KeyBranchID, KeyBaseURL, KeyDeviceName, KeyPairingState} {
		if err := store.Set(ctx, key, values[key]); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
	}
	return nil
}

// OperatingMode returns the configured mode, defaulting to online.
func OperatingMode(ctx context.Context, store Store) (enums.OperatingMode, error) {
	v, ok, err := store.Get(ctx, KeyOperatingMode)
	if err != nil {
		return "", err
	}
	if !ok {
		return enums.OperatingModeOnline, nil
	}
	mode, err := enums.ParseOperatingMode(v)
	if err != nil {
		return enums.OperatingModeOnline, nil
	}
	return mode, nil
}

func SetOperatingMode(ctx context.Context, store Store, mode enums.OperatingMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("invalid operating mode %q", mode)
	}
	return store.Set(ctx, KeyOperatingMode, string(mode))
}
