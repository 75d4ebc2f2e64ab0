// Package pairing registers this device with a branch and tears the
// registration down again.
package pairing

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/packfinderz-pos/internal/actionlog"
	"github.com/angelmondragon/packfinderz-pos/internal/remote"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/meta"
	"github.com/angelmondragon/packfinderz-pos/pkg/secrets"
	"github.com/angelmondragon/packfinderz-pos/pkg/validate"
	"go.uber.org/multierr"
)

// RegisterPath is the unauthenticated registration endpoint under the base URL.
const RegisterPath = "/register"

type poster interface {
	Post(ctx context.Context, baseURL, path string, body, out any) error
}

type PairInput struct {
	BaseURL    string `json:"base_url" validate:"required,url"`
	Code       string `json:"code" validate:"required"`
	BranchID   string `json:"branch_id" validate:"required"`
	DeviceName string `json:"device_name" validate:"required,max=120"`
	MachineID  string `json:"machine_id" validate:"required"`
}

type registerRequest struct {
	Code      string `json:"code"`
	BranchID  string `json:"branch_id"`
	Name      string `json:"name"`
	MachineID string `json:"machine_id"`
}

type registeredDevice struct {
	ID         string `json:"id" validate:"required"`
	BranchID   string `json:"branch_id" validate:"required"`
	BranchName string `json:"branch_name"`
}

// RegisterResponse is the server reply; every validated field must be present.
type RegisterResponse struct {
	Device *registeredDevice `json:"device" validate:"required"`
	Token  string            `json:"token" validate:"required"`
}

type ServiceParams struct {
	Remote  poster
	Meta    meta.Store
	Secrets secrets.Store
	// SyncState is optional; when set, unpair also resets the catalog cursor.
	SyncState meta.Store
	Audit     actionlog.Recorder
	Logger    *logger.Logger
}

type Service struct {
	remote    poster
	meta      meta.Store
	secrets   secrets.Store
	syncState meta.Store
	audit     actionlog.Recorder
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Remote == nil {
		return nil, fmt.Errorf("remote client required")
	}
	if params.Meta == nil {
		return nil, fmt.Errorf("meta store required")
	}
	if params.Secrets == nil {
		return nil, fmt.Errorf("secret store required")
	}
	s := &Service{
		remote:    params.Remote,
		meta:      params.Meta,
		secrets:   params.Secrets,
		syncState: params.SyncState,
		audit:     params.Audit,
		logg:      params.Logger,
	}
	if s.audit == nil {
		s.audit = actionlog.Nop{}
	}
	return s, nil
}

// Pair registers the device. Nothing of a failed attempt is kept: the state
// returns to unpaired and no identity or token survives.
func (s *Service) Pair(ctx context.Context, input PairInput) (meta.Identity, error) {
	input.BaseURL = strings.TrimRight(strings.TrimSpace(input.BaseURL), "/")
	input.Code = strings.TrimSpace(input.Code)
	if err := validate.Struct(input); err != nil {
		return meta.Identity{}, err
	}

	current, err := meta.LoadIdentity(ctx, s.meta)
	if err != nil {
		return meta.Identity{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load identity")
	}
	if current.State == enums.PairingStatePaired {
		return meta.Identity{}, pkgerrors.New(pkgerrors.CodeConflict, "device already paired; unpair first")
	}

	if err := s.meta.Set(ctx, meta.KeyPairingState, string(enums.PairingStatePairing)); err != nil {
		return meta.Identity{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark pairing")
	}

	var resp RegisterResponse
	err = s.remote.Post(ctx, input.BaseURL, RegisterPath, registerRequest{
		Code:      input.Code,
		BranchID:  input.BranchID,
		Name:      input.DeviceName,
		MachineID: input.MachineID,
	}, &resp)
	if err != nil {
		s.abort(ctx)
		return meta.Identity{}, err
	}
	if verr := validate.Struct(resp); verr != nil {
		s.abort(ctx)
		return meta.Identity{}, pkgerrors.Wrap(pkgerrors.CodeProtocol, verr, "incomplete registration response")
	}

	identity := meta.Identity{
		DeviceID:   resp.Device.ID,
		BranchID:   resp.Device.BranchID,
		BaseURL:    input.BaseURL,
		DeviceName: input.DeviceName,
		State:      enums.PairingStatePaired,
	}
	if err := s.secrets.Set(ctx, secrets.TokenKey, resp.Token); err != nil {
		s.abort(ctx)
		return meta.Identity{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store device token")
	}
	if err := meta.SaveIdentity(ctx, s.meta, identity); err != nil {
		s.abort(ctx)
		return meta.Identity{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store device identity")
	}
	if resp.Device.BranchName != "" {
		if err := s.meta.Set(ctx, meta.KeyBranchName, resp.Device.BranchName); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "branch name not stored")
		}
	}

	ctx = s.logg.WithDeviceID(ctx, identity.DeviceID)
	s.logg.Info(s.logg.WithField(ctx, "branch_id", identity.BranchID), "device paired")
	s.audit.Record(ctx, actionlog.Entry{
		Action: actionlog.ActionDevicePaired,
		Metadata: map[string]any{
			"device_id": identity.DeviceID,
			"branch_id": identity.BranchID,
			"base_url":  identity.BaseURL,
		},
	})
	return identity, nil
}

// Unpair removes the token, the identity, the catalog cursor and any open session. Every step runs
// even after an earlier failure, and repeating the call is safe.
func (s *Service) Unpair(ctx context.Context) error {
	identity, loadErr := meta.LoadIdentity(ctx, s.meta)
	err := remote.ClearCredentials(ctx, s.meta, s.secrets, s.syncState)
	err = multierr.Append(err, s.meta.Set(ctx, meta.KeyPairingState, string(enums.PairingStateUnpaired)))
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "unpair finished with errors")
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unpair incomplete")
	}

	if loadErr == nil && identity.DeviceID != "" {
		ctx = s.logg.WithDeviceID(ctx, identity.DeviceID)
		s.logg.Info(ctx, "device unpaired")
		s.audit.Record(ctx, actionlog.Entry{
			Action:   actionlog.ActionDeviceUnpaired,
			Metadata: map[string]any{"device_id": identity.DeviceID},
		})
	}
	return nil
}

// Status returns the current identity without touching the network.
func (s *Service) Status(ctx context.Context) (meta.Identity, error) {
	return meta.LoadIdentity(ctx, s.meta)
}

// RevokedHook returns a callback for remote.WithRevokeHook that audits the revocation.
func RevokedHook(audit actionlog.Recorder) func(ctx context.Context, deviceID string) {
	return func(ctx context.Context, deviceID string) {
		if audit == nil {
			return
		}
		audit.Record(ctx, actionlog.Entry{
			Action:   actionlog.ActionDeviceRevoked,
			Metadata: map[string]any{"device_id": deviceID},
		})
	}
}

func (s *Service) abort(ctx context.Context) {
	err := remote.ClearCredentials(ctx, s.meta, s.secrets, s.syncState)
	err = multierr.Append(err, s.meta.Set(ctx, meta.KeyPairingState, string(enums.PairingStateUnpaired)))
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "rolling back failed pairing")
	}
}
