package devserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-pos/api/middleware"
	"github.com/angelmondragon/packfinderz-pos/api/responses"
	"github.com/angelmondragon/packfinderz-pos/internal/catalog"
	"github.com/angelmondragon/packfinderz-pos/internal/syncer"
	"github.com/angelmondragon/packfinderz-pos/pkg/auth"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/validate"
)

type registerRequest struct {
	Code      string `json:"code" validate:"required"`
	BranchID  string `json:"branch_id" validate:"required"`
	Name      string `json:"name" validate:"required,max=120"`
	MachineID string `json:"machine_id" validate:"required"`
}

type deviceBody struct {
	ID         string `json:"id"`
	BranchID   string `json:"branch_id"`
	BranchName string `json:"branch_name"`
}

type registerResponse struct {
	Device deviceBody `json:"device"`
	Token  string     `json:"token"`
}

type branchBody struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type bootstrapResponse struct {
	Branch  branchBody                 `json:"branch"`
	Catalog map[string]json.RawMessage `json:"catalog"`
	Cursor  string                     `json:"cursor"`
}

type pullRequest struct {
	Cursor string `json:"cursor"`
}

type publishRequest struct {
	Changes []catalog.Change `json:"changes" validate:"required,min=1"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	responses.WriteOK(w, map[string]string{"status": "ok"})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registerRequest
	if err := validate.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(ctx, s.logg, w, err)
		return
	}

	branch, ok := s.seed.branch(strings.TrimSpace(req.BranchID))
	if !ok || !branch.accepts(req.Code) {
		responses.WriteError(ctx, s.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid pairing code"))
		return
	}

	device := Device{
		ID:        uuid.NewString(),
		BranchID:  branch.ID,
		Name:      strings.TrimSpace(req.Name),
		MachineID: strings.TrimSpace(req.MachineID),
	}
	token, err := auth.MintDeviceToken(s.cfg, s.now(), auth.DeviceTokenPayload{DeviceID: device.ID, BranchID: branch.ID})
	if err != nil {
		responses.WriteError(ctx, s.logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint device token"))
		return
	}
	s.state.addDevice(device)

	s.logg.Info(s.logg.WithFields(s.logg.WithDeviceID(ctx, device.ID), map[string]any{
		"branch_id":  branch.ID,
		"machine_id": device.MachineID,
	}), "device registered")

	responses.WriteJSON(w, http.StatusCreated, registerResponse{
		Device: deviceBody{ID: device.ID, BranchID: branch.ID, BranchName: branch.Name},
		Token:  token,
	})
}

func (s *Server) bootstrap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	branchID := middleware.BranchIDFromContext(ctx)
	branch, ok := s.seed.branch(branchID)
	if !ok {
		responses.WriteError(ctx, s.logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "branch not found"))
		return
	}
	snapshot, cursor, err := s.state.snapshot(branch.ID, s.seedLimit)
	if err != nil {
		responses.WriteError(ctx, s.logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build snapshot"))
		return
	}
	responses.WriteOK(w, bootstrapResponse{
		Branch:  branchBody{ID: branch.ID, Name: branch.Name},
		Catalog: snapshot,
		Cursor:  cursor,
	})
}

func (s *Server) pull(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req pullRequest
	if err := validate.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(ctx, s.logg, w, err)
		return
	}
	changes, cursor, hasMore, err := s.state.changesSince(req.Cursor, s.pageSize)
	if err != nil {
		responses.WriteError(ctx, s.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
		return
	}
	responses.WriteOK(w, syncer.PullResponse{
		Changes: changes,
		Cursor:  catalog.Cursor(cursor),
		HasMore: hasMore,
	})
}

func (s *Server) push(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := middleware.DeviceIDFromContext(ctx)
	branchID := middleware.BranchIDFromContext(ctx)

	var req syncer.PushRequest
	if err := validate.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(ctx, s.logg, w, err)
		return
	}
	if err := checkBatch(deviceID, req); err != nil {
		responses.WriteError(ctx, s.logg, w, err)
		return
	}
	batchID := uuid.MustParse(req.Envelope.ClientMsgID)
	ctx = s.logg.WithField(ctx, "client_msg_id", batchID.String())

	claim, err := s.batches.Begin(ctx, deviceID, batchID)
	if err != nil {
		responses.WriteError(ctx, s.logg, w, pkgerrors.Wrap(pkgerrors.CodeTransient, err, "claim batch"))
		return
	}
	if claim.Seen {
		if claim.Result == "" {
			responses.WriteError(ctx, s.logg, w, pkgerrors.New(pkgerrors.CodeTransient, "batch is still being applied"))
			return
		}
		var ack syncer.PushAck
		if err := json.Unmarshal([]byte(claim.Result), &ack); err != nil {
			responses.WriteError(ctx, s.logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode stored ack"))
			return
		}
		ack.Duplicate = true
		s.logg.Info(ctx, "duplicate batch acknowledged")
		responses.WriteOK(w, ack)
		return
	}

	ack := syncer.PushAck{OK: true, Accepted: s.state.receive(deviceID, branchID, req.Orders)}
	raw, err := json.Marshal(ack)
	if err == nil {
		err = s.batches.Complete(ctx, deviceID, batchID, string(raw))
	}
	if err != nil {
		s.logg.Error(ctx, "store batch result", err)
	}

	s.logg.Info(s.logg.WithField(ctx, "orders", len(req.Orders)), "batch applied")
	responses.WriteOK(w, ack)
}

// checkBatch rejects envelopes the device could not have produced.
func checkBatch(deviceID string, req syncer.PushRequest) error {
	details := map[string]any{}
	if req.Envelope.Version != syncer.EnvelopeVersion {
		details["envelope.version"] = "unsupported"
	}
	if _, err := uuid.Parse(req.Envelope.ClientMsgID); err != nil {
		details["envelope.client_msg_id"] = "must be a uuid"
	}
	if req.Envelope.DeviceID != deviceID {
		details["envelope.device_id"] = "does not match token"
	}
	if len(req.Orders) == 0 {
		details["orders"] = "is required"
	}
	for _, o := range req.Orders {
		if o.ID == "" || o.Number == "" {
			details["orders"] = "every order needs id and number"
			break
		}
		cancelledAfterCompletion := o.Status == string(enums.OrderStatusCancelled) && o.CompletedAt != 0
		if o.Status != string(enums.OrderStatusCompleted) && !cancelledAfterCompletion {
			details["orders"] = "only completed orders and their cancellations are accepted"
			break
		}
	}
	if len(details) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid push batch").WithDetails(details)
}

func (s *Server) adminRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := chi.URLParam(r, "deviceID")
	if err := s.Revoke(ctx, deviceID); err != nil {
		responses.WriteError(ctx, s.logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "device not found"))
		return
	}
	s.logg.Warn(s.logg.WithDeviceID(ctx, deviceID), "device revoked")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) adminPublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req publishRequest
	if err := validate.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(ctx, s.logg, w, err)
		return
	}
	cursor, err := s.Publish(req.Changes...)
	if err != nil {
		responses.WriteError(ctx, s.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "publish changes"))
		return
	}
	responses.WriteOK(w, map[string]string{"cursor": cursor})
}

func (s *Server) adminOrders(w http.ResponseWriter, _ *http.Request) {
	orders := s.Orders()
	out := make([]syncer.OrderEnvelope, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.Order)
	}
	responses.WriteOK(w, out)
}
