// Package syncer pulls catalog deltas from the server and pushes completed
// orders back to it.
package syncer

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/catalog"
	"github.com/angelmondragon/packfinderz-pos/internal/remote"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/meta"
	"github.com/angelmondragon/packfinderz-pos/pkg/pagination"
	"gorm.io/gorm"
)

const (
	PullPath = "/pull"
	PushPath = "/push"

	DefaultPushLimit = 50
	maxPullPages     = 20
)

var pushBounds = pagination.Bounds{Default: DefaultPushLimit, Max: pagination.MaxLimit}

type doer interface {
	Do(ctx context.Context, req remote.Request, out any) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type pullRequest struct {
	Cursor string `json:"cursor"`
}

// PullResponse is one page of the change stream.
type PullResponse struct {
	Changes []catalog.Change `json:"changes"`
	Cursor  catalog.Cursor   `json:"cursor"`
	HasMore bool             `json:"has_more"`
}

type PullResult struct {
	Applied int
	Ignored int
	Pages   int
	Cursor  string
}

type PushResult struct {
	Pushed      int
	Stale       int
	ClientMsgID string
	Duplicate   bool
}

// Status is the read model shown next to the sync indicator.
type Status struct {
	Paired      bool
	Mode        enums.OperatingMode
	Cursor      string
	Outbox      int64
	LastPullAt  *time.Time
	LastPushAt  *time.Time
	LastError   string
	LastSuccess *time.Time
}

type ServiceParams struct {
	DB        *gorm.DB
	Tx        txRunner
	Remote    doer
	Applier   *catalog.Applier
	Meta      meta.Store
	SyncState meta.Store
	Logger    *logger.Logger
	Now       func() time.Time
}

type Service struct {
	db        *gorm.DB
	tx        txRunner
	remote    doer
	applier   *catalog.Applier
	meta      meta.Store
	syncState meta.Store
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Remote == nil {
		return nil, fmt.Errorf("remote client required")
	}
	if params.Meta == nil || params.SyncState == nil {
		return nil, fmt.Errorf("meta and sync state stores required")
	}
	s := &Service{
		db:        params.DB,
		tx:        params.Tx,
		remote:    params.Remote,
		applier:   params.Applier,
		meta:      params.Meta,
		syncState: params.SyncState,
		logg:      params.Logger,
		now:       params.Now,
	}
	if s.applier == nil {
		s.applier = catalog.NewApplier(nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Pull applies change pages until the server reports no more. Each page and
// its cursor commit together; a failing page leaves the cursor where the last
// committed page put it.
func (s *Service) Pull(ctx context.Context) (PullResult, error) {
	var result PullResult
	cursor, _, err := s.syncState.Get(ctx, meta.KeyCatalogCursor)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read cursor")
	}
	result.Cursor = cursor

	for result.Pages < maxPullPages {
		var resp PullResponse
		err := s.remote.Do(ctx, remote.Request{
			Method: http.MethodPost,
			Path:   PullPath,
			Body:   pullRequest{Cursor: cursor},
		}, &resp)
		if err != nil {
			return result, err
		}

		applied, ignored, err := s.applyPage(ctx, resp)
		if err != nil {
			return result, err
		}
		result.Pages++
		result.Applied += applied
		result.Ignored += ignored
		if resp.Cursor != "" {
			cursor = string(resp.Cursor)
			result.Cursor = cursor
		}
		if !resp.HasMore || resp.Cursor == "" {
			break
		}
	}

	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"applied": result.Applied,
		"ignored": result.Ignored,
		"cursor":  result.Cursor,
	}), "pull complete")
	return result, nil
}

func (s *Service) applyPage(ctx context.Context, resp PullResponse) (int, int, error) {
	applied, ignored := 0, 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for i, change := range resp.Changes {
			ok, err := s.applier.Apply(ctx, tx, change)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeProtocol, err, fmt.Sprintf("apply change %d", i))
			}
			if ok {
				applied++
			} else {
				ignored++
			}
		}
		state := s.syncState.WithTx(tx)
		if resp.Cursor != "" {
			if err := state.Set(ctx, meta.KeyCatalogCursor, string(resp.Cursor)); err != nil {
				return err
			}
		}
		return state.Set(ctx, meta.KeyLastPullAt, strconv.FormatInt(s.now().UnixMilli(), 10))
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "commit pull")
		}
		return 0, 0, err
	}
	return applied, ignored, nil
}

// pushable matches completed orders and orders cancelled after completion.
func pushable(db *gorm.DB) *gorm.DB {
	return db.Where("(status = ? OR (status = ? AND completed_at IS NOT NULL))",
		enums.OrderStatusCompleted, enums.OrderStatusCancelled)
}

// outbox matches pushable orders the server has not acknowledged.
func outbox(db *gorm.DB) *gorm.DB {
	return pushable(db).Where("(synced_at IS NULL OR synced_at = 0)")
}

// Pending returns outbox orders oldest first.
func (s *Service) Pending(ctx context.Context, limit int) ([]models.Order, error) {
	limit = pushBounds.Normalize(limit)
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, rowid ASC")
		}).
		Scopes(outbox).
		Order("COALESCE(completed_at, created_at) ASC, id ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load outbox")
	}
	return orders, nil
}

// Flush pushes up to limit pending orders as one batch. Orders are marked
// synced only after the server acknowledges them, and only when they were not
// edited while the request was in flight.
func (s *Service) Flush(ctx context.Context, limit int) (PushResult, error) {
	orders, err := s.Pending(ctx, limit)
	if err != nil {
		return PushResult{}, err
	}
	if len(orders) == 0 {
		return PushResult{}, nil
	}
	identity, err := meta.LoadIdentity(ctx, s.meta)
	if err != nil {
		return PushResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load identity")
	}

	req := NewPushRequest(identity.DeviceID, identity.BranchID, orders)
	result := PushResult{ClientMsgID: req.Envelope.ClientMsgID}
	ctx = s.logg.WithField(ctx, "client_msg_id", result.ClientMsgID)

	var ack PushAck
	err = s.remote.Do(ctx, remote.Request{
		Method:         http.MethodPost,
		Path:           PushPath,
		Body:           req,
		IdempotencyKey: req.Envelope.ClientMsgID,
	}, &ack)
	if err != nil {
		return result, err
	}
	result.Duplicate = ack.Duplicate

	sent := make(map[string]int64, len(orders))
	for _, o := range orders {
		sent[o.ID] = o.UpdatedAt
	}
	accepted := ack.Accepted
	if len(accepted) == 0 {
		accepted = make([]string, 0, len(orders))
		for _, o := range orders {
			accepted = append(accepted, o.ID)
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		state := s.syncState.WithTx(tx)
		stamp, err := s.nextStamp(ctx, state)
		if err != nil {
			return err
		}
		for _, id := range accepted {
			updatedAt, ok := sent[id]
			if !ok {
				continue
			}
			res := tx.WithContext(ctx).Model(&models.Order{}).
				Where("id = ? AND updated_at = ?", id, updatedAt).
				Scopes(pushable).
				Update("synced_at", stamp)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				result.Stale++
				continue
			}
			result.Pushed++
		}
		return state.Set(ctx, meta.KeyLastPushAt, strconv.FormatInt(stamp, 10))
	})
	if err != nil {
		return PushResult{ClientMsgID: result.ClientMsgID}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark orders synced")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"pushed":    result.Pushed,
		"stale":     result.Stale,
		"duplicate": result.Duplicate,
	}), "outbox flushed")
	return result, nil
}

// nextStamp returns a synced_at value strictly after the previous push.
func (s *Service) nextStamp(ctx context.Context, state meta.Store) (int64, error) {
	stamp := s.now().UnixMilli()
	last, ok, err := state.Get(ctx, meta.KeyLastPushAt)
	if err != nil {
		return 0, err
	}
	if ok {
		if prev, perr := strconv.ParseInt(last, 10, 64); perr == nil && stamp <= prev {
			stamp = prev + 1
		}
	}
	return stamp, nil
}

// Status reports cursor, outbox depth and the last sync outcomes.
func (s *Service) Status(ctx context.Context) (Status, error) {
	var st Status
	identity, err := meta.LoadIdentity(ctx, s.meta)
	if err != nil {
		return st, err
	}
	st.Paired = identity.Complete()
	if st.Mode, err = meta.OperatingMode(ctx, s.meta); err != nil {
		return st, err
	}
	if st.Cursor, _, err = s.syncState.Get(ctx, meta.KeyCatalogCursor); err != nil {
		return st, err
	}
	if st.LastError, _, err = s.syncState.Get(ctx, meta.KeyLastSyncError); err != nil {
		return st, err
	}
	if st.LastPullAt, err = s.readTime(ctx, meta.KeyLastPullAt); err != nil {
		return st, err
	}
	if st.LastPushAt, err = s.readTime(ctx, meta.KeyLastPushAt); err != nil {
		return st, err
	}
	if st.LastSuccess, err = s.readTime(ctx, meta.KeyLastSyncSuccessAt); err != nil {
		return st, err
	}
	err = s.db.WithContext(ctx).Model(&models.Order{}).
		Scopes(outbox).
		Count(&st.Outbox).Error
	return st, err
}

func (s *Service) readTime(ctx context.Context, key string) (*time.Time, error) {
	v, ok, err := s.syncState.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}
