// Package bootstrap seeds the local catalog from the server's full snapshot.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/actionlog"
	"github.com/angelmondragon/packfinderz-pos/internal/catalog"
	"github.com/angelmondragon/packfinderz-pos/internal/remote"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/meta"
	"gorm.io/gorm"
)

const (
	Path = "/bootstrap"

	defaultSeedLimit = 200
)

type doer interface {
	Do(ctx context.Context, req remote.Request, out any) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Response is the /bootstrap payload.
type Response struct {
	Branch struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"branch"`
	Catalog map[string]json.RawMessage `json:"catalog"`
	Cursor  catalog.Cursor             `json:"cursor"`
}

// Snapshot summarises one applied bootstrap.
type Snapshot struct {
	BranchID   string
	BranchName string
	Cursor     string
	Rows       map[string]int
	Seeded     int
	Relabeled  int
	Skipped    []string
}

type EngineParams struct {
	Remote    doer
	Tx        txRunner
	Applier   *catalog.Applier
	Meta      meta.Store
	SyncState meta.Store
	Audit     actionlog.Recorder
	Logger    *logger.Logger
	SeedLimit int
	Now       func() time.Time
}

type Engine struct {
	remote    doer
	tx        txRunner
	applier   *catalog.Applier
	meta      meta.Store
	syncState meta.Store
	audit     actionlog.Recorder
	logg      *logger.Logger
	seedLimit int
	now       func() time.Time
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Remote == nil {
		return nil, fmt.Errorf("remote client required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Meta == nil || params.SyncState == nil {
		return nil, fmt.Errorf("meta and sync state stores required")
	}
	e := &Engine{
		remote:    params.Remote,
		tx:        params.Tx,
		applier:   params.Applier,
		meta:      params.Meta,
		syncState: params.SyncState,
		audit:     params.Audit,
		logg:      params.Logger,
		seedLimit: params.SeedLimit,
		now:       params.Now,
	}
	if e.applier == nil {
		e.applier = catalog.NewApplier(nil)
	}
	if e.audit == nil {
		e.audit = actionlog.Nop{}
	}
	if e.seedLimit <= 0 {
		e.seedLimit = defaultSeedLimit
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Run fetches the snapshot and applies it in one transaction. A failed fetch or
// apply leaves the previous local state untouched.
func (e *Engine) Run(ctx context.Context) (Snapshot, error) {
	var resp Response
	if err := e.remote.Do(ctx, remote.Request{Method: http.MethodGet, Path: Path}, &resp); err != nil {
		return Snapshot{}, err
	}
	if resp.Catalog == nil {
		return Snapshot{}, pkgerrors.New(pkgerrors.CodeProtocol, "bootstrap response has no catalog")
	}
	return e.Apply(ctx, resp)
}

// Apply writes an already fetched snapshot. Applying the same snapshot twice
// yields the same rows.
func (e *Engine) Apply(ctx context.Context, resp Response) (Snapshot, error) {
	snap := Snapshot{
		BranchID:   resp.Branch.ID,
		BranchName: resp.Branch.Name,
		Cursor:     string(resp.Cursor),
		Rows:       map[string]int{},
	}
	now := e.now().UTC()

	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, table := range orderedTables(e.applier.Registry(), resp.Catalog) {
			raw := resp.Catalog[table]
			if table == OrdersSeedKey {
				seeded, moved, err := seedOrders(ctx, tx, raw, e.seedLimit, now.UnixMilli())
				if err != nil {
					return err
				}
				snap.Seeded = seeded
				snap.Relabeled = len(moved)
				continue
			}
			if _, known := e.applier.Registry().Lookup(table); !known {
				snap.Skipped = append(snap.Skipped, table)
				continue
			}
			var rows []catalog.Row
			if len(raw) > 0 && string(raw) != "null" {
				if err := json.Unmarshal(raw, &rows); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeProtocol, err, "decode "+table)
				}
			}
			n, err := e.applier.UpsertAll(ctx, tx, table, rows)
			if err != nil {
				return err
			}
			snap.Rows[table] = n
		}

		metaTx := e.meta.WithTx(tx)
		if resp.Branch.ID != "" {
			if err := metaTx.Set(ctx, meta.KeyBranchID, resp.Branch.ID); err != nil {
				return err
			}
		}
		if resp.Branch.Name != "" {
			if err := metaTx.Set(ctx, meta.KeyBranchName, resp.Branch.Name); err != nil {
				return err
			}
		}
		stateTx := e.syncState.WithTx(tx)
		if resp.Cursor != "" {
			if err := stateTx.Set(ctx, meta.KeyCatalogCursor, string(resp.Cursor)); err != nil {
				return err
			}
		}
		return stateTx.Set(ctx, meta.KeyLastBootstrapAt, strconv.FormatInt(now.UnixMilli(), 10))
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return Snapshot{}, err
		}
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply bootstrap")
	}

	if len(snap.Skipped) > 0 {
		e.logg.Warn(e.logg.WithField(ctx, "tables", snap.Skipped), "bootstrap ignored unknown tables")
	}
	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"branch_id": snap.BranchID,
		"seeded":    snap.Seeded,
		"cursor":    snap.Cursor,
	}), "bootstrap applied")
	e.audit.Record(ctx, actionlog.Entry{
		Action: actionlog.ActionCatalogBootstrap,
		Metadata: map[string]any{
			"rows":      snap.Rows,
			"seeded":    snap.Seeded,
			"relabeled": snap.Relabeled,
			"cursor":    snap.Cursor,
		},
	})
	return snap, nil
}

// orderedTables lists registered tables first in registry order, then the rest sorted.
func orderedTables(registry *catalog.Registry, payload map[string]json.RawMessage) []string {
	seen := make(map[string]bool, len(payload))
	out := make([]string, 0, len(payload))
	for _, name := range registry.Tables() {
		if _, ok := payload[name]; ok {
			out = append(out, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range payload {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
