// Package devserver is a reference sync server for local development and
// integration tests. It pairs devices, serves the catalog snapshot and change
// feed, and accepts pushed order batches exactly once per batch id.
package devserver

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-pos/api/middleware"
	"github.com/angelmondragon/packfinderz-pos/internal/catalog"
	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/outbox/idempotency"
	"github.com/angelmondragon/packfinderz-pos/pkg/redis"
)

const (
	DefaultPageSize       = 100
	DefaultSeedOrderLimit = 200
)

type ServerParams struct {
	Config config.DevServerConfig
	// Seed defaults to the compiled catalog.
	Seed           *Seed
	KV             redis.KV
	Logger         *logger.Logger
	Now            func() time.Time
	PageSize       int
	SeedOrderLimit int
}

type Server struct {
	cfg       config.DevServerConfig
	seed      *Seed
	kv        redis.KV
	batches   *idempotency.Manager
	state     *state
	logg      *logger.Logger
	now       func() time.Time
	pageSize  int
	seedLimit int
}

func NewServer(params ServerParams) (*Server, error) {
	if params.KV == nil {
		return nil, fmt.Errorf("kv store required")
	}
	if params.Config.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	seed := params.Seed
	if seed == nil {
		var err error
		if seed, err = DefaultSeed(); err != nil {
			return nil, err
		}
	}
	st, err := newState(seed, catalog.DefaultRegistry())
	if err != nil {
		return nil, err
	}
	batches, err := idempotency.NewManager(params.KV, params.Config.IdempotencyTTL)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:       params.Config,
		seed:      seed,
		kv:        params.KV,
		batches:   batches,
		state:     st,
		logg:      params.Logger,
		now:       params.Now,
		pageSize:  params.PageSize,
		seedLimit: params.SeedOrderLimit,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.pageSize <= 0 {
		s.pageSize = DefaultPageSize
	}
	if s.seedLimit <= 0 {
		s.seedLimit = DefaultSeedOrderLimit
	}
	if s.cfg.BasePath == "" {
		s.cfg.BasePath = "/"
	}
	return s, nil
}

// Handler returns the chi router serving the device API under the base path.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID(s.logg))
	r.Use(middleware.Logging(s.logg))
	r.Use(middleware.Recoverer(s.logg))

	r.Get("/healthz", s.healthz)

	idem := middleware.Idempotency(s.kv, s.cfg.IdempotencyTTL, s.logg)
	r.Route("/"+strings.Trim(s.cfg.BasePath, "/"), func(r chi.Router) {
		r.With(idem).Post("/register", s.register)

		r.Group(func(r chi.Router) {
			r.Use(middleware.DeviceAuth(s.cfg, s.kv, s.logg))
			r.Get("/bootstrap", s.bootstrap)
			r.Post("/pull", s.pull)
			r.With(idem).Post("/push", s.push)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/devices/{deviceID}/revoke", s.adminRevoke)
			r.Post("/changes", s.adminPublish)
			r.Get("/orders", s.adminOrders)
		})
	})
	return r
}

// Revoke marks a device token as revoked; its next call is answered 401.
func (s *Server) Revoke(ctx context.Context, deviceID string) error {
	if _, ok := s.state.device(deviceID); !ok {
		return fmt.Errorf("unknown device %s", deviceID)
	}
	return s.kv.Set(ctx, s.kv.RevokedKey(deviceID), s.now().UTC().Format(time.RFC3339), 0)
}

// Publish appends catalog changes to the feed and returns the new cursor.
func (s *Server) Publish(changes ...catalog.Change) (string, error) {
	var seq int64
	for i, change := range changes {
		n, err := s.state.publish(change)
		if err != nil {
			return "", fmt.Errorf("change %d: %w", i, err)
		}
		seq = n
	}
	return fmt.Sprint(seq), nil
}

// Orders returns every received order sorted by id.
func (s *Server) Orders() []ReceivedOrder {
	s.state.mtx.Lock()
	defer s.state.mtx.Unlock()
	out := make([]ReceivedOrder, 0, len(s.state.orders))
	for _, o := range s.state.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order.ID < out[j].Order.ID })
	return out
}

// PushCount is the number of batches applied, excluding duplicates.
func (s *Server) PushCount() int {
	s.state.mtx.Lock()
	defer s.state.mtx.Unlock()
	return s.state.pushes
}
