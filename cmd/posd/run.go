package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/packfinderz-pos/api/middleware"
	"github.com/angelmondragon/packfinderz-pos/api/responses"
)

const shutdownGrace = 5 * time.Second

func (c *cli) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the background sync loop and the local admin endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				return a.serve(cmd.Context())
			})
		},
	}
}

// serve runs the sync loop and, when an address is configured, the admin
// endpoint until ctx is cancelled.
func (a *app) serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.runner.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if addr := a.cfg.Metrics.Addr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.adminRouter(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
		}
		g.Go(func() error {
			a.logg.Info(a.logg.WithField(ctx, "addr", addr), "admin endpoint listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	a.logg.Info(context.Background(), "terminal stopped")
	return err
}

func (a *app) adminRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID(a.logg))
	r.Use(middleware.Logging(a.logg))
	r.Use(middleware.Recoverer(a.logg))

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		view, err := a.status(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), a.logg, w, err)
			return
		}
		responses.WriteOK(w, view)
	})
	r.Post("/sync", func(w http.ResponseWriter, r *http.Request) {
		a.runner.Kick()
		responses.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
	})
	return r
}
