package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/angelmondragon/packfinderz-pos/pkg/env"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

type cli struct {
	cfg  *config.Config
	logg *logger.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "posd",
		Short:         "Offline-first point of sale terminal core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd.Context())
		},
	}
	root.AddCommand(
		c.pairCmd(),
		c.unpairCmd(),
		c.bootstrapCmd(),
		c.syncCmd(),
		c.runCmd(),
		c.migrateCmd(),
		c.statusCmd(),
		c.modeCmd(),
		c.orderCmd(),
	)
	return root
}

func (c *cli) load(ctx context.Context) error {
	logg := logger.New(logger.Options{ServiceName: "posd", Level: logger.ParseLevel("info")})
	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, "no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		return err
	}

	if cfg.Secrets.MachineID == "" {
		cfg.Secrets.MachineID = env.MachineID("pos-terminal")
	}
	c.cfg = cfg
	c.logg = logger.New(logger.Options{
		ServiceName: "posd",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})
	return nil
}

// withApp builds the terminal for one command and tears it down afterwards.
func (c *cli) withApp(ctx context.Context, fn func(a *app) error) (err error) {
	a, err := newApp(ctx, c.cfg, c.logg)
	if err != nil {
		c.logg.Error(ctx, "failed to start terminal", err)
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			c.logg.Error(ctx, "failed to close terminal", cerr)
		}
	}()
	return fn(a)
}
