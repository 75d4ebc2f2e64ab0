package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/packfinderz-pos/internal/bootstrap"
	"github.com/angelmondragon/packfinderz-pos/internal/orders"
	"github.com/angelmondragon/packfinderz-pos/internal/pairing"
	"github.com/angelmondragon/packfinderz-pos/internal/syncer"
	"github.com/angelmondragon/packfinderz-pos/pkg/db"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"github.com/angelmondragon/packfinderz-pos/pkg/meta"
	"github.com/angelmondragon/packfinderz-pos/pkg/migrate"
)

func (c *cli) pairCmd() *cobra.Command {
	var input pairing.PairInput
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Register this terminal with a branch using a pairing code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				if input.MachineID == "" {
					input.MachineID = a.cfg.Secrets.MachineID
				}
				if input.DeviceName == "" {
					input.DeviceName = input.MachineID
				}
				identity, err := a.pairing.Pair(cmd.Context(), input)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "paired device %s to branch %s\n", identity.DeviceID, identity.BranchID)
				snap, err := a.bootstrap.Run(cmd.Context())
				if err != nil {
					a.logg.Warn(a.logg.WithField(cmd.Context(), "error", err.Error()), "initial bootstrap failed; the sync loop retries it")
					fmt.Fprintln(out, "bootstrap pending: it runs before the next sync")
					return nil
				}
				printSnapshot(out, snap)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&input.BaseURL, "url", "", "sync server base URL")
	cmd.Flags().StringVar(&input.Code, "code", "", "pairing code issued by the branch")
	cmd.Flags().StringVar(&input.BranchID, "branch", "", "branch id")
	cmd.Flags().StringVar(&input.DeviceName, "name", "", "device display name (defaults to the machine id)")
	cmd.Flags().StringVar(&input.MachineID, "machine", "", "machine id (defaults to POS_MACHINE_ID)")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("branch")
	return cmd
}

func (c *cli) unpairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpair",
		Short: "Forget the device identity and token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				if err := a.pairing.Unpair(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "unpaired")
				return nil
			})
		},
	}
}

func (c *cli) bootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Download the full branch catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				snap, err := a.bootstrap.Run(cmd.Context())
				if err != nil {
					return err
				}
				printSnapshot(cmd.OutOrStdout(), snap)
				return nil
			})
		},
	}
}

func printSnapshot(out io.Writer, snap bootstrap.Snapshot) {
	fmt.Fprintf(out, "branch %s (%s) cursor=%s seeded=%d relabeled=%d\n",
		snap.BranchName, snap.BranchID, snap.Cursor, snap.Seeded, snap.Relabeled)
	for table, n := range snap.Rows {
		fmt.Fprintf(out, "  %-20s %d\n", table, n)
	}
}

func (c *cli) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run a single pull and push iteration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				outcome, err := a.runner.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if outcome.Skipped != "" {
					fmt.Fprintf(out, "skipped: %s\n", outcome.Skipped)
					return nil
				}
				if outcome.Bootstrap != nil {
					printSnapshot(out, *outcome.Bootstrap)
				}
				fmt.Fprintf(out, "pulled %d changes over %d pages (cursor %s), pushed %d orders\n",
					outcome.Pull.Applied, outcome.Pull.Pages, outcome.Pull.Cursor, outcome.Push.Pushed)
				return outcome.Err
			})
		},
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version|validate]",
		Short:     "Manage the local schema",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{"up", "down", "status", "version", "validate"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if args[0] == "validate" {
				if err := migrate.Validate(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations valid")
				return nil
			}

			client, err := db.New(ctx, c.cfg.Store, c.logg)
			if err != nil {
				return err
			}
			defer client.Close()
			sqlDB, err := client.DB().DB()
			if err != nil {
				return err
			}
			return migrate.Run(ctx, sqlDB, args[0], args[1:]...)
		},
	}
}

type statusView struct {
	DeviceID   string     `json:"device_id,omitempty"`
	BranchID   string     `json:"branch_id,omitempty"`
	Paired     bool       `json:"paired"`
	Mode       string     `json:"mode"`
	Cursor     string     `json:"cursor"`
	Outbox     int64      `json:"outbox"`
	LastPullAt *time.Time `json:"last_pull_at,omitempty"`
	LastPushAt *time.Time `json:"last_push_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	Backoff    string     `json:"backoff,omitempty"`
}

func (a *app) status(ctx context.Context) (statusView, error) {
	st, err := a.syncer.Status(ctx)
	if err != nil {
		return statusView{}, err
	}
	identity, err := a.pairing.Status(ctx)
	if err != nil {
		return statusView{}, err
	}
	return newStatusView(identity, st, a.runner.Backoff()), nil
}

func newStatusView(identity meta.Identity, st syncer.Status, backoff time.Duration) statusView {
	view := statusView{
		DeviceID:   identity.DeviceID,
		BranchID:   identity.BranchID,
		Paired:     st.Paired,
		Mode:       st.Mode.String(),
		Cursor:     st.Cursor,
		Outbox:     st.Outbox,
		LastPullAt: st.LastPullAt,
		LastPushAt: st.LastPushAt,
		LastError:  st.LastError,
	}
	if backoff > 0 {
		view.Backoff = backoff.String()
	}
	return view
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pairing and sync state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				view, err := a.status(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), view)
			})
		},
	}
}

func (c *cli) modeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "mode [online|offline]",
		Short:     "Show or switch the operating mode",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(enums.OperatingModeOnline), string(enums.OperatingModeOffline)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				ctx := cmd.Context()
				if len(args) == 1 {
					mode, err := enums.ParseOperatingMode(args[0])
					if err != nil {
						return err
					}
					if err := meta.SetOperatingMode(ctx, a.meta, mode); err != nil {
						return err
					}
				}
				mode, err := meta.OperatingMode(ctx, a.meta)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), mode)
				return nil
			})
		},
	}
}

func (c *cli) orderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Work with local orders",
	}
	cmd.AddCommand(c.orderDemoCmd(), c.orderListCmd())
	return cmd
}

func (c *cli) orderDemoCmd() *cobra.Command {
	var (
		orderType string
		items     []string
		qty       int
		promo     string
		payment   string
		userID    string
		phone     string
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Ring up and complete an order from catalog items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				ctx := cmd.Context()
				if userID != "" {
					ctx = orders.WithActor(ctx, orders.Actor{UserID: userID})
				}
				kind, err := enums.ParseOrderType(orderType)
				if err != nil {
					return err
				}
				order, err := a.orders.Start(ctx, orders.StartInput{OrderType: kind, CustomerPhone: phone})
				if err != nil {
					return err
				}
				for _, item := range items {
					if order, err = a.orders.AddLine(ctx, orders.AddLineInput{OrderID: order.ID, ItemID: item, Qty: qty}); err != nil {
						return err
					}
				}
				if promo != "" {
					if order, err = a.orders.ApplyPromo(ctx, order.ID, promo); err != nil {
						return err
					}
				}
				if order, err = a.orders.Complete(ctx, orders.CompleteInput{OrderID: order.ID, PaymentMethodID: payment}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "order %s (%s) %s subtotal=%.3f discount=%.3f fee=%.3f total=%.3f\n",
					order.Number, order.ID, order.Status, order.Subtotal, order.DiscountAmount, order.DeliveryFee, order.GrandTotal)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orderType, "type", string(enums.OrderTypePickup), "order type (delivery, pickup, dine_in)")
	cmd.Flags().StringSliceVar(&items, "item", nil, "catalog item id, repeatable")
	cmd.Flags().IntVar(&qty, "qty", 1, "quantity per item")
	cmd.Flags().StringVar(&promo, "promo", "", "promo code")
	cmd.Flags().StringVar(&payment, "payment", "", "payment method id")
	cmd.Flags().StringVar(&userID, "user", "", "acting user id")
	cmd.Flags().StringVar(&phone, "phone", "", "customer phone")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func (c *cli) orderListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				list, err := a.orders.ListActive(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, o := range list {
					fmt.Fprintf(out, "%-16s %-10s %-9s %.3f\n", o.Number, o.Status, o.OrderType, o.GrandTotal)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum orders to list")
	return cmd
}
