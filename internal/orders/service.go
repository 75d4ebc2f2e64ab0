package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/actionlog"
	"github.com/angelmondragon/packfinderz-pos/internal/numbering"
	"github.com/angelmondragon/packfinderz-pos/internal/totals"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/meta"
	"github.com/angelmondragon/packfinderz-pos/pkg/pagination"
	"github.com/angelmondragon/packfinderz-pos/pkg/validate"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the read/write seam the till calls for orders. Every mutation
// recomputes totals in the same transaction before it returns.
type Service interface {
	Start(ctx context.Context, input StartInput) (*models.Order, error)
	Get(ctx context.Context, orderID string) (*models.Order, error)
	ListActive(ctx context.Context, limit int) ([]models.Order, error)
	FindByPhone(ctx context.Context, phone string, limit int) ([]models.Order, error)
	AddLine(ctx context.Context, input AddLineInput) (*models.Order, error)
	SetQty(ctx context.Context, orderID, lineID string, qty int) (*models.Order, error)
	RemoveLine(ctx context.Context, orderID, lineID string) (*models.Order, error)
	ApplyPromo(ctx context.Context, orderID, code string) (*models.Order, error)
	SetManualDiscount(ctx context.Context, input ManualDiscountInput) (*models.Order, error)
	SetVoidDeliveryFee(ctx context.Context, orderID string, void bool) (*models.Order, error)
	SetCustomer(ctx context.Context, input CustomerInput) (*models.Order, error)
	SetAddress(ctx context.Context, input AddressInput) (*models.Order, error)
	SetOrderType(ctx context.Context, orderID string, orderType enums.OrderType) (*models.Order, error)
	SetTable(ctx context.Context, orderID, tableID string) (*models.Order, error)
	Advance(ctx context.Context, orderID string, next enums.OrderStatus) (*models.Order, error)
	Complete(ctx context.Context, input CompleteInput) (*models.Order, error)
	Cancel(ctx context.Context, orderID, reason string) (*models.Order, error)
	MarkPrinted(ctx context.Context, orderID string) (*models.Order, error)
}

type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Totals  *totals.Engine
	Numbers *numbering.Allocator
	Meta    meta.Store
	Audit   actionlog.Recorder
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	totals  *totals.Engine
	numbers *numbering.Allocator
	meta    meta.Store
	audit   actionlog.Recorder
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Totals == nil {
		return nil, fmt.Errorf("totals engine required")
	}
	if params.Numbers == nil {
		return nil, fmt.Errorf("number allocator required")
	}
	if params.Meta == nil {
		return nil, fmt.Errorf("meta store required")
	}
	s := &service{
		repo:    params.Repo,
		tx:      params.Tx,
		totals:  params.Totals,
		numbers: params.Numbers,
		meta:    params.Meta,
		audit:   params.Audit,
		logg:    params.Logger,
		now:     params.Now,
	}
	if s.audit == nil {
		s.audit = actionlog.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *service) Start(ctx context.Context, input StartInput) (*models.Order, error) {
	orderType, err := enums.ParseOrderType(string(input.OrderType))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order type")
	}
	input.OrderType = orderType
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	actor := ActorFromContext(ctx)
	deviceID, _, err := s.meta.Get(ctx, meta.KeyDeviceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read device id")
	}

	now := s.now().UnixMilli()
	order := &models.Order{
		ID:              uuid.NewString(),
		Status:          enums.OrderStatusOpen,
		OrderType:       orderType,
		CustomerName:    optional(validate.Trim(input.CustomerName, 120)),
		CustomerPhone:   optional(validate.Trim(input.CustomerPhone, 40)),
		Notes:           optional(validate.Trim(input.Notes, 500)),
		CreatedByUserID: optional(actor.UserID),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var relabels []numbering.Relabel
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order.Number = s.numbers.Allocate(ctx, tx, deviceID)

		var claimErr error
		relabels, claimErr = numbering.Claim(ctx, tx, order.ID, order.Number)
		if claimErr != nil {
			return claimErr
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if input.TableID != "" {
			if err := s.assignTable(ctx, repo, order, input.TableID); err != nil {
				return err
			}
		}
		_, err := s.totals.Recalc(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		return nil, asTyped(err, "start order")
	}

	s.audit.Record(ctx, actionlog.Entry{
		Action:   actionlog.ActionOrderStart,
		OrderID:  order.ID,
		UserID:   actor.UserID,
		Metadata: map[string]any{"number": order.Number, "order_type": orderType},
	})
	for _, r := range relabels {
		s.audit.Record(ctx, actionlog.Entry{
			Action:   actionlog.ActionOrderRelabel,
			OrderID:  r.OrderID,
			UserID:   actor.UserID,
			Metadata: map[string]any{"from": r.From, "to": r.To, "claimed_by": order.ID},
		})
	}
	s.logg.Debug(s.logg.WithOrderID(ctx, order.ID), "order started")
	return s.Get(ctx, order.ID)
}

func (s *service) Get(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order not found", orderID)
	}
	return order, nil
}

func (s *service) ListActive(ctx context.Context, limit int) ([]models.Order, error) {
	statuses := []enums.OrderStatus{
		enums.OrderStatusDraft,
		enums.OrderStatusOpen,
		enums.OrderStatusPending,
		enums.OrderStatusReady,
		enums.OrderStatusPrepared,
		enums.OrderStatusClosed,
	}
	orders, err := s.repo.ListByStatus(ctx, statuses, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return orders, nil
}

func (s *service) FindByPhone(ctx context.Context, phone string, limit int) ([]models.Order, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone required")
	}
	orders, err := s.repo.FindByPhone(ctx, phone, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find orders by phone")
	}
	return orders, nil
}

func (s *service) AddLine(ctx context.Context, input AddLineInput) (*models.Order, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if input.ItemID == "" && (strings.TrimSpace(input.Name) == "" || input.UnitPrice == nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"name": "is required", "unit_price": "is required"})
	}

	return s.mutate(ctx, input.OrderID, mutation{
		action: actionlog.ActionOrderAddLine,
		apply: func(ctx context.Context, repo Repository, order *models.Order, now int64) (map[string]any, error) {
			line, err := s.buildLine(ctx, repo, input)
			if err != nil {
				return nil, err
			}
			line.OrderID = order.ID
			line.CreatedAt = now
			line.UpdatedAt = now
			if err := repo.CreateLine(ctx, line); err != nil {
				return nil, fmt.Errorf("create line: %w", err)
			}
			return map[string]any{"line_id": line.ID, "item_id": input.ItemID, "qty": line.Qty, "unit_price": line.UnitPrice}, nil
		},
	})
}

func (s *service) buildLine(ctx context.Context, repo Repository, input AddLineInput) (*models.OrderLine, error) {
	line := &models.OrderLine{
		ID:          uuid.NewString(),
		ItemID:      optional(input.ItemID),
		VariationID: optional(input.VariationID),
		Qty:         input.Qty,
		Notes:       optional(validate.Trim(input.Notes, 500)),
		AddonIDs:    []string{},
		AddonNames:  []string{},
		AddonPrices: []float64{},
	}

	var price decimal.Decimal
	if input.ItemID != "" {
		item, err := repo.FindItem(ctx, input.ItemID)
		if err != nil {
			return nil, notFound(err, "item not found", input.ItemID)
		}
		line.Name = item.Name
		price = decimal.NewFromFloat(item.Price)
		if input.VariationID != "" {
			variation, err := repo.FindVariation(ctx, input.VariationID)
			if err != nil {
				return nil, notFound(err, "variation not found", input.VariationID)
			}
			line.Name = fmt.Sprintf("%s (%s)", item.Name, variation.Name)
			price = decimal.NewFromFloat(variation.Price)
		}
	} else {
		line.Name = validate.Trim(input.Name, 160)
		price = decimal.NewFromFloat(*input.UnitPrice)
	}

	if len(input.AddonIDs) > 0 {
		addons, err := repo.FindAddons(ctx, input.AddonIDs)
		if err != nil {
			return nil, fmt.Errorf("load addons: %w", err)
		}
		byID := make(map[string]models.Addon, len(addons))
		for _, a := range addons {
			byID[a.ID] = a
		}
		for _, id := range input.AddonIDs {
			addon, ok := byID[id]
			if !ok {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "addon not found").WithDetails(map[string]any{"id": id})
			}
			line.AddonIDs = append(line.AddonIDs, addon.ID)
			line.AddonNames = append(line.AddonNames, addon.Name)
			line.AddonPrices = append(line.AddonPrices, addon.Price)
			price = price.Add(decimal.NewFromFloat(addon.Price))
		}
	}

	unit := s.totals.Round(price)
	line.UnitPrice = unit.InexactFloat64()
	line.LineTotal = totals.LineTotal(unit, line.Qty, s.totals.Scale()).InexactFloat64()
	return line, nil
}

func (s *service) SetQty(ctx context.Context, orderID, lineID string, qty int) (*models.Order, error) {
	if qty < 1 || qty > 999 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "qty must be between 1 and 999")
	}
	return s.mutate(ctx, orderID, mutation{
		action: actionlog.ActionOrderSetQty,
		apply: func(ctx context.Context, repo Repository, order *models.Order, now int64) (map[string]any, error) {
			line, err := repo.FindLine(ctx, order.ID, lineID)
			if err != nil {
				return nil, notFound(err, "line not found", lineID)
			}
			total := totals.LineTotal(decimal.NewFromFloat(line.UnitPrice), qty, s.totals.Scale())
			err = repo.UpdateLine(ctx, line.ID, map[string]any{
				"qty":        qty,
				"line_total": total.InexactFloat64(),
				"updated_at": now,
			})
			if err != nil {
				return nil, fmt.Errorf("update line: %w", err)
			}
			return map[string]any{"line_id": line.ID, "from": line.Qty, "to": qty}, nil
		},
	})
}

func (s *service) RemoveLine(ctx context.Context, orderID, lineID string) (*models.Order, error) {
	return s.mutate(ctx, orderID, mutation{
		action: actionlog.ActionOrderRemoveLine,
		apply: func(ctx context.Context, repo Repository, order *models.Order, _ int64) (map[string]any, error) {
			line, err := repo.FindLine(ctx, order.ID, lineID)
			if err != nil {
				return nil, notFound(err, "line not found", lineID)
			}
			if err := repo.DeleteLine(ctx, line.ID); err != nil {
				return nil, fmt.Errorf("delete line: %w", err)
			}
			return map[string]any{"line_id": line.ID, "name": line.Name, "qty": line.Qty}, nil
		},
	})
}

func (s *service) ApplyPromo(ctx context.Context, orderID, code string) (*models.Order, error) {
	code = strings.TrimSpace(code)
	return s.mutate(ctx, orderID, mutation{
		action: actionlog.ActionOrderApplyPromo,
		apply: func(ctx context.Context, repo Repository, order *models.Order, _ int64) (map[string]any, error) {
			if code == "" {
				return map[string]any{"code": nil}, repo.UpdateOrder(ctx, order.ID, map[string]any{"promocode": nil})
			}
			promo, err := repo.FindPromoByCode(ctx, code)
			if err != nil {
				return nil, notFound(err, "promo code not found", code)
			}
			if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"promocode": promo.Code}); err != nil {
				return nil, err
			}
			return map[string]any{"code": promo.Code, "promo_id": promo.ID}, nil
		},
	})
}

func (s *service) SetManualDiscount(ctx context.Context, input ManualDiscountInput) (*models.Order, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	return s.mutate(ctx, input.OrderID, mutation{
		action: actionlog.ActionOrderManualDiscount,
		apply: func(ctx context.Context, repo Repository, order *models.Order, _ int64) (map[string]any, error) {
			err := repo.UpdateOrder(ctx, order.ID, map[string]any{
				"manual_discount_amount":  s.totals.Round(decimal.NewFromFloat(input.Amount)).InexactFloat64(),
				"manual_discount_percent": input.Percent,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"amount": input.Amount, "percent": input.Percent}, nil
		},
	})
}

func (s *service) SetVoidDeliveryFee(ctx context.Context, orderID string, void bool) (*models.Order, error) {
	return s.mutate(ctx, orderID, mutation{
		action: actionlog.ActionOrderVoidDelivery,
		apply: func(ctx context.Context, repo Repository, order *models.Order, _ int64) (map[string]any, error) {
			if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"void_delivery_fee": void}); err != nil {
				return nil, err
			}
			return map[string]any{"void": void}, nil
		},
	})
}

func (s *service) SetCustomer(ctx context.Context, input CustomerInput) (*models.Order, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	return s.mutate(ctx, input.OrderID, mutation{
		action: actionlog.ActionOrderCustomer,
		apply: func(ctx context.Context, repo Repository, order *models.Order, _ int64) (map[string]any, error) {
			err := repo.UpdateOrder(ctx, order.ID, map[string]any{
				"customer_name":  optional(validate.Trim(input.Name, 120)),
				"customer_phone": optional(validate.Trim(input.Phone, 40)),
			})
			return nil, err
		},
	})
}

func (s *service) SetAddress(ctx context.Context, input AddressInput) (*models.Order, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	return s.mutate(ctx, input.OrderID, mutation{
		action: actionlog.ActionOrderAddress,
		apply: func(ctx context.Context, repo Repository, order *models.Order, _ int64) (map[string]any, error) {
			err := repo.UpdateOrder(ctx, order.ID, map[string]any{
				"state_id":      optional(input.StateID),
				"city_id":       optional(input.CityID),
				"block_id":      optional(input.BlockID),
				"address_line":  optional(validate.Trim(input.Line, 300)),
				"address_notes": optional(validate.Trim(input.Notes, 500)),
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"city_id": input.CityID}, nil
		},
	})
}

func (s *service) SetOrderType(ctx context.Context, orderID string, orderType enums.OrderType) (*models.Order, error) {
	parsed, err := enums.ParseOrderType(string(orderType))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order type")
	}
	return s.mutate(ctx, orderID, mutation{
		action: actionlog.ActionOrderType,
		apply: func(ctx context.Context, repo Repository, order *models.Order, _ int64) (map[string]any, error) {
			updates := map[string]any{"order_type": parsed}
			if parsed != enums.OrderTypeDineIn && order.TableID != nil {
				if err := s.releaseTable(ctx, repo, order); err != nil {
					return nil, err
				}
				updates["table_id"] = nil
			}
			if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
				return nil, err
			}
			return map[string]any{"from": order.OrderType, "to": parsed}, nil
		},
	})
}

func (s *service) SetTable(ctx context.Context, orderID, tableID string) (*models.Order, error) {
	tableID = strings.TrimSpace(tableID)
	return s.mutate(ctx, orderID, mutation{
		action: actionlog.ActionOrderSetTable,
		apply: func(ctx context.Context, repo Repository, order *models.Order, _ int64) (map[string]any, error) {
			from := deref(order.TableID)
			if tableID == "" {
				if err := s.releaseTable(ctx, repo, order); err != nil {
					return nil, err
				}
				return map[string]any{"from": from, "to": nil}, repo.UpdateOrder(ctx, order.ID, map[string]any{"table_id": nil})
			}
			if err := s.assignTable(ctx, repo, order, tableID); err != nil {
				return nil, err
			}
			return map[string]any{"from": from, "to": tableID}, nil
		},
	})
}

func (s *service) Advance(ctx context.Context, orderID string, next enums.OrderStatus) (*models.Order, error) {
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	return s.mutate(ctx, orderID, mutation{
		action: actionlog.ActionOrderAdvance,
		apply: func(ctx context.Context, repo Repository, order *models.Order, _ int64) (map[string]any, error) {
			if !order.Status.CanAdvanceTo(next) {
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "status transition not allowed").
					WithDetails(map[string]any{"from": order.Status, "to": next})
			}
			if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"status": next}); err != nil {
				return nil, err
			}
			return map[string]any{"from": order.Status, "to": next}, nil
		},
	})
}

func (s *service) Complete(ctx context.Context, input CompleteInput) (*models.Order, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	actor := ActorFromContext(ctx)
	order, err := s.mutate(ctx, input.OrderID, mutation{
		action: actionlog.ActionOrderComplete,
		apply: func(ctx context.Context, repo Repository, order *models.Order, now int64) (map[string]any, error) {
			if order.Status.IsTerminal() {
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already "+order.Status.String())
			}
			check := completionCheck{
				OrderType:     order.OrderType,
				Lines:         len(order.Lines),
				CustomerName:  deref(order.CustomerName),
				CustomerPhone: deref(order.CustomerPhone),
				CityID:        deref(order.CityID),
				AddressLine:   deref(order.AddressLine),
				TableID:       deref(order.TableID),
			}
			if err := validate.Struct(check); err != nil {
				return nil, err
			}
			updates := map[string]any{
				"status":               enums.OrderStatusCompleted,
				"locked":               true,
				"completed_at":         now,
				"completed_by_user_id": optional(actor.UserID),
				"synced_at":            nil,
			}
			if input.PaymentMethodID != "" {
				updates["payment_method_id"] = input.PaymentMethodID
			}
			if ref := validate.Trim(input.PaymentRef, 120); ref != "" {
				updates["payment_ref"] = ref
			}
			if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
				return nil, err
			}
			if err := s.releaseTable(ctx, repo, order); err != nil {
				return nil, err
			}
			return map[string]any{"number": order.Number, "payment_method_id": input.PaymentMethodID}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"order_id": order.ID, "number": order.Number, "grand_total": order.GrandTotal}), "order completed")
	return order, nil
}

func (s *service) Cancel(ctx context.Context, orderID, reason string) (*models.Order, error) {
	reason = validate.Trim(reason, 300)
	return s.mutate(ctx, orderID, mutation{
		action: actionlog.ActionOrderCancel,
		apply: func(ctx context.Context, repo Repository, order *models.Order, _ int64) (map[string]any, error) {
			if order.Status == enums.OrderStatusCancelled {
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already cancelled")
			}
			if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
				"status": enums.OrderStatusCancelled,
				"locked": true,
			}); err != nil {
				return nil, err
			}
			if err := s.releaseTable(ctx, repo, order); err != nil {
				return nil, err
			}
			return map[string]any{"reason": reason, "from": order.Status}, nil
		},
	})
}

func (s *service) MarkPrinted(ctx context.Context, orderID string) (*models.Order, error) {
	actor := ActorFromContext(ctx)
	return s.mutate(ctx, orderID, mutation{
		action:      actionlog.ActionOrderPrinted,
		allowLocked: true,
		skipRecalc:  true,
		apply: func(ctx context.Context, repo Repository, order *models.Order, _ int64) (map[string]any, error) {
			return nil, repo.UpdateOrder(ctx, order.ID, map[string]any{"printed_by_user_id": optional(actor.UserID)})
		},
	})
}

type mutation struct {
	action string
	// allowLocked lets the change through on completed, cancelled or locked orders.
	allowLocked bool
	// skipRecalc leaves totals, updated_at and synced_at untouched.
	skipRecalc bool
	apply      func(ctx context.Context, repo Repository, order *models.Order, now int64) (map[string]any, error)
}

func (s *service) mutate(ctx context.Context, orderID string, m mutation) (*models.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	actor := ActorFromContext(ctx)

	var metadata map[string]any
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			return notFound(err, "order not found", orderID)
		}
		if !m.allowLocked {
			if err := checkEditable(order, actor); err != nil {
				return err
			}
		}

		metadata, err = m.apply(ctx, repo, order, s.now().UnixMilli())
		if err != nil {
			return err
		}
		if m.skipRecalc {
			return nil
		}
		if _, err := s.totals.Recalc(ctx, tx, order.ID); err != nil {
			return err
		}
		if order.Status == enums.OrderStatusCompleted && order.SyncedAt != nil {
			// an edit after completion has to reach the server again
			return repo.UpdateOrder(ctx, order.ID, map[string]any{"synced_at": nil})
		}
		return nil
	})
	if err != nil {
		return nil, asTyped(err, m.action)
	}

	s.audit.Record(ctx, actionlog.Entry{Action: m.action, OrderID: orderID, UserID: actor.UserID, Metadata: metadata})
	return s.Get(ctx, orderID)
}

func checkEditable(order *models.Order, actor Actor) error {
	if !order.Locked && !order.Status.IsTerminal() {
		return nil
	}
	if actor.Role.CanEditLocked() {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeLocked, "order is locked").
		WithDetails(map[string]any{"order_id": order.ID, "status": order.Status})
}

// assignTable moves order onto tableID, releasing its previous table. A table
// held by another active order is a conflict.
func (s *service) assignTable(ctx context.Context, repo Repository, order *models.Order, tableID string) error {
	table, err := repo.FindTable(ctx, tableID)
	if err != nil {
		return notFound(err, "table not found", tableID)
	}
	if holder := deref(table.CurrentOrderID); holder != "" && holder != order.ID {
		other, err := repo.FindOrder(ctx, holder)
		switch {
		case err == nil && !other.Status.IsTerminal():
			return pkgerrors.New(pkgerrors.CodeConflict, "table is occupied").
				WithDetails(map[string]any{"table_id": tableID, "order_id": holder})
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
	}
	if current := deref(order.TableID); current != "" && current != tableID {
		if err := s.releaseTable(ctx, repo, order); err != nil {
			return err
		}
	}
	if err := repo.SetTableOrder(ctx, tableID, &order.ID); err != nil {
		return fmt.Errorf("claim table: %w", err)
	}
	return repo.UpdateOrder(ctx, order.ID, map[string]any{
		"table_id":   tableID,
		"order_type": enums.OrderTypeDineIn,
	})
}

func (s *service) releaseTable(ctx context.Context, repo Repository, order *models.Order) error {
	tableID := deref(order.TableID)
	if tableID == "" {
		return nil
	}
	table, err := repo.FindTable(ctx, tableID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if deref(table.CurrentOrderID) != order.ID {
		return nil
	}
	return repo.SetTableOrder(ctx, tableID, nil)
}

func notFound(err error, message, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message).WithDetails(map[string]any{"id": id})
	}
	return err
}

func asTyped(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, action+" failed")
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
