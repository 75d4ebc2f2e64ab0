package syncer

import (
	"sort"
	"strconv"
	"strings"

	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/google/uuid"
)

// EnvelopeVersion is bumped when the push wire shape changes.
const EnvelopeVersion = 1

var pushNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:pos:outbox:push"))

// Envelope wraps a push batch with its idempotency token.
type Envelope struct {
	Version     int    `json:"version"`
	ClientMsgID string `json:"client_msg_id"`
	DeviceID    string `json:"device_id"`
	BranchID    string `json:"branch_id,omitempty"`
}

type PushRequest struct {
	Envelope Envelope          `json:"envelope"`
	Orders   []OrderEnvelope   `json:"orders"`
	Payments []PaymentEnvelope `json:"payments,omitempty"`
}

// PushAck is the server acknowledgement. An empty Accepted list acknowledges
// every order in the batch.
type PushAck struct {
	OK        bool     `json:"ok"`
	Accepted  []string `json:"accepted,omitempty"`
	Duplicate bool     `json:"duplicate,omitempty"`
}

type CustomerRef struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type AddressRef struct {
	StateID string `json:"state_id,omitempty"`
	CityID  string `json:"city_id,omitempty"`
	BlockID string `json:"block_id,omitempty"`
	Line    string `json:"line,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

type PaymentRef struct {
	MethodID  string `json:"method_id,omitempty"`
	Reference string `json:"reference,omitempty"`
}

type TotalsRef struct {
	Subtotal              float64 `json:"subtotal"`
	DiscountAmount        float64 `json:"discount_amount"`
	ManualDiscountAmount  float64 `json:"manual_discount_amount,omitempty"`
	ManualDiscountPercent float64 `json:"manual_discount_percent,omitempty"`
	DeliveryFee           float64 `json:"delivery_fee"`
	VoidDeliveryFee       bool    `json:"void_delivery_fee"`
	TaxTotal              float64 `json:"tax_total"`
	GrandTotal            float64 `json:"grand_total"`
}

type AuditRef struct {
	CreatedBy   string `json:"created_by,omitempty"`
	CompletedBy string `json:"completed_by,omitempty"`
	PrintedBy   string `json:"printed_by,omitempty"`
}

type AddonRef struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type LineEnvelope struct {
	ID          string     `json:"id"`
	ItemID      string     `json:"item_id,omitempty"`
	VariationID string     `json:"variation_id,omitempty"`
	Name        string     `json:"name"`
	UnitPrice   float64    `json:"unit_price"`
	Qty         int        `json:"qty"`
	Addons      []AddonRef `json:"addons,omitempty"`
	LineTotal   float64    `json:"line_total"`
	Notes       string     `json:"notes,omitempty"`
}

type OrderEnvelope struct {
	ID          string         `json:"id"`
	Number      string         `json:"number"`
	Status      string         `json:"status"`
	OrderType   string         `json:"order_type"`
	Promocode   string         `json:"promocode,omitempty"`
	TableID     string         `json:"table_id,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	Customer    *CustomerRef   `json:"customer,omitempty"`
	Address     *AddressRef    `json:"address,omitempty"`
	Payment     *PaymentRef    `json:"payment,omitempty"`
	Totals      TotalsRef      `json:"totals"`
	Lines       []LineEnvelope `json:"lines"`
	Audit       AuditRef       `json:"audit"`
	CreatedAt   int64          `json:"created_at"`
	UpdatedAt   int64          `json:"updated_at"`
	CompletedAt int64          `json:"completed_at,omitempty"`
}

type PaymentEnvelope struct {
	OrderID   string  `json:"order_id"`
	MethodID  string  `json:"method_id"`
	Amount    float64 `json:"amount"`
	Reference string  `json:"reference,omitempty"`
}

// ClientMsgID derives the batch token from the device and each order's id,
// updated_at and status, so resending an unchanged batch reuses the token.
func ClientMsgID(deviceID string, orders []models.Order) string {
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		parts = append(parts, o.ID+":"+strconv.FormatInt(o.UpdatedAt, 10)+":"+string(o.Status))
	}
	sort.Strings(parts)
	name := deviceID + "\n" + strings.Join(parts, "\n")
	return uuid.NewSHA1(pushNamespace, []byte(name)).String()
}

// NewOrderEnvelope converts a stored order into its wire shape.
func NewOrderEnvelope(o models.Order) OrderEnvelope {
	env := OrderEnvelope{
		ID:        o.ID,
		Number:    o.Number,
		Status:    string(o.Status),
		OrderType: string(o.OrderType),
		Promocode: deref(o.Promocode),
		TableID:   deref(o.TableID),
		Notes:     deref(o.Notes),
		Totals: TotalsRef{
			Subtotal:              o.Subtotal,
			DiscountAmount:        o.DiscountAmount,
			ManualDiscountAmount:  o.ManualDiscountAmount,
			ManualDiscountPercent: o.ManualDiscountPercent,
			DeliveryFee:           o.DeliveryFee,
			VoidDeliveryFee:       o.VoidDeliveryFee,
			TaxTotal:              o.TaxTotal,
			GrandTotal:            o.GrandTotal,
		},
		Audit: AuditRef{
			CreatedBy:   deref(o.CreatedByUserID),
			CompletedBy: deref(o.CompletedByUserID),
			PrintedBy:   deref(o.PrintedByUserID),
		},
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
		Lines:     make([]LineEnvelope, 0, len(o.Lines)),
	}
	if o.CompletedAt != nil {
		env.CompletedAt = *o.CompletedAt
	}
	if o.CustomerName != nil || o.CustomerPhone != nil {
		env.Customer = &CustomerRef{Name: deref(o.CustomerName), Phone: deref(o.CustomerPhone)}
	}
	if o.CityID != nil || o.AddressLine != nil {
		env.Address = &AddressRef{
			StateID: deref(o.StateID),
			CityID:  deref(o.CityID),
			BlockID: deref(o.BlockID),
			Line:    deref(o.AddressLine),
			Notes:   deref(o.AddressNotes),
		}
	}
	if o.PaymentMethodID != nil {
		env.Payment = &PaymentRef{MethodID: *o.PaymentMethodID, Reference: deref(o.PaymentRef)}
	}
	for _, l := range o.Lines {
		line := LineEnvelope{
			ID:          l.ID,
			ItemID:      deref(l.ItemID),
			VariationID: deref(l.VariationID),
			Name:        l.Name,
			UnitPrice:   l.UnitPrice,
			Qty:         l.Qty,
			LineTotal:   l.LineTotal,
			Notes:       deref(l.Notes),
		}
		for i, id := range l.AddonIDs {
			addon := AddonRef{ID: id}
			if i < len(l.AddonNames) {
				addon.Name = l.AddonNames[i]
			}
			if i < len(l.AddonPrices) {
				addon.Price = l.AddonPrices[i]
			}
			line.Addons = append(line.Addons, addon)
		}
		env.Lines = append(env.Lines, line)
	}
	return env
}

// NewPushRequest builds the batch body for the given orders.
func NewPushRequest(deviceID, branchID string, orders []models.Order) PushRequest {
	req := PushRequest{
		Envelope: Envelope{
			Version:     EnvelopeVersion,
			ClientMsgID: ClientMsgID(deviceID, orders),
			DeviceID:    deviceID,
			BranchID:    branchID,
		},
		Orders: make([]OrderEnvelope, 0, len(orders)),
	}
	for _, o := range orders {
		req.Orders = append(req.Orders, NewOrderEnvelope(o))
		if o.PaymentMethodID != nil {
			req.Payments = append(req.Payments, PaymentEnvelope{
				OrderID:   o.ID,
				MethodID:  *o.PaymentMethodID,
				Amount:    o.GrandTotal,
				Reference: deref(o.PaymentRef),
			})
		}
	}
	return req
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
