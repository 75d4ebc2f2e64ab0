package enums

import "fmt"

// OrderStatus tracks an order through the till and kitchen.
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusPrepared  OrderStatus = "prepared"
	OrderStatusClosed    OrderStatus = "closed"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusDraft,
	OrderStatusOpen,
	OrderStatusPending,
	OrderStatusReady,
	OrderStatusPrepared,
	OrderStatusClosed,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (v OrderStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known OrderStatus.
func (v OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into a OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// IsTerminal reports whether the order no longer accepts till edits.
func (v OrderStatus) IsTerminal() bool {
	return v == OrderStatusCompleted || v == OrderStatusCancelled
}

var kitchenFlow = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:    {OrderStatusOpen, OrderStatusPending},
	OrderStatusOpen:     {OrderStatusPending, OrderStatusReady, OrderStatusPrepared, OrderStatusClosed},
	OrderStatusPending:  {OrderStatusReady, OrderStatusPrepared, OrderStatusClosed},
	OrderStatusReady:    {OrderStatusPrepared, OrderStatusClosed},
	OrderStatusPrepared: {OrderStatusClosed},
}

// CanAdvanceTo reports whether the kitchen flow allows moving from v to next.
// Completion and cancellation have their own operations and are not part of the flow.
func (v OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	for _, candidate := range kitchenFlow[v] {
		if candidate == next {
			return true
		}
	}
	return false
}
