package enums

import "fmt"

// OrderType describes how the order leaves the branch.
type OrderType string

const (
	OrderTypeDelivery OrderType = "delivery"
	OrderTypePickup   OrderType = "pickup"
	OrderTypeDineIn   OrderType = "dine_in"
)

var validOrderTypes = []OrderType{
	OrderTypeDelivery,
	OrderTypePickup,
	OrderTypeDineIn,
}

// String implements fmt.Stringer.
func (v OrderType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known OrderType.
func (v OrderType) IsValid() bool {
	for _, candidate := range validOrderTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseOrderType converts raw input into a OrderType.
func ParseOrderType(value string) (OrderType, error) {
	if value == "dine-in" {
		return OrderTypeDineIn, nil
	}
	for _, candidate := range validOrderTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order type %q", value)
}
