package orders

import "github.com/angelmondragon/packfinderz-pos/pkg/enums"

// StartInput opens a new order on the till.
type StartInput struct {
	OrderType     enums.OrderType `json:"order_type" validate:"required"`
	TableID       string          `json:"table_id"`
	CustomerName  string          `json:"customer_name" validate:"max=120"`
	CustomerPhone string          `json:"customer_phone" validate:"max=40"`
	Notes         string          `json:"notes" validate:"max=500"`
}

// AddLineInput rings up an item. Without an ItemID the line is an open-price
// item and Name and UnitPrice are required.
type AddLineInput struct {
	OrderID     string   `json:"order_id" validate:"required"`
	ItemID      string   `json:"item_id"`
	VariationID string   `json:"variation_id"`
	AddonIDs    []string `json:"addon_ids"`
	Qty         int      `json:"qty" validate:"gt=0,lte=999"`
	Name        string   `json:"name" validate:"max=160"`
	UnitPrice   *float64 `json:"unit_price" validate:"omitempty,gte=0"`
	Notes       string   `json:"notes" validate:"max=500"`
}

type AddressInput struct {
	OrderID string `json:"order_id" validate:"required"`
	StateID string `json:"state_id"`
	CityID  string `json:"city_id"`
	BlockID string `json:"block_id"`
	Line    string `json:"address_line" validate:"max=300"`
	Notes   string `json:"address_notes" validate:"max=500"`
}

type CustomerInput struct {
	OrderID string `json:"order_id" validate:"required"`
	Name    string `json:"customer_name" validate:"max=120"`
	Phone   string `json:"customer_phone" validate:"max=40"`
}

type ManualDiscountInput struct {
	OrderID string  `json:"order_id" validate:"required"`
	Amount  float64 `json:"amount" validate:"gte=0"`
	Percent float64 `json:"percent" validate:"gte=0,lte=100"`
}

type CompleteInput struct {
	OrderID         string `json:"order_id" validate:"required"`
	PaymentMethodID string `json:"payment_method_id"`
	PaymentRef      string `json:"payment_ref" validate:"max=120"`
}

// completionCheck holds the fields an order must carry before it can be completed.
type completionCheck struct {
	OrderType     enums.OrderType `json:"order_type"`
	Lines         int             `json:"lines" validate:"gt=0"`
	CustomerName  string          `json:"customer_name" validate:"required_if=OrderType delivery"`
	CustomerPhone string          `json:"customer_phone" validate:"required_if=OrderType delivery"`
	CityID        string          `json:"city_id" validate:"required_if=OrderType delivery"`
	AddressLine   string          `json:"address_line" validate:"required_if=OrderType delivery"`
	TableID       string          `json:"table_id" validate:"required_if=OrderType dine_in"`
}
