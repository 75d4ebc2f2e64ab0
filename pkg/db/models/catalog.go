package models

import "github.com/angelmondragon/packfinderz-pos/pkg/enums"

// Catalog rows are written by the sync engines through the catalog registry; these
// structs are the typed read side used by the till.

type Item struct {
	ID             string  `gorm:"column:id;primaryKey"`
	CategoryID     *string `gorm:"column:category_id"`
	SubcategoryID  *string `gorm:"column:subcategory_id"`
	Name           string  `gorm:"column:name"`
	Description    *string `gorm:"column:description"`
	Price          float64 `gorm:"column:price"`
	ImageURL       *string `gorm:"column:image_url"`
	ImageLocalPath *string `gorm:"column:image_local_path"`
	Active         bool    `gorm:"column:active"`
	SortOrder      int     `gorm:"column:sort_order"`
	UpdatedAt      *string `gorm:"column:updated_at"`
}

func (Item) TableName() string { return "items" }

type ItemVariation struct {
	ID        string  `gorm:"column:id;primaryKey"`
	ItemID    *string `gorm:"column:item_id"`
	Name      string  `gorm:"column:name"`
	Price     float64 `gorm:"column:price"`
	Active    bool    `gorm:"column:active"`
	UpdatedAt *string `gorm:"column:updated_at"`
}

func (ItemVariation) TableName() string { return "item_variations" }

type Addon struct {
	ID        string  `gorm:"column:id;primaryKey"`
	GroupID   *string `gorm:"column:group_id"`
	Name      string  `gorm:"column:name"`
	Price     float64 `gorm:"column:price"`
	Active    bool    `gorm:"column:active"`
	UpdatedAt *string `gorm:"column:updated_at"`
}

func (Addon) TableName() string { return "addons" }

type Promo struct {
	ID          string          `gorm:"column:id;primaryKey"`
	Code        string          `gorm:"column:code"`
	Type        enums.PromoType `gorm:"column:type"`
	Value       float64         `gorm:"column:value"`
	MinTotal    float64         `gorm:"column:min_total"`
	MaxDiscount *float64        `gorm:"column:max_discount"`
	StartAt     *string         `gorm:"column:start_at"`
	EndAt       *string         `gorm:"column:end_at"`
	Active      bool            `gorm:"column:active"`
	UpdatedAt   *string         `gorm:"column:updated_at"`
}

func (Promo) TableName() string { return "promos" }

type PromoExclusion struct {
	PromoID string `gorm:"column:promo_id;primaryKey"`
	ItemID  string `gorm:"column:item_id;primaryKey"`
}

func (PromoExclusion) TableName() string { return "promo_exclusions" }

type City struct {
	ID          string  `gorm:"column:id;primaryKey"`
	StateID     *string `gorm:"column:state_id"`
	Name        string  `gorm:"column:name"`
	DeliveryFee float64 `gorm:"column:delivery_fee"`
	Active      bool    `gorm:"column:active"`
	UpdatedAt   *string `gorm:"column:updated_at"`
}

func (City) TableName() string { return "cities" }

type Table struct {
	ID             string  `gorm:"column:id;primaryKey"`
	Name           string  `gorm:"column:name"`
	Seats          int     `gorm:"column:seats"`
	Active         bool    `gorm:"column:active"`
	CurrentOrderID *string `gorm:"column:current_order_id"`
	UpdatedAt      *string `gorm:"column:updated_at"`
}

func (Table) TableName() string { return "tables" }

type PaymentMethod struct {
	ID        string  `gorm:"column:id;primaryKey"`
	Name      string  `gorm:"column:name"`
	Type      string  `gorm:"column:type"`
	Active    bool    `gorm:"column:active"`
	UpdatedAt *string `gorm:"column:updated_at"`
}

func (PaymentMethod) TableName() string { return "payment_methods" }

type Setting struct {
	Key       string  `gorm:"column:key;primaryKey"`
	Value     string  `gorm:"column:value"`
	UpdatedAt *string `gorm:"column:updated_at"`
}

func (Setting) TableName() string { return "settings" }

type User struct {
	ID        string         `gorm:"column:id;primaryKey"`
	Name      string         `gorm:"column:name"`
	Role      enums.UserRole `gorm:"column:role"`
	Active    bool           `gorm:"column:active"`
	UpdatedAt *string        `gorm:"column:updated_at"`
}

func (User) TableName() string { return "users" }
