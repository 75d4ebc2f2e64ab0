package orders

import (
	"context"

	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders, their lines and the
// catalog rows the till reads while ringing them up.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id string) (*models.Order, error)
	UpdateOrder(ctx context.Context, id string, updates map[string]any) error
	CreateLine(ctx context.Context, line *models.OrderLine) error
	FindLine(ctx context.Context, orderID, lineID string) (*models.OrderLine, error)
	UpdateLine(ctx context.Context, lineID string, updates map[string]any) error
	DeleteLine(ctx context.Context, lineID string) error
	ListByStatus(ctx context.Context, statuses []enums.OrderStatus, limit int) ([]models.Order, error)
	FindByPhone(ctx context.Context, phone string, limit int) ([]models.Order, error)

	FindItem(ctx context.Context, id string) (*models.Item, error)
	FindVariation(ctx context.Context, id string) (*models.ItemVariation, error)
	FindAddons(ctx context.Context, ids []string) ([]models.Addon, error)
	FindPromoByCode(ctx context.Context, code string) (*models.Promo, error)
	FindCity(ctx context.Context, id string) (*models.City, error)
	FindTable(ctx context.Context, id string) (*models.Table, error)
	SetTableOrder(ctx context.Context, tableID string, orderID *string) error
}
