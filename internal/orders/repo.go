package orders

import (
	"context"
	"strings"

	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Lines").Create(order).Error
}

func (r *repository) FindOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, rowid ASC")
		}).
		Where("id = ?", id).
		Take(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateOrder(ctx context.Context, id string, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) CreateLine(ctx context.Context, line *models.OrderLine) error {
	return r.db.WithContext(ctx).Create(line).Error
}

func (r *repository) FindLine(ctx context.Context, orderID, lineID string) (*models.OrderLine, error) {
	var line models.OrderLine
	err := r.db.WithContext(ctx).
		Where("id = ? AND order_id = ?", lineID, orderID).
		Take(&line).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *repository) UpdateLine(ctx context.Context, lineID string, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.OrderLine{}).Where("id = ?", lineID).Updates(updates).Error
}

func (r *repository) DeleteLine(ctx context.Context, lineID string) error {
	return r.db.WithContext(ctx).Where("id = ?", lineID).Delete(&models.OrderLine{}).Error
}

func (r *repository) ListByStatus(ctx context.Context, statuses []enums.OrderStatus, limit int) ([]models.Order, error) {
	var orders []models.Order
	q := r.db.WithContext(ctx).Where("status IN ?", statuses).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) FindByPhone(ctx context.Context, phone string, limit int) ([]models.Order, error) {
	var orders []models.Order
	q := r.db.WithContext(ctx).
		Where("customer_phone = ?", strings.TrimSpace(phone)).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) FindItem(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindVariation(ctx context.Context, id string) (*models.ItemVariation, error) {
	var variation models.ItemVariation
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&variation).Error; err != nil {
		return nil, err
	}
	return &variation, nil
}

func (r *repository) FindAddons(ctx context.Context, ids []string) ([]models.Addon, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var addons []models.Addon
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&addons).Error; err != nil {
		return nil, err
	}
	return addons, nil
}

func (r *repository) FindPromoByCode(ctx context.Context, code string) (*models.Promo, error) {
	var promo models.Promo
	err := r.db.WithContext(ctx).
		Where("UPPER(code) = ?", strings.ToUpper(strings.TrimSpace(code))).
		Order("active DESC").
		Take(&promo).Error
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

func (r *repository) FindCity(ctx context.Context, id string) (*models.City, error) {
	var city models.City
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&city).Error; err != nil {
		return nil, err
	}
	return &city, nil
}

func (r *repository) FindTable(ctx context.Context, id string) (*models.Table, error) {
	var table models.Table
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&table).Error; err != nil {
		return nil, err
	}
	return &table, nil
}

func (r *repository) SetTableOrder(ctx context.Context, tableID string, orderID *string) error {
	return r.db.WithContext(ctx).Model(&models.Table{}).
		Where("id = ?", tableID).
		Update("current_order_id", orderID).Error
}
