package numbering

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// UniqueIndex is created by Normalize once duplicates are gone.
const UniqueIndex = "ux_orders_number"

// Relabel is one order renamed because another write claimed its number.
type Relabel struct {
	OrderID string
	From    string
	To      string
}

// Claim makes number available to orderID inside tx. Any other order already
// holding it is renamed to DUP-<number>-<hex>; the claiming write always wins.
func Claim(ctx context.Context, tx *gorm.DB, orderID, number string) ([]Relabel, error) {
	var holders []string
	err := tx.WithContext(ctx).Table("orders").
		Where("number = ? AND id <> ?", number, orderID).
		Pluck("id", &holders).Error
	if err != nil {
		return nil, fmt.Errorf("find number holders: %w", err)
	}
	return relabel(ctx, tx, number, holders)
}

// Normalize renames every duplicate number except the earliest created holder and
// then installs the unique index. Safe to run on every start.
func Normalize(ctx context.Context, db *gorm.DB) ([]Relabel, error) {
	var all []Relabel
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dupes []string
		if err := tx.Table("orders").
			Select("number").
			Group("number").
			Having("COUNT(*) > 1").
			Pluck("number", &dupes).Error; err != nil {
			return fmt.Errorf("find duplicate numbers: %w", err)
		}

		for _, number := range dupes {
			var ids []string
			if err := tx.Table("orders").
				Where("number = ?", number).
				Order("created_at ASC, id ASC").
				Pluck("id", &ids).Error; err != nil {
				return err
			}
			if len(ids) < 2 {
				continue
			}
			renamed, err := relabel(ctx, tx, number, ids[1:])
			if err != nil {
				return err
			}
			all = append(all, renamed...)
		}

		return tx.Exec("CREATE UNIQUE INDEX IF NOT EXISTS " + UniqueIndex + " ON orders(number)").Error
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

func relabel(ctx context.Context, tx *gorm.DB, number string, ids []string) ([]Relabel, error) {
	out := make([]Relabel, 0, len(ids))
	now := time.Now().UnixMilli()
	for _, id := range ids {
		salt, err := randomHex(3)
		if err != nil {
			return nil, err
		}
		to := fmt.Sprintf("DUP-%s-%s", number, salt)
		err = tx.WithContext(ctx).Table("orders").
			Where("id = ?", id).
			Updates(map[string]any{"number": to, "updated_at": now}).Error
		if err != nil {
			return nil, fmt.Errorf("relabel order %s: %w", id, err)
		}
		out = append(out, Relabel{OrderID: id, From: number, To: to})
	}
	return out, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate relabel salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
