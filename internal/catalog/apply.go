package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"gorm.io/gorm"
)

// Row is one record as decoded from a sync payload.
type Row map[string]any

// Change is a pulled change record. Delete carries Key (a scalar for single-key
// tables or an object for composite keys); upsert carries Data.
type Change struct {
	Table string          `json:"table"`
	Op    enums.ChangeOp  `json:"op"`
	Key   json.RawMessage `json:"pk,omitempty"`
	Data  Row             `json:"data,omitempty"`
}

// Applier writes rows through a Registry. It holds no connection; callers pass
// the transaction the writes belong to.
type Applier struct {
	registry *Registry
}

func NewApplier(registry *Registry) *Applier {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Applier{registry: registry}
}

func (a *Applier) Registry() *Registry {
	return a.registry
}

// Upsert inserts or updates one row. Fields outside the table's synced columns
// are dropped. The bool is false when the table is unknown.
func (a *Applier) Upsert(ctx context.Context, tx *gorm.DB, table string, row Row) (bool, error) {
	spec, ok := a.registry.Lookup(table)
	if !ok {
		return false, nil
	}
	cols := make([]string, 0, len(row))
	for col := range row {
		if spec.hasColumn(col) {
			cols = append(cols, col)
		}
	}
	for _, k := range spec.Keys {
		v, present := row[k]
		if !present || v == nil || v == "" {
			return true, fmt.Errorf("%s: row missing key %q", table, k)
		}
	}
	sort.Strings(cols)

	args := make([]any, 0, len(cols))
	quoted := make([]string, 0, len(cols))
	updates := make([]string, 0, len(cols))
	for _, col := range cols {
		raw := spec.valueFor(col, row[col])
		if spec.isKey(col) || col == "id" || strings.HasSuffix(col, "_id") {
			raw = scalar(raw)
		}
		v, err := sqlValue(raw)
		if err != nil {
			return true, fmt.Errorf("%s.%s: %w", table, col, err)
		}
		args = append(args, v)
		quoted = append(quoted, quote(col))
		if !spec.isKey(col) {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", quote(col), quote(col)))
		}
	}

	keyCols := make([]string, len(spec.Keys))
	for i, k := range spec.Keys {
		keyCols[i] = quote(k)
	}
	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		quote(spec.Name),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
		strings.Join(keyCols, ", "),
		conflict,
	)
	if err := tx.WithContext(ctx).Exec(stmt, args...).Error; err != nil {
		return true, fmt.Errorf("upsert %s: %w", table, err)
	}
	return true, nil
}

// UpsertAll applies rows to one table in order.
func (a *Applier) UpsertAll(ctx context.Context, tx *gorm.DB, table string, rows []Row) (int, error) {
	applied := 0
	for _, row := range rows {
		ok, err := a.Upsert(ctx, tx, table, row)
		if err != nil {
			return applied, err
		}
		if !ok {
			return 0, nil
		}
		applied++
	}
	return applied, nil
}

// Delete removes the row matching key. A scalar key is accepted only for
// single-key tables; composite tables need every key column.
func (a *Applier) Delete(ctx context.Context, tx *gorm.DB, table string, key json.RawMessage) (bool, error) {
	spec, ok := a.registry.Lookup(table)
	if !ok {
		return false, nil
	}
	values, err := keyValues(spec, key)
	if err != nil {
		return true, fmt.Errorf("%s: %w", table, err)
	}

	where := make([]string, len(spec.Keys))
	args := make([]any, len(spec.Keys))
	for i, k := range spec.Keys {
		where[i] = quote(k) + " = ?"
		args[i] = values[k]
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", quote(spec.Name), strings.Join(where, " AND "))
	if err := tx.WithContext(ctx).Exec(stmt, args...).Error; err != nil {
		return true, fmt.Errorf("delete %s: %w", table, err)
	}
	return true, nil
}

// Apply routes a change record. Unknown tables report false without error.
func (a *Applier) Apply(ctx context.Context, tx *gorm.DB, change Change) (bool, error) {
	switch change.Op {
	case enums.ChangeOpUpsert:
		if change.Data == nil {
			return false, fmt.Errorf("%s: upsert without data", change.Table)
		}
		return a.Upsert(ctx, tx, change.Table, change.Data)
	case enums.ChangeOpDelete:
		key := change.Key
		if len(key) == 0 && change.Data != nil {
			raw, err := json.Marshal(change.Data)
			if err != nil {
				return false, err
			}
			key = raw
		}
		return a.Delete(ctx, tx, change.Table, key)
	}
	if _, known := a.registry.Lookup(change.Table); !known {
		return false, nil
	}
	return false, fmt.Errorf("%s: unsupported op %q", change.Table, change.Op)
}

func keyValues(spec TableSpec, raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("delete without key")
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		out := make(map[string]any, len(spec.Keys))
		for _, k := range spec.Keys {
			v, ok := obj[k]
			if !ok || v == nil {
				return nil, fmt.Errorf("delete key missing %q", k)
			}
			out[k] = scalar(v)
		}
		return out, nil
	}
	if len(spec.Keys) != 1 {
		return nil, fmt.Errorf("composite key needs an object with %s", strings.Join(spec.Keys, ", "))
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if v == nil {
		return nil, fmt.Errorf("delete without key")
	}
	return map[string]any{spec.Keys[0]: scalar(v)}, nil
}

// scalar renders whole-number JSON ids without a decimal point so they match
// ids stored as text.
func scalar(v any) any {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return v
}

func sqlValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, float64, int, int64, bool:
		return t, nil
	case json.Number:
		return t.String(), nil
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	}
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Cursor is the opaque sync position. Servers may send it as a string or a
// number; both are kept as text.
type Cursor string

func (c *Cursor) UnmarshalJSON(raw []byte) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		*c = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*c = Cursor(s)
		return nil
	}
	*c = Cursor(trimmed)
	return nil
}
