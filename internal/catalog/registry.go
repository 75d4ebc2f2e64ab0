// Package catalog maps server table names onto local catalog tables and
// applies upserts and deletes to them generically.
package catalog

import (
	"fmt"
	"sync"
)

// TableSpec describes one synced table. Columns lists what the server may
// write; anything else on the local row (cached image paths, table occupancy)
// is never touched by a sync. Defaults holds the value written when the server
// sends null for a NOT NULL column.
type TableSpec struct {
	Name     string
	Keys     []string
	Columns  []string
	Defaults map[string]any
}

// valueFor substitutes the column default for a null value.
func (s TableSpec) valueFor(col string, v any) any {
	if v != nil {
		return v
	}
	if d, ok := s.Defaults[col]; ok {
		return d
	}
	return nil
}

func (s TableSpec) hasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

func (s TableSpec) isKey(name string) bool {
	for _, k := range s.Keys {
		if k == name {
			return true
		}
	}
	return false
}

type Registry struct {
	mtx   sync.RWMutex
	specs map[string]TableSpec
	order []string
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]TableSpec)}
}

// Register adds or replaces a table. Keys must be a subset of Columns.
func (r *Registry) Register(spec TableSpec) error {
	if spec.Name == "" || len(spec.Keys) == 0 {
		return fmt.Errorf("table spec needs a name and at least one key")
	}
	for _, k := range spec.Keys {
		if !spec.hasColumn(k) {
			return fmt.Errorf("%s: key %q is not a column", spec.Name, k)
		}
	}
	for col := range spec.Defaults {
		if !spec.hasColumn(col) {
			return fmt.Errorf("%s: default for %q which is not a column", spec.Name, col)
		}
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, ok := r.specs[spec.Name]; !ok {
		r.order = append(r.order, spec.Name)
	}
	r.specs[spec.Name] = spec
	return nil
}

func (r *Registry) Lookup(name string) (TableSpec, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// Tables returns table names in registration order.
func (r *Registry) Tables() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// DefaultRegistry covers every catalog table of the local schema.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, spec := range defaultSpecs {
		if err := r.Register(spec); err != nil {
			panic(err)
		}
	}
	return r
}

var (
	named    = map[string]any{"name": ""}
	listed   = map[string]any{"name": "", "active": 1, "sort_order": 0}
	priced   = map[string]any{"name": "", "price": 0, "active": 1, "sort_order": 0}
	switched = map[string]any{"name": "", "active": 1}
)

func with(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

var defaultSpecs = []TableSpec{
	{Name: "categories", Keys: []string{"id"}, Columns: []string{"id", "name", "sort_order", "active", "updated_at"}, Defaults: listed},
	{Name: "subcategories", Keys: []string{"id"}, Columns: []string{"id", "category_id", "name", "sort_order", "active", "updated_at"}, Defaults: listed},
	{Name: "items", Keys: []string{"id"}, Columns: []string{"id", "category_id", "subcategory_id", "name", "description", "price", "image_url", "active", "sort_order", "updated_at"}, Defaults: priced},
	{Name: "item_variations", Keys: []string{"id"}, Columns: []string{"id", "item_id", "name", "price", "active", "sort_order", "updated_at"}, Defaults: priced},
	{Name: "addon_groups", Keys: []string{"id"}, Columns: []string{"id", "name", "min_select", "max_select", "updated_at"}, Defaults: with(named, map[string]any{"min_select": 0, "max_select": 0})},
	{Name: "addons", Keys: []string{"id"}, Columns: []string{"id", "group_id", "name", "price", "active", "updated_at"}, Defaults: with(switched, map[string]any{"price": 0})},
	{Name: "item_addon_groups", Keys: []string{"item_id", "group_id"}, Columns: []string{"item_id", "group_id", "sort_order", "updated_at"}, Defaults: map[string]any{"sort_order": 0}},
	{Name: "promos", Keys: []string{"id"}, Columns: []string{"id", "code", "type", "value", "min_total", "max_discount", "start_at", "end_at", "active", "updated_at"}, Defaults: map[string]any{"code": "", "type": "percent", "value": 0, "min_total": 0, "active": 1}},
	{Name: "promo_exclusions", Keys: []string{"promo_id", "item_id"}, Columns: []string{"promo_id", "item_id", "updated_at"}},
	{Name: "payment_methods", Keys: []string{"id"}, Columns: []string{"id", "name", "type", "active", "sort_order", "updated_at"}, Defaults: with(listed, map[string]any{"type": ""})},
	{Name: "states", Keys: []string{"id"}, Columns: []string{"id", "name", "updated_at"}, Defaults: named},
	{Name: "cities", Keys: []string{"id"}, Columns: []string{"id", "state_id", "name", "delivery_fee", "active", "updated_at"}, Defaults: with(switched, map[string]any{"delivery_fee": 0})},
	{Name: "blocks", Keys: []string{"id"}, Columns: []string{"id", "city_id", "name", "updated_at"}, Defaults: named},
	{Name: "tables", Keys: []string{"id"}, Columns: []string{"id", "name", "seats", "active", "updated_at"}, Defaults: with(switched, map[string]any{"seats": 0})},
	{Name: "settings", Keys: []string{"key"}, Columns: []string{"key", "value", "updated_at"}, Defaults: map[string]any{"value": ""}},
	{Name: "users", Keys: []string{"id"}, Columns: []string{"id", "name", "role", "active", "updated_at"}, Defaults: with(switched, map[string]any{"role": "cashier"})},
}
