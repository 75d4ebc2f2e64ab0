package devserver

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/angelmondragon/packfinderz-pos/internal/bootstrap"
	"github.com/angelmondragon/packfinderz-pos/internal/catalog"
	"github.com/angelmondragon/packfinderz-pos/internal/syncer"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"github.com/angelmondragon/packfinderz-pos/pkg/pagination"
)

// Device is a registered terminal.
type Device struct {
	ID        string `json:"id"`
	BranchID  string `json:"branch_id"`
	Name      string `json:"name"`
	MachineID string `json:"machine_id"`
}

// ReceivedOrder is an order as last pushed by a device.
type ReceivedOrder struct {
	DeviceID string
	BranchID string
	Order    syncer.OrderEnvelope
}

type loggedChange struct {
	seq    int64
	change catalog.Change
}

// state is the in-memory server database. Catalog rows and the change log are
// shared across branches.
type state struct {
	mtx      sync.Mutex
	registry *catalog.Registry
	rows     map[string]map[string]catalog.Row
	seeded   []map[string]any
	log      []loggedChange
	seq      int64
	devices  map[string]Device
	orders   map[string]ReceivedOrder
	pushes   int
}

func newState(seed *Seed, registry *catalog.Registry) (*state, error) {
	s := &state{
		registry: registry,
		rows:     map[string]map[string]catalog.Row{},
		seeded:   seed.OrdersSeed,
		devices:  map[string]Device{},
		orders:   map[string]ReceivedOrder{},
	}
	for table, rows := range seed.Catalog {
		for i, row := range rows {
			if _, err := s.put(table, catalog.Row(row)); err != nil {
				return nil, fmt.Errorf("seed %s[%d]: %w", table, i, err)
			}
		}
	}
	return s, nil
}

func (s *state) keys(table string) []string {
	if spec, ok := s.registry.Lookup(table); ok {
		return spec.Keys
	}
	return []string{"id"}
}

func (s *state) keyOf(table string, row map[string]any) (map[string]any, string, error) {
	keys := s.keys(table)
	pk := make(map[string]any, len(keys))
	parts := make([]string, len(keys))
	for i, k := range keys {
		v, ok := row[k]
		if !ok || v == nil || fmt.Sprint(v) == "" {
			return nil, "", fmt.Errorf("missing key %q", k)
		}
		pk[k] = v
		parts[i] = fmt.Sprint(v)
	}
	return pk, strings.Join(parts, "\x1f"), nil
}

func (s *state) put(table string, row catalog.Row) (map[string]any, error) {
	pk, id, err := s.keyOf(table, row)
	if err != nil {
		return nil, err
	}
	if s.rows[table] == nil {
		s.rows[table] = map[string]catalog.Row{}
	}
	s.rows[table][id] = row
	return pk, nil
}

// publish applies a change to the catalog and appends it to the log.
func (s *state) publish(change catalog.Change) (int64, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if change.Table == "" {
		return 0, fmt.Errorf("change without table")
	}
	var (
		pk  map[string]any
		err error
	)
	switch change.Op {
	case enums.ChangeOpUpsert:
		if change.Data == nil {
			return 0, fmt.Errorf("%s: upsert without data", change.Table)
		}
		if pk, err = s.put(change.Table, change.Data); err != nil {
			return 0, fmt.Errorf("%s: %w", change.Table, err)
		}
	case enums.ChangeOpDelete:
		source := map[string]any(change.Data)
		if len(change.Key) > 0 {
			var key map[string]any
			if err := json.Unmarshal(change.Key, &key); err != nil {
				return 0, fmt.Errorf("%s: delete key must be an object: %w", change.Table, err)
			}
			source = key
		}
		var id string
		if pk, id, err = s.keyOf(change.Table, source); err != nil {
			return 0, fmt.Errorf("%s: %w", change.Table, err)
		}
		delete(s.rows[change.Table], id)
	default:
		return 0, fmt.Errorf("%s: unsupported op %q", change.Table, change.Op)
	}

	rawKey, err := json.Marshal(pk)
	if err != nil {
		return 0, err
	}
	change.Key = rawKey
	s.seq++
	s.log = append(s.log, loggedChange{seq: s.seq, change: change})
	return s.seq, nil
}

// changesSince returns up to limit changes after cursor, the cursor to resume
// from and whether more remain.
func (s *state) changesSince(cursor string, limit int) ([]catalog.Change, string, bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var after int64
	if c := strings.TrimSpace(cursor); c != "" {
		n, err := strconv.ParseInt(c, 10, 64)
		if err != nil || n < 0 {
			return nil, "", false, fmt.Errorf("invalid cursor %q", cursor)
		}
		after = n
	}

	idx := sort.Search(len(s.log), func(i int) bool { return s.log[i].seq > after })
	pending, hasMore := pagination.Trim(s.log[idx:], limit)
	changes := make([]catalog.Change, len(pending))
	next := after
	for i, entry := range pending {
		changes[i] = entry.change
		next = entry.seq
	}
	return changes, strconv.FormatInt(next, 10), hasMore, nil
}

// snapshot renders every catalog table plus the branch's recent orders.
func (s *state) snapshot(branchID string, orderLimit int) (map[string]json.RawMessage, string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	out := make(map[string]json.RawMessage, len(s.rows)+1)
	for table, rows := range s.rows {
		ids := make([]string, 0, len(rows))
		for id := range rows {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		list := make([]catalog.Row, 0, len(ids))
		for _, id := range ids {
			list = append(list, rows[id])
		}
		raw, err := json.Marshal(list)
		if err != nil {
			return nil, "", fmt.Errorf("encode %s: %w", table, err)
		}
		out[table] = raw
	}

	raw, err := json.Marshal(s.recentOrders(branchID, orderLimit))
	if err != nil {
		return nil, "", fmt.Errorf("encode %s: %w", bootstrap.OrdersSeedKey, err)
	}
	out[bootstrap.OrdersSeedKey] = raw
	return out, strconv.FormatInt(s.seq, 10), nil
}

// recentOrders lists the branch's pushed orders newest first, followed by the
// static seed orders.
func (s *state) recentOrders(branchID string, limit int) []map[string]any {
	received := make([]ReceivedOrder, 0, len(s.orders))
	for _, o := range s.orders {
		if o.BranchID == branchID {
			received = append(received, o)
		}
	}
	sort.Slice(received, func(i, j int) bool {
		if received[i].Order.CreatedAt != received[j].Order.CreatedAt {
			return received[i].Order.CreatedAt > received[j].Order.CreatedAt
		}
		return received[i].Order.ID < received[j].Order.ID
	})

	out := make([]map[string]any, 0, len(received)+len(s.seeded))
	for _, o := range received {
		out = append(out, seedRow(o.Order))
	}
	out = append(out, s.seeded...)
	out, _ = pagination.Trim(out, limit)
	return out
}

func seedRow(o syncer.OrderEnvelope) map[string]any {
	row := map[string]any{
		"id":              o.ID,
		"number":          o.Number,
		"status":          o.Status,
		"order_type":      o.OrderType,
		"subtotal":        o.Totals.Subtotal,
		"discount_amount": o.Totals.DiscountAmount,
		"delivery_fee":    o.Totals.DeliveryFee,
		"grand_total":     o.Totals.GrandTotal,
		"created_at":      o.CreatedAt,
		"completed_at":    o.CompletedAt,
	}
	if o.Customer != nil {
		row["customer_name"] = o.Customer.Name
		row["customer_phone"] = o.Customer.Phone
	}
	if o.Address != nil {
		row["state_id"] = o.Address.StateID
		row["city_id"] = o.Address.CityID
		row["block_id"] = o.Address.BlockID
		row["address_line"] = o.Address.Line
		row["address_notes"] = o.Address.Notes
	}
	return row
}

func (s *state) addDevice(d Device) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.devices[d.ID] = d
}

func (s *state) device(id string) (Device, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	d, ok := s.devices[id]
	return d, ok
}

// receive stores pushed orders. A resent order replaces the stored copy only
// when it is at least as recent.
func (s *state) receive(deviceID, branchID string, orders []syncer.OrderEnvelope) []string {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	accepted := make([]string, 0, len(orders))
	for _, o := range orders {
		if prev, ok := s.orders[o.ID]; !ok || prev.Order.UpdatedAt <= o.UpdatedAt {
			s.orders[o.ID] = ReceivedOrder{DeviceID: deviceID, BranchID: branchID, Order: o}
		}
		accepted = append(accepted, o.ID)
	}
	s.pushes++
	return accepted
}
