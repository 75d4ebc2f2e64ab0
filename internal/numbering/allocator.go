package numbering

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"gorm.io/gorm"
)

const (
	maxAttempts = 6
	base36      = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// RandFunc returns a value in [0, n).
type RandFunc func(n int) int

// Allocator produces human-facing order numbers without a central counter.
type Allocator struct {
	style   enums.NumberStyle
	prefix  string
	rand    RandFunc
	now     func() time.Time
	counter atomic.Uint64
	logg    *logger.Logger
}

type AllocatorParams struct {
	Style  enums.NumberStyle
	Prefix string
	Rand   RandFunc
	Now    func() time.Time
	Logger *logger.Logger
}

func NewAllocator(params AllocatorParams) (*Allocator, error) {
	style := params.Style
	if style == "" {
		style = enums.NumberStyleShort
	}
	if !style.IsValid() {
		return nil, fmt.Errorf("unknown number style %q", style)
	}
	a := &Allocator{
		style:  style,
		prefix: strings.ToUpper(strings.TrimSpace(params.Prefix)),
		rand:   params.Rand,
		now:    params.Now,
		logg:   params.Logger,
	}
	if a.rand == nil {
		a.rand = rand.IntN
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// Allocate returns a number not held by any order visible through db. Collisions
// and lookup failures end in the fallback composite, so it never fails.
func (a *Allocator) Allocate(ctx context.Context, db *gorm.DB, deviceID string) string {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := a.candidate(deviceID)
		taken, err := Exists(ctx, db, candidate)
		if err != nil {
			a.logg.Warn(a.logg.WithField(ctx, "error", err.Error()), "order number lookup failed")
			break
		}
		if !taken {
			return candidate
		}
	}
	number := a.Fallback(deviceID)
	a.logg.Debug(a.logg.WithField(ctx, "number", number), "order number fallback used")
	return number
}

// Fallback builds prefix + base36(ms) + base36(counter) + device suffix. The
// counter is process-wide so two calls in the same millisecond still differ.
func (a *Allocator) Fallback(deviceID string) string {
	n := a.counter.Add(1)
	ms := a.now().UnixMilli()
	return a.prefix +
		strings.ToUpper(strconv.FormatInt(ms, 36)) +
		strings.ToUpper(strconv.FormatUint(n, 36)) +
		deviceSuffix(deviceID, 2)
}

func (a *Allocator) candidate(deviceID string) string {
	switch a.style {
	case enums.NumberStyleMini:
		return a.prefix + a.now().Format("060102") + deviceSuffix(deviceID, 2) + a.randomChars(2)
	default:
		return a.prefix + deviceSuffix(deviceID, 4) + a.randomChars(4)
	}
}

func (a *Allocator) randomChars(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(base36[a.rand(len(base36))])
	}
	return b.String()
}

// deviceSuffix keeps the last n alphanumerics of the device id, left padded with zeros.
func deviceSuffix(deviceID string, n int) string {
	var clean []byte
	for _, r := range strings.ToUpper(deviceID) {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') {
			clean = append(clean, byte(r))
		}
	}
	if len(clean) >= n {
		return string(clean[len(clean)-n:])
	}
	return strings.Repeat("0", n-len(clean)) + string(clean)
}

// Exists reports whether any order holds number.
func Exists(ctx context.Context, db *gorm.DB, number string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Table("orders").Where("number = ?", number).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
