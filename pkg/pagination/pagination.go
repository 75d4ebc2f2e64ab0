package pagination

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 50
	// MaxLimit caps how many rows any list query can request.
	MaxLimit = 500
)

// Bounds clamps caller supplied page sizes for one kind of listing.
type Bounds struct {
	Default int
	Max     int
}

// Normalize enforces the default and maximum limits.
func (b Bounds) Normalize(limit int) int {
	if limit <= 0 {
		return b.Default
	}
	if b.Max > 0 && limit > b.Max {
		return b.Max
	}
	return limit
}

// WithBuffer returns the normalized limit plus one to detect the next page.
func (b Bounds) WithBuffer(limit int) int {
	return b.Normalize(limit) + 1
}

var defaultBounds = Bounds{Default: DefaultLimit, Max: MaxLimit}

// NormalizeLimit applies the package defaults.
func NormalizeLimit(limit int) int {
	return defaultBounds.Normalize(limit)
}

// LimitWithBuffer returns the normalization result plus one to detect the next page.
func LimitWithBuffer(limit int) int {
	return defaultBounds.WithBuffer(limit)
}

// Trim cuts items fetched with a buffer down to limit and reports whether
// more remain. A non-positive limit keeps everything.
func Trim[T any](items []T, limit int) ([]T, bool) {
	if limit <= 0 || len(items) <= limit {
		return items, false
	}
	return items[:limit], true
}
