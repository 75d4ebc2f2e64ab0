package enums

import "fmt"

// PromoType selects how a promo value is interpreted.
type PromoType string

const (
	PromoTypePercent PromoType = "percent"
	PromoTypeFlat    PromoType = "flat"
)

var validPromoTypes = []PromoType{
	PromoTypePercent,
	PromoTypeFlat,
}

// String implements fmt.Stringer.
func (v PromoType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known PromoType.
func (v PromoType) IsValid() bool {
	for _, candidate := range validPromoTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePromoType converts raw input into a PromoType.
func ParsePromoType(value string) (PromoType, error) {
	for _, candidate := range validPromoTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid promo type %q", value)
}
