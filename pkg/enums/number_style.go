package enums

import "fmt"

// NumberStyle selects the human-facing order number layout.
type NumberStyle string

const (
	NumberStyleShort NumberStyle = "short"
	NumberStyleMini  NumberStyle = "mini"
)

var validNumberStyles = []NumberStyle{
	NumberStyleShort,
	NumberStyleMini,
}

// String implements fmt.Stringer.
func (v NumberStyle) String() string {
	return string(v)
}

// IsValid reports whether the value is a known NumberStyle.
func (v NumberStyle) IsValid() bool {
	for _, candidate := range validNumberStyles {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseNumberStyle converts raw input into a NumberStyle.
func ParseNumberStyle(value string) (NumberStyle, error) {
	for _, candidate := range validNumberStyles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order number style %q", value)
}
