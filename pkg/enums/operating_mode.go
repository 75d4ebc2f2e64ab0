package enums

import "fmt"

// OperatingMode controls whether background sync may reach the network.
type OperatingMode string

const (
	OperatingModeOnline  OperatingMode = "online"
	OperatingModeOffline OperatingMode = "offline"
)

var validOperatingModes = []OperatingMode{
	OperatingModeOnline,
	OperatingModeOffline,
}

// String implements fmt.Stringer.
func (v OperatingMode) String() string {
	return string(v)
}

// IsValid reports whether the value is a known OperatingMode.
func (v OperatingMode) IsValid() bool {
	for _, candidate := range validOperatingModes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseOperatingMode converts raw input into a OperatingMode.
func ParseOperatingMode(value string) (OperatingMode, error) {
	for _, candidate := range validOperatingModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operating mode %q", value)
}
