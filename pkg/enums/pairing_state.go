package enums

import "fmt"

// PairingState is the device registration state machine.
type PairingState string

const (
	PairingStateUnpaired PairingState = "unpaired"
	PairingStatePairing  PairingState = "pairing"
	PairingStatePaired   PairingState = "paired"
)

var validPairingStates = []PairingState{
	PairingStateUnpaired,
	PairingStatePairing,
	PairingStatePaired,
}

// String implements fmt.Stringer.
func (v PairingState) String() string {
	return string(v)
}

// IsValid reports whether the value is a known PairingState.
func (v PairingState) IsValid() bool {
	for _, candidate := range validPairingStates {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePairingState converts raw input into a PairingState.
func ParsePairingState(value string) (PairingState, error) {
	for _, candidate := range validPairingStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pairing state %q", value)
}
