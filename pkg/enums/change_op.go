package enums

import "fmt"

// ChangeOp is the operation carried by a pulled change record.
type ChangeOp string

const (
	ChangeOpUpsert ChangeOp = "upsert"
	ChangeOpDelete ChangeOp = "delete"
)

var validChangeOps = []ChangeOp{
	ChangeOpUpsert,
	ChangeOpDelete,
}

// String implements fmt.Stringer.
func (v ChangeOp) String() string {
	return string(v)
}

// IsValid reports whether the value is a known ChangeOp.
func (v ChangeOp) IsValid() bool {
	for _, candidate := range validChangeOps {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseChangeOp converts raw input into a ChangeOp.
func ParseChangeOp(value string) (ChangeOp, error) {
	for _, candidate := range validChangeOps {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid change op %q", value)
}
