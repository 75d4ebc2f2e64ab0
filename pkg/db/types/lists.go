package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// StringList persists a slice of strings as a JSON array in a TEXT column.
type StringList []string

func (a *StringList) Scan(src any) error {
	raw, err := textOf(src)
	if err != nil {
		return fmt.Errorf("StringList: %w", err)
	}
	if raw == "" {
		*a = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fmt.Errorf("StringList: parse %q: %w", raw, err)
	}
	*a = StringList(out)
	return nil
}

func (a StringList) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// FloatList persists a slice of amounts as a JSON array in a TEXT column.
type FloatList []float64

func (a *FloatList) Scan(src any) error {
	raw, err := textOf(src)
	if err != nil {
		return fmt.Errorf("FloatList: %w", err)
	}
	if raw == "" {
		*a = FloatList{}
		return nil
	}
	var out []float64
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fmt.Errorf("FloatList: parse %q: %w", raw, err)
	}
	*a = FloatList(out)
	return nil
}

func (a FloatList) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]float64(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Sum adds every element of the list.
func (a FloatList) Sum() float64 {
	total := 0.0
	for _, v := range a {
		total += v
	}
	return total
}

func textOf(src any) (string, error) {
	switch v := src.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case []byte:
		return strings.TrimSpace(string(v)), nil
	default:
		return "", fmt.Errorf("unsupported Scan type %T", src)
	}
}
