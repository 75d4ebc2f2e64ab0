package devserver

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

// Branch is a pairable branch and the codes that register devices into it.
type Branch struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	PairCodes []string `yaml:"pair_codes"`
}

// Seed is the initial server state: branches plus catalog rows per table.
type Seed struct {
	Branches   []Branch                    `yaml:"branches"`
	Catalog    map[string][]map[string]any `yaml:"catalog"`
	OrdersSeed []map[string]any            `yaml:"orders_seed"`
}

// DefaultSeed returns the catalog compiled into the binary.
func DefaultSeed() (*Seed, error) {
	return parseSeed(defaultSeed)
}

// LoadSeed reads a YAML seed file, or the compiled default when path is empty.
func LoadSeed(path string) (*Seed, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSeed()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	return parseSeed(raw)
}

func parseSeed(raw []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if len(seed.Branches) == 0 {
		return nil, fmt.Errorf("seed defines no branches")
	}
	seen := map[string]bool{}
	for _, b := range seed.Branches {
		if b.ID == "" {
			return nil, fmt.Errorf("seed branch without id")
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("duplicate branch %s", b.ID)
		}
		seen[b.ID] = true
	}
	return &seed, nil
}

func (s *Seed) branch(id string) (Branch, bool) {
	for _, b := range s.Branches {
		if b.ID == id {
			return b, true
		}
	}
	return Branch{}, false
}

func (b Branch) accepts(code string) bool {
	for _, c := range b.PairCodes {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(code)) {
			return true
		}
	}
	return false
}
