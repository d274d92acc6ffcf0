package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"price_digest/models"
)

//go:embed universe.yaml
var defaultUniverse []byte

// Universe is the declared set of instruments plus the data the report needs to read preferences
type Universe struct {
	Benchmark    models.InstrumentID   `yaml:"benchmark"`
	CryptoIDs    []models.InstrumentID `yaml:"crypto"`
	Indices      []models.Instrument   `yaml:"indices"`
	IndexColumns []string              `yaml:"index_columns"`
	Aliases      []models.Alias        `yaml:"aliases"`
}

// LoadUniverse reads the catalog at path, or the embedded one when path is empty
func LoadUniverse(path string) (*Universe, error) {
	data := defaultUniverse
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read universe file: %w", err)
		}
		data = b
	}
	return ParseUniverse(data)
}

// ParseUniverse decodes and validates a YAML catalog
func ParseUniverse(data []byte) (*Universe, error) {
	var u Universe
	if err := yaml.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to parse universe: %w", err)
	}
	for i := range u.Indices {
		u.Indices[i].Kind = models.KindIndex
	}
	if err := u.validate(); err != nil {
		return nil, err
	}
	return &u, nil
}

func (u *Universe) validate() error {
	if len(u.CryptoIDs) == 0 {
		return fmt.Errorf("universe: no crypto instruments declared")
	}

	seen := make(map[models.InstrumentID]bool)
	for _, id := range u.CryptoIDs {
		if strings.TrimSpace(string(id)) == "" {
			return fmt.Errorf("universe: empty crypto id")
		}
		if seen[id] {
			return fmt.Errorf("universe: duplicate instrument %q", id)
		}
		seen[id] = true
	}
	if !seen[u.Benchmark] {
		return fmt.Errorf("universe: benchmark %q is not a declared crypto instrument", u.Benchmark)
	}

	for _, idx := range u.Indices {
		if idx.ID == "" || idx.DisplayName == "" {
			return fmt.Errorf("universe: index entries need id and name")
		}
		if seen[idx.ID] {
			return fmt.Errorf("universe: duplicate instrument %q", idx.ID)
		}
		seen[idx.ID] = true
	}
	if len(u.Indices) > 0 && len(u.IndexColumns) == 0 {
		return fmt.Errorf("universe: indices declared without index_columns")
	}

	for _, a := range u.Aliases {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("universe: alias with empty name")
		}
		if !seen[a.ID] {
			return fmt.Errorf("universe: alias %q points at unknown instrument %q", a.Name, a.ID)
		}
	}
	return nil
}

// Instruments returns the instruments to fetch for a run, in declared order.
// Indices are included only when the stock market is open.
func (u *Universe) Instruments(marketOpen bool) []models.Instrument {
	out := make([]models.Instrument, 0, len(u.CryptoIDs)+len(u.Indices))
	for _, id := range u.CryptoIDs {
		out = append(out, models.Instrument{ID: id, Kind: models.KindCrypto})
	}
	if marketOpen {
		out = append(out, u.Indices...)
	}
	return out
}

// IndexIDs lists the index instruments in declared order
func (u *Universe) IndexIDs() []models.InstrumentID {
	ids := make([]models.InstrumentID, len(u.Indices))
	for i, idx := range u.Indices {
		ids[i] = idx.ID
	}
	return ids
}
