package config

import (
	"strings"
	"testing"

	"price_digest/models"
)

func TestLoadUniverseEmbedded(t *testing.T) {
	u, err := LoadUniverse("")
	if err != nil {
		t.Fatalf("LoadUniverse: %v", err)
	}
	if u.Benchmark != "bitcoin" {
		t.Errorf("benchmark = %q, want bitcoin", u.Benchmark)
	}
	if got := u.CryptoIDs[0]; got != "bitcoin" {
		t.Errorf("first crypto = %q, want bitcoin", got)
	}
	if len(u.Indices) != 3 {
		t.Fatalf("indices = %d, want 3", len(u.Indices))
	}
	for _, idx := range u.Indices {
		if idx.Kind != models.KindIndex {
			t.Errorf("index %s kind = %q", idx.ID, idx.Kind)
		}
	}
}

func TestUniverseInstruments(t *testing.T) {
	u, err := LoadUniverse("")
	if err != nil {
		t.Fatalf("LoadUniverse: %v", err)
	}

	closed := u.Instruments(false)
	if len(closed) != len(u.CryptoIDs) {
		t.Errorf("market closed: got %d instruments, want %d", len(closed), len(u.CryptoIDs))
	}

	open := u.Instruments(true)
	if len(open) != len(u.CryptoIDs)+len(u.Indices) {
		t.Fatalf("market open: got %d instruments", len(open))
	}
	last := open[len(open)-1]
	if last.ID != "DJ:DJI" || last.Kind != models.KindIndex {
		t.Errorf("last instrument = %+v, want DJ:DJI index", last)
	}
}

func TestParseUniverseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "benchmark not declared",
			yaml: "benchmark: bitcoin\ncrypto: [ethereum]\n",
			want: "benchmark",
		},
		{
			name: "duplicate id",
			yaml: "benchmark: bitcoin\ncrypto: [bitcoin, bitcoin]\n",
			want: "duplicate",
		},
		{
			name: "alias to unknown id",
			yaml: "benchmark: bitcoin\ncrypto: [bitcoin]\naliases:\n  - name: Avalanche\n    id: avalanche-2\n",
			want: "unknown instrument",
		},
		{
			name: "indices without columns",
			yaml: "benchmark: bitcoin\ncrypto: [bitcoin]\nindices:\n  - id: \"SP:SPX\"\n    name: \"S&P 500\"\n",
			want: "index_columns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUniverse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
