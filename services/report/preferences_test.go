package report

import (
	"reflect"
	"testing"

	"price_digest/models"
)

var testAliases = []models.Alias{
	{Name: "Toncoin", ID: "the-open-network"},
	{Name: "Avalanche", ID: "avalanche-2"},
	{Name: "Near Protocol", ID: "near"},
	{Name: "Shiba Inu", ID: "shiba-inu"},
	{Name: "DogWifHat", ID: "dogwifcoin"},
	{Name: "Polygon", ID: "polygon-ecosystem-token"},
	{Name: "Ondo", ID: "ondo-finance"},
	{Name: "Mother Iggy", ID: "mother-iggy"},
}

func ptr(s string) *string { return &s }

func TestChosenInstruments(t *testing.T) {
	n := NewNormalizer(testAliases)

	tests := []struct {
		name string
		raw  *string
		want []models.InstrumentID
	}{
		{"absent", nil, nil},
		{"empty", ptr("   "), nil},
		{"alias pairs", ptr("Avalanche X Polygon Y"), []models.InstrumentID{"avalanche-2", "polygon-ecosystem-token"}},
		{"plain names", ptr("Ethereum (ETH) Solana (SOL)"), []models.InstrumentID{"ethereum", "solana"}},
		{"multi word names", ptr("Near Protocol (NEAR) Mother Iggy (MOTHER) Cardano (ADA)"), []models.InstrumentID{"near", "mother-iggy", "cardano"}},
		{"case insensitive alias", ptr("toncoin (TON) shiba inu (SHIB)"), []models.InstrumentID{"the-open-network", "shiba-inu"}},
		{"trailing commas", ptr("Ethereum (ETH), Solana (SOL),"), []models.InstrumentID{"ethereum", "solana"}},
		{"duplicates kept once", ptr("Ethereum (ETH) Ethereum (ETH) Ondo (ONDO)"), []models.InstrumentID{"ethereum", "ondo-finance"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.ChosenInstruments(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ChosenInstruments(%v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizerPrefersLongestAlias(t *testing.T) {
	n := NewNormalizer([]models.Alias{
		{Name: "Near", ID: "near-short"},
		{Name: "Near Protocol", ID: "near"},
	})
	got := n.ChosenInstruments(ptr("Near Protocol (NEAR)"))
	if !reflect.DeepEqual(got, []models.InstrumentID{"near"}) {
		t.Errorf("got %v", got)
	}
}
