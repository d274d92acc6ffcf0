package report

import (
	"sort"
	"strings"

	"price_digest/models"
)

type aliasEntry struct {
	words []string
	id    models.InstrumentID
}

// Normalizer turns a free-text preference string into instrument ids.
// The signup form submits "<Name> <filler>" pairs such as "Ethereum (ETH) Solana (SOL)";
// multi-word names are collapsed through the alias table before pairs are split.
type Normalizer struct {
	aliases []aliasEntry
}

func NewNormalizer(aliases []models.Alias) *Normalizer {
	entries := make([]aliasEntry, 0, len(aliases))
	for _, a := range aliases {
		words := strings.Fields(strings.ToLower(a.Name))
		if len(words) == 0 {
			continue
		}
		entries = append(entries, aliasEntry{words: words, id: a.ID})
	}
	// longest name wins when two aliases share a prefix
	sort.SliceStable(entries, func(i, j int) bool {
		return len(entries[i].words) > len(entries[j].words)
	})
	return &Normalizer{aliases: entries}
}

// ChosenInstruments returns the ids the user selected, in the order given, without repeats
func (n *Normalizer) ChosenInstruments(raw *string) []models.InstrumentID {
	if raw == nil {
		return nil
	}
	tokens := strings.Fields(*raw)

	collapsed := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		if id, width := n.match(tokens[i:]); width > 0 {
			collapsed = append(collapsed, string(id))
			i += width
			continue
		}
		collapsed = append(collapsed, tokens[i])
		i++
	}

	seen := make(map[models.InstrumentID]bool)
	var ids []models.InstrumentID
	for i := 0; i < len(collapsed); i += 2 {
		tok := strings.Trim(collapsed[i], ",;")
		if tok == "" {
			continue
		}
		id := models.InstrumentID(strings.ToLower(tok))
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func (n *Normalizer) match(tokens []string) (models.InstrumentID, int) {
	for _, a := range n.aliases {
		if len(a.words) > len(tokens) {
			continue
		}
		ok := true
		for k, w := range a.words {
			if strings.ToLower(tokens[k]) != w {
				ok = false
				break
			}
		}
		if ok {
			return a.id, len(a.words)
		}
	}
	return "", 0
}
