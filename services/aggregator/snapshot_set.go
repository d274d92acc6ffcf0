package aggregator

import (
	"errors"
	"fmt"

	"price_digest/models"
)

// ErrUnknownInstrument is returned for ids that were not part of the aggregated universe
var ErrUnknownInstrument = errors.New("instrument not in snapshot set")

// Entry is the outcome of one fetch. Err is set for a fetch failure.
type Entry struct {
	Instrument models.Instrument
	Snapshot   models.Snapshot
	Err        error
}

// OK reports whether the fetch succeeded
func (e Entry) OK() bool {
	return e.Err == nil
}

// SnapshotSet holds exactly one entry per requested instrument, in universe order.
// It is never modified after Aggregate returns.
type SnapshotSet struct {
	entries []Entry
	index   map[models.InstrumentID]int
}

func newSnapshotSet(entries []Entry) *SnapshotSet {
	idx := make(map[models.InstrumentID]int, len(entries))
	for i, e := range entries {
		if _, ok := idx[e.Instrument.ID]; !ok {
			idx[e.Instrument.ID] = i
		}
	}
	return &SnapshotSet{entries: entries, index: idx}
}

// NewSnapshotSet builds a set from pre-computed entries
func NewSnapshotSet(entries ...Entry) *SnapshotSet {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return newSnapshotSet(cp)
}

// Get returns the snapshot for id, the fetch failure, or ErrUnknownInstrument
func (s *SnapshotSet) Get(id models.InstrumentID) (models.Snapshot, error) {
	i, ok := s.index[id]
	if !ok {
		return models.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, id)
	}
	e := s.entries[i]
	if e.Err != nil {
		return models.Snapshot{}, e.Err
	}
	return e.Snapshot, nil
}

// Has reports whether id was part of the aggregated universe
func (s *SnapshotSet) Has(id models.InstrumentID) bool {
	_, ok := s.index[id]
	return ok
}

// Len is the number of entries, successful or not
func (s *SnapshotSet) Len() int {
	return len(s.entries)
}

// Entries returns a copy of all entries in universe order
func (s *SnapshotSet) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Successful returns the fetched snapshots in universe order
func (s *SnapshotSet) Successful() []models.Snapshot {
	out := make([]models.Snapshot, 0, len(s.entries))
	for _, e := range s.entries {
		if e.OK() {
			out = append(out, e.Snapshot)
		}
	}
	return out
}

// Failures returns the failed entries in universe order
func (s *SnapshotSet) Failures() []Entry {
	var out []Entry
	for _, e := range s.entries {
		if !e.OK() {
			out = append(out, e)
		}
	}
	return out
}
