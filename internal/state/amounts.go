package state

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"

	"civilizace.org/internal/entities"
)

// Amounts maps resource ids to quantities. Decimals marshal as canonical
// strings; map keys marshal sorted, so the encoding is deterministic.
type Amounts map[entities.EntityID]decimal.Decimal

func (a Amounts) Clone() Amounts {
	if a == nil {
		return nil
	}
	out := make(Amounts, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func (a Amounts) Equal(b Amounts) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}

// SortedIDs returns the resource ids in stable order, for rendering.
func (a Amounts) SortedIDs() []entities.EntityID {
	ids := make([]entities.EntityID, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IDSet is a set of entity ids. It serializes as a sorted list and
// deserializes from either a list or an object form.
type IDSet map[entities.EntityID]struct{}

func NewIDSet(ids ...entities.EntityID) IDSet {
	s := IDSet{}
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id entities.EntityID) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id entities.EntityID)    { s[id] = struct{}{} }
func (s IDSet) Remove(id entities.EntityID) { delete(s, id) }

func (s IDSet) Sorted() []entities.EntityID {
	ids := make([]entities.EntityID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s IDSet) Equal(o IDSet) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if _, ok := o[id]; !ok {
			return false
		}
	}
	return true
}

func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *IDSet) UnmarshalJSON(b []byte) error {
	var list []entities.EntityID
	if err := json.Unmarshal(b, &list); err == nil {
		*s = NewIDSet(list...)
		return nil
	}
	var obj map[entities.EntityID]any
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	out := make(IDSet, len(obj))
	for id := range obj {
		out[id] = struct{}{}
	}
	*s = out
	return nil
}
