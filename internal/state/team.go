package state

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"civilizace.org/internal/entities"
)

// DefaultStorageCapacity is the per-resource storage cap before tech bonuses.
const DefaultStorageCapacity = 10

type TeamState struct {
	Team entities.EntityID `json:"team"`

	Resources Amounts         `json:"resources"`
	Storage   Amounts         `json:"storage"`
	Employees decimal.Decimal `json:"employees"`
	Turn      int             `json:"turn"`

	Techs       IDSet `json:"techs"`
	Researching IDSet `json:"researching"`

	RoadsTo    IDSet `json:"roads_to"`   // tile ids reachable by road
	Discovered IDSet `json:"discovered"` // tile ids, islands included
	Explored   IDSet `json:"explored"`   // islands surveyed in detail

	// Tech id -> assigned task id, while the research is task-gated.
	Tasks         map[entities.EntityID]entities.EntityID `json:"tasks"`
	FinishedTasks IDSet                                   `json:"finished_tasks"`

	// Manually granted stickers, on top of the ones derived from owned entities.
	ExtraStickers IDSet `json:"extra_stickers"`
}

// ShortfallError itemizes exactly which tracked resources a payment is missing.
type ShortfallError struct {
	Missing Amounts
}

func (e *ShortfallError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, id := range e.Missing.SortedIDs() {
		parts = append(parts, fmt.Sprintf("%s (short %s)", id, e.Missing[id]))
	}
	return "insufficient resources: " + strings.Join(parts, ", ")
}

// PayResources deducts tracked resources and returns the untracked materials
// the org must collect physically. The tracked part is atomic: sufficiency is
// checked across the whole request before any counter moves, and an
// insufficient request mutates nothing.
//
// Paying villagers converts them to employees.
func (t *TeamState) PayResources(ents *entities.Entities, req Amounts) (Amounts, error) {
	tracked := Amounts{}
	materials := Amounts{}
	for id, amount := range req {
		if amount.Sign() <= 0 {
			continue
		}
		res, ok := ents.Resources[id]
		if !ok {
			return nil, fmt.Errorf("unknown resource %q in payment", id)
		}
		if res.Tracked() {
			tracked[id] = amount
		} else {
			materials[id] = amount
		}
	}

	missing := Amounts{}
	for id, amount := range tracked {
		have := t.Resources[id]
		if have.LessThan(amount) {
			missing[id] = amount.Sub(have)
		}
	}
	if len(missing) > 0 {
		return nil, &ShortfallError{Missing: missing}
	}

	for id, amount := range tracked {
		t.Resources[id] = t.Resources[id].Sub(amount)
		if id == entities.ResourceVillager {
			t.Employees = t.Employees.Add(amount)
		}
	}
	return materials, nil
}

// ReceiveResources credits tracked resources to the team counter. Materials go
// to capacity-capped storage, except weapons (uncapped), or straight to the
// returned map when instantWithdraw is set.
func (t *TeamState) ReceiveResources(ents *entities.Entities, req Amounts, instantWithdraw bool) Amounts {
	withdrawn := Amounts{}
	capacity := decimal.NewFromInt(int64(t.StorageCapacity(ents)))
	for id, amount := range req {
		if amount.Sign() <= 0 {
			continue
		}
		res, ok := ents.Resources[id]
		if !ok || res.Tracked() {
			t.Resources[id] = t.Resources[id].Add(amount)
			continue
		}
		if instantWithdraw {
			withdrawn[id] = withdrawn[id].Add(amount)
			continue
		}
		next := t.Storage[id].Add(amount)
		if id != entities.MaterialWeapons && next.GreaterThan(capacity) {
			next = capacity
		}
		t.Storage[id] = next
	}
	return withdrawn
}

// StorageCapacity derives the per-resource storage cap from owned techs.
func (t *TeamState) StorageCapacity(ents *entities.Entities) int {
	capacity := DefaultStorageCapacity
	for id := range t.Techs {
		if tech, ok := ents.Techs[id]; ok {
			capacity += tech.Attributes["storage"]
		}
	}
	return capacity
}

// Population is villagers plus employees.
func (t *TeamState) Population() decimal.Decimal {
	return t.Resources[entities.ResourceVillager].Add(t.Employees)
}

// Work is the team's current work balance.
func (t *TeamState) Work() decimal.Decimal {
	return t.Resources[entities.ResourceWork]
}

// OwnsBuilding reports whether the team has researched the given building tech.
func (t *TeamState) OwnsBuilding(id entities.EntityID) bool {
	return t.Techs.Has(id)
}

// UnlockedVyrobas lists vyrobas reachable through owned techs, sorted.
func (t *TeamState) UnlockedVyrobas(ents *entities.Entities) []entities.EntityID {
	set := IDSet{}
	for id := range t.Techs {
		tech, ok := ents.Techs[id]
		if !ok {
			continue
		}
		for _, ref := range tech.Unlocks {
			if _, isVyroba := ents.Vyrobas[ref]; isVyroba {
				set.Add(ref)
			}
		}
	}
	return set.Sorted()
}

func (t *TeamState) Equal(o *TeamState) bool {
	if t.Team != o.Team || t.Turn != o.Turn || !t.Employees.Equal(o.Employees) {
		return false
	}
	if !t.Resources.Equal(o.Resources) || !t.Storage.Equal(o.Storage) {
		return false
	}
	if !t.Techs.Equal(o.Techs) || !t.Researching.Equal(o.Researching) {
		return false
	}
	if !t.RoadsTo.Equal(o.RoadsTo) || !t.Discovered.Equal(o.Discovered) || !t.Explored.Equal(o.Explored) {
		return false
	}
	if !t.FinishedTasks.Equal(o.FinishedTasks) || !t.ExtraStickers.Equal(o.ExtraStickers) {
		return false
	}
	if len(t.Tasks) != len(o.Tasks) {
		return false
	}
	for k, v := range t.Tasks {
		if o.Tasks[k] != v {
			return false
		}
	}
	return true
}
