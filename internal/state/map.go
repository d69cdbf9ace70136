package state

import (
	"civilizace.org/internal/entities"
)

// BaseArmyStrength is added to equipment when computing battle strength.
const BaseArmyStrength = 5

type ArmyMode string

const (
	ArmyIdle      ArmyMode = "idle"
	ArmyMarching  ArmyMode = "marching"
	ArmyOccupying ArmyMode = "occupying"
)

type ArmyGoal string

const (
	GoalNone      ArmyGoal = ""
	GoalOccupy    ArmyGoal = "occupy"
	GoalEliminate ArmyGoal = "eliminate"
	GoalSupply    ArmyGoal = "supply"
	GoalReplace   ArmyGoal = "replace"
)

type Army struct {
	Team  entities.EntityID `json:"team"`
	Index int               `json:"index"` // army number within the team
	Name  string            `json:"name"`
	Level int               `json:"level"`

	Equipment int      `json:"equipment"` // weapons carried, 0..Capacity
	Boost     int      `json:"boost"`     // stale while idle, reset to -1
	Tile      int      `json:"tile"`      // -1 unless marching or occupying
	Mode      ArmyMode `json:"mode"`
	Goal      ArmyGoal `json:"goal"`

	// Target ally for a supply march into foreign-held territory.
	FriendlyTeam entities.EntityID `json:"friendly_team,omitempty"`
}

// Capacity is the equipment ceiling for the army's level.
func (a *Army) Capacity() int { return 10 * a.Level }

// Strength is the battle strength while deployed.
func (a *Army) Strength() int { return BaseArmyStrength + a.Equipment }

// Retreat sends the army home and returns the equipment it carried, for
// refund accounting.
func (a *Army) Retreat() int {
	prior := a.Equipment
	a.Mode = ArmyIdle
	a.Equipment = 0
	a.Boost = -1
	a.Tile = -1
	a.Goal = GoalNone
	a.FriendlyTeam = ""
	return prior
}

type MapTile struct {
	Index          int               `json:"index"`
	Owner          entities.EntityID `json:"owner,omitempty"` // island colonization owner
	Buildings      IDSet             `json:"buildings"`
	Ruined         IDSet             `json:"ruined"`
	RichnessTokens int               `json:"richness_tokens"`
}

type MapState struct {
	Tiles  map[int]*MapTile `json:"tiles"`
	Armies []*Army          `json:"armies"`
}

// OccupantOf returns the army occupying the tile, if any. At most one army
// may occupy a given tile.
func (m *MapState) OccupantOf(tileIndex int) *Army {
	for _, a := range m.Armies {
		if a.Mode == ArmyOccupying && a.Tile == tileIndex {
			return a
		}
	}
	return nil
}

// Army finds a team's army by its per-team index.
func (m *MapState) Army(team entities.EntityID, index int) *Army {
	for _, a := range m.Armies {
		if a.Team == team && a.Index == index {
			return a
		}
	}
	return nil
}

// ArmiesOf returns all of a team's armies in declaration order.
func (m *MapState) ArmiesOf(team entities.EntityID) []*Army {
	var out []*Army
	for _, a := range m.Armies {
		if a.Team == team {
			out = append(out, a)
		}
	}
	return out
}

// Distance is the number of steps between two tiles on the circular map.
func (m *MapState) Distance(from, to int) int {
	n := len(m.Tiles)
	if n == 0 {
		return 0
	}
	d := from - to
	if d < 0 {
		d = -d
	}
	if wrap := n - d; wrap < d {
		d = wrap
	}
	return d
}

func (m *MapState) Equal(o *MapState) bool {
	if len(m.Tiles) != len(o.Tiles) || len(m.Armies) != len(o.Armies) {
		return false
	}
	for idx, t := range m.Tiles {
		u, ok := o.Tiles[idx]
		if !ok {
			return false
		}
		if t.Index != u.Index || t.Owner != u.Owner || t.RichnessTokens != u.RichnessTokens {
			return false
		}
		if !t.Buildings.Equal(u.Buildings) || !t.Ruined.Equal(u.Ruined) {
			return false
		}
	}
	for i, a := range m.Armies {
		if *a != *o.Armies[i] {
			return false
		}
	}
	return true
}
