package state

import (
	"fmt"

	"github.com/shopspring/decimal"

	"civilizace.org/internal/entities"
)

// TechStart is granted to every team at game initialization when present in
// the catalog.
const TechStart entities.EntityID = "tec-start"

type WorldState struct {
	Turn          int   `json:"turn"`
	TurnStartedAt int64 `json:"turn_started_at"` // unix seconds

	CasteCount int     `json:"caste_count"`
	RoadCost   Amounts `json:"road_cost"`

	// Inert: serialized and settable, never read by battle resolution.
	CombatRandomness int `json:"combat_randomness"`
}

func (w *WorldState) Equal(o *WorldState) bool {
	return w.Turn == o.Turn &&
		w.TurnStartedAt == o.TurnStartedAt &&
		w.CasteCount == o.CasteCount &&
		w.CombatRandomness == o.CombatRandomness &&
		w.RoadCost.Equal(o.RoadCost)
}

// GameState is the root aggregate. It owns every child state; child methods
// that need upward navigation take the root (or the catalog) as a parameter
// instead of holding back-pointers.
type GameState struct {
	Teams map[entities.EntityID]*TeamState `json:"teams"`
	Map   MapState                         `json:"map"`
	World WorldState                       `json:"world"`
}

// New builds the initial state for a catalog revision: one TeamState per team,
// one MapTile per tile entity, three idle armies per team.
func New(ents *entities.Entities) *GameState {
	s := &GameState{
		Teams: map[entities.EntityID]*TeamState{},
		Map: MapState{
			Tiles: map[int]*MapTile{},
		},
		World: WorldState{
			Turn:       0,
			CasteCount: 3,
			RoadCost: Amounts{
				"pro-drevo": decimal.NewFromInt(10),
			},
		},
	}

	for _, tile := range ents.Tiles {
		s.Map.Tiles[tile.Index] = &MapTile{
			Index:          tile.Index,
			Buildings:      IDSet{},
			Ruined:         IDSet{},
			RichnessTokens: tile.Richness,
		}
	}

	for _, teamID := range ents.TeamIDs() {
		team := ents.Teams[teamID]
		ts := &TeamState{
			Team: teamID,
			Resources: Amounts{
				entities.ResourceVillager: decimal.NewFromInt(100),
				entities.ResourceWork:     decimal.NewFromInt(100),
			},
			Storage:       Amounts{},
			Techs:         IDSet{},
			Researching:   IDSet{},
			RoadsTo:       IDSet{},
			Discovered:    IDSet{},
			Explored:      IDSet{},
			Tasks:         map[entities.EntityID]entities.EntityID{},
			FinishedTasks: IDSet{},
			ExtraStickers: IDSet{},
		}
		if _, ok := ents.Techs[TechStart]; ok {
			ts.Techs.Add(TechStart)
		}
		if home, ok := ents.TilesByIndex[team.HomeIndex]; ok {
			ts.Discovered.Add(home.ID)
		}
		s.Teams[teamID] = ts

		for i, level := range []int{1, 1, 2} {
			s.Map.Armies = append(s.Map.Armies, &Army{
				Team:  teamID,
				Index: i,
				Name:  fmt.Sprintf("%s %c", team.Name, 'A'+i),
				Level: level,
				Boost: -1,
				Tile:  -1,
				Mode:  ArmyIdle,
			})
		}
	}
	return s
}

// Team returns the state for a team id known to the catalog.
func (s *GameState) Team(id entities.EntityID) (*TeamState, error) {
	t, ok := s.Teams[id]
	if !ok {
		return nil, fmt.Errorf("no state for team %q", id)
	}
	return t, nil
}

// HomeTile resolves a team's home tile index via the catalog.
func (s *GameState) HomeTile(ents *entities.Entities, team entities.EntityID) (int, error) {
	t, ok := ents.Teams[team]
	if !ok {
		return 0, fmt.Errorf("unknown team %q", team)
	}
	return t.HomeIndex, nil
}

// Equal is deep structural equality, the basis of idempotence tests.
func (s *GameState) Equal(o *GameState) bool {
	if o == nil || len(s.Teams) != len(o.Teams) {
		return false
	}
	for id, t := range s.Teams {
		u, ok := o.Teams[id]
		if !ok || !t.Equal(u) {
			return false
		}
	}
	return s.Map.Equal(&o.Map) && s.World.Equal(&o.World)
}
