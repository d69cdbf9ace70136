package state

import (
	"bytes"
	"encoding/json"
	"fmt"

	"civilizace.org/internal/entities"
)

// Serialize encodes the state as deterministic JSON: map keys sorted by the
// encoder, id sets as sorted lists, decimals as canonical strings.
func (s *GameState) Serialize() ([]byte, error) {
	return json.Marshal(s)
}

// Deserialize decodes a serialized state. Unknown fields are rejected with an
// error naming the field; required top-level structure is validated.
func Deserialize(b []byte) (*GameState, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var s GameState
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("game state: %w", err)
	}
	if s.Teams == nil {
		return nil, fmt.Errorf("game state: missing required field %q (object of team states)", "teams")
	}
	if s.Map.Tiles == nil {
		return nil, fmt.Errorf("game state: missing required field %q (object of tiles)", "map.tiles")
	}
	for id, t := range s.Teams {
		if t == nil || t.Team == "" {
			return nil, fmt.Errorf("game state: team %q: missing required field %q (entity id string)", id, "team")
		}
		ensureTeamMaps(t)
	}
	for _, tile := range s.Map.Tiles {
		if tile.Buildings == nil {
			tile.Buildings = IDSet{}
		}
		if tile.Ruined == nil {
			tile.Ruined = IDSet{}
		}
	}
	return &s, nil
}

func ensureTeamMaps(t *TeamState) {
	if t.Resources == nil {
		t.Resources = Amounts{}
	}
	if t.Storage == nil {
		t.Storage = Amounts{}
	}
	if t.Techs == nil {
		t.Techs = IDSet{}
	}
	if t.Researching == nil {
		t.Researching = IDSet{}
	}
	if t.RoadsTo == nil {
		t.RoadsTo = IDSet{}
	}
	if t.Discovered == nil {
		t.Discovered = IDSet{}
	}
	if t.Explored == nil {
		t.Explored = IDSet{}
	}
	if t.Tasks == nil {
		t.Tasks = map[entities.EntityID]entities.EntityID{}
	}
	if t.FinishedTasks == nil {
		t.FinishedTasks = IDSet{}
	}
	if t.ExtraStickers == nil {
		t.ExtraStickers = IDSet{}
	}
}

// Clone deep-copies the state via the serializer. Used to snapshot a state
// before a mutation for diffing or rollback comparison.
func (s *GameState) Clone() (*GameState, error) {
	b, err := s.Serialize()
	if err != nil {
		return nil, err
	}
	return Deserialize(b)
}
