// Package stickers computes the physical rewards owed to teams: the diff of
// collectible entities between two state snapshots.
package stickers

import (
	"sort"

	"civilizace.org/internal/entities"
	"civilizace.org/internal/state"
)

// Collectibles are the entities a team earns a sticker for: owned techs,
// vyrobas those techs unlock, buildings standing on tiles the team holds, and
// anything granted manually.
func Collectibles(ents *entities.Entities, st *state.GameState, team entities.EntityID) state.IDSet {
	out := state.IDSet{}
	ts, ok := st.Teams[team]
	if !ok {
		return out
	}
	for id := range ts.Techs {
		out.Add(id)
	}
	for _, id := range ts.UnlockedVyrobas(ents) {
		out.Add(id)
	}
	for _, tile := range st.Map.Tiles {
		if tile.Owner != team {
			occ := st.Map.OccupantOf(tile.Index)
			if occ == nil || occ.Team != team {
				continue
			}
		}
		for id := range tile.Buildings {
			out.Add(id)
		}
	}
	for id := range ts.ExtraStickers {
		out.Add(id)
	}
	return out
}

// Diff lists, per team, collectibles present in next but not in prev, sorted.
// Teams with no new rewards are omitted.
func Diff(ents *entities.Entities, prev, next *state.GameState) map[entities.EntityID][]entities.EntityID {
	out := map[entities.EntityID][]entities.EntityID{}
	for _, team := range ents.TeamIDs() {
		before := Collectibles(ents, prev, team)
		after := Collectibles(ents, next, team)
		var fresh []entities.EntityID
		for id := range after {
			if !before.Has(id) {
				fresh = append(fresh, id)
			}
		}
		if len(fresh) == 0 {
			continue
		}
		sort.Slice(fresh, func(i, j int) bool { return fresh[i] < fresh[j] })
		out[team] = fresh
	}
	return out
}
