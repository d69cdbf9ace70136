package game

import (
	"sort"

	"github.com/shopspring/decimal"

	"civilizace.org/internal/entities"
	"civilizace.org/internal/state"
)

func sortIDs(ids []entities.EntityID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func island(c *Context, id entities.EntityID) (*entities.MapTileEntity, error) {
	tile, ok := c.Entities.Tiles[id]
	if !ok {
		return nil, failf("unknown tile %s", Ref(id))
	}
	if !tile.Island {
		return nil, failf("%s is not an island", Ref(id))
	}
	return tile, nil
}

func ownedIslands(c *Context, team entities.EntityID) int {
	count := 0
	for _, tile := range c.State.Map.Tiles {
		if ent, ok := c.Entities.TilesByIndex[tile.Index]; ok && ent.Island && tile.Owner == team {
			count++
		}
	}
	return count
}

// IslandDiscoverAction sends scouts out. The expedition gets dearer the more
// islands the team already holds, and a die decides whether land is sighted.
type IslandDiscoverAction struct {
	teamArgs
}

func (*IslandDiscoverAction) Type() string { return TypeIslandDiscover }

func (a *IslandDiscoverAction) nextIsland(c *Context) *entities.MapTileEntity {
	team := c.State.Teams[a.Team]
	var best *entities.MapTileEntity
	for _, id := range sortedTileIDs(c.Entities) {
		tile := c.Entities.Tiles[id]
		if tile.Island && !team.Discovered.Has(id) {
			if best == nil || tile.Index < best.Index {
				best = tile
			}
		}
	}
	return best
}

func (a *IslandDiscoverAction) Validate(c *Context) error {
	if _, err := c.TeamState(a.Team); err != nil {
		return err
	}
	if a.nextIsland(c) == nil {
		return failf("there are no undiscovered islands left")
	}
	return nil
}

func (a *IslandDiscoverAction) Cost(c *Context) state.Amounts {
	owned := int64(ownedIslands(c, a.Team))
	return state.Amounts{
		entities.ResourceWork: decimal.NewFromInt(10 * (owned + 1)),
	}
}

func (a *IslandDiscoverAction) Dice(c *Context) DiceRequirement {
	return DiceRequirement{Dice: allDice(c.Entities), Dots: 12}
}

func (a *IslandDiscoverAction) Effect(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	tile := a.nextIsland(c)
	if tile == nil {
		return failf("there are no undiscovered islands left")
	}
	team.Discovered.Add(tile.ID)
	c.Messages.Infof("The expedition sighted %s at map index %d.", Ref(tile.ID), tile.Index)
	return nil
}

// IslandExploreAction surveys a sighted island, revealing its nature and
// enabling colonization.
type IslandExploreAction struct {
	teamArgs
	noCost
	Island entities.EntityID `json:"island"`
}

func (*IslandExploreAction) Type() string { return TypeIslandExplore }

func (a *IslandExploreAction) Validate(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	if _, err := island(c, a.Island); err != nil {
		return err
	}
	if !team.Discovered.Has(a.Island) {
		return failf("the team has not discovered %s", Ref(a.Island))
	}
	if team.Explored.Has(a.Island) {
		return failf("%s has already been explored", Ref(a.Island))
	}
	return nil
}

func (a *IslandExploreAction) Dice(c *Context) DiceRequirement {
	return DiceRequirement{Dice: allDice(c.Entities), Dots: 8}
}

func (a *IslandExploreAction) Effect(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	tile, err := island(c, a.Island)
	if err != nil {
		return err
	}
	team.Explored.Add(a.Island)
	sec := c.Messages.BeginSection("The survey of " + Ref(a.Island) + " found:")
	for _, res := range tile.Natural {
		sec.Addf("%s", Ref(res))
	}
	sec.Addf("richness %d", tile.Richness)
	sec.End()
	return nil
}

// IslandColonizeAction claims an explored, unowned island.
type IslandColonizeAction struct {
	teamArgs
	noDice
	Island entities.EntityID `json:"island"`
}

func (*IslandColonizeAction) Type() string { return TypeIslandColonize }

func (a *IslandColonizeAction) Validate(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	tile, err := island(c, a.Island)
	if err != nil {
		return err
	}
	if !team.Explored.Has(a.Island) {
		return failf("the team has not explored %s", Ref(a.Island))
	}
	if st, ok := c.State.Map.Tiles[tile.Index]; ok && st.Owner != "" {
		return failf("%s is already held by %s", Ref(a.Island), Ref(st.Owner))
	}
	return nil
}

func (a *IslandColonizeAction) Cost(c *Context) state.Amounts {
	tile, err := island(c, a.Island)
	if err != nil {
		return nil
	}
	richness := int64(tile.Richness)
	if richness < 1 {
		richness = 1
	}
	return state.Amounts{
		entities.ResourceWork:     decimal.NewFromInt(10 * richness),
		entities.ResourceVillager: decimal.NewFromInt(5),
	}
}

func (a *IslandColonizeAction) Effect(c *Context) error {
	tile, err := island(c, a.Island)
	if err != nil {
		return err
	}
	st, ok := c.State.Map.Tiles[tile.Index]
	if !ok {
		return invariantf("tile %d vanished", tile.Index)
	}
	if st.Owner != "" {
		return failf("%s is already held by %s", Ref(a.Island), Ref(st.Owner))
	}
	st.Owner = a.Team
	c.Messages.Infof("%s now belongs to the team.", Ref(a.Island))
	return nil
}

// IslandAttackAction sacks a foreign island the team's army already holds.
// Getting the army there is the army sub-engine's business.
type IslandAttackAction struct {
	teamArgs
	noCost
	noDice
	Island entities.EntityID `json:"island"`
}

func (*IslandAttackAction) Type() string { return TypeIslandAttack }

func (a *IslandAttackAction) Validate(c *Context) error {
	if _, err := c.TeamState(a.Team); err != nil {
		return err
	}
	tile, err := island(c, a.Island)
	if err != nil {
		return err
	}
	st, ok := c.State.Map.Tiles[tile.Index]
	if !ok {
		return invariantf("tile %d vanished", tile.Index)
	}
	if st.Owner == "" {
		return failf("%s is not held by anyone", Ref(a.Island))
	}
	if st.Owner == a.Team {
		return failf("cannot attack your own island")
	}
	occ := c.State.Map.OccupantOf(tile.Index)
	if occ == nil || occ.Team != a.Team {
		return failf("no army of the team holds %s", Ref(a.Island))
	}
	return nil
}

func (a *IslandAttackAction) Effect(c *Context) error {
	tile, err := island(c, a.Island)
	if err != nil {
		return err
	}
	st, ok := c.State.Map.Tiles[tile.Index]
	if !ok {
		return invariantf("tile %d vanished", tile.Index)
	}
	previous := st.Owner
	if previous == "" || previous == a.Team {
		return failf("%s is no longer held by an enemy", Ref(a.Island))
	}
	occ := c.State.Map.OccupantOf(tile.Index)
	if occ == nil || occ.Team != a.Team {
		return failf("no army of the team holds %s", Ref(a.Island))
	}
	st.Owner = a.Team
	// Sacking ruins what stood there.
	for _, b := range st.Buildings.Sorted() {
		st.Buildings.Remove(b)
		st.Ruined.Add(b)
	}
	c.Messages.Infof("%s was taken from %s.", Ref(a.Island), Ref(previous))
	c.Notify(previous, "Your island %s was taken by %s.", Ref(a.Island), Ref(a.Team))
	return nil
}

// IslandShareAction shares discovery (and exploration, if done) with an ally.
type IslandShareAction struct {
	teamArgs
	noCost
	noDice
	Island   entities.EntityID `json:"island"`
	Receiver entities.EntityID `json:"receiver"`
}

func (*IslandShareAction) Type() string { return TypeIslandShare }

func (a *IslandShareAction) Validate(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	if a.Receiver == a.Team {
		return failf("cannot share with yourself")
	}
	if _, err := c.TeamState(a.Receiver); err != nil {
		return err
	}
	if _, err := island(c, a.Island); err != nil {
		return err
	}
	if !team.Discovered.Has(a.Island) {
		return failf("the team has not discovered %s", Ref(a.Island))
	}
	return nil
}

func (a *IslandShareAction) Effect(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	receiver, err := c.TeamState(a.Receiver)
	if err != nil {
		return err
	}
	receiver.Discovered.Add(a.Island)
	if team.Explored.Has(a.Island) {
		receiver.Explored.Add(a.Island)
	}
	c.Messages.Infof("Charts of %s were shared with %s.", Ref(a.Island), Ref(a.Receiver))
	c.Notify(a.Receiver, "Team %s shared charts of %s with you.", Ref(a.Team), Ref(a.Island))
	return nil
}

// IslandTransferAction sells an island. The receiving team pays, so the
// action acts (and fails) on the receiver's balance.
type IslandTransferAction struct {
	noDice
	Island entities.EntityID `json:"island"`
	From   entities.EntityID `json:"from"`
	To     entities.EntityID `json:"to"`
}

func (*IslandTransferAction) Type() string { return TypeIslandTransfer }

func (a *IslandTransferAction) TeamID() entities.EntityID { return a.To }

func (a *IslandTransferAction) Validate(c *Context) error {
	if a.From == a.To {
		return failf("the island already belongs to %s", Ref(a.To))
	}
	if _, err := c.TeamState(a.From); err != nil {
		return err
	}
	if _, err := c.TeamState(a.To); err != nil {
		return err
	}
	tile, err := island(c, a.Island)
	if err != nil {
		return err
	}
	st, ok := c.State.Map.Tiles[tile.Index]
	if !ok {
		return invariantf("tile %d vanished", tile.Index)
	}
	if st.Owner != a.From {
		return failf("%s does not hold %s", Ref(a.From), Ref(a.Island))
	}
	return nil
}

func (a *IslandTransferAction) Cost(c *Context) state.Amounts {
	tile, err := island(c, a.Island)
	if err != nil {
		return nil
	}
	richness := int64(tile.Richness)
	if richness < 1 {
		richness = 1
	}
	return state.Amounts{
		entities.ResourceWork: decimal.NewFromInt(20 * richness),
	}
}

func (a *IslandTransferAction) Effect(c *Context) error {
	tile, err := island(c, a.Island)
	if err != nil {
		return err
	}
	st, ok := c.State.Map.Tiles[tile.Index]
	if !ok {
		return invariantf("tile %d vanished", tile.Index)
	}
	if st.Owner != a.From {
		return failf("%s no longer holds %s", Ref(a.From), Ref(a.Island))
	}
	st.Owner = a.To
	receiver, err := c.TeamState(a.To)
	if err != nil {
		return err
	}
	receiver.Discovered.Add(a.Island)
	receiver.Explored.Add(a.Island)
	c.Messages.Infof("%s passed from %s to %s.", Ref(a.Island), Ref(a.From), Ref(a.To))
	c.Notify(a.From, "Your island %s now belongs to %s.", Ref(a.Island), Ref(a.To))
	return nil
}

func allDice(ents *entities.Entities) []entities.EntityID {
	ids := make([]entities.EntityID, 0, len(ents.Dice))
	for id := range ents.Dice {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func sortedTileIDs(ents *entities.Entities) []entities.EntityID {
	ids := make([]entities.EntityID, 0, len(ents.Tiles))
	for id := range ents.Tiles {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}
