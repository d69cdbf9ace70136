package game

import (
	"civilizace.org/internal/entities"
	"civilizace.org/internal/state"
)

// Construction pacing.
const (
	BuildSeconds = 600
	RoadSeconds  = 300
)

// BuildAction places a researched building on a controlled tile. The
// construction itself takes time: commit schedules the delayed effect.
type BuildAction struct {
	teamArgs
	noDice
	Tile     int               `json:"tile"`
	Building entities.EntityID `json:"building"`
}

func (*BuildAction) Type() string { return TypeBuild }

func (a *BuildAction) building(c *Context) (*entities.Tech, error) {
	t, ok := c.Entities.Techs[a.Building]
	if !ok || !t.Building {
		return nil, failf("%s is not a building", Ref(a.Building))
	}
	return t, nil
}

func (a *BuildAction) Validate(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	if _, err := a.building(c); err != nil {
		return err
	}
	if !team.Techs.Has(a.Building) {
		return failf("the team has not researched %s", Ref(a.Building))
	}
	tile, ok := c.State.Map.Tiles[a.Tile]
	if !ok {
		return failf("no tile with index %d", a.Tile)
	}
	if tile.Buildings.Has(a.Building) {
		return failf("tile %d already has %s", a.Tile, Ref(a.Building))
	}
	if !teamControlsTile(c, a.Team, a.Tile) {
		return failf("the team does not control tile %d", a.Tile)
	}
	return nil
}

func (a *BuildAction) Cost(c *Context) state.Amounts {
	t, err := a.building(c)
	if err != nil {
		return nil
	}
	return state.Amounts(t.Cost).Clone()
}

func (a *BuildAction) DelaySeconds(*Context) int { return BuildSeconds }

// Effect runs at the due time and re-validates: the tile may have changed
// hands while the builders were on their way.
func (a *BuildAction) Effect(c *Context) error {
	if _, err := c.TeamState(a.Team); err != nil {
		return err
	}
	tile, ok := c.State.Map.Tiles[a.Tile]
	if !ok {
		return invariantf("tile %d vanished", a.Tile)
	}
	if tile.Buildings.Has(a.Building) {
		return failf("tile %d already has %s", a.Tile, Ref(a.Building))
	}
	if !teamControlsTile(c, a.Team, a.Tile) {
		return failf("the team lost control of tile %d before construction finished", a.Tile)
	}
	tile.Buildings.Add(a.Building)
	c.Messages.Infof("%s now stands on tile %d.", Ref(a.Building), a.Tile)
	c.Notify(a.Team, "Construction of %s on tile %d is finished.", Ref(a.Building), a.Tile)
	return nil
}

// BuildRoadAction connects the team's home to a tile, halving march times.
type BuildRoadAction struct {
	teamArgs
	noDice
	Tile int `json:"tile"`
}

func (*BuildRoadAction) Type() string { return TypeBuildRoad }

func (a *BuildRoadAction) Validate(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	tile, ok := c.Entities.TilesByIndex[a.Tile]
	if !ok {
		return failf("no tile with index %d", a.Tile)
	}
	if !team.Discovered.Has(tile.ID) {
		return failf("tile %s has not been discovered", Ref(tile.ID))
	}
	if team.RoadsTo.Has(tile.ID) {
		return failf("a road to %s already exists", Ref(tile.ID))
	}
	return nil
}

func (a *BuildRoadAction) Cost(c *Context) state.Amounts {
	return c.State.World.RoadCost.Clone()
}

func (a *BuildRoadAction) DelaySeconds(*Context) int { return RoadSeconds }

func (a *BuildRoadAction) Effect(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	tile, ok := c.Entities.TilesByIndex[a.Tile]
	if !ok {
		return invariantf("tile %d vanished", a.Tile)
	}
	team.RoadsTo.Add(tile.ID)
	c.Messages.Infof("The road to %s is finished.", Ref(tile.ID))
	c.Notify(a.Team, "The road to %s is finished.", Ref(tile.ID))
	return nil
}

// RepairAction restores a ruined building, e.g. after an island was sacked.
type RepairAction struct {
	teamArgs
	noDice
	Tile     int               `json:"tile"`
	Building entities.EntityID `json:"building"`
}

func (*RepairAction) Type() string { return TypeRepair }

func (a *RepairAction) Validate(c *Context) error {
	if _, err := c.TeamState(a.Team); err != nil {
		return err
	}
	tile, ok := c.State.Map.Tiles[a.Tile]
	if !ok {
		return failf("no tile with index %d", a.Tile)
	}
	if !tile.Ruined.Has(a.Building) {
		return failf("tile %d has no ruined %s", a.Tile, Ref(a.Building))
	}
	if !teamControlsTile(c, a.Team, a.Tile) {
		return failf("the team does not control tile %d", a.Tile)
	}
	return nil
}

func (a *RepairAction) Cost(c *Context) state.Amounts {
	if t, ok := c.Entities.Techs[a.Building]; ok {
		return state.Amounts(t.Cost).Clone()
	}
	return nil
}

func (a *RepairAction) Effect(c *Context) error {
	tile, ok := c.State.Map.Tiles[a.Tile]
	if !ok {
		return invariantf("tile %d vanished", a.Tile)
	}
	if !tile.Ruined.Has(a.Building) {
		return failf("tile %d has no ruined %s", a.Tile, Ref(a.Building))
	}
	tile.Ruined.Remove(a.Building)
	tile.Buildings.Add(a.Building)
	c.Messages.Infof("%s on tile %d was repaired.", Ref(a.Building), a.Tile)
	return nil
}
