package game

import (
	"github.com/shopspring/decimal"

	"civilizace.org/internal/entities"
	"civilizace.org/internal/state"
)

// Travel pacing for marching armies.
const (
	TileTravelSeconds = 300
	MinTravelSeconds  = 30
)

type ArmyDeployAction struct {
	teamArgs
	noCost
	noDice
	Army      int            `json:"army"`
	Tile      int            `json:"tile"`
	Goal      state.ArmyGoal `json:"goal"`
	Equipment int            `json:"equipment"`

	// Target ally when supplying an army of another team.
	FriendlyTeam entities.EntityID `json:"friendly_team,omitempty"`
}

func (*ArmyDeployAction) Type() string { return TypeArmyDeploy }

func (a *ArmyDeployAction) Validate(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	army := c.State.Map.Army(a.Team, a.Army)
	if army == nil {
		return failf("team %s has no army %d", Ref(a.Team), a.Army)
	}
	if army.Mode != state.ArmyIdle {
		return failf("army %s is not at home", army.Name)
	}
	switch a.Goal {
	case state.GoalOccupy, state.GoalEliminate, state.GoalSupply, state.GoalReplace:
	default:
		return failf("unknown goal %q", a.Goal)
	}
	if a.Equipment < 1 || a.Equipment > army.Capacity() {
		return failf("equipment must be between 1 and %d", army.Capacity())
	}
	if team.Storage[entities.MaterialWeapons].LessThan(decimal.NewFromInt(int64(a.Equipment))) {
		return failf("the team stores only %s of %s",
			team.Storage[entities.MaterialWeapons], Ref(entities.MaterialWeapons))
	}
	tile, ok := c.Entities.TilesByIndex[a.Tile]
	if !ok {
		return failf("no tile with index %d", a.Tile)
	}
	if !team.Discovered.Has(tile.ID) {
		return failf("tile %s has not been discovered", Ref(tile.ID))
	}
	if a.FriendlyTeam != "" {
		if a.Goal != state.GoalSupply {
			return failf("a friendly team only makes sense for a supply march")
		}
		if _, err := c.TeamState(a.FriendlyTeam); err != nil {
			return err
		}
	}
	return nil
}

func (a *ArmyDeployAction) Effect(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	army := c.State.Map.Army(a.Team, a.Army)
	if army == nil {
		return invariantf("army %s/%d vanished between phases", a.Team, a.Army)
	}
	if army.Mode != state.ArmyIdle {
		return failf("army %s is no longer at home", army.Name)
	}
	equipment := decimal.NewFromInt(int64(a.Equipment))
	if team.Storage[entities.MaterialWeapons].LessThan(equipment) {
		return failf("not enough stored %s", Ref(entities.MaterialWeapons))
	}
	team.Storage[entities.MaterialWeapons] = team.Storage[entities.MaterialWeapons].Sub(equipment)

	army.Mode = state.ArmyMarching
	army.Tile = a.Tile
	army.Goal = a.Goal
	army.Equipment = a.Equipment
	army.FriendlyTeam = a.FriendlyTeam

	travel := a.travelSeconds(c, team)
	if err := c.Schedule(TypeArmyArrival, a.Team, &ArmyArrivalAction{
		teamArgs: teamArgs{Team: a.Team},
		Army:     a.Army,
		Tile:     a.Tile,
	}, travel); err != nil {
		return err
	}

	c.Messages.Infof("Army %s marches on tile %d and arrives in %d seconds.", army.Name, a.Tile, travel)
	if defender := c.State.Map.OccupantOf(a.Tile); defender != nil && defender.Team != a.Team {
		c.Notify(defender.Team, "An army of %s is marching on tile %d.", Ref(a.Team), a.Tile)
	}
	return nil
}

// travelSeconds derives march time from map distance, halved by a road to the
// target and halved again when the team already holds the target.
func (a *ArmyDeployAction) travelSeconds(c *Context, team *state.TeamState) int {
	home := -1
	if ent, ok := c.Entities.Teams[a.Team]; ok {
		home = ent.HomeIndex
	}
	travel := c.State.Map.Distance(home, a.Tile) * TileTravelSeconds
	if tile, ok := c.Entities.TilesByIndex[a.Tile]; ok && team.RoadsTo.Has(tile.ID) {
		travel /= 2
	}
	if occ := c.State.Map.OccupantOf(a.Tile); occ != nil && occ.Team == a.Team {
		travel /= 2
	}
	if travel < MinTravelSeconds {
		travel = MinTravelSeconds
	}
	return travel
}

type ArmyRetreatAction struct {
	teamArgs
	noCost
	noDice
	Army int `json:"army"`
}

func (*ArmyRetreatAction) Type() string { return TypeArmyRetreat }

func (a *ArmyRetreatAction) Validate(c *Context) error {
	if _, err := c.TeamState(a.Team); err != nil {
		return err
	}
	army := c.State.Map.Army(a.Team, a.Army)
	if army == nil {
		return failf("team %s has no army %d", Ref(a.Team), a.Army)
	}
	if army.Mode == state.ArmyIdle {
		return failf("army %s is already at home", army.Name)
	}
	return nil
}

func (a *ArmyRetreatAction) Effect(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	army := c.State.Map.Army(a.Team, a.Army)
	if army == nil {
		return invariantf("army %s/%d vanished between phases", a.Team, a.Army)
	}
	if army.Mode == state.ArmyIdle {
		return failf("army %s is already at home", army.Name)
	}
	refundEquipment(c, team, army.Retreat())
	c.Messages.Infof("Army %s returned home.", army.Name)
	return nil
}

type ArmyUpgradeAction struct {
	teamArgs
	noDice
	Army int `json:"army"`
}

func (*ArmyUpgradeAction) Type() string { return TypeArmyUpgrade }

const maxArmyLevel = 3

func (a *ArmyUpgradeAction) Validate(c *Context) error {
	if _, err := c.TeamState(a.Team); err != nil {
		return err
	}
	army := c.State.Map.Army(a.Team, a.Army)
	if army == nil {
		return failf("team %s has no army %d", Ref(a.Team), a.Army)
	}
	if army.Mode != state.ArmyIdle {
		return failf("army %s must be at home to upgrade", army.Name)
	}
	if army.Level >= maxArmyLevel {
		return failf("army %s is already at the highest level", army.Name)
	}
	return nil
}

func (a *ArmyUpgradeAction) Cost(c *Context) state.Amounts {
	army := c.State.Map.Army(a.Team, a.Army)
	if army == nil {
		return nil
	}
	next := int64(army.Level + 1)
	return state.Amounts{
		entities.ResourceWork: decimal.NewFromInt(20 * next),
	}
}

func (a *ArmyUpgradeAction) Effect(c *Context) error {
	army := c.State.Map.Army(a.Team, a.Army)
	if army == nil {
		return invariantf("army %s/%d vanished between phases", a.Team, a.Army)
	}
	if army.Mode != state.ArmyIdle || army.Level >= maxArmyLevel {
		return failf("army %s can no longer be upgraded", army.Name)
	}
	army.Level++
	c.Messages.Infof("Army %s is now level %d (capacity %d).", army.Name, army.Level, army.Capacity())
	return nil
}

type RenameArmyAction struct {
	teamArgs
	noCost
	noDice
	Army int    `json:"army"`
	Name string `json:"name"`
}

func (*RenameArmyAction) Type() string { return TypeRenameArmy }

func (a *RenameArmyAction) Validate(c *Context) error {
	if _, err := c.TeamState(a.Team); err != nil {
		return err
	}
	if a.Name == "" {
		return failf("the new name must not be empty")
	}
	if c.State.Map.Army(a.Team, a.Army) == nil {
		return failf("team %s has no army %d", Ref(a.Team), a.Army)
	}
	return nil
}

func (a *RenameArmyAction) Effect(c *Context) error {
	army := c.State.Map.Army(a.Team, a.Army)
	if army == nil {
		return invariantf("army %s/%d vanished between phases", a.Team, a.Army)
	}
	old := army.Name
	army.Name = a.Name
	c.Messages.Infof("Army %q is now called %q.", old, a.Name)
	return nil
}

// refundEquipment returns weapons to team storage. Weapons are the uncapped
// material, so nothing is lost.
func refundEquipment(c *Context, team *state.TeamState, count int) {
	if count <= 0 {
		return
	}
	team.ReceiveResources(c.Entities, state.Amounts{
		entities.MaterialWeapons: decimal.NewFromInt(int64(count)),
	}, false)
}
