package game

import (
	"github.com/shopspring/decimal"

	"civilizace.org/internal/entities"
	"civilizace.org/internal/state"
)

type VyrobaAction struct {
	teamArgs
	Vyroba entities.EntityID `json:"vyroba"`
	Count  int               `json:"count"`
	Tile   int               `json:"tile"`
}

func (*VyrobaAction) Type() string { return TypeVyroba }

func (a *VyrobaAction) vyroba(c *Context) (*entities.Vyroba, error) {
	v, ok := c.Entities.Vyrobas[a.Vyroba]
	if !ok {
		return nil, failf("unknown vyroba %s", Ref(a.Vyroba))
	}
	return v, nil
}

func (a *VyrobaAction) Validate(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	v, err := a.vyroba(c)
	if err != nil {
		return err
	}
	if a.Count < 1 {
		return failf("count must be at least 1")
	}
	unlocked := false
	for _, id := range team.UnlockedVyrobas(c.Entities) {
		if id == a.Vyroba {
			unlocked = true
			break
		}
	}
	if !unlocked {
		return failf("vyroba %s is not unlocked by any owned technology", Ref(a.Vyroba))
	}
	if v.RequiredBuilding != "" {
		tile, ok := c.State.Map.Tiles[a.Tile]
		if !ok {
			return failf("no tile with index %d", a.Tile)
		}
		if !tile.Buildings.Has(v.RequiredBuilding) {
			return failf("tile %d has no %s", a.Tile, Ref(v.RequiredBuilding))
		}
		if !teamControlsTile(c, a.Team, a.Tile) {
			return failf("the team does not control tile %d", a.Tile)
		}
	}
	return nil
}

func (a *VyrobaAction) Cost(c *Context) state.Amounts {
	v, err := a.vyroba(c)
	if err != nil {
		return nil
	}
	mult := decimal.NewFromInt(int64(a.Count))
	cost := state.Amounts{}
	for id, amount := range v.Cost {
		cost[id] = amount.Mul(mult)
	}
	return cost
}

func (a *VyrobaAction) Dice(c *Context) DiceRequirement {
	v, err := a.vyroba(c)
	if err != nil || v.Die == "" {
		return DiceRequirement{}
	}
	return DiceRequirement{Dice: []entities.EntityID{v.Die}, Dots: v.Dots}
}

func (a *VyrobaAction) Effect(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	v, err := a.vyroba(c)
	if err != nil {
		return err
	}
	produced := v.OutputAmount.Mul(decimal.NewFromInt(int64(a.Count)))
	out := state.Amounts{v.Output: produced}
	withdrawn := team.ReceiveResources(c.Entities, out, v.InstantWithdraw)
	c.RecordWithdrawn(withdrawn)
	c.Messages.Infof("Produced %s.", RefAmount(v.Output, produced))
	if len(withdrawn) > 0 {
		c.Messages.Infof("Hand %s straight to the team.", RefAmount(v.Output, withdrawn[v.Output]))
	}
	return nil
}

// teamControlsTile: home tile, colonized island, or a tile occupied by one of
// the team's armies.
func teamControlsTile(c *Context, team entities.EntityID, tileIndex int) bool {
	if ent, ok := c.Entities.Teams[team]; ok && ent.HomeIndex == tileIndex {
		return true
	}
	if tile, ok := c.State.Map.Tiles[tileIndex]; ok && tile.Owner == team {
		return true
	}
	if occ := c.State.Map.OccupantOf(tileIndex); occ != nil && occ.Team == team {
		return true
	}
	return false
}
