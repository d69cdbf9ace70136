package game

import (
	"civilizace.org/internal/state"
)

// ArmyArrivalAction is the delayed half of a deploy. It runs against the
// then-current state, so every branch re-checks its preconditions.
type ArmyArrivalAction struct {
	teamArgs
	noCost
	noDice
	Army int `json:"army"`
	Tile int `json:"tile"`
}

func (*ArmyArrivalAction) Type() string { return TypeArmyArrival }

func (a *ArmyArrivalAction) Validate(c *Context) error {
	if _, err := c.TeamState(a.Team); err != nil {
		return err
	}
	return nil
}

func (a *ArmyArrivalAction) Effect(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	army := c.State.Map.Army(a.Team, a.Army)
	if army == nil {
		return invariantf("army %s/%d vanished before arrival", a.Team, a.Army)
	}
	if army.Mode != state.ArmyMarching || army.Tile != a.Tile {
		return failf("army %s is no longer marching on tile %d", army.Name, a.Tile)
	}

	defender := c.State.Map.OccupantOf(a.Tile)
	goal := army.Goal

	switch {
	case defender == nil:
		if goal == state.GoalOccupy || goal == state.GoalReplace {
			a.occupy(c, army)
			return nil
		}
		// Nothing to eliminate or supply; march home.
		refundEquipment(c, team, army.Retreat())
		c.Messages.Infof("Tile %d was empty; army %s returned home.", a.Tile, army.Name)
		return nil

	case defender.Team == a.Team:
		switch goal {
		case state.GoalEliminate:
			refundEquipment(c, team, army.Retreat())
			c.Messages.Infof("Own army holds tile %d; army %s returned home.", a.Tile, army.Name)
		case state.GoalReplace:
			// Swap occupants; whatever does not fit the newcomer comes home.
			carried := army.Equipment + defender.Retreat()
			army.Equipment = carried
			if army.Equipment > army.Capacity() {
				refundEquipment(c, team, army.Equipment-army.Capacity())
				army.Equipment = army.Capacity()
			}
			a.occupy(c, army)
			c.Messages.Infof("Army %s took over the watch on tile %d.", army.Name, a.Tile)
		default:
			// Supply.
			a.transferEquipment(c, team, army, defender)
		}
		return nil

	case goal == state.GoalSupply && army.FriendlyTeam == defender.Team:
		a.transferEquipment(c, team, army, defender)
		c.Notify(defender.Team, "Team %s reinforced your army on tile %d.", Ref(a.Team), a.Tile)
		return nil

	default:
		return a.battle(c, team, army, defender)
	}
}

func (a *ArmyArrivalAction) occupy(c *Context, army *state.Army) {
	army.Mode = state.ArmyOccupying
	army.Tile = a.Tile
	army.Goal = state.GoalNone
	army.FriendlyTeam = ""
	c.Messages.Infof("Army %s occupies tile %d with %d equipment.", army.Name, a.Tile, army.Equipment)
}

// transferEquipment moves as much equipment as fits into the receiver, then
// sends the supplier home with the remainder refunded.
func (a *ArmyArrivalAction) transferEquipment(c *Context, team *state.TeamState, from, to *state.Army) {
	room := to.Capacity() - to.Equipment
	moved := from.Equipment
	if moved > room {
		moved = room
	}
	to.Equipment += moved
	from.Equipment -= moved
	refundEquipment(c, team, from.Retreat())
	c.Messages.Infof("Transferred %d equipment to the army on tile %d.", moved, a.Tile)
}

// battle resolves an attack deterministically. Each side inflicts half its
// strength as casualties; equal remaining strength favors the defender.
func (a *ArmyArrivalAction) battle(c *Context, team *state.TeamState, attacker, defender *state.Army) error {
	defenderTeamState, err := c.TeamState(defender.Team)
	if err != nil {
		return err
	}

	defenderCasualties := attacker.Strength() / 2
	attackerCasualties := defender.Strength() / 2

	attacker.Equipment -= attackerCasualties
	if attacker.Equipment < 0 {
		attacker.Equipment = 0
	}
	defender.Equipment -= defenderCasualties
	if defender.Equipment < 0 {
		defender.Equipment = 0
	}

	c.Messages.Infof("Battle on tile %d: attacker lost %d equipment, defender lost %d.",
		a.Tile, attackerCasualties, defenderCasualties)
	c.Notify(defender.Team, "Your army on tile %d was attacked by %s.", a.Tile, Ref(attacker.Team))

	if defender.Strength() >= attacker.Strength() {
		// Defender holds, ties included.
		refundEquipment(c, team, attacker.Retreat())
		c.Messages.Infof("The attack failed; army %s returned home.", attacker.Name)
		c.Notify(defender.Team, "Your army on tile %d held its ground.", a.Tile)
		return nil
	}

	refundEquipment(c, defenderTeamState, defender.Retreat())
	c.Notify(defender.Team, "Your army on tile %d was defeated and returned home.", a.Tile)

	if attacker.Goal == state.GoalEliminate || attacker.Equipment == 0 {
		refundEquipment(c, team, attacker.Retreat())
		c.Messages.Infof("Army %s cleared tile %d and returned home.", attacker.Name, a.Tile)
		return nil
	}
	a.occupy(c, attacker)
	return nil
}
