package game

import (
	"github.com/shopspring/decimal"

	"civilizace.org/internal/entities"
	"civilizace.org/internal/state"
)

// WithdrawAction hands stored materials out to the team.
type WithdrawAction struct {
	teamArgs
	noCost
	noDice
	Resources state.Amounts `json:"resources"`
}

func (*WithdrawAction) Type() string { return TypeWithdraw }

func (a *WithdrawAction) Validate(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	if len(a.Resources) == 0 {
		return failf("nothing to withdraw")
	}
	for id, amount := range a.Resources {
		res, ok := c.Entities.Resources[id]
		if !ok {
			return failf("unknown resource %s", Ref(id))
		}
		if res.Tracked() {
			return failf("%s is a production and cannot be withdrawn from storage", Ref(id))
		}
		if amount.Sign() <= 0 {
			return failf("withdraw amount for %s must be positive", Ref(id))
		}
		if team.Storage[id].LessThan(amount) {
			return failf("storage has only %s of %s", team.Storage[id], Ref(id))
		}
	}
	return nil
}

func (a *WithdrawAction) Effect(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	sec := c.Messages.BeginSection("Hand out:")
	defer sec.End()
	for _, id := range a.Resources.SortedIDs() {
		amount := a.Resources[id]
		if team.Storage[id].LessThan(amount) {
			return failf("storage has only %s of %s", team.Storage[id], Ref(id))
		}
		team.Storage[id] = team.Storage[id].Sub(amount)
		sec.Addf("%s", RefAmount(id, amount))
	}
	c.RecordWithdrawn(a.Resources)
	return nil
}

// TradeAction moves tracked production from the acting team to a receiver.
type TradeAction struct {
	teamArgs
	noDice
	Receiver  entities.EntityID `json:"receiver"`
	Resources state.Amounts     `json:"resources"`
}

func (*TradeAction) Type() string { return TypeTrade }

func (a *TradeAction) Validate(c *Context) error {
	if _, err := c.TeamState(a.Team); err != nil {
		return err
	}
	if a.Receiver == a.Team {
		return failf("cannot trade with yourself")
	}
	if _, err := c.TeamState(a.Receiver); err != nil {
		return err
	}
	if len(a.Resources) == 0 {
		return failf("nothing to trade")
	}
	for id, amount := range a.Resources {
		res, ok := c.Entities.Resources[id]
		if !ok {
			return failf("unknown resource %s", Ref(id))
		}
		if !res.Tracked() {
			return failf("material %s is handed over physically, not traded", Ref(id))
		}
		if id == entities.ResourceVillager || id == entities.ResourceWork {
			return failf("%s cannot be traded", Ref(id))
		}
		if amount.Sign() <= 0 {
			return failf("trade amount for %s must be positive", Ref(id))
		}
	}
	return nil
}

// Cost charges the traded production to the sender at initiate.
func (a *TradeAction) Cost(c *Context) state.Amounts {
	return a.Resources.Clone()
}

func (a *TradeAction) Effect(c *Context) error {
	receiver, err := c.TeamState(a.Receiver)
	if err != nil {
		return err
	}
	receiver.ReceiveResources(c.Entities, a.Resources, false)
	sec := c.Messages.BeginSection("Sent:")
	for _, id := range a.Resources.SortedIDs() {
		sec.Addf("%s", RefAmount(id, a.Resources[id]))
	}
	sec.End()
	c.Notify(a.Receiver, "Team %s sent you resources.", Ref(a.Team))
	return nil
}

// FeedAction is the per-team turn upkeep: the org enters the food the team
// brought, castes get fed, population grows, the team turn advances and the
// work allowance resets.
type FeedAction struct {
	teamArgs
	noCost
	noDice
	Food state.Amounts `json:"food"`
}

func (*FeedAction) Type() string { return TypeFeed }

// TurnWorkAllowance is the work balance every team starts a turn with.
var TurnWorkAllowance = decimal.NewFromInt(100)

func (a *FeedAction) Validate(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	if c.State.World.Turn == 0 {
		return failf("the game has not started yet")
	}
	if team.Turn >= c.State.World.Turn {
		return failf("the team was already fed this turn")
	}
	for id := range a.Food {
		res, ok := c.Entities.Resources[id]
		if !ok {
			return failf("unknown resource %s", Ref(id))
		}
		if res.Tracked() {
			return failf("%s is not food the team can bring", Ref(id))
		}
	}
	return nil
}

func (a *FeedAction) Effect(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	demand := a.demandPerCaste(team)
	fed := 0
	var supplied decimal.Decimal
	for _, amount := range a.Food {
		supplied = supplied.Add(amount)
	}
	for fed < c.State.World.CasteCount && supplied.GreaterThanOrEqual(demand) && demand.Sign() > 0 {
		supplied = supplied.Sub(demand)
		fed++
	}

	growth := decimal.NewFromInt(int64(fed))
	if growth.Sign() > 0 {
		team.Resources[entities.ResourceVillager] = team.Resources[entities.ResourceVillager].Add(growth)
	}
	team.Turn = c.State.World.Turn
	team.Resources[entities.ResourceWork] = TurnWorkAllowance

	c.Messages.Infof("Fed %d of %d castes.", fed, c.State.World.CasteCount)
	if fed < c.State.World.CasteCount {
		c.Messages.Warnf("Some castes went hungry; no growth from them.")
	}
	if growth.Sign() > 0 {
		c.Messages.Infof("Population grew by %s.", RefAmount(entities.ResourceVillager, growth))
	}
	return nil
}

// demandPerCaste scales food demand with population.
func (a *FeedAction) demandPerCaste(team *state.TeamState) decimal.Decimal {
	return team.Population().Div(decimal.NewFromInt(20)).Ceil()
}
