package game

import (
	"github.com/shopspring/decimal"

	"civilizace.org/internal/entities"
	"civilizace.org/internal/state"
)

// TaskStartAction assigns a hands-on task gating a research in progress.
type TaskStartAction struct {
	teamArgs
	noCost
	noDice
	Tech entities.EntityID `json:"tech"`
	Task entities.EntityID `json:"task"`
}

func (*TaskStartAction) Type() string { return TypeTaskStart }

func (a *TaskStartAction) Validate(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	task, ok := c.Entities.Tasks[a.Task]
	if !ok {
		return failf("unknown task %s", Ref(a.Task))
	}
	if !team.Researching.Has(a.Tech) {
		return failf("%s is not being researched", Ref(a.Tech))
	}
	if assigned, ok := team.Tasks[a.Tech]; ok {
		return failf("research of %s already has task %s", Ref(a.Tech), Ref(assigned))
	}
	if len(task.Techs) > 0 {
		gates := false
		for _, id := range task.Techs {
			if id == a.Tech {
				gates = true
				break
			}
		}
		if !gates {
			return failf("task %s does not apply to %s", Ref(a.Task), Ref(a.Tech))
		}
	}
	holders := 0
	for _, other := range c.State.Teams {
		for _, t := range other.Tasks {
			if t == a.Task {
				holders++
			}
		}
	}
	if holders >= task.Capacity {
		return failf("task %s is already held by %d teams", Ref(a.Task), holders)
	}
	return nil
}

func (a *TaskStartAction) Effect(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	team.Tasks[a.Tech] = a.Task
	c.Messages.Infof("Task %s was assigned for %s.", Ref(a.Task), Ref(a.Tech))
	return nil
}

// TaskFinishAction records a completed task, unblocking the research finish.
type TaskFinishAction struct {
	teamArgs
	noCost
	noDice
	Tech entities.EntityID `json:"tech"`
}

func (*TaskFinishAction) Type() string { return TypeTaskFinish }

func (a *TaskFinishAction) Validate(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	if _, ok := team.Tasks[a.Tech]; !ok {
		return failf("research of %s has no task assigned", Ref(a.Tech))
	}
	return nil
}

func (a *TaskFinishAction) Effect(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	task, ok := team.Tasks[a.Tech]
	if !ok {
		return failf("research of %s has no task assigned", Ref(a.Tech))
	}
	team.FinishedTasks.Add(task)
	c.Messages.Infof("Task %s is done; %s can be finished.", Ref(task), Ref(a.Tech))
	return nil
}

// AddStickerAction grants a sticker outside the automatic reward diff.
type AddStickerAction struct {
	teamArgs
	noCost
	noDice
	Entity entities.EntityID `json:"entity"`
}

func (*AddStickerAction) Type() string { return TypeAddSticker }

func (a *AddStickerAction) Validate(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	if !c.Entities.Has(a.Entity) {
		return failf("unknown entity %s", Ref(a.Entity))
	}
	if team.ExtraStickers.Has(a.Entity) {
		return failf("the team already holds a sticker for %s", Ref(a.Entity))
	}
	return nil
}

func (a *AddStickerAction) Effect(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	team.ExtraStickers.Add(a.Entity)
	c.Messages.Infof("Sticker for %s granted.", Ref(a.Entity))
	return nil
}

// GodModeAction is the org escape hatch: raw resource and world edits, never
// dice-gated, always flagged in the result.
type GodModeAction struct {
	teamArgs
	noCost
	noDice
	Add    state.Amounts `json:"add,omitempty"`
	Remove state.Amounts `json:"remove,omitempty"`

	SetTurn             *int `json:"set_turn,omitempty"`
	SetCasteCount       *int `json:"set_caste_count,omitempty"`
	SetCombatRandomness *int `json:"set_combat_randomness,omitempty"`
}

func (*GodModeAction) Type() string { return TypeGodMode }

func (a *GodModeAction) Validate(c *Context) error {
	if a.Team == "" && (len(a.Add) > 0 || len(a.Remove) > 0) {
		return failf("resource edits need a team")
	}
	if a.Team != "" {
		if _, err := c.TeamState(a.Team); err != nil {
			return err
		}
	}
	for id := range a.Add {
		if _, ok := c.Entities.Resources[id]; !ok {
			return failf("unknown resource %s", Ref(id))
		}
	}
	for id := range a.Remove {
		if _, ok := c.Entities.Resources[id]; !ok {
			return failf("unknown resource %s", Ref(id))
		}
	}
	return nil
}

func (a *GodModeAction) Effect(c *Context) error {
	c.Messages.Warnf("Manual intervention by the org.")
	if a.Team != "" {
		team, err := c.TeamState(a.Team)
		if err != nil {
			return err
		}
		for id, amount := range a.Add {
			team.Resources[id] = team.Resources[id].Add(amount)
		}
		for id, amount := range a.Remove {
			next := team.Resources[id].Sub(amount)
			if next.Sign() < 0 {
				next = decimal.Zero
			}
			team.Resources[id] = next
		}
	}
	if a.SetTurn != nil {
		c.State.World.Turn = *a.SetTurn
	}
	if a.SetCasteCount != nil {
		c.State.World.CasteCount = *a.SetCasteCount
	}
	if a.SetCombatRandomness != nil {
		c.State.World.CombatRandomness = *a.SetCombatRandomness
	}
	c.Messages.Infof("Edits applied.")
	return nil
}

// NextTurnAction advances the world turn, stamps the turn start time and
// refreshes tile richness tokens.
type NextTurnAction struct {
	noCost
	noDice
}

func (*NextTurnAction) Type() string { return TypeNextTurn }

func (*NextTurnAction) TeamID() entities.EntityID { return "" }

func (*NextTurnAction) Validate(*Context) error { return nil }

func (a *NextTurnAction) Effect(c *Context) error {
	c.State.World.Turn++
	c.State.World.TurnStartedAt = c.Now.Unix()
	for _, tile := range c.State.Map.Tiles {
		if ent, ok := c.Entities.TilesByIndex[tile.Index]; ok {
			tile.RichnessTokens = ent.Richness
		}
	}
	c.Messages.Infof("Turn %d has started.", c.State.World.Turn)
	for _, teamID := range c.Entities.TeamIDs() {
		c.Notify(teamID, "Turn %d has started.", c.State.World.Turn)
	}
	return nil
}
