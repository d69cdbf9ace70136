package game

import (
	"civilizace.org/internal/entities"
	"civilizace.org/internal/state"
)

type ResearchStartAction struct {
	teamArgs
	Tech entities.EntityID `json:"tech"`
}

func (*ResearchStartAction) Type() string { return TypeResearchStart }

func (a *ResearchStartAction) tech(c *Context) (*entities.Tech, error) {
	t, ok := c.Entities.Techs[a.Tech]
	if !ok {
		return nil, failf("unknown technology %s", Ref(a.Tech))
	}
	return t, nil
}

func (a *ResearchStartAction) Validate(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	if _, err := a.tech(c); err != nil {
		return err
	}
	if team.Techs.Has(a.Tech) {
		return failf("technology %s is already researched", Ref(a.Tech))
	}
	if team.Researching.Has(a.Tech) {
		return failf("research of %s is already underway", Ref(a.Tech))
	}
	if !unlockedBy(c.Entities, team, a.Tech) {
		return failf("no owned technology unlocks %s", Ref(a.Tech))
	}
	return nil
}

func (a *ResearchStartAction) Cost(c *Context) state.Amounts {
	t, err := a.tech(c)
	if err != nil {
		return nil
	}
	return state.Amounts(t.Cost).Clone()
}

func (a *ResearchStartAction) Dice(c *Context) DiceRequirement {
	t, err := a.tech(c)
	if err != nil {
		return DiceRequirement{}
	}
	return DiceRequirement{Dice: t.Dice, Dots: t.Dots}
}

func (a *ResearchStartAction) Effect(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	t, err := a.tech(c)
	if err != nil {
		return err
	}
	team.Researching.Add(a.Tech)
	c.Messages.Infof("Research of %s has started.", Ref(a.Tech))
	if t.Task != "" {
		c.Messages.Infof("Assign task %s before the research can be finished.", Ref(t.Task))
	}
	return nil
}

type ResearchFinishAction struct {
	teamArgs
	noCost
	noDice
	Tech entities.EntityID `json:"tech"`
}

func (*ResearchFinishAction) Type() string { return TypeResearchFinish }

func (a *ResearchFinishAction) Validate(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	tech, ok := c.Entities.Techs[a.Tech]
	if !ok {
		return failf("unknown technology %s", Ref(a.Tech))
	}
	if !team.Researching.Has(a.Tech) {
		return failf("%s is not being researched", Ref(a.Tech))
	}
	if task, assigned := team.Tasks[a.Tech]; assigned && !team.FinishedTasks.Has(task) {
		return failf("task %s for %s is not finished yet", Ref(task), Ref(a.Tech))
	} else if !assigned && tech.Task != "" {
		c.Messages.Warnf("Technology %s has task %s available but none was assigned.", Ref(a.Tech), Ref(tech.Task))
	}
	return nil
}

func (a *ResearchFinishAction) Effect(c *Context) error {
	team, err := c.TeamState(a.Team)
	if err != nil {
		return err
	}
	tech, ok := c.Entities.Techs[a.Tech]
	if !ok {
		return invariantf("tech %q vanished between phases", a.Tech)
	}
	team.Researching.Remove(a.Tech)
	team.Techs.Add(a.Tech)
	delete(team.Tasks, a.Tech)
	c.Messages.Infof("Research of %s is complete.", Ref(a.Tech))
	if len(tech.Unlocks) > 0 {
		sec := c.Messages.BeginSection("Newly available:")
		for _, id := range tech.Unlocks {
			sec.Addf("%s", Ref(id))
		}
		sec.End()
	}
	return nil
}

// unlockedBy reports whether any owned tech has an unlock edge to target.
// The starting tech is always reachable.
func unlockedBy(ents *entities.Entities, team *state.TeamState, target entities.EntityID) bool {
	if target == state.TechStart {
		return true
	}
	for id := range team.Techs {
		tech, ok := ents.Techs[id]
		if !ok {
			continue
		}
		for _, ref := range tech.Unlocks {
			if ref == target {
				return true
			}
		}
	}
	return false
}
