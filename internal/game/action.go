package game

import (
	"encoding/json"
	"fmt"
	"time"

	"civilizace.org/internal/entities"
	"civilizace.org/internal/state"
)

// DiceRequirement names the dice acceptable for an action and the dots the
// throw must reach. Zero dots means no throw is needed at all.
type DiceRequirement struct {
	Dice []entities.EntityID
	Dots int
}

func (d DiceRequirement) Required() bool { return d.Dots > 0 }

// Pending is a delayed application of an action, recorded at commit and
// executed later by the scheduler against the then-current state.
type Pending struct {
	Type   string
	Team   entities.EntityID
	Args   json.RawMessage
	DelayS int
}

// Context carries one phase transition's working set. All mutation happens
// through it, synchronously; nothing here blocks.
type Context struct {
	Entities *entities.Entities
	State    *state.GameState
	Messages *MessageBuilder
	Now      time.Time

	notifications map[entities.EntityID][]string
	scheduled     []Pending
	withdrawn     state.Amounts
}

// RecordWithdrawn accumulates materials the effect hands straight to the team.
func (c *Context) RecordWithdrawn(a state.Amounts) {
	if len(a) == 0 {
		return
	}
	if c.withdrawn == nil {
		c.withdrawn = state.Amounts{}
	}
	for id, amount := range a {
		c.withdrawn[id] = c.withdrawn[id].Add(amount)
	}
}

// TeamState resolves a team's state. A team present in the catalog but absent
// from the state is a defect, not a player mistake.
func (c *Context) TeamState(id entities.EntityID) (*state.TeamState, error) {
	if _, ok := c.Entities.Teams[id]; !ok {
		return nil, failf("unknown team %s", Ref(id))
	}
	t, ok := c.State.Teams[id]
	if !ok {
		return nil, invariantf("team %q has no state", id)
	}
	return t, nil
}

// Notify queues a message for another team, delivered with the result.
func (c *Context) Notify(team entities.EntityID, format string, args ...any) {
	if c.notifications == nil {
		c.notifications = map[entities.EntityID][]string{}
	}
	c.notifications[team] = append(c.notifications[team], fmt.Sprintf(format, args...))
}

// Schedule defers an action application by delayS game-seconds.
func (c *Context) Schedule(actionType string, team entities.EntityID, args any, delayS int) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return invariantf("marshal scheduled %s args: %v", actionType, err)
	}
	c.scheduled = append(c.scheduled, Pending{
		Type:   actionType,
		Team:   team,
		Args:   raw,
		DelayS: delayS,
	})
	return nil
}

// Action is the common capability surface of every action kind. Validate runs
// before any payment; Effect runs at commit (or at the delayed due time) and
// is the only place the variant mutates state.
type Action interface {
	Type() string
	TeamID() entities.EntityID // empty for world-level actions
	Cost(c *Context) state.Amounts
	Dice(c *Context) DiceRequirement
	Validate(c *Context) error
	Effect(c *Context) error
}

// Delayed is implemented by actions whose effect is deferred: commit records a
// scheduled application instead of running Effect.
type Delayed interface {
	Action
	DelaySeconds(c *Context) int
}

// Embeddable defaults for kinds without a cost or dice throw.

type noCost struct{}

func (noCost) Cost(*Context) state.Amounts { return nil }

type noDice struct{}

func (noDice) Dice(*Context) DiceRequirement { return DiceRequirement{} }

type teamArgs struct {
	Team entities.EntityID `json:"team"`
}

func (a teamArgs) TeamID() entities.EntityID { return a.Team }
