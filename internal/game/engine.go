package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"civilizace.org/internal/entities"
	"civilizace.org/internal/state"
)

// DefaultThrowCost is the work each physical dice throw consumes.
const DefaultThrowCost = 1

type Phase string

const (
	PhaseCreated   Phase = "created"
	PhaseInitiated Phase = "initiated"
	PhaseCommitted Phase = "committed"
	PhaseAbandoned Phase = "abandoned"
	PhaseCanceled  Phase = "canceled"
)

// Instance carries one action across its phases. It is the unit the store
// persists as an audit record; the Action itself is rebuilt from Type+Args for
// every transition.
type Instance struct {
	ID   string            `json:"id"`
	Type string            `json:"type"`
	Team entities.EntityID `json:"team"`
	Args json.RawMessage   `json:"args"`

	Phase Phase `json:"phase"`

	// Tracked production reserved at initiate, refunded on abandon/cancel.
	Paid state.Amounts `json:"paid"`
	// Untracked materials the org collects physically; never refunded.
	Materials state.Amounts `json:"materials"`
}

// Result is the outcome of one phase transition. Expected is false for the
// first-class "insufficient roll" abandon outcome, which is neither success
// nor failure.
type Result struct {
	Expected      bool
	Message       string
	Notifications map[entities.EntityID][]string
	Scheduled     []Pending
	Withdrawn     state.Amounts
}

// Engine drives actions through the phase protocol against one catalog
// revision and one game state. It performs no I/O; the collaborator persists
// the mutated state as a new revision after each successful transition.
type Engine struct {
	ents      *entities.Entities
	st        *state.GameState
	throwCost decimal.Decimal
	now       func() time.Time
}

func NewEngine(ents *entities.Entities, st *state.GameState) *Engine {
	return &Engine{
		ents:      ents,
		st:        st,
		throwCost: decimal.NewFromInt(DefaultThrowCost),
		now:       time.Now,
	}
}

// SetClock overrides the engine clock, for tests and replays.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// NewInstance constructs an action instance in the Created phase, verifying
// the arguments parse for the kind.
func (e *Engine) NewInstance(actionType string, team entities.EntityID, args json.RawMessage) (*Instance, error) {
	a, err := Construct(actionType, args)
	if err != nil {
		return nil, err
	}
	if a.TeamID() != team {
		return nil, failf("action arguments name team %q but request is for %q", a.TeamID(), team)
	}
	return &Instance{
		ID:    uuid.NewString(),
		Type:  actionType,
		Team:  team,
		Args:  args,
		Phase: PhaseCreated,
	}, nil
}

func (e *Engine) context() *Context {
	return &Context{
		Entities: e.ents,
		State:    e.st,
		Messages: &MessageBuilder{},
		Now:      e.now(),
	}
}

func (e *Engine) rebuild(inst *Instance) (Action, error) {
	a, err := Construct(inst.Type, inst.Args)
	if err != nil {
		// Args were accepted at construction; a parse failure now is a schema
		// mismatch, not a player mistake.
		return nil, invariantf("rebuild %s %s: %v", inst.Type, inst.ID, err)
	}
	return a, nil
}

// Initiate validates the action and reserves its cost. Tracked production is
// deducted here and must be refunded on abandon or cancel; materials are only
// recorded for physical collection. A failure mutates nothing.
func (e *Engine) Initiate(inst *Instance) (*Result, error) {
	if inst.Phase != PhaseCreated {
		return nil, fmt.Errorf("%w: initiate from phase %q", ErrPhaseConflict, inst.Phase)
	}
	a, err := e.rebuild(inst)
	if err != nil {
		return nil, err
	}
	ctx := e.context()

	if err := a.Validate(ctx); err != nil {
		return nil, err
	}
	if ctx.Messages.HasErrors() {
		return nil, &ActionFailed{Message: ctx.Messages.RenderErrors()}
	}

	cost := a.Cost(ctx)
	paid := state.Amounts{}
	materials := state.Amounts{}
	if len(cost) > 0 {
		team, err := ctx.TeamState(inst.Team)
		if err != nil {
			return nil, err
		}
		materials, err = team.PayResources(e.ents, cost)
		if err != nil {
			var short *state.ShortfallError
			if errors.As(err, &short) {
				sec := ctx.Messages.BeginErrorSection("Missing resources:")
				for _, id := range short.Missing.SortedIDs() {
					sec.Addf("%s", RefAmount(id, short.Missing[id]))
				}
				sec.End()
				return nil, &ActionFailed{Message: ctx.Messages.RenderErrors()}
			}
			return nil, &InvariantError{Err: err}
		}
		for id, amount := range cost {
			if res, ok := e.ents.Resources[id]; ok && res.Tracked() && amount.Sign() > 0 {
				paid[id] = amount
			}
		}
	}

	inst.Paid = paid
	inst.Materials = materials
	inst.Phase = PhaseInitiated

	if len(paid) > 0 {
		sec := ctx.Messages.BeginSection("Paid:")
		for _, id := range paid.SortedIDs() {
			sec.Addf("%s", RefAmount(id, paid[id]))
		}
		sec.End()
	}
	if len(materials) > 0 {
		sec := ctx.Messages.BeginSection("Collect from the team:")
		for _, id := range materials.SortedIDs() {
			sec.Addf("%s", RefAmount(id, materials[id]))
		}
		sec.End()
	}
	if req := a.Dice(ctx); req.Required() {
		ctx.Messages.Infof("Throw %d dots using %s.", req.Dots, diceList(req.Dice))
	}
	return e.result(ctx, true), nil
}

// Commit validates the dice throw and applies the action's effect, or records
// a delayed application. An insufficient roll abandons the action: work stays
// spent, reserved production returns to the team, materials stay lost.
func (e *Engine) Commit(inst *Instance, throws, dots int) (*Result, error) {
	if inst.Phase != PhaseInitiated {
		return nil, fmt.Errorf("%w: commit from phase %q", ErrPhaseConflict, inst.Phase)
	}
	a, err := e.rebuild(inst)
	if err != nil {
		return nil, err
	}
	ctx := e.context()

	req := a.Dice(ctx)
	if throws < 0 || dots < 0 {
		return nil, failf("negative throw count or dots")
	}
	if req.Required() {
		team, err := ctx.TeamState(inst.Team)
		if err != nil {
			return nil, err
		}
		workNeeded := e.throwCost.Mul(decimal.NewFromInt(int64(throws)))
		if team.Work().LessThan(workNeeded) {
			// The team spent its work at another station; the throw does not
			// count and nothing more is charged.
			e.refund(team, inst.Paid)
			inst.Phase = PhaseAbandoned
			ctx.Messages.Warnf("The team does not have %s work for %d throws; the throw is void.",
				workNeeded, throws)
			e.reportRefund(ctx, inst)
			return e.result(ctx, false), nil
		}
		if _, err := team.PayResources(e.ents, state.Amounts{entities.ResourceWork: workNeeded}); err != nil {
			return nil, &InvariantError{Err: err}
		}
		if dots < req.Dots {
			e.refund(team, inst.Paid)
			inst.Phase = PhaseAbandoned
			ctx.Messages.Warnf("Rolled %d of %d required dots; the action is abandoned.", dots, req.Dots)
			e.reportRefund(ctx, inst)
			return e.result(ctx, false), nil
		}
	}

	if d, ok := a.(Delayed); ok {
		if delay := d.DelaySeconds(ctx); delay > 0 {
			if err := ctx.Schedule(inst.Type, inst.Team, json.RawMessage(inst.Args), delay); err != nil {
				return nil, err
			}
			inst.Phase = PhaseCommitted
			ctx.Messages.Infof("The effect arrives in %d seconds.", delay)
			return e.result(ctx, true), nil
		}
	}

	if err := a.Effect(ctx); err != nil {
		if IsActionFailed(err) {
			if team, terr := e.teamIfAny(ctx, inst.Team); terr == nil && team != nil {
				e.refund(team, inst.Paid)
			}
			inst.Phase = PhaseAbandoned
			ctx.Messages.Warnf("%v", err)
			e.reportRefund(ctx, inst)
			return e.result(ctx, false), nil
		}
		return nil, err
	}
	if ctx.Messages.HasErrors() {
		return nil, invariantf("effect of %s left errors without failing: %s", inst.Type, ctx.Messages.RenderErrors())
	}
	inst.Phase = PhaseCommitted
	return e.result(ctx, true), nil
}

// Revert cancels an initiated-but-uncommitted action, refunding the reserved
// production. Materials were never deducted; the org simply does not collect
// them.
func (e *Engine) Revert(inst *Instance) (*Result, error) {
	if inst.Phase != PhaseInitiated {
		return nil, fmt.Errorf("%w: revert from phase %q", ErrPhaseConflict, inst.Phase)
	}
	ctx := e.context()
	if inst.Team != "" {
		team, err := ctx.TeamState(inst.Team)
		if err != nil {
			return nil, err
		}
		e.refund(team, inst.Paid)
	}
	inst.Phase = PhaseCanceled
	ctx.Messages.Infof("Action canceled.")
	e.reportRefund(ctx, inst)
	if len(inst.Materials) > 0 {
		ctx.Messages.Infof("Do not collect the listed materials.")
	}
	return e.result(ctx, true), nil
}

// ApplyScheduled runs a deferred application when it becomes due, against the
// current state. Preconditions are re-validated by the effect itself: the
// world may have changed since commit.
func (e *Engine) ApplyScheduled(actionType string, team entities.EntityID, args json.RawMessage) (*Result, error) {
	a, err := Construct(actionType, args)
	if err != nil {
		return nil, invariantf("scheduled %s: %v", actionType, err)
	}
	ctx := e.context()
	if err := a.Effect(ctx); err != nil {
		if IsActionFailed(err) {
			ctx.Messages.Warnf("%v", err)
			return e.result(ctx, false), nil
		}
		return nil, err
	}
	return e.result(ctx, true), nil
}

func (e *Engine) teamIfAny(ctx *Context, id entities.EntityID) (*state.TeamState, error) {
	if id == "" {
		return nil, nil
	}
	return ctx.TeamState(id)
}

// refund returns reserved production to the team, reversing the villager to
// employee conversion done at payment time.
func (e *Engine) refund(team *state.TeamState, paid state.Amounts) {
	for id, amount := range paid {
		team.Resources[id] = team.Resources[id].Add(amount)
		if id == entities.ResourceVillager {
			team.Employees = team.Employees.Sub(amount)
		}
	}
}

func (e *Engine) reportRefund(ctx *Context, inst *Instance) {
	if len(inst.Paid) == 0 {
		return
	}
	sec := ctx.Messages.BeginSection("Returned to the team:")
	for _, id := range inst.Paid.SortedIDs() {
		sec.Addf("%s", RefAmount(id, inst.Paid[id]))
	}
	sec.End()
}

func (e *Engine) result(ctx *Context, expected bool) *Result {
	return &Result{
		Expected:      expected,
		Message:       ctx.Messages.Render(),
		Notifications: ctx.notifications,
		Scheduled:     ctx.scheduled,
		Withdrawn:     ctx.withdrawn,
	}
}

func diceList(dice []entities.EntityID) string {
	if len(dice) == 0 {
		return "any die"
	}
	out := ""
	for i, d := range dice {
		if i > 0 {
			out += " or "
		}
		out += Ref(d)
	}
	return out
}
