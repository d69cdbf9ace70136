package game

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"civilizace.org/internal/entities"
	"civilizace.org/internal/state"
)

func testEnv(t *testing.T) (*entities.Entities, *state.GameState, *Engine) {
	t.Helper()
	ents, err := entities.Parse(entities.Sheets{
		"resources": {
			{"res-prace", "Práce", "production", "1"},
			{"res-obyvatel", "Obyvatel", "production", "1"},
			{"pro-drevo", "Produkce: Dřevo", "production", "1"},
			{"mat-drevo", "Dřevo", "material", "1"},
			{"mat-keramika", "Keramika", "material", "1"},
			{"mat-zbrane", "Zbraně", "material", "2"},
		},
		"dice": {
			{"die-les", "Lesní kostka", "20"},
		},
		"techs": {
			{"tec-start", "Start", "", "", "0", "tec-lesnictvi,vyr-drevo,vyr-keramika", "", "", ""},
			{"tec-lesnictvi", "Lesnictví", "res-prace:20", "die-les", "10", "tec-pila", "", "", "tas-uzly"},
			{"tec-pila", "Pila", "res-prace:30,mat-drevo:3", "die-les", "15", "", "storage:5", "building", ""},
		},
		"vyrobas": {
			{"vyr-drevo", "Těžba dřeva", "res-prace:5", "die-les", "5", "mat-drevo", "2", "", ""},
			{"vyr-keramika", "Výpal keramiky", "res-prace:5", "", "0", "mat-keramika", "3", "", "instant"},
		},
		"tasks": {
			{"tas-uzly", "Uzly", "1", "tec-lesnictvi", "Předveďte tři druhy uzlů."},
		},
		"teams": {
			{"tym-cerveni", "Červení", "#d40000", "0"},
			{"tym-modri", "Modří", "#0044d4", "2"},
		},
		"tiles": {
			{"map-cerveni", "Domov Červených", "0", "0", "", "", "tym-cerveni"},
			{"map-les", "Les", "1", "2", "mat-drevo", "", ""},
			{"map-modri", "Domov Modrých", "2", "0", "", "", "tym-modri"},
			{"map-hory", "Hory", "3", "3", "", "", ""},
			{"ost-pav", "Ostrov Páv", "4", "3", "mat-drevo", "island", ""},
			{"ost-delfin", "Ostrov Delfín", "5", "2", "mat-drevo", "island", ""},
		},
	}, 1)
	if err != nil {
		t.Fatalf("test catalog: %v", err)
	}
	st := state.New(ents)
	return ents, st, NewEngine(ents, st)
}

func mustInitiate(t *testing.T, e *Engine, actionType string, team entities.EntityID, args string) (*Instance, *Result) {
	t.Helper()
	inst, err := e.NewInstance(actionType, team, json.RawMessage(args))
	if err != nil {
		t.Fatalf("new %s: %v", actionType, err)
	}
	res, err := e.Initiate(inst)
	if err != nil {
		t.Fatalf("initiate %s: %v", actionType, err)
	}
	return inst, res
}

func work(st *state.GameState, team entities.EntityID) decimal.Decimal {
	return st.Teams[team].Resources["res-prace"]
}

func TestResearchFlow(t *testing.T) {
	_, st, e := testEnv(t)

	inst, res := mustInitiate(t, e, TypeResearchStart, "tym-cerveni",
		`{"team":"tym-cerveni","tech":"tec-lesnictvi"}`)
	if inst.Phase != PhaseInitiated {
		t.Fatalf("phase = %s", inst.Phase)
	}
	if got := inst.Paid["res-prace"]; got.String() != "20" {
		t.Fatalf("paid = %v", inst.Paid)
	}
	if !work(st, "tym-cerveni").Equal(decimal.NewFromInt(80)) {
		t.Fatalf("work after initiate = %s", work(st, "tym-cerveni"))
	}
	if !containsAll(res.Message, "Paid:", "[[res-prace|20]]", "Throw 10 dots") {
		t.Fatalf("initiate message:\n%s", res.Message)
	}

	// A successful throw: 5 throws cost 5 work, 12 dots clear the 10 required.
	res, err := e.Commit(inst, 5, 12)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !res.Expected || inst.Phase != PhaseCommitted {
		t.Fatalf("commit outcome: expected=%v phase=%s", res.Expected, inst.Phase)
	}
	if !work(st, "tym-cerveni").Equal(decimal.NewFromInt(75)) {
		t.Fatalf("work after commit = %s", work(st, "tym-cerveni"))
	}
	team := st.Teams["tym-cerveni"]
	if !team.Researching.Has("tec-lesnictvi") {
		t.Fatalf("research not started")
	}

	// Finishing warns about the unassigned task but still completes.
	finInst, _ := mustInitiate(t, e, TypeResearchFinish, "tym-cerveni",
		`{"team":"tym-cerveni","tech":"tec-lesnictvi"}`)
	res, err = e.Commit(finInst, 0, 0)
	if err != nil {
		t.Fatalf("commit finish: %v", err)
	}
	if !team.Techs.Has("tec-lesnictvi") || team.Researching.Has("tec-lesnictvi") {
		t.Fatalf("research not finished: %v / %v", team.Techs, team.Researching)
	}
	if !containsAll(res.Message, "Newly available:", "[[tec-pila]]") {
		t.Fatalf("finish message:\n%s", res.Message)
	}
}

func TestInitiate_ShortfallMutatesNothing(t *testing.T) {
	_, st, e := testEnv(t)
	st.Teams["tym-cerveni"].Resources["res-prace"] = decimal.NewFromInt(5)

	inst, err := e.NewInstance(TypeResearchStart, "tym-cerveni",
		json.RawMessage(`{"team":"tym-cerveni","tech":"tec-lesnictvi"}`))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = e.Initiate(inst)
	if !IsActionFailed(err) {
		t.Fatalf("expected business failure, got %v", err)
	}
	if !containsAll(err.Error(), "Missing resources:", "[[res-prace|15]]") {
		t.Fatalf("shortfall message: %v", err)
	}
	if inst.Phase != PhaseCreated {
		t.Fatalf("phase moved on failure: %s", inst.Phase)
	}
	if !work(st, "tym-cerveni").Equal(decimal.NewFromInt(5)) {
		t.Fatalf("state mutated on failure: %s", work(st, "tym-cerveni"))
	}
}

func TestCommit_InsufficientDotsAbandons(t *testing.T) {
	_, st, e := testEnv(t)

	inst, _ := mustInitiate(t, e, TypeResearchStart, "tym-cerveni",
		`{"team":"tym-cerveni","tech":"tec-lesnictvi"}`)
	res, err := e.Commit(inst, 3, 5)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.Expected {
		t.Fatalf("an insufficient roll must not be the expected outcome")
	}
	if inst.Phase != PhaseAbandoned {
		t.Fatalf("phase = %s", inst.Phase)
	}
	// 100 - 20 (reserved) - 3 (throws) + 20 (refund) = 97.
	if !work(st, "tym-cerveni").Equal(decimal.NewFromInt(97)) {
		t.Fatalf("work = %s, want 97", work(st, "tym-cerveni"))
	}
	if st.Teams["tym-cerveni"].Researching.Has("tec-lesnictvi") {
		t.Fatalf("abandoned research still recorded")
	}
}

func TestCommit_UnaffordableThrowIsVoid(t *testing.T) {
	_, st, e := testEnv(t)
	st.Teams["tym-cerveni"].Resources["res-prace"] = decimal.NewFromInt(22)

	inst, _ := mustInitiate(t, e, TypeResearchStart, "tym-cerveni",
		`{"team":"tym-cerveni","tech":"tec-lesnictvi"}`)
	// 2 work left, 5 throws would cost 5: the throw is void and costs nothing.
	res, err := e.Commit(inst, 5, 20)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.Expected || inst.Phase != PhaseAbandoned {
		t.Fatalf("outcome: expected=%v phase=%s", res.Expected, inst.Phase)
	}
	if !work(st, "tym-cerveni").Equal(decimal.NewFromInt(22)) {
		t.Fatalf("void throw changed the balance: %s", work(st, "tym-cerveni"))
	}
}

func TestRevert_RefundsAndBlocksCommit(t *testing.T) {
	_, st, e := testEnv(t)

	inst, _ := mustInitiate(t, e, TypeResearchStart, "tym-cerveni",
		`{"team":"tym-cerveni","tech":"tec-lesnictvi"}`)
	res, err := e.Revert(inst)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if inst.Phase != PhaseCanceled || !res.Expected {
		t.Fatalf("revert outcome: %s %v", inst.Phase, res.Expected)
	}
	if !work(st, "tym-cerveni").Equal(decimal.NewFromInt(100)) {
		t.Fatalf("refund missing: %s", work(st, "tym-cerveni"))
	}
	if _, err := e.Commit(inst, 1, 20); !errors.Is(err, ErrPhaseConflict) {
		t.Fatalf("commit after revert: %v", err)
	}
	if _, err := e.Revert(inst); !errors.Is(err, ErrPhaseConflict) {
		t.Fatalf("double revert: %v", err)
	}
}

func TestVillagerPaymentRefund(t *testing.T) {
	_, st, e := testEnv(t)
	team := st.Teams["tym-cerveni"]
	team.Explored.Add("ost-pav")
	team.Discovered.Add("ost-pav")

	// Colonize pays 5 villagers; reverting must convert the employees back.
	inst, _ := mustInitiate(t, e, TypeIslandColonize, "tym-cerveni",
		`{"team":"tym-cerveni","island":"ost-pav"}`)
	if !team.Employees.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("employees after initiate = %s", team.Employees)
	}
	if _, err := e.Revert(inst); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if !team.Employees.Equal(decimal.Zero) {
		t.Fatalf("employees after revert = %s", team.Employees)
	}
	if !team.Resources["res-obyvatel"].Equal(decimal.NewFromInt(100)) {
		t.Fatalf("villagers after revert = %s", team.Resources["res-obyvatel"])
	}
}

func TestVyroba_InstantWithdraw(t *testing.T) {
	_, _, e := testEnv(t)

	inst, _ := mustInitiate(t, e, TypeVyroba, "tym-cerveni",
		`{"team":"tym-cerveni","vyroba":"vyr-keramika","count":2}`)
	res, err := e.Commit(inst, 0, 0)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := res.Withdrawn["mat-keramika"]; got.String() != "6" {
		t.Fatalf("withdrawn = %v", res.Withdrawn)
	}
}

func TestDelayedAction_SchedulesInsteadOfApplying(t *testing.T) {
	_, st, e := testEnv(t)
	team := st.Teams["tym-cerveni"]
	team.Techs.Add("tec-pila")
	team.Storage["mat-drevo"] = decimal.NewFromInt(5)

	inst, _ := mustInitiate(t, e, TypeBuild, "tym-cerveni",
		`{"team":"tym-cerveni","tile":0,"building":"tec-pila"}`)
	res, err := e.Commit(inst, 0, 0)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if inst.Phase != PhaseCommitted {
		t.Fatalf("phase = %s", inst.Phase)
	}
	if len(res.Scheduled) != 1 || res.Scheduled[0].Type != TypeBuild || res.Scheduled[0].DelayS != BuildSeconds {
		t.Fatalf("scheduled = %+v", res.Scheduled)
	}
	if st.Map.Tiles[0].Buildings.Has("tec-pila") {
		t.Fatalf("effect applied before the delay elapsed")
	}

	// The due-time application re-validates and then builds.
	res2, err := e.ApplyScheduled(res.Scheduled[0].Type, res.Scheduled[0].Team, res.Scheduled[0].Args)
	if err != nil {
		t.Fatalf("apply scheduled: %v", err)
	}
	if !res2.Expected || !st.Map.Tiles[0].Buildings.Has("tec-pila") {
		t.Fatalf("delayed effect not applied: %v", res2)
	}
}

func TestApplyScheduled_StaleEffectIsHandled(t *testing.T) {
	_, st, e := testEnv(t)
	team := st.Teams["tym-cerveni"]
	team.Techs.Add("tec-pila")
	st.Map.Tiles[0].Buildings.Add("tec-pila")

	// The building appeared while the effect was in flight.
	res, err := e.ApplyScheduled(TypeBuild, "tym-cerveni",
		json.RawMessage(`{"team":"tym-cerveni","tile":0,"building":"tec-pila"}`))
	if err != nil {
		t.Fatalf("apply scheduled: %v", err)
	}
	if res.Expected {
		t.Fatalf("stale scheduled effect reported as expected")
	}
}

func TestNewInstance_TeamMismatch(t *testing.T) {
	_, _, e := testEnv(t)
	_, err := e.NewInstance(TypeResearchStart, "tym-cerveni",
		json.RawMessage(`{"team":"tym-modri","tech":"tec-lesnictvi"}`))
	if !IsActionFailed(err) {
		t.Fatalf("expected mismatch failure, got %v", err)
	}
}

func TestNewInstance_UnknownArgsRejected(t *testing.T) {
	_, _, e := testEnv(t)
	_, err := e.NewInstance(TypeResearchStart, "tym-cerveni",
		json.RawMessage(`{"team":"tym-cerveni","tech":"tec-lesnictvi","typo":1}`))
	if err == nil {
		t.Fatalf("expected unknown argument field to be rejected")
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
