package game

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"civilizace.org/internal/state"
)

func TestIslandDiscover_CostScalesWithHoldings(t *testing.T) {
	_, st, e := testEnv(t)

	inst, res := mustInitiate(t, e, TypeIslandDiscover, "tym-cerveni",
		`{"team":"tym-cerveni"}`)
	if got := inst.Paid["res-prace"]; got.String() != "10" {
		t.Fatalf("first expedition cost = %v", inst.Paid)
	}
	if !containsAll(res.Message, "Throw 12 dots") {
		t.Fatalf("initiate message:\n%s", res.Message)
	}
	res, err := e.Commit(inst, 2, 14)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	team := st.Teams["tym-cerveni"]
	// Lowest-index undiscovered island is sighted first.
	if !team.Discovered.Has("ost-pav") {
		t.Fatalf("nothing discovered: %v", team.Discovered)
	}
	if !containsAll(res.Message, "[[ost-pav]]") {
		t.Fatalf("commit message:\n%s", res.Message)
	}

	// The next expedition costs more once an island is held.
	st.Map.Tiles[4].Owner = "tym-cerveni"
	inst2, _ := mustInitiate(t, e, TypeIslandDiscover, "tym-cerveni",
		`{"team":"tym-cerveni"}`)
	if got := inst2.Paid["res-prace"]; got.String() != "20" {
		t.Fatalf("second expedition cost = %v", inst2.Paid)
	}
}

func TestIslandDiscover_NoIslandsLeft(t *testing.T) {
	_, st, e := testEnv(t)
	team := st.Teams["tym-cerveni"]
	team.Discovered.Add("ost-pav")
	team.Discovered.Add("ost-delfin")

	inst, err := e.NewInstance(TypeIslandDiscover, "tym-cerveni",
		json.RawMessage(`{"team":"tym-cerveni"}`))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := e.Initiate(inst); !IsActionFailed(err) {
		t.Fatalf("expected no-islands failure, got %v", err)
	}
}

func TestIslandExplore_RevealsNature(t *testing.T) {
	_, st, e := testEnv(t)
	team := st.Teams["tym-cerveni"]
	team.Discovered.Add("ost-pav")

	inst, _ := mustInitiate(t, e, TypeIslandExplore, "tym-cerveni",
		`{"team":"tym-cerveni","island":"ost-pav"}`)
	res, err := e.Commit(inst, 1, 9)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !team.Explored.Has("ost-pav") {
		t.Fatalf("island not explored")
	}
	if !containsAll(res.Message, "[[mat-drevo]]", "richness 3") {
		t.Fatalf("survey message:\n%s", res.Message)
	}
}

func TestIslandColonize_RequiresExploration(t *testing.T) {
	_, st, e := testEnv(t)
	st.Teams["tym-cerveni"].Discovered.Add("ost-pav")

	inst, err := e.NewInstance(TypeIslandColonize, "tym-cerveni",
		json.RawMessage(`{"team":"tym-cerveni","island":"ost-pav"}`))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := e.Initiate(inst); !IsActionFailed(err) {
		t.Fatalf("colonized without a survey: %v", err)
	}
}

func TestIslandColonize_ClaimsOwnership(t *testing.T) {
	_, st, e := testEnv(t)
	team := st.Teams["tym-cerveni"]
	team.Explored.Add("ost-pav")

	inst, _ := mustInitiate(t, e, TypeIslandColonize, "tym-cerveni",
		`{"team":"tym-cerveni","island":"ost-pav"}`)
	// Richness 3: 30 work plus 5 villagers.
	if inst.Paid["res-prace"].String() != "30" || inst.Paid["res-obyvatel"].String() != "5" {
		t.Fatalf("colonize cost = %v", inst.Paid)
	}
	if _, err := e.Commit(inst, 0, 0); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if st.Map.Tiles[4].Owner != "tym-cerveni" {
		t.Fatalf("owner = %q", st.Map.Tiles[4].Owner)
	}

	// A second claim must fail.
	blue := st.Teams["tym-modri"]
	blue.Explored.Add("ost-pav")
	inst2, err := e.NewInstance(TypeIslandColonize, "tym-modri",
		json.RawMessage(`{"team":"tym-modri","island":"ost-pav"}`))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := e.Initiate(inst2); !IsActionFailed(err) {
		t.Fatalf("double colonization accepted: %v", err)
	}
}

func TestIslandAttack_SacksBuildings(t *testing.T) {
	_, st, e := testEnv(t)
	st.Map.Tiles[4].Owner = "tym-modri"
	st.Map.Tiles[4].Buildings.Add("tec-pila")
	deployArmy(st, "tym-cerveni", 0, 4, 5, state.GoalNone)

	inst, _ := mustInitiate(t, e, TypeIslandAttack, "tym-cerveni",
		`{"team":"tym-cerveni","island":"ost-pav"}`)
	res, err := e.Commit(inst, 0, 0)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	tile := st.Map.Tiles[4]
	if tile.Owner != "tym-cerveni" {
		t.Fatalf("owner = %q", tile.Owner)
	}
	if tile.Buildings.Has("tec-pila") || !tile.Ruined.Has("tec-pila") {
		t.Fatalf("sacking left buildings standing: %v / %v", tile.Buildings, tile.Ruined)
	}
	if len(res.Notifications["tym-modri"]) == 0 {
		t.Fatalf("previous owner was not notified")
	}
}

func TestIslandAttack_NeedsHoldingArmy(t *testing.T) {
	_, st, e := testEnv(t)
	st.Map.Tiles[4].Owner = "tym-modri"

	inst, err := e.NewInstance(TypeIslandAttack, "tym-cerveni",
		json.RawMessage(`{"team":"tym-cerveni","island":"ost-pav"}`))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := e.Initiate(inst); !IsActionFailed(err) {
		t.Fatalf("attack without a holding army: %v", err)
	}
}

func TestIslandShare_CopiesCharts(t *testing.T) {
	_, st, e := testEnv(t)
	red := st.Teams["tym-cerveni"]
	red.Discovered.Add("ost-pav")
	red.Explored.Add("ost-pav")

	inst, _ := mustInitiate(t, e, TypeIslandShare, "tym-cerveni",
		`{"team":"tym-cerveni","island":"ost-pav","receiver":"tym-modri"}`)
	res, err := e.Commit(inst, 0, 0)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	blue := st.Teams["tym-modri"]
	if !blue.Discovered.Has("ost-pav") || !blue.Explored.Has("ost-pav") {
		t.Fatalf("charts not shared: %v / %v", blue.Discovered, blue.Explored)
	}
	if len(res.Notifications["tym-modri"]) == 0 {
		t.Fatalf("receiver was not notified")
	}
}

func TestIslandTransfer_ReceiverPays(t *testing.T) {
	_, st, e := testEnv(t)
	st.Map.Tiles[4].Owner = "tym-cerveni"

	// The action acts on the receiver; a poor receiver cannot take delivery.
	st.Teams["tym-modri"].Resources["res-prace"] = decimal.NewFromInt(10)
	inst, err := e.NewInstance(TypeIslandTransfer, "tym-modri",
		json.RawMessage(`{"island":"ost-pav","from":"tym-cerveni","to":"tym-modri"}`))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = e.Initiate(inst)
	if !IsActionFailed(err) {
		t.Fatalf("expected shortfall, got %v", err)
	}
	if !containsAll(err.Error(), "Missing resources:", "[[res-prace|50]]") {
		t.Fatalf("shortfall message: %v", err)
	}

	// With 60 work the transfer goes through at 20 x richness.
	st.Teams["tym-modri"].Resources["res-prace"] = decimal.NewFromInt(60)
	inst2, _ := mustInitiate(t, e, TypeIslandTransfer, "tym-modri",
		`{"island":"ost-pav","from":"tym-cerveni","to":"tym-modri"}`)
	if inst2.Paid["res-prace"].String() != "60" {
		t.Fatalf("transfer cost = %v", inst2.Paid)
	}
	res, err := e.Commit(inst2, 0, 0)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	tile := st.Map.Tiles[4]
	if tile.Owner != "tym-modri" {
		t.Fatalf("owner = %q", tile.Owner)
	}
	blue := st.Teams["tym-modri"]
	if !blue.Discovered.Has("ost-pav") || !blue.Explored.Has("ost-pav") {
		t.Fatalf("new owner lacks charts: %v / %v", blue.Discovered, blue.Explored)
	}
	if len(res.Notifications["tym-cerveni"]) == 0 {
		t.Fatalf("seller was not notified")
	}
}

func TestRepair_RestoresSackedBuilding(t *testing.T) {
	_, st, e := testEnv(t)
	st.Map.Tiles[4].Owner = "tym-cerveni"
	st.Map.Tiles[4].Ruined.Add("tec-pila")

	inst, res := mustInitiate(t, e, TypeRepair, "tym-cerveni",
		`{"team":"tym-cerveni","tile":4,"building":"tec-pila"}`)
	if !containsAll(res.Message, "Paid:", "[[res-prace|30]]", "Collect from the team:", "[[mat-drevo|3]]") {
		t.Fatalf("initiate message: %q", res.Message)
	}
	if _, err := e.Commit(inst, 0, 0); err != nil {
		t.Fatalf("commit: %v", err)
	}
	tile := st.Map.Tiles[4]
	if !tile.Buildings.Has("tec-pila") || tile.Ruined.Has("tec-pila") {
		t.Fatalf("repair did not restore the building: %v / %v", tile.Buildings, tile.Ruined)
	}
	if got := work(st, "tym-cerveni"); got.String() != "70" {
		t.Fatalf("work = %v", got)
	}
}

func TestRepair_NeedsRuin(t *testing.T) {
	_, st, e := testEnv(t)
	st.Map.Tiles[4].Owner = "tym-cerveni"

	inst, err := e.NewInstance(TypeRepair, "tym-cerveni",
		json.RawMessage(`{"team":"tym-cerveni","tile":4,"building":"tec-pila"}`))
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	if _, err := e.Initiate(inst); !IsActionFailed(err) || !containsAll(err.Error(), "no ruined") {
		t.Fatalf("expected rejection, got %v", err)
	}
}
