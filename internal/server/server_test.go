package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"civilizace.org/internal/config"
	"civilizace.org/internal/entities"
	"civilizace.org/internal/game"
	"civilizace.org/internal/persistence"
	"civilizace.org/internal/protocol"
	"civilizace.org/internal/scheduler"
	"civilizace.org/internal/state"
)

func testEntities(t *testing.T) *entities.Entities {
	t.Helper()
	ents, err := entities.Parse(entities.Sheets{
		"resources": {
			{"res-prace", "Práce", "production", "1"},
			{"res-obyvatel", "Obyvatel", "production", "1"},
			{"mat-drevo", "Dřevo", "material", "1"},
		},
		"dice": {
			{"die-les", "Lesní kostka", "20"},
		},
		"techs": {
			{"tec-start", "Start", "", "", "0", "tec-lesnictvi", "", "", ""},
			{"tec-lesnictvi", "Lesnictví", "res-prace:20", "die-les", "10", "vyr-drevo", "", "", ""},
			{"tec-pila", "Pila", "res-prace:30", "", "0", "", "", "building", ""},
		},
		"vyrobas": {
			{"vyr-drevo", "Těžba dřeva", "res-prace:5", "", "0", "mat-drevo", "2", "", ""},
		},
		"teams": {
			{"tym-cerveni", "Červení", "#d40000", "0"},
			{"tym-modri", "Modří", "#0044d4", "1"},
		},
		"tiles": {
			{"map-cerveni", "Domov Červených", "0", "0", "", "", "tym-cerveni"},
			{"map-modri", "Domov Modrých", "1", "0", "", "", "tym-modri"},
		},
	}, 1)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return ents
}

type testServer struct {
	srv     *Server
	handler http.Handler
	store   *persistence.Store
	ents    *entities.Entities
}

func newTestServer(t *testing.T, prepare func(*state.GameState)) *testServer {
	t.Helper()
	ents := testEntities(t)
	st := state.New(ents)
	if prepare != nil {
		prepare(st)
	}

	store, err := persistence.Open(filepath.Join(t.TempDir(), "game.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	rev, err := store.SaveRevision(ents.Revision, st)
	if err != nil {
		t.Fatalf("initial revision: %v", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := config.Config{}
	cfg.ApplyDefaults()
	cfg.Game.TurnDurationsS = []int{600}

	srv := New(cfg, ents, st, rev, store, nil, log, func() int64 { return time.Now().Unix() })
	return &testServer{srv: srv, handler: srv.Handler(), store: store, ents: ents}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, protocol.ActionResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	var resp protocol.ActionResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s response: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec, resp
}

func (ts *testServer) initiate(t *testing.T, action, team, args string) protocol.ActionResponse {
	t.Helper()
	rec, resp := ts.do(t, http.MethodPost, "/v1/action/initiate", protocol.InitiateRequest{
		Action: action,
		Team:   team,
		Args:   json.RawMessage(args),
	})
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("initiate %s: status=%d resp=%+v", action, rec.Code, resp)
	}
	return resp
}

func (ts *testServer) commit(t *testing.T, id string, throws, dots int) protocol.ActionResponse {
	t.Helper()
	rec, resp := ts.do(t, http.MethodPost, "/v1/action/"+id+"/commit", protocol.CommitRequest{
		Throws: throws, Dots: dots,
	})
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("commit %s: status=%d resp=%+v", id, rec.Code, resp)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestInitiateCommit_FullResearchFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.initiate(t, game.TypeResearchStart, "tym-cerveni",
		`{"team":"tym-cerveni","tech":"tec-lesnictvi"}`)
	if resp.ActionID == "" {
		t.Fatalf("no action id: %+v", resp)
	}
	start := ts.commit(t, resp.ActionID, 3, 12)
	if !start.Expected {
		t.Fatalf("research start: %+v", start)
	}

	fin := ts.initiate(t, game.TypeResearchFinish, "tym-cerveni",
		`{"team":"tym-cerveni","tech":"tec-lesnictvi"}`)
	finish := ts.commit(t, fin.ActionID, 0, 0)
	if !finish.Expected {
		t.Fatalf("research finish: %+v", finish)
	}
	// The commit reports the fresh stickers: the tech and the vyroba it unlocks.
	want := map[string]bool{"tec-lesnictvi": true, "vyr-drevo": true}
	if len(finish.Stickers) != 2 || !want[finish.Stickers[0]] || !want[finish.Stickers[1]] {
		t.Fatalf("stickers = %v", finish.Stickers)
	}
}

func TestInitiate_BusinessFailureIsHandled(t *testing.T) {
	ts := newTestServer(t, func(st *state.GameState) {
		st.Teams["tym-cerveni"].Resources["res-prace"] = decimal.Zero
	})

	rec, resp := ts.do(t, http.MethodPost, "/v1/action/initiate", protocol.InitiateRequest{
		Action: game.TypeResearchStart,
		Team:   "tym-cerveni",
		Args:   json.RawMessage(`{"team":"tym-cerveni","tech":"tec-lesnictvi"}`),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Success || resp.Code != protocol.ErrBadRequest {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestInitiate_ProtocolErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/action/initiate",
		bytes.NewBufferString(`{not json`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", rec.Code)
	}

	rec2, resp := ts.do(t, http.MethodPost, "/v1/action/initiate", protocol.InitiateRequest{
		Team: "tym-cerveni",
	})
	if rec2.Code != http.StatusBadRequest || resp.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("missing action: %d %+v", rec2.Code, resp)
	}

	rec3, resp := ts.do(t, http.MethodPost, "/v1/action/initiate", protocol.InitiateRequest{
		Action: game.TypeResearchStart,
		Team:   "tym-zluti",
	})
	if rec3.Code != http.StatusBadRequest || resp.Code != protocol.ErrUnknownTeam {
		t.Fatalf("unknown team: %d %+v", rec3.Code, resp)
	}
}

func TestCommit_PhaseConflictAndNotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, resp := ts.do(t, http.MethodPost, "/v1/action/missing/commit", protocol.CommitRequest{})
	if rec.Code != http.StatusNotFound || resp.Code != protocol.ErrNotFound {
		t.Fatalf("missing action: %d %+v", rec.Code, resp)
	}

	start := ts.initiate(t, game.TypeResearchStart, "tym-cerveni",
		`{"team":"tym-cerveni","tech":"tec-lesnictvi"}`)
	ts.commit(t, start.ActionID, 2, 12)

	rec2, resp := ts.do(t, http.MethodPost, "/v1/action/"+start.ActionID+"/commit",
		protocol.CommitRequest{Throws: 1, Dots: 12})
	if rec2.Code != http.StatusConflict || resp.Code != protocol.ErrPhaseConflict {
		t.Fatalf("double commit: %d %+v", rec2.Code, resp)
	}
}

func TestRevert_BlocksLaterCommit(t *testing.T) {
	ts := newTestServer(t, nil)
	start := ts.initiate(t, game.TypeResearchStart, "tym-cerveni",
		`{"team":"tym-cerveni","tech":"tec-lesnictvi"}`)

	rec, resp := ts.do(t, http.MethodPost, "/v1/action/"+start.ActionID+"/revert", nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("revert: %d %+v", rec.Code, resp)
	}

	rec2, resp := ts.do(t, http.MethodPost, "/v1/action/"+start.ActionID+"/commit",
		protocol.CommitRequest{Throws: 1, Dots: 12})
	if rec2.Code != http.StatusConflict || resp.Code != protocol.ErrPhaseConflict {
		t.Fatalf("commit after revert: %d %+v", rec2.Code, resp)
	}
}

func TestState_ReflectsCommittedTransitions(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, _ := ts.do(t, http.MethodGet, "/v1/state", nil)
	var before protocol.StateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &before); err != nil {
		t.Fatalf("decode state: %v", err)
	}

	start := ts.initiate(t, game.TypeResearchStart, "tym-cerveni",
		`{"team":"tym-cerveni","tech":"tec-lesnictvi"}`)
	ts.commit(t, start.ActionID, 1, 12)

	rec2, _ := ts.do(t, http.MethodGet, "/v1/state", nil)
	var after protocol.StateResponse
	if err := json.Unmarshal(rec2.Body.Bytes(), &after); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if after.Revision <= before.Revision {
		t.Fatalf("revision did not advance: %d then %d", before.Revision, after.Revision)
	}
	st, err := state.Deserialize(after.State)
	if err != nil {
		t.Fatalf("deserialize served state: %v", err)
	}
	if !st.Teams["tym-cerveni"].Researching.Has("tec-lesnictvi") {
		t.Fatalf("served state missing the research")
	}
}

func TestUnfinishedActions_Endpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	start := ts.initiate(t, game.TypeResearchStart, "tym-cerveni",
		`{"team":"tym-cerveni","tech":"tec-lesnictvi"}`)

	req := httptest.NewRequest(http.MethodGet, "/v1/actions/unfinished", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	var rows []persistence.UnfinishedRow
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != start.ActionID || rows[0].Team != "tym-cerveni" {
		t.Fatalf("rows = %+v", rows)
	}

	ts.commit(t, start.ActionID, 1, 12)
	rec2 := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/v1/actions/unfinished", nil))
	if body := rec2.Body.String(); body != "[]\n" {
		t.Fatalf("after commit: %q", body)
	}
}

func TestRateLimit_PerTeam(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.srv.cfg.RateLimit.PerTeamPerSecond = 0.001
	ts.srv.cfg.RateLimit.Burst = 1

	ts.initiate(t, game.TypeResearchStart, "tym-cerveni",
		`{"team":"tym-cerveni","tech":"tec-lesnictvi"}`)

	rec, resp := ts.do(t, http.MethodPost, "/v1/action/initiate", protocol.InitiateRequest{
		Action: game.TypeResearchStart,
		Team:   "tym-cerveni",
		Args:   json.RawMessage(`{"team":"tym-cerveni","tech":"tec-lesnictvi"}`),
	})
	if rec.Code != http.StatusTooManyRequests || resp.Code != protocol.ErrRateLimit {
		t.Fatalf("rate limit: %d %+v", rec.Code, resp)
	}

	// Another team has its own limiter.
	ts.initiate(t, game.TypeResearchStart, "tym-modri",
		`{"team":"tym-modri","tech":"tec-lesnictvi"}`)
}

func TestSweep_AppliesDueScheduledEffects(t *testing.T) {
	ts := newTestServer(t, func(st *state.GameState) {
		st.Teams["tym-cerveni"].Techs.Add("tec-pila")
	})

	// A build whose due time has already passed.
	if _, err := ts.store.InsertScheduled(scheduler.Record{
		ActionID:     "a-1",
		Type:         game.TypeBuild,
		Team:         "tym-cerveni",
		Args:         json.RawMessage(`{"team":"tym-cerveni","tile":0,"building":"tec-pila"}`),
		DelayS:       600,
		TargetTurn:   0,
		TargetOffset: 0,
	}); err != nil {
		t.Fatalf("insert scheduled: %v", err)
	}

	rec, _ := ts.do(t, http.MethodGet, "/v1/state", nil)
	var resp protocol.StateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	st, err := state.Deserialize(resp.State)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if !st.Map.Tiles[0].Buildings.Has("tec-pila") {
		t.Fatalf("scheduled build not applied")
	}

	// The record is consumed: a second sweep changes nothing.
	rec2, _ := ts.do(t, http.MethodGet, "/v1/state", nil)
	var resp2 protocol.StateResponse
	if err := json.Unmarshal(rec2.Body.Bytes(), &resp2); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if resp2.Revision != resp.Revision {
		t.Fatalf("idle sweep persisted a revision: %d then %d", resp.Revision, resp2.Revision)
	}
}

func TestCommit_RecordsScheduledBuild(t *testing.T) {
	ts := newTestServer(t, func(st *state.GameState) {
		st.Teams["tym-cerveni"].Techs.Add("tec-pila")
	})

	start := ts.initiate(t, game.TypeBuild, "tym-cerveni",
		`{"team":"tym-cerveni","tile":0,"building":"tec-pila"}`)
	resp := ts.commit(t, start.ActionID, 0, 0)
	if !resp.Expected {
		t.Fatalf("build commit: %+v", resp)
	}

	// Delay 600 s with a 600 s turn: due exactly at the start of turn 1.
	due, err := ts.store.DueScheduled(1, 0)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0].Type != game.TypeBuild || due[0].ActionID != start.ActionID {
		t.Fatalf("due = %+v", due)
	}
}

func TestInternalError_ReturnsDiagnosticsInBody(t *testing.T) {
	ts := newTestServer(t, nil)
	// Kill the store under the handler: the failure must surface to the org
	// in the response body, not hide behind a 500.
	ts.store.Close()

	rec, resp := ts.do(t, http.MethodGet, "/v1/actions/unfinished", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp.Success || resp.Code != protocol.ErrInternal {
		t.Fatalf("envelope = %+v", resp)
	}
	if !strings.Contains(resp.Message, "internal error:") {
		t.Fatalf("message does not carry the error: %q", resp.Message)
	}
	if !strings.Contains(resp.Message, "goroutine") {
		t.Fatalf("message does not carry a stack trace: %q", resp.Message)
	}
}

func TestSweep_RecordsFollowUpsOfScheduledEffects(t *testing.T) {
	ts := newTestServer(t, func(st *state.GameState) {
		st.Teams["tym-cerveni"].Storage[entities.MaterialWeapons] = decimal.NewFromInt(5)
	})

	// A deploy applied by the sweep schedules the march's arrival; that
	// follow-up must land in the store like a commit-time schedule would.
	if _, err := ts.store.InsertScheduled(scheduler.Record{
		ActionID:     "a-dep",
		Type:         game.TypeArmyDeploy,
		Team:         "tym-cerveni",
		Args:         json.RawMessage(`{"team":"tym-cerveni","army":0,"tile":1,"goal":"occupy","equipment":2}`),
		DelayS:       60,
		TargetTurn:   0,
		TargetOffset: 0,
	}); err != nil {
		t.Fatalf("insert scheduled: %v", err)
	}

	ts.do(t, http.MethodGet, "/v1/state", nil)

	pending, err := ts.store.DueScheduled(1<<30, 0)
	if err != nil {
		t.Fatalf("due scheduled: %v", err)
	}
	var arrival *scheduler.Record
	for i := range pending {
		if pending[i].Type == game.TypeArmyArrival {
			arrival = &pending[i]
		}
	}
	if arrival == nil {
		t.Fatalf("arrival not recorded, pending = %v", pending)
	}
	if arrival.ActionID != "a-dep" {
		t.Fatalf("arrival action id = %q", arrival.ActionID)
	}
}
