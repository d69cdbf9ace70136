package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"civilizace.org/internal/config"
	"civilizace.org/internal/entities"
	"civilizace.org/internal/game"
	"civilizace.org/internal/persistence"
	"civilizace.org/internal/protocol"
	"civilizace.org/internal/scheduler"
	"civilizace.org/internal/state"
	"civilizace.org/internal/stickers"
)

// Clock abstracts wall time for tests.
type Clock func() int64 // unix seconds

// Server owns the single game: catalog revision, current state, store and the
// dashboard hub. One mutex serializes every state transition; each request
// works on a clone and the clone replaces the state only after it has been
// persisted.
type Server struct {
	log   *logrus.Logger
	cfg   config.Config
	ents  *entities.Entities
	store *persistence.Store
	audit *persistence.AuditLogger
	hub   *Hub
	plan  scheduler.Plan
	now   Clock

	mu       sync.Mutex
	st       *state.GameState
	revision int64

	limiterMu sync.Mutex
	limiters  map[entities.EntityID]*rate.Limiter
}

func New(cfg config.Config, ents *entities.Entities, st *state.GameState, revision int64,
	store *persistence.Store, audit *persistence.AuditLogger, log *logrus.Logger, now Clock) *Server {
	return &Server{
		log:      log,
		cfg:      cfg,
		ents:     ents,
		store:    store,
		audit:    audit,
		hub:      NewHub(ents, log),
		plan:     scheduler.NewPlan(cfg.Game.TurnDurationsS),
		now:      now,
		st:       st,
		revision: revision,
		limiters: map[entities.EntityID]*rate.Limiter{},
	}
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /v1/action/initiate", s.handleInitiate)
	mux.HandleFunc("POST /v1/action/{id}/commit", s.handleCommit)
	mux.HandleFunc("POST /v1/action/{id}/revert", s.handleRevert)
	mux.HandleFunc("GET /v1/state", s.handleState)
	mux.HandleFunc("GET /v1/actions/unfinished", s.handleUnfinished)
	mux.HandleFunc("GET /v1/entities", s.handleEntities)
	mux.HandleFunc("GET /v1/ws", s.hub.Handler())
	return mux
}

func (s *Server) limiter(team entities.EntityID) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	l, ok := s.limiters[team]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.cfg.RateLimit.PerTeamPerSecond), s.cfg.RateLimit.Burst)
		s.limiters[team] = l
	}
	return l
}

// turnPosition maps wall time onto the turn structure. Before the first
// next-turn the game sits at turn zero, offset zero.
func (s *Server) turnPosition(st *state.GameState) (int, int) {
	if st.World.TurnStartedAt == 0 {
		return st.World.Turn, 0
	}
	offset := int(s.now() - st.World.TurnStartedAt)
	if offset < 0 {
		offset = 0
	}
	return st.World.Turn, offset
}

// transition clones the current state, runs fn's engine transition on the
// clone, and on success persists the clone as a new revision and swaps it in.
// A failed transition leaves the served state untouched.
func (s *Server) transition(fn func(eng *game.Engine, working *state.GameState) (*game.Result, error)) (*game.Result, *state.GameState, error) {
	working, err := s.st.Clone()
	if err != nil {
		return nil, nil, err
	}
	eng := game.NewEngine(s.ents, working)
	res, err := fn(eng, working)
	if err != nil {
		return nil, nil, err
	}
	prev := s.st
	rev, err := s.store.SaveRevision(s.ents.Revision, working)
	if err != nil {
		return nil, nil, fmt.Errorf("persist revision: %w", err)
	}
	s.st = working
	s.revision = rev
	return res, prev, nil
}

// sweepLocked applies every due scheduled effect before the request proper.
// Caller holds mu.
func (s *Server) sweepLocked() {
	turn, offset := s.turnPosition(s.st)
	sw := scheduler.NewSweeper(s.store, func(rec scheduler.Record) error {
		res, _, err := s.transition(func(eng *game.Engine, _ *state.GameState) (*game.Result, error) {
			return eng.ApplyScheduled(rec.Type, rec.Team, rec.Args)
		})
		if err != nil {
			return err
		}
		s.recordScheduled(rec.ActionID, res)
		s.deliver(res)
		if !res.Expected && rec.Team != "" {
			s.hub.Notify(rec.Team, res.Message)
		}
		return nil
	}, s.log)
	if n := sw.Sweep(turn, offset); n > 0 {
		s.log.WithField("count", n).Info("applied scheduled effects")
	}
}

// deliver pushes cross-team notifications to connected dashboards.
func (s *Server) deliver(res *game.Result) {
	for team, texts := range res.Notifications {
		for _, text := range texts {
			s.hub.Notify(team, text)
		}
	}
}

func (s *Server) recordScheduled(actionID string, res *game.Result) {
	if len(res.Scheduled) == 0 {
		return
	}
	turn, offset := s.turnPosition(s.st)
	for _, p := range res.Scheduled {
		targetTurn, targetOffset := s.plan.Shift(turn, offset, p.DelayS)
		_, err := s.store.InsertScheduled(scheduler.Record{
			ActionID:     actionID,
			Type:         p.Type,
			Team:         p.Team,
			Args:         p.Args,
			DelayS:       p.DelayS,
			TargetTurn:   targetTurn,
			TargetOffset: targetOffset,
		})
		if err != nil {
			s.log.WithError(err).WithField("action_type", p.Type).Error("persist scheduled effect")
		}
	}
}

func (s *Server) writeAudit(inst *game.Instance, res *game.Result) {
	if s.audit == nil {
		return
	}
	entry := persistence.AuditEntry{
		At:       fmt.Sprintf("%d", s.now()),
		ActionID: inst.ID,
		Type:     inst.Type,
		Team:     inst.Team,
		Phase:    string(inst.Phase),
	}
	if res != nil {
		entry.Expected = res.Expected
		entry.Message = res.Message
	}
	if err := s.audit.WriteAudit(entry); err != nil {
		s.log.WithError(err).Error("audit write")
	}
}

func (s *Server) handleInitiate(rw http.ResponseWriter, r *http.Request) {
	var req protocol.InitiateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSONStatus(rw, http.StatusBadRequest, protocol.ActionResponse{
			Code: protocol.ErrProtoBadRequest, Message: err.Error(),
		})
		return
	}
	if req.Action == "" {
		writeJSONStatus(rw, http.StatusBadRequest, protocol.ActionResponse{
			Code: protocol.ErrProtoBadRequest, Message: "missing action kind",
		})
		return
	}
	team := entities.EntityID(req.Team)
	if team != "" {
		if _, ok := s.ents.Teams[team]; !ok {
			writeJSONStatus(rw, http.StatusBadRequest, protocol.ActionResponse{
				Code: protocol.ErrUnknownTeam, Message: fmt.Sprintf("unknown team %q", req.Team),
			})
			return
		}
		if !s.limiter(team).Allow() {
			writeJSONStatus(rw, http.StatusTooManyRequests, protocol.ActionResponse{
				Code: protocol.ErrRateLimit, Message: "too many requests for this team",
			})
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	args := req.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	var inst *game.Instance
	res, _, err := s.transition(func(eng *game.Engine, _ *state.GameState) (*game.Result, error) {
		var err error
		inst, err = eng.NewInstance(req.Action, team, args)
		if err != nil {
			return nil, err
		}
		return eng.Initiate(inst)
	})
	if err != nil {
		s.writeActionError(rw, err)
		return
	}
	if err := s.store.InsertAction(inst, s.ents.Revision); err != nil {
		s.log.WithError(err).Error("persist action")
	}
	s.writeAudit(inst, res)
	s.deliver(res)
	writeJSON(rw, protocol.ActionResponse{
		Success:       true,
		Expected:      res.Expected,
		ActionID:      inst.ID,
		Message:       res.Message,
		Notifications: flattenNotifications(res),
	})
}

func (s *Server) handleCommit(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req protocol.CommitRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSONStatus(rw, http.StatusBadRequest, protocol.ActionResponse{
			Code: protocol.ErrProtoBadRequest, Message: err.Error(),
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	inst, err := s.store.GetAction(id)
	if err != nil {
		writeJSONStatus(rw, http.StatusNotFound, protocol.ActionResponse{
			Code: protocol.ErrNotFound, Message: err.Error(),
		})
		return
	}

	res, prev, err := s.transition(func(eng *game.Engine, _ *state.GameState) (*game.Result, error) {
		return eng.Commit(inst, req.Throws, req.Dots)
	})
	if err != nil {
		s.writeActionError(rw, err)
		return
	}
	if err := s.store.UpdateAction(inst); err != nil {
		s.log.WithError(err).Error("persist action phase")
	}
	s.recordScheduled(inst.ID, res)
	s.writeAudit(inst, res)
	s.deliver(res)

	var newStickers []string
	if res.Expected && inst.Team != "" {
		diff := stickers.Diff(s.ents, prev, s.st)
		for _, id := range diff[inst.Team] {
			newStickers = append(newStickers, string(id))
		}
	}
	writeJSON(rw, protocol.ActionResponse{
		Success:       true,
		Expected:      res.Expected,
		ActionID:      inst.ID,
		Message:       res.Message,
		Notifications: flattenNotifications(res),
		Stickers:      newStickers,
		Withdrawals:   formatAmounts(res.Withdrawn),
	})

	if inst.Type == game.TypeNextTurn && res.Expected {
		s.hub.BroadcastTurn(s.st.World.Turn)
	}
}

func (s *Server) handleRevert(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	inst, err := s.store.GetAction(id)
	if err != nil {
		writeJSONStatus(rw, http.StatusNotFound, protocol.ActionResponse{
			Code: protocol.ErrNotFound, Message: err.Error(),
		})
		return
	}
	res, _, err := s.transition(func(eng *game.Engine, _ *state.GameState) (*game.Result, error) {
		return eng.Revert(inst)
	})
	if err != nil {
		s.writeActionError(rw, err)
		return
	}
	if err := s.store.UpdateAction(inst); err != nil {
		s.log.WithError(err).Error("persist action phase")
	}
	s.writeAudit(inst, res)
	writeJSON(rw, protocol.ActionResponse{
		Success:  true,
		Expected: res.Expected,
		ActionID: inst.ID,
		Message:  res.Message,
	})
}

func (s *Server) handleState(rw http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	raw, err := s.st.Serialize()
	if err != nil {
		s.internalError(rw, err)
		return
	}
	writeJSON(rw, protocol.StateResponse{Revision: s.revision, State: raw})
}

func (s *Server) handleUnfinished(rw http.ResponseWriter, r *http.Request) {
	rows, err := s.store.UnfinishedActions()
	if err != nil {
		s.internalError(rw, err)
		return
	}
	if rows == nil {
		rows = []persistence.UnfinishedRow{}
	}
	writeJSON(rw, rows)
}

func (s *Server) handleEntities(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, map[string]any{
		"revision": s.ents.Revision,
		"digest":   s.ents.Digest,
		"teams":    s.ents.TeamIDs(),
	})
}

// writeActionError maps engine errors onto the response envelope. Business
// failures are a handled outcome, not an HTTP error; phase conflicts are 409;
// everything else is a defect.
func (s *Server) writeActionError(rw http.ResponseWriter, err error) {
	if game.IsActionFailed(err) {
		writeJSON(rw, protocol.ActionResponse{
			Success: false,
			Code:    protocol.ErrBadRequest,
			Message: err.Error(),
		})
		return
	}
	if errors.Is(err, game.ErrPhaseConflict) {
		writeJSONStatus(rw, http.StatusConflict, protocol.ActionResponse{
			Code: protocol.ErrPhaseConflict, Message: err.Error(),
		})
		return
	}
	s.internalError(rw, err)
}

// internalError reports a server defect. The game cannot be paused, so the
// org gets the full diagnostic in the response body, stack included, instead
// of an opaque status code.
func (s *Server) internalError(rw http.ResponseWriter, err error) {
	stack := string(debug.Stack())
	s.log.WithError(err).WithField("stack", stack).Error("internal error")
	writeJSON(rw, protocol.ActionResponse{
		Success: false,
		Code:    protocol.ErrInternal,
		Message: fmt.Sprintf("internal error: %v\n\n%s", err, stack),
	})
}

func flattenNotifications(res *game.Result) []protocol.Notification {
	var out []protocol.Notification
	for _, team := range sortedTeams(res.Notifications) {
		for _, text := range res.Notifications[team] {
			out = append(out, protocol.Notification{Team: string(team), Text: text})
		}
	}
	return out
}

func sortedTeams(m map[entities.EntityID][]string) []entities.EntityID {
	out := make([]entities.EntityID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func formatAmounts(a state.Amounts) []string {
	if len(a) == 0 {
		return nil
	}
	out := make([]string, 0, len(a))
	for _, id := range a.SortedIDs() {
		out = append(out, fmt.Sprintf("%s:%s", id, a[id]))
	}
	return out
}

func writeJSON(rw http.ResponseWriter, v any) {
	writeJSONStatus(rw, http.StatusOK, v)
}

func writeJSONStatus(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
