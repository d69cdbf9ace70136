package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"civilizace.org/internal/entities"
	"civilizace.org/internal/game"
	"civilizace.org/internal/scheduler"
	"civilizace.org/internal/state"
)

// ErrNoRevision is returned when the store holds no game state yet.
var ErrNoRevision = errors.New("no state revision stored")

// Store persists state revisions, action audit records and scheduled actions
// in one sqlite database. All writes happen inside the caller's request, on a
// single connection; the request-level lock in the server serializes them.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style revision log.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS revisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			entities_rev INTEGER NOT NULL,
			state BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			team TEXT NOT NULL,
			args TEXT NOT NULL,
			phase TEXT NOT NULL,
			paid TEXT NOT NULL,
			materials TEXT NOT NULL,
			entities_rev INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS scheduled (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action_id TEXT NOT NULL,
			type TEXT NOT NULL,
			team TEXT NOT NULL,
			args TEXT NOT NULL,
			delay_s INTEGER NOT NULL,
			target_turn INTEGER NOT NULL,
			target_offset INTEGER NOT NULL,
			performed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_pending
			ON scheduled(performed, target_turn, target_offset);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_phase ON actions(phase);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

func nowUTC() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// SaveRevision appends a new immutable state revision and returns its id.
func (s *Store) SaveRevision(entitiesRev int, st *state.GameState) (int64, error) {
	blob, err := encodeState(st)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO revisions(created_at, entities_rev, state) VALUES(?,?,?)`,
		nowUTC(), entitiesRev, blob,
	)
	if err != nil {
		return 0, fmt.Errorf("insert revision: %w", err)
	}
	return res.LastInsertId()
}

// LatestRevision loads the newest persisted state.
func (s *Store) LatestRevision() (int64, int, *state.GameState, error) {
	var (
		id          int64
		entitiesRev int
		blob        []byte
	)
	err := s.db.QueryRow(
		`SELECT id, entities_rev, state FROM revisions ORDER BY id DESC LIMIT 1`,
	).Scan(&id, &entitiesRev, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil, ErrNoRevision
	}
	if err != nil {
		return 0, 0, nil, fmt.Errorf("load revision: %w", err)
	}
	st, err := decodeState(blob)
	if err != nil {
		return 0, 0, nil, err
	}
	return id, entitiesRev, st, nil
}

// InsertAction persists a freshly constructed instance as an audit record.
func (s *Store) InsertAction(inst *game.Instance, entitiesRev int) error {
	paid, err := json.Marshal(inst.Paid)
	if err != nil {
		return err
	}
	materials, err := json.Marshal(inst.Materials)
	if err != nil {
		return err
	}
	now := nowUTC()
	_, err = s.db.Exec(
		`INSERT INTO actions(id, type, team, args, phase, paid, materials, entities_rev, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		inst.ID, inst.Type, string(inst.Team), string(inst.Args), string(inst.Phase),
		string(paid), string(materials), entitiesRev, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert action %s: %w", inst.ID, err)
	}
	return nil
}

// UpdateAction stores the instance's phase and payment bookkeeping after a
// transition.
func (s *Store) UpdateAction(inst *game.Instance) error {
	paid, err := json.Marshal(inst.Paid)
	if err != nil {
		return err
	}
	materials, err := json.Marshal(inst.Materials)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE actions SET phase=?, paid=?, materials=?, updated_at=? WHERE id=?`,
		string(inst.Phase), string(paid), string(materials), nowUTC(), inst.ID,
	)
	if err != nil {
		return fmt.Errorf("update action %s: %w", inst.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update action %s: not found", inst.ID)
	}
	return nil
}

// GetAction reloads a persisted instance by id.
func (s *Store) GetAction(id string) (*game.Instance, error) {
	var (
		inst      game.Instance
		team      string
		args      string
		phase     string
		paid      string
		materials string
	)
	err := s.db.QueryRow(
		`SELECT id, type, team, args, phase, paid, materials FROM actions WHERE id=?`, id,
	).Scan(&inst.ID, &inst.Type, &team, &args, &phase, &paid, &materials)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load action %s: %w", id, err)
	}
	inst.Team = entities.EntityID(team)
	inst.Args = json.RawMessage(args)
	inst.Phase = game.Phase(phase)
	if err := json.Unmarshal([]byte(paid), &inst.Paid); err != nil {
		return nil, fmt.Errorf("action %s paid: %w", id, err)
	}
	if err := json.Unmarshal([]byte(materials), &inst.Materials); err != nil {
		return nil, fmt.Errorf("action %s materials: %w", id, err)
	}
	return &inst, nil
}

// UnfinishedRow describes an initiated-but-uncommitted action blocking a team.
type UnfinishedRow struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Team      entities.EntityID `json:"team"`
	CreatedAt string            `json:"created_at"`
}

// UnfinishedActions lists actions stuck in the initiated phase, oldest first.
// There is no automatic timeout; operators resolve them by commit or revert.
func (s *Store) UnfinishedActions() ([]UnfinishedRow, error) {
	rows, err := s.db.Query(
		`SELECT id, type, team, created_at FROM actions WHERE phase=? ORDER BY created_at`,
		string(game.PhaseInitiated),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UnfinishedRow
	for rows.Next() {
		var r UnfinishedRow
		var team string
		if err := rows.Scan(&r.ID, &r.Type, &team, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Team = entities.EntityID(team)
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertScheduled persists a delayed application.
func (s *Store) InsertScheduled(rec scheduler.Record) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO scheduled(action_id, type, team, args, delay_s, target_turn, target_offset, performed, created_at)
		 VALUES(?,?,?,?,?,?,?,0,?)`,
		rec.ActionID, rec.Type, string(rec.Team), string(rec.Args),
		rec.DelayS, rec.TargetTurn, rec.TargetOffset, nowUTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert scheduled: %w", err)
	}
	return res.LastInsertId()
}

// DueScheduled lists unperformed records whose target time has passed.
func (s *Store) DueScheduled(turn, offsetS int) ([]scheduler.Record, error) {
	rows, err := s.db.Query(
		`SELECT id, action_id, type, team, args, delay_s, target_turn, target_offset
		 FROM scheduled
		 WHERE performed=0 AND (target_turn < ? OR (target_turn = ? AND target_offset <= ?))
		 ORDER BY target_turn, target_offset, id`,
		turn, turn, offsetS,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []scheduler.Record
	for rows.Next() {
		var (
			rec  scheduler.Record
			team string
			args string
		)
		if err := rows.Scan(&rec.ID, &rec.ActionID, &rec.Type, &team, &args,
			&rec.DelayS, &rec.TargetTurn, &rec.TargetOffset); err != nil {
			return nil, err
		}
		rec.Team = entities.EntityID(team)
		rec.Args = json.RawMessage(args)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkPerformed flips the consumed-exactly-once flag.
func (s *Store) MarkPerformed(id int64) error {
	res, err := s.db.Exec(`UPDATE scheduled SET performed=1 WHERE id=? AND performed=0`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("scheduled %d already performed or missing", id)
	}
	return nil
}
