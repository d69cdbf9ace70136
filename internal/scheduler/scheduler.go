package scheduler

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"civilizace.org/internal/entities"
)

// Plan is the turn structure: seconds per turn, in order. Turns have
// heterogeneous durations; turns past the end of the list reuse the last one.
type Plan struct {
	Durations []int
}

func NewPlan(durations []int) Plan {
	if len(durations) == 0 {
		durations = []int{900}
	}
	return Plan{Durations: durations}
}

// Duration is the length of the given turn in seconds.
func (p Plan) Duration(turn int) int {
	if turn < 0 {
		turn = 0
	}
	if turn >= len(p.Durations) {
		return p.Durations[len(p.Durations)-1]
	}
	return p.Durations[turn]
}

// Shift maps (turn, offset) plus a signed delta onto the turn structure,
// walking turn boundaries forward or backward as needed. Offsets are clamped
// to zero at the start of the plan.
func (p Plan) Shift(turn, offsetS, deltaS int) (int, int) {
	offsetS += deltaS
	for offsetS >= p.Duration(turn) {
		offsetS -= p.Duration(turn)
		turn++
	}
	for offsetS < 0 {
		if turn == 0 {
			return 0, 0
		}
		turn--
		offsetS += p.Duration(turn)
	}
	return turn, offsetS
}

// Record is one persisted delayed application.
type Record struct {
	ID       int64
	ActionID string
	Type     string
	Team     entities.EntityID
	Args     json.RawMessage

	DelayS       int
	TargetTurn   int
	TargetOffset int
	Performed    bool
}

// Due reports whether the record's target time has passed.
func (r Record) Due(turn, offsetS int) bool {
	if r.Performed {
		return false
	}
	if r.TargetTurn != turn {
		return r.TargetTurn < turn
	}
	return r.TargetOffset <= offsetS
}

// Store is the slice of the persistence layer the sweeper needs.
type Store interface {
	DueScheduled(turn, offsetS int) ([]Record, error)
	MarkPerformed(id int64) error
}

// Sweeper executes due delayed applications exactly once. It is poll driven:
// the request layer calls Sweep before handling each action, there is no
// background goroutine.
type Sweeper struct {
	store Store
	run   func(Record) error
	log   *logrus.Logger
}

func NewSweeper(store Store, run func(Record) error, log *logrus.Logger) *Sweeper {
	return &Sweeper{store: store, run: run, log: log}
}

// Sweep runs every due, unperformed record. Each record is marked performed
// before its failure could be retried: a failure is logged, never rerun, and
// never blocks the remaining records.
func (s *Sweeper) Sweep(turn, offsetS int) int {
	due, err := s.store.DueScheduled(turn, offsetS)
	if err != nil {
		s.log.WithError(err).Error("scheduler: listing due actions")
		return 0
	}
	ran := 0
	for _, rec := range due {
		if err := s.store.MarkPerformed(rec.ID); err != nil {
			s.log.WithError(err).WithField("scheduled_id", rec.ID).Error("scheduler: mark performed")
			continue
		}
		if err := s.run(rec); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"scheduled_id": rec.ID,
				"action_type":  rec.Type,
			}).Error("scheduler: delayed effect failed")
			continue
		}
		ran++
	}
	return ran
}
