package entities

import (
	"github.com/shopspring/decimal"
)

// EntityID is a stable, globally unique content id ("res-prace", "tec-lesnictvi").
// Ids never change once assigned; everything else references entities by id only.
type EntityID string

// Well-known ids the rules hardcode behavior for.
const (
	ResourceWork     EntityID = "res-prace"
	ResourceVillager EntityID = "res-obyvatel"
	ResourceCulture  EntityID = "res-kultura"
	MaterialWeapons  EntityID = "mat-zbrane"
)

const (
	ResourceKindProduction = "production"
	ResourceKindMaterial   = "material"
)

type Resource struct {
	ID    EntityID
	Name  string
	Kind  string // "production" (tracked counter) or "material" (physical hand-off)
	Level int
}

// Tracked reports whether amounts of this resource live in a team counter.
// Materials are never tracked; the org hands them over physically.
func (r *Resource) Tracked() bool { return r.Kind == ResourceKindProduction }

type Tech struct {
	ID   EntityID
	Name string

	Cost map[EntityID]decimal.Decimal
	Dice []EntityID
	Dots int

	// Unlocked edges: techs, vyrobas and buildings reachable once owned.
	Unlocks []EntityID

	// Team attribute bonuses granted while owned ("storage", "obyvatel-cap").
	Attributes map[string]int

	Building bool
	Task     EntityID
}

type Vyroba struct {
	ID   EntityID
	Name string

	Cost         map[EntityID]decimal.Decimal
	Die          EntityID
	Dots         int
	Output       EntityID
	OutputAmount decimal.Decimal

	RequiredBuilding EntityID
	InstantWithdraw  bool
}

type MapTileEntity struct {
	ID       EntityID
	Name     string
	Index    int // position on the circular map
	Richness int
	Natural  []EntityID // natural feature resources

	Island   bool
	HomeTeam EntityID // set for team home tiles, empty otherwise
}

type Die struct {
	ID    EntityID
	Name  string
	Sides int
}

type TaskEntity struct {
	ID       EntityID
	Name     string
	Text     string
	Capacity int        // how many teams may hold it at once
	Techs    []EntityID // techs this task may gate
}

type TeamEntity struct {
	ID        EntityID
	Name      string
	Color     string
	HomeIndex int
}

type OrgEntity struct {
	ID   EntityID
	Name string
	Role string
}
