package entities

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Sheets is the raw tabular entity source: sheet name -> rows of string cells.
type Sheets map[string][][]string

// Warning describes one malformed cell. Any warning rejects the whole import;
// the previous catalog revision stays authoritative.
type Warning struct {
	Sheet string
	Row   int
	Field string
	Msg   string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s row %d, %s: %s", w.Sheet, w.Row, w.Field, w.Msg)
}

// ImportError carries all warnings of a rejected import.
type ImportError struct {
	Warnings []Warning
}

func (e *ImportError) Error() string {
	lines := make([]string, 0, len(e.Warnings)+1)
	lines = append(lines, fmt.Sprintf("entity import rejected (%d problems):", len(e.Warnings)))
	for _, w := range e.Warnings {
		lines = append(lines, "  "+w.String())
	}
	return strings.Join(lines, "\n")
}

// Load reads a JSON-encoded sheet set from disk and parses it into a catalog
// revision. The digest covers the raw file bytes.
func Load(path string, revision int) (*Entities, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sheets Sheets
	if err := json.Unmarshal(raw, &sheets); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ents, err := Parse(sheets, revision)
	if err != nil {
		return nil, err
	}
	ents.Digest = sha256Hex(raw)
	return ents, nil
}

// Parse builds a catalog revision from sheets. It is all-or-nothing: any
// malformed row or dangling reference fails the import with an *ImportError
// listing every problem found.
func Parse(sheets Sheets, revision int) (*Entities, error) {
	p := &parser{ents: newEntities()}
	p.ents.Revision = revision

	p.parseResources(sheets["resources"])
	p.parseDice(sheets["dice"])
	p.parseTechs(sheets["techs"])
	p.parseVyrobas(sheets["vyrobas"])
	p.parseTasks(sheets["tasks"])
	p.parseTeams(sheets["teams"])
	p.parseTiles(sheets["tiles"])
	p.parseOrgs(sheets["orgs"])
	p.crossCheck()

	if len(p.warnings) > 0 {
		return nil, &ImportError{Warnings: p.warnings}
	}
	return p.ents, nil
}

type parser struct {
	ents     *Entities
	warnings []Warning
	seen     map[EntityID]string // id -> sheet, for global uniqueness
}

func (p *parser) warn(sheet string, row int, field, format string, args ...any) {
	p.warnings = append(p.warnings, Warning{
		Sheet: sheet, Row: row, Field: field,
		Msg: fmt.Sprintf(format, args...),
	})
}

func (p *parser) claimID(sheet string, row int, raw string) (EntityID, bool) {
	id := EntityID(strings.TrimSpace(raw))
	if id == "" {
		p.warn(sheet, row, "id", "empty id")
		return "", false
	}
	if p.seen == nil {
		p.seen = map[EntityID]string{}
	}
	if prev, ok := p.seen[id]; ok {
		p.warn(sheet, row, "id", "duplicate id %q (already in %s)", id, prev)
		return "", false
	}
	p.seen[id] = sheet
	return id, true
}

func (p *parser) cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (p *parser) intCell(sheet string, row int, field string, raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.warn(sheet, row, field, "not an integer: %q", raw)
		return def
	}
	return n
}

func (p *parser) decCell(sheet string, row int, field string, raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		p.warn(sheet, row, field, "not a number: %q", raw)
		return decimal.Zero
	}
	return d
}

// costCell parses "res-a:2,res-b:1.5" into an amount map.
func (p *parser) costCell(sheet string, row int, field string, raw string) map[EntityID]decimal.Decimal {
	out := map[EntityID]decimal.Decimal{}
	if raw == "" {
		return out
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, amount, ok := strings.Cut(part, ":")
		if !ok {
			p.warn(sheet, row, field, "expected id:amount, got %q", part)
			continue
		}
		out[EntityID(strings.TrimSpace(id))] = p.decCell(sheet, row, field, strings.TrimSpace(amount))
	}
	return out
}

func (p *parser) listCell(raw string) []EntityID {
	var out []EntityID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, EntityID(part))
		}
	}
	return out
}

func (p *parser) attrCell(sheet string, row int, field string, raw string) map[string]int {
	out := map[string]int{}
	if raw == "" {
		return out
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, ":")
		if !ok {
			p.warn(sheet, row, field, "expected key:value, got %q", part)
			continue
		}
		out[strings.TrimSpace(key)] = p.intCell(sheet, row, field, strings.TrimSpace(val), 0)
	}
	return out
}

func hasFlag(raw, flag string) bool {
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == flag {
			return true
		}
	}
	return false
}

// resources: id | name | kind | level
func (p *parser) parseResources(rows [][]string) {
	for i, row := range rows {
		id, ok := p.claimID("resources", i, p.cell(row, 0))
		if !ok {
			continue
		}
		kind := p.cell(row, 2)
		if kind != ResourceKindProduction && kind != ResourceKindMaterial {
			p.warn("resources", i, "kind", "unknown kind %q", kind)
			continue
		}
		p.ents.Resources[id] = &Resource{
			ID:    id,
			Name:  p.cell(row, 1),
			Kind:  kind,
			Level: p.intCell("resources", i, "level", p.cell(row, 3), 1),
		}
	}
}

// dice: id | name | sides
func (p *parser) parseDice(rows [][]string) {
	for i, row := range rows {
		id, ok := p.claimID("dice", i, p.cell(row, 0))
		if !ok {
			continue
		}
		p.ents.Dice[id] = &Die{
			ID:    id,
			Name:  p.cell(row, 1),
			Sides: p.intCell("dice", i, "sides", p.cell(row, 2), 6),
		}
	}
}

// techs: id | name | cost | dice | dots | unlocks | attributes | flags | task
func (p *parser) parseTechs(rows [][]string) {
	for i, row := range rows {
		id, ok := p.claimID("techs", i, p.cell(row, 0))
		if !ok {
			continue
		}
		p.ents.Techs[id] = &Tech{
			ID:         id,
			Name:       p.cell(row, 1),
			Cost:       p.costCell("techs", i, "cost", p.cell(row, 2)),
			Dice:       p.listCell(p.cell(row, 3)),
			Dots:       p.intCell("techs", i, "dots", p.cell(row, 4), 0),
			Unlocks:    p.listCell(p.cell(row, 5)),
			Attributes: p.attrCell("techs", i, "attributes", p.cell(row, 6)),
			Building:   hasFlag(p.cell(row, 7), "building"),
			Task:       EntityID(p.cell(row, 8)),
		}
	}
}

// vyrobas: id | name | cost | die | dots | output | amount | building | flags
func (p *parser) parseVyrobas(rows [][]string) {
	for i, row := range rows {
		id, ok := p.claimID("vyrobas", i, p.cell(row, 0))
		if !ok {
			continue
		}
		amount := decimal.NewFromInt(1)
		if raw := p.cell(row, 6); raw != "" {
			amount = p.decCell("vyrobas", i, "amount", raw)
		}
		p.ents.Vyrobas[id] = &Vyroba{
			ID:               id,
			Name:             p.cell(row, 1),
			Cost:             p.costCell("vyrobas", i, "cost", p.cell(row, 2)),
			Die:              EntityID(p.cell(row, 3)),
			Dots:             p.intCell("vyrobas", i, "dots", p.cell(row, 4), 0),
			Output:           EntityID(p.cell(row, 5)),
			OutputAmount:     amount,
			RequiredBuilding: EntityID(p.cell(row, 7)),
			InstantWithdraw:  hasFlag(p.cell(row, 8), "instant"),
		}
	}
}

// tasks: id | name | capacity | techs | text
func (p *parser) parseTasks(rows [][]string) {
	for i, row := range rows {
		id, ok := p.claimID("tasks", i, p.cell(row, 0))
		if !ok {
			continue
		}
		p.ents.Tasks[id] = &TaskEntity{
			ID:       id,
			Name:     p.cell(row, 1),
			Capacity: p.intCell("tasks", i, "capacity", p.cell(row, 2), 1),
			Techs:    p.listCell(p.cell(row, 3)),
			Text:     p.cell(row, 4),
		}
	}
}

// teams: id | name | color | home-index
func (p *parser) parseTeams(rows [][]string) {
	for i, row := range rows {
		id, ok := p.claimID("teams", i, p.cell(row, 0))
		if !ok {
			continue
		}
		p.ents.Teams[id] = &TeamEntity{
			ID:        id,
			Name:      p.cell(row, 1),
			Color:     p.cell(row, 2),
			HomeIndex: p.intCell("teams", i, "home-index", p.cell(row, 3), -1),
		}
	}
}

// tiles: id | name | index | richness | natural | flags | home-team
func (p *parser) parseTiles(rows [][]string) {
	byIndex := map[int]int{}
	for i, row := range rows {
		id, ok := p.claimID("tiles", i, p.cell(row, 0))
		if !ok {
			continue
		}
		index := p.intCell("tiles", i, "index", p.cell(row, 2), -1)
		if index < 0 {
			p.warn("tiles", i, "index", "missing map index")
			continue
		}
		if prev, dup := byIndex[index]; dup {
			p.warn("tiles", i, "index", "index %d already used by row %d", index, prev)
			continue
		}
		byIndex[index] = i
		tile := &MapTileEntity{
			ID:       id,
			Name:     p.cell(row, 1),
			Index:    index,
			Richness: p.intCell("tiles", i, "richness", p.cell(row, 3), 0),
			Natural:  p.listCell(p.cell(row, 4)),
			Island:   hasFlag(p.cell(row, 5), "island"),
			HomeTeam: EntityID(p.cell(row, 6)),
		}
		p.ents.Tiles[id] = tile
		p.ents.TilesByIndex[index] = tile
	}
}

// orgs: id | name | role
func (p *parser) parseOrgs(rows [][]string) {
	for i, row := range rows {
		id, ok := p.claimID("orgs", i, p.cell(row, 0))
		if !ok {
			continue
		}
		p.ents.Orgs[id] = &OrgEntity{
			ID:   id,
			Name: p.cell(row, 1),
			Role: p.cell(row, 2),
		}
	}
}

// crossCheck verifies every referenced id resolves within the revision.
func (p *parser) crossCheck() {
	e := p.ents
	checkRes := func(sheet string, id EntityID, field string, ref EntityID) {
		if _, ok := e.Resources[ref]; !ok {
			p.warn(sheet, -1, field, "%s references unknown resource %q", id, ref)
		}
	}
	for id, t := range e.Techs {
		for ref := range t.Cost {
			checkRes("techs", id, "cost", ref)
		}
		for _, ref := range t.Dice {
			if _, ok := e.Dice[ref]; !ok {
				p.warn("techs", -1, "dice", "%s references unknown die %q", id, ref)
			}
		}
		for _, ref := range t.Unlocks {
			_, tech := e.Techs[ref]
			_, vyr := e.Vyrobas[ref]
			if !tech && !vyr {
				p.warn("techs", -1, "unlocks", "%s references unknown entity %q", id, ref)
			}
		}
		if t.Task != "" {
			if _, ok := e.Tasks[t.Task]; !ok {
				p.warn("techs", -1, "task", "%s references unknown task %q", id, t.Task)
			}
		}
	}
	for id, v := range e.Vyrobas {
		for ref := range v.Cost {
			checkRes("vyrobas", id, "cost", ref)
		}
		checkRes("vyrobas", id, "output", v.Output)
		if v.Die != "" {
			if _, ok := e.Dice[v.Die]; !ok {
				p.warn("vyrobas", -1, "die", "%s references unknown die %q", id, v.Die)
			}
		}
		if v.RequiredBuilding != "" {
			b, ok := e.Techs[v.RequiredBuilding]
			if !ok || !b.Building {
				p.warn("vyrobas", -1, "building", "%s references unknown building %q", id, v.RequiredBuilding)
			}
		}
	}
	for id, t := range e.Tiles {
		for _, ref := range t.Natural {
			checkRes("tiles", id, "natural", ref)
		}
		if t.HomeTeam != "" {
			if _, ok := e.Teams[t.HomeTeam]; !ok {
				p.warn("tiles", -1, "home-team", "%s references unknown team %q", id, t.HomeTeam)
			}
		}
	}
	// Map distance treats the tile ring as circular modulo len(Tiles), so the
	// indexes must cover 0..N-1 with no holes.
	for i := 0; i < len(e.Tiles); i++ {
		if _, ok := e.TilesByIndex[i]; !ok {
			p.warn("tiles", -1, "index", "tile indexes are not contiguous: missing index %d", i)
		}
	}
	for id, t := range e.Teams {
		if _, ok := e.TilesByIndex[t.HomeIndex]; !ok {
			p.warn("teams", -1, "home-index", "%s home index %d has no tile", id, t.HomeIndex)
		}
	}
	for id, t := range e.Tasks {
		for _, ref := range t.Techs {
			if _, ok := e.Techs[ref]; !ok {
				p.warn("tasks", -1, "techs", "%s references unknown tech %q", id, ref)
			}
		}
	}
	for _, id := range []EntityID{ResourceWork, ResourceVillager} {
		if _, ok := e.Resources[id]; !ok {
			p.warn("resources", -1, "id", "missing required resource %q", id)
		}
	}
}
