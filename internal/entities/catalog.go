package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Entities is one immutable revision of the game content catalog. A running
// game state references exactly one revision; revisions are append-only.
type Entities struct {
	Revision int
	Digest   string

	Resources map[EntityID]*Resource
	Techs     map[EntityID]*Tech
	Vyrobas   map[EntityID]*Vyroba
	Tiles     map[EntityID]*MapTileEntity
	Dice      map[EntityID]*Die
	Tasks     map[EntityID]*TaskEntity
	Teams     map[EntityID]*TeamEntity
	Orgs      map[EntityID]*OrgEntity

	TilesByIndex map[int]*MapTileEntity
}

func newEntities() *Entities {
	return &Entities{
		Resources:    map[EntityID]*Resource{},
		Techs:        map[EntityID]*Tech{},
		Vyrobas:      map[EntityID]*Vyroba{},
		Tiles:        map[EntityID]*MapTileEntity{},
		Dice:         map[EntityID]*Die{},
		Tasks:        map[EntityID]*TaskEntity{},
		Teams:        map[EntityID]*TeamEntity{},
		Orgs:         map[EntityID]*OrgEntity{},
		TilesByIndex: map[int]*MapTileEntity{},
	}
}

// Has reports whether id names any entity in this revision.
func (e *Entities) Has(id EntityID) bool {
	if _, ok := e.Resources[id]; ok {
		return true
	}
	if _, ok := e.Techs[id]; ok {
		return true
	}
	if _, ok := e.Vyrobas[id]; ok {
		return true
	}
	if _, ok := e.Tiles[id]; ok {
		return true
	}
	if _, ok := e.Dice[id]; ok {
		return true
	}
	if _, ok := e.Tasks[id]; ok {
		return true
	}
	if _, ok := e.Teams[id]; ok {
		return true
	}
	if _, ok := e.Orgs[id]; ok {
		return true
	}
	return false
}

// Name resolves a display name for any entity id, falling back to the id.
func (e *Entities) Name(id EntityID) string {
	if r, ok := e.Resources[id]; ok {
		return r.Name
	}
	if t, ok := e.Techs[id]; ok {
		return t.Name
	}
	if v, ok := e.Vyrobas[id]; ok {
		return v.Name
	}
	if t, ok := e.Tiles[id]; ok {
		return t.Name
	}
	if d, ok := e.Dice[id]; ok {
		return d.Name
	}
	if t, ok := e.Tasks[id]; ok {
		return t.Name
	}
	if t, ok := e.Teams[id]; ok {
		return t.Name
	}
	if o, ok := e.Orgs[id]; ok {
		return o.Name
	}
	return string(id)
}

// TeamIDs returns all team ids in sorted order.
func (e *Entities) TeamIDs() []EntityID {
	ids := make([]EntityID, 0, len(e.Teams))
	for id := range e.Teams {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// TileCount is the size of the circular map.
func (e *Entities) TileCount() int { return len(e.Tiles) }

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
