package entities

import (
	"strings"
	"testing"
)

func testSheets() Sheets {
	return Sheets{
		"resources": {
			{"res-prace", "Práce", "production", "1"},
			{"res-obyvatel", "Obyvatel", "production", "1"},
			{"pro-drevo", "Produkce: Dřevo", "production", "1"},
			{"mat-drevo", "Dřevo", "material", "1"},
			{"mat-zbrane", "Zbraně", "material", "2"},
		},
		"dice": {
			{"die-les", "Lesní kostka", "20"},
		},
		"techs": {
			{"tec-start", "Start", "", "", "0", "tec-lesnictvi,vyr-drevo", "", "", ""},
			{"tec-lesnictvi", "Lesnictví", "res-prace:20,pro-drevo:2.5", "die-les", "10", "tec-pila", "", "", "tas-uzly"},
			{"tec-pila", "Pila", "res-prace:30", "die-les", "15", "", "storage:5", "building", ""},
		},
		"vyrobas": {
			{"vyr-drevo", "Těžba dřeva", "res-prace:5", "die-les", "5", "mat-drevo", "2", "", ""},
			{"vyr-zbrane", "Kování zbraní", "res-prace:10", "die-les", "10", "mat-zbrane", "1", "tec-pila", "instant"},
		},
		"tasks": {
			{"tas-uzly", "Uzly", "2", "tec-lesnictvi", "Předveďte tři druhy uzlů."},
		},
		"teams": {
			{"tym-cerveni", "Červení", "#d40000", "0"},
			{"tym-modri", "Modří", "#0044d4", "1"},
		},
		"tiles": {
			{"map-cerveni", "Domov Červených", "0", "0", "", "", "tym-cerveni"},
			{"map-modri", "Domov Modrých", "1", "0", "", "", "tym-modri"},
			{"map-les", "Les", "2", "2", "mat-drevo", "", ""},
			{"ost-pav", "Ostrov Páv", "3", "3", "mat-drevo", "island", ""},
		},
		"orgs": {
			{"org-marie", "Marie", "org"},
		},
	}
}

func TestParse_Catalog(t *testing.T) {
	ents, err := Parse(testSheets(), 7)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ents.Revision != 7 {
		t.Fatalf("revision = %d", ents.Revision)
	}

	tech := ents.Techs["tec-lesnictvi"]
	if tech == nil {
		t.Fatalf("missing tec-lesnictvi")
	}
	if got := tech.Cost["res-prace"]; got.String() != "20" {
		t.Fatalf("cost res-prace = %s", got)
	}
	if got := tech.Cost["pro-drevo"]; got.String() != "2.5" {
		t.Fatalf("cost pro-drevo = %s", got)
	}
	if tech.Dots != 10 || len(tech.Dice) != 1 || tech.Dice[0] != "die-les" {
		t.Fatalf("dice requirement = %v/%d", tech.Dice, tech.Dots)
	}
	if tech.Task != "tas-uzly" {
		t.Fatalf("task = %q", tech.Task)
	}

	pila := ents.Techs["tec-pila"]
	if !pila.Building || pila.Attributes["storage"] != 5 {
		t.Fatalf("building flags not parsed: %+v", pila)
	}

	vyr := ents.Vyrobas["vyr-zbrane"]
	if !vyr.InstantWithdraw || vyr.RequiredBuilding != "tec-pila" {
		t.Fatalf("vyroba flags not parsed: %+v", vyr)
	}
	if vyr.OutputAmount.String() != "1" {
		t.Fatalf("output amount = %s", vyr.OutputAmount)
	}

	if got := ents.TeamIDs(); len(got) != 2 || got[0] != "tym-cerveni" || got[1] != "tym-modri" {
		t.Fatalf("team ids = %v", got)
	}
	if ents.TilesByIndex[3] == nil || !ents.TilesByIndex[3].Island {
		t.Fatalf("island tile not indexed")
	}
}

func TestParse_Idempotent(t *testing.T) {
	a, err := Parse(testSheets(), 1)
	if err != nil {
		t.Fatalf("first parse: %v", err)
	}
	b, err := Parse(testSheets(), 1)
	if err != nil {
		t.Fatalf("second parse: %v", err)
	}
	if len(a.Resources) != len(b.Resources) || len(a.Techs) != len(b.Techs) ||
		len(a.Vyrobas) != len(b.Vyrobas) || len(a.Tiles) != len(b.Tiles) {
		t.Fatalf("parses differ in size")
	}
	for id, tech := range a.Techs {
		other := b.Techs[id]
		if other == nil || other.Dots != tech.Dots || len(other.Cost) != len(tech.Cost) {
			t.Fatalf("tech %s differs between parses", id)
		}
	}
}

func TestParse_RejectsAnyWarning(t *testing.T) {
	sheets := testSheets()
	sheets["resources"] = append(sheets["resources"], []string{"res-divny", "Divný", "liquid", "1"})
	sheets["techs"] = append(sheets["techs"], []string{"tec-sirotek", "Sirotek", "res-neexistuje:5", "", "0", "", "", "", ""})

	ents, err := Parse(sheets, 1)
	if ents != nil {
		t.Fatalf("expected rejected import to return no catalog")
	}
	ie, ok := err.(*ImportError)
	if !ok {
		t.Fatalf("expected *ImportError, got %T: %v", err, err)
	}
	if len(ie.Warnings) < 2 {
		t.Fatalf("expected both problems listed, got %v", ie.Warnings)
	}
	if !strings.Contains(err.Error(), "unknown kind") {
		t.Fatalf("error does not name the bad kind: %v", err)
	}
	if !strings.Contains(err.Error(), "res-neexistuje") {
		t.Fatalf("error does not name the dangling reference: %v", err)
	}
}

func TestParse_RejectsSparseTileIndexes(t *testing.T) {
	// Map distance is circular modulo the tile count; a hole in the index
	// sequence would make it go negative.
	sheets := testSheets()
	sheets["tiles"] = append(sheets["tiles"], []string{"ost-velryba", "Ostrov Velryba", "9", "1", "", "island", ""})

	_, err := Parse(sheets, 1)
	if err == nil {
		t.Fatalf("expected sparse tile indexes to fail the import")
	}
	if !strings.Contains(err.Error(), "not contiguous") || !strings.Contains(err.Error(), "missing index 4") {
		t.Fatalf("error does not name the hole: %v", err)
	}
}

func TestParse_DuplicateIDAcrossSheets(t *testing.T) {
	sheets := testSheets()
	sheets["orgs"] = append(sheets["orgs"], []string{"mat-drevo", "Podvodník", "org"})
	_, err := Parse(sheets, 1)
	if err == nil {
		t.Fatalf("expected duplicate id to fail the import")
	}
	if !strings.Contains(err.Error(), "duplicate id") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParse_MissingRequiredResources(t *testing.T) {
	sheets := testSheets()
	sheets["resources"] = sheets["resources"][2:] // drop res-prace and res-obyvatel
	_, err := Parse(sheets, 1)
	if err == nil {
		t.Fatalf("expected missing required resources to fail")
	}
	if !strings.Contains(err.Error(), "res-prace") || !strings.Contains(err.Error(), "res-obyvatel") {
		t.Fatalf("error does not name required resources: %v", err)
	}
}

func TestLoad_Fixture(t *testing.T) {
	ents, err := Load("../../data/entityset.json", 3)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	if ents.Digest == "" {
		t.Fatalf("missing digest")
	}
	if ents.Revision != 3 {
		t.Fatalf("revision = %d", ents.Revision)
	}
	again, err := Load("../../data/entityset.json", 3)
	if err != nil {
		t.Fatalf("reload fixture: %v", err)
	}
	if again.Digest != ents.Digest {
		t.Fatalf("digest not stable: %s vs %s", again.Digest, ents.Digest)
	}
	for _, team := range ents.TeamIDs() {
		home := ents.Teams[team].HomeIndex
		if ents.TilesByIndex[home] == nil {
			t.Fatalf("team %s home index %d has no tile", team, home)
		}
	}
}
