package repository

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMarshalProvenance(t *testing.T) {
	b, err := marshalProvenance(nil)
	if err != nil || b != nil {
		t.Fatalf("expected NULL provenance for empty map, got %q err=%v", b, err)
	}

	b, err = marshalProvenance(map[string]any{"detector": "gesture", "streak": 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("provenance is not valid json: %v", err)
	}
	if got["detector"] != "gesture" || got["streak"] != float64(6) {
		t.Fatalf("unexpected provenance: %+v", got)
	}
}

func TestMarshalProvenance_RejectsUnencodable(t *testing.T) {
	if _, err := marshalProvenance(map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatal("expected error for unencodable provenance")
	}
}

func TestGlossesOrEmpty(t *testing.T) {
	if g := glossesOrEmpty(nil); g == nil || len(g) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", g)
	}
	if g := glossesOrEmpty([]string{"chest"}); len(g) != 1 {
		t.Fatalf("unexpected glosses: %v", g)
	}
}

func TestMigrationCreatesVisitTables(t *testing.T) {
	all := strings.Join(migrationStatements, "\n")
	for _, table := range []string{"visits", "visit_segments", "visit_entities"} {
		if !strings.Contains(all, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("migration does not create %s", table)
		}
	}
}
