package lookup

import (
	"testing"
)

func TestBuildIndices(t *testing.T) {
	rows := []ReferenceRow{
		{ID: "1", DisplayName: "Open"},
		{ID: "2", DisplayName: "Closed"},
		{ID: "3", DisplayName: " open "},
	}

	l := Build(rows, true)

	if len(l.ValidIDs) != 3 {
		t.Fatalf("expected 3 valid ids, got %d", len(l.ValidIDs))
	}

	// Bijective coverage: every valid id has exactly one name entry and vice versa
	if len(l.IDsToName) != len(l.ValidIDs) {
		t.Errorf("IDsToName size %d != ValidIDs size %d", len(l.IDsToName), len(l.ValidIDs))
	}
	for id := range l.ValidIDs {
		if _, ok := l.IDsToName[id]; !ok {
			t.Errorf("id %q in ValidIDs but missing from IDsToName", id)
		}
	}
	for id := range l.IDsToName {
		if _, ok := l.ValidIDs[id]; !ok {
			t.Errorf("id %q in IDsToName but missing from ValidIDs", id)
		}
	}

	// Names collapse on trim + lowercase; duplicates preserved, not deduped
	if ids := l.NameToIDs["open"]; len(ids) != 2 {
		t.Errorf("expected 2 candidate ids for 'open', got %v", ids)
	}
	if ids := l.NameToIDs["closed"]; len(ids) != 1 || ids[0] != "2" {
		t.Errorf("expected ['2'] for 'closed', got %v", ids)
	}

	// Every id under NameToIDs is also a valid id
	for name, ids := range l.NameToIDs {
		for _, id := range ids {
			if _, ok := l.ValidIDs[id]; !ok {
				t.Errorf("name %q maps to id %q not present in ValidIDs", name, id)
			}
		}
	}
}

func TestBuildEmpty(t *testing.T) {
	l := Build(nil, false)
	if len(l.NameToIDs) != 0 || len(l.ValidIDs) != 0 || len(l.IDsToName) != 0 {
		t.Error("empty input must yield three empty structures")
	}
}

func TestBuildDuplicateIDLastWriteWins(t *testing.T) {
	l := Build([]ReferenceRow{
		{ID: "7", DisplayName: "First"},
		{ID: "7", DisplayName: "Second"},
	}, true)

	if got := l.IDsToName["7"]; got != "Second" {
		t.Errorf("expected last write to win, got %q", got)
	}
}

func TestFormatID(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want string
	}{
		{"String", "abc-123", "abc-123"},
		{"WholeFloat", float64(42), "42"},
		{"Int", 7, "7"},
		{"Nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatID(tt.raw); got != tt.want {
				t.Errorf("FormatID(%v) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
