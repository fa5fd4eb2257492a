package database

import (
	"slices"
	"testing"
	"testing/fstest"
)

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_tokens.up.sql":   {Data: []byte("SELECT 2")},
		"001_events.up.sql":   {Data: []byte("SELECT 1")},
		"001_events.down.sql": {Data: []byte("DROP")},
		"README.md":           {Data: []byte("docs")},
		"003_more.up.sql":     {Data: []byte("SELECT 3")},
	}

	tests := []struct {
		name    string
		applied []string
		want    []string
	}{
		{"fresh database", nil, []string{"001_events.up.sql", "002_tokens.up.sql", "003_more.up.sql"}},
		{"partially applied", []string{"001_events.up.sql"}, []string{"002_tokens.up.sql", "003_more.up.sql"}},
		{"up to date", []string{"001_events.up.sql", "002_tokens.up.sql", "003_more.up.sql"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pendingMigrations(fsys, tt.applied)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("pendingMigrations() = %v, want %v", got, tt.want)
			}
		})
	}
}
