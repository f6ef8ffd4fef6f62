package organizer

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mantonx/shoebox/internal/database"
)

func TestFolderNameFromTitle(t *testing.T) {
	tests := []struct {
		title    string
		expected string
	}{
		{"Summer Trip", "Summer_Trip"},
		{"  padded  ", "padded"},
		{"a/b\\c", "abc"},
		{"tabs\tand\nnewlines", "tabs_and_newlines"},
		{"multi   space   runs", "multi_space_runs"},
		{"already_clean", "already_clean"},
		{"", ""},
		{"///", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FolderNameFromTitle(tt.title), "title %q", tt.title)
	}
}

func TestDailyDir(t *testing.T) {
	roots := Roots{Daily: "/lib/daily"}
	taken := time.Date(2024, time.March, 7, 14, 30, 0, 0, time.UTC)

	assert.Equal(t, filepath.Join("/lib/daily", "2024", "03", "07"), roots.DailyDir(taken))
}

func TestResolveDirectory(t *testing.T) {
	roots := Roots{
		Unsorted: "/lib/unsorted",
		Daily:    "/lib/daily",
		Events:   "/lib/events",
	}
	event := &database.Event{FolderName: "Summer_Trip"}
	parent := &database.Subevent{FolderName: "Day_1"}
	sub := &database.Subevent{FolderName: "Beach"}

	taken := time.Date(2023, time.December, 31, 23, 0, 0, 0, time.UTC)
	dated := &database.MediaItem{InferredTakenAt: &taken}
	undated := &database.MediaItem{}

	tests := []struct {
		name     string
		state    database.StorageState
		item     *database.MediaItem
		expected string
		ok       bool
	}{
		{"unsorted", database.StateUnsorted, undated, "/lib/unsorted", true},
		{"daily with datetime", database.StateDaily, dated, filepath.Join("/lib/daily", "2023", "12", "31"), true},
		{"daily without datetime", database.StateDaily, undated, "", false},
		{"event root", database.StateEventRoot, undated, filepath.Join("/lib/events", "Summer_Trip"), true},
		{"subevent level 1", database.StateSubeventL1, undated, filepath.Join("/lib/events", "Summer_Trip", "Beach"), true},
		{"subevent level 2", database.StateSubeventL2, undated, filepath.Join("/lib/events", "Summer_Trip", "Day_1", "Beach"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, ok := roots.ResolveDirectory(tt.state, tt.item, event, parent, sub)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, dir)
		})
	}
}
