package organizer

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/mantonx/shoebox/internal/config"
	"github.com/mantonx/shoebox/internal/database"
)

// Roots holds the three top-level directories a media file can live
// under. All path resolution is pure computation over these roots.
type Roots struct {
	Unsorted string
	Daily    string
	Events   string
}

// RootsFromConfig derives the library roots from configuration.
func RootsFromConfig(cfg *config.Config) Roots {
	return Roots{
		Unsorted: cfg.Library.UnsortedDir,
		Daily:    cfg.Library.DailyDir,
		Events:   cfg.Library.EventsDir,
	}
}

// FolderNameFromTitle derives the on-disk folder name for an event or
// sub-event title: path separators and NUL are stripped, whitespace
// runs collapse to a single underscore. The derivation is deterministic
// so a cached folder name can be compared against a fresh derivation to
// detect pending renames.
func FolderNameFromTitle(title string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range title {
		switch {
		case r == '/' || r == '\\' || r == 0:
			// stripped entirely
		case unicode.IsSpace(r):
			inSpace = true
		default:
			if inSpace && b.Len() > 0 {
				b.WriteByte('_')
			}
			inSpace = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UnsortedDir returns the unsorted pool root.
func (r Roots) UnsortedDir() string {
	return r.Unsorted
}

// DailyDir returns the date-bucketed archive directory for an effective
// datetime.
func (r Roots) DailyDir(t time.Time) string {
	year, month, day := t.Date()
	return filepath.Join(r.Daily,
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day))
}

// EventDir returns the root directory of an event.
func (r Roots) EventDir(event *database.Event) string {
	return filepath.Join(r.Events, event.FolderName)
}

// SubeventDir returns the directory of a depth-1 sub-event.
func (r Roots) SubeventDir(event *database.Event, sub *database.Subevent) string {
	return filepath.Join(r.Events, event.FolderName, sub.FolderName)
}

// NestedSubeventDir returns the directory of a depth-2 sub-event.
func (r Roots) NestedSubeventDir(event *database.Event, parent, sub *database.Subevent) string {
	return filepath.Join(r.Events, event.FolderName, parent.FolderName, sub.FolderName)
}

// ResolveDirectory maps a storage state plus its associated records to
// the canonical directory. It performs no I/O. The returned ok is false
// only for the daily state with no effective datetime; the state
// machine's guard keeps that combination from ever being entered.
func (r Roots) ResolveDirectory(state database.StorageState, item *database.MediaItem, event *database.Event, parent, sub *database.Subevent) (string, bool) {
	switch state {
	case database.StateUnsorted:
		return r.Unsorted, true
	case database.StateDaily:
		t := item.EffectiveTakenAt()
		if t == nil {
			return "", false
		}
		return r.DailyDir(*t), true
	case database.StateEventRoot:
		return r.EventDir(event), true
	case database.StateSubeventL1:
		return r.SubeventDir(event, sub), true
	case database.StateSubeventL2:
		return r.NestedSubeventDir(event, parent, sub), true
	default:
		return "", false
	}
}
