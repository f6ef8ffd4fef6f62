package mediamodule

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mantonx/shoebox/internal/database"
	"github.com/mantonx/shoebox/internal/events"
	"github.com/mantonx/shoebox/internal/organizer"
	"github.com/mantonx/shoebox/internal/utils"
)

// ErrVersionNotFound reports a version filename with no record on the
// item.
var ErrVersionNotFound = errors.New("version not found")

// ErrUnknownParent reports a parent reference that matches no existing
// version filename on the item.
var ErrUnknownParent = errors.New("parent version not found")

const maxVersionAttempts = 1000

// versionSlug turns a free-form description into a filesystem-safe
// version name.
func versionSlug(description string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(description) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "version"
	}
	return slug
}

// versionFilename builds the unique on-disk name for a new version: the
// description slug plus the canonical file's extension, with a counter
// suffix on collision. The incoming file's own extension is ignored;
// every version carries the canonical extension.
func (m *Manager) versionFilename(item *database.MediaItem, description string) (string, error) {
	slug := versionSlug(description)
	_, ext := utils.SplitExt(item.Filename)
	dir := organizer.VersionsDir(item.FilePath())

	taken := make(map[string]bool, len(item.Versions))
	for _, v := range item.Versions {
		taken[strings.ToLower(v.Filename)] = true
	}

	for i := 1; i <= maxVersionAttempts; i++ {
		candidate := slug + ext
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d%s", slug, i, ext)
		}
		if taken[strings.ToLower(candidate)] {
			continue
		}
		if utils.FileExists(filepath.Join(dir, candidate)) {
			continue
		}
		return candidate, nil
	}
	return "", fmt.Errorf("no free version name for %q after %d attempts", slug, maxVersionAttempts)
}

// AddVersion moves sourceFile into the item's version history as a new
// branch. Parent references an existing version's filename, or is nil
// for a branch off the original file. The sidecar manifest is rewritten
// after the record is in.
func (m *Manager) AddVersion(itemID, sourceFile, description string, parent *string) (*database.MediaVersion, error) {
	unlock := m.locker.Lock(itemID)
	defer unlock()

	item, err := m.Get(itemID)
	if err != nil {
		return nil, err
	}

	if parent != nil {
		if !hasVersion(item, *parent) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParent, *parent)
		}
	}

	versionsDir := organizer.VersionsDir(item.FilePath())
	if err := utils.EnsureDir(versionsDir); err != nil {
		return nil, err
	}

	filename, err := m.versionFilename(item, description)
	if err != nil {
		return nil, err
	}
	dest := filepath.Join(versionsDir, filename)

	if err := utils.MoveFile(sourceFile, dest); err != nil {
		return nil, fmt.Errorf("failed to place version file: %w", err)
	}

	now := time.Now()
	version := &database.MediaVersion{
		MediaItemID: item.ID,
		Filename:    filename,
		Description: description,
		Parent:      parent,
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	if err := m.db.Create(version).Error; err != nil {
		// Record creation failed, so the file goes back where it
		// came from.
		if moveErr := utils.MoveFile(dest, sourceFile); moveErr != nil {
			m.log.Error("failed to restore version source after record failure",
				"item_id", item.ID, "file", dest, "error", moveErr)
		}
		return nil, err
	}
	item.Versions = append(item.Versions, *version)

	m.rewriteManifest(item)

	m.log.Info("version added", "item_id", item.ID, "version", filename, "parent", parent)
	m.publish(events.EventVersionAdded, item, map[string]interface{}{
		"version":     filename,
		"description": description,
	})
	return version, nil
}

// SetPrimary points the item at the version whose bytes feed artifact
// generation. A nil filename resets to the original file. Artifacts are
// regenerated from the new source immediately.
func (m *Manager) SetPrimary(itemID string, filename *string) (*database.MediaItem, error) {
	unlock := m.locker.Lock(itemID)
	defer unlock()

	item, err := m.Get(itemID)
	if err != nil {
		return nil, err
	}

	if filename != nil && !hasVersion(item, *filename) {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, *filename)
	}

	item.PrimaryVersion = filename
	if err := m.db.Omit(clause.Associations).Save(item).Error; err != nil {
		return nil, err
	}

	m.rewriteManifest(item)

	m.publish(events.EventPrimaryChanged, item, map[string]interface{}{
		"primary": item.PrimaryVersion,
	})

	// Stale artifacts must not outlive a primary change.
	if err := m.RegenerateArtifacts(item); err != nil {
		return nil, err
	}
	return item, nil
}

// ListVersions returns the item's version records, oldest first, plus
// the primary pointer.
func (m *Manager) ListVersions(itemID string) ([]database.MediaVersion, *string, error) {
	item, err := m.Get(itemID)
	if err != nil {
		return nil, nil, err
	}
	var versions []database.MediaVersion
	err = m.db.Where("media_item_id = ?", item.ID).Order("created_at ASC, id ASC").Find(&versions).Error
	if err != nil {
		return nil, nil, err
	}
	return versions, item.PrimaryVersion, nil
}

func hasVersion(item *database.MediaItem, filename string) bool {
	for _, v := range item.Versions {
		if v.Filename == filename {
			return true
		}
	}
	return false
}

// versionManifest is the sidecar versions.json layout. The database is
// authoritative; the manifest is a mirror for external tooling and is
// re-derived in full on every change.
type versionManifest struct {
	Primary  *string                `json:"primary"`
	Versions []versionManifestEntry `json:"versions"`
}

type versionManifestEntry struct {
	Filename    string    `json:"filename"`
	Description string    `json:"description"`
	Parent      *string   `json:"parent"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// rewriteManifest re-derives versions.json from the database. Failures
// are logged, never fatal: the mirror catches up on the next change.
func (m *Manager) rewriteManifest(item *database.MediaItem) {
	var versions []database.MediaVersion
	err := m.db.Where("media_item_id = ?", item.ID).Order("created_at ASC, id ASC").Find(&versions).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		m.log.Warn("manifest rewrite skipped", "item_id", item.ID, "error", err)
		return
	}

	manifest := versionManifest{
		Primary:  item.PrimaryVersion,
		Versions: make([]versionManifestEntry, 0, len(versions)),
	}
	for _, v := range versions {
		manifest.Versions = append(manifest.Versions, versionManifestEntry{
			Filename:    v.Filename,
			Description: v.Description,
			Parent:      v.Parent,
			CreatedAt:   v.CreatedAt,
			ModifiedAt:  v.ModifiedAt,
		})
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		m.log.Warn("manifest encode failed", "item_id", item.ID, "error", err)
		return
	}
	if err := utils.WriteFileAtomic(organizer.ManifestPath(item.FilePath()), data); err != nil {
		m.log.Warn("manifest write failed", "item_id", item.ID, "error", err)
	}
}
