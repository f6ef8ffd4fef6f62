package organizer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mantonx/shoebox/internal/database"
	"github.com/mantonx/shoebox/internal/events"
	"github.com/mantonx/shoebox/internal/logger"
	"github.com/mantonx/shoebox/internal/utils"
)

// maxConflictAttempts bounds the -(n) suffix search for a unique
// destination filename.
const maxConflictAttempts = 1000

// Engine performs the physical side of every organizational mutation:
// placing imported bytes, relocating files between directories, and
// renaming in place. It always moves the primary file first and only
// mutates the record fields in memory; the caller persists them in the
// same transaction, so a failed move never reaches the store.
type Engine struct {
	roots Roots
	bus   events.EventBus
	log   hclog.Logger
}

// NewEngine creates an organization engine over the library roots.
func NewEngine(roots Roots, bus events.EventBus) *Engine {
	return &Engine{
		roots: roots,
		bus:   bus,
		log:   logger.Named("organizer"),
	}
}

// Roots returns the library roots the engine operates on.
func (e *Engine) Roots() Roots {
	return e.roots
}

// UniqueFilename resolves a filename that is free both on disk in dir
// and in the metadata store (case-insensitive), excluding the item
// itself. Conflicts are resolved by appending -(1), -(2), … before the
// extension.
func (e *Engine) UniqueFilename(tx *gorm.DB, dir, desired, excludeID string) (string, error) {
	base, ext := utils.SplitExt(desired)

	for i := 0; i < maxConflictAttempts; i++ {
		candidate := desired
		if i > 0 {
			candidate = fmt.Sprintf("%s-(%d)%s", base, i, ext)
		}

		if utils.FileExists(filepath.Join(dir, candidate)) {
			continue
		}

		var count int64
		query := tx.Model(&database.MediaItem{}).
			Where("filename_key = ?", database.FilenameKey(candidate))
		if excludeID != "" {
			query = query.Where("id <> ?", excludeID)
		}
		if err := query.Count(&count).Error; err != nil {
			return "", fmt.Errorf("failed to check filename uniqueness: %w", err)
		}
		if count > 0 {
			continue
		}

		if i > 0 {
			e.log.Info("resolved filename conflict", "desired", desired, "assigned", candidate, "dir", dir)
		}
		return candidate, nil
	}

	return "", fmt.Errorf("could not find unique filename for %s in %s after %d attempts", desired, dir, maxConflictAttempts)
}

// PlaceNew writes freshly imported bytes into dir under a
// conflict-free name and returns the name assigned.
func (e *Engine) PlaceNew(tx *gorm.DB, dir, desired string, data []byte) (string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}

	name, err := e.UniqueFilename(tx, dir, desired, "")
	if err != nil {
		return "", err
	}

	if err := utils.WriteFileAtomic(filepath.Join(dir, name), data); err != nil {
		return "", err
	}
	return name, nil
}

// Relocate moves an item's root file and sidecars into destDir,
// resolving filename conflicts, and updates the record's Directory,
// Filename and artifact paths in memory. The primary move happens
// first; when it fails a MoveError is returned and nothing is changed.
func (e *Engine) Relocate(tx *gorm.DB, item *database.MediaItem, destDir string) error {
	return e.move(tx, item, destDir, item.Filename)
}

// Rename gives the item's root file a new canonical name within its
// current directory, cascading to sidecars.
func (e *Engine) Rename(tx *gorm.DB, item *database.MediaItem, desired string) error {
	return e.move(tx, item, item.Directory, desired)
}

func (e *Engine) move(tx *gorm.DB, item *database.MediaItem, destDir, desired string) error {
	if destDir == item.Directory && desired == item.Filename {
		return nil
	}

	if err := utils.EnsureDir(destDir); err != nil {
		return err
	}

	newName, err := e.UniqueFilename(tx, destDir, desired, item.ID)
	if err != nil {
		return err
	}

	oldPath := item.FilePath()
	newPath := filepath.Join(destDir, newName)

	e.publish(events.EventMovePlanned, item, map[string]interface{}{
		"from": oldPath,
		"to":   newPath,
	})

	if err := utils.MoveFile(oldPath, newPath); err != nil {
		e.publish(events.EventMoveFailed, item, map[string]interface{}{
			"from":  oldPath,
			"to":    newPath,
			"error": err.Error(),
		})
		return &MoveError{From: oldPath, To: newPath, Err: err}
	}

	for _, failure := range RelocateSidecars(oldPath, newPath) {
		e.log.Warn("failed to relocate sidecar", "item_id", item.ID, "sidecar", failure.Path, "error", failure.Err)
		e.publish(events.EventSidecarFailed, item, map[string]interface{}{
			"sidecar": failure.Path,
			"error":   failure.Err.Error(),
		})
	}

	item.Directory = destDir
	item.Filename = newName
	e.refreshArtifactPaths(item)

	e.publish(events.EventMoved, item, map[string]interface{}{
		"from": oldPath,
		"to":   newPath,
	})
	return nil
}

// refreshArtifactPaths repoints recorded artifact paths at the new base
// name. A sidecar that failed to relocate gets its reference cleared so
// the store never points at a path that does not exist.
func (e *Engine) refreshArtifactPaths(item *database.MediaItem) {
	filePath := item.FilePath()

	if item.ThumbnailPath != nil {
		if p := ThumbnailPath(filePath); utils.FileExists(p) {
			item.ThumbnailPath = &p
		} else {
			item.ThumbnailPath = nil
		}
	}
	if item.PreviewPath != nil {
		if p := PreviewPath(filePath); utils.FileExists(p) {
			item.PreviewPath = &p
		} else {
			item.PreviewPath = nil
		}
	}
}

// MoveBack is the best-effort compensation used when persistence fails
// after a successful physical move: the file and sidecars are returned
// to their previous location.
func (e *Engine) MoveBack(item *database.MediaItem, oldDir, oldName string) {
	currentPath := item.FilePath()
	oldPath := filepath.Join(oldDir, oldName)

	if err := utils.MoveFile(currentPath, oldPath); err != nil {
		e.log.Error("failed to move file back after aborted persistence", "item_id", item.ID, "from", currentPath, "to", oldPath, "error", err)
		return
	}
	for _, failure := range RelocateSidecars(currentPath, oldPath) {
		e.log.Warn("failed to move sidecar back", "item_id", item.ID, "sidecar", failure.Path, "error", failure.Err)
	}

	item.Directory = oldDir
	item.Filename = oldName
	e.refreshArtifactPaths(item)
}

// DeleteFiles removes an item's root file and every sidecar artifact.
// Missing files are treated as already removed.
func (e *Engine) DeleteFiles(item *database.MediaItem) error {
	filePath := item.FilePath()

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove media file: %w", err)
	}
	for _, sidecar := range []string{ThumbnailPath(filePath), PreviewPath(filePath)} {
		if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
			e.log.Warn("failed to remove sidecar", "item_id", item.ID, "sidecar", sidecar, "error", err)
		}
	}
	if err := os.RemoveAll(AuxDir(filePath)); err != nil {
		e.log.Warn("failed to remove aux directory", "item_id", item.ID, "dir", AuxDir(filePath), "error", err)
	}
	return nil
}

func (e *Engine) publish(eventType events.EventType, item *database.MediaItem, data map[string]interface{}) {
	if e.bus == nil {
		return
	}
	event := events.NewEvent(eventType, "organizer", item.Filename)
	if data == nil {
		data = map[string]interface{}{}
	}
	data["item_id"] = item.ID
	event.Data = data
	e.bus.Publish(event)
}
