package mediamodule

import (
	"database/sql"
	"errors"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mantonx/shoebox/internal/database"
	"github.com/mantonx/shoebox/internal/events"
	"github.com/mantonx/shoebox/internal/logger"
	"github.com/mantonx/shoebox/internal/organizer"
)

// ArtifactGenerator produces the derived thumbnail and preview files
// for a media source. Implementations must write to the destination
// paths they are given and return an error when generation is not
// possible; the caller clears any previously recorded artifact paths in
// that case.
type ArtifactGenerator interface {
	Generate(sourcePath, contentType, thumbDest, previewDest string) error
}

// ErrItemNotFound reports a media item ID with no record.
var ErrItemNotFound = errors.New("media item not found")

// Manager is the service behind all media item mutations. Every
// mutating operation takes the item's lock first: the engine and state
// machine assume a single in-flight mutation per item.
type Manager struct {
	db          *gorm.DB
	engine      *organizer.Engine
	machine     *organizer.StateMachine
	locker      *organizer.ItemLocker
	bus         events.EventBus
	extractors  map[database.MediaKind]MetadataExtractor
	artifacts   ArtifactGenerator
	maxFileSize int64
	log         hclog.Logger
}

// NewManager creates a media manager.
func NewManager(db *gorm.DB, engine *organizer.Engine, machine *organizer.StateMachine, bus events.EventBus, artifacts ArtifactGenerator, maxFileSize int64) *Manager {
	return &Manager{
		db:          db,
		engine:      engine,
		machine:     machine,
		locker:      organizer.NewItemLocker(),
		bus:         bus,
		extractors:  DefaultExtractors(),
		artifacts:   artifacts,
		maxFileSize: maxFileSize,
		log:         logger.Named("media"),
	}
}

// SetExtractor overrides the metadata extractor for a kind.
func (m *Manager) SetExtractor(kind database.MediaKind, extractor MetadataExtractor) {
	m.extractors[kind] = extractor
}

// Get loads a media item with its type record and versions.
func (m *Manager) Get(itemID string) (*database.MediaItem, error) {
	var item database.MediaItem
	err := m.db.
		Preload("Photo").Preload("Audio").Preload("Video").Preload("Versions").
		First(&item, "id = ?", itemID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// List returns media items, newest first.
func (m *Manager) List(limit, offset int) ([]database.MediaItem, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var items []database.MediaItem
	err := m.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&items).Error
	return items, err
}

// AvailableTransitions reports every transition's guard outcome for an
// item without side effects.
func (m *Manager) AvailableTransitions(itemID string) ([]organizer.TransitionOption, error) {
	item, err := m.Get(itemID)
	if err != nil {
		return nil, err
	}
	return m.machine.AvailableTransitions(item)
}

// ComputeDirectory resolves the canonical directory for the item's
// current state.
func (m *Manager) ComputeDirectory(itemID string) (string, error) {
	item, err := m.Get(itemID)
	if err != nil {
		return "", err
	}
	return m.machine.ComputeDirectory(item)
}

// RequestTransition assigns the target identities, then runs the state
// machine. Assignments happen before invocation so the machine's
// prerequisite validation sees them.
func (m *Manager) RequestTransition(itemID string, target database.StorageState, eventID, subeventID *string) (*database.MediaItem, error) {
	unlock := m.locker.Lock(itemID)
	defer unlock()

	item, err := m.Get(itemID)
	if err != nil {
		return nil, err
	}

	if eventID != nil {
		item.EventID = eventID
	}
	if subeventID != nil {
		item.SubeventID = subeventID
	}

	if err := m.machine.Transition(item, target); err != nil {
		return nil, err
	}
	return item, nil
}

// Rename gives the item a new canonical filename, cascading to
// sidecars.
func (m *Manager) Rename(itemID, desired string) (*database.MediaItem, error) {
	unlock := m.locker.Lock(itemID)
	defer unlock()

	item, err := m.Get(itemID)
	if err != nil {
		return nil, err
	}
	if err := m.renameLocked(item, desired); err != nil {
		return nil, err
	}
	return item, nil
}

// renameLocked performs a canonical rename with the same
// move-then-persist atomicity as a state transition. Caller holds the
// item lock.
func (m *Manager) renameLocked(item *database.MediaItem, desired string) error {
	oldDir, oldName := item.Directory, item.Filename
	oldThumb, oldPreview := item.ThumbnailPath, item.PreviewPath

	err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := m.engine.Rename(tx, item, desired); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Save(item).Error
	})
	if err != nil {
		if item.Directory != oldDir || item.Filename != oldName {
			m.engine.MoveBack(item, oldDir, oldName)
		}
		item.Directory = oldDir
		item.Filename = oldName
		item.ThumbnailPath = oldThumb
		item.PreviewPath = oldPreview
		return err
	}

	m.publish(events.EventMediaRenamed, item, map[string]interface{}{
		"old_name": oldName,
		"new_name": item.Filename,
	})
	return nil
}

// SetUserTakenAt sets or clears the user datetime override, running the
// rename cascade when the effective datetime changed significantly.
func (m *Manager) SetUserTakenAt(itemID string, takenAt *time.Time) (*database.MediaItem, error) {
	unlock := m.locker.Lock(itemID)
	defer unlock()

	item, err := m.Get(itemID)
	if err != nil {
		return nil, err
	}

	previous := item.EffectiveTakenAt()
	item.UserTakenAt = takenAt
	current := item.EffectiveTakenAt()

	if current != nil && SignificantChange(previous, current) {
		if err := m.renameLocked(item, TimestampedName(*current, item.OriginalName)); err != nil {
			// Rename failed, so the override must not be
			// persisted either.
			return nil, err
		}
	}

	if err := m.db.Omit(clause.Associations).Save(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// Delete destroys a media item: version records, the item record, the
// root file, and sidecar artifacts. Records go first: if they cannot
// be removed, the files stay where the surviving record points. An
// orphaned file after a failed cleanup is recoverable; a record
// pointing at removed files is not.
func (m *Manager) Delete(itemID string) error {
	unlock := m.locker.Lock(itemID)
	defer unlock()

	item, err := m.Get(itemID)
	if err != nil {
		return err
	}

	err = m.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{
			&database.MediaVersion{}, &database.PhotoInfo{}, &database.AudioInfo{}, &database.VideoInfo{},
		} {
			if err := tx.Where("media_item_id = ?", item.ID).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&database.MediaItem{}, "id = ?", item.ID).Error
	})
	if err != nil {
		return err
	}

	if err := m.engine.DeleteFiles(item); err != nil {
		m.log.Warn("record removed but file cleanup failed", "item_id", item.ID, "path", item.FilePath(), "error", err)
	}

	m.publish(events.EventMediaDeleted, item, nil)
	return nil
}

// RegenerateArtifacts rebuilds the thumbnail and preview from the
// item's current primary source and persists the resulting paths. A
// generation failure clears previously recorded paths instead of
// leaving stale references.
func (m *Manager) RegenerateArtifacts(item *database.MediaItem) error {
	if m.artifacts == nil {
		return nil
	}

	source := item.FilePath()
	if item.PrimaryVersion != nil {
		source = filepath.Join(organizer.VersionsDir(item.FilePath()), *item.PrimaryVersion)
	}

	thumbDest := organizer.ThumbnailPath(item.FilePath())
	previewDest := organizer.PreviewPath(item.FilePath())

	if err := m.artifacts.Generate(source, item.ContentType, thumbDest, previewDest); err != nil {
		m.log.Warn("artifact generation failed", "item_id", item.ID, "source", source, "error", err)
		item.ThumbnailPath = nil
		item.PreviewPath = nil
		m.publish(events.EventArtifactsCleared, item, map[string]interface{}{"error": err.Error()})
	} else {
		item.ThumbnailPath = &thumbDest
		item.PreviewPath = &previewDest
		m.publish(events.EventArtifactsGenerated, item, nil)
	}

	return m.db.Omit(clause.Associations).Save(item).Error
}

func (m *Manager) publish(eventType events.EventType, item *database.MediaItem, data map[string]interface{}) {
	if m.bus == nil {
		return
	}
	event := events.NewEvent(eventType, "media", item.Filename)
	if data == nil {
		data = map[string]interface{}{}
	}
	data["item_id"] = item.ID
	event.Data = data
	m.bus.Publish(event)
}

// StorageSummary reports aggregate library numbers for the status
// endpoint.
type StorageSummary struct {
	TotalItems int64            `json:"total_items"`
	TotalBytes int64            `json:"total_bytes"`
	ByState    map[string]int64 `json:"by_state"`
	ByKind     map[string]int64 `json:"by_kind"`
}

// Summary aggregates item counts and sizes.
func (m *Manager) Summary() (*StorageSummary, error) {
	summary := &StorageSummary{
		ByState: make(map[string]int64),
		ByKind:  make(map[string]int64),
	}

	if err := m.db.Model(&database.MediaItem{}).Count(&summary.TotalItems).Error; err != nil {
		return nil, err
	}

	var totalBytes sql.NullInt64
	if err := m.db.Model(&database.MediaItem{}).Select("SUM(size_bytes)").Scan(&totalBytes).Error; err != nil {
		return nil, err
	}
	if totalBytes.Valid {
		summary.TotalBytes = totalBytes.Int64
	}

	type bucket struct {
		Key   string
		Count int64
	}
	var byState []bucket
	if err := m.db.Model(&database.MediaItem{}).Select("state AS key, COUNT(*) AS count").Group("state").Scan(&byState).Error; err != nil {
		return nil, err
	}
	for _, b := range byState {
		summary.ByState[b.Key] = b.Count
	}
	var byKind []bucket
	if err := m.db.Model(&database.MediaItem{}).Select("kind AS key, COUNT(*) AS count").Group("kind").Scan(&byKind).Error; err != nil {
		return nil, err
	}
	for _, b := range byKind {
		summary.ByKind[b.Key] = b.Count
	}

	return summary, nil
}
