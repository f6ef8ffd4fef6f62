package eventmodule

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mantonx/shoebox/internal/database"
	"github.com/mantonx/shoebox/internal/events"
	"github.com/mantonx/shoebox/internal/logger"
	"github.com/mantonx/shoebox/internal/modules/mediamodule"
	"github.com/mantonx/shoebox/internal/organizer"
	"github.com/mantonx/shoebox/internal/utils"
)

// maxSubeventDepth is the deepest nesting the hierarchy allows: a
// sub-event under a sub-event, never further.
const maxSubeventDepth = 2

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrSubeventNotFound = errors.New("subevent not found")
	ErrDuplicateTitle   = errors.New("an event with this title already exists")
	ErrDepthExceeded    = errors.New("subevent nesting depth exceeded")
	ErrHasChildren      = errors.New("subevent still has child subevents")
	ErrEmptyTitle       = errors.New("title must not be empty")
)

// RenameError reports a title change whose physical folder rename
// failed. The cached folder name and the filesystem are left untouched.
type RenameError struct {
	OldFolder string
	NewFolder string
	Err       error
}

func (e *RenameError) Error() string {
	return fmt.Sprintf("failed to rename folder %q to %q: %v", e.OldFolder, e.NewFolder, e.Err)
}

func (e *RenameError) Unwrap() error {
	return e.Err
}

// TeardownFailure records one member that could not be relocated during
// container deletion.
type TeardownFailure struct {
	ItemID string `json:"item_id"`
	Reason string `json:"reason"`
}

// TeardownError reports an incomplete container teardown. The container
// folder and record survive: they may still be the only home of the
// listed items.
type TeardownError struct {
	Failures []TeardownFailure
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown incomplete: %d member(s) could not be relocated", len(e.Failures))
}

// Manager owns the event/sub-event hierarchy lifecycle. Relocations of
// member media go through the media manager so its per-item locking
// applies.
type Manager struct {
	db    *gorm.DB
	media *mediamodule.Manager
	roots organizer.Roots
	bus   events.EventBus
	log   hclog.Logger

	// Hierarchy mutations are rare; one lock serializes them all.
	mu sync.Mutex
}

// NewManager creates a hierarchy manager.
func NewManager(db *gorm.DB, media *mediamodule.Manager, roots organizer.Roots, bus events.EventBus) *Manager {
	return &Manager{
		db:    db,
		media: media,
		roots: roots,
		bus:   bus,
		log:   logger.Named("hierarchy"),
	}
}

// CreateEvent creates an event and its folder on disk.
func (m *Manager) CreateEvent(title string, startDate, endDate time.Time, createdBy string) (*database.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	folder := organizer.FolderNameFromTitle(title)
	if folder == "" {
		return nil, ErrEmptyTitle
	}

	event := &database.Event{
		Title:      title,
		StartDate:  startDate,
		EndDate:    endDate,
		FolderName: folder,
		CreatedBy:  createdBy,
	}

	dir := m.roots.EventDir(event)
	existed := utils.FileExists(dir)
	if err := utils.EnsureDir(dir); err != nil {
		return nil, err
	}

	if err := m.db.Create(event).Error; err != nil {
		if !existed {
			os.Remove(dir)
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTitle, title)
		}
		return nil, err
	}

	m.log.Info("event created", "event_id", event.ID, "title", title, "folder", folder)
	m.publish(events.EventGroupCreated, map[string]interface{}{
		"event_id": event.ID,
		"title":    title,
	})
	return event, nil
}

// GetEvent loads an event with its subevents.
func (m *Manager) GetEvent(eventID string) (*database.Event, error) {
	var event database.Event
	err := m.db.Preload("Subevents").First(&event, "id = ?", eventID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

// ListEvents returns all events, newest first.
func (m *Manager) ListEvents() ([]database.Event, error) {
	var list []database.Event
	err := m.db.Preload("Subevents").Order("start_date DESC").Find(&list).Error
	return list, err
}

// RenameEvent changes an event's title, reconciling the on-disk folder.
// The cached folder name is the authoritative old path; it is only
// updated after the physical rename succeeded. On rename failure
// nothing changes and the discrepancy is reported, never guessed away.
func (m *Manager) RenameEvent(eventID, newTitle string) (*database.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, err := m.GetEvent(eventID)
	if err != nil {
		return nil, err
	}

	newFolder := organizer.FolderNameFromTitle(newTitle)
	if newFolder == "" {
		return nil, ErrEmptyTitle
	}

	oldDir := m.roots.EventDir(event)
	newDir := m.roots.EventDir(&database.Event{FolderName: newFolder})

	if err := m.renameFolder(event.FolderName, newFolder, oldDir, newDir); err != nil {
		m.publish(events.EventGroupRenameFailed, map[string]interface{}{
			"event_id":   event.ID,
			"old_folder": event.FolderName,
			"new_folder": newFolder,
			"error":      err.Error(),
		})
		return nil, err
	}

	err = m.db.Transaction(func(tx *gorm.DB) error {
		event.Title = newTitle
		event.FolderName = newFolder
		if err := tx.Omit(clause.Associations).Save(event).Error; err != nil {
			return err
		}
		return m.rewriteMemberPaths(tx, oldDir, newDir)
	})
	if err != nil {
		// The folder is already renamed; without the record update the
		// cached name is stale. Roll the folder back to match.
		if backErr := os.Rename(newDir, oldDir); backErr != nil {
			m.log.Error("failed to restore folder after record failure",
				"event_id", event.ID, "dir", newDir, "error", backErr)
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTitle, newTitle)
		}
		return nil, err
	}

	m.log.Info("event renamed", "event_id", event.ID, "title", newTitle, "folder", newFolder)
	m.publish(events.EventGroupRenamed, map[string]interface{}{
		"event_id": event.ID,
		"title":    newTitle,
	})
	return event, nil
}

// DeleteEvent tears an event down: every member item is relocated to
// the unsorted pool first, each attempted independently. The folder and
// the records are only removed when every relocation succeeded; a
// container is never deleted while it might still be the only home of a
// file.
func (m *Manager) DeleteEvent(eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, err := m.GetEvent(eventID)
	if err != nil {
		return err
	}

	failures := m.relocateMembers("event_id = ?", eventID, database.StateUnsorted, nil)
	if len(failures) > 0 {
		m.publishTeardownIncomplete(event.ID, failures)
		return &TeardownError{Failures: failures}
	}

	err = m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", event.ID).Delete(&database.Subevent{}).Error; err != nil {
			return err
		}
		return tx.Delete(&database.Event{}, "id = ?", event.ID).Error
	})
	if err != nil {
		return err
	}

	if err := os.RemoveAll(m.roots.EventDir(event)); err != nil {
		m.log.Warn("failed to remove event folder", "event_id", event.ID, "error", err)
	}

	m.log.Info("event deleted", "event_id", event.ID, "title", event.Title)
	m.publish(events.EventGroupDeleted, map[string]interface{}{
		"event_id": event.ID,
		"title":    event.Title,
	})
	return nil
}

// CreateSubevent adds a node to an event's sub-event tree. Depth is
// limited to two levels; a parent must itself be a top-level sub-event
// of the same event.
func (m *Manager) CreateSubevent(eventID string, parentID *string, title string) (*database.Subevent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, err := m.GetEvent(eventID)
	if err != nil {
		return nil, err
	}

	folder := organizer.FolderNameFromTitle(title)
	if folder == "" {
		return nil, ErrEmptyTitle
	}

	var parent *database.Subevent
	if parentID != nil {
		parent, err = m.getSubevent(*parentID)
		if err != nil {
			return nil, err
		}
		if parent.EventID != event.ID {
			return nil, fmt.Errorf("%w: parent belongs to a different event", ErrSubeventNotFound)
		}
		if parent.ParentID != nil {
			return nil, fmt.Errorf("%w: maximum depth is %d", ErrDepthExceeded, maxSubeventDepth)
		}
	}

	// Sibling folder names collide on disk, so they must be unique.
	var siblings int64
	query := m.db.Model(&database.Subevent{}).Where("event_id = ? AND folder_name = ?", event.ID, folder)
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}
	if err := query.Count(&siblings).Error; err != nil {
		return nil, err
	}
	if siblings > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTitle, title)
	}

	sub := &database.Subevent{
		EventID:    event.ID,
		ParentID:   parentID,
		Title:      title,
		FolderName: folder,
	}

	var dir string
	if parent == nil {
		dir = m.roots.SubeventDir(event, sub)
	} else {
		dir = m.roots.NestedSubeventDir(event, parent, sub)
	}
	existed := utils.FileExists(dir)
	if err := utils.EnsureDir(dir); err != nil {
		return nil, err
	}

	if err := m.db.Create(sub).Error; err != nil {
		if !existed {
			os.Remove(dir)
		}
		return nil, err
	}

	m.log.Info("subevent created", "subevent_id", sub.ID, "event_id", event.ID, "title", title)
	m.publish(events.EventGroupCreated, map[string]interface{}{
		"event_id":    event.ID,
		"subevent_id": sub.ID,
		"title":       title,
	})
	return sub, nil
}

// RenameSubevent changes a sub-event's title with the same
// folder-reconcile contract as RenameEvent.
func (m *Manager) RenameSubevent(subeventID, newTitle string) (*database.Subevent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, err := m.getSubevent(subeventID)
	if err != nil {
		return nil, err
	}

	newFolder := organizer.FolderNameFromTitle(newTitle)
	if newFolder == "" {
		return nil, ErrEmptyTitle
	}

	oldDir, err := m.subeventDir(sub)
	if err != nil {
		return nil, err
	}
	renamed := *sub
	renamed.FolderName = newFolder
	newDir, err := m.subeventDir(&renamed)
	if err != nil {
		return nil, err
	}

	if err := m.renameFolder(sub.FolderName, newFolder, oldDir, newDir); err != nil {
		m.publish(events.EventGroupRenameFailed, map[string]interface{}{
			"subevent_id": sub.ID,
			"old_folder":  sub.FolderName,
			"new_folder":  newFolder,
			"error":       err.Error(),
		})
		return nil, err
	}

	err = m.db.Transaction(func(tx *gorm.DB) error {
		sub.Title = newTitle
		sub.FolderName = newFolder
		if err := tx.Save(sub).Error; err != nil {
			return err
		}
		return m.rewriteMemberPaths(tx, oldDir, newDir)
	})
	if err != nil {
		if backErr := os.Rename(newDir, oldDir); backErr != nil {
			m.log.Error("failed to restore folder after record failure",
				"subevent_id", sub.ID, "dir", newDir, "error", backErr)
		}
		return nil, err
	}

	m.log.Info("subevent renamed", "subevent_id", sub.ID, "title", newTitle)
	m.publish(events.EventGroupRenamed, map[string]interface{}{
		"subevent_id": sub.ID,
		"title":       newTitle,
	})
	return sub, nil
}

// DeleteSubevent tears a sub-event down, relocating members to the
// owning event's root. Deletion is refused while child sub-events
// exist; they must be deleted first.
func (m *Manager) DeleteSubevent(subeventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, err := m.getSubevent(subeventID)
	if err != nil {
		return err
	}

	var children int64
	if err := m.db.Model(&database.Subevent{}).Where("parent_id = ?", sub.ID).Count(&children).Error; err != nil {
		return err
	}
	if children > 0 {
		return fmt.Errorf("%w: %d remaining", ErrHasChildren, children)
	}

	eventID := sub.EventID
	failures := m.relocateMembers("subevent_id = ?", sub.ID, database.StateEventRoot, &eventID)
	if len(failures) > 0 {
		m.publishTeardownIncomplete(sub.EventID, failures)
		return &TeardownError{Failures: failures}
	}

	dir, err := m.subeventDir(sub)
	if err != nil {
		return err
	}

	if err := m.db.Delete(&database.Subevent{}, "id = ?", sub.ID).Error; err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		m.log.Warn("failed to remove subevent folder", "subevent_id", sub.ID, "error", err)
	}

	m.log.Info("subevent deleted", "subevent_id", sub.ID, "title", sub.Title)
	m.publish(events.EventGroupDeleted, map[string]interface{}{
		"event_id":    sub.EventID,
		"subevent_id": sub.ID,
		"title":       sub.Title,
	})
	return nil
}

func (m *Manager) getSubevent(id string) (*database.Subevent, error) {
	var sub database.Subevent
	if err := m.db.First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubeventNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// subeventDir resolves a sub-event's directory from the live hierarchy.
func (m *Manager) subeventDir(sub *database.Subevent) (string, error) {
	event, err := m.GetEvent(sub.EventID)
	if err != nil {
		return "", err
	}
	if sub.ParentID == nil {
		return m.roots.SubeventDir(event, sub), nil
	}
	parent, err := m.getSubevent(*sub.ParentID)
	if err != nil {
		return "", err
	}
	return m.roots.NestedSubeventDir(event, parent, sub), nil
}

// renameFolder performs the physical folder rename. A missing source
// folder is a discrepancy that is reported, not repaired.
func (m *Manager) renameFolder(oldFolder, newFolder, oldDir, newDir string) error {
	if oldFolder == newFolder {
		return nil
	}
	if utils.FileExists(newDir) {
		return &RenameError{OldFolder: oldFolder, NewFolder: newFolder,
			Err: fmt.Errorf("destination already exists")}
	}
	if err := os.Rename(oldDir, newDir); err != nil {
		m.log.Error("folder rename failed, leaving cached name untouched",
			"old", oldDir, "new", newDir, "error", err)
		return &RenameError{OldFolder: oldFolder, NewFolder: newFolder, Err: err}
	}
	return nil
}

// escapeLike neutralizes LIKE metacharacters in a literal path. Folder
// names routinely contain underscores, which LIKE treats as a
// single-character wildcard.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// rewritePrefix swaps oldDir for newDir at the front of path, but only
// across a path-separator boundary so sibling directories sharing the
// prefix are never touched.
func rewritePrefix(path, oldDir, newDir string) string {
	if path == oldDir {
		return newDir
	}
	if strings.HasPrefix(path, oldDir+"/") {
		return newDir + path[len(oldDir):]
	}
	return path
}

// rewriteMemberPaths updates the stored location of every media item
// living under a renamed directory, sidecar artifact paths included.
// Matching is anchored to the directory boundary: members of a sibling
// container whose folder name merely shares a prefix must not move.
func (m *Manager) rewriteMemberPaths(tx *gorm.DB, oldDir, newDir string) error {
	var items []database.MediaItem
	err := tx.Where(`directory = ? OR directory LIKE ? ESCAPE '\'`, oldDir, escapeLike(oldDir)+"/%").
		Find(&items).Error
	if err != nil {
		return err
	}

	for i := range items {
		item := &items[i]
		item.Directory = rewritePrefix(item.Directory, oldDir, newDir)
		if item.ThumbnailPath != nil {
			p := rewritePrefix(*item.ThumbnailPath, oldDir, newDir)
			item.ThumbnailPath = &p
		}
		if item.PreviewPath != nil {
			p := rewritePrefix(*item.PreviewPath, oldDir, newDir)
			item.PreviewPath = &p
		}
		if err := tx.Omit(clause.Associations).Save(item).Error; err != nil {
			return err
		}
	}
	return nil
}

// relocateMembers moves every item matching the condition to the target
// state. Each relocation is attempted independently; failures are
// collected, never short-circuited.
func (m *Manager) relocateMembers(condition string, arg interface{}, target database.StorageState, eventID *string) []TeardownFailure {
	var members []database.MediaItem
	if err := m.db.Where(condition, arg).Find(&members).Error; err != nil {
		return []TeardownFailure{{Reason: fmt.Sprintf("failed to list members: %v", err)}}
	}

	var failures []TeardownFailure
	for _, member := range members {
		if _, err := m.media.RequestTransition(member.ID, target, eventID, nil); err != nil {
			m.log.Error("member relocation failed", "item_id", member.ID, "target", target, "error", err)
			failures = append(failures, TeardownFailure{ItemID: member.ID, Reason: err.Error()})
		}
	}
	return failures
}

func (m *Manager) publishTeardownIncomplete(eventID string, failures []TeardownFailure) {
	data := map[string]interface{}{
		"event_id": eventID,
		"failures": failures,
	}
	event := events.NewEvent(events.EventTeardownIncomplete, "hierarchy", "teardown incomplete")
	event.Data = data
	if m.bus != nil {
		m.bus.Publish(event)
	}
}

func (m *Manager) publish(eventType events.EventType, data map[string]interface{}) {
	if m.bus == nil {
		return
	}
	event := events.NewEvent(eventType, "hierarchy", "")
	event.Data = data
	m.bus.Publish(event)
}
