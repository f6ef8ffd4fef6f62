package mediamodule

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/mantonx/shoebox/internal/config"
	"github.com/mantonx/shoebox/internal/database"
	"github.com/mantonx/shoebox/internal/events"
	"github.com/mantonx/shoebox/internal/logger"
	"github.com/mantonx/shoebox/internal/modules/assetmodule"
	"github.com/mantonx/shoebox/internal/modules/modulemanager"
	"github.com/mantonx/shoebox/internal/organizer"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	ModuleID   = "system.media"
	ModuleName = "Media Management"
)

// Module owns the media item lifecycle: import, organization, datetime
// resolution, versions, and deletion.
type Module struct {
	id      string
	name    string
	core    bool
	manager *Manager
	watcher *InboxWatcher
}

var globalModule *Module

// Register registers this module with the module system
func Register() {
	globalModule = &Module{
		id:   ModuleID,
		name: ModuleName,
		core: true,
	}
	modulemanager.Register(globalModule)
}

// GetManager returns the media manager for other modules.
func GetManager() *Manager {
	if globalModule == nil {
		return nil
	}
	return globalModule.manager
}

// ID returns the module ID
func (m *Module) ID() string {
	return m.id
}

// Name returns the module name
func (m *Module) Name() string {
	return m.name
}

// Core returns whether this is a core module
func (m *Module) Core() bool {
	return m.core
}

// Migrate handles database schema migrations for media items
func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&database.MediaItem{},
		&database.PhotoInfo{},
		&database.AudioInfo{},
		&database.VideoInfo{},
		&database.MediaVersion{},
	)
}

// Init wires the organizer core together and starts the inbox watcher
// when configured.
func (m *Module) Init() error {
	cfg := config.Get()
	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	bus := events.GetGlobalEventBus()

	roots := organizer.RootsFromConfig(cfg)
	engine := organizer.NewEngine(roots, bus)
	machine := organizer.NewStateMachine(db, engine, bus)

	var artifacts ArtifactGenerator
	if generator := assetmodule.GetGenerator(); generator != nil {
		artifacts = generator
	}

	m.manager = NewManager(db, engine, machine, bus, artifacts, cfg.Library.MaxFileSize)

	if cfg.Library.WatchInbox {
		watcher, err := NewInboxWatcher(m.manager, cfg.Library.InboxDir)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		m.watcher = watcher
	}

	logger.Info("media module initialized", "library_root", cfg.Library.RootDir)
	return nil
}

// Shutdown stops background workers.
func (m *Module) Shutdown() {
	if m.watcher != nil {
		m.watcher.Stop()
	}
}
