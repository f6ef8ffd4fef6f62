package eventmodule

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/mantonx/shoebox/internal/config"
	"github.com/mantonx/shoebox/internal/database"
	"github.com/mantonx/shoebox/internal/events"
	"github.com/mantonx/shoebox/internal/logger"
	"github.com/mantonx/shoebox/internal/modules/mediamodule"
	"github.com/mantonx/shoebox/internal/modules/modulemanager"
	"github.com/mantonx/shoebox/internal/organizer"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	ModuleID   = "system.hierarchy"
	ModuleName = "Event Hierarchy"
)

// Module owns the event/sub-event grouping hierarchy.
type Module struct {
	id      string
	name    string
	core    bool
	manager *Manager
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

// GetManager returns the hierarchy manager.
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

// Migrate handles database schema migrations for the hierarchy
func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&database.Event{},
		&database.Subevent{},
	)
}

// Init wires the manager against the media module, which must be loaded
// first: member relocations go through its per-item locking.
func (m *Module) Init() error {
	cfg := config.Get()
	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	media := mediamodule.GetManager()
	if media == nil {
		return fmt.Errorf("media module not initialized")
	}

	m.manager = NewManager(db, media, organizer.RootsFromConfig(cfg), events.GetGlobalEventBus())
	logger.Info("hierarchy module initialized")
	return nil
}
