package assetmodule

import (
	"gorm.io/gorm"

	"github.com/mantonx/shoebox/internal/config"
	"github.com/mantonx/shoebox/internal/logger"
	"github.com/mantonx/shoebox/internal/modules/modulemanager"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	ModuleID   = "system.assets"
	ModuleName = "Asset Generation"
)

// Module provides thumbnail/preview generation and serves the resulting
// artifact files.
type Module struct {
	id        string
	name      string
	core      bool
	generator *Generator
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

// GetGenerator returns the configured generator, or nil when artifact
// generation is disabled or the module is not initialized yet.
func GetGenerator() *Generator {
	if globalModule == nil {
		return nil
	}
	return globalModule.generator
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

// Migrate is a no-op: artifact paths live on the media item record.
func (m *Module) Migrate(db *gorm.DB) error {
	return nil
}

// Init builds the generator from configuration.
func (m *Module) Init() error {
	cfg := config.Get()
	if !cfg.Assets.Enabled {
		logger.Info("artifact generation disabled")
		return nil
	}
	m.generator = NewGenerator(cfg.Assets)
	logger.Info("asset generator ready",
		"thumbnail_size", cfg.Assets.ThumbnailSize,
		"preview_size", cfg.Assets.PreviewSize)
	return nil
}
