package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mantonx/shoebox/internal/config"
	"github.com/mantonx/shoebox/internal/logger"
)

var db *gorm.DB

// Initialize opens the database connection described by the
// configuration and runs schema migrations.
func Initialize(cfg *config.Config) (*gorm.DB, error) {
	var err error

	switch cfg.Database.Type {
	case "postgres":
		db, err = connectPostgres(cfg)
	case "sqlite":
		db, err = connectSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logger.Info("database initialized", "type", cfg.Database.Type)
	return db, nil
}

// Migrate runs schema migrations for all core models.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&MediaItem{},
		&PhotoInfo{},
		&AudioInfo{},
		&VideoInfo{},
		&Event{},
		&Subevent{},
		&MediaVersion{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func gormConfig(cfg *config.Config) *gorm.Config {
	logMode := gormlogger.Silent
	if cfg.Database.LogQueries {
		logMode = gormlogger.Info
	}
	return &gorm.Config{
		Logger:         gormlogger.Default.LogMode(logMode),
		TranslateError: true,
	}
}

func connectPostgres(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Database.Host, cfg.Database.Username, cfg.Database.Password,
		cfg.Database.Database, cfg.Database.Port)
	return gorm.Open(postgres.Open(dsn), gormConfig(cfg))
}

func connectSQLite(cfg *config.Config) (*gorm.DB, error) {
	path := cfg.Database.DatabasePath
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return gorm.Open(sqlite.Open(path), gormConfig(cfg))
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return db
}

// SetDB overrides the global database instance. Tests use this with an
// in-memory sqlite connection.
func SetDB(d *gorm.DB) {
	db = d
}
