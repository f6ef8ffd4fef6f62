package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Library layout configuration
	Library LibraryConfig `yaml:"library" json:"library"`

	// Derived artifact configuration
	Assets AssetConfig `yaml:"assets" json:"assets"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" env:"SHOEBOX_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" json:"port" env:"SHOEBOX_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"SHOEBOX_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"SHOEBOX_WRITE_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type         string `yaml:"type" json:"type" env:"DATABASE_TYPE" default:"sqlite"`
	DatabasePath string `yaml:"database_path" json:"database_path" env:"SHOEBOX_DATABASE_PATH"`
	Host         string `yaml:"host" json:"host" env:"POSTGRES_HOST" default:"localhost"`
	Port         int    `yaml:"port" json:"port" env:"POSTGRES_PORT" default:"5432"`
	Username     string `yaml:"username" json:"username" env:"POSTGRES_USER" default:"shoebox"`
	Password     string `yaml:"password" json:"-" env:"POSTGRES_PASSWORD"`
	Database     string `yaml:"database" json:"database" env:"POSTGRES_DB" default:"shoebox"`
	LogQueries   bool   `yaml:"log_queries" json:"log_queries" env:"DB_LOG_QUERIES" default:"false"`
}

// LibraryConfig holds the on-disk layout of the media library.
// The unsorted pool, the daily archive, the events hierarchy, and the
// import inbox all live under RootDir unless overridden explicitly.
type LibraryConfig struct {
	RootDir     string `yaml:"root_dir" json:"root_dir" env:"SHOEBOX_LIBRARY_DIR" default:"/var/lib/shoebox/library"`
	UnsortedDir string `yaml:"unsorted_dir" json:"unsorted_dir" env:"SHOEBOX_UNSORTED_DIR"`
	DailyDir    string `yaml:"daily_dir" json:"daily_dir" env:"SHOEBOX_DAILY_DIR"`
	EventsDir   string `yaml:"events_dir" json:"events_dir" env:"SHOEBOX_EVENTS_DIR"`
	InboxDir    string `yaml:"inbox_dir" json:"inbox_dir" env:"SHOEBOX_INBOX_DIR"`
	WatchInbox  bool   `yaml:"watch_inbox" json:"watch_inbox" env:"SHOEBOX_WATCH_INBOX" default:"false"`
	MaxFileSize int64  `yaml:"max_file_size" json:"max_file_size" env:"SHOEBOX_MAX_FILE_SIZE" default:"2147483648"`
}

// AssetConfig holds thumbnail/preview generation configuration
type AssetConfig struct {
	ThumbnailSize int  `yaml:"thumbnail_size" json:"thumbnail_size" env:"SHOEBOX_THUMBNAIL_SIZE" default:"300"`
	PreviewSize   int  `yaml:"preview_size" json:"preview_size" env:"SHOEBOX_PREVIEW_SIZE" default:"1280"`
	Quality       int  `yaml:"quality" json:"quality" env:"SHOEBOX_ASSET_QUALITY" default:"90"`
	Enabled       bool `yaml:"enabled" json:"enabled" env:"SHOEBOX_ASSETS_ENABLED" default:"true"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" env:"SHOEBOX_LOG_LEVEL" default:"info"`
}

var (
	mu     sync.RWMutex
	global *Config
)

// DefaultConfig returns the default application configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), false); err != nil {
		// Defaults are compile-time constants; a failure here is a
		// programming error.
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	cfg.applyDerived()
	return cfg
}

// Load loads configuration from an optional YAML file and the
// environment. Environment variables win over file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}
	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), false); err != nil {
		return nil, err
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment overrides file values
	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), true); err != nil {
		return nil, err
	}

	cfg.applyDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	global = cfg
	mu.Unlock()
	return cfg, nil
}

// Get returns the last loaded configuration, or defaults if Load was
// never called.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return DefaultConfig()
	}
	return global
}

// Validate performs basic sanity checks
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Type != "sqlite" && c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Library.RootDir == "" {
		return fmt.Errorf("library root directory is required")
	}
	if c.Assets.Quality < 1 || c.Assets.Quality > 100 {
		return fmt.Errorf("invalid asset quality: %d", c.Assets.Quality)
	}
	return nil
}

// applyDerived fills in values computed from other settings
func (c *Config) applyDerived() {
	if c.Library.UnsortedDir == "" {
		c.Library.UnsortedDir = filepath.Join(c.Library.RootDir, "unsorted")
	}
	if c.Library.DailyDir == "" {
		c.Library.DailyDir = filepath.Join(c.Library.RootDir, "daily")
	}
	if c.Library.EventsDir == "" {
		c.Library.EventsDir = filepath.Join(c.Library.RootDir, "events")
	}
	if c.Library.InboxDir == "" {
		c.Library.InboxDir = filepath.Join(c.Library.RootDir, "inbox")
	}
	if c.Database.DatabasePath == "" && c.Database.Type == "sqlite" {
		c.Database.DatabasePath = filepath.Join(c.Library.RootDir, "shoebox.db")
	}
}

// loadStructFromEnv walks a struct and applies env/default tags. When
// envOnly is true only values actually present in the environment are
// applied, so defaults do not clobber file-provided values.
func loadStructFromEnv(v reflect.Value, envOnly bool) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := loadStructFromEnv(field, envOnly); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		value := os.Getenv(envTag)
		if value == "" {
			if envOnly {
				continue
			}
			value = fieldType.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("failed to set field %s: %w", fieldType.Name, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intVal)
		}
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			values := strings.Split(value, ",")
			for i, v := range values {
				values[i] = strings.TrimSpace(v)
			}
			field.Set(reflect.ValueOf(values))
		}
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}
	return nil
}
