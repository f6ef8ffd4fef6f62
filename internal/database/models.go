package database

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MediaKind tags the payload type of a media item
type MediaKind string

const (
	KindPhoto MediaKind = "photo"
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// StorageState is the organizational position a media item occupies on
// disk. The state machine in the organizer package is the only writer.
type StorageState string

const (
	StateUnsorted   StorageState = "unsorted"
	StateDaily      StorageState = "daily"
	StateEventRoot  StorageState = "event_root"
	StateSubeventL1 StorageState = "subevent_level1"
	StateSubeventL2 StorageState = "subevent_level2"
)

// AllStates lists every storage state in presentation order.
var AllStates = []StorageState{
	StateUnsorted,
	StateDaily,
	StateEventRoot,
	StateSubeventL1,
	StateSubeventL2,
}

// MediaItem is the authoritative record for one physical media file.
// Directory and Filename must always agree with the file's actual
// location; every mutation that moves the file updates them in the same
// transaction.
type MediaItem struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Hash         string    `gorm:"uniqueIndex;size:64;not null" json:"hash"`
	Filename     string    `gorm:"not null" json:"filename"`
	FilenameKey  string    `gorm:"uniqueIndex;not null" json:"-"`
	OriginalName string    `gorm:"not null" json:"original_name"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	Kind         MediaKind `gorm:"size:16;not null" json:"kind"`

	State      StorageState `gorm:"size:32;not null;default:unsorted" json:"state"`
	EventID    *string      `gorm:"index" json:"event_id,omitempty"`
	SubeventID *string      `gorm:"index" json:"subevent_id,omitempty"`
	Directory  string       `gorm:"not null" json:"directory"`

	// Datetime candidates, resolved by fixed priority into the
	// effective datetime (user > intrinsic > inferred).
	UserTakenAt      *time.Time `json:"user_taken_at,omitempty"`
	IntrinsicTakenAt *time.Time `json:"intrinsic_taken_at,omitempty"`
	InferredTakenAt  *time.Time `json:"inferred_taken_at,omitempty"`
	SubmittedModTime *time.Time `json:"submitted_mod_time,omitempty"`

	ThumbnailPath  *string `json:"thumbnail_path,omitempty"`
	PreviewPath    *string `json:"preview_path,omitempty"`
	PrimaryVersion *string `json:"primary_version,omitempty"`

	Photo    *PhotoInfo     `gorm:"constraint:OnDelete:CASCADE" json:"photo,omitempty"`
	Audio    *AudioInfo     `gorm:"constraint:OnDelete:CASCADE" json:"audio,omitempty"`
	Video    *VideoInfo     `gorm:"constraint:OnDelete:CASCADE" json:"video,omitempty"`
	Versions []MediaVersion `gorm:"constraint:OnDelete:CASCADE" json:"versions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeSave keeps the case-insensitive uniqueness key in sync with the
// canonical filename.
func (m *MediaItem) BeforeSave(tx *gorm.DB) error {
	m.FilenameKey = FilenameKey(m.Filename)
	return nil
}

// BeforeCreate assigns a UUID when none was provided.
func (m *MediaItem) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return m.BeforeSave(tx)
}

// FilePath returns the absolute path of the item's root file.
func (m *MediaItem) FilePath() string {
	return filepath.Join(m.Directory, m.Filename)
}

// Datetime source tags reported alongside the effective datetime.
const (
	TakenAtSourceUser      = "user"
	TakenAtSourceIntrinsic = "intrinsic"
	TakenAtSourceInferred  = "inferred"
	TakenAtSourceNone      = "none"
)

// EffectiveTakenAt resolves the single datetime used for sorting and
// filing: user override, else intrinsic metadata, else inferred
// fallback. Nil only when no candidate is present at all.
func (m *MediaItem) EffectiveTakenAt() *time.Time {
	t, _ := m.EffectiveTakenAtSource()
	return t
}

// EffectiveTakenAtSource resolves the effective datetime together with
// its source tag.
func (m *MediaItem) EffectiveTakenAtSource() (*time.Time, string) {
	switch {
	case m.UserTakenAt != nil:
		return m.UserTakenAt, TakenAtSourceUser
	case m.IntrinsicTakenAt != nil:
		return m.IntrinsicTakenAt, TakenAtSourceIntrinsic
	case m.InferredTakenAt != nil:
		return m.InferredTakenAt, TakenAtSourceInferred
	default:
		return nil, TakenAtSourceNone
	}
}

// FilenameKey lowercases a filename for case-insensitive uniqueness.
func FilenameKey(name string) string {
	return strings.ToLower(name)
}

// PhotoInfo holds photo-specific intrinsic metadata
type PhotoInfo struct {
	ID          uint   `gorm:"primaryKey" json:"-"`
	MediaItemID string `gorm:"uniqueIndex;not null" json:"-"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	CameraMake  string `json:"camera_make,omitempty"`
	CameraModel string `json:"camera_model,omitempty"`
}

// AudioInfo holds audio-specific intrinsic metadata
type AudioInfo struct {
	ID          uint    `gorm:"primaryKey" json:"-"`
	MediaItemID string  `gorm:"uniqueIndex;not null" json:"-"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	BitrateKbps int     `json:"bitrate_kbps,omitempty"`
	Title       string  `json:"title,omitempty"`
	Artist      string  `json:"artist,omitempty"`
	Album       string  `json:"album,omitempty"`
	Genre       string  `json:"genre,omitempty"`
	Year        int     `json:"year,omitempty"`
}

// VideoInfo holds video-specific intrinsic metadata
type VideoInfo struct {
	ID          uint    `gorm:"primaryKey" json:"-"`
	MediaItemID string  `gorm:"uniqueIndex;not null" json:"-"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	DurationSec float64 `json:"duration_sec,omitempty"`
}

// Event is a named, date-ranged grouping of media. FolderName caches
// the on-disk folder derived from the title at the last successful
// physical rename; it is the authoritative old path for future renames.
type Event struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Title      string    `gorm:"not null" json:"title"`
	TitleKey   string    `gorm:"uniqueIndex;not null" json:"-"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	FolderName string    `gorm:"not null" json:"folder_name"`
	CreatedBy  string    `json:"created_by,omitempty"`

	Subevents []Subevent `gorm:"constraint:OnDelete:CASCADE" json:"subevents,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeSave keeps the case-insensitive title key in sync.
func (e *Event) BeforeSave(tx *gorm.DB) error {
	e.TitleKey = strings.ToLower(e.Title)
	return nil
}

// BeforeCreate assigns a UUID when none was provided.
func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return e.BeforeSave(tx)
}

// Subevent is a node in the depth-limited tree under one Event. A nil
// ParentID means depth 1; a node whose parent is depth 1 is depth 2.
type Subevent struct {
	ID         string  `gorm:"primaryKey" json:"id"`
	EventID    string  `gorm:"index;not null" json:"event_id"`
	ParentID   *string `gorm:"index" json:"parent_id,omitempty"`
	Title      string  `gorm:"not null" json:"title"`
	FolderName string  `gorm:"not null" json:"folder_name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID when none was provided.
func (s *Subevent) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// MediaVersion is one entry in an item's branching edit history. Parent
// references another version's filename within the same item, or is nil
// for a root branch off the original file.
type MediaVersion struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	MediaItemID string    `gorm:"uniqueIndex:idx_item_version;not null" json:"-"`
	Filename    string    `gorm:"uniqueIndex:idx_item_version;not null" json:"filename"`
	Description string    `json:"description"`
	Parent      *string   `json:"parent,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`
}
