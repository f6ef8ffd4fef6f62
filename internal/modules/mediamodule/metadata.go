package mediamodule

import (
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mantonx/shoebox/internal/database"
)

// IntrinsicMetadata is the structured result of type-specific metadata
// extraction. Absent fields stay zero; extraction finding nothing is
// not an error.
type IntrinsicMetadata struct {
	TakenAt     *time.Time
	Width       int
	Height      int
	DurationSec float64
	BitrateKbps int
	Title       string
	Artist      string
	Album       string
	Genre       string
	Year        int
	CameraMake  string
	CameraModel string
}

// MetadataExtractor extracts intrinsic metadata from a stored file.
// Implementations must not fail for "no metadata found"; they return an
// empty result instead. Errors are reserved for unreadable files.
type MetadataExtractor interface {
	Extract(filePath string) (*IntrinsicMetadata, error)
}

// PostProcess runs the deferred half of an import: metadata extraction,
// the inferred-datetime fallback, the significant-change rename
// cascade, and artifact generation. It is idempotent and safe to repeat
// after a partial failure.
func (m *Manager) PostProcess(itemID string) error {
	unlock := m.locker.Lock(itemID)
	defer unlock()

	item, err := m.Get(itemID)
	if err != nil {
		return err
	}

	previous := item.EffectiveTakenAt()
	if previous != nil {
		t := *previous
		previous = &t
	}

	var meta *IntrinsicMetadata
	if extractor := m.extractors[item.Kind]; extractor != nil {
		meta, err = extractor.Extract(item.FilePath())
		if err != nil {
			// Extraction failure downgrades to the inferred
			// fallback; the item must still be sortable.
			m.log.Warn("metadata extraction failed", "item_id", item.ID, "error", err)
			meta = nil
		}
	}

	if meta != nil && meta.TakenAt != nil {
		item.IntrinsicTakenAt = meta.TakenAt
	}
	m.ensureInferred(item)

	err = m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(item).Error; err != nil {
			return err
		}
		if meta != nil {
			return m.applyTypeMetadata(tx, item, meta)
		}
		return nil
	})
	if err != nil {
		return err
	}

	current := item.EffectiveTakenAt()
	if current != nil && SignificantChange(previous, current) {
		if err := m.renameLocked(item, TimestampedName(*current, item.OriginalName)); err != nil {
			return err
		}
	}

	return m.RegenerateArtifacts(item)
}

// ensureInferred guarantees the inferred fallback is set, so every item
// has a non-nil effective datetime after post-processing.
func (m *Manager) ensureInferred(item *database.MediaItem) {
	if item.InferredTakenAt != nil {
		return
	}
	if item.SubmittedModTime != nil {
		item.InferredTakenAt = item.SubmittedModTime
		return
	}
	if info, err := os.Stat(item.FilePath()); err == nil {
		t := info.ModTime()
		item.InferredTakenAt = &t
		return
	}
	now := time.Now()
	item.InferredTakenAt = &now
}

// applyTypeMetadata upserts the kind-specific record from extracted
// fields.
func (m *Manager) applyTypeMetadata(tx *gorm.DB, item *database.MediaItem, meta *IntrinsicMetadata) error {
	switch item.Kind {
	case database.KindPhoto:
		info := database.PhotoInfo{MediaItemID: item.ID}
		tx.Where("media_item_id = ?", item.ID).First(&info)
		info.MediaItemID = item.ID
		if meta.Width > 0 {
			info.Width = meta.Width
		}
		if meta.Height > 0 {
			info.Height = meta.Height
		}
		if meta.CameraMake != "" {
			info.CameraMake = meta.CameraMake
		}
		if meta.CameraModel != "" {
			info.CameraModel = meta.CameraModel
		}
		return tx.Save(&info).Error

	case database.KindAudio:
		info := database.AudioInfo{MediaItemID: item.ID}
		tx.Where("media_item_id = ?", item.ID).First(&info)
		info.MediaItemID = item.ID
		if meta.DurationSec > 0 {
			info.DurationSec = meta.DurationSec
		}
		if meta.BitrateKbps > 0 {
			info.BitrateKbps = meta.BitrateKbps
		}
		if meta.Title != "" {
			info.Title = meta.Title
		}
		if meta.Artist != "" {
			info.Artist = meta.Artist
		}
		if meta.Album != "" {
			info.Album = meta.Album
		}
		if meta.Genre != "" {
			info.Genre = meta.Genre
		}
		if meta.Year > 0 {
			info.Year = meta.Year
		}
		return tx.Save(&info).Error

	case database.KindVideo:
		info := database.VideoInfo{MediaItemID: item.ID}
		tx.Where("media_item_id = ?", item.ID).First(&info)
		info.MediaItemID = item.ID
		if meta.Width > 0 {
			info.Width = meta.Width
		}
		if meta.Height > 0 {
			info.Height = meta.Height
		}
		if meta.DurationSec > 0 {
			info.DurationSec = meta.DurationSec
		}
		return tx.Save(&info).Error
	}
	return nil
}
