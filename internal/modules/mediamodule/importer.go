package mediamodule

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mantonx/shoebox/internal/database"
	"github.com/mantonx/shoebox/internal/events"
	"github.com/mantonx/shoebox/internal/utils"
)

// Submission is one inbound import request: raw bytes plus the
// client-declared attributes of the file.
type Submission struct {
	Data         []byte
	ContentType  string
	OriginalName string
	LastModified *time.Time
}

// ImportResult reports the outcome of an import. Duplicate submissions
// are not errors: the existing item is referenced and no file is
// written.
type ImportResult struct {
	Item      *database.MediaItem `json:"item"`
	Duplicate bool                `json:"duplicate"`
}

// UnsupportedTypeError reports a declared content type that maps to no
// media kind.
type UnsupportedTypeError struct {
	ContentType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported content type: %s", e.ContentType)
}

// KindForContentType maps a declared content type to a media kind.
func KindForContentType(contentType string) (database.MediaKind, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.HasPrefix(ct, "image/"):
		return database.KindPhoto, true
	case strings.HasPrefix(ct, "audio/"):
		return database.KindAudio, true
	case strings.HasPrefix(ct, "video/"):
		return database.KindVideo, true
	default:
		return "", false
	}
}

// Import ingests a submission: content-identity dedup, physical write
// into the unsorted pool, record creation. The hash uniqueness check is
// backed by the database constraint, so a concurrent duplicate import
// loses the race cleanly and is reported as a duplicate.
func (m *Manager) Import(sub Submission) (*ImportResult, error) {
	kind, ok := KindForContentType(sub.ContentType)
	if !ok {
		return nil, &UnsupportedTypeError{ContentType: sub.ContentType}
	}
	if m.maxFileSize > 0 && int64(len(sub.Data)) > m.maxFileSize {
		return nil, fmt.Errorf("file size %d exceeds maximum of %d bytes", len(sub.Data), m.maxFileSize)
	}

	hash := utils.CalculateDataHash(sub.Data)

	if existing, err := m.findByHash(hash); err != nil {
		return nil, err
	} else if existing != nil {
		m.publishDuplicate(existing, sub.OriginalName)
		return &ImportResult{Item: existing, Duplicate: true}, nil
	}

	originalName := utils.SanitizeFilename(sub.OriginalName)
	inferred := time.Now()
	if sub.LastModified != nil {
		inferred = *sub.LastModified
	}

	item := &database.MediaItem{
		Hash:             hash,
		OriginalName:     originalName,
		ContentType:      sub.ContentType,
		SizeBytes:        int64(len(sub.Data)),
		Kind:             kind,
		State:            database.StateUnsorted,
		Directory:        m.engine.Roots().UnsortedDir(),
		InferredTakenAt:  &inferred,
		SubmittedModTime: sub.LastModified,
	}

	// Two attempts: a lost filename race picks a fresh name once
	// before giving up.
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = m.db.Transaction(func(tx *gorm.DB) error {
			finalName, err := m.engine.PlaceNew(tx, item.Directory, originalName, sub.Data)
			if err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			item.Filename = finalName

			if err := tx.Create(item).Error; err != nil {
				// The record did not go in, so the file must not
				// stay either.
				os.Remove(item.FilePath())
				return err
			}
			return nil
		})
		if err == nil {
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the uniqueness race to a concurrent import of
			// the same bytes.
			if existing, lookupErr := m.findByHash(hash); lookupErr == nil && existing != nil {
				m.publishDuplicate(existing, sub.OriginalName)
				return &ImportResult{Item: existing, Duplicate: true}, nil
			}
			// Different bytes took the chosen filename between the
			// uniqueness check and the insert. Select again.
			continue
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	m.log.Info("media imported", "item_id", item.ID, "filename", item.Filename, "kind", item.Kind, "size", item.SizeBytes)
	m.publish(events.EventMediaImported, item, map[string]interface{}{
		"kind": string(item.Kind),
		"size": item.SizeBytes,
	})

	return &ImportResult{Item: item}, nil
}

func (m *Manager) findByHash(hash string) (*database.MediaItem, error) {
	var item database.MediaItem
	if err := m.db.First(&item, "hash = ?", hash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (m *Manager) publishDuplicate(existing *database.MediaItem, submittedName string) {
	m.log.Info("duplicate import rejected", "item_id", existing.ID, "submitted_name", submittedName)
	m.publish(events.EventMediaDuplicate, existing, map[string]interface{}{
		"submitted_name": submittedName,
	})
}
