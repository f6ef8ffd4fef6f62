package mediamodule

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mantonx/shoebox/internal/database"
	"github.com/mantonx/shoebox/internal/organizer"
)

// setupTestManager builds a media manager over an in-memory database
// and temp-directory library roots.
func setupTestManager(t *testing.T) (*Manager, *gorm.DB, organizer.Roots) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	base := t.TempDir()
	roots := organizer.Roots{
		Unsorted: filepath.Join(base, "unsorted"),
		Daily:    filepath.Join(base, "daily"),
		Events:   filepath.Join(base, "events"),
	}

	engine := organizer.NewEngine(roots, nil)
	machine := organizer.NewStateMachine(db, engine, nil)
	manager := NewManager(db, engine, machine, nil, nil, 10*1024*1024)
	return manager, db, roots
}

func submitPhoto(name string, data []byte) Submission {
	return Submission{
		Data:         data,
		ContentType:  "image/jpeg",
		OriginalName: name,
	}
}

func TestKindForContentType(t *testing.T) {
	tests := []struct {
		contentType string
		kind        database.MediaKind
		ok          bool
	}{
		{"image/jpeg", database.KindPhoto, true},
		{"IMAGE/PNG", database.KindPhoto, true},
		{"audio/mpeg", database.KindAudio, true},
		{"video/mp4; codecs=avc1", database.KindVideo, true},
		{"application/pdf", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		kind, ok := KindForContentType(tt.contentType)
		assert.Equal(t, tt.ok, ok, tt.contentType)
		assert.Equal(t, tt.kind, kind, tt.contentType)
	}
}

func TestImport_Success(t *testing.T) {
	manager, db, roots := setupTestManager(t)

	result, err := manager.Import(submitPhoto("holiday.jpg", []byte("jpeg bytes")))
	require.NoError(t, err)
	require.False(t, result.Duplicate)

	item := result.Item
	assert.Equal(t, database.StateUnsorted, item.State)
	assert.Equal(t, database.KindPhoto, item.Kind)
	assert.Equal(t, roots.Unsorted, item.Directory)
	assert.Equal(t, "holiday.jpg", item.Filename)
	assert.NotEmpty(t, item.Hash)
	assert.NotNil(t, item.InferredTakenAt)
	assert.FileExists(t, item.FilePath())

	var count int64
	require.NoError(t, db.Model(&database.MediaItem{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestImport_DuplicateContent(t *testing.T) {
	manager, db, _ := setupTestManager(t)

	first, err := manager.Import(submitPhoto("one.jpg", []byte("same bytes")))
	require.NoError(t, err)

	// Same bytes under a different name is still a duplicate.
	second, err := manager.Import(submitPhoto("two.jpg", []byte("same bytes")))
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Item.ID, second.Item.ID)

	var count int64
	require.NoError(t, db.Model(&database.MediaItem{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestImport_UnsupportedType(t *testing.T) {
	manager, _, _ := setupTestManager(t)

	_, err := manager.Import(Submission{
		Data:         []byte("text"),
		ContentType:  "text/plain",
		OriginalName: "notes.txt",
	})

	var unsupported *UnsupportedTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "text/plain", unsupported.ContentType)
}

func TestImport_SizeLimit(t *testing.T) {
	manager, _, _ := setupTestManager(t)
	manager.maxFileSize = 4

	_, err := manager.Import(submitPhoto("big.jpg", []byte("too large")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestImport_FilenameConflictGetsSuffix(t *testing.T) {
	manager, _, _ := setupTestManager(t)

	first, err := manager.Import(submitPhoto("pic.jpg", []byte("bytes one")))
	require.NoError(t, err)
	assert.Equal(t, "pic.jpg", first.Item.Filename)

	second, err := manager.Import(submitPhoto("pic.jpg", []byte("bytes two")))
	require.NoError(t, err)
	require.False(t, second.Duplicate)
	assert.Equal(t, "pic-(1).jpg", second.Item.Filename)
	assert.FileExists(t, second.Item.FilePath())
}

func TestImport_CaseInsensitiveFilenameConflict(t *testing.T) {
	manager, _, _ := setupTestManager(t)

	_, err := manager.Import(submitPhoto("PIC.JPG", []byte("bytes one")))
	require.NoError(t, err)

	second, err := manager.Import(submitPhoto("pic.jpg", []byte("bytes two")))
	require.NoError(t, err)
	assert.Equal(t, "pic-(1).jpg", second.Item.Filename)
}

func TestImport_SubmittedModTimeBecomesInferred(t *testing.T) {
	manager, _, _ := setupTestManager(t)

	modTime := time.Date(2022, time.May, 4, 12, 0, 0, 0, time.UTC)
	sub := submitPhoto("pic.jpg", []byte("bytes"))
	sub.LastModified = &modTime

	result, err := manager.Import(sub)
	require.NoError(t, err)

	require.NotNil(t, result.Item.InferredTakenAt)
	assert.True(t, result.Item.InferredTakenAt.Equal(modTime))

	taken, source := result.Item.EffectiveTakenAtSource()
	assert.Equal(t, database.TakenAtSourceInferred, source)
	assert.True(t, taken.Equal(modTime))
}

func TestImport_FilenameRaceRetriesWithFreshName(t *testing.T) {
	manager, db, _ := setupTestManager(t)

	// Simulate a concurrent import of different bytes grabbing the
	// chosen filename between the uniqueness check and the insert: a
	// rival record goes in just before the first create attempt.
	var raced bool
	err := db.Callback().Create().Before("gorm:create").Register("filename_race", func(d *gorm.DB) {
		if raced || d.Statement.Table != "media_items" {
			return
		}
		item, ok := d.Statement.Dest.(*database.MediaItem)
		if !ok {
			return
		}
		raced = true
		rival := &database.MediaItem{
			Hash:         "rival-hash",
			Filename:     item.Filename,
			OriginalName: item.Filename,
			Kind:         database.KindPhoto,
			State:        database.StateUnsorted,
			Directory:    item.Directory,
		}
		require.NoError(t, d.Session(&gorm.Session{NewDB: true}).Create(rival).Error)
	})
	require.NoError(t, err)

	result, err := manager.Import(submitPhoto("pic.jpg", []byte("bytes")))
	require.NoError(t, err)
	require.True(t, raced)

	assert.False(t, result.Duplicate)
	assert.FileExists(t, result.Item.FilePath())

	var count int64
	require.NoError(t, db.Model(&database.MediaItem{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
