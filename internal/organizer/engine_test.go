package organizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mantonx/shoebox/internal/database"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

// setupTestRoots creates library roots under a temp directory
func setupTestRoots(t *testing.T) Roots {
	base := t.TempDir()
	return Roots{
		Unsorted: filepath.Join(base, "unsorted"),
		Daily:    filepath.Join(base, "daily"),
		Events:   filepath.Join(base, "events"),
	}
}

func createTestItem(t *testing.T, db *gorm.DB, dir, filename string, data []byte) *database.MediaItem {
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), data, 0644))

	item := &database.MediaItem{
		Hash:         database.FilenameKey(filename) + "-hash-0000000000000000000000000000",
		Filename:     filename,
		OriginalName: filename,
		Kind:         database.KindPhoto,
		State:        database.StateUnsorted,
		Directory:    dir,
		SizeBytes:    int64(len(data)),
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func TestUniqueFilename_NoConflict(t *testing.T) {
	db := setupTestDB(t)
	roots := setupTestRoots(t)
	engine := NewEngine(roots, nil)

	name, err := engine.UniqueFilename(db, roots.Unsorted, "photo.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", name)
}

func TestUniqueFilename_DiskConflict(t *testing.T) {
	db := setupTestDB(t)
	roots := setupTestRoots(t)
	engine := NewEngine(roots, nil)

	require.NoError(t, os.MkdirAll(roots.Unsorted, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(roots.Unsorted, "photo.jpg"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(roots.Unsorted, "photo-(1).jpg"), []byte("x"), 0644))

	name, err := engine.UniqueFilename(db, roots.Unsorted, "photo.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, "photo-(2).jpg", name)
}

func TestUniqueFilename_RecordConflictIsCaseInsensitive(t *testing.T) {
	db := setupTestDB(t)
	roots := setupTestRoots(t)
	engine := NewEngine(roots, nil)

	createTestItem(t, db, roots.Unsorted, "Photo.JPG", []byte("a"))

	name, err := engine.UniqueFilename(db, filepath.Join(roots.Unsorted, "elsewhere"), "photo.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, "photo-(1).jpg", name)
}

func TestUniqueFilename_ExcludesOwnRecord(t *testing.T) {
	db := setupTestDB(t)
	roots := setupTestRoots(t)
	engine := NewEngine(roots, nil)

	item := createTestItem(t, db, roots.Unsorted, "photo.jpg", []byte("a"))
	require.NoError(t, os.Remove(item.FilePath()))

	name, err := engine.UniqueFilename(db, roots.Unsorted, "photo.jpg", item.ID)
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", name)
}

func TestPlaceNew(t *testing.T) {
	db := setupTestDB(t)
	roots := setupTestRoots(t)
	engine := NewEngine(roots, nil)

	name, err := engine.PlaceNew(db, roots.Unsorted, "photo.jpg", []byte("bytes"))
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", name)

	data, err := os.ReadFile(filepath.Join(roots.Unsorted, "photo.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), data)
}

func TestRelocate_MovesFileAndSidecars(t *testing.T) {
	db := setupTestDB(t)
	roots := setupTestRoots(t)
	engine := NewEngine(roots, nil)

	item := createTestItem(t, db, roots.Unsorted, "photo.jpg", []byte("a"))

	thumb := ThumbnailPath(item.FilePath())
	require.NoError(t, os.WriteFile(thumb, []byte("thumb"), 0644))
	item.ThumbnailPath = &thumb
	require.NoError(t, os.MkdirAll(VersionsDir(item.FilePath()), 0755))

	dest := filepath.Join(roots.Daily, "2024", "01", "01")
	require.NoError(t, engine.Relocate(db, item, dest))

	assert.Equal(t, dest, item.Directory)
	assert.Equal(t, "photo.jpg", item.Filename)
	assert.FileExists(t, filepath.Join(dest, "photo.jpg"))
	assert.NoFileExists(t, filepath.Join(roots.Unsorted, "photo.jpg"))

	require.NotNil(t, item.ThumbnailPath)
	assert.Equal(t, ThumbnailPath(item.FilePath()), *item.ThumbnailPath)
	assert.FileExists(t, *item.ThumbnailPath)
	assert.DirExists(t, VersionsDir(item.FilePath()))
}

func TestRelocate_ConflictGetsSuffix(t *testing.T) {
	db := setupTestDB(t)
	roots := setupTestRoots(t)
	engine := NewEngine(roots, nil)

	dest := filepath.Join(roots.Daily, "2024", "01", "01")
	require.NoError(t, os.MkdirAll(dest, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "photo.jpg"), []byte("other"), 0644))

	item := createTestItem(t, db, roots.Unsorted, "photo.jpg", []byte("a"))
	require.NoError(t, engine.Relocate(db, item, dest))

	assert.Equal(t, "photo-(1).jpg", item.Filename)
	assert.FileExists(t, filepath.Join(dest, "photo-(1).jpg"))
}

func TestRelocate_MissingSourceFails(t *testing.T) {
	db := setupTestDB(t)
	roots := setupTestRoots(t)
	engine := NewEngine(roots, nil)

	item := createTestItem(t, db, roots.Unsorted, "photo.jpg", []byte("a"))
	require.NoError(t, os.Remove(item.FilePath()))

	err := engine.Relocate(db, item, roots.Daily)

	var moveErr *MoveError
	require.ErrorAs(t, err, &moveErr)
	// Nothing was mutated.
	assert.Equal(t, roots.Unsorted, item.Directory)
	assert.Equal(t, "photo.jpg", item.Filename)
}

func TestRename_NoOpForSameName(t *testing.T) {
	db := setupTestDB(t)
	roots := setupTestRoots(t)
	engine := NewEngine(roots, nil)

	item := createTestItem(t, db, roots.Unsorted, "photo.jpg", []byte("a"))
	require.NoError(t, engine.Rename(db, item, "photo.jpg"))
	assert.FileExists(t, item.FilePath())
}

func TestRename_ClearsMissingArtifactReferences(t *testing.T) {
	db := setupTestDB(t)
	roots := setupTestRoots(t)
	engine := NewEngine(roots, nil)

	item := createTestItem(t, db, roots.Unsorted, "photo.jpg", []byte("a"))
	stale := ThumbnailPath(item.FilePath())
	item.ThumbnailPath = &stale // recorded but never written to disk

	require.NoError(t, engine.Rename(db, item, "renamed.jpg"))

	assert.Equal(t, "renamed.jpg", item.Filename)
	assert.Nil(t, item.ThumbnailPath)
}

func TestMoveBack_RestoresFile(t *testing.T) {
	db := setupTestDB(t)
	roots := setupTestRoots(t)
	engine := NewEngine(roots, nil)

	item := createTestItem(t, db, roots.Unsorted, "photo.jpg", []byte("a"))
	oldDir, oldName := item.Directory, item.Filename

	dest := filepath.Join(roots.Daily, "2024", "01", "01")
	require.NoError(t, engine.Relocate(db, item, dest))

	engine.MoveBack(item, oldDir, oldName)

	assert.Equal(t, oldDir, item.Directory)
	assert.Equal(t, oldName, item.Filename)
	assert.FileExists(t, filepath.Join(oldDir, oldName))
	assert.NoFileExists(t, filepath.Join(dest, "photo.jpg"))
}

func TestDeleteFiles_RemovesRootAndSidecars(t *testing.T) {
	db := setupTestDB(t)
	roots := setupTestRoots(t)
	engine := NewEngine(roots, nil)

	item := createTestItem(t, db, roots.Unsorted, "photo.jpg", []byte("a"))
	filePath := item.FilePath()
	require.NoError(t, os.WriteFile(ThumbnailPath(filePath), []byte("t"), 0644))
	require.NoError(t, os.MkdirAll(VersionsDir(filePath), 0755))

	require.NoError(t, engine.DeleteFiles(item))

	assert.NoFileExists(t, filePath)
	assert.NoFileExists(t, ThumbnailPath(filePath))
	assert.NoDirExists(t, AuxDir(filePath))
}

func TestDeleteFiles_MissingFileIsNotAnError(t *testing.T) {
	db := setupTestDB(t)
	roots := setupTestRoots(t)
	engine := NewEngine(roots, nil)

	item := createTestItem(t, db, roots.Unsorted, "photo.jpg", []byte("a"))
	require.NoError(t, os.Remove(item.FilePath()))

	assert.NoError(t, engine.DeleteFiles(item))
}
