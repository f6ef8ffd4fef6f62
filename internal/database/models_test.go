package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func newItem(hash, filename string) *MediaItem {
	return &MediaItem{
		Hash:         hash,
		Filename:     filename,
		OriginalName: filename,
		Kind:         KindPhoto,
		State:        StateUnsorted,
		Directory:    "/lib/unsorted",
	}
}

func TestMediaItem_HooksAssignIDAndFilenameKey(t *testing.T) {
	db := setupTestDB(t)

	item := newItem("hash-a", "MixedCase.JPG")
	require.NoError(t, db.Create(item).Error)

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "mixedcase.jpg", item.FilenameKey)

	item.Filename = "Renamed.JPG"
	require.NoError(t, db.Save(item).Error)
	assert.Equal(t, "renamed.jpg", item.FilenameKey)
}

func TestMediaItem_DuplicateHashIsTranslated(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.Create(newItem("same-hash", "a.jpg")).Error)
	err := db.Create(newItem("same-hash", "b.jpg")).Error

	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestMediaItem_DuplicateFilenameKeyIsTranslated(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.Create(newItem("hash-a", "Photo.jpg")).Error)
	err := db.Create(newItem("hash-b", "photo.JPG")).Error

	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestEffectiveTakenAtSource_Priority(t *testing.T) {
	user := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	intrinsic := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	inferred := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	item := &MediaItem{}
	taken, source := item.EffectiveTakenAtSource()
	assert.Nil(t, taken)
	assert.Equal(t, TakenAtSourceNone, source)

	item.InferredTakenAt = &inferred
	taken, source = item.EffectiveTakenAtSource()
	assert.Equal(t, TakenAtSourceInferred, source)
	assert.True(t, taken.Equal(inferred))

	item.IntrinsicTakenAt = &intrinsic
	taken, source = item.EffectiveTakenAtSource()
	assert.Equal(t, TakenAtSourceIntrinsic, source)
	assert.True(t, taken.Equal(intrinsic))

	item.UserTakenAt = &user
	taken, source = item.EffectiveTakenAtSource()
	assert.Equal(t, TakenAtSourceUser, source)
	assert.True(t, taken.Equal(user))
}

func TestEvent_TitleKeyHook(t *testing.T) {
	db := setupTestDB(t)

	event := &Event{Title: "Summer Trip", FolderName: "Summer_Trip"}
	require.NoError(t, db.Create(event).Error)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "summer trip", event.TitleKey)

	dup := &Event{Title: "SUMMER TRIP", FolderName: "SUMMER_TRIP"}
	assert.ErrorIs(t, db.Create(dup).Error, gorm.ErrDuplicatedKey)
}

func TestMediaVersion_UniquePerItem(t *testing.T) {
	db := setupTestDB(t)

	item := newItem("hash-a", "a.jpg")
	require.NoError(t, db.Create(item).Error)
	other := newItem("hash-b", "b.jpg")
	require.NoError(t, db.Create(other).Error)

	require.NoError(t, db.Create(&MediaVersion{MediaItemID: item.ID, Filename: "edit.jpg"}).Error)

	// Same filename on the same item is rejected.
	err := db.Create(&MediaVersion{MediaItemID: item.ID, Filename: "edit.jpg"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// But is fine on a different item.
	assert.NoError(t, db.Create(&MediaVersion{MediaItemID: other.ID, Filename: "edit.jpg"}).Error)
}

func TestFilePath(t *testing.T) {
	item := &MediaItem{Directory: "/lib/daily/2024/01/01", Filename: "pic.jpg"}
	assert.Equal(t, "/lib/daily/2024/01/01/pic.jpg", item.FilePath())
}
