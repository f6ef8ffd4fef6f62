package mediamodule

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/shoebox/internal/database"
	"github.com/mantonx/shoebox/internal/organizer"
)

func TestVersionSlug(t *testing.T) {
	tests := []struct {
		description string
		expected    string
	}{
		{"Cropped for print", "cropped-for-print"},
		{"  B&W edit!  ", "b-w-edit"},
		{"___", "version"},
		{"", "version"},
		{"UPPER case 123", "upper-case-123"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, versionSlug(tt.description), "description %q", tt.description)
	}
}

func stageVersionFile(t *testing.T, data []byte) string {
	path := filepath.Join(t.TempDir(), "edit.png")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestAddVersion(t *testing.T) {
	manager, db, _ := setupTestManager(t)

	result, err := manager.Import(submitPhoto("pic.jpg", []byte("original")))
	require.NoError(t, err)
	item := result.Item

	source := stageVersionFile(t, []byte("edited"))
	version, err := manager.AddVersion(item.ID, source, "Cropped for print", nil)
	require.NoError(t, err)

	// Canonical extension wins over the incoming file's extension.
	assert.Equal(t, "cropped-for-print.jpg", version.Filename)
	assert.Nil(t, version.Parent)
	assert.NoFileExists(t, source)
	assert.FileExists(t, filepath.Join(organizer.VersionsDir(item.FilePath()), "cropped-for-print.jpg"))

	var stored database.MediaVersion
	require.NoError(t, db.First(&stored, "media_item_id = ?", item.ID).Error)
	assert.Equal(t, "cropped-for-print.jpg", stored.Filename)
}

func TestAddVersion_SlugCollision(t *testing.T) {
	manager, _, _ := setupTestManager(t)

	result, err := manager.Import(submitPhoto("pic.jpg", []byte("original")))
	require.NoError(t, err)

	first, err := manager.AddVersion(result.Item.ID, stageVersionFile(t, []byte("v1")), "edit", nil)
	require.NoError(t, err)
	second, err := manager.AddVersion(result.Item.ID, stageVersionFile(t, []byte("v2")), "edit", nil)
	require.NoError(t, err)

	assert.Equal(t, "edit.jpg", first.Filename)
	assert.Equal(t, "edit-2.jpg", second.Filename)
}

func TestAddVersion_BranchingFromParent(t *testing.T) {
	manager, _, _ := setupTestManager(t)

	result, err := manager.Import(submitPhoto("pic.jpg", []byte("original")))
	require.NoError(t, err)

	root, err := manager.AddVersion(result.Item.ID, stageVersionFile(t, []byte("v1")), "base edit", nil)
	require.NoError(t, err)

	branch, err := manager.AddVersion(result.Item.ID, stageVersionFile(t, []byte("v2")), "color pass", &root.Filename)
	require.NoError(t, err)

	require.NotNil(t, branch.Parent)
	assert.Equal(t, root.Filename, *branch.Parent)
}

func TestAddVersion_UnknownParentRejected(t *testing.T) {
	manager, _, _ := setupTestManager(t)

	result, err := manager.Import(submitPhoto("pic.jpg", []byte("original")))
	require.NoError(t, err)

	source := stageVersionFile(t, []byte("v1"))
	ghost := "no-such-version.jpg"
	_, err = manager.AddVersion(result.Item.ID, source, "edit", &ghost)

	assert.ErrorIs(t, err, ErrUnknownParent)
	// The staged file was not consumed.
	assert.FileExists(t, source)
}

func TestAddVersion_RewritesManifest(t *testing.T) {
	manager, _, _ := setupTestManager(t)

	result, err := manager.Import(submitPhoto("pic.jpg", []byte("original")))
	require.NoError(t, err)
	item := result.Item

	_, err = manager.AddVersion(item.ID, stageVersionFile(t, []byte("v1")), "edit", nil)
	require.NoError(t, err)

	data, err := os.ReadFile(organizer.ManifestPath(item.FilePath()))
	require.NoError(t, err)

	var manifest versionManifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Nil(t, manifest.Primary)
	require.Len(t, manifest.Versions, 1)
	assert.Equal(t, "edit.jpg", manifest.Versions[0].Filename)
	assert.Equal(t, "edit", manifest.Versions[0].Description)
}

func TestSetPrimary(t *testing.T) {
	manager, _, _ := setupTestManager(t)

	result, err := manager.Import(submitPhoto("pic.jpg", []byte("original")))
	require.NoError(t, err)
	itemID := result.Item.ID

	version, err := manager.AddVersion(itemID, stageVersionFile(t, []byte("v1")), "edit", nil)
	require.NoError(t, err)

	item, err := manager.SetPrimary(itemID, &version.Filename)
	require.NoError(t, err)
	require.NotNil(t, item.PrimaryVersion)
	assert.Equal(t, version.Filename, *item.PrimaryVersion)

	// Manifest mirrors the new primary.
	data, err := os.ReadFile(organizer.ManifestPath(item.FilePath()))
	require.NoError(t, err)
	var manifest versionManifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	require.NotNil(t, manifest.Primary)
	assert.Equal(t, version.Filename, *manifest.Primary)

	// Null resets to the original file.
	item, err = manager.SetPrimary(itemID, nil)
	require.NoError(t, err)
	assert.Nil(t, item.PrimaryVersion)
}

func TestSetPrimary_UnknownVersionRejected(t *testing.T) {
	manager, _, _ := setupTestManager(t)

	result, err := manager.Import(submitPhoto("pic.jpg", []byte("original")))
	require.NoError(t, err)

	ghost := "no-such-version.jpg"
	_, err = manager.SetPrimary(result.Item.ID, &ghost)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestListVersions(t *testing.T) {
	manager, _, _ := setupTestManager(t)

	result, err := manager.Import(submitPhoto("pic.jpg", []byte("original")))
	require.NoError(t, err)

	_, err = manager.AddVersion(result.Item.ID, stageVersionFile(t, []byte("v1")), "first", nil)
	require.NoError(t, err)
	_, err = manager.AddVersion(result.Item.ID, stageVersionFile(t, []byte("v2")), "second", nil)
	require.NoError(t, err)

	versions, primary, err := manager.ListVersions(result.Item.ID)
	require.NoError(t, err)
	assert.Nil(t, primary)
	require.Len(t, versions, 2)
	assert.Equal(t, "first.jpg", versions[0].Filename)
	assert.Equal(t, "second.jpg", versions[1].Filename)
}

func TestVersionsSurviveRelocation(t *testing.T) {
	manager, db, roots := setupTestManager(t)

	result, err := manager.Import(submitPhoto("pic.jpg", []byte("original")))
	require.NoError(t, err)
	itemID := result.Item.ID

	_, err = manager.AddVersion(itemID, stageVersionFile(t, []byte("v1")), "edit", nil)
	require.NoError(t, err)

	event := &database.Event{Title: "Trip", FolderName: "Trip"}
	require.NoError(t, db.Create(event).Error)
	require.NoError(t, os.MkdirAll(roots.EventDir(event), 0755))

	item, err := manager.RequestTransition(itemID, database.StateEventRoot, &event.ID, nil)
	require.NoError(t, err)

	// The aux directory travelled with the root file.
	assert.FileExists(t, filepath.Join(organizer.VersionsDir(item.FilePath()), "edit.jpg"))
	assert.FileExists(t, organizer.ManifestPath(item.FilePath()))
}
