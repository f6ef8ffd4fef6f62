package organizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sidecar artifacts live next to the root file and are derived from its
// base name: <base>.thumb.webp, <base>.preview.webp and the <base>.aux
// directory, which holds the version history and its manifest. Renaming
// or moving the root file relocates all of them by base-name
// substitution.

const (
	thumbSuffix   = ".thumb.webp"
	previewSuffix = ".preview.webp"
	auxSuffix     = ".aux"
)

func baseOf(filePath string) string {
	name := filepath.Base(filePath)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ThumbnailPath returns the sidecar thumbnail path for a root file.
func ThumbnailPath(filePath string) string {
	return filepath.Join(filepath.Dir(filePath), baseOf(filePath)+thumbSuffix)
}

// PreviewPath returns the sidecar preview path for a root file.
func PreviewPath(filePath string) string {
	return filepath.Join(filepath.Dir(filePath), baseOf(filePath)+previewSuffix)
}

// AuxDir returns the auxiliary directory for a root file.
func AuxDir(filePath string) string {
	return filepath.Join(filepath.Dir(filePath), baseOf(filePath)+auxSuffix)
}

// VersionsDir returns the version-history directory inside the
// auxiliary directory.
func VersionsDir(filePath string) string {
	return filepath.Join(AuxDir(filePath), "versions")
}

// ManifestPath returns the versions.json sidecar manifest path.
func ManifestPath(filePath string) string {
	return filepath.Join(AuxDir(filePath), "versions.json")
}

// SidecarFailure records one sidecar that could not be relocated.
type SidecarFailure struct {
	Path string
	Err  error
}

func (f SidecarFailure) String() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

// RelocateSidecars moves every existing sidecar of oldPath to its
// position next to newPath. Failures are collected, not fatal: the
// primary rename they accompany has already happened.
func RelocateSidecars(oldPath, newPath string) []SidecarFailure {
	var failures []SidecarFailure

	pairs := [][2]string{
		{ThumbnailPath(oldPath), ThumbnailPath(newPath)},
		{PreviewPath(oldPath), PreviewPath(newPath)},
		{AuxDir(oldPath), AuxDir(newPath)},
	}

	for _, pair := range pairs {
		src, dst := pair[0], pair[1]
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			failures = append(failures, SidecarFailure{Path: src, Err: err})
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			failures = append(failures, SidecarFailure{Path: src, Err: err})
		}
	}

	return failures
}
