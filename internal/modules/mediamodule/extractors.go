package mediamodule

import (
	"image"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/dhowden/tag"

	"github.com/mantonx/shoebox/internal/database"
)

// DefaultExtractors returns the built-in extractor per media kind.
// Deeper extraction (EXIF, ffprobe) plugs in through SetExtractor.
func DefaultExtractors() map[database.MediaKind]MetadataExtractor {
	return map[database.MediaKind]MetadataExtractor{
		database.KindPhoto: &PhotoExtractor{},
		database.KindAudio: &AudioExtractor{},
		database.KindVideo: &VideoExtractor{},
	}
}

// PhotoExtractor reads image dimensions from the encoded header.
type PhotoExtractor struct{}

// Extract returns the image dimensions. An undecodable image yields an
// empty result, not an error.
func (e *PhotoExtractor) Extract(filePath string) (*IntrinsicMetadata, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return &IntrinsicMetadata{}, nil
	}
	return &IntrinsicMetadata{Width: cfg.Width, Height: cfg.Height}, nil
}

// AudioExtractor reads embedded tags (ID3, MP4, FLAC, OGG).
type AudioExtractor struct{}

// Extract returns title/artist/album/genre/year from embedded tags. A
// file without tags yields an empty result.
func (e *AudioExtractor) Extract(filePath string) (*IntrinsicMetadata, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		return &IntrinsicMetadata{}, nil
	}

	return &IntrinsicMetadata{
		Title:  meta.Title(),
		Artist: meta.Artist(),
		Album:  meta.Album(),
		Genre:  meta.Genre(),
		Year:   meta.Year(),
	}, nil
}

// VideoExtractor is a stub: container probing is an external
// collaborator and plugs in through SetExtractor.
type VideoExtractor struct{}

// Extract returns an empty result.
func (e *VideoExtractor) Extract(filePath string) (*IntrinsicMetadata, error) {
	return &IntrinsicMetadata{}, nil
}
