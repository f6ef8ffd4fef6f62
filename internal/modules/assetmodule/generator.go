package assetmodule

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/dhowden/tag"
	"github.com/disintegration/imaging"

	"github.com/mantonx/shoebox/internal/config"
	"github.com/mantonx/shoebox/internal/utils"
)

// ErrUnsupportedSource reports a source no built-in pipeline can turn
// into a thumbnail. Video frame extraction needs an external tool and is
// not built in.
var ErrUnsupportedSource = errors.New("no artifact pipeline for source")

// Generator produces sidecar thumbnails and previews as WebP. Images
// are resized directly; audio sources use their embedded cover art.
type Generator struct {
	thumbSize   int
	previewSize int
	quality     float32
}

// NewGenerator creates a generator from asset configuration.
func NewGenerator(cfg config.AssetConfig) *Generator {
	return &Generator{
		thumbSize:   cfg.ThumbnailSize,
		previewSize: cfg.PreviewSize,
		quality:     float32(cfg.Quality),
	}
}

// Generate writes the thumbnail and preview for sourcePath to the given
// destinations. Both are written atomically; a failure writes neither.
func (g *Generator) Generate(sourcePath, contentType, thumbDest, previewDest string) error {
	img, err := g.decodeSource(sourcePath, contentType)
	if err != nil {
		return err
	}

	thumb := imaging.Fit(img, g.thumbSize, g.thumbSize, imaging.Lanczos)
	preview := imaging.Fit(img, g.previewSize, g.previewSize, imaging.Lanczos)

	if err := g.writeWebP(thumbDest, thumb); err != nil {
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}
	if err := g.writeWebP(previewDest, preview); err != nil {
		return fmt.Errorf("failed to write preview: %w", err)
	}
	return nil
}

func (g *Generator) decodeSource(sourcePath, contentType string) (image.Image, error) {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "image/"):
		img, err := imaging.Open(sourcePath, imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		return img, nil

	case strings.HasPrefix(ct, "audio/"):
		return embeddedArt(sourcePath)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, contentType)
	}
}

// embeddedArt pulls the cover image out of an audio file's tags.
func embeddedArt(sourcePath string) (image.Image, error) {
	file, err := os.Open(sourcePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable audio tags", ErrUnsupportedSource)
	}
	pic := meta.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return nil, fmt.Errorf("%w: audio file has no embedded art", ErrUnsupportedSource)
	}

	img, _, err := image.Decode(bytes.NewReader(pic.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode embedded art: %w", err)
	}
	return img, nil
}

func (g *Generator) writeWebP(dest string, img image.Image) error {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: g.quality}); err != nil {
		return err
	}
	return utils.WriteFileAtomic(dest, buf.Bytes())
}
