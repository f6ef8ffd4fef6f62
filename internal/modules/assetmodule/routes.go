package assetmodule

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mantonx/shoebox/internal/database"
	"github.com/mantonx/shoebox/internal/organizer"
)

// RegisterRoutes registers the artifact-serving endpoints.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	assets := router.Group("/api/assets")
	{
		assets.GET("/:id/file", m.serveFile)
		assets.GET("/:id/thumbnail", m.serveThumbnail)
		assets.GET("/:id/preview", m.servePreview)
	}
}

func loadItem(c *gin.Context) (*database.MediaItem, bool) {
	var item database.MediaItem
	err := database.GetDB().First(&item, "id = ?", c.Param("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "media item not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return nil, false
	}
	return &item, true
}

// serveFile serves the bytes behind the item: the primary version when
// one is selected, the root file otherwise.
func (m *Module) serveFile(c *gin.Context) {
	item, ok := loadItem(c)
	if !ok {
		return
	}

	path := item.FilePath()
	if item.PrimaryVersion != nil {
		path = filepath.Join(organizer.VersionsDir(item.FilePath()), *item.PrimaryVersion)
	}
	serveArtifact(c, path, item.ContentType)
}

func (m *Module) serveThumbnail(c *gin.Context) {
	item, ok := loadItem(c)
	if !ok {
		return
	}
	if item.ThumbnailPath == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no thumbnail available"})
		return
	}
	serveArtifact(c, *item.ThumbnailPath, "image/webp")
}

func (m *Module) servePreview(c *gin.Context) {
	item, ok := loadItem(c)
	if !ok {
		return
	}
	if item.PreviewPath == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no preview available"})
		return
	}
	serveArtifact(c, *item.PreviewPath, "image/webp")
}

func serveArtifact(c *gin.Context, path, contentType string) {
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact file missing"})
		return
	}
	if contentType != "" {
		c.Header("Content-Type", contentType)
	}
	c.File(path)
}
