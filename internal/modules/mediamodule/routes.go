package mediamodule

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/shoebox/internal/database"
	"github.com/mantonx/shoebox/internal/organizer"
)

// RegisterRoutes registers the media endpoints.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	media := router.Group("/api/media")
	{
		media.POST("", m.importMedia)
		media.GET("", m.listMedia)
		media.GET("/summary", m.summary)
		media.GET("/:id", m.getMedia)
		media.DELETE("/:id", m.deleteMedia)

		media.GET("/:id/transitions", m.listTransitions)
		media.POST("/:id/transition", m.transition)
		media.GET("/:id/directory", m.computeDirectory)

		media.POST("/:id/rename", m.rename)
		media.PUT("/:id/taken-at", m.setTakenAt)

		media.GET("/:id/versions", m.listVersions)
		media.POST("/:id/versions", m.addVersion)
		media.PUT("/:id/primary", m.setPrimary)
	}
}

// respondError maps domain errors to HTTP status codes.
func respondError(c *gin.Context, err error) {
	var unsupported *UnsupportedTypeError
	switch {
	case errors.Is(err, ErrItemNotFound),
		errors.Is(err, ErrVersionNotFound),
		errors.Is(err, ErrUnknownParent):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case organizer.IsGuardDenied(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case organizer.IsPrerequisite(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &unsupported):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// importMedia ingests one multipart file upload.
func (m *Module) importMedia(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	sub := Submission{
		Data:         data,
		ContentType:  file.Header.Get("Content-Type"),
		OriginalName: file.Filename,
	}
	if ms, err := strconv.ParseInt(c.PostForm("last_modified"), 10, 64); err == nil && ms > 0 {
		t := time.UnixMilli(ms)
		sub.LastModified = &t
	}

	result, err := m.manager.Import(sub)
	if err != nil {
		respondError(c, err)
		return
	}

	if result.Duplicate {
		c.JSON(http.StatusOK, result)
		return
	}

	if err := m.manager.PostProcess(result.Item.ID); err != nil {
		// The item exists and is sortable; post-processing can be
		// retried.
		m.manager.log.Warn("post-processing failed after import", "item_id", result.Item.ID, "error", err)
	}
	if item, err := m.manager.Get(result.Item.ID); err == nil {
		result.Item = item
	}
	c.JSON(http.StatusCreated, result)
}

func (m *Module) listMedia(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := m.manager.List(limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (m *Module) getMedia(c *gin.Context) {
	item, err := m.manager.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	takenAt, source := item.EffectiveTakenAtSource()
	c.JSON(http.StatusOK, gin.H{
		"item":             item,
		"effective_taken":  takenAt,
		"taken_at_source":  source,
	})
}

func (m *Module) deleteMedia(c *gin.Context) {
	if err := m.manager.Delete(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (m *Module) listTransitions(c *gin.Context) {
	options, err := m.manager.AvailableTransitions(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transitions": options})
}

type transitionRequest struct {
	Target     database.StorageState `json:"target" binding:"required"`
	EventID    *string               `json:"event_id"`
	SubeventID *string               `json:"subevent_id"`
}

func (m *Module) transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := m.manager.RequestTransition(c.Param("id"), req.Target, req.EventID, req.SubeventID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

func (m *Module) computeDirectory(c *gin.Context) {
	dir, err := m.manager.ComputeDirectory(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"directory": dir})
}

type renameRequest struct {
	Filename string `json:"filename" binding:"required"`
}

func (m *Module) rename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := m.manager.Rename(c.Param("id"), req.Filename)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

type takenAtRequest struct {
	TakenAt *time.Time `json:"taken_at"`
}

// setTakenAt sets or clears (null body value) the user datetime
// override.
func (m *Module) setTakenAt(c *gin.Context) {
	var req takenAtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := m.manager.SetUserTakenAt(c.Param("id"), req.TakenAt)
	if err != nil {
		respondError(c, err)
		return
	}

	takenAt, source := item.EffectiveTakenAtSource()
	c.JSON(http.StatusOK, gin.H{
		"item":            item,
		"effective_taken": takenAt,
		"taken_at_source": source,
	})
}

func (m *Module) listVersions(c *gin.Context) {
	versions, primary, err := m.manager.ListVersions(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions, "primary": primary})
}

// addVersion accepts a multipart upload and files it into the item's
// version history.
func (m *Module) addVersion(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	description := c.PostForm("description")
	if description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing description field"})
		return
	}
	var parent *string
	if p := c.PostForm("parent"); p != "" {
		parent = &p
	}

	// Stage the upload so AddVersion can move it into place.
	staged := filepath.Join(os.TempDir(), "shoebox-version-"+filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, staged); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	version, err := m.manager.AddVersion(c.Param("id"), staged, description, parent)
	if err != nil {
		os.Remove(staged)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"version": version})
}

type primaryRequest struct {
	Filename *string `json:"filename"`
}

// setPrimary selects the version feeding artifact generation; null
// resets to the original file.
func (m *Module) setPrimary(c *gin.Context) {
	var req primaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := m.manager.SetPrimary(c.Param("id"), req.Filename)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

func (m *Module) summary(c *gin.Context) {
	summary, err := m.manager.Summary()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
