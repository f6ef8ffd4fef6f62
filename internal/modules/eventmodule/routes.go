package eventmodule

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the hierarchy endpoints.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	eventsGroup := router.Group("/api/events")
	{
		eventsGroup.POST("", m.createEvent)
		eventsGroup.GET("", m.listEvents)
		eventsGroup.GET("/:id", m.getEvent)
		eventsGroup.PUT("/:id/title", m.renameEvent)
		eventsGroup.DELETE("/:id", m.deleteEvent)

		eventsGroup.POST("/:id/subevents", m.createSubevent)
	}

	subevents := router.Group("/api/subevents")
	{
		subevents.PUT("/:id/title", m.renameSubevent)
		subevents.DELETE("/:id", m.deleteSubevent)
	}
}

func respondError(c *gin.Context, err error) {
	var teardown *TeardownError
	var rename *RenameError
	switch {
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrSubeventNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrDuplicateTitle):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrDepthExceeded), errors.Is(err, ErrHasChildren), errors.Is(err, ErrEmptyTitle):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &teardown):
		c.JSON(http.StatusConflict, gin.H{
			"error":    teardown.Error(),
			"failures": teardown.Failures,
		})
	case errors.As(err, &rename):
		c.JSON(http.StatusConflict, gin.H{"error": rename.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type createEventRequest struct {
	Title     string    `json:"title" binding:"required"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	CreatedBy string    `json:"created_by"`
}

func (m *Module) createEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := m.manager.CreateEvent(req.Title, req.StartDate, req.EndDate, req.CreatedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": event})
}

func (m *Module) listEvents(c *gin.Context) {
	list, err := m.manager.ListEvents()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": list, "count": len(list)})
}

func (m *Module) getEvent(c *gin.Context) {
	event, err := m.manager.GetEvent(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": event})
}

type renameRequest struct {
	Title string `json:"title" binding:"required"`
}

func (m *Module) renameEvent(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := m.manager.RenameEvent(c.Param("id"), req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": event})
}

func (m *Module) deleteEvent(c *gin.Context) {
	if err := m.manager.DeleteEvent(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type createSubeventRequest struct {
	Title    string  `json:"title" binding:"required"`
	ParentID *string `json:"parent_id"`
}

func (m *Module) createSubevent(c *gin.Context) {
	var req createSubeventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := m.manager.CreateSubevent(c.Param("id"), req.ParentID, req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"subevent": sub})
}

func (m *Module) renameSubevent(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := m.manager.RenameSubevent(c.Param("id"), req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subevent": sub})
}

func (m *Module) deleteSubevent(c *gin.Context) {
	if err := m.manager.DeleteSubevent(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
