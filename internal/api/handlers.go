package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/MarcelCutts/home-finder-sub001/internal/pipeline"
	"github.com/MarcelCutts/home-finder-sub001/internal/store"
)

// Handler serves the read-only view the dashboard consumes. All writes go
// through the pipeline; nothing here mutates lifecycle state.
type Handler struct {
	store  *store.Store
	runner *pipeline.Runner
	logger *logrus.Logger
}

func NewHandler(st *store.Store, runner *pipeline.Runner, logger *logrus.Logger) *Handler {
	return &Handler{
		store:  st,
		runner: runner,
		logger: logger,
	}
}

func (h *Handler) GetProperties(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = parsed
	}

	properties, err := h.store.ListProperties(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list properties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list properties"})
		return
	}
	c.JSON(http.StatusOK, properties)
}

func (h *Handler) GetProperty(c *gin.Context) {
	property, err := h.store.GetProperty(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "property not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load property"})
		return
	}
	c.JSON(http.StatusOK, property)
}

func (h *Handler) GetQueues(c *gin.Context) {
	counts, err := h.store.StatusCounts(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to count statuses")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count statuses"})
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *Handler) GetLastRun(c *gin.Context) {
	summary := h.runner.LastRun()
	if summary == nil {
		c.JSON(http.StatusOK, gin.H{"status": "no completed runs yet"})
		return
	}
	c.JSON(http.StatusOK, summary)
}
