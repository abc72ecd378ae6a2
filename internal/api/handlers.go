package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"flipradar/server/internal/inventory"
	"flipradar/server/internal/models"
	"flipradar/server/internal/opportunity"
	"flipradar/server/internal/registry"
	"flipradar/server/internal/relist"
	"flipradar/server/internal/scanner"
)

type Handler struct {
	registry  *registry.Registry
	store     *opportunity.Store
	scanner   *scanner.Scanner
	pipeline  *relist.Pipeline
	inventory *inventory.GormStore
	logger    *logrus.Logger
}

func NewHandler(reg *registry.Registry, store *opportunity.Store, sc *scanner.Scanner, pipeline *relist.Pipeline, inv *inventory.GormStore, logger *logrus.Logger) *Handler {
	return &Handler{
		registry:  reg,
		store:     store,
		scanner:   sc,
		pipeline:  pipeline,
		inventory: inv,
		logger:    logger,
	}
}

type PurchaseRequest struct {
	PurchasePrice float64 `json:"purchase_price" binding:"required,gt=0"`
}

type MarkListedRequest struct {
	Platform models.Platform `json:"platform" binding:"required"`
	Price    float64         `json:"price" binding:"required,gt=0"`
}

// --- scanner lifecycle ---

func (h *Handler) StartScanner(c *gin.Context) {
	if err := h.scanner.Start(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.scanner.Status())
}

func (h *Handler) StopScanner(c *gin.Context) {
	h.scanner.Stop()
	c.JSON(http.StatusOK, h.scanner.Status())
}

func (h *Handler) ScanNow(c *gin.Context) {
	if err := h.scanner.ScanNow(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "scan requested"})
}

func (h *Handler) GetScannerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scanner.Status())
}

// --- opportunities ---

func (h *Handler) ListOpportunities(c *gin.Context) {
	filter := models.OpportunityFilter{
		Status:       models.OpportunityStatus(c.Query("status")),
		WatchQueryID: c.Query("watch_query_id"),
		SortBy:       c.Query("sort_by"),
		Order:        c.Query("order"),
	}
	if raw := c.Query("min_score"); raw != "" {
		score, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_score must be an integer"})
			return
		}
		filter.MinScore = &score
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		filter.Limit = limit
	}

	opps, err := h.store.List(filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list opportunities")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list opportunities"})
		return
	}
	c.JSON(http.StatusOK, opps)
}

// PurchaseOpportunity confirms a buy and runs the relist pipeline
func (h *Handler) PurchaseOpportunity(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.pipeline.Run(c.Request.Context(), c.Param("id"), req.PurchasePrice)
	switch {
	case errors.Is(err, opportunity.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "opportunity not found"})
		return
	case errors.Is(err, opportunity.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "opportunity is no longer purchasable"})
		return
	case err != nil:
		h.logger.WithError(err).Error("Relist pipeline failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process purchase"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) DismissOpportunity(c *gin.Context) {
	opp, err := h.store.Dismiss(c.Param("id"))
	switch {
	case errors.Is(err, opportunity.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "opportunity not found"})
		return
	case errors.Is(err, opportunity.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "opportunity is already resolved"})
		return
	case err != nil:
		h.logger.WithError(err).Error("Failed to dismiss opportunity")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to dismiss opportunity"})
		return
	}
	c.JSON(http.StatusOK, opp)
}

// --- watch queries ---

func (h *Handler) CreateWatchQuery(c *gin.Context) {
	var wq models.WatchQuery
	if err := c.ShouldBindJSON(&wq); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.Create(&wq); err != nil {
		if errors.Is(err, registry.ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("Failed to create watch query")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create watch query"})
		return
	}
	c.JSON(http.StatusCreated, wq)
}

func (h *Handler) ListWatchQueries(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	queries, err := h.registry.List(activeOnly)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list watch queries")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list watch queries"})
		return
	}
	c.JSON(http.StatusOK, queries)
}

func (h *Handler) UpdateWatchQuery(c *gin.Context) {
	var upd models.WatchQueryUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wq, err := h.registry.Update(c.Param("id"), &upd)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "watch query not found"})
		return
	case errors.Is(err, registry.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.WithError(err).Error("Failed to update watch query")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update watch query"})
		return
	}
	c.JSON(http.StatusOK, wq)
}

func (h *Handler) DeleteWatchQuery(c *gin.Context) {
	err := h.registry.Delete(c.Param("id"))
	switch {
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "watch query not found"})
		return
	case err != nil:
		h.logger.WithError(err).Error("Failed to delete watch query")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete watch query"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// --- inventory ---

func (h *Handler) ListInventory(c *gin.Context) {
	items, err := h.inventory.List(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list inventory")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list inventory"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) MarkInventoryListed(c *gin.Context) {
	var req MarkListedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.inventory.MarkListed(c.Request.Context(), c.Param("id"), req.Platform, req.Price); err != nil {
		h.logger.WithError(err).Error("Failed to mark inventory item listed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark item listed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "listed"})
}
