package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"resale-sync-service/internal/models"
	"resale-sync-service/internal/service"
	"resale-sync-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	catalog   *service.CatalogService
	queue     *service.Queue
	scheduler *service.Scheduler
	unifier   *service.Unifier
	inventory *service.InventoryService
	priority  map[string]int
}

// NewHandler creates a new HTTP handler. The priority map gives the
// default enqueue priority per provider.
func NewHandler(catalog *service.CatalogService, queue *service.Queue, scheduler *service.Scheduler, unifier *service.Unifier, inventory *service.InventoryService, priority map[string]int) *Handler {
	return &Handler{
		catalog:   catalog,
		queue:     queue,
		scheduler: scheduler,
		unifier:   unifier,
		inventory: inventory,
		priority:  priority,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/styles", h.registerStyle)
		v1.GET("/styles/:id", h.getStyle)
		v1.POST("/sync", h.requestSync)
		v1.POST("/scheduler/run", h.runScheduler)
		v1.GET("/styles/:id/market", h.getMarketView)
		v1.GET("/inventory", h.listInventory)
		v1.POST("/inventory", h.addInventoryItem)
		v1.POST("/inventory/:id/sold", h.markSold)
		v1.GET("/sales", h.listSales)
		v1.POST("/sales/:id/undo", h.undoSale)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type registerStyleRequest struct {
	StyleCode string `json:"style_code" binding:"required"`
}

// registerStyle starts tracking a style code and requests its first sync
func (h *Handler) registerStyle(c *gin.Context) {
	var req registerStyleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	style, created, err := h.catalog.RegisterStyle(c.Request.Context(), req.StyleCode)
	if err != nil {
		if errors.Is(err, service.ErrEmptyStyleCode) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to register style",
			"details": err.Error(),
		})
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, style)
}

// getStyle returns a style with its mappings and known variants
func (h *Handler) getStyle(c *gin.Context) {
	styleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid style ID"})
		return
	}

	detail, err := h.catalog.StyleDetail(c.Request.Context(), styleID)
	if err != nil {
		if errors.Is(err, service.ErrStyleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Style not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load style",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, detail)
}

type syncRequest struct {
	StyleID  int64  `json:"style_id" binding:"required"`
	Provider string `json:"provider" binding:"required"`
	Priority *int   `json:"priority,omitempty"`
}

// requestSync enqueues a sync job for a (style, provider) pair
func (h *Handler) requestSync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	priority := h.priority[req.Provider]
	if req.Priority != nil {
		priority = *req.Priority
	}

	created, err := h.queue.Enqueue(c.Request.Context(), req.StyleID, req.Provider, priority)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue sync job",
			"details": err.Error(),
		})
		return
	}

	status := http.StatusCreated
	if !created {
		// An active job for this pair already covers the request.
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"style_id": req.StyleID,
		"provider": req.Provider,
		"enqueued": created,
	})
}

// runScheduler triggers one scheduling pass immediately
func (h *Handler) runScheduler(c *gin.Context) {
	run, err := h.scheduler.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Scheduler run failed",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, run)
}

// getMarketView returns the unified cross-provider market view for a style
func (h *Handler) getMarketView(c *gin.Context) {
	styleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid style ID"})
		return
	}

	view, err := h.unifier.MarketView(c.Request.Context(), styleID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to build market view",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, view)
}

// listInventory returns the calling user's active inventory
func (h *Handler) listInventory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	items, err := h.inventory.ListItems(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list inventory",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type addItemRequest struct {
	StyleID       int64    `json:"style_id" binding:"required"`
	DisplaySize   string   `json:"display_size" binding:"required"`
	CanonicalSize *float64 `json:"canonical_size,omitempty"`
	PurchaseCents int64    `json:"purchase_cents"`
	Condition     string   `json:"condition"`
}

// addInventoryItem records a new item for the calling user
func (h *Handler) addInventoryItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	item := &models.InventoryItem{
		StyleID:       req.StyleID,
		DisplaySize:   req.DisplaySize,
		CanonicalSize: req.CanonicalSize,
		PurchaseCents: req.PurchaseCents,
		Condition:     req.Condition,
	}

	created, err := h.inventory.AddItem(c.Request.Context(), userID, item)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to add inventory item",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// markSold converts an inventory item into a sale record
func (h *Handler) markSold(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID"})
		return
	}

	var details service.SaleDetails
	if err := c.ShouldBindJSON(&details); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	sale, existed, err := h.inventory.MarkSold(c.Request.Context(), userID, itemID, details)
	if err != nil {
		status, message := inventoryErrorStatus(err)
		c.JSON(status, gin.H{"error": message, "details": err.Error()})
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"sale":            sale,
		"already_existed": existed,
	})
}

// listSales returns the calling user's sale records
func (h *Handler) listSales(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	sales, err := h.inventory.ListSales(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list sales",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales})
}

// undoSale restores a sale record back into inventory
func (h *Handler) undoSale(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	saleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sale ID"})
		return
	}

	item, err := h.inventory.UndoSale(c.Request.Context(), userID, saleID)
	if err != nil {
		status, message := inventoryErrorStatus(err)
		c.JSON(status, gin.H{"error": message, "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, item)
}

// currentUser reads the authenticated user id injected by the gateway.
// Writes the error response itself when the header is missing or bad.
func currentUser(c *gin.Context) (int64, bool) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing X-User-ID header"})
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid X-User-ID header"})
		return 0, false
	}
	return userID, true
}

func inventoryErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrItemNotFound), errors.Is(err, service.ErrSaleNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, service.ErrNotOwner):
		return http.StatusForbidden, "Forbidden"
	default:
		return http.StatusInternalServerError, "Operation failed"
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
