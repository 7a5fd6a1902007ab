package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"supplier-sync/internal/importer"
	"supplier-sync/internal/mapper"
	"supplier-sync/internal/models"
	"supplier-sync/internal/order"
	"supplier-sync/internal/pricing"
	"supplier-sync/internal/ratelimit"
	"supplier-sync/internal/stock"
	"supplier-sync/internal/supplier"
	"supplier-sync/internal/sync"
	"supplier-sync/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	coordinator  *sync.Coordinator
	mapper       *mapper.Mapper
	importer     *importer.Importer
	autoImporter *importer.AutoImporter
	submitter    *order.Submitter
	prices       *pricing.Engine
	stocks       *stock.Engine
	limiter      *ratelimit.Limiter
}

// NewHandler creates a new HTTP handler
func NewHandler(
	coordinator *sync.Coordinator,
	productMapper *mapper.Mapper,
	productImporter *importer.Importer,
	autoImporter *importer.AutoImporter,
	submitter *order.Submitter,
	prices *pricing.Engine,
	stocks *stock.Engine,
	limiter *ratelimit.Limiter,
) *Handler {
	return &Handler{
		coordinator:  coordinator,
		mapper:       productMapper,
		importer:     productImporter,
		autoImporter: autoImporter,
		submitter:    submitter,
		prices:       prices,
		stocks:       stocks,
		limiter:      limiter,
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
		v1.POST("/sync", h.triggerSync)
		v1.GET("/sync/status", h.syncStatus)

		v1.POST("/mappings", h.createMapping)
		v1.DELETE("/mappings/:id", h.deleteMapping)
		v1.PUT("/mappings/:id/sync-enabled", h.setMappingSyncEnabled)
		v1.POST("/mappings/auto", h.autoMap)
		v1.GET("/mappings/stats", h.mappingStats)

		v1.POST("/import", h.importBySKU)
		v1.POST("/import/auto", h.runAutoImport)
		v1.GET("/import/auto/filter", h.getImportFilter)
		v1.PUT("/import/auto/filter", h.setImportFilter)
		v1.GET("/import/history", h.importHistory)
		v1.GET("/import/history/stats", h.importHistoryStats)

		v1.POST("/orders/:id/submit", h.submitOrder)

		v1.GET("/settings/price-rules", h.getPriceRules)
		v1.PUT("/settings/price-rules", h.setPriceRules)
		v1.GET("/settings/stock-rules", h.getStockRules)
		v1.PUT("/settings/stock-rules", h.setStockRules)
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

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
	})
}

// triggerSync runs one manual sync batch step
func (h *Handler) triggerSync(c *gin.Context) {
	result, err := h.coordinator.ManualSync(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}

// syncStatus reports the persisted sync state with derived progress
func (h *Handler) syncStatus(c *gin.Context) {
	state, progress, err := h.coordinator.Status(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"state":      state,
		"progress":   progress,
		"rate_limit": h.limiter.Stats(c.Request.Context()),
	})
}

type createMappingRequest struct {
	LocalID      int64  `json:"local_id" binding:"required"`
	SupplierSKU  string `json:"supplier_sku" binding:"required"`
	SupplierName string `json:"supplier_name"`
}

func (h *Handler) createMapping(c *gin.Context) {
	var req createMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	m, err := h.mapper.Map(c.Request.Context(), req.LocalID, req.SupplierSKU, req.SupplierName)
	if err != nil {
		if errors.Is(err, mapper.ErrAlreadyMapped) {
			fail(c, http.StatusConflict, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "mapping": m})
}

func (h *Handler) deleteMapping(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid mapping ID")
		return
	}

	if err := h.mapper.Unmap(c.Request.Context(), id); err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type syncEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) setMappingSyncEnabled(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid mapping ID")
		return
	}

	var req syncEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.mapper.SetSyncEnabled(c.Request.Context(), id, *req.Enabled); err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) autoMap(c *gin.Context) {
	result, err := h.mapper.AutoMapByIdentifier(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"mapped":  result.Mapped,
		"skipped": result.Skipped,
	})
}

func (h *Handler) mappingStats(c *gin.Context) {
	stats, err := h.mapper.GetStats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

type importRequest struct {
	SKU string `json:"sku" binding:"required"`
}

func (h *Handler) importBySKU(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	localID, err := h.importer.ImportBySKU(c.Request.Context(), req.SKU)
	if err != nil {
		switch {
		case errors.Is(err, importer.ErrAlreadyExists):
			fail(c, http.StatusConflict, err.Error())
		case errors.Is(err, importer.ErrProductNotFound):
			fail(c, http.StatusNotFound, err.Error())
		default:
			fail(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "local_id": localID})
}

func (h *Handler) runAutoImport(c *gin.Context) {
	report, err := h.autoImporter.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, importer.ErrRunInProgress) {
			fail(c, http.StatusConflict, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

func (h *Handler) getImportFilter(c *gin.Context) {
	filter, err := h.autoImporter.GetFilter(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "filter": filter})
}

func (h *Handler) setImportFilter(c *gin.Context) {
	var filter importer.Filter
	if err := c.ShouldBindJSON(&filter); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.autoImporter.SetFilter(c.Request.Context(), filter); err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "filter": filter})
}

func (h *Handler) importHistory(c *gin.Context) {
	runs, err := h.autoImporter.History(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []models.ImportRun{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "runs": runs})
}

func (h *Handler) importHistoryStats(c *gin.Context) {
	stats, err := h.autoImporter.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

func (h *Handler) submitOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid order ID")
		return
	}

	submission, err := h.submitter.Submit(c.Request.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrAlreadySubmitted):
			fail(c, http.StatusConflict, err.Error())
		case errors.Is(err, order.ErrNoMappedItems):
			fail(c, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, supplier.ErrRateLimited):
			fail(c, http.StatusTooManyRequests, err.Error())
		default:
			fail(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "submission": submission})
}

func (h *Handler) getPriceRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "rules": h.prices.Rules()})
}

func (h *Handler) setPriceRules(c *gin.Context) {
	var rules pricing.Rules
	if err := c.ShouldBindJSON(&rules); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.prices.SaveRules(c.Request.Context(), rules); err != nil {
		if errors.Is(err, pricing.ErrInvalidRules) {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "rules": rules})
}

func (h *Handler) getStockRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "rules": h.stocks.Rules()})
}

func (h *Handler) setStockRules(c *gin.Context) {
	var rules stock.Rules
	if err := c.ShouldBindJSON(&rules); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.stocks.SaveRules(c.Request.Context(), rules); err != nil {
		if errors.Is(err, stock.ErrInvalidRules) {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "rules": rules})
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
