package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/shopify-download-relay/internal/logger"
	"github.com/imrishuroy/shopify-download-relay/internal/vendor"
)

// RegisterDownloadRoutes registers the customer self-service routes behind
// the portal token.
func RegisterDownloadRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.PortalToken == "" || cfg.Downloads == nil {
		return
	}
	h := &downloadsHandler{center: cfg.Downloads, apiKey: cfg.APIKey, log: cfg.Logger}
	if h.log == nil {
		h.log = logger.Discard()
	}

	g := r.Group("/customers/:email", RequirePortalToken(cfg.PortalToken), h.requireAPIKey)
	g.GET("", h.getCustomer)
	g.GET("/downloads", h.listDownloads)
	g.GET("/downloads/:id/stream", h.streamURL)
	g.POST("/downloads/:id/link", h.requestLink)
	g.GET("/downloads/:id/status", h.linkStatus)
}

type downloadsHandler struct {
	center DownloadCenter
	apiKey string
	log    *slog.Logger
}

func (h *downloadsHandler) requireAPIKey(c *gin.Context) {
	if h.apiKey == "" {
		h.log.Error("vendor API key is not configured", "request_id", c.GetString(requestIDKey))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server_configuration_error"})
		return
	}
	c.Next()
}

func (h *downloadsHandler) getCustomer(c *gin.Context) {
	customer, err := h.center.GetCustomer(c.Request.Context(), h.apiKey, c.Param("email"))
	if err != nil {
		h.vendorError(c, "get customer", err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (h *downloadsHandler) listDownloads(c *gin.Context) {
	downloads, err := h.center.ListDownloads(c.Request.Context(), h.apiKey, c.Param("email"))
	if err != nil {
		h.vendorError(c, "list downloads", err)
		return
	}
	if len(downloads) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no downloads found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"downloads": downloads})
}

func (h *downloadsHandler) streamURL(c *gin.Context) {
	u, err := h.center.GetVideoStreamURL(c.Request.Context(), h.apiKey, c.Param("email"), vendor.ProductID(c.Param("id")))
	if err != nil {
		h.vendorError(c, "get stream url", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": u})
}

func (h *downloadsHandler) requestLink(c *gin.Context) {
	st, err := h.center.RequestDownloadLink(c.Request.Context(), h.apiKey, c.Param("email"), vendor.ProductID(c.Param("id")))
	if err != nil {
		h.vendorError(c, "request download link", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *downloadsHandler) linkStatus(c *gin.Context) {
	st, err := h.center.GetDownloadLinkStatus(c.Request.Context(), h.apiKey, c.Param("email"), vendor.ProductID(c.Param("id")))
	if err != nil {
		h.vendorError(c, "get download link status", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// vendorError answers 502 for any vendor-side failure, passing the vendor's
// own reason through when it gave one.
func (h *downloadsHandler) vendorError(c *gin.Context, op string, err error) {
	h.log.Error("vendor call failed", "op", op, "request_id", c.GetString(requestIDKey), "error", err)

	var rejected *vendor.RejectedError
	var status *vendor.StatusError
	switch {
	case errors.As(err, &rejected):
		c.JSON(http.StatusBadGateway, gin.H{"error": "vendor_rejected", "detail": rejected.Reason})
	case errors.As(err, &status):
		c.JSON(http.StatusBadGateway, gin.H{"error": "vendor_status", "detail": status.Error()})
	case errors.Is(err, vendor.ErrMalformedReply):
		c.JSON(http.StatusBadGateway, gin.H{"error": "vendor_malformed_reply"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "vendor_unavailable"})
	}
}
