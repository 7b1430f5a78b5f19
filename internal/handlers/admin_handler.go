package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/shopify-download-relay/internal/validation"
	"github.com/imrishuroy/shopify-download-relay/internal/vendor"
)

// RegisterAdminRoutes registers manual order entry behind the portal token.
func RegisterAdminRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.PortalToken == "" {
		return
	}
	v := validation.New()

	admin := r.Group("/admin", RequirePortalToken(cfg.PortalToken))
	admin.POST("/orders", func(c *gin.Context) {
		var req validation.ManualOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		out := cfg.Relay.PlaceOrder(c.Request.Context(), vendor.OrderRequest{
			FirstName:  req.FirstName,
			LastName:   req.LastName,
			Email:      req.Email,
			ProductIDs: strings.Join(validation.SplitProductIDs(req.ProductIDs), ","),
		}, c.GetString(requestIDKey))

		c.JSON(out.Status(), gin.H{
			"status":  out.Kind.String(),
			"message": out.Body(),
		})
	})
}
