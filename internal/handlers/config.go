package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/imrishuroy/shopify-download-relay/internal/relay"
	"github.com/imrishuroy/shopify-download-relay/internal/vendor"
)

// DownloadCenter is the read side of the vendor API used by the portal routes.
type DownloadCenter interface {
	GetCustomer(ctx context.Context, apiKey, email string) (map[string]json.RawMessage, error)
	ListDownloads(ctx context.Context, apiKey, email string) ([]vendor.Download, error)
	GetVideoStreamURL(ctx context.Context, apiKey, email string, id vendor.ProductID) (string, error)
	RequestDownloadLink(ctx context.Context, apiKey, email string, id vendor.ProductID) (vendor.DownloadStatus, error)
	GetDownloadLinkStatus(ctx context.Context, apiKey, email string, id vendor.ProductID) (vendor.DownloadStatus, error)
}

// HandlerConfig groups dependencies for the HTTP routes.
type HandlerConfig struct {
	Relay       *relay.Relay
	Downloads   DownloadCenter
	APIKey      string
	PortalToken string // empty disables the admin and download routes
	Logger      *slog.Logger
}
