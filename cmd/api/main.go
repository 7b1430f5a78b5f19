package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/shopify-download-relay/internal/aws"
	"github.com/imrishuroy/shopify-download-relay/internal/config"
	"github.com/imrishuroy/shopify-download-relay/internal/fulfillments"
	"github.com/imrishuroy/shopify-download-relay/internal/handlers"
	"github.com/imrishuroy/shopify-download-relay/internal/idempotency"
	"github.com/imrishuroy/shopify-download-relay/internal/logger"
	"github.com/imrishuroy/shopify-download-relay/internal/metrics"
	"github.com/imrishuroy/shopify-download-relay/internal/relay"
	"github.com/imrishuroy/shopify-download-relay/internal/vendor"
)

func setupRouter(cfg handlers.HandlerConfig, rec *metrics.Recorder, exposeMetrics bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestID(), handlers.AccessLog(cfg.Logger), rec.Middleware())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if exposeMetrics {
		r.GET("/metrics", gin.WrapH(rec.Handler()))
	}

	handlers.RegisterWebhookRoutes(r, cfg)
	handlers.RegisterAdminRoutes(r, cfg)
	handlers.RegisterDownloadRoutes(r, cfg)

	return r
}

// buildRelay wires the optional AWS-backed collaborators that the
// configuration enables.
func buildRelay(ctx context.Context, cfg config.Config, client *vendor.Client, log *slog.Logger) (*relay.Relay, *metrics.Recorder, error) {
	opts := []relay.Option{relay.WithLogger(log)}

	var clients *aws.AWSClients
	if cfg.IdempotencyTable != "" || cfg.EventsQueueURL != "" || cfg.MetricsNamespace != "" {
		var err error
		clients, err = aws.NewAWSClients(ctx)
		if err != nil {
			return nil, nil, err
		}
	}

	var sink metrics.CloudSink
	if cfg.MetricsNamespace != "" {
		sink = aws.NewMetricPublisher(clients.CloudWatch, cfg.MetricsNamespace)
	}
	rec := metrics.New(sink, log)
	opts = append(opts, relay.WithMetrics(rec))

	if cfg.IdempotencyTable != "" {
		store := idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.TTLWindow, cfg.LeaseWindow)
		opts = append(opts, relay.WithGuard(idempotency.NewGuard(store)))
	}
	if cfg.EventsQueueURL != "" {
		publisher := aws.NewPublisher(clients.SQS, cfg.EventsQueueURL)
		opts = append(opts, relay.WithNotifier(fulfillments.NewNotifier(publisher)))
	}

	r := relay.New(relay.Config{
		APIKey:        cfg.VendorAPIKey,
		WebhookSecret: cfg.WebhookSecret,
	}, client, opts...)
	return r, rec, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	if cfg.VendorAPIKey == "" {
		// not fatal: every relay answers 500 until the key is deployed
		log.Warn("vendor API key is not set")
	}

	client := vendor.NewClient(cfg.VendorBaseURL, cfg.VendorTimeout, vendor.WithEncoding(cfg.VendorFormEncoding))

	rl, rec, err := buildRelay(context.Background(), cfg, client, log)
	if err != nil {
		log.Error("failed to init aws clients", "error", err)
		os.Exit(1)
	}

	r := setupRouter(handlers.HandlerConfig{
		Relay:       rl,
		Downloads:   client,
		APIKey:      cfg.VendorAPIKey,
		PortalToken: cfg.PortalToken,
		Logger:      log,
	}, rec, cfg.RunLocal)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.RunLocal {
		addr := ":" + cfg.Port
		log.Info("running local server", "addr", addr)
		if err := r.Run(addr); err != nil {
			log.Error("failed to run local server", "error", err)
			os.Exit(1)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
