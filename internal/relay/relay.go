package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/imrishuroy/shopify-download-relay/internal/fulfillments"
	"github.com/imrishuroy/shopify-download-relay/internal/idempotency"
	"github.com/imrishuroy/shopify-download-relay/internal/logger"
	"github.com/imrishuroy/shopify-download-relay/internal/validation"
	"github.com/imrishuroy/shopify-download-relay/internal/vendor"
)

// Stage names used in log lines.
const (
	StageMethodChecked      = "method_checked"
	StageConfigChecked      = "config_checked"
	StageSignatureVerified  = "signature_verified"
	StagePayloadValidated   = "payload_validated"
	StageIdentifiersDerived = "identifiers_derived"
	StageDeliveryClaimed    = "delivery_claimed"
	StageVendorCalled       = "vendor_called"
	StageClassified         = "classified"
)

// VendorEndpoint labels vendor latency observations.
const VendorEndpoint = "AddOrder"

// Vendor creates orders in the download center.
type Vendor interface {
	AddOrder(ctx context.Context, req vendor.OrderRequest) (vendor.Response, error)
}

// Guard deduplicates webhook redeliveries.
type Guard interface {
	Begin(ctx context.Context, key, orderNumber string) (idempotency.Verdict, error)
	Complete(ctx context.Context, key string, status int, body string) error
	Fail(ctx context.Context, key, note string) error
}

// Notifier publishes one event per classified relay attempt.
type Notifier interface {
	Notify(ctx context.Context, ev fulfillments.Event) error
}

// Metrics observes outcomes and vendor latency.
type Metrics interface {
	ObserveOutcome(ctx context.Context, outcome string)
	ObserveVendorCall(ctx context.Context, endpoint string, d time.Duration)
}

// Config is the process-wide configuration the relay reads per call.
type Config struct {
	APIKey        string
	WebhookSecret string // empty disables signature verification
}

// Request is one inbound webhook delivery, stripped of transport details.
type Request struct {
	Method     string
	Body       []byte
	Signature  string
	DeliveryID string
	RequestID  string
}

// Relay turns an order webhook into a single vendor AddOrder call.
type Relay struct {
	cfg      Config
	vendor   Vendor
	validate *validatorv10.Validate
	log      *slog.Logger
	guard    Guard
	notifier Notifier
	metrics  Metrics
	now      func() time.Time
	newID    func() string
}

// Option configures a Relay.
type Option func(*Relay)

func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.log = l }
}

// WithGuard enables redelivery deduplication keyed by Request.DeliveryID.
func WithGuard(g Guard) Option {
	return func(r *Relay) { r.guard = g }
}

func WithNotifier(n Notifier) Option {
	return func(r *Relay) { r.notifier = n }
}

func WithMetrics(m Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// New returns a Relay calling v with cfg.
func New(cfg Config, v Vendor, opts ...Option) *Relay {
	r := &Relay{
		cfg:      cfg,
		vendor:   v,
		validate: validation.New(),
		log:      logger.Discard(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// invocation is the state threaded through the stages of one Handle call.
type invocation struct {
	req         Request
	log         *slog.Logger
	event       validation.OrderEvent
	orderNumber string
	productIDs  string
	deliveryKey string // set once the guard has claimed the delivery
}

// stage either finishes the invocation with an Outcome or lets it continue.
type stage func(ctx context.Context, inv *invocation) (Outcome, bool)

// Handle runs one delivery through the stages and returns its outcome. It
// never returns an error; every failure is an Outcome.
func (r *Relay) Handle(ctx context.Context, req Request) Outcome {
	inv := &invocation{
		req:         req,
		orderNumber: validation.UnknownOrderNumber,
		log:         r.log.With("request_id", req.RequestID),
	}

	stages := []stage{
		r.checkMethod,
		r.checkConfig,
		r.verifySignature,
		r.validatePayload,
		r.deriveIdentifiers,
		r.claimDelivery,
		r.callVendor,
	}
	var out Outcome
	for _, s := range stages {
		var done bool
		if out, done = s(ctx, inv); done {
			break
		}
	}
	out.OrderNumber = inv.orderNumber
	out.ProductIDs = inv.productIDs

	// From here on the vendor may already hold the order, so bookkeeping
	// must not be cut short by the caller going away.
	r.finish(context.WithoutCancel(ctx), inv, out)
	return out
}

func (r *Relay) checkMethod(_ context.Context, inv *invocation) (Outcome, bool) {
	if inv.req.Method != http.MethodPost {
		inv.log.Warn("rejected non-POST request", "stage", StageMethodChecked, "method", inv.req.Method)
		return Outcome{Kind: MethodNotAllowed}, true
	}
	inv.log.Debug("method accepted", "stage", StageMethodChecked)
	return Outcome{}, false
}

func (r *Relay) checkConfig(_ context.Context, inv *invocation) (Outcome, bool) {
	if r.cfg.APIKey == "" {
		inv.log.Error("vendor API key is not configured", "stage", StageConfigChecked)
		return Outcome{Kind: ConfigurationMissing, Reason: "vendor API key is not configured"}, true
	}
	inv.log.Debug("configuration present", "stage", StageConfigChecked, "api_key", logger.Redact(r.cfg.APIKey))
	return Outcome{}, false
}

func (r *Relay) verifySignature(_ context.Context, inv *invocation) (Outcome, bool) {
	if r.cfg.WebhookSecret == "" {
		return Outcome{}, false
	}
	if !VerifySignature(r.cfg.WebhookSecret, inv.req.Body, inv.req.Signature) {
		inv.log.Warn("webhook signature mismatch", "stage", StageSignatureVerified)
		return Outcome{Kind: SignatureInvalid, Reason: "signature mismatch"}, true
	}
	inv.log.Debug("webhook signature verified", "stage", StageSignatureVerified)
	return Outcome{}, false
}

func (r *Relay) validatePayload(_ context.Context, inv *invocation) (Outcome, bool) {
	ev, err := validation.DecodeOrderEvent(inv.req.Body, r.validate)
	inv.orderNumber = ev.OrderNumber.OrDefault()
	inv.log = inv.log.With("order_number", inv.orderNumber)
	if err != nil {
		inv.log.Warn("invalid order payload", "stage", StagePayloadValidated, "error", err)
		return Outcome{Kind: ValidationFailed, Reason: err.Error()}, true
	}
	inv.event = ev
	inv.log.Info("order received",
		"stage", StagePayloadValidated,
		"email", ev.Customer.Email,
		"line_items", len(ev.LineItems),
	)
	return Outcome{}, false
}

func (r *Relay) deriveIdentifiers(_ context.Context, inv *invocation) (Outcome, bool) {
	inv.productIDs = DeriveProductIDs(inv.event.LineItems)
	if inv.productIDs == "" {
		inv.log.Info("order has no items with a SKU, nothing to relay", "stage", StageIdentifiersDerived)
		return Outcome{Kind: NoFulfillableItems}, true
	}
	inv.log.Info("derived vendor product ids", "stage", StageIdentifiersDerived, "product_ids", inv.productIDs)
	return Outcome{}, false
}

func (r *Relay) claimDelivery(ctx context.Context, inv *invocation) (Outcome, bool) {
	if r.guard == nil || inv.req.DeliveryID == "" {
		return Outcome{}, false
	}
	verdict, err := r.guard.Begin(ctx, inv.req.DeliveryID, inv.orderNumber)
	if err != nil {
		inv.log.Error("delivery guard unavailable, relaying unguarded",
			"stage", StageDeliveryClaimed, "delivery_id", inv.req.DeliveryID, "error", err)
		return Outcome{}, false
	}
	switch verdict.Decision {
	case idempotency.Duplicate:
		inv.log.Info("delivery already relayed", "stage", StageDeliveryClaimed, "delivery_id", inv.req.DeliveryID)
		return Outcome{Kind: DuplicateDelivery}, true
	case idempotency.InFlight:
		inv.log.Warn("delivery in progress elsewhere", "stage", StageDeliveryClaimed, "delivery_id", inv.req.DeliveryID)
		return Outcome{Kind: DeliveryInProgress}, true
	}
	inv.deliveryKey = inv.req.DeliveryID
	return Outcome{}, false
}

func (r *Relay) callVendor(ctx context.Context, inv *invocation) (Outcome, bool) {
	c := inv.event.Customer
	req := vendor.OrderRequest{
		APIKey:     r.cfg.APIKey,
		FirstName:  c.FirstName,
		LastName:   c.LastName,
		Email:      c.Email,
		ProductIDs: inv.productIDs,
	}

	inv.log.Info("calling vendor", "stage", StageVendorCalled)
	start := r.now()
	resp, err := r.vendor.AddOrder(context.WithoutCancel(ctx), req)
	elapsed := r.now().Sub(start)
	if r.metrics != nil {
		r.metrics.ObserveVendorCall(context.WithoutCancel(ctx), VendorEndpoint, elapsed)
	}
	if err != nil {
		inv.log.Error("vendor call failed", "stage", StageVendorCalled, "error", err, "duration_ms", elapsed.Milliseconds())
	} else {
		inv.log.Info("vendor responded",
			"stage", StageVendorCalled,
			"status", resp.StatusCode,
			"body", resp.Body,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	return Classify(resp, err), true
}

// PlaceOrder relays a manually entered order. It skips the webhook stages
// but shares the configuration gate, the vendor call and its classification.
func (r *Relay) PlaceOrder(ctx context.Context, req vendor.OrderRequest, requestID string) Outcome {
	inv := &invocation{
		orderNumber: "manual",
		productIDs:  req.ProductIDs,
		log:         r.log.With("request_id", requestID, "order_number", "manual"),
		event: validation.OrderEvent{
			Customer: &validation.Customer{Email: req.Email, FirstName: req.FirstName, LastName: req.LastName},
		},
	}
	inv.req.RequestID = requestID

	out, done := r.checkConfig(ctx, inv)
	if !done {
		out, _ = r.callVendor(ctx, inv)
	}
	out.OrderNumber = inv.orderNumber
	out.ProductIDs = inv.productIDs
	r.finish(context.WithoutCancel(ctx), inv, out)
	return out
}

// Classify interprets one AddOrder exchange.
func Classify(resp vendor.Response, err error) Outcome {
	if errors.Is(err, vendor.ErrReplyTooLarge) {
		return Outcome{Kind: VendorResponseMalformed, Reason: err.Error()}
	}
	if err != nil {
		return Outcome{Kind: VendorUnreachable, Reason: err.Error()}
	}
	reply := vendor.ParseReply(resp.Body)
	if !resp.OK() {
		if reply.Kind == vendor.ReplyError {
			return Outcome{Kind: VendorRejected, Reason: reply.Error}
		}
		return Outcome{Kind: VendorUnreachable, Reason: fmt.Sprintf("status %d - %s", resp.StatusCode, resp.Body)}
	}
	switch reply.Kind {
	case vendor.ReplyMalformed:
		return Outcome{Kind: VendorResponseMalformed, Reason: resp.Body}
	case vendor.ReplyError:
		return Outcome{Kind: VendorRejected, Reason: reply.Error}
	case vendor.ReplyUnrecognized:
		return Outcome{Kind: Success, Anomalous: true, Reason: resp.Body}
	default:
		return Outcome{Kind: Success}
	}
}

// DeriveProductIDs joins the non-empty SKUs in line order.
func DeriveProductIDs(items []validation.LineItem) string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it.SKU != "" {
			ids = append(ids, it.SKU)
		}
	}
	return strings.Join(ids, ",")
}

func (r *Relay) finish(ctx context.Context, inv *invocation, out Outcome) {
	log := inv.log.With("stage", StageClassified, "outcome", out.Kind.String(), "status", out.Status())
	switch {
	case out.Failed():
		log.Error("relay failed", "reason", out.Reason)
	case out.Anomalous:
		log.Warn("vendor reply did not carry the success message, treating as success", "body", out.Reason)
	default:
		log.Info("relay finished")
	}

	if inv.deliveryKey != "" {
		var err error
		if out.Failed() {
			err = r.guard.Fail(ctx, inv.deliveryKey, out.Kind.String()+": "+out.Reason)
		} else {
			err = r.guard.Complete(ctx, inv.deliveryKey, out.Status(), out.Body())
		}
		if err != nil {
			log.Error("failed to record delivery result", "delivery_id", inv.deliveryKey, "error", err)
		}
	}

	if r.metrics != nil {
		r.metrics.ObserveOutcome(ctx, out.Kind.String())
	}

	// Only orders that got past validation are worth auditing. A replayed or
	// concurrent delivery belongs to the attempt that owns the key.
	if r.notifier == nil || inv.event.Customer == nil {
		return
	}
	if out.Kind == DuplicateDelivery || out.Kind == DeliveryInProgress {
		return
	}
	ev := fulfillments.Event{
		EventID:     r.newID(),
		RequestID:   inv.req.RequestID,
		OrderNumber: inv.orderNumber,
		Outcome:     out.Kind.String(),
		Status:      recordStatus(out),
		ProductIDs:  inv.productIDs,
		HTTPStatus:  out.Status(),
		OccurredAt:  r.now().UTC(),
	}
	if out.Failed() || out.Anomalous {
		ev.Reason = out.Reason
	}
	if err := r.notifier.Notify(ctx, ev); err != nil {
		log.Error("failed to publish fulfillment event", "event_id", ev.EventID, "error", err)
	}
}

func recordStatus(out Outcome) string {
	switch {
	case out.Failed():
		return fulfillments.StatusFailed
	case out.Kind == Success:
		return fulfillments.StatusRelayed
	default:
		return fulfillments.StatusSkipped
	}
}
