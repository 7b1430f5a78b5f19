package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/davecgh/go-spew/spew"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/shopify-download-relay/internal/relay"
	"github.com/imrishuroy/shopify-download-relay/internal/vendor"
)

// --- fakes ---

type stubVendor struct {
	mu    sync.Mutex
	calls []vendor.OrderRequest
	resp  vendor.Response
}

func (s *stubVendor) AddOrder(ctx context.Context, req vendor.OrderRequest) (vendor.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	return s.resp, nil
}

type stubCenter struct {
	downloads []vendor.Download
	err       error
	lastEmail string
	lastID    vendor.ProductID
}

func (s *stubCenter) GetCustomer(ctx context.Context, apiKey, email string) (map[string]json.RawMessage, error) {
	s.lastEmail = email
	if s.err != nil {
		return nil, s.err
	}
	return map[string]json.RawMessage{"Email": json.RawMessage(`"` + email + `"`)}, nil
}

func (s *stubCenter) ListDownloads(ctx context.Context, apiKey, email string) ([]vendor.Download, error) {
	s.lastEmail = email
	return s.downloads, s.err
}

func (s *stubCenter) GetVideoStreamURL(ctx context.Context, apiKey, email string, id vendor.ProductID) (string, error) {
	s.lastEmail, s.lastID = email, id
	if s.err != nil {
		return "", s.err
	}
	return "https://stream.example/" + string(id), nil
}

func (s *stubCenter) RequestDownloadLink(ctx context.Context, apiKey, email string, id vendor.ProductID) (vendor.DownloadStatus, error) {
	s.lastEmail, s.lastID = email, id
	return vendor.DownloadStatus{Status: vendor.LinkQueued}, s.err
}

func (s *stubCenter) GetDownloadLinkStatus(ctx context.Context, apiKey, email string, id vendor.ProductID) (vendor.DownloadStatus, error) {
	s.lastEmail, s.lastID = email, id
	return vendor.DownloadStatus{Status: vendor.LinkReady, PercentComplete: 100, DownloadLink: "https://dl.example/x"}, s.err
}

// --- helpers ---

const token = "portal-secret"

func newRouter(cfg HandlerConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	RegisterWebhookRoutes(r, cfg)
	RegisterAdminRoutes(r, cfg)
	RegisterDownloadRoutes(r, cfg)
	return r
}

func do(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var portal = map[string]string{PortalTokenHeader: token, "Content-Type": "application/json"}

// --- webhook ---

func TestWebhook_Success(t *testing.T) {
	sv := &stubVendor{resp: vendor.Response{StatusCode: http.StatusOK, Body: `{"message":"success"}`}}
	r := newRouter(HandlerConfig{Relay: relay.New(relay.Config{APIKey: "k"}, sv)})

	body := `{"order_number":1001,"customer":{"email":"a@b.com","first_name":"Ann"},"line_items":[{"sku":"45234"},{"sku":""},{"sku":"34555"}]}`
	w := do(r, http.MethodPost, WebhookPath, body, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Webhook processed successfully.", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	require.Len(t, sv.calls, 1, spew.Sdump(sv.calls))
	assert.Equal(t, "45234,34555", sv.calls[0].ProductIDs)
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	sv := &stubVendor{}
	r := newRouter(HandlerConfig{Relay: relay.New(relay.Config{APIKey: "k"}, sv)})

	for _, path := range []string{WebhookPath, LegacyWebhookPath} {
		w := do(r, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
		assert.Equal(t, "Method Not Allowed", w.Body.String())
	}
	assert.Empty(t, sv.calls)
}

func TestWebhook_MethodIsCheckedBeforeBody(t *testing.T) {
	sv := &stubVendor{}
	r := newRouter(HandlerConfig{Relay: relay.New(relay.Config{APIKey: "k"}, sv)})

	req := httptest.NewRequest(http.MethodGet, WebhookPath, iotest.ErrReader(errors.New("connection reset")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
	assert.Empty(t, sv.calls)
}

func TestWebhook_BodyErrors(t *testing.T) {
	sv := &stubVendor{}
	r := newRouter(HandlerConfig{Relay: relay.New(relay.Config{APIKey: "k"}, sv)})

	w := do(r, http.MethodPost, WebhookPath, strings.Repeat(" ", maxWebhookBytes+1), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "Payload too large", w.Body.String())

	req := httptest.NewRequest(http.MethodPost, WebhookPath, iotest.ErrReader(errors.New("connection reset")))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid payload", w.Body.String())

	assert.Empty(t, sv.calls)
}

func TestWebhook_StatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		apiKey string
		vendor vendor.Response
		body   string
		status int
		text   string
	}{
		{"missing key", "", vendor.Response{}, `{}`, http.StatusInternalServerError, "Server configuration error."},
		{"bad payload", "k", vendor.Response{}, `{"customer":{}}`, http.StatusBadRequest, "Invalid payload"},
		{"nothing to do", "k", vendor.Response{}, `{"customer":{},"line_items":[]}`, http.StatusOK, "No products to process."},
		{
			"vendor error", "k",
			vendor.Response{StatusCode: http.StatusOK, Body: `{"error":"Invalid product ID"}`},
			`{"customer":{"email":"a@b.com"},"line_items":[{"sku":"1"}]}`,
			http.StatusInternalServerError, "Invalid product ID",
		},
		{
			"vendor down", "k",
			vendor.Response{StatusCode: http.StatusServiceUnavailable, Body: "busy"},
			`{"customer":{"email":"a@b.com"},"line_items":[{"sku":"1"}]}`,
			http.StatusInternalServerError, "503",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sv := &stubVendor{resp: tc.vendor}
			r := newRouter(HandlerConfig{Relay: relay.New(relay.Config{APIKey: tc.apiKey}, sv)})

			w := do(r, http.MethodPost, LegacyWebhookPath, tc.body, nil)

			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.text)
		})
	}
}

func TestWebhook_SignatureHeader(t *testing.T) {
	sv := &stubVendor{resp: vendor.Response{StatusCode: http.StatusOK, Body: `{"message":"success"}`}}
	r := newRouter(HandlerConfig{Relay: relay.New(relay.Config{APIKey: "k", WebhookSecret: "s"}, sv)})
	body := `{"customer":{"email":"a@b.com"},"line_items":[{"sku":"1"}]}`

	w := do(r, http.MethodPost, WebhookPath, body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, WebhookPath, body, map[string]string{relay.SignatureHeader: relay.Sign("s", []byte(body))})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, sv.calls, 1)
}

// --- admin ---

func TestAdminOrders(t *testing.T) {
	sv := &stubVendor{resp: vendor.Response{StatusCode: http.StatusOK, Body: `{"message":"success"}`}}
	r := newRouter(HandlerConfig{Relay: relay.New(relay.Config{APIKey: "k"}, sv), PortalToken: token})

	body := `{"first_name":"Ann","last_name":"Lee","email":"a@b.com","product_ids":" 1, 2 "}`

	w := do(r, http.MethodPost, "/admin/orders", body, map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/admin/orders", body, portal)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	require.Len(t, sv.calls, 1)
	assert.Equal(t, "1,2", sv.calls[0].ProductIDs)
	assert.Equal(t, "Lee", sv.calls[0].LastName)
}

func TestAdminOrders_Validation(t *testing.T) {
	sv := &stubVendor{}
	r := newRouter(HandlerConfig{Relay: relay.New(relay.Config{APIKey: "k"}, sv), PortalToken: token})

	w := do(r, http.MethodPost, "/admin/orders", `{"first_name":"Ann","last_name":"Lee","email":"nope","product_ids":"1,,2"}`, portal)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_failed")
	assert.Empty(t, sv.calls)
}

func TestAdminOrders_DisabledWithoutToken(t *testing.T) {
	r := newRouter(HandlerConfig{Relay: relay.New(relay.Config{APIKey: "k"}, &stubVendor{})})

	w := do(r, http.MethodPost, "/admin/orders", `{}`, portal)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- downloads ---

func TestDownloads_List(t *testing.T) {
	center := &stubCenter{downloads: []vendor.Download{{ID: "45234", Name: "Trick", Type: "Video"}}}
	r := newRouter(HandlerConfig{Downloads: center, APIKey: "k", PortalToken: token})

	w := do(r, http.MethodGet, "/customers/a@b.com/downloads", "", portal)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "a@b.com", center.lastEmail)
	var resp struct {
		Downloads []vendor.Download `json:"downloads"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, center.downloads, resp.Downloads)
}

func TestDownloads_Empty(t *testing.T) {
	r := newRouter(HandlerConfig{Downloads: &stubCenter{}, APIKey: "k", PortalToken: token})

	w := do(r, http.MethodGet, "/customers/a@b.com/downloads", "", portal)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloads_VendorErrors(t *testing.T) {
	cases := map[string]struct {
		err  error
		code string
	}{
		"rejected":  {&vendor.RejectedError{Reason: "Unknown customer"}, "vendor_rejected"},
		"status":    {&vendor.StatusError{StatusCode: 500, Body: "boom"}, "vendor_status"},
		"malformed": {vendor.ErrMalformedReply, "vendor_malformed_reply"},
		"transport": {errors.New("connection reset"), "vendor_unavailable"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := newRouter(HandlerConfig{Downloads: &stubCenter{err: tc.err}, APIKey: "k", PortalToken: token})

			w := do(r, http.MethodGet, "/customers/a@b.com", "", portal)

			assert.Equal(t, http.StatusBadGateway, w.Code)
			assert.Contains(t, w.Body.String(), tc.code)
		})
	}
}

func TestDownloads_LinkRoutes(t *testing.T) {
	center := &stubCenter{}
	r := newRouter(HandlerConfig{Downloads: center, APIKey: "k", PortalToken: token})

	w := do(r, http.MethodGet, "/customers/a@b.com/downloads/77/stream", "", portal)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"url":"https://stream.example/77"}`, w.Body.String())

	w = do(r, http.MethodPost, "/customers/a@b.com/downloads/77/link", "", portal)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Status":"queued"`)

	w = do(r, http.MethodGet, "/customers/a@b.com/downloads/77/status", "", portal)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"DownloadLink":"https://dl.example/x"`)
	assert.Equal(t, vendor.ProductID("77"), center.lastID)
}

func TestDownloads_MissingAPIKey(t *testing.T) {
	r := newRouter(HandlerConfig{Downloads: &stubCenter{}, PortalToken: token})

	w := do(r, http.MethodGet, "/customers/a@b.com/downloads", "", portal)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestID_Echoed(t *testing.T) {
	r := newRouter(HandlerConfig{Relay: relay.New(relay.Config{}, &stubVendor{})})

	w := do(r, http.MethodGet, WebhookPath, "", map[string]string{RequestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}
