package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sentimentiq/backend/internal/browser"
	"github.com/sentimentiq/backend/internal/content"
	"github.com/sentimentiq/backend/internal/domain"
	"github.com/sentimentiq/backend/internal/extraction"
	"github.com/sentimentiq/backend/internal/registry"
	"github.com/sentimentiq/backend/internal/store"
)

// TabIDHeader carries the sender tab of a runtime message.
const TabIDHeader = "X-Tab-ID"

// CheckoutClient starts a subscription checkout.
type CheckoutClient interface {
	Checkout(ctx context.Context, token string) (string, error)
}

// Dependencies are the components the handlers drive.
type Dependencies struct {
	Registry  *registry.Registry
	Tabs      *browser.TabTracker
	Scanners  *content.Manager
	Extractor *extraction.Extractor
	Storage   domain.StorageArea
	Store     *store.Store
	Analyzer  domain.Analyzer
	Checkout  CheckoutClient
	Logger    *zap.Logger
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	deps   Dependencies
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Extractor == nil {
		deps.Extractor = extraction.New()
	}
	return &Handler{deps: deps, logger: logger.Named("http")}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "sentimentiq-backend",
		"version": "1.0.0",
	})
}

// HandleRuntimeMessage delivers a content script message to the registry.
func (h *Handler) HandleRuntimeMessage(c *gin.Context) {
	tabID, err := strconv.Atoi(c.GetHeader(TabIDHeader))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid " + TabIDHeader + " header"})
		return
	}

	var msg domain.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message body"})
		return
	}

	resp, err := h.deps.Registry.HandleMessage(c.Request.Context(), tabID, msg)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type tabActivatedRequest struct {
	WindowID int `json:"windowId"`
}

// TabActivated records the new active tab and republishes its detection.
func (h *Handler) TabActivated(c *gin.Context) {
	tabID, ok := pathID(c)
	if !ok {
		return
	}
	var req tabActivatedRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	h.deps.Tabs.Activate(tabID, req.WindowID)
	if err := h.deps.Registry.TabActivated(c.Request.Context(), tabID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type tabUpdatedRequest struct {
	Status string `json:"status" binding:"required"`
	Active bool   `json:"active"`
}

// TabUpdated republishes the detection of an active tab that finished loading.
func (h *Handler) TabUpdated(c *gin.Context) {
	tabID, ok := pathID(c)
	if !ok {
		return
	}
	var req tabUpdatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.deps.Registry.TabUpdated(c.Request.Context(), tabID, req.Status, req.Active); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TabRemoved forgets a closed tab.
func (h *Handler) TabRemoved(c *gin.Context) {
	tabID, ok := pathID(c)
	if !ok {
		return
	}

	h.deps.Tabs.Remove(tabID)
	if h.deps.Scanners != nil {
		h.deps.Scanners.Detach(tabID)
	}
	if err := h.deps.Registry.TabRemoved(c.Request.Context(), tabID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// WindowFocused records the focused browser window.
func (h *Handler) WindowFocused(c *gin.Context) {
	windowID, ok := pathID(c)
	if !ok {
		return
	}
	h.deps.Tabs.Focus(windowID)
	c.Status(http.StatusNoContent)
}

type pageRequest struct {
	URL  string `json:"url" binding:"required,url"`
	HTML string `json:"html"`
}

// PushSnapshot hands a tab's DOM snapshot to its content scanner.
func (h *Handler) PushSnapshot(c *gin.Context) {
	tabID, ok := pathID(c)
	if !ok {
		return
	}
	var req pageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	if h.deps.Scanners == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "content scanning disabled"})
		return
	}

	attached := h.deps.Scanners.Push(tabID, req.URL, req.HTML)
	c.JSON(http.StatusAccepted, gin.H{"attached": attached})
}

// Extract runs the extraction cascade over posted HTML.
func (h *Handler) Extract(c *gin.Context) {
	var req pageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	res := h.deps.Extractor.ExtractHTML(strings.NewReader(req.HTML), req.URL)
	c.JSON(http.StatusOK, gin.H{
		"product":  res.Product,
		"strategy": res.Strategy,
	})
}

// GetStorage reads keys from the local area. Without keys it returns everything.
func (h *Handler) GetStorage(c *gin.Context) {
	var keys []string
	if raw := c.Query("keys"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}

	values, err := h.deps.Storage.Get(c.Request.Context(), keys...)
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		out[k] = v
	}
	c.JSON(http.StatusOK, out)
}

// GetState returns the UI store snapshot.
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Store.State())
}

type analyzeRequest struct {
	Token string `json:"token"`
}

// Analyze runs sentiment analysis on the current product.
func (h *Handler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	token := req.Token
	if token == "" {
		token = bearerToken(c)
	}

	result, err := h.deps.Store.Analyze(c.Request.Context(), h.deps.Analyzer, token)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ClearHistory empties the persisted analysis history.
func (h *Handler) ClearHistory(c *gin.Context) {
	if err := h.deps.Store.ClearHistory(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Checkout starts a Pro subscription checkout and returns its URL.
func (h *Handler) Checkout(c *gin.Context) {
	if h.deps.Checkout == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "checkout not configured"})
		return
	}
	url, err := h.deps.Checkout.Checkout(c.Request.Context(), bearerToken(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// respondError maps domain errors to status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var be *domain.BackendError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoProduct):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &be) && be.Status >= 400 && be.Status < 500:
		status = be.Status
	case errors.Is(err, domain.ErrBackendFailure), errors.Is(err, domain.ErrInvalidResponse):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrRegistryClosed), errors.Is(err, domain.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		h.logger.Warn("request failed",
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": domain.UserMessage(err)})
}

func pathID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
