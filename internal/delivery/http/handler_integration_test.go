package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentimentiq/backend/config"
	"github.com/sentimentiq/backend/internal/browser"
	"github.com/sentimentiq/backend/internal/content"
	"github.com/sentimentiq/backend/internal/domain"
	"github.com/sentimentiq/backend/internal/extraction"
	"github.com/sentimentiq/backend/internal/infrastructure/monitoring"
	"github.com/sentimentiq/backend/internal/registry"
	"github.com/sentimentiq/backend/internal/storage"
	"github.com/sentimentiq/backend/internal/store"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type stubAnalyzer struct {
	mu     sync.Mutex
	result *domain.SentimentResult
	err    error
	calls  []domain.ProductMetadata
}

func (s *stubAnalyzer) Analyze(_ context.Context, p domain.ProductMetadata, _ string) (*domain.SentimentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, p)
	return s.result, s.err
}

type stubCheckout struct{ token string }

func (s *stubCheckout) Checkout(_ context.Context, token string) (string, error) {
	s.token = token
	return "https://checkout.test/session", nil
}

type testEnv struct {
	router   *gin.Engine
	area     *storage.MemoryArea
	store    *store.Store
	analyzer *stubAnalyzer
	checkout *stubCheckout
	metrics  *monitoring.Metrics
}

// setupTestRouter wires the full bridge over in-memory storage.
func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"chrome-extension://*", "http://localhost:3000"},
		},
		RateLimit: config.RateLimitConfig{PerIP: 0},
	}

	ctx, cancel := context.WithCancel(context.Background())
	area := storage.NewMemoryArea()
	tabs := browser.NewTabTracker()
	metrics := monitoring.NewMetrics()
	reg := registry.New(area, tabs, registry.WithMetrics(metrics))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = reg.Run(ctx)
	}()

	extractor := extraction.New(extraction.WithObserver(metrics.ObserveExtraction))
	scanners := content.NewManager(ctx, reg, extractor, content.NewMatcher(content.DefaultMatchPatterns), nil,
		content.WithInterval(time.Hour))
	st := store.New(ctx, area)

	env := &testEnv{
		area:     area,
		store:    st,
		analyzer: &stubAnalyzer{},
		checkout: &stubCheckout{},
		metrics:  metrics,
	}
	handler := NewHandler(Dependencies{
		Registry:  reg,
		Tabs:      tabs,
		Scanners:  scanners,
		Extractor: extractor,
		Storage:   area,
		Store:     st,
		Analyzer:  env.analyzer,
		Checkout:  env.checkout,
	})
	env.router = SetupRouter(cfg, handler, metrics, nil)

	t.Cleanup(func() {
		scanners.Close()
		st.Close()
		cancel()
		<-done
	})
	return env
}

func (e *testEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) slotName(t *testing.T) string {
	t.Helper()
	p := e.store.State().CurrentProduct
	if p == nil {
		return ""
	}
	return p.Name
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthCheckEndpoint(t *testing.T) {
	env := setupTestRouter(t)

	t.Run("returns healthy status", func(t *testing.T) {
		w := env.do(http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode(t, w)
		assert.Equal(t, "healthy", resp["status"])
		assert.Equal(t, "sentimentiq-backend", resp["service"])
		assert.NotEmpty(t, resp["version"])
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
			w := env.do(method, "/health", "")
			assert.Equal(t, http.StatusNotFound, w.Code, method)
		}
	})
}

func TestRuntimeMessageEndpoint(t *testing.T) {
	env := setupTestRouter(t)
	body := `{"type":"PRODUCT_DETECTED","payload":{"name":"SoundMaster Pro","brand":"Acme","url":"https://www.amazon.com/dp/B0"}}`

	t.Run("requires tab header", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/runtime/messages", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects unknown message type", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/runtime/messages", `{"type":"PING"}`, TabIDHeader, "1")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/runtime/messages", `{"type":`, TabIDHeader, "1")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("acknowledges and propagates for the active tab", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/api/v1/tabs/1/activated", `{"windowId":1}`).Code)

		w := env.do(http.MethodPost, "/api/v1/runtime/messages", body, TabIDHeader, "1")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decode(t, w)["success"])

		assert.Eventually(t, func() bool { return env.slotName(t) == "SoundMaster Pro" }, waitFor, tick)
	})

	t.Run("background tab does not touch the slot", func(t *testing.T) {
		other := `{"type":"PRODUCT_DETECTED","payload":{"name":"Other"}}`
		w := env.do(http.MethodPost, "/api/v1/runtime/messages", other, TabIDHeader, "2")
		require.Equal(t, http.StatusOK, w.Code)

		assert.Never(t, func() bool { return env.slotName(t) == "Other" }, 100*time.Millisecond, tick)

		// switching to tab 2 publishes its detection
		require.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/api/v1/tabs/2/activated", `{"windowId":1}`).Code)
		assert.Eventually(t, func() bool { return env.slotName(t) == "Other" }, waitFor, tick)
	})
}

func TestTabLifecycleEndpoints(t *testing.T) {
	env := setupTestRouter(t)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/tabs/abc/activated", "").Code)
	assert.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/api/v1/tabs/3/activated", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/tabs/3/updated", `{}`).Code)
	assert.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/api/v1/tabs/3/updated", `{"status":"complete","active":true}`).Code)
	assert.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/api/v1/windows/2/focused", "").Code)
	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/v1/tabs/3", "").Code)
}

func TestSnapshotEndpoint(t *testing.T) {
	env := setupTestRouter(t)
	page := `<html><head><script type="application/ld+json">{"@type":"Product","name":"Trail Shoe"}</script></head></html>`
	payload, err := json.Marshal(map[string]string{"url": "https://www.walmart.com/ip/1", "html": page})
	require.NoError(t, err)

	require.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/api/v1/tabs/9/activated", `{"windowId":4}`).Code)

	w := env.do(http.MethodPost, "/api/v1/tabs/9/snapshot", string(payload))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, decode(t, w)["attached"])
	assert.Eventually(t, func() bool { return env.slotName(t) == "Trail Shoe" }, waitFor, tick)

	w = env.do(http.MethodPost, "/api/v1/tabs/9/snapshot", `{"url":"https://example.org/","html":""}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, false, decode(t, w)["attached"])

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/tabs/9/snapshot", `{"html":"x"}`).Code)
}

func TestExtractEndpoint(t *testing.T) {
	env := setupTestRouter(t)

	tests := []struct {
		name         string
		url          string
		html         string
		wantStrategy string
		wantName     string
	}{
		{
			name:         "json-ld",
			url:          "https://shop.test/p/1",
			html:         `<script type="application/ld+json">{"@type":"Product","name":"Lamp"}</script>`,
			wantStrategy: "jsonld",
			wantName:     "Lamp",
		},
		{
			name:         "open graph",
			url:          "https://shop.test/p/2",
			html:         `<meta property="og:title" content=" Desk "><meta property="og:type" content="product">`,
			wantStrategy: "opengraph",
			wantName:     "Desk",
		},
		{
			name:         "title on marketplace",
			url:          "https://www.etsy.com/listing/1",
			html:         `<title>Ring - Etsy</title>`,
			wantStrategy: "title",
			wantName:     "Ring",
		},
		{
			name:         "nothing",
			url:          "https://blog.test/",
			html:         `<title>Post - Blog</title>`,
			wantStrategy: "none",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(map[string]string{"url": tt.url, "html": tt.html})
			require.NoError(t, err)

			w := env.do(http.MethodPost, "/api/v1/extract", string(payload))
			require.Equal(t, http.StatusOK, w.Code)

			resp := decode(t, w)
			assert.Equal(t, tt.wantStrategy, resp["strategy"])
			if tt.wantName == "" {
				assert.Nil(t, resp["product"])
				return
			}
			product, ok := resp["product"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.wantName, product["name"])
		})
	}
}

func TestStorageEndpoints(t *testing.T) {
	env := setupTestRouter(t)
	ctx := context.Background()
	require.NoError(t, env.area.Set(ctx, map[string]any{"scansUsed": 2, "userSessionId": "anon_1"}))

	w := env.do(http.MethodGet, "/api/v1/storage/local?keys=scansUsed,missing", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"scansUsed":2}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/v1/storage/local", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"scansUsed":2,"userSessionId":"anon_1"}`, w.Body.String())
}

func TestStorageWatchEndpoint(t *testing.T) {
	env := setupTestRouter(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/storage/local/watch"

	t.Run("rejects foreign origins", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.com"}})
		require.Error(t, err)
		if resp != nil {
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		}
	})

	t.Run("streams changes", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"chrome-extension://abc"}})
		require.NoError(t, err)
		defer conn.Close()

		// the subscription is registered after the upgrade; retry until one lands
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
		got := make(chan changeEvent, 1)
		go func() {
			var ev changeEvent
			if err := conn.ReadJSON(&ev); err == nil {
				got <- ev
			}
		}()

		var ev changeEvent
		require.Eventually(t, func() bool {
			_ = env.area.Set(context.Background(), map[string]any{"scansUsed": 1})
			select {
			case ev = <-got:
				return true
			default:
				return false
			}
		}, waitFor, 50*time.Millisecond)

		assert.Equal(t, storage.AreaLocal, ev.Area)
		assert.Equal(t, "scansUsed", ev.Key)
		assert.JSONEq(t, `1`, string(ev.NewValue))
	})
}

func TestStoreEndpoints(t *testing.T) {
	env := setupTestRouter(t)

	t.Run("state has defaults", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/store", "")
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode(t, w)
		assert.Nil(t, resp["currentProduct"])
		assert.Equal(t, float64(3), resp["dailyLimit"])
		assert.Equal(t, "HOME", resp["currentView"])
	})

	t.Run("analyze without product", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/store/analyze", "")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	require.NoError(t, env.area.Set(context.Background(), map[string]any{
		domain.KeyCurrentProduct: domain.ProductMetadata{Name: "SoundMaster Pro"},
	}))
	require.Eventually(t, func() bool { return env.slotName(t) == "SoundMaster Pro" }, waitFor, tick)

	t.Run("analyze quota exceeded", func(t *testing.T) {
		env.analyzer.err = domain.NewBackendError(http.StatusPaymentRequired, "")
		w := env.do(http.MethodPost, "/api/v1/store/analyze", "")
		assert.Equal(t, http.StatusPaymentRequired, w.Code)
		assert.Equal(t, "Quota exceeded. Please upgrade to Pro.", decode(t, w)["error"])
		assert.Empty(t, env.store.State().History)
	})

	t.Run("analyze success records history", func(t *testing.T) {
		env.analyzer.err = nil
		env.analyzer.result = &domain.SentimentResult{
			Score: 80, Label: domain.TrustHigh, Pros: []string{"loud"}, Cons: []string{},
		}
		w := env.do(http.MethodPost, "/api/v1/store/analyze", `{"token":"t0k"}`)
		require.Equal(t, http.StatusOK, w.Code)

		state := env.store.State()
		assert.Len(t, state.History, 1)
		assert.Equal(t, 1, state.ScansUsed)
		assert.Equal(t, "SoundMaster Pro", env.analyzer.calls[len(env.analyzer.calls)-1].Name)
	})

	t.Run("clear history", func(t *testing.T) {
		w := env.do(http.MethodDelete, "/api/v1/store/history", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, env.store.State().History)
	})

	t.Run("checkout forwards bearer token", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/subscription/checkout", "", "Authorization", "Bearer abc")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://checkout.test/session", decode(t, w)["url"])
		assert.Equal(t, "abc", env.checkout.token)
	})
}

func TestCORSIntegration(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(http.MethodGet, "/health", "", "Origin", "chrome-extension://abcdefghijklmnop")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "chrome-extension://abcdefghijklmnop", w.Header().Get("Access-Control-Allow-Origin"))

	w = env.do(http.MethodOptions, "/api/v1/runtime/messages", "", "Origin", "chrome-extension://abcdefghijklmnop")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestRouter(t)
	env.do(http.MethodGet, "/health", "")

	w := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `sentimentiq_http_requests_total{method="GET",route="/health",status="200"} 1`)
}
