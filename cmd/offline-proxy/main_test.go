package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/offline-cache/internal/testutil"
	"github.com/Sternrassler/offline-cache/pkg/config"
	"github.com/Sternrassler/offline-cache/pkg/lifecycle"
	"github.com/rs/zerolog"
)

// newTestApp runs the proxy against a mock origin with a two-entry manifest.
func newTestApp(t *testing.T, origin *testutil.MockOrigin) *app {
	t.Helper()

	cfg := config.Default()
	cfg.Origin = origin.URL()
	cfg.Cache.Manifest = []string{"/", "/index.html"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	a, err := newApp(context.Background(), cfg, http.DefaultTransport, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func serve(h http.Handler, method, target string, body io.Reader, header http.Header) *http.Response {
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}

func readAll(resp *http.Response) string {
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if body := readAll(resp); body != "OK" {
		t.Errorf("Expected body 'OK', got %s", body)
	}
}

func TestReadyEndpoint(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/index.html", testutil.NewPageResponse("<html>shell</html>"))

	a := newTestApp(t, origin)
	router := a.adminRouter()

	t.Run("not_ready_before_install", func(t *testing.T) {
		resp := serve(router, "GET", "/ready", nil, nil)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", resp.StatusCode)
		}
	})

	if err := a.install(context.Background()); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	t.Run("ready", func(t *testing.T) {
		resp := serve(router, "GET", "/ready", nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}
	})
}

func TestInstallFailure_KeepsPassThrough(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/index.html", testutil.NewNotFoundResponse())

	a := newTestApp(t, origin)
	if err := a.install(context.Background()); err == nil {
		t.Fatal("install should fail when a manifest entry is 404")
	}
	if a.registration.Active() != nil {
		t.Fatal("failed install must not activate")
	}

	// Without an active generation the proxy forwards to the origin
	resp := serve(a.proxyRouter(), "GET", "/orders", nil, nil)
	if body := readAll(resp); body != "origin:/orders" {
		t.Errorf("body = %q, want origin pass-through", body)
	}
}

func TestProxy_OfflineNavigation(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/index.html", testutil.NewPageResponse("<html>shell</html>"))

	a := newTestApp(t, origin)
	if err := a.install(context.Background()); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	router := a.proxyRouter()
	nav := http.Header{"Sec-Fetch-Mode": []string{"navigate"}}

	resp := serve(router, "GET", "/orders", nil, nav)
	if body := readAll(resp); body != "origin:/orders" {
		t.Errorf("online body = %q", body)
	}

	origin.SetOffline(true)

	resp = serve(router, "GET", "/orders/99", nil, nav)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("offline status = %d, want 200 from cache", resp.StatusCode)
	}
	if body := readAll(resp); body != "<html>shell</html>" {
		t.Errorf("offline body = %q, want cached shell", body)
	}

	resp = serve(router, "GET", "/never-seen.css", nil, nil)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("offline miss status = %d, want 504", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.engineWait(ctx); err != nil {
		t.Fatalf("engineWait failed: %v", err)
	}
}

func TestMessageEndpoint(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	a := newTestApp(t, origin)
	a.cfg.Cache.SkipWaitingOnInstall = false
	router := a.adminRouter()

	// First generation activates on its own
	if err := a.install(context.Background()); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	first := a.registration.Active()

	a.cfg.Cache.Version = "v5"
	if err := a.install(context.Background()); err != nil {
		t.Fatalf("second install failed: %v", err)
	}
	if a.registration.Waiting() == nil {
		t.Fatal("second generation should be waiting")
	}

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "invalid json", body: "{", status: http.StatusBadRequest},
		{name: "missing type", body: "{}", status: http.StatusBadRequest},
		{name: "unknown type", body: `{"type":"PING"}`, status: http.StatusNoContent},
		{name: "skip waiting", body: `{"type":"SKIP_WAITING"}`, status: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := serve(router, "POST", "/message", strings.NewReader(tt.body), nil)
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}

	active := a.registration.Active()
	if active == first {
		t.Fatal("SKIP_WAITING should have activated the waiting generation")
	}
	if active.Names().Static != "quick-orders-v5" {
		t.Errorf("active generation = %q", active.Names().Static)
	}
	if first.State() != lifecycle.StateRedundant {
		t.Errorf("old generation state = %s, want redundant", first.State())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	a := newTestApp(t, origin)

	// One bypassed request registers the interceptor series
	readAll(serve(a.proxyRouter(), "POST", "/api/orders", strings.NewReader("{}"), nil))

	resp := serve(a.adminRouter(), "GET", "/metrics", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body := readAll(resp)
	if !strings.Contains(body, "# HELP") || !strings.Contains(body, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	if !strings.Contains(body, `offline_cache_requests_total{class="bypass"}`) {
		t.Error("Expected metrics output to contain offline_cache_requests_total")
	}
}

func TestProxyRouter_AppPathsReachOrigin(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/index.html", testutil.NewPageResponse("<html>shell</html>"))

	a := newTestApp(t, origin)
	if err := a.install(context.Background()); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	router := a.proxyRouter()

	tests := []struct {
		name   string
		method string
		target string
		body   string
		path   string
	}{
		{name: "post message origin-form", method: "POST", target: "/message", body: `{"order":1}`, path: "/message"},
		{name: "post message absolute-form", method: "POST", target: origin.URL() + "/message", body: `{"order":2}`, path: "/message"},
		{name: "get health", method: "GET", target: origin.URL() + "/health", path: "/health"},
		{name: "get ready", method: "GET", target: "/ready", path: "/ready"},
		{name: "get metrics", method: "GET", target: "/metrics", path: "/metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := origin.GetPathCount(tt.path)

			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			resp := serve(router, tt.method, tt.target, body, nil)

			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want origin 200", resp.StatusCode)
			}
			if got := readAll(resp); got != "origin:"+tt.path {
				t.Errorf("body = %q, want origin response", got)
			}
			if got := origin.GetPathCount(tt.path) - before; got != 1 {
				t.Errorf("origin hits for %s = %d, want 1", tt.path, got)
			}
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.engineWait(ctx); err != nil {
		t.Fatalf("engineWait failed: %v", err)
	}
}

func TestAdminRouter_DoesNotProxy(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	a := newTestApp(t, origin)

	resp := serve(a.adminRouter(), "GET", "/orders", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if origin.GetRequestCount() != 0 {
		t.Errorf("origin saw %d requests, want 0", origin.GetRequestCount())
	}
}

func TestLoadConfig(t *testing.T) {
	for _, name := range []string{"OFFLINE_CACHE_PREFIX", "OFFLINE_CACHE_VERSION", "OFFLINE_CACHE_DYNAMIC_BUCKET"} {
		t.Setenv(name, "")
	}

	path := filepath.Join(t.TempDir(), "offline-cache.yaml")
	content := "cache:\n  prefix: \"\"\n  version: v1\n  dynamicBucket: shared\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, names, err := loadConfig("", "v9")
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Cache.Version != "v9" || names.Static != "quick-orders-v9" {
		t.Errorf("version = %q, static = %q; want v9 override", cfg.Cache.Version, names.Static)
	}

	if _, _, err := loadConfig(path, ""); err != nil {
		t.Fatalf("loadConfig(file) failed: %v", err)
	}

	// The override makes the static bucket collide with the dynamic one
	if _, _, err := loadConfig(path, "shared"); err == nil {
		t.Error("loadConfig should reject a version that collides with the dynamic bucket")
	}

	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Error("loadConfig should fail for a missing file")
	}
}
