//go:build integration

package integration

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/Sternrassler/offline-cache/internal/testutil"
	"github.com/Sternrassler/offline-cache/pkg/cache"
	"github.com/Sternrassler/offline-cache/pkg/classify"
	"github.com/Sternrassler/offline-cache/pkg/client"
	"github.com/Sternrassler/offline-cache/pkg/generation"
	"github.com/Sternrassler/offline-cache/pkg/interceptor"
	"github.com/Sternrassler/offline-cache/pkg/lifecycle"
	"github.com/Sternrassler/offline-cache/pkg/strategy"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const assetPath = "/storage/v1/object/public/products/milk.png"

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// deployment is one generation of the app wired to a shared store.
type deployment struct {
	controller *lifecycle.Controller
	engine     *strategy.Engine
}

func deploy(t *testing.T, store cache.Store, fetcher client.Fetcher, origin *url.URL, version string, skipWaiting bool) deployment {
	t.Helper()

	names, err := generation.NewNames("quick-orders", version, "quick-orders-dynamic-v1")
	if err != nil {
		t.Fatalf("NewNames failed: %v", err)
	}

	gen := generation.NewManager(store, fetcher, generation.Config{
		Names:    names,
		Manifest: []string{"/", "/index.html"},
		Origin:   origin,
	}, zerolog.Nop())

	engine, err := strategy.New(strategy.Config{
		Store:   store,
		Fetcher: fetcher,
		Names:   names,
		Origin:  origin,
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("strategy.New failed: %v", err)
	}

	return deployment{
		controller: lifecycle.NewController(lifecycle.Config{
			Generation:           gen,
			Engine:               engine,
			SkipWaitingOnInstall: skipWaiting,
			Logger:               zerolog.Nop(),
		}),
		engine: engine,
	}
}

func get(t *testing.T, c *http.Client, rawURL string, navigate bool) (int, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if navigate {
		req.Header.Set("Sec-Fetch-Mode", "navigate")
	}

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("GET %s failed: %v", rawURL, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func waitFor(t *testing.T, d deployment) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.engine.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
}

// TestOfflineLifecycle walks two deployments against a Redis-backed store:
// install, online traffic, an offline period and a generation swap.
func TestOfflineLifecycle(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	mockOrigin := testutil.NewMockOrigin()
	defer mockOrigin.Close()
	mockOrigin.SetResponse("/index.html", testutil.NewPageResponse("<html>v3 shell</html>"))
	mockOrigin.SetResponse(assetPath, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "png",
		Headers:    map[string]string{"Content-Type": "image/png"},
	})

	origin, _ := url.Parse(mockOrigin.URL())
	store := cache.NewManager(cache.NewRedisStore(redisClient, "it"))

	fetcher, err := client.New(client.DefaultConfig())
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}

	registration := lifecycle.NewRegistration(zerolog.Nop())
	transport := interceptor.NewTransport(interceptor.Config{
		Registration: registration,
		Classifier:   classify.New(classify.RemoteAssetRule{HostFragment: origin.Hostname(), PathSegment: "/storage/v1/object/public/"}),
		Passthrough:  fetcher,
		Logger:       zerolog.Nop(),
	})
	browser := &http.Client{Transport: transport}

	// A bucket nobody owns any more
	if err := store.Open(ctx, "leftover-old"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	v3 := deploy(t, store, fetcher, origin, "v3", true)
	if err := registration.Install(ctx, v3.controller); err != nil {
		t.Fatalf("v3 install failed: %v", err)
	}

	// Online: remote asset lands in the dynamic bucket
	if status, body := get(t, browser, mockOrigin.URL()+assetPath, false); status != http.StatusOK || body != "png" {
		t.Fatalf("asset = %d %q", status, body)
	}
	waitFor(t, v3)

	// Offline: shell and asset come from Redis
	mockOrigin.SetOffline(true)
	if status, body := get(t, browser, mockOrigin.URL()+"/orders", true); status != http.StatusOK || body != "<html>v3 shell</html>" {
		t.Errorf("offline navigation = %d %q", status, body)
	}
	assetCalls := mockOrigin.GetPathCount(assetPath)
	if _, body := get(t, browser, mockOrigin.URL()+assetPath, false); body != "png" {
		t.Errorf("offline asset = %q", body)
	}
	if mockOrigin.GetPathCount(assetPath) != assetCalls {
		t.Error("cached asset must not hit the network")
	}
	mockOrigin.SetOffline(false)

	// Deploy v4 without skip-waiting, then activate via message
	mockOrigin.SetResponse("/index.html", testutil.NewPageResponse("<html>v4 shell</html>"))
	v4 := deploy(t, store, fetcher, origin, "v4", false)
	if err := registration.Install(ctx, v4.controller); err != nil {
		t.Fatalf("v4 install failed: %v", err)
	}
	if registration.Active() != v3.controller {
		t.Fatal("v3 should stay active while v4 waits")
	}

	if err := registration.HandleMessage(ctx, lifecycle.Message{Type: lifecycle.MessageSkipWaiting}); err != nil {
		t.Fatalf("SKIP_WAITING failed: %v", err)
	}
	if registration.Active() != v4.controller {
		t.Fatal("v4 should be active after SKIP_WAITING")
	}

	buckets, err := store.Buckets(ctx)
	if err != nil {
		t.Fatalf("Buckets failed: %v", err)
	}
	want := map[string]bool{"quick-orders-dynamic-v1": true, "quick-orders-v4": true}
	if len(buckets) != len(want) {
		t.Fatalf("Buckets = %v, want only the current generation", buckets)
	}
	for _, b := range buckets {
		if !want[b] {
			t.Errorf("unexpected bucket %q survived garbage collection", b)
		}
	}

	// The dynamic bucket survived the deploy, and the new shell is served offline
	mockOrigin.SetOffline(true)
	if _, body := get(t, browser, mockOrigin.URL()+assetPath, false); body != "png" {
		t.Errorf("asset after deploy = %q", body)
	}
	if _, body := get(t, browser, mockOrigin.URL()+"/checkout", true); body != "<html>v4 shell</html>" {
		t.Errorf("shell after deploy = %q", body)
	}
	waitFor(t, v4)
}

// TestRedisStore_SurvivesRestart reopens the store on the same Redis.
func TestRedisStore_SurvivesRestart(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	key := cache.GetKey("https://app.example.com/index.html")
	first := cache.NewRedisStore(redisClient, "restart")
	if err := first.Put(ctx, "quick-orders-v4", key, &cache.CacheEntry{StatusCode: 200, Data: []byte("shell"), Headers: http.Header{}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	second := cache.NewRedisStore(redisClient, "restart")
	entry, ok, err := second.Match(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Match = %v, %v", ok, err)
	}
	if string(entry.Data) != "shell" {
		t.Errorf("Data = %q", entry.Data)
	}

	// Prefixes isolate deployments sharing one Redis
	other := cache.NewRedisStore(redisClient, "other")
	if _, ok, _ := other.Match(ctx, key); ok {
		t.Error("store with another prefix must not see the entry")
	}
}
