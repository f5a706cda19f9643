package generation

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"testing"

	"github.com/Sternrassler/offline-cache/internal/testutil"
	"github.com/Sternrassler/offline-cache/pkg/cache"
	"github.com/rs/zerolog"
)

const origin = "https://app.example.com"

func mustOrigin(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse(origin)
	if err != nil {
		t.Fatalf("parse origin: %v", err)
	}
	return u
}

func testNames(t *testing.T, version string) Names {
	t.Helper()
	names, err := NewNames("", version, "dynamic-v1")
	if err != nil {
		t.Fatalf("NewNames failed: %v", err)
	}
	return names
}

// failingDeleteStore fails Delete for selected buckets.
type failingDeleteStore struct {
	cache.Store
	fail map[string]bool
}

func (s *failingDeleteStore) Delete(ctx context.Context, bucket string) (bool, error) {
	if s.fail[bucket] {
		return false, errors.New("delete refused")
	}
	return s.Store.Delete(ctx, bucket)
}

func TestNewNames(t *testing.T) {
	tests := []struct {
		name        string
		prefix      string
		version     string
		dynamic     string
		wantStatic  string
		expectError bool
	}{
		{name: "prefixed", prefix: "quick-orders", version: "v4.2-resilience", dynamic: "quick-orders-dynamic-v1", wantStatic: "quick-orders-v4.2-resilience"},
		{name: "no prefix", version: "v4-static", dynamic: "dynamic-v1", wantStatic: "v4-static"},
		{name: "empty version", prefix: "p", dynamic: "d", expectError: true},
		{name: "empty dynamic", prefix: "p", version: "v1", expectError: true},
		{name: "collision", version: "same", dynamic: "same", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names, err := NewNames(tt.prefix, tt.version, tt.dynamic)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if names.Static != tt.wantStatic {
				t.Errorf("Static = %q, want %q", names.Static, tt.wantStatic)
			}
			if !names.IsCurrent(tt.wantStatic) || !names.IsCurrent(tt.dynamic) {
				t.Error("IsCurrent should accept both current names")
			}
			if names.IsCurrent("leftover-old") {
				t.Error("IsCurrent should reject other names")
			}
		})
	}
}

func TestManager_Prepopulate_Success(t *testing.T) {
	net := testutil.NewScriptedNetwork()
	net.Respond(origin+"/", 200, "root")
	net.Respond(origin+"/index.html", 200, "index")

	store := cache.NewMemoryStore()
	names := testNames(t, "v4-static")
	manager := NewManager(store, net.Client(), Config{
		Names:    names,
		Manifest: []string{"/", "/index.html"},
		Origin:   mustOrigin(t),
	}, zerolog.Nop())

	if err := manager.Prepopulate(context.Background()); err != nil {
		t.Fatalf("Prepopulate failed: %v", err)
	}

	keys, err := store.Keys(context.Background(), names.Static)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("static bucket has %d entries, want exactly 2: %v", len(keys), keys)
	}

	entry, ok, _ := store.Get(context.Background(), names.Static, cache.GetKey(origin+"/index.html"))
	if !ok || string(entry.Data) != "index" {
		t.Errorf("index entry = %v, %v", entry, ok)
	}
	if entry.URL != origin+"/index.html" {
		t.Errorf("entry URL = %q", entry.URL)
	}
}

func TestManager_Prepopulate_NetworkFailureIsAllOrNothing(t *testing.T) {
	net := testutil.NewScriptedNetwork()
	net.Respond(origin+"/", 200, "root")
	net.Fail(origin + "/index.html")

	store := cache.NewMemoryStore()
	names := testNames(t, "v4-static")
	manager := NewManager(store, net.Client(), Config{
		Names:       names,
		Manifest:    []string{"/", "/index.html"},
		Origin:      mustOrigin(t),
		Concurrency: 1,
	}, zerolog.Nop())

	err := manager.Prepopulate(context.Background())
	if err == nil {
		t.Fatal("Prepopulate should fail when a manifest entry fails")
	}

	var manifestErr *ManifestError
	if !errors.As(err, &manifestErr) {
		t.Fatalf("error is %T, want *ManifestError", err)
	}
	if manifestErr.URL != origin+"/index.html" {
		t.Errorf("ManifestError.URL = %q", manifestErr.URL)
	}
	if !errors.Is(err, testutil.ErrScriptedFailure) {
		t.Error("ManifestError should wrap the network failure")
	}

	names2, _ := store.Buckets(context.Background())
	if len(names2) != 0 {
		t.Errorf("buckets after failed install = %v, want none", names2)
	}
}

func TestManager_Prepopulate_BadStatusFails(t *testing.T) {
	net := testutil.NewScriptedNetwork()
	net.Respond(origin+"/", 200, "root")
	net.Respond(origin+"/manifest.json", 404, "missing")

	manager := NewManager(cache.NewMemoryStore(), net.Client(), Config{
		Names:    testNames(t, "v4-static"),
		Manifest: []string{"/", "/manifest.json"},
		Origin:   mustOrigin(t),
	}, zerolog.Nop())

	err := manager.Prepopulate(context.Background())

	var manifestErr *ManifestError
	if !errors.As(err, &manifestErr) {
		t.Fatalf("error = %v, want *ManifestError", err)
	}
	if manifestErr.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", manifestErr.StatusCode)
	}
}

func TestManager_Prepopulate_AbsoluteURLs(t *testing.T) {
	net := testutil.NewScriptedNetwork()
	net.Respond("https://cdn.tailwindcss.com", 200, "tw")
	net.Respond(origin+"/", 200, "root")

	store := cache.NewMemoryStore()
	names := testNames(t, "v1")
	manager := NewManager(store, net.Client(), Config{
		Names:    names,
		Manifest: []string{"/", "https://cdn.tailwindcss.com", "/"},
		Origin:   mustOrigin(t),
	}, zerolog.Nop())

	if err := manager.Prepopulate(context.Background()); err != nil {
		t.Fatalf("Prepopulate failed: %v", err)
	}

	keys, _ := store.Keys(context.Background(), names.Static)
	if len(keys) != 2 {
		t.Errorf("keys = %v, want 2 (duplicates collapsed)", keys)
	}
	if net.Calls(origin+"/") != 1 {
		t.Errorf("root fetched %d times, want 1", net.Calls(origin+"/"))
	}
}

func TestResolveURL(t *testing.T) {
	base := mustOrigin(t)

	tests := []struct {
		name        string
		origin      *url.URL
		raw         string
		want        string
		expectError bool
	}{
		{name: "root relative", origin: base, raw: "/index.html", want: origin + "/index.html"},
		{name: "root", origin: base, raw: "/", want: origin + "/"},
		{name: "absolute", origin: base, raw: "https://esm.sh/jspdf@2.5.1", want: "https://esm.sh/jspdf@2.5.1"},
		{name: "relative without origin", origin: nil, raw: "/index.html", expectError: true},
		{name: "absolute without origin", origin: nil, raw: "https://esm.sh/x", want: "https://esm.sh/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveURL(tt.origin, tt.raw)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestManager_CollectGarbage(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	for _, name := range []string{"v3-static", "dynamic-v1", "leftover-old", "v4-static"} {
		if err := store.Open(ctx, name); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
	}

	manager := NewManager(store, testutil.NewScriptedNetwork().Client(), Config{
		Names: testNames(t, "v4-static"),
	}, zerolog.Nop())

	report, err := manager.CollectGarbage(ctx)
	if err != nil {
		t.Fatalf("CollectGarbage failed: %v", err)
	}

	deleted := append([]string(nil), report.Deleted...)
	sort.Strings(deleted)
	if len(deleted) != 2 || deleted[0] != "leftover-old" || deleted[1] != "v3-static" {
		t.Errorf("Deleted = %v, want [leftover-old v3-static]", deleted)
	}
	if len(report.Failed) != 0 {
		t.Errorf("Failed = %v", report.Failed)
	}

	remaining, _ := store.Buckets(ctx)
	sort.Strings(remaining)
	if len(remaining) != 2 || remaining[0] != "dynamic-v1" || remaining[1] != "v4-static" {
		t.Errorf("remaining = %v, want [dynamic-v1 v4-static]", remaining)
	}
}

func TestManager_CollectGarbage_ContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryStore()
	for _, name := range []string{"a-old", "b-old", "v4-static"} {
		_ = mem.Open(ctx, name)
	}
	store := &failingDeleteStore{Store: mem, fail: map[string]bool{"a-old": true}}

	manager := NewManager(store, testutil.NewScriptedNetwork().Client(), Config{
		Names: testNames(t, "v4-static"),
	}, zerolog.Nop())

	report, err := manager.CollectGarbage(ctx)
	if err != nil {
		t.Fatalf("CollectGarbage returned error for a per-bucket failure: %v", err)
	}
	if _, ok := report.Failed["a-old"]; !ok {
		t.Errorf("Failed = %v, want a-old", report.Failed)
	}
	if len(report.Deleted) != 1 || report.Deleted[0] != "b-old" {
		t.Errorf("Deleted = %v, want [b-old]", report.Deleted)
	}
}

func TestNewManager_Panics(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{name: "nil store", fn: func() {
			NewManager(nil, testutil.NewScriptedNetwork().Client(), Config{}, zerolog.Nop())
		}},
		{name: "nil fetcher", fn: func() {
			NewManager(cache.NewMemoryStore(), nil, Config{}, zerolog.Nop())
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn()
		})
	}
}
