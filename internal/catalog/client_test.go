package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/craftdeck/craftdeck/internal/observability"
	"github.com/craftdeck/craftdeck/internal/ratelimit"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error"})
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:   baseURL,
		APIKey:    "test-key",
		Timeout:   2 * time.Second,
		CacheTTL:  time.Minute,
		RateLimit: ratelimit.Config{Enabled: false},
	}, testLogger())
}

const searchResponse = `{
  "data": [
    {
      "id": 520914,
      "name": "All The Mods 9",
      "summary": "Every mod, all at once.",
      "downloadCount": 9000000,
      "dateModified": "2026-05-01T12:00:00Z",
      "categories": [{"name": "Tech"}, {"name": "Magic"}],
      "authors": [{"name": "ATMTeam"}],
      "logo": {"url": "https://cdn.example/logo.png"}
    },
    {
      "id": 620001,
      "name": "Skyblock Reborn",
      "summary": "Start from nothing.",
      "downloadCount": 100,
      "categories": [{"name": "Skyblock"}]
    }
  ]
}`

func TestSearch(t *testing.T) {
	var gotKey atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mods/search" {
			http.NotFound(w, r)
			return
		}
		gotKey.Store(r.Header.Get("x-api-key"))
		q := r.URL.Query()
		if q.Get("gameId") != "432" || q.Get("categoryId") != "4471" {
			t.Errorf("query = %v", q)
		}
		w.Write([]byte(searchResponse))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	packs, err := client.Search(context.Background(), SearchOptions{Query: "mods"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(packs) != 2 {
		t.Fatalf("packs = %v", packs)
	}
	if packs[0].Name != "All The Mods 9" || packs[0].DownloadCount != 9000000 {
		t.Errorf("pack = %+v", packs[0])
	}
	if len(packs[0].Categories) != 2 || packs[0].Categories[0] != "Tech" {
		t.Errorf("categories = %v", packs[0].Categories)
	}
	if packs[0].LogoURL != "https://cdn.example/logo.png" {
		t.Errorf("logo = %q", packs[0].LogoURL)
	}
	if packs[0].LastUpdated.IsZero() {
		t.Error("dateModified not parsed")
	}
	if gotKey.Load() != "test-key" {
		t.Errorf("api key header = %v", gotKey.Load())
	}
}

func TestSearch_CategoryFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searchResponse))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	packs, err := client.Search(context.Background(), SearchOptions{Category: "skyblock"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(packs) != 1 || packs[0].Name != "Skyblock Reborn" {
		t.Errorf("packs = %v", packs)
	}
}

func TestSearch_CachesResponses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(searchResponse))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := client.Search(ctx, SearchOptions{Query: "mods"}); err != nil {
			t.Fatalf("Search %d: %v", i, err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("upstream hits = %d, want 1", hits.Load())
	}

	client.ClearCache()
	if _, err := client.Search(ctx, SearchOptions{Query: "mods"}); err != nil {
		t.Fatalf("Search after clear: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("upstream hits = %d, want 2 after cache clear", hits.Load())
	}
}

func TestSearch_FallbackWithoutKey(t *testing.T) {
	client := NewClient(Config{}, testLogger())
	packs, err := client.Search(context.Background(), SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(packs) == 0 {
		t.Fatal("bundled suggestions missing")
	}

	filtered, err := client.Search(context.Background(), SearchOptions{Query: "skies"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(filtered) == 0 || len(filtered) >= len(packs) {
		t.Errorf("query filter did not narrow: %d vs %d", len(filtered), len(packs))
	}
}

func TestSearch_FallbackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	packs, err := client.Search(context.Background(), SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(packs) == 0 {
		t.Error("server failure must fall back to bundled suggestions")
	}
}

func TestDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mods/520914" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"data": {
			"id": 520914,
			"name": "All The Mods 9",
			"description": "<p>long html</p>",
			"screenshots": [{"url": "https://cdn.example/shot1.png"}],
			"latestFilesIndexes": [{"gameVersion": "1.20.1", "modLoader": "NeoForge"}]
		}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	details, err := client.Details(context.Background(), 520914)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if details.Description != "<p>long html</p>" {
		t.Errorf("description = %q", details.Description)
	}
	if details.GameVersionLatest != "1.20.1" || details.ModLoader != "NeoForge" {
		t.Errorf("latest = %q/%q", details.GameVersionLatest, details.ModLoader)
	}
	if len(details.Screenshots) != 1 {
		t.Errorf("screenshots = %v", details.Screenshots)
	}
}

func TestDetails_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	if _, err := client.Details(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDetails_NullData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": null}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	if _, err := client.Details(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestVersions_SortedNewestFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/files") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"data": [
			{"id": 1, "displayName": "v1.0", "fileDate": "2025-01-01T00:00:00Z", "fileLength": 100},
			{"id": 3, "displayName": "v1.2", "fileDate": "2026-03-01T00:00:00Z", "fileLength": 300},
			{"id": 2, "displayName": "v1.1", "fileDate": "2025-06-01T00:00:00Z", "fileLength": 200}
		]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	versions, err := client.Versions(context.Background(), 520914, "")
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("versions = %v", versions)
	}
	if versions[0].ID != 3 || versions[1].ID != 2 || versions[2].ID != 1 {
		t.Errorf("order = %d, %d, %d", versions[0].ID, versions[1].ID, versions[2].ID)
	}
	if versions[0].FileSize != 300 {
		t.Errorf("file size = %d", versions[0].FileSize)
	}
}

func TestRateLimitedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	if _, err := client.Details(context.Background(), 1); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestServerErrorRetriesOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"data": {"id": 1, "name": "Back Up"}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	details, err := client.Details(context.Background(), 1)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if details.Name != "Back Up" {
		t.Errorf("details = %+v", details)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2", hits.Load())
	}
}

func TestRuleDocument(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/modpacks/520914/rules.json" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Write([]byte(`{
			"rules": {
				"max-players": {"type": "integer", "min": 1, "max": 500, "hot_apply": false}
			}
		}`))
	}))
	defer srv.Close()

	client := NewClient(Config{
		RulesBaseURL: srv.URL,
		RateLimit:    ratelimit.Config{Enabled: false},
	}, testLogger())

	doc, err := client.RuleDocument(context.Background(), 520914)
	if err != nil {
		t.Fatalf("RuleDocument: %v", err)
	}
	if _, ok := doc.Rules["max-players"]; !ok {
		t.Errorf("rules = %v", doc.Rules)
	}

	// Second fetch is served from cache.
	if _, err := client.RuleDocument(context.Background(), 520914); err != nil {
		t.Fatalf("RuleDocument cached: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}

	if _, err := client.RuleDocument(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing overlay: err = %v, want ErrNotFound", err)
	}
}

func TestRuleDocument_Unconfigured(t *testing.T) {
	client := NewClient(Config{}, testLogger())
	if _, err := client.RuleDocument(context.Background(), 1); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestValidateCustomURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Length", "12345")
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	info, err := client.ValidateCustomURL(context.Background(), srv.URL+"/packs/atm9.zip")
	if err != nil {
		t.Fatalf("ValidateCustomURL: %v", err)
	}
	if info.FileName != "atm9.zip" {
		t.Errorf("file name = %q", info.FileName)
	}
	if info.FileSize != 12345 {
		t.Errorf("file size = %d", info.FileSize)
	}
	if info.ContentType != "application/zip" {
		t.Errorf("content type = %q", info.ContentType)
	}
	if !strings.HasSuffix(info.URL, "/packs/atm9.zip") {
		t.Errorf("url = %q", info.URL)
	}
}

func TestValidateCustomURL_ContentDisposition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="pack.mrpack"`)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	info, err := client.ValidateCustomURL(context.Background(), srv.URL+"/download/1234")
	if err != nil {
		t.Fatalf("ValidateCustomURL: %v", err)
	}
	if info.FileName != "pack.mrpack" {
		t.Errorf("file name = %q, want the disposition name", info.FileName)
	}
}

func TestValidateCustomURL_Rejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	tests := []struct {
		name string
		url  string
	}{
		{"wrong scheme", "ftp://example.com/pack.zip"},
		{"no host", "https:///pack.zip"},
		{"not parseable", "://nope"},
		{"not accessible", srv.URL + "/missing.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := client.ValidateCustomURL(context.Background(), tt.url); !errors.Is(err, ErrInvalidURL) {
				t.Errorf("err = %v, want ErrInvalidURL", err)
			}
		})
	}
}

func TestPopularSites(t *testing.T) {
	client := NewClient(Config{}, testLogger())
	sites := client.PopularSites()
	if len(sites) == 0 {
		t.Fatal("no sites")
	}
	names := make(map[string]bool)
	for _, site := range sites {
		names[site.Name] = true
		if site.URL == "" || site.Instructions == "" {
			t.Errorf("incomplete site: %+v", site)
		}
	}
	if !names["CurseForge"] || !names["Modrinth"] {
		t.Errorf("names = %v", names)
	}
}
