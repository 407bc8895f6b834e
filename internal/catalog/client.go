// Package catalog implements the modpack catalog client. It talks to
// the CurseForge API for modpack search, details, and version listings,
// and to a rule document endpoint for per-modpack classifier overlays.
// Responses are cached with a TTL and requests are rate limited.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/craftdeck/craftdeck/internal/cache"
	"github.com/craftdeck/craftdeck/internal/observability"
	"github.com/craftdeck/craftdeck/internal/ratelimit"
	"github.com/craftdeck/craftdeck/internal/rules"
)

var (
	// ErrUnavailable indicates the catalog API could not be reached.
	ErrUnavailable = errors.New("catalog unavailable")
	// ErrRateLimited indicates the remote API rejected us with HTTP 429.
	ErrRateLimited = errors.New("catalog rate limited")
	// ErrNotFound indicates the requested modpack does not exist.
	ErrNotFound = errors.New("modpack not found")
)

const (
	defaultBaseURL = "https://api.curseforge.com/v1"

	minecraftGameID   = 432
	modpackCategoryID = 4471

	maxPageSize = 50
)

// Config configures the catalog client.
type Config struct {
	BaseURL      string           `yaml:"base_url"`
	RulesBaseURL string           `yaml:"rules_base_url"`
	APIKey       string           `yaml:"api_key"`
	Timeout      time.Duration    `yaml:"timeout"`
	CacheTTL     time.Duration    `yaml:"cache_ttl"`
	RateLimit    ratelimit.Config `yaml:"rate_limit"`
}

// DefaultConfig returns catalog defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:   defaultBaseURL,
		Timeout:   30 * time.Second,
		CacheTTL:  5 * time.Minute,
		RateLimit: ratelimit.DefaultConfig(),
	}
}

// Client is the catalog API client.
type Client struct {
	config Config
	http   *http.Client
	cache  *cache.TTLCache
	bucket *ratelimit.Bucket
	logger *observability.Logger
}

// NewClient creates a catalog client from config.
func NewClient(config Config, logger *observability.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		cache:  cache.NewTTLCache(config.CacheTTL),
		bucket: ratelimit.NewBucket(config.RateLimit),
		logger: logger,
	}
}

// Available reports whether the remote API can be used. Search falls
// back to bundled suggestions when it cannot.
func (c *Client) Available() bool {
	return c.config.APIKey != ""
}

// Search queries the catalog for modpacks. Without an API key it
// returns the bundled suggestion list filtered by the query.
func (c *Client) Search(ctx context.Context, opts SearchOptions) ([]Modpack, error) {
	if !c.Available() {
		c.logger.Info(ctx, "catalog api key missing, serving bundled suggestions")
		return fallbackSearch(opts), nil
	}

	if opts.PageSize <= 0 || opts.PageSize > maxPageSize {
		opts.PageSize = 20
	}
	if opts.SortField == "" {
		opts.SortField = "Popularity"
	}
	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	params := url.Values{}
	params.Set("gameId", strconv.Itoa(minecraftGameID))
	params.Set("categoryId", strconv.Itoa(modpackCategoryID))
	params.Set("sortField", opts.SortField)
	params.Set("sortOrder", opts.SortOrder)
	params.Set("pageSize", strconv.Itoa(opts.PageSize))
	params.Set("index", strconv.Itoa(opts.Index))
	if opts.Query != "" {
		params.Set("searchFilter", opts.Query)
	}

	body, err := c.request(ctx, "/mods/search", params)
	if err != nil {
		c.logger.Warn(ctx, "catalog search failed, serving bundled suggestions", "error", err)
		return fallbackSearch(opts), nil
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	packs := make([]Modpack, 0, len(envelope.Data))
	for _, mod := range envelope.Data {
		pack := mod.toModpack()
		if opts.Category != "" && !containsFold(pack.Categories, opts.Category) {
			continue
		}
		packs = append(packs, pack)
	}
	c.logger.Debug(ctx, "catalog search complete", "query", opts.Query, "results", len(packs))
	return packs, nil
}

// Details returns the full description of a modpack.
func (c *Client) Details(ctx context.Context, modpackID int) (*ModpackDetails, error) {
	body, err := c.request(ctx, fmt.Sprintf("/mods/%d", modpackID), nil)
	if err != nil {
		return nil, err
	}

	var envelope apiSingleEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode details response: %w", err)
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("modpack %d: %w", modpackID, ErrNotFound)
	}

	details := envelope.Data.toDetails()
	return &details, nil
}

// Versions lists downloadable files for a modpack, newest first.
func (c *Client) Versions(ctx context.Context, modpackID int, gameVersion string) ([]ModpackVersion, error) {
	params := url.Values{}
	if gameVersion != "" {
		params.Set("gameVersion", gameVersion)
	}

	body, err := c.request(ctx, fmt.Sprintf("/mods/%d/files", modpackID), params)
	if err != nil {
		return nil, err
	}

	var envelope apiFileEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode files response: %w", err)
	}

	versions := make([]ModpackVersion, 0, len(envelope.Data))
	for _, file := range envelope.Data {
		versions = append(versions, file.toVersion())
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].FileDate.After(versions[j].FileDate)
	})
	return versions, nil
}

// Popular returns modpacks sorted by total downloads.
func (c *Client) Popular(ctx context.Context, limit int) ([]Modpack, error) {
	return c.Search(ctx, SearchOptions{
		SortField: "TotalDownloads",
		SortOrder: "desc",
		PageSize:  limit,
	})
}

// RecentlyUpdated returns modpacks sorted by last update time.
func (c *Client) RecentlyUpdated(ctx context.Context, limit int) ([]Modpack, error) {
	return c.Search(ctx, SearchOptions{
		SortField: "LastUpdated",
		SortOrder: "desc",
		PageSize:  limit,
	})
}

// RuleDocument fetches the classifier rule overlay published for a
// modpack. The document is validated against the rule schema before it
// is returned. A 404 from the rules endpoint means the modpack has no
// overlay and is reported as ErrNotFound.
func (c *Client) RuleDocument(ctx context.Context, modpackID int) (*rules.Document, error) {
	if c.config.RulesBaseURL == "" {
		return nil, fmt.Errorf("rules endpoint not configured: %w", ErrUnavailable)
	}

	cacheKey := fmt.Sprintf("rules/%d", modpackID)
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.(*rules.Document), nil
	}

	endpoint := strings.TrimRight(c.config.RulesBaseURL, "/") + fmt.Sprintf("/modpacks/%d/rules.json", modpackID)
	body, err := c.fetch(ctx, endpoint, "")
	if err != nil {
		return nil, err
	}

	doc, err := rules.ParseJSON(body)
	if err != nil {
		return nil, fmt.Errorf("rule document for modpack %d: %w", modpackID, err)
	}
	c.cache.Set(cacheKey, doc)
	return doc, nil
}

// ClearCache drops all cached responses.
func (c *Client) ClearCache() {
	c.cache = cache.NewTTLCache(c.config.CacheTTL)
}

// request performs a cached, rate-limited GET against the catalog API.
// Transient failures get one retry with a short backoff.
func (c *Client) request(ctx context.Context, path string, params url.Values) ([]byte, error) {
	cacheKey := path
	if len(params) > 0 {
		cacheKey = path + "?" + params.Encode()
	}
	if cached, ok := c.cache.Get(cacheKey); ok {
		c.logger.Debug(ctx, "catalog cache hit", "key", cacheKey)
		return cached.([]byte), nil
	}

	if c.config.RateLimit.Enabled {
		if !c.bucket.Wait(c.config.Timeout) {
			return nil, fmt.Errorf("local rate budget exhausted: %w", ErrRateLimited)
		}
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	body, err := c.fetch(ctx, endpoint, c.config.APIKey)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
		body, err = c.fetch(ctx, endpoint, c.config.APIKey)
		if err != nil {
			return nil, err
		}
	}

	c.cache.Set(cacheKey, body)
	return body, nil
}

// fetch performs a single GET and maps HTTP status to error sentinels.
func (c *Client) fetch(ctx context.Context, endpoint, apiKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "craftdeck/1.0")
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("catalog error: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	return body, nil
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}
