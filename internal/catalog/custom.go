package catalog

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// ErrInvalidURL indicates a custom modpack download link that cannot be
// used: malformed, wrong scheme, or not reachable.
var ErrInvalidURL = errors.New("invalid download url")

// URLInfo describes a direct-download modpack file checked by
// ValidateCustomURL.
type URLInfo struct {
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type,omitempty"`

	// URL is the final location after redirects.
	URL string `json:"url"`
}

// Site points operators at a well-known modpack hosting site.
type Site struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	Description  string `json:"description"`
	APIRequired  bool   `json:"api_required"`
	Instructions string `json:"instructions"`
}

var modpackExtensions = []string{".zip", ".jar", ".mrpack"}

// ValidateCustomURL checks a direct modpack download link with a HEAD
// request and reports the file's metadata without downloading it. A
// file name without a known archive extension is logged but accepted;
// some hosts serve modpacks from extensionless URLs.
func (c *Client) ValidateCustomURL(ctx context.Context, rawURL string) (*URLInfo, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", "craftdeck/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: not accessible, status %d", ErrInvalidURL, resp.StatusCode)
	}

	info := &URLInfo{
		ContentType: resp.Header.Get("Content-Type"),
		URL:         resp.Request.URL.String(),
		FileName:    fileNameFrom(resp.Header.Get("Content-Disposition"), resp.Request.URL),
	}
	if length := resp.Header.Get("Content-Length"); length != "" {
		info.FileSize, _ = strconv.ParseInt(length, 10, 64)
	}

	if !hasModpackExtension(info.FileName) {
		c.logger.Warn(ctx, "file may not be a modpack archive", "file_name", info.FileName)
	}
	return info, nil
}

// fileNameFrom prefers the Content-Disposition filename over the last
// URL path segment.
func fileNameFrom(disposition string, u *url.URL) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	return path.Base(u.Path)
}

func hasModpackExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range modpackExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// PopularSites lists well-known modpack hosting sites for operators
// sourcing a direct download link.
func (c *Client) PopularSites() []Site {
	sites := make([]Site, len(popularSites))
	copy(sites, popularSites)
	return sites
}

var popularSites = []Site{
	{
		Name:         "CurseForge",
		URL:          "https://www.curseforge.com/minecraft/modpacks",
		Description:  "Official CurseForge modpack repository",
		APIRequired:  true,
		Instructions: "Browse modpacks and copy the download link from the Files tab",
	},
	{
		Name:         "Modrinth",
		URL:          "https://modrinth.com/modpacks",
		Description:  "Modern modpack platform with direct downloads",
		Instructions: "Click on a modpack version and copy the download link",
	},
	{
		Name:         "ATLauncher",
		URL:          "https://atlauncher.com/packs",
		Description:  "ATLauncher modpack repository",
		Instructions: "Find the modpack and look for direct download links",
	},
	{
		Name:         "Technic Platform",
		URL:          "https://www.technicpack.net/modpacks",
		Description:  "Technic modpack platform",
		Instructions: "Browse modpacks and find download links in modpack details",
	},
	{
		Name:         "Feed The Beast",
		URL:          "https://www.feed-the-beast.com/modpacks",
		Description:  "FTB official modpacks",
		Instructions: "Download modpack files directly from FTB website",
	},
}
