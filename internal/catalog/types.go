package catalog

import "time"

// Modpack is a summary entry returned by Search.
type Modpack struct {
	ID            int       `json:"id"`
	Name          string    `json:"name"`
	Summary       string    `json:"summary"`
	DownloadCount int64     `json:"download_count"`
	Categories    []string  `json:"categories,omitempty"`
	Authors       []string  `json:"authors,omitempty"`
	LogoURL       string    `json:"logo_url,omitempty"`
	LastUpdated   time.Time `json:"last_updated"`
}

// ModpackDetails carries the full description of a modpack.
type ModpackDetails struct {
	Modpack
	Description       string   `json:"description"`
	Screenshots       []string `json:"screenshots,omitempty"`
	GameVersionLatest string   `json:"game_version_latest,omitempty"`
	ModLoader         string   `json:"mod_loader,omitempty"`
}

// ModpackVersion is a downloadable file belonging to a modpack.
type ModpackVersion struct {
	ID           int       `json:"id"`
	DisplayName  string    `json:"display_name"`
	FileName     string    `json:"file_name"`
	FileDate     time.Time `json:"file_date"`
	DownloadURL  string    `json:"download_url"`
	GameVersions []string  `json:"game_versions,omitempty"`
	ModLoader    string    `json:"mod_loader,omitempty"`
	FileSize     int64     `json:"file_size"`
}

// SearchOptions narrows a modpack search.
type SearchOptions struct {
	Query     string
	Category  string
	SortField string
	SortOrder string
	PageSize  int
	Index     int
}

// The remote API's raw response shapes. Only the fields we consume are
// declared.
type apiEnvelope struct {
	Data []apiMod `json:"data"`
}

type apiSingleEnvelope struct {
	Data *apiMod `json:"data"`
}

type apiFileEnvelope struct {
	Data []apiFile `json:"data"`
}

type apiMod struct {
	ID            int        `json:"id"`
	Name          string     `json:"name"`
	Summary       string     `json:"summary"`
	Description   string     `json:"description"`
	DownloadCount int64      `json:"downloadCount"`
	DateModified  string     `json:"dateModified"`
	Categories    []apiNamed `json:"categories"`
	Authors       []apiNamed `json:"authors"`
	Logo          *apiAsset  `json:"logo"`
	Screenshots   []apiAsset `json:"screenshots"`
	LatestIndexes []apiIndex `json:"latestFilesIndexes"`
}

type apiNamed struct {
	Name string `json:"name"`
}

type apiAsset struct {
	URL string `json:"url"`
}

type apiIndex struct {
	GameVersion string `json:"gameVersion"`
	ModLoader   string `json:"modLoader"`
}

type apiFile struct {
	ID           int      `json:"id"`
	DisplayName  string   `json:"displayName"`
	FileName     string   `json:"fileName"`
	FileDate     string   `json:"fileDate"`
	DownloadURL  string   `json:"downloadUrl"`
	GameVersions []string `json:"gameVersions"`
	FileLength   int64    `json:"fileLength"`
}

func (m apiMod) toModpack() Modpack {
	pack := Modpack{
		ID:            m.ID,
		Name:          m.Name,
		Summary:       m.Summary,
		DownloadCount: m.DownloadCount,
	}
	for _, c := range m.Categories {
		pack.Categories = append(pack.Categories, c.Name)
	}
	for _, a := range m.Authors {
		pack.Authors = append(pack.Authors, a.Name)
	}
	if m.Logo != nil {
		pack.LogoURL = m.Logo.URL
	}
	if m.DateModified != "" {
		if t, err := time.Parse(time.RFC3339, m.DateModified); err == nil {
			pack.LastUpdated = t
		}
	}
	return pack
}

func (m apiMod) toDetails() ModpackDetails {
	details := ModpackDetails{
		Modpack:     m.toModpack(),
		Description: m.Description,
	}
	for _, s := range m.Screenshots {
		details.Screenshots = append(details.Screenshots, s.URL)
	}
	if len(m.LatestIndexes) > 0 {
		details.GameVersionLatest = m.LatestIndexes[0].GameVersion
		details.ModLoader = m.LatestIndexes[0].ModLoader
	}
	return details
}

func (f apiFile) toVersion() ModpackVersion {
	version := ModpackVersion{
		ID:           f.ID,
		DisplayName:  f.DisplayName,
		FileName:     f.FileName,
		DownloadURL:  f.DownloadURL,
		GameVersions: f.GameVersions,
		FileSize:     f.FileLength,
	}
	if f.FileDate != "" {
		if t, err := time.Parse(time.RFC3339, f.FileDate); err == nil {
			version.FileDate = t
		}
	}
	return version
}
