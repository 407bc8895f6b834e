package catalog

import "strings"

// fallbackPacks are bundled suggestions served when the remote catalog
// is unreachable or no API key is configured. IDs start at 1000000 so
// they never collide with real catalog IDs.
var fallbackPacks = []Modpack{
	{
		ID:         1000000,
		Name:       "All The Mods 9",
		Summary:    "Kitchen sink modpack with tons of mods",
		Categories: []string{"Advanced"},
		Authors:    []string{"Community"},
	},
	{
		ID:         1000001,
		Name:       "FTB Skies",
		Summary:    "Skyblock-style modpack with quests",
		Categories: []string{"Intermediate"},
		Authors:    []string{"Community"},
	},
	{
		ID:         1000002,
		Name:       "Better Minecraft",
		Summary:    "Enhanced vanilla experience with performance mods",
		Categories: []string{"Beginner"},
		Authors:    []string{"Community"},
	},
	{
		ID:         1000003,
		Name:       "Create: Above and Beyond",
		Summary:    "Tech modpack focused on Create mod",
		Categories: []string{"Intermediate"},
		Authors:    []string{"Community"},
	},
	{
		ID:         1000004,
		Name:       "Enigmatica 6",
		Summary:    "Expert-style kitchen sink modpack",
		Categories: []string{"Expert"},
		Authors:    []string{"Community"},
	},
}

func fallbackSearch(opts SearchOptions) []Modpack {
	limit := opts.PageSize
	if limit <= 0 {
		limit = len(fallbackPacks)
	}

	var packs []Modpack
	query := strings.ToLower(opts.Query)
	for _, pack := range fallbackPacks {
		if query != "" &&
			!strings.Contains(strings.ToLower(pack.Name), query) &&
			!strings.Contains(strings.ToLower(pack.Summary), query) {
			continue
		}
		packs = append(packs, pack)
		if len(packs) >= limit {
			break
		}
	}
	return packs
}
