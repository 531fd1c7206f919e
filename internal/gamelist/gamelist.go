// Package gamelist reads EmulationStation gamelist.xml catalogs. Each system
// directory under the ROMs root owns one catalog describing its games; the
// package answers per-ROM metadata lookups and whole-collection scans.
package gamelist

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/retropie-ha/retropie-ha/internal/state"
)

// Game is a single <game> entry. Scrapers disagree on the name tag, so both
// <name> and the shorthand <n> are decoded; Title picks between them.
type Game struct {
	Path        string `xml:"path"`
	Name        string `xml:"name"`
	AltName     string `xml:"n"`
	Desc        string `xml:"desc"`
	Genre       string `xml:"genre"`
	Developer   string `xml:"developer"`
	Publisher   string `xml:"publisher"`
	Rating      string `xml:"rating"`
	ReleaseDate string `xml:"releasedate"`
	Favorite    string `xml:"favorite"`
	KidGame     string `xml:"kidgame"`
	Image       string `xml:"image"`
	Thumbnail   string `xml:"thumbnail"`
	Marquee     string `xml:"marquee"`
}

// Title returns the display name, preferring <name> over <n>.
func (g Game) Title() string {
	if g.Name != "" {
		return g.Name
	}
	return g.AltName
}

// IsFavorite reports whether the entry carries <favorite>true</favorite>.
func (g Game) IsFavorite() bool { return flag(g.Favorite) }

// IsKidFriendly reports whether the entry carries <kidgame>true</kidgame>.
func (g Game) IsKidFriendly() bool { return flag(g.KidGame) }

func flag(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// document matches any root element so both <gameList> and <gamelist>
// spellings decode.
type document struct {
	Games []Game `xml:"game"`
}

// Metadata is the catalog subset attached to game-start event payloads.
// ImageData carries the thumbnail base64-encoded; larger artwork kinds are
// deliberately not embedded to keep payloads small.
type Metadata struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Developer   string `json:"developer,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	Rating      string `json:"rating,omitempty"`
	ReleaseDate string `json:"release_date,omitempty"`
	ImagePath   string `json:"image_path,omitempty"`
	ImageData   string `json:"image_data,omitempty"`
}

// Fields returns the populated metadata as payload fields, skipping empties.
func (m Metadata) Fields() map[string]any {
	out := map[string]any{}
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put("name", m.Name)
	put("description", m.Description)
	put("genre", m.Genre)
	put("developer", m.Developer)
	put("publisher", m.Publisher)
	put("rating", m.Rating)
	put("release_date", m.ReleaseDate)
	put("image_path", m.ImagePath)
	put("image_data", m.ImageData)
	return out
}

// Catalog resolves lookups and scans against a ROMs root directory.
type Catalog struct {
	romsDir string
	log     *slog.Logger
}

// New returns a Catalog rooted at romsDir.
func New(romsDir string, log *slog.Logger) *Catalog {
	if log == nil {
		log = slog.Default()
	}
	return &Catalog{romsDir: romsDir, log: log}
}

// Lookup finds the catalog entry for romPath in the given system's
// gamelist.xml. Entries match on ROM file basename after stripping the "./"
// prefix EmulationStation writes. Missing catalogs and unknown ROMs degrade
// to an empty result with ok=false rather than an error.
func (c *Catalog) Lookup(system, romPath string) (Metadata, bool) {
	listPath := filepath.Join(c.romsDir, system, "gamelist.xml")
	games, err := ParseFile(listPath)
	if err != nil {
		if os.IsNotExist(err) {
			c.log.Warn("gamelist.xml not found for system", "system", system, "path", listPath)
		} else {
			c.log.Warn("failed to parse gamelist.xml", "system", system, "error", err)
		}
		return Metadata{}, false
	}

	want := filepath.Base(cleanRelPath(romPath))
	for _, g := range games {
		if filepath.Base(cleanRelPath(g.Path)) != want {
			continue
		}
		meta := Metadata{
			Name:        g.Title(),
			Description: g.Desc,
			Genre:       g.Genre,
			Developer:   g.Developer,
			Publisher:   g.Publisher,
			Rating:      g.Rating,
			ReleaseDate: g.ReleaseDate,
		}
		if g.Thumbnail != "" {
			imgPath := filepath.Join(c.romsDir, system, cleanRelPath(g.Thumbnail))
			if data, err := os.ReadFile(imgPath); err == nil {
				meta.ImagePath = imgPath
				meta.ImageData = base64.StdEncoding.EncodeToString(data)
			} else if !os.IsNotExist(err) {
				c.log.Warn("failed to read thumbnail", "path", imgPath, "error", err)
			}
		}
		return meta, true
	}

	c.log.Warn("game not found in gamelist.xml", "system", system, "rom", romPath)
	return Metadata{}, false
}

// Scan walks every system directory under the ROMs root and tallies
// collection counts from each gamelist.xml. Systems without a catalog are
// skipped; a catalog that fails to parse is logged and skipped so one broken
// file cannot hide the rest of the collection.
func (c *Catalog) Scan() (state.CollectionStats, error) {
	entries, err := os.ReadDir(c.romsDir)
	if err != nil {
		return state.CollectionStats{}, fmt.Errorf("reading roms dir %s: %w", c.romsDir, err)
	}

	now := time.Now().UTC()
	stats := state.CollectionStats{
		LastScanAt:      &now,
		PerSystemCounts: map[string]state.Counts{},
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		system := e.Name()
		games, err := ParseFile(filepath.Join(c.romsDir, system, "gamelist.xml"))
		if err != nil {
			if !os.IsNotExist(err) {
				c.log.Warn("skipping unreadable gamelist.xml", "system", system, "error", err)
			}
			continue
		}
		var counts state.Counts
		for _, g := range games {
			counts.Games++
			if g.IsFavorite() {
				counts.Favorites++
			}
			if g.IsKidFriendly() {
				counts.KidFriendly++
			}
		}
		stats.PerSystemCounts[system] = counts
		stats.TotalGames += counts.Games
		stats.Favorites += counts.Favorites
		stats.KidFriendly += counts.KidFriendly
	}
	return stats, nil
}

// ParseFile decodes one gamelist.xml document.
func ParseFile(path string) ([]Game, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return doc.Games, nil
}

// cleanRelPath strips the leading "./" EmulationStation prefixes paths with.
func cleanRelPath(p string) string {
	return strings.TrimPrefix(strings.TrimSpace(p), "./")
}
