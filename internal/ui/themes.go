package ui

import (
	"fmt"
	"io/fs"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"grimm.is/hearth/internal/validation"
)

// FallbackTheme is used when the configured theme is not installed.
const FallbackTheme = "Sparkle"

// Theme is one selectable theme or theme variant.
type Theme struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

type themeConfig struct {
	Name     string `toml:"name"`
	Variants map[string]struct {
		Description string `toml:"description"`
	} `toml:"variants"`
}

// DiscoverThemes lists the themes under root. A theme is a directory with a
// theme.toml; each variant other than "default" becomes "<dir>_<variant>".
// Directories and variants whose names are not identifiers are skipped.
func DiscoverThemes(root fs.FS) ([]Theme, error) {
	entries, err := fs.ReadDir(root, ".")
	if err != nil {
		return nil, fmt.Errorf("read themes: %w", err)
	}

	var themes []Theme
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "misc" || validation.ValidateIdentifier(e.Name()) != nil {
			continue
		}
		data, err := fs.ReadFile(root, e.Name()+"/theme.toml")
		if err != nil {
			continue
		}
		var cfg themeConfig
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("theme %s: %w", e.Name(), err)
		}
		if len(cfg.Variants) == 0 {
			themes = append(themes, Theme{ID: e.Name(), Description: e.Name()})
			continue
		}
		for variant, v := range cfg.Variants {
			switch {
			case validation.ValidateIdentifier(variant) != nil:
			case variant == "default":
				themes = append(themes, Theme{ID: e.Name(), Description: e.Name()})
			case v.Description != "":
				themes = append(themes, Theme{ID: e.Name() + "_" + variant, Description: v.Description})
			default:
				themes = append(themes, Theme{ID: e.Name() + "_" + variant, Description: e.Name() + " (" + variant + ")"})
			}
		}
	}
	sort.Slice(themes, func(i, j int) bool { return themes[i].ID < themes[j].ID })
	return themes, nil
}

// ResolveTheme picks the user's theme, then the system default, falling back
// to FallbackTheme when neither is installed.
func ResolveTheme(themes []Theme, user, system string) string {
	installed := func(id string) bool {
		for _, t := range themes {
			if t.ID == id {
				return true
			}
		}
		return false
	}
	for _, id := range []string{user, system} {
		if id != "" && installed(id) {
			return id
		}
	}
	return FallbackTheme
}
