/*
Package factory provides JSON to Go palette conversion.

PURPOSE:
  Converts a JSON chart palette into a ledger.Palette so category colors
  can be changed without code changes. Categories not listed in the file
  keep their built-in color.

JSON SCHEMA:
  {
    "categories": {
      "Customer Payment": "#4CAF50",
      "Rent": "#795548"
    },
    "fallback": ["#FF6384", "#36A2EB", "#FFCE56", "#4BC0C0"],
    "replace_defaults": false
  }

KEY FEATURES:
  - Validates every color as #RGB or #RRGGBB
  - Merges onto ledger.DefaultPalette unless replace_defaults is set
  - Keeps the default fallback cycle when none is given

USAGE:
  palette, err := factory.LoadPalette("./palette.json")
  handler := api.NewHandler(store, palette)

SEE ALSO:
  - ledger/summary.go: Palette type and Color lookup
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/warp/trackpay/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PaletteJSON is the JSON representation of a palette.
type PaletteJSON struct {
	Categories      map[string]string `json:"categories,omitempty"`
	Fallback        []string          `json:"fallback,omitempty"`
	ReplaceDefaults bool              `json:"replace_defaults,omitempty"`
}

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// =============================================================================
// PARSING
// =============================================================================

// ParsePalette converts JSON into a palette.
func ParsePalette(data []byte) (ledger.Palette, error) {
	var pj PaletteJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return ledger.Palette{}, fmt.Errorf("invalid palette JSON: %w", err)
	}
	return pj.Palette()
}

// LoadPalette reads a palette file. An empty path returns the defaults.
func LoadPalette(path string) (ledger.Palette, error) {
	if path == "" {
		return ledger.DefaultPalette(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ledger.Palette{}, fmt.Errorf("failed to read palette %s: %w", path, err)
	}
	return ParsePalette(data)
}

// Palette validates pj and merges it with the defaults.
func (pj PaletteJSON) Palette() (ledger.Palette, error) {
	out := ledger.DefaultPalette()
	if pj.ReplaceDefaults {
		out.Known = make(map[string]string)
	}

	for name, color := range pj.Categories {
		name = strings.TrimSpace(name)
		if name == "" {
			return ledger.Palette{}, fmt.Errorf("palette category name is empty")
		}
		if !hexColor.MatchString(color) {
			return ledger.Palette{}, fmt.Errorf("palette color %q for %s is not a hex color", color, name)
		}
		out.Known[name] = color
	}

	if len(pj.Fallback) > 0 {
		for _, color := range pj.Fallback {
			if !hexColor.MatchString(color) {
				return ledger.Palette{}, fmt.Errorf("palette fallback color %q is not a hex color", color)
			}
		}
		out.Fallback = append([]string{}, pj.Fallback...)
	}

	return out, nil
}
