// Package templates holds the built-in jewelry background templates.
package templates

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"drisya/internal/providers/image"
)

const CategoryJewelry = "jewelry"

// Template is one background scene a product photo can be placed in.
type Template struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Category         string  `json:"category"`
	BackgroundStyle  string  `json:"background_style"`
	LightingPreset   string  `json:"lighting_preset"`
	Description      string  `json:"description"`
	DiffusionPrompt  string  `json:"-"`
	ShadowIntensity  float64 `json:"shadow_intensity"`
	VignetteStrength float64 `json:"vignette_strength"`
	ColorGrading     string  `json:"color_grading"`
}

const preservation = "Ensure the jewelry's design, metal color, gemstone sparkle, and clasp details remain accurate to the original, " +
	"with no alterations in shape, composition, or proportions. " +
	"The environment should feel premium, cinematic, and elegant, emphasizing luxury and craftsmanship."

// Prompt wraps the scene prompt in the preservation instructions and the
// requested output size.
func (t Template) Prompt(size string) string {
	w, h := image.SizeDimensions(size)
	return fmt.Sprintf("%s %s Render at %dx%d px with ultra-realistic studio quality.",
		strings.TrimSpace(t.DiffusionPrompt), preservation, w, h)
}

// Catalog is an immutable template index. The zero value is empty.
type Catalog struct {
	byID  map[string]Template
	order []string
}

// New builds a catalog from ts. IDs are derived from names when unset.
func New(ts ...Template) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Template, len(ts))}
	for _, t := range ts {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("templates: template without a name")
		}
		if t.ID == "" {
			t.ID = Slug(t.Name)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("templates: duplicate id %q", t.ID)
		}
		if t.Category == "" {
			t.Category = CategoryJewelry
		}
		c.byID[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	return c, nil
}

// Default returns the built-in jewelry catalog.
func Default() *Catalog {
	c, err := New(builtin...)
	if err != nil {
		panic(err)
	}
	return c
}

// Get looks a template up by ID. Display names are accepted too.
func (c *Catalog) Get(id string) (Template, bool) {
	if c == nil {
		return Template{}, false
	}
	t, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		t, ok = c.byID[Slug(id)]
	}
	return t, ok
}

// List returns templates in catalog order, filtered by category when one is
// given.
func (c *Catalog) List(category string) []Template {
	if c == nil {
		return nil
	}
	category = strings.ToLower(strings.TrimSpace(category))
	out := make([]Template, 0, len(c.order))
	for _, id := range c.order {
		t := c.byID[id]
		if category != "" && t.Category != category {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Categories returns the distinct category labels, title-cased for display.
func (c *Catalog) Categories() []string {
	if c == nil {
		return nil
	}
	title := cases.Title(language.Und)
	seen := map[string]struct{}{}
	var out []string
	for _, t := range c.byID {
		if _, ok := seen[t.Category]; ok {
			continue
		}
		seen[t.Category] = struct{}{}
		out = append(out, title.String(t.Category))
	}
	sort.Strings(out)
	return out
}

// Prompt resolves a template ID to its full prompt for size.
func (c *Catalog) Prompt(id, size string) (string, bool) {
	t, ok := c.Get(id)
	if !ok {
		return "", false
	}
	return t.Prompt(size), true
}

// Slug lower-cases name and joins its words with dashes.
func Slug(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return strings.Join(fields, "-")
}
