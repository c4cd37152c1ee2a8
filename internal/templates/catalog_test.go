package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	all := c.List("")
	require.Len(t, all, 9)
	assert.Equal(t, "ivory-silk-luxury-scene", all[0].ID)
	assert.Len(t, c.List("Jewelry"), 9)
	assert.Empty(t, c.List("food"))
	assert.Equal(t, []string{"Jewelry"}, c.Categories())
}

func TestGetAcceptsIDOrName(t *testing.T) {
	c := Default()
	byID, ok := c.Get("charcoal-velvet-noir")
	require.True(t, ok)
	byName, ok := c.Get("Charcoal Velvet Noir")
	require.True(t, ok)
	assert.Equal(t, byID, byName)

	_, ok = c.Get("neon-disco")
	assert.False(t, ok)
}

func TestPromptWrapsPreservationAndSize(t *testing.T) {
	c := Default()
	p, ok := c.Prompt("white-marble-luxe", "512x512")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(p, "Use the uploaded jewelry image."))
	assert.Contains(t, p, "no alterations in shape")
	assert.True(t, strings.HasSuffix(p, "Render at 512x512 px with ultra-realistic studio quality."))

	p, _ = c.Prompt("white-marble-luxe", "")
	assert.Contains(t, p, "1024x1024 px")

	_, ok = c.Prompt("missing", "")
	assert.False(t, ok)
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New(Template{Name: "Silk"}, Template{Name: "silk"})
	assert.Error(t, err)
	_, err = New(Template{})
	assert.Error(t, err)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "rose-gold-silk", Slug("  Rose Gold   Silk!"))
	assert.Equal(t, "", Slug("***"))
}

func TestNilCatalog(t *testing.T) {
	var c *Catalog
	_, ok := c.Prompt("x", "")
	assert.False(t, ok)
	assert.Nil(t, c.List(""))
}
