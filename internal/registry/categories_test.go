package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRegistry = `
categories:
  fine-dining:
    label: Fine Dining
    keywords: [tasting menu, chef's table]
  beach-club:
    label: Beach Club
`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "categories.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCategories(t *testing.T) {
	reg, err := LoadCategories(writeRegistry(t, testRegistry))
	require.NoError(t, err)

	assert.Equal(t, "Fine Dining", reg.Label("fine-dining"))
	assert.Equal(t, []string{"tasting menu", "chef's table"}, reg.Keywords("fine-dining"))
	assert.Equal(t, "Beach Club", reg.Label("beach-club"))
	assert.Nil(t, reg.Keywords("beach-club"))
}

func TestLoadCategories_MissingFile(t *testing.T) {
	_, err := LoadCategories(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadCategories_BadYAML(t *testing.T) {
	_, err := LoadCategories(writeRegistry(t, "categories: [not a map"))
	require.Error(t, err)
}

func TestLabel_FallsBackToHumanizedID(t *testing.T) {
	reg, err := LoadCategories(writeRegistry(t, testRegistry))
	require.NoError(t, err)

	assert.Equal(t, "kids play area", reg.Label("kids-play-area"))
	assert.Equal(t, "", reg.Label(""))
}

func TestNilRegistryIsSafe(t *testing.T) {
	var reg *Registry
	assert.Equal(t, "rooftop lounge", reg.Label("rooftop-lounge"))
	assert.Nil(t, reg.Keywords("rooftop-lounge"))
}
