package tenant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Acme Co":              "acme-co",
		"  Lots   of  space ":  "lots-of-space",
		"Crème Brûlée Labs":    "creme-brulee-labs",
		"already-kebab-case":   "already-kebab-case",
		"Q3 / Roadmap (draft)": "q3-roadmap-draft",
		"!!!":                  "project",
		"":                     "project",
		"東京":                   "project",
	}

	for in, want := range cases {
		require.Equal(t, want, Slugify(in), "input %q", in)
	}
}

func TestBuildSlug(t *testing.T) {
	t.Parallel()

	slug := BuildSlug("Alice's Project", "x7k2qa")
	require.Equal(t, "alice-s-project-x7k2qa", slug)
	require.True(t, ValidSlug(slug))
}

func TestValidSlug(t *testing.T) {
	t.Parallel()

	require.True(t, ValidSlug("abc-123"))
	require.False(t, ValidSlug("-abc"))
	require.False(t, ValidSlug("abc--def"))
	require.False(t, ValidSlug("Abc"))
	require.False(t, ValidSlug(""))
}
