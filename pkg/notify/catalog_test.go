package notify_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
)

func TestCatalog_Translate(t *testing.T) {
	catalog, err := notify.ParseCatalog([]byte(`
en:
  greeting: "Hello :name, meet :name_full"
  plain: "No placeholders"
`))
	require.NoError(t, err)

	testCases := []struct {
		name     string
		key      string
		vars     map[string]string
		locale   notify.Locale
		expected string
	}{
		{
			name:     "Longer placeholder wins",
			key:      "greeting",
			vars:     map[string]string{"name": "Ann", "name_full": "Ann Lee"},
			locale:   "en",
			expected: "Hello Ann, meet Ann Lee",
		},
		{name: "No vars", key: "plain", locale: "en", expected: "No placeholders"},
		{name: "Missing key", key: "unknown", locale: "en", expected: "unknown"},
		{name: "Missing locale", key: "plain", locale: "fr", expected: "plain"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, catalog.Translate(tc.key, tc.vars, tc.locale))
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "translations.yaml")
		require.NoError(t, os.WriteFile(path, []byte("de:\n  hi: \"Hallo\"\n"), 0o600))

		catalog, err := notify.LoadCatalog(path)
		require.NoError(t, err)
		assert.Equal(t, "Hallo", catalog.Translate("hi", nil, "de"))
	})

	t.Run("Failure - missing file", func(t *testing.T) {
		_, err := notify.LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("Failure - malformed yaml", func(t *testing.T) {
		_, err := notify.ParseCatalog([]byte("en: [unclosed"))
		assert.Error(t, err)
	})
}
