package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save original env and restore after test
	origEnv := os.Environ()
	t.Cleanup(func() {
		os.Clearenv()
		for _, e := range origEnv {
			for i := 0; i < len(e); i++ {
				if e[i] == '=' {
					os.Setenv(e[:i], e[i+1:])
					break
				}
			}
		}
	})

	t.Run("defaults", func(t *testing.T) {
		os.Clearenv()
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, ":8080", cfg.ListenAddr)
		assert.Equal(t, "data/trending.db", cfg.CachePath)
		assert.Equal(t, "https://github.com", cfg.BaseURL)
		assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
		assert.Equal(t, DefaultLanguages, cfg.Languages)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("custom values", func(t *testing.T) {
		os.Clearenv()
		os.Setenv("LISTEN_ADDR", ":9000")
		os.Setenv("LANGUAGES", "all, go ,rust")
		os.Setenv("FETCH_TIMEOUT", "5s")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, ":9000", cfg.ListenAddr)
		assert.Equal(t, []string{"all", "go", "rust"}, cfg.Languages)
		assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	})

	t.Run("invalid timeout", func(t *testing.T) {
		os.Clearenv()
		os.Setenv("FETCH_TIMEOUT", "soon")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("languages file", func(t *testing.T) {
		os.Clearenv()
		path := filepath.Join(t.TempDir(), "languages.yaml")
		require.NoError(t, os.WriteFile(path, []byte("languages:\n  - all\n  - go\n  - zig\n"), 0644))
		os.Setenv("LANGUAGES_FILE", path)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"all", "go", "zig"}, cfg.Languages)
	})

	t.Run("empty languages file", func(t *testing.T) {
		os.Clearenv()
		path := filepath.Join(t.TempDir(), "languages.yaml")
		require.NoError(t, os.WriteFile(path, []byte("languages: []\n"), 0644))
		os.Setenv("LANGUAGES_FILE", path)

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("explicit list wins over file", func(t *testing.T) {
		os.Clearenv()
		os.Setenv("LANGUAGES", "go")
		os.Setenv("LANGUAGES_FILE", "/does/not/exist.yaml")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"go"}, cfg.Languages)
	})
}

func TestCategories(t *testing.T) {
	cfg := &Config{Languages: []string{"All", "go", "C++"}}
	assert.Equal(t, []string{"", "go", "c++"}, cfg.Categories())
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, "", NormalizeCategory("all"))
	assert.Equal(t, "", NormalizeCategory(" ALL "))
	assert.Equal(t, "", NormalizeCategory(""))
	assert.Equal(t, "rust", NormalizeCategory("Rust"))
}

func TestValidate(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.NoError(t, (&Config{Languages: []string{"go"}}).Validate())

	cfg := &Config{Languages: []string{"go"}}
	assert.Error(t, cfg.ValidateForServe())
	cfg.ListenAddr = ":8080"
	assert.NoError(t, cfg.ValidateForServe())
}
