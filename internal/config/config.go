package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// DefaultLanguages mirrors the language set the trending dashboard has
// always shipped with. "all" is the catch-all page.
var DefaultLanguages = []string{
	"all", "c", "c++", "c#", "go", "java", "javascript", "kotlin",
	"php", "python", "ruby", "rust", "swift", "typescript",
}

// Config holds all application configuration.
type Config struct {
	// HTTP server
	ListenAddr string

	// Cache
	CachePath string // empty disables persistence

	// Trending source
	BaseURL      string
	UserAgent    string
	FetchTimeout time.Duration

	// Category set, as configured (language names; "all" = catch-all).
	Languages []string

	// Logging
	LogLevel string
}

// languagesFile is the YAML shape of an external category list.
type languagesFile struct {
	Languages []string `yaml:"languages"`
}

// Load reads configuration from environment variables.
// It automatically loads .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		CachePath:  getEnv("CACHE_PATH", "data/trending.db"),
		BaseURL:    getEnv("TRENDING_BASE_URL", "https://github.com"),
		UserAgent:  getEnv("USER_AGENT", "github-trending-repos/1.0"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
	}

	var err error
	cfg.FetchTimeout, err = time.ParseDuration(getEnv("FETCH_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid FETCH_TIMEOUT: %w", err)
	}

	cfg.Languages, err = loadLanguages(
		getEnv("LANGUAGES", ""),
		getEnv("LANGUAGES_FILE", ""),
	)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if len(c.Languages) == 0 {
		return fmt.Errorf("at least one language is required")
	}
	return nil
}

// ValidateForServe checks configuration needed for serve mode.
func (c *Config) ValidateForServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("LISTEN_ADDR is required")
	}
	return nil
}

// Categories returns the language list as category slugs, with the
// catch-all keyword mapped to the empty-string sentinel.
func (c *Config) Categories() []string {
	categories := make([]string, 0, len(c.Languages))
	for _, lang := range c.Languages {
		categories = append(categories, NormalizeCategory(lang))
	}
	return categories
}

// NormalizeCategory maps a configured language name to its category
// slug: "all" (any case) and the empty string both denote the
// catch-all trending page.
func NormalizeCategory(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "all" {
		return ""
	}
	return lang
}

// loadLanguages resolves the category set: an explicit LANGUAGES list
// wins, then a LANGUAGES_FILE, then the built-in default.
func loadLanguages(csv, path string) ([]string, error) {
	if csv != "" {
		var langs []string
		for _, lang := range strings.Split(csv, ",") {
			if lang = strings.TrimSpace(lang); lang != "" {
				langs = append(langs, lang)
			}
		}
		return langs, nil
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read languages file: %w", err)
		}
		var file languagesFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse languages file: %w", err)
		}
		if len(file.Languages) == 0 {
			return nil, fmt.Errorf("languages file %s lists no languages", path)
		}
		return file.Languages, nil
	}

	return append([]string(nil), DefaultLanguages...), nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
