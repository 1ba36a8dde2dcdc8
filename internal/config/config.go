package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/coursekit/coursekit/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
)

// localePattern matches two-letter language codes with an optional region.
var localePattern = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)

// hexColor matches #rgb and #rrggbb values.
var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Config holds all configuration for course compilation.
type Config struct {
	Content ContentConfig `yaml:"content"`
	Output  OutputConfig  `yaml:"output"`
	Site    SiteConfig    `yaml:"site"`
	Build   BuildConfig   `yaml:"build"`
}

// ContentConfig defines where course sources live.
type ContentConfig struct {
	Dir     string   `yaml:"dir"`     // Course source root (default: "content")
	Courses []string `yaml:"courses"` // Course ids to compile (empty = all)
	Locales []string `yaml:"locales"` // Locales to compile (default: ["en"])
}

// OutputConfig defines where compiled artifacts are written.
type OutputConfig struct {
	Dir string `yaml:"dir"` // Artifact root (default: "public/content")
}

// SiteConfig carries site-wide values baked into the compiled HTML.
type SiteConfig struct {
	Domain       string `yaml:"domain"`       // Links to this domain stay in the same tab
	EmojiURL     string `yaml:"emojiURL"`     // Base URL for :emoji: images
	DefaultColor string `yaml:"defaultColor"` // Course color fallback (default: "#2274e8")
}

// BuildConfig defines compilation options.
type BuildConfig struct {
	Workers int  `yaml:"workers"` // Concurrent course compilations (0 = auto)
	Watch   bool `yaml:"watch"`   // Recompile on source changes
}

// Validate checks locale codes, colors and worker counts.
// Called automatically by LoadConfig, but available for consumers who
// construct Config manually.
func (c *Config) Validate() error {
	for _, locale := range c.Content.Locales {
		if !localePattern.MatchString(locale) {
			return fmt.Errorf("content.locales: invalid locale code %q", locale)
		}
	}
	if c.Site.DefaultColor != "" && !hexColor.MatchString(c.Site.DefaultColor) {
		return fmt.Errorf("site.defaultColor: invalid color %q", c.Site.DefaultColor)
	}
	if c.Build.Workers < 0 {
		return fmt.Errorf("build.workers: must be non-negative, got %d", c.Build.Workers)
	}
	return nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Content: ContentConfig{
			Dir:     "content",
			Locales: []string{"en"},
		},
		Output: OutputConfig{Dir: filepath.Join("public", "content")},
		Site: SiteConfig{
			EmojiURL:     "/images/emoji",
			DefaultColor: "#2274e8",
		},
	}
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if isFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yamlutil.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// isFilePath returns true if the string looks like a file path.
func isFilePath(s string) bool {
	return strings.ContainsAny(s, "/\\")
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, ~/.config/coursekit/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2) // 2 locations

	// Try current directory first (both extensions)
	for _, ext := range extensions {
		localPath := name + ext
		if fileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	// Try user config directory (both extensions)
	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, "coursekit", name+ext)
			if fileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}

// fileExists returns true if the path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
