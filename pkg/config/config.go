package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable the loader reads
const EnvPrefix = "IMGHARVEST_"

// Config holds all configuration options for a harvest run. It is built once
// by Load and treated as read-only afterwards.
type Config struct {
	// Categories maps the dataset label (directory name) to its search query
	Categories map[string]string `yaml:"categories" toml:"categories" json:"categories"`

	Harvest   HarvestConfig   `yaml:"harvest" toml:"harvest" json:"harvest"`
	Download  DownloadConfig  `yaml:"download" toml:"download" json:"download"`
	Browser   BrowserConfig   `yaml:"browser" toml:"browser" json:"browser"`
	Fetch     FetchConfig     `yaml:"fetch" toml:"fetch" json:"fetch"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit" json:"rate_limit"`
	Output    OutputConfig    `yaml:"output" toml:"output" json:"output"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging" json:"logging"`
}

// Category is a single labeled search driving one pipeline run
type Category struct {
	Name  string
	Query string
}

// HarvestConfig controls candidate discovery on the search result page
type HarvestConfig struct {
	SearchURL             string        `yaml:"search_url" toml:"search_url" json:"search_url"`
	TargetCount           int           `yaml:"target_count_per_category" toml:"target_count_per_category" json:"target_count_per_category"`
	FetchMultiplier       float64       `yaml:"fetch_multiplier" toml:"fetch_multiplier" json:"fetch_multiplier"`
	MaxScrollIterations   int           `yaml:"max_scroll_iterations" toml:"max_scroll_iterations" json:"max_scroll_iterations"`
	SufficientPerSnapshot int           `yaml:"sufficient_per_snapshot" toml:"sufficient_per_snapshot" json:"sufficient_per_snapshot"`
	MinNewPerScroll       int           `yaml:"min_new_per_scroll" toml:"min_new_per_scroll" json:"min_new_per_scroll"`
	NoProgressLimit       int           `yaml:"no_progress_limit" toml:"no_progress_limit" json:"no_progress_limit"`
	ScrollPause           time.Duration `yaml:"scroll_pause" toml:"scroll_pause" json:"scroll_pause"`
	MaxScrollPause        time.Duration `yaml:"max_scroll_pause" toml:"max_scroll_pause" json:"max_scroll_pause"`
	PauseGrowth           float64       `yaml:"pause_growth" toml:"pause_growth" json:"pause_growth"`
}

// DownloadConfig holds download and validation settings
type DownloadConfig struct {
	ConcurrentDownloads  int           `yaml:"concurrent_downloads" toml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout      time.Duration `yaml:"download_timeout" toml:"download_timeout" json:"download_timeout"`
	RetryAttempts        int           `yaml:"retry_attempts" toml:"retry_attempts" json:"retry_attempts"`
	RetryDelay           time.Duration `yaml:"retry_delay" toml:"retry_delay" json:"retry_delay"`
	MinFileBytes         int64         `yaml:"min_file_bytes" toml:"min_file_bytes" json:"min_file_bytes"`
	MaxFileBytes         int64         `yaml:"max_file_bytes" toml:"max_file_bytes" json:"max_file_bytes"`
	MinImageDimension    int           `yaml:"min_image_dimension" toml:"min_image_dimension" json:"min_image_dimension"`
	DelayMin             time.Duration `yaml:"delay_min" toml:"delay_min" json:"delay_min"`
	DelayMax             time.Duration `yaml:"delay_max" toml:"delay_max" json:"delay_max"`
	Shuffle              bool          `yaml:"shuffle" toml:"shuffle" json:"shuffle"`
	RequireContentLength bool          `yaml:"require_content_length" toml:"require_content_length" json:"require_content_length"`
}

// BrowserConfig controls the page driver
type BrowserConfig struct {
	Headless         bool          `yaml:"headless" toml:"headless" json:"headless"`
	NoSandbox        bool          `yaml:"no_sandbox" toml:"no_sandbox" json:"no_sandbox"`
	BrowserBin       string        `yaml:"browser_bin" toml:"browser_bin" json:"browser_bin"`
	ControlURL       string        `yaml:"control_url" toml:"control_url" json:"control_url"`
	Proxy            string        `yaml:"proxy" toml:"proxy" json:"proxy"`
	Stealth          bool          `yaml:"stealth" toml:"stealth" json:"stealth"`
	PageLoadTimeout  time.Duration `yaml:"page_load_timeout" toml:"page_load_timeout" json:"page_load_timeout"`
	ReadySelector    string        `yaml:"ready_selector" toml:"ready_selector" json:"ready_selector"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" toml:"recovery_timeout" json:"recovery_timeout"`
	RecoveryPoll     time.Duration `yaml:"recovery_poll" toml:"recovery_poll" json:"recovery_poll"`
	BlockedResources []string      `yaml:"blocked_resources" toml:"blocked_resources" json:"blocked_resources"`
}

// FetchConfig holds the outbound HTTP settings used for asset retrieval
type FetchConfig struct {
	UserAgent      string `yaml:"user_agent" toml:"user_agent" json:"user_agent"`
	AcceptLanguage string `yaml:"accept_language" toml:"accept_language" json:"accept_language"`
	Referer        string `yaml:"referer" toml:"referer" json:"referer"`
	Proxy          string `yaml:"proxy" toml:"proxy" json:"proxy"`
	ChromeTLS      bool   `yaml:"chrome_tls" toml:"chrome_tls" json:"chrome_tls"`
}

// RateLimitConfig holds rate limiting configuration for asset fetches
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" toml:"requests_per_minute" json:"requests_per_minute"`
	Burst             int `yaml:"burst" toml:"burst" json:"burst"`
}

// OutputConfig holds dataset layout configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" toml:"base_directory" json:"base_directory"`
	// WriteManifest adds manifest.json with per-image provenance to each
	// category directory
	WriteManifest bool `yaml:"write_manifest" toml:"write_manifest" json:"write_manifest"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level" json:"level"`
	File    string `yaml:"file" toml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" toml:"no_color" json:"no_color"`
}

// DefaultReadySelector marks a rendered result tile on the default search page
const DefaultReadySelector = ".serp-item__link"

// DefaultUserAgent is sent with every asset fetch unless overridden
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Categories: map[string]string{
			"polar_bear": "polar bear",
			"brown_bear": "brown bear",
		},
		Harvest: HarvestConfig{
			SearchURL:             "https://yandex.ru/images/search?text=%s",
			TargetCount:           1000,
			FetchMultiplier:       1.5,
			MaxScrollIterations:   40,
			SufficientPerSnapshot: 20,
			MinNewPerScroll:       5,
			NoProgressLimit:       3,
			ScrollPause:           2 * time.Second,
			MaxScrollPause:        8 * time.Second,
			PauseGrowth:           1.5,
		},
		Download: DownloadConfig{
			ConcurrentDownloads:  4,
			DownloadTimeout:      10 * time.Second,
			RetryAttempts:        2,
			RetryDelay:           500 * time.Millisecond,
			MinFileBytes:         5 * 1024,
			MaxFileBytes:         25 << 20,
			MinImageDimension:    100,
			DelayMin:             200 * time.Millisecond,
			DelayMax:             800 * time.Millisecond,
			Shuffle:              true,
			RequireContentLength: true,
		},
		Browser: BrowserConfig{
			Headless:         false,
			Stealth:          true,
			ReadySelector:    DefaultReadySelector,
			PageLoadTimeout:  10 * time.Second,
			RecoveryTimeout:  60 * time.Second,
			RecoveryPoll:     2 * time.Second,
			BlockedResources: []string{"Font", "Media"},
		},
		Fetch: FetchConfig{
			UserAgent:      DefaultUserAgent,
			AcceptLanguage: "en-US,en;q=0.9",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 240,
			Burst:             4,
		},
		Output: OutputConfig{
			BaseDirectory: "dataset",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// CategoryList returns the configured categories sorted by name so runs are
// processed in a stable order
func (c *Config) CategoryList() []Category {
	names := make([]string, 0, len(c.Categories))
	for name := range c.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]Category, 0, len(names))
	for _, name := range names {
		list = append(list, Category{Name: name, Query: c.Categories[name]})
	}
	return list
}

// CandidateTarget is the oversampled number of candidate URLs the scroll
// phase tries to collect for one category
func (c *Config) CandidateTarget() int {
	n := int(math.Ceil(float64(c.Harvest.TargetCount) * c.Harvest.FetchMultiplier))
	if n < c.Harvest.TargetCount {
		return c.Harvest.TargetCount
	}
	return n
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	envInt := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	envBool := func(name string, dst *bool) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	envString := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv(EnvPrefix + "CATEGORIES"); v != "" {
		cats, err := ParseCategories(strings.Split(v, ";"))
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCATEGORIES: %w", EnvPrefix, err))
		} else {
			c.Categories = cats
		}
	}
	if v := os.Getenv(EnvPrefix + "FETCH_MULTIPLIER"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sFETCH_MULTIPLIER: %w", EnvPrefix, err))
		} else {
			c.Harvest.FetchMultiplier = f
		}
	}

	envString("SEARCH_URL", &c.Harvest.SearchURL)
	envInt("TARGET_COUNT", &c.Harvest.TargetCount)
	envInt("MAX_SCROLL_ITERATIONS", &c.Harvest.MaxScrollIterations)
	envInt("CONCURRENT_DOWNLOADS", &c.Download.ConcurrentDownloads)
	envInt("MIN_IMAGE_DIMENSION", &c.Download.MinImageDimension)
	envInt("REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute)
	envBool("HEADLESS", &c.Browser.Headless)
	envBool("NO_SANDBOX", &c.Browser.NoSandbox)
	envString("BROWSER_BIN", &c.Browser.BrowserBin)
	envString("CONTROL_URL", &c.Browser.ControlURL)
	envString("PROXY", &c.Browser.Proxy)
	envString("PROXY", &c.Fetch.Proxy)
	envString("USER_AGENT", &c.Fetch.UserAgent)
	envString("OUTPUT_DIR", &c.Output.BaseDirectory)
	envBool("WRITE_MANIFEST", &c.Output.WriteManifest)
	envString("LOG_LEVEL", &c.Logging.Level)

	if v := os.Getenv(EnvPrefix + "MIN_FILE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMIN_FILE_BYTES: %w", EnvPrefix, err))
		} else {
			c.Download.MinFileBytes = n
		}
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML or TOML file. The format is
// chosen by extension; anything other than .toml is parsed as YAML.
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// A file that lists categories replaces the defaults instead of merging
	defaults := c.Categories
	c.Categories = nil

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), c); err != nil {
			c.Categories = defaults
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, c); err != nil {
		c.Categories = defaults
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if len(c.Categories) == 0 {
		c.Categories = defaults
	}
	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"imgharvest.yaml",
		"imgharvest.yml",
		"imgharvest.toml",
		filepath.Join(home, ".config", "imgharvest", "config.yaml"),
		filepath.Join(home, ".config", "imgharvest", "config.toml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if len(c.Categories) == 0 {
		errs = append(errs, errors.New("at least one category is required"))
	}
	for name, query := range c.Categories {
		if err := validateCategoryName(name); err != nil {
			errs = append(errs, err)
		}
		if strings.TrimSpace(query) == "" {
			errs = append(errs, fmt.Errorf("category %q has an empty query", name))
		}
	}

	// Harvest
	if !strings.Contains(c.Harvest.SearchURL, "%s") {
		errs = append(errs, errors.New("search URL must contain a %s placeholder for the query"))
	}
	if c.Harvest.TargetCount <= 0 {
		errs = append(errs, errors.New("target count per category must be positive"))
	}
	if c.Harvest.FetchMultiplier < 1 {
		errs = append(errs, errors.New("fetch multiplier must be at least 1"))
	}
	if c.Harvest.MaxScrollIterations <= 0 {
		errs = append(errs, errors.New("max scroll iterations must be positive"))
	}
	if c.Harvest.NoProgressLimit <= 0 {
		errs = append(errs, errors.New("no-progress limit must be positive"))
	}
	if c.Harvest.ScrollPause <= 0 || c.Harvest.MaxScrollPause < c.Harvest.ScrollPause {
		errs = append(errs, errors.New("scroll pause must be positive and not exceed the max scroll pause"))
	}
	if c.Harvest.PauseGrowth < 1 {
		errs = append(errs, errors.New("pause growth must be at least 1"))
	}

	// Download
	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 32 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 32"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.RetryAttempts < 0 {
		errs = append(errs, errors.New("retry attempts cannot be negative"))
	}
	if c.Download.MinFileBytes < 0 {
		errs = append(errs, errors.New("min file bytes cannot be negative"))
	}
	if c.Download.MaxFileBytes > 0 && c.Download.MaxFileBytes < c.Download.MinFileBytes {
		errs = append(errs, errors.New("max file bytes must not be below min file bytes"))
	}
	if c.Download.MinImageDimension < 1 {
		errs = append(errs, errors.New("min image dimension must be positive"))
	}
	if c.Download.DelayMin < 0 || c.Download.DelayMax < c.Download.DelayMin {
		errs = append(errs, errors.New("download delay range is invalid"))
	}

	// Browser
	if c.Browser.PageLoadTimeout <= 0 {
		errs = append(errs, errors.New("page load timeout must be positive"))
	}
	if c.Browser.RecoveryTimeout <= 0 {
		errs = append(errs, errors.New("recovery timeout must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// validateCategoryName rejects names that cannot serve as a single directory
func validateCategoryName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("category name cannot be empty")
	case name == "." || name == "..":
		return fmt.Errorf("category name %q is not a valid directory name", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("category name %q must not contain path separators", name)
	}
	return nil
}

// ParseCategories parses "name=query" pairs as given on the command line or
// in IMGHARVEST_CATEGORIES
func ParseCategories(pairs []string) (map[string]string, error) {
	cats := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, query, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("category %q must have the form name=query", pair)
		}
		cats[strings.TrimSpace(name)] = strings.TrimSpace(query)
	}
	if len(cats) == 0 {
		return nil, errors.New("no categories given")
	}
	return cats, nil
}

// Save saves the configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if cats, ok := flags["categories"].(map[string]string); ok && len(cats) > 0 {
		c.Categories = cats
	}
	if searchURL, ok := flags["search-url"].(string); ok && searchURL != "" {
		c.Harvest.SearchURL = searchURL
	}
	if target, ok := flags["target"].(int); ok && target > 0 {
		c.Harvest.TargetCount = target
	}
	if multiplier, ok := flags["multiplier"].(float64); ok && multiplier > 0 {
		c.Harvest.FetchMultiplier = multiplier
	}
	if maxScroll, ok := flags["max-scroll"].(int); ok && maxScroll > 0 {
		c.Harvest.MaxScrollIterations = maxScroll
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Download.ConcurrentDownloads = concurrent
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = headless
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if noColor, ok := flags["no-color"].(bool); ok && noColor {
		c.Logging.NoColor = true
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".imgharvest.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
