package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	appLog "calview/internal/log"
	"calview/internal/model"
)

// Source kinds.
const (
	SourceHTTP = "http" // event server JSON API (/api/events)
	SourceICS  = "ics"  // iCalendar file path or URL
)

// SourceConfig describes one event source.
type SourceConfig struct {
	// ID is an internal identifier used for logging and event attribution.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Kind is "http" or "ics".
	Kind string `yaml:"kind" json:"kind"`
	// URL is the event endpoint (http) or an ICS subscription (ics).
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// Path is a local .ics file; only used when Kind is "ics".
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// APIKey is sent as X-API-Key to the event server.
	APIKey string `yaml:"api_key,omitempty" json:"-"`
	// Expand asks the event server for expanded occurrences.
	Expand bool `yaml:"expand,omitempty" json:"expand,omitempty"`
	// ExpandDays is how far before and after today expanded occurrences
	// are requested. Zero means the source default.
	ExpandDays int `yaml:"expand_days,omitempty" json:"expand_days,omitempty"`
}

// PrefsConfig selects where the view mode is persisted.
type PrefsConfig struct {
	// Backend is "file" (YAML, default), "sqlite" or "memory".
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path" json:"path"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API. When
// PasswordHash (bcrypt) is set it takes precedence over Password.
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	Password     string `yaml:"password,omitempty" json:"-"`
	PasswordHash string `yaml:"password_hash,omitempty" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API and calendar page.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone whose calendar days are displayed.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DefaultView is used when no valid view mode has been persisted yet.
	DefaultView string `yaml:"default_view" json:"default_view"`

	// RefreshCron is a cron expression (e.g. "*/15 * * * *") for reloading sources.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CacheDir holds conditional-fetch caches for remote sources.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Prefs PrefsConfig `yaml:"prefs" json:"prefs"`

	Sources []SourceConfig `yaml:"sources" json:"sources"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen   = "127.0.0.1:8080"
	defaultCron     = "*/15 * * * *"
	defaultLogLevel = "info"
	defaultCacheDir = "./cache"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    "Local",
		DefaultView: string(model.DefaultViewMode),
		RefreshCron: defaultCron,
		LogLevel:    defaultLogLevel,
		CacheDir:    defaultCacheDir,
		Prefs: PrefsConfig{
			Backend: "file",
			Path:    "./cache/prefs.yaml",
		},
		Sources: []SourceConfig{},
	}
}

// Normalize fills in missing values and repairs invalid enums so partially
// filled configs still behave predictably.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	c.DefaultView = string(model.ViewModeOr(c.DefaultView, model.DefaultViewMode))
	if c.RefreshCron == "" {
		c.RefreshCron = defaultCron
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = defaultLogLevel
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	switch c.Prefs.Backend {
	case "file", "sqlite", "memory":
	default:
		c.Prefs.Backend = "file"
	}
	if c.Prefs.Path == "" {
		if c.Prefs.Backend == "sqlite" {
			c.Prefs.Path = filepath.Join(c.CacheDir, "prefs.db")
		} else {
			c.Prefs.Path = filepath.Join(c.CacheDir, "prefs.yaml")
		}
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		if s.Kind == "" {
			if s.Path != "" || strings.HasSuffix(strings.ToLower(s.URL), ".ics") {
				s.Kind = SourceICS
			} else {
				s.Kind = SourceHTTP
			}
		}
		if s.ID == "" {
			switch {
			case s.Name != "":
				s.ID = s.Name
			case s.URL != "":
				s.ID = s.URL
			default:
				s.ID = s.Path
			}
		}
	}
}

// Validate reports configuration errors Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	for i, s := range c.Sources {
		switch s.Kind {
		case SourceHTTP:
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("sources[%d]: http source needs url", i))
			}
		case SourceICS:
			if s.URL == "" && s.Path == "" {
				errs = append(errs, fmt.Errorf("sources[%d]: ics source needs url or path", i))
			}
		default:
			errs = append(errs, fmt.Errorf("sources[%d]: unknown kind %q", i, s.Kind))
		}
	}
	if c.BasicAuth != nil && c.BasicAuth.Username != "" &&
		c.BasicAuth.Password == "" && c.BasicAuth.PasswordHash == "" {
		errs = append(errs, errors.New("basic_auth: password or password_hash required"))
	}
	return errors.Join(errs...)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
//   - In both cases CALVIEW_* environment variables (optionally from a .env
//     file next to the working directory) override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	// A missing .env is the common case.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			saveErr := Save(path, cfg)
			cfg.applyEnv()
			cfg.Normalize()
			return cfg, saveErr
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CALVIEW_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("CALVIEW_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("CALVIEW_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CALVIEW_DEFAULT_VIEW"); v != "" {
		c.DefaultView = v
	}
}

// Save writes cfg to path atomically (temp file + rename, 0600).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calview-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Location resolves Timezone, falling back to time.Local when the name is
// empty, "Local" or unknown to the tz database.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}
