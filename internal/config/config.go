// Package config resolves runtime settings from ANNOTATOR_* environment
// variables, an optional YAML file and built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the commands read.
type Config struct {
	APIURL       string        `yaml:"apiUrl"`
	Token        string        `yaml:"token"`
	DatasetID    string        `yaml:"dataset"`
	UserID       string        `yaml:"user"`
	PageSize     int           `yaml:"pageSize"`
	PollInterval time.Duration `yaml:"pollInterval"`
	Debounce     time.Duration `yaml:"debounce"`
	CacheTTL     time.Duration `yaml:"cacheTTL"`
	MaxHistory   int           `yaml:"maxHistory"`

	Port      string `yaml:"port"`
	JWTSecret string `yaml:"jwtSecret"`
	SeedFile  string `yaml:"seedFile"`
	ImageDir  string `yaml:"imageDir"`

	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		APIURL:       "http://localhost:8888",
		PageSize:     100,
		PollInterval: 5 * time.Second,
		Debounce:     100 * time.Millisecond,
		CacheTTL:     2 * time.Second,
		MaxHistory:   50,
		Port:         "8888",
		Provider:     "ollama",
	}
}

// Load resolves defaults, then the environment, then the YAML file at path
// when path is not empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ANNOTATOR_API_URL":    &c.APIURL,
		"ANNOTATOR_TOKEN":      &c.Token,
		"ANNOTATOR_DATASET":    &c.DatasetID,
		"ANNOTATOR_USER":       &c.UserID,
		"ANNOTATOR_PORT":       &c.Port,
		"ANNOTATOR_JWT_SECRET": &c.JWTSecret,
		"ANNOTATOR_SEED_FILE":  &c.SeedFile,
		"ANNOTATOR_IMAGE_DIR":  &c.ImageDir,
		"ANNOTATOR_PROVIDER":   &c.Provider,
		"ANNOTATOR_MODEL":      &c.Model,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"ANNOTATOR_PAGE_SIZE":   &c.PageSize,
		"ANNOTATOR_MAX_HISTORY": &c.MaxHistory,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"ANNOTATOR_POLL_INTERVAL": &c.PollInterval,
		"ANNOTATOR_DEBOUNCE":      &c.Debounce,
		"ANNOTATOR_CACHE_TTL":     &c.CacheTTL,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = d
	}
	return nil
}
