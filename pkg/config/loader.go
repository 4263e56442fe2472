package config

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file from path, or from DefaultPath when
// path is empty. A missing file yields an empty configuration, so first
// runs work before `auth login` has written anything. The format is
// determined by the file extension:
//   - .yaml / .yml for YAML
//   - .json for JSON
//   - .hcl for HCL
func Load(ctx context.Context, path string) (*Config, error) {
	logger := zerolog.Ctx(ctx)
	if path == "" {
		path = DefaultPath()
	}
	logger.Debug().Str("path", path).Msg("loading config")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{location: path}, nil
		}
		return nil, errors.Errorf("reading config file: %w", err)
	}

	var cfg *Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		cfg, err = loadYAML(data)
	case ".json":
		cfg, err = loadJSON(data)
	case ".hcl":
		cfg, err = loadHCL(data, path)
	default:
		return nil, errors.Errorf("unsupported config extension %q", ext)
	}
	if err != nil {
		return nil, errors.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.location = path
	return cfg, nil
}

// Save persists the configuration back to the path it was loaded from
// (or DefaultPath), creating parent directories as needed. Configs are
// always written as YAML regardless of the load format; HCL and JSON are
// read-only conveniences for hand-maintained files.
func Save(ctx context.Context, cfg *Config) error {
	path := cfg.location
	if path == "" {
		path = DefaultPath()
	}
	zerolog.Ctx(ctx).Debug().Str("path", path).Msg("saving config")

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Errorf("encoding config: %w", err)
	}
	// Tokens may be stored in the file; keep it private.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Errorf("writing config file: %w", err)
	}
	cfg.location = path
	return nil
}

func loadYAML(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &Config{}, nil
		}
		return nil, errors.Errorf("parsing YAML: %w", err)
	}
	return &cfg, nil
}

func loadJSON(data []byte) (*Config, error) {
	var cfg Config
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Errorf("parsing JSON: %w", err)
	}
	return &cfg, nil
}
