package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

// ErrInvalidConfig is returned when a config file does not match the schema.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultPath returns the config path used when --config is not given:
// ./devsetup.yaml if present, otherwise $XDG_CONFIG_HOME/devsetup/devsetup.yaml.
func DefaultPath() string {
	if _, err := os.Stat("devsetup.yaml"); err == nil {
		return "devsetup.yaml"
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "devsetup", "devsetup.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "devsetup.yaml"
	}
	return filepath.Join(home, ".config", "devsetup", "devsetup.yaml")
}

// LoadConfig reads the config file at path, validates it against the embedded
// schema, loads the optional packages manifest it references, overlays legacy
// .conf files and fills defaults.
//
// A missing file is not an error when allowMissing is set: the defaults alone
// make a usable configuration.
func LoadConfig(path string, allowMissing bool) (Config, error) {
	var cfg Config

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && allowMissing:
		raw = nil
	case err != nil:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if len(bytes.TrimSpace(raw)) > 0 {
		doc, err := decodeDocument(path, raw)
		if err != nil {
			return Config{}, err
		}
		if err := Validate(doc); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
		if err := decodeInto(doc, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	// The packages manifest may live in its own file, relative to the main config.
	if cfg.PackagesFile != "" {
		manifest := ExpandHome(cfg.PackagesFile)
		if !filepath.IsAbs(manifest) {
			manifest = filepath.Join(filepath.Dir(path), manifest)
		}
		pkgs, err := loadPackages(manifest)
		if err != nil {
			return Config{}, err
		}
		cfg.Packages = mergePackages(cfg.Packages, pkgs)
	}

	applyDefaults(&cfg)

	if err := ApplyLegacy(&cfg, cfg.LegacyConfDir); err != nil {
		return Config{}, err
	}

	expandPaths(&cfg)
	return cfg, nil
}

// decodeDocument parses YAML or TOML (by extension) into a generic document with
// JSON-compatible value types, which is what the schema validator expects.
func decodeDocument(path string, raw []byte) (any, error) {
	var doc any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var m map[string]any
		if _, err := toml.Decode(string(raw), &m); err != nil {
			return nil, fmt.Errorf("parse TOML %s: %w", path, err)
		}
		doc = m
	default:
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse YAML %s: %w", path, err)
		}
	}

	// Round-trip through JSON to normalise numbers and map key types.
	buf, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalise %s: %w", path, err)
	}
	var normalised any
	if err := json.Unmarshal(buf, &normalised); err != nil {
		return nil, fmt.Errorf("normalise %s: %w", path, err)
	}
	return normalised, nil
}

// decodeInto converts the validated document into the typed struct. Both formats
// go through the same YAML decoder so scalars coerce identically.
func decodeInto(doc any, cfg *Config) error {
	buf, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(buf, cfg)
}

// Validate checks a decoded document against the embedded JSON schema.
func Validate(doc any) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("devsetup.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("load config schema: %w", err)
	}
	schema, err := compiler.Compile("devsetup.schema.json")
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, flattenSchemaError(ve))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// flattenSchemaError collects the leaf causes into "location: message" lines.
func flattenSchemaError(ve *jsonschema.ValidationError) string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return loc + ": " + ve.Message
	}
	parts := make([]string, 0, len(ve.Causes))
	for _, c := range ve.Causes {
		parts = append(parts, flattenSchemaError(c))
	}
	return strings.Join(parts, "; ")
}

// loadPackages reads a manifest file shaped as { packages: {...} }.
func loadPackages(path string) (Packages, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Packages{}, fmt.Errorf("read packages manifest %s: %w", path, err)
	}

	doc, err := decodeDocument(path, data)
	if err != nil {
		return Packages{}, err
	}
	if err := Validate(doc); err != nil {
		return Packages{}, fmt.Errorf("%s: %w", path, err)
	}

	var wrapper Config
	if err := decodeInto(doc, &wrapper); err != nil {
		return Packages{}, fmt.Errorf("decode packages manifest %s: %w", path, err)
	}
	return wrapper.Packages, nil
}

// mergePackages appends the manifest entries to the inline ones.
func mergePackages(a, b Packages) Packages {
	return Packages{
		Apt:    append(a.Apt, b.Apt...),
		Pip:    append(a.Pip, b.Pip...),
		Npm:    append(a.Npm, b.Npm...),
		Brew:   append(a.Brew, b.Brew...),
		Winget: append(a.Winget, b.Winget...),
		Tools:  append(a.Tools, b.Tools...),
	}
}

// Marshal renders the effective config as YAML, with the backup password masked.
func Marshal(cfg Config) ([]byte, error) {
	if cfg.Backup.Password != "" {
		cfg.Backup.Password = "********"
	}
	return yaml.Marshal(cfg)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
