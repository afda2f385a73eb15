package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/grovetools/nicepick/errors"
	"github.com/grovetools/nicepick/pkg/paths"
	"github.com/grovetools/nicepick/schema"
)

// ConfigEnv overrides the config file location.
const ConfigEnv = "NICEPICK_CONFIG"

// FileNames are the config file names looked up in the config dir, in order.
var FileNames = []string{"nicepick.yml", "nicepick.yaml", "nicepick.toml"}

// Format is a config file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the syntax from a file extension. Unknown extensions are YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads and parses the configuration file at path. An empty path
// resolves the default location; a missing default file yields defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadDefault()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := LoadFromBytes(data, FormatFor(path))
	if err != nil {
		if pe, ok := err.(*errors.PickError); ok {
			return nil, pe.WithDetail("path", path)
		}
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads the file found by FindConfigFile, or defaults when there
// is none.
func LoadDefault() (*Config, error) {
	path, err := FindConfigFile()
	if err != nil {
		cfg := &Config{}
		cfg.SetDefaults()
		return cfg, nil
	}
	return Load(path)
}

// FindConfigFile returns $NICEPICK_CONFIG when set, otherwise the first
// existing file of FileNames in the config dir.
func FindConfigFile() (string, error) {
	if p := os.Getenv(ConfigEnv); p != "" {
		return p, nil
	}
	dir := paths.ConfigDir()
	for _, name := range FileNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", errors.ConfigNotFound(dir).WithDetail("searchPath", dir)
}

// LoadFromBytes parses configuration from byte array
func LoadFromBytes(data []byte, format Format) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))

	raw, err := decodeRaw(expanded, format)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse "+string(format)+" configuration")
	}

	validator, err := defaultValidator()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create validator")
	}
	if err := validator.Validate(raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "schema validation failed")
	}

	var cfg Config
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(expanded, &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse toml configuration")
		}
		cfg.Extensions = extensionsOf(raw)
	default:
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse yaml configuration")
		}
	}
	cfg.explicit = explicitKeys(raw)

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeRaw(data []byte, format Format) (map[string]interface{}, error) {
	raw := map[string]interface{}{}
	var err error
	if format == FormatTOML {
		err = toml.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	return raw, nil
}

// sections are the typed top-level keys; everything else is an extension.
var sections = map[string]bool{"daemon": true, "client": true, "query": true, "metrics": true}

func extensionsOf(raw map[string]interface{}) map[string]interface{} {
	var ext map[string]interface{}
	for k, v := range raw {
		if sections[k] {
			continue
		}
		if ext == nil {
			ext = make(map[string]interface{})
		}
		ext[k] = v
	}
	return ext
}

func explicitKeys(raw map[string]interface{}) map[string]bool {
	keys := make(map[string]bool)
	for section := range sections {
		m, ok := raw[section].(map[string]interface{})
		if !ok {
			continue
		}
		for k := range m {
			keys[section+"."+k] = true
		}
	}
	return keys
}

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

func defaultValidator() (*schema.Validator, error) {
	validatorOnce.Do(func() {
		var data []byte
		data, validatorErr = GenerateSchema()
		if validatorErr != nil {
			return
		}
		validator, validatorErr = schema.NewValidator(data)
	})
	return validator, validatorErr
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// ExpandPath expands a leading tilde.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// SocketPath is the configured socket or the default location.
func (c *Config) SocketPath() string {
	if c.Daemon.Socket != "" {
		return ExpandPath(c.Daemon.Socket)
	}
	return paths.SocketPath()
}

// CatalogPath is the configured catalog or the default location.
func (c *Config) CatalogPath() string {
	if c.Daemon.Catalog != "" {
		return ExpandPath(c.Daemon.Catalog)
	}
	return paths.CatalogPath()
}
