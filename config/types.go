package config

import (
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the nicepick configuration file.
type Config struct {
	Daemon  DaemonConfig  `yaml:"daemon,omitempty" toml:"daemon,omitempty" jsonschema:"description=Settings for the picker daemon"`
	Client  ClientConfig  `yaml:"client,omitempty" toml:"client,omitempty" jsonschema:"description=Settings for the picker command that talks to the daemon"`
	Query   QueryConfig   `yaml:"query,omitempty" toml:"query,omitempty" jsonschema:"description=Search behavior"`
	Metrics MetricsConfig `yaml:"metrics,omitempty" toml:"metrics,omitempty" jsonschema:"description=Prometheus metrics endpoint"`

	// Extensions captures all other top-level keys for extensibility.
	Extensions map[string]interface{} `yaml:",inline" toml:"-" jsonschema:"-"`

	// explicit records dotted keys present in the file.
	explicit map[string]bool
}

// DaemonConfig configures the long-lived picker process.
type DaemonConfig struct {
	Socket       string   `yaml:"socket,omitempty" toml:"socket,omitempty" jsonschema:"description=Unix socket path (default: runtime dir)"`
	Catalog      string   `yaml:"catalog,omitempty" toml:"catalog,omitempty" jsonschema:"description=Compiled emoji catalog (default: data dir catalog.bin)"`
	IdleTimeout  Duration `yaml:"idle_timeout,omitempty" toml:"idle_timeout,omitempty" jsonschema:"description=Shut down after this long without a session; 0 keeps the daemon running"`
	CommandQueue int      `yaml:"command_queue,omitempty" toml:"command_queue,omitempty" jsonschema:"minimum=1,description=Capacity of the supervisor command queue"`
	Font         string   `yaml:"font,omitempty" toml:"font,omitempty" jsonschema:"description=TrueType/OpenType font used to draw glyphs"`
	FrameDumpDir string   `yaml:"frame_dump_dir,omitempty" toml:"frame_dump_dir,omitempty" jsonschema:"description=Write every presented frame as PNG into this directory"`
	Width        int      `yaml:"width,omitempty" toml:"width,omitempty" jsonschema:"minimum=1,description=Window width in pixels"`
	Height       int      `yaml:"height,omitempty" toml:"height,omitempty" jsonschema:"minimum=1,description=Window height in pixels"`
}

// ClientConfig configures connection and bootstrap behavior of the picker command.
type ClientConfig struct {
	ConnectTimeout    Duration `yaml:"connect_timeout,omitempty" toml:"connect_timeout,omitempty" jsonschema:"description=Dial timeout for the daemon socket"`
	ResponseTimeout   Duration `yaml:"response_timeout,omitempty" toml:"response_timeout,omitempty" jsonschema:"description=How long to wait for a selection or dismissal"`
	BootstrapAttempts int      `yaml:"bootstrap_attempts,omitempty" toml:"bootstrap_attempts,omitempty" jsonschema:"minimum=1,description=Connection attempts after starting a daemon"`
	BackoffInitial    Duration `yaml:"backoff_initial,omitempty" toml:"backoff_initial,omitempty" jsonschema:"description=First retry delay after bootstrap"`
	BackoffMax        Duration `yaml:"backoff_max,omitempty" toml:"backoff_max,omitempty" jsonschema:"description=Upper bound for retry delays"`
}

// QueryConfig configures the query router.
type QueryConfig struct {
	Debounce Duration `yaml:"debounce,omitempty" toml:"debounce,omitempty" jsonschema:"description=Quiet period before incremental query text is evaluated"`
	TopK     int      `yaml:"top_k,omitempty" toml:"top_k,omitempty" jsonschema:"minimum=1,description=Maximum results pushed per query"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty" toml:"listen,omitempty" jsonschema:"description=host:port for the metrics endpoint; empty disables it"`
}

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalText parses a duration string. Used by TOML and mapstructure.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalYAML parses a duration scalar.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a string", node.Line)
	}
	return d.UnmarshalText([]byte(node.Value))
}

// MarshalYAML renders the duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// JSONSchema describes durations as strings in Go duration syntax.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Description: "Go duration, e.g. 250ms or 5m",
		OneOf: []*jsonschema.Schema{
			{Type: "string", Pattern: `^(0|([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+)$`},
			{Type: "integer", Enum: []interface{}{0}},
		},
	}
}

// Defaults.
const (
	DefaultIdleTimeout       = Duration(30 * time.Minute)
	DefaultCommandQueue      = 64
	DefaultWidth             = 400
	DefaultHeight            = 200
	DefaultConnectTimeout    = Duration(250 * time.Millisecond)
	DefaultResponseTimeout   = Duration(5 * time.Minute)
	DefaultBootstrapAttempts = 6
	DefaultBackoffInitial    = Duration(25 * time.Millisecond)
	DefaultBackoffMax        = Duration(400 * time.Millisecond)
	DefaultDebounce          = Duration(15 * time.Millisecond)
	DefaultTopK              = 48
)

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Daemon.IdleTimeout == 0 && !c.idleTimeoutSet() {
		c.Daemon.IdleTimeout = DefaultIdleTimeout
	}
	if c.Daemon.CommandQueue == 0 {
		c.Daemon.CommandQueue = DefaultCommandQueue
	}
	if c.Daemon.Width == 0 {
		c.Daemon.Width = DefaultWidth
	}
	if c.Daemon.Height == 0 {
		c.Daemon.Height = DefaultHeight
	}
	if c.Client.ConnectTimeout == 0 {
		c.Client.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Client.ResponseTimeout == 0 {
		c.Client.ResponseTimeout = DefaultResponseTimeout
	}
	if c.Client.BootstrapAttempts == 0 {
		c.Client.BootstrapAttempts = DefaultBootstrapAttempts
	}
	if c.Client.BackoffInitial == 0 {
		c.Client.BackoffInitial = DefaultBackoffInitial
	}
	if c.Client.BackoffMax == 0 {
		c.Client.BackoffMax = DefaultBackoffMax
	}
	if c.Query.Debounce == 0 {
		c.Query.Debounce = DefaultDebounce
	}
	if c.Query.TopK == 0 {
		c.Query.TopK = DefaultTopK
	}
}

// idleTimeoutSet reports whether the file spelled out idle_timeout, so an
// explicit 0 (never shut down) survives SetDefaults.
func (c *Config) idleTimeoutSet() bool {
	return c.explicit["daemon.idle_timeout"]
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded file into the provided target struct. The target must be a pointer.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// It's not an error if the key doesn't exist.
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.TextUnmarshallerHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension '%s': %w", key, err)
	}
	return nil
}
