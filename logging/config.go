package logging

import "github.com/grovetools/nicepick/schema"

// Config defines the `logging` section of the nicepick config file.
type Config struct {
	// Level is the minimum log level to output (e.g., "debug", "info", "warn", "error").
	// Can be overridden by the NICEPICK_LOG_LEVEL environment variable.
	Level string `yaml:"level,omitempty" jsonschema:"enum=trace,enum=debug,enum=info,enum=warn,enum=warning,enum=error,description=Minimum log level"`

	// ReportCaller, if true, includes the file, line, and function name in the log output.
	// Can be enabled with the NICEPICK_LOG_CALLER=true environment variable.
	ReportCaller bool `yaml:"report_caller,omitempty" jsonschema:"description=Include file and line of the log call"`

	// File configures logging to a file.
	File FileSinkConfig `yaml:"file,omitempty" jsonschema:"description=File sink"`

	// Format configures the appearance of the log output.
	Format FormatConfig `yaml:"format,omitempty" jsonschema:"description=Output format"`
}

// FileSinkConfig configures the file logging sink. Daemon components always
// log to a file; Enabled turns the sink on for everything else.
type FileSinkConfig struct {
	Enabled bool `yaml:"enabled,omitempty" jsonschema:"description=Write logs of every component to a file"`
	// Path is the full path to the log file.
	Path string `yaml:"path,omitempty" jsonschema:"description=Log file path (default: state dir logs/<component>-<date>.log)"`
}

// FormatConfig controls the log output format.
type FormatConfig struct {
	// Preset can be "default" (rich text), "simple" (minimal text), or "json".
	Preset string `yaml:"preset,omitempty" jsonschema:"enum=default,enum=simple,enum=json"`
	// DisableTimestamp disables the timestamp from the "default" and "simple" formats.
	DisableTimestamp bool `yaml:"disable_timestamp,omitempty"`
	// DisableComponent disables the component name from the "default" and "simple" formats.
	DisableComponent bool `yaml:"disable_component,omitempty"`
	// StructuredToStderr controls when structured logs are sent to stderr.
	// Can be "auto" (default), "always", or "never".
	StructuredToStderr string `yaml:"structured_to_stderr,omitempty" jsonschema:"enum=auto,enum=always,enum=never"`
}

func init() {
	schema.RegisterExtension("logging", "Logging configuration", &Config{})
}
