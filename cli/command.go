package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grovetools/nicepick/config"
	"github.com/grovetools/nicepick/logging"
)

// CommandOptions holds common options for nicepick commands
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
	JSONOutput bool
}

// NewStandardCommand creates a new command with the standard flags
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to nicepick.yml or nicepick.toml")

	SetStyledHelp(cmd)

	return cmd
}

// GetOptions extracts common options from a command
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
	}
}

// GetLogger returns the component logger, raised to debug by --verbose.
func GetLogger(cmd *cobra.Command, component string) *logrus.Entry {
	entry := logging.NewLogger(component)
	if opts := GetOptions(cmd); opts.Verbose {
		entry.Logger.SetLevel(logrus.DebugLevel)
	}
	return entry
}

// LoadConfig loads the file named by --config, or the discovered config
// file, or defaults. The returned path is empty when defaults are in use.
func LoadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path := GetOptions(cmd).ConfigFile
	if path == "" {
		found, err := config.FindConfigFile()
		if err != nil {
			cfg, err := config.LoadDefault()
			return cfg, "", err
		}
		path = found
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}
