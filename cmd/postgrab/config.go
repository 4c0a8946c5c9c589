package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"postgrab/pkg/config"
	"postgrab/pkg/ui"
)

// defaultConfigPath is where 'config init' writes when --config is not set.
const defaultConfigPath = ".postgrab.yaml"

const configHeader = `# postgrab configuration
#
# Every key can also be set through an environment variable prefixed with
# POSTGRAB_, for example POSTGRAB_CONCURRENCY or POSTGRAB_LOG_LEVEL.
# Command line flags override both.
#
# Durations use Go syntax: 500ms, 10s, 2m.

`

var prettyConfig bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage postgrab configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (POSTGRAB_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the default values",
	Long: `Create a configuration file holding every option at its default value.

The file is created as '` + defaultConfigPath + `' in the current directory
unless a different path is given with --config. An existing file is never
overwritten.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging all sources:
  - Command line flags
  - Environment variables
  - Configuration file
  - Default values`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration from all sources and check it for invalid values.

Every problem found is reported, not just the first one.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().BoolVar(&prettyConfig, "pretty", false, "pretty-print the Go structure instead of YAML")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = defaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		ui.PrintError("Configuration file already exists", path)
		fmt.Fprintln(ui.Out, "\nTo overwrite, first remove the existing file:")
		fmt.Fprintf(ui.Out, "  rm %s\n", path)
		return fmt.Errorf("%s already exists", path)
	}

	if err := writeDefaultConfig(path); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Fprintln(ui.Out, "\nNext steps:")
	fmt.Fprintln(ui.Out, "1. Edit the values you want to change")
	fmt.Fprintln(ui.Out, "2. Run 'postgrab config validate' to check the configuration")
	fmt.Fprintln(ui.Out, "3. Start downloading with 'postgrab <url>'")
	return nil
}

func writeDefaultConfig(path string) error {
	data, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, append([]byte(configHeader), data...), 0644)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, changedFlags(cmd))
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}

	if prettyConfig {
		pp.ColoringEnabled = ui.ColorEnabled()
		_, err := pp.Fprintln(ui.Out, cfg)
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	ui.PrintHighlight("Current configuration")
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	_, err := config.Load(configFile, nil)
	if err == nil {
		ui.PrintSuccess("Configuration is valid")
		return nil
	}

	ui.PrintError("Configuration is invalid")
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			fmt.Fprintf(ui.Out, "  - %v\n", e)
		}
	} else {
		fmt.Fprintf(ui.Out, "  - %v\n", err)
	}
	return err
}
