// Package main implements the config command for inspecting and
// bootstrapping the fleetrecon configuration.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and bootstrap fleetrecon configuration",
}

// configInitCmd writes a starter config file
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create ~/.config/fleetrecon/config.yaml with a starter config",
	Long: `Create the fleetrecon config directory and write a starter config file.
The file is written with 0600 permissions, which the loader requires.
Refuses to overwrite an existing config.

Examples:
  # Bootstrap a fresh install
  frc config init`,
	RunE: runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the default config file path",
	RunE:  runConfigPathCmd,
}

// starterConfig is the config written by frc config init. It names the
// fields an operator edits first; everything omitted falls back to the
// built-in defaults.
const starterConfig = `# fleetrecon configuration
# Loaded from ~/.config/fleetrecon/config.yaml or /etc/fleetrecon/config.yaml.
# Environment variables override file values: SERVER_HTTP_PORT, NOTIFY_URL, ...

ingest:
  installations: installations.csv
  incidents: incidents.csv
  returns: returns.csv

export:
  dir: out
  formats: [csv]

logging:
  level: info
  format: json
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	path, err := defaultConfigFile()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	if err := os.WriteFile(path, []byte(starterConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Wrote %s\n", path)
	return nil
}

func runConfigPathCmd(cmd *cobra.Command, args []string) error {
	path, err := defaultConfigFile()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func defaultConfigFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "fleetrecon", "config.yaml"), nil
}
