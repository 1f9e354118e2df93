package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/switchyard-dev/switchyard/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a switchyard project",
	Long: `Initialize switchyard in the current directory.
Creates the configuration file and the definitions and state directories.`,
	RunE: runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing configuration")
}

func runInit(_ *cobra.Command, _ []string) error {
	path, created, err := config.EnsureConfigFile(config.ConfigDirName)
	if err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if !created {
		if !initForce {
			return fmt.Errorf("configuration already exists at %s, use --force to overwrite", path)
		}
		if err := os.WriteFile(path, []byte(config.DefaultConfigYAML), 0o600); err != nil {
			return fmt.Errorf("overwriting config: %w", err)
		}
	}

	definitionsDir := filepath.Join(config.ConfigDirName, "definitions")
	dirs := []string{
		definitionsDir,
		filepath.Join(config.ConfigDirName, "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	fmt.Println("Initialized switchyard project")
	fmt.Printf("Configuration file: %s\n", path)
	fmt.Printf("Drop workflow definition YAML into %s to add or override workflows\n", definitionsDir)
	fmt.Println("Run 'switchyard doctor' to verify setup")

	return nil
}
