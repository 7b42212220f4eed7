package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/debemdeboas/folio/internal/config"
)

const configHeader = "# Folio configuration example\n# Copy this file to config.yaml and customize as needed\n\n"

var configCmd = &cobra.Command{
	Use:   "config [file]",
	Short: "Write an example configuration with every default",
	Long: `Config writes the default configuration as YAML. The file defaults to
config.example.yaml; "-" prints to standard output.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := exampleConfig()
		if err != nil {
			return err
		}

		file := "config.example.yaml"
		if len(args) == 1 {
			file = args[0]
		}
		if file == "-" {
			_, err := cmd.OutOrStdout().Write(out)
			return err
		}
		if err := os.WriteFile(file, out, 0o644); err != nil {
			return fmt.Errorf(config.ErrWriteConfigContentFmt, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Generated example config: ")+file)
		return nil
	},
}

func exampleConfig() ([]byte, error) {
	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return nil, fmt.Errorf("generating YAML: %w", err)
	}
	return append([]byte(configHeader), data...), nil
}

func init() {
	rootCmd.AddCommand(configCmd)
}
