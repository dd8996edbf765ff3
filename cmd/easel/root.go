package main

import (
	"github.com/spf13/cobra"

	"github.com/easelhq/easel/internal/api"
	"github.com/easelhq/easel/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "easel",
	Short: "Slide deck image generation with LLM-planned outlines",
	Long: `Easel turns a topic into a visual slide deck: an LLM synthesizes a
slide-by-slide outline, then an image model renders every slide against the
deck's shared style reference.

The pipeline includes:
  - Outline synthesis with schema-validated structured output
  - Batch image generation with pause, resume and per-slide retry
  - Style reference and supplementary images per slide
  - Manual image overrides and preview derivation`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.easel/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "easel home directory (default: ~/.easel)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
