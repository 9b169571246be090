package main

import (
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/imagedex/internal/config"
)

var envName string

var rootCmd = &cobra.Command{
	Use:   "imagedex",
	Short: "Image enrichment pipeline and vector search",
	Long: `imagedex fills in missing image attributes (description, labels, colors,
moderation, text and image embeddings) and serves nearest-neighbor search.

Examples:
  imagedex enrich --max-pages 10
  imagedex ingest --bucket photos beach/dog.jpg
  imagedex search --text "dog on a beach" --field text_embedding_512
  ENV=prod imagedex serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envName, "env", "e", config.GetEnv(),
		"environment name; selects config/<env>.yaml")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
