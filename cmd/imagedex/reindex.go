package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Drop and recreate the vector index",
	Long: `Recreate the FT index from the configured embedding dimensions, distances
and algorithm. Stored records are kept and re-indexed by the server.
Only the redis driver has an index to rebuild.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, envName)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.index == nil {
		return fmt.Errorf("database driver %q has no index to rebuild", a.cfg.Database.Driver)
	}
	if err := a.index.RebuildIndex(ctx); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	a.logger.Info("Index rebuilt",
		zap.String("index", a.index.IndexName()),
		zap.String("algorithm", a.cfg.Index.Algorithm),
	)
	return nil
}
