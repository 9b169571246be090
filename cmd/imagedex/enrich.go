package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/repository/association"
	"github.com/kailas-cloud/imagedex/internal/repository/cursor"
	enrichuc "github.com/kailas-cloud/imagedex/internal/usecase/enrich"
)

var enrichFlags struct {
	batchSize   int
	maxPages    int
	concurrency int
	wrapAround  bool
	resetCursor bool
	pipeline    string
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run one incremental enrichment pass",
	Long: `Walk the image collection from the saved cursor and fill in whatever each
record is missing. Existing values are never overwritten. The cursor is saved
after every page, so an interrupted run resumes where it stopped.

Flags override the pipeline section of the config file.

Examples:
  imagedex enrich
  imagedex enrich --max-pages 5 --concurrency 8
  imagedex enrich --reset-cursor --wrap-around=false`,
	Args: cobra.NoArgs,
	RunE: runEnrich,
}

func init() {
	f := enrichCmd.Flags()
	f.IntVar(&enrichFlags.batchSize, "batch-size", 0, "records per page (default from config)")
	f.IntVar(&enrichFlags.maxPages, "max-pages", 0, "stop after this many pages (default from config; 0 = until drained)")
	f.IntVar(&enrichFlags.concurrency, "concurrency", 0, "records enriched in parallel (default from config)")
	f.BoolVar(&enrichFlags.wrapAround, "wrap-around", false, "clear the cursor when the collection is drained")
	f.BoolVar(&enrichFlags.resetCursor, "reset-cursor", false, "start from the beginning of the collection")
	f.StringVar(&enrichFlags.pipeline, "pipeline", "", "pipeline name used in metrics and the cursor key")
	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, envName)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, opts, err := buildEnricher(ctx, a, cmd)
	if err != nil {
		return err
	}

	report, runErr := svc.Run(ctx, opts)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	return runErr
}

func buildEnricher(ctx context.Context, a *app, cmd *cobra.Command) (*enrichuc.Service, enrichuc.Options, error) {
	cfg := &a.cfg
	pipeline := cfg.Pipeline.Name
	cursorKey := cfg.Cursor.Key
	if enrichFlags.pipeline != "" {
		pipeline = enrichFlags.pipeline
		cursorKey = "cursor:" + pipeline
	}

	kv, err := a.cursorKV()
	if err != nil {
		return nil, enrichuc.Options{}, err
	}
	cur := cursor.New(kv, cfg.Database.KeyPrefix+cursorKey)

	assoc, err := association.Load(cfg.Associations.Path)
	if err != nil {
		return nil, enrichuc.Options{}, err
	}
	a.logger.Info("Associations loaded",
		zap.String("path", cfg.Associations.Path), zap.Int("entries", assoc.Len()))

	p, err := a.buildProviders(ctx)
	if err != nil {
		return nil, enrichuc.Options{}, err
	}

	svc := enrichuc.New(a.images, cur, p.annotator, p.pair(a.logger), cfg.Embedding.Dimensions).
		WithAssociations(assoc).
		WithPipelineName(pipeline)

	opts := enrichuc.Options{
		BatchSize:       cfg.Pipeline.BatchSize,
		MaxPages:        cfg.Pipeline.MaxPages,
		Concurrency:     cfg.Pipeline.Concurrency,
		WrapAround:      cfg.Pipeline.WrapAround,
		StoreRetries:    cfg.Pipeline.StoreRetries,
		ProviderTimeout: cfg.ProviderTimeout(),
		StoreTimeout:    cfg.StoreTimeout(),
	}
	flags := cmd.Flags()
	if flags.Changed("batch-size") {
		opts.BatchSize = enrichFlags.batchSize
	}
	if flags.Changed("max-pages") {
		opts.MaxPages = enrichFlags.maxPages
	}
	if flags.Changed("concurrency") {
		opts.Concurrency = enrichFlags.concurrency
	}
	if flags.Changed("wrap-around") {
		opts.WrapAround = enrichFlags.wrapAround
	}
	opts.ResetCursor = enrichFlags.resetCursor

	return svc, opts, nil
}
