package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/config"
	"github.com/kailas-cloud/imagedex/internal/db"
	dbBadger "github.com/kailas-cloud/imagedex/internal/db/badger"
	dbRedis "github.com/kailas-cloud/imagedex/internal/db/redis"
	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/image"
	logpkg "github.com/kailas-cloud/imagedex/internal/logger"
	"github.com/kailas-cloud/imagedex/internal/metrics"
	budgetrepo "github.com/kailas-cloud/imagedex/internal/repository/budget"
	"github.com/kailas-cloud/imagedex/internal/repository/embcache"
	firestorerepo "github.com/kailas-cloud/imagedex/internal/repository/firestore"
	imagerepo "github.com/kailas-cloud/imagedex/internal/repository/image"
	"github.com/kailas-cloud/imagedex/internal/repository/memory"
	"github.com/kailas-cloud/imagedex/internal/transport/gemini"
	openaiT "github.com/kailas-cloud/imagedex/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/imagedex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/imagedex/internal/usecase/health"
)

// imageStore is what every document store driver provides.
type imageStore interface {
	Get(ctx context.Context, id string) (image.Record, error)
	Merge(ctx context.Context, id string, p image.Patch) error
	Page(ctx context.Context, cursor string, size int) (image.Page, error)
	Delete(ctx context.Context, id string) error
	Nearest(ctx context.Context, field image.EmbeddingField, vector []float32, k int,
		dist image.Distance) ([]image.Neighbor, error)
	Ping(ctx context.Context) error
}

// app is the composition root shared by every command.
type app struct {
	cfg     config.Config
	env     string
	logger  *zap.Logger
	images  imageStore
	redis   *dbRedis.Store
	index   *imagerepo.Repo // set only for the redis driver
	local   *dbBadger.Store
	closers []func()
}

// providers holds the decorated provider chain. Disabled providers stay nil
// interfaces so consumers can test them against nil.
type providers struct {
	annotator domain.Annotator
	text      domain.TextEmbedder
	image     domain.ImageEmbedder
	checks    map[string]healthuc.ProviderChecker
	budget    *embeddinguc.BudgetTracker
}

// pair returns the combined embedder, or nil when no embedder is configured.
func (p *providers) pair(logger *zap.Logger) domain.PairEmbedder {
	if p.text == nil && p.image == nil {
		return nil
	}
	return embeddinguc.NewPair(p.text, p.image, logger)
}

func newApp(ctx context.Context, env string) (*app, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	metrics.Register()

	a := &app{cfg: cfg, env: env, logger: logger}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases every opened resource in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}

func (a *app) openStore(ctx context.Context) error {
	cfg := &a.cfg
	a.logger.Info("Opening image store", zap.String("driver", cfg.Database.Driver))

	switch cfg.Database.Driver {
	case config.DriverRedis:
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:        cfg.Database.Addrs,
			Username:     cfg.Database.Username,
			Password:     cfg.Database.Password,
			WriteTimeout: time.Duration(cfg.Database.WriteTimeoutSec) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("create redis store: %w", err)
		}
		a.closers = append(a.closers, store.Close)

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			return fmt.Errorf("database not ready: %w", err)
		}
		repo := imagerepo.New(store, imagerepo.Options{
			KeyPrefix:       cfg.Database.KeyPrefix,
			IndexName:       cfg.Index.Name,
			Fields:          cfg.Fields(),
			Distances:       cfg.ParsedDistances(),
			HNSWM:           cfg.Index.HNSWM,
			HNSWEFConstruct: cfg.Index.HNSWEFConstruct,
			Flat:            cfg.Index.Algorithm == "flat",
		})
		if err := repo.EnsureIndex(ctx); err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}
		a.redis = store
		a.index = repo
		a.images = redisImages{Repo: repo, store: store}

	case config.DriverFirestore:
		client, err := firestorerepo.Open(ctx, cfg.Firestore.ProjectID, cfg.Firestore.Database)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.images = firestorerepo.New(client, cfg.Firestore.Collection)

	case config.DriverMemory:
		a.logger.Warn("Using the in-memory store; records are lost on exit")
		a.images = memory.New()

	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	return nil
}

// redisImages adds the connection ping to the Redis image repository.
type redisImages struct {
	*imagerepo.Repo
	store *dbRedis.Store
}

func (r redisImages) Ping(ctx context.Context) error { return r.store.Ping(ctx) }

// localKV opens the Badger store on first use.
func (a *app) localKV() (db.KVStore, error) {
	if a.local != nil {
		return a.local, nil
	}
	s, err := dbBadger.Open(dbBadger.Options{
		Dir:    filepath.Join(a.cfg.Local.Dir, "state"),
		Logger: a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = s.Close() })
	a.local = s
	return s, nil
}

// kv returns the store for small local state: Redis when the images live
// there, Badger otherwise.
func (a *app) kv() (db.KVStore, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	return a.localKV()
}

// cursorKV returns the store selected by cursor.driver.
func (a *app) cursorKV() (db.KVStore, error) {
	if a.cfg.Cursor.Driver == config.DriverRedis {
		if a.redis == nil {
			return nil, errors.New("cursor.driver redis requires database.driver redis")
		}
		return a.redis, nil
	}
	return a.localKV()
}

// health aggregates the store and provider checks.
func (a *app) health(p *providers) *healthuc.Service {
	svc := healthuc.New(a.images)
	if a.local != nil {
		svc.WithStore("local", a.local)
	}
	if p != nil {
		for name, c := range p.checks {
			svc.WithProvider(name, c)
		}
	}
	return svc
}

// buildProviders assembles provider chains: base -> cached (text only) -> instrumented.
func (a *app) buildProviders(ctx context.Context) (*providers, error) {
	cfg := &a.cfg.Providers
	p := &providers{checks: map[string]healthuc.ProviderChecker{}}

	budget := a.buildBudget(ctx)
	p.budget = budget
	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	var budgetChecker embeddinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	var (
		gem *gemini.Client
		err error
	)
	if cfg.Annotator == config.ProviderGemini || cfg.TextEmbedder == config.ProviderGemini ||
		cfg.ImageEmbedder == config.ProviderGemini {
		gem, err = gemini.NewClient(ctx, &gemini.Config{
			APIKey:         cfg.Gemini.APIKey,
			Project:        cfg.Gemini.Project,
			Location:       cfg.Gemini.Location,
			Model:          cfg.Gemini.Model,
			EmbeddingModel: cfg.Gemini.EmbeddingModel,
			Logger:         a.logger,
		})
		if err != nil {
			return nil, err
		}
		p.checks[config.ProviderGemini] = gem
	}

	openaiCfg := func(model string) *openaiT.Config {
		return &openaiT.Config{
			APIKey:   cfg.OpenAI.APIKey,
			BaseURL:  cfg.OpenAI.BaseURL,
			Model:    model,
			Provider: config.ProviderOpenAI,
			Logger:   a.logger,
		}
	}

	switch cfg.Annotator {
	case config.ProviderGemini:
		p.annotator = embeddinguc.NewInstrumentedAnnotator(
			gemini.NewAnnotator(gem), config.ProviderGemini, gem.Model(), budgetChecker, a.logger)
	case config.ProviderOpenAI:
		p.annotator = embeddinguc.NewInstrumentedAnnotator(
			openaiT.NewAnnotator(openaiCfg(cfg.OpenAI.Model)),
			config.ProviderOpenAI, cfg.OpenAI.Model, budgetChecker, a.logger)
	}

	var (
		text      domain.TextEmbedder
		textModel string
	)
	switch cfg.TextEmbedder {
	case config.ProviderGemini:
		text, textModel = gemini.NewTextEmbedder(gem), gem.EmbeddingModel()
	case config.ProviderOpenAI:
		emb := openaiT.NewEmbedder(openaiCfg(cfg.OpenAI.EmbeddingModel))
		text, textModel = emb, cfg.OpenAI.EmbeddingModel
		p.checks[config.ProviderOpenAI] = emb
	}
	if text != nil {
		if a.cfg.Embedding.Cache.Enabled {
			cacheKV, err := a.kv()
			if err != nil {
				return nil, err
			}
			text = embcache.New(text, cacheKV, embcache.Options{
				Prefix: a.cfg.Database.KeyPrefix + "emb_cache:",
				Model:  cfg.TextEmbedder + "/" + textModel,
				TTL:    time.Duration(a.cfg.Embedding.Cache.TTLHours) * time.Hour,
			}, metrics.EmbeddingCacheTotal, a.logger)
		}
		p.text = embeddinguc.NewInstrumentedText(text, cfg.TextEmbedder, textModel, budgetChecker, a.logger)
	}

	if cfg.ImageEmbedder == config.ProviderGemini {
		p.image = embeddinguc.NewInstrumentedImage(
			gemini.NewImageEmbedder(gem), config.ProviderGemini, gem.EmbeddingModel(), budgetChecker, a.logger)
	}

	a.logger.Info("Providers configured",
		zap.String("annotator", cfg.Annotator),
		zap.String("text_embedder", cfg.TextEmbedder),
		zap.String("image_embedder", cfg.ImageEmbedder),
		zap.Bool("budget", budget != nil),
	)
	return p, nil
}

// buildBudget returns the shared token budget, or nil when no limit is set.
// Counters persist only on Redis; other drivers track in memory per process.
func (a *app) buildBudget(ctx context.Context) *embeddinguc.BudgetTracker {
	bc := a.cfg.Providers.Budget
	if !bc.Enabled() {
		return nil
	}
	action := embeddinguc.BudgetActionWarn
	if bc.Action == string(embeddinguc.BudgetActionReject) {
		action = embeddinguc.BudgetActionReject
	}
	budget := embeddinguc.NewBudgetTracker("providers", bc.DailyTokens, bc.MonthlyTokens, action, a.logger).
		WithKeyPrefix(a.cfg.Database.KeyPrefix)
	if a.redis != nil {
		budget.WithStore(ctx, budgetrepo.New(a.redis, 0, 0))
	}
	return budget
}
