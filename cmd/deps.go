package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/venuedex/enrich-cli/internal/blob"
	"github.com/venuedex/enrich-cli/internal/config"
	"github.com/venuedex/enrich-cli/internal/gallery"
	"github.com/venuedex/enrich-cli/internal/orchestrator"
	"github.com/venuedex/enrich-cli/internal/provider"
	"github.com/venuedex/enrich-cli/internal/registry"
	"github.com/venuedex/enrich-cli/internal/store"
	anthropicpkg "github.com/venuedex/enrich-cli/pkg/anthropic"
	"github.com/venuedex/enrich-cli/pkg/firecrawl"
	"github.com/venuedex/enrich-cli/pkg/places"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "enrich.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, storePoolConfig(cfg.Store.Pool))
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// storePoolConfig maps the config-layer pool tuning onto the store's own
// settings type, keeping the config package decoupled from store internals.
func storePoolConfig(pc *config.PoolConfig) *store.PoolConfig {
	if pc == nil {
		return nil
	}
	return &store.PoolConfig{MaxConns: pc.MaxConns, MinConns: pc.MinConns}
}

// pipelineEnv bundles everything a live extraction run needs.
type pipelineEnv struct {
	Store        store.Store
	Orchestrator *orchestrator.Orchestrator
}

func (e *pipelineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initPipeline builds the store, provider clients, gallery pipeline, and
// orchestrator for run/batch commands. The caller must Close the env.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	placesClient := places.NewClient(cfg.Places.Key, places.WithBaseURL(cfg.Places.BaseURL))
	firecrawlClient := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	uploader, err := blob.NewS3Uploader(ctx, cfg.Blob)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "init blob storage")
	}

	images := gallery.NewPipeline(st, uploader, anthropicClient,
		gallery.NewHTTPFetcher(), &cfg.Images, &cfg.Anthropic)

	var categories *registry.Registry
	if path := cfg.Registry.CategoriesPath; path != "" {
		categories, err = registry.LoadCategories(path)
		if err != nil {
			st.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "load category registry")
		}
	}

	orch := orchestrator.New(st,
		provider.NewGeodataAdapter(placesClient, &cfg.Places),
		provider.NewCrawlAdapter(firecrawlClient, &cfg.Firecrawl),
		provider.NewEnhanceAdapter(anthropicClient, &cfg.Anthropic, categories),
		images,
		cfg,
	)

	return &pipelineEnv{Store: st, Orchestrator: orch}, nil
}
