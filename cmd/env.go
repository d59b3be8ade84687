package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/daru-lab/jeonseguard/internal/address"
	"github.com/daru-lab/jeonseguard/internal/assess"
	"github.com/daru-lab/jeonseguard/internal/cache"
	"github.com/daru-lab/jeonseguard/internal/collect"
	"github.com/daru-lab/jeonseguard/internal/config"
	"github.com/daru-lab/jeonseguard/internal/document"
	"github.com/daru-lab/jeonseguard/internal/feature"
	"github.com/daru-lab/jeonseguard/internal/ocr"
	"github.com/daru-lab/jeonseguard/internal/price"
	"github.com/daru-lab/jeonseguard/internal/scoring"
	"github.com/daru-lab/jeonseguard/internal/store"
)

// pipelineEnv bundles the wired pipeline for the commands.
type pipelineEnv struct {
	Store     store.Store
	Resolver  *address.Resolver
	Collector *collect.Client
	Estimator *price.Estimator
	Service   *assess.Service
	Vision    *ocr.VisionExtractor

	cache *cache.ResultCache
}

// initPipeline wires every stage from config. OCR is optional: without an
// API key the document endpoint is disabled and everything else still works.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	resolver := address.NewResolver(&address.CSVTableLoader{
		Path: cfg.Address.TablePath,
		UTF8: cfg.Address.TableUTF8,
	})

	// Without a service key every external fetch is doomed; leave the
	// collector out of the pricing chain so unpriceable requests degrade
	// immediately instead of burning API calls.
	var collector *collect.Client
	var onDemand price.Collector
	if cfg.Collect.Enabled() {
		collector = collect.New(st, resolver, cfg.Collect)
		onDemand = collector
	} else {
		zap.L().Info("collect: no service key configured, on-demand collection disabled")
	}
	estimator := price.NewEstimator(st, onDemand)

	keywords := feature.DefaultKeywordTable()
	if cfg.Address.KeywordsPath != "" {
		kt, err := feature.LoadKeywordTable(cfg.Address.KeywordsPath)
		if err != nil {
			zap.L().Warn("keyword table load failed, using defaults", zap.Error(err))
		} else {
			keywords = kt
		}
	}

	engine := scoring.NewEngine(cfg.Model.ArtifactPath)
	rc := cache.New(cfg.Cache)

	var vision *ocr.VisionExtractor
	if cfg.OCR.APIKey != "" {
		vision, err = ocr.NewVisionExtractor(cfg.OCR)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	service := assess.New(
		resolver,
		document.New(),
		estimator,
		feature.NewCalculator(keywords),
		engine,
		st,
		rc,
	)

	return &pipelineEnv{
		Store:     st,
		Resolver:  resolver,
		Collector: collector,
		Estimator: estimator,
		Service:   service,
		Vision:    vision,
		cache:     rc,
	}, nil
}

func (e *pipelineEnv) Close() {
	if err := e.cache.Close(); err != nil {
		zap.L().Warn("cache close failed", zap.Error(err))
	}
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

func openStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "postgres", "":
		if sc.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver")
		}
		return store.NewPostgres(ctx, sc.DatabaseURL, &sc.Pool)
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "jeonseguard.db"
		}
		return store.NewSQLite(dsn)
	default:
		return nil, eris.Errorf("unknown store driver %q", sc.Driver)
	}
}
