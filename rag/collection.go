package rag

import (
	"context"
	"fmt"

	"github.com/mudler/faqrecall/pkg/config"
	"github.com/mudler/faqrecall/rag/engine"
	"github.com/mudler/faqrecall/rag/types"
	"github.com/mudler/xlog"
)

// OpenStore connects to the configured document store engine and verifies it is reachable.
// The returned store is shared by every request; the caller closes it on shutdown.
// embedder is only used by engines that can embed documents themselves and may be nil.
func OpenStore(ctx context.Context, cfg config.StoreConfig, embedder EmbeddingProvider) (DocumentStore, error) {
	dimensions := map[types.Provider]int{}
	for _, p := range types.Providers {
		dimensions[p] = cfg.DimensionsFor(p)
	}

	xlog.Info("Opening document store", "engine", cfg.Engine)

	switch cfg.Engine {
	case config.EngineMongo:
		store, err := engine.NewMongoDBCollection(ctx, engine.MongoOptions{
			URI:                      cfg.MongoURI,
			Database:                 cfg.MongoDatabase,
			Collection:               cfg.MongoCollection,
			AllowInvalidCertificates: cfg.AllowInvalidCertificates,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open mongo store: %w", err)
		}
		return store, nil
	case config.EnginePostgres:
		store, err := engine.NewPostgresDBCollection(ctx, cfg.DatabaseURL, cfg.PostgresTable, dimensions, cfg.Indexes())
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return store, nil
	case config.EngineChromem:
		store, err := engine.NewChromemDBCollection(cfg.ChromemCollection, cfg.ChromemPath, embedder)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem store: %w", err)
		}
		return store, nil
	case config.EngineQdrant:
		store, err := engine.NewQdrantDBCollection(ctx, engine.QdrantOptions{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantUseTLS,
			Collection: cfg.QdrantCollection,
			Dimensions: dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open qdrant store: %w", err)
		}
		return store, nil
	}

	return nil, fmt.Errorf("unknown store engine %q", cfg.Engine)
}
