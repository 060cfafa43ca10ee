package main

import (
	"context"
	"errors"
	"fmt"

	"webrag/config"
	"webrag/crawler"
	"webrag/index"
	"webrag/pkg/chunking"
	"webrag/pkg/embedding"
	"webrag/pkg/llm"
	"webrag/pkg/qdrantdb"
	"webrag/retriever"
	"webrag/session"

	"go.uber.org/zap"
)

// app is the wired service graph shared by every command.
type app struct {
	config   *config.Config
	provider *embedding.Provider
	manager  *session.Manager
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{config: cfg}

	// =========
	// Crawler
	// =========
	crawl, err := crawler.NewCrawler(&crawler.CrawlerConfig{
		MaxDepth:       cfg.Crawler.MaxDepth,
		MaxPages:       cfg.Crawler.MaxPages,
		MaxTextPerPage: cfg.Crawler.MaxTextPerPage,
		RequestTimeout: cfg.Crawler.Timeout(),
		UserAgent:      cfg.Crawler.UserAgent,
		ProxyURL:       cfg.Crawler.ProxyURL,
	}, logger.Named("crawler"))
	if err != nil {
		return nil, fmt.Errorf("failed to create crawler: %w", err)
	}

	chunker, err := chunking.NewRecursiveCharacterChunker(chunking.Config{
		Size:      cfg.Chunking.Size,
		Overlap:   cfg.Chunking.Overlap,
		MaxChunks: cfg.Chunking.MaxChunks,
	})
	if err != nil {
		return nil, err
	}

	// =========
	// Embedding
	// =========
	settings := embedding.Settings{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
	}
	providerCfg := embedding.DefaultProviderConfig()
	providerCfg.Name = cfg.Embedding.Provider
	providerCfg.BatchSize = cfg.Embedding.BatchSize
	a.provider = embedding.NewProvider(func(context.Context) (embedding.Client, error) {
		return embedding.NewClient(settings)
	}, providerCfg, logger.Named("embedding"))

	// =========
	// Vector index
	// =========
	var backend index.Backend
	switch cfg.Storage.Backend {
	case "qdrant":
		qdb, err := qdrantdb.NewClient(cfg.Storage.Qdrant.Host, cfg.Storage.Qdrant.Port)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
		}
		a.closers = append(a.closers, qdb.Close)
		backend = qdrantdb.NewBackend(qdb, logger.Named("qdrant"))
	default:
		backend = index.FlatBackend{}
	}
	indexer := index.NewIndexer(a.provider, backend, logger.Named("index"))

	ret, err := retriever.NewRetriever(a.provider, retriever.Config{
		Policy: cfg.Retrieval.Policy,
		K:      cfg.Retrieval.K,
		FetchK: cfg.Retrieval.FetchK,
		Lambda: cfg.Retrieval.Lambda,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create retriever: %w", err)
	}

	// =========
	// LLM
	// =========
	var generator llm.Generator
	generator, err = llm.NewLangchainGenerator(llm.Config{
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
	}, logger.Named("llm"))
	if err != nil {
		logger.Warn("answer generation unavailable", zap.Error(err))
		generator = unavailableGenerator{err: err}
	}

	a.manager = session.NewManager(session.Config{
		Root:      cfg.Storage.Root,
		CacheSize: cfg.Storage.CacheSize,
	}, session.Deps{
		Crawler:   crawl,
		Splitter:  chunker,
		Indexer:   indexer,
		Loader:    backend,
		Retriever: ret,
		Generator: generator,
	}, logger.Named("session"))

	return a, nil
}

// unavailableGenerator stands in when the model client cannot be built, so
// indexing still works and every answer reports the cause.
type unavailableGenerator struct {
	err error
}

func (g unavailableGenerator) Generate(context.Context, string, string) (string, error) {
	return "", g.err
}
