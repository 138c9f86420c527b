package main

import (
	"context"
	"fmt"

	"mira/internal/builderr"
	"mira/internal/config"
	"mira/internal/embedding"
	"mira/internal/hooks"
	"mira/internal/index"
	"mira/internal/intervene"
	"mira/internal/logging"
	"mira/internal/memory"
	"mira/internal/netfetch"
	"mira/internal/ponder"
	"mira/internal/recall"
	"mira/internal/search"
	"mira/internal/store"
	"mira/internal/tool"
)

// buildDeps wires every component the tool surface fronts, in dependency
// order: store -> fact store/search/index -> embeddings -> vector
// indices -> recall -> build-error tracker -> pattern miner ->
// intervention queue -> hook adapters. Grounded on internal/recall.New's
// constructor, which is the narrowest point every downstream piece has
// to compose through.
func buildDeps(ctx context.Context, workspaceRoot string) (*tool.Deps, func(), error) {
	cfg, err := config.Load(workspaceRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(cfg.Store.Path, cfg.Store.BusyTimeoutMillis)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			logging.BuildErr("close store: %v", err)
		}
	}

	facts := memory.New(db)
	reg := index.NewRegistry()
	ix := index.New(db, reg)
	se := search.New(db)

	engine := embedding.New(cfg.Embedding.Provider, embeddingDim)
	embedSvc := embedding.NewService(engine, embedding.Config{
		QueueCapacity: cfg.Embedding.QueueCapacity,
		MaxRetries:    cfg.Embedding.MaxRetries,
		BackoffBaseMs: cfg.Embedding.BackoffBaseMs,
		BackoffCapMs:  cfg.Embedding.BackoffCapMs,
	})

	factVec, err := store.NewVectorIndex(ctx, db, "fact_vec", "fact_id", embeddingDim)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("create fact vector index: %w", err)
	}
	chunkVec, err := store.NewVectorIndex(ctx, db, "code_chunk_vec", "chunk_id", embeddingDim)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("create code chunk vector index: %w", err)
	}
	facts.SetEmbedding(embedSvc, factVec)

	recallEngine := recall.New(db, facts, se, embedSvc, chunkVec, factVec)

	builds := builderr.New(db)

	miner := ponder.New(db, facts, nil, ponder.Config{
		IdleMinutes:      cfg.Ponder.IdleMinutes,
		CooldownHours:    cfg.Ponder.CooldownHours,
		FrictionMinCalls: cfg.Ponder.FrictionMinCalls,
		FrictionMinRate:  cfg.Ponder.FrictionMinRate,
		HeuristicConfCap: cfg.Ponder.HeuristicConfCap,
	})

	queue := intervene.New(db, intervene.Config{
		ConfidenceThreshold: cfg.Intervention.ConfidenceThreshold,
		CooldownMinutes:     cfg.Intervention.CooldownMinutes,
		HourlyCap:           cfg.Intervention.HourlyCap,
		RecencyWindowDays:   cfg.Intervention.RecencyWindowDays,
		MaxQueueSize:        cfg.Intervention.MaxQueueSize,
	})

	hookAdapters := hooks.New(db, facts, miner)

	net := netfetch.New(netfetch.Config{
		MaxBytes: cfg.Limits.NetFetchMaxBytes,
		Timeout:  cfg.Limits.NetFetchTimeoutDuration(),
	})

	deps := &tool.Deps{
		DB:       db,
		Facts:    facts,
		Search:   se,
		Recall:   recallEngine,
		Index:    ix,
		Registry: reg,
		Embed:    embedSvc,
		ChunkVec: chunkVec,
		FactVec:  factVec,
		Builds:   builds,
		Miner:    miner,
		Queue:    queue,
		Hooks:    hookAdapters,
		Net:      net,
		Cfg:      cfg,
	}
	return deps, closeFn, nil
}
