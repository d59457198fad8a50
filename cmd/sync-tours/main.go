package main

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"github.com/Peterdir/travel-booking-website/internal/config"
	"github.com/Peterdir/travel-booking-website/internal/consumers"
	"github.com/Peterdir/travel-booking-website/internal/database"
	"github.com/Peterdir/travel-booking-website/internal/logger"
	"github.com/Peterdir/travel-booking-website/internal/repository"
	"github.com/Peterdir/travel-booking-website/internal/search"
)

func main() {
	var timeout time.Duration
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "Maximum duration of the full reindex")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, "text")

	if !cfg.Elasticsearch.Enabled() {
		logger.Fatal("ELASTICSEARCH_URL is not set, nothing to sync")
	}

	slog.Info("Starting tour index synchronization", "index", cfg.Elasticsearch.Index)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	index, err := search.NewTourIndex(cfg.Elasticsearch)
	if err != nil {
		logger.Fatal("Failed to open search index", "error", err)
	}

	repos := repository.NewRepositories(db)
	indexer := consumers.NewHandlers(repos.Tours, index)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	count, err := indexer.ReindexAll(ctx)
	if err != nil {
		logger.Fatal("Tour synchronization failed", "error", err, "indexed", count)
	}

	total, err := index.Count(ctx)
	if err != nil {
		slog.Warn("Failed to count indexed documents", "error", err)
	}

	slog.Info("Tour synchronization completed", "indexed", count, "documents", total, "duration", time.Since(start))
}
