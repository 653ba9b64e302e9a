// Command indexerd runs the indexer: it syncs blocks from one or more
// configured nodes into a local SQLite store and serves a minimal
// read API over the result.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/utxobox/indexer/api"
	"github.com/utxobox/indexer/internal/config"
	"github.com/utxobox/indexer/internal/logs"
	"github.com/utxobox/indexer/internal/panics"
	"github.com/utxobox/indexer/nodeclient"
	"github.com/utxobox/indexer/processor"
	"github.com/utxobox/indexer/store"
	"github.com/utxobox/indexer/sync"
)

var log, _ = logs.Get(logs.Main)

func main() {
	logs.Init(false)
	defer func() {
		if err := recover(); err != nil {
			log.Errorf("fatal error: %+v", err)
			os.Exit(1)
		}
	}()

	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("error parsing command-line arguments: %s", err)
	}
	if err := logs.ParseAndSetDebugLevel(cfg.DebugLevel); err != nil {
		log.Fatalf("invalid debug level: %s", err)
	}

	s, err := store.Open(cfg.Database)
	if err != nil {
		log.Fatalf("error opening database: %s", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Errorf("error closing database: %s", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc, err := processor.New(ctx, s)
	if err != nil {
		log.Fatalf("error priming processor: %s", err)
	}

	nodeURLs := cfg.NodeURLs()
	if len(nodeURLs) == 0 {
		log.Fatalf("at least one --nodes URL is required")
	}
	nodes := make([]*nodeclient.Client, len(nodeURLs))
	for i, url := range nodeURLs {
		nodes[i] = nodeclient.New(url, cfg.NodeAPIKey)
	}

	syncCfg := sync.Config{
		BatchSize:          cfg.SyncBatchSize,
		ConcurrentFetches:  cfg.ConcurrentFetches,
		CheckpointInterval: cfg.CheckpointInterval,
	}
	sv := sync.New(s, proc, nodes, nodeURLs, syncCfg)

	panics.Go(log, func() {
		if err := sv.Run(ctx, time.Duration(cfg.SyncInterval)*time.Second); err != nil && ctx.Err() == nil {
			log.Errorf("sync loop exited: %s", err)
		}
	})

	apiServer := api.New(s, sv)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler: apiServer.Handler(),
	}
	panics.Go(log, func() {
		log.Infof("API listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("API server exited: %s", err)
		}
	})

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	log.Infof("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("error shutting down API server: %s", err)
	}
}
