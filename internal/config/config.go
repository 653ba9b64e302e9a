// Package config defines the indexer daemon's CLI surface, parsed
// with go-flags the way the teacher's kasparovd config package does.
package config

import (
	"strings"

	"github.com/jessevdk/go-flags"
)

const (
	defaultHost               = "0.0.0.0"
	defaultPort               = "8080"
	defaultDatabase           = "indexer.db"
	defaultSyncBatchSize      = 50
	defaultSyncIntervalSecs   = 10
	defaultConcurrentFetches  = 20
	defaultCheckpointInterval = 10
	defaultNetwork            = "mainnet"
	defaultDebugLevel         = "info"
)

// Config is the indexer daemon's full CLI surface. Environment
// variables SYNC_CONCURRENT_FETCHES and SYNC_CHECKPOINT_INTERVAL
// supply ConcurrentFetches/CheckpointInterval when set, through the
// go-flags env tags on those fields.
type Config struct {
	Nodes              string `long:"nodes" description:"comma-separated node base URLs" required:"true"`
	Database           string `long:"database" description:"path to the SQLite database file" default:"indexer.db"`
	Port               string `long:"port" description:"HTTP API port" default:"8080"`
	Host               string `long:"host" description:"HTTP API bind address" default:"0.0.0.0"`
	SyncBatchSize      int    `long:"sync-batch-size" description:"heights fetched per sync batch" default:"50"`
	SyncInterval       int    `long:"sync-interval" description:"seconds between sync cycles" default:"10"`
	NodeAPIKey         string `long:"node-api-key" description:"API key presented to node wallet/submit endpoints"`
	Network            string `long:"network" description:"mainnet or testnet; accepted but not applied: addresses are always derived with the mainnet prefix" default:"mainnet"`
	DebugLevel         string `long:"debug-level" description:"log level, or subsystem=level,..." default:"info"`
	ConcurrentFetches  int    `long:"sync-concurrent-fetches" env:"SYNC_CONCURRENT_FETCHES" description:"bounded concurrency for block fetches" default:"20"`
	CheckpointInterval int    `long:"sync-checkpoint-interval" env:"SYNC_CHECKPOINT_INTERVAL" description:"batches between WAL checkpoints" default:"10"`
}

// NodeURLs splits the --nodes flag into individual base URLs.
func (c *Config) NodeURLs() []string {
	parts := strings.Split(c.Nodes, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			urls = append(urls, p)
		}
	}
	return urls
}

// Parse parses os.Args into a Config, applying go-flags defaults and
// the SYNC_* environment overrides.
func Parse() (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}
	return cfg, nil
}
