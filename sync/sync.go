// Package sync runs the indexer's block-ingest loop: probe configured
// nodes, pick the best one, fan out bounded-concurrency block fetches,
// and apply them strictly in height order through a BlockProcessor.
package sync

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/utxobox/indexer/chainmodel"
	"github.com/utxobox/indexer/nodeclient"
	"github.com/utxobox/indexer/processor"
	"github.com/utxobox/indexer/store"
)

var log = logrus.WithField("subsystem", "sync")

// ErrNoNodesAvailable is returned by sync_once when every configured
// node fails its info probe.
var ErrNoNodesAvailable = errors.New("sync: no nodes available")

// Config tunes batch size and concurrency. Zero values are replaced
// with the spec's defaults by New.
type Config struct {
	BatchSize          int
	ConcurrentFetches  int
	CheckpointInterval int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.ConcurrentFetches <= 0 {
		c.ConcurrentFetches = 20
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = 10
	}
	return c
}

// NodeConnectivity is the per-node status vector entry.
type NodeConnectivity struct {
	URL           string
	Connected     bool
	Height        int64
	HeadersHeight int64
	LatencyMS     int64
	LastUsed      time.Time
	Reason        string // set when Connected is false
}

// Status is a point-in-time snapshot returned by Service.Status.
type Status struct {
	IsSyncing       bool
	LocalHeight     int64
	NodeHeight      int64
	BlocksSynced    int64
	SyncProgress    float64
	BlocksPerSecond float64
	ETASeconds      *float64
	LastError       string
	Nodes           []NodeConnectivity
}

// Service is one BlockProcessor, one Store, and N NodeClients bundled
// behind atomics and a status lock, per spec §4.5/§5.
type Service struct {
	store      *store.Store
	proc       *processor.Processor
	nodes      []*nodeclient.Client
	nodeURLs   []string
	cfg        Config

	isSyncing    int32
	localHeight  int64
	nodeHeight   int64
	blocksSynced int64
	syncStart    int64 // unix nanos, 0 when idle

	mu        sync.RWMutex
	lastError string
	nodeVec   []NodeConnectivity
}

// New builds a Service over the given store, processor, and node
// client set. nodeURLs must be the same length as nodes and in the
// same order, for status reporting.
func New(s *store.Store, p *processor.Processor, nodes []*nodeclient.Client, nodeURLs []string, cfg Config) *Service {
	cfg = cfg.withDefaults()
	vec := make([]NodeConnectivity, len(nodeURLs))
	for i, u := range nodeURLs {
		vec[i] = NodeConnectivity{URL: u}
	}
	return &Service{
		store:    s,
		proc:     p,
		nodes:    nodes,
		nodeURLs: nodeURLs,
		cfg:      cfg,
		nodeVec:  vec,
	}
}

// Run loops sync_once on the given interval until ctx is cancelled.
// Cancellation is cooperative: Run returns once the current sleep or
// in-flight sync_once call observes ctx.Done().
func (sv *Service) Run(ctx context.Context, interval time.Duration) error {
	for {
		if err := sv.syncOnce(ctx); err != nil {
			sv.mu.Lock()
			sv.lastError = err.Error()
			sv.mu.Unlock()
			log.WithError(err).Warn("sync cycle failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// syncOnce probes nodes, picks the best, and ingests everything
// between the local height and the best node's height in batches.
func (sv *Service) syncOnce(ctx context.Context) error {
	bestIdx, bestHeight, err := sv.probeNodes(ctx)
	if err != nil {
		return err
	}
	atomic.StoreInt64(&sv.nodeHeight, bestHeight)

	local, err := sv.store.SyncHeight(ctx)
	if err != nil {
		return errors.Wrap(err, "reading local sync height")
	}
	atomic.StoreInt64(&sv.localHeight, local)

	if local >= bestHeight {
		return nil
	}

	atomic.StoreInt32(&sv.isSyncing, 1)
	defer func() {
		atomic.StoreInt32(&sv.isSyncing, 0)
		atomic.StoreInt64(&sv.syncStart, 0)
	}()
	sv.mu.Lock()
	sv.lastError = ""
	sv.mu.Unlock()
	atomic.StoreInt64(&sv.syncStart, time.Now().UnixNano())
	atomic.StoreInt64(&sv.blocksSynced, 0)

	_ = bestIdx // best node is only used to pick the probe winner; fetches fan out across all nodes

	cur := local + 1
	batchesDone := 0
	for cur <= bestHeight {
		batchEnd := cur + int64(sv.cfg.BatchSize) - 1
		if batchEnd > bestHeight {
			batchEnd = bestHeight
		}

		blocks, err := sv.fetchBatch(ctx, cur, batchEnd)
		if err != nil {
			return errors.Wrapf(err, "fetching batch [%d,%d]", cur, batchEnd)
		}

		sort.Slice(blocks, func(i, j int) bool { return blocks[i].Header.Height < blocks[j].Header.Height })

		for _, b := range blocks {
			if err := sv.proc.Apply(ctx, b); err != nil {
				return errors.Wrapf(err, "applying block at height %d", b.Header.Height)
			}
		}

		batchCount := batchEnd - cur + 1
		atomic.AddInt64(&sv.blocksSynced, batchCount)
		atomic.StoreInt64(&sv.localHeight, batchEnd)

		batchesDone++
		if batchesDone%sv.cfg.CheckpointInterval == 0 {
			if err := sv.store.Checkpoint(ctx); err != nil {
				log.WithError(err).Warn("checkpoint failed")
			}
		}

		cur = batchEnd + 1
	}

	if err := sv.store.Checkpoint(ctx); err != nil {
		log.WithError(err).Warn("final checkpoint failed")
	}

	return nil
}

// probeNodes calls Info on every configured node and returns the
// index and full_height of the node with the highest full_height.
func (sv *Service) probeNodes(ctx context.Context) (int, int64, error) {
	vec := make([]NodeConnectivity, len(sv.nodes))
	bestIdx := -1
	var bestHeight int64 = -1

	for i, n := range sv.nodes {
		start := time.Now()
		info, err := n.Info(ctx)
		latency := time.Since(start)
		if err != nil {
			vec[i] = NodeConnectivity{URL: sv.nodeURLs[i], Connected: false, Reason: err.Error()}
			continue
		}

		var height, headersHeight int64
		if info.FullHeight != nil {
			height = *info.FullHeight
		}
		if info.HeadersHeight != nil {
			headersHeight = *info.HeadersHeight
		}

		vec[i] = NodeConnectivity{
			URL: sv.nodeURLs[i], Connected: true, Height: height, HeadersHeight: headersHeight,
			LatencyMS: latency.Milliseconds(), LastUsed: time.Now(),
		}

		if height > bestHeight {
			bestHeight = height
			bestIdx = i
		}
	}

	sv.mu.Lock()
	sv.nodeVec = vec
	sv.mu.Unlock()

	if bestIdx == -1 {
		return -1, 0, ErrNoNodesAvailable
	}
	return bestIdx, bestHeight, nil
}

// fetchBatch fans out one fetch per height in [start, end], bounded
// by a semaphore, each with its own retry/backoff.
func (sv *Service) fetchBatch(ctx context.Context, start, end int64) ([]chainmodel.BlockDocument, error) {
	count := int(end - start + 1)
	blocks := make([]chainmodel.BlockDocument, count)

	sem := semaphore.NewWeighted(int64(sv.cfg.ConcurrentFetches))
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < count; i++ {
		i := i
		height := start + int64(i)
		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			doc, err := sv.fetchOneWithRetry(gctx, height)
			if err != nil {
				return err
			}
			blocks[i] = doc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}

// fetchOneWithRetry resolves the block id at height and fetches it,
// retrying up to 3 attempts with exponential backoff (500ms * 2^n).
func (sv *Service) fetchOneWithRetry(ctx context.Context, height int64) (chainmodel.BlockDocument, error) {
	node := sv.nodes[int(height)%len(sv.nodes)]

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(500*math.Pow(2, float64(attempt))) * time.Millisecond
			select {
			case <-ctx.Done():
				return chainmodel.BlockDocument{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		ids, err := node.BlockIDsAtHeight(ctx, height)
		if err != nil {
			lastErr = err
			continue
		}
		if len(ids) == 0 {
			lastErr = fmt.Errorf("no block id at height %d", height)
			continue
		}

		doc, err := node.GetBlock(ctx, ids[0])
		if err != nil {
			lastErr = err
			continue
		}
		return doc, nil
	}
	return chainmodel.BlockDocument{}, errors.Wrapf(lastErr, "height %d: all retries exhausted", height)
}

// Status returns a snapshot of the service's atomics and node vector.
func (sv *Service) Status(ctx context.Context) Status {
	sv.mu.RLock()
	lastError := sv.lastError
	nodes := append([]NodeConnectivity(nil), sv.nodeVec...)
	sv.mu.RUnlock()

	local := atomic.LoadInt64(&sv.localHeight)
	best := atomic.LoadInt64(&sv.nodeHeight)
	synced := atomic.LoadInt64(&sv.blocksSynced)
	startNanos := atomic.LoadInt64(&sv.syncStart)

	progress := 1.0
	if best > 0 {
		progress = math.Min(1.0, float64(local)/float64(best))
	}

	var bps float64
	var eta *float64
	if startNanos > 0 {
		elapsed := time.Since(time.Unix(0, startNanos)).Seconds()
		if elapsed > 0 {
			bps = float64(synced) / elapsed
		}
		if bps > 0 && best > local {
			remaining := float64(best-local) / bps
			eta = &remaining
		}
	}

	return Status{
		IsSyncing:       atomic.LoadInt32(&sv.isSyncing) == 1,
		LocalHeight:     local,
		NodeHeight:      best,
		BlocksSynced:    synced,
		SyncProgress:    progress,
		BlocksPerSecond: bps,
		ETASeconds:      eta,
		LastError:       lastError,
		Nodes:           nodes,
	}
}
