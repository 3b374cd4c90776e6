package blockchain

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// CachedBlockhash holds a fetched blockhash with its expiry metadata.
type CachedBlockhash struct {
	Hash                 string
	LastValidBlockHeight uint64
	FetchedAt            time.Time
}

// BlockhashCache keeps a fresh blockhash available without an RPC
// round-trip on the trade path. A background loop prefetches on an
// interval; Get only blocks when both the cached value and the
// prefetcher have gone stale.
type BlockhashCache struct {
	current atomic.Pointer[CachedBlockhash]

	rpc      *RPCClient
	ttl      time.Duration
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewBlockhashCache creates a blockhash cache.
func NewBlockhashCache(rpc *RPCClient, refreshInterval, ttl time.Duration) *BlockhashCache {
	return &BlockhashCache{
		rpc:      rpc,
		interval: refreshInterval,
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
}

// Start performs the initial fetch and begins background refresh.
func (c *BlockhashCache) Start() error {
	if err := c.fetch(); err != nil {
		return err
	}

	c.wg.Add(1)
	go c.prefetchLoop()

	log.Info().
		Dur("interval", c.interval).
		Dur("ttl", c.ttl).
		Msg("blockhash cache started")
	return nil
}

// Stop stops the background refresh.
func (c *BlockhashCache) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// Get returns the cached blockhash, refreshing synchronously only if
// the cached value has exceeded its TTL.
func (c *BlockhashCache) Get() (string, error) {
	cached := c.current.Load()
	if cached != nil && time.Since(cached.FetchedAt) < c.ttl {
		return cached.Hash, nil
	}

	log.Warn().Msg("blockhash cache stale, forcing sync refresh")
	if err := c.fetch(); err != nil {
		return "", err
	}
	return c.current.Load().Hash, nil
}

// Age returns the time since the last successful fetch.
func (c *BlockhashCache) Age() time.Duration {
	cached := c.current.Load()
	if cached == nil {
		return 0
	}
	return time.Since(cached.FetchedAt)
}

func (c *BlockhashCache) prefetchLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.fetch(); err != nil {
				log.Warn().Err(err).Msg("blockhash prefetch failed")
			}
		}
	}
}

func (c *BlockhashCache) fetch() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	result, err := c.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return err
	}

	c.current.Store(&CachedBlockhash{
		Hash:                 result.Value.Blockhash,
		LastValidBlockHeight: result.Value.LastValidBlockHeight,
		FetchedAt:            time.Now(),
	})
	return nil
}
