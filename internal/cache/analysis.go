// Package cache memoizes whole-image analysis results.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"blueprintvision/internal/detection"
)

const (
	DefaultSize = 256
	DefaultTTL  = 24 * time.Hour

	// keyPrefixBytes bounds how much of the payload is hashed.
	keyPrefixBytes = 64 << 10
)

// Store is read before and written after an analysis, never during one.
// Concurrent writers of the same key race; the last write wins.
type Store interface {
	Get(key string) (detection.Result, bool)
	Put(key string, r detection.Result)
}

// Key derives the cache key from the payload length, a hash of its prefix
// and its tail, plus any variant that changes the output (options).
func Key(payload, variant string) string {
	head := payload
	if len(head) > keyPrefixBytes {
		head = head[:keyPrefixBytes]
	}
	sum := sha256.Sum256([]byte(head))
	tail := payload
	if len(tail) > 64 {
		tail = tail[len(tail)-64:]
	}
	tailSum := sha256.Sum256([]byte(tail))
	k := "visual:" + strconv.Itoa(len(payload)) + ":" + hex.EncodeToString(sum[:12]) + hex.EncodeToString(tailSum[:4])
	if variant != "" {
		k += ":" + variant
	}
	return k
}

// LRU is an expiring, size-bounded Store.
type LRU struct {
	lru *expirable.LRU[string, detection.Result]
}

func NewLRU(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LRU{lru: expirable.NewLRU[string, detection.Result](size, nil, ttl)}
}

// Get returns a copy so callers cannot mutate the cached value.
func (c *LRU) Get(key string) (detection.Result, bool) {
	r, ok := c.lru.Get(key)
	if !ok {
		return detection.Result{}, false
	}
	return r.Clone(), true
}

func (c *LRU) Put(key string, r detection.Result) {
	c.lru.Add(key, r.Clone())
}

func (c *LRU) Len() int { return c.lru.Len() }

func (c *LRU) Purge() { c.lru.Purge() }

// Nop never hits.
type Nop struct{}

func (Nop) Get(string) (detection.Result, bool) { return detection.Result{}, false }
func (Nop) Put(string, detection.Result)        {}
