// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/invigil/invigil/internal/logging"
)

// cacheTTL bounds how long a fingerprint entry survives after it is
// written (reads do not extend it); stale repositories age out instead of
// growing the cache forever.
const cacheTTL = 14 * 24 * time.Hour

// Cache is a badger-backed fingerprint cache keyed by the SHA-256 of the
// raw (pre-normalisation) file content. Changed content gets a new key and
// is re-fingerprinted naturally. The key does not cover the normalisation
// rules: after a change to them, unchanged content keeps its old
// fingerprint until the entry expires (cacheTTL).
type Cache struct {
	db *badger.DB
}

// cacheEntry is the serialised form of a Fingerprint. The hash set is
// stored as a sorted slice for compactness and deterministic encoding.
type cacheEntry struct {
	Digest           string   `json:"digest"`
	Hashes           []uint32 `json:"hashes"`
	NormalizedLength int      `json:"normalizedLength"`
}

// OpenCache opens (or creates) the fingerprint cache at dir.
func OpenCache(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // badger's own logger is noisy; failures surface as errors

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open fingerprint cache at %s: %w", dir, err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying badger database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// key derives the cache key from raw content.
func (c *Cache) key(content string) []byte {
	sum := sha256.Sum256([]byte(content))
	return sum[:]
}

// Get returns the cached fingerprint for content, if present.
func (c *Cache) Get(content string) (*Fingerprint, bool) {
	var entry cacheEntry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key(content))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, false
	}

	set := make(map[uint32]struct{}, len(entry.Hashes))
	for _, h := range entry.Hashes {
		set[h] = struct{}{}
	}
	return &Fingerprint{
		Digest:           entry.Digest,
		Set:              set,
		NormalizedLength: entry.NormalizedLength,
	}, true
}

// Put stores a fingerprint for content. Failures are logged and swallowed;
// the cache is an optimisation, never a correctness dependency.
func (c *Cache) Put(content string, fp *Fingerprint) {
	hashes := make([]uint32, 0, len(fp.Set))
	for h := range fp.Set {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

	val, err := json.Marshal(cacheEntry{
		Digest:           fp.Digest,
		Hashes:           hashes,
		NormalizedLength: fp.NormalizedLength,
	})
	if err != nil {
		logging.Warn().Err(err).Msg("failed to encode fingerprint cache entry")
		return
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(c.key(content), val).WithTTL(cacheTTL)
		return txn.SetEntry(e)
	})
	if err != nil {
		logging.Warn().Err(err).Msg("failed to write fingerprint cache entry")
	}
}
