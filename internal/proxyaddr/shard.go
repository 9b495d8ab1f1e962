package proxyaddr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidShard reports shard parameters outside the accepted ranges.
// It is a configuration error: callers should abort before probing.
var ErrInvalidShard = errors.New("invalid shard parameters")

// Dedupe trims the raw candidates, drops empties, removes duplicates and
// returns the survivors in lexicographic order. The sorted order is the
// canonical ordering all sharding is computed over, so independent
// processes slicing the same candidate set agree on the partition.
func Dedupe(raws []string) []string {
	seen := make(map[string]struct{}, len(raws))
	out := make([]string, 0, len(raws))
	for _, r := range raws {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Shard returns the 1-based shard shardIndex of totalShards over items.
// Shards are contiguous slices of ceil(len/total) items; the final shard
// absorbs the remainder and may be shorter.
func Shard[T any](items []T, shardIndex, totalShards int) ([]T, error) {
	if totalShards < 1 || shardIndex < 1 || shardIndex > totalShards {
		return nil, fmt.Errorf("%w: shard %d of %d", ErrInvalidShard, shardIndex, totalShards)
	}
	size := (len(items) + totalShards - 1) / totalShards
	start := (shardIndex - 1) * size
	if start > len(items) {
		start = len(items)
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], nil
}

// WorkerSlice returns the 0-based worker workerID's slice of items.
// Slices are floor(len/total) items each; the last worker takes everything
// through the end so no item is dropped when len is not evenly divisible.
func WorkerSlice[T any](items []T, workerID, totalWorkers int) ([]T, error) {
	if totalWorkers < 1 || workerID < 0 || workerID >= totalWorkers {
		return nil, fmt.Errorf("%w: worker %d of %d", ErrInvalidShard, workerID, totalWorkers)
	}
	size := len(items) / totalWorkers
	start := workerID * size
	end := start + size
	if workerID == totalWorkers-1 {
		end = len(items)
	}
	return items[start:end], nil
}
