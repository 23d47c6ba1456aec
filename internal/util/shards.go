package util

import (
	"math/bits"
	"runtime"
)

// ReasonableShardCount picks a default shard count from available CPU
// parallelism: the next power of two at or above 2*GOMAXPROCS, clamped to
// [1, 256]. Enough shards to keep lock contention low, few enough that the
// per-shard maps stay cheap.
func ReasonableShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	n := int(NextPow2(uint64(2 * p)))
	if n > 256 {
		n = 256
	}
	return n
}

// NextPow2 returns the smallest power of two >= x. NextPow2(0) == 1; values
// past 1<<63 clamp to 1<<63.
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	if x > 1<<63 {
		return 1 << 63
	}
	return 1 << bits.Len64(x-1)
}

// ShardIndex maps a 64-bit key hash onto one of shards partitions. shards
// must be a power of two (New rounds the configured count up), so a mask
// suffices.
func ShardIndex(hash uint64, shards int) int {
	return int(hash & uint64(shards-1))
}
