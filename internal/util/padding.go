package util

import (
	"sync/atomic"
)

// cacheLineSize is assumed to be 64 bytes, the line size on effectively all
// current amd64/arm64 parts.
const cacheLineSize = 64

// CacheLinePad separates groups of hot fields onto distinct cache lines so
// that writers of one group do not invalidate the line holding another.
type CacheLinePad struct{ _ [cacheLineSize]byte }

// PaddedAtomicInt64 is an atomic int64 occupying a full cache line. Used
// for per-shard counters updated by many goroutines at once.
type PaddedAtomicInt64 struct {
	atomic.Int64
	_ [cacheLineSize - 8]byte
}

// PaddedAtomicUint64 is the uint64 counterpart.
type PaddedAtomicUint64 struct {
	atomic.Uint64
	_ [cacheLineSize - 8]byte
}
