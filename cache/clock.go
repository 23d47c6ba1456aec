package cache

import "github.com/agilira/go-timecache"

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// systemClock is the default Clock, backed by go-timecache's cached
// monotonic-ish clock instead of a raw time.Now() call on every operation.
type systemClock struct{}

func (systemClock) NowUnixNano() int64 { return timecache.CachedTimeNano() }
