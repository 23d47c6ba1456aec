package batch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// M concurrent Load calls for distinct keys sharing one loader identity,
// issued inside one window, produce exactly one fn invocation whose key set
// equals the requested keys.
func TestCoalescer_Load_CoalescesDistinctKeys(t *testing.T) {
	t.Parallel()

	var calls int32
	var mu sync.Mutex
	var seen []int

	fn := func(ctx context.Context, keys []int) (map[int]int, error) {
		atomic.AddInt32(&calls, 1)
		mu.Lock()
		seen = append(seen, keys...)
		mu.Unlock()
		out := make(map[int]int, len(keys))
		for _, k := range keys {
			out[k] = k * 10
		}
		return out, nil
	}

	c := New[int, int](20*time.Millisecond, 100, nil, nil)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			v, err := c.Load(context.Background(), "loader", i, fn)
			if err != nil || v != i*10 {
				t.Errorf("key %d: v=%d err=%v", i, v, err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("want exactly 1 batch call, got %d", got)
	}
	sort.Ints(seen)
	if len(seen) != n {
		t.Fatalf("want %d keys seen, got %d", n, len(seen))
	}
	for i, k := range seen {
		if k != i {
			t.Fatalf("seen[%d] = %d, want %d", i, k, i)
		}
	}
}

// Reaching the size cap forces an immediate flush rather than waiting for
// the window: 25 calls at maxSize=10 split into sizes {10,10,5}.
func TestCoalescer_Load_SplitsByMaxBatchSize(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var sizes []int

	fn := func(ctx context.Context, keys []int) (map[int]int, error) {
		mu.Lock()
		sizes = append(sizes, len(keys))
		mu.Unlock()
		out := make(map[int]int, len(keys))
		for _, k := range keys {
			out[k] = k
		}
		return out, nil
	}

	c := New[int, int](50*time.Millisecond, 10, nil, nil)

	const n = 25
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			_, _ = c.Load(context.Background(), "loader", i, fn)
		}()
	}
	wg.Wait()

	mu.Lock()
	got := append([]int(nil), sizes...)
	mu.Unlock()
	sort.Sort(sort.Reverse(sort.IntSlice(got)))

	want := []int{10, 10, 5}
	if len(got) != len(want) {
		t.Fatalf("want %d batch calls, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("batch sizes = %v, want %v", got, want)
		}
	}
}

// A batch-wide failure propagates the same error to every waiter on that
// flushed batch.
func TestCoalescer_Load_BatchWideFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	fn := func(ctx context.Context, keys []int) (map[int]int, error) {
		return nil, boom
	}

	c := New[int, int](10*time.Millisecond, 100, nil, nil)

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			_, err := c.Load(context.Background(), "loader", i, fn)
			errs[i] = err
		}()
	}
	wg.Wait()

	for i, err := range errs {
		var fe *FailError
		if !errors.As(err, &fe) {
			t.Fatalf("waiter %d: want *FailError, got %v", i, err)
		}
		if !errors.Is(fe, boom) && fe.Cause != boom {
			t.Fatalf("waiter %d: cause = %v, want boom", i, fe.Cause)
		}
		if fe.Keys != n {
			t.Fatalf("waiter %d: Keys = %d, want %d", i, fe.Keys, n)
		}
	}
}

// A key the batch result omits entirely is reported as ErrKeyAbsent only to
// that key's waiter; peers in the same batch still get their values.
func TestCoalescer_Load_KeyAbsentIsPerKey(t *testing.T) {
	t.Parallel()

	fn := func(ctx context.Context, keys []int) (map[int]int, error) {
		out := make(map[int]int, len(keys))
		for _, k := range keys {
			if k == 2 {
				continue // omit key 2
			}
			out[k] = k * 100
		}
		return out, nil
	}

	c := New[int, int](10*time.Millisecond, 100, nil, nil)

	type res struct {
		v   int
		err error
	}
	results := make([]res, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		i := i
		go func() {
			defer wg.Done()
			v, err := c.Load(context.Background(), "loader", i, fn)
			results[i] = res{v, err}
		}()
	}
	wg.Wait()

	for i, r := range results {
		if i == 2 {
			if !errors.Is(r.err, ErrKeyAbsent) {
				t.Fatalf("key 2: want ErrKeyAbsent, got v=%d err=%v", r.v, r.err)
			}
			continue
		}
		if r.err != nil || r.v != i*100 {
			t.Fatalf("key %d: v=%d err=%v", i, r.v, r.err)
		}
	}
}

// window == 0 still batches every call issued synchronously before the
// first flush fires — it is not a disable-batching sentinel.
func TestCoalescer_Load_ZeroWindowStillBatches(t *testing.T) {
	t.Parallel()

	var calls int32
	fn := func(ctx context.Context, keys []int) (map[int]int, error) {
		atomic.AddInt32(&calls, 1)
		out := make(map[int]int, len(keys))
		for _, k := range keys {
			out[k] = k
		}
		return out, nil
	}

	c := New[int, int](0, 100, nil, nil)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			_, _ = c.Load(context.Background(), "loader", i, fn)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got < 1 {
		t.Fatalf("want at least 1 batch call, got %d", got)
	}
}

// Cancelling a waiter's context only abandons its own wait; the batch
// itself still flushes and serves every other waiter.
func TestCoalescer_Load_CancelOneWaiterDoesNotAbortBatch(t *testing.T) {
	t.Parallel()

	fn := func(ctx context.Context, keys []int) (map[int]int, error) {
		out := make(map[int]int, len(keys))
		for _, k := range keys {
			out[k] = k
		}
		return out, nil
	}

	c := New[int, int](30*time.Millisecond, 100, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancelledDone := make(chan struct{})
	go func() {
		defer close(cancelledDone)
		_, err := c.Load(ctx, "loader", 1, fn)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("want context.Canceled, got %v", err)
		}
	}()
	cancel()
	<-cancelledDone

	v, err := c.Load(context.Background(), "loader", 2, fn)
	if err != nil || v != 2 {
		t.Fatalf("peer waiter: v=%d err=%v", v, err)
	}
}

// onBatchCall fires exactly once per flushed batch, with the batch's size.
func TestCoalescer_OnBatchCallHook(t *testing.T) {
	t.Parallel()

	var hookCalls int32
	var lastSize int32
	c := New[int, int](10*time.Millisecond, 100, func(loaderID string, keys int) {
		atomic.AddInt32(&hookCalls, 1)
		atomic.StoreInt32(&lastSize, int32(keys))
	}, nil)

	fn := func(ctx context.Context, keys []int) (map[int]int, error) {
		out := make(map[int]int, len(keys))
		for _, k := range keys {
			out[k] = k
		}
		return out, nil
	}

	const n = 7
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			_, _ = c.Load(context.Background(), "loader", i, fn)
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&hookCalls) != 1 {
		t.Fatalf("want 1 hook call, got %d", hookCalls)
	}
	if atomic.LoadInt32(&lastSize) != n {
		t.Fatalf("want batch size %d, got %d", n, lastSize)
	}
}
