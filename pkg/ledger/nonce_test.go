package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNonceAllocatorConcurrent(t *testing.T) {
	fetches := 0
	a := newNonceAllocator(func(context.Context) (uint32, error) {
		fetches++
		return 100, nil
	})

	const n = 50
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		nonces []int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nonce, err := a.Allocate(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			nonces = append(nonces, int(nonce))
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Ints(nonces)
	for i, nonce := range nonces {
		require.Equal(t, 100+i, nonce, "nonces must be gap-free and unique")
	}
	require.Equal(t, 1, fetches)
}

func TestNonceAllocatorRelease(t *testing.T) {
	next := uint32(7)
	fetches := 0
	a := newNonceAllocator(func(context.Context) (uint32, error) {
		fetches++
		return next, nil
	})
	allocate := func() uint32 {
		nonce, err := a.Allocate(context.Background())
		require.NoError(t, err)
		return nonce
	}

	first, second := allocate(), allocate()
	require.Equal(t, []uint32{7, 8}, []uint32{first, second})

	// The first extrinsic is rejected while the second is still in flight:
	// its nonce is reused and the node, which would report 7, is not asked.
	next = 7
	a.Release(first)
	require.Equal(t, uint32(7), allocate())
	require.Equal(t, uint32(9), allocate())
	require.Equal(t, 1, fetches)

	// Releasing a nonce that is not in flight has no effect.
	a.Release(42)
	require.Equal(t, uint32(10), allocate())

	// Freed nonces are reused lowest first.
	a.Release(10)
	a.Release(9)
	require.Equal(t, uint32(9), allocate())
	require.Equal(t, uint32(10), allocate())
	require.Equal(t, 1, fetches)
}

func TestNonceAllocatorResync(t *testing.T) {
	next := uint32(0)
	fetches := 0
	a := newNonceAllocator(func(context.Context) (uint32, error) {
		fetches++
		return next, nil
	})

	a0, err := a.Allocate(context.Background())
	require.NoError(t, err)
	a1, err := a.Allocate(context.Background())
	require.NoError(t, err)

	// An unknown outcome marks the allocator stale, but it keeps counting
	// while a1 is in flight.
	a.Forget(a0)
	a2, err := a.Allocate(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(2), a2)
	require.Equal(t, 1, fetches)

	// With nothing in flight, the node is asked again.
	a.Finish(a1)
	a.Finish(a2)
	next = 5
	a3, err := a.Allocate(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(5), a3)
	require.Equal(t, 2, fetches)

	// Finishing alone never resyncs.
	a.Finish(a3)
	a4, err := a.Allocate(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(6), a4)
	require.Equal(t, 2, fetches)
}

func TestNonceAllocatorFetchError(t *testing.T) {
	a := newNonceAllocator(func(context.Context) (uint32, error) { return 0, errors.New("boom") })
	_, err := a.Allocate(context.Background())
	require.Error(t, err)
}
