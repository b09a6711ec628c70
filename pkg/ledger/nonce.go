package ledger

import (
	"context"
	"sort"
	"sync"
)

// nonceAllocator hands out the nonces of one signing account. The first
// allocation asks the node for the account's next index; later allocations
// count up locally so concurrent submissions never share or skip a nonce.
//
// Every allocated nonce stays in flight until it is finished, released or
// forgotten. Released nonces are handed out again, lowest first. The node is
// only asked again once nothing is in flight, since it cannot account for
// nonces still on their way to its pool.
type nonceAllocator struct {
	mu       sync.Mutex
	fetch    func(ctx context.Context) (uint32, error)
	next     uint32
	loaded   bool
	stale    bool
	inFlight map[uint32]struct{}
	free     []uint32 // sorted
}

func newNonceAllocator(fetch func(ctx context.Context) (uint32, error)) *nonceAllocator {
	return &nonceAllocator{fetch: fetch, inFlight: map[uint32]struct{}{}}
}

func (a *nonceAllocator) Allocate(ctx context.Context) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded || (a.stale && len(a.inFlight) == 0) {
		next, err := a.fetch(ctx)
		if err != nil {
			return 0, err
		}
		a.next, a.loaded, a.stale, a.free = next, true, false, nil
	}
	var nonce uint32
	if len(a.free) > 0 {
		nonce, a.free = a.free[0], a.free[1:]
	} else {
		nonce = a.next
		a.next++
	}
	a.inFlight[nonce] = struct{}{}
	return nonce, nil
}

// Finish marks nonce as used by an included extrinsic.
func (a *nonceAllocator) Finish(nonce uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inFlight, nonce)
}

// Release returns a nonce that was not consumed on chain: the extrinsic
// never reached the pool, or the pool dropped or rejected it. The nonce is
// reused by the next allocation.
func (a *nonceAllocator) Release(nonce uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.inFlight[nonce]; !ok {
		return
	}
	delete(a.inFlight, nonce)
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i] >= nonce })
	a.free = append(a.free, 0)
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = nonce
	a.stale = true
}

// Forget drops nonce without knowing whether the node consumed it. The
// allocator resynchronizes once nothing is in flight.
func (a *nonceAllocator) Forget(nonce uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inFlight, nonce)
	a.stale = true
}
