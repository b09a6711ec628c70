package ledger

import (
	"context"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// backend is the subset of the Substrate JSON-RPC API the client uses.
type backend interface {
	Chain() (string, error)
	Name() (string, error)
	FinalizedHead() (types.Hash, error)
	Header(hash types.Hash) (*types.Header, error)
	BlockHash(number uint64) (types.Hash, error)
	Block(hash types.Hash) (*types.SignedBlock, error)
	Metadata(hash types.Hash) (*types.Metadata, error)
	LatestMetadata() (*types.Metadata, error)
	RuntimeVersion() (*types.RuntimeVersion, error)
	StorageRaw(key types.StorageKey) (*types.StorageDataRaw, error)
	AccountNextIndex(address string) (uint32, error)
	SubmitAndWatch(xt types.Extrinsic) (statusWatcher, error)
	Close()
}

// statusWatcher is a subscription to the status updates of one extrinsic.
type statusWatcher interface {
	Chan() <-chan types.ExtrinsicStatus
	Err() <-chan error
	Unsubscribe()
}

type dialFunc func(ctx context.Context, endpoint string) (backend, error)

// dialSubstrate opens a websocket session. go-substrate-rpc-client does not
// take a context, so the dial runs in the background and is abandoned (and
// closed once it completes) when ctx expires first.
func dialSubstrate(ctx context.Context, endpoint string) (backend, error) {
	type result struct {
		api *gsrpc.SubstrateAPI
		err error
	}
	done := make(chan result, 1)
	go func() {
		api, err := gsrpc.NewSubstrateAPI(endpoint)
		done <- result{api, err}
	}()
	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				(&substrateBackend{api: r.api}).Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &substrateBackend{api: r.api}, nil
	}
}

type substrateBackend struct {
	api *gsrpc.SubstrateAPI
}

func (b *substrateBackend) Chain() (string, error) {
	chain, err := b.api.RPC.System.Chain()
	return string(chain), err
}

func (b *substrateBackend) Name() (string, error) {
	name, err := b.api.RPC.System.Name()
	return string(name), err
}

func (b *substrateBackend) FinalizedHead() (types.Hash, error) {
	return b.api.RPC.Chain.GetFinalizedHead()
}

func (b *substrateBackend) Header(hash types.Hash) (*types.Header, error) {
	return b.api.RPC.Chain.GetHeader(hash)
}

func (b *substrateBackend) BlockHash(number uint64) (types.Hash, error) {
	return b.api.RPC.Chain.GetBlockHash(number)
}

func (b *substrateBackend) Block(hash types.Hash) (*types.SignedBlock, error) {
	return b.api.RPC.Chain.GetBlock(hash)
}

func (b *substrateBackend) Metadata(hash types.Hash) (*types.Metadata, error) {
	return b.api.RPC.State.GetMetadata(hash)
}

func (b *substrateBackend) LatestMetadata() (*types.Metadata, error) {
	return b.api.RPC.State.GetMetadataLatest()
}

func (b *substrateBackend) RuntimeVersion() (*types.RuntimeVersion, error) {
	return b.api.RPC.State.GetRuntimeVersionLatest()
}

func (b *substrateBackend) StorageRaw(key types.StorageKey) (*types.StorageDataRaw, error) {
	return b.api.RPC.State.GetStorageRawLatest(key)
}

func (b *substrateBackend) AccountNextIndex(address string) (uint32, error) {
	var next uint32
	if err := b.api.Client.Call(&next, "system_accountNextIndex", address); err != nil {
		return 0, err
	}
	return next, nil
}

func (b *substrateBackend) SubmitAndWatch(xt types.Extrinsic) (statusWatcher, error) {
	sub, err := b.api.RPC.Author.SubmitAndWatchExtrinsic(xt)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (b *substrateBackend) Close() {
	if closer, ok := b.api.Client.(interface{ Close() }); ok {
		closer.Close()
	}
}
