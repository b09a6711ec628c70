// Package ledger is a client for one Substrate node: block and storage reads
// plus signed, privileged submissions watched until they are included.
package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/centrifuge/claims-migration/pkg/signer"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultWatchTimeout = 5 * time.Minute
)

// State is the connection state of a Client.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Client owns one RPC session with one node. A Client is connected when
// returned by Connect and becomes disconnected exactly once.
type Client struct {
	endpoint      string
	logger        *zap.Logger
	timeout       time.Duration
	watchTimeout  time.Duration
	waitFinalized bool
	limiter       *rate.Limiter
	dial          dialFunc

	mu      sync.RWMutex
	state   State
	backend backend

	// Runtime of the node at connect time, used to encode submissions.
	calls   *callTable
	runtime types.RuntimeVersion
	genesis types.Hash

	noncesMu sync.Mutex
	nonces   map[string]*nonceAllocator
}

type Option func(*Client)

// WithTimeout bounds the handshake and every single RPC call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// WithWatchTimeout bounds the wait for a submission to reach a terminal status.
func WithWatchTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.watchTimeout = timeout }
}

// WithWaitFinalized makes submissions resolve on finalization instead of
// block inclusion.
func WithWaitFinalized() Option {
	return func(c *Client) { c.waitFinalized = true }
}

// WithSubmitRate limits submissions to perSecond. Zero means unlimited.
func WithSubmitRate(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func withDialer(dial dialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

// Connect opens a session with the node at endpoint and loads the runtime
// information needed to encode calls.
func Connect(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	c := &Client{
		endpoint:     endpoint,
		logger:       zap.NewNop(),
		timeout:      DefaultTimeout,
		watchTimeout: DefaultWatchTimeout,
		limiter:      rate.NewLimiter(rate.Inf, 1),
		dial:         dialSubstrate,
		nonces:       map[string]*nonceAllocator{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("endpoint", endpoint))

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	b, err := c.dial(dialCtx, endpoint)
	if err != nil {
		return nil, &ConnectionError{Endpoint: endpoint, Err: err}
	}
	c.backend = b
	c.state = Connected

	if err := c.handshake(ctx); err != nil {
		c.Disconnect()
		return nil, &ConnectionError{Endpoint: endpoint, Err: err}
	}
	c.logger.Debug("Connected",
		zap.String("spec_name", string(c.runtime.SpecName)),
		zap.Uint32("spec_version", uint32(c.runtime.SpecVersion)),
		zap.String("genesis", c.genesis.Hex()),
	)
	return c, nil
}

func (c *Client) handshake(ctx context.Context) error {
	meta, err := do(ctx, c, "state_getMetadata", c.backend.LatestMetadata)
	if err != nil {
		return err
	}
	c.calls, err = newCallTable(meta)
	if err != nil {
		return err
	}
	runtime, err := do(ctx, c, "state_getRuntimeVersion", c.backend.RuntimeVersion)
	if err != nil {
		return err
	}
	c.runtime = *runtime
	c.genesis, err = do(ctx, c, "chain_getBlockHash", func() (types.Hash, error) {
		return c.backend.BlockHash(0)
	})
	return err
}

// Disconnect closes the session. Calling it again is a no-op.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return
	}
	c.state = Disconnected
	c.backend.Close()
	c.logger.Debug("Disconnected")
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// do runs one RPC call under the client's timeout. The read lock is held
// while the call is dispatched, so nothing reaches the node once Disconnect
// has started; Disconnect in turn waits for calls in progress.
func do[T any](ctx context.Context, c *Client, method string, fn func() (T, error)) (T, error) {
	var zero T
	if c.State() != Connected {
		return zero, &RpcError{Method: method, Err: ErrDisconnected}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.state != Connected {
			done <- result{err: ErrDisconnected}
			return
		}
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		return zero, &RpcError{Method: method, Err: ctx.Err()}
	case r := <-done:
		if r.err != nil {
			return zero, &RpcError{Method: method, Err: r.err}
		}
		return r.v, nil
	}
}

func (c *Client) ChainName(ctx context.Context) (string, error) {
	return do(ctx, c, "system_chain", c.backend.Chain)
}

func (c *Client) NodeName(ctx context.Context) (string, error) {
	return do(ctx, c, "system_name", c.backend.Name)
}

// FinalizedHeight returns the number of the latest finalized block.
func (c *Client) FinalizedHeight(ctx context.Context) (uint64, error) {
	head, err := do(ctx, c, "chain_getFinalizedHead", c.backend.FinalizedHead)
	if err != nil {
		return 0, err
	}
	header, err := do(ctx, c, "chain_getHeader", func() (*types.Header, error) {
		return c.backend.Header(head)
	})
	if err != nil {
		return 0, err
	}
	return uint64(header.Number), nil
}

// BlockHash resolves a finalized block number to its hash.
func (c *Client) BlockHash(ctx context.Context, number uint64) (types.Hash, error) {
	finalized, err := c.FinalizedHeight(ctx)
	if err != nil {
		return types.Hash{}, err
	}
	if number > finalized {
		return types.Hash{}, &BlockNotFoundError{Number: number, Finalized: finalized}
	}
	hash, err := do(ctx, c, "chain_getBlockHash", func() (types.Hash, error) {
		return c.backend.BlockHash(number)
	})
	if err != nil {
		return types.Hash{}, err
	}
	if hash == (types.Hash{}) {
		return types.Hash{}, &BlockNotFoundError{Number: number, Finalized: finalized}
	}
	return hash, nil
}

// Block fetches a block and names its extrinsics with the metadata of the
// runtime that produced it.
func (c *Client) Block(ctx context.Context, hash types.Hash) (*Block, error) {
	signed, err := do(ctx, c, "chain_getBlock", func() (*types.SignedBlock, error) {
		return c.backend.Block(hash)
	})
	if err != nil {
		return nil, err
	}
	meta, err := do(ctx, c, "state_getMetadata", func() (*types.Metadata, error) {
		return c.backend.Metadata(hash)
	})
	if err != nil {
		return nil, err
	}
	calls, err := newCallTable(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata of block %s: %w", hash.Hex(), err)
	}

	block := &Block{
		Number:     uint64(signed.Block.Header.Number),
		Hash:       hash,
		Extrinsics: make([]Extrinsic, len(signed.Block.Extrinsics)),
	}
	for i, xt := range signed.Block.Extrinsics {
		e := Extrinsic{
			Index:     i,
			CallIndex: xt.Method.CallIndex,
			Args:      Args(xt.Method.Args),
		}
		if name, ok := calls.lookup(xt.Method.CallIndex); ok {
			e.Module, e.Method, e.ArgCount = name.module, name.method, name.args
		}
		if xt.IsSigned() && xt.Signature.Signer.IsID {
			if id, err := codec.Encode(xt.Signature.Signer.AsID); err == nil {
				e.Signer = id
			}
		}
		block.Extrinsics[i] = e
	}
	return block, nil
}

// QueryStorage returns the raw value stored under key, or nil if absent.
func (c *Client) QueryStorage(ctx context.Context, key []byte) ([]byte, error) {
	data, err := do(ctx, c, "state_getStorage", func() (*types.StorageDataRaw, error) {
		return c.backend.StorageRaw(types.StorageKey(key))
	})
	if err != nil {
		return nil, err
	}
	if data == nil || len(*data) == 0 {
		return nil, nil
	}
	return []byte(*data), nil
}

// Receipt describes an included submission.
type Receipt struct {
	Hash      types.Hash
	Nonce     uint32
	Status    TxStatus
	BlockHash types.Hash
}

// Submission is a signed privileged extrinsic holding its nonce until it
// is submitted or cancelled.
type Submission interface {
	Nonce() uint32
	Hash() types.Hash
	// Submit sends the extrinsic and watches it until it is included (or
	// finalized, with WithWaitFinalized). It fails with a
	// TransactionFailedError when the node drops or invalidates it.
	// Submissions are never retried.
	Submit(ctx context.Context) (*Receipt, error)
	// Cancel gives the nonce back if Submit was never called.
	Cancel()
}

// PreparePrivileged wraps inner in Sudo.sudo, allocates the next nonce of
// kp and signs the extrinsic. Nonces follow the order of PreparePrivileged
// calls, so preparing in order and submitting concurrently keeps on-chain
// execution in that order.
func (c *Client) PreparePrivileged(ctx context.Context, inner Call, kp *signer.KeyPair) (Submission, error) {
	if c.State() != Connected {
		return nil, &RpcError{Method: "author_submitAndWatchExtrinsic", Err: ErrDisconnected}
	}
	call, err := c.calls.encode(Sudo(inner))
	if err != nil {
		return nil, fmt.Errorf("failed to encode call: %w", err)
	}

	nonces := c.noncesFor(kp)
	nonce, err := nonces.Allocate(ctx)
	if err != nil {
		return nil, err
	}
	xt, err := c.signExtrinsic(call, kp, nonce)
	if err != nil {
		nonces.Release(nonce)
		return nil, err
	}
	hash, err := extrinsicHash(xt)
	if err != nil {
		nonces.Release(nonce)
		return nil, err
	}
	return &submission{
		client: c,
		nonces: nonces,
		xt:     xt,
		hash:   hash,
		nonce:  nonce,
		logger: c.logger.With(
			zap.String("call", inner.String()),
			zap.Uint32("nonce", nonce),
			zap.String("extrinsic", hash.Hex()),
		),
	}, nil
}

// SubmitPrivileged prepares and submits inner in one step.
func (c *Client) SubmitPrivileged(ctx context.Context, inner Call, kp *signer.KeyPair) (*Receipt, error) {
	sub, err := c.PreparePrivileged(ctx, inner, kp)
	if err != nil {
		return nil, err
	}
	return sub.Submit(ctx)
}

type submission struct {
	client *Client
	nonces *nonceAllocator
	logger *zap.Logger
	xt     types.Extrinsic
	hash   types.Hash
	nonce  uint32

	mu   sync.Mutex
	used bool
}

func (s *submission) Nonce() uint32    { return s.nonce }
func (s *submission) Hash() types.Hash { return s.hash }

func (s *submission) take() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used {
		return false
	}
	s.used = true
	return true
}

func (s *submission) Cancel() {
	if s.take() {
		s.nonces.Release(s.nonce)
	}
}

func (s *submission) Submit(ctx context.Context) (*Receipt, error) {
	if !s.take() {
		return nil, fmt.Errorf("extrinsic %s was already submitted or cancelled", s.hash.Hex())
	}
	c := s.client
	if err := c.limiter.Wait(ctx); err != nil {
		s.nonces.Release(s.nonce)
		return nil, &RpcError{Method: "author_submitAndWatchExtrinsic", Err: err}
	}
	sub, err := do(ctx, c, "author_submitAndWatchExtrinsic", func() (statusWatcher, error) {
		return c.backend.SubmitAndWatch(s.xt)
	})
	if err != nil {
		s.nonces.Release(s.nonce)
		return nil, err
	}
	defer sub.Unsubscribe()
	s.logger.Debug("Submitted extrinsic")

	receipt, err := c.watch(ctx, s.logger, sub, s.hash, s.nonce)
	var failed *TransactionFailedError
	switch {
	case err == nil:
		s.nonces.Finish(s.nonce)
	case errors.As(err, &failed) && !failed.Status.Consumed():
		s.nonces.Release(s.nonce)
	default:
		s.nonces.Forget(s.nonce)
	}
	return receipt, err
}

func (c *Client) watch(
	ctx context.Context,
	logger *zap.Logger,
	sub statusWatcher,
	hash types.Hash,
	nonce uint32,
) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.watchTimeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil, &RpcError{Method: "author_extrinsicUpdate", Err: ctx.Err()}
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return nil, &RpcError{Method: "author_extrinsicUpdate", Err: err}
		case update, ok := <-sub.Chan():
			if !ok {
				return nil, &RpcError{Method: "author_extrinsicUpdate", Err: errors.New("subscription closed")}
			}
			status, blockHash := statusOf(update)
			logger.Debug("Extrinsic status", zap.Stringer("status", status))
			switch {
			case status == StatusFinalized, status == StatusInBlock && !c.waitFinalized:
				return &Receipt{Hash: hash, Nonce: nonce, Status: status, BlockHash: blockHash}, nil
			case status.Failed():
				return nil, &TransactionFailedError{Status: status, Nonce: nonce}
			}
		}
	}
}

func (c *Client) noncesFor(kp *signer.KeyPair) *nonceAllocator {
	c.noncesMu.Lock()
	defer c.noncesMu.Unlock()
	account := hex.EncodeToString(kp.PublicKey)
	a, ok := c.nonces[account]
	if !ok {
		a = newNonceAllocator(func(ctx context.Context) (uint32, error) {
			return do(ctx, c, "system_accountNextIndex", func() (uint32, error) {
				return c.backend.AccountNextIndex(kp.Address)
			})
		})
		c.nonces[account] = a
	}
	return a
}
