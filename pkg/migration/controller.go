// Package migration replays the claim root hashes committed on a source
// ledger into the storage of a target ledger.
package migration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/centrifuge/claims-migration/pkg/ledger"
	"github.com/centrifuge/claims-migration/pkg/signer"
	"github.com/centrifuge/claims-migration/pkg/storagekey"
)

// Ledger is the part of a ledger.Client the controller drives.
type Ledger interface {
	ChainName(ctx context.Context) (string, error)
	NodeName(ctx context.Context) (string, error)
	BlockHash(ctx context.Context, number uint64) (types.Hash, error)
	Block(ctx context.Context, hash types.Hash) (*ledger.Block, error)
	QueryStorage(ctx context.Context, key []byte) ([]byte, error)
	PreparePrivileged(ctx context.Context, inner ledger.Call, kp *signer.KeyPair) (ledger.Submission, error)
	Disconnect()
}

// Dialer opens a Ledger.
type Dialer func(ctx context.Context, endpoint string) (Ledger, error)

// Phase is the controller's position in a migration.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnected
	PhaseScanning
	PhaseExtracting
	PhaseReplaying
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnected:
		return "connected"
	case PhaseScanning:
		return "scanning"
	case PhaseExtracting:
		return "extracting"
	case PhaseReplaying:
		return "replaying"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Match is a matched extrinsic and the digest extracted from it.
type Match struct {
	Extrinsic ledger.Extrinsic
	Digest    []byte
}

// Controller migrates digests from a source ledger to a target ledger. It
// runs at most one migration at a time.
type Controller struct {
	logger   *zap.Logger
	config   Config
	dial     Dialer
	progress io.Writer

	mu       sync.Mutex
	phase    Phase
	source   Ledger
	target   Ledger
	operator *signer.KeyPair
}

type Option func(*Controller)

func WithDialer(dial Dialer) Option {
	return func(c *Controller) { c.dial = dial }
}

// WithProgress renders a progress bar of the replay to w.
func WithProgress(w io.Writer) Option {
	return func(c *Controller) { c.progress = w }
}

func New(logger *zap.Logger, config Config, opts ...Option) *Controller {
	c := &Controller{
		logger:   logger,
		config:   config,
		progress: io.Discard,
	}
	c.dial = c.connectLedger
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) connectLedger(ctx context.Context, endpoint string) (Ledger, error) {
	opts := []ledger.Option{
		ledger.WithLogger(c.logger),
		ledger.WithTimeout(c.config.Timeout),
		ledger.WithWatchTimeout(c.config.WatchTimeout),
		ledger.WithSubmitRate(c.config.SubmitRate),
	}
	if c.config.WaitFinalized {
		opts = append(opts, ledger.WithWaitFinalized())
	}
	client, err := ledger.Connect(ctx, endpoint, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) setPhase(phase Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = phase
}

// Connect opens the source and target ledgers, derives the operator key
// pair from secret and checks that the operator is the target's admin
// account. The secret is wiped before Connect returns. Whatever the
// outcome, the caller must call Disconnect.
func (c *Controller) Connect(ctx context.Context, sourceURL, targetURL string, secret signer.Secret) error {
	defer secret.Wipe()

	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return fmt.Errorf("cannot connect while %s", c.phase)
	}
	c.phase = PhaseConnected
	c.mu.Unlock()

	if err := c.connect(ctx, sourceURL, targetURL, secret); err != nil {
		c.setPhase(PhaseFailed)
		return err
	}
	return nil
}

func (c *Controller) connect(ctx context.Context, sourceURL, targetURL string, secret signer.Secret) error {
	// The two connections are independent: one failing leaves the other open.
	var source, target Ledger
	connections := pool.New().WithContext(ctx).WithFirstError()
	connections.Go(func(ctx context.Context) (err error) {
		source, err = c.dial(ctx, sourceURL)
		return err
	})
	connections.Go(func(ctx context.Context) (err error) {
		target, err = c.dial(ctx, targetURL)
		return err
	})
	err := connections.Wait()

	c.mu.Lock()
	c.source, c.target = source, target
	c.mu.Unlock()
	if err != nil {
		return err
	}

	// Log the identity of both nodes.
	var sourceChain, sourceNode, targetChain, targetNode string
	identities := pool.New().WithContext(ctx).WithFirstError()
	identities.Go(func(ctx context.Context) (err error) {
		sourceChain, err = source.ChainName(ctx)
		return err
	})
	identities.Go(func(ctx context.Context) (err error) {
		sourceNode, err = source.NodeName(ctx)
		return err
	})
	identities.Go(func(ctx context.Context) (err error) {
		targetChain, err = target.ChainName(ctx)
		return err
	})
	identities.Go(func(ctx context.Context) (err error) {
		targetNode, err = target.NodeName(ctx)
		return err
	})
	if err := identities.Wait(); err != nil {
		return fmt.Errorf("failed to query node identity: %w", err)
	}
	c.logger.Info("Connected to source chain",
		zap.String("endpoint", sourceURL),
		zap.String("chain", sourceChain),
		zap.String("node", sourceNode),
	)
	c.logger.Info("Connected to target chain",
		zap.String("endpoint", targetURL),
		zap.String("chain", targetChain),
		zap.String("node", targetNode),
	)

	// Derive the operator key pair.
	opts := []signer.Option{signer.WithNetwork(c.config.SS58Format)}
	if c.config.AllowDevSeeds {
		opts = append(opts, signer.WithDevSeeds())
	}
	operator, err := signer.DeriveKeyPair(secret, opts...)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.operator = operator
	c.mu.Unlock()

	if err := c.checkAdmin(ctx, target, operator); err != nil {
		return err
	}
	c.logger.Info("Operator is the target admin account", zap.String("operator", operator.Address))
	return nil
}

// checkAdmin fails with a PermissionError unless the target's admin
// storage item holds the operator's public key.
func (c *Controller) checkAdmin(ctx context.Context, target Ledger, operator *signer.KeyPair) error {
	key := storageKeyOf(c.config.Admin)
	admin, err := target.QueryStorage(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to query %s.%s: %w", c.config.Admin.Module, c.config.Admin.Item, err)
	}
	if !bytes.Equal(admin, operator.PublicKey) {
		permErr := &PermissionError{Operator: operator.Address}
		if admin != nil {
			permErr.Admin = hexutil.Encode(admin)
		}
		return permErr
	}
	return nil
}

// Disconnect closes both ledgers and discards the operator key pair. It is
// safe to call at any time and more than once.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source != nil {
		c.source.Disconnect()
		c.source = nil
	}
	if c.target != nil {
		c.target.Disconnect()
		c.target = nil
	}
	c.operator.Wipe()
	c.operator = nil
	c.phase = PhaseIdle
}

// Migrate replays every digest committed in the source block blockNumber
// into the target ledger, in block order. A failed digest does not stop
// the others; when all of them fail a MigrationFailedError is returned
// along with the Result.
func (c *Controller) Migrate(ctx context.Context, blockNumber uint64) (*Result, error) {
	c.mu.Lock()
	switch c.phase {
	case PhaseConnected, PhaseDone:
	case PhaseIdle:
		c.mu.Unlock()
		return nil, ErrNotConnected
	case PhaseFailed:
		c.mu.Unlock()
		return nil, ErrFailed
	default:
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.phase = PhaseScanning
	source, target, operator := c.source, c.target, c.operator
	c.mu.Unlock()

	result, err := c.migrate(ctx, source, target, operator, blockNumber)
	if err != nil && result == nil {
		c.setPhase(PhaseFailed)
		return nil, err
	}
	c.setPhase(PhaseDone)
	return result, err
}

func (c *Controller) migrate(
	ctx context.Context,
	source, target Ledger,
	operator *signer.KeyPair,
	blockNumber uint64,
) (*Result, error) {
	logger := c.logger.With(zap.Uint64("block", blockNumber))

	// Fetch and scan the block.
	block, err := fetchBlock(ctx, source, blockNumber)
	if err != nil {
		return nil, err
	}
	logger.Info("Scanning block",
		zap.String("hash", block.Hash.Hex()),
		zap.Int("extrinsics", len(block.Extrinsics)),
	)
	matches := Scan(block, c.config.Source.Module, c.config.Source.Method)

	// Extract digests.
	c.setPhase(PhaseExtracting)
	extracted, err := Extract(matches, c.config.Source.DigestSize)
	if err != nil {
		return nil, fmt.Errorf("failed to extract digests from block %d: %w", blockNumber, err)
	}
	result := &Result{
		BlockNumber: block.Number,
		BlockHash:   block.Hash.Hex(),
		Outcomes:    make([]Outcome, len(extracted)),
	}
	items := make([]ledger.StorageItem, len(extracted))
	for i, match := range extracted {
		items[i], err = c.config.Target.storageItem(match.Digest)
		if err != nil {
			return nil, err
		}
		result.Outcomes[i] = Outcome{
			ExtrinsicIndex: match.Extrinsic.Index,
			Digest:         hexutil.Encode(match.Digest),
			StorageKey:     hexutil.Encode(items[i].Key),
			Status:         OutcomeSkipped,
		}
		logger.Info("Found digest",
			zap.Int("extrinsic", match.Extrinsic.Index),
			zap.String("digest", result.Outcomes[i].Digest),
		)
	}
	if len(extracted) == 0 {
		logger.Info("No digests to migrate",
			zap.String("call", c.config.Source.Module+"."+c.config.Source.Method),
		)
		result.aggregate()
		return result, nil
	}
	if c.config.DryRun {
		logger.Info("Dry run, skipping replay", zap.Int("digests", len(extracted)))
		result.aggregate()
		return result, nil
	}

	// Replay digests. Extrinsics are signed one by one in match order, so
	// their nonces (and on-chain execution) follow the block; only the wait
	// for inclusion runs concurrently.
	c.setPhase(PhaseReplaying)
	bar := progressbar.NewOptions(
		len(extracted),
		progressbar.OptionSetWriter(c.progress),
		progressbar.OptionSetDescription("Replaying digests"),
	)
	defer bar.Clear()
	replays := pool.New().WithMaxGoroutines(c.config.Concurrency)
	for i := range extracted {
		outcome := &result.Outcomes[i]
		sub, err := target.PreparePrivileged(ctx, ledger.SetStorage(items[i]), operator)
		if err != nil {
			c.fail(logger, outcome, err)
			bar.Add(1)
			continue
		}
		outcome.Nonce = sub.Nonce()
		outcome.ExtrinsicHash = sub.Hash().Hex()
		replays.Go(func() {
			c.replay(ctx, logger, sub, outcome)
			bar.Add(1)
		})
	}
	replays.Wait()

	result.aggregate()
	logger.Info("Migration finished",
		zap.String("status", string(result.Status)),
		zap.Int("succeeded", result.Succeeded()),
		zap.Int("failed", result.Failed()),
	)
	if result.Partial != nil {
		logger.Warn("Some digests failed to migrate", zap.Error(result.Partial))
	}
	if result.Status == StatusFailed {
		return result, &MigrationFailedError{Failures: result.failures()}
	}
	return result, nil
}

func (c *Controller) replay(ctx context.Context, logger *zap.Logger, sub ledger.Submission, outcome *Outcome) {
	receipt, err := sub.Submit(ctx)
	if err != nil {
		c.fail(logger, outcome, err)
		return
	}
	logger = logger.With(zap.Int("extrinsic", outcome.ExtrinsicIndex), zap.String("digest", outcome.Digest))
	outcome.Status = OutcomeSuccess
	outcome.TxStatus = receipt.Status.String()
	outcome.Nonce = receipt.Nonce
	outcome.ExtrinsicHash = receipt.Hash.Hex()
	outcome.InclusionBlock = receipt.BlockHash.Hex()
	logger.Info("Migrated digest",
		zap.String("status", outcome.TxStatus),
		zap.String("inclusion_block", outcome.InclusionBlock),
	)
}

func (c *Controller) fail(logger *zap.Logger, outcome *Outcome, err error) {
	outcome.Status = OutcomeFailed
	outcome.Reason = err.Error()
	outcome.Err = err
	var failed *ledger.TransactionFailedError
	if errors.As(err, &failed) {
		outcome.TxStatus = failed.Status.String()
		outcome.Nonce = failed.Nonce
	}
	logger.Warn("Failed to migrate digest",
		zap.Int("extrinsic", outcome.ExtrinsicIndex),
		zap.String("digest", outcome.Digest),
		zap.Error(err),
	)
}

// Request is one complete migration: both endpoints, the operator secret
// and the source block to migrate.
type Request struct {
	SourceURL   string
	TargetURL   string
	Secret      signer.Secret
	BlockNumber uint64
}

// Run connects, migrates req.BlockNumber and disconnects.
func (c *Controller) Run(ctx context.Context, req Request) (*Result, error) {
	defer c.Disconnect()
	if err := c.Connect(ctx, req.SourceURL, req.TargetURL, req.Secret); err != nil {
		return nil, err
	}
	return c.Migrate(ctx, req.BlockNumber)
}

// fetchBlock resolves blockNumber on source and fetches the block.
func fetchBlock(ctx context.Context, source Ledger, blockNumber uint64) (*ledger.Block, error) {
	hash, err := source.BlockHash(ctx, blockNumber)
	if err != nil {
		return nil, err
	}
	block, err := source.Block(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block %d: %w", blockNumber, err)
	}
	if block.Number != blockNumber {
		return nil, fmt.Errorf("node returned block %d for block %d", block.Number, blockNumber)
	}
	return block, nil
}

// Inspect fetches block blockNumber from source and extracts the digests
// config selects, without replaying them.
func Inspect(ctx context.Context, source Ledger, config Config, blockNumber uint64) (*ledger.Block, []Match, error) {
	block, err := fetchBlock(ctx, source, blockNumber)
	if err != nil {
		return nil, nil, err
	}
	matches, err := Extract(Scan(block, config.Source.Module, config.Source.Method), config.Source.DigestSize)
	if err != nil {
		return nil, nil, err
	}
	return block, matches, nil
}

// Scan returns the extrinsics of block calling module.method, in block order.
func Scan(block *ledger.Block, module, method string) []ledger.Extrinsic {
	var matches []ledger.Extrinsic
	for _, xt := range block.Extrinsics {
		if xt.Is(module, method) {
			matches = append(matches, xt)
		}
	}
	return matches
}

// Extract decodes the first argument of every extrinsic as a digest of size bytes.
func Extract(extrinsics []ledger.Extrinsic, size int) ([]Match, error) {
	matches := make([]Match, 0, len(extrinsics))
	for _, xt := range extrinsics {
		digest, err := xt.FixedArg(size)
		if err != nil {
			return nil, fmt.Errorf("extrinsic %d: %w", xt.Index, err)
		}
		matches = append(matches, Match{Extrinsic: xt, Digest: digest})
	}
	return matches, nil
}

func storageKeyOf(item StorageItem) []byte {
	return storagekey.Prefix(item.Module, item.Item)
}
