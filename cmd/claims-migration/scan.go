package main

import (
	"context"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/centrifuge/claims-migration/pkg/ledger"
	"github.com/centrifuge/claims-migration/pkg/migration"
)

type ScanCmd struct {
	Source string `arg:"" help:"WebSocket endpoint of the source chain node."`
	Block  uint64 `       help:"Source block number to scan." required:""`
}

func (c *ScanCmd) Run(ctx context.Context, logger *zap.Logger, globals *Globals) error {
	config, err := migration.LoadConfig(globals.Config)
	if err != nil {
		return err
	}
	source, err := ledger.Connect(ctx, c.Source,
		ledger.WithLogger(logger),
		ledger.WithTimeout(config.Timeout),
	)
	if err != nil {
		return err
	}
	defer source.Disconnect()

	block, matches, err := migration.Inspect(ctx, source, *config, c.Block)
	if err != nil {
		return err
	}
	logger.Info("Scanned block",
		zap.Uint64("block", block.Number),
		zap.String("hash", block.Hash.Hex()),
		zap.Int("extrinsics", len(block.Extrinsics)),
		zap.Int("matches", len(matches)),
	)
	result := &migration.Result{BlockNumber: block.Number, BlockHash: block.Hash.Hex()}
	for _, match := range matches {
		logger.Info("Found digest",
			zap.Int("extrinsic", match.Extrinsic.Index),
			zap.String("digest", hexutil.Encode(match.Digest)),
		)
		result.Outcomes = append(result.Outcomes, migration.Outcome{
			ExtrinsicIndex: match.Extrinsic.Index,
			Digest:         hexutil.Encode(match.Digest),
			Status:         migration.OutcomeSkipped,
		})
	}
	return migration.WriteReport(os.Stdout, result)
}
