package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/centrifuge/claims-migration/pkg/migration"
	"github.com/centrifuge/claims-migration/pkg/signer"
)

type MigrateCmd struct {
	Source        string `arg:"" help:"WebSocket endpoint of the source chain node."`
	Target        string `arg:"" help:"WebSocket endpoint of the target chain node."`
	Block         uint64 `                          help:"Source block number holding the root hashes."                  required:""`
	SeedFile      string `env:"OPERATOR_SEED_FILE"  help:"File whose first line is the operator's secret seed."          type:"existingfile" xor:"seed"`
	Seed          string `env:"OPERATOR_SEED"       help:"Operator's secret seed. Prefer --seed-file."                   xor:"seed"`
	Report        string `env:"REPORT"              help:"Path to write a CSV report of the migration to."`
	DryRun        bool   `env:"DRY_RUN"             help:"Scan and extract without submitting anything."`
	WaitFinalized bool   `env:"WAIT_FINALIZED"      help:"Wait for submissions to be finalized instead of included."`
}

func (c *MigrateCmd) Run(ctx context.Context, logger *zap.Logger, globals *Globals) error {
	config, err := migration.LoadConfig(globals.Config)
	if err != nil {
		return err
	}
	if c.DryRun {
		config.DryRun = true
	}
	if c.WaitFinalized {
		config.WaitFinalized = true
	}

	secret, err := c.secret()
	if err != nil {
		return err
	}

	logger.Info(
		"Starting claims-migration",
		zap.String("source", c.Source),
		zap.String("target", c.Target),
		zap.Uint64("block", c.Block),
		zap.Bool("dry_run", config.DryRun),
	)
	controller := migration.New(logger, *config, migration.WithProgress(os.Stderr))
	result, err := controller.Run(ctx, migration.Request{
		SourceURL:   c.Source,
		TargetURL:   c.Target,
		Secret:      secret,
		BlockNumber: c.Block,
	})
	if result != nil && c.Report != "" {
		if err := migration.ExportReport(result, c.Report); err != nil {
			return err
		}
		logger.Info("Exported report", zap.String("file", c.Report))
	}
	if err != nil {
		return err
	}
	logger.Info(
		"Done",
		zap.String("status", string(result.Status)),
		zap.Int("digests", len(result.Outcomes)),
		zap.Int("failed", result.Failed()),
	)
	return nil
}

func (c *MigrateCmd) secret() (signer.Secret, error) {
	if c.SeedFile != "" {
		f, err := os.Open(c.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open seed file: %w", err)
		}
		defer f.Close()
		return signer.ReadSecret(f)
	}
	if c.Seed == "" {
		return nil, errors.New("missing operator seed: set --seed-file or OPERATOR_SEED")
	}
	secret := signer.Secret(c.Seed)
	c.Seed = ""
	return secret, nil
}
