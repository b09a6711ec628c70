package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Globals struct {
	LogLevel string `env:"LOG_LEVEL" enum:"debug,info,warn,error" default:"info" help:"Log level."`
	Config   string `env:"CONFIG"                                                help:"Path to the migration config file. Defaults are used when omitted." type:"existingfile"`
}

type CLI struct {
	Globals
	Migrate MigrateCmd `cmd:"" help:"Replays the claim root hashes of a source block into the target chain."`
	Scan    ScanCmd    `cmd:"" help:"Lists the claim root hashes committed in a source block."`
}

func main() {
	// Parse .env file.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatal(err)
	}

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("claims-migration"),
		kong.Description("Migrates claim root hashes between chains."),
		kong.UsageOnError(),
		kong.Vars{
			"version": "0.0.1",
		},
	)

	logger, err := newLogger(cli.Globals.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	// Interrupts cancel in-flight RPC calls; submitted extrinsics are not
	// recalled, so the report lists what was sent before the interrupt.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	kctx.BindTo(ctx, (*context.Context)(nil))

	err = kctx.Run(logger, &cli.Globals)
	kctx.FatalIfErrorf(err)
}

// newLogger builds a colored console logger at level.
func newLogger(level string) (*zap.Logger, error) {
	logLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(colorable.NewColorableStdout()),
		logLevel,
	)), nil
}
