// Command lydia finds attacker contracts: given a contract address, it
// recovers the cross-contract call graph rooted at that address and runs
// a taint/flow analysis over it looking for reentrancy and other
// exploit patterns, writing one JSON verdict to the output directory.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shuo-young/lydia-go/internal/analysis"
	"github.com/shuo-young/lydia-go/internal/config"
	"github.com/shuo-young/lydia-go/internal/decompiler"
	"github.com/shuo-young/lydia-go/internal/rpcadapter"
	"github.com/shuo-young/lydia-go/internal/verdict"
)

// newLogger builds a zap logger whose level is driven by LYDIA_LOG
// (debug, info, warn, error), playing the role RUST_LOG plays for the
// original's env_logger::init(). Defaults to info when unset or invalid.
func newLogger() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if raw := os.Getenv("LYDIA_LOG"); raw != "" {
		_ = level.Set(raw)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

func main() {
	app := &cli.App{
		Name:  "lydia",
		Usage: "Finding attacker contracts with malicious intents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "blockchain_platform",
				Aliases: []string{"b"},
				Value:   config.DefaultPlatform,
				Usage:   "The blockchain platform where the contract is deployed (ETH or BSC)",
			},
			&cli.StringFlag{
				Name:     "logic_address",
				Aliases:  []string{"l"},
				Usage:    "Contract address storing business logic",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "storage_address",
				Aliases: []string{"s"},
				Usage:   "Contract address storing business data (defaults to logic_address)",
			},
			&cli.Uint64Flag{
				Name:    "block_number",
				Aliases: []string{"n"},
				Value:   config.DefaultBlockNumber,
				Usage:   "Blockchain snapshot block number",
			},
			&cli.StringFlag{
				Name:  "rpc_endpoint",
				Usage: "Override the default JSON-RPC endpoint for the chosen platform",
			},
			&cli.StringFlag{
				Name:  "toolchain_dir",
				Value: "./gigahorse-toolchain",
				Usage: "Path to the gigahorse decompiler toolchain checkout",
			},
			&cli.StringFlag{
				Name:  "output_dir",
				Value: config.DefaultOutputDir,
				Usage: "Directory to write the JSON verdict to",
			},
			&cli.IntFlag{
				Name:  "parallelism",
				Value: 1,
				Usage: "Number of call-graph worklist entries to expand concurrently",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.New(
		c.String("blockchain_platform"),
		c.String("logic_address"),
		c.String("storage_address"),
		c.Uint64("block_number"),
	)
	if err != nil {
		return err
	}
	if dir := c.String("output_dir"); dir != "" {
		cfg.OutputDir = dir
	}

	logger.Info("starting analysis",
		zap.String("platform", cfg.Platform),
		zap.String("logic_address", cfg.LogicAddress),
		zap.Uint64("block_number", cfg.BlockNumber))

	rpc, err := rpcadapter.NewClient(cfg.Platform, c.String("rpc_endpoint"), time.Duration(cfg.RPCTimeoutSeconds)*time.Second)
	if err != nil {
		return err
	}
	drv := decompiler.NewDriver(c.String("toolchain_dir"), time.Duration(cfg.DecompilerTimeoutSeconds)*time.Second)

	engine := analysis.NewEngine(cfg, c.String("toolchain_dir"), rpc, drv)
	engine.Parallelism = c.Int("parallelism")

	result, err := engine.Run(c.Context)
	if err != nil {
		logger.Error("analysis failed", zap.Error(err))
		return err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}
	outPath := filepath.Join(cfg.OutputDir, cfg.LogicAddress+".json")
	b, err := json.MarshalIndent(map[string]verdict.Result{cfg.LogicAddress: result}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, b, 0o644); err != nil {
		return err
	}

	logger.Info("analysis complete",
		zap.Bool("is_attack", result.IsAttack),
		zap.String("warning", result.Warning),
		zap.String("output", outPath))

	return nil
}
