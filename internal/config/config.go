// Package config holds the validated settings for one analysis run:
// platform, logic/storage addresses, and block number, plus the defaults
// a CLI invocation falls back to when a flag is omitted.
package config

import (
	"strings"

	"github.com/shuo-young/lydia-go/internal/addrutil"
	"github.com/shuo-young/lydia-go/internal/lydiaerr"
)

// Defaults mirror the original tool's hardcoded fallbacks.
const (
	DefaultPlatform           = "ETH"
	DefaultBlockNumber  uint64 = 16_000_000
	DefaultCaller             = "msg.sender"
	DefaultOutputDir          = "./output/"
	DefaultLevel              = 0
	WarningMedium             = "medium"
	WarningHigh               = "high"
	CreatebinFuncSelector     = addrutil.FunctionSelectorSentinel
	CreatebinAnalysisLoc      = "createbin"
	RuntimebinAnalysisLoc     = "runtimebin"
)

// Config is the parsed and validated settings for a single `lydia` run.
type Config struct {
	Platform       string
	LogicAddress   string
	StorageAddress string
	BlockNumber    uint64
	OutputDir      string

	// DecompilerTimeoutSeconds bounds each decompiler subprocess invocation.
	DecompilerTimeoutSeconds int
	// RPCTimeoutSeconds bounds each RPC round trip.
	RPCTimeoutSeconds int
}

// New fills in defaults for any zero-valued field and validates the
// result.
func New(platform, logicAddress, storageAddress string, blockNumber uint64) (*Config, error) {
	cfg := &Config{
		Platform:                 platform,
		LogicAddress:             logicAddress,
		StorageAddress:           storageAddress,
		BlockNumber:              blockNumber,
		OutputDir:                DefaultOutputDir,
		DecompilerTimeoutSeconds: 120,
		RPCTimeoutSeconds:        30,
	}
	if cfg.Platform == "" {
		cfg.Platform = DefaultPlatform
	}
	if cfg.StorageAddress == "" {
		cfg.StorageAddress = cfg.LogicAddress
	}
	if cfg.BlockNumber == 0 {
		cfg.BlockNumber = DefaultBlockNumber
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks platform and address shape, matching the original's
// config validation (0x-prefix, 42-char length).
func (c *Config) Validate() error {
	platform := strings.ToUpper(c.Platform)
	if platform != "ETH" && platform != "BSC" {
		return lydiaerr.New(lydiaerr.Config, "unknown platform: "+c.Platform)
	}
	c.Platform = platform

	if !isAddress(c.LogicAddress) {
		return lydiaerr.New(lydiaerr.Config, "logic address malformed or missing: "+c.LogicAddress)
	}
	if !isAddress(c.StorageAddress) {
		return lydiaerr.New(lydiaerr.Config, "storage address malformed: "+c.StorageAddress)
	}
	return nil
}

func isAddress(a string) bool {
	return strings.HasPrefix(a, "0x") && len(a) == addrutil.AddrLen
}

// AnalysisSource bundles the root analysis parameters: the root (logic,
// storage) address pair, an optional selector (empty means "analyze every
// public function"), the platform and block. The analysis pipeline builds
// its own factstore.Request seeds and does not use this type.
type AnalysisSource struct {
	Platform       string
	LogicAddress   string
	StorageAddress string
	FuncSign       string
	BlockNumber    uint64
}

// FromConfig builds the root AnalysisSource in "origin" (all functions)
// mode.
func FromConfig(cfg *Config) AnalysisSource {
	return AnalysisSource{
		Platform:       cfg.Platform,
		LogicAddress:   addrutil.Format(cfg.LogicAddress),
		StorageAddress: addrutil.Format(cfg.StorageAddress),
		FuncSign:       "",
		BlockNumber:    cfg.BlockNumber,
	}
}

// ForCreatebin builds the root AnalysisSource for creation-bytecode
// analysis, pinned to the function-selector sentinel.
func ForCreatebin(cfg *Config) AnalysisSource {
	src := FromConfig(cfg)
	src.FuncSign = CreatebinFuncSelector
	return src
}
