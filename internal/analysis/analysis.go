// Package analysis ties the fact loader, call-graph explorer, and flow
// engine together into a single run: load the root contract, expand its
// cross-contract call graph from each public entry point that makes an
// external call (or from the constructor sentinel for creation bytecode),
// run the flow analysis, and assemble the verdict.
package analysis

import (
	"context"
	"time"

	"github.com/shuo-young/lydia-go/internal/addrutil"
	"github.com/shuo-young/lydia-go/internal/callgraph"
	"github.com/shuo-young/lydia-go/internal/config"
	"github.com/shuo-young/lydia-go/internal/decompiler"
	"github.com/shuo-young/lydia-go/internal/factstore"
	"github.com/shuo-young/lydia-go/internal/flowengine"
	"github.com/shuo-young/lydia-go/internal/rpcadapter"
	"github.com/shuo-young/lydia-go/internal/verdict"
)

// Engine runs one full analysis from a validated Config.
type Engine struct {
	Config       *config.Config
	ToolchainDir string
	RPC          *rpcadapter.Client
	Decompiler   *decompiler.Driver
	Parallelism  int // 0 or 1 means sequential expansion
}

// NewEngine builds an Engine; each Run creates its own Loader and
// Explorer.
func NewEngine(cfg *config.Config, toolchainDir string, rpc *rpcadapter.Client, drv *decompiler.Driver) *Engine {
	return &Engine{Config: cfg, ToolchainDir: toolchainDir, RPC: rpc, Decompiler: drv}
}

// Run executes the full pipeline and returns the assembled verdict.
func (e *Engine) Run(ctx context.Context) (verdict.Result, error) {
	start := time.Now()

	loader := factstore.NewLoader(e.ToolchainDir, e.RPC, e.Decompiler)

	root, err := loader.Load(ctx, rootRequest(e.Config), "")
	if err != nil {
		return verdict.Result{}, err
	}

	seeds := e.buildSeeds(root)

	explorer := callgraph.NewExplorer(loader)
	if e.Parallelism > 1 {
		explorer.SetParallel(e.Parallelism)
	}

	graph, err := explorer.Build(ctx, e.Config.Platform, seeds)
	if err != nil {
		return verdict.Result{}, err
	}

	engine := flowengine.NewEngine(e.ToolchainDir, graph.Contracts, graph.VisitedContracts, graph.VisitedFuncs)
	det := engine.Detect()

	result := verdict.Build(
		e.Config,
		root.Createbin,
		det,
		verdict.CallGraphStats{
			CallPaths:        graph.CallPaths,
			VisitedContracts: graph.VisitedContracts,
			VisitedFuncs:     graph.VisitedFuncs,
			MaxCallDepth:     graph.MaxLevel,
		},
		root.FuncSignList,
		rootExternalFuncSigns(root),
	)

	return verdict.WithDuration(result, time.Since(start)), nil
}

// rootRequest builds the origin-mode load request for the input
// contract: every public function is analyzed, FuncSign left empty.
func rootRequest(cfg *config.Config) factstore.Request {
	return factstore.Request{
		Platform:    cfg.Platform,
		LogicAddr:   addrutil.Format(cfg.LogicAddress),
		StorageAddr: addrutil.Format(cfg.StorageAddress),
		FuncSign:    "",
		Caller:      config.DefaultCaller,
		CallSite:    "",
		BlockNumber: cfg.BlockNumber,
		Level:       config.DefaultLevel,
	}
}

// buildSeeds decides the worklist's starting points. A creation-bytecode
// root always seeds the explorer with its sentinel selector, regardless
// of whether any external call was recovered for it, since creation code
// can still run attacker logic in its constructor. A runtime root seeds
// once per public selector that has its own recovered external call.
func (e *Engine) buildSeeds(root *factstore.Contract) []factstore.Request {
	base := factstore.Request{
		Platform:    e.Config.Platform,
		LogicAddr:   root.LogicAddr,
		StorageAddr: root.StorageAddr,
		Caller:      config.DefaultCaller,
		CallSite:    "",
		BlockNumber: root.BlockNumber,
		Level:       config.DefaultLevel,
	}

	if root.Createbin {
		seed := base
		seed.FuncSign = addrutil.FunctionSelectorSentinel
		return []factstore.Request{seed}
	}

	var seeds []factstore.Request
	for sig := range root.FuncSignsWithExternalCalls {
		seed := base
		seed.FuncSign = sig
		seeds = append(seeds, seed)
	}
	return seeds
}

func rootExternalFuncSigns(root *factstore.Contract) []string {
	out := make([]string, 0, len(root.FuncSignsWithExternalCalls))
	for sig := range root.FuncSignsWithExternalCalls {
		out = append(out, sig)
	}
	return out
}
