// Package callgraph implements the cross-contract call-graph explorer: a
// LIFO worklist that expands from a root contract/function by following
// recovered external calls, deduplicating nodes by a context-sensitive
// composite key.
package callgraph

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shuo-young/lydia-go/internal/addrutil"
	"github.com/shuo-young/lydia-go/internal/factstore"
	"github.com/shuo-young/lydia-go/internal/lydiaerr"
)

// Graph is the fully expanded call graph: every loaded contract node
// keyed by its composite key, plus the visited address/selector sets and
// the deepest level reached.
type Graph struct {
	Platform string

	Contracts        map[string]*factstore.Contract
	VisitedContracts map[string]bool
	VisitedFuncs     map[string]bool
	MaxLevel         int

	// CallPaths is the textual, indented call-path listing; informational
	// only, never consumed by the flow engine.
	CallPaths []string
}

// Mode selects sequential (matches the original LIFO loop exactly) or
// bounded-parallel expansion of already-enqueued worklist entries.
type Mode int

const (
	Sequential Mode = iota
	Parallel
)

// Explorer runs the worklist algorithm over a Loader.
type Explorer struct {
	Loader       *factstore.Loader
	Mode         Mode
	Parallelism  int
	OnLoadError  func(req factstore.Request, err error)
}

// NewExplorer builds a sequential Explorer; call SetParallel to switch
// modes.
func NewExplorer(loader *factstore.Loader) *Explorer {
	return &Explorer{Loader: loader, Mode: Sequential, Parallelism: 1}
}

// SetParallel switches the Explorer to bounded-parallel expansion with up
// to n concurrent loads, guarded by a single mutex around the dedup
// check-and-insert.
func (e *Explorer) SetParallel(n int) {
	e.Mode = Parallel
	e.Parallelism = n
}

type workItem struct {
	req            factstore.Request
	callerFuncSign string
}

// Build runs the explorer from seeds to a fixed point and returns the
// resulting Graph.
func (e *Explorer) Build(ctx context.Context, platform string, seeds []factstore.Request) (*Graph, error) {
	g := &Graph{
		Platform:         platform,
		Contracts:        make(map[string]*factstore.Contract),
		VisitedContracts: make(map[string]bool),
		VisitedFuncs:     make(map[string]bool),
	}

	if e.Mode == Parallel {
		return g, e.buildParallel(ctx, g, seeds)
	}
	return g, e.buildSequential(ctx, g, seeds)
}

func (e *Explorer) buildSequential(ctx context.Context, g *Graph, seeds []factstore.Request) error {
	var pending []workItem
	for _, s := range seeds {
		pending = append(pending, workItem{req: s, callerFuncSign: s.CallerFuncSign})
	}

	for len(pending) > 0 {
		item := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		key := nodeKey(item.req, item.callerFuncSign)
		if g.Contracts[key] != nil {
			continue
		}

		children, ok := e.loadAndRecord(ctx, g, item, key)
		if !ok {
			continue
		}
		pending = append(pending, children...)
	}
	return nil
}

// buildParallel drains up to Parallelism already-enqueued independent
// entries concurrently per round; the dedup check-and-insert inside
// loadAndRecord is guarded by g's mutex so a key is still claimed exactly
// once.
func (e *Explorer) buildParallel(ctx context.Context, g *Graph, seeds []factstore.Request) error {
	var mu sync.Mutex
	pending := make([]workItem, len(seeds))
	for i, s := range seeds {
		pending[i] = workItem{req: s, callerFuncSign: s.CallerFuncSign}
	}

	for len(pending) > 0 {
		round := pending
		pending = nil

		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(e.Parallelism)

		var next []workItem
		for _, item := range round {
			item := item
			eg.Go(func() error {
				key := nodeKey(item.req, item.callerFuncSign)

				mu.Lock()
				if g.Contracts[key] != nil {
					mu.Unlock()
					return nil
				}
				mu.Unlock()

				children, ok := e.loadAndRecordLocked(egCtx, g, item, key, &mu)
				if !ok {
					return nil
				}
				mu.Lock()
				next = append(next, children...)
				mu.Unlock()
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
		pending = next
	}
	return nil
}

func nodeKey(req factstore.Request, callerFuncSign string) string {
	return addrutil.CompositeKey(req.Caller, req.CallSite, addrutil.Format(req.LogicAddr), req.FuncSign, callerFuncSign)
}

// loadAndRecord performs one unsynchronized load-and-record step for the
// sequential path.
func (e *Explorer) loadAndRecord(ctx context.Context, g *Graph, item workItem, key string) ([]workItem, bool) {
	return e.loadAndRecordLocked(ctx, g, item, key, nil)
}

func (e *Explorer) loadAndRecordLocked(ctx context.Context, g *Graph, item workItem, key string, mu *sync.Mutex) ([]workItem, bool) {
	contract, err := e.Loader.Load(ctx, item.req, item.callerFuncSign)
	if err != nil {
		if e.OnLoadError != nil {
			e.OnLoadError(item.req, err)
		}
		return nil, false
	}

	lock := func() {
		if mu != nil {
			mu.Lock()
		}
	}
	unlock := func() {
		if mu != nil {
			mu.Unlock()
		}
	}

	lock()
	if g.Contracts[key] != nil {
		unlock()
		return nil, false
	}
	g.Contracts[key] = contract
	g.VisitedContracts[contract.LogicAddr] = true
	g.VisitedFuncs[contract.FuncSign] = true
	if contract.Level > g.MaxLevel {
		g.MaxLevel = contract.Level
	}
	unlock()

	var children []workItem
	for _, ec := range contract.ExternalCalls {
		if ec.Unresolved() {
			continue
		}

		indent := ""
		for i := 0; i < contract.Level; i++ {
			indent += "  "
		}
		line := fmt.Sprintf("%s%s --[%s]--> %s (%s)", indent, contract.LogicAddr, ec.CallSite, ec.TargetLogicAddr, ec.TargetFuncSign)

		lock()
		g.CallPaths = append(g.CallPaths, line)
		unlock()

		childReq := factstore.Request{
			Platform:       g.Platform,
			LogicAddr:      ec.TargetLogicAddr,
			StorageAddr:    ec.TargetStorageAddr,
			FuncSign:       ec.TargetFuncSign,
			Caller:         ec.CallerAddr,
			CallSite:       ec.CallSite,
			CallerFuncSign: ec.CallerFuncSign,
			BlockNumber:    contract.BlockNumber,
			Level:          contract.Level + 1,
		}
		children = append(children, workItem{req: childReq, callerFuncSign: ec.CallerFuncSign})
	}
	return children, true
}

// ErrNoSeeds describes a root contract that exposes no candidate entry
// points. Nothing in this package returns it: Build with no seeds returns
// an empty graph.
var ErrNoSeeds = lydiaerr.New(lydiaerr.CallGraphConstruction, "no seed functions discovered")
