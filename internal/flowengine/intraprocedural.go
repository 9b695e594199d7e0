package flowengine

import (
	"strings"

	"github.com/shuo-young/lydia-go/internal/addrutil"
	"github.com/shuo-young/lydia-go/internal/factstore"
)

// Engine runs the flow analysis over one fully expanded call graph.
type Engine struct {
	ToolchainDir string
	Contracts    map[string]*factstore.Contract

	// VisitedContracts / VisitedFuncs are the address/selector sets the
	// call-graph explorer actually visited while expanding the graph;
	// an attacker-reenter candidate only counts if both its target
	// address and target selector were genuinely explored.
	VisitedContracts map[string]bool
	VisitedFuncs     map[string]bool
}

// NewEngine builds an Engine over the given contract-node map, keyed by
// composite key exactly as the call-graph explorer produced it.
func NewEngine(toolchainDir string, contracts map[string]*factstore.Contract, visitedContracts, visitedFuncs map[string]bool) *Engine {
	return &Engine{
		ToolchainDir:     toolchainDir,
		Contracts:        contracts,
		VisitedContracts: visitedContracts,
		VisitedFuncs:     visitedFuncs,
	}
}

func (e *Engine) visitedContract(addr string) bool { return e.VisitedContracts[addr] }
func (e *Engine) visitedFunc(sel string) bool       { return e.VisitedFuncs[sel] }

// externalCallSelectors is the union, across every level-0 contract node,
// of the selectors that node's own recovered external calls dispatch
// from — the root's outward-facing call surface used for the sensitive-
// selector overlap check.
func (e *Engine) externalCallSelectors() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range e.level0Contracts() {
		for sel := range c.FuncSignsWithExternalCalls {
			if !seen[sel] {
				seen[sel] = true
				out = append(out, sel)
			}
		}
	}
	return out
}

// level0Contracts returns every contract node with level == 0. Every
// intraprocedural check iterates *all* of these, not just the first one
// found.
func (e *Engine) level0Contracts() []*factstore.Contract {
	var out []*factstore.Contract
	for _, c := range e.Contracts {
		if c.Level == 0 {
			out = append(out, c)
		}
	}
	return out
}

// funcSignForIntraprocedural normalizes a level-0 node's own selector for
// matching against the Op_* relations: createbin nodes look up the
// function-selector sentinel instead of their nominal selector.
func funcSignForIntraprocedural(c *factstore.Contract) string {
	if c.Createbin {
		return addrutil.FunctionSelectorSentinel
	}
	return c.FuncSign
}

func (e *Engine) anyLevel0Matches(relation string, matchFuncSign func(row []string) string) bool {
	for _, c := range e.level0Contracts() {
		want := funcSignForIntraprocedural(c)
		rows, _ := factstore.ReadRelation(e.ToolchainDir, c.LogicAddr, relation, func(row []string) ([]string, bool) {
			return row, len(row) > 0
		})
		for _, row := range rows {
			if matchFuncSign(row) == want {
				return true
			}
		}
	}
	return false
}

func firstColumnMatch(row []string) string { return factstore.Col(row, 0) }

func (e *Engine) intraproceduralBadRandomness() bool {
	return e.anyLevel0Matches("SensitiveOpOfBadRandomnessAfterExternalCall", firstColumnMatch)
}

func (e *Engine) intraproceduralDoS() bool {
	return e.anyLevel0Matches("SensitiveOpOfDoSAfterExternalCall", firstColumnMatch)
}

func (e *Engine) taintedEnvCallArg() bool {
	return e.anyLevel0Matches("EnvVarFlowsToTaintedVar", firstColumnMatch)
}

func (e *Engine) opMultiCreate() bool {
	return e.anyLevel0Matches("Op_CreateInLoop", firstColumnMatch)
}

func (e *Engine) opSoleCreate() bool {
	return e.anyLevel0Matches("Op_SoleCreate", firstColumnMatch)
}

func (e *Engine) opSelfdestruct() bool {
	return e.anyLevel0Matches("Op_Selfdestruct", firstColumnMatch)
}

func (e *Engine) externalCallInHook() bool {
	return e.anyLevel0MatchesBySecondColumn("ExternalCallInHook")
}

func (e *Engine) externalCallInFallback() bool {
	return e.anyLevel0MatchesBySecondColumn("ExternalCallInFallback")
}

// anyLevel0MatchesBySecondColumn handles the (callStmt, funcSign) shape
// shared by the hook/fallback relations, where the selector is column 1.
func (e *Engine) anyLevel0MatchesBySecondColumn(relation string) bool {
	return e.anyLevel0Matches(relation, func(row []string) string { return factstore.Col(row, 1) })
}

func (e *Engine) presetReentrancyHeuristics() bool {
	for _, relation := range []string{"DoubleCallToSameContract", "DoubleCallToSameContract_ByStorage", "CallInStandardTransfer"} {
		if e.anyLevel0Matches(relation, firstColumnMatch) {
			return true
		}
	}
	return false
}

// IntraproceduralResult bundles the booleans every §4.3 intraprocedural
// check yields, computed once up front since both the gate-false path and
// the full reachability path need them.
type IntraproceduralResult struct {
	BadRandomness          bool
	DoS                    bool
	OpEnv                  bool
	OpMultiCreate          bool
	OpSoleCreate           bool
	OpSelfdestruct         bool
	ExternalCallInHook     bool
	ExternalCallInFallback bool
	PresetReentrancy       bool
}

func (e *Engine) runIntraprocedural() IntraproceduralResult {
	return IntraproceduralResult{
		BadRandomness:          e.intraproceduralBadRandomness(),
		DoS:                    e.intraproceduralDoS(),
		OpEnv:                  e.taintedEnvCallArg(),
		OpMultiCreate:          e.opMultiCreate(),
		OpSoleCreate:           e.opSoleCreate(),
		OpSelfdestruct:         e.opSelfdestruct(),
		ExternalCallInHook:     e.externalCallInHook(),
		ExternalCallInFallback: e.externalCallInFallback(),
		PresetReentrancy:       e.presetReentrancyHeuristics(),
	}
}

// anyLevelAboveZero reports whether at least one contract node has level > 0,
// the gate §4.3.1 checks before attempting cross-contract reachability.
func (e *Engine) anyLevelAboveZero() bool {
	for _, c := range e.Contracts {
		if c.Level > 0 {
			return true
		}
	}
	return false
}

// parseCompositeKey splits a contract-node composite key into its five
// fields: caller, callSite, addr, funcSign, callerFuncSign.
func parseCompositeKey(key string) (caller, callSite, addr, funcSign, callerFuncSign string, ok bool) {
	parts := strings.Split(key, "_")
	if len(parts) != 5 {
		return "", "", "", "", "", false
	}
	return parts[0], parts[1], parts[2], parts[3], parts[4], true
}
