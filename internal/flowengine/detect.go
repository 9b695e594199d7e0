package flowengine

import "github.com/shuo-young/lydia-go/internal/factstore"

// getCallArgsFlowFromSources reads the tainted-call-argument source seeds
// for one (contract, funcSign) pair.
func (e *Engine) getCallArgsFlowFromSources(addr, funcSign string) []factstore.TaintedCallArgRow {
	rows, _ := factstore.ReadRelation(e.ToolchainDir, addr, "TaintedCallArg", parseTaintedCallArgRow)
	var out []factstore.TaintedCallArgRow
	for _, r := range rows {
		if r.FuncSign == funcSign {
			out = append(out, r)
		}
	}
	return out
}

// getProgramPointsNearSource builds one call_arg program point per
// tainted argument flowing out of a level-0 contract's own external
// calls; only level-0 nodes are ever treated as sources.
func (e *Engine) getProgramPointsNearSource() []ProgramPoint {
	var out []ProgramPoint
	for _, c := range e.level0Contracts() {
		for _, seed := range e.getCallArgsFlowFromSources(c.LogicAddr, c.FuncSign) {
			info, ok := getExternalCallInfo(seed.CallStmt, c.ExternalCalls)
			if !ok {
				continue
			}
			out = append(out, e.getNewProgramPoint(info.Caller, seed.CallStmt, info.TargetLogic, info.TargetFuncSign, seed.CallArgIndex, c.FuncSign, CallArg))
		}
	}
	return out
}

// getFuncArgsFlowToSink reads the sensitive-sink seeds for one
// (contract, funcSign) pair, alongside the bare selectors those sinks'
// recovered call signatures decode to.
func (e *Engine) getFuncArgsFlowToSink(addr, funcSign string) ([]factstore.FuncArgToSensitiveVarRow, []string) {
	rows, _ := factstore.ReadRelation(e.ToolchainDir, addr, "FuncArgToSensitiveVar", parseFuncArgToSensitiveVarRow)
	var matched []factstore.FuncArgToSensitiveVarRow
	var signs []string
	for _, r := range rows {
		if r.FuncSign != funcSign {
			continue
		}
		matched = append(matched, r)
		signs = append(signs, stripSensitiveCallFuncSignPadding(r.CallFuncSign))
	}
	return matched, signs
}

// getProgramPointsNearSink builds one call_arg program point per
// sensitive-sink seed across every contract node in the graph (every
// level, unlike sources, since a sink can sit arbitrarily deep). Sink
// seeds whose call site has no matching external-call edge are dropped
// rather than treated as fatal.
func (e *Engine) getProgramPointsNearSink() ([]ProgramPoint, []string) {
	var points []ProgramPoint
	var signs []string

	for key, c := range e.Contracts {
		_, _, addr, funcSign, _, ok := parseCompositeKey(key)
		if !ok {
			continue
		}

		seeds, seedSigns := e.getFuncArgsFlowToSink(addr, funcSign)
		for _, seed := range seeds {
			info, ok := getExternalCallInfo(seed.CallStmt, c.ExternalCalls)
			if !ok {
				continue
			}
			points = append(points, e.getNewProgramPoint(info.Caller, seed.CallStmt, info.TargetLogic, info.TargetFuncSign, seed.Idx, c.FuncSign, CallArg))
		}
		signs = append(signs, seedSigns...)
	}

	return points, signs
}

// isReachable performs a DFS over the transfer relation from first,
// bounded by the finite number of distinct program points the fact
// relations can produce, looking for second.
func (e *Engine) isReachable(first, second ProgramPoint) bool {
	if IsSame(first, second) {
		return true
	}
	visited := map[ProgramPoint]bool{}
	pending := []ProgramPoint{first}
	for len(pending) > 0 {
		cur := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, next := range e.transfer(cur) {
			if IsSame(next, second) {
				return true
			}
			if !visited[next] {
				pending = append(pending, next)
			}
		}
	}
	return false
}

// Result is the outcome of one full detection pass: the attack matrix,
// the intraprocedural findings, the set of selectors the attacker
// reaches back into, and the victim/attacker path evidence behind any
// reentrancy finding.
type Result struct {
	CrossContract bool
	Flagged       bool

	AttackMatrix AttackMatrix

	Intraprocedural IntraproceduralResult

	SensitiveCallSigns []string
	OverlapSelectors   []string

	VictimCallbackInfo  map[string][]ReachableSiteInfo
	AttackerReenterInfo map[string][]ReenterInfo
}

// AttackMatrix mirrors the three top-level attack categories the
// original verdict exposes.
type AttackMatrix struct {
	BadRandomness bool `json:"br"`
	DoS           bool `json:"dos"`
	Reentrancy    bool `json:"reentrancy"`
}

// Detect runs the full flow analysis: the intraprocedural checks always
// run and populate the attack matrix, then the cross-contract gate
// decides whether isAttack can ever be true — a graph with no level>0
// node returns with the matrix already filled in but Flagged false,
// skipping the interprocedural source-to-sink search and the preset
// reentrancy upgrade to Flagged.
func (e *Engine) Detect() Result {
	res := Result{}

	intra := e.runIntraprocedural()
	res.Intraprocedural = intra
	res.AttackMatrix.BadRandomness = intra.BadRandomness
	res.AttackMatrix.DoS = intra.DoS
	if intra.PresetReentrancy {
		res.AttackMatrix.Reentrancy = true
	}

	if !e.anyLevelAboveZero() {
		return res
	}
	res.CrossContract = true

	sources := e.getProgramPointsNearSource()
	sinks, sensitiveCallSigns := e.getProgramPointsNearSink()
	res.SensitiveCallSigns = sensitiveCallSigns

	reachable := false
	reachableSite := map[string]ReachableSiteInfo{}
	for _, src := range sources {
		for _, sink := range sinks {
			if IsSame(src, sink) || e.isReachable(src, sink) {
				reachable = true
				reachableSite[sink.TargetFuncSign] = ReachableSiteInfo{
					Caller:                 sink.CallerAddr,
					CallerCallbackFuncSign: sink.CallerFuncSign,
				}
			}
		}
	}

	victimCallback := map[string][]ReachableSiteInfo{}
	attackerReenter := map[string][]ReenterInfo{}

	if reachable {
		res.Flagged = true
		overlap := intersect(sensitiveCallSigns, e.externalCallSelectors())
		res.OverlapSelectors = overlap

		for _, sig := range overlap {
			if _, ok := victimCallback[sig]; !ok {
				victimCallback[sig] = nil
			}
			if _, ok := attackerReenter[sig]; !ok {
				attackerReenter[sig] = nil
			}

			if site, ok := reachableSite[sig]; ok {
				if !containsReachableSite(victimCallback[sig], site) {
					victimCallback[sig] = append(victimCallback[sig], site)
				}
			}

			for _, c := range e.Contracts {
				if c.FuncSign != sig || c.Level != 0 {
					continue
				}
				for _, ec := range c.ExternalCalls {
					reenter := ReenterInfo{TargetAddr: ec.TargetLogicAddr, TargetFuncSign: ec.TargetFuncSign}
					if containsReenterInfo(attackerReenter[sig], reenter) {
						continue
					}
					if e.visitedContract(reenter.TargetAddr) && e.visitedFunc(reenter.TargetFuncSign) {
						attackerReenter[sig] = append(attackerReenter[sig], reenter)
					}
				}
				res.Flagged = true
				res.AttackMatrix.Reentrancy = true
			}
		}
	}

	if intra.PresetReentrancy {
		res.Flagged = true
	}

	res.VictimCallbackInfo = victimCallback
	res.AttackerReenterInfo = attackerReenter
	return res
}

func containsReachableSite(list []ReachableSiteInfo, site ReachableSiteInfo) bool {
	for _, s := range list {
		if s == site {
			return true
		}
	}
	return false
}

func containsReenterInfo(list []ReenterInfo, r ReenterInfo) bool {
	for _, s := range list {
		if s == r {
			return true
		}
	}
	return false
}

func intersect(a, b []string) []string {
	bset := map[string]bool{}
	for _, x := range b {
		bset[x] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, x := range a {
		if bset[x] && !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}
