package flowengine

import (
	"strings"

	"github.com/shuo-young/lydia-go/internal/factstore"
)

// sensitiveCallFuncSignZeroRun is the trailing run of zero hex digits a
// sink's recovered call signature pads with; it gets stripped to recover
// the bare selector for overlap comparison against the root's own
// external-call selectors.
const sensitiveCallFuncSignZeroRun = "00000000000000000000000000000000000000000000000000000000"

// callArg is a (call site, argument index) pair produced by the various
// spread_* relations below.
type callArg struct {
	CallStmt     string
	CallArgIndex int
}

func (e *Engine) spreadCallRetFuncRet(addr, callStmt, funcSign string, retIndex int) []int {
	rows, _ := factstore.ReadRelation(e.ToolchainDir, addr, "Spread_CallRetToFuncRet", parseSpreadCallRetToFuncRetRow)
	var out []int
	for _, r := range rows {
		if r.FuncSign == funcSign && r.CallStmt == callStmt && r.RetIndex == retIndex {
			out = append(out, r.RetIndex)
		}
	}
	return out
}

func (e *Engine) spreadCallRetCallArg(addr, callStmt string, retIndex int) []callArg {
	rows, _ := factstore.ReadRelation(e.ToolchainDir, addr, "Spread_CallRetToCallArg", parseSpreadCallRetToCallArgRow)
	var out []callArg
	for _, r := range rows {
		if r.CallStmt == callStmt && r.RetIndex == retIndex {
			out = append(out, callArg{CallStmt: r.CallStmt2, CallArgIndex: r.CallArgIndex})
		}
	}
	return out
}

func (e *Engine) spreadFuncArgCallArg(addr, funcSign string, argIndex int) []callArg {
	rows, _ := factstore.ReadRelation(e.ToolchainDir, addr, "Spread_FuncArgToCallArg", parseSpreadFuncArgToCallArgRow)
	var out []callArg
	for _, r := range rows {
		if r.FuncSign == funcSign && r.ArgIndex == argIndex {
			out = append(out, callArg{CallStmt: r.CallStmt, CallArgIndex: r.CallArgIndex})
		}
	}
	return out
}

func (e *Engine) spreadFuncArgCallee(addr, funcSign string, argIndex int) []callArg {
	rows, _ := factstore.ReadRelation(e.ToolchainDir, addr, "Spread_FuncArgToCalleeVar", parseSpreadFuncArgToCalleeVarRow)
	var out []callArg
	for _, r := range rows {
		if r.FuncSign == funcSign && r.ArgIndex == argIndex {
			// The output call-arg index is the input func-arg index itself,
			// not any field on the matched row.
			out = append(out, callArg{CallStmt: r.CallStmt, CallArgIndex: argIndex})
		}
	}
	return out
}

// spreadFuncArgFuncRet reads Spread_FuncArgToFuncRet.csv, not the
// Spread_CallRetToFuncRet.csv file a stale lookup in the original would
// read for this case.
func (e *Engine) spreadFuncArgFuncRet(addr, funcSign string, argIndex int) []int {
	rows, _ := factstore.ReadRelation(e.ToolchainDir, addr, "Spread_FuncArgToFuncRet", parseSpreadFuncArgToFuncRetRow)
	var out []int
	for _, r := range rows {
		if r.FuncSign == funcSign && r.ArgIndex == argIndex {
			out = append(out, r.RetIndex)
		}
	}
	return out
}

func parseSpreadCallRetToFuncRetRow(row []string) (factstore.SpreadCallRetToFuncRetRow, bool) {
	if len(row) < 4 {
		return factstore.SpreadCallRetToFuncRetRow{}, false
	}
	return factstore.SpreadCallRetToFuncRetRow{
		Addr:     factstore.Col(row, 0),
		FuncSign: factstore.Col(row, 1),
		CallStmt: factstore.Col(row, 2),
		RetIndex: factstore.ColInt(row, 3),
	}, true
}

func parseSpreadCallRetToCallArgRow(row []string) (factstore.SpreadCallRetToCallArgRow, bool) {
	if len(row) < 5 {
		return factstore.SpreadCallRetToCallArgRow{}, false
	}
	return factstore.SpreadCallRetToCallArgRow{
		Addr:         factstore.Col(row, 0),
		FuncSign:     factstore.Col(row, 1),
		CallStmt:     factstore.Col(row, 2),
		CallStmt2:    factstore.Col(row, 3),
		CallArgIndex: factstore.ColInt(row, 4),
	}, true
}

func parseSpreadFuncArgToCallArgRow(row []string) (factstore.SpreadFuncArgToCallArgRow, bool) {
	if len(row) < 5 {
		return factstore.SpreadFuncArgToCallArgRow{}, false
	}
	return factstore.SpreadFuncArgToCallArgRow{
		Addr:         factstore.Col(row, 0),
		FuncSign:     factstore.Col(row, 1),
		ArgIndex:     factstore.ColInt(row, 2),
		CallStmt:     factstore.Col(row, 3),
		CallArgIndex: factstore.ColInt(row, 4),
	}, true
}

func parseSpreadFuncArgToCalleeVarRow(row []string) (factstore.SpreadFuncArgToCalleeVarRow, bool) {
	if len(row) < 4 {
		return factstore.SpreadFuncArgToCalleeVarRow{}, false
	}
	return factstore.SpreadFuncArgToCalleeVarRow{
		Addr:     factstore.Col(row, 0),
		FuncSign: factstore.Col(row, 1),
		ArgIndex: factstore.ColInt(row, 2),
		CallStmt: factstore.Col(row, 3),
	}, true
}

func parseSpreadFuncArgToFuncRetRow(row []string) (factstore.SpreadFuncArgToFuncRetRow, bool) {
	if len(row) < 4 {
		return factstore.SpreadFuncArgToFuncRetRow{}, false
	}
	return factstore.SpreadFuncArgToFuncRetRow{
		Addr:     factstore.Col(row, 0),
		FuncSign: factstore.Col(row, 1),
		ArgIndex: factstore.ColInt(row, 2),
		RetIndex: factstore.ColInt(row, 3),
	}, true
}

func parseTaintedCallArgRow(row []string) (factstore.TaintedCallArgRow, bool) {
	if len(row) < 3 {
		return factstore.TaintedCallArgRow{}, false
	}
	return factstore.TaintedCallArgRow{
		FuncSign:     factstore.Col(row, 0),
		CallStmt:     factstore.Col(row, 1),
		CallArgIndex: factstore.ColInt(row, 2),
	}, true
}

func parseFuncArgToSensitiveVarRow(row []string) (factstore.FuncArgToSensitiveVarRow, bool) {
	if len(row) < 6 {
		return factstore.FuncArgToSensitiveVarRow{}, false
	}
	return factstore.FuncArgToSensitiveVarRow{
		FuncSign:     factstore.Col(row, 0),
		CallStmt:     factstore.Col(row, 1),
		FuncArg:      factstore.Col(row, 2),
		Idx:          factstore.ColInt(row, 3),
		SensitiveVar: factstore.Col(row, 4),
		CallFuncSign: factstore.Col(row, 5),
	}, true
}

// findExecutedProgramPoint resolves which concrete contract address is
// the one actually reached for (caller, callSite, funcSign), by scanning
// every contract-node composite key in the graph and keeping the deepest
// (highest-level) match. The contract address the caller already had in
// hand plays no part in the filter: only the caller/call-site/funcSign
// triple does, since the graph may have expanded the same call site into
// several nested levels and the deepest one is the one that executed.
func (e *Engine) findExecutedProgramPoint(caller, callSite, funcSign string) string {
	addr := ""
	level := -1
	for key, c := range e.Contracts {
		ca, cs, a, fs, _, ok := parseCompositeKey(key)
		if !ok || ca != caller || cs != callSite || fs != funcSign {
			continue
		}
		if addr == "" || c.Level > level {
			addr = a
			level = c.Level
		}
	}
	return addr
}

// getNewProgramPoint builds a program point whose target address is
// re-resolved via findExecutedProgramPoint rather than trusting the
// targetContractAddr the caller passed in.
func (e *Engine) getNewProgramPoint(caller, callSite, targetContractAddr, targetFuncSign string, index int, callerFuncSign string, kind Kind) ProgramPoint {
	_ = targetContractAddr
	addr := e.findExecutedProgramPoint(caller, callSite, targetFuncSign)
	return ProgramPoint{
		CallerAddr:         caller,
		CallSite:           callSite,
		CallerFuncSign:     callerFuncSign,
		TargetContractAddr: addr,
		TargetFuncSign:     targetFuncSign,
		Index:              index,
		PointKind:          kind,
	}
}

type externalCallInfo struct {
	Caller         string
	TargetLogic    string
	TargetFuncSign string
}

func getExternalCallInfo(callSite string, externalCalls []factstore.ExternalCall) (externalCallInfo, bool) {
	for _, ec := range externalCalls {
		if ec.CallSite == callSite {
			return externalCallInfo{Caller: ec.CallerAddr, TargetLogic: ec.TargetLogicAddr, TargetFuncSign: ec.TargetFuncSign}, true
		}
	}
	return externalCallInfo{}, false
}

// findParent returns the contract node whose external-call table holds an
// edge matching (logicAddr, funcSign, caller, callSite) — the contract
// that made the call this program point sits inside the callee of.
func (e *Engine) findParent(logicAddr, funcSign, caller, callSite string) (*factstore.Contract, bool) {
	for _, c := range e.Contracts {
		for _, ec := range c.ExternalCalls {
			if ec.TargetLogicAddr == logicAddr && ec.TargetFuncSign == funcSign && ec.CallerAddr == caller && ec.CallSite == callSite {
				return c, true
			}
		}
	}
	return nil, false
}

// findContract looks up the contract node exactly matching the
// composite key built from the five supplied fields.
func (e *Engine) findContract(caller, callSite, contractAddr, funcSign, callerFuncSign string) (*factstore.Contract, bool) {
	key := strings.Join([]string{caller, callSite, contractAddr, funcSign, callerFuncSign}, "_")
	c, ok := e.Contracts[key]
	return c, ok
}

// transfer computes the program points directly reachable from p by
// following the func_ret / call_arg spread relations one hop.
func (e *Engine) transfer(p ProgramPoint) []ProgramPoint {
	var next []ProgramPoint

	parent, hasParent := e.findParent(p.TargetContractAddr, p.TargetFuncSign, p.CallerAddr, p.CallSite)
	child, ok := e.findContract(p.CallerAddr, p.CallSite, p.TargetContractAddr, p.TargetFuncSign, p.CallerFuncSign)
	if !ok {
		return next
	}

	switch p.PointKind {
	case FuncRet:
		if hasParent {
			indexes := e.spreadCallRetFuncRet(p.CallerAddr, p.CallSite, parent.FuncSign, p.Index)
			for _, idx := range indexes {
				next = append(next, e.getNewProgramPoint(parent.Caller, parent.CallSite, parent.LogicAddr, parent.FuncSign, idx, p.CallerFuncSign, FuncRet))
			}
		}
		callArgs := e.spreadCallRetCallArg(p.TargetContractAddr, p.CallSite, p.Index)
		for _, ca := range callArgs {
			info, ok := getExternalCallInfo(ca.CallStmt, child.ExternalCalls)
			if !ok {
				continue
			}
			// pp[target_func_sign] is the function called back into the
			// attacker contract; pp[caller_func_sign] is the function that
			// calls back into this one.
			next = append(next, e.getNewProgramPoint(info.Caller, ca.CallStmt, info.TargetLogic, info.TargetFuncSign, ca.CallArgIndex, p.TargetFuncSign, CallArg))
		}
	case CallArg:
		var callArgs []callArg
		callArgs = append(callArgs, e.spreadFuncArgCallArg(p.TargetContractAddr, p.TargetFuncSign, p.Index)...)
		callArgs = append(callArgs, e.spreadFuncArgCallee(p.TargetContractAddr, p.TargetFuncSign, p.Index)...)

		for _, ca := range callArgs {
			if info, ok := getExternalCallInfo(ca.CallStmt, child.ExternalCalls); ok {
				next = append(next, e.getNewProgramPoint(p.TargetContractAddr, ca.CallStmt, info.TargetLogic, info.TargetFuncSign, ca.CallArgIndex, p.TargetFuncSign, CallArg))
			}
		}

		indexes := e.spreadFuncArgFuncRet(p.TargetContractAddr, p.TargetFuncSign, p.Index)
		for _, idx := range indexes {
			next = append(next, e.getNewProgramPoint(p.CallerAddr, p.CallSite, p.TargetContractAddr, p.TargetFuncSign, idx, p.CallerFuncSign, FuncRet))
		}
	}

	return next
}

// stripSensitiveCallFuncSignPadding recovers the bare selector from a
// sink's recovered call signature by dropping its trailing zero-run.
func stripSensitiveCallFuncSignPadding(callFuncSign string) string {
	return strings.ReplaceAll(callFuncSign, sensitiveCallFuncSignZeroRun, "")
}
