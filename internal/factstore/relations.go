// Package factstore loads the per-contract fact relations the external
// decompiler emits and recovers ExternalCall edges from them. Each row
// type below mirrors one tab-separated relation file.
package factstore

// FunctionSelectorRow is one row of Leslie_FunctionSelector.csv: the
// dispatch map from internal function id to 4-byte selector.
type FunctionSelectorRow struct {
	Func     string
	FuncSign string
}

// ExternalCallInfoRow is one row of Leslie_ExternalCallInfo.csv: one
// external call site.
type ExternalCallInfoRow struct {
	Func      string
	CallStmt  string
	CallOp    string
	CalleeVar string
	NArg      string
	NRet      string
}

// ConstCalleeRow is a constant-target callee row.
type ConstCalleeRow struct {
	Func     string
	CallStmt string
	Callee   string
}

// StorageCalleeRow is a storage-resident callee row.
type StorageCalleeRow struct {
	Func     string
	CallStmt string
	Slot     string
	ByteLow  int
	ByteHigh int
}

// ProxyStorageCalleeRow is a proxy-storage callee row (bytes 0..19 of the
// slot word).
type ProxyStorageCalleeRow struct {
	Func     string
	CallStmt string
	Slot     string
}

// FuncArgCalleeRow is a callee resolved from a public function's argument.
type FuncArgCalleeRow struct {
	Func     string
	CallStmt string
	PubFunc  string
	ArgIndex int
}

// ConstFuncSignRow is a constant target-selector row.
type ConstFuncSignRow struct {
	Func     string
	CallStmt string
	FuncSign string
}

// ProxyFuncSignRow marks a call site whose selector passes through the
// caller's own selector.
type ProxyFuncSignRow struct {
	Func     string
	CallStmt string
}

// KnownArgRow is a recovered constant value for a call argument.
type KnownArgRow struct {
	Func     string
	CallStmt string
	ArgIndex int
	ArgVal   string
}

// FuncSignRow is the generic (funcSign, ...) shape shared by most of the
// intraprocedural relations below; Extra carries any trailing columns
// callers don't need to interpret.
type FuncSignRow struct {
	FuncSign string
	Extra    []string
}

// EnvVarFlowRow is one row of EnvVarFlowsToTaintedVar.csv.
type EnvVarFlowRow struct {
	FuncSign    string
	EnvVar      string
	TaintedVar  string
}

// CallsiteFuncSignRow is the (callStmt, funcSign) shape shared by
// ExternalCallInHook / ExternalCallInFallback.
type CallsiteFuncSignRow struct {
	CallStmt string
	FuncSign string
}

// TaintedCallArgRow is a source program-point seed.
type TaintedCallArgRow struct {
	FuncSign     string
	CallStmt     string
	CallArgIndex int
}

// FuncArgToSensitiveVarRow is a sink program-point seed.
type FuncArgToSensitiveVarRow struct {
	FuncSign     string
	CallStmt     string
	FuncArg      string
	Idx          int
	SensitiveVar string
	CallFuncSign string
}

// SpreadFuncArgToCallArgRow / SpreadFuncArgToCalleeVarRow map a function
// argument to a callsite argument or callee variable at another call
// site within the same function.
type SpreadFuncArgToCallArgRow struct {
	Addr         string
	FuncSign     string
	ArgIndex     int
	CallStmt     string
	CallArgIndex int
}

type SpreadFuncArgToCalleeVarRow struct {
	Addr     string
	FuncSign string
	ArgIndex int
	CallStmt string
}

// SpreadFuncArgToFuncRetRow maps a function argument to one of the
// function's own return indices.
type SpreadFuncArgToFuncRetRow struct {
	Addr     string
	FuncSign string
	ArgIndex int
	RetIndex int
}

// SpreadCallRetToFuncRetRow maps a call site's return value to one of the
// enclosing function's own return indices.
type SpreadCallRetToFuncRetRow struct {
	Addr     string
	FuncSign string
	CallStmt string
	RetIndex int
}

// SpreadCallRetToCallArgRow maps a call site's return value to another
// call site's argument, within the same function.
type SpreadCallRetToCallArgRow struct {
	Addr         string
	FuncSign     string
	CallStmt     string
	CallStmt2    string
	CallArgIndex int
}
