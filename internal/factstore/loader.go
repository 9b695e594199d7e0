package factstore

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"github.com/shuo-young/lydia-go/internal/addrutil"
	"github.com/shuo-young/lydia-go/internal/decompiler"
	"github.com/shuo-young/lydia-go/internal/lydiaerr"
	"github.com/shuo-young/lydia-go/internal/rpcadapter"
)

// ExternalCall is one recovered call site, fully resolved (or left empty
// where resolution failed).
type ExternalCall struct {
	TargetLogicAddr   string
	TargetStorageAddr string
	TargetFuncSign    string
	CallSite          string
	CallerAddr        string
	CallerFuncSign    string
}

// Unresolved reports whether any of the three fields the call-graph
// explorer needs to expand an edge are empty.
func (ec ExternalCall) Unresolved() bool {
	return ec.TargetLogicAddr == "" || ec.TargetStorageAddr == "" || ec.TargetFuncSign == ""
}

// Request is one worklist entry: everything needed to load a contract
// node, independent of how it was reached.
type Request struct {
	Platform       string
	LogicAddr      string
	StorageAddr    string
	FuncSign       string
	Caller         string
	CallSite       string
	CallerFuncSign string
	BlockNumber    uint64
	Level          int
}

// Contract is one loaded contract node: the fully ingested fact base for
// one (address, function) analysis request.
type Contract struct {
	Platform    string
	LogicAddr   string
	StorageAddr string
	FuncSign    string
	BlockNumber uint64
	Caller      string
	CallSite    string
	Level       int
	Origin      bool
	Createbin   bool

	// FuncSignByID maps internal function id to its 4-byte selector.
	FuncSignByID map[string]string
	// FuncSignList holds the selector of every function the decompiler
	// dispatched on (corrected to hold selectors, not function ids).
	FuncSignList []string
	// Func is the internal function id resolved for FuncSign in
	// non-origin mode.
	Func string

	ExternalCalls              []ExternalCall
	FuncSignsWithExternalCalls map[string]bool
	CallArgVals                map[int]string
	StorageSlotCache           map[string]string

	// callerFuncSign is the selector of the function that issued the call
	// reaching this node; part of this node's composite key.
	callerFuncSign string
}

func newContract(req Request) *Contract {
	return &Contract{
		Platform:                   req.Platform,
		LogicAddr:                  addrutil.Format(req.LogicAddr),
		StorageAddr:                addrutil.Format(req.StorageAddr),
		FuncSign:                   req.FuncSign,
		Origin:                     req.FuncSign == "",
		BlockNumber:                req.BlockNumber,
		Caller:                     req.Caller,
		CallSite:                   req.CallSite,
		Level:                      req.Level,
		FuncSignByID:               make(map[string]string),
		FuncSignsWithExternalCalls: make(map[string]bool),
		CallArgVals:                make(map[int]string),
		StorageSlotCache:           make(map[string]string),
	}
}

// CompositeKey is this node's identity in the call graph:
// caller_callsite_addr_funcSign_callerFuncSign.
func (c *Contract) CompositeKey() string {
	return addrutil.CompositeKey(c.Caller, c.CallSite, c.LogicAddr, c.FuncSign, c.CallerFuncSignOf())
}

// CallerFuncSignOf returns the selector of the function that issued the
// call reaching this node; stored separately from FuncSign so the
// composite key can be rebuilt without a request round trip.
func (c *Contract) CallerFuncSignOf() string {
	return c.callerFuncSign
}

// Loader acquires bytecode, drives the decompiler, and recovers external
// calls for one contract request at a time.
type Loader struct {
	ToolchainDir string
	ContractsDir string // relative to ToolchainDir
	RPC          *rpcadapter.Client
	Decompiler   *decompiler.Driver

	decompiledAddrs map[string]bool
}

// NewLoader builds a Loader rooted at toolchainDir, matching the
// filesystem layout ./gigahorse-toolchain/contracts and
// ./gigahorse-toolchain/.temp.
func NewLoader(toolchainDir string, rpc *rpcadapter.Client, drv *decompiler.Driver) *Loader {
	return &Loader{
		ToolchainDir:    toolchainDir,
		ContractsDir:    "contracts/",
		RPC:             rpc,
		Decompiler:      drv,
		decompiledAddrs: make(map[string]bool),
	}
}

func (l *Loader) contractHexPath(addr string) string {
	return l.ToolchainDir + "/" + l.ContractsDir + addr + ".hex"
}

func (l *Loader) createbinHexPath(addr string) string {
	return l.ToolchainDir + "/" + l.ContractsDir + "createbin/" + addr + "_createbin.hex"
}

// Load runs the full per-request pipeline: acquire bytecode, decompile
// once per address, ingest facts, recover external calls.
func (l *Loader) Load(ctx context.Context, req Request, callerFuncSign string) (*Contract, error) {
	c := newContract(req)
	c.callerFuncSign = callerFuncSign

	if err := l.acquireBytecode(ctx, c); err != nil {
		return nil, err
	}

	if _, err := os.Stat(l.contractHexPath(c.LogicAddr)); err != nil {
		// No bytecode recovered; nothing further to analyze for this node.
		return c, nil
	}

	if err := l.decompileOnce(ctx, c.LogicAddr); err != nil {
		return nil, err
	}

	l.loadFunctionSelectors(c)
	l.loadCallArgVals(c)

	constCallee, storageCallee, proxyStorageCallee, funcArgCallee, constFuncSign, proxyFuncSign := l.loadCalleeInfo(c.LogicAddr)

	if c.Origin {
		for funcID, sign := range c.FuncSignByID {
			calls, err := l.recoverExternalCalls(ctx, c, funcID, sign,
				constCallee, storageCallee, proxyStorageCallee, funcArgCallee, constFuncSign, proxyFuncSign)
			if err != nil {
				return nil, err
			}
			if len(calls) > 0 {
				c.FuncSignsWithExternalCalls[sign] = true
			}
			c.ExternalCalls = append(c.ExternalCalls, calls...)
		}
	} else {
		calls, err := l.recoverExternalCalls(ctx, c, c.Func, c.FuncSign,
			constCallee, storageCallee, proxyStorageCallee, funcArgCallee, constFuncSign, proxyFuncSign)
		if err != nil {
			return nil, err
		}
		if len(calls) > 0 {
			c.FuncSignsWithExternalCalls[c.FuncSign] = true
		}
		c.ExternalCalls = append(c.ExternalCalls, calls...)
	}

	if !c.Createbin {
		delete(c.FuncSignsWithExternalCalls, addrutil.FunctionSelectorSentinel)
	}

	return c, nil
}

func (l *Loader) acquireBytecode(ctx context.Context, c *Contract) error {
	hexPath := l.contractHexPath(c.LogicAddr)

	content, err := os.ReadFile(hexPath)
	if err == nil {
		if strings.TrimSpace(string(content)) == "0x" {
			createbinContent, err := os.ReadFile(l.createbinHexPath(c.LogicAddr))
			if err != nil {
				return nil
			}
			stripped := strings.TrimPrefix(strings.TrimSpace(string(createbinContent)), "0x")
			if err := os.WriteFile(hexPath, []byte(stripped), 0o644); err != nil {
				return lydiaerr.Wrap(lydiaerr.Io, err, "writing createbin hex for %s", c.LogicAddr)
			}
			c.Createbin = true
			c.FuncSign = addrutil.FunctionSelectorSentinel
			c.FuncSignList = []string{addrutil.FunctionSelectorSentinel}
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return lydiaerr.Wrap(lydiaerr.Io, err, "reading cached bytecode for %s", c.LogicAddr)
	}

	code, err := l.RPC.GetCode(ctx, c.LogicAddr, blockTag(c.BlockNumber))
	if err != nil {
		return err
	}
	if len(code) == 0 {
		return nil
	}
	hexStr := strings.TrimPrefix(hexEncode(code), "0x")
	if err := os.WriteFile(hexPath, []byte(hexStr), 0o644); err != nil {
		return lydiaerr.Wrap(lydiaerr.Io, err, "persisting bytecode for %s", c.LogicAddr)
	}
	return nil
}

func (l *Loader) decompileOnce(ctx context.Context, addr string) error {
	if l.decompiledAddrs[addr] {
		return nil
	}
	l.decompiledAddrs[addr] = true
	return l.Decompiler.Run(ctx, addr)
}

func (l *Loader) loadFunctionSelectors(c *Contract) {
	rows, _ := readRelation(relationPath(l.ToolchainDir, c.LogicAddr, "FunctionSelector"), func(row []string) (FunctionSelectorRow, bool) {
		if len(row) != 2 {
			return FunctionSelectorRow{}, false
		}
		return FunctionSelectorRow{Func: col(row, 0), FuncSign: col(row, 1)}, true
	})

	for _, r := range rows {
		// Corrected per design note: the list holds selectors, not
		// function ids, since callers key on selectors.
		c.FuncSignList = append(c.FuncSignList, r.FuncSign)
		c.FuncSignByID[r.Func] = r.FuncSign
	}

	if !c.Origin {
		for id, sign := range c.FuncSignByID {
			if sign == c.FuncSign {
				c.Func = id
				break
			}
		}
		if c.Func == "" {
			for id, sign := range c.FuncSignByID {
				if sign == "0x00000000" {
					c.Func = id
					break
				}
			}
		}
	}
}

func (l *Loader) loadCallArgVals(c *Contract) {
	if c.Caller == "" {
		return
	}
	rows, _ := readRelation(relationPath(l.ToolchainDir, c.LogicAddr, "ExternalCall_Known_Arg"), func(row []string) (KnownArgRow, bool) {
		if len(row) < 4 {
			return KnownArgRow{}, false
		}
		return KnownArgRow{
			Func:     col(row, 0),
			CallStmt: col(row, 1),
			ArgIndex: colInt(row, 2),
			ArgVal:   col(row, 3),
		}, true
	})
	for _, r := range rows {
		if r.CallStmt != c.CallSite {
			continue
		}
		// Simplified per design note: always treat the recovered value
		// as a string; address-shaped values must not be truncated by an
		// int/float parse.
		c.CallArgVals[r.ArgIndex] = r.ArgVal
	}
}

func (l *Loader) loadCalleeInfo(addr string) (
	constCallee []ConstCalleeRow,
	storageCallee []StorageCalleeRow,
	proxyStorageCallee []ProxyStorageCalleeRow,
	funcArgCallee []FuncArgCalleeRow,
	constFuncSign []ConstFuncSignRow,
	proxyFuncSign []ProxyFuncSignRow,
) {
	constCallee, _ = readRelation(relationPath(l.ToolchainDir, addr, "ExternalCall_Callee_ConstType"), func(row []string) (ConstCalleeRow, bool) {
		if len(row) < 4 {
			return ConstCalleeRow{}, false
		}
		return ConstCalleeRow{Func: col(row, 0), CallStmt: col(row, 1), Callee: col(row, 3)}, true
	})
	storageCallee, _ = readRelation(relationPath(l.ToolchainDir, addr, "ExternalCall_Callee_StorageType"), func(row []string) (StorageCalleeRow, bool) {
		if len(row) < 5 {
			return StorageCalleeRow{}, false
		}
		return StorageCalleeRow{Func: col(row, 0), CallStmt: col(row, 1), Slot: col(row, 2), ByteLow: colInt(row, 3), ByteHigh: colInt(row, 4)}, true
	})
	proxyStorageCallee, _ = readRelation(relationPath(l.ToolchainDir, addr, "ExternalCall_Callee_StorageType_ForProxy"), func(row []string) (ProxyStorageCalleeRow, bool) {
		if len(row) < 3 {
			return ProxyStorageCalleeRow{}, false
		}
		return ProxyStorageCalleeRow{Func: col(row, 0), CallStmt: col(row, 1), Slot: col(row, 2)}, true
	})
	funcArgCallee, _ = readRelation(relationPath(l.ToolchainDir, addr, "ExternalCall_Callee_FuncArgType"), func(row []string) (FuncArgCalleeRow, bool) {
		if len(row) < 4 {
			return FuncArgCalleeRow{}, false
		}
		return FuncArgCalleeRow{Func: col(row, 0), CallStmt: col(row, 1), PubFunc: col(row, 2), ArgIndex: colInt(row, 3)}, true
	})
	constFuncSign, _ = readRelation(relationPath(l.ToolchainDir, addr, "ExternalCall_FuncSign_ConstType"), func(row []string) (ConstFuncSignRow, bool) {
		if len(row) < 3 {
			return ConstFuncSignRow{}, false
		}
		return ConstFuncSignRow{Func: col(row, 0), CallStmt: col(row, 1), FuncSign: col(row, 2)}, true
	})
	proxyFuncSign, _ = readRelation(relationPath(l.ToolchainDir, addr, "ExternalCall_FuncSign_ProxyType"), func(row []string) (ProxyFuncSignRow, bool) {
		if len(row) < 2 {
			return ProxyFuncSignRow{}, false
		}
		return ProxyFuncSignRow{Func: col(row, 0), CallStmt: col(row, 1)}, true
	})
	return
}

func (l *Loader) recoverExternalCalls(
	ctx context.Context,
	c *Contract,
	funcID, funcSign string,
	constCallee []ConstCalleeRow,
	storageCallee []StorageCalleeRow,
	proxyStorageCallee []ProxyStorageCalleeRow,
	funcArgCallee []FuncArgCalleeRow,
	constFuncSign []ConstFuncSignRow,
	proxyFuncSign []ProxyFuncSignRow,
) ([]ExternalCall, error) {
	infoRows, _ := readRelation(relationPath(l.ToolchainDir, c.LogicAddr, "ExternalCallInfo"), func(row []string) (ExternalCallInfoRow, bool) {
		if len(row) != 6 || col(row, 0) != funcID {
			return ExternalCallInfoRow{}, false
		}
		return ExternalCallInfoRow{
			Func: col(row, 0), CallStmt: col(row, 1), CallOp: col(row, 2),
			CalleeVar: col(row, 3), NArg: col(row, 4), NRet: col(row, 5),
		}, true
	})

	var calls []ExternalCall
	for _, info := range infoRows {
		ec := ExternalCall{}

		if row, ok := findByCallStmt(constCallee, info.CallStmt, func(r ConstCalleeRow) string { return r.CallStmt }); ok {
			ec.TargetLogicAddr = addrutil.StripConstantPadding(row.Callee)
		}

		if row, ok := findByCallStmt(storageCallee, info.CallStmt, func(r StorageCalleeRow) string { return r.CallStmt }); ok {
			addr, err := l.resolveStorageCallee(ctx, c.StorageAddr, row.Slot, row.ByteLow, row.ByteHigh, c)
			if err != nil {
				return nil, err
			}
			ec.TargetLogicAddr = addr
		}

		if row, ok := findByCallStmt(proxyStorageCallee, info.CallStmt, func(r ProxyStorageCalleeRow) string { return r.CallStmt }); ok {
			addr, err := l.resolveStorageCallee(ctx, c.StorageAddr, row.Slot, 0, 19, c)
			if err != nil {
				return nil, err
			}
			ec.TargetLogicAddr = addr
		}

		if row, ok := findByCallStmt(funcArgCallee, info.CallStmt, func(r FuncArgCalleeRow) string { return r.CallStmt }); ok {
			if row.Func == row.PubFunc {
				if v, ok := c.CallArgVals[row.ArgIndex]; ok {
					ec.TargetLogicAddr = v
				}
			}
		}

		if info.CallOp == "DELEGATECALL" {
			ec.TargetStorageAddr = c.LogicAddr
			ec.CallerAddr = c.Caller
			ec.CallSite = c.CallSite
		} else {
			ec.TargetStorageAddr = ec.TargetLogicAddr
			ec.CallerAddr = c.LogicAddr
			ec.CallSite = info.CallStmt
		}
		ec.CallerFuncSign = funcSign

		if row, ok := findByCallStmt(constFuncSign, info.CallStmt, func(r ConstFuncSignRow) string { return r.CallStmt }); ok {
			sel := row.FuncSign
			if len(sel) > 10 {
				sel = sel[:10]
			}
			ec.TargetFuncSign = sel
		}
		if _, ok := findByCallStmt(proxyFuncSign, info.CallStmt, func(r ProxyFuncSignRow) string { return r.CallStmt }); ok {
			ec.TargetFuncSign = funcSign
		}

		calls = append(calls, ec)
	}
	return calls, nil
}

func (l *Loader) resolveStorageCallee(ctx context.Context, storageAddr, slotStr string, byteLow, byteHigh int, c *Contract) (string, error) {
	cacheKey := slotStr + "_" + strconv.Itoa(byteLow) + "_" + strconv.Itoa(byteHigh)
	if v, ok := c.StorageSlotCache[cacheKey]; ok {
		return v, nil
	}

	slot, ok := new(uint256.Int).SetString(slotStr)
	if !ok {
		slot = uint256.NewInt(0)
	}
	word, err := l.RPC.GetStorageWord(ctx, storageAddr, slot, blockTag(c.BlockNumber))
	if err != nil {
		return "", err
	}
	addr := rpcadapter.ExtractStorageRange(word, byteLow, byteHigh)
	c.StorageSlotCache[cacheKey] = addr
	return addr, nil
}

func findByCallStmt[T any](rows []T, callStmt string, key func(T) string) (T, bool) {
	for _, r := range rows {
		if key(r) == callStmt {
			return r, true
		}
	}
	var zero T
	return zero, false
}

func blockTag(blockNumber uint64) string {
	if blockNumber == 0 {
		return "latest"
	}
	return "0x" + strconv.FormatUint(blockNumber, 16)
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2+2)
	out[0], out[1] = '0', 'x'
	for i, v := range b {
		out[2+i*2] = hextable[v>>4]
		out[2+i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}
