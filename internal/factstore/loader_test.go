package factstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeRelation(t *testing.T, dir, addr, relation, content string) {
	t.Helper()
	outDir := filepath.Join(dir, ".temp", addr, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(outDir, "Leslie_"+relation+".csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestFunctionSelectorListHoldsSelectorsNotIds(t *testing.T) {
	dir := t.TempDir()
	addr := "0x000000000000000000000000000000000000aaaa"
	writeRelation(t, dir, addr, "FunctionSelector", "1\t0xabcdef01\n2\t0x12345678\n")

	l := &Loader{ToolchainDir: dir}
	c := newContract(Request{LogicAddr: addr})
	l.loadFunctionSelectors(c)

	want := map[string]bool{"0xabcdef01": true, "0x12345678": true}
	if len(c.FuncSignList) != 2 {
		t.Fatalf("expected 2 entries, got %v", c.FuncSignList)
	}
	for _, s := range c.FuncSignList {
		if !want[s] {
			t.Fatalf("FuncSignList contained a non-selector entry: %s (expected selectors, not function ids)", s)
		}
	}
}

func TestRecoverExternalCallsConstantTarget(t *testing.T) {
	dir := t.TempDir()
	addr := "0x000000000000000000000000000000000000aaaa"
	writeRelation(t, dir, addr, "ExternalCallInfo", "1\tS1\tCALL\tv\t1\t1\n")
	writeRelation(t, dir, addr, "ExternalCall_Callee_ConstType", "1\tS1\tx\t000000000000000000000000bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb\n")
	writeRelation(t, dir, addr, "ExternalCall_FuncSign_ConstType", "1\tS1\t0xabcdef0100000000000000000000000000000000000000000000000000000\n")

	l := &Loader{ToolchainDir: dir}
	c := newContract(Request{LogicAddr: addr, Caller: "msg.sender"})
	constCallee, storageCallee, proxyStorageCallee, funcArgCallee, constFuncSign, proxyFuncSign := l.loadCalleeInfo(addr)

	calls, err := l.recoverExternalCalls(context.Background(), c, "1", "0xabcdef01",
		constCallee, storageCallee, proxyStorageCallee, funcArgCallee, constFuncSign, proxyFuncSign)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 external call, got %d", len(calls))
	}
	ec := calls[0]
	if ec.TargetFuncSign != "0xabcdef01" {
		t.Fatalf("expected truncated 10-char selector, got %s", ec.TargetFuncSign)
	}
	if ec.CallerAddr != c.LogicAddr {
		t.Fatalf("normal CALL should set callerAddr to the enclosing logic addr, got %s", ec.CallerAddr)
	}
	if ec.CallSite != "S1" {
		t.Fatalf("normal CALL should use the call site's own statement, got %s", ec.CallSite)
	}
}

func TestRecoverExternalCallsDelegatecallInheritsStorageContext(t *testing.T) {
	dir := t.TempDir()
	addr := "0x000000000000000000000000000000000000aaaa"
	writeRelation(t, dir, addr, "ExternalCallInfo", "1\tS1\tDELEGATECALL\tv\t1\t1\n")
	writeRelation(t, dir, addr, "ExternalCall_Callee_ConstType", "1\tS1\tx\t000000000000000000000000bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb\n")

	l := &Loader{ToolchainDir: dir}
	c := newContract(Request{LogicAddr: addr, Caller: "0xparent", CallSite: "parentSite"})
	constCallee, storageCallee, proxyStorageCallee, funcArgCallee, constFuncSign, proxyFuncSign := l.loadCalleeInfo(addr)

	calls, err := l.recoverExternalCalls(context.Background(), c, "1", "0xabcdef01",
		constCallee, storageCallee, proxyStorageCallee, funcArgCallee, constFuncSign, proxyFuncSign)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ec := calls[0]
	if ec.TargetStorageAddr != c.LogicAddr {
		t.Fatalf("DELEGATECALL must preserve storage context: want %s got %s", c.LogicAddr, ec.TargetStorageAddr)
	}
	if ec.CallerAddr != "0xparent" || ec.CallSite != "parentSite" {
		t.Fatalf("DELEGATECALL must inherit caller/call site from the enclosing contract, got %s/%s", ec.CallerAddr, ec.CallSite)
	}
}

func TestRecoverExternalCallsProxyFuncSignPassesThroughCaller(t *testing.T) {
	dir := t.TempDir()
	addr := "0x000000000000000000000000000000000000aaaa"
	writeRelation(t, dir, addr, "ExternalCallInfo", "1\tS1\tCALL\tv\t1\t1\n")
	writeRelation(t, dir, addr, "ExternalCall_FuncSign_ProxyType", "1\tS1\n")

	l := &Loader{ToolchainDir: dir}
	c := newContract(Request{LogicAddr: addr})
	constCallee, storageCallee, proxyStorageCallee, funcArgCallee, constFuncSign, proxyFuncSign := l.loadCalleeInfo(addr)

	calls, err := l.recoverExternalCalls(context.Background(), c, "1", "0xcallerfuncsig",
		constCallee, storageCallee, proxyStorageCallee, funcArgCallee, constFuncSign, proxyFuncSign)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls[0].TargetFuncSign != "0xcallerfuncsig" {
		t.Fatalf("proxy selector should pass through caller's current selector, got %s", calls[0].TargetFuncSign)
	}
}
