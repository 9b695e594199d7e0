// Package addrutil formats contract addresses and function selectors the
// way the fact relations and composite contract-node keys expect: lowercase,
// 0x-prefixed, left-zero-padded.
package addrutil

import "strings"

// FunctionSelectorSentinel denotes the constructor / top dispatch of
// creation bytecode in place of a real 4-byte selector.
const FunctionSelectorSentinel = "__function_selector__"

// AddrLen is the length of a formatted address: "0x" + 40 hex digits.
const AddrLen = 42

// Format lowercases addr, strips any 0x prefix, left-zero-pads to 40 hex
// digits, and re-prefixes with 0x. It is idempotent: Format(Format(x)) ==
// Format(x).
func Format(addr string) string {
	a := strings.ToLower(strings.TrimSpace(addr))
	a = strings.TrimPrefix(a, "0x")
	if len(a) < AddrLen-2 {
		a = strings.Repeat("0", AddrLen-2-len(a)) + a
	}
	if len(a) > AddrLen-2 {
		a = a[len(a)-(AddrLen-2):]
	}
	return "0x" + a
}

// StripConstantPadding removes the 24 leading zero hex digits ("000...0",
// 12 zero bytes) that constant-callee rows prefix a 20-byte address with,
// then formats the remainder as an address.
func StripConstantPadding(callee string) string {
	c := strings.TrimPrefix(strings.ToLower(callee), "0x")
	if len(c) > 40 {
		c = c[len(c)-40:]
	}
	return Format(c)
}

// FormatSelector lowercases a function selector and ensures it carries the
// 0x prefix; the sentinel is returned unchanged.
func FormatSelector(sel string) string {
	if sel == FunctionSelectorSentinel {
		return sel
	}
	s := strings.ToLower(strings.TrimSpace(sel))
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return s
}

// StripZeroPadSuffix removes the 56 trailing zero hex digits that
// FuncArgToSensitiveVar.call_func_sign carries after the 4-byte selector
// (the relation stores a zero-padded 32-byte word), returning a bare
// 0x-prefixed selector.
func StripZeroPadSuffix(callFuncSign string) string {
	s := strings.TrimPrefix(strings.ToLower(callFuncSign), "0x")
	if len(s) > 8 {
		s = s[:8]
	}
	return "0x" + s
}

// CompositeKey builds the contract-node identity key described by the call
// graph explorer: caller_callsite_addr_funcSign_callerFuncSign.
func CompositeKey(caller, callSite, addr, funcSign, callerFuncSign string) string {
	return strings.Join([]string{caller, callSite, addr, funcSign, callerFuncSign}, "_")
}
