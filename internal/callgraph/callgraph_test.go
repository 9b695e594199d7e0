package callgraph

import (
	"testing"

	"github.com/shuo-young/lydia-go/internal/factstore"
)

func TestUnresolvedEdgeIsSkippedByExplorer(t *testing.T) {
	ec := factstore.ExternalCall{TargetLogicAddr: "", TargetStorageAddr: "", TargetFuncSign: "", CallSite: "S1"}
	if !ec.Unresolved() {
		t.Fatal("an external call with an empty target field must be treated as unresolved")
	}

	ec.TargetLogicAddr, ec.TargetStorageAddr, ec.TargetFuncSign = "0xaaaa", "0xaaaa", "0xabcdef01"
	if ec.Unresolved() {
		t.Fatal("a fully resolved external call must not be skipped")
	}
}

func TestNodeKeyUsesCompositeFields(t *testing.T) {
	req := factstore.Request{Caller: "c", CallSite: "s", LogicAddr: "0xAAAA", FuncSign: "0xabcdef01"}
	k1 := nodeKey(req, "0xcallerfn")
	k2 := nodeKey(req, "0xcallerfn")
	if k1 != k2 {
		t.Fatal("nodeKey should be deterministic for identical inputs")
	}
	k3 := nodeKey(req, "0xotherfn")
	if k1 == k3 {
		t.Fatal("nodeKey must vary with callerFuncSign, since node identity is context-sensitive")
	}
}
