package analysis

import (
	"testing"

	"github.com/shuo-young/lydia-go/internal/addrutil"
	"github.com/shuo-young/lydia-go/internal/config"
	"github.com/shuo-young/lydia-go/internal/factstore"
)

func TestBuildSeedsCreatebinAlwaysSeedsExplorer(t *testing.T) {
	cfg := &config.Config{Platform: "ETH", BlockNumber: 1}
	e := &Engine{Config: cfg}

	root := &factstore.Contract{
		LogicAddr:                  "0x000000000000000000000000000000000000aaaa",
		StorageAddr:                "0x000000000000000000000000000000000000aaaa",
		Createbin:                  true,
		FuncSignsWithExternalCalls: map[string]bool{}, // empty: no external call recovered yet
	}

	seeds := e.buildSeeds(root)
	if len(seeds) != 1 {
		t.Fatalf("a creation-bytecode root must always produce exactly one seed, got %d", len(seeds))
	}
	if seeds[0].FuncSign != addrutil.FunctionSelectorSentinel {
		t.Fatalf("createbin seed must use the function-selector sentinel, got %s", seeds[0].FuncSign)
	}
}

func TestBuildSeedsRuntimeSeedsOnePerExternalCallSelector(t *testing.T) {
	cfg := &config.Config{Platform: "ETH", BlockNumber: 1}
	e := &Engine{Config: cfg}

	root := &factstore.Contract{
		LogicAddr:   "0x000000000000000000000000000000000000aaaa",
		StorageAddr: "0x000000000000000000000000000000000000aaaa",
		Createbin:   false,
		FuncSignsWithExternalCalls: map[string]bool{
			"0xaaaaaaaa": true,
			"0xbbbbbbbb": true,
		},
	}

	seeds := e.buildSeeds(root)
	if len(seeds) != 2 {
		t.Fatalf("expected one seed per external-call-bearing selector, got %d", len(seeds))
	}
	seen := map[string]bool{}
	for _, s := range seeds {
		seen[s.FuncSign] = true
	}
	if !seen["0xaaaaaaaa"] || !seen["0xbbbbbbbb"] {
		t.Fatalf("seeds must cover every external-call-bearing selector, got %v", seeds)
	}
}

func TestRootRequestUsesOriginModeAndDefaults(t *testing.T) {
	cfg, err := config.New("", "0x000000000000000000000000000000000000aaaa", "", 0)
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}

	req := rootRequest(cfg)
	if req.FuncSign != "" {
		t.Fatalf("root request must be origin mode (empty FuncSign), got %s", req.FuncSign)
	}
	if req.Caller != config.DefaultCaller {
		t.Fatalf("expected default caller, got %s", req.Caller)
	}
	if req.BlockNumber != config.DefaultBlockNumber {
		t.Fatalf("expected default block number, got %d", req.BlockNumber)
	}
}
