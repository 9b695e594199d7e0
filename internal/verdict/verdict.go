// Package verdict assembles the final JSON report from one completed
// flow-analysis run: the attack matrix, semantic features, call-graph
// statistics, and reentrancy path evidence.
package verdict

import (
	"fmt"
	"sort"
	"time"

	"github.com/shuo-young/lydia-go/internal/config"
	"github.com/shuo-young/lydia-go/internal/flowengine"
)

// SemanticFeatures bundles the intraprocedural op-pattern findings.
type SemanticFeatures struct {
	OpCreation     OpCreation `json:"op_creation"`
	OpSelfdestruct bool       `json:"op_selfdestruct"`
	OpEnv          bool       `json:"op_env"`
}

// OpCreation reports the two CREATE-related intraprocedural patterns.
type OpCreation struct {
	OpMultiCreate bool `json:"op_multicreate"`
	OpSoleCreate  bool `json:"op_solecreate"`
}

// ExternalCallFeatures reports where external calls appear relative to
// hook/fallback functions.
type ExternalCallFeatures struct {
	ExternalCallInHook     bool `json:"externalcall_inhook"`
	ExternalCallInFallback bool `json:"externalcall_infallback"`
}

// Overlap reports whether any sensitive-sink selector coincides with one
// of the root contract's own external-call selectors.
type Overlap struct {
	HasOverlap         bool     `json:"has_overlap"`
	OverlapExternalCall []string `json:"overlap_external_call"`
}

// Result is the top-level verdict, serialized verbatim to the output
// directory as <address>.json.
type Result struct {
	IsAttack     bool            `json:"is_attack"`
	Warning      string          `json:"warning"`
	AttackMatrix map[string]bool `json:"attack_matrix"`
	AnalysisLoc  string          `json:"analysis_loc"`
	Platform     string          `json:"platform"`
	BlockNumber  uint64          `json:"block_number"`
	Time         string          `json:"time,omitempty"`

	SemanticFeatures SemanticFeatures     `json:"semantic_features"`
	ExternalCall     ExternalCallFeatures `json:"external_call"`

	CallPaths []string `json:"call_paths"`

	VisitedContracts    []string `json:"visited_contracts"`
	VisitedContractsNum int      `json:"visited_contracts_num"`
	VisitedFuncs        []string `json:"visited_funcs"`
	VisitedFuncsNum     int      `json:"visited_funcs_num"`
	MaxCallDepth        int      `json:"max_call_depth"`

	ContractFuncSigs             []string `json:"contract_funcsigs"`
	ContractFuncSigsExternalCall []string `json:"contract_funcsigs_external_call"`
	SensitiveCallSigs            []string `json:"sensitive_callsigs"`

	Overlap Overlap `json:"overlap"`

	ReentrancyPathInfo map[string]flowengine.PathInfo `json:"reentrancy_path_info"`
}

// CallGraphStats is the subset of call-graph bookkeeping the verdict
// needs, independent of the flowengine.Engine that consumed it.
type CallGraphStats struct {
	CallPaths        []string
	VisitedContracts map[string]bool
	VisitedFuncs     map[string]bool
	MaxCallDepth     int
}

// Build assembles a Result from one flow-analysis Detect() outcome, the
// call-graph statistics it ran over, and the root contract's own
// function-signature inventory.
func Build(cfg *config.Config, isCreatebin bool, det flowengine.Result, stats CallGraphStats, contractFuncSigs, contractFuncSigsExternalCall []string) Result {
	external := make(map[string]bool, len(contractFuncSigsExternalCall))
	for _, sig := range contractFuncSigsExternalCall {
		external[sig] = true
	}
	var overlap []string
	for _, sig := range det.SensitiveCallSigns {
		if external[sig] {
			external[sig] = false
			overlap = append(overlap, sig)
		}
	}

	res := Result{
		IsAttack:    det.Flagged,
		Warning:     config.WarningMedium,
		Platform:    cfg.Platform,
		BlockNumber: cfg.BlockNumber,
		AttackMatrix: map[string]bool{
			"br":         det.AttackMatrix.BadRandomness,
			"dos":        det.AttackMatrix.DoS,
			"reentrancy": det.AttackMatrix.Reentrancy,
		},
		SemanticFeatures: SemanticFeatures{
			OpCreation: OpCreation{
				OpMultiCreate: det.Intraprocedural.OpMultiCreate,
				OpSoleCreate:  det.Intraprocedural.OpSoleCreate,
			},
			OpSelfdestruct: det.Intraprocedural.OpSelfdestruct,
			OpEnv:          det.Intraprocedural.OpEnv,
		},
		ExternalCall: ExternalCallFeatures{
			ExternalCallInHook:     det.Intraprocedural.ExternalCallInHook,
			ExternalCallInFallback: det.Intraprocedural.ExternalCallInFallback,
		},
		CallPaths:                     stats.CallPaths,
		VisitedContracts:              sortedKeys(stats.VisitedContracts),
		VisitedFuncs:                  sortedKeys(stats.VisitedFuncs),
		MaxCallDepth:                  stats.MaxCallDepth,
		ContractFuncSigs:              contractFuncSigs,
		ContractFuncSigsExternalCall:  contractFuncSigsExternalCall,
		SensitiveCallSigs:             det.SensitiveCallSigns,
		Overlap: Overlap{
			HasOverlap:          len(overlap) > 0,
			OverlapExternalCall: overlap,
		},
		ReentrancyPathInfo: buildPathInfo(det.VictimCallbackInfo, det.AttackerReenterInfo),
	}
	res.VisitedContractsNum = len(res.VisitedContracts)
	res.VisitedFuncsNum = len(res.VisitedFuncs)

	if isCreatebin {
		res.AnalysisLoc = config.CreatebinAnalysisLoc
	} else {
		res.AnalysisLoc = config.RuntimebinAnalysisLoc
	}

	if shouldUpgradeWarning(res) {
		res.Warning = config.WarningHigh
	}

	return res
}

func buildPathInfo(victim map[string][]flowengine.ReachableSiteInfo, attacker map[string][]flowengine.ReenterInfo) map[string]flowengine.PathInfo {
	out := make(map[string]flowengine.PathInfo, len(victim))
	for sig, sites := range victim {
		out[sig] = flowengine.PathInfo{
			VictimCallback:  sites,
			AttackerReenter: attacker[sig],
		}
	}
	return out
}

// shouldUpgradeWarning implements the seven-condition OR that promotes a
// finding from medium to high severity.
func shouldUpgradeWarning(r Result) bool {
	return r.SemanticFeatures.OpCreation.OpMultiCreate ||
		r.SemanticFeatures.OpCreation.OpSoleCreate ||
		r.SemanticFeatures.OpSelfdestruct ||
		r.SemanticFeatures.OpEnv ||
		r.Overlap.HasOverlap ||
		r.ExternalCall.ExternalCallInHook ||
		r.ExternalCall.ExternalCallInFallback
}

// WithDuration stamps a wall-clock duration onto a built Result, matching
// the original's "<secs>.<nanos> seconds" format.
func WithDuration(r Result, d time.Duration) Result {
	r.Time = fmt.Sprintf("%d.%09d seconds", int64(d.Seconds()), d.Nanoseconds()%1_000_000_000)
	return r
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
