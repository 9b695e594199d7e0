// Package decompiler invokes the external Gigahorse/Leslie decompiler
// toolchain once per newly-seen contract address. Calling it via a shell
// string is fragile (quoting, working-directory leakage); this drives the
// binary directly with an argument vector and an explicit working
// directory instead.
package decompiler

import (
	"context"
	"os/exec"
	"time"

	"github.com/shuo-young/lydia-go/internal/lydiaerr"
)

// Driver runs the decompiler against cached bytecode files.
type Driver struct {
	// ToolchainDir is the gigahorse-toolchain checkout, the decompiler's
	// working directory.
	ToolchainDir string
	// ClientScript is the Souffle/Datalog client to run, relative to
	// ToolchainDir (e.g. "clients/leslie.dl").
	ClientScript string
	// ContractsDir is where cached *.hex files live, relative to
	// ToolchainDir.
	ContractsDir string
	Timeout      time.Duration
}

// NewDriver builds a Driver with the layout described by the external
// interfaces contract.
func NewDriver(toolchainDir string, timeout time.Duration) *Driver {
	return &Driver{
		ToolchainDir: toolchainDir,
		ClientScript: "clients/leslie.dl",
		ContractsDir: "contracts/",
		Timeout:      timeout,
	}
}

// Run decompiles the cached <addr>.hex file, populating
// <ToolchainDir>/.temp/<addr>/out/. A non-zero exit or timeout is
// returned as a ContractAnalysis error. For a contract reached during
// call-graph expansion, the explorer skips that contract and passes the
// error to Explorer.OnLoadError when one is set; no logging happens
// otherwise. A failure on the root contract ends the run with that error.
func (d *Driver) Run(ctx context.Context, addr string) error {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	hexPath := d.ContractsDir + addr + ".hex"
	cmd := exec.CommandContext(ctx, "./gigahorse.py", "-C", d.ClientScript, hexPath)
	cmd.Dir = d.ToolchainDir

	if out, err := cmd.CombinedOutput(); err != nil {
		return lydiaerr.Wrap(lydiaerr.ContractAnalysis, err, "decompiling %s failed: %s", addr, string(out))
	}
	return nil
}
