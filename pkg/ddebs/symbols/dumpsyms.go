package symbols

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/storacha/ddebsyms/pkg/ddebs/types"
)

// DefaultDumpSyms is the converter looked up on PATH when none is configured.
const DefaultDumpSyms = "dump_syms"

// DumpSyms converts binaries with Breakpad's dump_syms.
type DumpSyms struct {
	tool string
}

// NewDumpSyms resolves the dump_syms program. A tool that cannot be found is
// an ErrMissingTool.
func NewDumpSyms(tool string) (DumpSyms, error) {
	if tool == "" {
		tool = DefaultDumpSyms
	}
	resolved, err := exec.LookPath(tool)
	if err != nil {
		return DumpSyms{}, types.ErrMissingTool{Tool: tool, Err: err}
	}
	return DumpSyms{tool: resolved}, nil
}

// Convert runs dump_syms on path and returns its standard output.
func (d DumpSyms) Convert(ctx context.Context, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, d.tool, path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("dump_syms %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
