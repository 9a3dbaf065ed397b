package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/storacha/ddebsyms/pkg/ddebs/model"
)

// ParseCSV reads a missing-symbols report: a header line followed by lines
// whose first two comma-separated fields are the debug file and debug ID.
// Only shared objects (debug files ending in ".so") are kept, and duplicates
// are dropped.
func ParseCSV(r io.Reader) ([]model.MissingSymbolRequest, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var reqs []model.MissingSymbolRequest
	seen := map[model.MissingSymbolRequest]bool{}
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		bits := strings.Split(strings.TrimRight(sc.Text(), "\r\n "), ",")
		if len(bits) < 2 {
			continue
		}
		req := model.MissingSymbolRequest{DebugFile: bits[0], DebugID: bits[1]}
		if !strings.HasSuffix(req.DebugFile, ".so") || seen[req] {
			continue
		}
		seen[req] = true
		reqs = append(reqs, req)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading missing symbols report: %w", err)
	}
	return reqs, nil
}

type processedCrash struct {
	JSONDump struct {
		Modules []struct {
			DebugFile      string          `json:"debug_file"`
			DebugID        string          `json:"debug_id"`
			MissingSymbols json.RawMessage `json:"missing_symbols"`
		} `json:"modules"`
	} `json:"json_dump"`
}

// ParseCrash reads a processed crash report and returns the modules flagged
// with missing symbols.
func ParseCrash(r io.Reader) ([]model.MissingSymbolRequest, error) {
	var crash processedCrash
	if err := json.NewDecoder(r).Decode(&crash); err != nil {
		return nil, fmt.Errorf("decoding crash report: %w", err)
	}
	var reqs []model.MissingSymbolRequest
	seen := map[model.MissingSymbolRequest]bool{}
	for _, m := range crash.JSONDump.Modules {
		if m.MissingSymbols == nil {
			continue
		}
		req := model.MissingSymbolRequest{DebugFile: m.DebugFile, DebugID: m.DebugID}
		if seen[req] {
			continue
		}
		seen[req] = true
		reqs = append(reqs, req)
	}
	return reqs, nil
}
