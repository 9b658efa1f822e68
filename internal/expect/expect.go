// Package expect loads expected-configuration documents from YAML or CUE
// files.
//
// Both formats share one layout:
//
//	expected: [
//	    {node: "web-1", version: "v1", config: {packages: ["nginx"]}},
//	]
//
// Config documents are normalized with run.NormalizeDocument so they can
// be stored as canonical JSON.
package expect

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/runcache/internal/run"
)

// LoadError describes an invalid entry in an expected-config file.
type LoadError struct {
	Index   int
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: expected[%d].%s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Index, e.Field, e.Message)
	}
	return fmt.Sprintf("expected[%d].%s: %s", e.Index, e.Field, e.Message)
}

// LoadFile reads an expected-config file. The format is chosen by
// extension: .yaml and .yml use YAML, .cue uses CUE.
func LoadFile(path string) ([]run.ExpectedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read expected configs: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		cfgs, err := ParseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return cfgs, nil
	case ".cue":
		return ParseCUE(path, data)
	default:
		return nil, fmt.Errorf("%s: unsupported expected-config format %q (want .yaml, .yml or .cue)", path, ext)
	}
}

// checkDuplicates rejects two entries for the same (node, version).
func checkDuplicates(cfgs []run.ExpectedConfig) error {
	seen := make(map[run.ResolveKey]int, len(cfgs))
	for i, cfg := range cfgs {
		if prev, ok := seen[cfg.Key()]; ok {
			return &LoadError{
				Index:   i,
				Field:   "version",
				Message: fmt.Sprintf("duplicate of expected[%d] (%s)", prev, cfg.Key()),
			}
		}
		seen[cfg.Key()] = i
	}
	return nil
}
