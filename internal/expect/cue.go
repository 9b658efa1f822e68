package expect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/runcache/internal/run"
)

// ParseCUE evaluates a CUE document and decodes its expected list.
// filename is used for error positions only. Every config must be
// concrete after evaluation.
func ParseCUE(filename string, data []byte) ([]run.ExpectedConfig, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	listVal := v.LookupPath(cue.ParsePath("expected"))
	if !listVal.Exists() {
		return []run.ExpectedConfig{}, nil
	}
	if err := listVal.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var cfgs []run.ExpectedConfig
	for i := 0; iter.Next(); i++ {
		cfg, err := decodeCUEEntry(i, iter.Value())
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, cfg)
	}
	if cfgs == nil {
		cfgs = []run.ExpectedConfig{}
	}

	if err := checkDuplicates(cfgs); err != nil {
		return nil, err
	}
	return cfgs, nil
}

func decodeCUEEntry(i int, v cue.Value) (run.ExpectedConfig, error) {
	node, err := requiredString(i, v, "node")
	if err != nil {
		return run.ExpectedConfig{}, err
	}
	version, err := requiredString(i, v, "version")
	if err != nil {
		return run.ExpectedConfig{}, err
	}

	doc := map[string]any{}
	if cfgVal := v.LookupPath(cue.ParsePath("config")); cfgVal.Exists() {
		if cfgVal.Kind() != cue.StructKind {
			return run.ExpectedConfig{}, &LoadError{Index: i, Field: "config", Message: "config must be a struct", Pos: cfgVal.Pos()}
		}
		doc, err = decodeDocument(cfgVal)
		if err != nil {
			return run.ExpectedConfig{}, &LoadError{Index: i, Field: "config", Message: err.Error(), Pos: cfgVal.Pos()}
		}
	}

	return run.ExpectedConfig{
		NodeID:   run.NodeID(node),
		Version:  run.ConfigVersion(version),
		Document: doc,
	}, nil
}

func requiredString(i int, v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &LoadError{Index: i, Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", &LoadError{Index: i, Field: field, Message: "must be a string", Pos: fv.Pos()}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &LoadError{Index: i, Field: field, Message: field + " is required", Pos: fv.Pos()}
	}
	return s, nil
}

// decodeDocument goes through JSON so numbers keep their integer or
// float identity via json.Number.
func decodeDocument(v cue.Value) (map[string]any, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return run.NormalizeDocument(doc)
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		pos := positions[0]
		return fmt.Errorf("%s:%d:%d: %s", pos.Filename(), pos.Line(), pos.Column(), first.Error())
	}
	return first
}
