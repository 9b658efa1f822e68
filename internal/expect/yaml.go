package expect

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/runcache/internal/run"
)

type yamlFile struct {
	Expected []yamlEntry `yaml:"expected"`
}

type yamlEntry struct {
	Node    string         `yaml:"node"`
	Version string         `yaml:"version"`
	Config  map[string]any `yaml:"config"`
}

// ParseYAML decodes expected configs from YAML.
func ParseYAML(data []byte) ([]run.ExpectedConfig, error) {
	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse expected configs: %w", err)
	}

	cfgs := make([]run.ExpectedConfig, 0, len(f.Expected))
	for i, e := range f.Expected {
		node := strings.TrimSpace(e.Node)
		if node == "" {
			return nil, &LoadError{Index: i, Field: "node", Message: "node is required"}
		}
		version := strings.TrimSpace(e.Version)
		if version == "" {
			return nil, &LoadError{Index: i, Field: "version", Message: "version is required"}
		}
		doc, err := run.NormalizeDocument(e.Config)
		if err != nil {
			return nil, &LoadError{Index: i, Field: "config", Message: err.Error()}
		}
		cfgs = append(cfgs, run.ExpectedConfig{
			NodeID:   run.NodeID(node),
			Version:  run.ConfigVersion(version),
			Document: doc,
		})
	}

	if err := checkDuplicates(cfgs); err != nil {
		return nil, err
	}
	return cfgs, nil
}
