package ingest

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/runcache/internal/run"
)

// Report is one run as reported by a node agent.
type Report struct {
	NodeID        run.NodeID
	Timestamp     time.Time
	Completed     bool
	ConfigVersion string
}

// Run converts the report to an unstamped run.
func (r Report) Run() run.Run {
	out := run.Run{
		ID:        run.ID{NodeID: r.NodeID, Timestamp: r.Timestamp.UTC()},
		Completed: r.Completed,
	}
	if r.ConfigVersion != "" {
		out.ConfigVersion = run.Version(r.ConfigVersion)
	}
	return out
}

// reportFile is the on-disk layout of a run-report file:
//
//	runs:
//	  - node: web-1
//	    timestamp: 2025-03-01T12:00:00Z
//	    completed: true
//	    config_version: v1
type reportFile struct {
	Runs []reportEntry `yaml:"runs"`
}

type reportEntry struct {
	Node          string `yaml:"node"`
	Timestamp     string `yaml:"timestamp"`
	Completed     bool   `yaml:"completed"`
	ConfigVersion string `yaml:"config_version"`
}

// LoadReports reads a YAML run-report file.
func LoadReports(path string) ([]Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reports: %w", err)
	}
	reports, err := ParseReports(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reports, nil
}

// ParseReports decodes run reports from YAML. Every entry must name a node
// and carry an RFC 3339 timestamp.
func ParseReports(data []byte) ([]Report, error) {
	var f reportFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse reports: %w", err)
	}

	reports := make([]Report, 0, len(f.Runs))
	var errs []error
	for i, e := range f.Runs {
		if e.Node == "" {
			errs = append(errs, fmt.Errorf("runs[%d]: node is required", i))
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil {
			errs = append(errs, fmt.Errorf("runs[%d]: timestamp %q: %w", i, e.Timestamp, err))
			continue
		}
		reports = append(reports, Report{
			NodeID:        run.NodeID(e.Node),
			Timestamp:     ts,
			Completed:     e.Completed,
			ConfigVersion: e.ConfigVersion,
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return reports, nil
}
