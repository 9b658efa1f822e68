package run

import (
	"fmt"
	"time"
)

// NodeID identifies a managed node.
type NodeID string

// ConfigVersion identifies the configuration revision assigned to a node.
type ConfigVersion string

// ID identifies one agent execution on one node.
type ID struct {
	NodeID    NodeID    `json:"node_id" yaml:"node"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// String renders the ID as node@RFC3339Nano, used in logs.
func (id ID) String() string {
	return fmt.Sprintf("%s@%s", id.NodeID, id.Timestamp.UTC().Format(time.RFC3339Nano))
}

// Run is a reported agent execution.
//
// InsertionSeq orders runs by arrival and is assigned by the ingestion clock.
// ConfigVersion is nil when the agent did not report one.
type Run struct {
	ID            ID             `json:"id"`
	Completed     bool           `json:"completed"`
	InsertionSeq  int64          `json:"insertion_seq"`
	ConfigVersion *ConfigVersion `json:"config_version,omitempty"`
}

// Validate checks the fields a store needs to persist the run.
func (r Run) Validate() error {
	if r.ID.NodeID == "" {
		return fmt.Errorf("run has empty node id")
	}
	if r.ID.Timestamp.IsZero() {
		return fmt.Errorf("run %s has zero timestamp", r.ID.NodeID)
	}
	if r.ConfigVersion != nil && *r.ConfigVersion == "" {
		return fmt.Errorf("run %s has empty config version", r.ID)
	}
	return nil
}

// ResolveKey addresses one expected configuration.
type ResolveKey struct {
	NodeID  NodeID        `json:"node_id"`
	Version ConfigVersion `json:"version"`
}

func (k ResolveKey) String() string {
	return fmt.Sprintf("%s/%s", k.NodeID, k.Version)
}

// ExpectedConfig is the configuration object resolved for a (node, version) pair.
type ExpectedConfig struct {
	NodeID   NodeID         `json:"node_id"`
	Version  ConfigVersion  `json:"version"`
	Document map[string]any `json:"document"`
}

// Key returns the resolver key this config answers.
func (e ExpectedConfig) Key() ResolveKey {
	return ResolveKey{NodeID: e.NodeID, Version: e.Version}
}

// Clone returns a deep copy of the config.
func (e *ExpectedConfig) Clone() *ExpectedConfig {
	if e == nil {
		return nil
	}
	c := *e
	c.Document = cloneDocument(e.Document)
	return &c
}

// ConfigInfo is the configuration attached to a resolved run.
// Expected is nil when the version could not be resolved.
type ConfigInfo struct {
	Version  ConfigVersion   `json:"version"`
	Expected *ExpectedConfig `json:"expected,omitempty"`
}

// Clone returns a deep copy of the info.
func (c *ConfigInfo) Clone() *ConfigInfo {
	if c == nil {
		return nil
	}
	return &ConfigInfo{Version: c.Version, Expected: c.Expected.Clone()}
}

// ResolvedRun is the cached projection of a run.
// ConfigInfo is nil when the run carried no config version.
type ResolvedRun struct {
	ID           ID          `json:"id"`
	ConfigInfo   *ConfigInfo `json:"config_info,omitempty"`
	Completed    bool        `json:"completed"`
	InsertionSeq int64       `json:"insertion_seq"`
}

// Clone returns a deep copy of the resolved run.
func (r *ResolvedRun) Clone() *ResolvedRun {
	if r == nil {
		return nil
	}
	c := *r
	c.ConfigInfo = r.ConfigInfo.Clone()
	return &c
}

// WriteResult is the storage outcome of one submitted run.
// Err is nil on success and a *WriteError otherwise. On success Run is the
// row the store kept, which differs from the submitted run when a completed
// run is resubmitted; on failure it is the submitted run.
type WriteResult struct {
	Run Run
	Err error
}

// OK reports whether the run was persisted.
func (w WriteResult) OK() bool {
	return w.Err == nil
}

// Version is a convenience constructor for optional config versions.
func Version(v string) *ConfigVersion {
	cv := ConfigVersion(v)
	return &cv
}

func cloneDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneDocument(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return val
	}
}

// CloneMap deep-copies a node-to-run mapping, preserving present-but-empty keys.
func CloneMap(m map[NodeID]*ResolvedRun) map[NodeID]*ResolvedRun {
	out := make(map[NodeID]*ResolvedRun, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}
