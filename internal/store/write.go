package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/runcache/internal/run"
)

// UpsertRuns writes each run independently and returns one result per run,
// in input order.
//
// Per-run semantics (keyed by node_id + run_timestamp):
//   - new run: inserted
//   - stored not completed: overwritten (completion flag, seq, version)
//   - stored completed, resubmitted completed: no-op, success
//   - stored completed, resubmitted not completed: rejected with
//     run.ErrAlreadyCompleted
//
// A successful result carries the row as stored, so a completed resubmit
// reports the original seq and version rather than the resubmitted ones.
//
// The returned error is always nil; it exists to satisfy cache.RunStore for
// stores that can fail a whole batch.
func (s *Store) UpsertRuns(ctx context.Context, runs []run.Run) ([]run.WriteResult, error) {
	results := make([]run.WriteResult, len(runs))
	for i, r := range runs {
		stored, err := s.upsertRun(ctx, r)
		if err != nil {
			results[i] = run.WriteResult{Run: r, Err: err}
			continue
		}
		results[i] = run.WriteResult{Run: stored}
	}
	return results, nil
}

func (s *Store) upsertRun(ctx context.Context, r run.Run) (run.Run, error) {
	if err := r.Validate(); err != nil {
		return run.Run{}, run.NewRejectedError(r.ID, fmt.Errorf("%w: %v", run.ErrInvalidRun, err))
	}

	// The WHERE on the update arm keeps completed rows untouched; RETURNING
	// then yields no row.
	var (
		completed int
		seq       int64
		version   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO runs
		(node_id, run_timestamp, is_completed, insertion_seq, config_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id, run_timestamp) DO UPDATE SET
			is_completed   = excluded.is_completed,
			insertion_seq  = excluded.insertion_seq,
			config_version = excluded.config_version
		WHERE runs.is_completed = 0
		RETURNING is_completed, insertion_seq, config_version
	`,
		string(r.ID.NodeID),
		formatTimestamp(r.ID.Timestamp),
		boolToInt(r.Completed),
		r.InsertionSeq,
		nullVersion(r.ConfigVersion),
	).Scan(&completed, &seq, &version)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if !r.Completed {
			return run.Run{}, run.NewRejectedError(r.ID, run.ErrAlreadyCompleted)
		}
		stored, err := s.ReadRun(ctx, r.ID)
		if err != nil {
			return run.Run{}, run.NewFailedError(r.ID, fmt.Errorf("upsert run: read stored row: %w", err))
		}
		return stored, nil
	case err != nil:
		return run.Run{}, run.NewFailedError(r.ID, fmt.Errorf("upsert run: %w", err))
	}

	stored := run.Run{ID: r.ID, Completed: completed == 1, InsertionSeq: seq}
	if version.Valid {
		stored.ConfigVersion = run.Version(version.String)
	}
	return stored, nil
}

// PutExpectedConfig registers (or replaces) the expected configuration for
// a (node, version) pair. The document is stored as canonical JSON along
// with its digest.
func (s *Store) PutExpectedConfig(ctx context.Context, cfg run.ExpectedConfig) error {
	if cfg.NodeID == "" || cfg.Version == "" {
		return fmt.Errorf("put expected config: node and version are required (got %q)", cfg.Key())
	}

	doc, err := run.NormalizeDocument(cfg.Document)
	if err != nil {
		return fmt.Errorf("put expected config %s: %w", cfg.Key(), err)
	}
	cfg.Document = doc

	docJSON, err := marshalDocument(doc)
	if err != nil {
		return fmt.Errorf("put expected config %s: %w", cfg.Key(), err)
	}

	digest, err := cfg.Digest()
	if err != nil {
		return fmt.Errorf("put expected config %s: %w", cfg.Key(), err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO expected_configs
		(node_id, config_version, document, digest)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(node_id, config_version) DO UPDATE SET
			document = excluded.document,
			digest   = excluded.digest
	`,
		string(cfg.NodeID),
		string(cfg.Version),
		docJSON,
		digest,
	)
	if err != nil {
		return fmt.Errorf("put expected config %s: %w", cfg.Key(), err)
	}

	return nil
}
