package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/runcache/internal/run"
)

// maxQueryParams bounds the IN (...) list of a single statement, well under
// SQLite's host parameter limit.
const maxQueryParams = 500

// ReadLastRuns returns the last completed run (highest insertion_seq among
// completed runs) of every requested node, joined with its expected
// configuration when one is stored. Runs still in progress are never
// returned, matching what the cache coordinator keeps.
//
// Every requested id is present in the result; nodes without a completed run
// map to nil. Duplicate ids are collapsed.
func (s *Store) ReadLastRuns(ctx context.Context, nodeIDs []run.NodeID) (map[run.NodeID]*run.ResolvedRun, error) {
	result := make(map[run.NodeID]*run.ResolvedRun, len(nodeIDs))
	ids := make([]run.NodeID, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		if _, seen := result[id]; seen {
			continue
		}
		result[id] = nil
		ids = append(ids, id)
	}

	for start := 0; start < len(ids); start += maxQueryParams {
		end := min(start+maxQueryParams, len(ids))
		if err := s.readLastRunsChunk(ctx, ids[start:end], result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (s *Store) readLastRunsChunk(ctx context.Context, ids []run.NodeID, into map[run.NodeID]*run.ResolvedRun) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}

	// Ties on insertion_seq are broken by timestamp: rows are ordered so the
	// later timestamp overwrites the earlier one in the map.
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.node_id, r.run_timestamp, r.is_completed, r.insertion_seq,
		       r.config_version, e.node_id IS NOT NULL, COALESCE(e.document, '')
		FROM runs r
		LEFT JOIN expected_configs e
		       ON e.node_id = r.node_id AND e.config_version = r.config_version
		WHERE r.node_id IN (`+placeholders+`)
		  AND r.is_completed = 1
		  AND r.insertion_seq = (
		      SELECT MAX(r2.insertion_seq) FROM runs r2
		      WHERE r2.node_id = r.node_id AND r2.is_completed = 1
		  )
		ORDER BY r.node_id ASC, r.run_timestamp ASC
	`, args...)
	if err != nil {
		return fmt.Errorf("query last runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rr, err := scanResolvedRun(rows)
		if err != nil {
			return err
		}
		into[rr.ID.NodeID] = rr
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate last runs: %w", err)
	}

	return nil
}

func scanResolvedRun(rows *sql.Rows) (*run.ResolvedRun, error) {
	var (
		nodeID     string
		timestamp  string
		completed  int
		seq        int64
		version    sql.NullString
		hasConfig  bool
		documentJS string
	)
	if err := rows.Scan(&nodeID, &timestamp, &completed, &seq, &version, &hasConfig, &documentJS); err != nil {
		return nil, fmt.Errorf("scan last run: %w", err)
	}

	ts, err := parseTimestamp(timestamp)
	if err != nil {
		return nil, err
	}

	rr := &run.ResolvedRun{
		ID:           run.ID{NodeID: run.NodeID(nodeID), Timestamp: ts},
		Completed:    completed == 1,
		InsertionSeq: seq,
	}

	if version.Valid {
		info := &run.ConfigInfo{Version: run.ConfigVersion(version.String)}
		if hasConfig {
			doc, err := unmarshalDocument(documentJS)
			if err != nil {
				return nil, fmt.Errorf("last run %s: %w", rr.ID, err)
			}
			info.Expected = &run.ExpectedConfig{
				NodeID:   rr.ID.NodeID,
				Version:  info.Version,
				Document: doc,
			}
		}
		rr.ConfigInfo = info
	}

	return rr, nil
}

// Resolve returns the expected configuration of every key that has one.
// Keys without a stored configuration are omitted.
func (s *Store) Resolve(ctx context.Context, keys []run.ResolveKey) (map[run.ResolveKey]*run.ExpectedConfig, error) {
	result := make(map[run.ResolveKey]*run.ExpectedConfig, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	stmt, err := s.db.PrepareContext(ctx, `
		SELECT document FROM expected_configs
		WHERE node_id = ? AND config_version = ?
	`)
	if err != nil {
		return nil, fmt.Errorf("resolve: prepare: %w", err)
	}
	defer stmt.Close()

	for _, key := range keys {
		if _, done := result[key]; done {
			continue
		}

		var documentJS string
		err := stmt.QueryRowContext(ctx, string(key.NodeID), string(key.Version)).Scan(&documentJS)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", key, err)
		}

		doc, err := unmarshalDocument(documentJS)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", key, err)
		}
		result[key] = &run.ExpectedConfig{NodeID: key.NodeID, Version: key.Version, Document: doc}
	}

	return result, nil
}

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id run.ID) (run.Run, error) {
	var (
		completed int
		seq       int64
		version   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT is_completed, insertion_seq, config_version
		FROM runs
		WHERE node_id = ? AND run_timestamp = ?
	`, string(id.NodeID), formatTimestamp(id.Timestamp)).Scan(&completed, &seq, &version)
	if err != nil {
		return run.Run{}, err
	}

	r := run.Run{ID: id, Completed: completed == 1, InsertionSeq: seq}
	if version.Valid {
		r.ConfigVersion = run.Version(version.String)
	}
	return r, nil
}

// MaxInsertionSeq returns the highest stored insertion_seq, or 0 for an
// empty store. The ingestion clock resumes from this value after a restart.
func (s *Store) MaxInsertionSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(insertion_seq), 0) FROM runs`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max insertion seq: %w", err)
	}
	return seq, nil
}

// ExpectedConfigDigest returns the stored digest for key, or sql.ErrNoRows.
func (s *Store) ExpectedConfigDigest(ctx context.Context, key run.ResolveKey) (string, error) {
	var digest string
	err := s.db.QueryRowContext(ctx, `
		SELECT digest FROM expected_configs
		WHERE node_id = ? AND config_version = ?
	`, string(key.NodeID), string(key.Version)).Scan(&digest)
	if err != nil {
		return "", err
	}
	return digest, nil
}
