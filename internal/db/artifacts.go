package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/researchgpt/researchgpt/internal/types"
)

// createArtifactMaxRetries bounds the version retry loop.
const createArtifactMaxRetries = 5

// CreateArtifact stores a new immutable version of a step artifact. The
// version is computed inside the INSERT; concurrent writers race only on the
// UNIQUE(run_id, step_name, version) constraint, and losers recompute.
func (db *DB) CreateArtifact(ctx context.Context, runID uuid.UUID, stepName string, content any) (*types.Artifact, error) {
	jsonBytes, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact content: %w", err)
	}

	for attempt := 0; attempt < createArtifactMaxRetries; attempt++ {
		var a types.Artifact
		var contentBytes []byte
		err := db.pool.QueryRow(ctx,
			`INSERT INTO artifacts (run_id, step_name, version, content)
			 SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3
			 FROM artifacts WHERE run_id = $1 AND step_name = $2
			 RETURNING id, run_id, step_name, version, content, created_at`,
			runID, stepName, jsonBytes,
		).Scan(&a.ID, &a.RunID, &a.StepName, &a.Version, &contentBytes, &a.CreatedAt)
		if err == nil {
			if err := json.Unmarshal(contentBytes, &a.Content); err != nil {
				return nil, fmt.Errorf("failed to unmarshal artifact content: %w", err)
			}
			return &a, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return nil, fmt.Errorf("failed to create artifact %s: %w", stepName, err)
	}
	return nil, fmt.Errorf("failed to create artifact %s: version contention for run %s", stepName, runID)
}

func scanArtifact(row pgx.Row) (*types.Artifact, error) {
	var a types.Artifact
	var contentBytes []byte
	err := row.Scan(&a.ID, &a.RunID, &a.StepName, &a.Version, &contentBytes, &a.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	if err := json.Unmarshal(contentBytes, &a.Content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact content: %w", err)
	}
	return &a, nil
}

// GetLatestArtifact retrieves the highest version of a step artifact. Returns
// nil without error when the step has produced nothing yet.
func (db *DB) GetLatestArtifact(ctx context.Context, runID uuid.UUID, stepName string) (*types.Artifact, error) {
	return scanArtifact(db.pool.QueryRow(ctx,
		`SELECT id, run_id, step_name, version, content, created_at
		 FROM artifacts
		 WHERE run_id = $1 AND step_name = $2
		 ORDER BY version DESC LIMIT 1`,
		runID, stepName,
	))
}

// GetArtifactVersion retrieves one exact version of a step artifact.
func (db *DB) GetArtifactVersion(ctx context.Context, runID uuid.UUID, stepName string, version int) (*types.Artifact, error) {
	return scanArtifact(db.pool.QueryRow(ctx,
		`SELECT id, run_id, step_name, version, content, created_at
		 FROM artifacts
		 WHERE run_id = $1 AND step_name = $2 AND version = $3`,
		runID, stepName, version,
	))
}

// ListLatestArtifacts retrieves the newest version of every step artifact of
// a run, in step-name order.
func (db *DB) ListLatestArtifacts(ctx context.Context, runID uuid.UUID) ([]types.Artifact, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT DISTINCT ON (step_name)
		        id, run_id, step_name, version, content, created_at
		 FROM artifacts
		 WHERE run_id = $1
		 ORDER BY step_name, version DESC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()
	return collectArtifacts(rows)
}

// ListArtifactVersions retrieves every version of one step artifact, oldest
// first.
func (db *DB) ListArtifactVersions(ctx context.Context, runID uuid.UUID, stepName string) ([]types.Artifact, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, step_name, version, content, created_at
		 FROM artifacts
		 WHERE run_id = $1 AND step_name = $2
		 ORDER BY version ASC`,
		runID, stepName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifact versions: %w", err)
	}
	defer rows.Close()
	return collectArtifacts(rows)
}

func collectArtifacts(rows pgx.Rows) ([]types.Artifact, error) {
	var artifacts []types.Artifact
	for rows.Next() {
		var a types.Artifact
		var contentBytes []byte
		if err := rows.Scan(&a.ID, &a.RunID, &a.StepName, &a.Version, &contentBytes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		if err := json.Unmarshal(contentBytes, &a.Content); err != nil {
			return nil, fmt.Errorf("failed to unmarshal artifact content: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}
