package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/researchgpt/researchgpt/internal/types"
)

// createRunMaxRetries bounds the run_number retry loop. Two concurrent
// creators collide at most once per extra creator; a handful of retries is
// plenty for an interactive API.
const createRunMaxRetries = 5

// CreateRun inserts a run for a project, assigning the next run_number
// atomically. The number is computed inside the INSERT so concurrent creators
// race only on the UNIQUE(project_id, run_number) constraint; losers retry
// with a freshly computed number.
func (db *DB) CreateRun(ctx context.Context, projectID uuid.UUID) (*types.Run, error) {
	for attempt := 0; attempt < createRunMaxRetries; attempt++ {
		var run types.Run
		err := db.pool.QueryRow(ctx,
			`INSERT INTO runs (project_id, run_number, phase, step, status)
			 SELECT $1, COALESCE(MAX(run_number), 0) + 1, $2, $3, $4
			 FROM runs WHERE project_id = $1
			 RETURNING id, project_id, run_number, phase, step, status, created_at, updated_at`,
			projectID, types.PhaseOne, types.StepIdea, types.StatusAwaitingFeedback,
		).Scan(&run.ID, &run.ProjectID, &run.RunNumber, &run.Phase, &run.Step, &run.Status,
			&run.CreatedAt, &run.UpdatedAt)
		if err == nil {
			return &run, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return nil, fmt.Errorf("failed to create run: run_number contention for project %s", projectID)
}

// GetRun retrieves a run by ID, scoped to the owner of its project. Returns
// nil without error when no owned run matches.
func (db *DB) GetRun(ctx context.Context, ownerID, runID uuid.UUID) (*types.Run, error) {
	var run types.Run
	err := db.pool.QueryRow(ctx,
		`SELECT r.id, r.project_id, r.run_number, r.phase, r.step, r.status, r.created_at, r.updated_at
		 FROM runs r
		 JOIN projects p ON p.id = r.project_id
		 WHERE r.id = $1 AND p.owner_id = $2`,
		runID, ownerID,
	).Scan(&run.ID, &run.ProjectID, &run.RunNumber, &run.Phase, &run.Step, &run.Status,
		&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns retrieves all runs of a project, newest first.
func (db *DB) ListRuns(ctx context.Context, projectID uuid.UUID) ([]types.Run, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, project_id, run_number, phase, step, status, created_at, updated_at
		 FROM runs WHERE project_id = $1 ORDER BY run_number DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []types.Run
	for rows.Next() {
		var run types.Run
		if err := rows.Scan(&run.ID, &run.ProjectID, &run.RunNumber, &run.Phase, &run.Step,
			&run.Status, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// TryStartStep atomically moves a run to status=running for the given step.
// The status check and the write are one conditional UPDATE, so two
// concurrent triggers cannot both win. Returns false when the run is already
// running (or does not exist; callers check existence first).
func (db *DB) TryStartStep(ctx context.Context, runID uuid.UUID, step string) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`UPDATE runs SET step = $2, status = $3, updated_at = NOW()
		 WHERE id = $1 AND status <> $3`,
		runID, step, types.StatusRunning,
	)
	if err != nil {
		return false, fmt.Errorf("failed to start step: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// UpdateRunState sets phase, step, and status of a run unconditionally. Used
// by the harness to record step completion and failure, and by form steps.
func (db *DB) UpdateRunState(ctx context.Context, runID uuid.UUID, phase types.Phase, step string, status types.RunStatus) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE runs SET phase = $2, step = $3, status = $4, updated_at = NOW()
		 WHERE id = $1`,
		runID, phase, step, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update run state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// UpdateRunStatus sets only the status, leaving phase and step untouched.
// Failure paths use this so the step pointer never advances on error.
func (db *DB) UpdateRunStatus(ctx context.Context, runID uuid.UUID, status types.RunStatus) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE runs SET status = $2, updated_at = NOW() WHERE id = $1`,
		runID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// DeleteRun deletes a run. Artifacts and logs cascade. Returns false when the
// run does not exist.
func (db *DB) DeleteRun(ctx context.Context, runID uuid.UUID) (bool, error) {
	result, err := db.pool.Exec(ctx, `DELETE FROM runs WHERE id = $1`, runID)
	if err != nil {
		return false, fmt.Errorf("failed to delete run: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
