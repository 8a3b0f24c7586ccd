package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/researchgpt/researchgpt/internal/types"
)

// CreateProject inserts a project owned by ownerID and returns it.
func (db *DB) CreateProject(ctx context.Context, ownerID uuid.UUID, name, description string) (*types.Project, error) {
	var p types.Project
	err := db.pool.QueryRow(ctx,
		`INSERT INTO projects (owner_id, name, description)
		 VALUES ($1, $2, $3)
		 RETURNING id, owner_id, name, description, created_at, updated_at`,
		ownerID, name, description,
	).Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return &p, nil
}

// GetProject retrieves a project by ID, scoped to its owner. Returns nil
// without error when the project does not exist or belongs to another user.
func (db *DB) GetProject(ctx context.Context, ownerID, projectID uuid.UUID) (*types.Project, error) {
	var p types.Project
	err := db.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, description, created_at, updated_at
		 FROM projects WHERE id = $1 AND owner_id = $2`,
		projectID, ownerID,
	).Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// ListProjects retrieves all projects owned by ownerID, newest first.
func (db *DB) ListProjects(ctx context.Context, ownerID uuid.UUID) ([]types.Project, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, owner_id, name, description, created_at, updated_at
		 FROM projects WHERE owner_id = $1 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []types.Project
	for rows.Next() {
		var p types.Project
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// DeleteProject deletes an owned project. Runs, artifacts, and logs cascade.
// Returns false when no owned project matched.
func (db *DB) DeleteProject(ctx context.Context, ownerID, projectID uuid.UUID) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`DELETE FROM projects WHERE id = $1 AND owner_id = $2`,
		projectID, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete project: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
