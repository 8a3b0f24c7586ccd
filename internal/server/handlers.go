package server

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/researchgpt/researchgpt/internal/server/middleware"
	"github.com/researchgpt/researchgpt/internal/types"
)

// requestIdentity extracts the authenticated user and the {id} path value.
// A false return means the response has already been written.
func (s *Server) requestIdentity(w http.ResponseWriter, r *http.Request) (userID, resourceID uuid.UUID, ok bool) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, uuid.Nil, false
	}
	resourceID, err = uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, resourceID, true
}

// handleCreateProject creates a project owned by the authenticated user.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req types.CreateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}

	project, err := s.store.CreateProject(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		s.wizardError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, project)
}

// handleListProjects lists the authenticated user's projects.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	projects, err := s.store.ListProjects(r.Context(), userID)
	if err != nil {
		s.wizardError(w, err)
		return
	}
	if projects == nil {
		projects = []types.Project{}
	}
	s.jsonResponse(w, http.StatusOK, projects)
}

// handleGetProject returns one owned project.
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	project, err := s.store.GetProject(r.Context(), userID, projectID)
	if err != nil {
		s.wizardError(w, err)
		return
	}
	if project == nil {
		s.errorResponse(w, http.StatusNotFound, "project not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, project)
}

// handleDeleteProject removes a project and, via cascade, its runs.
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	deleted, err := s.store.DeleteProject(r.Context(), userID, projectID)
	if err != nil {
		s.wizardError(w, err)
		return
	}
	if !deleted {
		s.errorResponse(w, http.StatusNotFound, "project not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateRun starts a new wizard run in an owned project.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	run, err := s.wizard.CreateRun(r.Context(), userID, projectID)
	if err != nil {
		s.wizardError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, run)
}

// handleListRuns lists the runs of an owned project.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	project, err := s.store.GetProject(r.Context(), userID, projectID)
	if err != nil {
		s.wizardError(w, err)
		return
	}
	if project == nil {
		s.errorResponse(w, http.StatusNotFound, "project not found")
		return
	}

	runs, err := s.store.ListRuns(r.Context(), projectID)
	if err != nil {
		s.wizardError(w, err)
		return
	}
	if runs == nil {
		runs = []types.Run{}
	}
	s.jsonResponse(w, http.StatusOK, runs)
}

// handleGetRun returns one owned run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	run, err := s.wizard.GetRun(r.Context(), userID, runID)
	if err != nil {
		s.wizardError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// handleDeleteRun removes a run with its artifacts and logs.
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	if err := s.wizard.DeleteRun(r.Context(), userID, runID); err != nil {
		s.wizardError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunArtifacts returns artifacts of an owned run: the latest version of
// every step by default, one step via ?step_name=, an exact version with
// &version=, all its versions with &all_versions=true.
func (s *Server) handleRunArtifacts(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	if _, err := s.wizard.GetRun(r.Context(), userID, runID); err != nil {
		s.wizardError(w, err)
		return
	}

	stepName := r.URL.Query().Get("step_name")
	allVersions := r.URL.Query().Get("all_versions") == "true"

	if version := r.URL.Query().Get("version"); version != "" {
		if stepName == "" {
			s.errorResponse(w, http.StatusBadRequest, "version requires step_name")
			return
		}
		n, err := strconv.Atoi(version)
		if err != nil || n < 1 {
			s.errorResponse(w, http.StatusBadRequest, "invalid version")
			return
		}
		artifact, err := s.store.GetArtifactVersion(r.Context(), runID, stepName, n)
		if err != nil {
			s.wizardError(w, err)
			return
		}
		if artifact == nil {
			s.errorResponse(w, http.StatusNotFound, "artifact not found")
			return
		}
		s.jsonResponse(w, http.StatusOK, artifact)
		return
	}

	switch {
	case stepName != "" && allVersions:
		artifacts, err := s.store.ListArtifactVersions(r.Context(), runID, stepName)
		if err != nil {
			s.wizardError(w, err)
			return
		}
		if artifacts == nil {
			artifacts = []types.Artifact{}
		}
		s.jsonResponse(w, http.StatusOK, artifacts)
	case stepName != "":
		artifact, err := s.store.GetLatestArtifact(r.Context(), runID, stepName)
		if err != nil {
			s.wizardError(w, err)
			return
		}
		if artifact == nil {
			s.errorResponse(w, http.StatusNotFound, "artifact not found")
			return
		}
		s.jsonResponse(w, http.StatusOK, artifact)
	default:
		artifacts, err := s.store.ListLatestArtifacts(r.Context(), runID)
		if err != nil {
			s.wizardError(w, err)
			return
		}
		if artifacts == nil {
			artifacts = []types.Artifact{}
		}
		s.jsonResponse(w, http.StatusOK, artifacts)
	}
}

// handleRunLogs returns the persisted log history of an owned run.
func (s *Server) handleRunLogs(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	if _, err := s.wizard.GetRun(r.Context(), userID, runID); err != nil {
		s.wizardError(w, err)
		return
	}

	events, err := s.store.ListLogEvents(r.Context(), runID)
	if err != nil {
		s.wizardError(w, err)
		return
	}
	if events == nil {
		events = []types.LogEvent{}
	}
	s.jsonResponse(w, http.StatusOK, events)
}
