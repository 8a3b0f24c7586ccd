package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/researchgpt/researchgpt/internal/types"
)

// decodeJSON decodes a request body, treating an empty body as an error.
func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// decodeOptionalJSON decodes a request body, treating an empty body as the
// zero value.
func decodeOptionalJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// handleTriggerStep starts a generated step in the background and returns
// immediately; progress arrives on the log stream.
func (s *Server) handleTriggerStep(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}
	stepName := r.PathValue("step_name")

	var req types.TriggerStepRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	run, err := s.wizard.TriggerStep(r.Context(), userID, runID, stepName, req)
	if err != nil {
		s.wizardError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusAccepted, map[string]any{
		"run_id": run.ID,
		"step":   run.Step,
		"status": run.Status,
	})
}

// handleSubmitIdea records the user's research idea (form step).
func (s *Server) handleSubmitIdea(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	var idea types.IdeaContent
	if err := decodeJSON(r, &idea); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	artifact, err := s.wizard.SubmitIdea(r.Context(), userID, runID, idea)
	if err != nil {
		s.wizardError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, artifact)
}

// handleAcceptTopic records the chosen topic candidate (form step).
func (s *Server) handleAcceptTopic(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	var req types.AcceptTopicRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	artifact, err := s.wizard.AcceptTopic(r.Context(), userID, runID, req)
	if err != nil {
		s.wizardError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, artifact)
}

// handleSubmitConstraints records researcher constraints (form step).
func (s *Server) handleSubmitConstraints(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	var constraints types.ConstraintsContent
	if err := decodeJSON(r, &constraints); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	artifact, err := s.wizard.SubmitConstraints(r.Context(), userID, runID, constraints)
	if err != nil {
		s.wizardError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, artifact)
}

// handleSelectApproach records the chosen research approach (form step).
func (s *Server) handleSelectApproach(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	var selection types.SelectedApproachContent
	if err := decodeJSON(r, &selection); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	artifact, err := s.wizard.SelectApproach(r.Context(), userID, runID, selection)
	if err != nil {
		s.wizardError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, artifact)
}

// handleTransitionToPhase2 moves a run with a completed outline into phase 2.
func (s *Server) handleTransitionToPhase2(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	run, err := s.wizard.TransitionToPhase2(r.Context(), userID, runID)
	if err != nil {
		s.wizardError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}
