package wizard

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/researchgpt/researchgpt/internal/types"
)

// failureWriteTimeout bounds the bookkeeping writes after a step failure.
const failureWriteTimeout = 10 * time.Second

// runStep executes one step runner detached from the triggering request. The
// contract on failure: exactly one System/error event, then status failed
// with the step pointer left where it is, so the user can retry.
func (s *Service) runStep(def StepDefinition, in runInput) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stepTimeout)
	defer cancel()

	runID := in.run.ID

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Step %s panicked for run %s: %v", def.Name, runID, r)
			s.failStep(runID, def.Name, fmt.Errorf("internal error: %v", r))
		}
	}()

	if err := def.run(ctx, s, in); err != nil {
		s.failStep(runID, def.Name, err)
		return
	}

	status := types.StatusAwaitingFeedback
	if def.Terminal {
		status = types.StatusCompleted
	}
	if err := s.store.UpdateRunState(ctx, runID, def.Phase, def.Name, status); err != nil {
		// A run stuck in running would block every retry, so a failed
		// finalize write is a step failure like any other.
		log.Printf("Failed to finalize run %s after step %s: %v", runID, def.Name, err)
		s.failStep(runID, def.Name, fmt.Errorf("failed to finalize run state: %w", err))
	}
}

// failStep records a step failure. It uses a fresh context so a step that
// failed by timeout can still persist the error event and status.
func (s *Service) failStep(runID uuid.UUID, stepName string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), failureWriteTimeout)
	defer cancel()

	s.emit(ctx, runID, types.AgentSystem, types.EventError,
		fmt.Sprintf("Step %s failed: %v", stepName, cause), nil)

	if err := s.store.UpdateRunStatus(ctx, runID, types.StatusFailed); err != nil {
		log.Printf("Failed to mark run %s as failed: %v", runID, err)
	}
}
