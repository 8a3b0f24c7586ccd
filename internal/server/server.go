// Package server provides the HTTP REST API for the research wizard.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/researchgpt/researchgpt/internal/broadcast"
	"github.com/researchgpt/researchgpt/internal/config"
	"github.com/researchgpt/researchgpt/internal/db"
	"github.com/researchgpt/researchgpt/internal/llm"
	"github.com/researchgpt/researchgpt/internal/research"
	"github.com/researchgpt/researchgpt/internal/server/middleware"
	"github.com/researchgpt/researchgpt/internal/server/ratelimit"
	"github.com/researchgpt/researchgpt/internal/types"
	"github.com/researchgpt/researchgpt/internal/wizard"
)

// Store is the subset of database reads the handlers use directly. Mutations
// of runs and artifacts go through the Wizard instead. *db.DB satisfies it.
type Store interface {
	CreateProject(ctx context.Context, ownerID uuid.UUID, name, description string) (*types.Project, error)
	GetProject(ctx context.Context, ownerID, projectID uuid.UUID) (*types.Project, error)
	ListProjects(ctx context.Context, ownerID uuid.UUID) ([]types.Project, error)
	DeleteProject(ctx context.Context, ownerID, projectID uuid.UUID) (bool, error)
	ListRuns(ctx context.Context, projectID uuid.UUID) ([]types.Run, error)
	ListLatestArtifacts(ctx context.Context, runID uuid.UUID) ([]types.Artifact, error)
	ListArtifactVersions(ctx context.Context, runID uuid.UUID, stepName string) ([]types.Artifact, error)
	GetLatestArtifact(ctx context.Context, runID uuid.UUID, stepName string) (*types.Artifact, error)
	GetArtifactVersion(ctx context.Context, runID uuid.UUID, stepName string, version int) (*types.Artifact, error)
	ListLogEvents(ctx context.Context, runID uuid.UUID) ([]types.LogEvent, error)
}

// Wizard is the run state machine surface the handlers drive.
// *wizard.Service satisfies it.
type Wizard interface {
	CreateRun(ctx context.Context, ownerID, projectID uuid.UUID) (*types.Run, error)
	GetRun(ctx context.Context, ownerID, runID uuid.UUID) (*types.Run, error)
	DeleteRun(ctx context.Context, ownerID, runID uuid.UUID) error
	SubmitIdea(ctx context.Context, ownerID, runID uuid.UUID, idea types.IdeaContent) (*types.Artifact, error)
	AcceptTopic(ctx context.Context, ownerID, runID uuid.UUID, req types.AcceptTopicRequest) (*types.Artifact, error)
	TransitionToPhase2(ctx context.Context, ownerID, runID uuid.UUID) (*types.Run, error)
	SubmitConstraints(ctx context.Context, ownerID, runID uuid.UUID, constraints types.ConstraintsContent) (*types.Artifact, error)
	SelectApproach(ctx context.Context, ownerID, runID uuid.UUID, selection types.SelectedApproachContent) (*types.Artifact, error)
	TriggerStep(ctx context.Context, ownerID, runID uuid.UUID, stepName string, req types.TriggerStepRequest) (*types.Run, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	db          *db.DB
	llm         llm.Client
	store       Store
	wizard      Wizard
	events      *broadcast.Registry
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	userService *UserService
	authHandler *AuthHandler
	authMW      func(http.Handler) http.Handler
}

// New creates a new server instance wired to PostgreSQL, Gemini, and the
// research collaborators the environment configures.
func New(cfg *config.Config) (*Server, error) {
	ctx := context.Background()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	llmClient, err := llm.NewClient(ctx, llm.DefaultGeminiConfig(), cfg.GeminiAPIKey)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	researchDeps := wizard.Research{
		OpenAlex:  research.NewOpenAlexClient(cfg.OpenAlexEmail),
		Scholar:   research.NewSemanticScholarClient(cfg.SemanticScholarAPIKey),
		Crossref:  research.NewCrossrefClient(cfg.OpenAlexEmail),
		Unpaywall: research.NewUnpaywallClient(cfg.UnpaywallEmail),
	}
	if cfg.WebSearchConfigured() {
		webSearcher, err := research.NewWebSearcher(ctx, cfg.GoogleSearchAPIKey, cfg.GoogleSearchCX)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to create web search client: %w", err)
		}
		researchDeps.Web = webSearcher
	} else {
		log.Printf("Web search is not configured; the sources step will skip dataset/tool discovery")
	}

	events := broadcast.NewRegistry()
	wizardService := wizard.NewService(database, llmClient, researchDeps, events).
		WithStepTimeout(cfg.StepTimeout)

	passwordConfig, err := config.NewPasswordConfig()
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create password config: %w", err)
	}

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}

	s := &Server{
		db:          database,
		llm:         llmClient,
		store:       database,
		wizard:      wizardService,
		events:      events,
		rateLimiter: ratelimit.NewLimiter(ratelimit.LoadConfig()),
	}
	s.userService = NewUserService(database, passwordConfig)
	s.jwtService = NewJWTService(jwtConfig)
	s.authHandler = NewAuthHandler(s.userService, s.jwtService)
	s.authMW = middleware.AuthMiddleware(s.jwtService.AsTokenValidator())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(s.routes()))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams stay open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// routes builds the request mux. Everything except /health and /auth/* sits
// behind JWT authentication.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /auth/register", s.authHandler.Register)
	mux.HandleFunc("POST /auth/login", s.authHandler.Login)

	mux.Handle("GET /me", s.protected(s.handleMe))

	mux.Handle("POST /projects", s.protected(s.handleCreateProject))
	mux.Handle("GET /projects", s.protected(s.handleListProjects))
	mux.Handle("GET /projects/{id}", s.protected(s.handleGetProject))
	mux.Handle("DELETE /projects/{id}", s.protected(s.handleDeleteProject))

	mux.Handle("POST /projects/{id}/runs", s.protected(s.handleCreateRun))
	mux.Handle("GET /projects/{id}/runs", s.protected(s.handleListRuns))
	mux.Handle("GET /runs/{id}", s.protected(s.handleGetRun))
	mux.Handle("DELETE /runs/{id}", s.protected(s.handleDeleteRun))

	mux.Handle("POST /runs/{id}/steps/{step_name}", s.protected(s.handleTriggerStep))
	mux.Handle("POST /runs/{id}/idea", s.protected(s.handleSubmitIdea))
	mux.Handle("POST /runs/{id}/accept_topic", s.protected(s.handleAcceptTopic))
	mux.Handle("POST /runs/{id}/constraints", s.protected(s.handleSubmitConstraints))
	mux.Handle("POST /runs/{id}/select_approach", s.protected(s.handleSelectApproach))
	mux.Handle("POST /runs/{id}/phase2", s.protected(s.handleTransitionToPhase2))

	mux.Handle("GET /runs/{id}/artifacts", s.protected(s.handleRunArtifacts))
	mux.Handle("GET /runs/{id}/logs", s.protected(s.handleRunLogs))
	mux.Handle("GET /runs/{id}/stream", s.protected(s.handleRunStream))

	return mux
}

// protected wraps a handler with the JWT auth middleware.
func (s *Server) protected(h http.HandlerFunc) http.Handler {
	return s.authMW(h)
}

// Start begins listening for requests
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.llm != nil {
		if err := s.llm.Close(); err != nil {
			log.Printf("Failed to close LLM client: %v", err)
		}
	}
	s.db.Close()
	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)

		if !allowed {
			s.setRateLimitHeaders(w, info)
			s.rateLimitResponse(w, info)
			return
		}

		s.setRateLimitHeaders(w, info)
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMe returns the authenticated user's profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	s.authHandler.CurrentUser(w, r, userID)
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// wizardError maps a state machine error onto the HTTP response.
func (s *Server) wizardError(w http.ResponseWriter, err error) {
	status := wizardHTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
		s.errorResponse(w, status, "internal server error")
		return
	}
	s.errorResponse(w, status, err.Error())
}

// extractClientID extracts the client identifier from the request.
// For MVP, this uses the IP address from RemoteAddr.
// In the future, this could use X-Forwarded-For header (only from trusted proxies).
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	log.Printf("[rate-limit] Rate limit exceeded: Limit=%d Remaining=%d Reset=%s",
		info.Limit, info.Remaining, info.ResetTime.Format(time.RFC3339))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
