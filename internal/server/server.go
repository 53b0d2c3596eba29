package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/job-agent/internal/approval"
	"github.com/jonathan/job-agent/internal/learning"
	"github.com/jonathan/job-agent/internal/server/middleware"
	"github.com/jonathan/job-agent/internal/server/ratelimit"
	"github.com/jonathan/job-agent/internal/types"
	"github.com/jonathan/job-agent/internal/workflow"
)

// Engine is the part of the workflow engine the API drives.
type Engine interface {
	Create(ctx context.Context, in workflow.StartInput) (*types.WorkflowState, error)
	Run(ctx context.Context, id uuid.UUID) (*types.WorkflowState, error)
	Resolve(ctx context.Context, id uuid.UUID, trig workflow.Trigger) (*types.WorkflowState, bool, error)
	Status(ctx context.Context, id uuid.UUID) (*types.WorkflowState, error)
}

// OutcomeRecorder accepts outcomes reported by external systems.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, applicationID string, outcome learning.Outcome, observedAt time.Time) error
}

// Options wires a Server.
type Options struct {
	Addr     string
	Engine   Engine
	Issuer   *approval.Issuer
	Outcomes OutcomeRecorder
	// Limiter is optional; nil disables rate limiting.
	Limiter *ratelimit.Limiter
	// APIToken guards the operator endpoints. The approval callback is
	// authenticated by its signed token instead.
	APIToken         string
	DefaultThreshold float64
	// Health is optional and reports dependency health, e.g. a database ping.
	Health func(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	engine      Engine
	issuer      *approval.Issuer
	outcomes    OutcomeRecorder
	rateLimiter *ratelimit.Limiter
	validate    *validator.Validate
	threshold   float64
	health      func(ctx context.Context) error
	now         func() time.Time

	// runCtx outlives requests; workflows advance on it after the response is sent.
	runCtx    context.Context
	cancelRun context.CancelFunc
	runs      sync.WaitGroup
}

// New creates a new server instance
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("workflow engine is required")
	}
	if opts.Issuer == nil {
		return nil, fmt.Errorf("approval issuer is required")
	}
	if opts.Outcomes == nil {
		return nil, fmt.Errorf("outcome recorder is required")
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		engine:      opts.Engine,
		issuer:      opts.Issuer,
		outcomes:    opts.Outcomes,
		rateLimiter: opts.Limiter,
		validate:    validator.New(),
		threshold:   opts.DefaultThreshold,
		health:      opts.Health,
		now:         time.Now,
		runCtx:      runCtx,
		cancelRun:   cancel,
	}

	operator := middleware.RequireToken(opts.APIToken)

	mux := http.NewServeMux()
	mux.Handle("POST /workflows", operator(http.HandlerFunc(s.handleStartWorkflow)))
	mux.Handle("GET /workflows/{id}", operator(http.HandlerFunc(s.handleGetWorkflow)))
	mux.Handle("POST /workflows/{id}/resume", operator(http.HandlerFunc(s.handleResumeWorkflow)))
	mux.Handle("POST /outcomes", operator(http.HandlerFunc(s.handleRecordOutcome)))
	mux.HandleFunc("GET /approve/{token}", s.handleApproval)
	mux.HandleFunc("POST /approve/{token}", s.handleApproval)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // wait=true runs a workflow inline
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully and waits
// for background workflow runs to stop at their next persisted transition.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.Close()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Println("Server stopped")
	return nil
}

// Close cancels background runs, waits for them and stops the rate limiter.
func (s *Server) Close() {
	s.cancelRun()
	s.runs.Wait()
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}

// advanceAsync runs the workflow loop after the response has been written.
func (s *Server) advanceAsync(id uuid.UUID) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		state, err := s.engine.Run(s.runCtx, id)
		if errors.Is(err, workflow.ErrBusy) {
			log.Printf("[WORKFLOW %s] already being advanced elsewhere", id)
			return
		}
		if err != nil {
			log.Printf("[WORKFLOW %s] background run failed: %v", id, err)
			return
		}
		log.Printf("[WORKFLOW %s] background run stopped at %s", id, state.Status)
	}()
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !info.Allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging. Approval tokens are kept out of the log.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		if strings.HasPrefix(path, "/approve/") {
			path = "/approve/<token>"
		}
		log.Printf("[%s] %s %s", r.Method, path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, path, time.Since(start))
	})
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

// writeError maps err to a status; internal errors are logged, not echoed.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
		s.errorResponse(w, status, "internal error")
		return
	}
	s.errorResponse(w, status, err.Error())
}

// extractClientID uses the remote IP; forwarded headers are not trusted.
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
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}

	if info.RetryAfter > 0 {
		secs := int((info.RetryAfter + time.Second - 1) / time.Second)
		response["retry_after"] = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	log.Printf("[rate-limit] Rate limit exceeded: Limit=%d RetryAfter=%s", info.Limit, info.RetryAfter)
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
