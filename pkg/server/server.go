// Package server provides the HTTP delivery adapter for members-db.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/approvers/members-db/internal/version"
	"github.com/approvers/members-db/pkg/authflow"
	"github.com/approvers/members-db/pkg/config"
	"github.com/approvers/members-db/pkg/directory"
	"github.com/approvers/members-db/pkg/members"
	"github.com/approvers/members-db/pkg/observability"
)

// Service is the main HTTP server service.
type Service interface {
	// Start runs the HTTP server until the context is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the server.
	Stop() error
}

// Lifecycle is implemented by dependencies with background work to manage.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
}

// service implements the Service interface.
type service struct {
	log         logrus.FieldLogger
	cfg         config.ServerConfig
	flow        *authflow.Flow
	directory   *directory.Service
	members     *members.Service
	rateLimiter *RateLimiter
	lifecycles  []Lifecycle
	httpServer  *http.Server
	mu          sync.Mutex
	done        chan struct{}
	running     bool
}

// NewService creates a new HTTP server service. The given lifecycles are
// started before the listener and stopped after it.
func NewService(
	log logrus.FieldLogger,
	cfg config.ServerConfig,
	rateLimits config.RateLimitConfig,
	flow *authflow.Flow,
	directorySvc *directory.Service,
	membersSvc *members.Service,
	lifecycles ...Lifecycle,
) Service {
	return &service{
		log:         log.WithField("component", "server"),
		cfg:         cfg,
		flow:        flow,
		directory:   directorySvc,
		members:     membersSvc,
		rateLimiter: NewRateLimiter(log, rateLimits.RequestsPerHour),
		lifecycles:  lifecycles,
		done:        make(chan struct{}),
	}
}

// Start runs the HTTP server until the context is cancelled.
func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()

		return errors.New("server already running")
	}

	s.running = true
	s.mu.Unlock()

	for _, lc := range s.lifecycles {
		if err := lc.Start(ctx); err != nil {
			return fmt.Errorf("starting dependency: %w", err)
		}
	}

	s.rateLimiter.StartCleanup(time.Hour, s.done)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.log.WithFields(logrus.Fields{
		"address": addr,
		"version": version.Version,
	}).Info("Starting HTTP server")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.buildHTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return nil
	case <-s.done:
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	}
}

// Stop gracefully shuts down the server.
func (s *service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.log.Info("Stopping HTTP server")

	close(s.done)
	s.running = false

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Error("Failed to shutdown HTTP server")
		}
	}

	for _, lc := range s.lifecycles {
		if err := lc.Stop(); err != nil {
			s.log.WithError(err).Error("Failed to stop dependency")
		}
	}

	s.log.Info("HTTP server stopped")

	return nil
}

// buildHTTPHandler creates the router with all routes and middleware.
func (s *service) buildHTTPHandler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogger(s.log))

	// Health endpoints (always public).
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// OAuth flow endpoints, rate-limited per client.
	r.Group(func(r chi.Router) {
		r.Use(s.rateLimiter.Handler)
		r.Get("/auth/discord", s.handleAuthorize)
		r.Get("/auth/discord/callback", s.handleCallback)
	})

	// Directory and admin endpoints.
	r.Route("/api/members", func(r chi.Router) {
		r.Get("/", s.handleListMembers)
		r.Get("/{memberID}", s.handleGetMember)
		r.Put("/{memberID}/display-name", s.handleSetDisplayName)
		r.Delete("/{memberID}/display-name", s.handleClearDisplayName)
	})

	return r
}

// handleAuthorize starts an OAuth2 flow and redirects to Discord.
func (s *service) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.flow.Authenticate(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to start authorization flow")
		s.writeError(w, http.StatusInternalServerError, "authorization_unavailable")

		return
	}

	observability.FlowsStartedTotal.Inc()

	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCallback completes an OAuth2 flow. Failures deliberately return a
// generic denial without provider error detail.
func (s *service) handleCallback(w http.ResponseWriter, r *http.Request) {
	stateToken := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")

	if stateToken == "" || code == "" {
		observability.FlowsCompletedTotal.WithLabelValues("error").Inc()
		s.writeError(w, http.StatusBadRequest, "authorization_denied")

		return
	}

	if err := s.flow.Complete(r.Context(), stateToken, code); err != nil {
		s.log.WithError(err).Warn("Authorization callback failed")
		observability.FlowsCompletedTotal.WithLabelValues("error").Inc()
		s.writeError(w, http.StatusBadRequest, "authorization_denied")

		return
	}

	observability.FlowsCompletedTotal.WithLabelValues("success").Inc()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Successfully connected your Discord account"))
}

// handleListMembers returns the aggregated member directory.
func (s *service) handleListMembers(w http.ResponseWriter, r *http.Request) {
	timer := time.Now()

	rows, err := s.directory.ListMembers(r.Context())

	observability.DirectoryQueryDuration.WithLabelValues("list").Observe(time.Since(timer).Seconds())

	if err != nil {
		s.log.WithError(err).Error("Failed to list members")
		observability.DirectoryQueriesTotal.WithLabelValues("list", "error").Inc()
		s.writeError(w, http.StatusBadGateway, "directory_unavailable")

		return
	}

	observability.DirectoryQueriesTotal.WithLabelValues("list", "success").Inc()
	s.writeJSON(w, rows)
}

// handleGetMember returns a single member's directory row.
func (s *service) handleGetMember(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")
	timer := time.Now()

	row, err := s.directory.GetMember(r.Context(), memberID)

	observability.DirectoryQueryDuration.WithLabelValues("get").Observe(time.Since(timer).Seconds())

	if err != nil {
		s.log.WithField("member_id", memberID).WithError(err).Error("Failed to get member")
		observability.DirectoryQueriesTotal.WithLabelValues("get", "error").Inc()
		s.writeError(w, http.StatusBadGateway, "directory_unavailable")

		return
	}

	observability.DirectoryQueriesTotal.WithLabelValues("get", "success").Inc()

	if row == nil {
		s.writeError(w, http.StatusNotFound, "member_not_found")

		return
	}

	s.writeJSON(w, row)
}

// displayNameRequest is the body of the display-name admin endpoint.
type displayNameRequest struct {
	DisplayName string `json:"display_name"`
}

// handleSetDisplayName sets a member's display name override.
func (s *service) handleSetDisplayName(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")

	var req displayNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DisplayName == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request")

		return
	}

	if err := s.members.SetDisplayName(r.Context(), memberID, req.DisplayName); err != nil {
		s.writeMemberError(w, memberID, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleClearDisplayName removes a member's display name override.
func (s *service) handleClearDisplayName(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")

	if err := s.members.ClearDisplayName(r.Context(), memberID); err != nil {
		s.writeMemberError(w, memberID, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeMemberError maps members service errors onto HTTP responses.
func (s *service) writeMemberError(w http.ResponseWriter, memberID string, err error) {
	if errors.Is(err, members.ErrMemberNotFound) {
		s.writeError(w, http.StatusNotFound, "member_not_found")

		return
	}

	s.log.WithField("member_id", memberID).WithError(err).Error("Display name update failed")
	s.writeError(w, http.StatusInternalServerError, "internal_error")
}

// writeJSON writes a JSON response body.
func (s *service) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("Failed to encode response")
	}
}

// writeError writes a JSON error response.
func (s *service) writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(map[string]string{"error": code}); err != nil {
		s.log.WithError(err).Error("Failed to encode error response")
	}
}

// Compile-time interface compliance check.
var _ Service = (*service)(nil)
