package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/promptshield/promptshield/pkg/config"
	"github.com/promptshield/promptshield/pkg/events"
	"github.com/promptshield/promptshield/pkg/logging"
	"github.com/promptshield/promptshield/pkg/pipeline"
	"github.com/promptshield/promptshield/pkg/policy"
	"github.com/promptshield/promptshield/pkg/registry"
	"github.com/promptshield/promptshield/pkg/requestid"
	"github.com/promptshield/promptshield/pkg/session"
)

// Server exposes the guardrail pipeline over HTTP
type Server struct {
	pipe     *pipeline.Pipeline
	pol      *policy.Policy
	sink     events.Sink
	sessions session.Store
	logger   logging.Logger
	debug    bool
}

// New wires a server from the startup registry and configuration
func New(reg *registry.Registry, cfg *config.Config) *Server {
	pipe := pipeline.New(reg.Policy, reg.LLM,
		pipeline.WithEventSink(reg.Sink),
		pipeline.WithLogger(reg.Logger),
		pipeline.WithMLClassifier(reg.Classifier),
		pipeline.WithSystemMessage(cfg.SystemMessage),
	)

	return &Server{
		pipe:     pipe,
		pol:      reg.Policy,
		sink:     reg.Sink,
		sessions: reg.Sessions,
		logger:   reg.Logger,
		debug:    cfg.Debug,
	}
}

// Handler returns the HTTP handler with all routes and middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /shield_prompt", s.handleShieldPrompt)
	mux.HandleFunc("GET /api/policy", s.handleGetPolicy)
	mux.HandleFunc("GET /api/logs", s.handleGetLogs)
	mux.HandleFunc("POST /api/session/reset", s.handleSessionReset)
	return s.withRequestID(s.withRecovery(mux))
}

// ListenAndServe runs the server until the context is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Server listening", map[string]interface{}{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// withRequestID tags every request with a fresh ID, echoed back in the
// X-Request-ID header.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := requestid.New()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(requestid.WithRequestID(r.Context(), id)))
	})
}

// withRecovery is the outermost error boundary: any panic becomes a
// generic internal error. Full detail reaches the caller only in debug
// mode; it is always logged.
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error(r.Context(), "Panic while handling request", map[string]interface{}{
					"panic": rec,
					"path":  r.URL.Path,
				})
				s.writeInternalError(w, rec)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeInternalError(w http.ResponseWriter, detail interface{}) {
	msg := "internal server error"
	if s.debug && detail != nil {
		if err, ok := detail.(error); ok {
			msg = err.Error()
		} else if str, ok := detail.(string); ok {
			msg = str
		}
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
