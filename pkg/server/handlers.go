package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/promptshield/promptshield/pkg/events"
	"github.com/promptshield/promptshield/pkg/pipeline"
	"github.com/promptshield/promptshield/pkg/session"
)

type shieldRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

type sessionResetRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleShieldPrompt(w http.ResponseWriter, r *http.Request) {
	var req shieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Please provide a 'prompt' in the request body.",
		})
		return
	}

	ctx := r.Context()
	s.logger.Info(ctx, "Received prompt", map[string]interface{}{
		"length":  len(req.Prompt),
		"session": req.SessionID,
	})

	var runOpts []pipeline.RunOption
	if req.SessionID != "" && s.sessions != nil {
		history, err := s.sessions.History(ctx, req.SessionID)
		if err != nil {
			s.logger.Warn(ctx, "Failed to load session history", map[string]interface{}{
				"error": err.Error(),
			})
		} else if len(history) > 0 {
			runOpts = append(runOpts, pipeline.WithHistory(formatHistory(history)))
		}
	}

	res, err := s.pipe.Run(ctx, req.Prompt, runOpts...)
	if err != nil {
		// Detector failures land here; nothing internal leaks unless
		// debug mode is on.
		s.logger.Error(ctx, "Pipeline run failed", map[string]interface{}{
			"error": err.Error(),
		})
		s.writeInternalError(w, err)
		return
	}

	if req.SessionID != "" && s.sessions != nil && res.Status == pipeline.StatusSuccess {
		now := time.Now().UTC()
		for _, turn := range []session.Turn{
			{Role: "user", Content: res.ProcessedPrompt, Timestamp: now},
			{Role: "assistant", Content: res.LLMResponse, Timestamp: now},
		} {
			if err := s.sessions.AddTurn(ctx, req.SessionID, turn); err != nil {
				s.logger.Warn(ctx, "Failed to record session turn", map[string]interface{}{
					"error": err.Error(),
				})
				break
			}
		}
	}

	status := http.StatusOK
	if res.Blocked() {
		status = http.StatusForbidden
	}
	writeJSON(w, status, res)
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pol)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	limit := events.DefaultReadLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("invalid limit: %q", raw),
			})
			return
		}
		limit = parsed
	}

	recent, err := s.sink.ReadRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error(r.Context(), "Failed to read audit log", map[string]interface{}{
			"error": err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Failed to read logs.",
		})
		return
	}

	if recent == nil {
		recent = []events.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": recent})
}

func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	var req sessionResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Please provide a 'session_id' in the request body.",
		})
		return
	}

	if s.sessions != nil {
		if err := s.sessions.Reset(r.Context(), req.SessionID); err != nil {
			s.logger.Error(r.Context(), "Failed to reset session", map[string]interface{}{
				"error": err.Error(),
			})
			s.writeInternalError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func formatHistory(turns []session.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(t.Role)
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
