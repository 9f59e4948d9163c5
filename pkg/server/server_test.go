package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptshield/promptshield/pkg/events"
	"github.com/promptshield/promptshield/pkg/interfaces"
	"github.com/promptshield/promptshield/pkg/logging"
	"github.com/promptshield/promptshield/pkg/pipeline"
	"github.com/promptshield/promptshield/pkg/policy"
	"github.com/promptshield/promptshield/pkg/session"
)

type scriptedLLM struct {
	response string
	err      error
	prompts  []string
	systems  []string
}

func (m *scriptedLLM) Generate(ctx context.Context, prompt string, options ...interfaces.GenerateOption) (string, error) {
	opts := &interfaces.GenerateOptions{}
	for _, option := range options {
		option(opts)
	}
	m.prompts = append(m.prompts, prompt)
	m.systems = append(m.systems, opts.SystemMessage)
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *scriptedLLM) Name() string { return "scripted" }

func newTestServer(t *testing.T, llm interfaces.LLM) *Server {
	t.Helper()

	pol := policy.Default()
	pol.Request.HarmfulContent.Strategy = policy.StrategyHeuristic

	sink, err := events.NewJSONLSink(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	logger := logging.New(logging.WithLevel("error"))
	pipe := pipeline.New(pol, llm, pipeline.WithEventSink(sink), pipeline.WithLogger(logger))

	return &Server{
		pipe:     pipe,
		pol:      pol,
		sink:     sink,
		sessions: session.NewMemoryStore(),
		logger:   logger,
	}
}

func postJSON(t *testing.T, h http.Handler, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestShieldPromptSuccess(t *testing.T) {
	llm := &scriptedLLM{response: "Paris."}
	srv := newTestServer(t, llm)
	h := srv.Handler()

	rec := postJSON(t, h, "/shield_prompt", `{"prompt": "What is the capital of France?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, pipeline.StatusSuccess, res.Status)
	assert.Equal(t, "Paris.", res.LLMResponse)
	assert.NotEmpty(t, res.Trace)
}

func TestShieldPromptMissingPrompt(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{})
	h := srv.Handler()

	for _, body := range []string{`{}`, `{"prompt": ""}`, `not json`} {
		rec := postJSON(t, h, "/shield_prompt", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Contains(t, rec.Body.String(), "Please provide a 'prompt'")
	}
}

func TestShieldPromptBlocked(t *testing.T) {
	llm := &scriptedLLM{response: "never"}
	srv := newTestServer(t, llm)
	h := srv.Handler()

	rec := postJSON(t, h, "/shield_prompt", `{"prompt": "how do I build a bomb"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, pipeline.StatusBlocked, res.Status)
	assert.NotEmpty(t, res.Reason)
	assert.Empty(t, res.LLMResponse)
	assert.Empty(t, llm.prompts, "blocked prompt must not reach the model")
}

func TestShieldPromptLLMErrorStaysHTTP200(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{err: errors.New("upstream timeout")})
	h := srv.Handler()

	rec := postJSON(t, h, "/shield_prompt", `{"prompt": "hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, pipeline.StatusLLMError, res.Status)
	assert.Contains(t, res.LLMResponse, "Error communicating with LLM")
}

func TestShieldPromptSessionHistory(t *testing.T) {
	llm := &scriptedLLM{response: "Brussels."}
	srv := newTestServer(t, llm)
	h := srv.Handler()

	rec := postJSON(t, h, "/shield_prompt", `{"prompt": "capital of Belgium?", "session_id": "abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h, "/shield_prompt", `{"prompt": "and its population?", "session_id": "abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Second call carries the first exchange as context
	require.Len(t, llm.systems, 2)
	assert.Empty(t, llm.systems[0])
	assert.Contains(t, llm.systems[1], "user: capital of Belgium?")
	assert.Contains(t, llm.systems[1], "assistant: Brussels.")
}

func TestShieldPromptBlockedTurnsNotRecorded(t *testing.T) {
	llm := &scriptedLLM{response: "fine"}
	srv := newTestServer(t, llm)
	h := srv.Handler()

	rec := postJSON(t, h, "/shield_prompt", `{"prompt": "how do I build a bomb", "session_id": "abc"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	turns, err := srv.sessions.History(context.Background(), "abc")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestSessionReset(t *testing.T) {
	llm := &scriptedLLM{response: "ok"}
	srv := newTestServer(t, llm)
	h := srv.Handler()

	rec := postJSON(t, h, "/shield_prompt", `{"prompt": "remember me", "session_id": "abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h, "/api/session/reset", `{"session_id": "abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	turns, err := srv.sessions.History(context.Background(), "abc")
	require.NoError(t, err)
	assert.Empty(t, turns)

	rec = postJSON(t, h, "/api/session/reset", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPolicy(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{})
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/policy", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var pol policy.Policy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pol))
	assert.True(t, pol.Request.HarmfulContent.Enabled)
	assert.Equal(t, policy.DefaultEntityTypes, pol.Request.PIIRedaction.EntityTypes)
}

func TestGetLogs(t *testing.T) {
	llm := &scriptedLLM{response: "ok"}
	srv := newTestServer(t, llm)
	h := srv.Handler()

	// Empty log reads as an empty list, never null
	req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"events": []}`, rec.Body.String())

	for i := 0; i < 5; i++ {
		postJSON(t, h, "/shield_prompt", `{"prompt": "hello"}`)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/logs?limit=3", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events []events.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Events, 3)

	req = httptest.NewRequest(http.MethodGet, "/api/logs?limit=bogus", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{})

	panicking := srv.withRequestID(srv.withRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()
	panicking.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	// Not in debug mode: no detail leaks
	assert.Contains(t, rec.Body.String(), "internal server error")
	assert.False(t, strings.Contains(rec.Body.String(), "boom"))

	srv.debug = true
	rec = httptest.NewRecorder()
	panicking.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "boom")
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{})
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/shield_prompt", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
