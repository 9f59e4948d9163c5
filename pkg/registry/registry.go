package registry

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/promptshield/promptshield/pkg/classifier"
	"github.com/promptshield/promptshield/pkg/config"
	"github.com/promptshield/promptshield/pkg/events"
	"github.com/promptshield/promptshield/pkg/interfaces"
	"github.com/promptshield/promptshield/pkg/llm/gemini"
	"github.com/promptshield/promptshield/pkg/llm/openai"
	"github.com/promptshield/promptshield/pkg/logging"
	"github.com/promptshield/promptshield/pkg/policy"
	"github.com/promptshield/promptshield/pkg/retry"
	"github.com/promptshield/promptshield/pkg/session"
)

// Registry holds the process-wide resources built once at startup: the
// policy, the LLM client, the classifier backend, the audit sink, and
// the session store. It replaces ambient globals with an explicit
// lifecycle: construct before the first request, Close on shutdown.
type Registry struct {
	Policy     *policy.Policy
	LLM        interfaces.LLM
	Classifier interfaces.Classifier
	Sink       events.Sink
	Sessions   session.Store
	Logger     logging.Logger

	closers []io.Closer
}

// New builds the registry from configuration. Construction fails fast:
// a policy or backend that cannot be set up is a startup error, never a
// per-request surprise.
func New(ctx context.Context, cfg *config.Config) (*Registry, error) {
	logger := logging.New(logging.WithLevel(cfg.LogLevel))

	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	r := &Registry{
		Policy: pol,
		Logger: logger,
	}

	sink, err := events.NewJSONLSink(cfg.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	r.Sink = sink
	r.closers = append(r.closers, sink)

	llmClient, err := buildLLM(ctx, cfg, logger)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.LLM = llmClient
	if closer, ok := llmClient.(io.Closer); ok {
		r.closers = append(r.closers, closer)
	}

	if key := cfg.Classifier.APIKey(); key != "" {
		r.Classifier = classifier.NewModerationScorer(key,
			classifier.WithLogger(logger),
			classifier.WithRetry(retry.WithMaxAttempts(3)),
		)
	} else {
		r.Classifier = classifier.NewKeywordScorer()
	}

	sessions, err := buildSessions(cfg)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.Sessions = sessions
	r.closers = append(r.closers, sessions)

	return r, nil
}

// Close tears down every resource the registry owns, in reverse
// construction order. Safe to call more than once.
func (r *Registry) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.closers = nil
	return firstErr
}

func buildLLM(ctx context.Context, cfg *config.Config, logger logging.Logger) (interfaces.LLM, error) {
	apiKey := cfg.LLM.APIKey()

	switch cfg.LLM.Provider {
	case "gemini":
		opts := []gemini.Option{
			gemini.WithLogger(logger),
			gemini.WithRetry(retry.WithMaxAttempts(3), retry.WithInitialInterval(time.Second)),
		}
		if cfg.LLM.Model != "" {
			opts = append(opts, gemini.WithModel(cfg.LLM.Model))
		}
		client, err := gemini.NewClient(ctx, apiKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to build gemini client: %w", err)
		}
		return client, nil

	case "openai":
		opts := []openai.Option{
			openai.WithLogger(logger),
			openai.WithRetry(retry.WithMaxAttempts(3), retry.WithInitialInterval(time.Second)),
		}
		if cfg.LLM.Model != "" {
			opts = append(opts, openai.WithModel(cfg.LLM.Model))
		}
		return openai.NewClient(apiKey, opts...), nil

	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.LLM.Provider)
	}
}

func buildSessions(cfg *config.Config) (session.Store, error) {
	switch cfg.Session.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
		return session.NewRedisStore(client,
			session.WithRedisMaxTurns(cfg.Session.MaxTurns),
			session.WithRedisTTL(cfg.Session.TTL.AsDuration()),
		), nil

	case "memory":
		return session.NewMemoryStore(
			session.WithMaxSessions(cfg.Session.MaxSessions),
			session.WithMaxTurns(cfg.Session.MaxTurns),
			session.WithTTL(cfg.Session.TTL.AsDuration()),
		), nil

	default:
		return nil, fmt.Errorf("unknown session backend: %q", cfg.Session.Backend)
	}
}
