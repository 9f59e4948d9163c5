package classifier

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/promptshield/promptshield/pkg/logging"
	"github.com/promptshield/promptshield/pkg/retry"
)

// ModerationScorer is the ml harmful-content backend, delegating to the
// OpenAI moderation endpoint. The returned score is the highest
// per-category probability and the category is the one that produced it.
type ModerationScorer struct {
	client        *openai.Client
	model         string
	logger        logging.Logger
	retryExecutor *retry.Executor
}

// ModerationOption represents an option for configuring the scorer
type ModerationOption func(*ModerationScorer)

// WithModerationModel sets the moderation model
func WithModerationModel(model string) ModerationOption {
	return func(s *ModerationScorer) {
		s.model = model
	}
}

// WithLogger sets the logger for the scorer
func WithLogger(logger logging.Logger) ModerationOption {
	return func(s *ModerationScorer) {
		s.logger = logger
	}
}

// WithRetry configures retry policy for moderation calls
func WithRetry(opts ...retry.Option) ModerationOption {
	return func(s *ModerationScorer) {
		s.retryExecutor = retry.NewExecutor(retry.NewPolicy(opts...))
	}
}

// NewModerationScorer creates a moderation-backed classifier
func NewModerationScorer(apiKey string, options ...ModerationOption) *ModerationScorer {
	scorer := &ModerationScorer{
		client: openai.NewClient(apiKey),
		model:  openai.ModerationOmniLatest,
		logger: logging.New(),
	}
	for _, option := range options {
		option(scorer)
	}
	return scorer
}

// Score implements interfaces.Classifier
func (s *ModerationScorer) Score(ctx context.Context, text string) (float64, string, error) {
	req := openai.ModerationRequest{
		Input: text,
		Model: s.model,
	}

	var resp openai.ModerationResponse
	var err error

	operation := func() error {
		resp, err = s.client.Moderations(ctx, req)
		if err != nil {
			s.logger.Error(ctx, "Error from moderation API", map[string]interface{}{
				"error": err.Error(),
				"model": s.model,
			})
			return fmt.Errorf("failed to moderate text: %w", err)
		}
		return nil
	}

	if s.retryExecutor != nil {
		err = s.retryExecutor.Execute(ctx, operation)
	} else {
		err = operation()
	}
	if err != nil {
		return 0, "", err
	}

	if len(resp.Results) == 0 {
		return 0, "", fmt.Errorf("no results from moderation API")
	}

	score, category := maxCategoryScore(resp.Results[0].CategoryScores)
	s.logger.Debug(ctx, "Moderation result", map[string]interface{}{
		"score":    score,
		"category": category,
		"flagged":  resp.Results[0].Flagged,
	})

	return score, category, nil
}

// Name implements interfaces.Classifier
func (s *ModerationScorer) Name() string {
	return "openai_moderation"
}

func maxCategoryScore(scores openai.ResultCategoryScores) (float64, string) {
	categories := []struct {
		name  string
		score float32
	}{
		{"hate", scores.Hate},
		{"hate/threatening", scores.HateThreatening},
		{"harassment", scores.Harassment},
		{"harassment/threatening", scores.HarassmentThreatening},
		{"self-harm", scores.SelfHarm},
		{"self-harm/intent", scores.SelfHarmIntent},
		{"self-harm/instructions", scores.SelfHarmInstructions},
		{"sexual", scores.Sexual},
		{"sexual/minors", scores.SexualMinors},
		{"violence", scores.Violence},
		{"violence/graphic", scores.ViolenceGraphic},
	}

	var best float64
	var bestName string
	for _, c := range categories {
		if float64(c.score) >= best {
			best = float64(c.score)
			bestName = c.name
		}
	}
	if best == 0 {
		bestName = ""
	}
	return best, bestName
}
