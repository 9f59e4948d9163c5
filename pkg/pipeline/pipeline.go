package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/promptshield/promptshield/pkg/classifier"
	"github.com/promptshield/promptshield/pkg/detectors"
	"github.com/promptshield/promptshield/pkg/events"
	"github.com/promptshield/promptshield/pkg/interfaces"
	"github.com/promptshield/promptshield/pkg/logging"
	"github.com/promptshield/promptshield/pkg/policy"
)

// Pipeline runs the guardrail chain for one prompt: harmful-content
// check, injection check, PII redaction, generation, then the mirrored
// response-side pass when the policy enables it. Detectors are built
// once from the policy; a Pipeline is safe for concurrent use.
type Pipeline struct {
	pol *policy.Policy

	reqHarmful   *detectors.HarmfulContent
	reqInjection *detectors.PromptInjection
	reqPII       *detectors.PIIRedactor
	respHarmful  *detectors.HarmfulContent
	respPII      *detectors.PIIRedactor

	llm           interfaces.LLM
	mlClassifier  interfaces.Classifier
	sink          events.Sink
	logger        logging.Logger
	systemMessage string
}

// Option represents an option for configuring the pipeline
type Option func(*Pipeline)

// WithEventSink sets the audit sink for block/redact/terminal events
func WithEventSink(sink events.Sink) Option {
	return func(p *Pipeline) {
		p.sink = sink
	}
}

// WithLogger sets the logger for the pipeline
func WithLogger(logger logging.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMLClassifier sets the classifier backend used by detectors whose
// policy selects the ml strategy. Without one, those detectors fall
// back to the built-in keyword scorer.
func WithMLClassifier(c interfaces.Classifier) Option {
	return func(p *Pipeline) {
		p.mlClassifier = c
	}
}

// WithSystemMessage sets the system message passed to the model
func WithSystemMessage(msg string) Option {
	return func(p *Pipeline) {
		p.systemMessage = msg
	}
}

// New builds a pipeline from a loaded policy and an LLM client.
// Detector strategies are resolved here, once, so request handling
// never re-interprets policy strings.
func New(pol *policy.Policy, llm interfaces.LLM, options ...Option) *Pipeline {
	if pol == nil {
		pol = policy.Default()
	}

	p := &Pipeline{
		pol:    pol,
		llm:    llm,
		logger: logging.New(),
	}
	for _, option := range options {
		option(p)
	}

	keyword := classifier.NewKeywordScorer()
	classifierFor := func(s policy.Strategy) interfaces.Classifier {
		if s == policy.StrategyML && p.mlClassifier != nil {
			return p.mlClassifier
		}
		return keyword
	}

	p.reqHarmful = detectors.NewHarmfulContent(
		pol.Request.HarmfulContent, classifierFor(pol.Request.HarmfulContent.Strategy))
	p.reqInjection = detectors.NewPromptInjection(pol.Request.PromptInjection)
	p.reqPII = detectors.NewPIIRedactor(pol.Request.PIIRedaction)
	p.respHarmful = detectors.NewHarmfulContent(
		pol.Response.HarmfulContent, classifierFor(pol.Response.HarmfulContent.Strategy))
	p.respPII = detectors.NewPIIRedactor(pol.Response.PIIRedaction)

	return p
}

// RunOption adjusts a single pipeline run
type RunOption func(*runConfig)

type runConfig struct {
	history string
}

// WithHistory supplies prior conversation context for the generation
// step. History reaches only the model, as part of the system message;
// the detectors still see the bare prompt.
func WithHistory(history string) RunOption {
	return func(c *runConfig) {
		c.history = history
	}
}

// Run executes the guardrail chain for one prompt. Detector errors
// propagate to the caller; a failed generation does not abort the run
// but degrades into error content with StatusLLMError.
func (p *Pipeline) Run(ctx context.Context, prompt string, options ...RunOption) (*Result, error) {
	var rc runConfig
	for _, option := range options {
		option(&rc)
	}

	res := &Result{OriginalPrompt: prompt, Trace: []TraceStep{}}

	// 1. Harmful content. Disabled steps are skipped entirely: they
	// execute nothing and leave no trace entry.
	if p.reqHarmful.Enabled() {
		dec, err := p.reqHarmful.Evaluate(ctx, prompt)
		if err != nil {
			return nil, err
		}
		res.Trace = append(res.Trace, blockingStep(p.reqHarmful.Name(), string(p.reqHarmful.Strategy()), dec))
		if dec.Blocked {
			res.Status = StatusBlocked
			res.Reason = dec.Reason
			p.emit(ctx, &events.Event{
				Kind:           events.KindBlock,
				Detector:       p.reqHarmful.Name(),
				Status:         string(StatusBlocked),
				Reason:         dec.Reason,
				OriginalPrompt: events.Excerpt(prompt),
			})
			return res, nil
		}
	}

	// 2. Prompt injection
	if p.reqInjection.Enabled() {
		dec, err := p.reqInjection.Evaluate(ctx, prompt)
		if err != nil {
			return nil, err
		}
		res.Trace = append(res.Trace, blockingStep(p.reqInjection.Name(), string(p.reqInjection.Strategy()), dec))
		if dec.Blocked {
			res.Status = StatusBlocked
			res.Reason = dec.Reason
			p.emit(ctx, &events.Event{
				Kind:           events.KindBlock,
				Detector:       p.reqInjection.Name(),
				Status:         string(StatusBlocked),
				Reason:         dec.Reason,
				OriginalPrompt: events.Excerpt(prompt),
			})
			return res, nil
		}
	}

	// 3. PII redaction; the processed text feeds the model whether or
	// not anything changed
	processed := prompt
	if p.reqPII.Enabled() {
		var redacted bool
		var err error
		processed, redacted, err = p.reqPII.Transform(ctx, prompt)
		if err != nil {
			return nil, err
		}
		if redacted {
			p.logger.Info(ctx, "Prompt redacted", map[string]interface{}{
				"detector": p.reqPII.Name(),
			})
			p.emit(ctx, &events.Event{
				Kind:            events.KindRedact,
				Detector:        p.reqPII.Name(),
				Status:          "redacted",
				OriginalPrompt:  events.Excerpt(prompt),
				ProcessedPrompt: events.Excerpt(processed),
			})
		}
		res.Trace = append(res.Trace, transformStep(p.reqPII.Name(), string(p.reqPII.Strategy()), redacted, map[string]interface{}{
			"entity_types": p.reqPII.EntityTypes(),
		}))
	}
	res.ProcessedPrompt = processed

	// 4. Generation. A failure here is degraded into content rather
	// than aborting the run; the status records the degradation.
	text, genErr := p.generate(ctx, processed, rc.history)
	llmStep := TraceStep{Step: "llm_generation", Model: p.llm.Name()}
	degraded := false
	if genErr != nil {
		degraded = true
		text = fmt.Sprintf("Error communicating with LLM: %s", genErr)
		llmStep.Decision = DecisionError
		llmStep.Reason = genErr.Error()
		p.logger.Error(ctx, "LLM generation failed", map[string]interface{}{
			"error": genErr.Error(),
			"model": p.llm.Name(),
		})
		p.emit(ctx, &events.Event{
			Kind:            events.KindError,
			Detector:        "llm_generation",
			Status:          string(StatusLLMError),
			Reason:          genErr.Error(),
			OriginalPrompt:  events.Excerpt(prompt),
			ProcessedPrompt: events.Excerpt(processed),
		})
	} else {
		llmStep.Decision = DecisionOK
	}
	res.Trace = append(res.Trace, llmStep)

	// 5. Optional response screening, mirroring the request side
	final := text
	if p.pol.Response.Enabled {
		if p.respHarmful.Enabled() {
			dec, err := p.respHarmful.Evaluate(ctx, text)
			if err != nil {
				return nil, err
			}
			res.Trace = append(res.Trace, blockingStep("response_"+p.respHarmful.Name(), string(p.respHarmful.Strategy()), dec))
			if dec.Blocked {
				res.Status = StatusBlockedResponse
				res.Reason = dec.Reason
				// The offending output stays in the payload for audit
				res.BlockedOutput = text
				p.emit(ctx, &events.Event{
					Kind:            events.KindBlock,
					Detector:        "response_" + p.respHarmful.Name(),
					Status:          string(StatusBlockedResponse),
					Reason:          dec.Reason,
					OriginalPrompt:  events.Excerpt(prompt),
					ProcessedPrompt: events.Excerpt(processed),
					ResponsePreview: events.Excerpt(text),
				})
				return res, nil
			}
		}

		if p.respPII.Enabled() {
			var respRedacted bool
			var err error
			final, respRedacted, err = p.respPII.Transform(ctx, text)
			if err != nil {
				return nil, err
			}
			if respRedacted {
				p.emit(ctx, &events.Event{
					Kind:            events.KindRedact,
					Detector:        "response_" + p.respPII.Name(),
					Status:          "redacted_response",
					OriginalPrompt:  events.Excerpt(prompt),
					ProcessedPrompt: events.Excerpt(processed),
					ResponsePreview: events.Excerpt(final),
				})
			}
			res.Trace = append(res.Trace, transformStep("response_"+p.respPII.Name(), string(p.respPII.Strategy()), respRedacted, nil))
		}
	}

	res.LLMResponse = final
	if degraded {
		res.Status = StatusLLMError
	} else {
		res.Status = StatusSuccess
	}
	p.emit(ctx, &events.Event{
		Kind:            events.KindSuccess,
		Status:          string(res.Status),
		OriginalPrompt:  events.Excerpt(prompt),
		ProcessedPrompt: events.Excerpt(processed),
		ResponsePreview: events.Excerpt(final),
	})
	return res, nil
}

func (p *Pipeline) generate(ctx context.Context, prompt, history string) (string, error) {
	var opts []interfaces.GenerateOption
	system := p.systemMessage
	if history != "" {
		if system != "" {
			system += "\n\n"
		}
		system += "Context from the conversation so far:\n" + history
	}
	if system != "" {
		opts = append(opts, interfaces.WithSystemMessage(system))
	}
	text, err := p.llm.Generate(ctx, prompt, opts...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (p *Pipeline) emit(ctx context.Context, e *events.Event) {
	if p.sink == nil {
		return
	}
	e.Timestamp = time.Now().UTC()
	if err := p.sink.Append(ctx, e); err != nil {
		p.logger.Error(ctx, "Failed to append audit event", map[string]interface{}{
			"error": err.Error(),
			"kind":  string(e.Kind),
		})
	}
}

func blockingStep(name, strategy string, dec interfaces.Decision) TraceStep {
	step := TraceStep{Step: name, Strategy: strategy, Decision: DecisionAllow}
	if dec.Blocked {
		step.Decision = DecisionBlock
		step.Reason = dec.Reason
	}
	return step
}

func transformStep(name, strategy string, changed bool, meta map[string]interface{}) TraceStep {
	step := TraceStep{Step: name, Strategy: strategy, Decision: DecisionUnchanged, Meta: meta}
	if changed {
		step.Decision = DecisionRedacted
	}
	return step
}
