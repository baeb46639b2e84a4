package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	oracleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stde",
		Subsystem: "oracle",
		Name:      "request_duration_seconds",
		Help:      "Duration of oracle requests",
	}, []string{"model", "operation"})

	oracleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stde",
		Subsystem: "oracle",
		Name:      "request_failures_total",
		Help:      "Number of failed oracle requests",
	}, []string{"model", "operation"})
)

// scoreReportSchema rejects malformed oracle payloads before they reach
// persistence: every score must be an integer in [0,100] and every feedback
// field a string.
const scoreReportSchema = `{
	"type": "object",
	"required": [
		"completenessScore", "completenessFeedback",
		"clarityScore", "clarityFeedback",
		"consistencyScore", "consistencyFeedback",
		"verificationScore", "verificationFeedback",
		"overallScore", "overallFeedback"
	],
	"properties": {
		"completenessScore": {"type": "integer", "minimum": 0, "maximum": 100},
		"completenessFeedback": {"type": "string"},
		"clarityScore": {"type": "integer", "minimum": 0, "maximum": 100},
		"clarityFeedback": {"type": "string"},
		"consistencyScore": {"type": "integer", "minimum": 0, "maximum": 100},
		"consistencyFeedback": {"type": "string"},
		"verificationScore": {"type": "integer", "minimum": 0, "maximum": 100},
		"verificationFeedback": {"type": "string"},
		"overallScore": {"type": "integer", "minimum": 0, "maximum": 100},
		"overallFeedback": {"type": "string"}
	}
}`

var compiledScoreSchema = jsonschema.MustCompileString("score_report.json", scoreReportSchema)

// OracleConfig defines configuration options for the OpenAI-backed oracle.
type OracleConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// Oracle implements Classifier and Scorer against the OpenAI chat completion API.
type Oracle struct {
	client *openai.Client
	cfg    OracleConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOracle builds a new oracle using the provided configuration.
func NewOracle(cfg OracleConfig) (*Oracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	tracer := otel.Tracer("github.com/stde-labs/stde-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	client := openai.NewClientWithConfig(config)

	return &Oracle{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}, nil
}

// Classify asks the oracle whether the content is a software test document.
// An internal reject is returned as (false, nil) so callers fail closed.
func (o *Oracle) Classify(parent context.Context, content string) (bool, error) {
	ctx, span := o.tracer.Start(parent, "openai.classify", trace.WithAttributes(
		attribute.String("model", o.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		MaxTokens:   8,
		Temperature: o.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
	})
	oracleDuration.WithLabelValues(o.cfg.Model, "classify").Observe(time.Since(start).Seconds())
	if err != nil {
		oracleFailures.WithLabelValues(o.cfg.Model, "classify").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("openai classify: %w", err)
	}

	if len(resp.Choices) == 0 {
		oracleFailures.WithLabelValues(o.cfg.Model, "classify").Inc()
		o.logger.Warn().Msg("classifier returned no choices, rejecting document")
		return false, nil
	}

	verdict := resp.Choices[0].Message.Content
	valid := interpretVerdict(verdict)
	if !valid {
		o.logger.Info().Str("verdict", strings.TrimSpace(verdict)).Msg("document rejected by classifier")
	}
	span.SetAttributes(attribute.Bool("valid", valid))

	return valid, nil
}

// Score grades the content and validates the oracle's JSON payload before
// returning it.
func (o *Oracle) Score(parent context.Context, content string) (ScoreReport, error) {
	ctx, span := o.tracer.Start(parent, "openai.score", trace.WithAttributes(
		attribute.String("model", o.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: scorerSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: "Document Content:\n" + content},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	oracleDuration.WithLabelValues(o.cfg.Model, "score").Observe(time.Since(start).Seconds())
	if err != nil {
		oracleFailures.WithLabelValues(o.cfg.Model, "score").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ScoreReport{}, fmt.Errorf("openai score: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		oracleFailures.WithLabelValues(o.cfg.Model, "score").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ScoreReport{}, err
	}

	report, err := parseScoreReport(resp.Choices[0].Message.Content)
	if err != nil {
		oracleFailures.WithLabelValues(o.cfg.Model, "score").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ScoreReport{}, err
	}

	span.SetAttributes(attribute.Int("overall_score", report.OverallScore))
	return report, nil
}

// interpretVerdict accepts only an affirmative leading token. Anything else,
// including hedged answers, rejects.
func interpretVerdict(verdict string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(verdict)), "YES")
}

func parseScoreReport(content string) (ScoreReport, error) {
	trimmed := strings.TrimSpace(content)
	// Some models wrap JSON in a fenced block despite instructions.
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var instance interface{}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return ScoreReport{}, fmt.Errorf("parse score json: %w", err)
	}

	if err := compiledScoreSchema.Validate(instance); err != nil {
		return ScoreReport{}, fmt.Errorf("invalid score payload: %w", err)
	}

	fields, ok := instance.(map[string]interface{})
	if !ok {
		return ScoreReport{}, fmt.Errorf("invalid score payload: not an object")
	}

	return ScoreReport{
		CompletenessScore:    intField(fields, "completenessScore"),
		CompletenessFeedback: stringField(fields, "completenessFeedback"),
		ClarityScore:         intField(fields, "clarityScore"),
		ClarityFeedback:      stringField(fields, "clarityFeedback"),
		ConsistencyScore:     intField(fields, "consistencyScore"),
		ConsistencyFeedback:  stringField(fields, "consistencyFeedback"),
		VerificationScore:    intField(fields, "verificationScore"),
		VerificationFeedback: stringField(fields, "verificationFeedback"),
		OverallScore:         intField(fields, "overallScore"),
		OverallFeedback:      stringField(fields, "overallFeedback"),
	}, nil
}

func intField(fields map[string]interface{}, key string) int {
	switch v := fields[key].(type) {
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func stringField(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}

func classifierSystemPrompt() string {
	return `You are a STRICT document classifier. Determine if this is a SOFTWARE TESTING DOCUMENT (STD).

A VALID STD must contain ACTUAL TEST CONTENT such as:
- Test cases with steps to execute
- Test scenarios or test scripts
- Test results or bug reports
- QA test procedures
- Unit/Integration/System test documentation

REJECT these (they are NOT STDs even if software-related):
- SRS (Software Requirements Specification) - contains requirements, not tests
- FRS (Functional Requirements Specification) - contains features, not tests
- Design Documents - contains architecture, not tests
- User Manuals - contains instructions, not tests
- Project Proposals - contains plans, not tests
- Meeting Minutes, Essays, Resumes, or any non-testing content

Look for keywords like: "Test Case ID", "Test Steps", "Expected Result", "Actual Result",
"Pass/Fail", "Test Scenario", "Preconditions", "Test Data", "Bug Report", "Defect".

If you see mostly REQUIREMENTS (shall, must, should) instead of TEST STEPS, respond "NO".

Respond with ONLY "YES" or "NO".`
}

func scorerSystemPrompt() string {
	return `You are an EXPERT Software Test Document (STD) Evaluator.

CRITICAL INSTRUCTIONS:
- NEVER give the same score for different documents
- NEVER default to scores like 75, 77, 80, or 82
- Actually COUNT the test cases, sections, and issues
- Base scores on SPECIFIC EVIDENCE from the document

=== EVALUATION PROCESS ===

STEP 1: COUNT these elements in the document:
- Number of test cases
- Number of sections (Test Plan, Prerequisites, Test Data, Expected Results, etc.)
- Number of vague phrases ("verify it works", "check output", "should work")
- Number of specific expected results ("displays 'Success' message", "returns 200 OK")

STEP 2: CALCULATE scores based on counts:

1. COMPLETENESS (0-100):
   - 6+ sections with test cases = 90-100
   - 4-5 sections = 75-89
   - 2-3 sections = 50-74
   - 1 section or less = 0-49

2. CLARITY (0-100):
   - 0 vague phrases, all specific = 90-100
   - 1-3 vague phrases = 75-89
   - 4-6 vague phrases = 50-74
   - 7+ vague phrases = 0-49

3. CONSISTENCY (0-100):
   - Uniform format, numbered IDs = 90-100
   - Minor format variations = 75-89
   - Mixed formats = 50-74
   - No consistent structure = 0-49

4. VERIFICATION COVERAGE (0-100):
   Count test scenario types present:
   - Happy path tests
   - Edge case tests
   - Negative/error tests
   - Boundary tests
   - Performance tests
   Score: (types found / 5) * 100, rounded

OVERALL = Average of 4 scores, adjusted for major gaps

IMPORTANT: Different documents MUST get DIFFERENT scores!
- A simple 5-test-case document is not a comprehensive 50-test-case document
- Count actual elements, don't guess

Return ONLY this JSON (no markdown):
{
    "completenessScore": (Integer 0-100 based on section count),
    "completenessFeedback": "Found X sections: [list them]. Missing: [list missing]",
    "clarityScore": (Integer 0-100 based on vague phrase count),
    "clarityFeedback": "Found X vague phrases: [quote them]. X specific results.",
    "consistencyScore": (Integer 0-100 based on format analysis),
    "consistencyFeedback": "Format analysis: [describe structure]",
    "verificationScore": (Integer 0-100 based on test type count),
    "verificationFeedback": "Test types found: [list]. Missing: [list]",
    "overallScore": (Integer 0-100 - average adjusted for gaps),
    "overallFeedback": "Summary with specific counts and recommendations"
}`
}
