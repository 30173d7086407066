package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/goreliks/pdf-hunter-sub000/internal/evidence"
	"github.com/goreliks/pdf-hunter-sub000/internal/mission"
)

// GeminiConfig configures the Gemini-backed gateway.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// GeminiGateway implements Gateway against the Google Gemini API.
type GeminiGateway struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiGateway creates a Gemini-backed reasoning gateway.
func NewGeminiGateway(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiGateway{
		client: client,
		model:  cfg.Model,
		logger: logger.Named("gateway"),
	}, nil
}

// generate sends one prompt and decodes the JSON reply into out.
// Deadline errors are mapped to ErrTimeout; decode failures to
// ErrMalformedResponse. Neither is retried here: retry policy belongs to
// the orchestrator, which treats both as recoverable at mission or
// session granularity.
func (g *GeminiGateway) generate(ctx context.Context, call, system, user string, out any) error {
	g.logger.Debug("gateway call",
		zap.String("call", call),
		zap.String("model", g.model),
		zap.Int("prompt_len", len(user)))

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.2),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(user), cfg)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s: %v", ErrTimeout, call, err)
		}
		return fmt.Errorf("gateway %s: %w", call, err)
	}

	text := cleanJSONResponse(resp.Text())
	if err := json.Unmarshal([]byte(text), out); err != nil {
		g.logger.Warn("undecodable gateway reply",
			zap.String("call", call),
			zap.Int("reply_len", len(text)),
			zap.Error(err))
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, call, err)
	}
	return nil
}

// Classify implements Gateway.
func (g *GeminiGateway) Classify(ctx context.Context, scan ScanSummary) (TriageResult, error) {
	var out TriageResult
	err := g.generate(ctx, "classify", classifySystemPrompt, buildClassifyPrompt(scan), &out)
	return out, err
}

// InvestigateStep implements Gateway.
func (g *GeminiGateway) InvestigateStep(ctx context.Context, m mission.Mission, transcript []Turn) (StepResult, error) {
	var out StepResult
	err := g.generate(ctx, "investigate_step", investigateSystemPrompt, buildInvestigatePrompt(m, transcript), &out)
	if err != nil {
		return out, err
	}
	if out.ToolCall == nil && out.Verdict == nil {
		return out, fmt.Errorf("%w: step has neither tool call nor verdict", ErrMalformedResponse)
	}
	return out, nil
}

// MergeGraphs implements Gateway.
func (g *GeminiGateway) MergeGraphs(ctx context.Context, master *evidence.Graph, fragments []*evidence.Graph) (*evidence.Graph, error) {
	prompt, err := buildMergePrompt(master, fragments)
	if err != nil {
		return nil, fmt.Errorf("gateway merge: %w", err)
	}
	merged := evidence.NewGraph()
	if err := g.generate(ctx, "merge", mergeSystemPrompt, prompt, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Review implements Gateway.
func (g *GeminiGateway) Review(ctx context.Context, master *evidence.Graph, reports []mission.Report) (ReviewResult, error) {
	prompt, err := buildReviewPrompt(master, reports)
	if err != nil {
		return ReviewResult{}, fmt.Errorf("gateway review: %w", err)
	}
	var out ReviewResult
	if err := g.generate(ctx, "review", reviewSystemPrompt, prompt, &out); err != nil {
		return ReviewResult{}, err
	}
	return out, nil
}

// Finalize implements Gateway.
func (g *GeminiGateway) Finalize(ctx context.Context, master *evidence.Graph, reports []mission.Report, iocs []string) (FinalReport, error) {
	prompt, err := buildFinalizePrompt(master, reports, iocs)
	if err != nil {
		return FinalReport{}, fmt.Errorf("gateway finalize: %w", err)
	}
	var out FinalReport
	if err := g.generate(ctx, "finalize", finalizeSystemPrompt, prompt, &out); err != nil {
		return FinalReport{}, err
	}
	return out, nil
}
