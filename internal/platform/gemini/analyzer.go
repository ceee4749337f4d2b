// Package gemini implements the fit analyzer: a best-effort secondary
// inference call that derives a fit score, pitch and employee count from a
// completed research result.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/prospecthq/prospect-api/internal/config"
	"github.com/prospecthq/prospect-api/internal/domain"
)

var (
	// ErrMissingAPIKey is returned when the analyzer is constructed without credentials.
	ErrMissingAPIKey = errors.New("gemini API key cannot be empty")

	// ErrEmptyResult is returned when there is no research output to analyze.
	ErrEmptyResult = errors.New("research output cannot be empty")
)

// FitAnalyzer derives enrichment from raw research output via the Gemini API.
// It makes a single attempt per result; failures are for the caller to log
// and swallow, never to block the completion they decorate.
type FitAnalyzer struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewFitAnalyzer creates a FitAnalyzer from configuration.
func NewFitAnalyzer(ctx context.Context, cfg config.AnalyzerConfig, logger *slog.Logger) (*FitAnalyzer, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := cfg.ModelName
	if model == "" {
		model = "gemini-2.0-flash"
	}

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &FitAnalyzer{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "fit_analyzer")),
	}, nil
}

// AnalyzeFit runs one structured inference call over the research output and
// returns the parsed enrichment triple. Output that fails schema validation
// yields an error and no partial fields.
func (a *FitAnalyzer) AnalyzeFit(ctx context.Context, output *domain.ResearchOutput) (*domain.FitAnalysis, error) {
	if output == nil || len(output.Raw) == 0 {
		return nil, ErrEmptyResult
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	prompt := buildAnalysisPrompt(output)

	a.logger.Debug("requesting fit analysis",
		slog.String("model", a.model),
		slog.Int("research_bytes", len(output.Raw)))

	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType:  "application/json",
			SystemInstruction: genai.NewContentFromText(analysisSystemPrompt, genai.RoleUser),
		})
	if err != nil {
		return nil, fmt.Errorf("gemini call failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, errors.New("empty response from model")
	}

	analysis, err := ParseAnalysis([]byte(text))
	if err != nil {
		return nil, err
	}

	a.logger.Info("fit analysis produced",
		slog.String("fit_score", analysis.FitScore))
	return analysis, nil
}

// analysisSystemPrompt frames the model as a sales analyst qualifying leads.
const analysisSystemPrompt = `You are a sales analyst qualifying leads for a custom
AI model training company. You extract fit scores and craft concise pitches
from company research reports.`

// buildAnalysisPrompt assembles the user prompt around the raw research document.
func buildAnalysisPrompt(output *domain.ResearchOutput) string {
	var b strings.Builder
	b.WriteString("Based on the following deep research about a company, extract:\n\n")
	b.WriteString("1. A fit score from 1-10 (10 = perfect fit, 1 = no fit)\n")
	b.WriteString("2. A compelling 2-3 sentence pitch for why custom AI models would be valuable to them\n")
	b.WriteString("3. The company's employee count if the research surfaces one ")
	b.WriteString("(a number or a range like \"50-100\" or \"10000+\"; omit if unknown)\n\n")
	b.WriteString("Research:\n")
	b.Write(output.Raw)
	b.WriteString("\n\nRespond with JSON only, in this exact shape:\n")
	b.WriteString(`{"fit_score": "X/10", "pitch": "...", "employee_count": "number or range, or omit"}`)
	return b.String()
}
