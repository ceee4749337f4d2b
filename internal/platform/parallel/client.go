// Package parallel implements the HTTP client for the Parallel.ai task-run
// API: dispatching research runs, fetching results, and querying run status.
package parallel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prospecthq/prospect-api/internal/config"
	"github.com/prospecthq/prospect-api/internal/domain"
)

// Run status values reported by the processor.
const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// webhookBetaHeader opts the dispatch call into webhook delivery.
const webhookBetaHeader = "webhook-2025-08-12"

var (
	// ErrMissingAPIKey is returned when the client is constructed without credentials.
	ErrMissingAPIKey = errors.New("processor API key cannot be empty")

	// ErrMissingRunID is returned when a run-scoped call is made without a run ID.
	ErrMissingRunID = errors.New("run ID cannot be empty")
)

// RunStatus is the processor's view of a single run.
type RunStatus struct {
	Status string `json:"status"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ErrorMessage returns the processor-supplied failure reason, or the empty
// string when none was reported.
func (s *RunStatus) ErrorMessage() string {
	if s.Error == nil {
		return ""
	}
	return s.Error.Message
}

// Client calls the processor's task-run API. Every call is bounded by the
// configured request timeout so one slow call cannot stall unrelated work.
type Client struct {
	cfg        config.ProcessorConfig
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a processor client from configuration.
// webhookURL is the public completion-notification endpoint; runs are
// dispatched without webhook delivery unless it is an https URL.
func NewClient(cfg config.ProcessorConfig, webhookURL string, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		cfg:        cfg,
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "parallel_client")),
	}, nil
}

// createRunRequest is the dispatch payload.
type createRunRequest struct {
	Input     string            `json:"input"`
	Processor string            `json:"processor"`
	Webhook   *webhookConfig    `json:"webhook,omitempty"`
	Metadata  map[string]string `json:"metadata"`
}

type webhookConfig struct {
	URL        string   `json:"url"`
	EventTypes []string `json:"event_types"`
}

// CreateRun dispatches a research run for the given company URL. The company
// ID rides along as opaque metadata so later notifications can be correlated
// back to the row. Returns the processor's run ID.
func (c *Client) CreateRun(ctx context.Context, companyID uuid.UUID, companyURL string) (string, error) {
	reqBody := createRunRequest{
		Input:     buildResearchInput(companyURL),
		Processor: c.processorName(),
		Metadata:  map[string]string{"company_id": companyID.String()},
	}

	// Webhook delivery is best-effort; only register endpoints the processor
	// can actually reach over TLS. Unreachable runs converge via the sweep.
	registerWebhook := strings.HasPrefix(c.webhookURL, "https://")
	if registerWebhook {
		reqBody.Webhook = &webhookConfig{
			URL:        c.webhookURL,
			EventTypes: []string{"task_run.status"},
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal dispatch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint("/v1/tasks/runs"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if registerWebhook {
		req.Header.Set("parallel-beta", webhookBetaHeader)
	}

	raw, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("dispatch run: %w", err)
	}

	var resp struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode dispatch response: %w", err)
	}
	if resp.RunID == "" {
		return "", fmt.Errorf("dispatch response missing run_id")
	}

	c.logger.Info("research run dispatched",
		slog.String("company_id", companyID.String()),
		slog.String("run_id", resp.RunID),
		slog.Bool("webhook_registered", registerWebhook))
	return resp.RunID, nil
}

// FetchResult retrieves the full result document for a completed run and
// decodes it once into its typed view.
func (c *Client) FetchResult(ctx context.Context, runID string) (*domain.ResearchOutput, error) {
	if runID == "" {
		return nil, ErrMissingRunID
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint("/v1/tasks/runs/"+runID+"/result"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)

	raw, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch result for run %s: %w", runID, err)
	}

	var resp struct {
		Output json.RawMessage `json:"output"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode result for run %s: %w", runID, err)
	}
	if len(resp.Output) == 0 {
		return nil, fmt.Errorf("result for run %s carries no output", runID)
	}

	output := domain.ParseResearchOutput(resp.Output)
	return &output, nil
}

// GetRunStatus queries the processor directly for a run's current status,
// bypassing the notification channel.
func (c *Client) GetRunStatus(ctx context.Context, runID string) (*RunStatus, error) {
	if runID == "" {
		return nil, ErrMissingRunID
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint("/v1/tasks/runs/"+runID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)

	raw, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("query status for run %s: %w", runID, err)
	}

	var status RunStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("decode status for run %s: %w", runID, err)
	}
	return &status, nil
}

// do executes the request and returns the response body, treating any
// non-2xx status as an error carrying the body text.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("processor http error: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("processor response body close error", slog.String("error", err.Error()))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read processor response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("processor status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *Client) processorName() string {
	if c.cfg.Name != "" {
		return c.cfg.Name
	}
	return "base"
}

// buildResearchInput assembles the research instruction for a company URL.
func buildResearchInput(companyURL string) string {
	var b strings.Builder
	b.WriteString("Research this company: ")
	b.WriteString(companyURL)
	b.WriteString("\n\n")
	b.WriteString(researchInstructions)
	return b.String()
}

// researchInstructions is the standing instruction block appended to every
// dispatch. Kept deliberately short here; the research depth lives with the
// processor configuration, not this service.
const researchInstructions = `Produce a deep research report on the company behind this URL.
Cover: what the company does, its products, target market, team size,
funding, and current AI/ML usage. Include an executive_summary field.`
