package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vbonduro/mealsnap/internal/vision"
)

type OllamaAnalyzer struct {
	host   string
	model  string
	client *http.Client
	logger *slog.Logger
}

func NewOllamaAnalyzer(host, model string, logger *slog.Logger) *OllamaAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaAnalyzer{
		host:   host,
		model:  model,
		client: &http.Client{},
		logger: logger,
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images"`
	Format  string         `json:"format"`
	Stream  bool           `json:"stream"`
	Options map[string]int `json:"options,omitempty"`
}

func (a *OllamaAnalyzer) Analyze(ctx context.Context, r io.Reader, mimeType string) (*vision.Estimate, error) {
	imageData, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(imageData) == 0 {
		return nil, vision.NewError(vision.NoImageProvided, nil)
	}

	payload, err := json.Marshal(generateRequest{
		Model:   a.model,
		Prompt:  vision.AnalysisPrompt,
		Images:  []string{base64.StdEncoding.EncodeToString(imageData)},
		Format:  "json",
		Stream:  false,
		Options: map[string]int{"num_predict": vision.MaxTokens},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, vision.NewError(vision.UpstreamOther, fmt.Errorf("failed to call ollama: %w", err))
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Error("failed to close ollama response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		a.logger.Error("ollama request failed", "model", a.model, "status", resp.StatusCode)
		return nil, vision.NewError(vision.StatusKind(resp.StatusCode),
			fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, bytes.TrimSpace(errBody)))
	}

	var respBody struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return nil, vision.NewError(vision.UpstreamOther, fmt.Errorf("failed to decode response: %w", err))
	}

	est, err := vision.ParseEstimate(respBody.Response)
	if err != nil {
		a.logger.Warn("ollama returned an unusable estimate", "model", a.model, "error", err)
		return nil, vision.NewError(vision.UpstreamOther, fmt.Errorf("failed to parse ollama response: %w", err))
	}
	return est, nil
}
