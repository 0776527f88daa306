package claude

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/vbonduro/mealsnap/internal/vision"
)

const DefaultModel = "claude-3-5-sonnet-20241022"

type ClaudeAnalyzer struct {
	apiKey string
	model  string
	client *anthropic.Client
	logger *slog.Logger
}

// NewClaudeAnalyzer builds an analyzer for the Anthropic Messages API.
// baseURL may be empty to use the public endpoint.
func NewClaudeAnalyzer(apiKey, model, baseURL string, logger *slog.Logger) *ClaudeAnalyzer {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &ClaudeAnalyzer{
		apiKey: apiKey,
		model:  model,
		client: anthropic.NewClient(apiKey, opts...),
		logger: logger,
	}
}

// CheckConfig reports MissingCredentials when no API key is set.
func (a *ClaudeAnalyzer) CheckConfig() error {
	if a.apiKey == "" {
		return vision.NewError(vision.MissingCredentials, nil)
	}
	return nil
}

func (a *ClaudeAnalyzer) Analyze(ctx context.Context, r io.Reader, mimeType string) (*vision.Estimate, error) {
	if err := a.CheckConfig(); err != nil {
		return nil, err
	}

	imageData, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(imageData) == 0 {
		return nil, vision.NewError(vision.NoImageProvided, nil)
	}

	resp, err := a.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model: anthropic.Model(a.model),
		Messages: []anthropic.Message{{
			Role: anthropic.RoleUser,
			Content: []anthropic.MessageContent{
				anthropic.NewTextMessageContent(vision.AnalysisPrompt),
				anthropic.NewImageMessageContent(anthropic.NewMessageContentSource(
					anthropic.MessagesContentSourceTypeBase64,
					normaliseMIME(mimeType),
					base64.StdEncoding.EncodeToString(imageData),
				)),
			},
		}},
		MaxTokens: vision.MaxTokens,
	})
	if err != nil {
		a.logger.Error("claude request failed", "model", a.model, "error", err)
		return nil, classify(err)
	}

	text := resp.GetFirstContentText()
	est, err := vision.ParseEstimate(text)
	if err != nil {
		a.logger.Warn("claude returned an unusable estimate", "model", a.model, "error", err)
		return nil, vision.NewError(vision.UpstreamOther, fmt.Errorf("failed to parse claude response: %w", err))
	}
	return est, nil
}

// classify maps a client error onto the failure taxonomy.
func classify(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case "authentication_error", "permission_error":
			return vision.NewError(vision.UpstreamUnauthorized, err)
		case "rate_limit_error", "overloaded_error":
			return vision.NewError(vision.UpstreamRateLimited, err)
		case "invalid_request_error", "request_too_large":
			return vision.NewError(vision.UpstreamBadRequest, err)
		}
		return vision.NewError(vision.UpstreamOther, err)
	}

	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		return vision.NewError(vision.StatusKind(reqErr.StatusCode), err)
	}
	return vision.NewError(vision.UpstreamOther, err)
}

// normaliseMIME maps browser MIME types to the values the Anthropic API accepts.
// The Anthropic API accepts only jpeg, png, gif, and webp. Unknown types are
// coerced to jpeg.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}
