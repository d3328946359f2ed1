package llmclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
// It only focuses on the API call itself. Cross-cutting concerns
// (rate limiting, retries, logging, hooks) are applied via Middleware.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	cfg := &genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	// an empty key lets genai fall back to GEMINI_API_KEY / GOOGLE_API_KEY
	if k := strings.TrimSpace(apiKey); k != "" {
		cfg.APIKey = k
	}
	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }

// GenerateVision sends the image inline with the prompt and returns the text
// of the first candidate.
func (g *GeminiClient) GenerateVision(ctx context.Context, req VisionRequest) (string, error) {
	img, err := base64.StdEncoding.DecodeString(req.ImageData)
	if err != nil || len(img) == 0 {
		return "", NewPermanentError(fmt.Errorf("%w: %v", ErrInvalidImage, err))
	}
	mime := req.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img, mime),
			genai.NewPartFromText(req.Prompt),
		}, genai.RoleUser),
	}

	cfg := &genai.GenerateContentConfig{Temperature: req.Temperature}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.ResponseSchema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = req.ResponseSchema
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", classify(err)
	}
	txt := strings.TrimSpace(resp.Text())
	if txt == "" {
		return "", ErrEmptyResponse
	}
	return txt, nil
}

// classify marks client-side API failures as permanent. Throttling and
// timeouts stay retryable.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code == http.StatusRequestTimeout:
			return err
		case apiErr.Code >= 400 && apiErr.Code < 500:
			return NewPermanentError(err)
		}
	}
	return err
}
