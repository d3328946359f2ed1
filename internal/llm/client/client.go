package llmclient

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

var (
	ErrEmptyResponse = errors.New("empty response from vision model")
	ErrInvalidImage  = errors.New("invalid image payload")
)

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// VisionRequest is one image plus instructions sent to the model.
type VisionRequest struct {
	ImageData         string // base64, no data-URL prefix
	MIMEType          string
	Prompt            string
	SystemInstruction string
	// ResponseSchema, when set, asks for JSON matching the schema.
	ResponseSchema *genai.Schema
	Temperature    *float32
}

// VisionClient is the boundary to the external vision model. Callers treat
// any error as "no detections" for the call.
type VisionClient interface {
	Name() string
	Close() error
	GenerateVision(ctx context.Context, req VisionRequest) (string, error)
}
