package middleware

import (
	"fmt"
	"regexp"

	llmclient "blueprintvision/internal/llm/client"
)

var reDataURL = regexp.MustCompile(`(?is)\bdata:(image|video|audio)/[a-z0-9+.-]+;base64,[a-z0-9+/=\r\n]+`)

// Redact replaces the image payload, and any data URL inside the prompt,
// with a short marker so requests can be logged or recorded.
func Redact(req llmclient.VisionRequest) llmclient.VisionRequest {
	if req.ImageData != "" {
		req.ImageData = fmt.Sprintf("[REDACTED %s, %d bytes]", req.MIMEType, len(req.ImageData))
	}
	req.Prompt = reDataURL.ReplaceAllString(req.Prompt, "[REDACTED media]")
	return req
}
