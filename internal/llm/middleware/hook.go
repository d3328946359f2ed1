package middleware

import (
	"context"

	llmclient "blueprintvision/internal/llm/client"
)

// PromptHook defines callbacks around vision requests.
type PromptHook interface {
	Before(ctx context.Context, stage string, req llmclient.VisionRequest)
	After(ctx context.Context, stage string, reply string, err error)
}

type ctxKeyHook struct{}

// WithPromptHook attaches a PromptHook to the context. Middlewares that call
// HookFrom(ctx) can use this to invoke Before/After around requests.
func WithPromptHook(ctx context.Context, hook PromptHook) context.Context {
	return context.WithValue(ctx, ctxKeyHook{}, hook)
}

// HookFrom returns the hook stored in the context.
func HookFrom(ctx context.Context) PromptHook {
	if v := ctx.Value(ctxKeyHook{}); v != nil {
		if h, ok := v.(PromptHook); ok {
			return h
		}
	}
	return nil
}

// WithHooks calls HookFrom(ctx).Before/After around GenerateVision.
// If no hook is present in the context, it is a no-op. The image payload is
// redacted before the hook sees the request.
func WithHooks() Middleware {
	return func(next llmclient.VisionClient) llmclient.VisionClient {
		return &hooked{next: next}
	}
}

type hooked struct{ next llmclient.VisionClient }

func (h *hooked) Name() string { return h.next.Name() }
func (h *hooked) Close() error { return h.next.Close() }
func (h *hooked) GenerateVision(ctx context.Context, req llmclient.VisionRequest) (string, error) {
	stage := llmclient.StageFrom(ctx)
	hook := HookFrom(ctx)
	if hook != nil {
		hook.Before(ctx, stage, Redact(req))
	}
	out, err := h.next.GenerateVision(ctx, req)
	if hook != nil {
		hook.After(ctx, stage, out, err)
	}
	return out, err
}
