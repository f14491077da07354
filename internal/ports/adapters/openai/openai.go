// Package openai rewrites forum text into a narration script with an
// OpenAI-compatible chat completions endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/forPelevin/storyreel/internal/ports/adapters/apierr"
	"github.com/forPelevin/storyreel/internal/types"
)

const (
	DefaultModel   = "gpt-4o-mini"
	requestTimeout = 3 * time.Minute
	maxTokens      = 4000
	temperature    = 0.3
)

const systemPrompt = "You are an expert text processor that prepares written content for audio narration. " +
	"You preserve all content while improving readability and flow."

// ChatCompleter is the slice of the go-openai client the rewriter needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

type Rewriter struct {
	client ChatCompleter
	model  string
	key    string
}

func New(apiKey, model, baseURL string) *Rewriter {
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = normalizeBaseURL(baseURL)
	return NewWithClient(goopenai.NewClientWithConfig(cfg), apiKey, model)
}

func NewWithClient(c ChatCompleter, apiKey, model string) *Rewriter {
	if model == "" {
		model = DefaultModel
	}
	return &Rewriter{client: c, model: model, key: apiKey}
}

// Rewrite returns text made ready to be read aloud. Nothing is summarized.
func (r *Rewriter) Rewrite(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(reqCtx, goopenai.ChatCompletionRequest{
		Model: r.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: buildPrompt(text)},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("openai timeout after %s (model=%s)", requestTimeout, r.model)
		}
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai status %d: %s", apiErr.HTTPStatusCode, apierr.Truncate(apierr.Redact(apiErr.Message, r.key), 400))
		}
		return "", fmt.Errorf("openai: %s", apierr.Redact(err.Error(), r.key))
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no completion choices returned")
	}

	out := stripFences(resp.Choices[0].Message.Content)
	if out == "" {
		return "", errors.New("openai: empty content")
	}
	return out, nil
}

// Process adapts Rewrite to the inline job adapter.
func (r *Rewriter) Process(ctx context.Context, payload types.Unit, _ string) (types.Unit, error) {
	out, err := r.Rewrite(ctx, payload.Text)
	if err != nil {
		return types.Unit{}, err
	}
	return types.Text(out), nil
}

func buildPrompt(text string) string {
	return "Please process this Reddit post text to make it suitable for audio narration.\n\n" +
		"IMPORTANT REQUIREMENTS:\n" +
		"- DO NOT summarize, shorten, or remove any content\n" +
		"- Keep ALL the story content intact\n" +
		"- Remove Reddit-specific formatting (markdown, links, asterisks, etc.)\n" +
		"- Fix any awkward punctuation or formatting artifacts\n" +
		"- Make it flow naturally when read aloud\n" +
		"- Add appropriate pauses with commas and periods\n" +
		"- Convert \"Update:\" sections to \"Update.\" for better narration\n" +
		"- Remove URLs and hyperlink text but keep the context\n" +
		"- Keep all dialogue and quoted text\n" +
		"- Preserve the chronological order of events\n\n" +
		"Original text:\n" + text + "\n\n" +
		"Return ONLY the processed text, no additional commentary."
}

// stripFences drops a markdown code fence some models wrap plain text in.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	if i := strings.Index(t, "\n"); i >= 0 {
		t = t[i+1:]
	} else {
		return ""
	}
	if j := strings.LastIndex(t, "```"); j >= 0 {
		t = t[:j]
	}
	return strings.TrimSpace(t)
}
