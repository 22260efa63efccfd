package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cathlab/stackcheck/internal/provider"
)

// oaiStreamChunk represents a single SSE chunk from the streaming API.
type oaiStreamChunk struct {
	Choices []oaiStreamChoice `json:"choices"`
	Usage   *oaiUsage         `json:"usage,omitempty"`
}

type oaiStreamChoice struct {
	Delta        oaiStreamDelta `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}

type oaiStreamDelta struct {
	Content string `json:"content,omitempty"`
}

// parseSSEStream reads an SSE response body and emits StreamChunks on the
// returned channel. The channel is closed when the stream ends, either by
// [DONE] or an error. Context cancellation is respected. The body is
// closed when the goroutine exits.
func (p *Provider) parseSSEStream(ctx context.Context, scanner *bufio.Scanner, body io.Closer) <-chan provider.StreamChunk {
	ch := make(chan provider.StreamChunk, 16)

	go func() {
		defer close(ch)
		defer body.Close() //nolint:errcheck // best-effort close

		var usage *provider.TokenUsage
		var finish provider.FinishReason

		for scanner.Scan() {
			if err := ctx.Err(); err != nil {
				ch <- provider.StreamChunk{Err: err}
				return
			}

			line := scanner.Text()

			// SSE format: accept both "data: " (with space) and "data:"
			// (without). Some compatible providers omit the space.
			var data string
			switch {
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case strings.HasPrefix(line, "data:"):
				data = strings.TrimPrefix(line, "data:")
			default:
				continue
			}

			if data == "[DONE]" {
				// Terminal chunk carries the usage record so stream
				// consumers can account tokens.
				if finish == "" {
					finish = provider.FinishReasonStop
				}
				ch <- provider.StreamChunk{FinishReason: finish, Usage: usage}
				return
			}

			var chunk oaiStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				ch <- provider.StreamChunk{Err: fmt.Errorf("parse SSE chunk: %w", err)}
				return
			}

			if chunk.Usage != nil {
				usage = &provider.TokenUsage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					TotalTokens:      chunk.Usage.TotalTokens,
				}
			}

			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				finish = mapFinishReason(*choice.FinishReason)
			}
			if choice.Delta.Content != "" {
				ch <- provider.StreamChunk{Content: choice.Delta.Content}
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			ch <- provider.StreamChunk{Err: fmt.Errorf("read stream: %w", err)}
			return
		}

		// Stream ended without [DONE]; still emit the terminal record.
		if finish == "" {
			finish = provider.FinishReasonStop
		}
		ch <- provider.StreamChunk{FinishReason: finish, Usage: usage}
	}()

	return ch
}
