package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/joseph-ayodele/medical-lab/internal/entity"
	"github.com/joseph-ayodele/medical-lab/internal/llm"
)

// ExtractImage implements llm.VisionClient with one chat completion carrying
// the medical prompt and the image as a data URL.
func (c *Client) ExtractImage(ctx context.Context, img []byte, filename string) entity.ExtractionResult {
	if !c.Available() {
		c.logger.Warn("llm.vision.unavailable", "provider", c.Name(), "filename", filename)
		return llm.Unavailable(filename)
	}

	rid := uuid.New().String()
	start := time.Now()

	payload, mimeType, err := llm.EncodeImage(img)
	if err != nil {
		c.logger.Error("llm.vision.encode_error", "req_id", rid, "filename", filename, "error", err)
		return llm.VisionFailure(filename, entity.ErrorKindVisionLLMError, err.Error(), time.Since(start))
	}

	c.logger.Info("llm.vision.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"filename", filename,
		"mime", mimeType,
		"image_bytes", len(payload),
	)

	req := goopenai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role: goopenai.ChatMessageRoleUser,
				MultiContent: []goopenai.ChatMessagePart{
					{
						Type: goopenai.ChatMessagePartTypeText,
						Text: llm.MedicalExtractionPrompt + "\n\n" + llm.UserPrompt(filename),
					},
					{
						Type: goopenai.ChatMessagePartTypeImageURL,
						ImageURL: &goopenai.ChatMessageImageURL{
							URL:    llm.DataURL(payload, mimeType),
							Detail: goopenai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		msg := describeError(err, c.cfg.Timeout)
		c.logger.Error("llm.vision.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.VisionFailure(filename, entity.ErrorKindVisionLLMError, msg, time.Since(start))
	}
	if len(resp.Choices) == 0 {
		c.logger.Error("llm.vision.no_choices", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.VisionFailure(filename, entity.ErrorKindVisionLLMError, "no choices in vision response", time.Since(start))
	}
	content := llm.StripFences(resp.Choices[0].Message.Content)
	if content == "" {
		c.logger.Error("llm.vision.empty_content", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.VisionFailure(filename, entity.ErrorKindVisionLLMError, "empty response from vision model", time.Since(start))
	}

	c.logger.Info("llm.vision.ok",
		"req_id", rid,
		"chars", len(content),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return llm.VisionSuccess(filename, img, content, time.Since(start))
}

func describeError(err error, timeout time.Duration) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Sprintf("vision llm timeout after %s", timeout)
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("vision llm status %d: %s", apiErr.HTTPStatusCode, strings.TrimSpace(apiErr.Message))
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Sprintf("vision llm status %d: %v", reqErr.HTTPStatusCode, reqErr.Err)
	}
	return "vision llm request failed: " + err.Error()
}
