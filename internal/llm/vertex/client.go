package vertex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/medical-lab/internal/entity"
	"github.com/joseph-ayodele/medical-lab/internal/llm"
)

// Config for the Vertex AI Gemini vision client.
type Config struct {
	ProjectID   string
	Region      string
	Model       string // default gemini-1.5-pro
	Temperature float32
	MaxTokens   int32
	Timeout     time.Duration
	Disabled    bool
}

// Client implements llm.VisionClient on Gemini through Vertex AI.
type Client struct {
	cfg    Config
	client *genai.Client
	model  *genai.GenerativeModel
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("vertex: projectID and region cannot be empty")
	}
	if cfg.Model == "" || strings.HasPrefix(cfg.Model, "gpt-") {
		cfg.Model = "gemini-1.5-pro"
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.1
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	base, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	model := base.GenerativeModel(cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(llm.MedicalExtractionPrompt)},
	}
	model.SetTemperature(cfg.Temperature)
	model.SetMaxOutputTokens(cfg.MaxTokens)

	return &Client{cfg: cfg, client: base, model: model, logger: logger}, nil
}

func (c *Client) Name() string { return "vertex" }

func (c *Client) Available() bool {
	return !c.cfg.Disabled && c.model != nil
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) ExtractImage(ctx context.Context, img []byte, filename string) entity.ExtractionResult {
	if !c.Available() {
		return llm.Unavailable(filename)
	}
	rid := uuid.New().String()
	start := time.Now()

	payload, mimeType, err := llm.EncodeImage(img)
	if err != nil {
		c.logger.Error("llm.vision.encode_error", "req_id", rid, "filename", filename, "error", err)
		return llm.VisionFailure(filename, entity.ErrorKindVisionLLMError, err.Error(), time.Since(start))
	}
	c.logger.Info("llm.vision.start", "req_id", rid, "provider", c.Name(), "model", c.cfg.Model, "filename", filename, "mime", mimeType)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.model.GenerateContent(ctx,
		genai.ImageData(strings.TrimPrefix(mimeType, "image/"), payload),
		genai.Text(llm.UserPrompt(filename)),
	)
	if err != nil {
		msg := "vision llm request failed: " + err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("vision llm timeout after %s", c.cfg.Timeout)
		}
		c.logger.Error("llm.vision.http_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.VisionFailure(filename, entity.ErrorKindVisionLLMError, msg, time.Since(start))
	}

	content := llm.StripFences(responseText(resp))
	if content == "" {
		c.logger.Error("llm.vision.empty_content", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.VisionFailure(filename, entity.ErrorKindVisionLLMError, "empty response from vision model", time.Since(start))
	}
	c.logger.Info("llm.vision.ok", "req_id", rid, "chars", len(content), "elapsed_ms", time.Since(start).Milliseconds())
	return llm.VisionSuccess(filename, img, content, time.Since(start))
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break // first candidate only
	}
	return b.String()
}
