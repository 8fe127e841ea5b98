package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNoCredential is returned when no API key is configured.
var ErrNoCredential = errors.New("detector: OpenAI API key not configured")

const (
	analysisSeparator = "\n\nContent to analyze:\n"
	describePrompt    = "Describe the content of this image in detail, focusing on any text, documents, or important information visible in the image."
	maxTokens         = 500
)

// ClassifierConfig configures the OpenAI-compatible chat completions client.
type ClassifierConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Prompt  string
	Timeout time.Duration
}

// Verdict is the classifier's opinion on one piece of content.
type Verdict struct {
	HasIDCard bool
	HasPhone  bool
	Analysis  string
}

// Classifier talks to an OpenAI-compatible /chat/completions endpoint.
type Classifier struct {
	apiKey  string
	baseURL string
	model   string
	prompt  string
	client  *http.Client
	log     *zap.SugaredLogger
}

// NewClassifier builds a classifier; it does not contact the endpoint.
func NewClassifier(cfg ClassifierConfig, log *zap.SugaredLogger) *Classifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Classifier{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		prompt:  cfg.Prompt,
		client:  &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

// Enabled reports whether a credential is configured.
func (c *Classifier) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze asks the model to inspect content with the configured prompt and returns its reply.
func (c *Classifier) Analyze(ctx context.Context, content string) (string, error) {
	if !c.Enabled() {
		return "", ErrNoCredential
	}
	return c.complete(ctx, chatMessage{Role: "user", Content: c.prompt + analysisSeparator + content})
}

// Classify runs Analyze and reads the category hints from the lower-cased reply.
func (c *Classifier) Classify(ctx context.Context, content string) (Verdict, error) {
	analysis, err := c.Analyze(ctx, content)
	if err != nil {
		return Verdict{}, err
	}
	lower := strings.ToLower(analysis)
	return Verdict{
		HasIDCard: strings.Contains(lower, "id card") || strings.Contains(lower, "identity card"),
		HasPhone:  strings.Contains(lower, "phone") || strings.Contains(lower, "mobile"),
		Analysis:  analysis,
	}, nil
}

// DescribeImage asks the model for a description of the image at path.
func (c *Classifier) DescribeImage(ctx context.Context, path string) (string, error) {
	if !c.Enabled() {
		return "", ErrNoCredential
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	msg := chatMessage{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: describePrompt},
			{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(raw)}},
		},
	}
	return c.complete(ctx, msg)
}

func (c *Classifier) complete(ctx context.Context, msg chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: []chatMessage{msg}, MaxTokens: maxTokens})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.log.Debugf("POST %s model=%s", endpoint, c.model)
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completions: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("chat completions status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat completions: empty choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
