package extractor

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
)

// PaddleEngine calls a PaddleOCR hub-serving endpoint (ocr_system).
type PaddleEngine struct {
	url    string
	client *http.Client
}

// NewPaddleEngine targets the given prediction URL, e.g. http://127.0.0.1:8868/predict/ocr_system.
func NewPaddleEngine(url string, timeout time.Duration) *PaddleEngine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PaddleEngine{url: strings.TrimSpace(url), client: &http.Client{Timeout: timeout}}
}

func (p *PaddleEngine) Name() string { return EnginePaddle }

func (p *PaddleEngine) Probe(ctx context.Context) error {
	if p.url == "" {
		return errors.New("paddle serving url not configured")
	}
	return nil
}

type paddleRequest struct {
	Images []string `json:"images"`
}

type paddleResponse struct {
	Msg     string `json:"msg"`
	Status  string `json:"status"`
	Results []struct {
		Data []struct {
			Text       string  `json:"text"`
			Confidence float64 `json:"confidence"`
		} `json:"data"`
	} `json:"results"`
}

// Recognize joins the recognised lines of the first result with spaces.
func (p *PaddleEngine) Recognize(ctx context.Context, imagePath string) (string, error) {
	raw, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	body, err := json.Marshal(paddleRequest{Images: []string{base64.StdEncoding.EncodeToString(raw)}})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("paddle request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paddle status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed paddleResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode paddle response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(parsed.Results[0].Data))
	for _, d := range parsed.Results[0].Data {
		if d.Text != "" {
			parts = append(parts, d.Text)
		}
	}
	return strings.Join(parts, " "), nil
}
