package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/medprompt/backend/pkg/config"
	"github.com/medprompt/backend/pkg/logger"
)

var ErrOCRUnavailable = errors.New("ocr service is not configured")

// OCRClient posts raw image bytes to an OCR service that answers
// {"text": "..."}.
type OCRClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewOCRClient(cfg config.OCRConfig) *OCRClient {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OCRClient{
		endpoint: cfg.Endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *OCRClient) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	if c.endpoint == "" {
		return "", ErrOCRUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("failed to create ocr request: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call ocr service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ocr service returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode ocr response: %w", err)
	}

	logger.Debug("OCR completed", zap.Int("chars", len(result.Text)))
	return result.Text, nil
}
