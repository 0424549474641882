package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MarcelCutts/home-finder-sub001/internal/models"
)

// Client calls the external visual quality-analysis service. The payload is
// opaque to the pipeline; any failure here degrades the property instead of
// blocking it.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		logger:  logger,
		client:  &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	PropertyID string   `json:"property_id"`
	ImageURLs  []string `json:"image_urls"`
}

func (c *Client) Analyze(ctx context.Context, p models.CanonicalProperty) (json.RawMessage, error) {
	urls := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		urls = append(urls, img.URL)
	}

	body, err := json.Marshal(analyzeRequest{
		PropertyID: p.ID,
		ImageURLs:  urls,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/analyze", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analysis service returned status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis response: %w", err)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("analysis service returned malformed JSON for %s", p.ID)
	}

	c.logger.WithField("property_id", p.ID).Debug("Analyzed property")
	return payload, nil
}
