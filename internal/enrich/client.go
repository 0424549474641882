package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MarcelCutts/home-finder-sub001/internal/models"
	"github.com/MarcelCutts/home-finder-sub001/internal/pipeline"
	"github.com/MarcelCutts/home-finder-sub001/internal/store"
)

// Client calls the external enrichment service, which fetches a property's
// detail pages and returns the descriptive payload. Network and server-side
// failures are marked retryable; a rejected request is permanent.
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

type enrichRequest struct {
	PropertyID string             `json:"property_id"`
	Sources    []models.SourceRef `json:"sources"`
}

type enrichResponse struct {
	Description  string `json:"description"`
	FloorplanURL string `json:"floorplan_url"`
	Images       []struct {
		URL  string `json:"url"`
		Hash string `json:"hash"`
	} `json:"images"`
}

func (c *Client) Enrich(ctx context.Context, p models.CanonicalProperty) (*store.Enrichment, error) {
	body, err := json.Marshal(enrichRequest{
		PropertyID: p.ID,
		Sources:    p.Sources,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal enrichment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/enrich", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create enrichment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, pipeline.Retryable(fmt.Errorf("enrichment request failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, pipeline.Retryable(fmt.Errorf("enrichment service returned status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("enrichment service rejected property %s with status %d", p.ID, resp.StatusCode)
	}

	var decoded enrichResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pipeline.Retryable(fmt.Errorf("failed to decode enrichment response: %w", err))
	}

	result := &store.Enrichment{
		Description:  decoded.Description,
		FloorplanURL: decoded.FloorplanURL,
	}
	for _, img := range decoded.Images {
		result.Images = append(result.Images, models.ImageRef{URL: img.URL, Hash: img.Hash})
	}

	c.logger.WithFields(logrus.Fields{
		"property_id": p.ID,
		"images":      len(result.Images),
	}).Debug("Enriched property")

	return result, nil
}
