package scraping

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"github.com/MarcelCutts/home-finder-sub001/internal/models"
)

// SpiderManager launches the per-platform Python spiders and turns their
// output into validated raw listings. One spider process per platform,
// JSON parameters on stdin, JSON messages on stdout.
type SpiderManager struct {
	logger     *logrus.Logger
	scriptPath string
	platforms  []models.Platform
	area       string
}

// SpiderParams contains parameters for running a spider
type SpiderParams struct {
	Platform string `json:"platform"` // e.g. "rightmove"
	Area     string `json:"area"`     // e.g. "london"
}

// SpiderMessage represents a message from the Python script
type SpiderMessage struct {
	Type string          `json:"type"` // "items", "complete", or "error"
	Data json.RawMessage `json:"data"`
}

type scrapedItem struct {
	SourceID  string   `json:"source_id"`
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	PricePCM  int      `json:"price_pcm"`
	Bedrooms  int      `json:"bedrooms"`
	Bathrooms *int     `json:"bathrooms"`
	Postcode  string   `json:"postcode"`
	Street    string   `json:"street"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Images    []struct {
		URL  string `json:"url"`
		Hash string `json:"hash"`
	} `json:"images"`
}

// NewSpiderManager creates a spider manager for the given platforms.
func NewSpiderManager(platforms []models.Platform, area string, logger *logrus.Logger) *SpiderManager {
	scriptPath := filepath.Join("scripts", "run_spider.py")
	absPath, err := filepath.Abs(scriptPath)
	if err != nil {
		logger.WithError(err).Error("Failed to get absolute path to spider script")
		absPath = scriptPath
	}

	return &SpiderManager{
		logger:     logger,
		scriptPath: absPath,
		platforms:  platforms,
		area:       area,
	}
}

// Scrape runs every configured platform spider sequentially and returns the
// validated listings. A failed platform is logged and skipped; one platform
// being down should not lose the run.
func (m *SpiderManager) Scrape(ctx context.Context) ([]models.RawListing, error) {
	var listings []models.RawListing
	for _, platform := range m.platforms {
		batch, err := m.runSpider(ctx, platform)
		if err != nil {
			m.logger.WithError(err).WithField("platform", platform.String()).Error("Spider failed")
			continue
		}
		listings = append(listings, batch...)
	}
	return listings, nil
}

func (m *SpiderManager) runSpider(ctx context.Context, platform models.Platform) ([]models.RawListing, error) {
	m.logger.WithFields(logrus.Fields{
		"platform": platform.String(),
		"area":     m.area,
	}).Info("Starting spider")

	inputData, err := json.Marshal(SpiderParams{
		Platform: platform.String(),
		Area:     m.area,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal spider parameters: %w", err)
	}

	cmd := exec.CommandContext(ctx, "python3", m.scriptPath)
	cmd.Stdin = bytes.NewBuffer(inputData)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start spider: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			m.logger.Error(scanner.Text())
		}
	}()

	var listings []models.RawListing
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var msg SpiderMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			m.logger.WithError(err).Error("Failed to parse spider message")
			continue
		}

		switch msg.Type {
		case "items":
			var items []scrapedItem
			if err := json.Unmarshal(msg.Data, &items); err != nil {
				m.logger.WithError(err).Error("Failed to parse items")
				continue
			}
			listings = append(listings, m.validateItems(platform, items)...)

		case "complete":
			var complete struct {
				Status     string `json:"status"`
				Message    string `json:"message"`
				TotalItems int    `json:"total_items"`
			}
			if err := json.Unmarshal(msg.Data, &complete); err != nil {
				m.logger.WithError(err).Error("Failed to parse completion message")
				continue
			}
			m.logger.WithFields(logrus.Fields{
				"platform":    platform.String(),
				"status":      complete.Status,
				"total_items": complete.TotalItems,
			}).Info("Spider completed")

		case "error":
			var errMsg struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(msg.Data, &errMsg); err != nil {
				m.logger.WithError(err).Error("Failed to parse error message")
				continue
			}
			m.logger.WithField("message", errMsg.Message).Error("Spider error")
		}
	}
	if err := scanner.Err(); err != nil {
		m.logger.WithError(err).Error("Scanner error")
	}

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("spider execution failed: %w", err)
	}

	return listings, nil
}

// validateItems turns scraped items into RawListings, rejecting malformed
// records at this boundary so nothing downstream needs to re-check them.
func (m *SpiderManager) validateItems(platform models.Platform, items []scrapedItem) []models.RawListing {
	now := time.Now().UTC()
	listings := make([]models.RawListing, 0, len(items))
	for _, item := range items {
		attrs := models.ListingAttrs{
			Bathrooms: item.Bathrooms,
			Postcode:  item.Postcode,
			Street:    item.Street,
			FirstSeen: now,
		}
		if item.Latitude != nil && item.Longitude != nil {
			pt := orb.Point{*item.Longitude, *item.Latitude}
			attrs.Coordinates = &pt
		}
		for _, img := range item.Images {
			attrs.Images = append(attrs.Images, models.ImageRef{URL: img.URL, Hash: img.Hash})
		}

		listing, err := models.NewRawListing(platform, item.SourceID, item.URL, item.Title, item.PricePCM, item.Bedrooms, attrs)
		if err != nil {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"platform":  platform.String(),
				"source_id": item.SourceID,
			}).Warn("Dropping malformed scraped item")
			continue
		}
		listings = append(listings, listing)
	}
	return listings
}
