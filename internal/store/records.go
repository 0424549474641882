package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"gorm.io/datatypes"

	"github.com/MarcelCutts/home-finder-sub001/internal/models"
)

// PropertyRecord is the persisted shape of one canonical property. The three
// status axes and the attempt counter live in plain columns so retry queries
// stay cheap; source links are a JSON column.
type PropertyRecord struct {
	ID      string         `gorm:"column:id;primaryKey"`
	Sources datatypes.JSON `gorm:"column:sources;not null"`

	PriceMin int `gorm:"column:price_min"`
	PriceMax int `gorm:"column:price_max"`

	Postcode  string   `gorm:"column:postcode"`
	Outcode   string   `gorm:"column:outcode"`
	Street    string   `gorm:"column:street"`
	Bedrooms  int      `gorm:"column:bedrooms"`
	Bathrooms *int     `gorm:"column:bathrooms"`
	Latitude  *float64 `gorm:"column:latitude"`
	Longitude *float64 `gorm:"column:longitude"`

	Title        string `gorm:"column:title"`
	Description  string `gorm:"column:description"`
	FloorplanURL string `gorm:"column:floorplan_url"`

	FirstSeen time.Time `gorm:"column:first_seen"`

	EnrichmentStatus   string         `gorm:"column:enrichment_status"`
	EnrichmentAttempts int            `gorm:"column:enrichment_attempts"`
	AnalysisStatus     string         `gorm:"column:analysis_status"`
	AnalysisPayload    datatypes.JSON `gorm:"column:analysis_payload"`
	NotificationStatus string         `gorm:"column:notification_status"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`

	Images []PropertyImageRecord `gorm:"foreignKey:PropertyID;references:ID"`
}

func (PropertyRecord) TableName() string { return "properties" }

// PropertyImageRecord is one cached image reference,
// unique per (property_id, url).
type PropertyImageRecord struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	PropertyID string `gorm:"column:property_id;uniqueIndex:uq_property_image"`
	URL        string `gorm:"column:url;uniqueIndex:uq_property_image"`
	Hash       string `gorm:"column:hash"`
}

func (PropertyImageRecord) TableName() string { return "property_images" }

func toRecord(p models.CanonicalProperty) (PropertyRecord, error) {
	if err := p.Validate(); err != nil {
		return PropertyRecord{}, err
	}

	sources, err := json.Marshal(p.Sources)
	if err != nil {
		return PropertyRecord{}, fmt.Errorf("failed to marshal sources for %s: %w", p.ID, err)
	}

	rec := PropertyRecord{
		ID:                 p.ID,
		Sources:            sources,
		PriceMin:           p.PriceMin,
		PriceMax:           p.PriceMax,
		Postcode:           p.Postcode,
		Outcode:            p.Outcode,
		Street:             p.Street,
		Bedrooms:           p.Bedrooms,
		Bathrooms:          p.Bathrooms,
		Title:              p.Title,
		Description:        p.Description,
		FloorplanURL:       p.FloorplanURL,
		FirstSeen:          p.FirstSeen,
		EnrichmentStatus:   string(p.EnrichmentStatus),
		EnrichmentAttempts: p.EnrichmentAttempts,
		AnalysisStatus:     string(p.AnalysisStatus),
		NotificationStatus: string(p.NotificationStatus),
	}
	if p.Coordinates != nil {
		lat, lon := p.Coordinates.Lat(), p.Coordinates.Lon()
		rec.Latitude = &lat
		rec.Longitude = &lon
	}
	for _, img := range p.Images {
		rec.Images = append(rec.Images, PropertyImageRecord{
			PropertyID: p.ID,
			URL:        img.URL,
			Hash:       img.Hash,
		})
	}
	return rec, nil
}

func fromRecord(rec PropertyRecord) (models.CanonicalProperty, error) {
	var sources []models.SourceRef
	if err := json.Unmarshal(rec.Sources, &sources); err != nil {
		return models.CanonicalProperty{}, fmt.Errorf("failed to unmarshal sources for %s: %w", rec.ID, err)
	}

	p := models.CanonicalProperty{
		ID:                 rec.ID,
		Sources:            sources,
		PriceMin:           rec.PriceMin,
		PriceMax:           rec.PriceMax,
		Postcode:           rec.Postcode,
		Outcode:            rec.Outcode,
		Street:             rec.Street,
		Bedrooms:           rec.Bedrooms,
		Bathrooms:          rec.Bathrooms,
		Title:              rec.Title,
		Description:        rec.Description,
		FloorplanURL:       rec.FloorplanURL,
		FirstSeen:          rec.FirstSeen,
		EnrichmentStatus:   models.EnrichmentStatus(rec.EnrichmentStatus),
		EnrichmentAttempts: rec.EnrichmentAttempts,
		AnalysisStatus:     models.AnalysisStatus(rec.AnalysisStatus),
		NotificationStatus: models.NotificationStatus(rec.NotificationStatus),
	}
	if rec.Latitude != nil && rec.Longitude != nil {
		pt := orb.Point{*rec.Longitude, *rec.Latitude}
		p.Coordinates = &pt
	}
	for _, img := range rec.Images {
		p.Images = append(p.Images, models.ImageRef{URL: img.URL, Hash: img.Hash})
	}
	return p, nil
}
