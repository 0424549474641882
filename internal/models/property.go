package models

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// EnrichmentStatus tracks the detail-fetch axis of a property's lifecycle.
type EnrichmentStatus string

const (
	EnrichmentPending         EnrichmentStatus = "pending"
	EnrichmentDone            EnrichmentStatus = "enriched"
	EnrichmentFailedPermanent EnrichmentStatus = "failed_permanent"
)

// AnalysisStatus tracks the quality-analysis axis.
type AnalysisStatus string

const (
	AnalysisPending  AnalysisStatus = "pending_analysis"
	AnalysisDone     AnalysisStatus = "analyzed"
	AnalysisDegraded AnalysisStatus = "analyzed_degraded"
)

// NotificationStatus tracks the notification axis.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// SourceRef links a canonical property to one platform listing.
type SourceRef struct {
	Platform Platform `json:"platform"`
	SourceID string   `json:"source_id"`
	URL      string   `json:"url"`
}

func (s SourceRef) Key() string {
	return s.Platform.String() + ":" + s.SourceID
}

// CanonicalProperty is the merged identity for one physical rental unit
// across platforms. Its ID is fixed at creation and survives any number of
// later merges and reconciliation runs.
type CanonicalProperty struct {
	ID      string      `json:"id"`
	Sources []SourceRef `json:"sources"`

	PriceMin int `json:"price_min"`
	PriceMax int `json:"price_max"`

	Postcode    string     `json:"postcode,omitempty"`
	Outcode     string     `json:"outcode,omitempty"`
	Street      string     `json:"street,omitempty"`
	Bedrooms    int        `json:"bedrooms"`
	Bathrooms   *int       `json:"bathrooms,omitempty"`
	Coordinates *orb.Point `json:"coordinates,omitempty"`

	Title        string     `json:"title,omitempty"`
	Description  string     `json:"description,omitempty"`
	FloorplanURL string     `json:"floorplan_url,omitempty"`
	Images       []ImageRef `json:"images,omitempty"`

	FirstSeen time.Time `json:"first_seen"`

	EnrichmentStatus   EnrichmentStatus   `json:"enrichment_status"`
	EnrichmentAttempts int                `json:"enrichment_attempts"`
	AnalysisStatus     AnalysisStatus     `json:"analysis_status"`
	NotificationStatus NotificationStatus `json:"notification_status"`
}

// PropertyID derives the stable unique id for a property from its first
// source listing. The same platform+id always yields the same property id.
func PropertyID(platform Platform, sourceID string) string {
	sum := sha1.Sum([]byte(platform.String() + ":" + sourceID))
	return "prop_" + hex.EncodeToString(sum[:])[:16]
}

// CandidateFromListing lifts one raw listing into a singleton canonical
// candidate ready for merging.
func CandidateFromListing(l RawListing) CanonicalProperty {
	return CanonicalProperty{
		ID: PropertyID(l.Platform, l.SourceID),
		Sources: []SourceRef{{
			Platform: l.Platform,
			SourceID: l.SourceID,
			URL:      l.URL,
		}},
		PriceMin:           l.PricePCM,
		PriceMax:           l.PricePCM,
		Postcode:           l.Postcode,
		Outcode:            l.Outcode,
		Street:             l.Street,
		Bedrooms:           l.Bedrooms,
		Bathrooms:          l.Bathrooms,
		Coordinates:        l.Coordinates,
		Title:              l.Title,
		Images:             l.Images,
		FirstSeen:          l.FirstSeen,
		EnrichmentStatus:   EnrichmentPending,
		AnalysisStatus:     AnalysisPending,
		NotificationStatus: NotificationPending,
	}
}

// HasSource reports whether the property already links the given listing.
func (p *CanonicalProperty) HasSource(platform Platform, sourceID string) bool {
	for _, s := range p.Sources {
		if s.Platform == platform && s.SourceID == sourceID {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants every stored property must hold.
func (p *CanonicalProperty) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("property has no id")
	}
	if len(p.Sources) == 0 {
		return fmt.Errorf("property %s has no sources", p.ID)
	}
	if p.PriceMin > p.PriceMax {
		return fmt.Errorf("property %s has min price %d above max price %d", p.ID, p.PriceMin, p.PriceMax)
	}
	if p.EnrichmentAttempts < 0 {
		return fmt.Errorf("property %s has negative enrichment attempts", p.ID)
	}
	return nil
}
