package dedup

import (
	"io"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcelCutts/home-finder-sub001/config"
	"github.com/MarcelCutts/home-finder-sub001/internal/match"
	"github.com/MarcelCutts/home-finder-sub001/internal/models"
)

func testEngine(mode Mode) *Engine {
	cfg := &config.Config{}
	cfg.Matching.FullPostcodeScore = 40
	cfg.Matching.OutcodeScore = 10
	cfg.Matching.CoordinateScore = 40
	cfg.Matching.StreetScore = 20
	cfg.Matching.PriceScore = 15
	cfg.Matching.ImageHashScore = 40
	cfg.Matching.CoordinateFullMeters = 50
	cfg.Matching.CoordinateMaxMeters = 150
	cfg.Matching.PriceFullPct = 0.03
	cfg.Matching.PriceMaxPct = 0.10
	cfg.Matching.ImageHashMaxDistance = 8
	cfg.Matching.ImageHashEnabled = true
	cfg.Matching.MatchThreshold = 55
	cfg.Matching.MinSignals = 2

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewEngine(match.NewMatcher(cfg), logger, mode)
}

func candidate(platform models.Platform, sourceID string, firstSeen time.Time, mutate func(*models.CanonicalProperty)) models.CanonicalProperty {
	p := models.CanonicalProperty{
		ID:       models.PropertyID(platform, sourceID),
		Sources:  []models.SourceRef{{Platform: platform, SourceID: sourceID, URL: "https://" + platform.String() + ".test/" + sourceID}},
		PriceMin: 1800,
		PriceMax: 1800,
		Bedrooms: 2,
		Outcode:  "E8",
		Title:    "2 bed flat",

		EnrichmentStatus:   models.EnrichmentPending,
		AnalysisStatus:     models.AnalysisPending,
		NotificationStatus: models.NotificationPending,
		FirstSeen:          firstSeen,
	}
	if mutate != nil {
		mutate(&p)
	}
	return p
}

var (
	day1 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	day3 = time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)

	pointA = orb.Point{-0.0754, 51.5412}
	pointB = orb.Point{-0.0754, 51.54147}
)

func TestDeduplicateTransitiveClosure(t *testing.T) {
	e := testEngine(ModeMerge)

	// a matches b on full postcode, b matches c on coordinates and street,
	// but a and c share only outcode and price. Transitive closure still
	// collapses all three.
	a := candidate(models.PlatformRightmove, "a", day1, func(p *models.CanonicalProperty) {
		p.Postcode = "E8 3RH"
	})
	b := candidate(models.PlatformZoopla, "b", day2, func(p *models.CanonicalProperty) {
		p.Postcode = "E8 3RH"
		p.Street = "kingsland road"
		p.Coordinates = &pointA
	})
	c := candidate(models.PlatformOpenRent, "c", day3, func(p *models.CanonicalProperty) {
		p.Street = "kingsland road"
		p.Coordinates = &pointB
	})

	out := e.Deduplicate([]models.CanonicalProperty{a, b, c})
	require.Len(t, out, 1)

	merged := out[0]
	assert.Equal(t, a.ID, merged.ID, "merged record keeps the earliest-seen member's id")
	assert.Len(t, merged.Sources, 3)
	assert.Equal(t, "E8 3RH", merged.Postcode)
	assert.Equal(t, day1, merged.FirstSeen)
}

func TestDeduplicateIdempotent(t *testing.T) {
	e := testEngine(ModeMerge)

	in := []models.CanonicalProperty{
		candidate(models.PlatformRightmove, "a", day1, func(p *models.CanonicalProperty) {
			p.Postcode = "E8 3RH"
		}),
		candidate(models.PlatformZoopla, "b", day2, func(p *models.CanonicalProperty) {
			p.Postcode = "E8 3RH"
		}),
		candidate(models.PlatformOpenRent, "c", day1, func(p *models.CanonicalProperty) {
			p.Outcode = "N1"
		}),
	}

	once := e.Deduplicate(in)
	twice := e.Deduplicate(once)

	assert.Equal(t, once, twice)
	assert.LessOrEqual(t, len(once), len(in))
}

func TestDeduplicateSameIDAlwaysMerges(t *testing.T) {
	e := testEngine(ModeMerge)

	// Same platform listing seen twice with disagreeing bedroom counts: no
	// blocking group contains both, but identical ids union regardless.
	a := candidate(models.PlatformRightmove, "a", day1, nil)
	b := candidate(models.PlatformRightmove, "a", day2, func(p *models.CanonicalProperty) {
		p.Bedrooms = 3
		p.PriceMin, p.PriceMax = 1900, 1900
	})

	out := e.Deduplicate([]models.CanonicalProperty{a, b})
	require.Len(t, out, 1)
	assert.Equal(t, 1800, out[0].PriceMin)
	assert.Equal(t, 1900, out[0].PriceMax)
	assert.Len(t, out[0].Sources, 1, "the same source link is not duplicated")
}

func TestDeduplicateBlockingSeparatesBedrooms(t *testing.T) {
	e := testEngine(ModeMerge)

	a := candidate(models.PlatformRightmove, "a", day1, func(p *models.CanonicalProperty) {
		p.Postcode = "E8 3RH"
	})
	b := candidate(models.PlatformZoopla, "b", day1, func(p *models.CanonicalProperty) {
		p.Postcode = "E8 3RH"
		p.Bedrooms = 3
	})

	out := e.Deduplicate([]models.CanonicalProperty{a, b})
	assert.Len(t, out, 2, "disagreeing bedroom counts never compare")
}

func TestSynthesizeTieBreaks(t *testing.T) {
	root := candidate(models.PlatformRightmove, "a", day1, func(p *models.CanonicalProperty) {
		p.Description = "short"
		p.FloorplanURL = "https://cdn.test/plan.pdf"
		p.Images = []models.ImageRef{{URL: "https://img.test/1.jpg"}}
	})
	other := candidate(models.PlatformZoopla, "b", day2, func(p *models.CanonicalProperty) {
		p.PriceMin, p.PriceMax = 1750, 1750
		p.Description = "a considerably longer description"
		p.FloorplanURL = "https://cdn.test/plan.png?size=large"
		p.Postcode = "E8 3RH"
		p.Images = []models.ImageRef{
			{URL: "https://img.test/1.jpg"},
			{URL: "https://img.test/2.jpg"},
		}
	})

	merged := Synthesize([]models.CanonicalProperty{other, root})

	assert.Equal(t, root.ID, merged.ID)
	assert.Equal(t, 1750, merged.PriceMin)
	assert.Equal(t, 1800, merged.PriceMax)
	assert.Equal(t, "a considerably longer description", merged.Description)
	assert.Equal(t, "https://cdn.test/plan.png?size=large", merged.FloorplanURL,
		"document floorplans lose to image floorplans")
	assert.Equal(t, "E8 3RH", merged.Postcode)
	assert.Len(t, merged.Images, 2, "images dedupe by url")
	assert.Equal(t, day1, merged.FirstSeen)
}

func TestDeduplicateDiscardMode(t *testing.T) {
	e := testEngine(ModeDiscardDuplicates)

	a := candidate(models.PlatformRightmove, "a", day2, func(p *models.CanonicalProperty) {
		p.Postcode = "E8 3RH"
	})
	b := candidate(models.PlatformZoopla, "b", day1, func(p *models.CanonicalProperty) {
		p.Postcode = "E8 3RH"
		p.PriceMin, p.PriceMax = 1700, 1700
	})

	out := e.Deduplicate([]models.CanonicalProperty{a, b})
	require.Len(t, out, 1)
	assert.Equal(t, b.ID, out[0].ID, "the earliest-seen member survives")
	assert.Len(t, out[0].Sources, 1, "discard mode keeps no links from dropped members")
	assert.Equal(t, 1700, out[0].PriceMax, "discard mode does not widen the price range")
}

func TestIsImageFloorplan(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.test/plan.jpg", true},
		{"https://cdn.test/plan.PNG", true},
		{"https://cdn.test/plan.webp?width=800#main", true},
		{"https://cdn.test/plan.pdf", false},
		{"https://cdn.test/plan", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isImageFloorplan(tt.url), tt.url)
	}
}
