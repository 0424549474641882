package match

import (
	"encoding/hex"
	"math/bits"
	"strings"

	"github.com/paulmach/orb/geo"

	"github.com/MarcelCutts/home-finder-sub001/internal/models"
)

// SignalResult is the outcome of one pairwise evidence check. A signal that
// lacks the data it needs on either side does not fire: it contributes no
// score and does not count toward the minimum-signal gate.
type SignalResult struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Fired bool    `json:"fired"`
}

func (m *Matcher) fullPostcodeSignal(a, b *models.CanonicalProperty) SignalResult {
	r := SignalResult{Name: "full_postcode"}
	if a.Postcode == "" || b.Postcode == "" {
		return r
	}
	if a.Postcode == b.Postcode {
		r.Score = m.cfg.Matching.FullPostcodeScore
		r.Fired = true
	}
	return r
}

func (m *Matcher) outcodeSignal(a, b *models.CanonicalProperty) SignalResult {
	r := SignalResult{Name: "outcode"}
	if a.Outcode == "" || b.Outcode == "" {
		return r
	}
	if a.Outcode == b.Outcode {
		r.Score = m.cfg.Matching.OutcodeScore
		r.Fired = true
	}
	return r
}

// coordinateSignal scores full below the inner radius and decays linearly to
// zero at the outer radius. Beyond the outer radius the signal does not fire.
func (m *Matcher) coordinateSignal(a, b *models.CanonicalProperty) SignalResult {
	r := SignalResult{Name: "coordinates"}
	if a.Coordinates == nil || b.Coordinates == nil {
		return r
	}

	full := m.cfg.Matching.CoordinateFullMeters
	max := m.cfg.Matching.CoordinateMaxMeters
	d := geo.Distance(*a.Coordinates, *b.Coordinates)

	switch {
	case d <= full:
		r.Score = m.cfg.Matching.CoordinateScore
		r.Fired = true
	case d < max:
		r.Score = m.cfg.Matching.CoordinateScore * (max - d) / (max - full)
		r.Fired = true
	}
	return r
}

func (m *Matcher) streetSignal(a, b *models.CanonicalProperty) SignalResult {
	r := SignalResult{Name: "street"}
	if a.Street == "" || b.Street == "" {
		return r
	}
	if a.Street == b.Street || strings.Contains(a.Street, b.Street) || strings.Contains(b.Street, a.Street) {
		r.Score = m.cfg.Matching.StreetScore
		r.Fired = true
	}
	return r
}

// priceSignal compares price ranges: overlapping ranges count as identical,
// disjoint ranges use the gap relative to the cheaper side. For two fresh
// listings this reduces to the plain percentage difference of their prices.
func (m *Matcher) priceSignal(a, b *models.CanonicalProperty) SignalResult {
	r := SignalResult{Name: "price"}
	if a.PriceMax <= 0 || b.PriceMax <= 0 {
		return r
	}

	var diff float64
	switch {
	case a.PriceMin > b.PriceMax:
		diff = float64(a.PriceMin-b.PriceMax) / float64(b.PriceMax)
	case b.PriceMin > a.PriceMax:
		diff = float64(b.PriceMin-a.PriceMax) / float64(a.PriceMax)
	}

	full := m.cfg.Matching.PriceFullPct
	max := m.cfg.Matching.PriceMaxPct
	switch {
	case diff <= full:
		r.Score = m.cfg.Matching.PriceScore
		r.Fired = true
	case diff < max:
		r.Score = m.cfg.Matching.PriceScore * (max - diff) / (max - full)
		r.Fired = true
	}
	return r
}

// imageHashSignal fires when any image pair across the two properties is
// within the configured Hamming distance. Hashes arrive precomputed from the
// scrapers; images without a hash are skipped.
func (m *Matcher) imageHashSignal(a, b *models.CanonicalProperty) SignalResult {
	r := SignalResult{Name: "image_hash"}
	if !m.cfg.Matching.ImageHashEnabled {
		return r
	}

	hashesA := decodeHashes(a.Images)
	hashesB := decodeHashes(b.Images)
	if len(hashesA) == 0 || len(hashesB) == 0 {
		return r
	}

	for _, ha := range hashesA {
		for _, hb := range hashesB {
			if bits.OnesCount64(ha^hb) <= m.cfg.Matching.ImageHashMaxDistance {
				r.Score = m.cfg.Matching.ImageHashScore
				r.Fired = true
				return r
			}
		}
	}
	return r
}

func decodeHashes(images []models.ImageRef) []uint64 {
	var hashes []uint64
	for _, img := range images {
		if img.Hash == "" {
			continue
		}
		raw, err := hex.DecodeString(img.Hash)
		if err != nil || len(raw) != 8 {
			continue
		}
		var h uint64
		for _, b := range raw {
			h = h<<8 | uint64(b)
		}
		hashes = append(hashes, h)
	}
	return hashes
}
