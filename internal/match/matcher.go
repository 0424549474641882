package match

import (
	"github.com/MarcelCutts/home-finder-sub001/config"
	"github.com/MarcelCutts/home-finder-sub001/internal/models"
)

// Confidence is display metadata on a decision; it never affects whether a
// pair is treated as a match.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// MatchDecision is the aggregate outcome for one compared pair.
type MatchDecision struct {
	TotalScore       float64        `json:"total_score"`
	SignalCount      int            `json:"signal_count"`
	Match            bool           `json:"match"`
	Confidence       Confidence     `json:"confidence"`
	PostcodeConflict bool           `json:"postcode_conflict"`
	Signals          []SignalResult `json:"signals"`
}

// Matcher aggregates the pairwise signals into a match decision.
type Matcher struct {
	cfg *config.Config
}

func NewMatcher(cfg *config.Config) *Matcher {
	return &Matcher{cfg: cfg}
}

// Compare scores two properties against each other. The comparison is
// symmetric: Compare(a, b) and Compare(b, a) yield the same decision.
//
// Two confirmed full postcodes that differ hard-block the pair regardless of
// any other evidence: coordinates within 50m and shared marketing photos both
// occur across adjacent units of one development, while a missed merge is
// recoverable on a later run.
func (m *Matcher) Compare(a, b *models.CanonicalProperty) MatchDecision {
	signals := []SignalResult{
		m.fullPostcodeSignal(a, b),
		m.outcodeSignal(a, b),
		m.coordinateSignal(a, b),
		m.streetSignal(a, b),
		m.priceSignal(a, b),
		m.imageHashSignal(a, b),
	}

	d := MatchDecision{Signals: signals}
	for _, s := range signals {
		if s.Fired {
			d.TotalScore += s.Score
			d.SignalCount++
		}
	}

	if a.Postcode != "" && b.Postcode != "" && a.Postcode != b.Postcode {
		d.PostcodeConflict = true
		d.Confidence = ConfidenceNone
		return d
	}

	d.Confidence = m.confidence(d.TotalScore, d.SignalCount)
	d.Match = d.TotalScore >= m.cfg.Matching.MatchThreshold &&
		d.SignalCount >= m.cfg.Matching.MinSignals
	return d
}

func (m *Matcher) confidence(total float64, signals int) Confidence {
	switch {
	case total >= 80 && signals >= 3:
		return ConfidenceHigh
	case total >= m.cfg.Matching.MatchThreshold:
		return ConfidenceMedium
	case total >= 40:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}
