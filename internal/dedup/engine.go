package dedup

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/MarcelCutts/home-finder-sub001/internal/match"
	"github.com/MarcelCutts/home-finder-sub001/internal/models"
)

// Mode selects what the engine emits for each merge group.
type Mode int

const (
	// ModeMerge produces one canonical property per group, retaining every
	// source link. This is the mode the rest of the pipeline consumes, since
	// reconciliation needs the cross-platform links.
	ModeMerge Mode = iota

	// ModeDiscardDuplicates keeps one representative member per group and
	// drops the rest. Legacy behavior, kept for one-off area reports.
	ModeDiscardDuplicates
)

// String returns the string representation of a Mode
func (m Mode) String() string {
	switch m {
	case ModeMerge:
		return "merge"
	case ModeDiscardDuplicates:
		return "discard_duplicates"
	default:
		return "unknown"
	}
}

// Engine partitions candidates into blocking groups, matches pairwise within
// each block, closes the match graph transitively and emits one record per
// connected component.
type Engine struct {
	matcher *match.Matcher
	logger  *logrus.Logger
	mode    Mode
}

func NewEngine(matcher *match.Matcher, logger *logrus.Logger, mode Mode) *Engine {
	return &Engine{
		matcher: matcher,
		logger:  logger,
		mode:    mode,
	}
}

// DeduplicateListings validates nothing (listings are already validated at
// construction), lifts each listing into a singleton candidate and merges.
func (e *Engine) DeduplicateListings(listings []models.RawListing) []models.CanonicalProperty {
	candidates := make([]models.CanonicalProperty, 0, len(listings))
	for _, l := range listings {
		candidates = append(candidates, models.CandidateFromListing(l))
	}
	return e.Deduplicate(candidates)
}

// Deduplicate merges a batch of candidates. Re-running it over its own output
// changes nothing and never increases the record count.
func (e *Engine) Deduplicate(candidates []models.CanonicalProperty) []models.CanonicalProperty {
	groups := e.MergeGroups(candidates)

	out := make([]models.CanonicalProperty, 0, len(groups))
	merged := 0
	for _, group := range groups {
		if len(group) > 1 {
			merged++
		}
		switch e.mode {
		case ModeDiscardDuplicates:
			out = append(out, group[rootIndex(group)])
		default:
			out = append(out, Synthesize(group))
		}
	}

	e.logger.WithFields(logrus.Fields{
		"candidates":   len(candidates),
		"properties":   len(out),
		"merge_groups": merged,
		"mode":         e.mode.String(),
	}).Info("Deduplicated candidate batch")

	return out
}

// MergeGroups computes the transitive-closure merge groups without
// synthesizing. Candidates sharing an id are unioned unconditionally; the
// rest merge only through match decisions within their blocking group.
func (e *Engine) MergeGroups(candidates []models.CanonicalProperty) [][]models.CanonicalProperty {
	uf := newUnionFind(len(candidates))

	// The same platform listing always resolves to the same property.
	byID := make(map[string]int, len(candidates))
	for i, c := range candidates {
		if first, ok := byID[c.ID]; ok {
			uf.union(first, i)
			continue
		}
		byID[c.ID] = i
	}

	for _, block := range blockIndexes(candidates) {
		for i := 0; i < len(block); i++ {
			for j := i + 1; j < len(block); j++ {
				a, b := block[i], block[j]
				if uf.find(a) == uf.find(b) {
					continue
				}
				decision := e.matcher.Compare(&candidates[a], &candidates[b])
				if decision.Match {
					e.logger.WithFields(logrus.Fields{
						"left":       candidates[a].ID,
						"right":      candidates[b].ID,
						"score":      decision.TotalScore,
						"signals":    decision.SignalCount,
						"confidence": decision.Confidence,
					}).Debug("Matched candidate pair")
					uf.union(a, b)
				}
			}
		}
	}

	indexGroups := uf.groups()
	groups := make([][]models.CanonicalProperty, 0, len(indexGroups))
	for _, idxs := range indexGroups {
		group := make([]models.CanonicalProperty, 0, len(idxs))
		for _, i := range idxs {
			group = append(group, candidates[i])
		}
		groups = append(groups, group)
	}
	return groups
}

// blockKey is the cheap partition key that bounds pairwise comparison:
// listings can only merge when they agree on bedroom count and outcode.
// Records with no outcode share a per-bedroom partition of their own.
func blockKey(c *models.CanonicalProperty) string {
	return fmt.Sprintf("%d|%s", c.Bedrooms, c.Outcode)
}

func blockIndexes(candidates []models.CanonicalProperty) [][]int {
	blocks := make(map[string][]int)
	var keys []string
	for i := range candidates {
		key := blockKey(&candidates[i])
		if _, seen := blocks[key]; !seen {
			keys = append(keys, key)
		}
		blocks[key] = append(blocks[key], i)
	}
	sort.Strings(keys)

	out := make([][]int, 0, len(keys))
	for _, key := range keys {
		out = append(out, blocks[key])
	}
	return out
}

// rootIndex picks the group member whose identity the merged record keeps:
// the earliest first-seen, with the id as tie-break for determinism.
func rootIndex(group []models.CanonicalProperty) int {
	root := 0
	for i := 1; i < len(group); i++ {
		if group[i].FirstSeen.Before(group[root].FirstSeen) ||
			(group[i].FirstSeen.Equal(group[root].FirstSeen) && group[i].ID < group[root].ID) {
			root = i
		}
	}
	return root
}

// Synthesize collapses one merge group into a single canonical property,
// keeping the root member's id and lifecycle state.
func Synthesize(group []models.CanonicalProperty) models.CanonicalProperty {
	return SynthesizeInto(group[rootIndex(group)], group)
}

// SynthesizeInto collapses a merge group onto an explicit root. Sources and
// images are unioned, the price range widened, and descriptive content picked
// by the tie-break rules: longest description, first image-format floorplan,
// images deduplicated by URL.
func SynthesizeInto(root models.CanonicalProperty, group []models.CanonicalProperty) models.CanonicalProperty {
	merged := root
	merged.Sources = append([]models.SourceRef(nil), root.Sources...)
	merged.Images = append([]models.ImageRef(nil), root.Images...)

	seenSources := make(map[string]struct{})
	for _, s := range merged.Sources {
		seenSources[s.Key()] = struct{}{}
	}
	seenImages := make(map[string]struct{})
	for _, img := range merged.Images {
		seenImages[img.URL] = struct{}{}
	}
	if !isImageFloorplan(merged.FloorplanURL) {
		merged.FloorplanURL = ""
	}

	for _, member := range group {
		if member.ID != merged.ID && member.FirstSeen.Before(merged.FirstSeen) {
			merged.FirstSeen = member.FirstSeen
		}

		for _, s := range member.Sources {
			if _, ok := seenSources[s.Key()]; !ok {
				seenSources[s.Key()] = struct{}{}
				merged.Sources = append(merged.Sources, s)
			}
		}
		for _, img := range member.Images {
			if _, ok := seenImages[img.URL]; !ok {
				seenImages[img.URL] = struct{}{}
				merged.Images = append(merged.Images, img)
			}
		}

		if member.PriceMin < merged.PriceMin {
			merged.PriceMin = member.PriceMin
		}
		if member.PriceMax > merged.PriceMax {
			merged.PriceMax = member.PriceMax
		}

		if len(member.Description) > len(merged.Description) {
			merged.Description = member.Description
		}
		if merged.FloorplanURL == "" && isImageFloorplan(member.FloorplanURL) {
			merged.FloorplanURL = member.FloorplanURL
		}

		if merged.Postcode == "" && member.Postcode != "" {
			merged.Postcode = member.Postcode
			merged.Outcode = member.Outcode
		}
		if merged.Outcode == "" {
			merged.Outcode = member.Outcode
		}
		if merged.Street == "" {
			merged.Street = member.Street
		}
		if merged.Coordinates == nil {
			merged.Coordinates = member.Coordinates
		}
		if merged.Bathrooms == nil {
			merged.Bathrooms = member.Bathrooms
		}
		if merged.Title == "" {
			merged.Title = member.Title
		}
	}

	return merged
}

var floorplanImageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// isImageFloorplan accepts only image-format floorplans; PDF and document
// floorplans are skipped.
func isImageFloorplan(url string) bool {
	if url == "" {
		return false
	}
	lower := strings.ToLower(url)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range floorplanImageExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
