package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// Platform identifies the listing site a record was scraped from.
type Platform int

const (
	PlatformRightmove Platform = iota
	PlatformZoopla
	PlatformOpenRent
	PlatformSpareRoom
	PlatformOnTheMarket
)

// String returns the string representation of a Platform
func (p Platform) String() string {
	switch p {
	case PlatformRightmove:
		return "rightmove"
	case PlatformZoopla:
		return "zoopla"
	case PlatformOpenRent:
		return "openrent"
	case PlatformSpareRoom:
		return "spareroom"
	case PlatformOnTheMarket:
		return "onthemarket"
	default:
		return "unknown"
	}
}

// ParsePlatform converts a platform name into a Platform.
func ParsePlatform(name string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "rightmove":
		return PlatformRightmove, nil
	case "zoopla":
		return PlatformZoopla, nil
	case "openrent":
		return PlatformOpenRent, nil
	case "spareroom":
		return PlatformSpareRoom, nil
	case "onthemarket":
		return PlatformOnTheMarket, nil
	default:
		return 0, fmt.Errorf("unknown platform: %q", name)
	}
}

func (p Platform) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Platform) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParsePlatform(name)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ImageRef is one listing photo, optionally carrying the perceptual hash
// computed by the scraper (hex-encoded 64-bit dHash).
type ImageRef struct {
	URL  string `json:"url"`
	Hash string `json:"hash,omitempty"`
}

// RawListing is one scraped snapshot from one platform. Instances are built
// through NewRawListing and never mutated afterwards.
type RawListing struct {
	Platform    Platform
	SourceID    string
	URL         string
	Title       string
	PricePCM    int
	Bedrooms    int
	Bathrooms   *int
	Postcode    string // full postcode, empty when the platform only exposes the outcode
	Outcode     string // always set when Postcode is; may be set alone
	Street      string // normalized street name, may be empty
	Coordinates *orb.Point
	Images      []ImageRef
	FirstSeen   time.Time
}

// ValidationError reports a listing field that failed construction checks.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid listing: %s %s", e.Field, e.Reason)
}

var (
	fullPostcodeRe = regexp.MustCompile(`^[A-Z]{1,2}[0-9][A-Z0-9]? [0-9][A-Z]{2}$`)
	outcodeRe      = regexp.MustCompile(`^[A-Z]{1,2}[0-9][A-Z0-9]?$`)
	streetNoiseRe  = regexp.MustCompile(`[^a-z0-9 ]+`)
	spaceRe        = regexp.MustCompile(`\s+`)
)

// NewRawListing validates and normalizes one scraped record. Postcodes are
// uppercased and classified as full or outcode-only; a full postcode also
// fills the outcode. Street names are lowercased with punctuation stripped.
// Missing postcode, street, coordinates and images are all valid states.
func NewRawListing(platform Platform, sourceID, url, title string, pricePCM, bedrooms int, opts ListingAttrs) (RawListing, error) {
	if platform.String() == "unknown" {
		return RawListing{}, &ValidationError{Field: "platform", Reason: "is not a known platform"}
	}
	if strings.TrimSpace(sourceID) == "" {
		return RawListing{}, &ValidationError{Field: "source_id", Reason: "is empty"}
	}
	if strings.TrimSpace(url) == "" {
		return RawListing{}, &ValidationError{Field: "url", Reason: "is empty"}
	}
	if pricePCM <= 0 {
		return RawListing{}, &ValidationError{Field: "price_pcm", Reason: "must be positive"}
	}
	if bedrooms < 0 {
		return RawListing{}, &ValidationError{Field: "bedrooms", Reason: "must not be negative"}
	}
	if opts.Bathrooms != nil && *opts.Bathrooms < 0 {
		return RawListing{}, &ValidationError{Field: "bathrooms", Reason: "must not be negative"}
	}

	l := RawListing{
		Platform:    platform,
		SourceID:    strings.TrimSpace(sourceID),
		URL:         strings.TrimSpace(url),
		Title:       strings.TrimSpace(title),
		PricePCM:    pricePCM,
		Bedrooms:    bedrooms,
		Bathrooms:   opts.Bathrooms,
		Street:      NormalizeStreet(opts.Street),
		Coordinates: opts.Coordinates,
		Images:      opts.Images,
		FirstSeen:   opts.FirstSeen,
	}
	if l.FirstSeen.IsZero() {
		l.FirstSeen = time.Now().UTC()
	}

	pc := spaceRe.ReplaceAllString(strings.ToUpper(strings.TrimSpace(opts.Postcode)), " ")
	switch {
	case pc == "":
		// no postal data at all
	case fullPostcodeRe.MatchString(pc):
		l.Postcode = pc
		l.Outcode = strings.SplitN(pc, " ", 2)[0]
	case outcodeRe.MatchString(pc):
		l.Outcode = pc
	default:
		return RawListing{}, &ValidationError{Field: "postcode", Reason: fmt.Sprintf("%q is neither a full postcode nor an outcode", pc)}
	}

	return l, nil
}

// ListingAttrs carries the optional attributes of a scraped listing.
type ListingAttrs struct {
	Bathrooms   *int
	Postcode    string // full postcode or bare outcode
	Street      string
	Coordinates *orb.Point
	Images      []ImageRef
	FirstSeen   time.Time
}

var streetAbbrevs = map[string]string{
	"rd":   "road",
	"st":   "street",
	"ave":  "avenue",
	"ln":   "lane",
	"gdns": "gardens",
	"sq":   "square",
	"cres": "crescent",
	"pl":   "place",
}

// NormalizeStreet lowercases a street name, strips punctuation and expands
// common abbreviations so "Kingsland Rd." compares equal to "Kingsland Road".
func NormalizeStreet(street string) string {
	s := strings.ToLower(strings.TrimSpace(street))
	s = streetNoiseRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	words := strings.Fields(s)
	for i, w := range words {
		if full, ok := streetAbbrevs[w]; ok {
			words[i] = full
		}
	}
	return strings.Join(words, " ")
}
