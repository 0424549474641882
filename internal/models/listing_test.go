package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRawListingValidation(t *testing.T) {
	tests := []struct {
		name      string
		platform  Platform
		sourceID  string
		url       string
		price     int
		bedrooms  int
		wantField string
	}{
		{
			name:     "valid listing",
			platform: PlatformRightmove,
			sourceID: "123",
			url:      "https://rightmove.co.uk/123",
			price:    1800,
			bedrooms: 2,
		},
		{
			name:      "empty source id",
			platform:  PlatformRightmove,
			sourceID:  "  ",
			url:       "https://rightmove.co.uk/123",
			price:     1800,
			bedrooms:  2,
			wantField: "source_id",
		},
		{
			name:      "empty url",
			platform:  PlatformZoopla,
			sourceID:  "123",
			url:       "",
			price:     1800,
			bedrooms:  2,
			wantField: "url",
		},
		{
			name:      "zero price",
			platform:  PlatformZoopla,
			sourceID:  "123",
			url:       "https://zoopla.co.uk/123",
			price:     0,
			bedrooms:  2,
			wantField: "price_pcm",
		},
		{
			name:      "negative bedrooms",
			platform:  PlatformOpenRent,
			sourceID:  "123",
			url:       "https://openrent.com/123",
			price:     1800,
			bedrooms:  -1,
			wantField: "bedrooms",
		},
		{
			name:      "unknown platform",
			platform:  Platform(99),
			sourceID:  "123",
			url:       "https://example.com/123",
			price:     1800,
			bedrooms:  2,
			wantField: "platform",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRawListing(tt.platform, tt.sourceID, tt.url, "Test flat", tt.price, tt.bedrooms, ListingAttrs{})
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestNewRawListingPostcodeClassification(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantPostcode string
		wantOutcode  string
		wantErr      bool
	}{
		{name: "full postcode", raw: "E8 3RH", wantPostcode: "E8 3RH", wantOutcode: "E8"},
		{name: "lowercase full postcode", raw: "e8 3rh", wantPostcode: "E8 3RH", wantOutcode: "E8"},
		{name: "outcode only", raw: "E8", wantOutcode: "E8"},
		{name: "longer outcode", raw: "SW1A", wantOutcode: "SW1A"},
		{name: "absent", raw: ""},
		{name: "garbage", raw: "not a postcode", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewRawListing(PlatformRightmove, "1", "https://x.test/1", "", 1500, 1, ListingAttrs{Postcode: tt.raw})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPostcode, l.Postcode)
			assert.Equal(t, tt.wantOutcode, l.Outcode)
		})
	}
}

func TestNormalizeStreet(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Kingsland Road", "kingsland road"},
		{"Kingsland Rd.", "kingsland road"},
		{"  MARE   ST ", "mare street"},
		{"St. John's Gdns", "street johns gardens"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeStreet(tt.in), "NormalizeStreet(%q)", tt.in)
	}
}

func TestPropertyIDDeterministic(t *testing.T) {
	a := PropertyID(PlatformRightmove, "123")
	b := PropertyID(PlatformRightmove, "123")
	c := PropertyID(PlatformZoopla, "123")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "prop_")
}

func TestPlatformJSONRoundTrip(t *testing.T) {
	ref := SourceRef{Platform: PlatformSpareRoom, SourceID: "abc", URL: "https://spareroom.co.uk/abc"}

	data, err := ref.Platform.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"spareroom"`, string(data))

	var parsed Platform
	require.NoError(t, parsed.UnmarshalJSON(data))
	assert.Equal(t, PlatformSpareRoom, parsed)
}
