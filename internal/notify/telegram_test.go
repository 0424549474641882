package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcelCutts/home-finder-sub001/internal/models"
)

func testNotifier(baseURL string) *TelegramNotifier {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	n := NewTelegramNotifier("test-token", "12345", logger)
	if baseURL != "" {
		n.baseURL = baseURL
	}
	return n
}

func sampleProperty() models.CanonicalProperty {
	return models.CanonicalProperty{
		ID: "prop_0123456789abcdef",
		Sources: []models.SourceRef{
			{Platform: models.PlatformRightmove, SourceID: "rm1", URL: "https://rightmove.test/rm1"},
			{Platform: models.PlatformZoopla, SourceID: "z1", URL: "https://zoopla.test/z1"},
		},
		PriceMin: 1800,
		PriceMax: 1820,
		Postcode: "E8 3RH",
		Street:   "kingsland road",
		Bedrooms: 2,
		Title:    "Bright 2 bed flat",
	}
}

func TestNotifySendsMessage(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/bottest-token/sendMessage")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := testNotifier(srv.URL)
	require.NoError(t, n.Notify(context.Background(), sampleProperty()))

	assert.Equal(t, "12345", received["chat_id"])
	assert.Equal(t, "HTML", received["parse_mode"])
	text, _ := received["text"].(string)
	assert.Contains(t, text, "Bright 2 bed flat")
	assert.Contains(t, text, "£1800–£1820 pcm")
	assert.Contains(t, text, "https://rightmove.test/rm1")
	assert.Contains(t, text, "https://zoopla.test/z1")
}

func TestNotifyStatusErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantMsg string
	}{
		{"unauthorized", http.StatusUnauthorized, "invalid bot token"},
		{"bad request", http.StatusBadRequest, "invalid chat ID"},
		{"forbidden", http.StatusForbidden, "blocked"},
		{"server error", http.StatusBadGateway, "status 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := testNotifier(srv.URL).Notify(context.Background(), sampleProperty())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestNotifyRequiresConfiguration(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	err := NewTelegramNotifier("", "12345", logger).Notify(context.Background(), sampleProperty())
	assert.Error(t, err)

	err = NewTelegramNotifier("token", "", logger).Notify(context.Background(), sampleProperty())
	assert.Error(t, err)
}

func TestFormatProperty(t *testing.T) {
	t.Run("single price", func(t *testing.T) {
		p := sampleProperty()
		p.PriceMax = p.PriceMin
		text := formatProperty(p)
		assert.Contains(t, text, "£1800 pcm")
		assert.NotContains(t, text, "across platforms")
	})

	t.Run("no title falls back to bedrooms", func(t *testing.T) {
		p := sampleProperty()
		p.Title = ""
		assert.Contains(t, formatProperty(p), "2 bed rental")
	})

	t.Run("outcode only location", func(t *testing.T) {
		p := sampleProperty()
		p.Postcode = ""
		p.Outcode = "E8"
		assert.Contains(t, formatProperty(p), "kingsland road, E8")
	})
}
