package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcelCutts/home-finder-sub001/config"
	"github.com/MarcelCutts/home-finder-sub001/internal/models"
	"github.com/MarcelCutts/home-finder-sub001/internal/pipeline"
	"github.com/MarcelCutts/home-finder-sub001/internal/reconcile"
	"github.com/MarcelCutts/home-finder-sub001/internal/store"
)

func setupTestAPI(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	st, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"), 3, logger)
	require.NoError(t, err)
	require.NoError(t, st.RunMigrations())
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{}
	cfg.Pipeline.LockPath = filepath.Join(t.TempDir(), "pipeline.lock")
	runner := pipeline.NewRunner(cfg, st, nil, nil, nil, nil, nil, nil, nil, logger)

	router := gin.New()
	SetupRoutes(router, NewHandler(st, runner, logger))
	return router, st
}

func seedProperty(t *testing.T, st *store.Store, sourceID string) models.CanonicalProperty {
	t.Helper()
	p := models.CanonicalProperty{
		ID: models.PropertyID(models.PlatformRightmove, sourceID),
		Sources: []models.SourceRef{
			{Platform: models.PlatformRightmove, SourceID: sourceID, URL: "https://rightmove.test/" + sourceID},
		},
		PriceMin:           1800,
		PriceMax:           1800,
		Postcode:           "E8 3RH",
		Outcode:            "E8",
		Bedrooms:           2,
		Title:              "2 bed flat",
		FirstSeen:          time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		EnrichmentStatus:   models.EnrichmentPending,
		AnalysisStatus:     models.AnalysisPending,
		NotificationStatus: models.NotificationPending,
	}
	require.NoError(t, st.SaveReconciliation(context.Background(), reconcile.Result{
		New: []models.CanonicalProperty{p},
	}))
	return p
}

func TestGetProperties(t *testing.T) {
	router, st := setupTestAPI(t)
	seedProperty(t, st, "rm1")
	seedProperty(t, st, "rm2")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/properties", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got []models.CanonicalProperty
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestGetPropertiesLimitValidation(t *testing.T) {
	router, _ := setupTestAPI(t)

	for _, limit := range []string{"0", "1001", "abc", "-5"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/properties?limit="+limit, nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/properties?limit=1", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetPropertyByID(t *testing.T) {
	router, st := setupTestAPI(t)
	p := seedProperty(t, st, "rm1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/properties/"+p.ID, nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got models.CanonicalProperty
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "E8 3RH", got.Postcode)
}

func TestGetPropertyNotFound(t *testing.T) {
	router, _ := setupTestAPI(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/properties/prop_missing", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetQueues(t *testing.T) {
	router, st := setupTestAPI(t)
	seedProperty(t, st, "rm1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/queues", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]map[string]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got["enrichment_status"]["pending"])
	assert.Equal(t, int64(1), got["analysis_status"]["pending_analysis"])
}

func TestGetLastRunBeforeAnyRun(t *testing.T) {
	router, _ := setupTestAPI(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/runs/last", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no completed runs yet")
}
