package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/MarcelCutts/home-finder-sub001/internal/dedup"
	"github.com/MarcelCutts/home-finder-sub001/internal/models"
	"github.com/MarcelCutts/home-finder-sub001/internal/reconcile"
)

var (
	ErrNotFound = errors.New("property not found")
)

// EnrichmentOutcome classifies one enrichment attempt.
type EnrichmentOutcome string

const (
	EnrichmentSuccess   EnrichmentOutcome = "success"
	EnrichmentRetryable EnrichmentOutcome = "retryable"
	EnrichmentPermanent EnrichmentOutcome = "permanent"
)

// Enrichment is the descriptive payload applied on a successful attempt.
type Enrichment struct {
	Description  string
	FloorplanURL string
	Images       []models.ImageRef
}

// Store persists canonical properties and owns every lifecycle transition.
// All transitions run inside a transaction, so a crash at any point leaves
// each row either fully before or fully after the transition.
type Store struct {
	db                    *gorm.DB
	logger                *logrus.Logger
	maxEnrichmentAttempts int
}

func NewStore(dbPath string, maxEnrichmentAttempts int, logger *logrus.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", dbPath, err)
	}

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer. One shared connection makes concurrent
	// transition transactions queue on the handle instead of failing with
	// SQLITE_BUSY on the read-to-write lock upgrade.
	sqlDB.SetMaxOpenConns(1)

	return &Store{
		db:                    db,
		logger:                logger,
		maxEnrichmentAttempts: maxEnrichmentAttempts,
	}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetAnchors loads previously persisted properties as reconciliation anchors,
// scoped to the given outcodes (empty means all) and to rows touched since
// the cutoff.
func (s *Store) GetAnchors(ctx context.Context, outcodes []string, since time.Time) ([]models.CanonicalProperty, error) {
	query := s.db.WithContext(ctx).Preload("Images").Where("updated_at >= ?", since)
	if len(outcodes) > 0 {
		query = query.Where("outcode IN ?", outcodes)
	}

	var records []PropertyRecord
	if err := query.Order("created_at, id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load anchors: %w", err)
	}
	return recordsToProperties(records)
}

// SaveReconciliation persists one run's reconciliation result atomically:
// new properties are inserted, updated anchors have their descriptive columns
// widened without touching lifecycle state, and absorbed anchors are removed
// so no retry query can return a stale id.
func (s *Store) SaveReconciliation(ctx context.Context, result reconcile.Result) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, collision := range result.Collisions {
			if err := tx.Where("property_id = ?", collision.AbsorbedID).Delete(&PropertyImageRecord{}).Error; err != nil {
				return fmt.Errorf("failed to remove images of absorbed anchor %s: %w", collision.AbsorbedID, err)
			}
			if err := tx.Where("id = ?", collision.AbsorbedID).Delete(&PropertyRecord{}).Error; err != nil {
				return fmt.Errorf("failed to remove absorbed anchor %s: %w", collision.AbsorbedID, err)
			}
		}

		for _, p := range result.New {
			rec, err := toRecord(p)
			if err != nil {
				return err
			}
			images := rec.Images
			rec.Images = nil
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
			if res.Error != nil {
				return fmt.Errorf("failed to insert property %s: %w", p.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				if err := s.reviveStaleRow(tx, p); err != nil {
					return err
				}
			}
			if err := upsertImages(tx, p.ID, images); err != nil {
				return err
			}
		}

		for _, p := range result.UpdatedAnchors {
			rec, err := toRecord(p)
			if err != nil {
				return err
			}
			images := rec.Images
			rec.Images = nil

			if err := updateDescriptive(tx, p.ID, rec); err != nil {
				return err
			}
			if err := upsertImages(tx, p.ID, images); err != nil {
				return err
			}
		}

		return nil
	})
}

// updateDescriptive rewrites a row's descriptive columns and bumps updated_at,
// leaving every lifecycle column untouched.
func updateDescriptive(tx *gorm.DB, id string, rec PropertyRecord) error {
	updates := map[string]interface{}{
		"sources":       rec.Sources,
		"price_min":     rec.PriceMin,
		"price_max":     rec.PriceMax,
		"postcode":      rec.Postcode,
		"outcode":       rec.Outcode,
		"street":        rec.Street,
		"bathrooms":     rec.Bathrooms,
		"latitude":      rec.Latitude,
		"longitude":     rec.Longitude,
		"title":         rec.Title,
		"description":   rec.Description,
		"floorplan_url": rec.FloorplanURL,
		"first_seen":    rec.FirstSeen,
		"updated_at":    time.Now().UTC(),
	}
	res := tx.Model(&PropertyRecord{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update anchor %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("anchor %s: %w", id, ErrNotFound)
	}
	return nil
}

// reviveStaleRow handles a candidate classified as new whose id already exists
// in a row too old to have been loaded as an anchor. Dropping the candidate
// would freeze the row outside the anchor window forever, so the row is merged
// with the candidate in place and its updated_at bumped, which brings it back
// into the window for the next run.
func (s *Store) reviveStaleRow(tx *gorm.DB, p models.CanonicalProperty) error {
	rec, err := lockRecord(tx, p.ID)
	if err != nil {
		return err
	}
	existing, err := fromRecord(rec)
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"property_id": p.ID,
		"outcode":     existing.Outcode,
	}).Warn("New property collides with a row outside the anchor window, merging in place")

	merged := dedup.SynthesizeInto(existing, []models.CanonicalProperty{existing, p})
	mergedRec, err := toRecord(merged)
	if err != nil {
		return err
	}
	mergedRec.Images = nil
	return updateDescriptive(tx, p.ID, mergedRec)
}

func upsertImages(tx *gorm.DB, propertyID string, images []PropertyImageRecord) error {
	for i := range images {
		images[i].PropertyID = propertyID
	}
	if len(images) == 0 {
		return nil
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "property_id"}, {Name: "url"}},
		DoNothing: true,
	}).Create(&images).Error
	if err != nil {
		return fmt.Errorf("failed to upsert images for %s: %w", propertyID, err)
	}
	return nil
}

// RecordEnrichmentAttempt advances the enrichment axis for one property. The
// attempt counter increments on every recorded attempt and never decreases;
// once it reaches the configured maximum a retryable failure becomes
// permanent. Calls against a settled axis are no-ops.
func (s *Store) RecordEnrichmentAttempt(ctx context.Context, id string, outcome EnrichmentOutcome, enr *Enrichment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := lockRecord(tx, id)
		if err != nil {
			return err
		}
		if rec.EnrichmentStatus != string(models.EnrichmentPending) {
			s.logger.WithField("property_id", id).Debug("Enrichment already settled, ignoring attempt")
			return nil
		}

		attempts := rec.EnrichmentAttempts + 1
		updates := map[string]interface{}{
			"enrichment_attempts": attempts,
			"updated_at":          time.Now().UTC(),
		}

		switch outcome {
		case EnrichmentSuccess:
			updates["enrichment_status"] = string(models.EnrichmentDone)
			if enr != nil {
				if len(enr.Description) > len(rec.Description) {
					updates["description"] = enr.Description
				}
				if rec.FloorplanURL == "" && enr.FloorplanURL != "" {
					updates["floorplan_url"] = enr.FloorplanURL
				}
			}
		case EnrichmentRetryable:
			if attempts >= s.maxEnrichmentAttempts {
				updates["enrichment_status"] = string(models.EnrichmentFailedPermanent)
			}
		case EnrichmentPermanent:
			updates["enrichment_status"] = string(models.EnrichmentFailedPermanent)
		default:
			return fmt.Errorf("unknown enrichment outcome: %q", outcome)
		}

		if err := tx.Model(&PropertyRecord{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to record enrichment attempt for %s: %w", id, err)
		}

		if outcome == EnrichmentSuccess && enr != nil {
			var images []PropertyImageRecord
			for _, img := range enr.Images {
				images = append(images, PropertyImageRecord{URL: img.URL, Hash: img.Hash})
			}
			if err := upsertImages(tx, id, images); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordAnalysisResult advances the analysis axis. A degraded result still
// settles the axis: the property progresses with a minimal fallback payload
// instead of blocking forever on an unavailable provider.
func (s *Store) RecordAnalysisResult(ctx context.Context, id string, payload json.RawMessage, degraded bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := lockRecord(tx, id)
		if err != nil {
			return err
		}
		if rec.AnalysisStatus != string(models.AnalysisPending) {
			s.logger.WithField("property_id", id).Debug("Analysis already settled, ignoring result")
			return nil
		}

		status := models.AnalysisDone
		if degraded {
			status = models.AnalysisDegraded
			if len(payload) == 0 {
				payload = json.RawMessage(`{"degraded":true}`)
			}
		}

		return tx.Model(&PropertyRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
			"analysis_status":  string(status),
			"analysis_payload": []byte(payload),
			"updated_at":       time.Now().UTC(),
		}).Error
	})
}

// RecordNotificationOutcome advances the notification axis. A failed send
// stays eligible for retry on a subsequent run.
func (s *Store) RecordNotificationOutcome(ctx context.Context, id string, sent bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := lockRecord(tx, id)
		if err != nil {
			return err
		}
		if rec.NotificationStatus == string(models.NotificationSent) {
			s.logger.WithField("property_id", id).Debug("Notification already sent, ignoring outcome")
			return nil
		}

		status := models.NotificationFailed
		if sent {
			status = models.NotificationSent
		}
		return tx.Model(&PropertyRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
			"notification_status": string(status),
			"updated_at":          time.Now().UTC(),
		}).Error
	})
}

// GetRetryableEnrichments returns properties still pending enrichment with
// attempts to spare. Pure read; crash recovery needs nothing else.
func (s *Store) GetRetryableEnrichments(ctx context.Context, maxAttempts int) ([]models.CanonicalProperty, error) {
	var records []PropertyRecord
	err := s.db.WithContext(ctx).Preload("Images").
		Where("enrichment_status = ? AND enrichment_attempts < ?", string(models.EnrichmentPending), maxAttempts).
		Order("created_at, id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load retryable enrichments: %w", err)
	}
	return recordsToProperties(records)
}

// GetPendingAnalysis returns properties whose analysis axis has not settled.
func (s *Store) GetPendingAnalysis(ctx context.Context) ([]models.CanonicalProperty, error) {
	var records []PropertyRecord
	err := s.db.WithContext(ctx).Preload("Images").
		Where("analysis_status = ?", string(models.AnalysisPending)).
		Order("created_at, id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending analysis: %w", err)
	}
	return recordsToProperties(records)
}

// GetUnsentNotifications returns properties not yet successfully notified,
// including earlier failed sends.
func (s *Store) GetUnsentNotifications(ctx context.Context) ([]models.CanonicalProperty, error) {
	var records []PropertyRecord
	err := s.db.WithContext(ctx).Preload("Images").
		Where("notification_status IN ?", []string{
			string(models.NotificationPending),
			string(models.NotificationFailed),
		}).
		Order("created_at, id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load unsent notifications: %w", err)
	}
	return recordsToProperties(records)
}

// GetProperty loads one property by id.
func (s *Store) GetProperty(ctx context.Context, id string) (models.CanonicalProperty, error) {
	rec, err := loadRecord(s.db.WithContext(ctx).Preload("Images"), id)
	if err != nil {
		return models.CanonicalProperty{}, err
	}
	return fromRecord(rec)
}

// ListProperties returns the most recently updated properties.
func (s *Store) ListProperties(ctx context.Context, limit int) ([]models.CanonicalProperty, error) {
	var records []PropertyRecord
	err := s.db.WithContext(ctx).Preload("Images").
		Order("updated_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	return recordsToProperties(records)
}

// AxisCounts is the number of properties per status value on one axis.
type AxisCounts map[string]int64

// StatusCounts reports queue depths per lifecycle axis.
func (s *Store) StatusCounts(ctx context.Context) (map[string]AxisCounts, error) {
	out := map[string]AxisCounts{}
	for _, axis := range []string{"enrichment_status", "analysis_status", "notification_status"} {
		var rows []struct {
			Status string
			N      int64
		}
		err := s.db.WithContext(ctx).Model(&PropertyRecord{}).
			Select(axis + " AS status, COUNT(*) AS n").
			Group(axis).
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", axis, err)
		}
		counts := AxisCounts{}
		for _, row := range rows {
			counts[row.Status] = row.N
		}
		out[axis] = counts
	}
	return out, nil
}

// lockRecord reads a row inside a transition transaction. sqlite allows a
// single writer at a time, so the transaction itself is the per-row lock.
func lockRecord(tx *gorm.DB, id string) (PropertyRecord, error) {
	return loadRecord(tx, id)
}

func loadRecord(db *gorm.DB, id string) (PropertyRecord, error) {
	var rec PropertyRecord
	err := db.Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PropertyRecord{}, fmt.Errorf("property %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return PropertyRecord{}, fmt.Errorf("failed to load property %s: %w", id, err)
	}
	return rec, nil
}

func recordsToProperties(records []PropertyRecord) ([]models.CanonicalProperty, error) {
	out := make([]models.CanonicalProperty, 0, len(records))
	for _, rec := range records {
		p, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
