package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"github.com/MarcelCutts/home-finder-sub001/config"
	"github.com/MarcelCutts/home-finder-sub001/internal/dedup"
	"github.com/MarcelCutts/home-finder-sub001/internal/models"
	"github.com/MarcelCutts/home-finder-sub001/internal/reconcile"
	"github.com/MarcelCutts/home-finder-sub001/internal/store"
)

// Geocoder resolves an address-less-precise location to coordinates. Optional;
// listings without coordinates still flow through on postcode evidence alone.
type Geocoder interface {
	Geocode(ctx context.Context, street, postcode string) (*orb.Point, error)
}

// RunSummary captures what one pipeline run did.
type RunSummary struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Listings       int       `json:"listings"`
	Candidates     int       `json:"candidates"`
	UpdatedAnchors int       `json:"updated_anchors"`
	NewProperties  int       `json:"new_properties"`
	Collisions     int       `json:"collisions"`
	Enriched       int       `json:"enriched"`
	EnrichRetries  int       `json:"enrich_retries"`
	EnrichFailed   int       `json:"enrich_failed"`
	Analyzed       int       `json:"analyzed"`
	Degraded       int       `json:"degraded"`
	Notified       int       `json:"notified"`
	NotifyFailed   int       `json:"notify_failed"`
}

// Runner executes one full pipeline pass: scrape, dedupe, reconcile, persist,
// then drive the enrichment, analysis and notification stages through the
// state store. Every stage reads its work from persisted state, so a crashed
// run resumes wherever the store says it left off.
type Runner struct {
	cfg        *config.Config
	store      *store.Store
	scraper    Scraper
	enricher   Enricher
	analyzer   Analyzer
	notifier   Notifier
	geocoder   Geocoder
	engine     *dedup.Engine
	reconciler *reconcile.Reconciler
	lock       *RunLock
	logger     *logrus.Logger

	mu      sync.Mutex
	lastRun *RunSummary
}

func NewRunner(
	cfg *config.Config,
	st *store.Store,
	scraper Scraper,
	enricher Enricher,
	analyzer Analyzer,
	notifier Notifier,
	geocoder Geocoder,
	engine *dedup.Engine,
	reconciler *reconcile.Reconciler,
	logger *logrus.Logger,
) *Runner {
	return &Runner{
		cfg:        cfg,
		store:      st,
		scraper:    scraper,
		enricher:   enricher,
		analyzer:   analyzer,
		notifier:   notifier,
		geocoder:   geocoder,
		engine:     engine,
		reconciler: reconciler,
		lock:       NewRunLock(cfg.Pipeline.LockPath, logger),
		logger:     logger,
	}
}

// LastRun returns the summary of the most recent completed run, if any.
func (r *Runner) LastRun() *RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}

// Run executes one pipeline pass under the run lock.
func (r *Runner) Run(ctx context.Context) (*RunSummary, error) {
	if err := r.lock.Acquire(); err != nil {
		return nil, err
	}
	defer func() {
		if err := r.lock.Release(); err != nil {
			r.logger.WithError(err).Error("Failed to release run lock")
		}
	}()

	summary := &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log := r.logger.WithField("run_id", summary.RunID)
	log.Info("Starting pipeline run")

	listings, err := r.scraper.Scrape(ctx)
	if err != nil {
		return nil, fmt.Errorf("scrape failed: %w", err)
	}
	summary.Listings = len(listings)

	r.fillCoordinates(ctx, listings)

	candidates := r.engine.DeduplicateListings(listings)
	summary.Candidates = len(candidates)

	since := time.Now().UTC().AddDate(0, 0, -r.cfg.Pipeline.AnchorWindowDays)
	anchors, err := r.store.GetAnchors(ctx, candidateOutcodes(candidates), since)
	if err != nil {
		return nil, err
	}

	result := r.reconciler.Reconcile(candidates, anchors)
	summary.UpdatedAnchors = len(result.UpdatedAnchors)
	summary.NewProperties = len(result.New)
	summary.Collisions = len(result.Collisions)

	if err := r.store.SaveReconciliation(ctx, result); err != nil {
		return nil, err
	}

	if err := r.runEnrichmentStage(ctx, log, summary); err != nil {
		return nil, err
	}
	if err := r.runAnalysisStage(ctx, log, summary); err != nil {
		return nil, err
	}
	if err := r.runNotificationStage(ctx, log, summary); err != nil {
		return nil, err
	}

	summary.FinishedAt = time.Now().UTC()
	log.WithFields(logrus.Fields{
		"listings":        summary.Listings,
		"candidates":      summary.Candidates,
		"updated_anchors": summary.UpdatedAnchors,
		"new_properties":  summary.NewProperties,
		"duration":        summary.FinishedAt.Sub(summary.StartedAt).String(),
	}).Info("Pipeline run completed")

	r.mu.Lock()
	r.lastRun = summary
	r.mu.Unlock()

	return summary, nil
}

// fillCoordinates geocodes listings that carry an address but no coordinates.
// Failures are logged and skipped; coordinate evidence is optional.
func (r *Runner) fillCoordinates(ctx context.Context, listings []models.RawListing) {
	if r.geocoder == nil {
		return
	}
	for i := range listings {
		l := &listings[i]
		if l.Coordinates != nil || l.Street == "" || (l.Postcode == "" && l.Outcode == "") {
			continue
		}
		postcode := l.Postcode
		if postcode == "" {
			postcode = l.Outcode
		}
		pt, err := r.geocoder.Geocode(ctx, l.Street, postcode)
		if err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"street":   l.Street,
				"postcode": postcode,
			}).Debug("Geocoding failed, listing keeps no coordinates")
			continue
		}
		l.Coordinates = pt
	}
}

func (r *Runner) runEnrichmentStage(ctx context.Context, log *logrus.Entry, summary *RunSummary) error {
	pending, err := r.store.GetRetryableEnrichments(ctx, r.cfg.Pipeline.MaxEnrichmentAttempts)
	if err != nil {
		return err
	}
	log.WithField("pending", len(pending)).Info("Starting enrichment stage")

	pool := NewWorkerPool(r.cfg.Pipeline.EnrichmentWorkers)
	var mu sync.Mutex
	var storeErr error

	for _, p := range pending {
		p := p
		pool.Submit(func() {
			enrichment, err := r.enricher.Enrich(ctx, p)

			outcome := store.EnrichmentSuccess
			switch {
			case err == nil:
			case IsRetryable(err):
				outcome = store.EnrichmentRetryable
			default:
				outcome = store.EnrichmentPermanent
			}
			if err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"property_id": p.ID,
					"outcome":     string(outcome),
				}).Warn("Enrichment attempt failed")
			}

			if serr := r.store.RecordEnrichmentAttempt(ctx, p.ID, outcome, enrichment); serr != nil {
				mu.Lock()
				if storeErr == nil {
					storeErr = serr
				}
				mu.Unlock()
				return
			}

			mu.Lock()
			switch outcome {
			case store.EnrichmentSuccess:
				summary.Enriched++
			case store.EnrichmentRetryable:
				summary.EnrichRetries++
			default:
				summary.EnrichFailed++
			}
			mu.Unlock()
		})
	}
	pool.Wait()

	// A store failure here voids the crash-recovery contract; surface it.
	return storeErr
}

func (r *Runner) runAnalysisStage(ctx context.Context, log *logrus.Entry, summary *RunSummary) error {
	pending, err := r.store.GetPendingAnalysis(ctx)
	if err != nil {
		return err
	}
	log.WithField("pending", len(pending)).Info("Starting analysis stage")

	pool := NewWorkerPool(r.cfg.Pipeline.AnalysisWorkers)
	var mu sync.Mutex
	var storeErr error

	for _, p := range pending {
		p := p
		pool.Submit(func() {
			payload, err := r.analyzer.Analyze(ctx, p)
			degraded := err != nil
			if degraded {
				log.WithError(err).WithField("property_id", p.ID).Warn("Analysis degraded")
			}

			if serr := r.store.RecordAnalysisResult(ctx, p.ID, payload, degraded); serr != nil {
				mu.Lock()
				if storeErr == nil {
					storeErr = serr
				}
				mu.Unlock()
				return
			}

			mu.Lock()
			if degraded {
				summary.Degraded++
			} else {
				summary.Analyzed++
			}
			mu.Unlock()
		})
	}
	pool.Wait()

	return storeErr
}

// runNotificationStage sends sequentially: notification transports rate-limit
// aggressively and ordering keeps digests readable.
func (r *Runner) runNotificationStage(ctx context.Context, log *logrus.Entry, summary *RunSummary) error {
	pending, err := r.store.GetUnsentNotifications(ctx)
	if err != nil {
		return err
	}
	log.WithField("pending", len(pending)).Info("Starting notification stage")

	for _, p := range pending {
		err := r.notifier.Notify(ctx, p)
		if err != nil {
			log.WithError(err).WithField("property_id", p.ID).Warn("Notification failed")
		}
		if serr := r.store.RecordNotificationOutcome(ctx, p.ID, err == nil); serr != nil {
			return serr
		}
		if err == nil {
			summary.Notified++
		} else {
			summary.NotifyFailed++
		}
	}
	return nil
}

func candidateOutcodes(candidates []models.CanonicalProperty) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range candidates {
		if _, ok := seen[c.Outcode]; ok {
			continue
		}
		seen[c.Outcode] = struct{}{}
		out = append(out, c.Outcode)
	}
	return out
}
