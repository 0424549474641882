package reconcile

import (
	"github.com/sirupsen/logrus"

	"github.com/MarcelCutts/home-finder-sub001/internal/dedup"
	"github.com/MarcelCutts/home-finder-sub001/internal/models"
)

// Collision records two previously independent anchors resolving to the same
// physical property. The earlier anchor keeps its id; the later one is
// absorbed and its row removed by the store.
type Collision struct {
	KeptID     string
	AbsorbedID string
}

// Result is the outcome of reconciling one run's candidates against the
// persisted anchors.
type Result struct {
	// UpdatedAnchors are anchors extended by this run's candidates. Their
	// ids and lifecycle state are unchanged; sources, images and price
	// ranges may have widened.
	UpdatedAnchors []models.CanonicalProperty

	// New are merge groups that touched no anchor.
	New []models.CanonicalProperty

	// Collisions lists absorbed anchors, one entry per removed id.
	Collisions []Collision
}

// Reconciler merges new candidates against each other and against anchors
// from previous runs, treating anchors as additional nodes in the same match
// graph.
type Reconciler struct {
	engine *dedup.Engine
	logger *logrus.Logger
}

func NewReconciler(engine *dedup.Engine, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		engine: engine,
		logger: logger,
	}
}

// Reconcile groups candidates and anchors transitively and splits the groups
// into anchor updates and genuinely new properties. An anchor's unique id is
// never reassigned: a group touching one anchor keeps that anchor's id, and a
// group touching several keeps the first-created one while the rest are
// reported as collisions.
func (r *Reconciler) Reconcile(candidates, anchors []models.CanonicalProperty) Result {
	anchorIDs := make(map[string]struct{}, len(anchors))
	for _, a := range anchors {
		anchorIDs[a.ID] = struct{}{}
	}

	nodes := make([]models.CanonicalProperty, 0, len(anchors)+len(candidates))
	nodes = append(nodes, anchors...)
	nodes = append(nodes, candidates...)

	var result Result
	for _, group := range r.engine.MergeGroups(nodes) {
		groupAnchors := make([]models.CanonicalProperty, 0, 1)
		for _, member := range group {
			if _, ok := anchorIDs[member.ID]; ok {
				groupAnchors = append(groupAnchors, member)
			}
		}

		if len(groupAnchors) == 0 {
			result.New = append(result.New, dedup.Synthesize(group))
			continue
		}

		// An anchor in a group by itself was simply not seen this run;
		// nothing to update.
		if len(group) == 1 {
			continue
		}

		winner := groupAnchors[0]
		for _, a := range groupAnchors[1:] {
			if a.FirstSeen.Before(winner.FirstSeen) ||
				(a.FirstSeen.Equal(winner.FirstSeen) && a.ID < winner.ID) {
				winner = a
			}
		}

		for _, a := range groupAnchors {
			if a.ID == winner.ID {
				continue
			}
			r.logger.WithFields(logrus.Fields{
				"kept_id":     winner.ID,
				"absorbed_id": a.ID,
			}).Warn("Reconciliation anomaly: merge group spans two anchors")
			result.Collisions = append(result.Collisions, Collision{
				KeptID:     winner.ID,
				AbsorbedID: a.ID,
			})
		}

		result.UpdatedAnchors = append(result.UpdatedAnchors, dedup.SynthesizeInto(winner, group))
	}

	r.logger.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"anchors":    len(anchors),
		"updated":    len(result.UpdatedAnchors),
		"new":        len(result.New),
		"collisions": len(result.Collisions),
	}).Info("Reconciled run against anchors")

	return result
}
