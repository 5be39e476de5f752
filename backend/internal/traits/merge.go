package traits

import (
	"context"
	"time"

	"go.uber.org/zap"

	"scopegraph/backend/pkg/logger"
)

// ============================================================================
// Trait Merge Engine
// ============================================================================

// ProfileStore is the relational collaborator owning profile persistence.
// UpdateProfile must run fn inside a read-modify-write transaction scoped to
// one user, serialized per user id, and roll the whole update back when the
// commit fails.
type ProfileStore interface {
	UpdateProfile(ctx context.Context, userID string, fn func(*Profile) error) error
}

// DefaultMinTraitConfidence is the floor a trait must clear after the
// source-reliability discount to enter the profile
const DefaultMinTraitConfidence = 0.8

// defaultSourceReliability discounts traits by how trustworthy their source
// is. Chat-sourced traits are noisier than curated or document sources.
var defaultSourceReliability = map[string]float64{
	SourceChatMessage: 0.9,
	SourceDocument:    1.0,
	SourceManual:      1.0,
}

// MergeStats reports what one merge batch did to the profile
type MergeStats struct {
	Added             map[TraitType]int `json:"added"`
	Updated           map[TraitType]int `json:"updated"`
	Discarded         int               `json:"discarded"`
	ConflictsResolved int               `json:"conflicts_resolved"`
}

func newMergeStats() *MergeStats {
	return &MergeStats{
		Added:   make(map[TraitType]int),
		Updated: make(map[TraitType]int),
	}
}

// MergeEngine folds extracted traits into stored profiles
type MergeEngine struct {
	store             ProfileStore
	minConfidence     float64
	sourceReliability map[string]float64
	logger            *zap.Logger
	now               func() time.Time
}

// MergeOption configures a MergeEngine
type MergeOption func(*MergeEngine)

// WithMinConfidence overrides the post-discount confidence floor
func WithMinConfidence(min float64) MergeOption {
	return func(e *MergeEngine) { e.minConfidence = min }
}

// WithSourceReliability overrides the per-source discount table
func WithSourceReliability(table map[string]float64) MergeOption {
	return func(e *MergeEngine) { e.sourceReliability = table }
}

// NewMergeEngine creates a merge engine backed by the given profile store
func NewMergeEngine(store ProfileStore, opts ...MergeOption) *MergeEngine {
	e := &MergeEngine{
		store:             store,
		minConfidence:     DefaultMinTraitConfidence,
		sourceReliability: defaultSourceReliability,
		logger:            logger.Named("traits"),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Merge folds a batch of traits for one user into their stored profile.
// The whole batch commits atomically; on a failed commit nothing is written
// and the caller may retry the batch.
func (e *MergeEngine) Merge(ctx context.Context, userID string, batch []Trait) (*MergeStats, error) {
	var stats *MergeStats
	err := e.store.UpdateProfile(ctx, userID, func(p *Profile) error {
		stats = e.apply(p, batch)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("traits merged",
		zap.String("user_id", userID),
		zap.Int("batch", len(batch)),
		zap.Int("discarded", stats.Discarded),
		zap.Int("conflicts_resolved", stats.ConflictsResolved),
	)
	return stats, nil
}

// apply mutates the profile in memory. It runs inside the store's
// transaction, so a later commit failure discards everything done here.
func (e *MergeEngine) apply(p *Profile, batch []Trait) *MergeStats {
	stats := newMergeStats()
	now := e.now().UTC()

	// Track what this batch added per category, so conflict resolution can
	// keep the added counters accurate.
	addedThisBatch := map[TraitType]map[string]bool{
		TraitInterest: {},
		TraitDislike:  {},
	}

	for _, trait := range batch {
		if !trait.Type.IsValid() || trait.Name == "" {
			stats.Discarded++
			continue
		}

		confidence := trait.Confidence * e.reliability(trait.Source)
		if confidence < e.minConfidence {
			stats.Discarded++
			continue
		}

		entry := TraitEntry{
			Name:       trait.Name,
			Category:   trait.Category,
			Confidence: confidence,
			Evidence:   trait.Evidence,
			Source:     trait.Source,
			Strength:   trait.Strength,
			UpdatedAt:  now,
		}

		switch trait.Type {
		case TraitSkill:
			e.upsertList(&p.Skills, entry, TraitSkill, stats, nil)
		case TraitInterest:
			e.upsertList(&p.Interests, entry, TraitInterest, stats, addedThisBatch[TraitInterest])
		case TraitDislike:
			e.upsertList(&p.Dislikes, entry, TraitDislike, stats, addedThisBatch[TraitDislike])
		case TraitPreference:
			e.upsertMap(p.Preferences, PreferenceKey(trait.Category, trait.Name), entry, TraitPreference, stats)
		case TraitAttribute:
			e.upsertMap(p.Attributes, NormalizeName(trait.Name), entry, TraitAttribute, stats)
		}
	}

	e.resolveConflicts(p, stats, addedThisBatch)
	return stats
}

func (e *MergeEngine) reliability(source string) float64 {
	if factor, ok := e.sourceReliability[source]; ok {
		return factor
	}
	return 1.0
}

// upsertList overwrites a same-named entry in place when the new confidence
// is at least the stored one; a lower-confidence update is ignored, never
// merged. Unmatched entries are appended.
func (e *MergeEngine) upsertList(list *[]TraitEntry, entry TraitEntry, category TraitType, stats *MergeStats, batchNames map[string]bool) {
	key := NormalizeName(entry.Name)
	for i := range *list {
		if NormalizeName((*list)[i].Name) == key {
			if entry.Confidence >= (*list)[i].Confidence {
				(*list)[i] = entry
				stats.Updated[category]++
			} else {
				stats.Discarded++
			}
			return
		}
	}
	*list = append(*list, entry)
	stats.Added[category]++
	if batchNames != nil {
		batchNames[key] = true
	}
}

func (e *MergeEngine) upsertMap(m map[string]TraitEntry, key string, entry TraitEntry, category TraitType, stats *MergeStats) {
	existing, ok := m[key]
	if ok {
		if entry.Confidence >= existing.Confidence {
			m[key] = entry
			stats.Updated[category]++
		} else {
			stats.Discarded++
		}
		return
	}
	m[key] = entry
	stats.Added[category]++
}

// resolveConflicts reconciles names present in both interests and dislikes.
// Independent extraction passes can legitimately produce contradictory
// signals; the profile must converge to one answer. The higher-confidence
// side wins, ties favor the interest.
func (e *MergeEngine) resolveConflicts(p *Profile, stats *MergeStats, addedThisBatch map[TraitType]map[string]bool) {
	dislikeByName := make(map[string]int, len(p.Dislikes))
	for i, d := range p.Dislikes {
		dislikeByName[NormalizeName(d.Name)] = i
	}

	var keepInterests []TraitEntry
	removeDislikes := make(map[string]bool)

	for _, interest := range p.Interests {
		key := NormalizeName(interest.Name)
		di, collides := dislikeByName[key]
		if !collides {
			keepInterests = append(keepInterests, interest)
			continue
		}

		stats.ConflictsResolved++
		if interest.Confidence >= p.Dislikes[di].Confidence {
			keepInterests = append(keepInterests, interest)
			removeDislikes[key] = true
			if addedThisBatch[TraitDislike][key] {
				stats.Added[TraitDislike]--
			}
		} else {
			if addedThisBatch[TraitInterest][key] {
				stats.Added[TraitInterest]--
			}
		}
	}

	if len(removeDislikes) > 0 {
		var keepDislikes []TraitEntry
		for _, d := range p.Dislikes {
			if !removeDislikes[NormalizeName(d.Name)] {
				keepDislikes = append(keepDislikes, d)
			}
		}
		if keepDislikes == nil {
			keepDislikes = []TraitEntry{}
		}
		p.Dislikes = keepDislikes
	}

	if keepInterests == nil {
		keepInterests = []TraitEntry{}
	}
	p.Interests = keepInterests
}
