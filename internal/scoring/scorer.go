// Package scoring rates segments by how much meaningful activity they hold.
package scoring

import (
	"log/slog"
	"math"

	"github.com/mfenderov/browseflow/pkg/models"
)

// Config holds the scoring tables and the quality gate.
type Config struct {
	EventWeights  map[string]float64 `mapstructure:"event_weights"`
	DefaultWeight float64            `mapstructure:"default_weight"`
	TypeBonuses   map[string]float64 `mapstructure:"type_bonuses"`
	MinutesFactor float64            `mapstructure:"minutes_factor"` // per-minute duration multiplier
	Normalizer    float64            `mapstructure:"normalizer"`
	MinConfidence float64            `mapstructure:"min_confidence"`
}

// DefaultConfig returns the standard weights.
func DefaultConfig() Config {
	return Config{
		EventWeights: map[string]float64{
			models.EventPageLoad:   3.0,
			models.EventClick:      2.0,
			models.EventType:       2.5,
			models.EventHighlight:  1.5,
			models.EventCopy:       2.0,
			models.EventPaste:      2.0,
			models.EventTabSwitch:  1.0,
			models.EventTabRemoval: 0.5,
		},
		DefaultWeight: 1.0,
		TypeBonuses: map[string]float64{
			"form_filling":        1.5,
			"navigation":          1.2,
			"content_interaction": 1.3,
			"search":              1.4,
			"mixed_activity":      1.1,
		},
		MinutesFactor: 0.1,
		Normalizer:    20.0,
		MinConfidence: 0.3,
	}
}

// Scorer computes normalized confidence scores.
type Scorer struct {
	config Config
}

// New creates a Scorer. Missing tables and zero factors fall back to the
// defaults. MinConfidence is taken as given.
func New(config Config) *Scorer {
	def := DefaultConfig()
	if config.EventWeights == nil {
		config.EventWeights = def.EventWeights
	}
	if config.DefaultWeight == 0 {
		config.DefaultWeight = def.DefaultWeight
	}
	if config.TypeBonuses == nil {
		config.TypeBonuses = def.TypeBonuses
	}
	if config.MinutesFactor == 0 {
		config.MinutesFactor = def.MinutesFactor
	}
	if config.Normalizer == 0 {
		config.Normalizer = def.Normalizer
	}
	return &Scorer{config: config}
}

// MinConfidence is the quality gate used by Apply.
func (s *Scorer) MinConfidence() float64 { return s.config.MinConfidence }

func (s *Scorer) weight(eventType string) float64 {
	if w, ok := s.config.EventWeights[eventType]; ok {
		return w
	}
	return s.config.DefaultWeight
}

// Score returns the confidence of an event-level segment in [0, 1].
func (s *Scorer) Score(seg models.Segment) float64 {
	base := 0.0
	for _, t := range seg.EventTypes {
		base += s.weight(t)
	}
	return s.finish(base, seg.DurationMS, seg.SegmentType)
}

// ScorePageSegment scores a page segment with the same formula. Each page
// counts as one page load plus its remaining raw events at the default weight.
func (s *Scorer) ScorePageSegment(seg models.PageSegment) float64 {
	base := 0.0
	for _, p := range seg.Pages {
		base += s.weight(models.EventPageLoad)
		if p.EventCount > 1 {
			base += float64(p.EventCount-1) * s.config.DefaultWeight
		}
	}
	return s.finish(base, seg.DurationMS(), seg.SegmentType)
}

func (s *Scorer) finish(base float64, durationMS int64, segmentType string) float64 {
	minutes := float64(durationMS) / 60000.0
	raw := base * (1 + minutes*s.config.MinutesFactor)
	if bonus, ok := s.config.TypeBonuses[segmentType]; ok {
		raw *= bonus
	}
	score := raw / s.config.Normalizer

	switch {
	case math.IsNaN(score) || score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}

// Apply writes ConfidenceScore onto every segment and returns those at or
// above MinConfidence. The input slice is not modified.
func (s *Scorer) Apply(segments []models.Segment) []models.Segment {
	kept := []models.Segment{}
	for _, seg := range segments {
		seg.ConfidenceScore = s.Score(seg)
		if seg.ConfidenceScore < s.config.MinConfidence {
			slog.Debug("segment below confidence gate", "domain", seg.Domain, "score", seg.ConfidenceScore)
			continue
		}
		kept = append(kept, seg)
	}
	slog.Info("scored segments", "segments", len(segments), "kept", len(kept))
	return kept
}

// ApplyPages is Apply for page segments. The returned scores are parallel to
// the kept segments.
func (s *Scorer) ApplyPages(segments []models.PageSegment) ([]models.PageSegment, []float64) {
	kept := []models.PageSegment{}
	var scores []float64
	for _, seg := range segments {
		score := s.ScorePageSegment(seg)
		if score < s.config.MinConfidence {
			slog.Debug("page segment below confidence gate", "domain", seg.Domain(), "score", score)
			continue
		}
		kept = append(kept, seg)
		scores = append(scores, score)
	}
	slog.Info("scored page segments", "segments", len(segments), "kept", len(kept))
	return kept, scores
}
