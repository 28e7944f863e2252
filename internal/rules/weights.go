package rules

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// WeightsSchemaVersion is the layout written by Weights.MarshalJSON.
const WeightsSchemaVersion = "v1.0.0"

// Weights is an immutable snapshot of learned (category, signal) weights.
// Pairs the snapshot does not hold resolve to the configured rule weight,
// then to the configured fallback weight. A new snapshot is produced by
// Recompute and published by swapping the pointer; readers keep the
// pointer they loaded for the whole classification.
type Weights struct {
	schemaVersion string
	version       int64
	lastSequence  int64
	updatedAt     time.Time
	entries       map[string]map[string]float64
}

// EmptyWeights returns version 0: every weight comes from configuration.
func EmptyWeights() *Weights {
	return &Weights{
		schemaVersion: WeightsSchemaVersion,
		entries:       map[string]map[string]float64{},
	}
}

// NewWeights builds a snapshot from a copy of entries.
func NewWeights(version, lastSequence int64, updatedAt time.Time, entries map[string]map[string]float64) *Weights {
	w := &Weights{
		schemaVersion: WeightsSchemaVersion,
		version:       version,
		lastSequence:  lastSequence,
		updatedAt:     updatedAt,
		entries:       make(map[string]map[string]float64, len(entries)),
	}
	for cat, signals := range entries {
		inner := make(map[string]float64, len(signals))
		for k, v := range signals {
			inner[k] = v
		}
		w.entries[cat] = inner
	}
	return w
}

func (w *Weights) Version() int64        { return w.version }
func (w *Weights) LastSequence() int64   { return w.lastSequence }
func (w *Weights) UpdatedAt() time.Time  { return w.updatedAt }
func (w *Weights) SchemaVersion() string { return w.schemaVersion }

// Get returns the learned weight for a pair, if the snapshot holds one.
func (w *Weights) Get(category, key string) (float64, bool) {
	v, ok := w.entries[category][key]
	return v, ok
}

// Lookup resolves the effective weight for a pair.
func (w *Weights) Lookup(cfg *Config, category, key string) float64 {
	if v, ok := w.Get(category, key); ok {
		return v
	}
	if v, ok := cfg.RuleWeight(category, key); ok {
		return v
	}
	return cfg.FallbackWeight()
}

// Signals returns the learned signal keys for category, sorted.
func (w *Weights) Signals(category string) []string {
	return sortedKeys(w.entries[category])
}

// Categories returns the categories that hold learned weights, sorted.
func (w *Weights) Categories() []string {
	return sortedKeys(w.entries)
}

// Len returns the number of learned pairs.
func (w *Weights) Len() int {
	n := 0
	for _, signals := range w.entries {
		n += len(signals)
	}
	return n
}

func (w *Weights) cloneEntries() map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(w.entries))
	for cat, signals := range w.entries {
		inner := make(map[string]float64, len(signals))
		for k, v := range signals {
			inner[k] = v
		}
		out[cat] = inner
	}
	return out
}

type weightsDoc struct {
	SchemaVersion string                        `json:"schema_version"`
	Version       int64                         `json:"version"`
	LastSequence  int64                         `json:"last_sequence"`
	UpdatedAt     time.Time                     `json:"updated_at"`
	Weights       map[string]map[string]float64 `json:"weights"`
}

// legacyWeightsDoc is the v0 layout: a flat "category|signal" map.
type legacyWeightsDoc struct {
	Version int64              `json:"version"`
	Weights map[string]float64 `json:"weights"`
}

func (w *Weights) MarshalJSON() ([]byte, error) {
	return json.Marshal(weightsDoc{
		SchemaVersion: w.schemaVersion,
		Version:       w.version,
		LastSequence:  w.lastSequence,
		UpdatedAt:     w.updatedAt,
		Weights:       w.entries,
	})
}

// DecodeWeights parses a persisted snapshot written under schemaVersion,
// migrating older layouts to the current one.
func DecodeWeights(data []byte, schemaVersion string) (*Weights, error) {
	if !semver.IsValid(schemaVersion) {
		return nil, &ValidationError{Field: "schema_version", Value: schemaVersion, Reason: "not a semantic version"}
	}

	switch semver.Major(schemaVersion) {
	case semver.Major(WeightsSchemaVersion):
		var doc weightsDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode weights: %w", err)
		}
		w := NewWeights(doc.Version, doc.LastSequence, doc.UpdatedAt, doc.Weights)
		return w, nil
	case "v0":
		return migrateLegacyWeights(data)
	default:
		return nil, &ValidationError{
			Field:  "schema_version",
			Value:  schemaVersion,
			Reason: fmt.Sprintf("newer than supported %s", WeightsSchemaVersion),
		}
	}
}

func migrateLegacyWeights(data []byte) (*Weights, error) {
	var doc legacyWeightsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode legacy weights: %w", err)
	}
	entries := make(map[string]map[string]float64)
	for pair, v := range doc.Weights {
		cat, key, ok := strings.Cut(pair, "|")
		if !ok {
			return nil, &ValidationError{Field: "legacy weight", Value: pair, Reason: "expected category|signal"}
		}
		if entries[cat] == nil {
			entries[cat] = make(map[string]float64)
		}
		entries[cat][key] = v
	}
	return NewWeights(doc.Version, 0, time.Time{}, entries), nil
}

// Equal reports whether two snapshots hold the same learned pairs.
func (w *Weights) Equal(o *Weights) bool {
	if w.Len() != o.Len() {
		return false
	}
	for _, cat := range w.Categories() {
		for _, key := range w.Signals(cat) {
			ov, ok := o.Get(cat, key)
			if !ok || ov != w.entries[cat][key] {
				return false
			}
		}
	}
	return true
}
