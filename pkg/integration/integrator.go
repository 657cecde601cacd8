// Package integration merges per-source result sets into ranked
// global-schema records: standardization, entity resolution with field
// fusion, relevance scoring and top-K pruning.
package integration

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-federation/pkg/knowledge"
	"github.com/ekaya-inc/ekaya-federation/pkg/models"
)

// DefaultLimit is used when Integrate is called with limit <= 0.
const DefaultLimit = 10

// SourceResolver supplies the global schema and per-source mappings.
type SourceResolver interface {
	Global() models.GlobalSchema
	Source(name string) (*models.SourceDescriptor, error)
}

// Fields names the global attributes the resolver and scorer read.
type Fields struct {
	Company     string
	Title       string
	Skills      string
	Description string
	Location    string
	PostedAt    string
}

// DefaultFields returns the attribute names of the jobs global schema.
func DefaultFields() Fields {
	return Fields{
		Company:     "company_name",
		Title:       "title",
		Skills:      "skills",
		Description: "description",
		Location:    "location",
		PostedAt:    "job_posting_date",
	}
}

// DefaultMergeable lists the attributes fused by "longer value wins".
var DefaultMergeable = []string{
	"salary_range", "skills", "description", "location",
	"job_posting_date", "experience_required", "work_type",
}

// Config holds the tunable parameters of one Integrator.
type Config struct {
	// SimilarityThreshold is the minimum ratio for company blocking and
	// fuzzy title matching.
	SimilarityThreshold float64
	Weights             Weights
	Fields              Fields
	Mergeable           []string
	// DefaultLimit replaces a non-positive limit.
	DefaultLimit int
	// Now is the reference time for recency; time.Now when nil.
	Now func() time.Time
}

// DefaultConfig returns the stock thresholds and weights.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.85,
		Weights:             DefaultWeights(),
		Fields:              DefaultFields(),
		Mergeable:           DefaultMergeable,
		DefaultLimit:        DefaultLimit,
	}
}

// Integrator turns raw per-source rows into a ranked list of GlobalRecords.
// It holds no per-call state and is safe for concurrent use.
type Integrator struct {
	sources   SourceResolver
	expander  knowledge.Expander
	synonyms  knowledge.SynonymChecker
	cfg       Config
	mergeable map[string]bool
	logger    *zap.Logger
}

// NewIntegrator creates an Integrator. A nil expander or synonym checker
// disables that part of the knowledge graph.
func NewIntegrator(
	sources SourceResolver,
	expander knowledge.Expander,
	synonyms knowledge.SynonymChecker,
	cfg Config,
	logger *zap.Logger,
) *Integrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.Fields == (Fields{}) {
		cfg.Fields = DefaultFields()
	}
	if cfg.Mergeable == nil {
		cfg.Mergeable = DefaultMergeable
	}
	if expander == nil {
		expander = knowledge.Empty()
	}

	mergeable := make(map[string]bool, len(cfg.Mergeable))
	for _, attr := range cfg.Mergeable {
		mergeable[attr] = true
	}

	return &Integrator{
		sources:   sources,
		expander:  expander,
		synonyms:  synonyms,
		cfg:       cfg,
		mergeable: mergeable,
		logger:    logger.Named("integration"),
	}
}

// Integrate standardizes, resolves, scores and ranks results. Results are
// consumed in slice order, then row order, so identical inputs always give
// identical output. Error-marked result sets contribute nothing.
func (it *Integrator) Integrate(results []models.RawResultSet, intent string, limit int) []models.GlobalRecord {
	if limit <= 0 {
		limit = it.cfg.DefaultLimit
	}

	var resolved []models.GlobalRecord
	rows, merged := 0, 0
	for _, rs := range results {
		if rs.Err != nil {
			continue
		}
		src, err := it.sources.Source(rs.Source)
		if err != nil {
			it.logger.Warn("Skipping result set for unknown source",
				zap.String("source", rs.Source))
			continue
		}
		for _, row := range rs.Rows {
			rows++
			rec := Standardize(it.sources.Global(), src, row)
			if i := it.findMatch(resolved, rec); i >= 0 {
				resolved[i] = it.Fuse(resolved[i], rec)
				merged++
				continue
			}
			resolved = append(resolved, rec)
		}
	}

	keywords, neighbors := it.expander.Expand(intent)
	scorer := newScorer(it.cfg.Weights, keywords, neighbors)
	for i := range resolved {
		resolved[i].Score = scorer.score(resolved[i], it.cfg.Fields, it.cfg.Now())
	}

	ranked := Rank(resolved, limit)

	it.logger.Debug("Integrated results",
		zap.Int("rows", rows),
		zap.Int("merged", merged),
		zap.Int("distinct", len(resolved)),
		zap.Int("returned", len(ranked)),
		zap.Strings("keywords", keywords),
		zap.Strings("neighbors", neighbors))

	return ranked
}

// findMatch returns the index of the first record rec matches, or -1.
func (it *Integrator) findMatch(resolved []models.GlobalRecord, rec models.GlobalRecord) int {
	for i := range resolved {
		if it.Match(resolved[i], rec) {
			return i
		}
	}
	return -1
}

// Rank sorts records by descending score, keeping insertion order for ties,
// truncates to limit and strips empty attributes. The input is not modified.
func Rank(records []models.GlobalRecord, limit int) []models.GlobalRecord {
	sorted := make([]models.GlobalRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	if limit >= 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]models.GlobalRecord, len(sorted))
	for i, rec := range sorted {
		out[i] = prune(rec)
	}
	return out
}

func prune(rec models.GlobalRecord) models.GlobalRecord {
	out := rec.Clone()
	for attr, v := range out.Values {
		if models.IsEmptyValue(v) {
			delete(out.Values, attr)
		}
	}
	return out
}
