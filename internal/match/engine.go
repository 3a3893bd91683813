package match

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nmtc-exchange/automatch/internal/domain"
)

// EngineVersion is stamped onto every result so persisted scores can be
// traced to the scoring logic that produced them.
const EngineVersion = "1.0.0"

// Engine scores deal/CDE pairs. It holds only immutable reference tables
// and is safe for concurrent use; every Score call is a pure function of
// its two inputs.
type Engine struct {
	tables     *Tables
	maxWorkers int
}

// NewEngine creates a scoring engine over the given reference tables.
// Passing nil tables uses the built-in defaults.
func NewEngine(tables *Tables, maxWorkers int) *Engine {
	if tables == nil {
		tables = DefaultTables()
	}
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &Engine{tables: tables, maxWorkers: maxWorkers}
}

// Tables returns the engine's reference tables.
func (e *Engine) Tables() *Tables { return e.tables }

// Score evaluates one deal against one CDE. It never mutates either input
// and never fails: malformed optional fields degrade to their per-criterion
// defaults, and the only hard stop, an unresolvable deal state, surfaces as
// a geographic gate failure with score 0.
func (e *Engine) Score(deal *domain.DealProfile, cde *domain.CDEProfile) *domain.MatchResult {
	now := time.Now().UTC()

	geoPass, geoReason := e.tables.geographicGate(deal, cde)
	if !geoPass {
		return &domain.MatchResult{
			ID:            uuid.New().String(),
			DealID:        deal.DealID,
			CDEID:         cde.ID,
			Score:         0,
			Breakdown:     map[string]int{CriterionGeographic: 0},
			GateFailure:   geoReason,
			EngineVersion: EngineVersion,
			CreatedAt:     now,
		}
	}

	finPass, finReason := e.tables.financingGate(deal, cde)
	if !finPass {
		return &domain.MatchResult{
			ID:            uuid.New().String(),
			DealID:        deal.DealID,
			CDEID:         cde.ID,
			Score:         0,
			Breakdown:     map[string]int{CriterionGeographic: 1, CriterionFinancing: 0},
			GateFailure:   finReason,
			EngineVersion: EngineVersion,
			CreatedAt:     now,
		}
	}

	results := make([]criterionResult, 0, CriteriaCount)
	results = append(results,
		criterionResult{name: CriterionGeographic, pass: true, reason: geoReason},
		criterionResult{name: CriterionFinancing, pass: true, reason: finReason},
	)
	results = append(results, e.tables.evaluateCriteria(deal, cde)...)

	breakdown := make(map[string]int, len(results))
	var reasons []string
	passed := 0
	for _, r := range results {
		v := 0
		if r.pass {
			v = 1
			passed++
			if r.reason != "" {
				reasons = append(reasons, r.reason)
			}
		}
		breakdown[r.name] = v
	}

	score := int(math.Round(float64(passed) / CriteriaCount * 100))

	return &domain.MatchResult{
		ID:            uuid.New().String(),
		DealID:        deal.DealID,
		CDEID:         cde.ID,
		Score:         score,
		Reasons:       reasons,
		Breakdown:     breakdown,
		EngineVersion: EngineVersion,
		CreatedAt:     now,
	}
}

// ScanOptions filter bulk scan output.
type ScanOptions struct {
	// MinScore drops results scoring below it.
	MinScore int

	// MaxResults caps the list after sorting. Zero means no cap.
	MaxResults int
}

// ScanCDEs scores one deal against many CDEs in parallel and returns the
// surviving results sorted by score descending, CDE ID ascending for
// determinism. Inactive CDEs are skipped. Each pair is independent, so the
// scan is a bounded parallel map; ctx cancellation stops scheduling new
// evaluations but in-flight ones complete.
func (e *Engine) ScanCDEs(ctx context.Context, deal *domain.DealProfile, cdes []*domain.CDEProfile, opts ScanOptions) []*domain.MatchResult {
	results := make([]*domain.MatchResult, len(cdes))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, cde := range cdes {
		if !cde.Active() {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(idx int, c *domain.CDEProfile) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = e.Score(deal, c)
		}(i, cde)
	}

	wg.Wait()

	kept := make([]*domain.MatchResult, 0, len(results))
	for _, r := range results {
		if r == nil || r.Score < opts.MinScore {
			continue
		}
		kept = append(kept, r)
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].CDEID < kept[j].CDEID
	})

	if opts.MaxResults > 0 && len(kept) > opts.MaxResults {
		kept = kept[:opts.MaxResults]
	}
	return kept
}

// ScanDeals is the reciprocal bulk mode: one CDE against many deals, same
// contract with roles swapped. Sorted by score descending, deal ID
// ascending.
func (e *Engine) ScanDeals(ctx context.Context, cde *domain.CDEProfile, deals []*domain.DealProfile, opts ScanOptions) []*domain.MatchResult {
	results := make([]*domain.MatchResult, len(deals))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, deal := range deals {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(idx int, d *domain.DealProfile) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = e.Score(d, cde)
		}(i, deal)
	}

	wg.Wait()

	kept := make([]*domain.MatchResult, 0, len(results))
	for _, r := range results {
		if r == nil || r.Score < opts.MinScore {
			continue
		}
		kept = append(kept, r)
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].DealID < kept[j].DealID
	})

	if opts.MaxResults > 0 && len(kept) > opts.MaxResults {
		kept = kept[:opts.MaxResults]
	}
	return kept
}
