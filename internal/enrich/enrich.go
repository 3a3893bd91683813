// Package enrich derives the scoring fields raw CDE directory records often
// lack. The scoring engine requires an enriched profile and never re-derives
// these itself, so every scan path runs records through this pass first.
package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/nmtc-exchange/automatch/internal/domain"
	"github.com/nmtc-exchange/automatch/internal/match"
)

// NonMetroRuralThreshold is the non-metro commitment percentage at or above
// which a CDE is treated as rural-focused.
const NonMetroRuralThreshold = 40

// Canonical sector vocabulary. Keyword hits in predominant financing or
// market text map the CDE onto these labels.
var sectorKeywords = map[string][]string{
	"Healthcare":           {"health", "hospital", "clinic", "medical"},
	"Education":            {"education", "school", "charter"},
	"Housing":              {"housing", "residential"},
	"Manufacturing":        {"manufactur", "industrial"},
	"Retail":               {"retail", "grocery"},
	"Community Facilities": {"community facilit", "community center"},
	"Mixed-Use":            {"mixed use"},
	"Office":               {"office", "commercial real estate"},
}

// sectorOrder keeps derived sector lists deterministic.
var sectorOrder = []string{
	"Healthcare",
	"Education",
	"Housing",
	"Manufacturing",
	"Retail",
	"Community Facilities",
	"Mixed-Use",
	"Office",
}

// Innovative-activities keywords for the boolean focus flags.
var (
	nativeKeywords = []string{"native", "tribal", "indian country", "aian"}
	smallKeywords  = []string{"small deal", "small dollar", "smaller transaction"}
	utsKeywords    = []string{"underserved state", "targeted state", "underserved area"}
)

// Service enriches CDE directory records, caching the result so bulk scans
// do not re-derive the same profile per deal.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// NewService creates an enrichment service. cache may be nil, in which case
// every call derives fresh.
func NewService(repo domain.Repository, cache domain.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{repo: repo, cache: cache, ttl: ttl}
}

// Enrich fills absent derived fields on a copy of the record. Fields already
// present are kept as-is; enrichment only supplements, it never overrides an
// explicit value.
func Enrich(cde *domain.CDEProfile) *domain.CDEProfile {
	out := *cde
	out.PrimaryStates = append([]string(nil), cde.PrimaryStates...)
	out.TargetSectors = append([]string(nil), cde.TargetSectors...)

	if len(out.PrimaryStates) == 0 {
		out.PrimaryStates = statesFromMarket(cde.PredominantMarket)
	}

	if !out.RuralFocus && cde.NonMetroCommitment >= NonMetroRuralThreshold {
		out.RuralFocus = true
	}

	if activities := match.NormalizeText(cde.InnovativeActivities); activities != "" {
		if !out.NativeAmericanFocus && containsAny(activities, nativeKeywords) {
			out.NativeAmericanFocus = true
		}
		if !out.SmallDealFund && containsAny(activities, smallKeywords) {
			out.SmallDealFund = true
		}
		if !out.UTSFocus && containsAny(activities, utsKeywords) {
			out.UTSFocus = true
		}
	}

	if len(out.TargetSectors) == 0 {
		out.TargetSectors = sectorsFromText(cde.PredominantFinancing, cde.PredominantMarket)
	}

	return &out
}

// EnrichedCDE returns the enriched profile for one CDE, consulting the
// cache before the repository.
func (s *Service) EnrichedCDE(ctx context.Context, cdeID string) (*domain.CDEProfile, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetCDEProfile(ctx, cdeID); err == nil && cached != nil {
			return cached, nil
		}
	}

	raw, err := s.repo.GetCDE(ctx, cdeID)
	if err != nil {
		return nil, err
	}

	enriched := Enrich(raw)

	if s.cache != nil {
		// Best effort; a cache failure never blocks scoring.
		_ = s.cache.SetCDEProfile(ctx, cdeID, enriched, s.ttl)
	}
	return enriched, nil
}

// EnrichedActiveCDEs returns all active CDEs enriched for a bulk scan.
func (s *Service) EnrichedActiveCDEs(ctx context.Context) ([]*domain.CDEProfile, error) {
	raw, err := s.repo.ListActiveCDEs(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.CDEProfile, 0, len(raw))
	for _, cde := range raw {
		out = append(out, Enrich(cde))
	}
	return out, nil
}

// Invalidate drops the cached profile after a CDE update.
func (s *Service) Invalidate(ctx context.Context, cdeID string) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "cde:"+cdeID)
	}
}

// statesFromMarket extracts state abbreviations from comma/semicolon
// delimited market text. Only tokens that resolve to a real state count.
func statesFromMarket(market string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(market, func(r rune) bool {
		return r == ',' || r == ';'
	}) {
		st, ok := match.ResolveState(tok)
		if !ok || seen[st.Abbrev] {
			continue
		}
		seen[st.Abbrev] = true
		out = append(out, st.Abbrev)
	}
	return out
}

// sectorsFromText maps financing and market free text onto the canonical
// sector vocabulary.
func sectorsFromText(financing, market string) []string {
	text := match.NormalizeText(financing + " " + market)
	if text == "" {
		return nil
	}

	var out []string
	for _, sector := range sectorOrder {
		if containsAny(text, sectorKeywords[sector]) {
			out = append(out, sector)
		}
	}
	return out
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
