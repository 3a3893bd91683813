// Package scan orchestrates the matching pipeline: profile derivation,
// CDE enrichment, engine scoring, compliance screens, persistence and event
// publication. Both the HTTP handlers and the async worker run scans through
// this service so the two paths can never drift.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nmtc-exchange/automatch/internal/domain"
	"github.com/nmtc-exchange/automatch/internal/enrich"
	"github.com/nmtc-exchange/automatch/internal/match"
	"github.com/nmtc-exchange/automatch/internal/screen"
)

// Service runs scans end to end.
type Service struct {
	repo     domain.Repository
	engine   *match.Engine
	screens  *screen.Engine
	enricher *enrich.Service
	bus      domain.EventBus

	defaultMinScore   int
	defaultMaxResults int
}

// Config holds scan service settings.
type Config struct {
	DefaultMinScore   int
	DefaultMaxResults int
}

// NewService creates the scan pipeline. screens and bus may be nil; screens
// are then skipped and no events are published.
func NewService(repo domain.Repository, engine *match.Engine, screens *screen.Engine, enricher *enrich.Service, bus domain.EventBus, cfg Config) *Service {
	return &Service{
		repo:              repo,
		engine:            engine,
		screens:           screens,
		enricher:          enricher,
		bus:               bus,
		defaultMinScore:   cfg.DefaultMinScore,
		defaultMaxResults: cfg.DefaultMaxResults,
	}
}

// Result is one scan's output.
type Result struct {
	DealID  string                `json:"dealId,omitempty"`
	CDEID   string                `json:"cdeId,omitempty"`
	Matches []*domain.MatchResult `json:"matches"`

	// Evaluated counts every pair scored before filtering and screens.
	Evaluated int `json:"evaluated"`

	// Excluded counts matches dropped by compliance screens.
	Excluded int `json:"excluded"`

	DurationMs int64 `json:"durationMs"`
}

// Options filter scan output. Zero values fall back to service defaults.
type Options struct {
	MinScore   *int `json:"minScore,omitempty"`
	MaxResults *int `json:"maxResults,omitempty"`

	// Persist saves surviving matches to the repository.
	Persist bool `json:"persist,omitempty"`
}

func (s *Service) scanOptions(opts Options) match.ScanOptions {
	out := match.ScanOptions{
		MinScore:   s.defaultMinScore,
		MaxResults: s.defaultMaxResults,
	}
	if opts.MinScore != nil {
		out.MinScore = *opts.MinScore
	}
	if opts.MaxResults != nil {
		out.MaxResults = *opts.MaxResults
	}
	return out
}

// MatchPair scores a single deal against a single CDE. The result is always
// returned, gate failures included; nothing is filtered or persisted.
func (s *Service) MatchPair(ctx context.Context, dealID, cdeID string) (*domain.MatchResult, error) {
	deal, err := s.repo.GetDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("load deal: %w", err)
	}

	cde, err := s.enricher.EnrichedCDE(ctx, cdeID)
	if err != nil {
		return nil, fmt.Errorf("load cde: %w", err)
	}

	profile := s.profileFor(deal)
	result := s.engine.Score(profile, cde)

	if s.screens != nil {
		outcome := s.screens.Apply(profile, cde, result)
		result.Reasons = append(result.Reasons, outcome.Flags...)
	}

	s.publishScored(ctx, result)
	return result, nil
}

// ScanDeal scores one deal against every active CDE.
func (s *Service) ScanDeal(ctx context.Context, dealID string, opts Options) (*Result, error) {
	start := time.Now()

	deal, err := s.repo.GetDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("load deal: %w", err)
	}

	cdes, err := s.enricher.EnrichedActiveCDEs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cdes: %w", err)
	}

	profile := s.profileFor(deal)
	matches := s.engine.ScanCDEs(ctx, profile, cdes, s.scanOptions(opts))

	byID := make(map[string]*domain.CDEProfile, len(cdes))
	for _, cde := range cdes {
		byID[cde.ID] = cde
	}

	kept, excluded := s.applyScreens(matches, func(m *domain.MatchResult) (*domain.DealProfile, *domain.CDEProfile) {
		return profile, byID[m.CDEID]
	})

	res := &Result{
		DealID:     dealID,
		Matches:    kept,
		Evaluated:  len(cdes),
		Excluded:   excluded,
		DurationMs: time.Since(start).Milliseconds(),
	}

	s.finish(ctx, res, opts)
	return res, nil
}

// ScanCDE is the reciprocal mode: one CDE against every open deal.
func (s *Service) ScanCDE(ctx context.Context, cdeID string, opts Options) (*Result, error) {
	start := time.Now()

	cde, err := s.enricher.EnrichedCDE(ctx, cdeID)
	if err != nil {
		return nil, fmt.Errorf("load cde: %w", err)
	}

	deals, err := s.repo.ListOpenDeals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load deals: %w", err)
	}

	profiles := make([]*domain.DealProfile, 0, len(deals))
	byID := make(map[string]*domain.DealProfile, len(deals))
	for _, deal := range deals {
		p := s.profileFor(deal)
		profiles = append(profiles, p)
		byID[p.DealID] = p
	}

	matches := s.engine.ScanDeals(ctx, cde, profiles, s.scanOptions(opts))

	kept, excluded := s.applyScreens(matches, func(m *domain.MatchResult) (*domain.DealProfile, *domain.CDEProfile) {
		return byID[m.DealID], cde
	})

	res := &Result{
		CDEID:      cdeID,
		Matches:    kept,
		Evaluated:  len(deals),
		Excluded:   excluded,
		DurationMs: time.Since(start).Milliseconds(),
	}

	s.finish(ctx, res, opts)
	return res, nil
}

// profileFor derives the scoring input, resolving the real-estate flag with
// the engine's classifier so the server path and any fallback path classify
// identically.
func (s *Service) profileFor(deal *domain.Deal) *domain.DealProfile {
	profile := deal.Profile()
	profile.RealEstate = s.engine.Tables().ClassifyRealEstate(profile)
	return profile
}

func (s *Service) applyScreens(matches []*domain.MatchResult, pair func(*domain.MatchResult) (*domain.DealProfile, *domain.CDEProfile)) ([]*domain.MatchResult, int) {
	if s.screens == nil || s.screens.ScreensCount() == 0 {
		return matches, 0
	}

	kept := matches[:0]
	excluded := 0
	for _, m := range matches {
		deal, cde := pair(m)
		if deal == nil || cde == nil {
			kept = append(kept, m)
			continue
		}

		outcome := s.screens.Apply(deal, cde, m)
		if outcome.Excluded {
			excluded++
			slog.Debug("match excluded by screen",
				"deal_id", m.DealID,
				"cde_id", m.CDEID,
				"screen", outcome.ExcludedBy,
			)
			continue
		}
		m.Reasons = append(m.Reasons, outcome.Flags...)
		kept = append(kept, m)
	}
	return kept, excluded
}

func (s *Service) finish(ctx context.Context, res *Result, opts Options) {
	if opts.Persist {
		for _, m := range res.Matches {
			if err := s.repo.SaveMatch(ctx, m); err != nil {
				slog.Error("failed to save match",
					"match_id", m.ID,
					"error", err,
				)
			}
		}
	}

	for _, m := range res.Matches {
		s.publishScored(ctx, m)
	}

	if s.bus != nil {
		payload, _ := json.Marshal(res)
		if err := s.bus.Publish(ctx, domain.TopicScanCompleted, payload); err != nil {
			slog.Error("failed to publish scan completion", "error", err)
		}
	}
}

func (s *Service) publishScored(ctx context.Context, m *domain.MatchResult) {
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(m)
	if err := s.bus.Publish(ctx, domain.TopicMatchScored, payload); err != nil {
		slog.Error("failed to publish match",
			"match_id", m.ID,
			"error", err,
		)
	}
}
