package screen

import (
	"testing"

	"github.com/nmtc-exchange/automatch/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e
}

func sampleMatch(score int) (*domain.DealProfile, *domain.CDEProfile, *domain.MatchResult) {
	deal := &domain.DealProfile{
		DealID:            "deal-1",
		State:             "IL",
		AllocationRequest: 8_000_000,
	}
	cde := &domain.CDEProfile{
		ID:              "cde-1",
		Name:            "Test CDE",
		Status:          domain.CDEStatusActive,
		AmountRemaining: 10_000_000,
	}
	return deal, cde, &domain.MatchResult{DealID: "deal-1", CDEID: "cde-1", Score: score}
}

func TestLoadScreen(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	err := e.LoadScreen(&domain.ScreenConfig{
		ID:         "screen-1",
		Name:       "Low score",
		Expression: "score < 50",
		Action:     domain.ScreenActionExclude,
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("failed to load screen: %v", err)
	}
	if e.ScreensCount() != 1 {
		t.Errorf("expected 1 screen, got %d", e.ScreensCount())
	}
}

func TestLoadInvalidScreen(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	if err := e.LoadScreen(&domain.ScreenConfig{
		ID:         "bad",
		Expression: "this is not CEL !!!",
	}); err == nil {
		t.Error("expected error for invalid expression")
	}

	if err := e.LoadScreen(&domain.ScreenConfig{
		ID:         "non-bool",
		Expression: "score + 1",
	}); err == nil {
		t.Error("expected error for non-bool expression")
	}
}

func TestExcludeScreen(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	e.LoadScreen(&domain.ScreenConfig{
		ID:         "screen-1",
		Name:       "Depleted allocation",
		Expression: "amount_remaining <= 0.0",
		Action:     domain.ScreenActionExclude,
		Enabled:    true,
	})

	deal, cde, res := sampleMatch(93)
	cde.AmountRemaining = 0

	out := e.Apply(deal, cde, res)
	if !out.Excluded {
		t.Error("expected exclusion for depleted CDE")
	}
	if out.ExcludedBy != "Depleted allocation" {
		t.Errorf("expected screen name in outcome, got %q", out.ExcludedBy)
	}

	cde.AmountRemaining = 1_000_000
	if out := e.Apply(deal, cde, res); out.Excluded {
		t.Error("funded CDE should not be excluded")
	}
}

func TestFlagScreen(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	e.LoadScreen(&domain.ScreenConfig{
		ID:         "screen-1",
		Name:       "Large request",
		Expression: "allocation_request > 25000000.0 && strength != 'excellent'",
		Action:     domain.ScreenActionFlag,
		Reason:     "Large request against a non-excellent match",
		Enabled:    true,
	})

	deal, cde, res := sampleMatch(60)
	deal.AllocationRequest = 30_000_000

	out := e.Apply(deal, cde, res)
	if out.Excluded {
		t.Error("flag screens must not exclude")
	}
	if len(out.Flags) != 1 || out.Flags[0] != "Large request against a non-excellent match" {
		t.Errorf("unexpected flags: %v", out.Flags)
	}
}

func TestScreenOrderDeterministic(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	e.LoadScreens([]*domain.ScreenConfig{
		{ID: "b-screen", Name: "B", Expression: "true", Action: domain.ScreenActionFlag, Reason: "flag b", Enabled: true},
		{ID: "a-screen", Name: "A", Expression: "true", Action: domain.ScreenActionFlag, Reason: "flag a", Enabled: true},
	})

	deal, cde, res := sampleMatch(80)
	out := e.Apply(deal, cde, res)

	if len(out.Flags) != 2 || out.Flags[0] != "flag a" || out.Flags[1] != "flag b" {
		t.Errorf("flags should follow screen ID order, got %v", out.Flags)
	}
}

func TestReloadScreens(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	e.LoadScreen(&domain.ScreenConfig{ID: "old", Expression: "true", Action: domain.ScreenActionFlag, Reason: "old", Enabled: true})

	err := e.ReloadScreens([]*domain.ScreenConfig{
		{ID: "new", Expression: "score >= 0", Action: domain.ScreenActionFlag, Reason: "new", Enabled: true},
		{ID: "disabled", Expression: "true", Action: domain.ScreenActionFlag, Enabled: false},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if e.ScreensCount() != 1 {
		t.Errorf("expected 1 screen after reload, got %d", e.ScreensCount())
	}
}

func TestDealFieldsAvailable(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	e.LoadScreen(&domain.ScreenConfig{
		ID:         "tribal-advisory",
		Name:       "Tribal advisory",
		Expression: "deal.tribal == true && cde.year < 2024",
		Action:     domain.ScreenActionFlag,
		Reason:     "Verify tribal set-aside for pre-2024 rounds",
		Enabled:    true,
	})

	deal, cde, res := sampleMatch(80)
	deal.Tribal = domain.Yes
	cde.Year = 2022

	out := e.Apply(deal, cde, res)
	if len(out.Flags) != 1 {
		t.Errorf("expected tribal advisory flag, got %v", out.Flags)
	}
}
