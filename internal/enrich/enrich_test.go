package enrich

import (
	"context"
	"reflect"
	"testing"

	"github.com/nmtc-exchange/automatch/internal/domain"
)

func TestEnrichPrimaryStates(t *testing.T) {
	cde := &domain.CDEProfile{
		ID:                "cde-1",
		PredominantMarket: "Illinois, IN; Wisconsin, Chicago metro, IL",
	}

	out := Enrich(cde)

	want := []string{"IL", "IN", "WI"}
	if !reflect.DeepEqual(out.PrimaryStates, want) {
		t.Errorf("derived states = %v, want %v", out.PrimaryStates, want)
	}
	if len(cde.PrimaryStates) != 0 {
		t.Error("enrichment must not mutate the input record")
	}
}

func TestEnrichKeepsExplicitStates(t *testing.T) {
	cde := &domain.CDEProfile{
		PrimaryStates:     []string{"TX"},
		PredominantMarket: "Illinois, Indiana",
	}
	out := Enrich(cde)
	if !reflect.DeepEqual(out.PrimaryStates, []string{"TX"}) {
		t.Errorf("explicit primary states should win, got %v", out.PrimaryStates)
	}
}

func TestEnrichRuralFocus(t *testing.T) {
	if out := Enrich(&domain.CDEProfile{NonMetroCommitment: 40}); !out.RuralFocus {
		t.Error("40% non-metro commitment should set rural focus")
	}
	if out := Enrich(&domain.CDEProfile{NonMetroCommitment: 39.9}); out.RuralFocus {
		t.Error("below-threshold commitment should not set rural focus")
	}
}

func TestEnrichInnovativeActivities(t *testing.T) {
	cde := &domain.CDEProfile{
		InnovativeActivities: "Dedicated Small-Deal fund; lending in Indian Country and underserved states",
	}
	out := Enrich(cde)

	if !out.SmallDealFund {
		t.Error("small deal keyword should set the fund flag")
	}
	if !out.NativeAmericanFocus {
		t.Error("indian country keyword should set native american focus")
	}
	if !out.UTSFocus {
		t.Error("underserved states keyword should set UTS focus")
	}
}

func TestEnrichTargetSectors(t *testing.T) {
	cde := &domain.CDEProfile{
		PredominantFinancing: "Charter School and Health Center facilities",
		PredominantMarket:    "Affordable housing projects",
	}
	out := Enrich(cde)

	want := []string{"Healthcare", "Education", "Housing"}
	if !reflect.DeepEqual(out.TargetSectors, want) {
		t.Errorf("derived sectors = %v, want %v", out.TargetSectors, want)
	}
}

type fakeRepo struct {
	domain.Repository
	cde *domain.CDEProfile
}

func (f *fakeRepo) GetCDE(ctx context.Context, id string) (*domain.CDEProfile, error) {
	return f.cde, nil
}

func (f *fakeRepo) ListActiveCDEs(ctx context.Context) ([]*domain.CDEProfile, error) {
	return []*domain.CDEProfile{f.cde}, nil
}

func TestEnrichedCDE(t *testing.T) {
	repo := &fakeRepo{cde: &domain.CDEProfile{
		ID:                 "cde-1",
		PredominantMarket:  "IL, IN",
		NonMetroCommitment: 55,
	}}
	svc := NewService(repo, nil, 0)

	out, err := svc.EnrichedCDE(context.Background(), "cde-1")
	if err != nil {
		t.Fatalf("enrich failed: %v", err)
	}
	if !out.RuralFocus {
		t.Error("expected rural focus from non-metro commitment")
	}
	if len(out.PrimaryStates) != 2 {
		t.Errorf("expected 2 derived states, got %v", out.PrimaryStates)
	}
}

func TestEnrichedActiveCDEs(t *testing.T) {
	repo := &fakeRepo{cde: &domain.CDEProfile{ID: "cde-1", PredominantMarket: "Texas"}}
	svc := NewService(repo, nil, 0)

	out, err := svc.EnrichedActiveCDEs(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(out) != 1 || len(out[0].PrimaryStates) != 1 || out[0].PrimaryStates[0] != "TX" {
		t.Errorf("unexpected enriched list: %+v", out)
	}
}
