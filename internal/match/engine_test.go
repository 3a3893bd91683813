package match

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/nmtc-exchange/automatch/internal/domain"
)

func testEngine() *Engine {
	return NewEngine(nil, 5)
}

// nationalCDE returns an active national CDE with no expressed preferences
// and allocation remaining.
func nationalCDE(id string) *domain.CDEProfile {
	return &domain.CDEProfile{
		ID:              id,
		Name:            "Test CDE " + id,
		Status:          domain.CDEStatusActive,
		ServiceAreaType: "national",
		AmountRemaining: 10_000_000,
	}
}

func illinoisDeal() *domain.DealProfile {
	return &domain.DealProfile{
		DealID:            "deal-001",
		State:             "IL",
		AllocationRequest: 8_000_000,
	}
}

func TestNormalizeText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Real_Estate", "real estate"},
		{"REAL ESTATE", "real estate"},
		{"  mixed-use   development ", "mixed use development"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeText(c.in); got != c.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestResolveState(t *testing.T) {
	cases := []struct {
		in     string
		abbrev string
		ok     bool
	}{
		{"IL", "IL", true},
		{"il", "IL", true},
		{"Illinois", "IL", true},
		{"new hampshire", "NH", true},
		{"PR", "PR", true},
		{"Guam", "GU", true},
		{"ZZ", "", false},
		{"", "", false},
		{"Illinois County", "", false},
	}
	for _, c := range cases {
		st, ok := ResolveState(c.in)
		if ok != c.ok {
			t.Errorf("ResolveState(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if ok && st.Abbrev != c.abbrev {
			t.Errorf("ResolveState(%q) = %s, want %s", c.in, st.Abbrev, c.abbrev)
		}
	}
}

func TestGeographicGate(t *testing.T) {
	tables := DefaultTables()

	t.Run("national passes any state", func(t *testing.T) {
		cde := nationalCDE("cde-1")
		cde.PrimaryStates = []string{"TX"}
		for _, state := range []string{"IL", "Alaska", "ZZ", ""} {
			deal := &domain.DealProfile{State: state}
			if pass, _ := tables.geographicGate(deal, cde); !pass {
				t.Errorf("national CDE should pass state %q", state)
			}
		}
	})

	t.Run("unresolvable state fails", func(t *testing.T) {
		cde := nationalCDE("cde-1")
		cde.ServiceAreaType = "regional"
		deal := &domain.DealProfile{State: "ZZ"}
		if pass, _ := tables.geographicGate(deal, cde); pass {
			t.Error("unresolvable state should fail a regional CDE")
		}
	})

	t.Run("primary states match by abbreviation and name", func(t *testing.T) {
		cde := nationalCDE("cde-1")
		cde.ServiceAreaType = "regional"
		cde.PrimaryStates = []string{"Wisconsin", "il"}

		if pass, _ := tables.geographicGate(&domain.DealProfile{State: "Illinois"}, cde); !pass {
			t.Error("full-name deal state should match abbreviated primary state")
		}
		if pass, _ := tables.geographicGate(&domain.DealProfile{State: "WI"}, cde); !pass {
			t.Error("abbreviated deal state should match full-name primary state")
		}
		if pass, _ := tables.geographicGate(&domain.DealProfile{State: "TX"}, cde); pass {
			t.Error("TX should not match IL/WI primary states")
		}
	})

	t.Run("predominant market tokens", func(t *testing.T) {
		cde := nationalCDE("cde-1")
		cde.ServiceAreaType = "regional"
		cde.PredominantMarket = "IL, IN; WI"

		if pass, _ := tables.geographicGate(&domain.DealProfile{State: "IN"}, cde); !pass {
			t.Error("semicolon/comma token should match")
		}
		if pass, _ := tables.geographicGate(&domain.DealProfile{State: "ID"}, cde); pass {
			t.Error("ID should not match IL/IN/WI market tokens")
		}
	})

	t.Run("predominant market whole-word full name", func(t *testing.T) {
		cde := nationalCDE("cde-1")
		cde.ServiceAreaType = "regional"
		cde.PredominantMarket = "Greater Indiana metro area"

		if pass, _ := tables.geographicGate(&domain.DealProfile{State: "Indiana"}, cde); !pass {
			t.Error("full name as whole word should match")
		}
		// "Indiana" appears only inside "Indianapolis"; not a whole word.
		cde.PredominantMarket = "Indianapolis region"
		if pass, _ := tables.geographicGate(&domain.DealProfile{State: "Indiana"}, cde); pass {
			t.Error("substring inside another word should not match")
		}
	})
}

func TestFinancingGate(t *testing.T) {
	tables := DefaultTables()

	realEstateCDE := nationalCDE("cde-re")
	realEstateCDE.PredominantFinancing = "Real Estate"

	businessCDE := nationalCDE("cde-biz")
	businessCDE.PredominantFinancing = "Business/Operating"

	t.Run("owner occupied passes unconditionally", func(t *testing.T) {
		deal := &domain.DealProfile{State: "IL", VentureType: "business", OwnerOccupied: domain.Yes}
		if pass, _ := tables.financingGate(deal, realEstateCDE); !pass {
			t.Error("owner-occupied business deal should pass a real estate CDE")
		}
	})

	t.Run("absent owner occupied defaults to pass", func(t *testing.T) {
		deal := &domain.DealProfile{State: "IL", VentureType: "business"}
		if pass, _ := tables.financingGate(deal, realEstateCDE); !pass {
			t.Error("unknown owner-occupied should default to pass")
		}
	})

	t.Run("ambiguous CDE focus passes", func(t *testing.T) {
		cde := nationalCDE("cde-x")
		cde.PredominantFinancing = "Flexible capital solutions"
		deal := &domain.DealProfile{State: "IL", VentureType: "business", OwnerOccupied: domain.No}
		if pass, _ := tables.financingGate(deal, cde); !pass {
			t.Error("ambiguous financing focus should pass")
		}
	})

	t.Run("business deal fails real estate CDE", func(t *testing.T) {
		deal := &domain.DealProfile{State: "IL", VentureType: "business", OwnerOccupied: domain.No}
		if pass, _ := tables.financingGate(deal, realEstateCDE); pass {
			t.Error("business deal should fail real-estate-only CDE")
		}
	})

	t.Run("real estate deal fails business CDE", func(t *testing.T) {
		deal := &domain.DealProfile{State: "IL", OwnerOccupied: domain.No, RealEstate: domain.Yes}
		if pass, _ := tables.financingGate(deal, businessCDE); pass {
			t.Error("real estate deal should fail business/operating CDE")
		}
	})

	t.Run("keyword inference from project type", func(t *testing.T) {
		deal := &domain.DealProfile{State: "IL", OwnerOccupied: domain.No, ProjectType: "Charter school construction"}
		if pass, _ := tables.financingGate(deal, businessCDE); pass {
			t.Error("project type with real estate keywords should classify as real estate")
		}
	})

	t.Run("indeterminate deal passes", func(t *testing.T) {
		deal := &domain.DealProfile{State: "IL", OwnerOccupied: domain.No, ProjectType: "Working capital"}
		if pass, _ := tables.financingGate(deal, realEstateCDE); !pass {
			t.Error("indeterminate classification should pass")
		}
	})
}

func TestDeterminism(t *testing.T) {
	e := testEngine()
	deal := illinoisDeal()
	deal.SectorCategory = "Healthcare"
	cde := nationalCDE("cde-1")
	cde.TargetSectors = []string{"Healthcare", "Education"}
	cde.MinorityFocus = true

	a := e.Score(deal, cde)
	b := e.Score(deal, cde)

	if a.Score != b.Score {
		t.Errorf("scores differ: %d vs %d", a.Score, b.Score)
	}
	if !reflect.DeepEqual(a.Breakdown, b.Breakdown) {
		t.Errorf("breakdowns differ: %v vs %v", a.Breakdown, b.Breakdown)
	}
	if !reflect.DeepEqual(a.Reasons, b.Reasons) {
		t.Errorf("reasons differ: %v vs %v", a.Reasons, b.Reasons)
	}
}

func TestGateShortCircuit(t *testing.T) {
	e := testEngine()
	cde := nationalCDE("cde-1")
	cde.ServiceAreaType = "regional"
	cde.PrimaryStates = []string{"TX"}

	res := e.Score(illinoisDeal(), cde)

	if res.Score != 0 {
		t.Errorf("gate failure should score 0, got %d", res.Score)
	}
	if res.GateFailure == "" {
		t.Error("gate failure diagnostic should be recorded")
	}
	if len(res.Breakdown) != 1 {
		t.Errorf("no criteria should be evaluated after gate failure, breakdown = %v", res.Breakdown)
	}
	if v, ok := res.Breakdown[CriterionGeographic]; !ok || v != 0 {
		t.Errorf("breakdown should carry only the failing gate, got %v", res.Breakdown)
	}
}

func TestDefaultFavorability(t *testing.T) {
	e := testEngine()

	// No preference fields expressed at all: every criterion defaults to
	// pass and the score is perfect.
	res := e.Score(illinoisDeal(), nationalCDE("cde-1"))

	if res.Score != 100 {
		t.Errorf("all-default CDE should score 100, got %d (breakdown %v)", res.Score, res.Breakdown)
	}
	for name, v := range res.Breakdown {
		if v != 1 {
			t.Errorf("criterion %s should default to pass", name)
		}
	}
}

func TestMonotonicity(t *testing.T) {
	e := testEngine()

	deal := illinoisDeal()
	cde := nationalCDE("cde-1")
	cde.MinorityFocus = true

	before := e.Score(deal, cde)
	if before.Breakdown[CriterionMinorityFocus] != 0 {
		t.Fatal("minority criterion should fail for unknown minority status")
	}

	flipped := *deal
	flipped.MinorityOwned = domain.Yes
	after := e.Score(&flipped, cde)

	if after.Score <= before.Score {
		t.Errorf("flipping a failing criterion to passing decreased score: %d -> %d", before.Score, after.Score)
	}
	if after.Score-before.Score != 7 {
		t.Errorf("single criterion is worth round(100/15) = 7 points, got %d", after.Score-before.Score)
	}
}

func TestBoundaryFinancingGateFailure(t *testing.T) {
	e := testEngine()

	deal := &domain.DealProfile{
		DealID:            "deal-001",
		State:             "IL",
		AllocationRequest: 8_000_000,
		OwnerOccupied:     domain.No,
		VentureType:       "business",
		NonProfit:         domain.Yes,
	}
	maxSize := 1e9
	cde := &domain.CDEProfile{
		ID:                   "cde-001",
		Status:               domain.CDEStatusActive,
		ServiceAreaType:      "regional",
		PrimaryStates:        []string{"IL"},
		PredominantFinancing: "Real Estate",
		MinDealSize:          0,
		MaxDealSize:          &maxSize,
		ForprofitAccepted:    domain.No,
	}

	res := e.Score(deal, cde)
	if res.Score != 0 {
		t.Errorf("business deal vs real-estate CDE should gate-fail to 0, got %d", res.Score)
	}
	if res.GatePassed() {
		t.Error("gate failure should be recorded")
	}

	// Same pair with a business/operating CDE passes the gate; only the
	// zero remaining allocation holds it below perfect.
	cde2 := *cde
	cde2.PredominantFinancing = "Business/Operating"
	res2 := e.Score(deal, &cde2)

	if !res2.GatePassed() {
		t.Fatalf("business CDE should pass the financing gate: %s", res2.GateFailure)
	}
	if res2.Breakdown[CriterionEntityType] != 1 {
		t.Error("nonprofit deal should satisfy a nonprofit-only entity policy")
	}
	if res2.Score != 93 {
		t.Errorf("expected 14/15 = 93, got %d (breakdown %v)", res2.Score, res2.Breakdown)
	}
	if res2.Breakdown[CriterionHasAllocation] != 0 {
		t.Error("zero remaining allocation should fail criterion 15")
	}
}

func TestBoundaryInvalidState(t *testing.T) {
	e := testEngine()
	deal := &domain.DealProfile{State: "ZZ"}

	regional := nationalCDE("cde-r")
	regional.ServiceAreaType = "regional"
	regional.PrimaryStates = []string{"IL"}

	if res := e.Score(deal, regional); res.Score != 0 || res.GatePassed() {
		t.Error("invalid state should gate-fail any non-national CDE")
	}
	if res := e.Score(deal, nationalCDE("cde-n")); !res.GatePassed() {
		t.Error("national CDE should pass even for an invalid state")
	}
}

func TestBoundaryNoAllocationRemaining(t *testing.T) {
	e := testEngine()
	cde := nationalCDE("cde-1")
	cde.AmountRemaining = 0

	res := e.Score(illinoisDeal(), cde)
	if res.Breakdown[CriterionHasAllocation] != 0 {
		t.Error("criterion 15 should fail with no remaining allocation")
	}
	if res.Score == 100 {
		t.Error("a CDE with no remaining allocation cannot reach 100")
	}
	if res.Score != 93 {
		t.Errorf("expected 14/15 = 93, got %d", res.Score)
	}
}

func TestBoundaryNoDistressRequirement(t *testing.T) {
	e := testEngine()
	cde := nationalCDE("cde-1")
	cde.MinDistressPercentile = 0

	deal := illinoisDeal() // no distress score at all

	res := e.Score(deal, cde)
	if res.Breakdown[CriterionDistressPercentile] != 1 {
		t.Error("zero minimum percentile means no requirement; criterion 8 should pass")
	}
}

func TestBoundaryTribalAsymmetry(t *testing.T) {
	e := testEngine()
	deal := illinoisDeal() // non-tribal

	plain := nationalCDE("cde-plain")
	focused := nationalCDE("cde-focused")
	focused.NativeAmericanFocus = true

	if res := e.Score(deal, plain); res.Breakdown[CriterionTribal] != 1 {
		t.Error("no expressed tribal preference should pass")
	}
	if res := e.Score(deal, focused); res.Breakdown[CriterionTribal] != 0 {
		t.Error("explicit tribal requirement against a non-tribal deal should fail")
	}
}

func TestUTSCriterion(t *testing.T) {
	e := testEngine()

	t.Run("underserved state lookup by year", func(t *testing.T) {
		cde := nationalCDE("cde-1")
		cde.UTSFocus = true
		cde.Year = 2023

		deal := &domain.DealProfile{State: "TX"}
		if res := e.Score(deal, cde); res.Breakdown[CriterionUTSFocus] != 1 {
			t.Error("TX is underserved in 2023; criterion should pass")
		}

		deal.State = "IL"
		if res := e.Score(deal, cde); res.Breakdown[CriterionUTSFocus] != 0 {
			t.Error("IL is not underserved in 2023; criterion should fail without a deal UTS flag")
		}

		deal.UTS = domain.Yes
		if res := e.Score(deal, cde); res.Breakdown[CriterionUTSFocus] != 1 {
			t.Error("an explicit deal UTS flag should satisfy the focus")
		}
	})

	t.Run("unknown year passes vacuously", func(t *testing.T) {
		cde := nationalCDE("cde-1")
		cde.UTSFocus = true
		cde.Year = 2030

		deal := &domain.DealProfile{State: "IL"}
		res := e.Score(deal, cde)
		if res.Breakdown[CriterionUTSFocus] != 1 {
			t.Error("a year with no underserved table resolves to an empty set; the criterion should pass")
		}
		if res.Score != 100 {
			t.Errorf("score = %d, want 100", res.Score)
		}
		for _, reason := range res.Reasons {
			if strings.Contains(reason, "underserved") {
				t.Errorf("vacuous pass should not emit a reason, got %q", reason)
			}
		}
	})
}

func TestSectorCriterion(t *testing.T) {
	e := testEngine()

	t.Run("target sector substring match", func(t *testing.T) {
		cde := nationalCDE("cde-1")
		cde.TargetSectors = []string{"Healthcare", "Education"}
		deal := illinoisDeal()
		deal.SectorCategory = "Healthcare facility"

		res := e.Score(deal, cde)
		if res.Breakdown[CriterionSector] != 1 {
			t.Error("sector should substring-match a target sector")
		}
	})

	t.Run("generalist CDE passes any sector", func(t *testing.T) {
		deal := illinoisDeal()
		deal.SectorCategory = "Aquaculture"
		res := e.Score(deal, nationalCDE("cde-1"))
		if res.Breakdown[CriterionSector] != 1 {
			t.Error("a CDE with no sectors and no market is a generalist")
		}
	})

	t.Run("declared sectors with no match fail", func(t *testing.T) {
		cde := nationalCDE("cde-1")
		cde.TargetSectors = []string{"Manufacturing"}
		deal := illinoisDeal()
		deal.SectorCategory = "Healthcare"

		res := e.Score(deal, cde)
		if res.Breakdown[CriterionSector] != 0 {
			t.Error("declared sectors that do not match should fail")
		}
	})
}

func TestDealSizeCriterion(t *testing.T) {
	e := testEngine()

	cde := nationalCDE("cde-1")
	cde.MinDealSize = 5_000_000
	max := 20_000_000.0
	cde.MaxDealSize = &max

	cases := []struct {
		amount float64
		want   int
	}{
		{5_000_000, 1},  // inclusive lower bound
		{20_000_000, 1}, // inclusive upper bound
		{4_999_999, 0},
		{20_000_001, 0},
	}
	for _, c := range cases {
		deal := illinoisDeal()
		deal.AllocationRequest = c.amount
		res := e.Score(deal, cde)
		if res.Breakdown[CriterionDealSize] != c.want {
			t.Errorf("amount %.0f: deal size criterion = %d, want %d", c.amount, res.Breakdown[CriterionDealSize], c.want)
		}
	}

	// Unset max means unbounded.
	cde.MaxDealSize = nil
	deal := illinoisDeal()
	deal.AllocationRequest = 500_000_000
	if res := e.Score(deal, cde); res.Breakdown[CriterionDealSize] != 1 {
		t.Error("nil max deal size should be unbounded")
	}
}

func TestSmallDealFundCriterion(t *testing.T) {
	e := testEngine()

	deal := illinoisDeal()
	deal.AllocationRequest = 3_000_000

	plain := nationalCDE("cde-1")
	if res := e.Score(deal, plain); res.Breakdown[CriterionSmallDealFund] != 0 {
		t.Error("a sub-$5M deal needs a small deal fund")
	}

	fund := nationalCDE("cde-2")
	fund.SmallDealFund = true
	if res := e.Score(deal, fund); res.Breakdown[CriterionSmallDealFund] != 1 {
		t.Error("small deal fund CDE should pass a sub-$5M deal")
	}

	deal.AllocationRequest = 8_000_000
	if res := e.Score(deal, plain); res.Breakdown[CriterionSmallDealFund] != 1 {
		t.Error("deals above the threshold pass regardless")
	}
}

func TestReasonsOnlyForExpressedPreferences(t *testing.T) {
	e := testEngine()

	// All-default CDE: the only expressed facts are the national service
	// area and the remaining allocation. Every defaulted preference passes
	// silently.
	res := e.Score(illinoisDeal(), nationalCDE("cde-1"))

	want := []string{
		"Geographic match: national service area",
		"Allocation available ($10M remaining)",
	}
	if !reflect.DeepEqual(res.Reasons, want) {
		t.Errorf("reasons = %v, want %v", res.Reasons, want)
	}
}

func TestScanCDEs(t *testing.T) {
	e := testEngine()
	ctx := context.Background()
	deal := illinoisDeal()

	outOfArea := nationalCDE("cde-b")
	outOfArea.ServiceAreaType = "regional"
	outOfArea.PrimaryStates = []string{"TX"}

	inactive := nationalCDE("cde-c")
	inactive.Status = domain.CDEStatusInactive

	depleted := nationalCDE("cde-d")
	depleted.AmountRemaining = 0

	cdes := []*domain.CDEProfile{outOfArea, inactive, depleted, nationalCDE("cde-a")}

	results := e.ScanCDEs(ctx, deal, cdes, ScanOptions{MinScore: 50})

	if len(results) != 2 {
		t.Fatalf("expected 2 results above threshold, got %d", len(results))
	}
	if results[0].CDEID != "cde-a" || results[0].Score != 100 {
		t.Errorf("expected cde-a at 100 first, got %s at %d", results[0].CDEID, results[0].Score)
	}
	if results[1].CDEID != "cde-d" || results[1].Score != 93 {
		t.Errorf("expected cde-d at 93 second, got %s at %d", results[1].CDEID, results[1].Score)
	}

	t.Run("max results cap", func(t *testing.T) {
		capped := e.ScanCDEs(ctx, deal, cdes, ScanOptions{MinScore: 50, MaxResults: 1})
		if len(capped) != 1 || capped[0].CDEID != "cde-a" {
			t.Errorf("cap should keep the best result, got %v", capped)
		}
	})

	t.Run("tie break on CDE ID", func(t *testing.T) {
		pair := []*domain.CDEProfile{nationalCDE("cde-z"), nationalCDE("cde-a")}
		tied := e.ScanCDEs(ctx, deal, pair, ScanOptions{})
		if len(tied) != 2 || tied[0].CDEID != "cde-a" {
			t.Errorf("equal scores should sort by CDE ID ascending, got %v", tied)
		}
	})
}

func TestScanDeals(t *testing.T) {
	e := testEngine()
	ctx := context.Background()
	cde := nationalCDE("cde-1")
	cde.MinorityFocus = true

	match := illinoisDeal()
	match.DealID = "deal-a"
	match.MinorityOwned = domain.Yes

	partial := illinoisDeal()
	partial.DealID = "deal-b"

	results := e.ScanDeals(ctx, cde, []*domain.DealProfile{partial, match}, ScanOptions{})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].DealID != "deal-a" {
		t.Errorf("minority-owned deal should rank first, got %s", results[0].DealID)
	}
	if results[0].Score <= results[1].Score {
		t.Error("results should sort by score descending")
	}
}

func TestClassifyRealEstate(t *testing.T) {
	tables := DefaultTables()

	cases := []struct {
		name string
		deal domain.DealProfile
		want domain.Tri
	}{
		{"explicit venture type wins", domain.DealProfile{VentureType: "Real Estate", RealEstate: domain.No}, domain.Yes},
		{"business venture type", domain.DealProfile{VentureType: "Operating business"}, domain.No},
		{"resolved flag", domain.DealProfile{RealEstate: domain.Yes}, domain.Yes},
		{"keyword inference", domain.DealProfile{ProjectType: "Mixed-Use housing development"}, domain.Yes},
		{"indeterminate", domain.DealProfile{ProjectType: "Working capital line"}, domain.Unknown},
		{"empty", domain.DealProfile{}, domain.Unknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := tables.ClassifyRealEstate(&c.deal); got != c.want {
				t.Errorf("got %s, want %s", got, c.want)
			}
		})
	}
}
