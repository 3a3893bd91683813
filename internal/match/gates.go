package match

import (
	"fmt"
	"strings"

	"github.com/nmtc-exchange/automatch/internal/domain"
)

// Gate names recorded in the breakdown and diagnostics.
const (
	GateGeographic = "geographic"
	GateFinancing  = "financing"
)

// geographicGate decides whether the CDE can serve the deal's state at all.
// Returns the pass reason when the gate passes with an expressed match, or a
// diagnostic failure reason otherwise.
func (t *Tables) geographicGate(deal *domain.DealProfile, cde *domain.CDEProfile) (pass bool, reason string) {
	if NormalizeText(cde.ServiceAreaType) == domain.ServiceAreaNational {
		return true, "Geographic match: national service area"
	}

	st, ok := ResolveState(deal.State)
	if !ok {
		return false, fmt.Sprintf("unresolvable deal state %q", deal.State)
	}

	abbrev := NormalizeText(st.Abbrev)
	name := NormalizeText(st.Name)

	for _, ps := range cde.PrimaryStates {
		n := NormalizeText(ps)
		if n == abbrev || n == name {
			return true, fmt.Sprintf("Geographic match: %s in service area", st.Abbrev)
		}
	}

	market := NormalizeText(cde.PredominantMarket)
	if market != "" {
		for _, tok := range splitTokens(cde.PredominantMarket) {
			if tok == abbrev {
				return true, fmt.Sprintf("Geographic match: %s in predominant market", st.Abbrev)
			}
		}
		if containsWholeWord(market, name) {
			return true, fmt.Sprintf("Geographic match: %s in predominant market", st.Name)
		}
	}

	return false, fmt.Sprintf("state %s outside service area", st.Abbrev)
}

// financingGate decides whether the CDE's real-estate versus
// operating-business financing focus is compatible with the deal. Every
// indeterminate input resolves in the deal's favor; only a clearly expressed
// conflict fails.
func (t *Tables) financingGate(deal *domain.DealProfile, cde *domain.CDEProfile) (pass bool, reason string) {
	// Owner-occupied projects suit both financing styles. Absence of the
	// flag defaults to owner-occupied, the common case for these deals.
	if !deal.OwnerOccupied.False() {
		return true, ""
	}

	financing := NormalizeText(cde.PredominantFinancing)
	cdeRealEstate := strings.Contains(financing, "real estate")
	cdeBusiness := strings.Contains(financing, "business") || strings.Contains(financing, "operating")
	if !cdeRealEstate && !cdeBusiness {
		return true, ""
	}

	switch t.classifyVenture(deal) {
	case ventureRealEstate:
		if cdeRealEstate {
			return true, "Financing match: real estate"
		}
		return false, "real estate deal conflicts with business/operating financing focus"
	case ventureBusiness:
		if cdeBusiness {
			return true, "Financing match: business/operating"
		}
		return false, "business deal conflicts with real estate financing focus"
	default:
		return true, ""
	}
}
