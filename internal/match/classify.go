package match

import (
	"strings"

	"github.com/nmtc-exchange/automatch/internal/domain"
)

// ventureClass is the real-estate/operating-business classification of a
// deal for the financing gate.
type ventureClass int

const (
	ventureUnknown ventureClass = iota
	ventureRealEstate
	ventureBusiness
)

// ClassifyRealEstate resolves a deal's tri-state real-estate flag from the
// best available signal: an explicit venture type wins, then an
// already-resolved flag, then a keyword match of the project type against
// the real-estate vocabulary. Anything indeterminate stays Unknown.
func (t *Tables) ClassifyRealEstate(p *domain.DealProfile) domain.Tri {
	switch t.classifyVenture(p) {
	case ventureRealEstate:
		return domain.Yes
	case ventureBusiness:
		return domain.No
	default:
		return domain.Unknown
	}
}

func (t *Tables) classifyVenture(p *domain.DealProfile) ventureClass {
	if vt := NormalizeText(p.VentureType); vt != "" {
		if strings.Contains(vt, "real estate") {
			return ventureRealEstate
		}
		if strings.Contains(vt, "business") || strings.Contains(vt, "operating") {
			return ventureBusiness
		}
	}

	if p.RealEstate.Known() {
		if p.RealEstate.True() {
			return ventureRealEstate
		}
		return ventureBusiness
	}

	pt := NormalizeText(p.ProjectType)
	if pt == "" {
		return ventureUnknown
	}
	for _, kw := range t.RealEstateKeywords {
		if strings.Contains(pt, NormalizeText(kw)) {
			return ventureRealEstate
		}
	}
	return ventureUnknown
}
