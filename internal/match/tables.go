package match

// Tables holds the reference data the engine scores against. The tables are
// injected at construction and treated as immutable thereafter, keeping the
// scoring function pure and letting tests substitute their own data.
type Tables struct {
	// UnderservedStates maps an allocation-round year to the state
	// abbreviations designated underserved for that round. A year with no
	// entry yields an empty set, which makes the UTS criterion vacuously
	// pass rather than fail.
	UnderservedStates map[int][]string

	// RealEstateKeywords classify a free-text project type as a
	// real-estate venture when any keyword appears in the normalized text.
	RealEstateKeywords []string
}

// DefaultTables returns the built-in reference data: the underserved target
// states published for allocation rounds 2022 through 2025 and the standard
// real-estate project-type vocabulary.
func DefaultTables() *Tables {
	return &Tables{
		UnderservedStates: map[int][]string{
			2022: {"AK", "AR", "FL", "GA", "ID", "KS", "NV", "TN", "TX", "VA", "WV", "WY", "PR", "VI", "AS", "GU", "MP"},
			2023: {"AK", "AR", "FL", "GA", "ID", "KS", "NV", "TN", "TX", "VA", "WV", "WY", "PR", "VI", "AS", "GU", "MP"},
			2024: {"AK", "AR", "FL", "GA", "ID", "KS", "NV", "NH", "TN", "TX", "VA", "WV", "WY", "PR", "VI", "AS", "GU", "MP"},
			2025: {"AK", "AR", "FL", "GA", "ID", "KS", "NV", "NH", "TN", "TX", "VA", "WV", "WY", "PR", "VI", "AS", "GU", "MP"},
		},
		RealEstateKeywords: []string{
			"real estate",
			"community facility",
			"community facilities",
			"healthcare",
			"health care",
			"health center",
			"hospital",
			"clinic",
			"education",
			"school",
			"charter school",
			"housing",
			"mixed use",
			"industrial",
			"manufacturing facility",
			"retail",
			"grocery",
			"office",
			"construction",
			"rehabilitation",
			"redevelopment",
			"facility",
		},
	}
}

// IsUnderservedState reports whether the abbreviation is designated
// underserved for the given allocation year. Unknown years resolve to an
// empty set.
func (t *Tables) IsUnderservedState(abbrev string, year int) bool {
	list, ok := t.UnderservedStates[year]
	if !ok {
		return false
	}
	n := NormalizeText(abbrev)
	for _, s := range list {
		if NormalizeText(s) == n {
			return true
		}
	}
	return false
}
