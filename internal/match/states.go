package match

// State is a canonical US state or territory.
type State struct {
	Abbrev string
	Name   string
}

// states covers the 50 states, DC, and the territories that appear in the
// underserved-states reference table.
var states = []State{
	{"AL", "Alabama"},
	{"AK", "Alaska"},
	{"AZ", "Arizona"},
	{"AR", "Arkansas"},
	{"CA", "California"},
	{"CO", "Colorado"},
	{"CT", "Connecticut"},
	{"DE", "Delaware"},
	{"FL", "Florida"},
	{"GA", "Georgia"},
	{"HI", "Hawaii"},
	{"ID", "Idaho"},
	{"IL", "Illinois"},
	{"IN", "Indiana"},
	{"IA", "Iowa"},
	{"KS", "Kansas"},
	{"KY", "Kentucky"},
	{"LA", "Louisiana"},
	{"ME", "Maine"},
	{"MD", "Maryland"},
	{"MA", "Massachusetts"},
	{"MI", "Michigan"},
	{"MN", "Minnesota"},
	{"MS", "Mississippi"},
	{"MO", "Missouri"},
	{"MT", "Montana"},
	{"NE", "Nebraska"},
	{"NV", "Nevada"},
	{"NH", "New Hampshire"},
	{"NJ", "New Jersey"},
	{"NM", "New Mexico"},
	{"NY", "New York"},
	{"NC", "North Carolina"},
	{"ND", "North Dakota"},
	{"OH", "Ohio"},
	{"OK", "Oklahoma"},
	{"OR", "Oregon"},
	{"PA", "Pennsylvania"},
	{"RI", "Rhode Island"},
	{"SC", "South Carolina"},
	{"SD", "South Dakota"},
	{"TN", "Tennessee"},
	{"TX", "Texas"},
	{"UT", "Utah"},
	{"VT", "Vermont"},
	{"VA", "Virginia"},
	{"WA", "Washington"},
	{"WV", "West Virginia"},
	{"WI", "Wisconsin"},
	{"WY", "Wyoming"},
	{"DC", "District of Columbia"},
	{"PR", "Puerto Rico"},
	{"VI", "U.S. Virgin Islands"},
	{"AS", "American Samoa"},
	{"GU", "Guam"},
	{"MP", "Northern Mariana Islands"},
}

var (
	statesByAbbrev = make(map[string]State, len(states))
	statesByName   = make(map[string]State, len(states))
)

func init() {
	for _, st := range states {
		statesByAbbrev[NormalizeText(st.Abbrev)] = st
		statesByName[NormalizeText(st.Name)] = st
	}
}

// ResolveState accepts a two-letter abbreviation or a full name, in any
// case, and returns the canonical state. ok is false when the input is not
// a recognized state or territory.
func ResolveState(s string) (State, bool) {
	n := NormalizeText(s)
	if n == "" {
		return State{}, false
	}
	if st, ok := statesByAbbrev[n]; ok {
		return st, true
	}
	if st, ok := statesByName[n]; ok {
		return st, true
	}
	return State{}, false
}
