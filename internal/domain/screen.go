package domain

// ScreenConfig defines a compliance screen applied to scored matches.
// A screen is a CEL expression over the deal, the CDE and the computed
// score; when it evaluates true the configured action is taken. Screens
// filter and annotate scan output, they never alter criterion scoring.
type ScreenConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`

	// CEL expression; must evaluate to bool.
	Expression string `json:"expression"`

	// Action taken when the expression is true.
	Action string `json:"action"`

	// Reason appended to the match when the action is "flag".
	Reason string `json:"reason,omitempty"`

	Enabled bool `json:"enabled"`
}

// Screen actions.
const (
	// ScreenActionExclude drops the match from scan results.
	ScreenActionExclude = "exclude"

	// ScreenActionFlag keeps the match and appends an advisory reason.
	ScreenActionFlag = "flag"
)
