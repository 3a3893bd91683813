// Package screen provides the CEL-based compliance screen engine. Screens
// run over scored matches and either exclude them from scan output or append
// advisory flags; they never alter the criterion score itself.
package screen

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/nmtc-exchange/automatch/internal/domain"
)

// Engine compiles and applies screen configurations.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledScreen
}

// CompiledScreen holds a pre-compiled CEL program.
type CompiledScreen struct {
	Config  *domain.ScreenConfig
	Program cel.Program
}

// NewEngine creates a screen engine with the match evaluation environment.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("deal", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("cde", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("score", cel.IntType),
		cel.Variable("strength", cel.StringType),
		cel.Variable("gate_passed", cel.BoolType),
		cel.Variable("state", cel.StringType),
		cel.Variable("allocation_request", cel.DoubleType),
		cel.Variable("amount_remaining", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]*CompiledScreen),
	}, nil
}

// ValidateScreen compiles a screen without loading it.
func (e *Engine) ValidateScreen(cfg *domain.ScreenConfig) error {
	if cfg == nil {
		return fmt.Errorf("screen config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileScreen(cfg)
	return err
}

// LoadScreen compiles and loads one screen.
func (e *Engine) LoadScreen(cfg *domain.ScreenConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileScreen(cfg)
	if err != nil {
		return err
	}

	e.compiled[cfg.ID] = compiled
	return nil
}

// LoadScreens loads all enabled screens.
func (e *Engine) LoadScreens(configs []*domain.ScreenConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadScreen(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadScreens replaces all loaded screens atomically. Enables hot reload
// from the database.
func (e *Engine) ReloadScreens(configs []*domain.ScreenConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*CompiledScreen)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileScreen(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}

	e.compiled = next
	return nil
}

// ScreensCount returns the number of loaded screens.
func (e *Engine) ScreensCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// LoadedScreens returns the loaded screen configs sorted by ID.
func (e *Engine) LoadedScreens() []*domain.ScreenConfig {
	e.mu.RLock()
	configs := make([]*domain.ScreenConfig, 0, len(e.compiled))
	for _, s := range e.compiled {
		configs = append(configs, s.Config)
	}
	e.mu.RUnlock()

	sort.Slice(configs, func(i, j int) bool {
		return configs[i].ID < configs[j].ID
	})
	return configs
}

// Outcome is the result of applying all loaded screens to one match.
type Outcome struct {
	// Excluded means an exclude screen fired; the match should be dropped
	// from scan output.
	Excluded bool

	// ExcludedBy names the screen that fired first.
	ExcludedBy string

	// Flags are advisory reasons from flag screens.
	Flags []string
}

// Apply evaluates all loaded screens against one scored match. Screens are
// applied in ID order for determinism. A screen that errors at evaluation
// time is skipped; a scan pass never aborts on one bad expression.
func (e *Engine) Apply(deal *domain.DealProfile, cde *domain.CDEProfile, result *domain.MatchResult) Outcome {
	e.mu.RLock()
	screens := make([]*CompiledScreen, 0, len(e.compiled))
	for _, s := range e.compiled {
		screens = append(screens, s)
	}
	e.mu.RUnlock()

	if len(screens) == 0 {
		return Outcome{}
	}

	sort.Slice(screens, func(i, j int) bool {
		return screens[i].Config.ID < screens[j].Config.ID
	})

	activation := activationFor(deal, cde, result)

	var out Outcome
	for _, s := range screens {
		val, _, err := s.Program.Eval(activation)
		if err != nil {
			continue
		}
		fired, ok := val.(types.Bool)
		if !ok || !bool(fired) {
			continue
		}

		switch s.Config.Action {
		case domain.ScreenActionExclude:
			if !out.Excluded {
				out.Excluded = true
				out.ExcludedBy = s.Config.Name
			}
		case domain.ScreenActionFlag:
			if s.Config.Reason != "" {
				out.Flags = append(out.Flags, s.Config.Reason)
			}
		}
	}
	return out
}

func activationFor(deal *domain.DealProfile, cde *domain.CDEProfile, result *domain.MatchResult) map[string]any {
	return map[string]any{
		"deal": map[string]any{
			"id":                 deal.DealID,
			"state":              deal.State,
			"project_type":       deal.ProjectType,
			"sector":             deal.SectorCategory,
			"venture_type":       deal.VentureType,
			"allocation_request": deal.AllocationRequest,
			"allocation_type":    deal.AllocationType,
			"non_profit":         deal.NonProfit.True(),
			"minority_owned":     deal.MinorityOwned.True(),
			"tribal":             deal.Tribal.True(),
			"rural":              deal.Rural.True(),
		},
		"cde": map[string]any{
			"id":               cde.ID,
			"name":             cde.Name,
			"service_area":     cde.ServiceAreaType,
			"allocation_type":  cde.AllocationType,
			"amount_remaining": cde.AmountRemaining,
			"year":             cde.Year,
		},
		"score":              result.Score,
		"strength":           domain.Strength(result.Score),
		"gate_passed":        result.GatePassed(),
		"state":              deal.State,
		"allocation_request": deal.AllocationRequest,
		"amount_remaining":   cde.AmountRemaining,
	}
}

// Close clears loaded screens.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledScreen)
	return nil
}

func (e *Engine) compileScreen(cfg *domain.ScreenConfig) (*CompiledScreen, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile screen %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("screen %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for screen %s: %w", cfg.ID, err)
	}

	return &CompiledScreen{Config: cfg, Program: program}, nil
}
