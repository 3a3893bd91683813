// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nmtc-exchange/automatch/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveDeal stores or updates a deal.
func (r *SQLRepository) SaveDeal(ctx context.Context, deal *domain.Deal) error {
	if deal == nil || deal.ID == "" {
		return fmt.Errorf("%w: deal ID is required", ErrInvalidInput)
	}

	intake, _ := json.Marshal(deal.Intake)

	now := time.Now().UTC()
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = now
	}
	deal.UpdatedAt = now

	query := `
		INSERT INTO deals (
			id, sponsor_id, name, status, state, project_type,
			sector_category, venture_type, allocation_request,
			allocation_type, intake, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sponsor_id = excluded.sponsor_id,
			name = excluded.name,
			status = excluded.status,
			state = excluded.state,
			project_type = excluded.project_type,
			sector_category = excluded.sector_category,
			venture_type = excluded.venture_type,
			allocation_request = excluded.allocation_request,
			allocation_type = excluded.allocation_type,
			intake = excluded.intake,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		deal.ID, deal.SponsorID, deal.Name, deal.Status, deal.State,
		deal.ProjectType, deal.SectorCategory, deal.VentureType,
		deal.AllocationRequest, deal.AllocationType,
		string(intake), deal.CreatedAt, deal.UpdatedAt,
	)
	return err
}

const dealColumns = `
	id, sponsor_id, name, status, state, project_type,
	sector_category, venture_type, allocation_request,
	allocation_type, intake, created_at, updated_at
`

func scanDeal(row interface{ Scan(...any) error }) (*domain.Deal, error) {
	var deal domain.Deal
	var intake string

	err := row.Scan(
		&deal.ID, &deal.SponsorID, &deal.Name, &deal.Status, &deal.State,
		&deal.ProjectType, &deal.SectorCategory, &deal.VentureType,
		&deal.AllocationRequest, &deal.AllocationType,
		&intake, &deal.CreatedAt, &deal.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if intake != "" {
		json.Unmarshal([]byte(intake), &deal.Intake)
	}
	return &deal, nil
}

// GetDeal retrieves a deal by ID.
func (r *SQLRepository) GetDeal(ctx context.Context, dealID string) (*domain.Deal, error) {
	if dealID == "" {
		return nil, fmt.Errorf("%w: deal ID is required", ErrInvalidInput)
	}

	query := `SELECT ` + dealColumns + ` FROM deals WHERE id = ?`

	deal, err := scanDeal(r.db.QueryRowContext(ctx, r.rebind(query), dealID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deal, nil
}

// ListOpenDeals retrieves all deals open for matching.
func (r *SQLRepository) ListOpenDeals(ctx context.Context) ([]*domain.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE status = ? ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), domain.DealStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []*domain.Deal
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, deal)
	}
	return deals, rows.Err()
}

// SaveCDE stores or updates a CDE profile.
func (r *SQLRepository) SaveCDE(ctx context.Context, cde *domain.CDEProfile) error {
	if cde == nil || cde.ID == "" {
		return fmt.Errorf("%w: CDE ID is required", ErrInvalidInput)
	}

	primaryStates, _ := json.Marshal(cde.PrimaryStates)
	targetSectors, _ := json.Marshal(cde.TargetSectors)

	var maxDealSize sql.NullFloat64
	if cde.MaxDealSize != nil {
		maxDealSize = sql.NullFloat64{Float64: *cde.MaxDealSize, Valid: true}
	}

	now := time.Now().UTC()
	if cde.CreatedAt.IsZero() {
		cde.CreatedAt = now
	}
	cde.UpdatedAt = now

	query := `
		INSERT INTO cdes (
			id, name, status, service_area_type, primary_states,
			predominant_market, predominant_financing, target_sectors,
			min_deal_size, max_deal_size,
			rural_focus, urban_focus, require_severely_distressed,
			min_distress_percentile, small_deal_fund, minority_focus,
			uts_focus, nonprofit_preferred, forprofit_accepted,
			owner_occupied_preferred, native_american_focus,
			allocation_type, amount_remaining, year,
			non_metro_commitment, innovative_activities,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			service_area_type = excluded.service_area_type,
			primary_states = excluded.primary_states,
			predominant_market = excluded.predominant_market,
			predominant_financing = excluded.predominant_financing,
			target_sectors = excluded.target_sectors,
			min_deal_size = excluded.min_deal_size,
			max_deal_size = excluded.max_deal_size,
			rural_focus = excluded.rural_focus,
			urban_focus = excluded.urban_focus,
			require_severely_distressed = excluded.require_severely_distressed,
			min_distress_percentile = excluded.min_distress_percentile,
			small_deal_fund = excluded.small_deal_fund,
			minority_focus = excluded.minority_focus,
			uts_focus = excluded.uts_focus,
			nonprofit_preferred = excluded.nonprofit_preferred,
			forprofit_accepted = excluded.forprofit_accepted,
			owner_occupied_preferred = excluded.owner_occupied_preferred,
			native_american_focus = excluded.native_american_focus,
			allocation_type = excluded.allocation_type,
			amount_remaining = excluded.amount_remaining,
			year = excluded.year,
			non_metro_commitment = excluded.non_metro_commitment,
			innovative_activities = excluded.innovative_activities,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		cde.ID, cde.Name, cde.Status, cde.ServiceAreaType, string(primaryStates),
		cde.PredominantMarket, cde.PredominantFinancing, string(targetSectors),
		cde.MinDealSize, maxDealSize,
		boolInt(cde.RuralFocus), boolInt(cde.UrbanFocus), boolInt(cde.RequireSeverelyDistressed),
		cde.MinDistressPercentile, boolInt(cde.SmallDealFund), boolInt(cde.MinorityFocus),
		boolInt(cde.UTSFocus), boolInt(cde.NonprofitPreferred), int(cde.ForprofitAccepted),
		boolInt(cde.OwnerOccupiedPreferred), boolInt(cde.NativeAmericanFocus),
		cde.AllocationType, cde.AmountRemaining, cde.Year,
		cde.NonMetroCommitment, cde.InnovativeActivities,
		cde.CreatedAt, cde.UpdatedAt,
	)
	return err
}

const cdeColumns = `
	id, name, status, service_area_type, primary_states,
	predominant_market, predominant_financing, target_sectors,
	min_deal_size, max_deal_size,
	rural_focus, urban_focus, require_severely_distressed,
	min_distress_percentile, small_deal_fund, minority_focus,
	uts_focus, nonprofit_preferred, forprofit_accepted,
	owner_occupied_preferred, native_american_focus,
	allocation_type, amount_remaining, year,
	non_metro_commitment, innovative_activities,
	created_at, updated_at
`

func scanCDE(row interface{ Scan(...any) error }) (*domain.CDEProfile, error) {
	var cde domain.CDEProfile
	var primaryStates, targetSectors string
	var maxDealSize sql.NullFloat64
	var ruralFocus, urbanFocus, requireDistressed, smallDealFund int
	var minorityFocus, utsFocus, nonprofitPreferred, forprofitAccepted int
	var ownerOccupiedPreferred, nativeAmericanFocus int

	err := row.Scan(
		&cde.ID, &cde.Name, &cde.Status, &cde.ServiceAreaType, &primaryStates,
		&cde.PredominantMarket, &cde.PredominantFinancing, &targetSectors,
		&cde.MinDealSize, &maxDealSize,
		&ruralFocus, &urbanFocus, &requireDistressed,
		&cde.MinDistressPercentile, &smallDealFund, &minorityFocus,
		&utsFocus, &nonprofitPreferred, &forprofitAccepted,
		&ownerOccupiedPreferred, &nativeAmericanFocus,
		&cde.AllocationType, &cde.AmountRemaining, &cde.Year,
		&cde.NonMetroCommitment, &cde.InnovativeActivities,
		&cde.CreatedAt, &cde.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if maxDealSize.Valid {
		v := maxDealSize.Float64
		cde.MaxDealSize = &v
	}
	cde.RuralFocus = ruralFocus == 1
	cde.UrbanFocus = urbanFocus == 1
	cde.RequireSeverelyDistressed = requireDistressed == 1
	cde.SmallDealFund = smallDealFund == 1
	cde.MinorityFocus = minorityFocus == 1
	cde.UTSFocus = utsFocus == 1
	cde.NonprofitPreferred = nonprofitPreferred == 1
	cde.ForprofitAccepted = domain.Tri(forprofitAccepted)
	cde.OwnerOccupiedPreferred = ownerOccupiedPreferred == 1
	cde.NativeAmericanFocus = nativeAmericanFocus == 1

	if primaryStates != "" {
		json.Unmarshal([]byte(primaryStates), &cde.PrimaryStates)
	}
	if targetSectors != "" {
		json.Unmarshal([]byte(targetSectors), &cde.TargetSectors)
	}

	return &cde, nil
}

// GetCDE retrieves a CDE profile by ID.
func (r *SQLRepository) GetCDE(ctx context.Context, cdeID string) (*domain.CDEProfile, error) {
	if cdeID == "" {
		return nil, fmt.Errorf("%w: CDE ID is required", ErrInvalidInput)
	}

	query := `SELECT ` + cdeColumns + ` FROM cdes WHERE id = ?`

	cde, err := scanCDE(r.db.QueryRowContext(ctx, r.rebind(query), cdeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cde, nil
}

// ListActiveCDEs retrieves all CDEs eligible for scoring.
func (r *SQLRepository) ListActiveCDEs(ctx context.Context) ([]*domain.CDEProfile, error) {
	query := `SELECT ` + cdeColumns + ` FROM cdes WHERE status = ? ORDER BY name`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), domain.CDEStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cdes []*domain.CDEProfile
	for rows.Next() {
		cde, err := scanCDE(rows)
		if err != nil {
			return nil, err
		}
		cdes = append(cdes, cde)
	}
	return cdes, rows.Err()
}

// SaveMatch stores a match result.
func (r *SQLRepository) SaveMatch(ctx context.Context, match *domain.MatchResult) error {
	if match == nil || match.ID == "" {
		return fmt.Errorf("%w: match ID is required", ErrInvalidInput)
	}

	reasons, _ := json.Marshal(match.Reasons)
	breakdown, _ := json.Marshal(match.Breakdown)

	query := `
		INSERT INTO matches (
			id, deal_id, cde_id, score, reasons, breakdown,
			gate_failure, engine_version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		match.ID, match.DealID, match.CDEID, match.Score,
		string(reasons), string(breakdown),
		match.GateFailure, match.EngineVersion, match.CreatedAt,
	)
	return err
}

const matchColumns = `
	id, deal_id, cde_id, score, reasons, breakdown,
	gate_failure, engine_version, created_at
`

func scanMatch(row interface{ Scan(...any) error }) (*domain.MatchResult, error) {
	var m domain.MatchResult
	var reasons, breakdown string

	err := row.Scan(
		&m.ID, &m.DealID, &m.CDEID, &m.Score, &reasons, &breakdown,
		&m.GateFailure, &m.EngineVersion, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if reasons != "" {
		json.Unmarshal([]byte(reasons), &m.Reasons)
	}
	if breakdown != "" {
		json.Unmarshal([]byte(breakdown), &m.Breakdown)
	}
	return &m, nil
}

// GetMatch retrieves a match result by ID.
func (r *SQLRepository) GetMatch(ctx context.Context, matchID string) (*domain.MatchResult, error) {
	if matchID == "" {
		return nil, fmt.Errorf("%w: match ID is required", ErrInvalidInput)
	}

	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = ?`

	m, err := scanMatch(r.db.QueryRowContext(ctx, r.rebind(query), matchID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMatchesForDeal retrieves persisted matches for a deal, best first.
func (r *SQLRepository) ListMatchesForDeal(ctx context.Context, dealID string) ([]*domain.MatchResult, error) {
	if dealID == "" {
		return nil, fmt.Errorf("%w: deal ID is required", ErrInvalidInput)
	}

	query := `SELECT ` + matchColumns + ` FROM matches WHERE deal_id = ? ORDER BY score DESC, cde_id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*domain.MatchResult
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// SaveScreenConfig stores a screen configuration.
func (r *SQLRepository) SaveScreenConfig(ctx context.Context, screen *domain.ScreenConfig) error {
	if screen == nil || screen.ID == "" {
		return fmt.Errorf("%w: screen ID is required", ErrInvalidInput)
	}

	version := screen.Version
	if version == "" {
		version = "1"
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screen_configs (
			id, name, description, version, expression, action, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			action = excluded.action,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		screen.ID, screen.Name, screen.Description, version,
		screen.Expression, screen.Action, screen.Reason,
		boolInt(screen.Enabled), now, now,
	)
	return err
}

// GetScreenConfig retrieves the latest enabled version of a screen.
func (r *SQLRepository) GetScreenConfig(ctx context.Context, screenID string) (*domain.ScreenConfig, error) {
	if screenID == "" {
		return nil, fmt.Errorf("%w: screen ID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, version, expression, action, reason, enabled
		FROM screen_configs
		WHERE id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.ScreenConfig
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), screenID).Scan(
		&cfg.ID, &cfg.Name, &cfg.Description, &cfg.Version,
		&cfg.Expression, &cfg.Action, &cfg.Reason, &enabled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	return &cfg, nil
}

// ListScreenConfigs retrieves all enabled screen configurations.
func (r *SQLRepository) ListScreenConfigs(ctx context.Context) ([]*domain.ScreenConfig, error) {
	query := `
		SELECT id, name, description, version, expression, action, reason, enabled
		FROM screen_configs
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.ScreenConfig
	for rows.Next() {
		var cfg domain.ScreenConfig
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.Name, &cfg.Description, &cfg.Version,
			&cfg.Expression, &cfg.Action, &cfg.Reason, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}
	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
