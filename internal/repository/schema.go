package repository

// Schema definitions for the AutoMatch database.
// Compatible with both SQLite and PostgreSQL.

const schemaDeals = `
CREATE TABLE IF NOT EXISTS deals (
    id TEXT PRIMARY KEY,
    sponsor_id TEXT NOT NULL,
    name TEXT NOT NULL,
    status TEXT NOT NULL,
    state TEXT NOT NULL,
    project_type TEXT,
    sector_category TEXT,
    venture_type TEXT,
    allocation_request REAL NOT NULL DEFAULT 0,
    allocation_type TEXT,
    intake TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deals_status ON deals(status);
CREATE INDEX IF NOT EXISTS idx_deals_sponsor ON deals(sponsor_id);
CREATE INDEX IF NOT EXISTS idx_deals_state ON deals(state);
`

const schemaCDEs = `
CREATE TABLE IF NOT EXISTS cdes (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    status TEXT NOT NULL,
    service_area_type TEXT,
    primary_states TEXT,
    predominant_market TEXT,
    predominant_financing TEXT,
    target_sectors TEXT,
    min_deal_size REAL NOT NULL DEFAULT 0,
    max_deal_size REAL,
    rural_focus INTEGER NOT NULL DEFAULT 0,
    urban_focus INTEGER NOT NULL DEFAULT 0,
    require_severely_distressed INTEGER NOT NULL DEFAULT 0,
    min_distress_percentile REAL NOT NULL DEFAULT 0,
    small_deal_fund INTEGER NOT NULL DEFAULT 0,
    minority_focus INTEGER NOT NULL DEFAULT 0,
    uts_focus INTEGER NOT NULL DEFAULT 0,
    nonprofit_preferred INTEGER NOT NULL DEFAULT 0,
    forprofit_accepted INTEGER NOT NULL DEFAULT 0,
    owner_occupied_preferred INTEGER NOT NULL DEFAULT 0,
    native_american_focus INTEGER NOT NULL DEFAULT 0,
    allocation_type TEXT,
    amount_remaining REAL NOT NULL DEFAULT 0,
    year INTEGER NOT NULL DEFAULT 0,
    non_metro_commitment REAL NOT NULL DEFAULT 0,
    innovative_activities TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cdes_status ON cdes(status);
CREATE INDEX IF NOT EXISTS idx_cdes_service_area ON cdes(service_area_type);
`

const schemaMatches = `
CREATE TABLE IF NOT EXISTS matches (
    id TEXT PRIMARY KEY,
    deal_id TEXT NOT NULL,
    cde_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    reasons TEXT,
    breakdown TEXT,
    gate_failure TEXT,
    engine_version TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_matches_deal ON matches(deal_id);
CREATE INDEX IF NOT EXISTS idx_matches_cde ON matches(cde_id);
CREATE INDEX IF NOT EXISTS idx_matches_score ON matches(deal_id, score);
`

const schemaScreenConfigs = `
CREATE TABLE IF NOT EXISTS screen_configs (
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    action TEXT NOT NULL,
    reason TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, version)
);

CREATE INDEX IF NOT EXISTS idx_screen_configs_enabled ON screen_configs(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaDeals,
		schemaCDEs,
		schemaMatches,
		schemaScreenConfigs,
	}
}
