// Package domain defines the core interfaces and types for AutoMatch.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence: the deal store,
// the CDE directory, persisted match results and screen configurations.
type Repository interface {
	// Deal store
	SaveDeal(ctx context.Context, deal *Deal) error
	GetDeal(ctx context.Context, dealID string) (*Deal, error)
	ListOpenDeals(ctx context.Context) ([]*Deal, error)

	// CDE directory
	SaveCDE(ctx context.Context, cde *CDEProfile) error
	GetCDE(ctx context.Context, cdeID string) (*CDEProfile, error)
	ListActiveCDEs(ctx context.Context) ([]*CDEProfile, error)

	// Match results
	SaveMatch(ctx context.Context, match *MatchResult) error
	GetMatch(ctx context.Context, matchID string) (*MatchResult, error)
	ListMatchesForDeal(ctx context.Context, dealID string) ([]*MatchResult, error)

	// Screen configurations
	SaveScreenConfig(ctx context.Context, screen *ScreenConfig) error
	GetScreenConfig(ctx context.Context, screenID string) (*ScreenConfig, error)
	ListScreenConfigs(ctx context.Context) ([]*ScreenConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
