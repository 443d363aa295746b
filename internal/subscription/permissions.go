// Package subscription resolves plan-based capabilities for a company.
package subscription

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guilhermemayrinkal/agribackend/internal/shared"
)

// Capability names stored in subscription_plans.permissions.
const (
	CanViewGoals        = "canViewGoals"
	CanViewAlerts       = "canViewAlerts"
	CanViewInsights     = "canViewInsights"
	CanViewReports      = "canViewReports"
	CanViewInventory    = "canViewInventory"
	CanViewArticles     = "canViewArticles"
	CanViewSubscription = "canViewSubscription"
)

// categoryCapability gates notification categories. Categories absent from
// the table (system) are never gated.
var categoryCapability = map[string]string{
	"goal":         CanViewGoals,
	"alert":        CanViewAlerts,
	"insight":      CanViewInsights,
	"report":       CanViewReports,
	"inventory":    CanViewInventory,
	"article":      CanViewArticles,
	"subscription": CanViewSubscription,
}

// CapabilityFor returns the capability gating a notification category.
func CapabilityFor(category string) (string, bool) {
	c, ok := categoryCapability[category]
	return c, ok
}

// Capabilities is a plan's capability set.
type Capabilities map[string]bool

// Allows reports whether capability is enabled. Capabilities missing from a
// plan's map are treated as disabled.
func (c Capabilities) Allows(capability string) bool {
	return c[capability]
}

// DefaultCapabilities is the permissive set applied when a company has no
// active plan or the plan data cannot be read. This is a compatibility policy
// for companies without billing rows and not an access control boundary.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		CanViewGoals:        true,
		CanViewAlerts:       true,
		CanViewInsights:     true,
		CanViewReports:      true,
		CanViewInventory:    true,
		CanViewArticles:     true,
		CanViewSubscription: true,
	}
}

// PlanSource loads the raw permissions document of a company's current plan.
type PlanSource interface {
	ActivePlanPermissions(ctx context.Context, companyID string) ([]byte, error)
}

// ErrNoActivePlan indicates the company has no active or trialing subscription.
var ErrNoActivePlan = errors.New("subscription: no active plan")

// Resolver implements the permission lookup with the fail-open policy.
type Resolver struct {
	source PlanSource
	logger *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(source PlanSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{source: source, logger: logger}
}

// Resolve never fails: lookup errors, missing plans and malformed documents
// all yield DefaultCapabilities.
func (r *Resolver) Resolve(ctx context.Context, companyID string) Capabilities {
	if r == nil || r.source == nil || companyID == "" {
		return DefaultCapabilities()
	}
	raw, err := r.source.ActivePlanPermissions(ctx, companyID)
	if err != nil {
		if !errors.Is(err, ErrNoActivePlan) {
			r.logger.Warn("resolve plan permissions", slog.String("company_id", companyID), slog.Any("error", err))
		}
		return DefaultCapabilities()
	}
	caps := shared.ParseOrDefault[Capabilities](raw, nil)
	if caps == nil {
		return DefaultCapabilities()
	}
	return caps
}

// Repository reads plan permissions from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ActivePlanPermissions returns the permissions JSON of the latest active or trialing subscription.
func (r *Repository) ActivePlanPermissions(ctx context.Context, companyID string) ([]byte, error) {
	const query = `
		SELECT sp.permissions
		FROM subscriptions s
		JOIN subscription_plans sp ON sp.id = s.plan_id
		WHERE s.company_id = $1 AND s.status IN ('active', 'trialing')
		ORDER BY s.created_at DESC
		LIMIT 1
	`
	var raw []byte
	if err := r.pool.QueryRow(ctx, query, companyID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActivePlan
		}
		return nil, err
	}
	return raw, nil
}
