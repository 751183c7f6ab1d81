/*
rates.go - Per-tenant pay rate resolution

PURPOSE:
  Resolves the (day rate, overtime hour rate) pair in effect for a tenant,
  lazily materializing the tenant's row on first read. The closing engine
  calls Resolve immediately before aggregating so the resolved values are
  frozen into the closing header.

RESOLUTION ORDER:
  1. Tenant row exists            -> return it verbatim
  2. Legacy global row exists     -> copy it into a tenant row once,
                                     return the legacy values
  3. Neither                      -> create a tenant row with the hard
                                     defaults (9000, 2000)

  The legacy row is read-only here: it is a one-time migration source,
  never ambient shared state. Resolve is idempotent - it never creates a
  second row and never overwrites an existing tenant row, which the
  insert-if-absent store contract guarantees even under concurrent calls.
*/
package finca

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RateResolver resolves and updates per-tenant pay rates.
type RateResolver struct {
	Store Store
}

func NewRateResolver(store Store) *RateResolver {
	return &RateResolver{Store: store}
}

// Resolve returns the effective rates for a tenant, materializing the
// tenant's RateConfig row if it does not exist yet.
func (r *RateResolver) Resolve(ctx context.Context, tenant Tenant) (RateConfig, error) {
	cfg, err := r.Store.GetRateConfig(ctx, tenant)
	if err != nil {
		return RateConfig{}, fmt.Errorf("resolve rates: %w", err)
	}
	if cfg != nil {
		return *cfg, nil
	}

	seed := RateConfig{
		Tenant:       tenant,
		DayRate:      DefaultDayRate,
		OvertimeRate: DefaultOvertimeRate,
		UpdatedAt:    time.Now().UTC(),
	}
	legacy, err := r.Store.LegacyRates(ctx)
	if err != nil {
		return RateConfig{}, fmt.Errorf("resolve rates: %w", err)
	}
	if legacy != nil {
		seed.DayRate = legacy.DayRate
		seed.OvertimeRate = legacy.OvertimeRate
	}

	// Insert-if-absent: if a concurrent Resolve won the race, the existing
	// row stands and we return what is actually persisted.
	if err := r.Store.InsertRateConfigIfAbsent(ctx, seed); err != nil {
		return RateConfig{}, fmt.Errorf("resolve rates: %w", err)
	}
	cfg, err = r.Store.GetRateConfig(ctx, tenant)
	if err != nil {
		return RateConfig{}, fmt.Errorf("resolve rates: %w", err)
	}
	if cfg == nil {
		return RateConfig{}, fmt.Errorf("resolve rates: %w", ErrNotFound)
	}
	return *cfg, nil
}

// Set upserts the tenant's rates. DayRate must be positive, OvertimeRate
// non-negative; on rejection nothing is written.
func (r *RateResolver) Set(ctx context.Context, tenant Tenant, dayRate, overtimeRate decimal.Decimal) error {
	if !dayRate.IsPositive() || overtimeRate.IsNegative() {
		return &InvalidRateError{DayRate: dayRate, OvertimeRate: overtimeRate}
	}
	cfg := RateConfig{
		Tenant:       tenant,
		DayRate:      dayRate,
		OvertimeRate: overtimeRate,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := r.Store.UpsertRateConfig(ctx, cfg); err != nil {
		return fmt.Errorf("set rates: %w", err)
	}
	return nil
}
