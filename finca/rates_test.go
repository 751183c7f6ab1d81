/*
rates_test.go - Rate resolution tests

Tests for:
- Default seeding when no rate row exists
- One-time legacy copy
- Idempotent resolution
- Rate update validation
*/
package finca_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KeilorFP/finca-app/finca"
	"github.com/KeilorFP/finca-app/finca/store"
)

func TestRateResolver_NoRow_SeedsDefaults(t *testing.T) {
	// GIVEN: A tenant with no rate row and no legacy row
	// WHEN: Resolving rates
	// THEN: The hard defaults are returned and persisted

	mem := store.NewTxMemory()
	resolver := finca.NewRateResolver(mem)
	ctx := context.Background()

	cfg, err := resolver.Resolve(ctx, "finca-a")
	require.NoError(t, err)
	assert.True(t, cfg.DayRate.Equal(finca.DefaultDayRate))
	assert.True(t, cfg.OvertimeRate.Equal(finca.DefaultOvertimeRate))

	persisted, err := mem.GetRateConfig(ctx, "finca-a")
	require.NoError(t, err)
	require.NotNil(t, persisted, "resolve should materialize the tenant row")
	assert.True(t, persisted.DayRate.Equal(finca.DefaultDayRate))
}

func TestRateResolver_LegacyRow_CopiedOnce(t *testing.T) {
	// GIVEN: No tenant row, but a legacy global row with non-default rates
	// WHEN: Resolving rates twice, with a legacy change in between
	// THEN: The legacy values are copied on the first resolve and the
	//       tenant row is never overwritten afterwards

	mem := store.NewTxMemory()
	resolver := finca.NewRateResolver(mem)
	ctx := context.Background()

	require.NoError(t, mem.SetLegacyRates(ctx, finca.RateConfig{
		DayRate:      decimal.NewFromInt(8500),
		OvertimeRate: decimal.NewFromInt(1500),
	}))

	cfg, err := resolver.Resolve(ctx, "finca-a")
	require.NoError(t, err)
	assert.True(t, cfg.DayRate.Equal(decimal.NewFromInt(8500)))
	assert.True(t, cfg.OvertimeRate.Equal(decimal.NewFromInt(1500)))

	// Later legacy edits must not leak into the already-seeded tenant.
	require.NoError(t, mem.SetLegacyRates(ctx, finca.RateConfig{
		DayRate:      decimal.NewFromInt(100),
		OvertimeRate: decimal.NewFromInt(100),
	}))

	cfg, err = resolver.Resolve(ctx, "finca-a")
	require.NoError(t, err)
	assert.True(t, cfg.DayRate.Equal(decimal.NewFromInt(8500)))
}

func TestRateResolver_Resolve_Idempotent(t *testing.T) {
	// GIVEN: A tenant whose row was already materialized
	// WHEN: Resolving repeatedly
	// THEN: Every call returns the same persisted values

	mem := store.NewTxMemory()
	resolver := finca.NewRateResolver(mem)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "finca-a")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		again, err := resolver.Resolve(ctx, "finca-a")
		require.NoError(t, err)
		assert.True(t, again.DayRate.Equal(first.DayRate))
		assert.True(t, again.OvertimeRate.Equal(first.OvertimeRate))
	}
}

func TestRateResolver_TenantsIndependent(t *testing.T) {
	// GIVEN: Two tenants
	// WHEN: One updates its rates
	// THEN: The other still resolves to the defaults

	mem := store.NewTxMemory()
	resolver := finca.NewRateResolver(mem)
	ctx := context.Background()

	require.NoError(t, resolver.Set(ctx, "finca-a", decimal.NewFromInt(12000), decimal.NewFromInt(3000)))

	a, err := resolver.Resolve(ctx, "finca-a")
	require.NoError(t, err)
	assert.True(t, a.DayRate.Equal(decimal.NewFromInt(12000)))

	b, err := resolver.Resolve(ctx, "finca-b")
	require.NoError(t, err)
	assert.True(t, b.DayRate.Equal(finca.DefaultDayRate))
}

func TestRateResolver_Set_RejectsInvalid(t *testing.T) {
	// GIVEN: An existing tenant rate row
	// WHEN: Setting a non-positive day rate or a negative overtime rate
	// THEN: The update is rejected and nothing is written

	mem := store.NewTxMemory()
	resolver := finca.NewRateResolver(mem)
	ctx := context.Background()

	require.NoError(t, resolver.Set(ctx, "finca-a", decimal.NewFromInt(9000), decimal.NewFromInt(2000)))

	cases := []struct {
		name     string
		day      decimal.Decimal
		overtime decimal.Decimal
	}{
		{"zero day rate", decimal.Zero, decimal.NewFromInt(2000)},
		{"negative day rate", decimal.NewFromInt(-1), decimal.NewFromInt(2000)},
		{"negative overtime rate", decimal.NewFromInt(9000), decimal.NewFromInt(-1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := resolver.Set(ctx, "finca-a", tc.day, tc.overtime)
			require.Error(t, err)
			var rateErr *finca.InvalidRateError
			assert.ErrorAs(t, err, &rateErr)
			assert.ErrorIs(t, err, finca.ErrInvalidInput)

			cfg, err := resolver.Resolve(ctx, "finca-a")
			require.NoError(t, err)
			assert.True(t, cfg.DayRate.Equal(decimal.NewFromInt(9000)), "rejected update must not be written")
		})
	}
}

func TestRateResolver_ZeroOvertimeRate_Allowed(t *testing.T) {
	mem := store.NewTxMemory()
	resolver := finca.NewRateResolver(mem)
	ctx := context.Background()

	err := resolver.Set(ctx, "finca-a", decimal.NewFromInt(9000), decimal.Zero)
	require.NoError(t, err)

	cfg, err := resolver.Resolve(ctx, "finca-a")
	require.NoError(t, err)
	assert.True(t, cfg.OvertimeRate.IsZero())
}
