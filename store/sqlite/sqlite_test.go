/*
sqlite_test.go - SQLite store tests

Tests for:
- Tenant scoping on reads and writes
- Cost recomputation on supply writes
- The duplicate-closing unique index and cascade delete
- Task status compare-and-swap and date shifting
- Transaction rollback
*/
package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KeilorFP/finca-app/finca"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func d(y int, m time.Month, day int) finca.Date {
	return finca.NewDate(y, m, day)
}

func march() finca.DateRange {
	return finca.DateRange{From: d(2025, time.March, 1), To: d(2025, time.March, 31)}
}

func testWorkday(tenant finca.Tenant, worker string, day finca.Date) finca.WorkdayRecord {
	return finca.WorkdayRecord{
		Tenant:        tenant,
		Worker:        worker,
		Date:          day,
		Plot:          "La Loma",
		Activity:      "chapia",
		Days:          1,
		NormalHours:   decimal.NewFromInt(6),
		OvertimeHours: decimal.Zero,
	}
}

func testClosing(tenant finca.Tenant, r finca.DateRange) finca.Closing {
	return finca.Closing{
		Tenant:        tenant,
		RangeStart:    r.From,
		RangeEnd:      r.To,
		CreatedBy:     "marta",
		DayRate:       decimal.NewFromInt(9000),
		OvertimeRate:  decimal.NewFromInt(2000),
		TotalPayroll:  decimal.NewFromInt(9000),
		TotalSupplies: decimal.Zero,
		TotalGeneral:  decimal.NewFromInt(9000),
	}
}

// =============================================================================
// WORKER TESTS
// =============================================================================

func TestAddWorker_DuplicateName_Rejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddWorker(ctx, finca.Worker{Tenant: "finca-a", FirstName: "Juan", LastName: "Perez"})
	require.NoError(t, err)

	_, err = store.AddWorker(ctx, finca.Worker{Tenant: "finca-a", FirstName: "Juan", LastName: "Perez"})
	assert.ErrorIs(t, err, finca.ErrAlreadyExists)

	// Same name under another tenant is a different worker.
	_, err = store.AddWorker(ctx, finca.Worker{Tenant: "finca-b", FirstName: "Juan", LastName: "Perez"})
	assert.NoError(t, err)
}

func TestListWorkers_TenantScoped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddWorker(ctx, finca.Worker{Tenant: "finca-a", FirstName: "Juan", LastName: "Perez"})
	require.NoError(t, err)
	_, err = store.AddWorker(ctx, finca.Worker{Tenant: "finca-b", FirstName: "Ana", LastName: "Mora"})
	require.NoError(t, err)

	workers, err := store.ListWorkers(ctx, "finca-a")
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "Juan", workers[0].FirstName)
}

// =============================================================================
// LEDGER ROW TESTS
// =============================================================================

func TestQueryWorkdays_RangeInclusiveAndOrdered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, day := range []finca.Date{
		d(2025, time.March, 31),
		d(2025, time.February, 28),
		d(2025, time.March, 1),
		d(2025, time.April, 1),
	} {
		_, err := store.InsertWorkday(ctx, testWorkday("finca-a", "Juan Perez", day))
		require.NoError(t, err)
	}

	records, err := store.QueryWorkdays(ctx, "finca-a", march())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].Date.Equal(d(2025, time.March, 1)))
	assert.True(t, records[1].Date.Equal(d(2025, time.March, 31)))
}

func TestUpdateWorkday_ForeignTenant_NoEffect(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertWorkday(ctx, testWorkday("finca-a", "Juan Perez", d(2025, time.March, 5)))
	require.NoError(t, err)

	rec := testWorkday("finca-b", "Intruso", d(2025, time.March, 5))
	rec.ID = id
	ok, err := store.UpdateWorkday(ctx, rec)
	require.NoError(t, err)
	assert.False(t, ok)

	records, err := store.QueryWorkdays(ctx, "finca-a", march())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Juan Perez", records[0].Worker)
}

func TestInsertSupply_CostRecomputed(t *testing.T) {
	// GIVEN: A supply with a bogus caller-provided total cost
	// WHEN: Inserting and reading it back
	// THEN: total_cost is quantity*unit_price, not the caller's value

	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertSupply(ctx, finca.SupplyRecord{
		Tenant:    "finca-a",
		Date:      d(2025, time.March, 10),
		Kind:      finca.SupplyFertilizer,
		Quantity:  decimal.NewFromInt(4),
		UnitPrice: decimal.NewFromInt(15500),
		TotalCost: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	supplies, err := store.QuerySupplies(ctx, "finca-a", march())
	require.NoError(t, err)
	require.Len(t, supplies, 1)
	assert.True(t, supplies[0].TotalCost.Equal(decimal.NewFromInt(62000)))
}

func TestUpdateSupply_CostRecomputed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertSupply(ctx, finca.SupplyRecord{
		Tenant:    "finca-a",
		Date:      d(2025, time.March, 10),
		Kind:      finca.SupplyFertilizer,
		Quantity:  decimal.NewFromInt(4),
		UnitPrice: decimal.NewFromInt(15500),
	})
	require.NoError(t, err)

	ok, err := store.UpdateSupply(ctx, finca.SupplyRecord{
		ID:        id,
		Tenant:    "finca-a",
		Date:      d(2025, time.March, 10),
		Kind:      finca.SupplyFertilizer,
		Quantity:  decimal.NewFromInt(2),
		UnitPrice: decimal.NewFromInt(8000),
		TotalCost: decimal.NewFromInt(999999),
	})
	require.NoError(t, err)
	require.True(t, ok)

	supplies, err := store.QuerySupplies(ctx, "finca-a", march())
	require.NoError(t, err)
	require.Len(t, supplies, 1)
	assert.True(t, supplies[0].TotalCost.Equal(decimal.NewFromInt(16000)))
}

// =============================================================================
// RATE TESTS
// =============================================================================

func TestInsertRateConfigIfAbsent_NeverOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := finca.RateConfig{
		Tenant:       "finca-a",
		DayRate:      decimal.NewFromInt(9000),
		OvertimeRate: decimal.NewFromInt(2000),
	}
	require.NoError(t, store.InsertRateConfigIfAbsent(ctx, first))

	second := finca.RateConfig{
		Tenant:       "finca-a",
		DayRate:      decimal.NewFromInt(1),
		OvertimeRate: decimal.NewFromInt(1),
	}
	require.NoError(t, store.InsertRateConfigIfAbsent(ctx, second))

	cfg, err := store.GetRateConfig(ctx, "finca-a")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.DayRate.Equal(decimal.NewFromInt(9000)))
}

func TestLegacyRates_AbsentIsNil(t *testing.T) {
	store := newTestStore(t)

	cfg, err := store.LegacyRates(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

// =============================================================================
// CLOSING TESTS
// =============================================================================

func TestInsertClosing_UniqueIndexMapsToDuplicateError(t *testing.T) {
	// The unique index, not the engine's fast-path check, decides races.

	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertClosing(ctx, testClosing("finca-a", march()))
	require.NoError(t, err)

	_, err = store.InsertClosing(ctx, testClosing("finca-a", march()))
	require.Error(t, err)
	assert.ErrorIs(t, err, finca.ErrDuplicateClosing)

	// Same range for another tenant is fine.
	_, err = store.InsertClosing(ctx, testClosing("finca-b", march()))
	assert.NoError(t, err)
}

func TestDeleteClosing_CascadesToDetailRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertClosing(ctx, testClosing("finca-a", march()))
	require.NoError(t, err)
	require.NoError(t, store.InsertPayrollLines(ctx, id, []finca.PayrollLine{{
		Worker:    "Juan Perez",
		Days:      1,
		DayAmount: decimal.NewFromInt(9000),
		Total:     decimal.NewFromInt(9000),
	}}))
	require.NoError(t, store.InsertSupplyLines(ctx, id, []finca.SupplyLine{{
		Date:      d(2025, time.March, 10),
		Kind:      finca.SupplyFertilizer,
		Quantity:  decimal.NewFromInt(4),
		UnitPrice: decimal.NewFromInt(15500),
		TotalCost: decimal.NewFromInt(62000),
	}}))

	require.NoError(t, store.DeleteClosing(ctx, "finca-a", id))

	header, err := store.GetClosing(ctx, "finca-a", id)
	require.NoError(t, err)
	assert.Nil(t, header)
	payroll, err := store.ClosingPayroll(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, payroll)
	supplies, err := store.ClosingSupplies(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, supplies)
}

func TestGetClosing_ForeignTenant_Nil(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertClosing(ctx, testClosing("finca-a", march()))
	require.NoError(t, err)

	header, err := store.GetClosing(ctx, "finca-b", id)
	require.NoError(t, err)
	assert.Nil(t, header)
}

func TestListClosings_NewestRangeFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	january := finca.DateRange{From: d(2025, time.January, 1), To: d(2025, time.January, 31)}
	_, err := store.InsertClosing(ctx, testClosing("finca-a", january))
	require.NoError(t, err)
	_, err = store.InsertClosing(ctx, testClosing("finca-a", march()))
	require.NoError(t, err)

	closings, err := store.ListClosings(ctx, "finca-a")
	require.NoError(t, err)
	require.Len(t, closings, 2)
	assert.True(t, closings[0].RangeStart.Equal(d(2025, time.March, 1)))
	assert.True(t, closings[1].RangeStart.Equal(d(2025, time.January, 1)))
}

func TestClosing_DecimalRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := testClosing("finca-a", march())
	c.TotalPayroll = decimal.RequireFromString("94000.50")
	c.TotalGeneral = decimal.RequireFromString("94000.50")
	id, err := store.InsertClosing(ctx, c)
	require.NoError(t, err)

	got, err := store.GetClosing(ctx, "finca-a", id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.TotalPayroll.Equal(decimal.RequireFromString("94000.50")))
	assert.True(t, got.DayRate.Equal(decimal.NewFromInt(9000)))
}

// =============================================================================
// TASK TESTS
// =============================================================================

func testTask(tenant finca.Tenant, day finca.Date) finca.PlannedTask {
	return finca.PlannedTask{
		Tenant:    tenant,
		Date:      day,
		Plot:      "La Loma",
		Kind:      finca.TaskSpray,
		Product:   "Amistar",
		Quantity:  decimal.NewFromInt(2),
		UnitPrice: decimal.NewFromInt(12000),
		Status:    finca.TaskPending,
	}
}

func TestMarkTaskDone_CompareAndSwap(t *testing.T) {
	// The second flip of the same task must report false.

	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertTask(ctx, testTask("finca-a", d(2025, time.March, 10)))
	require.NoError(t, err)

	now := time.Now().UTC()
	ok, err := store.MarkTaskDone(ctx, "finca-a", id, "marta", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkTaskDone(ctx, "finca-a", id, "pedro", now)
	require.NoError(t, err)
	assert.False(t, ok)

	task, err := store.GetTask(ctx, "finca-a", id)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, finca.TaskDone, task.Status)
	assert.Equal(t, "marta", task.DoneBy)
	require.NotNil(t, task.DoneAt)
}

func TestMarkTaskDone_ForeignTenant_False(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertTask(ctx, testTask("finca-a", d(2025, time.March, 10)))
	require.NoError(t, err)

	ok, err := store.MarkTaskDone(ctx, "finca-b", id, "marta", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShiftTaskDate_PendingOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertTask(ctx, testTask("finca-a", d(2025, time.March, 10)))
	require.NoError(t, err)

	ok, err := store.ShiftTaskDate(ctx, "finca-a", id, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	task, err := store.GetTask(ctx, "finca-a", id)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.True(t, task.Date.Equal(d(2025, time.March, 17)))

	_, err = store.MarkTaskDone(ctx, "finca-a", id, "marta", time.Now().UTC())
	require.NoError(t, err)

	ok, err = store.ShiftTaskDate(ctx, "finca-a", id, 7)
	require.NoError(t, err)
	assert.False(t, ok, "a done task is never moved")
}

func TestTask_RecurrenceRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	remaining := 3
	task := testTask("finca-a", d(2025, time.March, 10))
	task.Recurrence = &finca.Recurrence{EveryDays: 45, Remaining: &remaining, AutoRenew: true}
	id, err := store.InsertTask(ctx, task)
	require.NoError(t, err)

	got, err := store.GetTask(ctx, "finca-a", id)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Recurrence)
	assert.Equal(t, 45, got.Recurrence.EveryDays)
	require.NotNil(t, got.Recurrence.Remaining)
	assert.Equal(t, 3, *got.Recurrence.Remaining)
	assert.True(t, got.Recurrence.AutoRenew)
}

func TestListTasks_StatusFilterAndOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doneID, err := store.InsertTask(ctx, testTask("finca-a", d(2025, time.March, 10)))
	require.NoError(t, err)
	_, err = store.InsertTask(ctx, testTask("finca-a", d(2025, time.March, 5)))
	require.NoError(t, err)
	_, err = store.InsertTask(ctx, testTask("finca-b", d(2025, time.March, 7)))
	require.NoError(t, err)

	_, err = store.MarkTaskDone(ctx, "finca-a", doneID, "marta", time.Now().UTC())
	require.NoError(t, err)

	all, err := store.ListTasks(ctx, "finca-a", march(), nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Date.Before(all[1].Date))

	pending := finca.TaskPending
	got, err := store.ListTasks(ctx, "finca-a", march(), &pending)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Date.Equal(d(2025, time.March, 5)))
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestWithTx_RollbackOnError(t *testing.T) {
	// GIVEN: A transaction that inserts a closing and then fails
	// WHEN: The transaction returns an error
	// THEN: Nothing is visible afterwards

	store := newTestStore(t)
	ctx := context.Background()

	boom := assert.AnError
	err := store.WithTx(ctx, func(s finca.Store) error {
		if _, err := s.InsertClosing(ctx, testClosing("finca-a", march())); err != nil {
			return err
		}
		if _, err := s.InsertWorkday(ctx, testWorkday("finca-a", "Juan Perez", d(2025, time.March, 5))); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	closings, err := store.ListClosings(ctx, "finca-a")
	require.NoError(t, err)
	assert.Empty(t, closings)
	workdays, err := store.QueryWorkdays(ctx, "finca-a", march())
	require.NoError(t, err)
	assert.Empty(t, workdays)
}

func TestWithTx_CommitOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s finca.Store) error {
		id, err := s.InsertClosing(ctx, testClosing("finca-a", march()))
		if err != nil {
			return err
		}
		return s.InsertPayrollLines(ctx, id, []finca.PayrollLine{{
			Worker: "Juan Perez", Days: 1,
			DayAmount: decimal.NewFromInt(9000),
			Total:     decimal.NewFromInt(9000),
		}})
	})
	require.NoError(t, err)

	closings, err := store.ListClosings(ctx, "finca-a")
	require.NoError(t, err)
	require.Len(t, closings, 1)
	payroll, err := store.ClosingPayroll(ctx, closings[0].ID)
	require.NoError(t, err)
	assert.Len(t, payroll, 1)
}

// =============================================================================
// ENGINE-OVER-SQLITE INTEGRATION
// =============================================================================

func TestClosingEngine_OverSQLite(t *testing.T) {
	// The full closing flow against the real store: aggregate, freeze
	// rates, reject duplicates, overwrite cleanly.

	store := newTestStore(t)
	engine := finca.NewClosingEngine(store)
	ctx := context.Background()

	rec := testWorkday("finca-a", "Juan Perez", d(2025, time.March, 5))
	rec.Days = 10
	rec.NormalHours = decimal.NewFromInt(60)
	rec.OvertimeHours = decimal.NewFromInt(2)
	_, err := store.InsertWorkday(ctx, rec)
	require.NoError(t, err)

	id, err := engine.CreateClosing(ctx, finca.CreateClosingInput{Tenant: "finca-a", Range: march()})
	require.NoError(t, err)

	detail, err := engine.ReadClosingDetail(ctx, "finca-a", id)
	require.NoError(t, err)
	require.NotNil(t, detail)
	require.Len(t, detail.Payroll, 1)
	assert.True(t, detail.Payroll[0].Total.Equal(decimal.NewFromInt(94000)))
	assert.True(t, detail.Closing.TotalGeneral.Equal(decimal.NewFromInt(94000)))

	_, err = engine.CreateClosing(ctx, finca.CreateClosingInput{Tenant: "finca-a", Range: march()})
	assert.ErrorIs(t, err, finca.ErrDuplicateClosing)

	newID, err := engine.CreateClosing(ctx, finca.CreateClosingInput{
		Tenant: "finca-a", Range: march(), Overwrite: true,
	})
	require.NoError(t, err)
	assert.NotEqual(t, id, newID)

	orphans, err := store.ClosingPayroll(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestScheduler_OverSQLite(t *testing.T) {
	// Completion inside a real transaction: ledger row, status flip, and
	// successor all land together.

	store := newTestStore(t)
	sc := finca.NewScheduler(store)
	ctx := context.Background()

	remaining := 2
	task := testTask("finca-a", d(2025, time.March, 10))
	task.Recurrence = &finca.Recurrence{EveryDays: 45, Remaining: &remaining, AutoRenew: true}
	id, err := store.InsertTask(ctx, task)
	require.NoError(t, err)

	ok, err := sc.CompleteTask(ctx, "finca-a", id, "marta")
	require.NoError(t, err)
	require.True(t, ok)

	wide := finca.DateRange{From: d(2025, time.January, 1), To: d(2025, time.December, 31)}
	supplies, err := store.QuerySupplies(ctx, "finca-a", wide)
	require.NoError(t, err)
	assert.Len(t, supplies, 1)

	pending := finca.TaskPending
	tasks, err := store.ListTasks(ctx, "finca-a", wide, &pending)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].Date.Equal(d(2025, time.April, 24)))
	require.NotNil(t, tasks[0].ParentTaskID)
	assert.Equal(t, id, *tasks[0].ParentTaskID)
	require.NotNil(t, tasks[0].Recurrence)
	require.NotNil(t, tasks[0].Recurrence.Remaining)
	assert.Equal(t, 1, *tasks[0].Recurrence.Remaining)
}
