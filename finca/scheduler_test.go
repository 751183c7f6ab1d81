/*
scheduler_test.go - Recurring task scheduler tests

Tests for:
- Task creation and recurrence validation
- Completion materializing ledger rows
- Recurrence chaining (bounded and unbounded)
- Postponement and benign misses
*/
package finca_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KeilorFP/finca-app/finca"
	"github.com/KeilorFP/finca-app/finca/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestScheduler() (*finca.Scheduler, *store.TxMemory) {
	mem := store.NewTxMemory()
	sc := finca.NewScheduler(mem)
	sc.Now = func() time.Time {
		return time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	}
	return sc, mem
}

// planningHorizon is a range wide enough to list every task a test creates.
func planningHorizon() finca.DateRange {
	return finca.DateRange{From: date(2025, time.January, 1), To: date(2026, time.December, 31)}
}

func sprayTask(day finca.Date) finca.TaskInput {
	return finca.TaskInput{
		Tenant:    "finca-a",
		Date:      day,
		Plot:      "La Loma",
		Kind:      finca.TaskSpray,
		Stage:     "floracion",
		Product:   "Amistar",
		Dose:      "0.5 kg/ha",
		Quantity:  decimal.NewFromInt(2),
		UnitPrice: decimal.NewFromInt(12000),
	}
}

func workdayTask(day finca.Date, worker string) finca.TaskInput {
	return finca.TaskInput{
		Tenant:   "finca-a",
		Date:     day,
		Plot:     "La Loma",
		Kind:     finca.TaskWorkday,
		Worker:   worker,
		Activity: "poda",
	}
}

func intPtr(n int) *int { return &n }

// =============================================================================
// CREATION TESTS
// =============================================================================

func TestCreateTask_InvalidKind(t *testing.T) {
	sc, _ := newTestScheduler()

	in := sprayTask(date(2025, time.March, 10))
	in.Kind = "harvest"
	_, err := sc.CreateTask(context.Background(), in)
	assert.ErrorIs(t, err, finca.ErrInvalidInput)
}

func TestCreateTask_MissingDate(t *testing.T) {
	sc, _ := newTestScheduler()

	in := sprayTask(finca.Date{})
	_, err := sc.CreateTask(context.Background(), in)
	assert.ErrorIs(t, err, finca.ErrInvalidInput)
}

func TestCreateTask_InvalidRecurrence(t *testing.T) {
	// Non-positive intervals and zero occurrence budgets are rejected.

	sc, _ := newTestScheduler()
	ctx := context.Background()

	in := sprayTask(date(2025, time.March, 10))
	in.Recurrence = &finca.RecurrenceInput{EveryDays: 0, AutoRenew: true}
	_, err := sc.CreateTask(ctx, in)
	var recErr *finca.InvalidRecurrenceError
	require.ErrorAs(t, err, &recErr)

	in.Recurrence = &finca.RecurrenceInput{EveryDays: 45, TotalOccurrences: intPtr(0), AutoRenew: true}
	_, err = sc.CreateTask(ctx, in)
	assert.ErrorIs(t, err, finca.ErrInvalidInput)
}

func TestCreateTask_StartsPending(t *testing.T) {
	sc, _ := newTestScheduler()
	ctx := context.Background()

	id, err := sc.CreateTask(ctx, sprayTask(date(2025, time.March, 10)))
	require.NoError(t, err)

	tasks, err := sc.ListTasks(ctx, "finca-a", planningHorizon(), nil)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, id, tasks[0].ID)
	assert.Equal(t, finca.TaskPending, tasks[0].Status)
	assert.Nil(t, tasks[0].ParentTaskID)
}

func TestListTasks_StatusFilter(t *testing.T) {
	sc, _ := newTestScheduler()
	ctx := context.Background()

	doneID, err := sc.CreateTask(ctx, sprayTask(date(2025, time.March, 10)))
	require.NoError(t, err)
	_, err = sc.CreateTask(ctx, sprayTask(date(2025, time.March, 20)))
	require.NoError(t, err)

	ok, err := sc.CompleteTask(ctx, "finca-a", doneID, "marta")
	require.NoError(t, err)
	require.True(t, ok)

	pending := finca.TaskPending
	tasks, err := sc.ListTasks(ctx, "finca-a", planningHorizon(), &pending)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.NotEqual(t, doneID, tasks[0].ID)

	done := finca.TaskDone
	tasks, err = sc.ListTasks(ctx, "finca-a", planningHorizon(), &done)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, doneID, tasks[0].ID)
}

// =============================================================================
// MATERIALIZATION TESTS
// =============================================================================

func TestCompleteTask_SupplyTask_MaterializesSupply(t *testing.T) {
	// GIVEN: A pending spray task
	// WHEN: Completing it
	// THEN: A supply row exists on the task's date with the recomputed cost

	sc, mem := newTestScheduler()
	ctx := context.Background()

	id, err := sc.CreateTask(ctx, sprayTask(date(2025, time.March, 10)))
	require.NoError(t, err)

	ok, err := sc.CompleteTask(ctx, "finca-a", id, "marta")
	require.NoError(t, err)
	assert.True(t, ok)

	supplies, err := mem.QuerySupplies(ctx, "finca-a", march2025())
	require.NoError(t, err)
	require.Len(t, supplies, 1)
	assert.Equal(t, finca.SupplySpray, supplies[0].Kind)
	assert.Equal(t, "Amistar", supplies[0].Product)
	assert.True(t, supplies[0].TotalCost.Equal(decimal.NewFromInt(24000)))

	tasks, err := sc.ListTasks(ctx, "finca-a", planningHorizon(), nil)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, finca.TaskDone, tasks[0].Status)
	assert.Equal(t, "marta", tasks[0].DoneBy)
	require.NotNil(t, tasks[0].DoneAt)
}

func TestCompleteTask_WorkdayTask_MaterializesWorkday(t *testing.T) {
	// A workday task with no explicit days counts as one day, six normal
	// hours.

	sc, mem := newTestScheduler()
	ctx := context.Background()

	id, err := sc.CreateTask(ctx, workdayTask(date(2025, time.March, 10), "Juan Perez"))
	require.NoError(t, err)

	ok, err := sc.CompleteTask(ctx, "finca-a", id, "marta")
	require.NoError(t, err)
	assert.True(t, ok)

	workdays, err := mem.QueryWorkdays(ctx, "finca-a", march2025())
	require.NoError(t, err)
	require.Len(t, workdays, 1)
	assert.Equal(t, "Juan Perez", workdays[0].Worker)
	assert.Equal(t, 1, workdays[0].Days)
	assert.True(t, workdays[0].NormalHours.Equal(decimal.NewFromInt(6)))
}

func TestCompleteTask_WorkdayTask_MultiDay(t *testing.T) {
	sc, mem := newTestScheduler()
	ctx := context.Background()

	in := workdayTask(date(2025, time.March, 10), "Juan Perez")
	in.Days = 3
	in.OvertimeHours = decimal.NewFromInt(2)
	id, err := sc.CreateTask(ctx, in)
	require.NoError(t, err)

	ok, err := sc.CompleteTask(ctx, "finca-a", id, "marta")
	require.NoError(t, err)
	assert.True(t, ok)

	workdays, err := mem.QueryWorkdays(ctx, "finca-a", march2025())
	require.NoError(t, err)
	require.Len(t, workdays, 1)
	assert.Equal(t, 3, workdays[0].Days)
	assert.True(t, workdays[0].NormalHours.Equal(decimal.NewFromInt(18)))
	assert.True(t, workdays[0].OvertimeHours.Equal(decimal.NewFromInt(2)))
}

func TestCompleteTask_WorkdayWithoutWorker_StaysPending(t *testing.T) {
	// GIVEN: A workday task with no worker assigned
	// WHEN: Completing it
	// THEN: The completion fails, no ledger row is written, and the task
	//       remains pending

	sc, mem := newTestScheduler()
	ctx := context.Background()

	id, err := sc.CreateTask(ctx, workdayTask(date(2025, time.March, 10), ""))
	require.NoError(t, err)

	_, err = sc.CompleteTask(ctx, "finca-a", id, "marta")
	assert.ErrorIs(t, err, finca.ErrInvalidInput)

	workdays, err := mem.QueryWorkdays(ctx, "finca-a", march2025())
	require.NoError(t, err)
	assert.Empty(t, workdays)

	tasks, err := sc.ListTasks(ctx, "finca-a", planningHorizon(), nil)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, finca.TaskPending, tasks[0].Status)
}

// =============================================================================
// BENIGN MISS TESTS
// =============================================================================

func TestCompleteTask_AbsentOrForeign_BenignFalse(t *testing.T) {
	sc, _ := newTestScheduler()
	ctx := context.Background()

	ok, err := sc.CompleteTask(ctx, "finca-a", 999, "marta")
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := sc.CreateTask(ctx, sprayTask(date(2025, time.March, 10)))
	require.NoError(t, err)

	ok, err = sc.CompleteTask(ctx, "finca-b", id, "marta")
	require.NoError(t, err)
	assert.False(t, ok, "another tenant's completion must be a benign miss")
}

func TestCompleteTask_Twice_SecondIsFalse(t *testing.T) {
	// GIVEN: A recurring task completed once
	// WHEN: Completing the same id again
	// THEN: false, no second ledger row, and exactly one successor

	sc, mem := newTestScheduler()
	ctx := context.Background()

	in := sprayTask(date(2025, time.March, 10))
	in.Recurrence = &finca.RecurrenceInput{EveryDays: 45, AutoRenew: true}
	id, err := sc.CreateTask(ctx, in)
	require.NoError(t, err)

	ok, err := sc.CompleteTask(ctx, "finca-a", id, "marta")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = sc.CompleteTask(ctx, "finca-a", id, "marta")
	require.NoError(t, err)
	assert.False(t, ok)

	supplies, err := mem.QuerySupplies(ctx, "finca-a", planningHorizon())
	require.NoError(t, err)
	assert.Len(t, supplies, 1, "re-completion must not duplicate the ledger row")

	tasks, err := sc.ListTasks(ctx, "finca-a", planningHorizon(), nil)
	require.NoError(t, err)
	assert.Len(t, tasks, 2, "exactly one successor")
}

// =============================================================================
// RECURRENCE CHAINING TESTS
// =============================================================================

func TestCompleteTask_UnboundedRecurrence_Chains(t *testing.T) {
	// GIVEN: An auto-renewing task with no occurrence budget
	// WHEN: Completing it
	// THEN: A pending successor appears every_days later, linked by
	//       ParentTaskID and still unbounded

	sc, _ := newTestScheduler()
	ctx := context.Background()

	in := sprayTask(date(2025, time.March, 10))
	in.Recurrence = &finca.RecurrenceInput{EveryDays: 45, AutoRenew: true}
	id, err := sc.CreateTask(ctx, in)
	require.NoError(t, err)

	ok, err := sc.CompleteTask(ctx, "finca-a", id, "marta")
	require.NoError(t, err)
	require.True(t, ok)

	pending := finca.TaskPending
	tasks, err := sc.ListTasks(ctx, "finca-a", planningHorizon(), &pending)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	successor := tasks[0]
	assert.True(t, successor.Date.Equal(date(2025, time.April, 24)))
	require.NotNil(t, successor.ParentTaskID)
	assert.Equal(t, id, *successor.ParentTaskID)
	assert.Equal(t, "Amistar", successor.Product)
	require.NotNil(t, successor.Recurrence)
	assert.Nil(t, successor.Recurrence.Remaining)
	assert.True(t, successor.Recurrence.AutoRenew)
}

func TestCompleteTask_NoAutoRenew_NoSuccessor(t *testing.T) {
	sc, _ := newTestScheduler()
	ctx := context.Background()

	in := sprayTask(date(2025, time.March, 10))
	in.Recurrence = &finca.RecurrenceInput{EveryDays: 45, TotalOccurrences: intPtr(5), AutoRenew: false}
	id, err := sc.CreateTask(ctx, in)
	require.NoError(t, err)

	ok, err := sc.CompleteTask(ctx, "finca-a", id, "marta")
	require.NoError(t, err)
	require.True(t, ok)

	pending := finca.TaskPending
	tasks, err := sc.ListTasks(ctx, "finca-a", planningHorizon(), &pending)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCompleteTask_BoundedRecurrence_ExactOccurrenceCount(t *testing.T) {
	// GIVEN: every_days=45, total_occurrences=3, auto-renew
	// WHEN: Completing each occurrence as it appears
	// THEN: Exactly three tasks ever exist; completing the third spawns
	//       no fourth, and each successor's budget decreases by one

	sc, mem := newTestScheduler()
	ctx := context.Background()

	in := sprayTask(date(2025, time.March, 10))
	in.Recurrence = &finca.RecurrenceInput{EveryDays: 45, TotalOccurrences: intPtr(3), AutoRenew: true}
	_, err := sc.CreateTask(ctx, in)
	require.NoError(t, err)

	pending := finca.TaskPending
	for i := 0; i < 3; i++ {
		tasks, err := sc.ListTasks(ctx, "finca-a", planningHorizon(), &pending)
		require.NoError(t, err)
		require.Len(t, tasks, 1, "one pending occurrence at a time")

		ok, err := sc.CompleteTask(ctx, "finca-a", tasks[0].ID, "marta")
		require.NoError(t, err)
		require.True(t, ok)
	}

	// The third completion still materialized its ledger row.
	supplies, err := mem.QuerySupplies(ctx, "finca-a", planningHorizon())
	require.NoError(t, err)
	assert.Len(t, supplies, 3)

	// But no fourth occurrence exists.
	remaining, err := sc.ListTasks(ctx, "finca-a", planningHorizon(), &pending)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	all, err := sc.ListTasks(ctx, "finca-a", planningHorizon(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, task := range all {
		assert.Equal(t, finca.TaskDone, task.Status)
	}
}

func TestCompleteTask_SuccessorBudgetDecrements(t *testing.T) {
	sc, _ := newTestScheduler()
	ctx := context.Background()

	in := sprayTask(date(2025, time.March, 10))
	in.Recurrence = &finca.RecurrenceInput{EveryDays: 30, TotalOccurrences: intPtr(3), AutoRenew: true}
	id, err := sc.CreateTask(ctx, in)
	require.NoError(t, err)

	ok, err := sc.CompleteTask(ctx, "finca-a", id, "marta")
	require.NoError(t, err)
	require.True(t, ok)

	pending := finca.TaskPending
	tasks, err := sc.ListTasks(ctx, "finca-a", planningHorizon(), &pending)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].Recurrence)
	require.NotNil(t, tasks[0].Recurrence.Remaining)
	assert.Equal(t, 2, *tasks[0].Recurrence.Remaining)
}

// =============================================================================
// POSTPONE TESTS
// =============================================================================

func TestPostponeTask_ShiftsPendingTask(t *testing.T) {
	sc, _ := newTestScheduler()
	ctx := context.Background()

	id, err := sc.CreateTask(ctx, sprayTask(date(2025, time.March, 10)))
	require.NoError(t, err)

	ok, err := sc.PostponeTask(ctx, "finca-a", id, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	tasks, err := sc.ListTasks(ctx, "finca-a", planningHorizon(), nil)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].Date.Equal(date(2025, time.March, 17)))
	assert.Equal(t, finca.TaskPending, tasks[0].Status)
}

func TestPostponeTask_DoneTask_BenignFalse(t *testing.T) {
	sc, _ := newTestScheduler()
	ctx := context.Background()

	id, err := sc.CreateTask(ctx, sprayTask(date(2025, time.March, 10)))
	require.NoError(t, err)

	ok, err := sc.CompleteTask(ctx, "finca-a", id, "marta")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = sc.PostponeTask(ctx, "finca-a", id, 7)
	require.NoError(t, err)
	assert.False(t, ok, "a done task is never resurrected")
}

func TestPostponeTask_NonPositiveDays_Rejected(t *testing.T) {
	sc, _ := newTestScheduler()
	ctx := context.Background()

	id, err := sc.CreateTask(ctx, sprayTask(date(2025, time.March, 10)))
	require.NoError(t, err)

	for _, days := range []int{0, -5} {
		_, err := sc.PostponeTask(ctx, "finca-a", id, days)
		assert.ErrorIs(t, err, finca.ErrInvalidInput)
	}
}

func TestPostponeTask_ForeignTenant_BenignFalse(t *testing.T) {
	sc, _ := newTestScheduler()
	ctx := context.Background()

	id, err := sc.CreateTask(ctx, sprayTask(date(2025, time.March, 10)))
	require.NoError(t, err)

	ok, err := sc.PostponeTask(ctx, "finca-b", id, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}
