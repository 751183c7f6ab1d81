/*
scheduler.go - Recurring labor task scheduler

PURPOSE:
  Owns PlannedTask entities: creation with an optional recurrence policy,
  manual postponement, and the completion transition. Completing a task
  materializes a real ledger row (a WorkdayRecord or a SupplyRecord) and,
  when the recurrence policy allows, spawns the next Pending occurrence in
  the same transaction.

STATE MACHINE:
  Pending -> Done, terminal per row. Recurrence manifests as a NEW row
  linked via ParentTaskID, never a resurrection of the completed one.

CHAINING POLICY (decrement then check):
  remaining == nil         -> always chain (unbounded)
  remaining - 1 == 0       -> complete but do not chain; the n-th (last)
                              occurrence is still recorded, no n+1-th exists
  remaining - 1 > 0        -> chain, successor inherits remaining-1
  So total_occurrences is exactly the number of Pending tasks ever
  materialized in the chain, counting the seed.

CONCURRENCY:
  The fetch-check-materialize-flip-chain sequence runs in one store
  transaction, and the status flip is a compare-and-swap. Two concurrent
  completions of the same task yield true then false with exactly one
  successor; a failed ledger insert leaves the task Pending.
*/
package finca

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Normal hours per labor day; a one-day jornada is six normal hours.
const normalHoursPerDay = 6

// NormalHoursFor returns the conventional normal hours for a number of
// labor days.
func NormalHoursFor(days int) decimal.Decimal {
	return decimal.NewFromInt(int64(days * normalHoursPerDay))
}

// errTaskRaced signals that the CAS on status lost to a concurrent
// completion; mapped to a benign false by CompleteTask.
var errTaskRaced = errors.New("task completed concurrently")

// Scheduler plans and completes recurring labor tasks.
type Scheduler struct {
	Store TxStore

	// Now is the clock used for done_at and created_at stamps.
	// Overridable in tests.
	Now func() time.Time
}

func NewScheduler(store TxStore) *Scheduler {
	return &Scheduler{Store: store, Now: time.Now}
}

// RecurrenceInput is the caller-facing recurrence policy.
// TotalOccurrences counts the seed task; nil means unbounded.
type RecurrenceInput struct {
	EveryDays        int
	TotalOccurrences *int
	AutoRenew        bool
}

// TaskInput carries the fields for a new planned task. Which descriptive
// fields are meaningful depends on Kind.
type TaskInput struct {
	Tenant        Tenant
	Date          Date
	Plot          string
	Kind          TaskKind
	Worker        string
	Activity      string
	Stage         string
	Product       string
	Dose          string
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal
	Days          int
	OvertimeHours decimal.Decimal
	Recurrence    *RecurrenceInput
}

// CreateTask creates a Pending task, normalizing the recurrence policy to
// (every_days, remaining, autorenew).
func (sc *Scheduler) CreateTask(ctx context.Context, in TaskInput) (int64, error) {
	if !in.Kind.Valid() {
		return 0, fmt.Errorf("%w: unknown task kind %q", ErrInvalidInput, in.Kind)
	}
	if in.Date.IsZero() {
		return 0, fmt.Errorf("%w: task date required", ErrInvalidInput)
	}

	var rec *Recurrence
	if in.Recurrence != nil {
		if in.Recurrence.EveryDays <= 0 ||
			(in.Recurrence.TotalOccurrences != nil && *in.Recurrence.TotalOccurrences < 1) {
			return 0, &InvalidRecurrenceError{
				EveryDays:        in.Recurrence.EveryDays,
				TotalOccurrences: in.Recurrence.TotalOccurrences,
			}
		}
		rec = &Recurrence{
			EveryDays: in.Recurrence.EveryDays,
			AutoRenew: in.Recurrence.AutoRenew,
		}
		if in.Recurrence.TotalOccurrences != nil {
			remaining := *in.Recurrence.TotalOccurrences
			rec.Remaining = &remaining
		}
	}

	task := PlannedTask{
		Tenant:        in.Tenant,
		Date:          in.Date,
		Plot:          in.Plot,
		Kind:          in.Kind,
		Worker:        in.Worker,
		Activity:      in.Activity,
		Stage:         in.Stage,
		Product:       in.Product,
		Dose:          in.Dose,
		Quantity:      in.Quantity,
		UnitPrice:     in.UnitPrice,
		Days:          in.Days,
		OvertimeHours: in.OvertimeHours,
		Status:        TaskPending,
		Recurrence:    rec,
		CreatedAt:     sc.Now().UTC(),
	}
	return sc.Store.InsertTask(ctx, task)
}

// ListTasks returns the tenant's tasks in the range, optionally filtered
// by status, ordered by (date, plot, id) for stable calendar rendering.
func (sc *Scheduler) ListTasks(ctx context.Context, tenant Tenant, r DateRange, status *TaskStatus) ([]PlannedTask, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return sc.Store.ListTasks(ctx, tenant, r, status)
}

// CompleteTask marks a Pending task Done, materializes the corresponding
// ledger row, and chains the next occurrence when the recurrence policy
// allows. Returns false for an absent, foreign, or already-Done task -
// a benign miss, safe to retry.
func (sc *Scheduler) CompleteTask(ctx context.Context, tenant Tenant, taskID int64, doneBy string) (bool, error) {
	completed := false
	err := sc.Store.WithTx(ctx, func(s Store) error {
		task, err := s.GetTask(ctx, tenant, taskID)
		if err != nil {
			return err
		}
		if task == nil || task.Status == TaskDone {
			return nil
		}

		if err := sc.materialize(ctx, s, task); err != nil {
			return err
		}

		ok, err := s.MarkTaskDone(ctx, tenant, taskID, doneBy, sc.Now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return errTaskRaced
		}

		if successor := task.nextOccurrence(); successor != nil {
			successor.CreatedAt = sc.Now().UTC()
			if _, err := s.InsertTask(ctx, *successor); err != nil {
				return err
			}
		}
		completed = true
		return nil
	})
	if errors.Is(err, errTaskRaced) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return completed, nil
}

// materialize writes the real ledger entry a completed task stands for.
func (sc *Scheduler) materialize(ctx context.Context, s Store, task *PlannedTask) error {
	if task.Kind == TaskWorkday {
		if task.Worker == "" {
			return fmt.Errorf("%w: workday task %d has no worker assigned", ErrInvalidInput, task.ID)
		}
		days := task.Days
		if days <= 0 {
			days = 1
		}
		_, err := s.InsertWorkday(ctx, WorkdayRecord{
			Tenant:        task.Tenant,
			Worker:        task.Worker,
			Date:          task.Date,
			Plot:          task.Plot,
			Activity:      task.Activity,
			Days:          days,
			NormalHours:   NormalHoursFor(days),
			OvertimeHours: task.OvertimeHours,
		})
		return err
	}
	_, err := s.InsertSupply(ctx, SupplyRecord{
		Tenant:    task.Tenant,
		Date:      task.Date,
		Plot:      task.Plot,
		Kind:      task.Kind.SupplyKind(),
		Stage:     task.Stage,
		Product:   task.Product,
		Dose:      task.Dose,
		Quantity:  task.Quantity,
		UnitPrice: task.UnitPrice,
	})
	return err
}

// nextOccurrence builds the successor task, or nil when the chain halts.
func (t *PlannedTask) nextOccurrence() *PlannedTask {
	rec := t.Recurrence
	if rec == nil || !rec.AutoRenew || rec.EveryDays <= 0 {
		return nil
	}

	next := Recurrence{EveryDays: rec.EveryDays, AutoRenew: rec.AutoRenew}
	if rec.Remaining != nil {
		remaining := *rec.Remaining - 1
		if remaining < 0 {
			remaining = 0
		}
		if remaining == 0 {
			return nil
		}
		next.Remaining = &remaining
	}

	parentID := t.ID
	return &PlannedTask{
		Tenant:        t.Tenant,
		Date:          t.Date.AddDays(rec.EveryDays),
		Plot:          t.Plot,
		Kind:          t.Kind,
		Worker:        t.Worker,
		Activity:      t.Activity,
		Stage:         t.Stage,
		Product:       t.Product,
		Dose:          t.Dose,
		Quantity:      t.Quantity,
		UnitPrice:     t.UnitPrice,
		Days:          t.Days,
		OvertimeHours: t.OvertimeHours,
		Status:        TaskPending,
		Recurrence:    &next,
		ParentTaskID:  &parentID,
	}
}

// PostponeTask shifts a Pending task's date forward by the given number of
// days. Returns false for an absent, foreign, or Done task; a Done task is
// never resurrected. Recurrence bookkeeping is untouched.
func (sc *Scheduler) PostponeTask(ctx context.Context, tenant Tenant, taskID int64, days int) (bool, error) {
	if days <= 0 {
		return false, fmt.Errorf("%w: postpone days must be positive, got %d", ErrInvalidInput, days)
	}
	return sc.Store.ShiftTaskDate(ctx, tenant, taskID, days)
}
