/*
store.go - Persistence contracts for the farm ledger

PURPOSE:
  Defines the interface between the engines and the database. The engines
  never touch SQL; they compose Store operations, and multi-statement
  sequences run inside WithTx so a closing or a task completion is either
  fully visible or not at all.

TENANCY CONTRACT:
  Every read and write is parameterized by Tenant. Implementations must
  filter by tenant on every query; a scoped Get* on a foreign-tenant row
  returns nil/false, never another tenant's data.

UNIQUENESS CONTRACT:
  The store's unique constraints are the source of truth for races:
  - closings are unique per (tenant, range_start, range_end); a losing
    concurrent insert gets an error satisfying errors.Is(err,
    ErrDuplicateClosing)
  - workers are unique per (tenant, first_name, last_name) ->
    ErrAlreadyExists
  The engines' existence checks are fast paths only.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - finca/store: in-memory store for tests and dev mode

SEE ALSO:
  - closing.go, scheduler.go, rates.go: the consumers of these contracts
*/
package finca

import (
	"context"
	"time"
)

// Store is the tenant-scoped ledger store collaborator.
type Store interface {
	// Workers
	AddWorker(ctx context.Context, w Worker) (int64, error)
	ListWorkers(ctx context.Context, tenant Tenant) ([]Worker, error)

	// Live ledger rows. InsertSupply and UpdateSupply recompute TotalCost
	// from Quantity*UnitPrice; the caller's TotalCost is ignored.
	// Updates are tenant-scoped and report a benign miss as false.
	InsertWorkday(ctx context.Context, rec WorkdayRecord) (int64, error)
	UpdateWorkday(ctx context.Context, rec WorkdayRecord) (bool, error)
	QueryWorkdays(ctx context.Context, tenant Tenant, r DateRange) ([]WorkdayRecord, error)
	InsertSupply(ctx context.Context, rec SupplyRecord) (int64, error)
	UpdateSupply(ctx context.Context, rec SupplyRecord) (bool, error)
	QuerySupplies(ctx context.Context, tenant Tenant, r DateRange) ([]SupplyRecord, error)

	// Rates. GetRateConfig returns nil when the tenant has no row.
	// LegacyRates returns the read-only legacy global row, nil if absent.
	// InsertRateConfigIfAbsent never overwrites an existing tenant row.
	GetRateConfig(ctx context.Context, tenant Tenant) (*RateConfig, error)
	LegacyRates(ctx context.Context) (*RateConfig, error)
	SetLegacyRates(ctx context.Context, cfg RateConfig) error
	InsertRateConfigIfAbsent(ctx context.Context, cfg RateConfig) error
	UpsertRateConfig(ctx context.Context, cfg RateConfig) error

	// Closings. FindClosing returns nil when no header matches the exact
	// range. DeleteClosing cascades to both detail tables. Detail queries
	// are keyed by closing id; callers must have verified ownership via
	// GetClosing first.
	FindClosing(ctx context.Context, tenant Tenant, r DateRange) (*Closing, error)
	InsertClosing(ctx context.Context, c Closing) (int64, error)
	InsertPayrollLines(ctx context.Context, closingID int64, lines []PayrollLine) error
	InsertSupplyLines(ctx context.Context, closingID int64, lines []SupplyLine) error
	DeleteClosing(ctx context.Context, tenant Tenant, id int64) error
	ListClosings(ctx context.Context, tenant Tenant) ([]Closing, error)
	GetClosing(ctx context.Context, tenant Tenant, id int64) (*Closing, error)
	ClosingPayroll(ctx context.Context, closingID int64) ([]PayrollLine, error)
	ClosingSupplies(ctx context.Context, closingID int64) ([]SupplyLine, error)

	// Planned tasks. MarkTaskDone is a compare-and-swap on status: it
	// returns false if the row is absent, foreign, or already done.
	// ShiftTaskDate moves a Pending task only.
	InsertTask(ctx context.Context, t PlannedTask) (int64, error)
	GetTask(ctx context.Context, tenant Tenant, id int64) (*PlannedTask, error)
	ListTasks(ctx context.Context, tenant Tenant, r DateRange, status *TaskStatus) ([]PlannedTask, error)
	MarkTaskDone(ctx context.Context, tenant Tenant, id int64, doneBy string, at time.Time) (bool, error)
	ShiftTaskDate(ctx context.Context, tenant Tenant, id int64, days int) (bool, error)
}

// TxStore wraps Store with transaction support.
//
// If fn returns an error the transaction is rolled back and no write is
// visible; otherwise it is committed as one atomic unit. The Store passed
// to fn is only valid for the duration of the call.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
