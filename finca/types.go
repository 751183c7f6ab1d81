/*
Package finca provides the core domain for a per-tenant farm ledger:
workday and supply records, pay rates, monthly accounting closings, and a
calendar of recurring labor tasks.

PURPOSE:
  This package contains the entity types and the two engines with real
  invariants:
  - ClosingEngine: snapshot/aggregation of a date range into an immutable
    accounting record (closing.go)
  - Scheduler: recurring planned tasks that chain new occurrences from
    completed ones (scheduler.go)
  plus the RateResolver that feeds the closing engine (rates.go).

KEY CONCEPTS IN THIS FILE (types.go):
  - Tenant: the multi-tenancy boundary. Every entity carries one, every
    store query filters by one.
  - Date / DateRange: day-granularity time, the only precision the ledger
    needs.
  - WorkdayRecord / SupplyRecord: the live mutable ledger rows.
  - Closing + PayrollLine + SupplyLine: the immutable snapshot rows.
  - PlannedTask + Recurrence: the scheduler's calendar entries.

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all money and hour math, never float64.
  2. Explicit tenancy: no ambient owner state; Tenant is an argument on
     every operation.
  3. Snapshots are copies: closing detail rows are decoupled from the live
     records they were computed from.

SEE ALSO:
  - store.go: persistence contracts the engines run against
  - errors.go: error taxonomy
*/
package finca

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TENANT - Isolation boundary
// =============================================================================

// Tenant identifies one farm-operator account. It is the sole multi-tenancy
// boundary: no entity is visible or mutable outside its owning tenant.
type Tenant string

// =============================================================================
// DATE - Day-granularity time
// =============================================================================

// Date is a calendar day in UTC. The ledger never needs finer granularity.
type Date struct {
	Time time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AddDays(n int) Date            { return Date{Time: d.normalize().AddDate(0, 0, n)} }
func (d Date) IsZero() bool                  { return d.Time.IsZero() }

func (d Date) String() string { return d.normalize().Format(dateLayout) }

// DateRange is an inclusive [From, To] span of days.
type DateRange struct {
	From Date
	To   Date
}

// Validate rejects ranges where the end precedes the start.
func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() || r.From.After(r.To) {
		return ErrInvalidRange
	}
	return nil
}

// Contains reports whether d falls inside the range, inclusive.
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.From) && !d.After(r.To)
}

// =============================================================================
// SUPPLY AND TASK KINDS
// =============================================================================

// SupplyKind classifies an agricultural supply application.
type SupplyKind string

const (
	SupplyFertilizer SupplyKind = "fertilizer"
	SupplySpray      SupplyKind = "spray"
	SupplyLime       SupplyKind = "lime"
	SupplyHerbicide  SupplyKind = "herbicide"
)

func (k SupplyKind) Valid() bool {
	switch k {
	case SupplyFertilizer, SupplySpray, SupplyLime, SupplyHerbicide:
		return true
	}
	return false
}

// TaskKind is what a planned task materializes into when completed: either
// a workday or one of the supply kinds.
type TaskKind string

const (
	TaskWorkday    TaskKind = "workday"
	TaskFertilizer TaskKind = TaskKind(SupplyFertilizer)
	TaskSpray      TaskKind = TaskKind(SupplySpray)
	TaskLime       TaskKind = TaskKind(SupplyLime)
	TaskHerbicide  TaskKind = TaskKind(SupplyHerbicide)
)

func (k TaskKind) Valid() bool {
	return k == TaskWorkday || SupplyKind(k).Valid()
}

// IsSupply reports whether completion materializes a SupplyRecord.
func (k TaskKind) IsSupply() bool { return SupplyKind(k).Valid() }

// SupplyKind converts a supply task kind; only meaningful when IsSupply().
func (k TaskKind) SupplyKind() SupplyKind { return SupplyKind(k) }

// =============================================================================
// LIVE LEDGER ROWS
// =============================================================================

// Worker is a registered farm employee, unique per tenant by full name.
type Worker struct {
	ID        int64
	Tenant    Tenant
	FirstName string
	LastName  string
	CreatedAt time.Time
}

// WorkdayRecord is one labor entry: a worker on a plot for a number of
// days plus optional overtime hours. NormalHours is conventionally
// days*6 but is stored as given, not re-derived here.
type WorkdayRecord struct {
	ID            int64
	Tenant        Tenant
	Worker        string
	Date          Date
	Plot          string
	Activity      string
	Days          int
	NormalHours   decimal.Decimal
	OvertimeHours decimal.Decimal
	CreatedAt     time.Time
}

// SupplyRecord is one supply application. TotalCost is always recomputed
// as Quantity*UnitPrice on write; input values are never trusted.
type SupplyRecord struct {
	ID        int64
	Tenant    Tenant
	Date      Date
	Plot      string
	Kind      SupplyKind
	Stage     string
	Product   string
	Dose      string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	TotalCost decimal.Decimal
	CreatedAt time.Time
}

// Cost returns the canonical total for a supply row.
func (s SupplyRecord) Cost() decimal.Decimal {
	return s.Quantity.Mul(s.UnitPrice)
}

// =============================================================================
// RATES
// =============================================================================

// Hard defaults applied when a tenant has no rate row and no legacy row
// exists to copy from.
var (
	DefaultDayRate      = decimal.NewFromInt(9000)
	DefaultOvertimeRate = decimal.NewFromInt(2000)
)

// RateConfig is the per-tenant pay configuration: one row per tenant,
// lazily materialized on first read.
type RateConfig struct {
	Tenant       Tenant
	DayRate      decimal.Decimal
	OvertimeRate decimal.Decimal
	UpdatedAt    time.Time
}

// =============================================================================
// MONTHLY CLOSING - Immutable snapshot of a date range
// =============================================================================

// Closing is the header of a monthly accounting snapshot. Unique per
// (tenant, range); immutable once created except via delete+recreate.
// The rate fields freeze the rates in effect at creation time.
type Closing struct {
	ID            int64
	Tenant        Tenant
	RangeStart    Date
	RangeEnd      Date
	CreatedBy     string
	CreatedAt     time.Time
	DayRate       decimal.Decimal
	OvertimeRate  decimal.Decimal
	TotalPayroll  decimal.Decimal
	TotalSupplies decimal.Decimal
	TotalGeneral  decimal.Decimal
}

// PayrollLine is one worker's aggregated pay inside a closing.
// Total == DayAmount + OvertimeAmount.
type PayrollLine struct {
	ID             int64
	ClosingID      int64
	Worker         string
	Days           int
	OvertimeHours  decimal.Decimal
	DayAmount      decimal.Decimal
	OvertimeAmount decimal.Decimal
	Total          decimal.Decimal
}

// SupplyLine is a point-in-time copy of a SupplyRecord's display fields.
// Deliberately decoupled from the live row: later edits to supplies never
// alter a closed period.
type SupplyLine struct {
	ID        int64
	ClosingID int64
	Date      Date
	Plot      string
	Kind      SupplyKind
	Product   string
	Stage     string
	Dose      string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	TotalCost decimal.Decimal
}

// ClosingDetail bundles a header with its detail rows for reads.
type ClosingDetail struct {
	Closing  Closing
	Payroll  []PayrollLine
	Supplies []SupplyLine
}

// =============================================================================
// PLANNED TASKS
// =============================================================================

// TaskStatus is the planned-task state machine: Pending -> Done, terminal.
// Recurrence never resurrects a row; it spawns a new one.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
)

// Recurrence is the normalized recurrence state carried by a task.
// Remaining == nil means unbounded; otherwise it strictly decreases by one
// at each chain step and the chain halts before it would reach zero.
type Recurrence struct {
	EveryDays int
	Remaining *int
	AutoRenew bool
}

// PlannedTask is a calendar entry for future labor. Descriptive fields are
// a union over all kinds; which ones are meaningful depends on Kind.
// ParentTaskID links each spawned occurrence to the task whose completion
// created it, forming a singly-linked ancestry chain.
type PlannedTask struct {
	ID            int64
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
	Status        TaskStatus
	Recurrence    *Recurrence
	ParentTaskID  *int64
	CreatedAt     time.Time
	DoneAt        *time.Time
	DoneBy        string
}
