/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model from
  the external contract. Dates travel as "YYYY-MM-DD" strings; money and
  hours as decimal strings.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: uses these types
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/KeilorFP/finca-app/finca"
)

// =============================================================================
// RATES
// =============================================================================

type RatesDTO struct {
	DayRate      decimal.Decimal `json:"day_rate"`
	OvertimeRate decimal.Decimal `json:"overtime_rate"`
	UpdatedAt    string          `json:"updated_at,omitempty"`
}

type SetRatesRequest struct {
	DayRate      decimal.Decimal `json:"day_rate"`
	OvertimeRate decimal.Decimal `json:"overtime_rate"`
}

// =============================================================================
// WORKERS
// =============================================================================

type WorkerDTO struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type CreateWorkerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// =============================================================================
// LEDGER ROWS
// =============================================================================

type WorkdayDTO struct {
	ID            int64           `json:"id"`
	Worker        string          `json:"worker"`
	Date          string          `json:"date"`
	Plot          string          `json:"plot,omitempty"`
	Activity      string          `json:"activity,omitempty"`
	Days          int             `json:"days"`
	NormalHours   decimal.Decimal `json:"normal_hours"`
	OvertimeHours decimal.Decimal `json:"overtime_hours"`
}

type CreateWorkdayRequest struct {
	Worker        string           `json:"worker"`
	Date          string           `json:"date"`
	Plot          string           `json:"plot"`
	Activity      string           `json:"activity"`
	Days          int              `json:"days"`
	NormalHours   *decimal.Decimal `json:"normal_hours,omitempty"`
	OvertimeHours decimal.Decimal  `json:"overtime_hours"`
}

type SupplyDTO struct {
	ID        int64           `json:"id"`
	Date      string          `json:"date"`
	Plot      string          `json:"plot,omitempty"`
	Kind      string          `json:"kind"`
	Stage     string          `json:"stage,omitempty"`
	Product   string          `json:"product,omitempty"`
	Dose      string          `json:"dose,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

type CreateSupplyRequest struct {
	Date      string          `json:"date"`
	Plot      string          `json:"plot"`
	Kind      string          `json:"kind"`
	Stage     string          `json:"stage"`
	Product   string          `json:"product"`
	Dose      string          `json:"dose"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// =============================================================================
// CLOSINGS
// =============================================================================

type CreateClosingRequest struct {
	RangeStart string `json:"range_start"`
	RangeEnd   string `json:"range_end"`
	CreatedBy  string `json:"created_by"`
	Overwrite  bool   `json:"overwrite"`
}

type ClosingDTO struct {
	ID            int64           `json:"id"`
	RangeStart    string          `json:"range_start"`
	RangeEnd      string          `json:"range_end"`
	CreatedBy     string          `json:"created_by,omitempty"`
	CreatedAt     string          `json:"created_at"`
	DayRate       decimal.Decimal `json:"day_rate"`
	OvertimeRate  decimal.Decimal `json:"overtime_rate"`
	TotalPayroll  decimal.Decimal `json:"total_payroll"`
	TotalSupplies decimal.Decimal `json:"total_supplies"`
	TotalGeneral  decimal.Decimal `json:"total_general"`
}

type PayrollLineDTO struct {
	Worker         string          `json:"worker"`
	Days           int             `json:"days"`
	OvertimeHours  decimal.Decimal `json:"overtime_hours"`
	DayAmount      decimal.Decimal `json:"day_amount"`
	OvertimeAmount decimal.Decimal `json:"overtime_amount"`
	Total          decimal.Decimal `json:"total"`
}

type SupplyLineDTO struct {
	Date      string          `json:"date"`
	Plot      string          `json:"plot,omitempty"`
	Kind      string          `json:"kind"`
	Product   string          `json:"product,omitempty"`
	Stage     string          `json:"stage,omitempty"`
	Dose      string          `json:"dose,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

type ClosingDetailDTO struct {
	Closing  ClosingDTO       `json:"closing"`
	Payroll  []PayrollLineDTO `json:"payroll"`
	Supplies []SupplyLineDTO  `json:"supplies"`
}

// =============================================================================
// TASKS
// =============================================================================

type RecurrenceDTO struct {
	EveryDays        int  `json:"every_days"`
	TotalOccurrences *int `json:"total_occurrences,omitempty"`
	Remaining        *int `json:"remaining,omitempty"`
	AutoRenew        bool `json:"autorenew"`
}

type CreateTaskRequest struct {
	Date          string          `json:"date"`
	Plot          string          `json:"plot"`
	Kind          string          `json:"kind"`
	Worker        string          `json:"worker"`
	Activity      string          `json:"activity"`
	Stage         string          `json:"stage"`
	Product       string          `json:"product"`
	Dose          string          `json:"dose"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Days          int             `json:"days"`
	OvertimeHours decimal.Decimal `json:"overtime_hours"`
	Recurrence    *RecurrenceDTO  `json:"recurrence,omitempty"`
}

type TaskDTO struct {
	ID            int64           `json:"id"`
	Date          string          `json:"date"`
	Plot          string          `json:"plot,omitempty"`
	Kind          string          `json:"kind"`
	Worker        string          `json:"worker,omitempty"`
	Activity      string          `json:"activity,omitempty"`
	Stage         string          `json:"stage,omitempty"`
	Product       string          `json:"product,omitempty"`
	Dose          string          `json:"dose,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Days          int             `json:"days"`
	OvertimeHours decimal.Decimal `json:"overtime_hours"`
	Status        string          `json:"status"`
	Recurrence    *RecurrenceDTO  `json:"recurrence,omitempty"`
	ParentTaskID  *int64          `json:"parent_task_id,omitempty"`
	DoneAt        string          `json:"done_at,omitempty"`
	DoneBy        string          `json:"done_by,omitempty"`
}

type CompleteTaskRequest struct {
	DoneBy string `json:"done_by"`
}

type PostponeTaskRequest struct {
	Days int `json:"days"`
}

// CompletedResponse reports whether a task transition took effect;
// false is the benign miss (absent, foreign, or already done).
type CompletedResponse struct {
	Completed bool `json:"completed"`
}

type PostponedResponse struct {
	Postponed bool `json:"postponed"`
}

// =============================================================================
// COMMON
// =============================================================================

type IDResponse struct {
	ID int64 `json:"id"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func taskToDTO(t finca.PlannedTask) TaskDTO {
	dto := TaskDTO{
		ID:            t.ID,
		Date:          t.Date.String(),
		Plot:          t.Plot,
		Kind:          string(t.Kind),
		Worker:        t.Worker,
		Activity:      t.Activity,
		Stage:         t.Stage,
		Product:       t.Product,
		Dose:          t.Dose,
		Quantity:      t.Quantity,
		UnitPrice:     t.UnitPrice,
		Days:          t.Days,
		OvertimeHours: t.OvertimeHours,
		Status:        string(t.Status),
		ParentTaskID:  t.ParentTaskID,
		DoneBy:        t.DoneBy,
	}
	if t.Recurrence != nil {
		dto.Recurrence = &RecurrenceDTO{
			EveryDays: t.Recurrence.EveryDays,
			Remaining: t.Recurrence.Remaining,
			AutoRenew: t.Recurrence.AutoRenew,
		}
	}
	if t.DoneAt != nil {
		dto.DoneAt = t.DoneAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return dto
}

func closingToDTO(c finca.Closing) ClosingDTO {
	return ClosingDTO{
		ID:            c.ID,
		RangeStart:    c.RangeStart.String(),
		RangeEnd:      c.RangeEnd.String(),
		CreatedBy:     c.CreatedBy,
		CreatedAt:     c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		DayRate:       c.DayRate,
		OvertimeRate:  c.OvertimeRate,
		TotalPayroll:  c.TotalPayroll,
		TotalSupplies: c.TotalSupplies,
		TotalGeneral:  c.TotalGeneral,
	}
}
