/*
handlers.go - HTTP API handlers for the farm ledger

PURPOSE:
  Exposes the ledger, closing engine, rate resolver, and task scheduler
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ENDPOINTS (all tenant-scoped under /api/{tenant}):
  Rates:
    GET    /api/{tenant}/rates                Effective rates (lazily seeded)
    PUT    /api/{tenant}/rates                Update rates

  Workers:
    GET    /api/{tenant}/workers              List workers
    POST   /api/{tenant}/workers              Register worker

  Ledger:
    GET    /api/{tenant}/workdays?from&to     Workdays in range
    POST   /api/{tenant}/workdays             Record a workday
    PUT    /api/{tenant}/workdays/{id}        Edit a workday
    GET    /api/{tenant}/supplies?from&to     Supplies in range
    POST   /api/{tenant}/supplies             Record a supply application
    PUT    /api/{tenant}/supplies/{id}        Edit a supply application

  Closings:
    POST   /api/{tenant}/closings             Create monthly closing
    GET    /api/{tenant}/closings             List closing headers
    GET    /api/{tenant}/closings/{id}        Full closing detail

  Tasks:
    POST   /api/{tenant}/tasks                Plan a task
    GET    /api/{tenant}/tasks?from&to&status List tasks
    POST   /api/{tenant}/tasks/{id}/complete  Complete (materialize + chain)
    POST   /api/{tenant}/tasks/{id}/postpone  Shift a pending task forward

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, bad ranges
  - 404: Closing not found (or owned by another tenant)
  - 409: Duplicate closing for a range, duplicate worker
  - 500: Storage errors

SECURITY NOTE:
  The {tenant} path segment is trusted as-is; there is no authentication
  layer here. Put this behind a proxy that validates the tenant claim.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/KeilorFP/finca-app/finca"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     finca.TxStore
	Closings  *finca.ClosingEngine
	Scheduler *finca.Scheduler
	Rates     *finca.RateResolver
}

// NewHandler creates a new handler with the given store.
func NewHandler(store finca.TxStore) *Handler {
	return &Handler{
		Store:     store,
		Closings:  finca.NewClosingEngine(store),
		Scheduler: finca.NewScheduler(store),
		Rates:     finca.NewRateResolver(store),
	}
}

func tenantParam(r *http.Request) finca.Tenant {
	return finca.Tenant(chi.URLParam(r, "tenant"))
}

// rangeQuery parses the from/to query parameters into a validated range.
func rangeQuery(r *http.Request) (finca.DateRange, error) {
	from, err := finca.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		return finca.DateRange{}, err
	}
	to, err := finca.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		return finca.DateRange{}, err
	}
	rng := finca.DateRange{From: from, To: to}
	return rng, rng.Validate()
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// =============================================================================
// RATE HANDLERS
// =============================================================================

// GetRates returns the tenant's effective rates, materializing the rate
// row on first read.
func (h *Handler) GetRates(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Rates.Resolve(r.Context(), tenantParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve rates", err)
		return
	}

	writeJSON(w, http.StatusOK, RatesDTO{
		DayRate:      cfg.DayRate,
		OvertimeRate: cfg.OvertimeRate,
		UpdatedAt:    cfg.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// SetRates updates the tenant's rates.
func (h *Handler) SetRates(w http.ResponseWriter, r *http.Request) {
	var req SetRatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Rates.Set(r.Context(), tenantParam(r), req.DayRate, req.OvertimeRate); err != nil {
		if finca.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Invalid rates", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update rates", err)
		return
	}

	writeJSON(w, http.StatusOK, RatesDTO{DayRate: req.DayRate, OvertimeRate: req.OvertimeRate})
}

// =============================================================================
// WORKER HANDLERS
// =============================================================================

// ListWorkers returns the tenant's registered workers.
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.Store.ListWorkers(r.Context(), tenantParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list workers", err)
		return
	}

	dtos := make([]WorkerDTO, len(workers))
	for i, wk := range workers {
		dtos[i] = WorkerDTO{ID: wk.ID, FirstName: wk.FirstName, LastName: wk.LastName}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateWorker registers a worker, unique per tenant by full name.
func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.FirstName == "" || req.LastName == "" {
		writeError(w, http.StatusBadRequest, "First and last name are required", nil)
		return
	}

	id, err := h.Store.AddWorker(r.Context(), finca.Worker{
		Tenant:    tenantParam(r),
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		if errors.Is(err, finca.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "Worker already registered", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to register worker", err)
		return
	}

	writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

// =============================================================================
// WORKDAY HANDLERS
// =============================================================================

// ListWorkdays returns the tenant's workdays inside from..to.
func (h *Handler) ListWorkdays(w http.ResponseWriter, r *http.Request) {
	rng, err := rangeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from/to range (use YYYY-MM-DD)", err)
		return
	}

	records, err := h.Store.QueryWorkdays(r.Context(), tenantParam(r), rng)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list workdays", err)
		return
	}

	dtos := make([]WorkdayDTO, len(records))
	for i, rec := range records {
		dtos[i] = WorkdayDTO{
			ID:            rec.ID,
			Worker:        rec.Worker,
			Date:          rec.Date.String(),
			Plot:          rec.Plot,
			Activity:      rec.Activity,
			Days:          rec.Days,
			NormalHours:   rec.NormalHours,
			OvertimeHours: rec.OvertimeHours,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func workdayFromRequest(tenant finca.Tenant, req CreateWorkdayRequest) (finca.WorkdayRecord, error) {
	date, err := finca.ParseDate(req.Date)
	if err != nil {
		return finca.WorkdayRecord{}, err
	}
	rec := finca.WorkdayRecord{
		Tenant:        tenant,
		Worker:        req.Worker,
		Date:          date,
		Plot:          req.Plot,
		Activity:      req.Activity,
		Days:          req.Days,
		OvertimeHours: req.OvertimeHours,
	}
	if req.NormalHours != nil {
		rec.NormalHours = *req.NormalHours
	} else {
		rec.NormalHours = finca.NormalHoursFor(rec.Days)
	}
	return rec, nil
}

// CreateWorkday records a labor entry. normal_hours defaults to days*6
// when omitted.
func (h *Handler) CreateWorkday(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkdayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Worker == "" {
		writeError(w, http.StatusBadRequest, "Worker is required", nil)
		return
	}
	if req.Days <= 0 {
		writeError(w, http.StatusBadRequest, "Days must be positive", nil)
		return
	}

	rec, err := workdayFromRequest(tenantParam(r), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	id, err := h.Store.InsertWorkday(r.Context(), rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record workday", err)
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

// UpdateWorkday edits a labor entry in place. A closing created earlier
// over the same range is unaffected.
func (h *Handler) UpdateWorkday(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid workday id", err)
		return
	}

	var req CreateWorkdayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Days <= 0 {
		writeError(w, http.StatusBadRequest, "Days must be positive", nil)
		return
	}

	rec, err := workdayFromRequest(tenantParam(r), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	rec.ID = id

	ok, err := h.Store.UpdateWorkday(r.Context(), rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update workday", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Workday not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: id})
}

// =============================================================================
// SUPPLY HANDLERS
// =============================================================================

// ListSupplies returns the tenant's supply applications inside from..to.
func (h *Handler) ListSupplies(w http.ResponseWriter, r *http.Request) {
	rng, err := rangeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from/to range (use YYYY-MM-DD)", err)
		return
	}

	records, err := h.Store.QuerySupplies(r.Context(), tenantParam(r), rng)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list supplies", err)
		return
	}

	dtos := make([]SupplyDTO, len(records))
	for i, rec := range records {
		dtos[i] = SupplyDTO{
			ID:        rec.ID,
			Date:      rec.Date.String(),
			Plot:      rec.Plot,
			Kind:      string(rec.Kind),
			Stage:     rec.Stage,
			Product:   rec.Product,
			Dose:      rec.Dose,
			Quantity:  rec.Quantity,
			UnitPrice: rec.UnitPrice,
			TotalCost: rec.TotalCost,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func supplyFromRequest(tenant finca.Tenant, req CreateSupplyRequest) (finca.SupplyRecord, error) {
	date, err := finca.ParseDate(req.Date)
	if err != nil {
		return finca.SupplyRecord{}, err
	}
	return finca.SupplyRecord{
		Tenant:    tenant,
		Date:      date,
		Plot:      req.Plot,
		Kind:      finca.SupplyKind(req.Kind),
		Stage:     req.Stage,
		Product:   req.Product,
		Dose:      req.Dose,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	}, nil
}

// CreateSupply records a supply application. total_cost is always
// computed server-side as quantity*unit_price.
func (h *Handler) CreateSupply(w http.ResponseWriter, r *http.Request) {
	var req CreateSupplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !finca.SupplyKind(req.Kind).Valid() {
		writeError(w, http.StatusBadRequest, "Unknown supply kind", nil)
		return
	}

	rec, err := supplyFromRequest(tenantParam(r), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	id, err := h.Store.InsertSupply(r.Context(), rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record supply", err)
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

// UpdateSupply edits a supply application in place, recomputing its cost.
func (h *Handler) UpdateSupply(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid supply id", err)
		return
	}

	var req CreateSupplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !finca.SupplyKind(req.Kind).Valid() {
		writeError(w, http.StatusBadRequest, "Unknown supply kind", nil)
		return
	}

	rec, err := supplyFromRequest(tenantParam(r), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	rec.ID = id

	ok, err := h.Store.UpdateSupply(r.Context(), rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update supply", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Supply not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: id})
}

// =============================================================================
// CLOSING HANDLERS
// =============================================================================

// CreateClosing aggregates a date range into a monthly closing.
func (h *Handler) CreateClosing(w http.ResponseWriter, r *http.Request) {
	var req CreateClosingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	from, err := finca.ParseDate(req.RangeStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid range_start (use YYYY-MM-DD)", err)
		return
	}
	to, err := finca.ParseDate(req.RangeEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid range_end (use YYYY-MM-DD)", err)
		return
	}

	id, err := h.Closings.CreateClosing(r.Context(), finca.CreateClosingInput{
		Tenant:    tenantParam(r),
		Range:     finca.DateRange{From: from, To: to},
		CreatedBy: req.CreatedBy,
		Overwrite: req.Overwrite,
	})
	if err != nil {
		if errors.Is(err, finca.ErrDuplicateClosing) {
			writeError(w, http.StatusConflict, "Closing already exists for this range", err)
			return
		}
		if finca.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Invalid closing request", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create closing", err)
		return
	}

	writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

// ListClosings returns the tenant's closing headers, newest range first.
func (h *Handler) ListClosings(w http.ResponseWriter, r *http.Request) {
	closings, err := h.Closings.ListClosings(r.Context(), tenantParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list closings", err)
		return
	}

	dtos := make([]ClosingDTO, len(closings))
	for i, c := range closings {
		dtos[i] = closingToDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClosing returns the full closing detail. A closing owned by another
// tenant is indistinguishable from an absent one.
func (h *Handler) GetClosing(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid closing id", err)
		return
	}

	detail, err := h.Closings.ReadClosingDetail(r.Context(), tenantParam(r), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read closing", err)
		return
	}
	if detail == nil {
		writeError(w, http.StatusNotFound, "Closing not found", nil)
		return
	}

	payroll := make([]PayrollLineDTO, len(detail.Payroll))
	for i, line := range detail.Payroll {
		payroll[i] = PayrollLineDTO{
			Worker:         line.Worker,
			Days:           line.Days,
			OvertimeHours:  line.OvertimeHours,
			DayAmount:      line.DayAmount,
			OvertimeAmount: line.OvertimeAmount,
			Total:          line.Total,
		}
	}
	supplies := make([]SupplyLineDTO, len(detail.Supplies))
	for i, line := range detail.Supplies {
		supplies[i] = SupplyLineDTO{
			Date:      line.Date.String(),
			Plot:      line.Plot,
			Kind:      string(line.Kind),
			Product:   line.Product,
			Stage:     line.Stage,
			Dose:      line.Dose,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			TotalCost: line.TotalCost,
		}
	}

	writeJSON(w, http.StatusOK, ClosingDetailDTO{
		Closing:  closingToDTO(detail.Closing),
		Payroll:  payroll,
		Supplies: supplies,
	})
}

// =============================================================================
// TASK HANDLERS
// =============================================================================

// CreateTask plans a task, optionally with a recurrence policy.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := finca.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	in := finca.TaskInput{
		Tenant:        tenantParam(r),
		Date:          date,
		Plot:          req.Plot,
		Kind:          finca.TaskKind(req.Kind),
		Worker:        req.Worker,
		Activity:      req.Activity,
		Stage:         req.Stage,
		Product:       req.Product,
		Dose:          req.Dose,
		Quantity:      req.Quantity,
		UnitPrice:     req.UnitPrice,
		Days:          req.Days,
		OvertimeHours: req.OvertimeHours,
	}
	if req.Recurrence != nil {
		in.Recurrence = &finca.RecurrenceInput{
			EveryDays:        req.Recurrence.EveryDays,
			TotalOccurrences: req.Recurrence.TotalOccurrences,
			AutoRenew:        req.Recurrence.AutoRenew,
		}
	}

	id, err := h.Scheduler.CreateTask(r.Context(), in)
	if err != nil {
		if finca.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Invalid task", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

// ListTasks returns the tenant's tasks in from..to, optionally filtered
// by ?status=pending|done.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	rng, err := rangeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from/to range (use YYYY-MM-DD)", err)
		return
	}

	var status *finca.TaskStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := finca.TaskStatus(s)
		if st != finca.TaskPending && st != finca.TaskDone {
			writeError(w, http.StatusBadRequest, "Unknown status filter", nil)
			return
		}
		status = &st
	}

	tasks, err := h.Scheduler.ListTasks(r.Context(), tenantParam(r), rng, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tasks", err)
		return
	}

	dtos := make([]TaskDTO, len(tasks))
	for i, t := range tasks {
		dtos[i] = taskToDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CompleteTask marks a task done, materializing its ledger row and
// chaining the next occurrence. completed=false is a benign miss.
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid task id", err)
		return
	}

	var req CompleteTaskRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	completed, err := h.Scheduler.CompleteTask(r.Context(), tenantParam(r), id, req.DoneBy)
	if err != nil {
		if finca.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Cannot complete task", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to complete task", err)
		return
	}
	writeJSON(w, http.StatusOK, CompletedResponse{Completed: completed})
}

// PostponeTask shifts a pending task forward by a positive number of days.
func (h *Handler) PostponeTask(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid task id", err)
		return
	}

	var req PostponeTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	postponed, err := h.Scheduler.PostponeTask(r.Context(), tenantParam(r), id, req.Days)
	if err != nil {
		if finca.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Cannot postpone task", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to postpone task", err)
		return
	}
	writeJSON(w, http.StatusOK, PostponedResponse{Postponed: postponed})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
