// Package store provides an in-memory finca.TxStore implementation,
// used by tests and by the server's dev mode.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/KeilorFP/finca-app/finca"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	nextID int64

	workers  []finca.Worker
	workdays []finca.WorkdayRecord
	supplies []finca.SupplyRecord

	rates  map[finca.Tenant]finca.RateConfig
	legacy *finca.RateConfig

	closings     []finca.Closing
	payrollLines []finca.PayrollLine
	supplyLines  []finca.SupplyLine

	tasks []finca.PlannedTask
}

func NewMemory() *Memory {
	return &Memory{rates: make(map[finca.Tenant]finca.RateConfig)}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// =============================================================================
// WORKERS
// =============================================================================

func (m *Memory) AddWorker(_ context.Context, w finca.Worker) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addWorkerLocked(w)
}

func (m *Memory) addWorkerLocked(w finca.Worker) (int64, error) {
	for _, existing := range m.workers {
		if existing.Tenant == w.Tenant && existing.FirstName == w.FirstName && existing.LastName == w.LastName {
			return 0, finca.ErrAlreadyExists
		}
	}
	w.ID = m.id()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	m.workers = append(m.workers, w)
	return w.ID, nil
}

func (m *Memory) ListWorkers(_ context.Context, tenant finca.Tenant) ([]finca.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listWorkersLocked(tenant)
}

func (m *Memory) listWorkersLocked(tenant finca.Tenant) ([]finca.Worker, error) {
	var out []finca.Worker
	for _, w := range m.workers {
		if w.Tenant == tenant {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// WORKDAYS / SUPPLIES
// =============================================================================

func (m *Memory) InsertWorkday(_ context.Context, rec finca.WorkdayRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertWorkdayLocked(rec)
}

func (m *Memory) insertWorkdayLocked(rec finca.WorkdayRecord) (int64, error) {
	rec.ID = m.id()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.workdays = append(m.workdays, rec)
	return rec.ID, nil
}

func (m *Memory) UpdateWorkday(_ context.Context, rec finca.WorkdayRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateWorkdayLocked(rec)
}

func (m *Memory) updateWorkdayLocked(rec finca.WorkdayRecord) (bool, error) {
	for i, existing := range m.workdays {
		if existing.ID == rec.ID && existing.Tenant == rec.Tenant {
			rec.CreatedAt = existing.CreatedAt
			m.workdays[i] = rec
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) QueryWorkdays(_ context.Context, tenant finca.Tenant, r finca.DateRange) ([]finca.WorkdayRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryWorkdaysLocked(tenant, r)
}

func (m *Memory) queryWorkdaysLocked(tenant finca.Tenant, r finca.DateRange) ([]finca.WorkdayRecord, error) {
	var out []finca.WorkdayRecord
	for _, w := range m.workdays {
		if w.Tenant == tenant && r.Contains(w.Date) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) InsertSupply(_ context.Context, rec finca.SupplyRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertSupplyLocked(rec)
}

func (m *Memory) insertSupplyLocked(rec finca.SupplyRecord) (int64, error) {
	rec.ID = m.id()
	rec.TotalCost = rec.Cost()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.supplies = append(m.supplies, rec)
	return rec.ID, nil
}

func (m *Memory) UpdateSupply(_ context.Context, rec finca.SupplyRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateSupplyLocked(rec)
}

func (m *Memory) updateSupplyLocked(rec finca.SupplyRecord) (bool, error) {
	for i, existing := range m.supplies {
		if existing.ID == rec.ID && existing.Tenant == rec.Tenant {
			rec.TotalCost = rec.Cost()
			rec.CreatedAt = existing.CreatedAt
			m.supplies[i] = rec
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) QuerySupplies(_ context.Context, tenant finca.Tenant, r finca.DateRange) ([]finca.SupplyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.querySuppliesLocked(tenant, r)
}

func (m *Memory) querySuppliesLocked(tenant finca.Tenant, r finca.DateRange) ([]finca.SupplyRecord, error) {
	var out []finca.SupplyRecord
	for _, s := range m.supplies {
		if s.Tenant == tenant && r.Contains(s.Date) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// RATES
// =============================================================================

func (m *Memory) GetRateConfig(_ context.Context, tenant finca.Tenant) (*finca.RateConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRateConfigLocked(tenant)
}

func (m *Memory) getRateConfigLocked(tenant finca.Tenant) (*finca.RateConfig, error) {
	if cfg, ok := m.rates[tenant]; ok {
		return &cfg, nil
	}
	return nil, nil
}

func (m *Memory) LegacyRates(_ context.Context) (*finca.RateConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.legacyRatesLocked()
}

func (m *Memory) legacyRatesLocked() (*finca.RateConfig, error) {
	if m.legacy == nil {
		return nil, nil
	}
	cfg := *m.legacy
	return &cfg, nil
}

func (m *Memory) SetLegacyRates(_ context.Context, cfg finca.RateConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLegacyRatesLocked(cfg)
}

func (m *Memory) setLegacyRatesLocked(cfg finca.RateConfig) error {
	m.legacy = &cfg
	return nil
}

func (m *Memory) InsertRateConfigIfAbsent(_ context.Context, cfg finca.RateConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertRateConfigIfAbsentLocked(cfg)
}

func (m *Memory) insertRateConfigIfAbsentLocked(cfg finca.RateConfig) error {
	if _, ok := m.rates[cfg.Tenant]; !ok {
		m.rates[cfg.Tenant] = cfg
	}
	return nil
}

func (m *Memory) UpsertRateConfig(_ context.Context, cfg finca.RateConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertRateConfigLocked(cfg)
}

func (m *Memory) upsertRateConfigLocked(cfg finca.RateConfig) error {
	m.rates[cfg.Tenant] = cfg
	return nil
}

// =============================================================================
// CLOSINGS
// =============================================================================

func (m *Memory) FindClosing(_ context.Context, tenant finca.Tenant, r finca.DateRange) (*finca.Closing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findClosingLocked(tenant, r)
}

func (m *Memory) findClosingLocked(tenant finca.Tenant, r finca.DateRange) (*finca.Closing, error) {
	for _, c := range m.closings {
		if c.Tenant == tenant && c.RangeStart.Equal(r.From) && c.RangeEnd.Equal(r.To) {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) InsertClosing(_ context.Context, c finca.Closing) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertClosingLocked(c)
}

func (m *Memory) insertClosingLocked(c finca.Closing) (int64, error) {
	// Mimics the unique index on (owner, range_start, range_end).
	for _, existing := range m.closings {
		if existing.Tenant == c.Tenant && existing.RangeStart.Equal(c.RangeStart) && existing.RangeEnd.Equal(c.RangeEnd) {
			return 0, &finca.DuplicateClosingError{
				Tenant:     c.Tenant,
				Range:      finca.DateRange{From: c.RangeStart, To: c.RangeEnd},
				ExistingID: existing.ID,
			}
		}
	}
	c.ID = m.id()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.closings = append(m.closings, c)
	return c.ID, nil
}

func (m *Memory) InsertPayrollLines(_ context.Context, closingID int64, lines []finca.PayrollLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertPayrollLinesLocked(closingID, lines)
}

func (m *Memory) insertPayrollLinesLocked(closingID int64, lines []finca.PayrollLine) error {
	for _, line := range lines {
		line.ID = m.id()
		line.ClosingID = closingID
		m.payrollLines = append(m.payrollLines, line)
	}
	return nil
}

func (m *Memory) InsertSupplyLines(_ context.Context, closingID int64, lines []finca.SupplyLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertSupplyLinesLocked(closingID, lines)
}

func (m *Memory) insertSupplyLinesLocked(closingID int64, lines []finca.SupplyLine) error {
	for _, line := range lines {
		line.ID = m.id()
		line.ClosingID = closingID
		m.supplyLines = append(m.supplyLines, line)
	}
	return nil
}

func (m *Memory) DeleteClosing(_ context.Context, tenant finca.Tenant, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteClosingLocked(tenant, id)
}

func (m *Memory) deleteClosingLocked(tenant finca.Tenant, id int64) error {
	kept := m.closings[:0]
	removed := false
	for _, c := range m.closings {
		if c.ID == id && c.Tenant == tenant {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	m.closings = kept
	if !removed {
		return nil
	}
	// Cascade, like the foreign keys in the sqlite store.
	payroll := m.payrollLines[:0]
	for _, line := range m.payrollLines {
		if line.ClosingID != id {
			payroll = append(payroll, line)
		}
	}
	m.payrollLines = payroll
	supplies := m.supplyLines[:0]
	for _, line := range m.supplyLines {
		if line.ClosingID != id {
			supplies = append(supplies, line)
		}
	}
	m.supplyLines = supplies
	return nil
}

func (m *Memory) ListClosings(_ context.Context, tenant finca.Tenant) ([]finca.Closing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listClosingsLocked(tenant)
}

func (m *Memory) listClosingsLocked(tenant finca.Tenant) ([]finca.Closing, error) {
	var out []finca.Closing
	for _, c := range m.closings {
		if c.Tenant == tenant {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RangeStart.Equal(out[j].RangeStart) {
			return out[i].RangeStart.After(out[j].RangeStart)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) GetClosing(_ context.Context, tenant finca.Tenant, id int64) (*finca.Closing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getClosingLocked(tenant, id)
}

func (m *Memory) getClosingLocked(tenant finca.Tenant, id int64) (*finca.Closing, error) {
	for _, c := range m.closings {
		if c.ID == id && c.Tenant == tenant {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) ClosingPayroll(_ context.Context, closingID int64) ([]finca.PayrollLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closingPayrollLocked(closingID)
}

func (m *Memory) closingPayrollLocked(closingID int64) ([]finca.PayrollLine, error) {
	var out []finca.PayrollLine
	for _, line := range m.payrollLines {
		if line.ClosingID == closingID {
			out = append(out, line)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Worker != out[j].Worker {
			return out[i].Worker < out[j].Worker
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ClosingSupplies(_ context.Context, closingID int64) ([]finca.SupplyLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closingSuppliesLocked(closingID)
}

func (m *Memory) closingSuppliesLocked(closingID int64) ([]finca.SupplyLine, error) {
	var out []finca.SupplyLine
	for _, line := range m.supplyLines {
		if line.ClosingID == closingID {
			out = append(out, line)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// PLANNED TASKS
// =============================================================================

func (m *Memory) InsertTask(_ context.Context, t finca.PlannedTask) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertTaskLocked(t)
}

func (m *Memory) insertTaskLocked(t finca.PlannedTask) (int64, error) {
	t = cloneTask(t)
	t.ID = m.id()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.tasks = append(m.tasks, t)
	return t.ID, nil
}

func (m *Memory) GetTask(_ context.Context, tenant finca.Tenant, id int64) (*finca.PlannedTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTaskLocked(tenant, id)
}

func (m *Memory) getTaskLocked(tenant finca.Tenant, id int64) (*finca.PlannedTask, error) {
	for _, t := range m.tasks {
		if t.ID == id && t.Tenant == tenant {
			out := cloneTask(t)
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListTasks(_ context.Context, tenant finca.Tenant, r finca.DateRange, status *finca.TaskStatus) ([]finca.PlannedTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTasksLocked(tenant, r, status)
}

func (m *Memory) listTasksLocked(tenant finca.Tenant, r finca.DateRange, status *finca.TaskStatus) ([]finca.PlannedTask, error) {
	var out []finca.PlannedTask
	for _, t := range m.tasks {
		if t.Tenant != tenant || !r.Contains(t.Date) {
			continue
		}
		if status != nil && t.Status != *status {
			continue
		}
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Plot != out[j].Plot {
			return out[i].Plot < out[j].Plot
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) MarkTaskDone(_ context.Context, tenant finca.Tenant, id int64, doneBy string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markTaskDoneLocked(tenant, id, doneBy, at)
}

func (m *Memory) markTaskDoneLocked(tenant finca.Tenant, id int64, doneBy string, at time.Time) (bool, error) {
	for i, t := range m.tasks {
		if t.ID == id && t.Tenant == tenant && t.Status == finca.TaskPending {
			m.tasks[i].Status = finca.TaskDone
			m.tasks[i].DoneBy = doneBy
			doneAt := at
			m.tasks[i].DoneAt = &doneAt
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ShiftTaskDate(_ context.Context, tenant finca.Tenant, id int64, days int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shiftTaskDateLocked(tenant, id, days)
}

func (m *Memory) shiftTaskDateLocked(tenant finca.Tenant, id int64, days int) (bool, error) {
	for i, t := range m.tasks {
		if t.ID == id && t.Tenant == tenant && t.Status == finca.TaskPending {
			m.tasks[i].Date = t.Date.AddDays(days)
			return true, nil
		}
	}
	return false, nil
}

func cloneTask(t finca.PlannedTask) finca.PlannedTask {
	if t.Recurrence != nil {
		rec := *t.Recurrence
		if rec.Remaining != nil {
			remaining := *rec.Remaining
			rec.Remaining = &remaining
		}
		t.Recurrence = &rec
	}
	if t.ParentTaskID != nil {
		parent := *t.ParentTaskID
		t.ParentTaskID = &parent
	}
	if t.DoneAt != nil {
		doneAt := *t.DoneAt
		t.DoneAt = &doneAt
	}
	return t
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction, simulated with a snapshot and
// rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(finca.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	nextID       int64
	workers      []finca.Worker
	workdays     []finca.WorkdayRecord
	supplies     []finca.SupplyRecord
	rates        map[finca.Tenant]finca.RateConfig
	legacy       *finca.RateConfig
	closings     []finca.Closing
	payrollLines []finca.PayrollLine
	supplyLines  []finca.SupplyLine
	tasks        []finca.PlannedTask
}

func (tm *TxMemory) snapshot() memorySnapshot {
	rates := make(map[finca.Tenant]finca.RateConfig, len(tm.rates))
	for k, v := range tm.rates {
		rates[k] = v
	}
	var legacy *finca.RateConfig
	if tm.legacy != nil {
		cfg := *tm.legacy
		legacy = &cfg
	}
	tasks := make([]finca.PlannedTask, len(tm.tasks))
	for i, t := range tm.tasks {
		tasks[i] = cloneTask(t)
	}
	return memorySnapshot{
		nextID:       tm.nextID,
		workers:      append([]finca.Worker(nil), tm.workers...),
		workdays:     append([]finca.WorkdayRecord(nil), tm.workdays...),
		supplies:     append([]finca.SupplyRecord(nil), tm.supplies...),
		rates:        rates,
		legacy:       legacy,
		closings:     append([]finca.Closing(nil), tm.closings...),
		payrollLines: append([]finca.PayrollLine(nil), tm.payrollLines...),
		supplyLines:  append([]finca.SupplyLine(nil), tm.supplyLines...),
		tasks:        tasks,
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.nextID = s.nextID
	tm.workers = s.workers
	tm.workdays = s.workdays
	tm.supplies = s.supplies
	tm.rates = s.rates
	tm.legacy = s.legacy
	tm.closings = s.closings
	tm.payrollLines = s.payrollLines
	tm.supplyLines = s.supplyLines
	tm.tasks = s.tasks
}

// txMemoryView routes writes to the parent while its lock is held.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) AddWorker(_ context.Context, w finca.Worker) (int64, error) {
	return tv.parent.addWorkerLocked(w)
}

func (tv *txMemoryView) ListWorkers(_ context.Context, tenant finca.Tenant) ([]finca.Worker, error) {
	return tv.parent.listWorkersLocked(tenant)
}

func (tv *txMemoryView) InsertWorkday(_ context.Context, rec finca.WorkdayRecord) (int64, error) {
	return tv.parent.insertWorkdayLocked(rec)
}

func (tv *txMemoryView) UpdateWorkday(_ context.Context, rec finca.WorkdayRecord) (bool, error) {
	return tv.parent.updateWorkdayLocked(rec)
}

func (tv *txMemoryView) QueryWorkdays(_ context.Context, tenant finca.Tenant, r finca.DateRange) ([]finca.WorkdayRecord, error) {
	return tv.parent.queryWorkdaysLocked(tenant, r)
}

func (tv *txMemoryView) InsertSupply(_ context.Context, rec finca.SupplyRecord) (int64, error) {
	return tv.parent.insertSupplyLocked(rec)
}

func (tv *txMemoryView) UpdateSupply(_ context.Context, rec finca.SupplyRecord) (bool, error) {
	return tv.parent.updateSupplyLocked(rec)
}

func (tv *txMemoryView) QuerySupplies(_ context.Context, tenant finca.Tenant, r finca.DateRange) ([]finca.SupplyRecord, error) {
	return tv.parent.querySuppliesLocked(tenant, r)
}

func (tv *txMemoryView) GetRateConfig(_ context.Context, tenant finca.Tenant) (*finca.RateConfig, error) {
	return tv.parent.getRateConfigLocked(tenant)
}

func (tv *txMemoryView) LegacyRates(_ context.Context) (*finca.RateConfig, error) {
	return tv.parent.legacyRatesLocked()
}

func (tv *txMemoryView) SetLegacyRates(_ context.Context, cfg finca.RateConfig) error {
	return tv.parent.setLegacyRatesLocked(cfg)
}

func (tv *txMemoryView) InsertRateConfigIfAbsent(_ context.Context, cfg finca.RateConfig) error {
	return tv.parent.insertRateConfigIfAbsentLocked(cfg)
}

func (tv *txMemoryView) UpsertRateConfig(_ context.Context, cfg finca.RateConfig) error {
	return tv.parent.upsertRateConfigLocked(cfg)
}

func (tv *txMemoryView) FindClosing(_ context.Context, tenant finca.Tenant, r finca.DateRange) (*finca.Closing, error) {
	return tv.parent.findClosingLocked(tenant, r)
}

func (tv *txMemoryView) InsertClosing(_ context.Context, c finca.Closing) (int64, error) {
	return tv.parent.insertClosingLocked(c)
}

func (tv *txMemoryView) InsertPayrollLines(_ context.Context, closingID int64, lines []finca.PayrollLine) error {
	return tv.parent.insertPayrollLinesLocked(closingID, lines)
}

func (tv *txMemoryView) InsertSupplyLines(_ context.Context, closingID int64, lines []finca.SupplyLine) error {
	return tv.parent.insertSupplyLinesLocked(closingID, lines)
}

func (tv *txMemoryView) DeleteClosing(_ context.Context, tenant finca.Tenant, id int64) error {
	return tv.parent.deleteClosingLocked(tenant, id)
}

func (tv *txMemoryView) ListClosings(_ context.Context, tenant finca.Tenant) ([]finca.Closing, error) {
	return tv.parent.listClosingsLocked(tenant)
}

func (tv *txMemoryView) GetClosing(_ context.Context, tenant finca.Tenant, id int64) (*finca.Closing, error) {
	return tv.parent.getClosingLocked(tenant, id)
}

func (tv *txMemoryView) ClosingPayroll(_ context.Context, closingID int64) ([]finca.PayrollLine, error) {
	return tv.parent.closingPayrollLocked(closingID)
}

func (tv *txMemoryView) ClosingSupplies(_ context.Context, closingID int64) ([]finca.SupplyLine, error) {
	return tv.parent.closingSuppliesLocked(closingID)
}

func (tv *txMemoryView) InsertTask(_ context.Context, t finca.PlannedTask) (int64, error) {
	return tv.parent.insertTaskLocked(t)
}

func (tv *txMemoryView) GetTask(_ context.Context, tenant finca.Tenant, id int64) (*finca.PlannedTask, error) {
	return tv.parent.getTaskLocked(tenant, id)
}

func (tv *txMemoryView) ListTasks(_ context.Context, tenant finca.Tenant, r finca.DateRange, status *finca.TaskStatus) ([]finca.PlannedTask, error) {
	return tv.parent.listTasksLocked(tenant, r, status)
}

func (tv *txMemoryView) MarkTaskDone(_ context.Context, tenant finca.Tenant, id int64, doneBy string, at time.Time) (bool, error) {
	return tv.parent.markTaskDoneLocked(tenant, id, doneBy, at)
}

func (tv *txMemoryView) ShiftTaskDate(_ context.Context, tenant finca.Tenant, id int64, days int) (bool, error) {
	return tv.parent.shiftTaskDateLocked(tenant, id, days)
}
