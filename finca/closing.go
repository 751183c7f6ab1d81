/*
closing.go - Monthly closing engine

PURPOSE:
  Computes payroll and supply totals for a tenant+date-range and persists
  them as an immutable closing: one header plus per-worker payroll lines
  and per-supply snapshot lines. Re-reading a closing later returns exactly
  the values computed at creation time, no matter how the live ledger is
  edited afterwards.

INVARIANTS:
  - At most one closing per (tenant, range) unless overwrite is requested;
    the store's unique index is the source of truth under concurrency and
    the in-engine existence check is only a fast path.
  - Header and both detail sets commit as one atomic unit; a partial
    closing is never observable.
  - TotalGeneral == TotalPayroll + TotalSupplies, and TotalPayroll is the
    sum of the payroll line totals.
  - Rates are resolved immediately before aggregation and frozen into the
    header; later rate changes never affect an existing closing.

AGGREGATION:
  Payroll groups workdays by worker name, summing days and overtime hours.
  A worker whose rows sum to zero still gets a line - the grouping is
  driven by row presence, not by nonzero sums. Supply lines are copied in
  (date, id) order for determinism.

SEE ALSO:
  - rates.go: rate snapshot source
  - store.go: transactional contract this engine relies on
*/
package finca

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ClosingEngine creates and reads monthly closings.
type ClosingEngine struct {
	Store TxStore
}

func NewClosingEngine(store TxStore) *ClosingEngine {
	return &ClosingEngine{Store: store}
}

// CreateClosingInput carries the parameters for one closing run.
type CreateClosingInput struct {
	Tenant    Tenant
	Range     DateRange
	CreatedBy string
	Overwrite bool
}

// CreateClosing aggregates the range and persists the closing, returning
// the new header id.
//
// Fails with ErrInvalidRange when start > end and with a
// DuplicateClosingError when the range is already closed and Overwrite is
// false. With Overwrite, the previous header and its detail rows are
// deleted in the same transaction before the new ones are written.
func (e *ClosingEngine) CreateClosing(ctx context.Context, in CreateClosingInput) (int64, error) {
	if err := in.Range.Validate(); err != nil {
		return 0, err
	}

	var closingID int64
	err := e.Store.WithTx(ctx, func(s Store) error {
		existing, err := s.FindClosing(ctx, in.Tenant, in.Range)
		if err != nil {
			return err
		}
		if existing != nil {
			if !in.Overwrite {
				return &DuplicateClosingError{Tenant: in.Tenant, Range: in.Range, ExistingID: existing.ID}
			}
			if err := s.DeleteClosing(ctx, in.Tenant, existing.ID); err != nil {
				return err
			}
		}

		rates, err := NewRateResolver(s).Resolve(ctx, in.Tenant)
		if err != nil {
			return err
		}

		payroll, totalPayroll, err := aggregatePayroll(ctx, s, in.Tenant, in.Range, rates)
		if err != nil {
			return err
		}

		supplies, err := s.QuerySupplies(ctx, in.Tenant, in.Range)
		if err != nil {
			return err
		}
		totalSupplies := decimal.Zero
		lines := make([]SupplyLine, len(supplies))
		for i, sup := range supplies {
			totalSupplies = totalSupplies.Add(sup.TotalCost)
			lines[i] = SupplyLine{
				Date:      sup.Date,
				Plot:      sup.Plot,
				Kind:      sup.Kind,
				Product:   sup.Product,
				Stage:     sup.Stage,
				Dose:      sup.Dose,
				Quantity:  sup.Quantity,
				UnitPrice: sup.UnitPrice,
				TotalCost: sup.TotalCost,
			}
		}

		header := Closing{
			Tenant:        in.Tenant,
			RangeStart:    in.Range.From,
			RangeEnd:      in.Range.To,
			CreatedBy:     in.CreatedBy,
			CreatedAt:     time.Now().UTC(),
			DayRate:       rates.DayRate,
			OvertimeRate:  rates.OvertimeRate,
			TotalPayroll:  totalPayroll,
			TotalSupplies: totalSupplies,
			TotalGeneral:  totalPayroll.Add(totalSupplies),
		}
		closingID, err = s.InsertClosing(ctx, header)
		if err != nil {
			return err
		}
		if err := s.InsertPayrollLines(ctx, closingID, payroll); err != nil {
			return err
		}
		return s.InsertSupplyLines(ctx, closingID, lines)
	})
	if err != nil {
		return 0, err
	}
	return closingID, nil
}

// aggregatePayroll groups workdays by worker, sorted by worker name.
func aggregatePayroll(ctx context.Context, s Store, tenant Tenant, r DateRange, rates RateConfig) ([]PayrollLine, decimal.Decimal, error) {
	workdays, err := s.QueryWorkdays(ctx, tenant, r)
	if err != nil {
		return nil, decimal.Zero, err
	}

	type group struct {
		days     int
		overtime decimal.Decimal
	}
	groups := make(map[string]*group)
	for _, w := range workdays {
		g, ok := groups[w.Worker]
		if !ok {
			g = &group{overtime: decimal.Zero}
			groups[w.Worker] = g
		}
		g.days += w.Days
		g.overtime = g.overtime.Add(w.OvertimeHours)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	total := decimal.Zero
	lines := make([]PayrollLine, 0, len(names))
	for _, name := range names {
		g := groups[name]
		dayAmount := decimal.NewFromInt(int64(g.days)).Mul(rates.DayRate)
		overtimeAmount := g.overtime.Mul(rates.OvertimeRate)
		lineTotal := dayAmount.Add(overtimeAmount)
		total = total.Add(lineTotal)
		lines = append(lines, PayrollLine{
			Worker:         name,
			Days:           g.days,
			OvertimeHours:  g.overtime,
			DayAmount:      dayAmount,
			OvertimeAmount: overtimeAmount,
			Total:          lineTotal,
		})
	}
	return lines, total, nil
}

// ListClosings returns the tenant's closing headers, newest range first.
func (e *ClosingEngine) ListClosings(ctx context.Context, tenant Tenant) ([]Closing, error) {
	return e.Store.ListClosings(ctx, tenant)
}

// ReadClosingDetail returns the header plus both detail sets.
//
// Ownership is verified before any detail row is read: a closing owned by
// another tenant yields (nil, nil) rather than leaking its existence.
func (e *ClosingEngine) ReadClosingDetail(ctx context.Context, tenant Tenant, closingID int64) (*ClosingDetail, error) {
	header, err := e.Store.GetClosing(ctx, tenant, closingID)
	if err != nil {
		return nil, fmt.Errorf("read closing detail: %w", err)
	}
	if header == nil {
		return nil, nil
	}
	payroll, err := e.Store.ClosingPayroll(ctx, closingID)
	if err != nil {
		return nil, fmt.Errorf("read closing detail: %w", err)
	}
	supplies, err := e.Store.ClosingSupplies(ctx, closingID)
	if err != nil {
		return nil, fmt.Errorf("read closing detail: %w", err)
	}
	return &ClosingDetail{Closing: *header, Payroll: payroll, Supplies: supplies}, nil
}
