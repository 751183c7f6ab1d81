/*
Package sqlite provides the SQLite-backed implementation of the farm
ledger store.

PURPOSE:
  Implements finca.TxStore using SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  workers          Per-tenant worker registry
  workdays         Live labor ledger rows
  supplies         Live supply ledger rows (total_cost always recomputed)
  rate_configs     One pay-rate row per tenant
  legacy_rates     Optional single legacy row, read-only migration source
  closings         Immutable monthly closing headers
  closing_payroll  Per-worker payroll detail (cascade on header delete)
  closing_supplies Supply snapshot detail (cascade on header delete)
  tasks            Planned recurring labor tasks

INVARIANT ENFORCEMENT:
  The unique index on closings(owner, range_start, range_end) is the
  source of truth for the duplicate-closing race: the losing insert maps
  to finca.ErrDuplicateClosing. Detail rows reference the header with
  ON DELETE CASCADE so overwrite leaves no orphans. Task completion flips
  status with a compare-and-swap UPDATE ... WHERE status='pending'.

READ RETRY:
  Top-level range queries over workdays and supplies retry once after
  0.8s on a transient (busy/locked) failure. Write transactions are never
  retried here; the caller decides.

WAL MODE:
  Opened with WAL and foreign keys on, as the rest of the system expects.

USAGE:
  store, err := sqlite.New("./data/finca.db")   // or ":memory:"

SEE ALSO:
  - finca/store.go: interface definitions
  - finca/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/KeilorFP/finca-app/finca"
)

const (
	dateLayout     = "2006-01-02"
	readRetryDelay = 800 * time.Millisecond
)

// Store implements finca.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite allows a single writer, and ":memory:" is a
	// separate database per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS ux_workers_owner_name
		ON workers(owner, first_name, last_name);

	CREATE TABLE IF NOT EXISTS workdays (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner TEXT NOT NULL,
		worker TEXT NOT NULL,
		date TEXT NOT NULL,
		plot TEXT,
		activity TEXT,
		days INTEGER NOT NULL DEFAULT 0,
		normal_hours TEXT NOT NULL DEFAULT '0',
		overtime_hours TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_workdays_owner_date ON workdays(owner, date);

	CREATE TABLE IF NOT EXISTS supplies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner TEXT NOT NULL,
		date TEXT NOT NULL,
		plot TEXT,
		kind TEXT NOT NULL,
		stage TEXT,
		product TEXT,
		dose TEXT,
		quantity TEXT NOT NULL DEFAULT '0',
		unit_price TEXT NOT NULL DEFAULT '0',
		total_cost TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_supplies_owner_date ON supplies(owner, date);

	CREATE TABLE IF NOT EXISTS rate_configs (
		owner TEXT PRIMARY KEY,
		day_rate TEXT NOT NULL,
		overtime_rate TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Single-row migration source; never written by the resolver.
	CREATE TABLE IF NOT EXISTS legacy_rates (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		day_rate TEXT NOT NULL,
		overtime_rate TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS closings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner TEXT NOT NULL,
		range_start TEXT NOT NULL,
		range_end TEXT NOT NULL,
		created_by TEXT,
		created_at TEXT NOT NULL,
		day_rate TEXT NOT NULL,
		overtime_rate TEXT NOT NULL,
		total_payroll TEXT NOT NULL DEFAULT '0',
		total_supplies TEXT NOT NULL DEFAULT '0',
		total_general TEXT NOT NULL DEFAULT '0'
	);
	-- Source of truth for the duplicate-closing race.
	CREATE UNIQUE INDEX IF NOT EXISTS ux_closings_owner_range
		ON closings(owner, range_start, range_end);
	CREATE INDEX IF NOT EXISTS idx_closings_owner ON closings(owner);

	CREATE TABLE IF NOT EXISTS closing_payroll (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		closing_id INTEGER NOT NULL REFERENCES closings(id) ON DELETE CASCADE,
		worker TEXT NOT NULL,
		days INTEGER NOT NULL DEFAULT 0,
		overtime_hours TEXT NOT NULL DEFAULT '0',
		day_amount TEXT NOT NULL DEFAULT '0',
		overtime_amount TEXT NOT NULL DEFAULT '0',
		total TEXT NOT NULL DEFAULT '0'
	);
	CREATE INDEX IF NOT EXISTS idx_closing_payroll_closing ON closing_payroll(closing_id);

	CREATE TABLE IF NOT EXISTS closing_supplies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		closing_id INTEGER NOT NULL REFERENCES closings(id) ON DELETE CASCADE,
		date TEXT,
		plot TEXT,
		kind TEXT,
		product TEXT,
		stage TEXT,
		dose TEXT,
		quantity TEXT,
		unit_price TEXT,
		total_cost TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_closing_supplies_closing ON closing_supplies(closing_id);

	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner TEXT NOT NULL,
		date TEXT NOT NULL,
		plot TEXT,
		kind TEXT NOT NULL,
		worker TEXT,
		activity TEXT,
		stage TEXT,
		product TEXT,
		dose TEXT,
		quantity TEXT NOT NULL DEFAULT '0',
		unit_price TEXT NOT NULL DEFAULT '0',
		days INTEGER NOT NULL DEFAULT 0,
		overtime_hours TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'pending',
		every_days INTEGER,
		remaining INTEGER,
		autorenew INTEGER NOT NULL DEFAULT 0,
		parent_task_id INTEGER REFERENCES tasks(id),
		created_at TEXT NOT NULL,
		done_at TEXT,
		done_by TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_owner_date ON tasks(owner, date);
	CREATE INDEX IF NOT EXISTS idx_tasks_owner_status ON tasks(owner, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is the common surface of *sql.DB and *sql.Tx the queries run on.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// WORKERS
// =============================================================================

func (s *Store) AddWorker(ctx context.Context, w finca.Worker) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addWorker(ctx, s.db, w)
}

func addWorker(ctx context.Context, db dbtx, w finca.Worker) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO workers (owner, first_name, last_name, created_at) VALUES (?, ?, ?, ?)`,
		w.Tenant, w.FirstName, w.LastName, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, finca.ErrAlreadyExists
		}
		return 0, fmt.Errorf("failed to add worker: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) ListWorkers(ctx context.Context, tenant finca.Tenant) ([]finca.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listWorkers(ctx, s.db, tenant)
}

func listWorkers(ctx context.Context, db dbtx, tenant finca.Tenant) ([]finca.Worker, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, owner, first_name, last_name, created_at
		 FROM workers WHERE owner = ?
		 ORDER BY first_name, last_name, id`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	defer rows.Close()

	var workers []finca.Worker
	for rows.Next() {
		var (
			w         finca.Worker
			createdAt string
		)
		if err := rows.Scan(&w.ID, &w.Tenant, &w.FirstName, &w.LastName, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}
		w.CreatedAt = parseTimestamp(createdAt)
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

// =============================================================================
// WORKDAYS
// =============================================================================

func (s *Store) InsertWorkday(ctx context.Context, rec finca.WorkdayRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertWorkday(ctx, s.db, rec)
}

func insertWorkday(ctx context.Context, db dbtx, rec finca.WorkdayRecord) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO workdays (owner, worker, date, plot, activity, days, normal_hours, overtime_hours, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Tenant, rec.Worker, rec.Date.String(), rec.Plot, rec.Activity,
		rec.Days, rec.NormalHours.String(), rec.OvertimeHours.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert workday: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) UpdateWorkday(ctx context.Context, rec finca.WorkdayRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateWorkday(ctx, s.db, rec)
}

func updateWorkday(ctx context.Context, db dbtx, rec finca.WorkdayRecord) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE workdays
		 SET worker = ?, date = ?, plot = ?, activity = ?, days = ?, normal_hours = ?, overtime_hours = ?
		 WHERE id = ? AND owner = ?`,
		rec.Worker, rec.Date.String(), rec.Plot, rec.Activity, rec.Days,
		rec.NormalHours.String(), rec.OvertimeHours.String(), rec.ID, rec.Tenant,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update workday: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// QueryWorkdays returns the tenant's workdays in [From, To] inclusive,
// ordered by (date, id). A transient failure is retried once after 0.8s.
func (s *Store) QueryWorkdays(ctx context.Context, tenant finca.Tenant, r finca.DateRange) ([]finca.WorkdayRecord, error) {
	var out []finca.WorkdayRecord
	err := retryRead(ctx, func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var err error
		out, err = queryWorkdays(ctx, s.db, tenant, r)
		return err
	})
	return out, err
}

func queryWorkdays(ctx context.Context, db dbtx, tenant finca.Tenant, r finca.DateRange) ([]finca.WorkdayRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, owner, worker, date, plot, activity, days, normal_hours, overtime_hours, created_at
		 FROM workdays
		 WHERE owner = ? AND date >= ? AND date <= ?
		 ORDER BY date, id`,
		tenant, r.From.String(), r.To.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query workdays: %w", err)
	}
	defer rows.Close()

	var records []finca.WorkdayRecord
	for rows.Next() {
		var rec finca.WorkdayRecord
		var date, normal, overtime, created string
		var plot, activity sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Tenant, &rec.Worker, &date, &plot, &activity,
			&rec.Days, &normal, &overtime, &created); err != nil {
			return nil, fmt.Errorf("failed to scan workday: %w", err)
		}
		rec.Date = parseDate(date)
		rec.Plot = plot.String
		rec.Activity = activity.String
		rec.NormalHours = parseDecimal(normal)
		rec.OvertimeHours = parseDecimal(overtime)
		rec.CreatedAt = parseTimestamp(created)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// SUPPLIES
// =============================================================================

func (s *Store) InsertSupply(ctx context.Context, rec finca.SupplyRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertSupply(ctx, s.db, rec)
}

func insertSupply(ctx context.Context, db dbtx, rec finca.SupplyRecord) (int64, error) {
	// total_cost is recomputed here, never trusted from input.
	res, err := db.ExecContext(ctx,
		`INSERT INTO supplies (owner, date, plot, kind, stage, product, dose, quantity, unit_price, total_cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Tenant, rec.Date.String(), rec.Plot, rec.Kind, rec.Stage, rec.Product, rec.Dose,
		rec.Quantity.String(), rec.UnitPrice.String(), rec.Cost().String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert supply: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) UpdateSupply(ctx context.Context, rec finca.SupplyRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateSupply(ctx, s.db, rec)
}

func updateSupply(ctx context.Context, db dbtx, rec finca.SupplyRecord) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE supplies
		 SET date = ?, plot = ?, kind = ?, stage = ?, product = ?, dose = ?, quantity = ?, unit_price = ?, total_cost = ?
		 WHERE id = ? AND owner = ?`,
		rec.Date.String(), rec.Plot, rec.Kind, rec.Stage, rec.Product, rec.Dose,
		rec.Quantity.String(), rec.UnitPrice.String(), rec.Cost().String(),
		rec.ID, rec.Tenant,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update supply: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// QuerySupplies returns the tenant's supplies in [From, To] inclusive,
// ordered by (date, id) for deterministic snapshots. A transient failure
// is retried once after 0.8s.
func (s *Store) QuerySupplies(ctx context.Context, tenant finca.Tenant, r finca.DateRange) ([]finca.SupplyRecord, error) {
	var out []finca.SupplyRecord
	err := retryRead(ctx, func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var err error
		out, err = querySupplies(ctx, s.db, tenant, r)
		return err
	})
	return out, err
}

func querySupplies(ctx context.Context, db dbtx, tenant finca.Tenant, r finca.DateRange) ([]finca.SupplyRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, owner, date, plot, kind, stage, product, dose, quantity, unit_price, total_cost, created_at
		 FROM supplies
		 WHERE owner = ? AND date >= ? AND date <= ?
		 ORDER BY date, id`,
		tenant, r.From.String(), r.To.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query supplies: %w", err)
	}
	defer rows.Close()

	var records []finca.SupplyRecord
	for rows.Next() {
		rec, err := scanSupply(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanSupply(rows *sql.Rows) (finca.SupplyRecord, error) {
	var rec finca.SupplyRecord
	var date, qty, price, cost, created string
	var plot, stage, product, dose, kind sql.NullString
	if err := rows.Scan(&rec.ID, &rec.Tenant, &date, &plot, &kind, &stage, &product, &dose,
		&qty, &price, &cost, &created); err != nil {
		return rec, fmt.Errorf("failed to scan supply: %w", err)
	}
	rec.Date = parseDate(date)
	rec.Plot = plot.String
	rec.Kind = finca.SupplyKind(kind.String)
	rec.Stage = stage.String
	rec.Product = product.String
	rec.Dose = dose.String
	rec.Quantity = parseDecimal(qty)
	rec.UnitPrice = parseDecimal(price)
	rec.TotalCost = parseDecimal(cost)
	rec.CreatedAt = parseTimestamp(created)
	return rec, nil
}

// =============================================================================
// RATES
// =============================================================================

func (s *Store) GetRateConfig(ctx context.Context, tenant finca.Tenant) (*finca.RateConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRateConfig(ctx, s.db, tenant)
}

func getRateConfig(ctx context.Context, db dbtx, tenant finca.Tenant) (*finca.RateConfig, error) {
	row := db.QueryRowContext(ctx,
		`SELECT owner, day_rate, overtime_rate, updated_at FROM rate_configs WHERE owner = ?`, tenant)
	return scanRateConfig(row)
}

func (s *Store) LegacyRates(ctx context.Context) (*finca.RateConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return legacyRates(ctx, s.db)
}

func legacyRates(ctx context.Context, db dbtx) (*finca.RateConfig, error) {
	row := db.QueryRowContext(ctx,
		`SELECT '', day_rate, overtime_rate, updated_at FROM legacy_rates WHERE id = 1`)
	return scanRateConfig(row)
}

func scanRateConfig(row *sql.Row) (*finca.RateConfig, error) {
	var cfg finca.RateConfig
	var dayRate, overtime, updated string
	err := row.Scan(&cfg.Tenant, &dayRate, &overtime, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rate config: %w", err)
	}
	cfg.DayRate = parseDecimal(dayRate)
	cfg.OvertimeRate = parseDecimal(overtime)
	cfg.UpdatedAt = parseTimestamp(updated)
	return &cfg, nil
}

func (s *Store) SetLegacyRates(ctx context.Context, cfg finca.RateConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setLegacyRates(ctx, s.db, cfg)
}

func setLegacyRates(ctx context.Context, db dbtx, cfg finca.RateConfig) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO legacy_rates (id, day_rate, overtime_rate, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET day_rate = excluded.day_rate,
		     overtime_rate = excluded.overtime_rate, updated_at = excluded.updated_at`,
		cfg.DayRate.String(), cfg.OvertimeRate.String(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to set legacy rates: %w", err)
	}
	return nil
}

func (s *Store) InsertRateConfigIfAbsent(ctx context.Context, cfg finca.RateConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertRateConfigIfAbsent(ctx, s.db, cfg)
}

func insertRateConfigIfAbsent(ctx context.Context, db dbtx, cfg finca.RateConfig) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO rate_configs (owner, day_rate, overtime_rate, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (owner) DO NOTHING`,
		cfg.Tenant, cfg.DayRate.String(), cfg.OvertimeRate.String(),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert rate config: %w", err)
	}
	return nil
}

func (s *Store) UpsertRateConfig(ctx context.Context, cfg finca.RateConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertRateConfig(ctx, s.db, cfg)
}

func upsertRateConfig(ctx context.Context, db dbtx, cfg finca.RateConfig) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO rate_configs (owner, day_rate, overtime_rate, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (owner) DO UPDATE SET day_rate = excluded.day_rate,
		     overtime_rate = excluded.overtime_rate, updated_at = excluded.updated_at`,
		cfg.Tenant, cfg.DayRate.String(), cfg.OvertimeRate.String(),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert rate config: %w", err)
	}
	return nil
}

// =============================================================================
// CLOSINGS
// =============================================================================

const closingColumns = `id, owner, range_start, range_end, created_by, created_at,
	day_rate, overtime_rate, total_payroll, total_supplies, total_general`

func (s *Store) FindClosing(ctx context.Context, tenant finca.Tenant, r finca.DateRange) (*finca.Closing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findClosing(ctx, s.db, tenant, r)
}

func findClosing(ctx context.Context, db dbtx, tenant finca.Tenant, r finca.DateRange) (*finca.Closing, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+closingColumns+` FROM closings WHERE owner = ? AND range_start = ? AND range_end = ?`,
		tenant, r.From.String(), r.To.String())
	if err != nil {
		return nil, fmt.Errorf("failed to find closing: %w", err)
	}
	defer rows.Close()
	return oneClosing(rows)
}

func (s *Store) InsertClosing(ctx context.Context, c finca.Closing) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertClosing(ctx, s.db, c)
}

func insertClosing(ctx context.Context, db dbtx, c finca.Closing) (int64, error) {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO closings (owner, range_start, range_end, created_by, created_at,
		     day_rate, overtime_rate, total_payroll, total_supplies, total_general)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Tenant, c.RangeStart.String(), c.RangeEnd.String(), c.CreatedBy,
		createdAt.Format(time.RFC3339),
		c.DayRate.String(), c.OvertimeRate.String(),
		c.TotalPayroll.String(), c.TotalSupplies.String(), c.TotalGeneral.String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, &finca.DuplicateClosingError{
				Tenant: c.Tenant,
				Range:  finca.DateRange{From: c.RangeStart, To: c.RangeEnd},
			}
		}
		return 0, fmt.Errorf("failed to insert closing: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) InsertPayrollLines(ctx context.Context, closingID int64, lines []finca.PayrollLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPayrollLines(ctx, s.db, closingID, lines)
}

func insertPayrollLines(ctx context.Context, db dbtx, closingID int64, lines []finca.PayrollLine) error {
	for _, line := range lines {
		_, err := db.ExecContext(ctx,
			`INSERT INTO closing_payroll (closing_id, worker, days, overtime_hours, day_amount, overtime_amount, total)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			closingID, line.Worker, line.Days, line.OvertimeHours.String(),
			line.DayAmount.String(), line.OvertimeAmount.String(), line.Total.String())
		if err != nil {
			return fmt.Errorf("failed to insert payroll line: %w", err)
		}
	}
	return nil
}

func (s *Store) InsertSupplyLines(ctx context.Context, closingID int64, lines []finca.SupplyLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertSupplyLines(ctx, s.db, closingID, lines)
}

func insertSupplyLines(ctx context.Context, db dbtx, closingID int64, lines []finca.SupplyLine) error {
	for _, line := range lines {
		_, err := db.ExecContext(ctx,
			`INSERT INTO closing_supplies (closing_id, date, plot, kind, product, stage, dose, quantity, unit_price, total_cost)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			closingID, line.Date.String(), line.Plot, line.Kind, line.Product, line.Stage, line.Dose,
			line.Quantity.String(), line.UnitPrice.String(), line.TotalCost.String())
		if err != nil {
			return fmt.Errorf("failed to insert supply line: %w", err)
		}
	}
	return nil
}

func (s *Store) DeleteClosing(ctx context.Context, tenant finca.Tenant, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteClosing(ctx, s.db, tenant, id)
}

func deleteClosing(ctx context.Context, db dbtx, tenant finca.Tenant, id int64) error {
	// Detail rows go with the header via ON DELETE CASCADE.
	_, err := db.ExecContext(ctx, `DELETE FROM closings WHERE id = ? AND owner = ?`, id, tenant)
	if err != nil {
		return fmt.Errorf("failed to delete closing: %w", err)
	}
	return nil
}

func (s *Store) ListClosings(ctx context.Context, tenant finca.Tenant) ([]finca.Closing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listClosings(ctx, s.db, tenant)
}

func listClosings(ctx context.Context, db dbtx, tenant finca.Tenant) ([]finca.Closing, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+closingColumns+` FROM closings WHERE owner = ? ORDER BY range_start DESC, id DESC`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list closings: %w", err)
	}
	defer rows.Close()

	var closings []finca.Closing
	for rows.Next() {
		c, err := scanClosing(rows)
		if err != nil {
			return nil, err
		}
		closings = append(closings, c)
	}
	return closings, rows.Err()
}

func (s *Store) GetClosing(ctx context.Context, tenant finca.Tenant, id int64) (*finca.Closing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getClosing(ctx, s.db, tenant, id)
}

func getClosing(ctx context.Context, db dbtx, tenant finca.Tenant, id int64) (*finca.Closing, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+closingColumns+` FROM closings WHERE id = ? AND owner = ?`, id, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to get closing: %w", err)
	}
	defer rows.Close()
	return oneClosing(rows)
}

func oneClosing(rows *sql.Rows) (*finca.Closing, error) {
	if !rows.Next() {
		return nil, rows.Err()
	}
	c, err := scanClosing(rows)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanClosing(rows *sql.Rows) (finca.Closing, error) {
	var c finca.Closing
	var start, end, createdAt string
	var createdBy sql.NullString
	var dayRate, overtime, payroll, sup, total string
	if err := rows.Scan(&c.ID, &c.Tenant, &start, &end, &createdBy, &createdAt,
		&dayRate, &overtime, &payroll, &sup, &total); err != nil {
		return c, fmt.Errorf("failed to scan closing: %w", err)
	}
	c.RangeStart = parseDate(start)
	c.RangeEnd = parseDate(end)
	c.CreatedBy = createdBy.String
	c.CreatedAt = parseTimestamp(createdAt)
	c.DayRate = parseDecimal(dayRate)
	c.OvertimeRate = parseDecimal(overtime)
	c.TotalPayroll = parseDecimal(payroll)
	c.TotalSupplies = parseDecimal(sup)
	c.TotalGeneral = parseDecimal(total)
	return c, nil
}

func (s *Store) ClosingPayroll(ctx context.Context, closingID int64) ([]finca.PayrollLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return closingPayroll(ctx, s.db, closingID)
}

func closingPayroll(ctx context.Context, db dbtx, closingID int64) ([]finca.PayrollLine, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, closing_id, worker, days, overtime_hours, day_amount, overtime_amount, total
		 FROM closing_payroll WHERE closing_id = ? ORDER BY worker, id`, closingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query closing payroll: %w", err)
	}
	defer rows.Close()

	var lines []finca.PayrollLine
	for rows.Next() {
		var line finca.PayrollLine
		var overtime, dayAmt, otAmt, total string
		if err := rows.Scan(&line.ID, &line.ClosingID, &line.Worker, &line.Days,
			&overtime, &dayAmt, &otAmt, &total); err != nil {
			return nil, fmt.Errorf("failed to scan payroll line: %w", err)
		}
		line.OvertimeHours = parseDecimal(overtime)
		line.DayAmount = parseDecimal(dayAmt)
		line.OvertimeAmount = parseDecimal(otAmt)
		line.Total = parseDecimal(total)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *Store) ClosingSupplies(ctx context.Context, closingID int64) ([]finca.SupplyLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return closingSupplies(ctx, s.db, closingID)
}

func closingSupplies(ctx context.Context, db dbtx, closingID int64) ([]finca.SupplyLine, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, closing_id, date, plot, kind, product, stage, dose, quantity, unit_price, total_cost
		 FROM closing_supplies WHERE closing_id = ? ORDER BY date, id`, closingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query closing supplies: %w", err)
	}
	defer rows.Close()

	var lines []finca.SupplyLine
	for rows.Next() {
		var line finca.SupplyLine
		var date, plot, kind, product, stage, dose sql.NullString
		var qty, price, cost sql.NullString
		if err := rows.Scan(&line.ID, &line.ClosingID, &date, &plot, &kind, &product, &stage, &dose,
			&qty, &price, &cost); err != nil {
			return nil, fmt.Errorf("failed to scan supply line: %w", err)
		}
		line.Date = parseDate(date.String)
		line.Plot = plot.String
		line.Kind = finca.SupplyKind(kind.String)
		line.Product = product.String
		line.Stage = stage.String
		line.Dose = dose.String
		line.Quantity = parseDecimal(qty.String)
		line.UnitPrice = parseDecimal(price.String)
		line.TotalCost = parseDecimal(cost.String)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// =============================================================================
// PLANNED TASKS
// =============================================================================

const taskColumns = `id, owner, date, plot, kind, worker, activity, stage, product, dose,
	quantity, unit_price, days, overtime_hours, status, every_days, remaining, autorenew,
	parent_task_id, created_at, done_at, done_by`

func (s *Store) InsertTask(ctx context.Context, t finca.PlannedTask) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertTask(ctx, s.db, t)
}

func insertTask(ctx context.Context, db dbtx, t finca.PlannedTask) (int64, error) {
	var (
		everyDays, remaining sql.NullInt64
		autorenew            bool
	)
	if t.Recurrence != nil {
		everyDays = sql.NullInt64{Int64: int64(t.Recurrence.EveryDays), Valid: true}
		autorenew = t.Recurrence.AutoRenew
		if t.Recurrence.Remaining != nil {
			remaining = sql.NullInt64{Int64: int64(*t.Recurrence.Remaining), Valid: true}
		}
	}
	var parentID sql.NullInt64
	if t.ParentTaskID != nil {
		parentID = sql.NullInt64{Int64: *t.ParentTaskID, Valid: true}
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := t.Status
	if status == "" {
		status = finca.TaskPending
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO tasks (owner, date, plot, kind, worker, activity, stage, product, dose,
		     quantity, unit_price, days, overtime_hours, status, every_days, remaining, autorenew,
		     parent_task_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Tenant, t.Date.String(), t.Plot, t.Kind, t.Worker, t.Activity, t.Stage, t.Product, t.Dose,
		t.Quantity.String(), t.UnitPrice.String(), t.Days, t.OvertimeHours.String(),
		status, everyDays, remaining, autorenew, parentID,
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert task: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) GetTask(ctx context.Context, tenant finca.Tenant, id int64) (*finca.PlannedTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTask(ctx, s.db, tenant, id)
}

func getTask(ctx context.Context, db dbtx, tenant finca.Tenant, id int64) (*finca.PlannedTask, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner = ?`, id, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	t, err := scanTask(rows)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListTasks(ctx context.Context, tenant finca.Tenant, r finca.DateRange, status *finca.TaskStatus) ([]finca.PlannedTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTasks(ctx, s.db, tenant, r, status)
}

func listTasks(ctx context.Context, db dbtx, tenant finca.Tenant, r finca.DateRange, status *finca.TaskStatus) ([]finca.PlannedTask, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner = ? AND date >= ? AND date <= ?`
	args := []any{tenant, r.From.String(), r.To.String()}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY date, plot, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []finca.PlannedTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(rows *sql.Rows) (finca.PlannedTask, error) {
	var t finca.PlannedTask
	var date, qty, price, overtime, createdAt string
	var plot, worker, activity, stage sql.NullString
	var product, dose, doneAt, doneBy sql.NullString
	var everyDays, remaining, parentID sql.NullInt64
	var autorenew bool
	if err := rows.Scan(&t.ID, &t.Tenant, &date, &plot, &t.Kind, &worker, &activity, &stage,
		&product, &dose, &qty, &price, &t.Days, &overtime, &t.Status,
		&everyDays, &remaining, &autorenew, &parentID, &createdAt, &doneAt, &doneBy); err != nil {
		return t, fmt.Errorf("failed to scan task: %w", err)
	}
	t.Date = parseDate(date)
	t.Plot = plot.String
	t.Worker = worker.String
	t.Activity = activity.String
	t.Stage = stage.String
	t.Product = product.String
	t.Dose = dose.String
	t.Quantity = parseDecimal(qty)
	t.UnitPrice = parseDecimal(price)
	t.OvertimeHours = parseDecimal(overtime)
	t.CreatedAt = parseTimestamp(createdAt)
	t.DoneBy = doneBy.String
	if everyDays.Valid {
		rec := finca.Recurrence{EveryDays: int(everyDays.Int64), AutoRenew: autorenew}
		if remaining.Valid {
			rem := int(remaining.Int64)
			rec.Remaining = &rem
		}
		t.Recurrence = &rec
	}
	if parentID.Valid {
		parent := parentID.Int64
		t.ParentTaskID = &parent
	}
	if doneAt.Valid && doneAt.String != "" {
		done := parseTimestamp(doneAt.String)
		t.DoneAt = &done
	}
	return t, nil
}

// MarkTaskDone flips a Pending task to Done. The WHERE clause is the
// compare-and-swap: a concurrent completion makes this report false.
func (s *Store) MarkTaskDone(ctx context.Context, tenant finca.Tenant, id int64, doneBy string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markTaskDone(ctx, s.db, tenant, id, doneBy, at)
}

func markTaskDone(ctx context.Context, db dbtx, tenant finca.Tenant, id int64, doneBy string, at time.Time) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, done_at = ?, done_by = ?
		 WHERE id = ? AND owner = ? AND status = ?`,
		finca.TaskDone, at.UTC().Format(time.RFC3339), doneBy, id, tenant, finca.TaskPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark task done: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) ShiftTaskDate(ctx context.Context, tenant finca.Tenant, id int64, days int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return shiftTaskDate(ctx, s.db, tenant, id, days)
}

func shiftTaskDate(ctx context.Context, db dbtx, tenant finca.Tenant, id int64, days int) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE tasks SET date = date(date, ?)
		 WHERE id = ? AND owner = ? AND status = ?`,
		fmt.Sprintf("%+d days", days), id, tenant, finca.TaskPending)
	if err != nil {
		return false, fmt.Errorf("failed to shift task date: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store finca.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes Store calls through an open transaction.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) AddWorker(ctx context.Context, w finca.Worker) (int64, error) {
	return addWorker(ctx, t.tx, w)
}

func (t *txStore) ListWorkers(ctx context.Context, tenant finca.Tenant) ([]finca.Worker, error) {
	return listWorkers(ctx, t.tx, tenant)
}

func (t *txStore) InsertWorkday(ctx context.Context, rec finca.WorkdayRecord) (int64, error) {
	return insertWorkday(ctx, t.tx, rec)
}

func (t *txStore) UpdateWorkday(ctx context.Context, rec finca.WorkdayRecord) (bool, error) {
	return updateWorkday(ctx, t.tx, rec)
}

func (t *txStore) QueryWorkdays(ctx context.Context, tenant finca.Tenant, r finca.DateRange) ([]finca.WorkdayRecord, error) {
	return queryWorkdays(ctx, t.tx, tenant, r)
}

func (t *txStore) InsertSupply(ctx context.Context, rec finca.SupplyRecord) (int64, error) {
	return insertSupply(ctx, t.tx, rec)
}

func (t *txStore) UpdateSupply(ctx context.Context, rec finca.SupplyRecord) (bool, error) {
	return updateSupply(ctx, t.tx, rec)
}

func (t *txStore) QuerySupplies(ctx context.Context, tenant finca.Tenant, r finca.DateRange) ([]finca.SupplyRecord, error) {
	return querySupplies(ctx, t.tx, tenant, r)
}

func (t *txStore) GetRateConfig(ctx context.Context, tenant finca.Tenant) (*finca.RateConfig, error) {
	return getRateConfig(ctx, t.tx, tenant)
}

func (t *txStore) LegacyRates(ctx context.Context) (*finca.RateConfig, error) {
	return legacyRates(ctx, t.tx)
}

func (t *txStore) SetLegacyRates(ctx context.Context, cfg finca.RateConfig) error {
	return setLegacyRates(ctx, t.tx, cfg)
}

func (t *txStore) InsertRateConfigIfAbsent(ctx context.Context, cfg finca.RateConfig) error {
	return insertRateConfigIfAbsent(ctx, t.tx, cfg)
}

func (t *txStore) UpsertRateConfig(ctx context.Context, cfg finca.RateConfig) error {
	return upsertRateConfig(ctx, t.tx, cfg)
}

func (t *txStore) FindClosing(ctx context.Context, tenant finca.Tenant, r finca.DateRange) (*finca.Closing, error) {
	return findClosing(ctx, t.tx, tenant, r)
}

func (t *txStore) InsertClosing(ctx context.Context, c finca.Closing) (int64, error) {
	return insertClosing(ctx, t.tx, c)
}

func (t *txStore) InsertPayrollLines(ctx context.Context, closingID int64, lines []finca.PayrollLine) error {
	return insertPayrollLines(ctx, t.tx, closingID, lines)
}

func (t *txStore) InsertSupplyLines(ctx context.Context, closingID int64, lines []finca.SupplyLine) error {
	return insertSupplyLines(ctx, t.tx, closingID, lines)
}

func (t *txStore) DeleteClosing(ctx context.Context, tenant finca.Tenant, id int64) error {
	return deleteClosing(ctx, t.tx, tenant, id)
}

func (t *txStore) ListClosings(ctx context.Context, tenant finca.Tenant) ([]finca.Closing, error) {
	return listClosings(ctx, t.tx, tenant)
}

func (t *txStore) GetClosing(ctx context.Context, tenant finca.Tenant, id int64) (*finca.Closing, error) {
	return getClosing(ctx, t.tx, tenant, id)
}

func (t *txStore) ClosingPayroll(ctx context.Context, closingID int64) ([]finca.PayrollLine, error) {
	return closingPayroll(ctx, t.tx, closingID)
}

func (t *txStore) ClosingSupplies(ctx context.Context, closingID int64) ([]finca.SupplyLine, error) {
	return closingSupplies(ctx, t.tx, closingID)
}

func (t *txStore) InsertTask(ctx context.Context, task finca.PlannedTask) (int64, error) {
	return insertTask(ctx, t.tx, task)
}

func (t *txStore) GetTask(ctx context.Context, tenant finca.Tenant, id int64) (*finca.PlannedTask, error) {
	return getTask(ctx, t.tx, tenant, id)
}

func (t *txStore) ListTasks(ctx context.Context, tenant finca.Tenant, r finca.DateRange, status *finca.TaskStatus) ([]finca.PlannedTask, error) {
	return listTasks(ctx, t.tx, tenant, r, status)
}

func (t *txStore) MarkTaskDone(ctx context.Context, tenant finca.Tenant, id int64, doneBy string, at time.Time) (bool, error) {
	return markTaskDone(ctx, t.tx, tenant, id, doneBy, at)
}

func (t *txStore) ShiftTaskDate(ctx context.Context, tenant finca.Tenant, id int64, days int) (bool, error) {
	return shiftTaskDate(ctx, t.tx, tenant, id, days)
}

// =============================================================================
// HELPERS
// =============================================================================

// retryRead runs fn and retries it once after readRetryDelay on a
// transient failure. Only used for read-only range queries; write
// transactions are never retried here.
func retryRead(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !isTransientError(err) {
		return err
	}
	select {
	case <-time.After(readRetryDelay):
	case <-ctx.Done():
		return err
	}
	return fn()
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "busy")
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseDate(s string) finca.Date {
	if s == "" {
		return finca.Date{}
	}
	d, err := finca.ParseDate(s)
	if err != nil {
		return finca.Date{}
	}
	return d
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
