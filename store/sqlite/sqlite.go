/*
Package sqlite provides a SQLite-backed implementation of the contrib stores.

INTERFACES IMPLEMENTED:
  contrib.PolicyStore:   Published half-year rules
  contrib.BaselineStore: Per-employee reference figures
  contrib.SalaryStore:   Normalized payroll rows
  contrib.ResultStore:   Computed contribution rows

KEY TABLES:
  schema_migrations:    Applied schema versions
  policies:             One row per (city, year, half), revisioned
  policy_lines:         Floor/cap/rate per insurance of a policy
  baselines:            One row per (employee, reference year)
  salary_records:       One row per (employee, salary month)
  contribution_results: One row per (employee, month, basis)
  contribution_lines:   Per-insurance figures of a result row

MIGRATION:
  New() applies the ordered migrations list inside one transaction each and
  records the version. There is exactly one path from an empty file to the
  current schema; never edit a released migration, append a new one.

REPLACE SEMANTICS:
  ReplaceResults deletes and inserts inside one SQL transaction. Lines are
  removed with their parent through ON DELETE CASCADE.

CONCURRENCY:
  Uses sync.RWMutex plus a single connection. ":memory:" databases are
  per-connection, so the pool is pinned to one.

USAGE:
  store, err := sqlite.New("./data/contrib.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/contribution-engine/contrib"
)

// Store implements all contrib store interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ contrib.PolicyStore   = (*Store)(nil)
	_ contrib.BaselineStore = (*Store)(nil)
	_ contrib.SalaryStore   = (*Store)(nil)
	_ contrib.ResultStore   = (*Store)(nil)
)

// New opens the database and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Stores returns s wired into every slot.
func (s *Store) Stores() contrib.Stores {
	return contrib.Stores{Policies: s, Baselines: s, Salaries: s, Results: s}
}

// =============================================================================
// MIGRATIONS
// =============================================================================

var migrations = []string{
	// 1: initial schema
	`
	CREATE TABLE policies (
		city TEXT NOT NULL,
		year INTEGER NOT NULL,
		half TEXT NOT NULL CHECK (half IN ('H1', 'H2')),
		effective_from TEXT NOT NULL,
		effective_to TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		revision INTEGER NOT NULL DEFAULT 1,
		published_at TEXT NOT NULL,
		PRIMARY KEY (city, year, half)
	);

	CREATE TABLE policy_lines (
		city TEXT NOT NULL,
		year INTEGER NOT NULL,
		half TEXT NOT NULL,
		insurance TEXT NOT NULL,
		base_floor TEXT,
		base_cap TEXT,
		rate TEXT NOT NULL,
		PRIMARY KEY (city, year, half, insurance),
		FOREIGN KEY (city, year, half) REFERENCES policies(city, year, half) ON DELETE CASCADE
	);

	CREATE TABLE baselines (
		employee_id TEXT NOT NULL,
		reference_year INTEGER NOT NULL,
		hire_date TEXT NOT NULL,
		avg_wage_wide TEXT,
		avg_wage_narrow TEXT,
		first_month_wage_wide TEXT,
		first_month_wage_narrow TEXT,
		first_insurance_month INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, reference_year)
	);

	CREATE TABLE salary_records (
		employee_id TEXT NOT NULL,
		salary_month INTEGER NOT NULL,
		hire_date TEXT NOT NULL,
		basic_salary TEXT NOT NULL,
		gross_salary TEXT NOT NULL,
		PRIMARY KEY (employee_id, salary_month)
	);

	CREATE INDEX idx_salary_records_month
		ON salary_records(salary_month, employee_id);

	CREATE TABLE contribution_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id TEXT NOT NULL,
		calculation_month INTEGER NOT NULL,
		basis TEXT NOT NULL CHECK (basis IN ('wide', 'narrow')),
		employee_category TEXT NOT NULL,
		reference_wage_base TEXT NOT NULL,
		reference_source TEXT NOT NULL,
		reference_wage_category TEXT NOT NULL,
		reference_fallback BOOLEAN NOT NULL DEFAULT FALSE,
		theoretical_total TEXT NOT NULL,
		city TEXT NOT NULL,
		policy_revision INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		computed_at TEXT NOT NULL,
		UNIQUE (employee_id, calculation_month, basis)
	);

	CREATE INDEX idx_contribution_results_month
		ON contribution_results(calculation_month);

	CREATE TABLE contribution_lines (
		result_id INTEGER NOT NULL REFERENCES contribution_results(id) ON DELETE CASCADE,
		insurance TEXT NOT NULL,
		base_floor TEXT NOT NULL,
		base_cap TEXT NOT NULL,
		adjusted_base TEXT NOT NULL,
		rate TEXT NOT NULL,
		payment TEXT NOT NULL,
		PRIMARY KEY (result_id, insurance)
	);
	`,
}

// SchemaVersion is the version New() migrates to.
func SchemaVersion() int { return len(migrations) }

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return err
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
				return fmt.Errorf("migration %d: %w", version, err)
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
				version, time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// AppliedVersion reports the highest applied migration.
func (s *Store) AppliedVersion(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var v int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// POLICY STORE (contrib.PolicyStore)
// =============================================================================

// GetPolicy loads and validates the rule for a half-year.
func (s *Store) GetPolicy(ctx context.Context, city string, year int, half contrib.HalfYear) (contrib.PolicyRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, found, err := s.loadPolicy(ctx, s.db, city, year, half)
	if err != nil {
		return contrib.PolicyRule{}, err
	}
	if !found {
		return contrib.PolicyRule{}, &contrib.PolicyNotFoundError{City: city, Year: year, Half: half}
	}
	if err := rule.Validate(); err != nil {
		return contrib.PolicyRule{}, err
	}
	return rule, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) loadPolicy(ctx context.Context, q querier, city string, year int, half contrib.HalfYear) (contrib.PolicyRule, bool, error) {
	rule := contrib.PolicyRule{City: city, Year: year, Half: half}
	var from, to string
	err := q.QueryRowContext(ctx, `
		SELECT effective_from, effective_to, schema_version, revision
		FROM policies
		WHERE city = ? AND year = ? AND half = ?
	`, city, year, string(half)).Scan(&from, &to, &rule.SchemaVersion, &rule.Revision)
	if err == sql.ErrNoRows {
		return contrib.PolicyRule{}, false, nil
	}
	if err != nil {
		return contrib.PolicyRule{}, false, fmt.Errorf("failed to load policy: %w", err)
	}
	if rule.EffectiveFrom, err = contrib.ParseDate(from); err != nil {
		return contrib.PolicyRule{}, false, fmt.Errorf("policy effective_from: %w", err)
	}
	if rule.EffectiveTo, err = contrib.ParseDate(to); err != nil {
		return contrib.PolicyRule{}, false, fmt.Errorf("policy effective_to: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT insurance, base_floor, base_cap, rate
		FROM policy_lines
		WHERE city = ? AND year = ? AND half = ?
	`, city, year, string(half))
	if err != nil {
		return contrib.PolicyRule{}, false, fmt.Errorf("failed to load policy lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ins string
		var r contrib.InsuranceRule
		if err := rows.Scan(&ins, &r.Floor, &r.Cap, &r.Rate); err != nil {
			return contrib.PolicyRule{}, false, err
		}
		switch contrib.Insurance(ins) {
		case contrib.Pension:
			rule.Pension = r
		case contrib.Medical:
			rule.Medical = r
		case contrib.Unemployment:
			rule.Unemployment = r
		case contrib.Injury:
			rule.Injury = r
		case contrib.Maternity:
			rule.Maternity = &r
		case contrib.HousingFund:
			rule.HousingFund = r
		default:
			return contrib.PolicyRule{}, false, fmt.Errorf("%w: unknown insurance %q", contrib.ErrInvalidPolicy, ins)
		}
	}
	return rule, true, rows.Err()
}

// SavePolicy publishes a rule. Re-publishing identical content is a no-op.
func (s *Store) SavePolicy(ctx context.Context, rule contrib.PolicyRule) error {
	rule = rule.WithDefaults()
	if err := rule.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		existing, found, err := s.loadPolicy(ctx, tx, rule.City, rule.Year, rule.Half)
		if err != nil {
			return err
		}
		if found {
			if samePolicy(existing, rule) {
				return nil
			}
			return fmt.Errorf("%w: %s %s", contrib.ErrPolicyPublished, rule.City, rule.Period())
		}
		rule.Revision = 1
		return insertPolicy(ctx, tx, rule)
	})
}

// SupersedePolicy replaces a published rule and bumps its revision.
func (s *Store) SupersedePolicy(ctx context.Context, rule contrib.PolicyRule) (contrib.PolicyRule, error) {
	rule = rule.WithDefaults()
	if err := rule.Validate(); err != nil {
		return contrib.PolicyRule{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, found, err := s.loadPolicy(ctx, tx, rule.City, rule.Year, rule.Half)
		if err != nil {
			return err
		}
		if !found {
			return &contrib.PolicyNotFoundError{City: rule.City, Year: rule.Year, Half: rule.Half}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM policies WHERE city = ? AND year = ? AND half = ?`,
			rule.City, rule.Year, string(rule.Half)); err != nil {
			return err
		}
		rule.Revision = existing.Revision + 1
		return insertPolicy(ctx, tx, rule)
	})
	if err != nil {
		return contrib.PolicyRule{}, err
	}
	return rule, nil
}

func insertPolicy(ctx context.Context, tx *sql.Tx, rule contrib.PolicyRule) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO policies (city, year, half, effective_from, effective_to, schema_version, revision, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rule.City, rule.Year, string(rule.Half),
		rule.EffectiveFrom.Format(contrib.DateLayout),
		rule.EffectiveTo.Format(contrib.DateLayout),
		rule.SchemaVersion, rule.Revision,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert policy: %w", err)
	}

	for _, line := range rule.Lines() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO policy_lines (city, year, half, insurance, base_floor, base_cap, rate)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, rule.City, rule.Year, string(rule.Half), string(line.Insurance),
			line.Rule.Floor, line.Rule.Cap, line.Rule.Rate.String())
		if err != nil {
			return fmt.Errorf("failed to insert policy line %s: %w", line.Insurance, err)
		}
	}
	return nil
}

func samePolicy(a, b contrib.PolicyRule) bool {
	if !a.EffectiveFrom.Equal(b.EffectiveFrom) || !a.EffectiveTo.Equal(b.EffectiveTo) {
		return false
	}
	la, lb := a.Lines(), b.Lines()
	if len(la) != len(lb) {
		return false
	}
	for i := range la {
		ra, rb := la[i].Rule, lb[i].Rule
		if la[i].Insurance != lb[i].Insurance ||
			!ra.Rate.Equal(rb.Rate) ||
			!sameNull(ra.Floor, rb.Floor) ||
			!sameNull(ra.Cap, rb.Cap) {
			return false
		}
	}
	return true
}

func sameNull(a, b decimal.NullDecimal) bool {
	return a.Valid == b.Valid && a.Decimal.Equal(b.Decimal)
}

// =============================================================================
// BASELINE STORE (contrib.BaselineStore)
// =============================================================================

// GetBaselines loads baselines for the given employees and reference year.
func (s *Store) GetBaselines(ctx context.Context, referenceYear int, ids []contrib.EmployeeID) (map[contrib.EmployeeID]contrib.EmployeeBaseline, error) {
	out := make(map[contrib.EmployeeID]contrib.EmployeeBaseline, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	args := []any{referenceYear}
	for _, id := range ids {
		args = append(args, string(id))
	}
	query := `
		SELECT employee_id, hire_date, avg_wage_wide, avg_wage_narrow,
		       first_month_wage_wide, first_month_wage_narrow, first_insurance_month
		FROM baselines
		WHERE reference_year = ? AND employee_id IN (` + placeholders(len(ids)) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query baselines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		b := contrib.EmployeeBaseline{ReferenceYear: referenceYear}
		var id, hire string
		var firstMonth int
		if err := rows.Scan(&id, &hire, &b.AvgWageWide, &b.AvgWageNarrow,
			&b.FirstMonthWageWide, &b.FirstMonthWageNarrow, &firstMonth); err != nil {
			return nil, err
		}
		b.EmployeeID = contrib.EmployeeID(id)
		if b.HireDate, err = contrib.ParseDate(hire); err != nil {
			return nil, fmt.Errorf("baseline %s hire_date: %w", id, err)
		}
		b.FirstInsuranceMonth = contrib.MonthFromInt(firstMonth)
		out[b.EmployeeID] = b
	}
	return out, rows.Err()
}

// SaveBaselines upserts baselines. Nothing is written if any row fails
// validation.
func (s *Store) SaveBaselines(ctx context.Context, baselines []contrib.EmployeeBaseline) error {
	for _, b := range baselines {
		if err := b.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, b := range baselines {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO baselines (employee_id, reference_year, hire_date, avg_wage_wide, avg_wage_narrow,
				                       first_month_wage_wide, first_month_wage_narrow, first_insurance_month, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (employee_id, reference_year) DO UPDATE SET
					hire_date = excluded.hire_date,
					avg_wage_wide = excluded.avg_wage_wide,
					avg_wage_narrow = excluded.avg_wage_narrow,
					first_month_wage_wide = excluded.first_month_wage_wide,
					first_month_wage_narrow = excluded.first_month_wage_narrow,
					first_insurance_month = excluded.first_insurance_month,
					updated_at = excluded.updated_at
			`, string(b.EmployeeID), b.ReferenceYear, b.HireDate.Format(contrib.DateLayout),
				b.AvgWageWide, b.AvgWageNarrow, b.FirstMonthWageWide, b.FirstMonthWageNarrow,
				b.InsuranceStart().Int(), now)
			if err != nil {
				return fmt.Errorf("failed to save baseline %s: %w", b.EmployeeID, err)
			}
		}
		return nil
	})
}

// =============================================================================
// SALARY STORE (contrib.SalaryStore)
// =============================================================================

// SaveSalaries upserts normalized payroll rows.
func (s *Store) SaveSalaries(ctx context.Context, records []contrib.SalaryRecord) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO salary_records (employee_id, salary_month, hire_date, basic_salary, gross_salary)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (employee_id, salary_month) DO UPDATE SET
					hire_date = excluded.hire_date,
					basic_salary = excluded.basic_salary,
					gross_salary = excluded.gross_salary
			`, string(r.EmployeeID), r.SalaryMonth.Int(), r.HireDate.Format(contrib.DateLayout),
				r.BasicSalary.String(), r.GrossSalary.String())
			if err != nil {
				return fmt.Errorf("failed to save salary %s/%s: %w", r.EmployeeID, r.SalaryMonth, err)
			}
		}
		return nil
	})
}

// LoadSalaries returns payroll rows with salary_month in [from, to].
func (s *Store) LoadSalaries(ctx context.Context, from, to contrib.Month) ([]contrib.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT employee_id, salary_month, hire_date, basic_salary, gross_salary
		FROM salary_records
		WHERE salary_month >= ? AND salary_month <= ?
		ORDER BY employee_id ASC, salary_month ASC
	`, from.Int(), to.Int())
	if err != nil {
		return nil, fmt.Errorf("failed to query salaries: %w", err)
	}
	defer rows.Close()

	var out []contrib.SalaryRecord
	for rows.Next() {
		var r contrib.SalaryRecord
		var id, hire string
		var month int
		if err := rows.Scan(&id, &month, &hire, &r.BasicSalary, &r.GrossSalary); err != nil {
			return nil, err
		}
		r.EmployeeID = contrib.EmployeeID(id)
		r.SalaryMonth = contrib.MonthFromInt(month)
		if r.HireDate, err = contrib.ParseDate(hire); err != nil {
			return nil, fmt.Errorf("salary %s hire_date: %w", id, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EmployeeIDsWithSalaryInRange returns distinct employees with payroll in range.
func (s *Store) EmployeeIDsWithSalaryInRange(ctx context.Context, from, to contrib.Month) ([]contrib.EmployeeID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT employee_id
		FROM salary_records
		WHERE salary_month >= ? AND salary_month <= ?
		ORDER BY employee_id ASC
	`, from.Int(), to.Int())
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var ids []contrib.EmployeeID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, contrib.EmployeeID(id))
	}
	return ids, rows.Err()
}

// =============================================================================
// RESULT STORE (contrib.ResultStore)
// =============================================================================

// ReplaceResults deletes the employee's rows for the period and bases, then
// inserts rows, in one transaction.
func (s *Store) ReplaceResults(ctx context.Context, employeeID contrib.EmployeeID, period contrib.Period, bases []contrib.Basis, rows []contrib.ResultRow) error {
	for _, r := range rows {
		if r.EmployeeID != employeeID || !period.Contains(r.Month) {
			return fmt.Errorf("result row %s/%s outside replace scope %s/%s", r.EmployeeID, r.Month, employeeID, period)
		}
	}
	if len(bases) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		args := []any{string(employeeID), period.Start().Int(), period.End().Int()}
		for _, b := range bases {
			args = append(args, string(b))
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM contribution_results
			WHERE employee_id = ? AND calculation_month >= ? AND calculation_month <= ?
			  AND basis IN (`+placeholders(len(bases))+`)`, args...); err != nil {
			return fmt.Errorf("failed to delete results: %w", err)
		}

		for _, r := range rows {
			if err := insertResult(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertResult(ctx context.Context, tx *sql.Tx, r contrib.ResultRow) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO contribution_results
		(employee_id, calculation_month, basis, employee_category, reference_wage_base, reference_source,
		 reference_wage_category, reference_fallback, theoretical_total, city, policy_revision, run_id, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(r.EmployeeID), r.Month.Int(), string(r.Basis), string(r.Category),
		r.ReferenceWage.String(), string(r.ReferenceSource), r.ReferenceLabel(), r.ReferenceFallback,
		r.Total.String(), r.City, r.PolicyRevision, r.RunID, r.ComputedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert result %s/%s/%s: %w", r.EmployeeID, r.Month, r.Basis, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, l := range r.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO contribution_lines (result_id, insurance, base_floor, base_cap, adjusted_base, rate, payment)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, string(l.Insurance), l.BaseFloor.String(), l.BaseCap.String(),
			l.AdjustedBase.String(), l.Rate.String(), l.Payment.String())
		if err != nil {
			return fmt.Errorf("failed to insert result line %s: %w", l.Insurance, err)
		}
	}
	return nil
}

// resultIDChunk bounds the employee IDs bound into one ListResults query,
// well under SQLite's host-parameter limit.
const resultIDChunk = 500

// ListResults returns stored rows matching the filter. Large employee
// filters are queried in sorted chunks, so the concatenation keeps the
// employee, month, basis order.
func (s *Store) ListResults(ctx context.Context, filter contrib.ResultFilter) ([]contrib.ResultRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(filter.EmployeeIDs) == 0 {
		return s.listResults(ctx, nil, filter)
	}

	ids := make([]string, 0, len(filter.EmployeeIDs))
	seen := make(map[contrib.EmployeeID]bool, len(filter.EmployeeIDs))
	for _, id := range filter.EmployeeIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, string(id))
		}
	}
	sort.Strings(ids)

	var out []contrib.ResultRow
	for start := 0; start < len(ids); start += resultIDChunk {
		end := min(start+resultIDChunk, len(ids))
		rows, err := s.listResults(ctx, ids[start:end], filter)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// listResults runs one query. ids, when non-empty, replaces the filter's
// employee list. Callers hold s.mu.
func (s *Store) listResults(ctx context.Context, ids []string, filter contrib.ResultFilter) ([]contrib.ResultRow, error) {
	var where []string
	var args []any
	if len(ids) > 0 {
		where = append(where, "employee_id IN ("+placeholders(len(ids))+")")
		for _, id := range ids {
			args = append(args, id)
		}
	}
	if filter.From.Valid() {
		where = append(where, "calculation_month >= ?")
		args = append(args, filter.From.Int())
	}
	if filter.To.Valid() {
		where = append(where, "calculation_month <= ?")
		args = append(args, filter.To.Int())
	}
	if filter.Basis != "" {
		where = append(where, "basis = ?")
		args = append(args, string(filter.Basis))
	}

	query := `
		SELECT id, employee_id, calculation_month, basis, employee_category, reference_wage_base,
		       reference_source, reference_fallback, theoretical_total, city, policy_revision, run_id, computed_at
		FROM contribution_results`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY employee_id ASC, calculation_month ASC, basis DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}

	var out []contrib.ResultRow
	var resultIDs []int64
	for rows.Next() {
		var r contrib.ResultRow
		var id int64
		var emp, basis, category, source, computedAt string
		var month int
		if err := rows.Scan(&id, &emp, &month, &basis, &category, &r.ReferenceWage, &source,
			&r.ReferenceFallback, &r.Total, &r.City, &r.PolicyRevision, &r.RunID, &computedAt); err != nil {
			rows.Close()
			return nil, err
		}
		r.EmployeeID = contrib.EmployeeID(emp)
		r.Month = contrib.MonthFromInt(month)
		r.Basis = contrib.Basis(basis)
		r.Category = contrib.Category(category)
		r.ReferenceSource = contrib.ReferenceSource(source)
		if r.ComputedAt, err = time.Parse(time.RFC3339, computedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("result %s/%s/%s computed_at: %w", emp, r.Month, basis, err)
		}
		out = append(out, r)
		resultIDs = append(resultIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i, id := range resultIDs {
		lines, err := s.loadLines(ctx, id)
		if err != nil {
			return nil, err
		}
		out[i].Lines = lines
	}
	return out, nil
}

func (s *Store) loadLines(ctx context.Context, resultID int64) ([]contrib.Line, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT insurance, base_floor, base_cap, adjusted_base, rate, payment
		FROM contribution_lines
		WHERE result_id = ?
	`, resultID)
	if err != nil {
		return nil, fmt.Errorf("failed to query result lines: %w", err)
	}
	defer rows.Close()

	byInsurance := make(map[contrib.Insurance]contrib.Line)
	for rows.Next() {
		var l contrib.Line
		var ins string
		if err := rows.Scan(&ins, &l.BaseFloor, &l.BaseCap, &l.AdjustedBase, &l.Rate, &l.Payment); err != nil {
			return nil, err
		}
		l.Insurance = contrib.Insurance(ins)
		byInsurance[l.Insurance] = l
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines := make([]contrib.Line, 0, len(byInsurance))
	for _, ins := range contrib.InsuranceOrder {
		if l, ok := byInsurance[ins]; ok {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
