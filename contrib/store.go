/*
store.go - Persistence interfaces for policies, baselines and results

PURPOSE:
  Defines the boundary between the engine and its collaborators. The
  engine reads policies, baselines and salary activity, and writes result
  rows. Implementations:
  - store/sqlite/sqlite.go: SQLite, versioned schema
  - contrib/store/memory.go: in-memory, for tests and dry runs

REPLACE, NEVER MERGE:
  Result rows are immutable. Recomputing an employee's period deletes every
  row for (employee, period months, bases) and inserts the new set in one
  atomic step. A delete without the matching insert is never visible, and
  retrying a replace never duplicates rows.

FRESH READS:
  There is no shared cache. Every batch run re-reads its policy and
  baselines.
*/
package contrib

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RESULT ROW - One employee x month x basis
// =============================================================================

// ResultRow is the persisted outcome of one calculation. Policy and baseline
// figures are copied by value; they can legitimately change between runs.
type ResultRow struct {
	EmployeeID EmployeeID
	Month      Month
	Basis      Basis
	Category   Category

	ReferenceWage     decimal.Decimal
	ReferenceSource   ReferenceSource
	ReferenceFallback bool

	Lines []Line
	Total decimal.Decimal

	City           string
	PolicyRevision int
	RunID          string
	ComputedAt     time.Time
}

// ReferenceLabel is the stored reference_wage_category text.
func (r ResultRow) ReferenceLabel() string { return r.ReferenceSource.Label() }

// Line returns the line for an insurance, if present.
func (r ResultRow) Line(i Insurance) (Line, bool) {
	return Contribution{Lines: r.Lines}.Line(i)
}

// ResultFilter narrows ListResults. Zero values match everything.
type ResultFilter struct {
	EmployeeIDs []EmployeeID
	From        Month
	To          Month
	Basis       Basis
}

// =============================================================================
// STORES
// =============================================================================

// PolicyStore resolves the single published rule for a half-year.
type PolicyStore interface {
	// GetPolicy returns ErrPolicyNotFound (as *PolicyNotFoundError) when no
	// rule exists. Returned rules have passed Validate.
	GetPolicy(ctx context.Context, city string, year int, half HalfYear) (PolicyRule, error)

	// SavePolicy publishes a rule. Re-saving an identical rule is a no-op;
	// a different rule for a published key returns ErrPolicyPublished.
	SavePolicy(ctx context.Context, rule PolicyRule) error

	// SupersedePolicy replaces a published rule and bumps its revision.
	// Results computed under the old revision must be recomputed.
	SupersedePolicy(ctx context.Context, rule PolicyRule) (PolicyRule, error)
}

// BaselineStore resolves precomputed reference figures.
type BaselineStore interface {
	// GetBaselines returns the baselines found; absent employees are simply
	// missing from the map.
	GetBaselines(ctx context.Context, referenceYear int, ids []EmployeeID) (map[EmployeeID]EmployeeBaseline, error)

	// SaveBaselines upserts baselines for their reference year.
	SaveBaselines(ctx context.Context, baselines []EmployeeBaseline) error
}

// SalaryStore holds normalized payroll rows.
type SalaryStore interface {
	SaveSalaries(ctx context.Context, records []SalaryRecord) error

	// LoadSalaries returns rows with SalaryMonth in [from, to], ordered by
	// employee then month.
	LoadSalaries(ctx context.Context, from, to Month) ([]SalaryRecord, error)

	// EmployeeIDsWithSalaryInRange scopes a batch to employees with payroll
	// activity in [from, to]. Sorted, distinct.
	EmployeeIDsWithSalaryInRange(ctx context.Context, from, to Month) ([]EmployeeID, error)
}

// ResultStore persists computed rows.
type ResultStore interface {
	// ReplaceResults atomically deletes every row for the employee within
	// the period and bases, then inserts rows. rows may be empty.
	ReplaceResults(ctx context.Context, employeeID EmployeeID, period Period, bases []Basis, rows []ResultRow) error

	// ListResults returns rows ordered by employee, month, basis.
	ListResults(ctx context.Context, filter ResultFilter) ([]ResultRow, error)
}
