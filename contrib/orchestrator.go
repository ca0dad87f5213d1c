/*
orchestrator.go - Batch driver for one half-year

PURPOSE:
  Runs the engine over employees x months x bases for a period and hands
  the rows to the ResultStore:

    1. Load the single PolicyRule (fail fast, no default policy)
    2. Resolve the employee set (explicit, or everyone with payroll in range)
    3. Load baselines in chunks, chunks in parallel
    4. Per employee and basis: month filter -> Classify -> SelectReference
       -> Calculate -> ResultRow
    5. Per employee: ReplaceResults (delete-then-insert, atomic)

ERROR POLICY:
  Configuration errors abort the run before anything is written.
  Employee data errors are recorded (Skips, Missing) and the run continues.
  Store errors abort the run; every replace already committed stays whole.

CONCURRENCY:
  The math is sequential and pure. Only store I/O fans out, bounded by
  LoadParallelism. Employees are independent, so write order does not
  matter.
*/
package contrib

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBaselineChunkSize = 500
	DefaultLoadParallelism   = 4
)

// Stores bundles the collaborators a run needs.
type Stores struct {
	Policies  PolicyStore
	Baselines BaselineStore
	Salaries  SalaryStore
	Results   ResultStore
}

// Options configure an Orchestrator. Zero values pick defaults.
type Options struct {
	City              string
	BaselineChunkSize int
	LoadParallelism   int
	// Logger defaults to a logger that discards everything.
	Logger logrus.FieldLogger

	// Clock and NewRunID are overridable for tests.
	Clock    func() time.Time
	NewRunID func() string
}

// Orchestrator drives batch runs. Safe for concurrent Run calls as long as
// the stores are.
type Orchestrator struct {
	stores Stores
	opts   Options
}

func NewOrchestrator(stores Stores, opts Options) *Orchestrator {
	if opts.BaselineChunkSize <= 0 {
		opts.BaselineChunkSize = DefaultBaselineChunkSize
	}
	if opts.LoadParallelism <= 0 {
		opts.LoadParallelism = DefaultLoadParallelism
	}
	if opts.Logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		opts.Logger = discard
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Orchestrator{stores: stores, opts: opts}
}

// =============================================================================
// REQUEST / RESULT
// =============================================================================

// RunRequest is the recompute trigger: a period and an employee set.
type RunRequest struct {
	Period Period
	// EmployeeIDs defaults to everyone with payroll in the period.
	EmployeeIDs []EmployeeID
	// Bases defaults to AllBases.
	Bases []Basis
}

// MissingReference is one entry of the operator-facing exclusion report.
type MissingReference struct {
	EmployeeID      EmployeeID      `json:"employee_id"`
	HireDate        string          `json:"hire_date,omitempty"`
	Basis           Basis           `json:"basis,omitempty"`
	PreferredSource ReferenceSource `json:"preferred_source,omitempty"`
	Reason          string          `json:"reason"`
}

// Skip records a month (or whole employee, Month zero) left out of output.
type Skip struct {
	EmployeeID EmployeeID `json:"employee_id"`
	Month      string     `json:"month,omitempty"`
	Basis      Basis      `json:"basis,omitempty"`
	Reason     string     `json:"reason"`
}

// Summary is always reported at the end of a run.
type Summary struct {
	EmployeesProcessed int `json:"employees_processed"`
	RowsWritten        int `json:"rows_written"`
	EmployeesSkipped   int `json:"employees_skipped"`
	FallbackRows       int `json:"fallback_rows"`
}

type RunResult struct {
	RunID   string             `json:"run_id"`
	City    string             `json:"city"`
	Period  string             `json:"period"`
	Rows    []ResultRow        `json:"-"`
	Missing []MissingReference `json:"missing"`
	Skips   []Skip             `json:"skips"`
	Summary Summary            `json:"summary"`
}

// =============================================================================
// RUN
// =============================================================================

// Run computes and persists results for the request.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	if err := req.Period.Validate(); err != nil {
		return RunResult{}, err
	}
	bases := req.Bases
	if len(bases) == 0 {
		bases = AllBases
	}
	for _, b := range bases {
		if _, err := ParseBasis(string(b)); err != nil {
			return RunResult{}, err
		}
	}

	result := RunResult{
		RunID:  o.opts.NewRunID(),
		City:   o.opts.City,
		Period: req.Period.String(),
	}
	log := o.opts.Logger.WithFields(logrus.Fields{
		"run_id": result.RunID,
		"city":   o.opts.City,
		"period": result.Period,
	})

	policy, err := o.loadPolicy(ctx, req.Period)
	if err != nil {
		log.WithError(err).Error("policy lookup failed, aborting run")
		return RunResult{}, err
	}

	ids, err := o.resolveEmployees(ctx, req)
	if err != nil {
		return RunResult{}, err
	}
	log.WithField("employees", len(ids)).Info("contribution run started")

	baselines, err := o.loadBaselines(ctx, req.Period.ReferenceYear(), ids)
	if err != nil {
		return RunResult{}, err
	}

	now := o.opts.Clock()
	perEmployee := make(map[EmployeeID][]ResultRow, len(ids))
	for _, id := range ids {
		b, ok := baselines[id]
		if !ok {
			result.Missing = append(result.Missing, MissingReference{
				EmployeeID: id,
				Reason:     ErrBaselineNotFound.Error(),
			})
			result.Skips = append(result.Skips, Skip{EmployeeID: id, Reason: ErrBaselineNotFound.Error()})
			result.Summary.EmployeesSkipped++
			perEmployee[id] = nil
			continue
		}
		if err := b.Validate(); err != nil {
			result.Missing = append(result.Missing, MissingReference{EmployeeID: id, Reason: err.Error()})
			result.Skips = append(result.Skips, Skip{EmployeeID: id, Reason: err.Error()})
			result.Summary.EmployeesSkipped++
			perEmployee[id] = nil
			continue
		}

		out := computeEmployee(policy, req.Period, b, bases)
		for i := range out.rows {
			out.rows[i].City = policy.City
			out.rows[i].PolicyRevision = policy.Revision
			out.rows[i].RunID = result.RunID
			out.rows[i].ComputedAt = now
		}
		for _, f := range out.fallbacks {
			log.WithFields(logrus.Fields{
				"employee_id": id,
				"basis":       f.basis,
				"preferred":   f.preferred,
				"used":        f.used,
			}).Warn("reference fallback applied")
		}

		result.Missing = append(result.Missing, out.missing...)
		result.Skips = append(result.Skips, out.skips...)
		if len(out.rows) == 0 && (len(out.missing) > 0 || len(out.skips) > 0) {
			result.Summary.EmployeesSkipped++
		} else {
			result.Summary.EmployeesProcessed++
		}
		result.Summary.FallbackRows += out.fallbackRows
		perEmployee[id] = out.rows
		result.Rows = append(result.Rows, out.rows...)
	}

	if err := o.persist(ctx, req.Period, bases, ids, perEmployee); err != nil {
		log.WithError(err).Error("persisting results failed")
		return RunResult{}, err
	}
	result.Summary.RowsWritten = len(result.Rows)

	for _, s := range result.Skips {
		log.WithFields(logrus.Fields{
			"employee_id": s.EmployeeID,
			"month":       s.Month,
			"basis":       s.Basis,
		}).Warn(s.Reason)
	}
	log.WithFields(logrus.Fields{
		"employees_processed": result.Summary.EmployeesProcessed,
		"rows_written":        result.Summary.RowsWritten,
		"employees_skipped":   result.Summary.EmployeesSkipped,
		"fallback_rows":       result.Summary.FallbackRows,
	}).Info("contribution run finished")

	return result, nil
}

func (o *Orchestrator) loadPolicy(ctx context.Context, period Period) (PolicyRule, error) {
	policy, err := o.stores.Policies.GetPolicy(ctx, o.opts.City, period.Year, period.Half)
	if err != nil {
		return PolicyRule{}, err
	}
	if err := policy.Validate(); err != nil {
		return PolicyRule{}, err
	}
	return policy, nil
}

func (o *Orchestrator) resolveEmployees(ctx context.Context, req RunRequest) ([]EmployeeID, error) {
	ids := req.EmployeeIDs
	if len(ids) == 0 {
		found, err := o.stores.Salaries.EmployeeIDsWithSalaryInRange(ctx, req.Period.Start(), req.Period.End())
		if err != nil {
			return nil, fmt.Errorf("discover employees for %s: %w", req.Period, err)
		}
		ids = found
	}

	seen := make(map[EmployeeID]bool, len(ids))
	out := make([]EmployeeID, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// loadBaselines fetches in chunks of BaselineChunkSize, LoadParallelism
// chunks at a time.
func (o *Orchestrator) loadBaselines(ctx context.Context, referenceYear int, ids []EmployeeID) (map[EmployeeID]EmployeeBaseline, error) {
	chunks := chunkIDs(ids, o.opts.BaselineChunkSize)
	parts := make([]map[EmployeeID]EmployeeBaseline, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.LoadParallelism)
	for i, chunk := range chunks {
		g.Go(func() error {
			m, err := o.stores.Baselines.GetBaselines(gctx, referenceYear, chunk)
			if err != nil {
				return fmt.Errorf("load baselines (chunk %d): %w", i, err)
			}
			parts[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[EmployeeID]EmployeeBaseline, len(ids))
	for _, m := range parts {
		for id, b := range m {
			out[id] = b
		}
	}
	return out, nil
}

func (o *Orchestrator) persist(ctx context.Context, period Period, bases []Basis, ids []EmployeeID, rows map[EmployeeID][]ResultRow) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.LoadParallelism)
	for _, id := range ids {
		g.Go(func() error {
			if err := o.stores.Results.ReplaceResults(gctx, id, period, bases, rows[id]); err != nil {
				return fmt.Errorf("replace results for %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func chunkIDs(ids []EmployeeID, size int) [][]EmployeeID {
	var chunks [][]EmployeeID
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// =============================================================================
// PER-EMPLOYEE COMPUTATION (pure)
// =============================================================================

type fallbackNote struct {
	basis     Basis
	preferred ReferenceSource
	used      ReferenceSource
}

type employeeOutcome struct {
	rows         []ResultRow
	missing      []MissingReference
	skips        []Skip
	fallbacks    []fallbackNote
	fallbackRows int
}

func computeEmployee(policy PolicyRule, period Period, b EmployeeBaseline, bases []Basis) employeeOutcome {
	var out employeeOutcome
	start := b.InsuranceStart()
	months := period.MonthsFrom(start)
	if len(months) == 0 {
		out.skips = append(out.skips, Skip{
			EmployeeID: b.EmployeeID,
			Reason:     fmt.Sprintf("%s: insured from %s, period ends %s", ErrNotInsuredInPeriod, start, period.End()),
		})
		return out
	}

	for _, basis := range bases {
		var rows []ResultRow
		var note *fallbackNote
		fallbackRows := 0
		excluded := false

		for _, m := range months {
			category, err := Classify(b.HireDate, m)
			if err != nil {
				out.skips = append(out.skips, Skip{EmployeeID: b.EmployeeID, Month: m.String(), Basis: basis, Reason: err.Error()})
				continue
			}

			ref, err := SelectReference(category, basis, b)
			if err != nil {
				out.missing = append(out.missing, MissingReference{
					EmployeeID:      b.EmployeeID,
					HireDate:        b.HireDate.Format(DateLayout),
					Basis:           basis,
					PreferredSource: PreferredSource(category),
					Reason:          err.Error(),
				})
				excluded = true
				break
			}
			if ref.Fallback {
				fallbackRows++
				if note == nil {
					note = &fallbackNote{basis: basis, preferred: ref.Preferred, used: ref.Source}
				}
			}

			c := Calculate(policy, ref.Amount)
			rows = append(rows, ResultRow{
				EmployeeID:        b.EmployeeID,
				Month:             m,
				Basis:             basis,
				Category:          category,
				ReferenceWage:     c.Reference,
				ReferenceSource:   ref.Source,
				ReferenceFallback: ref.Fallback,
				Lines:             c.Lines,
				Total:             c.Total,
			})
		}

		if excluded {
			continue
		}
		if note != nil {
			out.fallbacks = append(out.fallbacks, *note)
		}
		out.fallbackRows += fallbackRows
		out.rows = append(out.rows, rows...)
	}
	return out
}
