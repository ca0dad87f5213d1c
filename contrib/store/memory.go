// Package store provides in-memory implementations of the contrib stores.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/contribution-engine/contrib"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements every contrib store interface behind one mutex, so a
// ReplaceResults call is atomic with respect to readers.
type Memory struct {
	mu        sync.RWMutex
	policies  map[policyKey]contrib.PolicyRule
	baselines map[baselineKey]contrib.EmployeeBaseline
	salaries  map[salaryKey]contrib.SalaryRecord
	results   map[resultKey]contrib.ResultRow
}

type policyKey struct {
	City string
	Year int
	Half contrib.HalfYear
}

type baselineKey struct {
	EmployeeID    contrib.EmployeeID
	ReferenceYear int
}

type salaryKey struct {
	EmployeeID contrib.EmployeeID
	Month      int
}

type resultKey struct {
	EmployeeID contrib.EmployeeID
	Month      int
	Basis      contrib.Basis
}

func NewMemory() *Memory {
	return &Memory{
		policies:  make(map[policyKey]contrib.PolicyRule),
		baselines: make(map[baselineKey]contrib.EmployeeBaseline),
		salaries:  make(map[salaryKey]contrib.SalaryRecord),
		results:   make(map[resultKey]contrib.ResultRow),
	}
}

var (
	_ contrib.PolicyStore   = (*Memory)(nil)
	_ contrib.BaselineStore = (*Memory)(nil)
	_ contrib.SalaryStore   = (*Memory)(nil)
	_ contrib.ResultStore   = (*Memory)(nil)
)

// Stores returns m wired into every slot.
func (m *Memory) Stores() contrib.Stores {
	return contrib.Stores{Policies: m, Baselines: m, Salaries: m, Results: m}
}

// =============================================================================
// POLICIES
// =============================================================================

func (m *Memory) GetPolicy(_ context.Context, city string, year int, half contrib.HalfYear) (contrib.PolicyRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[policyKey{city, year, half}]
	if !ok {
		return contrib.PolicyRule{}, &contrib.PolicyNotFoundError{City: city, Year: year, Half: half}
	}
	return p, nil
}

func (m *Memory) SavePolicy(_ context.Context, rule contrib.PolicyRule) error {
	rule = rule.WithDefaults()
	if err := rule.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := policyKey{rule.City, rule.Year, rule.Half}
	if existing, ok := m.policies[k]; ok {
		rule.Revision = existing.Revision
		if !samePolicy(existing, rule) {
			return fmt.Errorf("%w: %s %s", contrib.ErrPolicyPublished, rule.City, rule.Period())
		}
		return nil
	}
	m.policies[k] = rule
	return nil
}

func (m *Memory) SupersedePolicy(_ context.Context, rule contrib.PolicyRule) (contrib.PolicyRule, error) {
	rule = rule.WithDefaults()
	if err := rule.Validate(); err != nil {
		return contrib.PolicyRule{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := policyKey{rule.City, rule.Year, rule.Half}
	existing, ok := m.policies[k]
	if !ok {
		return contrib.PolicyRule{}, &contrib.PolicyNotFoundError{City: rule.City, Year: rule.Year, Half: rule.Half}
	}
	rule.Revision = existing.Revision + 1
	m.policies[k] = rule
	return rule, nil
}

// samePolicy compares the published content of two rules.
func samePolicy(a, b contrib.PolicyRule) bool {
	if !a.EffectiveFrom.Equal(b.EffectiveFrom) || !a.EffectiveTo.Equal(b.EffectiveTo) {
		return false
	}
	la, lb := a.Lines(), b.Lines()
	if len(la) != len(lb) {
		return false
	}
	for i := range la {
		if la[i].Insurance != lb[i].Insurance || !sameRule(la[i].Rule, lb[i].Rule) {
			return false
		}
	}
	return true
}

func sameRule(a, b contrib.InsuranceRule) bool {
	return a.Rate.Equal(b.Rate) &&
		a.Floor.Valid == b.Floor.Valid && a.Floor.Decimal.Equal(b.Floor.Decimal) &&
		a.Cap.Valid == b.Cap.Valid && a.Cap.Decimal.Equal(b.Cap.Decimal)
}

// =============================================================================
// BASELINES
// =============================================================================

func (m *Memory) GetBaselines(_ context.Context, referenceYear int, ids []contrib.EmployeeID) (map[contrib.EmployeeID]contrib.EmployeeBaseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[contrib.EmployeeID]contrib.EmployeeBaseline, len(ids))
	for _, id := range ids {
		if b, ok := m.baselines[baselineKey{id, referenceYear}]; ok {
			out[id] = b
		}
	}
	return out, nil
}

func (m *Memory) SaveBaselines(_ context.Context, baselines []contrib.EmployeeBaseline) error {
	for _, b := range baselines {
		if err := b.Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range baselines {
		m.baselines[baselineKey{b.EmployeeID, b.ReferenceYear}] = b
	}
	return nil
}

// =============================================================================
// SALARIES
// =============================================================================

func (m *Memory) SaveSalaries(_ context.Context, records []contrib.SalaryRecord) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		m.salaries[salaryKey{r.EmployeeID, r.SalaryMonth.Int()}] = r
	}
	return nil
}

func (m *Memory) LoadSalaries(_ context.Context, from, to contrib.Month) ([]contrib.SalaryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []contrib.SalaryRecord
	for _, r := range m.salaries {
		if !r.SalaryMonth.Before(from) && !r.SalaryMonth.After(to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EmployeeID != out[j].EmployeeID {
			return out[i].EmployeeID < out[j].EmployeeID
		}
		return out[i].SalaryMonth.Before(out[j].SalaryMonth)
	})
	return out, nil
}

func (m *Memory) EmployeeIDsWithSalaryInRange(ctx context.Context, from, to contrib.Month) ([]contrib.EmployeeID, error) {
	records, err := m.LoadSalaries(ctx, from, to)
	if err != nil {
		return nil, err
	}
	var ids []contrib.EmployeeID
	for _, r := range records {
		if len(ids) == 0 || ids[len(ids)-1] != r.EmployeeID {
			ids = append(ids, r.EmployeeID)
		}
	}
	return ids, nil
}

// =============================================================================
// RESULTS
// =============================================================================

// ReplaceResults deletes and inserts under one lock; readers never observe
// the gap.
func (m *Memory) ReplaceResults(_ context.Context, employeeID contrib.EmployeeID, period contrib.Period, bases []contrib.Basis, rows []contrib.ResultRow) error {
	for _, r := range rows {
		if r.EmployeeID != employeeID || !period.Contains(r.Month) {
			return fmt.Errorf("result row %s/%s outside replace scope %s/%s", r.EmployeeID, r.Month, employeeID, period)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, month := range period.Months() {
		for _, basis := range bases {
			delete(m.results, resultKey{employeeID, month.Int(), basis})
		}
	}
	for _, r := range rows {
		m.results[resultKey{r.EmployeeID, r.Month.Int(), r.Basis}] = r
	}
	return nil
}

func (m *Memory) ListResults(_ context.Context, filter contrib.ResultFilter) ([]contrib.ResultRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[contrib.EmployeeID]bool, len(filter.EmployeeIDs))
	for _, id := range filter.EmployeeIDs {
		wanted[id] = true
	}

	var out []contrib.ResultRow
	for _, r := range m.results {
		if len(wanted) > 0 && !wanted[r.EmployeeID] {
			continue
		}
		if filter.From.Valid() && r.Month.Before(filter.From) {
			continue
		}
		if filter.To.Valid() && r.Month.After(filter.To) {
			continue
		}
		if filter.Basis != "" && r.Basis != filter.Basis {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.EmployeeID != b.EmployeeID {
			return a.EmployeeID < b.EmployeeID
		}
		if !a.Month.Equal(b.Month) {
			return a.Month.Before(b.Month)
		}
		return a.Basis > b.Basis // wide before narrow
	})
	return out, nil
}
