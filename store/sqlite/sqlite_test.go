package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/contribution-engine/contrib"
	"github.com/warp/contribution-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testPolicy() contrib.PolicyRule {
	r := func(floor, ceiling, rate string) contrib.InsuranceRule {
		return contrib.InsuranceRule{Floor: contrib.NullMoney(floor), Cap: contrib.NullMoney(ceiling), Rate: decimal.RequireFromString(rate)}
	}
	maternity := r("6475", "32376", "0.005")
	return contrib.PolicyRule{
		City:         "shenzhen",
		Year:         2023,
		Half:         contrib.H1,
		Pension:      r("3958", "22941", "0.14"),
		Medical:      r("6475", "32376", "0.05"),
		Unemployment: r("2360", "22941", "0.007"),
		Injury:       contrib.InsuranceRule{Rate: decimal.RequireFromString("0.0014")},
		Maternity:    &maternity,
		HousingFund:  r("2360", "41190", "0.05"),
	}
}

func resultRow(id string, mo time.Month, basis contrib.Basis, runID string) contrib.ResultRow {
	ref := contrib.Money("21535.13")
	c := contrib.Calculate(testPolicy(), ref)
	return contrib.ResultRow{
		EmployeeID:      contrib.EmployeeID(id),
		Month:           contrib.NewMonth(2023, mo),
		Basis:           basis,
		Category:        contrib.CategoryA,
		ReferenceWage:   c.Reference,
		ReferenceSource: contrib.SourcePriorYearAverage,
		Lines:           c.Lines,
		Total:           c.Total,
		City:            "shenzhen",
		PolicyRevision:  1,
		RunID:           runID,
		ComputedAt:      time.Date(2023, time.July, 3, 9, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// MIGRATIONS
// =============================================================================

func TestMigrate_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contrib.db")

	s1, err := sqlite.New(path)
	require.NoError(t, err)
	v, err := s1.AppliedVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sqlite.SchemaVersion(), v)
	require.NoError(t, s1.Close())

	s2, err := sqlite.New(path)
	require.NoError(t, err)
	defer s2.Close()
	v, err = s2.AppliedVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sqlite.SchemaVersion(), v)
}

// =============================================================================
// POLICIES
// =============================================================================

func TestPolicy_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePolicy(ctx, testPolicy()))

	got, err := store.GetPolicy(ctx, "shenzhen", 2023, contrib.H1)
	require.NoError(t, err)
	assert.Equal(t, contrib.Date(2023, time.January, 1), got.EffectiveFrom)
	assert.Equal(t, contrib.Date(2023, time.June, 30), got.EffectiveTo)
	assert.Equal(t, 1, got.Revision)
	assert.Equal(t, contrib.PolicySchemaVersion, got.SchemaVersion)
	assert.Equal(t, "22941.00", got.Pension.Cap.Decimal.StringFixed(2))
	assert.Equal(t, "0.14", got.Pension.Rate.String())
	assert.False(t, got.Injury.Floor.Valid)
	assert.False(t, got.Injury.Cap.Valid)
	require.NotNil(t, got.Maternity)
	assert.Equal(t, "0.005", got.Maternity.Rate.String())
}

func TestPolicy_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetPolicy(context.Background(), "shenzhen", 2030, contrib.H2)

	assert.ErrorIs(t, err, contrib.ErrPolicyNotFound)
}

func TestPolicy_PublishedIsImmutableUntilSuperseded(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SavePolicy(ctx, testPolicy()))
	require.NoError(t, store.SavePolicy(ctx, testPolicy()))

	changed := testPolicy()
	changed.Maternity = nil
	assert.ErrorIs(t, store.SavePolicy(ctx, changed), contrib.ErrPolicyPublished)

	saved, err := store.SupersedePolicy(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Revision)

	got, err := store.GetPolicy(ctx, "shenzhen", 2023, contrib.H1)
	require.NoError(t, err)
	assert.Nil(t, got.Maternity)
	assert.Equal(t, 2, got.Revision)
}

func TestPolicy_InvalidRejectedOnSave(t *testing.T) {
	store := newTestStore(t)
	bad := testPolicy()
	bad.Pension.Rate = decimal.RequireFromString("1.2")

	err := store.SavePolicy(context.Background(), bad)

	assert.ErrorIs(t, err, contrib.ErrInvalidPolicy)
}

// =============================================================================
// BASELINES / SALARIES
// =============================================================================

func TestBaselines_UpsertAndLookupByReferenceYear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	hire := contrib.Date(2023, time.March, 20)

	b := contrib.EmployeeBaseline{
		EmployeeID:         "E1",
		ReferenceYear:      2022,
		HireDate:           hire,
		FirstMonthWageWide: contrib.NullMoney("9000"),
	}
	require.NoError(t, store.SaveBaselines(ctx, []contrib.EmployeeBaseline{b}))
	b.FirstMonthWageNarrow = contrib.NullMoney("7000")
	require.NoError(t, store.SaveBaselines(ctx, []contrib.EmployeeBaseline{b}))

	got, err := store.GetBaselines(ctx, 2022, []contrib.EmployeeID{"E1", "E2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	e1 := got["E1"]
	assert.Equal(t, hire, e1.HireDate)
	assert.False(t, e1.AvgWageWide.Valid)
	assert.Equal(t, "7000.00", e1.FirstMonthWageNarrow.Decimal.StringFixed(2))
	assert.Equal(t, contrib.NewMonth(2023, time.April), e1.FirstInsuranceMonth)

	other, err := store.GetBaselines(ctx, 2021, []contrib.EmployeeID{"E1"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestBaselines_RejectsInvalidRows(t *testing.T) {
	// GIVEN: a valid baseline batched with a negative wage and a missing hire date
	store := newTestStore(t)
	ctx := context.Background()
	good := contrib.EmployeeBaseline{
		EmployeeID:    "E1",
		ReferenceYear: 2022,
		HireDate:      contrib.Date(2021, time.June, 1),
		AvgWageWide:   contrib.NullMoney("21535.13"),
	}
	negative := good
	negative.EmployeeID = "E2"
	negative.AvgWageWide = contrib.NullMoney("-5000.005")
	noHire := good
	noHire.EmployeeID = "E3"
	noHire.HireDate = time.Time{}

	for _, bad := range []contrib.EmployeeBaseline{negative, noHire} {
		// WHEN
		err := store.SaveBaselines(ctx, []contrib.EmployeeBaseline{good, bad})

		// THEN: the whole batch is refused
		require.Error(t, err)
		assert.ErrorIs(t, err, contrib.ErrInvalidBaseline)
		assert.Contains(t, err.Error(), string(bad.EmployeeID))
	}

	got, err := store.GetBaselines(ctx, 2022, []contrib.EmployeeID{"E1", "E2", "E3"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSalaries_LoadAndDiscover(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	hire := contrib.Date(2021, time.June, 1)
	rec := func(id string, y int, mo time.Month, gross string) contrib.SalaryRecord {
		return contrib.SalaryRecord{EmployeeID: contrib.EmployeeID(id), HireDate: hire, SalaryMonth: contrib.NewMonth(y, mo),
			BasicSalary: contrib.Money("100"), GrossSalary: contrib.Money(gross)}
	}

	require.NoError(t, store.SaveSalaries(ctx, []contrib.SalaryRecord{
		rec("E2", 2023, time.February, "120"),
		rec("E1", 2023, time.January, "120"),
		rec("E1", 2022, time.December, "120"),
	}))
	require.NoError(t, store.SaveSalaries(ctx, []contrib.SalaryRecord{rec("E1", 2023, time.January, "150.50")}))

	ids, err := store.EmployeeIDsWithSalaryInRange(ctx, contrib.NewMonth(2023, time.January), contrib.NewMonth(2023, time.June))
	require.NoError(t, err)
	assert.Equal(t, []contrib.EmployeeID{"E1", "E2"}, ids)

	records, err := store.LoadSalaries(ctx, contrib.NewMonth(2022, time.January), contrib.NewMonth(2023, time.December))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, contrib.NewMonth(2022, time.December), records[0].SalaryMonth)
	assert.Equal(t, "150.50", records[1].GrossSalary.StringFixed(2))
	assert.Equal(t, hire, records[1].HireDate)
}

// =============================================================================
// RESULTS
// =============================================================================

func TestResults_ReplaceIsIdempotent(t *testing.T) {
	// GIVEN: a stored period for E1
	store := newTestStore(t)
	ctx := context.Background()
	h1 := contrib.NewPeriod(2023, contrib.H1)
	first := []contrib.ResultRow{
		resultRow("E1", time.January, contrib.BasisWide, "run-1"),
		resultRow("E1", time.January, contrib.BasisNarrow, "run-1"),
		resultRow("E1", time.February, contrib.BasisWide, "run-1"),
	}
	require.NoError(t, store.ReplaceResults(ctx, "E1", h1, contrib.AllBases, first))

	// WHEN: the same replace is retried, then a new run replaces it
	require.NoError(t, store.ReplaceResults(ctx, "E1", h1, contrib.AllBases, first))
	second := []contrib.ResultRow{resultRow("E1", time.March, contrib.BasisWide, "run-2")}
	require.NoError(t, store.ReplaceResults(ctx, "E1", h1, contrib.AllBases, second))

	// THEN: only the second run's rows remain, nothing duplicated
	rows, err := store.ListResults(ctx, contrib.ResultFilter{EmployeeIDs: []contrib.EmployeeID{"E1"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "run-2", rows[0].RunID)
	assert.Equal(t, contrib.NewMonth(2023, time.March), rows[0].Month)
}

func TestResults_RoundTripLines(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	h1 := contrib.NewPeriod(2023, contrib.H1)
	row := resultRow("E1", time.January, contrib.BasisWide, "run-1")
	row.ReferenceFallback = true

	require.NoError(t, store.ReplaceResults(ctx, "E1", h1, contrib.AllBases, []contrib.ResultRow{row}))

	rows, err := store.ListResults(ctx, contrib.ResultFilter{Basis: contrib.BasisWide})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	got := rows[0]
	assert.True(t, got.ReferenceFallback)
	assert.Equal(t, contrib.CategoryA, got.Category)
	assert.Equal(t, "21535.13", got.ReferenceWage.StringFixed(2))
	assert.True(t, got.Total.Equal(row.Total))
	assert.Equal(t, row.ComputedAt, got.ComputedAt)
	require.Len(t, got.Lines, 6)
	for i, ins := range contrib.InsuranceOrder {
		assert.Equal(t, ins, got.Lines[i].Insurance)
		assert.True(t, got.Lines[i].Payment.Equal(row.Lines[i].Payment), ins)
	}
	pension, ok := got.Line(contrib.Pension)
	require.True(t, ok)
	assert.Equal(t, "3014.92", pension.Payment.StringFixed(2))
}

func TestResults_ReplaceOnlyTouchesGivenBases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	h1 := contrib.NewPeriod(2023, contrib.H1)
	require.NoError(t, store.ReplaceResults(ctx, "E1", h1, contrib.AllBases, []contrib.ResultRow{
		resultRow("E1", time.January, contrib.BasisWide, "run-1"),
		resultRow("E1", time.January, contrib.BasisNarrow, "run-1"),
	}))

	require.NoError(t, store.ReplaceResults(ctx, "E1", h1, []contrib.Basis{contrib.BasisWide}, nil))

	rows, err := store.ListResults(ctx, contrib.ResultFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, contrib.BasisNarrow, rows[0].Basis)
}

func TestResults_RejectsRowsOutsideScope(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	h1 := contrib.NewPeriod(2023, contrib.H1)
	require.NoError(t, store.ReplaceResults(ctx, "E1", h1, contrib.AllBases, []contrib.ResultRow{
		resultRow("E1", time.January, contrib.BasisWide, "run-1"),
	}))

	err := store.ReplaceResults(ctx, "E1", h1, contrib.AllBases, []contrib.ResultRow{
		resultRow("E1", time.July, contrib.BasisWide, "run-2"),
	})
	require.Error(t, err)

	// the failed replace deleted nothing
	rows, err := store.ListResults(ctx, contrib.ResultFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "run-1", rows[0].RunID)
}

func TestResults_DuplicateRowRollsBack(t *testing.T) {
	// GIVEN: stored rows and a replace carrying a duplicate key
	store := newTestStore(t)
	ctx := context.Background()
	h1 := contrib.NewPeriod(2023, contrib.H1)
	require.NoError(t, store.ReplaceResults(ctx, "E1", h1, contrib.AllBases, []contrib.ResultRow{
		resultRow("E1", time.January, contrib.BasisWide, "run-1"),
	}))
	dup := resultRow("E1", time.February, contrib.BasisWide, "run-2")

	// WHEN
	err := store.ReplaceResults(ctx, "E1", h1, contrib.AllBases, []contrib.ResultRow{dup, dup})

	// THEN: the insert fails and the delete is not visible
	require.Error(t, err)
	rows, err := store.ListResults(ctx, contrib.ResultFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "run-1", rows[0].RunID)
}

func TestResults_CorruptComputedAtIsReported(t *testing.T) {
	// GIVEN: a stored row whose computed_at was damaged outside the store
	path := filepath.Join(t.TempDir(), "contrib.db")
	ctx := context.Background()
	store, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, store.ReplaceResults(ctx, "E1", contrib.NewPeriod(2023, contrib.H1), contrib.AllBases,
		[]contrib.ResultRow{resultRow("E1", time.January, contrib.BasisWide, "run-1")}))
	require.NoError(t, store.Close())

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec(`UPDATE contribution_results SET computed_at = 'yesterday'`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	store, err = sqlite.New(path)
	require.NoError(t, err)
	defer store.Close()

	// WHEN
	_, err = store.ListResults(ctx, contrib.ResultFilter{})

	// THEN: the read fails instead of returning a zero timestamp
	require.Error(t, err)
	assert.Contains(t, err.Error(), "computed_at")
}

func TestResults_ListLargeEmployeeFilter(t *testing.T) {
	// GIVEN: rows for three employees and a filter far above SQLite's
	// host-parameter limit, unsorted and with a duplicate
	store := newTestStore(t)
	ctx := context.Background()
	h1 := contrib.NewPeriod(2023, contrib.H1)
	for _, id := range []string{"E1", "E2", "X9"} {
		require.NoError(t, store.ReplaceResults(ctx, contrib.EmployeeID(id), h1, contrib.AllBases, []contrib.ResultRow{
			resultRow(id, time.February, contrib.BasisWide, "run-1"),
			resultRow(id, time.January, contrib.BasisNarrow, "run-1"),
		}))
	}
	filter := []contrib.EmployeeID{"X9", "E2"}
	for i := 0; i < 40000; i++ {
		filter = append(filter, contrib.EmployeeID(fmt.Sprintf("P%05d", i)))
	}
	filter = append(filter, "E1", "X9")

	// WHEN
	rows, err := store.ListResults(ctx, contrib.ResultFilter{EmployeeIDs: filter})

	// THEN: every match once, ordered by employee then month
	require.NoError(t, err)
	require.Len(t, rows, 6)
	var got []string
	for _, r := range rows {
		got = append(got, fmt.Sprintf("%s/%s", r.EmployeeID, r.Month))
	}
	assert.Equal(t, []string{
		"E1/202301", "E1/202302",
		"E2/202301", "E2/202302",
		"X9/202301", "X9/202302",
	}, got)
}
