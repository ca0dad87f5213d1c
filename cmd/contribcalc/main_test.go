package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/contribution-engine/contrib"
	"github.com/warp/contribution-engine/store/sqlite"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_SeedBaselinesRun(t *testing.T) {
	// GIVEN: an empty database and the sample seed
	dir := t.TempDir()
	db := filepath.Join(dir, "contrib.db")
	missing := filepath.Join(dir, "missing.json")
	t.Setenv("CONTRIB_CITY", "shenzhen")
	t.Setenv("LOG_LEVEL", "error")

	_, err := execute(t, "migrate", "--db", db)
	require.NoError(t, err)
	_, err = execute(t, "seed", "../../factory/testdata/shenzhen-2023.yaml", "--db", db)
	require.NoError(t, err)
	_, err = execute(t, "baselines", "--year", "2022", "--db", db)
	require.NoError(t, err)

	// WHEN
	out, err := execute(t, "run", "--year", "2023", "--period", "H1", "--db", db, "--missing-out", missing)

	// THEN: E001 gets twelve rows, E002 eight starting in March
	require.NoError(t, err)
	assert.Contains(t, out, "2 processed, 0 skipped, 20 rows written")

	store, err := sqlite.New(db)
	require.NoError(t, err)
	defer store.Close()
	rows, err := store.ListResults(context.Background(), contrib.ResultFilter{EmployeeIDs: []contrib.EmployeeID{"E002"}})
	require.NoError(t, err)
	require.Len(t, rows, 8)
	assert.Equal(t, contrib.NewMonth(2023, time.March), rows[0].Month)
	assert.Equal(t, contrib.CategoryC, rows[0].Category)

	data, err := os.ReadFile(missing)
	require.NoError(t, err)
	var report contrib.RunResult
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 20, report.Summary.RowsWritten)
	assert.Empty(t, report.Missing)
}

func TestCLI_RunWithoutPolicyFails(t *testing.T) {
	db := filepath.Join(t.TempDir(), "contrib.db")
	t.Setenv("LOG_LEVEL", "error")

	_, err := execute(t, "run", "--year", "2030", "--period", "H2", "--db", db, "--city", "nowhere")

	assert.ErrorIs(t, err, contrib.ErrPolicyNotFound)
}

func TestRunOptions_Request(t *testing.T) {
	_, err := runOptions{Period: "H1"}.request()
	assert.EqualError(t, err, "--year is required")

	_, err = runOptions{Year: 2023, Period: "H1", Basis: "gross"}.request()
	assert.Error(t, err)

	req, err := runOptions{Year: 2023, Period: "h2", Basis: "narrow", Employees: []string{" E1 ", "", "E2"}}.request()
	require.NoError(t, err)
	assert.Equal(t, contrib.NewPeriod(2023, contrib.H2), req.Period)
	assert.Equal(t, []contrib.Basis{contrib.BasisNarrow}, req.Bases)
	assert.Equal(t, []contrib.EmployeeID{"E1", "E2"}, req.EmployeeIDs)
}
