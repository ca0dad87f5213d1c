package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/contribution-engine/contrib"
)

func TestLoadFile_YAMLSeed(t *testing.T) {
	seed, err := NewSeedFactory().LoadFile("testdata/shenzhen-2023.yaml")
	require.NoError(t, err)

	require.Len(t, seed.Policies, 2)
	h1 := seed.Policies[0]
	assert.Equal(t, contrib.H1, h1.Half)
	assert.Equal(t, contrib.Date(2023, time.January, 1), h1.EffectiveFrom)
	assert.Equal(t, contrib.Date(2023, time.June, 30), h1.EffectiveTo)
	assert.Equal(t, "0.14", h1.Pension.Rate.String())
	assert.Equal(t, "22941", h1.Pension.Cap.Decimal.String())
	assert.False(t, h1.Injury.Floor.Valid)
	require.NotNil(t, h1.Maternity)
	assert.Nil(t, seed.Policies[1].Maternity)

	require.Len(t, seed.Salaries, 5)
	assert.Equal(t, contrib.NewMonth(2023, time.March), seed.Salaries[3].SalaryMonth)
	assert.Equal(t, "21535.13", seed.Salaries[0].GrossSalary.String())
	assert.Equal(t, contrib.Date(2023, time.March, 10), seed.Salaries[3].HireDate)
}

func TestParse_JSONSeed(t *testing.T) {
	doc := `{
	  "policies": [{
	    "city": "guangzhou", "year": 2024, "period": "h2",
	    "effective_from": "2024-07-01", "effective_to": "2024-12-31",
	    "pension":      {"floor": "4588", "cap": "24930", "rate": "0.14"},
	    "medical":      {"floor": "5284", "cap": "26418", "rate": "0.055"},
	    "unemployment": {"floor": 2300, "cap": 24930, "rate": 0.0032},
	    "injury":       {"floor": null, "cap": null, "rate": "0.002"},
	    "housing_fund": {"floor": "2300", "cap": "38082", "rate": "0.05"}
	  }]
	}`

	seed, err := NewSeedFactory().Parse([]byte(doc))

	require.NoError(t, err)
	require.Len(t, seed.Policies, 1)
	p := seed.Policies[0]
	assert.Equal(t, contrib.H2, p.Half)
	assert.Equal(t, "0.0032", p.Unemployment.Rate.String())
	assert.False(t, p.Injury.Cap.Valid)
}

func TestParse_RejectsInvalidPolicy(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"floor above cap", `
policies:
  - {city: x, year: 2023, period: H1,
     pension: {floor: 30000, cap: 20000, rate: 0.14},
     medical: {floor: 1, cap: 2, rate: 0.05}, unemployment: {floor: 1, cap: 2, rate: 0.01},
     injury: {rate: 0.001}, housing_fund: {floor: 1, cap: 2, rate: 0.05}}`},
		{"missing block", `
policies:
  - {city: x, year: 2023, period: H1,
     pension: {floor: 1, cap: 2, rate: 0.14},
     unemployment: {floor: 1, cap: 2, rate: 0.01},
     injury: {rate: 0.001}, housing_fund: {floor: 1, cap: 2, rate: 0.05}}`},
		{"missing medical floor", `
policies:
  - {city: x, year: 2023, period: H1,
     pension: {floor: 1, cap: 2, rate: 0.14},
     medical: {cap: 2, rate: 0.05}, unemployment: {floor: 1, cap: 2, rate: 0.01},
     injury: {rate: 0.001}, housing_fund: {floor: 1, cap: 2, rate: 0.05}}`},
		{"bad rate", `
policies:
  - {city: x, year: 2023, period: H1,
     pension: {floor: 1, cap: 2, rate: abc},
     medical: {floor: 1, cap: 2, rate: 0.05}, unemployment: {floor: 1, cap: 2, rate: 0.01},
     injury: {rate: 0.001}, housing_fund: {floor: 1, cap: 2, rate: 0.05}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSeedFactory().Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, contrib.ErrInvalidPolicy)
		})
	}
}

func TestParse_RejectsBadPeriodAndSalary(t *testing.T) {
	_, err := NewSeedFactory().Parse([]byte("policies:\n  - {city: x, year: 2023, period: Q3}\n"))
	assert.ErrorIs(t, err, contrib.ErrInvalidPeriod)

	_, err = NewSeedFactory().Parse([]byte("salaries:\n  - {employee_id: E1, hire_date: 2023-01-01, month: 202313, basic_salary: 1, gross_salary: 1}\n"))
	assert.ErrorIs(t, err, contrib.ErrInvalidMonth)

	_, err = NewSeedFactory().Parse([]byte("salaries:\n  - {employee_id: E1, hire_date: 2023-01-01, month: 202301, basic_salary: -5, gross_salary: 1}\n"))
	assert.ErrorIs(t, err, contrib.ErrInvalidSalaryRecord)
}

func TestToDocument_RoundTrip(t *testing.T) {
	f := NewSeedFactory()
	seed, err := f.LoadFile("testdata/shenzhen-2023.yaml")
	require.NoError(t, err)

	out, err := f.Marshal(SeedDocument{Policies: []PolicyDocument{f.ToDocument(seed.Policies[0])}})
	require.NoError(t, err)

	again, err := f.Parse(out)
	require.NoError(t, err)
	require.Len(t, again.Policies, 1)
	assert.True(t, again.Policies[0].Pension.Rate.Equal(seed.Policies[0].Pension.Rate))
	assert.Equal(t, seed.Policies[0].EffectiveTo, again.Policies[0].EffectiveTo)
	assert.False(t, again.Policies[0].Injury.Floor.Valid)
}

func TestParse_ValidationNamesDocumentFields(t *testing.T) {
	_, err := NewSeedFactory().Parse([]byte(`
policies:
  - {year: 2023, period: H1, pension: {floor: 1, cap: 2}}
salaries: []
`))

	require.Error(t, err)
	assert.ErrorIs(t, err, contrib.ErrInvalidPolicy)
	assert.Contains(t, err.Error(), "city is required")
	assert.Contains(t, err.Error(), "pension.rate is required")
	assert.Contains(t, err.Error(), "housing_fund is required")

	_, err = NewSeedFactory().Parse([]byte("salaries:\n  - {employee_id: E1, month: 202301, basic_salary: 1, gross_salary: 1}\n"))
	assert.ErrorIs(t, err, contrib.ErrInvalidSalaryRecord)
	assert.Contains(t, err.Error(), "hire_date is required")
}
