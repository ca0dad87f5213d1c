/*
Package factory converts declarative seed documents into contrib values.

PURPOSE:
  Policies and payroll rows are published by HR as documents, not code. The
  factory decodes a seed document, validates it, and produces the
  contrib.PolicyRule and contrib.SalaryRecord values the stores accept.

WHY YAML?
  - Operators edit published rules by hand
  - JSON is a subset of YAML, so exported JSON documents load unchanged
  - Amounts are decimal strings or plain numbers, never floats in Go

SEED SCHEMA:
  policies:
    - city: shenzhen
      year: 2023
      period: H1
      pension:      {floor: 3958, cap: 22941, rate: 0.14}
      medical:      {floor: 6475, cap: 32376, rate: 0.05}
      unemployment: {floor: 2360, cap: 22941, rate: 0.007}
      injury:       {rate: 0.0014}            # no floor/cap: unclamped
      maternity:    {floor: 6475, cap: 32376, rate: 0.005}   # optional
      housing_fund: {floor: 2360, cap: 41190, rate: 0.05}
  salaries:
    - employee_id: E001
      hire_date: 2020-05-10
      month: 202201
      basic_salary: 8000
      gross_salary: 10000

KEY FEATURES:
  - Every policy passes contrib.PolicyRule.Validate before it is returned
  - Floor/cap may be omitted only where the rule allows it (injury)
  - Months accept 202301 and 2023-01

USAGE:
  f := factory.NewSeedFactory()
  seed, err := f.LoadFile("seed.yaml")
  for _, rule := range seed.Policies {
      store.SavePolicy(ctx, rule)
  }
*/
package factory

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/contribution-engine/contrib"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// SeedDocument is the on-disk representation of a seed file.
type SeedDocument struct {
	Policies []PolicyDocument `yaml:"policies,omitempty" json:"policies,omitempty"`
	Salaries []SalaryDocument `yaml:"salaries,omitempty" json:"salaries,omitempty"`
}

// PolicyDocument is one half-year rule.
type PolicyDocument struct {
	City          string        `yaml:"city" json:"city" validate:"required"`
	Year          int           `yaml:"year" json:"year" validate:"gt=0"`
	Period        string        `yaml:"period" json:"period" validate:"required"`
	EffectiveFrom string        `yaml:"effective_from,omitempty" json:"effective_from,omitempty"`
	EffectiveTo   string        `yaml:"effective_to,omitempty" json:"effective_to,omitempty"`
	Pension       *BandDocument `yaml:"pension" json:"pension" validate:"required"`
	Medical       *BandDocument `yaml:"medical" json:"medical" validate:"required"`
	Unemployment  *BandDocument `yaml:"unemployment" json:"unemployment" validate:"required"`
	Injury        *BandDocument `yaml:"injury" json:"injury" validate:"required"`
	Maternity     *BandDocument `yaml:"maternity,omitempty" json:"maternity,omitempty"`
	HousingFund   *BandDocument `yaml:"housing_fund" json:"housing_fund" validate:"required"`
}

// BandDocument is the floor, cap and rate of one insurance line.
type BandDocument struct {
	Floor *string `yaml:"floor,omitempty" json:"floor,omitempty"`
	Cap   *string `yaml:"cap,omitempty" json:"cap,omitempty"`
	Rate  string  `yaml:"rate" json:"rate" validate:"required"`
}

// SalaryDocument is one normalized payroll row.
type SalaryDocument struct {
	EmployeeID  string `yaml:"employee_id" json:"employee_id" validate:"required"`
	HireDate    string `yaml:"hire_date" json:"hire_date" validate:"required"`
	Month       string `yaml:"month" json:"month" validate:"required"`
	BasicSalary string `yaml:"basic_salary" json:"basic_salary" validate:"required"`
	GrossSalary string `yaml:"gross_salary" json:"gross_salary" validate:"required"`
}

// Seed is a decoded, validated seed document.
type Seed struct {
	Policies []contrib.PolicyRule
	Salaries []contrib.SalaryRecord
}

// =============================================================================
// SEED FACTORY
// =============================================================================

// SeedFactory converts seed documents to contrib values.
type SeedFactory struct {
	validate *validator.Validate
}

// NewSeedFactory creates a new seed factory.
func NewSeedFactory() *SeedFactory {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
	})
	return &SeedFactory{validate: v}
}

// LoadFile reads and parses a YAML or JSON seed file.
func (f *SeedFactory) LoadFile(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("failed to read seed file: %w", err)
	}
	return f.Parse(data)
}

// Parse decodes a YAML or JSON seed document.
func (f *SeedFactory) Parse(data []byte) (Seed, error) {
	var doc SeedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Seed{}, fmt.Errorf("failed to parse seed document: %w", err)
	}
	return f.FromDocument(doc)
}

// FromDocument converts and validates a decoded document.
func (f *SeedFactory) FromDocument(doc SeedDocument) (Seed, error) {
	var seed Seed
	for i, pd := range doc.Policies {
		rule, err := f.PolicyFromDocument(pd)
		if err != nil {
			return Seed{}, fmt.Errorf("policies[%d]: %w", i, err)
		}
		seed.Policies = append(seed.Policies, rule)
	}
	for i, sd := range doc.Salaries {
		rec, err := f.SalaryFromDocument(sd)
		if err != nil {
			return Seed{}, fmt.Errorf("salaries[%d]: %w", i, err)
		}
		seed.Salaries = append(seed.Salaries, rec)
	}
	return seed, nil
}

// PolicyFromDocument builds a validated rule with defaults applied.
func (f *SeedFactory) PolicyFromDocument(pd PolicyDocument) (contrib.PolicyRule, error) {
	half, err := contrib.ParseHalfYear(pd.Period)
	if err != nil {
		return contrib.PolicyRule{}, err
	}
	if err := f.check(pd); err != nil {
		return contrib.PolicyRule{}, fmt.Errorf("%w: %v", contrib.ErrInvalidPolicy, err)
	}
	rule := contrib.PolicyRule{City: pd.City, Year: pd.Year, Half: half}

	if pd.EffectiveFrom != "" {
		if rule.EffectiveFrom, err = contrib.ParseDate(pd.EffectiveFrom); err != nil {
			return contrib.PolicyRule{}, fmt.Errorf("%w: effective_from: %v", contrib.ErrInvalidPolicy, err)
		}
	}
	if pd.EffectiveTo != "" {
		if rule.EffectiveTo, err = contrib.ParseDate(pd.EffectiveTo); err != nil {
			return contrib.PolicyRule{}, fmt.Errorf("%w: effective_to: %v", contrib.ErrInvalidPolicy, err)
		}
	}

	bands := []struct {
		insurance contrib.Insurance
		doc       *BandDocument
		dst       *contrib.InsuranceRule
	}{
		{contrib.Pension, pd.Pension, &rule.Pension},
		{contrib.Medical, pd.Medical, &rule.Medical},
		{contrib.Unemployment, pd.Unemployment, &rule.Unemployment},
		{contrib.Injury, pd.Injury, &rule.Injury},
		{contrib.HousingFund, pd.HousingFund, &rule.HousingFund},
	}
	for _, b := range bands {
		r, err := parseBand(b.insurance, *b.doc)
		if err != nil {
			return contrib.PolicyRule{}, err
		}
		*b.dst = r
	}
	if pd.Maternity != nil {
		r, err := parseBand(contrib.Maternity, *pd.Maternity)
		if err != nil {
			return contrib.PolicyRule{}, err
		}
		rule.Maternity = &r
	}

	rule = rule.WithDefaults()
	if err := rule.Validate(); err != nil {
		return contrib.PolicyRule{}, err
	}
	return rule, nil
}

// SalaryFromDocument builds a validated payroll row.
func (f *SeedFactory) SalaryFromDocument(sd SalaryDocument) (contrib.SalaryRecord, error) {
	if err := f.check(sd); err != nil {
		return contrib.SalaryRecord{}, fmt.Errorf("%w: %v", contrib.ErrInvalidSalaryRecord, err)
	}
	hire, err := contrib.ParseDate(sd.HireDate)
	if err != nil {
		return contrib.SalaryRecord{}, fmt.Errorf("%w: hire_date: %v", contrib.ErrInvalidSalaryRecord, err)
	}
	month, err := contrib.ParseMonth(sd.Month)
	if err != nil {
		return contrib.SalaryRecord{}, err
	}
	basic, err := decimal.NewFromString(sd.BasicSalary)
	if err != nil {
		return contrib.SalaryRecord{}, fmt.Errorf("%w: basic_salary %q", contrib.ErrInvalidSalaryRecord, sd.BasicSalary)
	}
	gross, err := decimal.NewFromString(sd.GrossSalary)
	if err != nil {
		return contrib.SalaryRecord{}, fmt.Errorf("%w: gross_salary %q", contrib.ErrInvalidSalaryRecord, sd.GrossSalary)
	}

	rec := contrib.SalaryRecord{
		EmployeeID:  contrib.EmployeeID(sd.EmployeeID),
		HireDate:    hire,
		SalaryMonth: month,
		BasicSalary: basic,
		GrossSalary: gross,
	}
	if err := rec.Validate(); err != nil {
		return contrib.SalaryRecord{}, err
	}
	return rec, nil
}

// ToDocument converts a rule back to its document form.
func (f *SeedFactory) ToDocument(rule contrib.PolicyRule) PolicyDocument {
	pd := PolicyDocument{
		City:          rule.City,
		Year:          rule.Year,
		Period:        string(rule.Half),
		EffectiveFrom: rule.EffectiveFrom.Format(contrib.DateLayout),
		EffectiveTo:   rule.EffectiveTo.Format(contrib.DateLayout),
		Pension:       bandDocument(rule.Pension),
		Medical:       bandDocument(rule.Medical),
		Unemployment:  bandDocument(rule.Unemployment),
		Injury:        bandDocument(rule.Injury),
		HousingFund:   bandDocument(rule.HousingFund),
	}
	if rule.Maternity != nil {
		pd.Maternity = bandDocument(*rule.Maternity)
	}
	return pd
}

// Marshal renders a document as YAML.
func (f *SeedFactory) Marshal(doc SeedDocument) ([]byte, error) {
	return yaml.Marshal(doc)
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

// check runs struct-tag validation and flattens failures into one error
// naming the document fields.
func (f *SeedFactory) check(doc any) error {
	err := f.validate.Struct(doc)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if fe.Tag() == "required" {
			problems = append(problems, field+" is required")
		} else {
			problems = append(problems, fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return errors.New(strings.Join(problems, "; "))
}

func parseBand(ins contrib.Insurance, bd BandDocument) (contrib.InsuranceRule, error) {
	var r contrib.InsuranceRule
	var err error
	if r.Floor, err = parseNullAmount(bd.Floor); err != nil {
		return r, fmt.Errorf("%w: %s floor: %v", contrib.ErrInvalidPolicy, ins, err)
	}
	if r.Cap, err = parseNullAmount(bd.Cap); err != nil {
		return r, fmt.Errorf("%w: %s cap: %v", contrib.ErrInvalidPolicy, ins, err)
	}
	if bd.Rate == "" {
		return r, fmt.Errorf("%w: %s rate is required", contrib.ErrInvalidPolicy, ins)
	}
	if r.Rate, err = decimal.NewFromString(bd.Rate); err != nil {
		return r, fmt.Errorf("%w: %s rate: %v", contrib.ErrInvalidPolicy, ins, err)
	}
	return r, nil
}

func parseNullAmount(s *string) (decimal.NullDecimal, error) {
	if s == nil || *s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func bandDocument(r contrib.InsuranceRule) *BandDocument {
	bd := &BandDocument{Rate: r.Rate.String()}
	if r.Floor.Valid {
		s := r.Floor.Decimal.String()
		bd.Floor = &s
	}
	if r.Cap.Valid {
		s := r.Cap.Decimal.String()
		bd.Cap = &s
	}
	return bd
}
