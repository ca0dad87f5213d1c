/*
errors.go - Centralized error types for the contribution engine

ERROR CATEGORIES:
  1. Configuration errors - policy missing or malformed. Fatal for a batch;
     no partial results are produced with a guessed policy.
  2. Employee data errors - baseline missing or malformed, both references
     null, hire year invalid for the month. Recorded per employee; the batch continues.
  3. Store errors - database failures, wrapped with context by the caller.

USAGE:
  if errors.Is(err, contrib.ErrPolicyNotFound) { ... }

  var nf *contrib.PolicyNotFoundError
  if errors.As(err, &nf) {
      log.Printf("no policy for %s %d %s", nf.City, nf.Year, nf.Half)
  }
*/
package contrib

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPolicyNotFound is returned when no rule exists for (city, year, period).
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrInvalidPolicy is returned when a rule fails validation at load time.
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrPolicyPublished is returned when saving a different rule over a
	// published one without superseding it.
	ErrPolicyPublished = errors.New("policy already published for period")

	// ErrBaselineNotFound is returned when an employee has no baseline row.
	ErrBaselineNotFound = errors.New("baseline not found")

	// ErrInvalidBaseline is returned for baseline rows that fail Validate,
	// on save or when read back for a run.
	ErrInvalidBaseline = errors.New("invalid baseline")

	// ErrNotInsuredInPeriod marks an employee whose first insurance month
	// falls after the period being computed.
	ErrNotInsuredInPeriod = errors.New("first insurance month after period")

	// ErrMissingReference is returned when neither reference source is present.
	ErrMissingReference = errors.New("missing reference wage")

	// ErrInvalidHireYear is returned when a hire year cannot be classified
	// for the calculation month.
	ErrInvalidHireYear = errors.New("invalid hire year for calculation month")

	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidSalaryRecord is returned for malformed salary input rows.
	ErrInvalidSalaryRecord = errors.New("invalid salary record")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PolicyNotFoundError names the missing key.
type PolicyNotFoundError struct {
	City string
	Year int
	Half HalfYear
}

func (e *PolicyNotFoundError) Error() string {
	return fmt.Sprintf("policy not found for city=%q year=%d period=%s", e.City, e.Year, e.Half)
}

func (e *PolicyNotFoundError) Unwrap() error { return ErrPolicyNotFound }

// PolicyValidationError lists every problem found on a rule.
type PolicyValidationError struct {
	City     string
	Year     int
	Half     HalfYear
	Problems []string
}

func (e *PolicyValidationError) Error() string {
	return fmt.Sprintf("invalid policy city=%q year=%d period=%s: %v", e.City, e.Year, e.Half, e.Problems)
}

func (e *PolicyValidationError) Unwrap() error { return ErrInvalidPolicy }

// InvalidHireYearError carries the inputs the classifier rejected.
type InvalidHireYearError struct {
	HireDate time.Time
	Month    Month
	Anchor   int
}

func (e *InvalidHireYearError) Error() string {
	return fmt.Sprintf("invalid hire year for calculation month: hired %s, month %s, anchor year %d",
		e.HireDate.Format(DateLayout), e.Month, e.Anchor)
}

func (e *InvalidHireYearError) Unwrap() error { return ErrInvalidHireYear }

// MissingReferenceError reports an employee with no usable wage for a basis.
type MissingReferenceError struct {
	EmployeeID EmployeeID
	Basis      Basis
	Preferred  ReferenceSource
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("missing reference wage: employee %s basis %s (preferred %s, fallback also null)",
		e.EmployeeID, e.Basis, e.Preferred)
}

func (e *MissingReferenceError) Unwrap() error { return ErrMissingReference }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConfigurationError reports errors that must abort a batch.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrInvalidPolicy) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsEmployeeDataError reports errors that skip one employee (or month) and
// let the batch continue.
func IsEmployeeDataError(err error) bool {
	return errors.Is(err, ErrBaselineNotFound) ||
		errors.Is(err, ErrInvalidBaseline) ||
		errors.Is(err, ErrNotInsuredInPeriod) ||
		errors.Is(err, ErrMissingReference) ||
		errors.Is(err, ErrInvalidHireYear)
}
