package contrib_test

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/contribution-engine/contrib"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

func rate(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func band(floor, ceiling, r string) contrib.InsuranceRule {
	return contrib.InsuranceRule{Floor: contrib.NullMoney(floor), Cap: contrib.NullMoney(ceiling), Rate: rate(r)}
}

// shenzhenPolicy is a full rule with an unbanded injury line and no
// maternity block.
func shenzhenPolicy(year int, half contrib.HalfYear) contrib.PolicyRule {
	return contrib.PolicyRule{
		City:         "shenzhen",
		Year:         year,
		Half:         half,
		Pension:      band("3958", "22941", "0.14"),
		Medical:      band("6475", "32376", "0.05"),
		Unemployment: band("2360", "22941", "0.007"),
		Injury:       contrib.InsuranceRule{Rate: rate("0.0014")},
		HousingFund:  band("2360", "41190", "0.05"),
	}.WithDefaults()
}

func baseline(id string, hire time.Time, referenceYear int) contrib.EmployeeBaseline {
	return contrib.EmployeeBaseline{
		EmployeeID:          contrib.EmployeeID(id),
		ReferenceYear:       referenceYear,
		HireDate:            hire,
		FirstInsuranceMonth: contrib.FirstInsuranceMonth(hire),
	}
}

func fixedClock() time.Time { return time.Date(2023, time.July, 3, 9, 0, 0, 0, time.UTC) }

func month(y int, m time.Month) contrib.Month { return contrib.NewMonth(y, m) }
