/*
main.go - contribcalc entry point

PURPOSE:
  Operator CLI for the contribution engine. Every recompute is triggered
  from here: publish policies and payroll, derive baselines, then run a
  half-year for all employees or a chosen few.

COMMANDS:
  migrate                          Create or upgrade the SQLite schema
  seed <file>                      Load policies and salaries from YAML/JSON
  baselines --year 2022            Derive baselines for a reference year
  run --year 2023 --period H1      Compute and replace results
      [--basis wide|narrow] [--employee E001 ...] [--missing-out missing.json]

CONFIGURATION:
  Environment (see config/config.go), optionally from .env / .env.local.
  Persistent flags override env:
  --db         SQLite database path (":memory:" for a throwaway run)
  --city       Policy city
  --log-level  logrus level

SHUTDOWN:
  SIGINT/SIGTERM cancel the command context. A replace already committed
  stays whole; the interrupted employee keeps its previous rows.

EXAMPLES:
  contribcalc migrate --db ./data/contrib.db
  contribcalc seed testdata/shenzhen-2023.yaml
  contribcalc baselines --year 2022
  contribcalc run --year 2023 --period H1 --missing-out missing.json
*/
package main

func main() {
	Execute()
}
