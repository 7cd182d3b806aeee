// Package harness runs warehouse load scenarios as executable contract
// tests.
//
// A scenario seeds a source database, loads a CUE entity catalog and runs
// a sequence of load steps with the real engine. Each step happens at a
// declared wall time, so run starts, watermarks and valid_from values are
// reproducible and can be compared against golden files.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	entities: ../catalogs/mini
//	source:
//	  - CREATE TABLE countries (name TEXT, modified_at TEXT NOT NULL, valid_to TEXT)
//	  - INSERT INTO countries VALUES ('Monaco', '2024-01-01 00:00:00', NULL)
//	steps:
//	  - at: "2024-01-10T12:00:00Z"
//	    load: [all]
//	    expect:
//	      country: {inserted: 1, updated: 0}
//	  - at: "2024-01-11T12:00:00Z"
//	    source:
//	      - UPDATE countries SET valid_to = '2024-01-11 00:00:00'
//	    load: [country]
//	    expect:
//	      country: {updated: 1}
//	assertions:
//	  - type: row
//	    entity: country
//	    key: [Monaco]
//	    expect: {dwh_valid_to: "@step:2", dwh_valid_from: "@step:1"}
//	  - type: row_count
//	    entity: country
//	    count: 1
//	  - type: watermark
//	    process: country
//	    equals: "@step:2"
//	  - type: run_log_count
//	    process: country
//	    count: 2
//
// Paths in entities are resolved relative to the scenario file.
//
// # Expectations
//
// A step's expect clause maps entity names to counts and, for failing
// loads, the expected LoadError code (INTEGRITY_VIOLATION, DUPLICATE_KEY,
// ...). Entities left out of expect are still loaded and reported.
//
// # Golden Files
//
// RunWithGolden snapshots the per-step reports into
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
