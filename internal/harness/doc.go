// Package harness provides conformance testing for chart declarations.
//
// The harness compiles a chart from its CUE package, loads its datasets,
// applies a scripted sequence of interactions and validates the resulting
// scene as an executable contract test.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	charts: ../charts
//	chart: ratings
//	datasets:
//	  reviews: ../data/reviews.csv
//	steps:
//	  - load: reviews
//	  - set: ratingDropdown
//	    value: 4
//	    recomputed: [bars, average]
//	  - toggle: ratingSelect
//	    values: [4]
//	  - set: ratingDropdown
//	    value: 9
//	    expect_error: true
//	assertions:
//	  - type: row_count
//	    layer: bars
//	    count: 2
//	  - type: channel
//	    layer: average
//	    item: 0
//	    role: y
//	    expect: 1
//
// Steps are load, set, reset, select, toggle and clear, each naming the
// dataset or parameter it targets. Every accepted step runs exactly one
// recomputation pass.
//
// # Assertion Types
//
//   - row_count: a layer rendered exactly count items
//   - channel: an item's resolved channel value
//   - domain: a scale's domain, chart-wide or for one layer
//   - layer_error: a layer failed with a matching diagnostic
//   - recorded: the number of events the trace store holds
//
// # Deterministic Testing
//
// All scenarios execute with a deterministic clock and sequential pass IDs
// against an in-memory SQLite store, so traces are identical across runs
// and can be compared with golden snapshots. After the last step the
// recorded trace is replayed and every scene hash re-verified.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/ratings_filter.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
