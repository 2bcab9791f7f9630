// Package harness provides conformance testing for treestore definitions.
//
// The harness compiles CUE store definitions, runs YAML scenarios against a
// fresh store, and checks the recorded trace and final state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: login_flow
//	description: "Login goes through loading and done"
//	specs:
//	  - todos.cue
//	store: todos
//	initial: { items: [] }        # optional, replaces the definition's initial
//	flow_token: flow-login         # optional
//	steps:
//	  - dispatch: add
//	    params: ["milk"]
//	  - dispatch: login
//	    params: [{ name: "Heinz" }]
//	  - settle: true
//	  - dispatch: add
//	    params: [7]
//	    expect_error: REDUCER_PANIC
//	assertions:
//	  - type: trace_order
//	    actions: [login, login.loading, login.done]
//	  - type: final_state
//	    path: user.name
//	    expect: "Heinz"
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: an action appears in the trace with matching params/data
//   - trace_order: actions appear in the specified order
//   - trace_count: an action appears exactly N times
//   - final_state: the value at path deep-equals expect
//   - unchanged: the node at path is the very node the initial state held
//
// # Deterministic Testing
//
// All scenarios execute with a deterministic sequencer and a fixed flow
// token, and loaders run inline. Their results are applied on a settle step
// or once all steps ran. Identical scenarios therefore produce byte-identical
// snapshots for golden file comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenarioWithBasePath("testdata/scenarios/login.yaml", "testdata/specs")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
