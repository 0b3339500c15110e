// Package preflight validates the environment before Cividex starts
// ingesting or serving.
//
// The package validates:
//   - Corpus directory existence and readability
//   - Write permissions in the data directory
//   - Disk space availability (minimum 100MB)
//   - File descriptor limits (minimum 1024; watch mode needs headroom)
//   - Available memory (1GB recommended)
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, corpusRoot, dataDir)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
//
// A marker file under the data directory records the last passing run
// so routine commands can skip the checks; see NeedsCheck.
package preflight
