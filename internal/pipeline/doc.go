// Package pipeline runs builds through the fixed four-stage CI pipeline.
// Each build gets its own goroutine that sequences the stage analyzers,
// timestamps every stage in the store, and short-circuits on failure. Stage
// transitions are fanned out to subscribers through an EventBroker.
package pipeline
