// Package stats holds the pure numeric building blocks of the status
// aggregator: linear-interpolated percentiles and the composite
// availability/latency score with its letter grade.
//
// Nothing in this package performs I/O or keeps state.
package stats
