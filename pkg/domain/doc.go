// Package domain contains the core types of the flatagents engine:
// the immutable Machine definition, the per-run Trace, the lifecycle
// Hooks contract and the error taxonomy.
//
// Nothing in this package performs I/O. Machines are parsed once
// (see pkg/config) and shared read-only across concurrent runs.
package domain
