// Package types defines the record types, configuration, and standard
// error values shared by the BlindKit stores and engines.
//
// Records are append-only: once written to a root they are never mutated
// in place. Lifecycle changes (a label moving from issued to used) are
// expressed by appending a superseding record to the same log; readers
// take the last record per key as current.
package types
