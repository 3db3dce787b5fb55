// Package espbus is a small, embedded-friendly event bus and declarative
// flow-combinator layer. It lets an application express reactive,
// multi-stage I/O pipelines - "when event E happens, run worker W off the
// dispatch goroutine; on success publish S with the worker's payload, on
// failure publish F" - without hand-writing task plumbing or callback
// state machines.
//
// Topics are small integers rather than strings: topics 0..31 are "fast"
// and bitmask-filterable, higher values are allowed for less-frequent
// channels and are matched by an ALL-mask subscription or a predicate.
// Payloads travel in-process as typed values (see Payload) rather than
// wire-encoded bytes; there is no codec or transport strategy to
// configure, because this bus never leaves the process.
package espbus
