// Package cumulus implements the connection engine of a client driver
// for a columnar analytic database that speaks a PostgreSQL-derived
// wire protocol with vendor extensions: extended result metadata,
// binary transfer protocol, digest and SASL authentication variants,
// and identity-provider token passthrough.
//
// A Connection negotiates startup and authentication, drives the
// extended-query protocol (Parse/Bind/Describe/Execute/Sync) against a
// backend, translates between host-language values and wire
// representations across the text and binary transfer protocols, and
// maintains a prepared-statement cache keyed by query text and
// parameter type signature.
//
// The package is strictly synchronous: every blocking point is a
// socket read, and a Connection is not safe for concurrent use by more
// than one goroutine. Callers serialize their own access.
package cumulus
