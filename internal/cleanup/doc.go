// Package cleanup resets a PostgreSQL schema to a known-clean state between
// test runs.
//
// A Cleaner reads the schema through a Catalog, orders tables with package
// depgraph and truncates them inside a single transaction with deferred
// constraints, so that cycles the resolver had to break cannot fail the
// reset. Sequences are restarted separately and VerifyCleanState reports
// whether the schema is actually clean without failing when it is not.
// Every database round trip runs through dbretry.
package cleanup
