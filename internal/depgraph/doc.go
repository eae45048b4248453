// Package depgraph models foreign key dependencies between the tables of a
// schema and derives an order in which those tables can be truncated.
//
// A Map is built once from introspection output and never changes. Resolve
// turns it into a truncation order in which every table comes before the
// tables it references, FindCycles reports the edges that make such an order
// impossible, and Verify checks a caller supplied order against the map.
//
// Self references are kept as loops. They never hold back their own table
// during resolution, and FindCycles reports them as (T, T). References to
// tables outside the inspected set are recorded but play no part in ordering
// or verification, since only inspected tables are ever truncated.
//
// Everything in this package is pure and synchronous. A Map may be shared
// between goroutines.
package depgraph
