// Package postgres reads schema metadata from PostgreSQL and classifies the
// errors it returns. Catalog implements the introspection interfaces used by
// the dependency resolver and the cleanup orchestrator on top of any
// store.DBTX, so it works equally on a pool, a pinned connection or an open
// transaction. Classify maps driver errors onto the transient, permanent and
// timeout classes the retry wrapper acts on.
package postgres
