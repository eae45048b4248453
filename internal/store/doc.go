// Package store holds the small database access abstractions shared by the
// cleanup orchestrator and the retry wrapper: the DBTX interface satisfied by
// connections and transactions, and a transaction runner with commit,
// rollback and panic handling.
package store
