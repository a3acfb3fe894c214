// Package chain models the serialized ledger environment that DAO satellite
// deployments execute against. It provides single-writer transaction
// semantics, deterministic contract address allocation, snapshot-based
// rollback for registered state components, and an append-only event log
// that downstream indexers consume for discovery.
package chain
