// Package ledger implements the access-control ledger client: the
// authoritative store for record anchors, access grants, and access
// requests, backed by a records contract on an Ethereum chain.
//
// The contract is consumed as an opaque trusted oracle; this package does
// not define its bytecode or the chain's consensus. Every state-changing
// call follows the chain's two-phase cost model: gas is estimated and the
// gas price fetched immediately before each submission attempt, never
// reused across attempts.
//
// MemLedger provides a stateful in-memory implementation of the same
// interface for development and tests; MockLedger is a testify mock for
// interaction assertions.
package ledger
