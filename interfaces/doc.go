// Package interfaces defines the core types and component contracts for the
// record custody system: content-addressed blob storage, the access-control
// ledger, and custody key escrow. It carries no implementation details so
// that components depend on each other only through these contracts.
package interfaces
