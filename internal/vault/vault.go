// Package vault implements the custodial vault ledger: one vault per
// manager, one sub-account per (vault, asset, customer) triple, and the
// deposit/withdraw state machine over them.
//
// Every record lives at a deterministically derived address (pkg/derive);
// no caller-chosen identifier ever names a record. Each operation is a
// single atomic unit: precondition checks reject before any mutation, the
// token transfer and the balance bookkeeping commit together, and a failure
// anywhere leaves no partial state.
//
// Two implementations of the Ledger interface are provided:
//   - MemoryLedger: in-process, for testing and development.
//   - PostgresLedger: durable, for production use.
package vault
