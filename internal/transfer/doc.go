// Package transfer contains the bookkeeping shared by upload and download
// orchestration.
//
// Subpackages:
//   - multipart: per-transfer part ledger that decides when to finish or clean up
package transfer
