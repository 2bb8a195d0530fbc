// Package operations implements the transfer orchestrators.
//
// Control holds what upload and download orchestration share: the part
// ledger, stop handling, terminal bookkeeping and event publication. The
// direction specific monitors live in the subpackages:
//   - upload: multipart and single-request uploads
//   - download: ranged downloads into temporary artifacts and ordered merge
package operations
