// Package ledger implements the durable record of already-imported item ids
// and the cross-process lock that serializes batch runs.
//
// The ledger file is newline-delimited, deduplicated and sorted. It is
// rewritten through a sibling temp file plus rename, so a crash mid-write
// leaves either the old or the new contents, never a torn file. Legacy
// ledger files from earlier deployments can be unioned in read-only.
//
// All ledger I/O goes through a RetryPolicy (3 attempts, 500ms apart by
// default) because the storage is frequently a cloud-synced folder whose
// files are briefly held open by the sync client.
package ledger
