// Package importer copies attachments from a mail Source into the inbox
// as payload and sidecar pairs, exactly once per source id.
//
// The processed-id ledger is consulted before any fetch and updated only
// after every payload of a candidate is on disk. A run is bounded by a
// per-run cap and writes one import log row per payload.
package importer
