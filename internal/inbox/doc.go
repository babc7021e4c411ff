// Package inbox defines the on-disk contract between the importer and the
// router: a payload file plus a "<payload>.meta.json" sidecar in a flat
// inbox directory.
//
// Payload names are deterministic, "<YYYYMMDD>__<shortid>__<sanitized>",
// so re-importing the same item overwrites rather than duplicates.
package inbox
