// Package router moves classified inbox items into their destination
// directories.
//
// Each sidecar in the inbox is paired with its payload, classified and
// moved payload-first. Nothing is ever overwritten: an occupied
// destination diverts the pair to the review directory, and an occupied
// review name gets a __DUP__<hash> suffix. Lone sidecars and, after a
// grace period, lone payloads go to review as well. Every handled item
// produces exactly one audit record.
//
// Items that fail repeatedly are counted in an attempts file and moved to
// a quarantine directory once the configured limit is reached.
package router
