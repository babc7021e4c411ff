// Package watch triggers a callback when new files settle in a directory.
//
// The long-running `mailroute watch` mode uses it to start a Router run
// shortly after the Importer (or a person) drops payloads into the inbox.
// Events are debounced so a burst of writes produces one run, and an
// optional interval re-runs the callback periodically so orphan payloads
// are picked up once their grace period expires.
package watch
