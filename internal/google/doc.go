// Package google loads OAuth2 tokens for the Gmail API from per-account
// token files and builds authorized HTTP clients.
//
// Token files live in the user cache directory (or a configured
// directory) as google-<account>.token. Obtaining the first token is left
// to external tooling; refreshed tokens are written back in place.
package google
