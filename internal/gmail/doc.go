// Package gmail implements the importer's Source on top of the Gmail API.
//
// Candidates are selected with an explicit query, or with a query built
// from the configured labels that exist in the account, or with the inbox
// fallback query. Every part carrying a filename is an attachment, whether
// its body is stored by reference or inline. Credential failures are
// reported as importer.ErrAuth so the run stops.
//
// Example usage:
//
//	store := google.NewTokenStore("")
//	src, err := gmail.NewForAccount(ctx, store, "default", gmail.Config{Labels: []string{"Klienci"}})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	candidates, err := src.List(ctx, 50)
package gmail
