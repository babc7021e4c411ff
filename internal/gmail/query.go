package gmail

import (
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// queryFilter is appended to every generated query.
const queryFilter = "has:attachment -in:spam -in:trash"

// InboxQuery is used when neither a query nor usable labels are configured.
const InboxQuery = "in:inbox " + queryFilter

// LabelQuery builds `(label:"A" OR label:"B") has:attachment ...`.
// An empty list yields InboxQuery.
func LabelQuery(labels []string) string {
	if len(labels) == 0 {
		return InboxQuery
	}
	terms := make([]string, 0, len(labels))
	for _, l := range labels {
		terms = append(terms, `label:"`+strings.ReplaceAll(l, `"`, ``)+`"`)
	}
	if len(terms) == 1 {
		return terms[0] + " " + queryFilter
	}
	return "(" + strings.Join(terms, " OR ") + ") " + queryFilter
}

// existingLabels returns the wanted labels present in the account, using
// the account's spelling. Matching is case-insensitive.
func existingLabels(available []*gmail.Label, wanted []string) []string {
	byName := make(map[string]string, len(available))
	for _, l := range available {
		if l != nil {
			byName[strings.ToLower(l.Name)] = l.Name
		}
	}
	var out []string
	for _, w := range wanted {
		if name, ok := byName[strings.ToLower(strings.TrimSpace(w))]; ok {
			out = append(out, name)
		}
	}
	return out
}
