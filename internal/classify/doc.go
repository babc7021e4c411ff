// Package classify decides where an imported payload belongs.
//
// The decision is made by ordered keyword rule-sets: the first rule-set
// with a keyword found in the lowercased haystack (payload name, subject,
// origin address, original filename) wins, otherwise the item goes to
// REVIEW. An optional Evaluator enriches the decision with risk, category,
// urgency and quality; high risk or vague quality forces REVIEW even when
// a rule-set matched.
//
// Evaluators are best-effort. A remote evaluator that errors, times out or
// answers with something unparsable is replaced by the local keyword
// heuristic for that item.
package classify
