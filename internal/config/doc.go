// Package config loads the mailroute configuration: directory layout,
// ledger and lock policy, rule-sets, evaluator selection and logging.
//
// Values come from built-in defaults, then an optional YAML file, then
// MAILROUTE_* environment variables. Relative paths are resolved against
// the configured root before validation.
package config
