// Package config loads mailbackup settings.
//
// Settings come from built-in defaults, then an optional YAML file, then
// MAILBACKUP_* environment variables, in that order. The merged result is
// checked against an embedded CUE schema before use.
package config
