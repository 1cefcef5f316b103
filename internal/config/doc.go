// Package config loads and merges auditlens configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (AUDITLENS_PROVIDER, AUDITLENS_CALLS_MAX, AUDITLENS_STORE_DSN, etc.)
//  3. Config file ($XDG_CONFIG_HOME/auditlens/config.yaml, config.json, or $AUDITLENS_CONFIG)
//  4. Built-in defaults
//
// Provider API keys never live in the file; each provider names the
// environment variable that holds its key. [Watch] reloads the file on change
// for long-running processes.
package config
