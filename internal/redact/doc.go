// Package redact removes credentials and payment data from finding text
// before it is sent to any LLM provider.
//
// Secrets are found with regex heuristics (API keys, JWTs, private keys,
// bearer tokens, connection strings with inline passwords). Card numbers are
// only replaced when they pass the Luhn check and IBANs only when they pass
// the mod-97 check, so invoice and reference numbers quoted in audit findings
// survive.
package redact
