// Package review contains the audit finding types and the AI review
// pipeline that enriches them.
//
// The Orchestrator loads a finding, computes its fingerprint (a SHA-256 of
// title, condition and criteria after HTML stripping and truncation) and
// looks it up in the response cache. On a miss it spends one unit of daily
// quota, lets the Selector pick a cheap or premium model, and drives the
// provider client through the retrier. Replies are turned into an
// Enrichment by Normalize, which accepts fenced JSON, free text, odd key
// spellings and nested severity objects without ever failing.
//
// ReviewOne never returns an error: failures mark the finding Failed and are
// reported with a stable reason (see ReasonFor). ReviewBatch reviews IDs in
// order and collects one Result per finding.
package review
