// Package quota enforces the daily budget of provider calls.
//
// The counter rolls over lazily: the first operation that observes a new day
// (in the configured timezone) starts the count from zero. [Manager.Consume]
// is the only way to spend budget and performs the check and the increment as
// one atomic step, so concurrent reviewers can never push usage past the
// maximum. Store failures fail closed.
package quota
