// Package providers calls OpenAI-compatible chat completion endpoints and
// retries them.
//
// [OpenAI] performs exactly one HTTP call per Send and reports the result as
// the raw body or a typed error; [Classify] maps that onto success,
// rate-limited or hard error. [Retrier] runs the per-enrichment state machine
// Idle -> Sending -> {Success, RateLimited, HardError}, ending in Success,
// Exhausted or HardFailed. A 429 closes the shared [Gate] for the
// provider-supplied Retry-After so that other calls fail fast meanwhile.
//
// HTTP clients are injected via struct fields so that tests can redirect calls
// to local httptest servers without making live API requests.
package providers
