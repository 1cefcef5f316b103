// Auditlens enriches audit findings with an AI second opinion.
//
// Each review sends one finding to an OpenAI-compatible provider under a
// daily call budget and writes a suggested severity, root cause analysis,
// refined recommendation and risk narrative back to the finding store.
// Suggestions that disagree with the declared severity notify reviewers.
//
// Usage:
//
//	auditlens import findings.yaml        # load findings into the store
//	auditlens review F-104                # review one finding
//	auditlens batch --pending --format json --out report.json
//	auditlens quota show                  # today's call budget
//	auditlens serve                       # HTTP review triggers
package main
