// Package cli implements the auditlens command tree: single and batch
// reviews, finding import, quota and cache administration, configuration
// and the HTTP trigger server.
package cli
