// Package notify delivers severity-mismatch alerts raised by the review
// pipeline.
package notify
