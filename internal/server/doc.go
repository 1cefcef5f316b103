// Package server exposes review triggers over HTTP so schedulers and job
// queues can start single and batch reviews and inspect the daily quota.
package server
