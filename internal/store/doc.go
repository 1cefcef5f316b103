// Package store provides the finding stores used by the review pipeline:
// a SQLite database (the default, built with squirrel) and a MongoDB
// collection for deployments that already keep audit records there.
package store
