// Package database provides connection pool management for the
// PostgreSQL transcript archive.
package database
