// Package database provides the PostgreSQL connection pool used by the offer
// archive.
package database
