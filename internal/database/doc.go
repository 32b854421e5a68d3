// Package database opens the PostgreSQL pool used by the scan history writer.
package database
