// Package database provides the SQLite connection for the link event
// journal.
//
// The journal is optional and strictly operational: it records link
// events (reachability transitions, subscription grants, commands), not
// device state. See internal/audit for the repository that owns the
// schema.
//
// SQLite runs with WAL mode and a busy timeout configured through the
// DSN, and a single connection to match its single-writer model.
package database
