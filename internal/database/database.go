// Package database persists snapshot records and parent saves.
// The Postgres implementation is the production store; Memory backs local
// mode and tests. Transition rules live in the snapshot package; this
// package owns the SQL.
package database

import "errors"

// ErrNotFound is returned when a save or snapshot record does not exist.
var ErrNotFound = errors.New("record not found")
