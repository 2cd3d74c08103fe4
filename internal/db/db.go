// Package db defines the narrow interfaces the revocation cache uses to
// talk to its backing store, so cache.go can be exercised against an
// in-memory fake in tests without standing up a database.
//
// By convention, any function that takes a OneSelector, Selector, Inserter,
// Execer, or SelectExecer as an argument expects that a context has already
// been applied to the relevant DatabaseMap or Transaction object.
package db

import (
	"database/sql"
)

// OneSelector is anything that provides a SelectOne function.
type OneSelector interface {
	SelectOne(interface{}, string, ...interface{}) error
}

// Selector is anything that provides a Select function.
type Selector interface {
	Select(interface{}, string, ...interface{}) ([]interface{}, error)
}

// Inserter is anything that provides an Insert function.
type Inserter interface {
	Insert(list ...interface{}) error
}

// Execer is anything that provides an Exec function.
type Execer interface {
	Exec(string, ...interface{}) (sql.Result, error)
}

// SelectExecer offers a subset of borp.SqlExecutor's methods: Select and Exec.
type SelectExecer interface {
	Selector
	Execer
}

// DatabaseMap offers the full combination of OneSelector, Inserter,
// SelectExecer, and a Begin function for creating a Transaction. Begin
// returns the Transaction interface rather than a concrete borp type so
// that callers can be exercised against an in-memory fake in tests.
type DatabaseMap interface {
	OneSelector
	Inserter
	SelectExecer
	Begin() (Transaction, error)
}

// Transaction offers the combination of OneSelector, Inserter, SelectExecer
// interfaces as well as Delete, Get, and Update, and must be committed or
// rolled back by the caller.
type Transaction interface {
	OneSelector
	Inserter
	SelectExecer
	Delete(...interface{}) (int64, error)
	Get(interface{}, ...interface{}) (interface{}, error)
	Update(...interface{}) (int64, error)
	Commit() error
	Rollback() error
}
