// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb provides an in-memory SQL driver, registered as "fakedb",
// serving canned rows to every query.
package fakedb // import "github.com/go-lpc/revan/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
)

var query struct {
	mu   sync.Mutex
	rows Rows
	args []driver.Value
	err  error
}

// Run installs rows as the result of all the queries issued by f.
// Runs are serialized.
func Run(ctx context.Context, rows Rows, f func(ctx context.Context) error) error {
	query.mu.Lock()
	defer query.mu.Unlock()
	query.rows = rows
	query.args = nil
	query.err = nil

	return f(ctx)
}

// Fail makes all the queries issued by f fail with err.
func Fail(ctx context.Context, err error, f func(ctx context.Context) error) error {
	query.mu.Lock()
	defer query.mu.Unlock()
	query.rows = Rows{}
	query.args = nil
	query.err = err

	return f(ctx)
}

// Args returns the arguments of the last query.
// Args must be called from within Run or Fail.
func Args() []driver.Value {
	return query.args
}

func init() {
	sql.Register("fakedb", &Driver{})
}

type Driver struct{}

// Open returns a new connection to the in-memory database.
func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct{}

// Prepare returns a prepared statement, bound to this connection.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{}, nil
}

func (c *Conn) Close() error {
	return nil
}

func (c *Conn) Begin() (driver.Tx, error) {
	return nil, errors.New("fakedb: transactions not supported")
}

// Ping reports the connection as always alive.
func (c *Conn) Ping(ctx context.Context) error {
	return ctx.Err()
}

type Stmt struct{}

func (stmt *Stmt) Close() error {
	return nil
}

// NumInput returns -1: placeholders are not checked.
func (stmt *Stmt) NumInput() int {
	return -1
}

func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, errors.New("fakedb: exec not supported")
}

// Query records args and returns a copy of the installed rows.
func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	query.args = append([]driver.Value(nil), args...)
	if query.err != nil {
		return nil, query.err
	}
	rows := Rows{
		Names:  query.rows.Names,
		Values: append([][]driver.Value(nil), query.rows.Values...),
	}
	return &rows, nil
}

// Rows is a canned query result.
type Rows struct {
	Names  []string
	Values [][]driver.Value
}

func (rows *Rows) Columns() []string {
	return rows.Names
}

func (rows *Rows) Close() error {
	return nil
}

// Next pops the next row into dest, or returns io.EOF.
func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Conn   = (*Conn)(nil)
	_ driver.Pinger = (*Conn)(nil)
	_ driver.Stmt   = (*Stmt)(nil)
	_ driver.Rows   = (*Rows)(nil)
)
