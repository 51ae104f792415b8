// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/canonical/sqlexpr/dialect"
	"github.com/canonical/sqlexpr/expr"
	"github.com/canonical/sqlexpr/index"
	"github.com/canonical/sqlexpr/internal/logger"
	"github.com/canonical/sqlexpr/internal/typeinfo"
	"github.com/canonical/sqlexpr/schema"
)

// M is a row decoded by column name. Any named map type with string keys
// can be used in its place.
//
//	m := sqlexpr.M{}
//	err := db.Query(ctx, stmt).Get(m) // => sqlexpr.M{"country": "Canada", "total": 3}
type M map[string]any

var ErrNoRows = sql.ErrNoRows
var ErrTXDone = sql.ErrTxDone

// stmtCache stores the driver prepared statements associated to the
// Statement objects.
var stmtCache = newStatementCache()

// Statement is a query compiled for a dialect and ready to be run on any
// [DB] of that dialect.
type Statement struct {
	// cacheID is used to look up the driver prepared statements associated
	// with this statement.
	cacheID uint64
	sql     string
	params  []any
	conn    *dialect.Connection
}

// Prepare compiles q for conn and generates a [Statement].
func Prepare(q *expr.Query, conn *dialect.Connection) (*Statement, error) {
	sql, params, err := expr.NewCompiler(q, conn, "").AsSQL()
	if err != nil {
		return nil, err
	}
	return stmtCache.newStatement(sql, params, conn), nil
}

// MustPrepare is the same as [Prepare] except that it panics on error.
func MustPrepare(q *expr.Query, conn *dialect.Connection) *Statement {
	s, err := Prepare(q, conn)
	if err != nil {
		panic(err)
	}
	return s
}

// SQL returns the compiled SELECT statement.
func (s *Statement) SQL() string {
	return s.sql
}

// Params returns the values bound to the statement placeholders.
func (s *Statement) Params() []any {
	return append([]any(nil), s.params...)
}

type DB struct {
	// cacheID is used to look up the cached driver prepared statements
	// prepared on this database.
	cacheID uint64
	// sqldb is the underlying database/sql DB object.
	sqldb  *sql.DB
	conn   *dialect.Connection
	editor schema.Editor
}

// NewDB creates a new [DB] from a [sql.DB] speaking the dialect described
// by conn.
func NewDB(sqldb *sql.DB, conn *dialect.Connection) *DB {
	if sqldb == nil || conn == nil {
		return nil
	}
	db := stmtCache.newDB(sqldb, conn)
	db.editor = schema.ForConnection(conn)
	return db
}

// Open opens a SQLite database through [DriverName] and detects the
// version of the library serving it.
func Open(ctx context.Context, dsn string) (*DB, error) {
	sqldb, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, err
	}
	conn, err := dialect.Detect(ctx, sqldb)
	if err != nil {
		sqldb.Close()
		return nil, err
	}
	logger.Debug("opened database", "dialect", conn.String())
	return NewDB(sqldb, conn), nil
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// Connection returns the dialect of the database.
func (db *DB) Connection() *dialect.Connection {
	return db.conn
}

// Editor returns the schema editor for the database dialect.
func (db *DB) Editor() schema.Editor {
	return db.editor
}

// Prepare compiles q for the dialect of the database.
func (db *DB) Prepare(q *expr.Query) (*Statement, error) {
	return Prepare(q, db.conn)
}

// CreateIndex creates idx on the table of m. The index is named from m if
// it has no name yet.
func (db *DB) CreateIndex(ctx context.Context, m expr.Model, idx *index.Index) error {
	sql, err := idx.CreateSQL(m, db.editor, db.conn, "")
	if err != nil {
		return err
	}
	logger.Debug("creating index", "name", idx.Name(), "sql", sql)
	if _, err := db.sqldb.ExecContext(ctx, sql); err != nil {
		return errors.Wrapf(err, "cannot create index %q", idx.Name())
	}
	return nil
}

// DropIndex removes idx from the table of m.
func (db *DB) DropIndex(ctx context.Context, m expr.Model, idx *index.Index) error {
	sql, err := idx.RemoveSQL(m, db.editor)
	if err != nil {
		return err
	}
	logger.Debug("dropping index", "name", idx.Name(), "sql", sql)
	if _, err := db.sqldb.ExecContext(ctx, sql); err != nil {
		return errors.Wrapf(err, "cannot drop index %q", idx.Name())
	}
	return nil
}

// Query represents a query on a database. It is designed to be run once.
type Query struct {
	// run executes the Query against the DB or the TX.
	run func(context.Context) (*sql.Rows, error)
	ctx context.Context
	err error
}

// Iterator is used to iterate over the results of the query.
type Iterator struct {
	rows *sql.Rows
	cols []string
	err  error
}

func checkDialect(s *Statement, conn *dialect.Connection) error {
	if s.conn.Vendor != conn.Vendor {
		return fmt.Errorf("cannot run statement compiled for %s on %s", s.conn.Vendor, conn.Vendor)
	}
	return nil
}

// Query builds a new query from a context and a [Statement]. The query is
// run on the database when one of [Query.Iter], [Query.Run], [Query.Get] or
// [Query.GetAll] is executed.
func (db *DB) Query(ctx context.Context, s *Statement) *Query {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := checkDialect(s, db.conn); err != nil {
		return &Query{ctx: ctx, err: err}
	}

	run := func(innerCtx context.Context) (*sql.Rows, error) {
		sqlstmt, ok := stmtCache.lookupStmt(db, s)
		if !ok {
			var err error
			sqlstmt, err = stmtCache.driverPrepareStmt(ctx, db, s)
			if err != nil {
				return nil, err
			}
		}
		return sqlstmt.QueryContext(innerCtx, s.params...)
	}

	return &Query{run: run, ctx: ctx}
}

// Run runs the query and discards the results.
func (q *Query) Run() error {
	iter := q.Iter()
	for iter.Next() {
	}
	return iter.Close()
}

// Get runs the query and decodes the first row returned into the provided
// output arguments. It returns [ErrNoRows] if no results were found.
func (q *Query) Get(outputArgs ...any) error {
	if q.err != nil {
		return q.err
	}
	iter := q.Iter()
	if !iter.Next() {
		err := iter.Close()
		if err == nil {
			err = ErrNoRows
		}
		return err
	}
	err := iter.Get(outputArgs...)
	if cerr := iter.Close(); err == nil {
		err = cerr
	}
	return err
}

// Iter returns an [Iterator] to iterate through the results row by row.
// [Iterator.Close] must be run once iteration is finished.
func (q *Query) Iter() *Iterator {
	if q.err != nil {
		return &Iterator{err: q.err}
	}
	rows, err := q.run(q.ctx)
	if err != nil {
		return &Iterator{err: err}
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return &Iterator{err: err}
	}
	return &Iterator{rows: rows, cols: cols}
}

// Next prepares the next row for [Iterator.Get]. If an error occurs during
// iteration it will be returned with [Iterator.Close].
func (iter *Iterator) Next() bool {
	if iter.err != nil || iter.rows == nil {
		return false
	}
	return iter.rows.Next()
}

// Columns returns the names of the result columns.
func (iter *Iterator) Columns() []string {
	return iter.cols
}

// Get decodes the current row into the output arguments. The arguments are
// either a single map with string keys, a single pointer to a struct whose
// "db" tags name the columns, or one pointer per column.
func (iter *Iterator) Get(outputArgs ...any) (err error) {
	if iter.err != nil {
		return iter.err
	}
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot get result: %s", err)
		}
	}()
	if iter.rows == nil {
		return fmt.Errorf("iteration ended")
	}

	if len(outputArgs) == 1 {
		v := reflect.ValueOf(outputArgs[0])
		switch {
		case v.Kind() == reflect.Map:
			return iter.scanMap(v)
		case v.Kind() == reflect.Pointer && !v.IsNil() && isRowStruct(v.Elem().Type()):
			return iter.scanStruct(v.Elem())
		}
	}
	if len(outputArgs) != len(iter.cols) {
		return fmt.Errorf("have %d columns, got %d output arguments", len(iter.cols), len(outputArgs))
	}
	for i, arg := range outputArgs {
		if v := reflect.ValueOf(arg); v.Kind() != reflect.Pointer || v.IsNil() {
			return fmt.Errorf("need pointer for column %q, got %T", iter.cols[i], arg)
		}
	}
	return iter.rows.Scan(outputArgs...)
}

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
var timeType = reflect.TypeOf(time.Time{})

// isRowStruct reports whether t is a struct decoded field by field rather
// than a single column value.
func isRowStruct(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t != timeType && !reflect.PointerTo(t).Implements(scannerType)
}

func (iter *Iterator) scanMap(m reflect.Value) error {
	if m.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("map type %s must have string keys", m.Type())
	}
	if m.IsNil() {
		return fmt.Errorf("got nil map")
	}
	values := make([]any, len(iter.cols))
	ptrs := make([]any, len(iter.cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := iter.rows.Scan(ptrs...); err != nil {
		return err
	}
	elem := m.Type().Elem()
	for i, col := range iter.cols {
		v := reflect.ValueOf(values[i])
		if !v.IsValid() {
			v = reflect.Zero(elem)
		} else if !v.Type().AssignableTo(elem) {
			return fmt.Errorf("cannot store %T of column %q in %s", values[i], col, m.Type())
		}
		m.SetMapIndex(reflect.ValueOf(col).Convert(m.Type().Key()), v)
	}
	return nil
}

func (iter *Iterator) scanStruct(s reflect.Value) error {
	info, err := typeinfo.GetTypeInfo(s.Interface())
	if err != nil {
		return err
	}
	byColumn := make(map[string]int, len(info.Fields))
	for _, f := range info.Fields {
		byColumn[f.Column] = f.Index
		byColumn[f.Name] = f.Index
	}
	ptrs := make([]any, len(iter.cols))
	for i, col := range iter.cols {
		n, ok := byColumn[col]
		if !ok {
			return fmt.Errorf("no field of %s matches column %q", s.Type(), col)
		}
		ptrs[i] = s.Field(n).Addr().Interface()
	}
	return iter.rows.Scan(ptrs...)
}

// Close finishes the iteration and returns any errors encountered. Close
// can be called multiple times on the [Iterator] and the same error will be
// returned.
func (iter *Iterator) Close() error {
	if iter.rows == nil {
		return iter.err
	}
	err := iter.rows.Close()
	if err == nil {
		err = iter.rows.Err()
	}
	iter.rows = nil
	if iter.err != nil {
		return iter.err
	}
	iter.err = err
	return err
}

// GetAll iterates over the query and scans all rows into the provided
// slice. sliceArg must be a pointer to a slice of structs,
// struct pointers or maps.
//
// [ErrNoRows] will be returned if no rows are found.
func (q *Query) GetAll(sliceArg any) (err error) {
	if q.err != nil {
		return q.err
	}

	ptrVal := reflect.ValueOf(sliceArg)
	if ptrVal.Kind() != reflect.Pointer {
		return fmt.Errorf("need pointer to slice, got %s", ptrVal.Kind())
	}
	if ptrVal.IsNil() {
		return fmt.Errorf("need pointer to slice, got nil")
	}
	sliceVal := ptrVal.Elem()
	if sliceVal.Kind() != reflect.Slice {
		return fmt.Errorf("need pointer to slice, got pointer to %s", sliceVal.Kind())
	}
	elemType := sliceVal.Type().Elem()
	switch elemType.Kind() {
	case reflect.Pointer:
		if elemType.Elem().Kind() != reflect.Struct {
			return fmt.Errorf("need slice of structs/maps, got slice of pointer to %s", elemType.Elem().Kind())
		}
	case reflect.Struct, reflect.Map:
	default:
		return fmt.Errorf("need slice of structs/maps, got slice of %s", elemType.Kind())
	}

	rowsReturned := false
	iter := q.Iter()
	for iter.Next() {
		rowsReturned = true
		var outputArg reflect.Value
		switch elemType.Kind() {
		case reflect.Pointer:
			outputArg = reflect.New(elemType.Elem())
		case reflect.Struct:
			outputArg = reflect.New(elemType)
		case reflect.Map:
			outputArg = reflect.MakeMap(elemType)
		}
		if err := iter.Get(outputArg.Interface()); err != nil {
			iter.Close()
			return err
		}
		if elemType.Kind() == reflect.Struct {
			outputArg = outputArg.Elem()
		}
		sliceVal = reflect.Append(sliceVal, outputArg)
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if !rowsReturned {
		return ErrNoRows
	}
	ptrVal.Elem().Set(sliceVal)
	return nil
}

// TX represents a transaction on the database.
type TX struct {
	sqltx *sql.Tx
	db    *DB
	done  int32
}

func (tx *TX) isDone() bool {
	return atomic.LoadInt32(&tx.done) == 1
}

func (tx *TX) setDone() error {
	if !atomic.CompareAndSwapInt32(&tx.done, 0, 1) {
		return ErrTXDone
	}
	return nil
}

// Begin starts a transaction. A transaction must be ended with a
// [TX.Commit] or [TX.Rollback].
func (db *DB) Begin(ctx context.Context, opts *TXOptions) (*TX, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sqltx, err := db.sqldb.BeginTx(ctx, opts.plainTXOptions())
	if err != nil {
		return nil, err
	}
	return &TX{sqltx: sqltx, db: db}, nil
}

// Commit commits the transaction.
func (tx *TX) Commit() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Commit()
	}
	return err
}

// Rollback aborts the transaction.
func (tx *TX) Rollback() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Rollback()
	}
	return err
}

// TXOptions holds the transaction options to be used in [DB.Begin].
type TXOptions struct {
	// Isolation is the transaction isolation level.
	// If zero, the driver or database's default level is used.
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

func (txopts *TXOptions) plainTXOptions() *sql.TxOptions {
	if txopts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: txopts.Isolation, ReadOnly: txopts.ReadOnly}
}

// Query builds a new query in the transaction from a context and a
// [Statement].
func (tx *TX) Query(ctx context.Context, s *Statement) *Query {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx.isDone() {
		return &Query{ctx: ctx, err: ErrTXDone}
	}
	if err := checkDialect(s, tx.db.conn); err != nil {
		return &Query{ctx: ctx, err: err}
	}

	run := func(innerCtx context.Context) (*sql.Rows, error) {
		sqlstmt, ok := stmtCache.lookupStmt(tx.db, s)
		if ok {
			// Register the prepared statement on the transaction. This does
			// not re-prepare the statement on the driver. The txstmt is
			// closed by database/sql when the transaction ends.
			return tx.sqltx.Stmt(sqlstmt).QueryContext(innerCtx, s.params...)
		}
		return tx.sqltx.QueryContext(innerCtx, s.sql, s.params...)
	}

	return &Query{ctx: ctx, run: run}
}
