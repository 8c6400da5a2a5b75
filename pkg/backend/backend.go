// Package backend describes the remote data source the client core drives:
// offset-based page queries, row CRUD, change subscriptions and object
// storage. Drivers live in the mongostore, pgstore and memstore packages.
package backend

import (
	"context"
)

// Row is one record of a table, keyed by column name.
type Row map[string]any

type Op int

const (
	OpEq Op = iota
	OpIn
	OpIsNull
	OpILike
)

// Match is a single filter clause.
type Match struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, value any) Match {
	return Match{Field: field, Op: OpEq, Value: value}
}

func In(field string, values []string) Match {
	return Match{Field: field, Op: OpIn, Value: values}
}

func IsNull(field string) Match {
	return Match{Field: field, Op: OpIsNull}
}

// ILike matches case-insensitively against a pattern where % stands for
// any run of characters and _ for a single character.
func ILike(field string, pattern string) Match {
	return Match{Field: field, Op: OpILike, Value: pattern}
}

type Order struct {
	Field string
	Desc  bool
}

func Asc(field string) Order  { return Order{Field: field} }
func Desc(field string) Order { return Order{Field: field, Desc: true} }

// Query selects rows of Table matching every clause of Where and, when Any
// is not empty, at least one clause of Any.
type Query struct {
	Table string
	Where []Match
	Any   []Match
	Order []Order
}

func From(table string) Query {
	return Query{Table: table}
}

func (q Query) Filter(m ...Match) Query {
	q.Where = append(append([]Match(nil), q.Where...), m...)
	return q
}

func (q Query) Or(m ...Match) Query {
	q.Any = append(append([]Match(nil), q.Any...), m...)
	return q
}

func (q Query) OrderBy(o ...Order) Query {
	q.Order = append(append([]Order(nil), q.Order...), o...)
	return q
}

// Offsets returns the inclusive row range of a 1-based page.
func Offsets(page int, size int) (from int, to int) {
	return (page - 1) * size, page*size - 1
}

type ChangeKind string

const (
	Inserted ChangeKind = "INSERT"
	Updated  ChangeKind = "UPDATE"
	Deleted  ChangeKind = "DELETE"
)

// Change describes one row written to a table.
type Change struct {
	Table string     `json:"table"`
	Kind  ChangeKind `json:"kind"`
	Row   Row        `json:"row"`
}

// Unsubscribe stops a subscription. It is safe to call more than once.
type Unsubscribe func()

type Store interface {
	// FetchPage returns the rows of a 1-based page along with the total
	// number of rows matching the query.
	FetchPage(ctx context.Context, q Query, page int, size int) ([]Row, int, error)
	Select(ctx context.Context, q Query) ([]Row, error)
	Count(ctx context.Context, q Query) (int, error)
	Insert(ctx context.Context, table string, rows ...Row) error
	Update(ctx context.Context, table string, fields Row, where ...Match) error
	Delete(ctx context.Context, table string, where ...Match) error
	Subscribe(ctx context.Context, table string, fn func(Change)) (Unsubscribe, error)
}

// Notifier fans row changes out to subscribers, possibly in other processes.
type Notifier interface {
	Publish(ctx context.Context, change Change) error
	Subscribe(ctx context.Context, table string, fn func(Change)) (Unsubscribe, error)
}

// Constraint is a unique constraint over the named columns of a table.
type Constraint struct {
	Table  string
	Fields []string
}

type ObjectStore interface {
	Upload(ctx context.Context, bucket string, path string, data []byte, contentType string) error
	URL(ctx context.Context, bucket string, path string) (string, error)
}
