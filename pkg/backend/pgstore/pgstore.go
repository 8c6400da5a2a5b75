// Package pgstore implements backend.Store over Postgres with offset/limit
// range queries.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"socialclient/pkg/backend"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool     *pgxpool.Pool
	notifier backend.Notifier
}

func New(pool *pgxpool.Pool, notifier backend.Notifier) *Store {
	return &Store{pool: pool, notifier: notifier}
}

// Migrate creates the tables the repositories read and write.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(Schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return convert(err)
		}
	}
	return nil
}

func (s *Store) FetchPage(ctx context.Context, q backend.Query, page int, size int) ([]backend.Row, int, error) {
	if page < 1 || size < 1 {
		return nil, 0, fmt.Errorf("invalid page %d of size %d", page, size)
	}
	count, err := s.Count(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	from, _ := backend.Offsets(page, size)
	var args []any
	sql := "SELECT * FROM " + ident(q.Table) + where(q.Where, q.Any, &args) + orderBy(q.Order)
	args = append(args, from, size)
	sql += fmt.Sprintf(" OFFSET $%d LIMIT $%d", len(args)-1, len(args))
	rows, err := s.query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	return rows, count, nil
}

func (s *Store) Select(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	var args []any
	sql := "SELECT * FROM " + ident(q.Table) + where(q.Where, q.Any, &args) + orderBy(q.Order)
	return s.query(ctx, sql, args...)
}

func (s *Store) Count(ctx context.Context, q backend.Query) (int, error) {
	var args []any
	sql := "SELECT count(*) FROM " + ident(q.Table) + where(q.Where, q.Any, &args)
	var count int64
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, convert(err)
	}
	return int(count), nil
}

func (s *Store) Insert(ctx context.Context, table string, rows ...backend.Row) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, row := range rows {
		cols := columns(row)
		names := make([]string, len(cols))
		params := make([]string, len(cols))
		args := make([]any, len(cols))
		for i, c := range cols {
			names[i] = ident(c)
			params[i] = fmt.Sprintf("$%d", i+1)
			args[i] = row[c]
		}
		sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", ident(table), strings.Join(names, ", "), strings.Join(params, ", "))
		batch.Queue(sql, args...)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return convert(err)
	}
	defer tx.Rollback(ctx)
	br := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return convert(err)
		}
	}
	if err := br.Close(); err != nil {
		return convert(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return convert(err)
	}
	for _, row := range rows {
		s.publish(ctx, backend.Change{Table: table, Kind: backend.Inserted, Row: row})
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table string, fields backend.Row, match ...backend.Match) error {
	cols := columns(fields)
	var args []any
	sets := make([]string, len(cols))
	for i, c := range cols {
		args = append(args, fields[c])
		sets[i] = fmt.Sprintf("%s = $%d", ident(c), len(args))
	}
	sql := fmt.Sprintf("UPDATE %s SET %s", ident(table), strings.Join(sets, ", ")) + where(match, nil, &args) + " RETURNING *"
	changed, err := s.query(ctx, sql, args...)
	if err != nil {
		return err
	}
	for _, row := range changed {
		s.publish(ctx, backend.Change{Table: table, Kind: backend.Updated, Row: row})
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, match ...backend.Match) error {
	var args []any
	sql := "DELETE FROM " + ident(table) + where(match, nil, &args) + " RETURNING *"
	deleted, err := s.query(ctx, sql, args...)
	if err != nil {
		return err
	}
	for _, row := range deleted {
		s.publish(ctx, backend.Change{Table: table, Kind: backend.Deleted, Row: row})
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, table string, fn func(backend.Change)) (backend.Unsubscribe, error) {
	if s.notifier == nil {
		return nil, fmt.Errorf("subscriptions to %s are not available without a notifier", table)
	}
	return s.notifier.Subscribe(ctx, table, fn)
}

func (s *Store) publish(ctx context.Context, change backend.Change) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ctx, change)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]backend.Row, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, convert(err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, convert(err)
	}
	out := make([]backend.Row, 0, len(maps))
	for _, m := range maps {
		out = append(out, backend.Row(m))
	}
	return out, nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func columns(row backend.Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func where(all []backend.Match, anyOf []backend.Match, args *[]any) string {
	var clauses []string
	for _, m := range all {
		clauses = append(clauses, clause(m, args))
	}
	if len(anyOf) > 0 {
		var or []string
		for _, m := range anyOf {
			or = append(or, clause(m, args))
		}
		clauses = append(clauses, "("+strings.Join(or, " OR ")+")")
	}
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func clause(m backend.Match, args *[]any) string {
	switch m.Op {
	case backend.OpIsNull:
		return ident(m.Field) + " IS NULL"
	case backend.OpIn:
		*args = append(*args, m.Value)
		return fmt.Sprintf("%s = ANY($%d)", ident(m.Field), len(*args))
	case backend.OpILike:
		*args = append(*args, m.Value)
		return fmt.Sprintf("%s ILIKE $%d", ident(m.Field), len(*args))
	default:
		*args = append(*args, m.Value)
		return fmt.Sprintf("%s = $%d", ident(m.Field), len(*args))
	}
}

func orderBy(order []backend.Order) string {
	if len(order) == 0 {
		return ""
	}
	parts := make([]string, len(order))
	for i, o := range order {
		parts[i] = ident(o.Field)
		if o.Desc {
			parts[i] += " DESC"
		}
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func convert(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", backend.ErrNotFound, err.Error())
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &backend.RemoteError{Code: pgErr.Code, Message: pgErr.Message, Err: err}
	}
	return &backend.RemoteError{Code: backend.CodeUnknown, Message: err.Error(), Err: err}
}
