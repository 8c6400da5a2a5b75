// Package memstore is an in-process backend.Store used by tests and the
// "memory" store driver.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"socialclient/pkg/backend"
	"socialclient/pkg/realtime"
)

type unique struct {
	table  string
	fields []string
}

type Store struct {
	mu       sync.RWMutex
	tables   map[string][]backend.Row
	uniques  []unique
	notifier backend.Notifier
	// fail, when set, is consulted before every write.
	fail func(op string, table string) error
}

type Option func(*Store)

// WithUnique declares a unique constraint over the given columns.
func WithUnique(table string, fields ...string) Option {
	return func(s *Store) {
		s.uniques = append(s.uniques, unique{table: table, fields: fields})
	}
}

// WithConstraints declares several unique constraints at once.
func WithConstraints(constraints ...backend.Constraint) Option {
	return func(s *Store) {
		for _, c := range constraints {
			WithUnique(c.Table, c.Fields...)(s)
		}
	}
}

func WithNotifier(n backend.Notifier) Option {
	return func(s *Store) {
		s.notifier = n
	}
}

// WithFailures lets tests inject remote write failures.
func WithFailures(fail func(op string, table string) error) Option {
	return func(s *Store) {
		s.fail = fail
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		tables:   make(map[string][]backend.Row),
		notifier: realtime.NewLocal(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	sharedOnce sync.Once
	shared     *Store
)

// Shared returns the process-wide store handed to every component that
// selects the memory driver.
func Shared(opts ...Option) *Store {
	sharedOnce.Do(func() {
		shared = New(opts...)
	})
	return shared
}

// SetFailures replaces the failure hook.
func (s *Store) SetFailures(fail func(op string, table string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *Store) FetchPage(ctx context.Context, q backend.Query, page int, size int) ([]backend.Row, int, error) {
	if page < 1 || size < 1 {
		return nil, 0, fmt.Errorf("invalid page %d of size %d", page, size)
	}
	rows, err := s.Select(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	from, to := backend.Offsets(page, size)
	if from >= len(rows) {
		return []backend.Row{}, len(rows), nil
	}
	if to >= len(rows) {
		to = len(rows) - 1
	}
	return rows[from : to+1], len(rows), nil
}

func (s *Store) Select(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []backend.Row
	for _, row := range s.tables[q.Table] {
		ok, err := matchesQuery(row, q)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, maps.Clone(row))
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.Order {
				c := compare(out[i][o.Field], out[j][o.Field])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, q backend.Query) (int, error) {
	rows, err := s.Select(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Store) Insert(ctx context.Context, table string, rows ...backend.Row) error {
	s.mu.Lock()
	if err := s.check("insert", table); err != nil {
		s.mu.Unlock()
		return err
	}
	pending := append([]backend.Row(nil), s.tables[table]...)
	for _, row := range rows {
		if err := s.checkUnique(table, pending, row); err != nil {
			s.mu.Unlock()
			return err
		}
		pending = append(pending, maps.Clone(row))
	}
	s.tables[table] = pending
	s.mu.Unlock()

	for _, row := range rows {
		s.publish(ctx, backend.Change{Table: table, Kind: backend.Inserted, Row: maps.Clone(row)})
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table string, fields backend.Row, where ...backend.Match) error {
	s.mu.Lock()
	if err := s.check("update", table); err != nil {
		s.mu.Unlock()
		return err
	}
	var changed []backend.Row
	for _, row := range s.tables[table] {
		ok, err := matchesAll(row, where)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		if !ok {
			continue
		}
		for k, v := range fields {
			row[k] = v
		}
		changed = append(changed, maps.Clone(row))
	}
	s.mu.Unlock()

	for _, row := range changed {
		s.publish(ctx, backend.Change{Table: table, Kind: backend.Updated, Row: row})
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, where ...backend.Match) error {
	s.mu.Lock()
	if err := s.check("delete", table); err != nil {
		s.mu.Unlock()
		return err
	}
	var kept, deleted []backend.Row
	for _, row := range s.tables[table] {
		ok, err := matchesAll(row, where)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		if ok {
			deleted = append(deleted, row)
		} else {
			kept = append(kept, row)
		}
	}
	s.tables[table] = kept
	s.mu.Unlock()

	for _, row := range deleted {
		s.publish(ctx, backend.Change{Table: table, Kind: backend.Deleted, Row: row})
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, table string, fn func(backend.Change)) (backend.Unsubscribe, error) {
	return s.notifier.Subscribe(ctx, table, fn)
}

func (s *Store) publish(ctx context.Context, change backend.Change) {
	s.notifier.Publish(ctx, change)
}

func (s *Store) check(op string, table string) error {
	if s.fail == nil {
		return nil
	}
	if err := s.fail(op, table); err != nil {
		return &backend.RemoteError{Code: "fault", Message: err.Error(), Err: err}
	}
	return nil
}

func (s *Store) checkUnique(table string, rows []backend.Row, row backend.Row) error {
	for _, u := range s.uniques {
		if u.table != table {
			continue
		}
		for _, existing := range rows {
			same := true
			for _, f := range u.fields {
				if !equal(existing[f], row[f]) {
					same = false
					break
				}
			}
			if same {
				return backend.UniqueViolation(backend.ConstraintName(table, u.fields...), nil)
			}
		}
	}
	return nil
}

func matchesQuery(row backend.Row, q backend.Query) (bool, error) {
	ok, err := matchesAll(row, q.Where)
	if err != nil || !ok {
		return false, err
	}
	if len(q.Any) == 0 {
		return true, nil
	}
	for _, m := range q.Any {
		ok, err := matches(row, m)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func matchesAll(row backend.Row, where []backend.Match) (bool, error) {
	for _, m := range where {
		ok, err := matches(row, m)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matches(row backend.Row, m backend.Match) (bool, error) {
	v := row[m.Field]
	switch m.Op {
	case backend.OpEq:
		return equal(v, m.Value), nil
	case backend.OpIn:
		values, _ := m.Value.([]string)
		for _, candidate := range values {
			if equal(v, candidate) {
				return true, nil
			}
		}
		return false, nil
	case backend.OpIsNull:
		return isNull(v), nil
	case backend.OpILike:
		s, ok := v.(string)
		if !ok {
			return false, nil
		}
		re, err := likePattern(fmt.Sprint(m.Value))
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	}
	return false, fmt.Errorf("unsupported match operator %d", m.Op)
}

func likePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func isNull(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case *time.Time:
		return t == nil
	}
	return false
}

func equal(a, b any) bool {
	if isNull(a) || isNull(b) {
		return isNull(a) && isNull(b)
	}
	if ta, ok := asTime(a); ok {
		tb, ok := asTime(b)
		return ok && ta.Equal(tb)
	}
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	return a == b
}

func compare(a, b any) int {
	switch {
	case isNull(a) && isNull(b):
		return 0
	case isNull(a):
		return -1
	case isNull(b):
		return 1
	}
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
