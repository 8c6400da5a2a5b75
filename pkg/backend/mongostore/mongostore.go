// Package mongostore implements backend.Store over MongoDB, one collection
// per table.
package mongostore

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"socialclient/pkg/backend"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	db       *mongo.Database
	notifier backend.Notifier
}

func New(client *mongo.Client, database string, notifier backend.Notifier) *Store {
	return &Store{db: client.Database(database), notifier: notifier}
}

// EnsureUnique creates a unique index named after the postgres constraint
// convention so duplicate key errors read the same across drivers.
func (s *Store) EnsureUnique(ctx context.Context, table string, fields ...string) error {
	keys := bson.D{}
	for _, f := range fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	model := mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(true).SetName(backend.ConstraintName(table, fields...)),
	}
	_, err := s.db.Collection(table).Indexes().CreateOne(ctx, model)
	return err
}

func (s *Store) FetchPage(ctx context.Context, q backend.Query, page int, size int) ([]backend.Row, int, error) {
	if page < 1 || size < 1 {
		return nil, 0, fmt.Errorf("invalid page %d of size %d", page, size)
	}
	collection := s.db.Collection(q.Table)
	f := filter(q.Where, q.Any)
	count, err := collection.CountDocuments(ctx, f)
	if err != nil {
		return nil, 0, convert(err)
	}
	from, _ := backend.Offsets(page, size)
	opts := options.Find().
		SetSort(sortOf(q.Order)).
		SetSkip(int64(from)).
		SetLimit(int64(size)).
		SetProjection(bson.M{"_id": 0})
	rows, err := s.find(ctx, collection, f, opts)
	if err != nil {
		return nil, 0, err
	}
	return rows, int(count), nil
}

func (s *Store) Select(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	opts := options.Find().SetSort(sortOf(q.Order)).SetProjection(bson.M{"_id": 0})
	return s.find(ctx, s.db.Collection(q.Table), filter(q.Where, q.Any), opts)
}

func (s *Store) Count(ctx context.Context, q backend.Query) (int, error) {
	count, err := s.db.Collection(q.Table).CountDocuments(ctx, filter(q.Where, q.Any))
	if err != nil {
		return 0, convert(err)
	}
	return int(count), nil
}

func (s *Store) Insert(ctx context.Context, table string, rows ...backend.Row) error {
	if len(rows) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, bson.M(row))
	}
	if _, err := s.db.Collection(table).InsertMany(ctx, docs); err != nil {
		return convert(err)
	}
	for _, row := range rows {
		s.publish(ctx, backend.Change{Table: table, Kind: backend.Inserted, Row: row})
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table string, fields backend.Row, where ...backend.Match) error {
	f := filter(where, nil)
	_, err := s.db.Collection(table).UpdateMany(ctx, f, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return convert(err)
	}
	row := backend.Row{}
	for _, m := range where {
		if m.Op == backend.OpEq {
			row[m.Field] = m.Value
		}
	}
	for k, v := range fields {
		row[k] = v
	}
	s.publish(ctx, backend.Change{Table: table, Kind: backend.Updated, Row: row})
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, where ...backend.Match) error {
	collection := s.db.Collection(table)
	f := filter(where, nil)
	deleted, err := s.find(ctx, collection, f, options.Find().SetProjection(bson.M{"_id": 0}))
	if err != nil {
		return err
	}
	if _, err := collection.DeleteMany(ctx, f); err != nil {
		return convert(err)
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

func (s *Store) find(ctx context.Context, collection *mongo.Collection, f bson.D, opts *options.FindOptions) ([]backend.Row, error) {
	cursor, err := collection.Find(ctx, f, opts)
	if err != nil {
		return nil, convert(err)
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, convert(err)
	}
	rows := make([]backend.Row, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, backend.Row(doc))
	}
	return rows, nil
}

func filter(where []backend.Match, anyOf []backend.Match) bson.D {
	f := bson.D{}
	if len(where) > 0 {
		and := bson.A{}
		for _, m := range where {
			and = append(and, clause(m))
		}
		f = append(f, bson.E{Key: "$and", Value: and})
	}
	if len(anyOf) > 0 {
		or := bson.A{}
		for _, m := range anyOf {
			or = append(or, clause(m))
		}
		f = append(f, bson.E{Key: "$or", Value: or})
	}
	return f
}

func clause(m backend.Match) bson.M {
	switch m.Op {
	case backend.OpIn:
		return bson.M{m.Field: bson.M{"$in": m.Value}}
	case backend.OpIsNull:
		return bson.M{m.Field: nil}
	case backend.OpILike:
		return bson.M{m.Field: primitive.Regex{Pattern: likeToRegex(fmt.Sprint(m.Value)), Options: "is"}}
	default:
		return bson.M{m.Field: m.Value}
	}
}

func likeToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
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
	return b.String()
}

func sortOf(order []backend.Order) bson.D {
	sort := bson.D{}
	for _, o := range order {
		dir := 1
		if o.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: o.Field, Value: dir})
	}
	return sort
}

var dupIndex = regexp.MustCompile(`index: (\S+) dup key`)

func convert(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		constraint := "unknown"
		if m := dupIndex.FindStringSubmatch(err.Error()); m != nil {
			constraint = m[1]
		}
		return backend.UniqueViolation(constraint, err)
	}
	if err == mongo.ErrNoDocuments {
		return fmt.Errorf("%w: %s", backend.ErrNotFound, err.Error())
	}
	return &backend.RemoteError{Code: "mongo", Message: err.Error(), Err: err}
}
