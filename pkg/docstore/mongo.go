// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package docstore

import (
	"context"
	"time"

	"github.com/acornlabs/acorn/pkg/document"
	"github.com/acornlabs/acorn/pkg/util/cache"
	"github.com/acornlabs/acorn/pkg/util/log"
	"github.com/acornlabs/acorn/pkg/util/timeutil"
	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// cachedDoc is one entry of the MongoStore read cache.
type cachedDoc struct {
	doc     *document.Document
	fetched time.Time
}

// MongoStore is the MongoDB Store adapter. The protocol's conditional update
// maps directly onto findOneAndUpdate with the conditions folded into the
// query filter, which MongoDB executes atomically per document.
//
// Reads of the nodes collection go through an LRU cache bounded by
// cacheSize; Find honors the caller's maxCacheAge against the entry's fetch
// time. The other collections are small and always read fresh.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	nodes  *cache.UnorderedCache[string, cachedDoc]
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore connects to the given MongoDB URI and returns a store over
// the named database.
func NewMongoStore(ctx context.Context, uri, dbName string, cacheSize int) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "mongo ping")
	}
	s := &MongoStore{
		client: client,
		db:     client.Database(dbName),
		nodes: cache.NewUnorderedCache[string, cachedDoc](cache.Config[string, cachedDoc]{
			Policy: cache.CacheLRU,
			ShouldEvict: func(size int, _ string, _ cachedDoc) bool {
				return size > cacheSize
			},
		}),
	}
	return s, nil
}

func (s *MongoStore) coll(c Collection) *mongo.Collection {
	return s.db.Collection(string(c))
}

// wrapMongoErr classifies a driver error. Timeouts and broken connections
// become ErrTransient so the retrying layer can take another swing; anything
// else is surfaced as-is.
func wrapMongoErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) ||
		errors.Is(err, context.DeadlineExceeded) {
		return errors.Mark(errors.Wrapf(err, "%s", op), ErrTransient)
	}
	return errors.Wrapf(err, "%s", op)
}

// toPlain normalizes the driver's bson types into the plain nested
// map[string]interface{} shape the document codec expects.
func toPlain(x interface{}) interface{} {
	switch t := x.(type) {
	case bson.M:
		out := make(map[string]interface{}, len(t))
		for k, v := range t {
			out[k] = toPlain(v)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = toPlain(e.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(t))
		for i, v := range t {
			out[i] = toPlain(v)
		}
		return out
	default:
		return x
	}
}

func decodeRaw(raw bson.M) (*document.Document, error) {
	return document.Decode(toPlain(raw).(map[string]interface{}))
}

// updateDocument renders op's operations as a MongoDB update document. Map
// entries address "field.revision" paths; revision strings never contain
// dots, and property names are escaped before they reach the store.
func updateDocument(op *UpdateOp) bson.M {
	set := bson.M{}
	unset := bson.M{}
	inc := bson.M{document.FieldModCount: int64(1)}
	max := bson.M{}
	for _, o := range op.Ops {
		switch o.Type {
		case OpSetValue:
			set[o.Field] = o.Value.Native()
		case OpRemoveValue:
			unset[o.Field] = ""
		case OpSetMapEntry:
			set[o.Field+"."+o.Rev.String()] = o.StrValue
		case OpRemoveMapEntry:
			unset[o.Field+"."+o.Rev.String()] = ""
		case OpIncrement:
			if o.Field == document.FieldModCount {
				n, _ := inc[o.Field].(int64)
				inc[o.Field] = n + o.Num
			} else {
				inc[o.Field] = o.Num
			}
		case OpMax:
			max[o.Field] = o.Num
		}
	}
	update := bson.M{"$inc": inc}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(max) > 0 {
		update["$max"] = max
	}
	return update
}

// filterDocument renders op's id and conditions as a MongoDB query filter.
func filterDocument(op *UpdateOp) bson.M {
	filter := bson.M{document.FieldID: op.ID}
	for _, cond := range op.Conds {
		switch cond.Type {
		case CondExists:
			filter[cond.Field+"."+cond.Rev.String()] = bson.M{"$exists": true}
		case CondNotExists:
			filter[cond.Field+"."+cond.Rev.String()] = bson.M{"$exists": false}
		case CondEquals:
			filter[cond.Field+"."+cond.Rev.String()] = cond.StrValue
		case CondScalarEquals:
			filter[cond.Field] = cond.Value.Native()
		}
	}
	return filter
}

// Find implements Store.
func (s *MongoStore) Find(
	ctx context.Context, c Collection, id string, maxCacheAge time.Duration,
) (*document.Document, error) {
	if c == Nodes && maxCacheAge > 0 {
		if e, ok := s.nodes.Get(id); ok && timeutil.Since(e.fetched) <= maxCacheAge {
			return e.doc.Clone(), nil
		}
	}
	var raw bson.M
	err := s.coll(c).FindOne(ctx, bson.M{document.FieldID: id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapMongoErr(err, "find")
	}
	doc, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}
	if c == Nodes {
		s.nodes.Add(id, cachedDoc{doc: doc.Clone(), fetched: timeutil.Now()})
	}
	return doc, nil
}

// Query implements Store.
func (s *MongoStore) Query(
	ctx context.Context, c Collection, fromKey, toKey string,
	indexedProperty string, startValue int64, limit int,
) ([]*document.Document, error) {
	filter := bson.M{document.FieldID: bson.M{"$gt": fromKey, "$lt": toKey}}
	if indexedProperty != "" {
		filter[indexedProperty] = bson.M{"$gte": startValue}
	}
	opts := options.Find().SetSort(bson.D{{Key: document.FieldID, Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll(c).Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapMongoErr(err, "query")
	}
	defer func() {
		if cerr := cur.Close(ctx); cerr != nil {
			log.Warningf(ctx, "closing query cursor: %v", cerr)
		}
	}()
	var out []*document.Document
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, wrapMongoErr(err, "query decode")
		}
		doc, err := decodeRaw(raw)
		if err != nil {
			return nil, err
		}
		if c == Nodes {
			s.nodes.Add(doc.ID, cachedDoc{doc: doc.Clone(), fetched: timeutil.Now()})
		}
		out = append(out, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, wrapMongoErr(err, "query")
	}
	return out, nil
}

// Create implements Store. The insert is ordered, so a duplicate key aborts
// the batch at the conflicting document. Documents inserted before the
// conflict are left behind; they carry no resolvable commit tags and are
// invisible until a later create or update claims them, which matches the
// all-or-nothing contract as observed through the node store.
func (s *MongoStore) Create(ctx context.Context, c Collection, ops []*UpdateOp) (bool, error) {
	docs := make([]interface{}, len(ops))
	for i, op := range ops {
		doc := document.NewDocument(op.ID)
		applyOps(doc, op)
		docs[i] = document.Encode(doc)
	}
	_, err := s.coll(c).InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, wrapMongoErr(err, "create")
	}
	return true, nil
}

// CreateOrUpdate implements Store.
func (s *MongoStore) CreateOrUpdate(
	ctx context.Context, c Collection, op *UpdateOp,
) (*document.Document, error) {
	if op.HasConditions() {
		return nil, errors.AssertionFailedf("conditions are not supported on upserts: %s", op)
	}
	if c == Nodes {
		s.nodes.Del(op.ID)
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)
	var raw bson.M
	err := s.coll(c).FindOneAndUpdate(
		ctx, bson.M{document.FieldID: op.ID}, updateDocument(op), opts,
	).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// The upsert created the document.
		return nil, nil
	}
	if err != nil {
		return nil, wrapMongoErr(err, "createOrUpdate")
	}
	return decodeRaw(raw)
}

// FindAndUpdate implements Store.
func (s *MongoStore) FindAndUpdate(
	ctx context.Context, c Collection, op *UpdateOp,
) (*document.Document, error) {
	if c == Nodes {
		s.nodes.Del(op.ID)
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	var raw bson.M
	err := s.coll(c).FindOneAndUpdate(ctx, filterDocument(op), updateDocument(op), opts).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Absent document or failed condition; the caller treats both as a
		// lost race.
		return nil, nil
	}
	if err != nil {
		return nil, wrapMongoErr(err, "findAndUpdate")
	}
	return decodeRaw(raw)
}

// Remove implements Store.
func (s *MongoStore) Remove(ctx context.Context, c Collection, id string) error {
	if c == Nodes {
		s.nodes.Del(id)
	}
	_, err := s.coll(c).DeleteOne(ctx, bson.M{document.FieldID: id})
	return wrapMongoErr(err, "remove")
}

// Invalidate implements Store.
func (s *MongoStore) Invalidate(ctx context.Context, ids ...string) {
	for _, id := range ids {
		s.nodes.Del(id)
	}
}

// InvalidateAll implements Store.
func (s *MongoStore) InvalidateAll(ctx context.Context) {
	s.nodes.Clear()
}

// Close implements Store.
func (s *MongoStore) Close(ctx context.Context) error {
	return wrapMongoErr(s.client.Disconnect(ctx), "close")
}
