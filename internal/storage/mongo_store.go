package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"regexp"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore stores each collection as a MongoDB collection. Document ids
// are kept in _id.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    logging.Logger
}

// NewMongoStore connects to mongoURI and creates best-effort indexes for
// the given collections.
func NewMongoStore(ctx context.Context, mongoURI, dbName string, log logging.Logger) (*MongoStore, error) {
	// Some Atlas hosts fail TLS negotiation unless pinned to TLS 1.2.
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS12,
	}

	opts := options.Client().ApplyURI(mongoURI)
	if opts.TLSConfig != nil {
		opts.SetTLSConfig(tlsCfg)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "could not connect to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, errors.Wrap(err, "could not ping mongo")
	}

	s := &MongoStore{client: client, db: client.Database(dbName), log: log}
	s.ensureIndexes(ctx)

	log.Info("mongo connected", "db", dbName)
	return s, nil
}

// Best-effort indexes.
func (s *MongoStore) ensureIndexes(ctx context.Context) {
	byCollection := map[string][]mongo.IndexModel{
		"profiles": {
			{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "isApproved", Value: 1}, {Key: "isVisible", Value: 1}}},
			{Keys: bson.D{{Key: "ownerId", Value: 1}}},
			{Keys: bson.D{{Key: "country", Value: 1}}},
			{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
		},
		"centers": {
			{Keys: bson.D{{Key: "name", Value: 1}}},
			{Keys: bson.D{{Key: "country", Value: 1}, {Key: "region", Value: 1}}},
		},
		"prayer_requests": {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		"moments": {
			{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}},
		},
		"analytics": {
			{Keys: bson.D{{Key: "date", Value: 1}}},
		},
	}
	for name, models := range byCollection {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			s.log.Warning("could not create indexes", "collection", name, "error", err)
		}
	}
}

func (s *MongoStore) Collection(name string) Collection {
	return &mongoCollection{name: name, coll: s.db.Collection(name), log: s.log}
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type mongoCollection struct {
	name string
	coll *mongo.Collection
	log  logging.Logger
}

func (c *mongoCollection) Find(ctx context.Context, q Query, dst any) error {
	opts := options.Find().SetSort(mongoSort(q))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := c.coll.Find(ctx, mongoFilter(q), opts)
	if err != nil {
		return errors.Wrapf(err, "find in %s", c.name)
	}
	return errors.Wrapf(cursor.All(ctx, dst), "decode %s", c.name)
}

func (c *mongoCollection) FindOne(ctx context.Context, id string, dst any) error {
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(dst)
	if err == mongo.ErrNoDocuments {
		return ErrNotFound
	}
	return errors.Wrapf(err, "find %s in %s", id, c.name)
}

func (c *mongoCollection) Insert(ctx context.Context, id string, doc any) error {
	_, err := c.coll.InsertOne(ctx, doc)
	return errors.Wrapf(err, "insert %s into %s", id, c.name)
}

func (c *mongoCollection) Update(ctx context.Context, id string, set map[string]any) error {
	res, err := c.coll.UpdateOne(ctx, bson.M{"_id": id}, mongoUpdate(set))
	if err != nil {
		return errors.Wrapf(err, "update %s in %s", id, c.name)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection) Delete(ctx context.Context, id string) error {
	res, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrapf(err, "delete %s from %s", id, c.name)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection) Count(ctx context.Context, q Query) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, mongoConds(q.Where))
	return n, errors.Wrapf(err, "count %s", c.name)
}

func (c *mongoCollection) GroupCount(ctx context.Context, q Query, field string) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: mongoConds(q.Where)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + mongoField(field)},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrapf(err, "group %s by %s", c.name, field)
	}

	var rows []struct {
		Key   any   `bson:"_id"`
		Count int64 `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, errors.Wrapf(err, "decode %s groups", c.name)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		if r.Key == nil {
			continue
		}
		counts[fmt.Sprint(r.Key)] += r.Count
	}
	return counts, nil
}

// Near runs $geoNear, which requires the 2dsphere index on location.
func (c *mongoCollection) Near(ctx context.Context, lng, lat, maxMeters float64, q Query, dst any) error {
	geoNear := bson.D{
		{Key: "near", Value: bson.D{
			{Key: "type", Value: "Point"},
			{Key: "coordinates", Value: bson.A{lng, lat}},
		}},
		{Key: "distanceField", Value: "distance"},
		{Key: "maxDistance", Value: maxMeters},
		{Key: "query", Value: mongoConds(q.Where)},
		{Key: "spherical", Value: true},
	}
	pipeline := mongo.Pipeline{{{Key: "$geoNear", Value: geoNear}}}
	if q.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: q.Limit}})
	}

	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return errors.Wrapf(err, "geoNear in %s", c.name)
	}
	return errors.Wrapf(cursor.All(ctx, dst), "decode %s", c.name)
}

func (c *mongoCollection) Append(ctx context.Context, id, field string, elem any, set map[string]any) error {
	update := mongoUpdate(set)
	update = append(update, bson.E{Key: "$push", Value: bson.M{field: elem}})

	res, err := c.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return errors.Wrapf(err, "append to %s.%s", c.name, field)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection) Increment(ctx context.Context, id, field string, delta int64) error {
	res, err := c.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{field: delta}})
	if err != nil {
		return errors.Wrapf(err, "increment %s.%s", c.name, field)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Watch uses a change stream, which needs a replica set or Atlas.
func (c *mongoCollection) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	stream, err := c.coll.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, errors.Wrapf(err, "watch %s", c.name)
	}

	ch := make(chan ChangeEvent)
	go func() {
		defer close(ch)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var ev struct {
				OperationType string `bson:"operationType"`
				DocumentKey   struct {
					ID string `bson:"_id"`
				} `bson:"documentKey"`
			}
			if err := stream.Decode(&ev); err != nil {
				c.log.Warning("could not decode change event", "collection", c.name, "error", err)
				continue
			}
			op := ChangeUpdate
			switch ev.OperationType {
			case "insert":
				op = ChangeInsert
			case "delete":
				op = ChangeDelete
			}
			select {
			case ch <- ChangeEvent{Collection: c.name, ID: ev.DocumentKey.ID, Op: op}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			c.log.Error("change stream failed", "collection", c.name, "error", err)
		}
	}()
	return ch, nil
}

func mongoField(field string) string {
	if field == "id" {
		return "_id"
	}
	return field
}

// mongoFilter adds the keyset cursor to the query conditions.
func mongoFilter(q Query) bson.M {
	filter := mongoConds(q.Where)
	if q.After == nil || len(q.Sort) != 0 {
		return filter
	}
	after := bson.M{"$or": bson.A{
		bson.M{"createdAt": bson.M{"$lt": q.After.CreatedAt}},
		bson.M{"createdAt": q.After.CreatedAt, "_id": bson.M{"$lt": q.After.ID}},
	}}
	if len(filter) == 0 {
		return after
	}
	return bson.M{"$and": bson.A{filter, after}}
}

func mongoConds(conds []Cond) bson.M {
	if len(conds) == 0 {
		return bson.M{}
	}
	and := make(bson.A, 0, len(conds))
	for _, c := range conds {
		and = append(and, mongoCond(c))
	}
	return bson.M{"$and": and}
}

func mongoCond(c Cond) bson.M {
	f := mongoField(c.Field)
	switch c.Op {
	case OpGt:
		return bson.M{f: bson.M{"$gt": c.Value}}
	case OpGte:
		return bson.M{f: bson.M{"$gte": c.Value}}
	case OpLte:
		return bson.M{f: bson.M{"$lte": c.Value}}
	case OpContainsFold:
		return bson.M{f: bson.M{"$regex": regexp.QuoteMeta(fmt.Sprint(c.Value)), "$options": "i"}}
	case OpAfterOrUnset:
		// {f: null} matches both null and missing.
		return bson.M{"$or": bson.A{
			bson.M{f: bson.M{"$gt": c.Value}},
			bson.M{f: nil},
		}}
	}
	return bson.M{f: c.Value}
}

func mongoSort(q Query) bson.D {
	if len(q.Sort) == 0 {
		return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	}
	sort := make(bson.D, 0, len(q.Sort))
	for _, o := range q.Sort {
		dir := 1
		if o.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: mongoField(o.Field), Value: dir})
	}
	return sort
}

// mongoUpdate turns a merge set into $set and $unset stages.
func mongoUpdate(set map[string]any) bson.D {
	toSet := bson.M{}
	toUnset := bson.M{}
	for k, v := range set {
		if isNil(v) {
			toUnset[k] = ""
			continue
		}
		toSet[k] = v
	}
	update := bson.D{}
	if len(toSet) > 0 {
		update = append(update, bson.E{Key: "$set", Value: toSet})
	}
	if len(toUnset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: toUnset})
	}
	return update
}
