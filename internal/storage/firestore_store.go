package storage

import (
	"context"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore maps collections to top-level Firestore collections. It
// has no radius search, and case-insensitive matching degrades to
// equality. Queries mixing range conditions on several fields need
// composite indexes.
type FirestoreStore struct {
	client *firestore.Client
	log    logging.Logger
}

// NewFirestoreStore wraps a client, typically from firebase.App.Firestore.
func NewFirestoreStore(client *firestore.Client, log logging.Logger) *FirestoreStore {
	return &FirestoreStore{client: client, log: log}
}

func (s *FirestoreStore) Collection(name string) Collection {
	return &firestoreCollection{name: name, coll: s.client.Collection(name), log: s.log}
}

func (s *FirestoreStore) Close(ctx context.Context) error {
	return s.client.Close()
}

type firestoreCollection struct {
	name string
	coll *firestore.CollectionRef
	log  logging.Logger
}

func (c *firestoreCollection) query(q Query) firestore.Query {
	query := c.coll.Query
	for _, cond := range q.Where {
		switch cond.Op {
		case OpGt:
			query = query.Where(cond.Field, ">", cond.Value)
		case OpGte:
			query = query.Where(cond.Field, ">=", cond.Value)
		case OpLte:
			query = query.Where(cond.Field, "<=", cond.Value)
		case OpAfterOrUnset:
			query = query.WhereEntity(firestore.OrFilter{Filters: []firestore.EntityFilter{
				firestore.PropertyFilter{Path: cond.Field, Operator: ">", Value: cond.Value},
				firestore.PropertyFilter{Path: cond.Field, Operator: "==", Value: nil},
			}})
		default:
			// OpEq, and OpContainsFold without substring support.
			query = query.Where(cond.Field, "==", cond.Value)
		}
	}
	return query
}

// findQuery adds Find's ordering, cursor and limit to the filtered query.
func (c *firestoreCollection) findQuery(q Query) firestore.Query {
	query := c.query(q)
	if len(q.Sort) == 0 {
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy("id", firestore.Desc)
		if q.After != nil {
			query = query.StartAfter(q.After.CreatedAt, q.After.ID)
		}
	} else {
		for _, o := range q.Sort {
			dir := firestore.Asc
			if o.Desc {
				dir = firestore.Desc
			}
			query = query.OrderBy(o.Field, dir)
		}
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	return query
}

func (c *firestoreCollection) Find(ctx context.Context, q Query, dst any) error {
	snaps, err := c.findQuery(q).Documents(ctx).GetAll()
	if err != nil {
		return errors.Wrapf(err, "find in %s", c.name)
	}
	docs := make([]map[string]any, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, snap.Data())
	}
	return decodeInto(docs, dst)
}

func (c *firestoreCollection) FindOne(ctx context.Context, id string, dst any) error {
	snap, err := c.coll.Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "find %s in %s", id, c.name)
	}
	return errors.Wrap(snap.DataTo(dst), "could not decode document")
}

func (c *firestoreCollection) Insert(ctx context.Context, id string, doc any) error {
	_, err := c.coll.Doc(id).Create(ctx, doc)
	return errors.Wrapf(err, "insert %s into %s", id, c.name)
}

func (c *firestoreCollection) Update(ctx context.Context, id string, set map[string]any) error {
	return c.update(ctx, id, firestoreUpdates(set))
}

func (c *firestoreCollection) update(ctx context.Context, id string, updates []firestore.Update) error {
	_, err := c.coll.Doc(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return errors.Wrapf(err, "update %s in %s", id, c.name)
}

func (c *firestoreCollection) Delete(ctx context.Context, id string) error {
	_, err := c.coll.Doc(id).Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return errors.Wrapf(err, "delete %s from %s", id, c.name)
}

func (c *firestoreCollection) Count(ctx context.Context, q Query) (int64, error) {
	query := c.query(q)
	res, err := query.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "count %s", c.name)
	}
	v, ok := res["all"].(*firestorepb.Value)
	if !ok {
		return 0, errors.Errorf("unexpected count result for %s", c.name)
	}
	return v.GetIntegerValue(), nil
}

// GroupCount reads only the grouped field and counts in memory. Firestore
// has no server-side grouping.
func (c *firestoreCollection) GroupCount(ctx context.Context, q Query, field string) (map[string]int64, error) {
	iter := c.query(q).Select(field).Documents(ctx)
	defer iter.Stop()

	counts := make(map[string]int64)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "group %s by %s", c.name, field)
		}
		v, err := snap.DataAt(field)
		if err != nil || v == nil {
			continue
		}
		counts[groupKey(v)]++
	}
	return counts, nil
}

func (c *firestoreCollection) Near(ctx context.Context, lng, lat, maxMeters float64, q Query, dst any) error {
	return ErrUnsupported
}

func (c *firestoreCollection) Append(ctx context.Context, id, field string, elem any, set map[string]any) error {
	updates := append(firestoreUpdates(set), firestore.Update{Path: field, Value: firestore.ArrayUnion(elem)})
	return c.update(ctx, id, updates)
}

func (c *firestoreCollection) Increment(ctx context.Context, id, field string, delta int64) error {
	return c.update(ctx, id, []firestore.Update{{Path: field, Value: firestore.Increment(delta)}})
}

// Watch streams query snapshots. The first snapshot is the current state
// and is skipped.
func (c *firestoreCollection) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	it := c.coll.Snapshots(ctx)
	ch := make(chan ChangeEvent)

	go func() {
		defer close(ch)
		defer it.Stop()

		first := true
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					c.log.Error("snapshot listener failed", "collection", c.name, "error", err)
				}
				return
			}
			if first {
				first = false
				continue
			}
			for _, change := range snap.Changes {
				op := ChangeUpdate
				switch change.Kind {
				case firestore.DocumentAdded:
					op = ChangeInsert
				case firestore.DocumentRemoved:
					op = ChangeDelete
				}
				select {
				case ch <- ChangeEvent{Collection: c.name, ID: change.Doc.Ref.ID, Op: op}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func firestoreUpdates(set map[string]any) []firestore.Update {
	updates := make([]firestore.Update, 0, len(set))
	for k, v := range set {
		if isNil(v) {
			v = firestore.Delete
		}
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	return updates
}
