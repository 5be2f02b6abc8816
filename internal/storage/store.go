// Package storage defines the document storage port used by the services
// and its backends: MongoDB, PostgreSQL, Firestore and local JSON files.
//
// Documents are addressed by string id. Field names in queries are the
// documents' wire names (camelCase); every backend stores them under the
// same names.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no document has the requested id.
	ErrNotFound = errors.New("storage: not found")
	// ErrUnsupported is returned when a backend lacks a capability.
	ErrUnsupported = errors.New("storage: unsupported by backend")
)

// Store is a connected backend. It is safe for concurrent use.
type Store interface {
	Collection(name string) Collection
	Close(ctx context.Context) error
}

// Collection is a named set of documents.
//
// Find and Near decode into dst, which must be a pointer to a slice.
// FindOne decodes into dst, a pointer to a struct.
type Collection interface {
	Find(ctx context.Context, q Query, dst any) error
	FindOne(ctx context.Context, id string, dst any) error
	Insert(ctx context.Context, id string, doc any) error
	// Update merges set into the document. A nil value clears the field.
	Update(ctx context.Context, id string, set map[string]any) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context, q Query) (int64, error)
	// GroupCount counts matching documents per distinct value of field.
	// Documents without the field are skipped. Keys are the values
	// formatted as text.
	GroupCount(ctx context.Context, q Query, field string) (map[string]int64, error)
}

// GeoQuerier is implemented by collections with a native radius search over
// the "location" field. Results are ordered by distance ascending and carry
// a "distance" field in meters.
type GeoQuerier interface {
	Near(ctx context.Context, lng, lat, maxMeters float64, q Query, dst any) error
}

// Appender is implemented by collections that can append to an array field
// in a single atomic write. set is merged in the same write.
type Appender interface {
	Append(ctx context.Context, id, field string, elem any, set map[string]any) error
}

// Incrementer is implemented by collections with an atomic counter update.
type Incrementer interface {
	Increment(ctx context.Context, id, field string, delta int64) error
}

// Watcher is implemented by collections that can stream changes, including
// those made by other processes. The channel is closed when ctx is done or
// the stream fails.
type Watcher interface {
	Watch(ctx context.Context) (<-chan ChangeEvent, error)
}

// Change operations.
const (
	ChangeInsert = "insert"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
)

// ChangeEvent describes one document change.
type ChangeEvent struct {
	Collection string
	ID         string
	Op         string
}

// Op is a condition operator.
type Op int

const (
	OpEq Op = iota
	OpGt
	OpGte
	OpLte
	// OpContainsFold is a case-insensitive substring match. Backends
	// without one fall back to equality.
	OpContainsFold
	// OpAfterOrUnset matches times after Value, or a missing/null field.
	OpAfterOrUnset
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpGt:
		return "gt"
	case OpGte:
		return "gte"
	case OpLte:
		return "lte"
	case OpContainsFold:
		return "contains"
	case OpAfterOrUnset:
		return "afterOrUnset"
	}
	return "unknown"
}

// Cond is one field condition. Value is a string, bool, int, float64 or
// time.Time.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Order sorts by one field.
type Order struct {
	Field string
	Desc  bool
}

// Cursor is a keyset position in newest-first order.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Query selects documents. All conditions must hold. With no Sort the
// order is createdAt descending then id descending, and After resumes
// strictly after the given position in that order. After is ignored when
// Sort is set. Limit <= 0 means no limit.
type Query struct {
	Where []Cond
	Sort  []Order
	After *Cursor
	Limit int
}

// Eq is shorthand for an equality condition.
func Eq(field string, value any) Cond {
	return Cond{Field: field, Op: OpEq, Value: value}
}

// Has reports whether q already constrains field.
func (q Query) Has(field string) bool {
	for _, c := range q.Where {
		if c.Field == field {
			return true
		}
	}
	return false
}
