package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/ausocean/utils/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

// newFirestoreCollection builds a collection on an emulator-configured
// client. Nothing is dialled until a request is sent.
func newFirestoreCollection(t *testing.T, name string) *firestoreCollection {
	t.Helper()
	t.Setenv("FIRESTORE_EMULATOR_HOST", "localhost:8681")
	client, err := firestore.NewClient(context.Background(), "lotusmap-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	coll := NewFirestoreStore(client, (*logging.TestLogger)(t)).Collection(name)
	return coll.(*firestoreCollection)
}

// structuredQuery decodes the wire form of q.
func structuredQuery(t *testing.T, q firestore.Query) *firestorepb.StructuredQuery {
	t.Helper()
	b, err := q.Serialize()
	require.NoError(t, err)
	var req firestorepb.RunQueryRequest
	require.NoError(t, proto.Unmarshal(b, &req))
	return req.GetStructuredQuery()
}

// filterString renders a filter tree as e.g. "AND(a EQUAL, b IS_NULL)".
func filterString(f *firestorepb.StructuredQuery_Filter) string {
	switch {
	case f == nil:
		return ""
	case f.GetCompositeFilter() != nil:
		cf := f.GetCompositeFilter()
		s := cf.GetOp().String() + "("
		for i, sub := range cf.GetFilters() {
			if i > 0 {
				s += ", "
			}
			s += filterString(sub)
		}
		return s + ")"
	case f.GetFieldFilter() != nil:
		ff := f.GetFieldFilter()
		return fmt.Sprintf("%s %s", ff.GetField().GetFieldPath(), ff.GetOp())
	default:
		uf := f.GetUnaryFilter()
		return fmt.Sprintf("%s %s", uf.GetField().GetFieldPath(), uf.GetOp())
	}
}

func TestFirestoreQueryFilters(t *testing.T) {
	c := newFirestoreCollection(t, "profiles")
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{name: "empty", query: Query{}, want: ""},
		{name: "equality", query: Query{Where: []Cond{Eq("isVisible", true)}}, want: "isVisible EQUAL"},
		{
			name: "ranges",
			query: Query{Where: []Cond{
				{Field: "lessonNumber", Op: OpGte, Value: 10},
				{Field: "lessonNumber", Op: OpLte, Value: 20},
			}},
			want: "AND(lessonNumber GREATER_THAN_OR_EQUAL, lessonNumber LESS_THAN_OR_EQUAL)",
		},
		{
			name:  "contains degrades to equality",
			query: Query{Where: []Cond{{Field: "city", Op: OpContainsFold, Value: "Pune"}}},
			want:  "city EQUAL",
		},
		{
			name:  "after or unset",
			query: Query{Where: []Cond{{Field: "expiresAt", Op: OpAfterOrUnset, Value: ts}}},
			want:  "OR(expiresAt GREATER_THAN, expiresAt IS_NULL)",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sq := structuredQuery(t, c.query(test.query))
			assert.Equal(t, test.want, filterString(sq.GetWhere()))
			assert.Equal(t, "profiles", sq.GetFrom()[0].GetCollectionId())
		})
	}
}

func TestFirestoreFindQuery(t *testing.T) {
	c := newFirestoreCollection(t, "profiles")
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	orders := func(sq *firestorepb.StructuredQuery) []string {
		var out []string
		for _, o := range sq.GetOrderBy() {
			out = append(out, o.GetField().GetFieldPath()+" "+o.GetDirection().String())
		}
		return out
	}

	sq := structuredQuery(t, c.findQuery(Query{Limit: 21, After: &Cursor{CreatedAt: ts, ID: "p9"}}))
	assert.Equal(t, []string{"createdAt DESCENDING", "id DESCENDING"}, orders(sq))
	assert.Equal(t, int32(21), sq.GetLimit().GetValue())
	require.NotNil(t, sq.GetStartAt())
	assert.False(t, sq.GetStartAt().GetBefore())
	assert.Len(t, sq.GetStartAt().GetValues(), 2)

	sq = structuredQuery(t, c.findQuery(Query{
		Sort:  []Order{{Field: "name"}, {Field: "lessonNumber", Desc: true}},
		After: &Cursor{CreatedAt: ts, ID: "p9"},
	}))
	assert.Equal(t, []string{"name ASCENDING", "lessonNumber DESCENDING"}, orders(sq))
	assert.Nil(t, sq.GetStartAt())
	assert.Nil(t, sq.GetLimit())
}

func TestFirestoreUpdates(t *testing.T) {
	var unset *time.Time
	updates := firestoreUpdates(map[string]any{
		"status":    "approved",
		"expiresAt": unset,
		"note":      nil,
	})
	require.Len(t, updates, 3)

	got := make(map[string]any)
	for _, u := range updates {
		got[u.Path] = u.Value
	}
	assert.Equal(t, "approved", got["status"])
	assert.Equal(t, firestore.Delete, got["expiresAt"])
	assert.Equal(t, firestore.Delete, got["note"])
}
