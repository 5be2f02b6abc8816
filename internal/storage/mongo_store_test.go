package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestMongoFilter(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		query Query
		want  bson.M
	}{
		{
			name:  "empty",
			query: Query{},
			want:  bson.M{},
		},
		{
			name:  "id maps to _id",
			query: Query{Where: []Cond{Eq("id", "p1")}},
			want:  bson.M{"$and": bson.A{bson.M{"_id": "p1"}}},
		},
		{
			name: "ranges and contains",
			query: Query{Where: []Cond{
				{Field: "lessonNumber", Op: OpGte, Value: 10},
				{Field: "city", Op: OpContainsFold, Value: "san.jose"},
			}},
			want: bson.M{"$and": bson.A{
				bson.M{"lessonNumber": bson.M{"$gte": 10}},
				bson.M{"city": bson.M{"$regex": `san\.jose`, "$options": "i"}},
			}},
		},
		{
			name:  "after or unset",
			query: Query{Where: []Cond{{Field: "expiresAt", Op: OpAfterOrUnset, Value: ts}}},
			want: bson.M{"$and": bson.A{bson.M{"$or": bson.A{
				bson.M{"expiresAt": bson.M{"$gt": ts}},
				bson.M{"expiresAt": nil},
			}}}},
		},
		{
			name:  "cursor without conditions",
			query: Query{After: &Cursor{CreatedAt: ts, ID: "p9"}},
			want: bson.M{"$or": bson.A{
				bson.M{"createdAt": bson.M{"$lt": ts}},
				bson.M{"createdAt": ts, "_id": bson.M{"$lt": "p9"}},
			}},
		},
		{
			name:  "cursor ignored with explicit sort",
			query: Query{Sort: []Order{{Field: "name"}}, After: &Cursor{CreatedAt: ts, ID: "p9"}},
			want:  bson.M{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, mongoFilter(test.query))
		})
	}
}

func TestMongoFilterCursorWithConditions(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	got := mongoFilter(Query{Where: []Cond{Eq("isVisible", true)}, After: &Cursor{CreatedAt: ts, ID: "p9"}})

	and, ok := got["$and"].(bson.A)
	if assert.True(t, ok) {
		assert.Len(t, and, 2)
	}
}

func TestMongoSort(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}, mongoSort(Query{}))
	assert.Equal(t,
		bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: -1}},
		mongoSort(Query{Sort: []Order{{Field: "name"}, {Field: "id", Desc: true}}}))
}

func TestMongoUpdate(t *testing.T) {
	assert.Equal(t,
		bson.D{
			{Key: "$set", Value: bson.M{"name": "Asha"}},
			{Key: "$unset", Value: bson.M{"location": ""}},
		},
		mongoUpdate(map[string]any{"name": "Asha", "location": nil}))
	assert.Equal(t, bson.D{{Key: "$set", Value: bson.M{"likes": 2}}}, mongoUpdate(map[string]any{"likes": 2}))
}
