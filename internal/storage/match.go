package storage

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Helpers for evaluating queries against decoded JSON documents
// (map[string]any with float64 numbers and RFC 3339 time strings).

func matchesAll(doc map[string]any, conds []Cond) bool {
	for _, c := range conds {
		if !matches(doc, c) {
			return false
		}
	}
	return true
}

func matches(doc map[string]any, c Cond) bool {
	v, ok := doc[c.Field]
	if !ok || v == nil {
		return c.Op == OpAfterOrUnset
	}

	switch c.Op {
	case OpEq:
		n, ok := compare(v, c.Value)
		return ok && n == 0
	case OpGt, OpAfterOrUnset:
		n, ok := compare(v, c.Value)
		return ok && n > 0
	case OpGte:
		n, ok := compare(v, c.Value)
		return ok && n >= 0
	case OpLte:
		n, ok := compare(v, c.Value)
		return ok && n <= 0
	case OpContainsFold:
		s, ok := v.(string)
		want, wok := c.Value.(string)
		return ok && wok && strings.Contains(strings.ToLower(s), strings.ToLower(want))
	}
	return false
}

// compare orders a stored value against a query value. ok is false when
// the two are not comparable.
func compare(stored, want any) (n int, ok bool) {
	switch w := want.(type) {
	case time.Time:
		t, ok := asTime(stored)
		if !ok {
			return 0, false
		}
		return t.Compare(w), true
	case string:
		s, ok := stored.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(s, w), true
	case bool:
		b, ok := stored.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case b == w:
			return 0, true
		case w:
			return -1, true
		default:
			return 1, true
		}
	}

	wf, ok := asFloat(want)
	if !ok {
		return 0, false
	}
	sf, ok := asFloat(stored)
	if !ok {
		return 0, false
	}
	switch {
	case sf < wf:
		return -1, true
	case sf > wf:
		return 1, true
	}
	return 0, true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

// groupKey formats a stored value as a GroupCount key.
func groupKey(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// sortDocs orders docs by q.Sort, or newest first when unset.
func sortDocs(docs []map[string]any, order []Order) {
	if len(order) == 0 {
		sort.SliceStable(docs, func(i, j int) bool {
			return newerThan(docs[i], docs[j])
		})
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range order {
			a, b := docs[i][o.Field], docs[j][o.Field]
			n, ok := compare(a, b)
			if !ok {
				n = strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
			}
			if n == 0 {
				continue
			}
			if o.Desc {
				return n > 0
			}
			return n < 0
		}
		return false
	})
}

// newerThan reports whether a precedes b in (createdAt desc, id desc) order.
func newerThan(a, b map[string]any) bool {
	ta, _ := asTime(a["createdAt"])
	tb, _ := asTime(b["createdAt"])
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	ia, _ := a["id"].(string)
	ib, _ := b["id"].(string)
	return ia > ib
}

// afterCursor reports whether doc comes strictly after c in newest-first
// order.
func afterCursor(doc map[string]any, c *Cursor) bool {
	t, _ := asTime(doc["createdAt"])
	if !t.Equal(c.CreatedAt) {
		return t.Before(c.CreatedAt)
	}
	id, _ := doc["id"].(string)
	return id < c.ID
}

const earthRadiusMeters = 6371008.8

// haversineMeters returns the great-circle distance between two points.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// pointOf extracts [lng, lat] from a stored GeoJSON point.
func pointOf(v any) (lng, lat float64, ok bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return 0, 0, false
	}
	coords, ok := m["coordinates"].([]any)
	if !ok || len(coords) != 2 {
		return 0, 0, false
	}
	lng, ok1 := asFloat(coords[0])
	lat, ok2 := asFloat(coords[1])
	return lng, lat, ok1 && ok2
}

// isNil reports whether v is nil or a typed nil pointer.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
