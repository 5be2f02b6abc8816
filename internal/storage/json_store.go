package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// JSONStore provides thread-safe JSON file-based persistence. Each
// collection is held in memory and written to <dataDir>/<name>.json after
// every change. An empty dataDir keeps everything in memory.
type JSONStore struct {
	mu      sync.Mutex
	dataDir string
	colls   map[string]*jsonCollection
}

// NewJSONStore creates a new JSON store in the specified directory.
func NewJSONStore(dataDir string) (*JSONStore, error) {
	if dataDir != "" {
		// Ensure data directory exists
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, errors.Wrap(err, "could not create data directory")
		}
	}
	return &JSONStore{dataDir: dataDir, colls: make(map[string]*jsonCollection)}, nil
}

// NewMemoryStore returns a JSONStore that never touches disk.
func NewMemoryStore() *JSONStore {
	s, _ := NewJSONStore("")
	return s
}

func (s *JSONStore) Collection(name string) Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.colls[name]; ok {
		return c
	}
	c := &jsonCollection{name: name, docs: make(map[string]map[string]any)}
	if s.dataDir != "" {
		c.filePath = filepath.Join(s.dataDir, name+".json")
		c.loadErr = c.load()
	}
	s.colls[name] = c
	return c
}

func (s *JSONStore) Close(ctx context.Context) error {
	return nil
}

type jsonCollection struct {
	mu       sync.RWMutex
	name     string
	filePath string
	loadErr  error
	docs     map[string]map[string]any

	subMu sync.Mutex
	subs  map[chan ChangeEvent]struct{}
}

// load reads the collection file, if any.
func (c *jsonCollection) load() error {
	file, err := os.Open(c.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist yet, not an error
			return nil
		}
		return errors.Wrapf(err, "could not open %s", c.filePath)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&c.docs); err != nil {
		return errors.Wrapf(err, "could not decode %s", c.filePath)
	}
	if c.docs == nil {
		c.docs = make(map[string]map[string]any)
	}
	return nil
}

// save writes the collection file. Callers hold c.mu.
func (c *jsonCollection) save() error {
	if c.filePath == "" {
		return nil
	}

	// Write to temp file first, then rename (atomic operation)
	tempFile := c.filePath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return errors.Wrap(err, "could not create temp file")
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c.docs); err != nil {
		file.Close()
		os.Remove(tempFile)
		return errors.Wrap(err, "could not encode collection")
	}

	if err := file.Close(); err != nil {
		os.Remove(tempFile)
		return errors.Wrap(err, "could not close temp file")
	}

	return errors.Wrap(os.Rename(tempFile, c.filePath), "could not replace collection file")
}

func (c *jsonCollection) Find(ctx context.Context, q Query, dst any) error {
	if c.loadErr != nil {
		return c.loadErr
	}
	c.mu.RLock()
	docs := c.selectLocked(q.Where)
	c.mu.RUnlock()

	sortDocs(docs, q.Sort)
	if q.After != nil && len(q.Sort) == 0 {
		kept := docs[:0]
		for _, d := range docs {
			if afterCursor(d, q.After) {
				kept = append(kept, d)
			}
		}
		docs = kept
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return decodeInto(docs, dst)
}

func (c *jsonCollection) FindOne(ctx context.Context, id string, dst any) error {
	if c.loadErr != nil {
		return c.loadErr
	}
	c.mu.RLock()
	doc, ok := c.docs[id]
	var b []byte
	var err error
	if ok {
		b, err = json.Marshal(doc)
	}
	c.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "could not encode document")
	}
	return errors.Wrap(json.Unmarshal(b, dst), "could not decode document")
}

func (c *jsonCollection) Insert(ctx context.Context, id string, doc any) error {
	if c.loadErr != nil {
		return c.loadErr
	}
	m, err := toDoc(doc)
	if err != nil {
		return err
	}
	m["id"] = id

	c.mu.Lock()
	if _, exists := c.docs[id]; exists {
		c.mu.Unlock()
		return errors.Errorf("document %s already exists in %s", id, c.name)
	}
	c.docs[id] = m
	err = c.saveOrRollback(id, nil)
	c.mu.Unlock()

	if err == nil {
		c.notify(id, ChangeInsert)
	}
	return err
}

func (c *jsonCollection) Update(ctx context.Context, id string, set map[string]any) error {
	if c.loadErr != nil {
		return c.loadErr
	}
	patch, err := toDoc(set)
	if err != nil {
		return err
	}

	c.mu.Lock()
	doc, ok := c.docs[id]
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}
	next := cloneDoc(doc)
	for k, v := range patch {
		next[k] = v
	}
	c.docs[id] = next
	err = c.saveOrRollback(id, doc)
	c.mu.Unlock()

	if err == nil {
		c.notify(id, ChangeUpdate)
	}
	return err
}

func (c *jsonCollection) Delete(ctx context.Context, id string) error {
	if c.loadErr != nil {
		return c.loadErr
	}
	c.mu.Lock()
	doc, ok := c.docs[id]
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}
	delete(c.docs, id)
	err := c.saveOrRollback(id, doc)
	c.mu.Unlock()

	if err == nil {
		c.notify(id, ChangeDelete)
	}
	return err
}

func (c *jsonCollection) Count(ctx context.Context, q Query) (int64, error) {
	if c.loadErr != nil {
		return 0, c.loadErr
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int64
	for _, doc := range c.docs {
		if matchesAll(doc, q.Where) {
			n++
		}
	}
	return n, nil
}

func (c *jsonCollection) GroupCount(ctx context.Context, q Query, field string) (map[string]int64, error) {
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := make(map[string]int64)
	for _, doc := range c.docs {
		if !matchesAll(doc, q.Where) {
			continue
		}
		v, ok := doc[field]
		if !ok || v == nil {
			continue
		}
		counts[groupKey(v)]++
	}
	return counts, nil
}

// Near scans every matching document. Fine for the data sizes this
// backend is meant for.
func (c *jsonCollection) Near(ctx context.Context, lng, lat, maxMeters float64, q Query, dst any) error {
	if c.loadErr != nil {
		return c.loadErr
	}
	type hit struct {
		doc  map[string]any
		dist float64
	}

	c.mu.RLock()
	var hits []hit
	for _, doc := range c.docs {
		if !matchesAll(doc, q.Where) {
			continue
		}
		plng, plat, ok := pointOf(doc["location"])
		if !ok {
			continue
		}
		d := haversineMeters(lat, lng, plat, plng)
		if d <= maxMeters {
			hits = append(hits, hit{doc: doc, dist: d})
		}
	}
	c.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	out := make([]map[string]any, len(hits))
	for i, h := range hits {
		d := cloneDoc(h.doc)
		d["distance"] = h.dist
		out[i] = d
	}
	return decodeInto(out, dst)
}

func (c *jsonCollection) Append(ctx context.Context, id, field string, elem any, set map[string]any) error {
	if c.loadErr != nil {
		return c.loadErr
	}
	e, err := toValue(elem)
	if err != nil {
		return err
	}
	patch, err := toDoc(set)
	if err != nil {
		return err
	}

	c.mu.Lock()
	doc, ok := c.docs[id]
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}
	next := cloneDoc(doc)
	list, _ := next[field].([]any)
	next[field] = append(append([]any(nil), list...), e)
	for k, v := range patch {
		next[k] = v
	}
	c.docs[id] = next
	err = c.saveOrRollback(id, doc)
	c.mu.Unlock()

	if err == nil {
		c.notify(id, ChangeUpdate)
	}
	return err
}

func (c *jsonCollection) Increment(ctx context.Context, id, field string, delta int64) error {
	if c.loadErr != nil {
		return c.loadErr
	}
	c.mu.Lock()
	doc, ok := c.docs[id]
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}
	next := cloneDoc(doc)
	cur, _ := asFloat(next[field])
	next[field] = cur + float64(delta)
	c.docs[id] = next
	err := c.saveOrRollback(id, doc)
	c.mu.Unlock()

	if err == nil {
		c.notify(id, ChangeUpdate)
	}
	return err
}

// Watch only sees changes made through this process.
func (c *jsonCollection) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	ch := make(chan ChangeEvent, 64)

	c.subMu.Lock()
	if c.subs == nil {
		c.subs = make(map[chan ChangeEvent]struct{})
	}
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	go func() {
		<-ctx.Done()
		c.subMu.Lock()
		delete(c.subs, ch)
		close(ch)
		c.subMu.Unlock()
	}()
	return ch, nil
}

// notify fans out a change. Slow subscribers miss events rather than
// blocking writers.
func (c *jsonCollection) notify(id, op string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- ChangeEvent{Collection: c.name, ID: id, Op: op}:
		default:
		}
	}
}

// saveOrRollback persists the collection, restoring prev (or removing the
// document when prev is nil) if the write fails. Callers hold c.mu.
func (c *jsonCollection) saveOrRollback(id string, prev map[string]any) error {
	err := c.save()
	if err == nil {
		return nil
	}
	if prev == nil {
		delete(c.docs, id)
	} else {
		c.docs[id] = prev
	}
	return err
}

// selectLocked returns shallow copies of matching docs. Callers hold c.mu.
func (c *jsonCollection) selectLocked(conds []Cond) []map[string]any {
	var docs []map[string]any
	for _, doc := range c.docs {
		if matchesAll(doc, conds) {
			docs = append(docs, doc)
		}
	}
	return docs
}

func cloneDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// toDoc converts a struct or map into its JSON document form.
func toDoc(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode document")
	}
	doc := make(map[string]any)
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrap(err, "could not decode document")
	}
	return doc, nil
}

func toValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode value")
	}
	var out any
	return out, errors.Wrap(json.Unmarshal(b, &out), "could not decode value")
}

// decodeInto decodes a list of JSON-shaped documents into dst, a pointer
// to a slice.
func decodeInto(docs any, dst any) error {
	b, err := json.Marshal(docs)
	if err != nil {
		return errors.Wrap(err, "could not encode result")
	}
	return errors.Wrap(json.Unmarshal(b, dst), "could not decode result")
}
