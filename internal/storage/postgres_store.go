package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// notifyChannel carries {"collection","id","op"} payloads from the table
// triggers.
const notifyChannel = "lotusmap_changes"

// PostgresStore keeps each collection in a table of (id text, data jsonb).
// Radius search needs the PostGIS extension; without it Near reports
// ErrUnsupported.
type PostgresStore struct {
	db     *sql.DB
	dsn    string
	log    logging.Logger
	hasGIS bool

	mu     sync.Mutex
	tables map[string]*postgresCollection
}

// NewPostgresStore opens dsn and installs the change notification
// function.
func NewPostgresStore(ctx context.Context, dsn string, log logging.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "could not open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "could not ping postgres")
	}

	s := &PostgresStore{db: db, dsn: dsn, log: log, tables: make(map[string]*postgresCollection)}

	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		log.Warning("postgis unavailable, nearby search disabled", "error", err)
	} else {
		s.hasGIS = true
	}

	const notifyFn = `
CREATE OR REPLACE FUNCTION lotusmap_notify() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('` + notifyChannel + `', json_build_object(
		'collection', TG_TABLE_NAME,
		'id', CASE TG_OP WHEN 'DELETE' THEN OLD.id ELSE NEW.id END,
		'op', lower(TG_OP))::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql`
	if _, err := db.ExecContext(ctx, notifyFn); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "could not create notify function")
	}

	log.Info("postgres connected", "postgis", s.hasGIS)
	return s, nil
}

func (s *PostgresStore) Collection(name string) Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.tables[name]; ok {
		return c
	}
	c := &postgresCollection{store: s, name: name, table: pq.QuoteIdentifier(name)}
	s.tables[name] = c
	return c
}

func (s *PostgresStore) Close(ctx context.Context) error {
	return s.db.Close()
}

type postgresCollection struct {
	store *PostgresStore
	name  string
	table string

	once    sync.Once
	initErr error
}

// ensure creates the table and its trigger on first use.
func (c *postgresCollection) ensure(ctx context.Context) error {
	c.once.Do(func() {
		stmts := []string{
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id text PRIMARY KEY, data jsonb NOT NULL)", c.table),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING gin (data jsonb_path_ops)",
				pq.QuoteIdentifier(c.name+"_data_idx"), c.table),
			fmt.Sprintf("CREATE OR REPLACE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION lotusmap_notify()",
				pq.QuoteIdentifier(c.name+"_notify"), c.table),
		}
		for _, stmt := range stmts {
			if _, err := c.store.db.ExecContext(ctx, stmt); err != nil {
				c.initErr = errors.Wrapf(err, "could not prepare table %s", c.name)
				return
			}
		}
	})
	return c.initErr
}

func (c *postgresCollection) Find(ctx context.Context, q Query, dst any) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}
	query, args := buildSelect(c.table, q)
	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "find in %s", c.name)
	}
	return c.decodeRows(rows, dst)
}

func (c *postgresCollection) FindOne(ctx context.Context, id string, dst any) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}
	var data []byte
	err := c.store.db.QueryRowContext(ctx, fmt.Sprintf("SELECT data FROM %s WHERE id = $1", c.table), id).Scan(&data)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "find %s in %s", id, c.name)
	}
	return errors.Wrap(json.Unmarshal(data, dst), "could not decode document")
}

func (c *postgresCollection) Insert(ctx context.Context, id string, doc any) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}
	m, err := toDoc(doc)
	if err != nil {
		return err
	}
	m["id"] = id
	data, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "could not encode document")
	}

	_, err = c.store.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (id, data) VALUES ($1, $2)", c.table), id, string(data))
	return errors.Wrapf(err, "insert %s into %s", id, c.name)
}

func (c *postgresCollection) Update(ctx context.Context, id string, set map[string]any) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}
	patch, unset, err := splitPatch(set)
	if err != nil {
		return err
	}

	res, err := c.store.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET data = (data || $2::jsonb) - $3::text[] WHERE id = $1", c.table),
		id, string(patch), pq.Array(unset))
	if err != nil {
		return errors.Wrapf(err, "update %s in %s", id, c.name)
	}
	return affected(res)
}

func (c *postgresCollection) Delete(ctx context.Context, id string) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}
	res, err := c.store.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", c.table), id)
	if err != nil {
		return errors.Wrapf(err, "delete %s from %s", id, c.name)
	}
	return affected(res)
}

func (c *postgresCollection) Count(ctx context.Context, q Query) (int64, error) {
	if err := c.ensure(ctx); err != nil {
		return 0, err
	}
	var args []any
	where := buildWhere(q.Where, &args)
	var n int64
	err := c.store.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", c.table, where), args...).Scan(&n)
	return n, errors.Wrapf(err, "count %s", c.name)
}

func (c *postgresCollection) GroupCount(ctx context.Context, q Query, field string) (map[string]int64, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	query, args := buildGroupCount(c.table, q, field)
	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "group %s by %s", c.name, field)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, errors.Wrapf(err, "scan %s groups", c.name)
		}
		counts[key] = n
	}
	return counts, errors.Wrapf(rows.Err(), "read %s groups", c.name)
}

func (c *postgresCollection) Near(ctx context.Context, lng, lat, maxMeters float64, q Query, dst any) error {
	if !c.store.hasGIS {
		return ErrUnsupported
	}
	if err := c.ensure(ctx); err != nil {
		return err
	}
	query, args := buildNear(c.table, lng, lat, maxMeters, q)
	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "near in %s", c.name)
	}
	return c.decodeRows(rows, dst)
}

// Append runs as one UPDATE so concurrent appends serialize on the row lock.
func (c *postgresCollection) Append(ctx context.Context, id, field string, elem any, set map[string]any) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}
	e, err := json.Marshal(elem)
	if err != nil {
		return errors.Wrap(err, "could not encode element")
	}
	patch, unset, err := splitPatch(set)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET data = jsonb_set(
	(data || $3::jsonb) - $4::text[],
	ARRAY[$2::text],
	COALESCE(NULLIF(data->$2::text, 'null'::jsonb), '[]'::jsonb) || jsonb_build_array($5::jsonb))
WHERE id = $1`, c.table)
	res, err := c.store.db.ExecContext(ctx, query, id, field, string(patch), pq.Array(unset), string(e))
	if err != nil {
		return errors.Wrapf(err, "append to %s.%s", c.name, field)
	}
	return affected(res)
}

func (c *postgresCollection) Increment(ctx context.Context, id, field string, delta int64) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET data = jsonb_set(data, ARRAY[$2::text],
	to_jsonb(COALESCE((data->>$2::text)::bigint, 0) + $3))
WHERE id = $1`, c.table)
	res, err := c.store.db.ExecContext(ctx, query, id, field, delta)
	if err != nil {
		return errors.Wrapf(err, "increment %s.%s", c.name, field)
	}
	return affected(res)
}

// Watch listens on the shared notification channel and keeps events for
// this table.
func (c *postgresCollection) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	log := c.store.log
	listener := pq.NewListener(c.store.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warning("postgres listener event", "collection", c.name, "event", int(ev), "error", err)
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		return nil, errors.Wrapf(err, "listen for %s changes", c.name)
	}

	ch := make(chan ChangeEvent)
	go func() {
		defer close(ch)
		defer listener.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				// nil after a reconnect; events in between may be lost.
				if n == nil {
					continue
				}
				var ev ChangeEvent
				if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
					log.Warning("bad change payload", "payload", n.Extra, "error", err)
					continue
				}
				if ev.Collection != c.name {
					continue
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			case <-time.After(90 * time.Second):
				go listener.Ping()
			}
		}
	}()
	return ch, nil
}

func (c *postgresCollection) decodeRows(rows *sql.Rows, dst any) error {
	defer rows.Close()

	docs := []json.RawMessage{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return errors.Wrapf(err, "scan %s", c.name)
		}
		docs = append(docs, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return errors.Wrapf(err, "read %s", c.name)
	}
	return decodeInto(docs, dst)
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// splitPatch encodes the non-nil part of set as a JSON object and returns
// the keys to remove.
func splitPatch(set map[string]any) ([]byte, []string, error) {
	keep := make(map[string]any, len(set))
	var unset []string
	for k, v := range set {
		if isNil(v) {
			unset = append(unset, k)
			continue
		}
		keep[k] = v
	}
	b, err := json.Marshal(keep)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not encode update")
	}
	if unset == nil {
		unset = []string{}
	}
	return b, unset, nil
}

// SQL building. These are pure so they can be tested without a database.

const pgCreatedAt = "(data->>'createdAt')::timestamptz"

func pgText(field string) string {
	if field == "id" {
		return "id"
	}
	return "data->>" + pq.QuoteLiteral(field)
}

func pgPlaceholder(args *[]any, v any) string {
	*args = append(*args, v)
	return "$" + strconv.Itoa(len(*args))
}

// pgTyped returns the field expression cast to match v.
func pgTyped(field string, v any) string {
	if field == "id" {
		return "id"
	}
	switch v.(type) {
	case time.Time:
		return "(" + pgText(field) + ")::timestamptz"
	case bool:
		return "(" + pgText(field) + ")::boolean"
	case int, int32, int64, float32, float64:
		return "(" + pgText(field) + ")::double precision"
	}
	return pgText(field)
}

var pgOps = map[Op]string{OpEq: "=", OpGt: ">", OpGte: ">=", OpLte: "<="}

func buildWhere(conds []Cond, args *[]any) string {
	if len(conds) == 0 {
		return "TRUE"
	}
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		switch c.Op {
		case OpContainsFold:
			pattern := "%" + escapeLike(fmt.Sprint(c.Value)) + "%"
			parts = append(parts, pgText(c.Field)+" ILIKE "+pgPlaceholder(args, pattern))
		case OpAfterOrUnset:
			parts = append(parts, fmt.Sprintf("(%s IS NULL OR %s > %s)",
				pgText(c.Field), pgTyped(c.Field, c.Value), pgPlaceholder(args, c.Value)))
		default:
			parts = append(parts, fmt.Sprintf("%s %s %s",
				pgTyped(c.Field, c.Value), pgOps[c.Op], pgPlaceholder(args, c.Value)))
		}
	}
	return strings.Join(parts, " AND ")
}

func buildOrder(q Query) string {
	if len(q.Sort) == 0 {
		return pgCreatedAt + " DESC, id DESC"
	}
	parts := make([]string, 0, len(q.Sort))
	for _, o := range q.Sort {
		expr := "data->" + pq.QuoteLiteral(o.Field)
		if o.Field == "id" {
			expr = "id"
		}
		if o.Desc {
			expr += " DESC"
		}
		parts = append(parts, expr)
	}
	return strings.Join(parts, ", ")
}

func buildSelect(table string, q Query) (string, []any) {
	var args []any
	where := buildWhere(q.Where, &args)
	if q.After != nil && len(q.Sort) == 0 {
		where += fmt.Sprintf(" AND (%s, id) < (%s, %s)", pgCreatedAt,
			pgPlaceholder(&args, q.After.CreatedAt), pgPlaceholder(&args, q.After.ID))
	}

	query := fmt.Sprintf("SELECT data FROM %s WHERE %s ORDER BY %s", table, where, buildOrder(q))
	if q.Limit > 0 {
		query += " LIMIT " + pgPlaceholder(&args, q.Limit)
	}
	return query, args
}

func buildGroupCount(table string, q Query, field string) (string, []any) {
	var args []any
	where := buildWhere(q.Where, &args)
	key := pgText(field)
	return fmt.Sprintf("SELECT %s AS key, count(*) FROM %s WHERE %s AND %s IS NOT NULL GROUP BY key",
		key, table, where, key), args
}

const pgLocation = `ST_SetSRID(ST_MakePoint(
	(data->'location'->'coordinates'->>0)::double precision,
	(data->'location'->'coordinates'->>1)::double precision), 4326)::geography`

func buildNear(table string, lng, lat, maxMeters float64, q Query) (string, []any) {
	var args []any
	where := buildWhere(q.Where, &args)
	origin := fmt.Sprintf("ST_SetSRID(ST_MakePoint(%s, %s), 4326)::geography",
		pgPlaceholder(&args, lng), pgPlaceholder(&args, lat))
	radius := pgPlaceholder(&args, maxMeters)

	query := fmt.Sprintf(`SELECT data || jsonb_build_object('distance', ST_Distance(%[1]s, %[2]s))
FROM %[3]s
WHERE %[4]s AND jsonb_typeof(data->'location') = 'object' AND ST_DWithin(%[1]s, %[2]s, %[5]s)
ORDER BY ST_Distance(%[1]s, %[2]s)`, pgLocation, origin, table, where, radius)
	if q.Limit > 0 {
		query += " LIMIT " + pgPlaceholder(&args, q.Limit)
	}
	return query, args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
