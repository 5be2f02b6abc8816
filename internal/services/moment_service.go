package services

import (
	"context"
	"strings"

	"github.com/ausocean/utils/logging"
	"github.com/google/uuid"

	"github.com/lotusmap/backend/internal/models"
	"github.com/lotusmap/backend/internal/storage"
)

// MomentService manages the moments feed. Expired moments are filtered at
// read time and never deleted.
type MomentService struct {
	moments storage.Collection
	log     logging.Logger
}

func NewMomentService(store storage.Store, log logging.Logger) *MomentService {
	return &MomentService{moments: store.Collection(CollectionMoments), log: log}
}

func (s *MomentService) Create(ctx context.Context, req *models.CreateMomentRequest, actor *models.Identity) (*models.Moment, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if errs := req.Validate(); len(errs) > 0 {
		return nil, invalid(errs)
	}

	ts := now()
	m := &models.Moment{
		ID:            uuid.NewString(),
		Caption:       strings.TrimSpace(req.Caption),
		Quote:         strings.TrimSpace(req.Quote),
		ImageURL:      req.ImageURL,
		CenterID:      req.CenterID,
		Comments:      []models.MomentComment{},
		CreatedBy:     actor.UserID,
		CreatedByName: actor.DisplayName(),
		CreatedAt:     ts,
	}
	if req.Location != nil {
		m.Location = req.Location.GeoPoint()
	}
	if req.Ephemeral {
		expires := ts.Add(models.MomentLifetime)
		m.ExpiresAt = &expires
	}

	if err := s.moments.Insert(ctx, m.ID, m); err != nil {
		return nil, wrapStorage("create moment", err)
	}
	return m, nil
}

// Feed returns unexpired moments, newest first.
func (s *MomentService) Feed(ctx context.Context, page Page) (*models.MomentPage, error) {
	limit := clampLimit(page.Limit, DefaultPageSize, MaxPageSize)
	after, err := decodeCursor(page.Cursor)
	if err != nil {
		return nil, err
	}

	var found []models.Moment
	q := storage.Query{
		Where: []storage.Cond{{Field: "expiresAt", Op: storage.OpAfterOrUnset, Value: now()}},
		After: after,
		Limit: limit + 1,
	}
	if err := s.moments.Find(ctx, q, &found); err != nil {
		return nil, wrapStorage("list moments", err)
	}

	out := &models.MomentPage{Items: found}
	if out.Items == nil {
		out.Items = []models.Moment{}
	}
	if len(found) > limit {
		last := found[limit-1]
		out.NextCursor = encodeCursor(last.CreatedAt, last.ID)
		out.Items = found[:limit]
	}
	return out, nil
}

// Get returns an unexpired moment.
func (s *MomentService) Get(ctx context.Context, id string) (*models.Moment, error) {
	var m models.Moment
	if err := s.moments.FindOne(ctx, id, &m); err != nil {
		return nil, wrapStorage("get moment", err)
	}
	if m.ExpiresAt != nil && !m.ExpiresAt.After(now()) {
		return nil, ErrNotFound
	}
	if m.Comments == nil {
		m.Comments = []models.MomentComment{}
	}
	return &m, nil
}

func (s *MomentService) Like(ctx context.Context, id string) (*models.Moment, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if inc, ok := s.moments.(storage.Incrementer); ok {
		err = inc.Increment(ctx, id, "likes", 1)
	} else {
		s.log.Warning("incrementing likes without atomic increment", "id", id)
		err = s.moments.Update(ctx, id, map[string]any{"likes": m.Likes + 1})
	}
	if err != nil {
		return nil, wrapStorage("like moment", err)
	}
	return s.Get(ctx, id)
}

func (s *MomentService) Comment(ctx context.Context, id string, req *models.CommentRequest, actor *models.Identity) (*models.MomentComment, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if errs := req.Validate(); len(errs) > 0 {
		return nil, invalid(errs)
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c := models.MomentComment{
		ID:         uuid.NewString(),
		AuthorID:   actor.UserID,
		AuthorName: actor.DisplayName(),
		Text:       strings.TrimSpace(req.Text),
		CreatedAt:  now(),
	}
	if a, ok := s.moments.(storage.Appender); ok {
		err = a.Append(ctx, id, "comments", c, nil)
	} else {
		s.log.Warning("appending comment without atomic append", "id", id)
		err = s.moments.Update(ctx, id, map[string]any{"comments": append(m.Comments, c)})
	}
	if err != nil {
		return nil, wrapStorage("comment on moment", err)
	}
	return &c, nil
}
