package services

import (
	"context"
	"strings"

	"github.com/ausocean/utils/logging"
	"github.com/google/uuid"

	"github.com/lotusmap/backend/internal/models"
	"github.com/lotusmap/backend/internal/storage"
)

// PrayerService manages prayer requests and their responses.
type PrayerService struct {
	prayers storage.Collection
	log     logging.Logger
}

func NewPrayerService(store storage.Store, log logging.Logger) *PrayerService {
	s := &PrayerService{prayers: store.Collection(CollectionPrayers), log: log}
	if _, ok := s.prayers.(storage.Appender); !ok {
		log.Warning("backend has no atomic append, concurrent prayer responses may be lost")
	}
	return s
}

// Submit creates an active prayer request. The requester's identity is not
// stored for anonymous requests.
func (s *PrayerService) Submit(ctx context.Context, req *models.CreatePrayerRequest, actor *models.Identity) (*models.PrayerRequest, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if errs := req.Validate(); len(errs) > 0 {
		return nil, invalid(errs)
	}

	ts := now()
	p := &models.PrayerRequest{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		IsAnonymous: req.IsAnonymous,
		Status:      models.PrayerActive,
		Responses:   []models.PrayerResponse{},
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if !req.IsAnonymous {
		p.RequesterID = actor.UserID
		p.RequesterName = actor.DisplayName()
	}

	if err := s.prayers.Insert(ctx, p.ID, p); err != nil {
		return nil, wrapStorage("submit prayer request", err)
	}
	return p, nil
}

// ListActive returns active requests, newest first.
func (s *PrayerService) ListActive(ctx context.Context, viewer *models.Identity) ([]models.PrayerRequest, error) {
	var found []models.PrayerRequest
	q := storage.Query{Where: []storage.Cond{storage.Eq("status", models.PrayerActive)}}
	if err := s.prayers.Find(ctx, q, &found); err != nil {
		return nil, wrapStorage("list prayer requests", err)
	}
	for i := range found {
		redactResponses(&found[i], viewer)
	}
	if found == nil {
		found = []models.PrayerRequest{}
	}
	return found, nil
}

func (s *PrayerService) Get(ctx context.Context, id string, viewer *models.Identity) (*models.PrayerRequest, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	redactResponses(p, viewer)
	return p, nil
}

// Respond adds a response to an active request.
func (s *PrayerService) Respond(ctx context.Context, id string, req *models.PrayerResponseRequest, actor *models.Identity) (*models.PrayerResponse, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if errs := req.Validate(); len(errs) > 0 {
		return nil, invalid(errs)
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PrayerActive {
		return nil, invalidField("status", "Prayer request is not active")
	}

	ts := now()
	resp := models.PrayerResponse{
		ID:            uuid.NewString(),
		ResponderID:   actor.UserID,
		ResponderName: actor.DisplayName(),
		Message:       strings.TrimSpace(req.Message),
		IsPrivate:     req.IsPrivate,
		CreatedAt:     ts,
	}
	touch := map[string]any{"updatedAt": ts}

	if a, ok := s.prayers.(storage.Appender); ok {
		if err := a.Append(ctx, id, "responses", resp, touch); err != nil {
			return nil, wrapStorage("respond to prayer request", err)
		}
		return &resp, nil
	}

	// Read-modify-write: a response written between the read above and this
	// update is overwritten.
	s.log.Warning("appending prayer response without atomic append", "id", id)
	touch["responses"] = append(p.Responses, resp)
	if err := s.prayers.Update(ctx, id, touch); err != nil {
		return nil, wrapStorage("respond to prayer request", err)
	}
	return &resp, nil
}

// SetStatus changes a request's status. Admins and the named requester may
// do this.
func (s *PrayerService) SetStatus(ctx context.Context, id, status string, actor *models.Identity) (*models.PrayerRequest, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	req := models.PrayerStatusRequest{Status: status}
	if errs := req.Validate(); len(errs) > 0 {
		return nil, invalid(errs)
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	isRequester := !p.IsAnonymous && p.RequesterID != "" && p.RequesterID == actor.UserID
	if !actor.IsAdmin() && !isRequester {
		return nil, ErrForbidden
	}

	if err := s.prayers.Update(ctx, id, map[string]any{"status": status, "updatedAt": now()}); err != nil {
		return nil, wrapStorage("set prayer status", err)
	}
	return s.Get(ctx, id, actor)
}

func (s *PrayerService) load(ctx context.Context, id string) (*models.PrayerRequest, error) {
	var p models.PrayerRequest
	if err := s.prayers.FindOne(ctx, id, &p); err != nil {
		return nil, wrapStorage("get prayer request", err)
	}
	if p.Responses == nil {
		p.Responses = []models.PrayerResponse{}
	}
	return &p, nil
}

// redactResponses drops private responses the viewer may not read. Those
// are readable by the requester, their author and admins.
func redactResponses(p *models.PrayerRequest, viewer *models.Identity) {
	if viewer.IsAdmin() {
		return
	}
	isRequester := viewer != nil && p.RequesterID != "" && p.RequesterID == viewer.UserID
	kept := make([]models.PrayerResponse, 0, len(p.Responses))
	for _, r := range p.Responses {
		if !r.IsPrivate || isRequester || (viewer != nil && r.ResponderID == viewer.UserID) {
			kept = append(kept, r)
		}
	}
	p.Responses = kept
}
