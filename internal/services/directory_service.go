package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/google/uuid"

	"github.com/lotusmap/backend/internal/cache"
	"github.com/lotusmap/backend/internal/models"
	"github.com/lotusmap/backend/internal/storage"
)

// Collection names.
const (
	CollectionProfiles  = "profiles"
	CollectionCenters   = "centers"
	CollectionPrayers   = "prayer_requests"
	CollectionMoments   = "moments"
	CollectionAnalytics = "analytics"
)

// Nearby search defaults.
const (
	DefaultNearbyRadiusKm = 100
	DefaultNearbyLimit    = 50
)

// Continents counted in statistics. Other values only count toward the
// total.
var Continents = []string{
	"North America",
	"South America",
	"Europe",
	"Asia",
	"Africa",
	"Australia",
	"Antarctica",
}

const (
	cachePagePrefix  = "profiles:page:"
	cacheFirstPages  = cachePagePrefix + ":"
	cacheProfilePref = "profile:"
)

// DirectoryService manages devotee profiles.
type DirectoryService struct {
	profiles storage.Collection
	cache    cache.Cache
	cacheTTL time.Duration
	log      logging.Logger
}

func NewDirectoryService(store storage.Store, c cache.Cache, cacheTTL time.Duration, log logging.Logger) *DirectoryService {
	if c == nil {
		c = cache.Nop{}
	}
	return &DirectoryService{
		profiles: store.Collection(CollectionProfiles),
		cache:    c,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// visible is the only definition of public visibility. Every public read
// includes it.
func visible() []storage.Cond {
	return []storage.Cond{
		storage.Eq("isApproved", true),
		storage.Eq("isVisible", true),
	}
}

// SubmitProfile stores a new pending profile and returns its id. actor may
// be nil for anonymous submissions.
func (s *DirectoryService) SubmitProfile(ctx context.Context, req *models.SubmitProfileRequest, actor *models.Identity) (string, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return "", invalid(errs)
	}

	ts := now()
	p := models.Profile{
		ID:            uuid.NewString(),
		Name:          req.DisplayName(),
		City:          strings.TrimSpace(req.City),
		Country:       strings.TrimSpace(req.Country),
		Region:        strings.TrimSpace(req.Region),
		Continent:     strings.TrimSpace(req.Continent),
		SpiritualName: strings.TrimSpace(req.SpiritualName),
		YearsOnPath:   req.YearsOnPath,
		LessonNumber:  req.LessonNumber,
		Profession:    strings.TrimSpace(req.Profession),
		Background:    strings.TrimSpace(req.Background),
		FavoriteQuote: strings.TrimSpace(req.FavoriteQuote),
		FavoriteChant: strings.TrimSpace(req.FavoriteChant),
		CenterID:      req.CenterID,
		Status:        models.StatusPending,
		IsApproved:    false,
		IsVisible:     false,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	if actor != nil {
		p.OwnerID = actor.UserID
	}
	if req.SharesLocation() {
		p.Location = req.Point().GeoPoint()
	}

	if err := s.profiles.Insert(ctx, p.ID, &p); err != nil {
		return "", wrapStorage("submit profile", err)
	}
	s.invalidate(ctx, p.ID)

	s.log.Info("profile submitted", "id", p.ID, "anonymous", actor == nil)
	return p.ID, nil
}

// ListProfiles returns one page of visible profiles, newest first.
func (s *DirectoryService) ListProfiles(ctx context.Context, filter models.ProfileFilter, page Page) (*models.ProfilePage, error) {
	limit := clampLimit(page.Limit, DefaultPageSize, MaxPageSize)
	after, err := decodeCursor(page.Cursor)
	if err != nil {
		return nil, err
	}
	conds, err := filterConds(filter)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s%s:%s:%d", cachePagePrefix, page.Cursor, filterKey(filter), limit)
	var cached models.ProfilePage
	if ok := s.cacheGet(ctx, key, &cached); ok {
		return &cached, nil
	}

	var found []models.Profile
	q := storage.Query{Where: append(visible(), conds...), After: after, Limit: limit + 1}
	if err := s.profiles.Find(ctx, q, &found); err != nil {
		return nil, wrapStorage("list profiles", err)
	}

	out := &models.ProfilePage{Items: make([]models.PublicProfile, 0, len(found))}
	if len(found) > limit {
		last := found[limit-1]
		out.NextCursor = encodeCursor(last.CreatedAt, last.ID)
		found = found[:limit]
	}
	for i := range found {
		out.Items = append(out.Items, found[i].Public())
	}

	s.cacheSet(ctx, key, out)
	return out, nil
}

// ListAllProfiles is the moderation listing. It includes hidden profiles
// and can be narrowed by status.
func (s *DirectoryService) ListAllProfiles(ctx context.Context, actor *models.Identity, status string, page Page) (*models.AdminProfilePage, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	switch status {
	case "", models.StatusPending, models.StatusApproved, models.StatusRejected:
	default:
		return nil, invalidField("status", "Status must be one of: pending, approved, rejected")
	}
	limit := clampLimit(page.Limit, DefaultPageSize, MaxPageSize)
	after, err := decodeCursor(page.Cursor)
	if err != nil {
		return nil, err
	}

	q := storage.Query{After: after, Limit: limit + 1}
	if status != "" {
		q.Where = append(q.Where, storage.Eq("status", status))
	}
	var found []models.Profile
	if err := s.profiles.Find(ctx, q, &found); err != nil {
		return nil, wrapStorage("list all profiles", err)
	}

	out := &models.AdminProfilePage{Items: found}
	if out.Items == nil {
		out.Items = []models.Profile{}
	}
	if len(found) > limit {
		last := found[limit-1]
		out.NextCursor = encodeCursor(last.CreatedAt, last.ID)
		out.Items = found[:limit]
	}
	return out, nil
}

// GetProfile returns a profile the actor may see. Hidden profiles are only
// visible to their owner and admins; everyone else gets ErrNotFound.
func (s *DirectoryService) GetProfile(ctx context.Context, id string, actor *models.Identity) (*models.Profile, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsPublic() && !CanManageProfile(p, actor) {
		return nil, ErrNotFound
	}
	return p, nil
}

// CanManageProfile reports whether actor owns p or is an admin.
func CanManageProfile(p *models.Profile, actor *models.Identity) bool {
	if actor == nil {
		return false
	}
	return actor.IsAdmin() || (p.OwnerID != "" && p.OwnerID == actor.UserID)
}

// FindNearby returns visible profiles within radiusKm of (lng, lat), nearest
// first, with distances rounded to whole kilometers.
func (s *DirectoryService) FindNearby(ctx context.Context, lng, lat, radiusKm float64, limit int) ([]models.NearbyResult, error) {
	if !models.ValidCoordinates(lng, lat) {
		return nil, invalidField("location", "Coordinates out of range")
	}
	if math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) {
		return nil, invalidField("radius", "Radius must be a finite number")
	}
	if radiusKm <= 0 {
		return []models.NearbyResult{}, nil
	}
	geo, ok := s.profiles.(storage.GeoQuerier)
	if !ok {
		return nil, ErrUnsupported
	}
	limit = clampLimit(limit, DefaultNearbyLimit, MaxPageSize)
	maxMeters := radiusKm * 1000

	var found []models.NearbyProfile
	q := storage.Query{Where: visible(), Limit: limit}
	if err := geo.Near(ctx, lng, lat, maxMeters, q, &found); err != nil {
		return nil, wrapStorage("find nearby", err)
	}

	out := make([]models.NearbyResult, 0, len(found))
	for i := range found {
		if found[i].Distance > maxMeters {
			continue
		}
		out = append(out, models.NearbyResult{
			PublicProfile: found[i].Profile.Public(),
			Distance:      math.Round(found[i].Distance / 1000),
		})
	}
	return out, nil
}

// UpdateProfile merges req into the profile. Only the owner or an admin may
// update it.
func (s *DirectoryService) UpdateProfile(ctx context.Context, id string, req *models.UpdateProfileRequest, actor *models.Identity) (*models.Profile, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanManageProfile(p, actor) {
		s.log.Warning("profile update denied", "id", id, "user", actor.UserID)
		return nil, ErrForbidden
	}
	if errs := req.Validate(); len(errs) > 0 {
		return nil, invalid(errs)
	}

	set := req.Fields()
	set["updatedAt"] = now()
	if err := s.profiles.Update(ctx, id, set); err != nil {
		return nil, wrapStorage("update profile", err)
	}
	s.invalidate(ctx, id)

	return s.loadFresh(ctx, id)
}

// SetApprovalStatus approves or rejects a profile. Rejection is final.
func (s *DirectoryService) SetApprovalStatus(ctx context.Context, id, status string, actor *models.Identity) (*models.Profile, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	req := models.ApprovalRequest{Status: status}
	if errs := req.Validate(); len(errs) > 0 {
		return nil, invalid(errs)
	}
	p, err := s.loadFresh(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == models.StatusRejected && status == models.StatusApproved {
		return nil, invalidField("status", "Rejected profiles cannot be approved")
	}

	set := map[string]any{
		"status":    status,
		"updatedAt": now(),
	}
	if status == models.StatusApproved {
		set["isApproved"] = true
		set["isVisible"] = true
	} else {
		set["isApproved"] = false
		set["isVisible"] = false
	}
	if err := s.profiles.Update(ctx, id, set); err != nil {
		return nil, wrapStorage("set approval status", err)
	}
	s.invalidate(ctx, id)

	s.log.Info("profile moderated", "id", id, "status", status, "by", actor.UserID)
	return s.loadFresh(ctx, id)
}

// ComputeStatistics aggregates visible profiles.
func (s *DirectoryService) ComputeStatistics(ctx context.Context) (*models.Statistics, error) {
	q := storage.Query{Where: visible()}

	total, err := s.profiles.Count(ctx, q)
	if err != nil {
		return nil, wrapStorage("count profiles", err)
	}
	stats := &models.Statistics{Total: total}

	groups := map[string]*map[string]int64{
		"country":    &stats.ByCountry,
		"region":     &stats.ByRegion,
		"profession": &stats.ByProfession,
	}
	for field, dst := range groups {
		counts, err := s.profiles.GroupCount(ctx, q, field)
		if err != nil {
			return nil, wrapStorage("group profiles by "+field, err)
		}
		delete(counts, "")
		*dst = counts
	}

	continents, err := s.profiles.GroupCount(ctx, q, "continent")
	if err != nil {
		return nil, wrapStorage("group profiles by continent", err)
	}
	stats.ByContinent = make(map[string]int64, len(Continents))
	for _, c := range Continents {
		stats.ByContinent[c] = continents[c]
	}

	lessons, err := s.profiles.GroupCount(ctx, q, "lessonNumber")
	if err != nil {
		return nil, wrapStorage("group profiles by lesson", err)
	}
	stats.LessonRanges = lessonRanges(lessons)

	return stats, nil
}

// LessonBands lists the lessonRanges keys in order.
var LessonBands = []string{"1-10", "11-20", "21-30", "31-40", "41-50", "51+"}

func lessonRanges(byLesson map[string]int64) map[string]int64 {
	ranges := make(map[string]int64, len(LessonBands))
	for _, band := range LessonBands {
		ranges[band] = 0
	}
	for key, n := range byLesson {
		lesson, err := strconv.ParseFloat(key, 64)
		if err != nil || lesson < 1 {
			continue
		}
		ranges[lessonBand(int(lesson))] += n
	}
	return ranges
}

func lessonBand(lesson int) string {
	if lesson > 50 {
		return "51+"
	}
	upper := int(math.Ceil(float64(lesson)/10)) * 10
	return fmt.Sprintf("%d-%d", upper-9, upper)
}

// WatchChanges drops cached profile reads whenever the backend reports a
// change, including writes from other instances. It blocks until ctx is
// done.
func (s *DirectoryService) WatchChanges(ctx context.Context) error {
	w, ok := s.profiles.(storage.Watcher)
	if !ok {
		return ErrUnsupported
	}
	events, err := w.Watch(ctx)
	if err != nil {
		return wrapStorage("watch profiles", err)
	}

	s.log.Info("watching profile changes")
	for ev := range events {
		s.log.Debug("profile changed", "id", ev.ID, "op", ev.Op)
		s.invalidate(ctx, ev.ID)
	}
	if ctx.Err() != nil {
		return nil
	}
	return &BackendError{Op: "watch profiles", Err: fmt.Errorf("change stream closed")}
}

func (s *DirectoryService) load(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	if s.cacheGet(ctx, cacheProfilePref+id, &p) {
		return &p, nil
	}
	fresh, err := s.loadFresh(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, cacheProfilePref+id, fresh)
	return fresh, nil
}

func (s *DirectoryService) loadFresh(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	if err := s.profiles.FindOne(ctx, id, &p); err != nil {
		return nil, wrapStorage("get profile", err)
	}
	return &p, nil
}

// invalidate drops the profile and every first page. Deeper pages expire
// with the TTL.
func (s *DirectoryService) invalidate(ctx context.Context, id string) {
	if err := s.cache.DeletePrefix(ctx, cacheFirstPages); err != nil {
		s.log.Warning("could not invalidate profile pages", "error", err)
	}
	if id == "" {
		return
	}
	if err := s.cache.Delete(ctx, cacheProfilePref+id); err != nil {
		s.log.Warning("could not invalidate profile", "id", id, "error", err)
	}
}

func (s *DirectoryService) cacheGet(ctx context.Context, key string, dst any) bool {
	ok, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.log.Warning("cache read failed", "key", key, "error", err)
		return false
	}
	return ok
}

func (s *DirectoryService) cacheSet(ctx context.Context, key string, v any) {
	if err := s.cache.Set(ctx, key, v, s.cacheTTL); err != nil {
		s.log.Warning("cache write failed", "key", key, "error", err)
	}
}

func filterConds(f models.ProfileFilter) ([]storage.Cond, error) {
	var conds []storage.Cond
	contains := func(field, v string) {
		if v = strings.TrimSpace(v); v != "" {
			conds = append(conds, storage.Cond{Field: field, Op: storage.OpContainsFold, Value: v})
		}
	}
	contains("country", f.Country)
	contains("city", f.City)
	contains("profession", f.Profession)
	if f.Region != "" {
		conds = append(conds, storage.Eq("region", f.Region))
	}
	if f.CenterID != "" {
		conds = append(conds, storage.Eq("centerId", f.CenterID))
	}

	errs := make(map[string]string)
	between := func(field string, min, max *int) {
		if min != nil && max != nil && *min > *max {
			errs[field] = "Minimum exceeds maximum"
			return
		}
		if min != nil {
			conds = append(conds, storage.Cond{Field: field, Op: storage.OpGte, Value: *min})
		}
		if max != nil {
			conds = append(conds, storage.Cond{Field: field, Op: storage.OpLte, Value: *max})
		}
	}
	between("lessonNumber", f.MinLesson, f.MaxLesson)
	between("yearsOnPath", f.MinYears, f.MaxYears)
	if len(errs) > 0 {
		return nil, invalid(errs)
	}
	return conds, nil
}

// filterKey is a stable cache key fragment for f.
func filterKey(f models.ProfileFilter) string {
	if f.IsZero() {
		return ""
	}
	num := func(v *int) string {
		if v == nil {
			return ""
		}
		return strconv.Itoa(*v)
	}
	return strings.Join([]string{
		strings.ToLower(f.Country), strings.ToLower(f.City), strings.ToLower(f.Profession),
		f.Region, f.CenterID,
		num(f.MinLesson), num(f.MaxLesson), num(f.MinYears), num(f.MaxYears),
	}, ",")
}

func requireAdmin(actor *models.Identity) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
