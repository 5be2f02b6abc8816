package services

import (
	"context"
	"errors"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/lotusmap/backend/internal/models"
	"github.com/lotusmap/backend/internal/storage"
)

const dateLayout = "2006-01-02"

// AnalyticsService records daily statistics snapshots.
type AnalyticsService struct {
	directory *DirectoryService
	snapshots storage.Collection
	log       logging.Logger
}

func NewAnalyticsService(store storage.Store, directory *DirectoryService, log logging.Logger) *AnalyticsService {
	return &AnalyticsService{
		directory: directory,
		snapshots: store.Collection(CollectionAnalytics),
		log:       log,
	}
}

// Snapshot stores today's statistics. Running it again on the same day
// overwrites that day's snapshot.
func (s *AnalyticsService) Snapshot(ctx context.Context) (*models.AnalyticsSnapshot, error) {
	stats, err := s.directory.ComputeStatistics(ctx)
	if err != nil {
		return nil, err
	}

	ts := now()
	snap := &models.AnalyticsSnapshot{
		ID:           ts.Format(dateLayout),
		Date:         ts.Format(dateLayout),
		Total:        stats.Total,
		ByCountry:    stats.ByCountry,
		ByRegion:     stats.ByRegion,
		ByContinent:  stats.ByContinent,
		LessonRanges: stats.LessonRanges,
		CreatedAt:    ts,
	}

	err = s.snapshots.Update(ctx, snap.ID, map[string]any{
		"total":        snap.Total,
		"byCountry":    snap.ByCountry,
		"byRegion":     snap.ByRegion,
		"byContinent":  snap.ByContinent,
		"lessonRanges": snap.LessonRanges,
		"createdAt":    snap.CreatedAt,
	})
	if errors.Is(err, storage.ErrNotFound) {
		err = s.snapshots.Insert(ctx, snap.ID, snap)
	}
	if err != nil {
		return nil, wrapStorage("store analytics snapshot", err)
	}

	s.log.Info("analytics snapshot stored", "date", snap.Date, "total", snap.Total)
	return snap, nil
}

// List returns snapshots between from and to (YYYY-MM-DD, inclusive,
// either may be empty), oldest first.
func (s *AnalyticsService) List(ctx context.Context, actor *models.Identity, from, to string) ([]models.AnalyticsSnapshot, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	errs := make(map[string]string)
	q := storage.Query{Sort: []storage.Order{{Field: "date"}}}
	for field, v := range map[string]string{"from": from, "to": to} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, v); err != nil {
			errs[field] = "Date must be YYYY-MM-DD"
			continue
		}
		op := storage.OpGte
		if field == "to" {
			op = storage.OpLte
		}
		q.Where = append(q.Where, storage.Cond{Field: "date", Op: op, Value: v})
	}
	if len(errs) > 0 {
		return nil, invalid(errs)
	}

	var found []models.AnalyticsSnapshot
	if err := s.snapshots.Find(ctx, q, &found); err != nil {
		return nil, wrapStorage("list analytics", err)
	}
	if found == nil {
		found = []models.AnalyticsSnapshot{}
	}
	return found, nil
}
