package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotusmap/backend/internal/models"
	"github.com/lotusmap/backend/internal/storage"
)

func TestSnapshotOncePerDay(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	d := newDirectory(t, store)
	a := NewAnalyticsService(store, d, testLogger(t))

	first, err := a.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, first.Total)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), first.Date)

	req := profileReq("Asha", "Pune", "India")
	req.Continent = "Asia"
	approve(t, d, submit(t, d, req, alice))

	second, err := a.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), second.Total)

	all, err := a.List(ctx, admin, "", "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(1), all[0].Total)
	assert.Equal(t, int64(1), all[0].ByCountry["India"])
	assert.Equal(t, int64(1), all[0].ByContinent["Asia"])
}

func TestAnalyticsList(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	a := NewAnalyticsService(store, newDirectory(t, store), testLogger(t))

	col := store.Collection(CollectionAnalytics)
	for _, date := range []string{"2024-03-03", "2024-03-01", "2024-03-02"} {
		require.NoError(t, col.Insert(ctx, date, models.AnalyticsSnapshot{ID: date, Date: date}))
	}

	tests := []struct {
		name     string
		actor    *models.Identity
		from, to string
		want     []string
		wantErr  error
	}{
		{name: "anonymous", wantErr: ErrUnauthenticated},
		{name: "not admin", actor: alice, wantErr: ErrForbidden},
		{name: "bad date", actor: admin, from: "03/01/2024", wantErr: ErrValidation},
		{name: "all oldest first", actor: admin, want: []string{"2024-03-01", "2024-03-02", "2024-03-03"}},
		{name: "inclusive range", actor: admin, from: "2024-03-02", to: "2024-03-03", want: []string{"2024-03-02", "2024-03-03"}},
		{name: "empty range", actor: admin, from: "2025-01-01", want: []string{}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := a.List(ctx, test.actor, test.from, test.to)
			if test.wantErr != nil {
				assert.ErrorIs(t, err, test.wantErr)
				return
			}
			require.NoError(t, err)
			dates := []string{}
			for _, s := range got {
				dates = append(dates, s.Date)
			}
			assert.Equal(t, test.want, dates)
		})
	}
}
