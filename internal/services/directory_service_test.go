package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotusmap/backend/internal/models"
	"github.com/lotusmap/backend/internal/storage"
)

func TestSubmitProfileStartsPending(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, storage.NewMemoryStore())

	id := submit(t, d, located(profileReq("Asha", "Pune", "India"), 73.85, 18.52), nil)

	p, err := d.GetProfile(ctx, id, admin)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, p.Status)
	assert.False(t, p.IsApproved)
	assert.False(t, p.IsVisible)
	assert.Empty(t, p.OwnerID)
	assert.False(t, p.CreatedAt.IsZero())
	require.NotNil(t, p.Location)
	assert.Equal(t, []float64{73.85, 18.52}, p.Location.Coordinates)

	_, err = d.GetProfile(ctx, id, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	page, err := d.ListProfiles(ctx, models.ProfileFilter{}, Page{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestSubmitProfileValidation(t *testing.T) {
	d := newDirectory(t, storage.NewMemoryStore())

	tests := []struct {
		name  string
		req   *models.SubmitProfileRequest
		field string
	}{
		{name: "missing name", req: profileReq("", "Pune", "India"), field: "name"},
		{name: "missing city", req: profileReq("Asha", " ", "India"), field: "city"},
		{name: "missing country", req: profileReq("Asha", "Pune", ""), field: "country"},
		{
			name:  "sharing without location",
			req:   &models.SubmitProfileRequest{Name: "Asha", City: "Pune", Country: "India", ShareLocation: boolp(true)},
			field: "location",
		},
		{name: "latitude out of range", req: located(profileReq("Asha", "Pune", "India"), 73.85, 95), field: "location"},
		{
			name:  "lesson out of range",
			req:   &models.SubmitProfileRequest{Name: "Asha", City: "Pune", Country: "India", LessonNumber: intp(0)},
			field: "lessonNumber",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := d.SubmitProfile(context.Background(), test.req, nil)
			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, test.field)
		})
	}
}

func TestSubmitProfileLegacyFirstName(t *testing.T) {
	d := newDirectory(t, storage.NewMemoryStore())
	id := submit(t, d, &models.SubmitProfileRequest{FirstName: "Ravi", City: "Ranchi", Country: "India"}, alice)

	p, err := d.GetProfile(context.Background(), id, alice)
	require.NoError(t, err)
	assert.Equal(t, "Ravi", p.Name)
	assert.Equal(t, alice.UserID, p.OwnerID)
	assert.Nil(t, p.Location)
}

func TestApproveThenList(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, storage.NewMemoryStore())

	id := submit(t, d, profileReq("Asha", "Pune", "India"), nil)

	// Prime the cache with the empty first page.
	page, err := d.ListProfiles(ctx, models.ProfileFilter{}, Page{})
	require.NoError(t, err)
	require.Empty(t, page.Items)

	approve(t, d, id)

	page, err = d.ListProfiles(ctx, models.ProfileFilter{}, Page{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, id, page.Items[0].ID)
	assert.Empty(t, page.NextCursor)

	p, err := d.GetProfile(ctx, id, nil)
	require.NoError(t, err)
	assert.True(t, p.IsApproved)
	assert.True(t, p.IsVisible)
	assert.Equal(t, models.StatusApproved, p.Status)
}

func TestHiddenProfilesAreNeverPublic(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, storage.NewMemoryStore())

	pending := submit(t, d, located(profileReq("Pending", "Pune", "India"), 73.85, 18.52), nil)
	rejected := submit(t, d, located(profileReq("Rejected", "Pune", "India"), 73.85, 18.52), nil)
	_, err := d.SetApprovalStatus(ctx, rejected, models.StatusRejected, admin)
	require.NoError(t, err)
	hiddenByOwner := submit(t, d, located(profileReq("Hidden", "Pune", "India"), 73.85, 18.52), alice)
	approve(t, d, hiddenByOwner)
	_, err = d.UpdateProfile(ctx, hiddenByOwner, &models.UpdateProfileRequest{IsVisible: boolp(false)}, alice)
	require.NoError(t, err)
	shown := submit(t, d, located(profileReq("Shown", "Pune", "India"), 73.85, 18.52), nil)
	approve(t, d, shown)

	page, err := d.ListProfiles(ctx, models.ProfileFilter{}, Page{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, shown, page.Items[0].ID)

	near, err := d.FindNearby(ctx, 73.85, 18.52, 10, 0)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, shown, near[0].ID)

	stats, err := d.ComputeStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, map[string]int64{"India": 1}, stats.ByCountry)

	for _, id := range []string{pending, rejected, hiddenByOwner} {
		_, err := d.GetProfile(ctx, id, bob)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}
	// The owner still sees their hidden profile.
	_, err = d.GetProfile(ctx, hiddenByOwner, alice)
	assert.NoError(t, err)
}

func TestStatisticsEmpty(t *testing.T) {
	d := newDirectory(t, storage.NewMemoryStore())

	stats, err := d.ComputeStatistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Empty(t, stats.ByCountry)
	assert.Len(t, stats.ByContinent, len(Continents))
	for _, c := range Continents {
		assert.Zero(t, stats.ByContinent[c], c)
	}
	assert.Len(t, stats.LessonRanges, len(LessonBands))
	for _, band := range LessonBands {
		assert.Zero(t, stats.LessonRanges[band], band)
	}
}

func TestStatisticsBuckets(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, storage.NewMemoryStore())

	add := func(country, continent, profession string, lesson int) {
		req := profileReq("Devotee", "Somewhere", country)
		req.Continent = continent
		req.Profession = profession
		req.LessonNumber = intp(lesson)
		approve(t, d, submit(t, d, req, nil))
	}
	add("India", "Asia", "Nurse", 1)
	add("India", "Asia", "Engineer", 10)
	add("USA", "North America", "Nurse", 11)
	add("Germany", "Europe", "", 50)
	add("Atlantis", "Lemuria", "", 51)
	add("Brazil", "South America", "Doctor", 200)

	stats, err := d.ComputeStatistics(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(6), stats.Total)
	assert.Equal(t, map[string]int64{"India": 2, "USA": 1, "Germany": 1, "Atlantis": 1, "Brazil": 1}, stats.ByCountry)
	assert.Equal(t, map[string]int64{"Nurse": 2, "Engineer": 1, "Doctor": 1}, stats.ByProfession)
	assert.Equal(t, int64(2), stats.ByContinent["Asia"])
	assert.Equal(t, int64(1), stats.ByContinent["North America"])
	assert.NotContains(t, stats.ByContinent, "Lemuria")
	assert.Equal(t, map[string]int64{
		"1-10":  2,
		"11-20": 1,
		"21-30": 0,
		"31-40": 0,
		"41-50": 1,
		"51+":   2,
	}, stats.LessonRanges)
}

func TestAshaInPune(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, storage.NewMemoryStore())

	before, err := d.ComputeStatistics(ctx)
	require.NoError(t, err)

	req := &models.SubmitProfileRequest{
		Name:        "Asha",
		City:        "Pune",
		Country:     "India",
		Region:      "Maharashtra",
		Coordinates: []float64{73.85, 18.52},
	}
	id := submit(t, d, req, nil)

	p, err := d.GetProfile(ctx, id, admin)
	require.NoError(t, err)
	assert.False(t, p.IsApproved)

	approve(t, d, id)

	page, err := d.ListProfiles(ctx, models.ProfileFilter{Country: "India"}, Page{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Asha", page.Items[0].Name)

	after, err := d.ComputeStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.ByRegion["Maharashtra"]+1, after.ByRegion["Maharashtra"])
	assert.Equal(t, before.ByCountry["India"]+1, after.ByCountry["India"])
	assert.Equal(t, before.Total+1, after.Total)

	// Mumbai is about 120km from Pune.
	near, err := d.FindNearby(ctx, 72.8777, 19.0760, 150, 0)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.InDelta(t, 120, near[0].Distance, 3)
	assert.Equal(t, near[0].Distance, float64(int(near[0].Distance)), "distance is whole km")

	near, err = d.FindNearby(ctx, 72.8777, 19.0760, 50, 0)
	require.NoError(t, err)
	assert.Empty(t, near)
}

func TestFindNearbyRadius(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, storage.NewMemoryStore())

	points := map[string][2]float64{
		"Pune":      {73.8567, 18.5204},
		"Mumbai":    {72.8777, 19.0760},
		"Nashik":    {73.7898, 19.9975},
		"Bengaluru": {77.5946, 12.9716},
		"Delhi":     {77.1025, 28.7041},
	}
	for city, pt := range points {
		approve(t, d, submit(t, d, located(profileReq("Devotee", city, "India"), pt[0], pt[1]), nil))
	}

	for _, radius := range []float64{1, 100, 200, 900, 2000} {
		near, err := d.FindNearby(ctx, 73.8567, 18.5204, radius, 0)
		require.NoError(t, err)
		for _, r := range near {
			assert.LessOrEqual(t, r.Distance, radius)
		}
		for i := 1; i < len(near); i++ {
			assert.LessOrEqual(t, near[i-1].Distance, near[i].Distance)
		}
	}

	near, err := d.FindNearby(ctx, 73.8567, 18.5204, 200, 0)
	require.NoError(t, err)
	cities := make([]string, len(near))
	for i, r := range near {
		cities[i] = r.City
	}
	assert.Equal(t, []string{"Pune", "Mumbai", "Nashik"}, cities)

	near, err = d.FindNearby(ctx, 73.8567, 18.5204, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, near)

	near, err = d.FindNearby(ctx, 73.8567, 18.5204, 2000, 2)
	require.NoError(t, err)
	assert.Len(t, near, 2)

	_, err = d.FindNearby(ctx, 200, 18.5, 100, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNonFiniteCoordinates(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, storage.NewMemoryStore())
	approve(t, d, submit(t, d, located(profileReq("Asha", "Pune", "India"), 73.85, 18.52), nil))

	nan, inf := math.NaN(), math.Inf(1)
	tests := []struct {
		name          string
		lng, lat, rad float64
		field         string
	}{
		{name: "nan latitude", lng: 73.85, lat: nan, rad: 100, field: "location"},
		{name: "nan longitude", lng: nan, lat: 18.52, rad: 100, field: "location"},
		{name: "infinite longitude", lng: -inf, lat: 18.52, rad: 100, field: "location"},
		{name: "nan radius", lng: 73.85, lat: 18.52, rad: nan, field: "radius"},
		{name: "infinite radius", lng: 73.85, lat: 18.52, rad: inf, field: "radius"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := d.FindNearby(ctx, test.lng, test.lat, test.rad, 0)
			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, test.field)
		})
	}

	_, err := d.SubmitProfile(ctx, located(profileReq("Ravi", "Pune", "India"), 73.85, nan), nil)
	assert.ErrorIs(t, err, ErrValidation)
	assert.False(t, models.ValidCoordinates(nan, 0))
	assert.False(t, models.ValidCoordinates(0, inf))
	assert.True(t, models.ValidCoordinates(-180, 90))
}

func TestFindNearbyUnsupported(t *testing.T) {
	d := newDirectory(t, plainStore())
	_, err := d.FindNearby(context.Background(), 73.85, 18.52, 100, 0)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestUpdateProfileAuthorization(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, storage.NewMemoryStore())
	id := submit(t, d, profileReq("Alice", "Pune", "India"), alice)
	approve(t, d, id)

	before, err := d.loadFresh(ctx, id)
	require.NoError(t, err)

	patch := &models.UpdateProfileRequest{City: strp("Mumbai")}

	_, err = d.UpdateProfile(ctx, id, patch, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = d.UpdateProfile(ctx, id, patch, bob)
	assert.ErrorIs(t, err, ErrForbidden)

	after, err := d.loadFresh(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after, "rejected update must not change the record")

	_, err = d.UpdateProfile(ctx, "missing", patch, alice)
	assert.ErrorIs(t, err, ErrNotFound)

	updated, err := d.UpdateProfile(ctx, id, patch, alice)
	require.NoError(t, err)
	assert.Equal(t, "Mumbai", updated.City)
	assert.Equal(t, "Alice", updated.Name)
	assert.False(t, updated.UpdatedAt.Before(before.UpdatedAt))

	updated, err = d.UpdateProfile(ctx, id, &models.UpdateProfileRequest{Profession: strp("Potter")}, admin)
	require.NoError(t, err)
	assert.Equal(t, "Potter", updated.Profession)

	_, err = d.UpdateProfile(ctx, id, &models.UpdateProfileRequest{Name: strp("  ")}, alice)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateProfileStopsSharingLocation(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, storage.NewMemoryStore())
	id := submit(t, d, located(profileReq("Alice", "Pune", "India"), 73.85, 18.52), alice)
	approve(t, d, id)

	updated, err := d.UpdateProfile(ctx, id, &models.UpdateProfileRequest{ShareLocation: boolp(false)}, alice)
	require.NoError(t, err)
	assert.Nil(t, updated.Location)

	near, err := d.FindNearby(ctx, 73.85, 18.52, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, near)
}

func TestSetApprovalStatus(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, storage.NewMemoryStore())
	id := submit(t, d, profileReq("Asha", "Pune", "India"), nil)

	_, err := d.SetApprovalStatus(ctx, id, models.StatusApproved, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = d.SetApprovalStatus(ctx, id, models.StatusApproved, alice)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = d.SetApprovalStatus(ctx, id, models.StatusPending, admin)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = d.SetApprovalStatus(ctx, "missing", models.StatusApproved, admin)
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := d.SetApprovalStatus(ctx, id, models.StatusRejected, admin)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, p.Status)
	assert.False(t, p.IsApproved)
	assert.False(t, p.IsVisible)

	_, err = d.SetApprovalStatus(ctx, id, models.StatusApproved, admin)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListProfilesPagination(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, storage.NewMemoryStore())

	const n = 150
	for i := 0; i < n; i++ {
		approve(t, d, submit(t, d, profileReq("Devotee", "Pune", "India"), nil))
	}

	first, err := d.ListProfiles(ctx, models.ProfileFilter{}, Page{Limit: 200})
	require.NoError(t, err)
	require.Len(t, first.Items, MaxPageSize)
	require.NotEmpty(t, first.NextCursor)

	second, err := d.ListProfiles(ctx, models.ProfileFilter{}, Page{Limit: 200, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, n-MaxPageSize)
	assert.Empty(t, second.NextCursor)

	seen := make(map[string]bool)
	for _, p := range append(first.Items, second.Items...) {
		assert.False(t, seen[p.ID], "duplicate %s", p.ID)
		seen[p.ID] = true
	}
	assert.Len(t, seen, n)

	def, err := d.ListProfiles(ctx, models.ProfileFilter{}, Page{})
	require.NoError(t, err)
	assert.Len(t, def.Items, DefaultPageSize)

	_, err = d.ListProfiles(ctx, models.ProfileFilter{}, Page{Cursor: "not a cursor!"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListProfilesFilters(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, storage.NewMemoryStore())

	add := func(name, city, country, profession string, lesson, years int) {
		req := profileReq(name, city, country)
		req.Profession = profession
		req.LessonNumber = intp(lesson)
		req.YearsOnPath = intp(years)
		approve(t, d, submit(t, d, req, nil))
	}
	add("Asha", "Pune", "India", "Software Engineer", 12, 3)
	add("Bodhi", "San Jose", "USA", "Engineer", 80, 20)
	add("Chitra", "Chennai", "India", "Doctor", 150, 30)

	names := func(f models.ProfileFilter) []string {
		t.Helper()
		page, err := d.ListProfiles(ctx, f, Page{})
		require.NoError(t, err)
		out := make([]string, len(page.Items))
		for i, p := range page.Items {
			out[i] = p.Name
		}
		return out
	}

	assert.ElementsMatch(t, []string{"Asha", "Chitra"}, names(models.ProfileFilter{Country: "india"}))
	assert.ElementsMatch(t, []string{"Asha", "Bodhi"}, names(models.ProfileFilter{Profession: "engineer"}))
	assert.ElementsMatch(t, []string{"Bodhi"}, names(models.ProfileFilter{City: "jose"}))
	assert.ElementsMatch(t, []string{"Bodhi", "Chitra"}, names(models.ProfileFilter{MinLesson: intp(50)}))
	assert.ElementsMatch(t, []string{"Asha", "Bodhi"}, names(models.ProfileFilter{MaxYears: intp(20)}))
	assert.Empty(t, names(models.ProfileFilter{Country: "India", MinYears: intp(31)}))

	_, err := d.ListProfiles(ctx, models.ProfileFilter{MinLesson: intp(10), MaxLesson: intp(5)}, Page{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListAllProfiles(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, storage.NewMemoryStore())
	pending := submit(t, d, profileReq("Pending", "Pune", "India"), nil)
	approved := submit(t, d, profileReq("Approved", "Pune", "India"), nil)
	approve(t, d, approved)

	_, err := d.ListAllProfiles(ctx, alice, "", Page{})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = d.ListAllProfiles(ctx, admin, "bogus", Page{})
	assert.ErrorIs(t, err, ErrValidation)

	all, err := d.ListAllProfiles(ctx, admin, "", Page{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 2)

	onlyPending, err := d.ListAllProfiles(ctx, admin, models.StatusPending, Page{})
	require.NoError(t, err)
	require.Len(t, onlyPending.Items, 1)
	assert.Equal(t, pending, onlyPending.Items[0].ID)
}

func TestWatchChangesInvalidatesCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := storage.NewMemoryStore()
	d := newDirectory(t, store)

	id := submit(t, d, profileReq("Asha", "Pune", "India"), nil)
	approve(t, d, id)
	p, err := d.GetProfile(ctx, id, nil)
	require.NoError(t, err)
	require.Equal(t, "Pune", p.City)

	done := make(chan error, 1)
	go func() { done <- d.WatchChanges(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	// Give the watcher time to subscribe, then write around the service
	// as another instance would.
	assert.Eventually(t, func() bool {
		err := store.Collection(CollectionProfiles).Update(ctx, id, map[string]any{"city": "Mumbai"})
		if err != nil {
			return false
		}
		p, err := d.GetProfile(ctx, id, nil)
		return err == nil && p.City == "Mumbai"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatchChangesUnsupported(t *testing.T) {
	d := newDirectory(t, plainStore())
	assert.ErrorIs(t, d.WatchChanges(context.Background()), ErrUnsupported)
}

func TestLessonBand(t *testing.T) {
	tests := []struct {
		lesson int
		want   string
	}{
		{1, "1-10"},
		{10, "1-10"},
		{11, "11-20"},
		{45, "41-50"},
		{50, "41-50"},
		{51, "51+"},
		{200, "51+"},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, lessonBand(test.lesson), "lesson %d", test.lesson)
	}
}
