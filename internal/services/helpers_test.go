package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/stretchr/testify/require"

	"github.com/lotusmap/backend/internal/cache"
	"github.com/lotusmap/backend/internal/models"
	"github.com/lotusmap/backend/internal/storage"
)

var (
	admin = &models.Identity{UserID: "admin-1", Email: "admin@example.org", Role: models.RoleAdmin}
	alice = &models.Identity{UserID: "user-alice", Name: "Alice", Role: models.RoleUser}
	bob   = &models.Identity{UserID: "user-bob", Name: "Bob", Role: models.RoleUser}
)

func intp(n int) *int       { return &n }
func boolp(b bool) *bool    { return &b }
func strp(s string) *string { return &s }

func testLogger(t *testing.T) logging.Logger {
	return (*logging.TestLogger)(t)
}

func newDirectory(t *testing.T, store storage.Store) *DirectoryService {
	return NewDirectoryService(store, cache.NewMemory(), time.Minute, testLogger(t))
}

func profileReq(name, city, country string) *models.SubmitProfileRequest {
	return &models.SubmitProfileRequest{Name: name, City: city, Country: country}
}

func located(req *models.SubmitProfileRequest, lng, lat float64) *models.SubmitProfileRequest {
	req.ShareLocation = boolp(true)
	req.Location = &models.LngLat{Lng: lng, Lat: lat}
	return req
}

func submit(t *testing.T, d *DirectoryService, req *models.SubmitProfileRequest, actor *models.Identity) string {
	t.Helper()
	id, err := d.SubmitProfile(context.Background(), req, actor)
	require.NoError(t, err)
	return id
}

func approve(t *testing.T, d *DirectoryService, id string) {
	t.Helper()
	_, err := d.SetApprovalStatus(context.Background(), id, models.StatusApproved, admin)
	require.NoError(t, err)
}

// wrapStore lets a test replace collections, for example to hide an
// optional capability.
type wrapStore struct {
	storage.Store
	wrap func(name string, c storage.Collection) storage.Collection
}

func (s wrapStore) Collection(name string) storage.Collection {
	return s.wrap(name, s.Store.Collection(name))
}

// plainCollection exposes only the base Collection methods.
type plainCollection struct {
	storage.Collection
}

func plainStore() storage.Store {
	return wrapStore{
		Store: storage.NewMemoryStore(),
		wrap: func(_ string, c storage.Collection) storage.Collection {
			return plainCollection{c}
		},
	}
}

// barrierCollection holds the first n FindOne callers until all n have
// read, forcing their reads to happen before any of their writes.
type barrierCollection struct {
	storage.Collection

	mu      sync.Mutex
	waiting int
	release chan struct{}
}

func newBarrier(c storage.Collection, n int) *barrierCollection {
	return &barrierCollection{Collection: c, waiting: n, release: make(chan struct{})}
}

func (c *barrierCollection) FindOne(ctx context.Context, id string, dst any) error {
	err := c.Collection.FindOne(ctx, id, dst)

	c.mu.Lock()
	if c.waiting == 0 {
		c.mu.Unlock()
		return err
	}
	c.waiting--
	if c.waiting == 0 {
		close(c.release)
	}
	c.mu.Unlock()

	<-c.release
	return err
}
