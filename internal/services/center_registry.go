package services

import (
	"context"
	"strings"

	"github.com/ausocean/utils/logging"
	"github.com/google/uuid"

	"github.com/lotusmap/backend/internal/models"
	"github.com/lotusmap/backend/internal/storage"
)

// CenterRegistry manages the physical centers reference data.
type CenterRegistry struct {
	centers storage.Collection
	log     logging.Logger
}

func NewCenterRegistry(store storage.Store, log logging.Logger) *CenterRegistry {
	return &CenterRegistry{centers: store.Collection(CollectionCenters), log: log}
}

// List returns centers ordered by name, optionally narrowed by country and
// region.
func (r *CenterRegistry) List(ctx context.Context, country, region string) ([]models.Center, error) {
	q := storage.Query{Sort: []storage.Order{{Field: "name"}}}
	if country != "" {
		q.Where = append(q.Where, storage.Eq("country", country))
	}
	if region != "" {
		q.Where = append(q.Where, storage.Eq("region", region))
	}

	var centers []models.Center
	if err := r.centers.Find(ctx, q, &centers); err != nil {
		return nil, wrapStorage("list centers", err)
	}
	if centers == nil {
		centers = []models.Center{}
	}
	return centers, nil
}

func (r *CenterRegistry) Get(ctx context.Context, id string) (*models.Center, error) {
	var c models.Center
	if err := r.centers.FindOne(ctx, id, &c); err != nil {
		return nil, wrapStorage("get center", err)
	}
	return &c, nil
}

// FindByName matches the whole name, ignoring case.
func (r *CenterRegistry) FindByName(ctx context.Context, name string) (*models.Center, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidField("name", "Name is required")
	}

	var candidates []models.Center
	q := storage.Query{
		Where: []storage.Cond{{Field: "name", Op: storage.OpContainsFold, Value: name}},
		Sort:  []storage.Order{{Field: "name"}},
	}
	if err := r.centers.Find(ctx, q, &candidates); err != nil {
		return nil, wrapStorage("find center", err)
	}
	for i := range candidates {
		if strings.EqualFold(candidates[i].Name, name) {
			return &candidates[i], nil
		}
	}
	return nil, ErrNotFound
}

func (r *CenterRegistry) Create(ctx context.Context, req *models.CenterRequest, actor *models.Identity) (*models.Center, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if errs := req.Validate(); len(errs) > 0 {
		return nil, invalid(errs)
	}

	c := newCenter(req)
	if err := r.centers.Insert(ctx, c.ID, c); err != nil {
		return nil, wrapStorage("create center", err)
	}
	r.log.Info("center created", "id", c.ID, "name", c.Name)
	return c, nil
}

func (r *CenterRegistry) Update(ctx context.Context, id string, req *models.CenterRequest, actor *models.Identity) (*models.Center, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if errs := req.Validate(); len(errs) > 0 {
		return nil, invalid(errs)
	}

	set := req.Fields()
	set["updatedAt"] = now()
	if err := r.centers.Update(ctx, id, set); err != nil {
		return nil, wrapStorage("update center", err)
	}
	return r.Get(ctx, id)
}

func (r *CenterRegistry) Delete(ctx context.Context, id string, actor *models.Identity) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := r.centers.Delete(ctx, id); err != nil {
		return wrapStorage("delete center", err)
	}
	r.log.Info("center deleted", "id", id)
	return nil
}

// SeedDefaults loads the built-in centers into an empty registry and
// returns how many were added.
func (r *CenterRegistry) SeedDefaults(ctx context.Context) (int, error) {
	n, err := r.centers.Count(ctx, storage.Query{})
	if err != nil {
		return 0, wrapStorage("count centers", err)
	}
	if n > 0 {
		return 0, nil
	}

	for i := range DefaultCenters {
		c := newCenter(&DefaultCenters[i])
		if err := r.centers.Insert(ctx, c.ID, c); err != nil {
			return i, wrapStorage("seed centers", err)
		}
	}
	r.log.Info("seeded default centers", "count", len(DefaultCenters))
	return len(DefaultCenters), nil
}

func newCenter(req *models.CenterRequest) *models.Center {
	ts := now()
	c := &models.Center{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		City:         strings.TrimSpace(req.City),
		Country:      strings.TrimSpace(req.Country),
		Region:       strings.TrimSpace(req.Region),
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Category:     req.Category,
		Icon:         req.Icon,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if req.Location != nil {
		c.Location = req.Location.GeoPoint()
	}
	return c
}

func at(lng, lat float64) *models.LngLat {
	return &models.LngLat{Lng: lng, Lat: lat}
}

// DefaultCenters is the built-in center list.
var DefaultCenters = []models.CenterRequest{
	{Name: "SRF Headquarters LA (Mother Center)", City: "Los Angeles", Country: "USA", Region: "California", Location: at(-118.2210, 34.1344), Category: models.CategoryHeadquarters, Icon: "lotus"},
	{Name: "Lake Shrine Temple", City: "Pacific Palisades", Country: "USA", Region: "California", Location: at(-118.5524, 34.0427), Category: models.CategoryTemple, Icon: "lotus"},
	{Name: "Bay Area Temple", City: "Walnut Creek", Country: "USA", Region: "California", Location: at(-122.0630, 37.9065), Category: models.CategoryTemple, Icon: "srf-symbol"},
	{Name: "Encinitas Temple", City: "Encinitas", Country: "USA", Region: "California", Location: at(-117.2920, 33.0458), Category: models.CategoryTemple, Icon: "srf-symbol"},
	{Name: "Fullerton Temple", City: "Fullerton", Country: "USA", Region: "California", Location: at(-117.9243, 33.8703), Category: models.CategoryTemple, Icon: "srf-symbol"},
	{Name: "Glendale Temple", City: "Glendale", Country: "USA", Region: "California", Location: at(-118.2551, 34.1460), Category: models.CategoryTemple, Icon: "srf-symbol"},
	{Name: "Hollywood Temple", City: "Los Angeles", Country: "USA", Region: "California", Location: at(-118.3235, 34.0979), Category: models.CategoryTemple, Icon: "srf-symbol"},
	{Name: "San Diego Temple", City: "San Diego", Country: "USA", Region: "California", Location: at(-117.1502, 32.7338), Category: models.CategoryTemple, Icon: "srf-symbol"},
	{Name: "Phoenix Temple", City: "Phoenix", Country: "USA", Region: "Arizona", Location: at(-112.0380, 33.4942), Category: models.CategoryTemple, Icon: "srf-symbol"},
	{Name: "Hidden Valley Ashram", City: "Escondido", Country: "USA", Region: "California", Location: at(-117.0800, 33.1420), Category: models.CategoryAshram, Icon: "srf-symbol"},
	{Name: "Greenfield Retreat", City: "Ware Neck", Country: "USA", Region: "Virginia", Location: at(-78.1944, 38.9200), Category: models.CategoryRetreat, Icon: "srf-symbol"},
	{Name: "Bermersbach Retreat", City: "Forbach", Country: "Germany", Region: "Baden-Württemberg", Location: at(8.1500, 49.6000), Category: models.CategoryRetreat, Icon: "srf-symbol"},
	{Name: "Armação Retreat Center", City: "Armação", Country: "Brazil", Region: "Santa Catarina", Location: at(-48.5000, -27.0000), Category: models.CategoryRetreat, Icon: "srf-symbol"},
	{Name: "YSS Ranchi Ashram (HQ)", City: "Ranchi", Country: "India", Region: "Jharkhand", Location: at(85.3420, 23.3441), Category: models.CategoryHeadquarters, Icon: "ranchi-ashram"},
	{Name: "Yogoda Satsanga Math (HQ)", City: "Dakshineswar", Country: "India", Region: "West Bengal", Location: at(88.3542, 22.6547), Category: models.CategoryHeadquarters, Icon: "srf-symbol"},
	{Name: "Dwarahat Ashram", City: "Dwarahat", Country: "India", Region: "Uttarakhand", Location: at(79.5610, 29.6906), Category: models.CategoryAshram, Icon: "srf-symbol"},
	{Name: "Noida Sakha Ashram", City: "Noida", Country: "India", Region: "Uttar Pradesh", Location: at(77.3260, 28.5719), Category: models.CategoryAshram, Icon: "srf-symbol"},
	{Name: "Bengaluru (Domlur) Kendra", City: "Bengaluru", Country: "India", Region: "Karnataka", Location: at(77.6401, 12.9718), Category: models.CategoryKendra, Icon: "srf-symbol"},
	{Name: "Visakhapatnam Kendra", City: "Visakhapatnam", Country: "India", Region: "Andhra Pradesh", Location: at(83.2185, 17.6868), Category: models.CategoryKendra, Icon: "srf-symbol"},
}
