// Command seed fills the configured store with fake devotee profiles for
// local development. Profiles are placed near the seeded centers and a
// share of them are approved.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/lotusmap/backend/internal/app"
	"github.com/lotusmap/backend/internal/config"
	"github.com/lotusmap/backend/internal/models"
)

var continents = map[string]string{
	"USA":     "North America",
	"Germany": "Europe",
	"Brazil":  "South America",
	"India":   "Asia",
}

func main() {
	count := flag.Int("n", 50, "number of profiles to create")
	approveRatio := flag.Float64("approve", 0.8, "fraction of profiles to approve")
	seed := flag.Int64("seed", 0, "random seed, 0 for a random one")
	flag.Parse()

	cfg := config.Load()
	log := config.NewLogger(cfg)
	gofakeit.Seed(*seed)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("could not initialize application", "error", err.Error())
	}
	defer a.Close(context.Background())

	if _, err := a.Centers.SeedDefaults(ctx); err != nil {
		log.Fatal("could not seed centers", "error", err.Error())
	}
	centers, err := a.Centers.List(ctx, "", "")
	if err != nil || len(centers) == 0 {
		log.Fatal("no centers to place profiles near", "error", errString(err))
	}

	admin := &models.Identity{UserID: "seed", Name: "Seeder", Role: models.RoleAdmin}
	var approved int
	for i := 0; i < *count; i++ {
		c := centers[gofakeit.Number(0, len(centers)-1)]
		req := fakeProfile(c)

		id, err := a.Directory.SubmitProfile(ctx, req, nil)
		if err != nil {
			log.Error("could not submit profile", "error", err.Error())
			continue
		}
		if gofakeit.Float64Range(0, 1) < *approveRatio {
			if _, err := a.Directory.SetApprovalStatus(ctx, id, models.StatusApproved, admin); err != nil {
				log.Error("could not approve profile", "id", id, "error", err.Error())
				continue
			}
			approved++
		}
	}
	log.Info("seeding finished", "profiles", *count, "approved", approved)
}

// fakeProfile builds a submission located within roughly 30km of c.
func fakeProfile(c models.Center) *models.SubmitProfileRequest {
	years := gofakeit.Number(0, 40)
	lesson := gofakeit.Number(1, 200)
	share := gofakeit.Bool()

	req := &models.SubmitProfileRequest{
		Name:          gofakeit.FirstName() + " " + gofakeit.LastName(),
		City:          c.City,
		Country:       c.Country,
		Region:        c.Region,
		Continent:     continents[c.Country],
		YearsOnPath:   &years,
		LessonNumber:  &lesson,
		Profession:    gofakeit.JobTitle(),
		Background:    gofakeit.Sentence(12),
		FavoriteQuote: gofakeit.Sentence(8),
		CenterID:      c.ID,
		ShareLocation: &share,
	}
	if share && c.Location != nil {
		req.Location = &models.LngLat{
			Lng: c.Location.Lng() + gofakeit.Float64Range(-0.25, 0.25),
			Lat: c.Location.Lat() + gofakeit.Float64Range(-0.25, 0.25),
		}
	} else {
		no := false
		req.ShareLocation = &no
	}
	return req
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
