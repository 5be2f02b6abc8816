package models

import (
	"net/mail"
	"strings"
	"time"
)

// Center categories.
const (
	CategoryHeadquarters = "Headquarters"
	CategoryTemple       = "Temple"
	CategoryAshram       = "Ashram"
	CategoryRetreat      = "Retreat"
	CategoryKendra       = "Kendra"
	CategoryCenter       = "Center"
)

var centerCategories = map[string]bool{
	CategoryHeadquarters: true,
	CategoryTemple:       true,
	CategoryAshram:       true,
	CategoryRetreat:      true,
	CategoryKendra:       true,
	CategoryCenter:       true,
}

type Center struct {
	ID           string    `json:"id" bson:"_id" firestore:"id"`
	Name         string    `json:"name" bson:"name" firestore:"name"`
	City         string    `json:"city" bson:"city" firestore:"city"`
	Country      string    `json:"country" bson:"country" firestore:"country"`
	Region       string    `json:"region" bson:"region" firestore:"region"`
	Location     *GeoPoint `json:"location,omitempty" bson:"location,omitempty" firestore:"location,omitempty"`
	ContactEmail string    `json:"contactEmail,omitempty" bson:"contactEmail,omitempty" firestore:"contactEmail,omitempty"`
	ContactPhone string    `json:"contactPhone,omitempty" bson:"contactPhone,omitempty" firestore:"contactPhone,omitempty"`
	Category     string    `json:"category,omitempty" bson:"category,omitempty" firestore:"category,omitempty"`
	Icon         string    `json:"icon,omitempty" bson:"icon,omitempty" firestore:"icon,omitempty"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt" firestore:"updatedAt"`
}

// CenterRequest is used for both create and update. Update replaces every
// editable field.
type CenterRequest struct {
	Name         string  `json:"name"`
	City         string  `json:"city"`
	Country      string  `json:"country"`
	Region       string  `json:"region"`
	Location     *LngLat `json:"location"`
	ContactEmail string  `json:"contactEmail"`
	ContactPhone string  `json:"contactPhone"`
	Category     string  `json:"category"`
	Icon         string  `json:"icon"`
}

func (r *CenterRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(r.Name) == "" {
		errors["name"] = "Name is required"
	}
	if strings.TrimSpace(r.City) == "" {
		errors["city"] = "City is required"
	}
	if strings.TrimSpace(r.Country) == "" {
		errors["country"] = "Country is required"
	}
	if strings.TrimSpace(r.Region) == "" {
		errors["region"] = "Region is required"
	}
	if r.Location != nil {
		if msg := r.Location.validate(); msg != "" {
			errors["location"] = msg
		}
	}
	if r.ContactEmail != "" {
		if _, err := mail.ParseAddress(r.ContactEmail); err != nil {
			errors["contactEmail"] = "Invalid email address"
		}
	}
	if r.Category != "" && !centerCategories[r.Category] {
		errors["category"] = "Unknown category"
	}

	return errors
}

// Fields returns the storage field set for an update.
func (r *CenterRequest) Fields() map[string]any {
	set := map[string]any{
		"name":         strings.TrimSpace(r.Name),
		"city":         strings.TrimSpace(r.City),
		"country":      strings.TrimSpace(r.Country),
		"region":       strings.TrimSpace(r.Region),
		"contactEmail": r.ContactEmail,
		"contactPhone": r.ContactPhone,
		"category":     r.Category,
		"icon":         r.Icon,
		"location":     nil,
	}
	if r.Location != nil {
		set["location"] = r.Location.GeoPoint()
	}
	return set
}
