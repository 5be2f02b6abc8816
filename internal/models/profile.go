package models

import (
	"strings"
	"time"
)

// Profile statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Profile is a devotee's directory record. Field names are shared by every
// storage backend, so the json, bson and firestore tags must stay in sync.
type Profile struct {
	ID            string    `json:"id" bson:"_id" firestore:"id"`
	OwnerID       string    `json:"ownerId,omitempty" bson:"ownerId" firestore:"ownerId"`
	Name          string    `json:"name" bson:"name" firestore:"name"`
	City          string    `json:"city" bson:"city" firestore:"city"`
	Country       string    `json:"country" bson:"country" firestore:"country"`
	Region        string    `json:"region,omitempty" bson:"region,omitempty" firestore:"region,omitempty"`
	Continent     string    `json:"continent,omitempty" bson:"continent,omitempty" firestore:"continent,omitempty"`
	SpiritualName string    `json:"spiritualName,omitempty" bson:"spiritualName,omitempty" firestore:"spiritualName,omitempty"`
	YearsOnPath   *int      `json:"yearsOnPath,omitempty" bson:"yearsOnPath,omitempty" firestore:"yearsOnPath,omitempty"`
	LessonNumber  *int      `json:"lessonNumber,omitempty" bson:"lessonNumber,omitempty" firestore:"lessonNumber,omitempty"`
	Profession    string    `json:"profession,omitempty" bson:"profession,omitempty" firestore:"profession,omitempty"`
	Background    string    `json:"background,omitempty" bson:"background,omitempty" firestore:"background,omitempty"`
	FavoriteQuote string    `json:"favoriteQuote,omitempty" bson:"favoriteQuote,omitempty" firestore:"favoriteQuote,omitempty"`
	FavoriteChant string    `json:"favoriteChant,omitempty" bson:"favoriteChant,omitempty" firestore:"favoriteChant,omitempty"`
	CenterID      string    `json:"centerId,omitempty" bson:"centerId,omitempty" firestore:"centerId,omitempty"`
	Location      *GeoPoint `json:"location,omitempty" bson:"location,omitempty" firestore:"location,omitempty"`
	Status        string    `json:"status" bson:"status" firestore:"status"`
	IsApproved    bool      `json:"isApproved" bson:"isApproved" firestore:"isApproved"`
	IsVisible     bool      `json:"isVisible" bson:"isVisible" firestore:"isVisible"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updatedAt" firestore:"updatedAt"`
}

// IsPublic reports whether the profile may appear in public listings.
func (p *Profile) IsPublic() bool {
	return p.IsApproved && p.IsVisible
}

// PublicProfile is the shape returned by public listings. It hides the
// owner and moderation fields.
type PublicProfile struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	City          string    `json:"city"`
	Country       string    `json:"country"`
	Region        string    `json:"region,omitempty"`
	SpiritualName string    `json:"spiritualName,omitempty"`
	YearsOnPath   *int      `json:"yearsOnPath,omitempty"`
	LessonNumber  *int      `json:"lessonNumber,omitempty"`
	Profession    string    `json:"profession,omitempty"`
	Background    string    `json:"background,omitempty"`
	FavoriteQuote string    `json:"favoriteQuote,omitempty"`
	FavoriteChant string    `json:"favoriteChant,omitempty"`
	CenterID      string    `json:"centerId,omitempty"`
	Location      *GeoPoint `json:"location,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Public strips private fields from p.
func (p *Profile) Public() PublicProfile {
	return PublicProfile{
		ID:            p.ID,
		Name:          p.Name,
		City:          p.City,
		Country:       p.Country,
		Region:        p.Region,
		SpiritualName: p.SpiritualName,
		YearsOnPath:   p.YearsOnPath,
		LessonNumber:  p.LessonNumber,
		Profession:    p.Profession,
		Background:    p.Background,
		FavoriteQuote: p.FavoriteQuote,
		FavoriteChant: p.FavoriteChant,
		CenterID:      p.CenterID,
		Location:      p.Location,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// NearbyProfile is a profile annotated with its distance from a query
// point. Backends fill Distance in meters; the directory service rounds it
// to whole kilometers before returning.
type NearbyProfile struct {
	Profile  `bson:",inline"`
	Distance float64 `json:"distance" bson:"distance" firestore:"distance"`
}

// SubmitProfileRequest is the public registration form.
type SubmitProfileRequest struct {
	Name          string    `json:"name"`
	FirstName     string    `json:"firstName"`
	City          string    `json:"city"`
	Country       string    `json:"country"`
	Region        string    `json:"region"`
	Continent     string    `json:"continent"`
	SpiritualName string    `json:"spiritualName"`
	YearsOnPath   *int      `json:"yearsOnPath"`
	LessonNumber  *int      `json:"lessonNumber"`
	Profession    string    `json:"profession"`
	Background    string    `json:"background"`
	FavoriteQuote string    `json:"favoriteQuote"`
	FavoriteChant string    `json:"favoriteChant"`
	CenterID      string    `json:"centerId"`
	CenterName    string    `json:"centerName"`
	ShareLocation *bool     `json:"shareLocation"`
	Location      *LngLat   `json:"location"`
	Coordinates   []float64 `json:"coordinates"`
}

// DisplayName returns the name, falling back to the legacy firstName field.
func (r *SubmitProfileRequest) DisplayName() string {
	if n := strings.TrimSpace(r.Name); n != "" {
		return n
	}
	return strings.TrimSpace(r.FirstName)
}

// SharesLocation reports whether the submitter opted into the map. Older
// clients omit the flag and send a location whenever they want one shown.
func (r *SubmitProfileRequest) SharesLocation() bool {
	if r.ShareLocation != nil {
		return *r.ShareLocation
	}
	return r.Location != nil || len(r.Coordinates) > 0
}

// Point resolves the submitted location, accepting either {lng,lat} or a
// GeoJSON style [lng, lat] pair.
func (r *SubmitProfileRequest) Point() *LngLat {
	if r.Location != nil {
		return r.Location
	}
	if len(r.Coordinates) == 2 {
		return &LngLat{Lng: r.Coordinates[0], Lat: r.Coordinates[1]}
	}
	return nil
}

func (r *SubmitProfileRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.DisplayName() == "" {
		errors["name"] = "Name is required"
	}
	if strings.TrimSpace(r.City) == "" {
		errors["city"] = "City is required"
	}
	if strings.TrimSpace(r.Country) == "" {
		errors["country"] = "Country is required"
	}
	validateRange(errors, "yearsOnPath", r.YearsOnPath, 0, 100)
	validateRange(errors, "lessonNumber", r.LessonNumber, 1, 200)

	if r.SharesLocation() {
		p := r.Point()
		if p == nil {
			errors["location"] = "Location is required when sharing location"
		} else if msg := p.validate(); msg != "" {
			errors["location"] = msg
		}
	}
	if len(r.Coordinates) != 0 && len(r.Coordinates) != 2 {
		errors["coordinates"] = "Coordinates must be [longitude, latitude]"
	}

	return errors
}

// UpdateProfileRequest is a partial update. Nil fields are left untouched.
type UpdateProfileRequest struct {
	Name          *string `json:"name"`
	City          *string `json:"city"`
	Country       *string `json:"country"`
	Region        *string `json:"region"`
	Continent     *string `json:"continent"`
	SpiritualName *string `json:"spiritualName"`
	YearsOnPath   *int    `json:"yearsOnPath"`
	LessonNumber  *int    `json:"lessonNumber"`
	Profession    *string `json:"profession"`
	Background    *string `json:"background"`
	FavoriteQuote *string `json:"favoriteQuote"`
	FavoriteChant *string `json:"favoriteChant"`
	CenterID      *string `json:"centerId"`
	IsVisible     *bool   `json:"isVisible"`
	// ShareLocation=false clears the stored point.
	ShareLocation *bool   `json:"shareLocation"`
	Location      *LngLat `json:"location"`
}

func (r *UpdateProfileRequest) Validate() map[string]string {
	errors := make(map[string]string)

	for field, v := range map[string]*string{"name": r.Name, "city": r.City, "country": r.Country} {
		if v != nil && strings.TrimSpace(*v) == "" {
			errors[field] = "Field cannot be empty"
		}
	}
	validateRange(errors, "yearsOnPath", r.YearsOnPath, 0, 100)
	validateRange(errors, "lessonNumber", r.LessonNumber, 1, 200)
	if r.Location != nil {
		if msg := r.Location.validate(); msg != "" {
			errors["location"] = msg
		}
	}

	return errors
}

// Fields converts the request into the storage field set to merge.
func (r *UpdateProfileRequest) Fields() map[string]any {
	set := make(map[string]any)
	putString := func(key string, v *string) {
		if v != nil {
			set[key] = strings.TrimSpace(*v)
		}
	}
	putString("name", r.Name)
	putString("city", r.City)
	putString("country", r.Country)
	putString("region", r.Region)
	putString("continent", r.Continent)
	putString("spiritualName", r.SpiritualName)
	putString("profession", r.Profession)
	putString("background", r.Background)
	putString("favoriteQuote", r.FavoriteQuote)
	putString("favoriteChant", r.FavoriteChant)
	putString("centerId", r.CenterID)
	if r.YearsOnPath != nil {
		set["yearsOnPath"] = *r.YearsOnPath
	}
	if r.LessonNumber != nil {
		set["lessonNumber"] = *r.LessonNumber
	}
	if r.IsVisible != nil {
		set["isVisible"] = *r.IsVisible
	}
	switch {
	case r.ShareLocation != nil && !*r.ShareLocation:
		set["location"] = nil
	case r.Location != nil:
		set["location"] = r.Location.GeoPoint()
	}
	return set
}

// ProfileFilter narrows public listings. Zero values mean "no constraint".
type ProfileFilter struct {
	Country    string
	City       string
	Profession string
	Region     string
	CenterID   string
	MinLesson  *int
	MaxLesson  *int
	MinYears   *int
	MaxYears   *int
}

// IsZero reports whether no filter is set.
func (f ProfileFilter) IsZero() bool {
	return f == ProfileFilter{}
}

// ApprovalRequest is the admin moderation body.
type ApprovalRequest struct {
	Status string `json:"status"`
}

func (r *ApprovalRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Status != StatusApproved && r.Status != StatusRejected {
		errors["status"] = "Status must be one of: approved, rejected"
	}
	return errors
}

// ProfilePage is one page of a cursor-paginated listing.
type ProfilePage struct {
	Items      []PublicProfile `json:"items"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// AdminProfilePage is the unfiltered admin listing.
type AdminProfilePage struct {
	Items      []Profile `json:"items"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

func validateRange(errors map[string]string, field string, v *int, min, max int) {
	if v == nil {
		return
	}
	if *v < min || *v > max {
		errors[field] = "Value out of range"
	}
}

// NearbyResult is a public profile with its distance in whole kilometers.
type NearbyResult struct {
	PublicProfile
	Distance float64 `json:"distance"`
}
