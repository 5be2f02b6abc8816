package models

import "time"

// Statistics aggregates visible profiles.
type Statistics struct {
	Total        int64            `json:"total" bson:"total" firestore:"total"`
	ByCountry    map[string]int64 `json:"byCountry" bson:"byCountry" firestore:"byCountry"`
	ByRegion     map[string]int64 `json:"byRegion" bson:"byRegion" firestore:"byRegion"`
	ByContinent  map[string]int64 `json:"byContinent" bson:"byContinent" firestore:"byContinent"`
	ByProfession map[string]int64 `json:"byProfession" bson:"byProfession" firestore:"byProfession"`
	LessonRanges map[string]int64 `json:"lessonRanges" bson:"lessonRanges" firestore:"lessonRanges"`
}

// AnalyticsSnapshot is a dated copy of Statistics.
type AnalyticsSnapshot struct {
	ID           string           `json:"id" bson:"_id" firestore:"id"`
	Date         string           `json:"date" bson:"date" firestore:"date"`
	Total        int64            `json:"total" bson:"total" firestore:"total"`
	ByCountry    map[string]int64 `json:"byCountry" bson:"byCountry" firestore:"byCountry"`
	ByRegion     map[string]int64 `json:"byRegion" bson:"byRegion" firestore:"byRegion"`
	ByContinent  map[string]int64 `json:"byContinent" bson:"byContinent" firestore:"byContinent"`
	LessonRanges map[string]int64 `json:"lessonRanges" bson:"lessonRanges" firestore:"lessonRanges"`
	CreatedAt    time.Time        `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
}

// AdminLoginRequest is the admin login form.
type AdminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *AdminLoginRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Email == "" {
		errors["email"] = "Email is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}
	return errors
}

type AdminLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
