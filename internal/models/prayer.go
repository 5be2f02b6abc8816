package models

import (
	"strings"
	"time"
)

// Prayer request statuses.
const (
	PrayerActive    = "active"
	PrayerFulfilled = "fulfilled"
	PrayerArchived  = "archived"
)

type PrayerRequest struct {
	ID            string           `json:"id" bson:"_id" firestore:"id"`
	Title         string           `json:"title" bson:"title" firestore:"title"`
	Description   string           `json:"description" bson:"description" firestore:"description"`
	IsAnonymous   bool             `json:"isAnonymous" bson:"isAnonymous" firestore:"isAnonymous"`
	RequesterID   string           `json:"requesterId,omitempty" bson:"requesterId,omitempty" firestore:"requesterId,omitempty"`
	RequesterName string           `json:"requesterName,omitempty" bson:"requesterName,omitempty" firestore:"requesterName,omitempty"`
	Status        string           `json:"status" bson:"status" firestore:"status"`
	Responses     []PrayerResponse `json:"responses" bson:"responses" firestore:"responses"`
	CreatedAt     time.Time        `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt" bson:"updatedAt" firestore:"updatedAt"`
}

type PrayerResponse struct {
	ID            string    `json:"id" bson:"id" firestore:"id"`
	ResponderID   string    `json:"responderId" bson:"responderId" firestore:"responderId"`
	ResponderName string    `json:"responderName" bson:"responderName" firestore:"responderName"`
	Message       string    `json:"message" bson:"message" firestore:"message"`
	IsPrivate     bool      `json:"isPrivate" bson:"isPrivate" firestore:"isPrivate"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
}

type CreatePrayerRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	IsAnonymous bool   `json:"isAnonymous"`
}

func (r *CreatePrayerRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if strings.TrimSpace(r.Title) == "" {
		errors["title"] = "Title is required"
	}
	if strings.TrimSpace(r.Description) == "" {
		errors["description"] = "Description is required"
	}
	return errors
}

type PrayerResponseRequest struct {
	Message   string `json:"message"`
	IsPrivate bool   `json:"isPrivate"`
}

func (r *PrayerResponseRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if strings.TrimSpace(r.Message) == "" {
		errors["message"] = "Message is required"
	}
	return errors
}

type PrayerStatusRequest struct {
	Status string `json:"status"`
}

func (r *PrayerStatusRequest) Validate() map[string]string {
	errors := make(map[string]string)
	switch r.Status {
	case PrayerActive, PrayerFulfilled, PrayerArchived:
	default:
		errors["status"] = "Status must be one of: active, fulfilled, archived"
	}
	return errors
}
