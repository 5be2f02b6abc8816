package models

import (
	"strings"
	"time"
)

// MomentLifetime is how long an ephemeral moment stays in the feed.
const MomentLifetime = 24 * time.Hour

type Moment struct {
	ID            string          `json:"id" bson:"_id" firestore:"id"`
	Caption       string          `json:"caption" bson:"caption" firestore:"caption"`
	Quote         string          `json:"quote,omitempty" bson:"quote,omitempty" firestore:"quote,omitempty"`
	ImageURL      string          `json:"imageUrl,omitempty" bson:"imageUrl,omitempty" firestore:"imageUrl,omitempty"`
	Location      *GeoPoint       `json:"location,omitempty" bson:"location,omitempty" firestore:"location,omitempty"`
	CenterID      string          `json:"centerId,omitempty" bson:"centerId,omitempty" firestore:"centerId,omitempty"`
	Likes         int64           `json:"likes" bson:"likes" firestore:"likes"`
	Comments      []MomentComment `json:"comments" bson:"comments" firestore:"comments"`
	CreatedBy     string          `json:"createdBy" bson:"createdBy" firestore:"createdBy"`
	CreatedByName string          `json:"createdByName" bson:"createdByName" firestore:"createdByName"`
	CreatedAt     time.Time       `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
	// ExpiresAt is stored as an explicit null for permanent moments so
	// "unset" is queryable on every backend.
	ExpiresAt *time.Time `json:"expiresAt" bson:"expiresAt" firestore:"expiresAt"`
}

type MomentComment struct {
	ID         string    `json:"id" bson:"id" firestore:"id"`
	AuthorID   string    `json:"authorId" bson:"authorId" firestore:"authorId"`
	AuthorName string    `json:"authorName" bson:"authorName" firestore:"authorName"`
	Text       string    `json:"text" bson:"text" firestore:"text"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
}

type CreateMomentRequest struct {
	Caption   string  `json:"caption"`
	Quote     string  `json:"quote"`
	ImageURL  string  `json:"imageUrl"`
	Location  *LngLat `json:"location"`
	CenterID  string  `json:"centerId"`
	Ephemeral bool    `json:"ephemeral"`
}

func (r *CreateMomentRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if strings.TrimSpace(r.Caption) == "" && strings.TrimSpace(r.Quote) == "" && r.ImageURL == "" {
		errors["caption"] = "Caption, quote or image is required"
	}
	if len(r.Caption) > 500 {
		errors["caption"] = "Caption is too long"
	}
	if r.Location != nil {
		if msg := r.Location.validate(); msg != "" {
			errors["location"] = msg
		}
	}
	return errors
}

type CommentRequest struct {
	Text string `json:"text"`
}

func (r *CommentRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if strings.TrimSpace(r.Text) == "" {
		errors["text"] = "Text is required"
	}
	return errors
}

type MomentPage struct {
	Items      []Moment `json:"items"`
	NextCursor string   `json:"nextCursor,omitempty"`
}
