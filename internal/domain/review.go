package domain

import "time"

// Review is one member's rating and optional commentary for an album.
type Review struct {
	ID              string
	AlbumID         string
	UserID          string
	Rating          Rating
	FavouriteTracks string
	Text            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OwnedBy reports whether userID authored the review.
func (r Review) OwnedBy(userID string) bool {
	return userID != "" && r.UserID == userID
}
