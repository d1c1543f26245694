package domain

import "time"

// Album is a catalog release that can be picked as the album of the day.
type Album struct {
	ID            string
	Title         string
	Artist        string
	ReleaseYear   *int
	Genre         *string
	ImageURL      *string
	CatalogID     *string
	AverageRating Average
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Pick records which album is featured on a given day.
type Pick struct {
	EffectiveDate time.Time
	AlbumID       string
	Album         Album
	CreatedAt     time.Time
}
