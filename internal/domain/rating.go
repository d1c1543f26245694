package domain

import (
	"errors"
	"math"
)

// Rating is a review score in half-point units, i.e. the displayed score
// multiplied by two. A displayed 7.5 is stored as 15.
type Rating int

const (
	MinRating Rating = 2
	MaxRating Rating = 20
)

// ErrInvalidRating is returned when a displayed score is not a multiple of 0.5 in [1, 10].
var ErrInvalidRating = errors.New("rating must be a multiple of 0.5 between 1 and 10")

// ParseRating converts a displayed score into its stored form.
func ParseRating(display float64) (Rating, error) {
	if math.IsNaN(display) || math.IsInf(display, 0) {
		return 0, ErrInvalidRating
	}
	doubled := display * 2
	if doubled != math.Trunc(doubled) {
		return 0, ErrInvalidRating
	}
	r := Rating(doubled)
	if !r.Valid() {
		return 0, ErrInvalidRating
	}
	return r, nil
}

// Valid reports whether r lies inside the stored range.
func (r Rating) Valid() bool {
	return r >= MinRating && r <= MaxRating
}

// Display returns the score on the 1-10 scale.
func (r Rating) Display() float64 {
	return float64(r) / 2
}

// AggregateState is the count and stored-unit sum of an album's reviews.
type AggregateState struct {
	Count     int64
	SumStored int64
}

// With returns the state after adding one more review.
func (s AggregateState) With(r Rating) AggregateState {
	return AggregateState{Count: s.Count + 1, SumStored: s.SumStored + int64(r)}
}

// Average is an album's aggregate rating in half-point units. The zero value
// is the aggregate of an empty review set and has no value.
type Average struct {
	Stored int
	Valid  bool
}

// AverageOf floors the mean of the state to whole half-points.
func AverageOf(s AggregateState) Average {
	if s.Count <= 0 {
		return Average{}
	}
	return Average{Stored: int(s.SumStored / s.Count), Valid: true}
}

// FoldIn returns the aggregate after a new rating joins the reviews described
// by prior, the state read before the new review is written.
func FoldIn(prior AggregateState, r Rating) Average {
	return AverageOf(prior.With(r))
}

// AverageFromDisplay rebuilds an Average from its persisted display value.
func AverageFromDisplay(v *float64) Average {
	if v == nil {
		return Average{}
	}
	return Average{Stored: int(math.Round(*v * 2)), Valid: true}
}

// Display returns the aggregate on the 1-10 scale, or nil when there are no reviews.
func (a Average) Display() *float64 {
	if !a.Valid {
		return nil
	}
	v := float64(a.Stored) / 2
	return &v
}
