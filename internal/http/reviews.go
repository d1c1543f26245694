package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/album-of-the-day/internal/domain"
	"github.com/Clark-Hu/album-of-the-day/internal/ledger"
	"github.com/Clark-Hu/album-of-the-day/internal/repository"
)

type reviewSubmitRequest struct {
	Rating          *float64 `json:"rating"`
	FavouriteTracks []string `json:"favouriteTracks"`
	ReviewText      string   `json:"reviewText"`
}

type reviewEditRequest struct {
	Rating         *float64 `json:"rating"`
	FavouriteTrack string   `json:"favouriteTrack"`
	ReviewText     string   `json:"reviewText"`
}

type reviewResponse struct {
	ID              string    `json:"id"`
	AlbumID         string    `json:"albumId"`
	UserID          string    `json:"userId"`
	Rating          float64   `json:"rating"`
	FavouriteTracks string    `json:"favouriteTracks"`
	ReviewText      string    `json:"reviewText"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type reviewMutationResponse struct {
	Review        reviewResponse `json:"review"`
	AverageRating *float64       `json:"averageRating"`
}

type reviewListResponse struct {
	Items         []reviewResponse `json:"items"`
	Count         int              `json:"count"`
	AverageRating *float64         `json:"averageRating"`
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	album, err := s.repo.Albums.GetByID(r.Context(), chi.URLParam(r, "albumID"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
			return
		}
		s.logger.Error().Err(err).Msg("fetch album for reviews")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list reviews")
		return
	}

	reviews, err := s.repo.Reviews.ListByAlbum(r.Context(), album.ID)
	if err != nil {
		s.logger.Error().Err(err).Msg("list reviews")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list reviews")
		return
	}

	items := make([]reviewResponse, 0, len(reviews))
	for _, review := range reviews {
		items = append(items, toReviewResponse(review))
	}
	s.respondJSON(w, http.StatusOK, reviewListResponse{
		Items:         items,
		Count:         len(items),
		AverageRating: album.AverageRating.Display(),
	})
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := memberID(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	var req reviewSubmitRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	res, err := s.ledger.SubmitReview(r.Context(), ledger.SubmitParams{
		AlbumID:         chi.URLParam(r, "albumID"),
		UserID:          userID,
		Rating:          req.Rating,
		FavouriteTracks: req.FavouriteTracks,
		Text:            req.ReviewText,
	})
	if err != nil {
		s.respondLedgerError(w, err, "submit review")
		return
	}

	w.Header().Set("Location", "/reviews/"+res.Review.ID)
	s.respondJSON(w, http.StatusCreated, toMutationResponse(res))
}

func (s *Server) handleEditReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := memberID(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	var req reviewEditRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	res, err := s.ledger.EditReview(r.Context(), ledger.EditParams{
		ReviewID:       chi.URLParam(r, "reviewID"),
		UserID:         userID,
		Rating:         req.Rating,
		FavouriteTrack: req.FavouriteTrack,
		Text:           req.ReviewText,
	})
	if err != nil {
		s.respondLedgerError(w, err, "edit review")
		return
	}
	s.respondJSON(w, http.StatusOK, toMutationResponse(res))
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := memberID(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	if _, err := s.ledger.DeleteReview(r.Context(), chi.URLParam(r, "reviewID"), userID); err != nil {
		s.respondLedgerError(w, err, "delete review")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toReviewResponse(review domain.Review) reviewResponse {
	return reviewResponse{
		ID:              review.ID,
		AlbumID:         review.AlbumID,
		UserID:          review.UserID,
		Rating:          review.Rating.Display(),
		FavouriteTracks: review.FavouriteTracks,
		ReviewText:      review.Text,
		CreatedAt:       review.CreatedAt,
		UpdatedAt:       review.UpdatedAt,
	}
}

func toMutationResponse(res ledger.Result) reviewMutationResponse {
	return reviewMutationResponse{
		Review:        toReviewResponse(res.Review),
		AverageRating: res.AlbumAverage.Display(),
	}
}
