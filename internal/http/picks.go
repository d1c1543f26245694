package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/album-of-the-day/internal/domain"
	"github.com/Clark-Hu/album-of-the-day/internal/repository"
	"github.com/Clark-Hu/album-of-the-day/internal/validation"
)

const dateLayout = "2006-01-02"

type pickSetRequest struct {
	AlbumID string `json:"albumId" validate:"required,uuid"`
}

type pickResponse struct {
	Date      string        `json:"date"`
	Album     albumResponse `json:"album"`
	CreatedAt time.Time     `json:"createdAt"`
}

type pickListResponse struct {
	Items      []pickResponse `json:"items"`
	NextCursor *string        `json:"nextCursor,omitempty"`
}

// today is the current calendar day in the configured pick time zone.
func (s *Server) today() time.Time {
	return s.now().In(s.cfg.Location())
}

func (s *Server) handleCurrentPick(w http.ResponseWriter, r *http.Request) {
	pick, err := s.repo.Picks.Current(r.Context(), s.today())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "No album has been picked yet")
			return
		}
		s.logger.Error().Err(err).Msg("current pick")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch pick")
		return
	}
	s.respondJSON(w, http.StatusOK, toPickResponse(pick))
}

func (s *Server) handlePickArchive(w http.ResponseWriter, r *http.Request) {
	filters, err := buildArchiveFilters(r.URL.Query(), s.today())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := s.repo.Picks.Archive(r.Context(), filters)
	if err != nil {
		s.logger.Error().Err(err).Msg("pick archive")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list picks")
		return
	}

	items := make([]pickResponse, 0, len(result.Items))
	for _, pick := range result.Items {
		items = append(items, toPickResponse(pick))
	}
	s.respondJSON(w, http.StatusOK, pickListResponse{Items: items, NextCursor: result.NextCursor})
}

// buildArchiveFilters lists picks before today unless before= names another day.
func buildArchiveFilters(query url.Values, today time.Time) (repository.PickArchiveFilters, error) {
	filters := repository.PickArchiveFilters{Before: today}

	if val := strings.TrimSpace(query.Get("before")); val != "" {
		before, err := time.Parse(dateLayout, val)
		if err != nil {
			return filters, fmt.Errorf("before must follow YYYY-MM-DD format")
		}
		filters.Before = before
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil {
			return filters, fmt.Errorf("invalid limit value")
		}
		filters.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodePickCursor(val)
		if err != nil {
			return filters, fmt.Errorf("invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, nil
}

// handleSetPick records the album for a day. Repeating the call for a day
// that already has a pick leaves it unchanged and returns it with 200.
func (s *Server) handleSetPick(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(dateLayout, chi.URLParam(r, "date"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "date must follow YYYY-MM-DD format")
		return
	}

	var req pickSetRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	req.AlbumID = strings.TrimSpace(req.AlbumID)
	if err := validation.Struct(req); err != nil {
		var verr *validation.RequestValidationError
		if errors.As(err, &verr) {
			s.respondValidation(w, verr)
			return
		}
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	pick, created, err := s.repo.Picks.Set(r.Context(), date, req.AlbumID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
			return
		}
		s.logger.Error().Err(err).Msg("set pick")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to set pick")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.logger.Info().Str("date", date.Format(dateLayout)).Str("album_id", pick.AlbumID).Msg("album of the day set")
	}
	s.respondJSON(w, status, toPickResponse(pick))
}

func toPickResponse(pick domain.Pick) pickResponse {
	return pickResponse{
		Date:      pick.EffectiveDate.Format(dateLayout),
		Album:     toAlbumResponse(pick.Album),
		CreatedAt: pick.CreatedAt,
	}
}
