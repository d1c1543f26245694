package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/album-of-the-day/internal/catalog"
	"github.com/Clark-Hu/album-of-the-day/internal/domain"
	"github.com/Clark-Hu/album-of-the-day/internal/repository"
	"github.com/Clark-Hu/album-of-the-day/internal/validation"
)

type albumCreateRequest struct {
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	ReleaseYear *int    `json:"releaseYear"`
	Genre       *string `json:"genre"`
	ImageURL    *string `json:"imageUrl"`
	CatalogID   *string `json:"catalogId"`
}

// albumInput is the create request after catalog enrichment.
type albumInput struct {
	Title       string  `json:"title" validate:"required,max=300"`
	Artist      string  `json:"artist" validate:"required,max=300"`
	ReleaseYear *int    `json:"releaseYear" validate:"omitempty,gte=1900,lte=2100"`
	Genre       *string `json:"genre" validate:"omitempty,max=100"`
	ImageURL    *string `json:"imageUrl" validate:"omitempty,url,max=2048"`
	CatalogID   *string `json:"catalogId" validate:"omitempty,max=200"`
}

type albumResponse struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Artist        string   `json:"artist"`
	ReleaseYear   *int     `json:"releaseYear,omitempty"`
	Genre         *string  `json:"genre,omitempty"`
	ImageURL      *string  `json:"imageUrl,omitempty"`
	CatalogID     *string  `json:"catalogId,omitempty"`
	AverageRating *float64 `json:"averageRating"`
}

type albumListResponse struct {
	Items      []albumResponse `json:"items"`
	NextCursor *string         `json:"nextCursor,omitempty"`
}

type catalogResultResponse struct {
	CatalogID   string  `json:"catalogId"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	ReleaseYear *int    `json:"releaseYear,omitempty"`
	Genre       *string `json:"genre,omitempty"`
	ImageURL    *string `json:"imageUrl,omitempty"`
}

func (s *Server) handleListAlbums(w http.ResponseWriter, r *http.Request) {
	filters, err := buildAlbumFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := s.repo.Albums.List(r.Context(), filters)
	if err != nil {
		s.logger.Error().Err(err).Msg("list albums")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list albums")
		return
	}

	items := make([]albumResponse, 0, len(result.Items))
	for _, album := range result.Items {
		items = append(items, toAlbumResponse(album))
	}
	s.respondJSON(w, http.StatusOK, albumListResponse{Items: items, NextCursor: result.NextCursor})
}

func buildAlbumFilters(query url.Values) (repository.AlbumListFilters, error) {
	var filters repository.AlbumListFilters

	if q := strings.TrimSpace(query.Get("q")); q != "" {
		filters.Query = &q
	}
	if val := strings.TrimSpace(query.Get("year")); val != "" {
		year, err := strconv.Atoi(val)
		if err != nil {
			return filters, fmt.Errorf("invalid year value")
		}
		filters.Year = &year
	}
	if val := strings.TrimSpace(query.Get("genre")); val != "" {
		filters.Genre = &val
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil {
			return filters, fmt.Errorf("invalid limit value")
		}
		filters.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodeAlbumCursor(val)
		if err != nil {
			return filters, fmt.Errorf("invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, nil
}

func (s *Server) handleGetAlbum(w http.ResponseWriter, r *http.Request) {
	album, err := s.repo.Albums.GetByID(r.Context(), chi.URLParam(r, "albumID"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
			return
		}
		s.logger.Error().Err(err).Msg("get album")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch album")
		return
	}
	s.respondJSON(w, http.StatusOK, toAlbumResponse(album))
}

func (s *Server) handleCreateAlbum(w http.ResponseWriter, r *http.Request) {
	var req albumCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	input := albumInput{
		Title:       strings.TrimSpace(req.Title),
		Artist:      strings.TrimSpace(req.Artist),
		ReleaseYear: req.ReleaseYear,
		Genre:       normalizeStringPtr(req.Genre),
		ImageURL:    normalizeStringPtr(req.ImageURL),
		CatalogID:   normalizeStringPtr(req.CatalogID),
	}
	if input.CatalogID != nil {
		result, err := s.lookupCatalog(r.Context(), *input.CatalogID)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			s.respondValidation(w, validation.NewFieldError("catalogId", "exists", "is not in the catalog"))
			return
		case err != nil:
			s.logger.Warn().Err(err).Str("catalog_id", *input.CatalogID).Msg("catalog lookup failed, creating album from request fields")
		default:
			input = mergeCatalog(input, result)
		}
	}
	if err := validation.Struct(input); err != nil {
		var verr *validation.RequestValidationError
		if errors.As(err, &verr) {
			s.respondValidation(w, verr)
			return
		}
		s.logger.Error().Err(err).Msg("validate album")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create album")
		return
	}

	album, err := s.repo.Albums.Create(r.Context(), repository.AlbumCreateParams{
		Title:       input.Title,
		Artist:      input.Artist,
		ReleaseYear: input.ReleaseYear,
		Genre:       input.Genre,
		ImageURL:    input.ImageURL,
		CatalogID:   input.CatalogID,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.respondError(w, http.StatusConflict, "CONFLICT", "Album already imported from the catalog")
			return
		}
		s.logger.Error().Err(err).Msg("create album")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create album")
		return
	}

	w.Header().Set("Location", "/albums/"+album.ID)
	s.respondJSON(w, http.StatusCreated, toAlbumResponse(album))
}

func (s *Server) lookupCatalog(ctx context.Context, catalogID string) (*catalog.Result, error) {
	if s.catalog == nil {
		return nil, catalog.ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.CatalogTimeoutSecs)*time.Second)
	defer cancel()
	return s.catalog.Lookup(ctx, catalogID)
}

// mergeCatalog fills fields the curator left empty from the catalog record.
func mergeCatalog(input albumInput, result *catalog.Result) albumInput {
	if input.Title == "" {
		input.Title = result.Title
	}
	if input.Artist == "" {
		input.Artist = result.Artist
	}
	input.ReleaseYear = firstNonNil(input.ReleaseYear, result.ReleaseYear)
	input.Genre = firstNonNil(input.Genre, result.Genre)
	input.ImageURL = firstNonNil(input.ImageURL, result.ImageURL)
	return input
}

func (s *Server) handleCatalogSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "q is required")
		return
	}
	limit := 10
	if val := strings.TrimSpace(r.URL.Query().Get("limit")); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil || parsed <= 0 {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid limit value")
			return
		}
		limit = parsed
	}
	if s.catalog == nil {
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Catalog is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(s.cfg.CatalogTimeoutSecs)*time.Second)
	defer cancel()
	results, err := s.catalog.Search(ctx, query, limit)
	if err != nil {
		s.logger.Warn().Err(err).Msg("catalog search failed")
		w.Header().Set("Retry-After", "5")
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Catalog search unavailable")
		return
	}

	items := make([]catalogResultResponse, 0, len(results))
	for _, res := range results {
		items = append(items, catalogResultResponse{
			CatalogID:   res.CatalogID,
			Title:       res.Title,
			Artist:      res.Artist,
			ReleaseYear: res.ReleaseYear,
			Genre:       res.Genre,
			ImageURL:    res.ImageURL,
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func toAlbumResponse(album domain.Album) albumResponse {
	return albumResponse{
		ID:            album.ID,
		Title:         album.Title,
		Artist:        album.Artist,
		ReleaseYear:   album.ReleaseYear,
		Genre:         album.Genre,
		ImageURL:      album.ImageURL,
		CatalogID:     album.CatalogID,
		AverageRating: album.AverageRating.Display(),
	}
}
