// Command catalog-mock serves album fixtures in the music catalog API shape
// for local development and the catalog client smoke test.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/album-of-the-day/internal/logging"
)

type imageEntry struct {
	URL   string `json:"url"`
	Width int    `json:"width"`
}

type albumEntry struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Artist      string       `json:"artist"`
	ReleaseDate *string      `json:"releaseDate,omitempty"`
	Genres      []string     `json:"genres,omitempty"`
	Images      []imageEntry `json:"images,omitempty"`
}

func main() {
	var (
		port   = flag.String("port", "9099", "port to listen on")
		data   = flag.String("data", "mock-catalog.json", "path to mock data file")
		apiKey = flag.String("api-key", "", "require this X-API-Key when set")
		level  = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logger := logging.New(logging.Config{Level: *level, Format: "console"})

	file, err := os.ReadFile(*data)
	if err != nil {
		logger.Fatal().Err(err).Msg("read mock data")
	}
	var entries []albumEntry
	if err := json.Unmarshal(file, &entries); err != nil {
		logger.Fatal().Err(err).Msg("parse mock data")
	}
	byID := make(map[string]albumEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	logger.Info().Int("albums", len(byID)).Msg("loaded mock entries")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requireKey(*apiKey))
	r.Get("/albums/{id}", func(w http.ResponseWriter, r *http.Request) {
		entry, ok := byID[chi.URLParam(r, "id")]
		if !ok {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		writeJSON(w, logger, entry)
	})
	r.Get("/search", func(w http.ResponseWriter, r *http.Request) {
		q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = 10
		}
		matches := make([]albumEntry, 0)
		for _, e := range entries {
			if strings.Contains(strings.ToLower(e.Title), q) || strings.Contains(strings.ToLower(e.Artist), q) {
				matches = append(matches, e)
			}
		}
		sort.Slice(matches, func(i, j int) bool { return matches[i].Title < matches[j].Title })
		if len(matches) > limit {
			matches = matches[:limit]
		}
		writeJSON(w, logger, map[string][]albumEntry{"albums": matches})
	})

	addr := ":" + *port
	logger.Info().Str("addr", addr).Msg("mock catalog listening")
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func requireKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key != "" && r.Header.Get("X-API-Key") != key {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error().Err(err).Msg("encode response")
	}
}
