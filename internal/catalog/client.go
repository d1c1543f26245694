// Package catalog looks up album metadata in the external music catalog API.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Clark-Hu/album-of-the-day/internal/logging"
	"github.com/Clark-Hu/album-of-the-day/internal/metrics"
)

var (
	// ErrNotFound is returned when the catalog has no album for the id.
	ErrNotFound = errors.New("catalog: not found")
	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("catalog: unavailable")
)

const maxResponseBytes = 1 << 20

// Result carries the catalog fields used to create an album.
type Result struct {
	CatalogID   string
	Title       string
	Artist      string
	ReleaseYear *int
	Genre       *string
	ImageURL    *string
}

// Client defines the contract for querying the music catalog.
type Client interface {
	Lookup(ctx context.Context, catalogID string) (*Result, error)
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Options configures an HTTPClient.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// BreakerFailures is the number of consecutive failures that opens the breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open before probing again.
	BreakerCooldown time.Duration
	Logger          zerolog.Logger
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL *url.URL
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  zerolog.Logger
}

// NewHTTPClient constructs a catalog client guarded by a circuit breaker.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	parsed, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("catalog url %q must be absolute", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}

	logger := logging.Component(opts.Logger, "catalog")
	c := &HTTPClient{
		baseURL: parsed,
		apiKey:  opts.APIKey,
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   opts.Timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   opts.Timeout,
				ResponseHeaderTimeout: opts.Timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CatalogBreakerState.Set(float64(to))
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("catalog breaker state changed")
		},
	})
	return c, nil
}

// Lookup fetches one album by its catalog identifier.
func (c *HTTPClient) Lookup(ctx context.Context, catalogID string) (*Result, error) {
	if strings.TrimSpace(catalogID) == "" {
		return nil, ErrNotFound
	}
	body, err := c.get(ctx, "lookup", &url.URL{Path: "/albums/" + url.PathEscape(catalogID)})
	if err != nil {
		return nil, err
	}
	var payload albumPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode catalog album: %w", err)
	}
	res := convertToResult(payload)
	if res == nil {
		return nil, fmt.Errorf("catalog album %q has no title or artist", catalogID)
	}
	return res, nil
}

// Search returns up to limit albums matching query.
func (c *HTTPClient) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	rel := &url.URL{Path: "/search"}
	q := rel.Query()
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	rel.RawQuery = q.Encode()

	body, err := c.get(ctx, "search", rel)
	if errors.Is(err, ErrNotFound) {
		return []Result{}, nil
	}
	if err != nil {
		return nil, err
	}
	var payload searchPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode catalog search: %w", err)
	}
	results := make([]Result, 0, len(payload.Albums))
	for _, item := range payload.Albums {
		if res := convertToResult(item); res != nil {
			results = append(results, *res)
		}
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

func (c *HTTPClient) get(ctx context.Context, op string, rel *url.URL) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, rel)
	})
	switch {
	case err == nil:
		metrics.RecordCatalog(op, "ok")
	case errors.Is(err, ErrNotFound):
		metrics.RecordCatalog(op, "not_found")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordCatalog(op, "rejected")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		metrics.RecordCatalog(op, "error")
	}
	return body, err
}

func (c *HTTPClient) do(ctx context.Context, rel *url.URL) ([]byte, error) {
	endpoint := c.baseURL.JoinPath(rel.Path)
	endpoint.RawQuery = rel.RawQuery

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read catalog response: %w", err)
		}
		return body, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", rel.Path).Msg("unexpected catalog status")
		return nil, fmt.Errorf("catalog: upstream returned %d", resp.StatusCode)
	}
}

type albumPayload struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Artist      string         `json:"artist"`
	ReleaseDate *string        `json:"releaseDate"`
	Genres      []string       `json:"genres"`
	Images      []imagePayload `json:"images"`
}

type imagePayload struct {
	URL   string `json:"url"`
	Width int    `json:"width"`
}

type searchPayload struct {
	Albums []albumPayload `json:"albums"`
}

// convertToResult keeps the fields albums need. It returns nil when the
// payload lacks an id, title or artist.
func convertToResult(payload albumPayload) *Result {
	title := strings.TrimSpace(payload.Title)
	artist := strings.TrimSpace(payload.Artist)
	if payload.ID == "" || title == "" || artist == "" {
		return nil
	}
	res := &Result{CatalogID: payload.ID, Title: title, Artist: artist}

	if payload.ReleaseDate != nil && len(*payload.ReleaseDate) >= 4 {
		if year, err := strconv.Atoi((*payload.ReleaseDate)[:4]); err == nil && year > 0 {
			res.ReleaseYear = &year
		}
	}
	for _, g := range payload.Genres {
		if g = strings.TrimSpace(g); g != "" {
			res.Genre = &g
			break
		}
	}
	// widest image wins
	best := -1
	for i, img := range payload.Images {
		if img.URL == "" {
			continue
		}
		if best < 0 || img.Width > payload.Images[best].Width {
			best = i
		}
	}
	if best >= 0 {
		u := payload.Images[best].URL
		res.ImageURL = &u
	}
	return res
}
