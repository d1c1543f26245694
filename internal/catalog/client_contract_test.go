package catalog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// TestHTTPClientSmoke checks that the client can parse at least one record
// from a running catalog service, e.g. cmd/catalog-mock.
func TestHTTPClientSmoke(t *testing.T) {
	baseURL := os.Getenv("CATALOG_URL")
	if baseURL == "" {
		t.Skip("CATALOG_URL not provided")
	}
	client, err := NewHTTPClient(Options{
		BaseURL: baseURL,
		APIKey:  os.Getenv("CATALOG_API_KEY"),
		Timeout: 3 * time.Second,
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("create http client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := client.Search(ctx, "a", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one album from %s", baseURL)
	}
	res, err := client.Lookup(ctx, results[0].CatalogID)
	if err != nil {
		t.Fatalf("lookup %s: %v", results[0].CatalogID, err)
	}
	if res.Title == "" || res.Artist == "" {
		t.Fatalf("unexpected album payload: %+v", res)
	}
}
