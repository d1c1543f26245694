package httpserver

import (
	"net/url"
	"testing"
	"time"
)

func FuzzBuildAlbumFilters(f *testing.F) {
	seeds := []string{
		"q=Radiohead&genre=Rock&year=1997",
		"year=abc",
		"limit=200",
		"cursor=e30=",
		"",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		values, err := url.ParseQuery(raw)
		if err != nil {
			return
		}
		_, _ = buildAlbumFilters(values)
	})
}

func FuzzBuildArchiveFilters(f *testing.F) {
	for _, seed := range []string{"before=2026-01-01", "limit=-1", "cursor=abc", ""} {
		f.Add(seed)
	}
	today := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	f.Fuzz(func(t *testing.T, raw string) {
		values, err := url.ParseQuery(raw)
		if err != nil {
			return
		}
		_, _ = buildArchiveFilters(values, today)
	})
}
