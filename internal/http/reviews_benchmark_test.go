package httpserver

import (
	"fmt"
	"net/http"
	"testing"
)

func BenchmarkHandleSubmitReview(b *testing.B) {
	srv := buildTestServer(b)
	album := createAlbum(b, srv, "Benchmark Album")
	path := "/albums/" + album.ID + "/reviews"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := srv.serve(b, testRequest{
			method: http.MethodPost,
			path:   path,
			body:   `{"rating":7.5}`,
			user:   fmt.Sprintf("bench-%d", i),
		})
		if rec.Code != http.StatusCreated {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}
