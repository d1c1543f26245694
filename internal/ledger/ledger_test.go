package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/album-of-the-day/internal/domain"
	"github.com/Clark-Hu/album-of-the-day/internal/pgtest"
	"github.com/Clark-Hu/album-of-the-day/internal/repository"
	"github.com/Clark-Hu/album-of-the-day/internal/store"
	"github.com/Clark-Hu/album-of-the-day/internal/validation"
)

type testEnv struct {
	ctx    context.Context
	repo   *repository.Repository
	ledger *Ledger
}

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()
	pool := pgtest.New(t, "ledger_test")
	st := store.NewWithPool(pool, zerolog.Nop())
	repo := repository.New(st)
	return &testEnv{
		ctx:    context.Background(),
		repo:   repo,
		ledger: New(st, repo, zerolog.Nop()),
	}
}

func (env *testEnv) album(t testing.TB, title string) domain.Album {
	t.Helper()
	album, err := env.repo.Albums.Create(env.ctx, repository.AlbumCreateParams{Title: title, Artist: "Artist"})
	if err != nil {
		t.Fatalf("create album: %v", err)
	}
	return album
}

func (env *testEnv) submit(t testing.TB, albumID, userID string, rating float64) Result {
	t.Helper()
	res, err := env.ledger.SubmitReview(env.ctx, SubmitParams{AlbumID: albumID, UserID: userID, Rating: &rating})
	if err != nil {
		t.Fatalf("submit %s %.1f: %v", userID, rating, err)
	}
	return res
}

func (env *testEnv) storedAverage(t testing.TB, albumID string) *float64 {
	t.Helper()
	album, err := env.repo.Albums.GetByID(env.ctx, albumID)
	if err != nil {
		t.Fatalf("get album: %v", err)
	}
	return album.AverageRating.Display()
}

func assertAverage(t testing.TB, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Fatalf("average is NULL, want %.1f", want)
	}
	if *got != want {
		t.Fatalf("average = %.1f, want %.1f", *got, want)
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestSubmitReview_FirstReviewSetsAverage(t *testing.T) {
	env := newTestEnv(t)
	album := env.album(t, "First")

	res := env.submit(t, album.ID, "alice", 7.5)
	if res.Review.Rating != 15 {
		t.Fatalf("stored rating = %d, want 15", res.Review.Rating)
	}
	assertAverage(t, res.AlbumAverage.Display(), 7.5)
	assertAverage(t, env.storedAverage(t, album.ID), 7.5)
}

func TestSubmitReview_TwoUsersScenario(t *testing.T) {
	env := newTestEnv(t)
	album := env.album(t, "Scenario")

	env.submit(t, album.ID, "alice", 10)
	assertAverage(t, env.storedAverage(t, album.ID), 10)

	env.submit(t, album.ID, "bob", 6)
	assertAverage(t, env.storedAverage(t, album.ID), 8)
}

func TestSubmitReview_FoldsIntoExistingAggregate(t *testing.T) {
	env := newTestEnv(t)

	t.Run("two eights then a ten", func(t *testing.T) {
		album := env.album(t, "Eights")
		env.submit(t, album.ID, "u1", 8)
		env.submit(t, album.ID, "u2", 8)
		env.submit(t, album.ID, "u3", 10)
		// floor((16+16+20)/3) = 17 half-points
		assertAverage(t, env.storedAverage(t, album.ID), 8.5)
	})

	t.Run("ten then six", func(t *testing.T) {
		album := env.album(t, "TenSix")
		env.submit(t, album.ID, "u1", 10)
		res := env.submit(t, album.ID, "u2", 6)
		assertAverage(t, res.AlbumAverage.Display(), 8)
	})
}

func TestSubmitReview_FavouriteTracksNormalized(t *testing.T) {
	env := newTestEnv(t)
	album := env.album(t, "Tracks")

	res, err := env.ledger.SubmitReview(env.ctx, SubmitParams{
		AlbumID:         album.ID,
		UserID:          "alice",
		Rating:          floatPtr(9),
		FavouriteTracks: []string{"Song A (feat. Someone)", "  ", "Song B [feat. X & Y]"},
		Text:            "great",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Review.FavouriteTracks != "Song A, Song B" {
		t.Fatalf("favourite tracks = %q", res.Review.FavouriteTracks)
	}
	if res.Review.Text != "great" {
		t.Fatalf("text = %q", res.Review.Text)
	}
}

func TestSubmitReview_DuplicateConflicts(t *testing.T) {
	env := newTestEnv(t)
	album := env.album(t, "Dup")

	env.submit(t, album.ID, "alice", 8)
	_, err := env.ledger.SubmitReview(env.ctx, SubmitParams{AlbumID: album.ID, UserID: "alice", Rating: floatPtr(2)})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	assertAverage(t, env.storedAverage(t, album.ID), 8)

	reviews, err := env.repo.Reviews.ListByAlbum(env.ctx, album.ID)
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(reviews) != 1 {
		t.Fatalf("expected a single review, got %d", len(reviews))
	}
}

func TestSubmitReview_Validation(t *testing.T) {
	env := newTestEnv(t)
	album := env.album(t, "Invalid")

	cases := []struct {
		name   string
		params SubmitParams
		field  string
	}{
		{"missing rating", SubmitParams{AlbumID: album.ID, UserID: "u"}, "rating"},
		{"below range", SubmitParams{AlbumID: album.ID, UserID: "u", Rating: floatPtr(0.5)}, "rating"},
		{"above range", SubmitParams{AlbumID: album.ID, UserID: "u", Rating: floatPtr(10.5)}, "rating"},
		{"not half step", SubmitParams{AlbumID: album.ID, UserID: "u", Rating: floatPtr(7.3)}, "rating"},
		{"missing user", SubmitParams{AlbumID: album.ID, Rating: floatPtr(5)}, "userId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.ledger.SubmitReview(env.ctx, tc.params)
			var verr *validation.RequestValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Fields[0].Field != tc.field {
				t.Fatalf("field = %q, want %q", verr.Fields[0].Field, tc.field)
			}
		})
	}

	if avg := env.storedAverage(t, album.ID); avg != nil {
		t.Fatalf("rejected submissions must not write an average, got %v", *avg)
	}
}

func TestSubmitReview_UnknownAlbum(t *testing.T) {
	env := newTestEnv(t)

	for _, id := range []string{"not-a-uuid", "2b1f7c1e-59f6-4d6a-9a4e-2f4a7d1f0c11"} {
		_, err := env.ledger.SubmitReview(env.ctx, SubmitParams{AlbumID: id, UserID: "u", Rating: floatPtr(5)})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("album %q: expected ErrNotFound, got %v", id, err)
		}
	}
}

func TestSubmitReview_ConcurrentUsersLoseNoUpdate(t *testing.T) {
	env := newTestEnv(t)
	album := env.album(t, "Concurrent")

	ratings := []float64{10, 6, 7.5, 3, 9, 1, 8.5, 4}
	var (
		wg   sync.WaitGroup
		errs = make(chan error, len(ratings))
		sum  int
	)
	for i, r := range ratings {
		sum += int(r * 2)
		wg.Add(1)
		go func(user string, rating float64) {
			defer wg.Done()
			_, err := env.ledger.SubmitReview(env.ctx, SubmitParams{AlbumID: album.ID, UserID: user, Rating: &rating})
			errs <- err
		}(fmt.Sprintf("user-%d", i), r)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent submit: %v", err)
		}
	}

	state, err := env.repo.Albums.AggregateState(env.ctx, album.ID)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if state.Count != int64(len(ratings)) {
		t.Fatalf("count = %d, want %d", state.Count, len(ratings))
	}
	want := float64(sum/len(ratings)) / 2
	assertAverage(t, env.storedAverage(t, album.ID), want)
}

func TestSubmitReview_ConcurrentSameUserSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	album := env.album(t, "Race")

	const attempts = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(rating float64) {
			defer wg.Done()
			_, err := env.ledger.SubmitReview(env.ctx, SubmitParams{AlbumID: album.ID, UserID: "same", Rating: &rating})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(float64(i + 1))
	}
	wg.Wait()

	if ok != 1 || conflicts != attempts-1 {
		t.Fatalf("ok=%d conflicts=%d", ok, conflicts)
	}
}

func TestEditReview_RecomputesAverage(t *testing.T) {
	env := newTestEnv(t)
	album := env.album(t, "Edit")

	first := env.submit(t, album.ID, "alice", 10)
	env.submit(t, album.ID, "bob", 6)

	res, err := env.ledger.EditReview(env.ctx, EditParams{
		ReviewID:       first.Review.ID,
		UserID:         "alice",
		Rating:         floatPtr(2),
		FavouriteTrack: "Closer (feat. Friend)",
		Text:           "changed my mind",
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if res.Review.Rating != 4 || res.Review.FavouriteTracks != "Closer" || res.Review.Text != "changed my mind" {
		t.Fatalf("unexpected review after edit: %+v", res.Review)
	}
	// (4 + 12) / 2 = 8 half-points
	assertAverage(t, env.storedAverage(t, album.ID), 4)
}

func TestEditReview_NonAuthorForbidden(t *testing.T) {
	env := newTestEnv(t)
	album := env.album(t, "Owner")

	first := env.submit(t, album.ID, "alice", 10)

	_, err := env.ledger.EditReview(env.ctx, EditParams{ReviewID: first.Review.ID, UserID: "mallory", Rating: floatPtr(1)})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	review, err := env.repo.Reviews.GetByID(env.ctx, first.Review.ID)
	if err != nil {
		t.Fatalf("get review: %v", err)
	}
	if review.Rating != 20 {
		t.Fatalf("review was modified: rating %d", review.Rating)
	}
	assertAverage(t, env.storedAverage(t, album.ID), 10)
}

func TestEditReview_UnknownReview(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ledger.EditReview(env.ctx, EditParams{ReviewID: "2b1f7c1e-59f6-4d6a-9a4e-2f4a7d1f0c11", UserID: "u", Rating: floatPtr(5)})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteReview(t *testing.T) {
	env := newTestEnv(t)
	album := env.album(t, "Delete")

	first := env.submit(t, album.ID, "alice", 10)
	second := env.submit(t, album.ID, "bob", 6)

	if _, err := env.ledger.DeleteReview(env.ctx, first.Review.ID, "bob"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	avg, err := env.ledger.DeleteReview(env.ctx, first.Review.ID, "alice")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	assertAverage(t, avg.Display(), 6)
	assertAverage(t, env.storedAverage(t, album.ID), 6)

	if _, err := env.ledger.DeleteReview(env.ctx, first.Review.ID, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	avg, err = env.ledger.DeleteReview(env.ctx, second.Review.ID, "bob")
	if err != nil {
		t.Fatalf("delete last: %v", err)
	}
	if avg.Valid {
		t.Fatalf("average should be cleared, got %+v", avg)
	}
	if got := env.storedAverage(t, album.ID); got != nil {
		t.Fatalf("expected NULL average, got %v", *got)
	}

	// a user may review again once their review is gone
	env.submit(t, album.ID, "alice", 3)
	assertAverage(t, env.storedAverage(t, album.ID), 3)
}

type failingTx struct{ err error }

func (f failingTx) InTx(context.Context, func(pgx.Tx) error) error { return f.err }

func TestTransientErrorsAreUnavailable(t *testing.T) {
	cases := []error{
		&pgconn.PgError{Code: "40001"},
		&pgconn.PgError{Code: "40P01"},
		&pgconn.PgError{Code: "08006"},
	}
	for _, cause := range cases {
		l := New(failingTx{err: cause}, repository.NewWithPool(nil), zerolog.Nop())
		_, err := l.SubmitReview(context.Background(), SubmitParams{AlbumID: "a", UserID: "u", Rating: floatPtr(5)})
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("%v: expected ErrUnavailable, got %v", cause, err)
		}
	}

	l := New(failingTx{err: &pgconn.PgError{Code: "22001"}}, repository.NewWithPool(nil), zerolog.Nop())
	_, err := l.SubmitReview(context.Background(), SubmitParams{AlbumID: "a", UserID: "u", Rating: floatPtr(5)})
	if errors.Is(err, ErrUnavailable) {
		t.Fatalf("data errors must not be retryable")
	}
}
