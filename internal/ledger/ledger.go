// Package ledger records album reviews and keeps each album's cached average
// rating consistent with its review set.
//
// Every mutation runs in one transaction that starts by locking the album
// row, so the read of the aggregate and the write of the new average can
// never interleave with another mutation of the same album.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/album-of-the-day/internal/domain"
	"github.com/Clark-Hu/album-of-the-day/internal/logging"
	"github.com/Clark-Hu/album-of-the-day/internal/metrics"
	"github.com/Clark-Hu/album-of-the-day/internal/repository"
	"github.com/Clark-Hu/album-of-the-day/internal/validation"
)

// TxRunner runs fn in a transaction, committing only when fn returns nil.
// *store.Store satisfies it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// Ledger owns review mutations and the derived album aggregate.
type Ledger struct {
	tx     TxRunner
	repo   *repository.Repository
	logger zerolog.Logger
	newID  func() string
}

// New builds a Ledger. repo supplies the repositories that are rebound to
// each transaction.
func New(tx TxRunner, repo *repository.Repository, logger zerolog.Logger) *Ledger {
	return &Ledger{
		tx:     tx,
		repo:   repo,
		logger: logging.Component(logger, "ledger"),
		newID:  uuid.NewString,
	}
}

// SubmitParams is a member's first review of an album.
type SubmitParams struct {
	AlbumID         string   `json:"albumId"`
	UserID          string   `json:"userId" validate:"required,max=128"`
	Rating          *float64 `json:"rating" validate:"required,gte=1,lte=10,halfstep"`
	FavouriteTracks []string `json:"favouriteTracks" validate:"max=20,dive,max=300"`
	Text            string   `json:"reviewText" validate:"max=5000"`
}

// EditParams overwrites an existing review.
type EditParams struct {
	ReviewID       string   `json:"reviewId"`
	UserID         string   `json:"userId" validate:"required,max=128"`
	Rating         *float64 `json:"rating" validate:"required,gte=1,lte=10,halfstep"`
	FavouriteTrack string   `json:"favouriteTrack" validate:"max=300"`
	Text           string   `json:"reviewText" validate:"max=5000"`
}

// Result is a written review together with the album average it produced.
type Result struct {
	Review       domain.Review
	AlbumAverage domain.Average
}

// SubmitReview stores the review and folds its rating into the album average.
// The average is derived from the review set as it was before the insert and
// is committed with it.
func (l *Ledger) SubmitReview(ctx context.Context, params SubmitParams) (res Result, err error) {
	defer l.observe("submit", time.Now(), &err)

	if err := validation.Struct(params); err != nil {
		return Result{}, err
	}
	rating, err := domain.ParseRating(*params.Rating)
	if err != nil {
		return Result{}, validation.NewFieldError("rating", "halfstep", err.Error())
	}
	tracks := domain.JoinTracks(params.FavouriteTracks)

	err = l.tx.InTx(ctx, func(tx pgx.Tx) error {
		repo := l.repo.WithTx(tx)
		if _, err := repo.Albums.LockForUpdate(ctx, params.AlbumID); err != nil {
			return err
		}
		prior, err := repo.Albums.AggregateState(ctx, params.AlbumID)
		if err != nil {
			return err
		}
		review, err := repo.Reviews.Insert(ctx, repository.ReviewInsertParams{
			ID:              l.newID(),
			AlbumID:         params.AlbumID,
			UserID:          params.UserID,
			Rating:          rating,
			FavouriteTracks: tracks,
			Text:            params.Text,
		})
		if err != nil {
			return err
		}
		avg := domain.FoldIn(prior, rating)
		if err := repo.Albums.SetAverageRating(ctx, params.AlbumID, avg); err != nil {
			return err
		}
		res = Result{Review: review, AlbumAverage: avg}
		return nil
	})
	if err != nil {
		return Result{}, translate(err)
	}

	l.logger.Info().
		Str("album_id", res.Review.AlbumID).
		Str("review_id", res.Review.ID).
		Int("average_stored", res.AlbumAverage.Stored).
		Msg("review submitted")
	return res, nil
}

// EditReview overwrites a review owned by params.UserID and recomputes the
// album average from the full review set.
func (l *Ledger) EditReview(ctx context.Context, params EditParams) (res Result, err error) {
	defer l.observe("edit", time.Now(), &err)

	if err := validation.Struct(params); err != nil {
		return Result{}, err
	}
	rating, err := domain.ParseRating(*params.Rating)
	if err != nil {
		return Result{}, validation.NewFieldError("rating", "halfstep", err.Error())
	}
	track := domain.RemoveFeaturedArtists(params.FavouriteTrack)

	err = l.tx.InTx(ctx, func(tx pgx.Tx) error {
		repo := l.repo.WithTx(tx)
		existing, err := l.ownedReview(ctx, repo, params.ReviewID, params.UserID)
		if err != nil {
			return err
		}
		review, err := repo.Reviews.Update(ctx, existing.ID, repository.ReviewUpdateParams{
			Rating:          rating,
			FavouriteTracks: track,
			Text:            params.Text,
		})
		if err != nil {
			return err
		}
		avg, err := recompute(ctx, repo, existing.AlbumID)
		if err != nil {
			return err
		}
		res = Result{Review: review, AlbumAverage: avg}
		return nil
	})
	if err != nil {
		return Result{}, translate(err)
	}

	l.logger.Info().
		Str("album_id", res.Review.AlbumID).
		Str("review_id", res.Review.ID).
		Int("average_stored", res.AlbumAverage.Stored).
		Msg("review edited")
	return res, nil
}

// DeleteReview removes a review owned by userID and recomputes the album
// average. Removing the last review clears the average.
func (l *Ledger) DeleteReview(ctx context.Context, reviewID, userID string) (avg domain.Average, err error) {
	defer l.observe("delete", time.Now(), &err)

	if userID == "" {
		return domain.Average{}, validation.NewFieldError("userId", "required", "is required")
	}

	var albumID string
	err = l.tx.InTx(ctx, func(tx pgx.Tx) error {
		repo := l.repo.WithTx(tx)
		existing, err := l.ownedReview(ctx, repo, reviewID, userID)
		if err != nil {
			return err
		}
		if err := repo.Reviews.Delete(ctx, existing.ID); err != nil {
			return err
		}
		albumID = existing.AlbumID
		avg, err = recompute(ctx, repo, existing.AlbumID)
		return err
	})
	if err != nil {
		return domain.Average{}, translate(err)
	}

	l.logger.Info().
		Str("album_id", albumID).
		Str("review_id", reviewID).
		Bool("average_cleared", !avg.Valid).
		Msg("review deleted")
	return avg, nil
}

// ownedReview loads the review, checks authorship and takes the album lock.
// The review is re-read under the lock so a concurrent delete surfaces as
// not found rather than a lost write.
func (l *Ledger) ownedReview(ctx context.Context, repo *repository.Repository, reviewID, userID string) (domain.Review, error) {
	review, err := repo.Reviews.GetByID(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	if !review.OwnedBy(userID) {
		l.logger.Warn().
			Str("review_id", reviewID).
			Str("user_id", userID).
			Msg("rejected mutation by non-author")
		return domain.Review{}, ErrForbidden
	}
	if _, err := repo.Albums.LockForUpdate(ctx, review.AlbumID); err != nil {
		return domain.Review{}, err
	}
	return repo.Reviews.GetByID(ctx, reviewID)
}

func recompute(ctx context.Context, repo *repository.Repository, albumID string) (domain.Average, error) {
	state, err := repo.Albums.AggregateState(ctx, albumID)
	if err != nil {
		return domain.Average{}, err
	}
	avg := domain.AverageOf(state)
	if err := repo.Albums.SetAverageRating(ctx, albumID, avg); err != nil {
		return domain.Average{}, err
	}
	return avg, nil
}

func (l *Ledger) observe(op string, start time.Time, errp *error) {
	result := outcome(*errp)
	metrics.RecordLedger(op, result, time.Since(start))
	if result == "error" || result == "unavailable" {
		l.logger.Error().Err(*errp).Str("operation", op).Msg("review mutation failed")
	}
}
