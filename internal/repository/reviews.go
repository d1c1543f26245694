package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/album-of-the-day/internal/domain"
)

// ReviewsRepository provides helpers for album reviews.
type ReviewsRepository struct {
	db DBTX
}

const reviewColumns = `
    id,
    album_id,
    user_id,
    rating,
    favourite_tracks,
    review,
    created_at,
    updated_at
`

// ReviewInsertParams captures the payload required to insert a review.
type ReviewInsertParams struct {
	ID              string
	AlbumID         string
	UserID          string
	Rating          domain.Rating
	FavouriteTracks string
	Text            string
}

// ReviewUpdateParams lists the fields an author may overwrite.
type ReviewUpdateParams struct {
	Rating          domain.Rating
	FavouriteTracks string
	Text            string
}

// Insert stores a new review. A second review by the same user for the same
// album violates reviews_album_user_key and yields ErrConflict.
func (r *ReviewsRepository) Insert(ctx context.Context, params ReviewInsertParams) (domain.Review, error) {
	query := fmt.Sprintf(`
        INSERT INTO reviews (id, album_id, user_id, rating, favourite_tracks, review)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING %s
    `, reviewColumns)

	row := r.db.QueryRow(ctx, query, params.ID, params.AlbumID, params.UserID, int16(params.Rating), params.FavouriteTracks, params.Text)
	review, err := scanReview(row)
	if err != nil {
		switch pgErrorCode(err) {
		case codeUniqueViolation:
			return domain.Review{}, ErrConflict
		case codeForeignKeyViolation:
			return domain.Review{}, ErrNotFound
		}
		return domain.Review{}, err
	}
	return review, nil
}

// Update overwrites the rating, favourite tracks and text of a review.
func (r *ReviewsRepository) Update(ctx context.Context, id string, params ReviewUpdateParams) (domain.Review, error) {
	if !validID(id) {
		return domain.Review{}, ErrNotFound
	}
	query := fmt.Sprintf(`
        UPDATE reviews
        SET rating = $2,
            favourite_tracks = $3,
            review = $4,
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, reviewColumns)

	review, err := scanReview(r.db.QueryRow(ctx, query, id, int16(params.Rating), params.FavouriteTracks, params.Text))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Review{}, ErrNotFound
		}
		return domain.Review{}, err
	}
	return review, nil
}

// Delete removes a review.
func (r *ReviewsRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID fetches a review by its identifier.
func (r *ReviewsRepository) GetByID(ctx context.Context, id string) (domain.Review, error) {
	if !validID(id) {
		return domain.Review{}, ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM reviews WHERE id = $1`, reviewColumns)
	return r.getOne(ctx, query, id)
}

// FindByAlbumAndUser retrieves the review a user wrote for an album.
func (r *ReviewsRepository) FindByAlbumAndUser(ctx context.Context, albumID, userID string) (domain.Review, error) {
	if !validID(albumID) {
		return domain.Review{}, ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM reviews WHERE album_id = $1 AND user_id = $2`, reviewColumns)
	return r.getOne(ctx, query, albumID, userID)
}

// ListByAlbum returns an album's reviews, newest first.
func (r *ReviewsRepository) ListByAlbum(ctx context.Context, albumID string) ([]domain.Review, error) {
	if !validID(albumID) {
		return nil, ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM reviews WHERE album_id = $1 ORDER BY created_at DESC, id DESC`, reviewColumns)
	rows, err := r.db.Query(ctx, query, albumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reviews, nil
}

func (r *ReviewsRepository) getOne(ctx context.Context, query string, args ...any) (domain.Review, error) {
	review, err := scanReview(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Review{}, ErrNotFound
		}
		return domain.Review{}, err
	}
	return review, nil
}

func scanReview(row pgx.Row) (domain.Review, error) {
	var (
		review domain.Review
		rating int16
	)
	err := row.Scan(
		&review.ID,
		&review.AlbumID,
		&review.UserID,
		&rating,
		&review.FavouriteTracks,
		&review.Text,
		&review.CreatedAt,
		&review.UpdatedAt,
	)
	if err != nil {
		return domain.Review{}, err
	}
	review.Rating = domain.Rating(rating)
	return review, nil
}
