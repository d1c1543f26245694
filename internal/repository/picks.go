package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/album-of-the-day/internal/domain"
)

const dateLayout = "2006-01-02"

// PicksRepository stores the album of the day, one row per effective date.
type PicksRepository struct {
	db DBTX
}

// PickArchiveFilters selects picks strictly before a date.
type PickArchiveFilters struct {
	Before time.Time
	Limit  int
	Cursor *PickCursor
}

// PickArchiveResult returns one page of past picks.
type PickArchiveResult struct {
	Items      []domain.Pick
	NextCursor *string
}

// Set records albumID as the pick for date. If a pick already exists for that
// date it is returned unchanged and created is false.
func (r *PicksRepository) Set(ctx context.Context, date time.Time, albumID string) (domain.Pick, bool, error) {
	if !validID(albumID) {
		return domain.Pick{}, false, ErrNotFound
	}
	day := civilDate(date)

	const insert = `
        INSERT INTO picks (effective_date, album_id)
        VALUES ($1, $2)
        ON CONFLICT (effective_date) DO NOTHING
    `
	tag, err := r.db.Exec(ctx, insert, day, albumID)
	if err != nil {
		if pgErrorCode(err) == codeForeignKeyViolation {
			return domain.Pick{}, false, ErrNotFound
		}
		return domain.Pick{}, false, err
	}

	pick, err := r.GetByDate(ctx, date)
	if err != nil {
		return domain.Pick{}, false, err
	}
	return pick, tag.RowsAffected() == 1, nil
}

// GetByDate fetches the pick for an exact date.
func (r *PicksRepository) GetByDate(ctx context.Context, date time.Time) (domain.Pick, error) {
	query := fmt.Sprintf(`
        SELECT p.effective_date, p.created_at, %s
        FROM picks p
        JOIN albums a ON a.id = p.album_id
        WHERE p.effective_date = $1
    `, albumColumns("a"))
	return r.getOne(ctx, query, civilDate(date))
}

// Current returns the most recent pick effective on or before asOf.
func (r *PicksRepository) Current(ctx context.Context, asOf time.Time) (domain.Pick, error) {
	query := fmt.Sprintf(`
        SELECT p.effective_date, p.created_at, %s
        FROM picks p
        JOIN albums a ON a.id = p.album_id
        WHERE p.effective_date <= $1
        ORDER BY p.effective_date DESC
        LIMIT 1
    `, albumColumns("a"))
	return r.getOne(ctx, query, civilDate(asOf))
}

// Archive lists past picks, most recent first.
func (r *PicksRepository) Archive(ctx context.Context, filters PickArchiveFilters) (PickArchiveResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	} else if filters.Limit > 100 {
		filters.Limit = 100
	}

	upper := civilDate(filters.Before)
	if filters.Cursor != nil {
		if after, err := time.Parse(dateLayout, filters.Cursor.Date); err == nil && after.Before(upper) {
			upper = after
		}
	}

	query := fmt.Sprintf(`
        SELECT p.effective_date, p.created_at, %s
        FROM picks p
        JOIN albums a ON a.id = p.album_id
        WHERE p.effective_date < $1
        ORDER BY p.effective_date DESC
        LIMIT %d
    `, albumColumns("a"), filters.Limit)

	rows, err := r.db.Query(ctx, query, upper)
	if err != nil {
		return PickArchiveResult{}, err
	}
	defer rows.Close()

	items := make([]domain.Pick, 0)
	for rows.Next() {
		pick, err := scanPick(rows)
		if err != nil {
			return PickArchiveResult{}, err
		}
		items = append(items, pick)
	}
	if err := rows.Err(); err != nil {
		return PickArchiveResult{}, err
	}

	var nextCursor *string
	if len(items) == filters.Limit {
		last := items[len(items)-1]
		token, err := encodeCursor(PickCursor{Date: last.EffectiveDate.Format(dateLayout)})
		if err != nil {
			return PickArchiveResult{}, err
		}
		nextCursor = &token
	}
	return PickArchiveResult{Items: items, NextCursor: nextCursor}, nil
}

func (r *PicksRepository) getOne(ctx context.Context, query string, args ...any) (domain.Pick, error) {
	pick, err := scanPick(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pick{}, ErrNotFound
		}
		return domain.Pick{}, err
	}
	return pick, nil
}

func scanPick(row pgx.Row) (domain.Pick, error) {
	var (
		pick      domain.Pick
		album     domain.Album
		average   *float64
		effective time.Time
	)
	err := row.Scan(
		&effective,
		&pick.CreatedAt,
		&album.ID,
		&album.Title,
		&album.Artist,
		&album.ReleaseYear,
		&album.Genre,
		&album.ImageURL,
		&album.CatalogID,
		&average,
		&album.CreatedAt,
		&album.UpdatedAt,
	)
	if err != nil {
		return domain.Pick{}, err
	}
	album.AverageRating = domain.AverageFromDisplay(average)
	pick.EffectiveDate = effective
	pick.AlbumID = album.ID
	pick.Album = album
	return pick, nil
}

// civilDate keeps the calendar day of t in its own location, as midnight UTC.
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
