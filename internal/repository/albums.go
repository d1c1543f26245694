package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/album-of-the-day/internal/domain"
)

// AlbumsRepository provides persistence helpers for albums and their cached aggregate.
type AlbumsRepository struct {
	db DBTX
}

func albumColumns(alias string) string {
	p := ""
	if alias != "" {
		p = alias + "."
	}
	cols := []string{
		p + "id",
		p + "title",
		p + "artist",
		p + "release_year",
		p + "genre",
		p + "image_url",
		p + "catalog_id",
		p + "average_rating::float8",
		p + "created_at",
		p + "updated_at",
	}
	return strings.Join(cols, ", ")
}

// AlbumCreateParams bundles the fields required to create an album.
type AlbumCreateParams struct {
	Title       string
	Artist      string
	ReleaseYear *int
	Genre       *string
	ImageURL    *string
	CatalogID   *string
}

// AlbumListFilters encapsulates search and pagination options.
type AlbumListFilters struct {
	Query  *string
	Year   *int
	Genre  *string
	Limit  int
	Cursor *AlbumCursor
}

// AlbumListResult returns the paginated payload.
type AlbumListResult struct {
	Items      []domain.Album
	NextCursor *string
}

// Create inserts a new album row and returns the stored entity.
func (r *AlbumsRepository) Create(ctx context.Context, params AlbumCreateParams) (domain.Album, error) {
	query := fmt.Sprintf(`
        INSERT INTO albums (title, artist, release_year, genre, image_url, catalog_id)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING %s
    `, albumColumns(""))

	row := r.db.QueryRow(ctx, query, params.Title, params.Artist, params.ReleaseYear, params.Genre, params.ImageURL, params.CatalogID)
	album, err := scanAlbum(row)
	if err != nil {
		if pgErrorCode(err) == codeUniqueViolation {
			return domain.Album{}, ErrConflict
		}
		return domain.Album{}, err
	}
	return album, nil
}

// GetByID fetches an album by its identifier.
func (r *AlbumsRepository) GetByID(ctx context.Context, id string) (domain.Album, error) {
	if !validID(id) {
		return domain.Album{}, ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM albums WHERE id = $1`, albumColumns(""))
	return r.getOne(ctx, query, id)
}

// GetByCatalogID fetches an album imported from the music catalog.
func (r *AlbumsRepository) GetByCatalogID(ctx context.Context, catalogID string) (domain.Album, error) {
	query := fmt.Sprintf(`SELECT %s FROM albums WHERE catalog_id = $1`, albumColumns(""))
	return r.getOne(ctx, query, catalogID)
}

// LockForUpdate reads the album row and holds a row lock until the
// surrounding transaction ends. Writers of the album's review set take this
// lock first, which serializes aggregate maintenance per album.
func (r *AlbumsRepository) LockForUpdate(ctx context.Context, id string) (domain.Album, error) {
	if !validID(id) {
		return domain.Album{}, ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM albums WHERE id = $1 FOR UPDATE`, albumColumns(""))
	return r.getOne(ctx, query, id)
}

// AggregateState returns the number of reviews and the sum of their stored ratings.
func (r *AlbumsRepository) AggregateState(ctx context.Context, albumID string) (domain.AggregateState, error) {
	const query = `
        SELECT COUNT(*)::int8, COALESCE(SUM(rating), 0)::int8
        FROM reviews
        WHERE album_id = $1
    `
	var state domain.AggregateState
	if err := r.db.QueryRow(ctx, query, albumID).Scan(&state.Count, &state.SumStored); err != nil {
		return domain.AggregateState{}, fmt.Errorf("aggregate reviews: %w", err)
	}
	return state, nil
}

// SetAverageRating persists the cached aggregate in display units; an invalid average stores NULL.
func (r *AlbumsRepository) SetAverageRating(ctx context.Context, albumID string, avg domain.Average) error {
	const query = `
        UPDATE albums
        SET average_rating = $2,
            updated_at = now()
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, albumID, avg.Display())
	if err != nil {
		return fmt.Errorf("set average rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns albums that match the provided filters, newest first.
func (r *AlbumsRepository) List(ctx context.Context, filters AlbumListFilters) (AlbumListResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	} else if filters.Limit > 100 {
		filters.Limit = 100
	}

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Query != nil && strings.TrimSpace(*filters.Query) != "" {
		q := "%" + strings.TrimSpace(*filters.Query) + "%"
		p := arg(q)
		where = append(where, fmt.Sprintf("(title ILIKE %s OR artist ILIKE %s)", p, p))
	}
	if filters.Year != nil {
		where = append(where, fmt.Sprintf("release_year = %s", arg(*filters.Year)))
	}
	if filters.Genre != nil && strings.TrimSpace(*filters.Genre) != "" {
		where = append(where, fmt.Sprintf("genre ILIKE %s", arg(strings.TrimSpace(*filters.Genre))))
	}
	if filters.Cursor != nil {
		cursorCreated := arg(filters.Cursor.CreatedAt)
		cursorID := arg(filters.Cursor.ID)
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s::uuid)", cursorCreated, cursorID))
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(albumColumns(""))
	queryBuilder.WriteString(" FROM albums")
	if len(where) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(where, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY created_at DESC, id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d", filters.Limit))

	rows, err := r.db.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return AlbumListResult{}, err
	}
	defer rows.Close()

	items := make([]domain.Album, 0)
	for rows.Next() {
		album, err := scanAlbum(rows)
		if err != nil {
			return AlbumListResult{}, err
		}
		items = append(items, album)
	}
	if err := rows.Err(); err != nil {
		return AlbumListResult{}, err
	}

	var nextCursor *string
	if len(items) == filters.Limit {
		last := items[len(items)-1]
		token, err := encodeCursor(AlbumCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return AlbumListResult{}, err
		}
		nextCursor = &token
	}

	return AlbumListResult{Items: items, NextCursor: nextCursor}, nil
}

func (r *AlbumsRepository) getOne(ctx context.Context, query string, args ...any) (domain.Album, error) {
	album, err := scanAlbum(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Album{}, ErrNotFound
		}
		return domain.Album{}, err
	}
	return album, nil
}

func scanAlbum(row pgx.Row) (domain.Album, error) {
	var (
		album     domain.Album
		average   *float64
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(
		&album.ID,
		&album.Title,
		&album.Artist,
		&album.ReleaseYear,
		&album.Genre,
		&album.ImageURL,
		&album.CatalogID,
		&average,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return domain.Album{}, err
	}

	album.AverageRating = domain.AverageFromDisplay(average)
	album.CreatedAt = createdAt
	album.UpdatedAt = updatedAt
	return album, nil
}
