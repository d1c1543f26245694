package repository

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// AlbumCursor allows stable pagination by created_at/id.
type AlbumCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// PickCursor resumes the archive after the given effective date.
type PickCursor struct {
	Date string `json:"date"`
}

func encodeCursor(c any) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

func decodeCursor[T any](token string) (*T, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor T
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	return &cursor, nil
}

// DecodeAlbumCursor parses a cursor token returned by AlbumsRepository.List.
func DecodeAlbumCursor(token string) (*AlbumCursor, error) {
	return decodeCursor[AlbumCursor](token)
}

// DecodePickCursor parses a cursor token returned by PicksRepository.Archive.
func DecodePickCursor(token string) (*PickCursor, error) {
	c, err := decodeCursor[PickCursor](token)
	if err != nil || c == nil {
		return c, err
	}
	if _, err := time.Parse(dateLayout, c.Date); err != nil {
		return nil, fmt.Errorf("invalid cursor date: %w", err)
	}
	return c, nil
}
