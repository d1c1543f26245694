package domain

import (
	"regexp"
	"strings"
)

var featuredArtist = regexp.MustCompile(`\s*(?:\(\s*feat\.[^)]*\)|\[\s*feat\.[^\]]*\])`)

// RemoveFeaturedArtists strips "(feat. ...)" and "[feat. ...]" annotations from a track name.
func RemoveFeaturedArtists(track string) string {
	return strings.TrimSpace(featuredArtist.ReplaceAllString(track, ""))
}

// JoinTracks normalizes each track name and joins the non-empty ones for storage.
func JoinTracks(tracks []string) string {
	cleaned := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if name := RemoveFeaturedArtists(t); name != "" {
			cleaned = append(cleaned, name)
		}
	}
	return strings.Join(cleaned, ", ")
}
