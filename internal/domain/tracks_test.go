package domain

import "testing"

func TestRemoveFeaturedArtists(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Song Title (feat. Artist X)", "Song Title"},
		{"Song [feat. Y]", "Song"},
		{"Song ( feat. A & B )", "Song"},
		{"Song (feat. A) (Remix)", "Song (Remix)"},
		{"  Plain Song  ", "Plain Song"},
		{"Song (Feat. Z)", "Song (Feat. Z)"},
		{"Song (featuring Z)", "Song (featuring Z)"},
	}
	for _, tt := range tests {
		if got := RemoveFeaturedArtists(tt.in); got != tt.want {
			t.Fatalf("RemoveFeaturedArtists(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJoinTracks(t *testing.T) {
	got := JoinTracks([]string{"One (feat. X)", "  ", "Two [feat. Y]", "Three"})
	if got != "One, Two, Three" {
		t.Fatalf("JoinTracks = %q", got)
	}
	if JoinTracks(nil) != "" {
		t.Fatalf("JoinTracks(nil) should be empty")
	}
}

func FuzzRemoveFeaturedArtists(f *testing.F) {
	f.Add("Song Title (feat. Artist X)")
	f.Add("[feat. ]")
	f.Add("(((feat.")
	f.Fuzz(func(t *testing.T, in string) {
		out := RemoveFeaturedArtists(in)
		if len(out) > len(in) {
			t.Fatalf("output grew for %q: %q", in, out)
		}
	})
}
