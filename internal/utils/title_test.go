package utils

import "testing"

func TestFoldTitle(t *testing.T) {
	tests := map[string]string{
		"Amélie":             "amelie",
		"  The   MATRIX ":    "the matrix",
		"Straße":             "strasse",
		"Pokémon: The Movie": "pokemon: the movie",
	}
	for in, want := range tests {
		if got := FoldTitle(in); got != want {
			t.Errorf("FoldTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRankByTitle(t *testing.T) {
	candidates := []TitleCandidate{
		{Index: 0, Title: "The Matrix Reloaded", Year: 2003},
		{Index: 1, Title: "The Matrix", Year: 1999},
		{Index: 2, Title: "The Matrix", Year: 2021},
	}

	ranked := RankByTitle("the matrix", 1999, candidates)
	if ranked[0].Index != 1 {
		t.Fatalf("expected exact title with matching year first, got index %d", ranked[0].Index)
	}
	if ranked[1].Index != 2 {
		t.Errorf("expected exact title without year match second, got index %d", ranked[1].Index)
	}
	if ranked[2].Index != 0 {
		t.Errorf("expected distant title last, got index %d", ranked[2].Index)
	}

	// Without a wanted year, ties keep upstream order
	ranked = RankByTitle("The Matrix", 0, candidates)
	if ranked[0].Index != 1 || ranked[1].Index != 2 {
		t.Errorf("expected stable order for ties, got %v", ranked)
	}
}

func TestExtractYear(t *testing.T) {
	if got := ExtractYear("Movie (2009) 1080p"); got != 2009 {
		t.Errorf("expected 2009, got %d", got)
	}
	if got := ExtractYear("2021-05-01"); got != 2021 {
		t.Errorf("expected 2021, got %d", got)
	}
	if got := ExtractYear("No year here"); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestParseSeasonEpisode(t *testing.T) {
	season, episode := ParseSeasonEpisode("Show.Name.S02E05.1080p.mkv")
	if season == nil || *season != 2 {
		t.Fatalf("expected season 2, got %v", season)
	}
	if episode == nil || *episode != 5 {
		t.Fatalf("expected episode 5, got %v", episode)
	}

	season, episode = ParseSeasonEpisode("Movie.2009.mkv")
	if season != nil || episode != nil {
		t.Errorf("expected no season/episode for a movie")
	}
}

func TestTitleFromFilename(t *testing.T) {
	tests := map[string]string{
		"The.Matrix.1999.1080p.mkv": "The Matrix",
		"Show.Name.S01E02.720p.mp4": "Show Name",
		"Some_Movie (2010).mkv":     "Some Movie",
		"1917.mkv":                  "1917",
		"/media/movies/Heat.mp4":    "Heat",
	}
	for in, want := range tests {
		if got := TitleFromFilename(in); got != want {
			t.Errorf("TitleFromFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
