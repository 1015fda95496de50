package utils

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// FoldTitle normalizes a title for comparison and cache keys:
// accents stripped, case folded, whitespace collapsed.
func FoldTitle(title string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripMarks, title)
	if err != nil {
		stripped = title
	}
	return strings.Join(strings.Fields(folder.String(stripped)), " ")
}

// TitleCandidate is one search hit to rank against a wanted title
type TitleCandidate struct {
	Index int
	Title string
	Year  int
}

// RankByTitle sorts candidates by:
// 1. Edit distance between folded titles (smaller is better)
// 2. Year match when a year is wanted
// 3. Original order (the upstream relevance ranking)
func RankByTitle(want string, wantYear int, candidates []TitleCandidate) []TitleCandidate {
	sorted := make([]TitleCandidate, len(candidates))
	copy(sorted, candidates)

	folded := FoldTitle(want)
	distance := make(map[int]int, len(sorted))
	for _, c := range sorted {
		distance[c.Index] = levenshtein.ComputeDistance(folded, FoldTitle(c.Title))
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := distance[sorted[i].Index], distance[sorted[j].Index]
		if di != dj {
			return di < dj
		}
		if wantYear > 0 {
			mi, mj := sorted[i].Year == wantYear, sorted[j].Year == wantYear
			if mi != mj {
				return mi
			}
		}
		return sorted[i].Index < sorted[j].Index
	})

	return sorted
}

var yearRegex = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)

// ExtractYear extracts a 4-digit year from a title or date string
// Returns 0 if no year is found
func ExtractYear(title string) int {
	matches := yearRegex.FindStringSubmatch(title)
	if len(matches) > 1 {
		year, err := strconv.Atoi(matches[1])
		if err == nil {
			return year
		}
	}
	return 0
}

var (
	episodeRegex   = regexp.MustCompile(`(?i)(?:^|[\._ \-])S(\d{1,2})E(\d{1,3})`)
	yearSuffixTrim = regexp.MustCompile(`[\(\[]?\b(19\d{2}|20\d{2})\b[\)\]]?.*$`)
)

// ParseSeasonEpisode extracts season and episode numbers from a filename.
// Returns nil pointers when the name carries no SxxEyy marker.
func ParseSeasonEpisode(name string) (*int, *int) {
	matches := episodeRegex.FindStringSubmatch(name)
	if matches == nil {
		return nil, nil
	}
	season, _ := strconv.Atoi(matches[1])
	episode, _ := strconv.Atoi(matches[2])
	return &season, &episode
}

// TitleFromFilename derives a display title from a media filename:
// extension dropped, separators turned into spaces, episode and year
// suffixes removed.
func TitleFromFilename(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if loc := episodeRegex.FindStringIndex(base); loc != nil && loc[0] > 0 {
		base = base[:loc[0]]
	}
	base = strings.NewReplacer(".", " ", "_", " ").Replace(base)
	if trimmed := strings.TrimSpace(yearSuffixTrim.ReplaceAllString(base, "")); trimmed != "" {
		base = trimmed
	}
	return strings.Join(strings.Fields(base), " ")
}
