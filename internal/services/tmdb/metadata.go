package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/privatecinema/internal/models"
	"github.com/amaumene/privatecinema/internal/utils"
)

// SearchResult is one title hit from a TMDB search
type SearchResult struct {
	ID    int
	Title string
	Year  int
}

// Details holds the metadata copied onto a media record
type Details struct {
	ID           int
	Type         models.TMDBType
	Overview     *string
	Genres       []string
	ReleaseDate  *string
	FirstAirDate *string
	PosterPath   *string
	BackdropPath *string
	VoteAverage  *float64
	Language     *string
}

// rawObject decodes a JSON object leniently: a missing or mistyped field
// reads as nil instead of failing the whole response
type rawObject map[string]json.RawMessage

func (o rawObject) str(key string) *string {
	var s string
	if raw, ok := o[key]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
		return &s
	}
	return nil
}

func (o rawObject) num(key string) *float64 {
	var f float64
	if raw, ok := o[key]; ok && json.Unmarshal(raw, &f) == nil {
		return &f
	}
	return nil
}

func (o rawObject) integer(key string) *int {
	f := o.num(key)
	if f == nil || *f != float64(int(*f)) {
		return nil
	}
	i := int(*f)
	return &i
}

func (o rawObject) objects(key string) []rawObject {
	var list []json.RawMessage
	raw, ok := o[key]
	if !ok || json.Unmarshal(raw, &list) != nil {
		return nil
	}
	objs := make([]rawObject, 0, len(list))
	for _, item := range list {
		var obj rawObject
		if json.Unmarshal(item, &obj) == nil && obj != nil {
			objs = append(objs, obj)
		}
	}
	return objs
}

// Search looks up a title in the TMDB namespace matching mediaType:
// search/tv for episodes, search/movie otherwise
func (c *Client) Search(ctx context.Context, mediaType models.MediaType, title string, year int) ([]SearchResult, error) {
	tmdbType := mediaType.TMDBType()
	query := url.Values{}
	query.Set("query", title)
	query.Set("include_adult", "false")
	if year > 0 {
		if tmdbType == models.TMDBTypeTV {
			query.Set("first_air_date_year", strconv.Itoa(year))
		} else {
			query.Set("year", strconv.Itoa(year))
		}
	}

	var response rawObject
	if err := c.doRequest(ctx, "/search/"+string(tmdbType), query, &response); err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", tmdbType, err)
	}

	titleKey, dateKey := "title", "release_date"
	if tmdbType == models.TMDBTypeTV {
		titleKey, dateKey = "name", "first_air_date"
	}

	var results []SearchResult
	for _, obj := range response.objects("results") {
		id := obj.integer("id")
		name := obj.str(titleKey)
		if id == nil || name == nil {
			continue
		}
		result := SearchResult{ID: *id, Title: *name}
		if date := obj.str(dateKey); date != nil {
			result.Year = utils.ExtractYear(*date)
		}
		results = append(results, result)
	}

	return results, nil
}

// BestMatch picks the result whose title is closest to the wanted one
func BestMatch(title string, year int, results []SearchResult) (SearchResult, bool) {
	if len(results) == 0 {
		return SearchResult{}, false
	}

	candidates := make([]utils.TitleCandidate, len(results))
	for i, r := range results {
		candidates[i] = utils.TitleCandidate{Index: i, Title: r.Title, Year: r.Year}
	}
	ranked := utils.RankByTitle(title, year, candidates)
	return results[ranked[0].Index], true
}

// GetDetails fetches full metadata for a TMDB id
func (c *Client) GetDetails(ctx context.Context, tmdbType models.TMDBType, id int) (*Details, error) {
	var response rawObject
	path := fmt.Sprintf("/%s/%d", tmdbType, id)
	if err := c.doRequest(ctx, path, nil, &response); err != nil {
		return nil, fmt.Errorf("failed to get %s details: %w", tmdbType, err)
	}

	details := &Details{
		ID:           id,
		Type:         tmdbType,
		Overview:     response.str("overview"),
		ReleaseDate:  response.str("release_date"),
		FirstAirDate: response.str("first_air_date"),
		PosterPath:   response.str("poster_path"),
		BackdropPath: response.str("backdrop_path"),
		VoteAverage:  response.num("vote_average"),
		Language:     response.str("original_language"),
		Genres:       []string{},
	}
	if returned := response.integer("id"); returned != nil {
		details.ID = *returned
	}
	for _, genre := range response.objects("genres") {
		if name := genre.str("name"); name != nil {
			details.Genres = append(details.Genres, *name)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"tmdb_id": details.ID,
		"type":    tmdbType,
	}).Debug("Fetched TMDB details")

	return details, nil
}

// Lookup searches for a title, picks the closest match and returns its
// details. ErrNotFound when nothing matches.
func (c *Client) Lookup(ctx context.Context, mediaType models.MediaType, title string, year int) (*Details, error) {
	results, err := c.Search(ctx, mediaType, title, year)
	if err != nil {
		return nil, err
	}

	best, ok := BestMatch(title, year, results)
	if !ok {
		return nil, ErrNotFound
	}

	return c.GetDetails(ctx, mediaType.TMDBType(), best.ID)
}
