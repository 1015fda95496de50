package models

import "time"

// TMDBCacheRecord caches resolved TMDB metadata for one title lookup.
// Stored at users/{uid}/integrations_cache/tmdb/{key}.
type TMDBCacheRecord struct {
	DocPath      string    `json:"docPath" boltholdKey:"DocPath"`
	TMDBID       int       `json:"tmdbId"`
	TMDBType     TMDBType  `json:"tmdbType"`
	Overview     *string   `json:"overview"`
	Genres       []string  `json:"genres"`
	ReleaseDate  *string   `json:"releaseDate"`
	FirstAirDate *string   `json:"firstAirDate"`
	PosterPath   *string   `json:"posterPath"`
	BackdropPath *string   `json:"backdropPath"`
	VoteAverage  *float64  `json:"voteAverage"`
	Language     *string   `json:"language"`
	CachedAt     time.Time `json:"cachedAt"`
}

// Fresh reports whether the entry is younger than ttl
func (c *TMDBCacheRecord) Fresh(now time.Time, ttl time.Duration) bool {
	return c != nil && !c.CachedAt.IsZero() && now.Sub(c.CachedAt) < ttl
}

// EnrichRateLimitRecord throttles enrichment calls per user.
// Stored at users/{uid}/integrations_meta/tmdbRateLimit.
type EnrichRateLimitRecord struct {
	DocPath          string    `json:"docPath" boltholdKey:"DocPath"`
	LastCallAt       time.Time `json:"lastCallAt"`
	RateLimitedUntil time.Time `json:"rateLimitedUntil"`
}

// Active reports whether the cooldown is still running
func (r *EnrichRateLimitRecord) Active(now time.Time) bool {
	return r != nil && !r.RateLimitedUntil.IsZero() && now.Before(r.RateLimitedUntil)
}
